package http

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"mailsync_server/adapter/out/persistence"
	"mailsync_server/core/domain"
	"mailsync_server/core/port/in"
	mail "mailsync_server/core/service/email"
	"mailsync_server/infra/middleware"
	"mailsync_server/pkg/apperr"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeService struct {
	sendOK    bool
	sendErr   error
	syncCount int
	syncErr   error
	lastLimit int
	sent      *domain.OutboundEmail
}

func (f *fakeService) Sync(ctx context.Context) ([]*domain.Message, error) {
	if f.syncErr != nil {
		return nil, f.syncErr
	}
	out := make([]*domain.Message, f.syncCount)
	for i := range out {
		out[i] = &domain.Message{ID: "id"}
	}
	return out, nil
}

func (f *fakeService) Send(ctx context.Context, email *domain.OutboundEmail) (bool, error) {
	f.sent = email
	return f.sendOK, f.sendErr
}

func (f *fakeService) ListRecent(ctx context.Context, limit int) ([]*domain.Message, error) {
	f.lastLimit = limit
	return []*domain.Message{{ID: "id1", Subject: "hello"}}, nil
}

func (f *fakeService) Status() in.SyncStatus {
	return in.SyncStatus{State: in.SyncStateIdle, Cursor: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)}
}

func newTestApp(svc in.EmailService) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: middleware.ErrorHandler(),
		JSONEncoder:  json.Marshal,
		JSONDecoder:  json.Unmarshal,
	})
	app.Use(middleware.RequestID())
	api := app.Group("/api/v1/emails")
	NewHealthHandler("Microsoft Graph API Email Service").Register(app, api)
	NewEmailHandler(svc).Register(api)
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path, body string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &out), string(data))
	return resp.StatusCode, out
}

func TestHealthAndRoot(t *testing.T) {
	app := newTestApp(&fakeService{})

	status, body := doJSON(t, app, "GET", "/api/v1/emails/health", "")
	assert.Equal(t, 200, status)
	assert.Equal(t, "All good", body["status"])

	status, body = doJSON(t, app, "GET", "/", "")
	assert.Equal(t, 200, status)
	assert.Equal(t, "Microsoft Graph API Email Service", body["message"])
}

func TestSend(t *testing.T) {
	const payload = `{"recipients":["bob@example.com"],"subject":"hi","body":"<p>hi</p>"}`

	tests := []struct {
		name     string
		svc      *fakeService
		wantCode float64
		wantMsg  string
	}{
		{"accepted", &fakeService{sendOK: true}, 200, "Email Sent"},
		{"rejected", &fakeService{sendOK: false}, 500, "error in sending mail"},
		{"auth failure", &fakeService{sendErr: apperr.AuthFailed("no token", nil)}, 500, "error in sending mail"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp(tt.svc)

			status, body := doJSON(t, app, "POST", "/api/v1/emails/send", payload)
			assert.Equal(t, 200, status, "HTTP status does not reflect the send outcome")
			assert.Equal(t, tt.wantCode, body["status_code"])
			assert.Equal(t, tt.wantMsg, body["message"])

			email := body["email"].(map[string]any)
			assert.Equal(t, "hi", email["subject"])
			require.NotNil(t, tt.svc.sent)
			assert.Equal(t, []string{"bob@example.com"}, tt.svc.sent.Recipients)
		})
	}
}

func TestSend_BadRequests(t *testing.T) {
	app := newTestApp(&fakeService{sendOK: true})

	status, body := doJSON(t, app, "POST", "/api/v1/emails/send", `{"recipients":`)
	assert.Equal(t, 400, status)
	assert.Equal(t, apperr.CodeBadRequest, body["error"].(map[string]any)["code"])

	status, body = doJSON(t, app, "POST", "/api/v1/emails/send", `{"recipients":[],"subject":"x"}`)
	assert.Equal(t, 400, status)
	assert.Equal(t, apperr.CodeValidationFailed, body["error"].(map[string]any)["code"])
}

func TestSend_RejectedAddressReportedInBody(t *testing.T) {
	svc := &fakeService{sendErr: apperr.InvalidField("recipients", "bad address")}
	status, body := doJSON(t, newTestApp(svc), "POST", "/api/v1/emails/send", `{"recipients":["nope"]}`)

	assert.Equal(t, 200, status)
	assert.Equal(t, float64(500), body["status_code"])
	assert.Equal(t, "error in sending mail", body["message"])
}

type recordingTransport struct {
	sendCalled bool
}

func (r *recordingTransport) Send(ctx context.Context, email *domain.OutboundEmail) (bool, error) {
	r.sendCalled = true
	return true, nil
}

func (r *recordingTransport) Fetch(ctx context.Context) ([]domain.RawMessage, error) {
	return nil, nil
}

func (r *recordingTransport) Cursor() time.Time { return time.Time{} }

func TestSend_UnparsableRecipientThroughSyncService(t *testing.T) {
	transport := &recordingTransport{}
	svc := mail.NewSyncService(transport, nil, nil, persistence.NewLocalTickGuard(), mail.SyncConfig{})

	status, body := doJSON(t, newTestApp(svc), "POST", "/api/v1/emails/send",
		`{"recipients":["bob"],"subject":"hi","body":"<p>hi</p>"}`)

	assert.Equal(t, 200, status)
	assert.Equal(t, float64(500), body["status_code"])
	assert.Equal(t, "error in sending mail", body["message"])
	assert.False(t, transport.sendCalled)
}

func TestFetch(t *testing.T) {
	status, body := doJSON(t, newTestApp(&fakeService{syncCount: 3}), "GET", "/api/v1/emails/fetch", "")
	assert.Equal(t, 200, status)
	assert.Equal(t, float64(200), body["status_code"])
	assert.Equal(t, float64(3), body["count"])

	status, body = doJSON(t, newTestApp(&fakeService{syncErr: apperr.SyncInProgress()}), "GET", "/api/v1/emails/fetch", "")
	assert.Equal(t, 200, status)
	assert.Equal(t, float64(0), body["count"])

	status, body = doJSON(t, newTestApp(&fakeService{syncErr: apperr.AuthFailed("no token", nil)}), "GET", "/api/v1/emails/fetch", "")
	assert.Equal(t, 502, status)
	assert.Equal(t, apperr.CodeAuthFailed, body["error"].(map[string]any)["code"])
}

func TestRecentAndStatus(t *testing.T) {
	svc := &fakeService{}
	app := newTestApp(svc)

	status, body := doJSON(t, app, "GET", "/api/v1/emails/recent?limit=5", "")
	assert.Equal(t, 200, status)
	assert.Equal(t, 5, svc.lastLimit)
	emails := body["emails"].([]any)
	require.Len(t, emails, 1)
	assert.Equal(t, "id1", emails[0].(map[string]any)["id"])

	status, body = doJSON(t, app, "GET", "/api/v1/emails/status", "")
	assert.Equal(t, 200, status)
	assert.Equal(t, "IDLE", body["state"])
	assert.Equal(t, "2024-05-01T00:00:00Z", body["cursor"])
}
