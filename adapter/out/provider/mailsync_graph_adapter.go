package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"mailsync_server/core/domain"
	"mailsync_server/core/port/out"
	"mailsync_server/pkg/apperr"
	"mailsync_server/pkg/httputil"
	"mailsync_server/pkg/logger"
	"mailsync_server/pkg/resilience"

	"github.com/goccy/go-json"
	"golang.org/x/oauth2"
)

// CursorLayout is the timestamp format of the receivedDateTime filter.
const CursorLayout = "2006-01-02T15:04:05Z"

// =============================================================================
// Graph Adapter
// =============================================================================

// GraphConfig configures the Microsoft Graph mail transport.
type GraphConfig struct {
	APIURL        string        // e.g. https://graph.microsoft.com/v1.0/me
	Timeout       time.Duration // per request
	PageSize      int           // $top of a fetch
	Lookback      time.Duration // cold-start fetch window
	AttachmentDir string        // outbound attachments are resolved here by base name
	Breaker       *resilience.BreakerConfig
	Transport     http.RoundTripper
	Now           func() time.Time
}

// GraphAdapter implements out.MailTransport against Microsoft Graph.
// It owns the fetch cursor, which only moves after a successful fetch.
type GraphAdapter struct {
	apiURL        string
	timeout       time.Duration
	pageSize      int
	attachmentDir string
	transport     http.RoundTripper
	tokens        out.TokenProvider
	breaker       *resilience.Breaker
	log           *logger.Logger

	mu     sync.Mutex
	cursor time.Time
}

func NewGraphAdapter(tokens out.TokenProvider, cfg GraphConfig) *GraphAdapter {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = 24 * time.Hour
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Transport == nil {
		cfg.Transport = httputil.NewTransport(httputil.GraphClientConfig(cfg.Timeout))
	}
	if cfg.Breaker == nil {
		cfg.Breaker = resilience.DefaultBreakerConfig("graph")
	}

	return &GraphAdapter{
		apiURL:        strings.TrimRight(cfg.APIURL, "/"),
		timeout:       cfg.Timeout,
		pageSize:      cfg.PageSize,
		attachmentDir: cfg.AttachmentDir,
		transport:     cfg.Transport,
		tokens:        tokens,
		breaker:       resilience.NewBreaker(cfg.Breaker),
		log:           logger.WithComponent("graph"),
		cursor:        now().UTC().Add(-cfg.Lookback).Truncate(time.Second),
	}
}

// Cursor returns the lower bound of the next fetch window.
func (a *GraphAdapter) Cursor() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cursor
}

// Fetch lists messages received at or after the cursor in ascending order.
func (a *GraphAdapter) Fetch(ctx context.Context) ([]domain.RawMessage, error) {
	client, err := a.client(ctx)
	if err != nil {
		return nil, err
	}

	since := a.Cursor()
	query := url.Values{}
	query.Set("$filter", "receivedDateTime ge "+since.UTC().Format(CursorLayout))
	query.Set("$orderby", "receivedDateTime asc")
	if a.pageSize > 0 {
		query.Set("$top", strconv.Itoa(a.pageSize))
	}
	endpoint := a.apiURL + "/messages?" + query.Encode()

	var page struct {
		Value []json.RawMessage `json:"value"`
	}
	err = a.breaker.Execute(func() error {
		return a.doGet(ctx, client, endpoint, &page)
	})
	if err != nil {
		a.log.WithError(err).Warn("fetch since %s failed, cursor kept", since.Format(CursorLayout))
		return []domain.RawMessage{}, nil
	}

	messages := make([]domain.RawMessage, len(page.Value))
	for i, v := range page.Value {
		messages[i] = domain.RawMessage(v)
	}

	if len(messages) > 0 {
		last, err := domain.ReceivedDateTime(messages[len(messages)-1])
		if err != nil {
			a.log.WithError(err).Warn("last message has no usable receivedDateTime, cursor kept")
		} else {
			a.advance(last)
		}
	}

	a.log.Debug("fetched %d messages since %s", len(messages), since.Format(CursorLayout))
	return messages, nil
}

func (a *GraphAdapter) advance(t time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if t.After(a.cursor) {
		a.cursor = t.UTC()
	}
}

// Send posts the message to /sendMail. Graph answers 202 on acceptance.
func (a *GraphAdapter) Send(ctx context.Context, email *domain.OutboundEmail) (bool, error) {
	client, err := a.client(ctx)
	if err != nil {
		return false, err
	}

	message, err := a.buildGraphMessage(email)
	if err != nil {
		a.log.WithError(err).Warn("send aborted")
		return false, nil
	}
	payload := map[string]interface{}{
		"message":         message,
		"saveToSentItems": true,
	}

	var status int
	err = a.breaker.Execute(func() error {
		var perr error
		status, perr = a.doPost(ctx, client, a.apiURL+"/sendMail", payload)
		return perr
	})
	if err != nil {
		a.log.WithError(err).Warn("send to %s failed", strings.Join(email.Recipients, ","))
		return false, nil
	}
	if status != http.StatusAccepted {
		a.log.Warn("send to %s returned HTTP %d", strings.Join(email.Recipients, ","), status)
		return false, nil
	}
	return true, nil
}

// client returns an HTTP client that attaches the current bearer token.
func (a *GraphAdapter) client(ctx context.Context) (*http.Client, error) {
	cred, err := a.tokens.AcquireToken(ctx)
	if err != nil {
		return nil, err
	}
	tokenType := cred.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}

	return &http.Client{
		Timeout: a.timeout,
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cred.AccessToken, TokenType: tokenType}),
			Base:   a.transport,
		},
	}, nil
}

func (a *GraphAdapter) doGet(ctx context.Context, client *http.Client, endpoint string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return apperr.TransportError("GET messages", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return wrapHTTPError("GET messages", resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return apperr.TransportError("decode messages", err)
	}
	return nil
}

// doPost returns the response status. Only network failures and 5xx count
// against the breaker; a rejected message is the caller's verdict to make.
func (a *GraphAdapter) doPost(ctx context.Context, client *http.Client, endpoint string, body interface{}) (int, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return 0, apperr.TransportError("POST sendMail", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return resp.StatusCode, wrapHTTPError("POST sendMail", resp.StatusCode, string(respBody))
	}
	if resp.StatusCode != http.StatusAccepted {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		a.log.Debug("sendMail HTTP %d: %s", resp.StatusCode, string(respBody))
	}
	return resp.StatusCode, nil
}

func (a *GraphAdapter) buildGraphMessage(email *domain.OutboundEmail) (map[string]interface{}, error) {
	toRecipients := make([]map[string]interface{}, len(email.Recipients))
	for i, addr := range email.Recipients {
		toRecipients[i] = map[string]interface{}{
			"emailAddress": map[string]string{
				"address": addr,
			},
		}
	}

	result := map[string]interface{}{
		"subject": email.Subject,
		"body": map[string]string{
			"contentType": "HTML",
			"content":     email.Body,
		},
		"toRecipients": toRecipients,
	}

	if len(email.Attachments) == 0 {
		return result, nil
	}
	if a.attachmentDir == "" {
		a.log.Warn("ignoring %d attachments: no attachment directory configured", len(email.Attachments))
		return result, nil
	}

	attachments := make([]map[string]interface{}, len(email.Attachments))
	for i, name := range email.Attachments {
		base := filepath.Base(name)
		data, err := os.ReadFile(filepath.Join(a.attachmentDir, base))
		if err != nil {
			return nil, fmt.Errorf("read attachment %s: %w", base, err)
		}
		contentType := mime.TypeByExtension(filepath.Ext(base))
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		attachments[i] = map[string]interface{}{
			"@odata.type":  "#microsoft.graph.fileAttachment",
			"name":         base,
			"contentType":  contentType,
			"contentBytes": base64.StdEncoding.EncodeToString(data),
		}
	}
	result["attachments"] = attachments
	return result, nil
}

func wrapHTTPError(operation string, statusCode int, body string) error {
	switch statusCode {
	case http.StatusUnauthorized:
		return apperr.TransportError(operation, fmt.Errorf("token rejected"))
	case http.StatusForbidden:
		return apperr.TransportError(operation, fmt.Errorf("access denied"))
	case http.StatusTooManyRequests:
		return apperr.TransportError(operation, fmt.Errorf("too many requests"))
	default:
		return apperr.TransportError(operation, fmt.Errorf("HTTP %d: %s", statusCode, body))
	}
}

var _ out.MailTransport = (*GraphAdapter)(nil)
