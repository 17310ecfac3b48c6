package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"mailsync_server/core/domain"
	"mailsync_server/pkg/apperr"
	"mailsync_server/pkg/httputil"

	"github.com/goccy/go-json"
	"golang.org/x/oauth2"
)

// DeviceChallenge is the provider's answer to a device authorization request.
// On refusal UserCode is empty and Error/ErrorDescription hold the provider's reason.
type DeviceChallenge struct {
	VerificationURI  string
	UserCode         string
	Message          string
	ExpiresAt        time.Time
	Error            string
	ErrorDescription string

	response *oauth2.DeviceAuthResponse
}

// Authorizer talks to the identity provider on behalf of TokenCache.
type Authorizer interface {
	// RefreshSilently obtains a fresh credential from cached refresh material
	// without user interaction.
	RefreshSilently(ctx context.Context, cred *domain.Credential) (*domain.Credential, error)

	// InitiateDeviceFlow requests a verification URL and user code.
	InitiateDeviceFlow(ctx context.Context) (*DeviceChallenge, error)

	// CompleteDeviceFlow blocks until the operator finishes the challenge.
	CompleteDeviceFlow(ctx context.Context, challenge *DeviceChallenge) (*domain.Credential, error)
}

// DeviceAuthorizerConfig configures the Microsoft identity platform endpoints.
type DeviceAuthorizerConfig struct {
	ClientID string
	TenantID string
	AuthURL  string // e.g. https://login.microsoftonline.com
	Scopes   []string

	HTTPClient *http.Client // nil uses a pooled default client
}

// OAuthDeviceAuthorizer implements Authorizer with golang.org/x/oauth2.
type OAuthDeviceAuthorizer struct {
	config *oauth2.Config
	client *http.Client
}

func NewOAuthDeviceAuthorizer(cfg DeviceAuthorizerConfig) *OAuthDeviceAuthorizer {
	base := strings.TrimRight(cfg.AuthURL, "/") + "/" + cfg.TenantID + "/oauth2/v2.0"

	client := cfg.HTTPClient
	if client == nil {
		client = httputil.NewClient(httputil.DefaultClientConfig())
	}

	return &OAuthDeviceAuthorizer{
		client: client,
		config: &oauth2.Config{
			ClientID: cfg.ClientID,
			Scopes:   cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:       base + "/authorize",
				TokenURL:      base + "/token",
				DeviceAuthURL: base + "/devicecode",
				AuthStyle:     oauth2.AuthStyleInParams,
			},
		},
	}
}

func (a *OAuthDeviceAuthorizer) RefreshSilently(ctx context.Context, cred *domain.Credential) (*domain.Credential, error) {
	if cred == nil || cred.RefreshToken == "" {
		return nil, nil
	}

	src := a.config.TokenSource(a.withClient(ctx), &oauth2.Token{
		AccessToken:  cred.AccessToken,
		TokenType:    cred.TokenType,
		RefreshToken: cred.RefreshToken,
		Expiry:       cred.Expiry,
	})
	tok, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("refresh token: %w", err)
	}
	return credentialFromToken(cred.Account, tok), nil
}

// InitiateDeviceFlow posts the device authorization request itself so that an
// error pair is recovered whatever status code carries it.
func (a *OAuthDeviceAuthorizer) InitiateDeviceFlow(ctx context.Context) (*DeviceChallenge, error) {
	form := url.Values{"client_id": {a.config.ClientID}}
	if len(a.config.Scopes) > 0 {
		form.Set("scope", strings.Join(a.config.Scopes, " "))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.Endpoint.DeviceAuthURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, apperr.AuthFailed("device authorization request failed", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, apperr.AuthFailed("device authorization request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, apperr.AuthFailed("device authorization response unreadable", err)
	}

	var da oauth2.DeviceAuthResponse
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_ = json.Unmarshal(body, &da)
	}
	if da.UserCode == "" || da.DeviceCode == "" {
		code, desc := errorPair(body)
		if code == "" && desc == "" && (resp.StatusCode < 200 || resp.StatusCode >= 300) {
			desc = fmt.Sprintf("HTTP %d", resp.StatusCode)
		}
		return &DeviceChallenge{Error: code, ErrorDescription: desc}, nil
	}

	ch := &DeviceChallenge{
		VerificationURI: da.VerificationURI,
		UserCode:        da.UserCode,
		ExpiresAt:       da.Expiry,
		response:        &da,
	}
	if da.VerificationURIComplete != "" {
		ch.Message = fmt.Sprintf("To sign in, open %s", da.VerificationURIComplete)
	} else {
		ch.Message = fmt.Sprintf("To sign in, open %s and enter the code %s", da.VerificationURI, da.UserCode)
	}
	return ch, nil
}

func (a *OAuthDeviceAuthorizer) CompleteDeviceFlow(ctx context.Context, challenge *DeviceChallenge) (*domain.Credential, error) {
	if challenge == nil || challenge.response == nil {
		return nil, apperr.AuthFailed("device flow was not initiated", nil)
	}

	tok, err := a.config.DeviceAccessToken(a.withClient(ctx), challenge.response)
	if err != nil {
		appErr := apperr.AuthFailed("device flow did not complete", err)
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			code, desc := providerError(re)
			appErr = appErr.WithDetail("error", code).WithDetail("error_description", desc)
		}
		return nil, appErr
	}
	return credentialFromToken("", tok), nil
}

func credentialFromToken(account string, tok *oauth2.Token) *domain.Credential {
	return &domain.Credential{
		Account:      account,
		AccessToken:  tok.AccessToken,
		TokenType:    tok.TokenType,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	}
}

func (a *OAuthDeviceAuthorizer) withClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, a.client)
}

// providerError extracts the OAuth error pair from a failed token endpoint call.
func providerError(re *oauth2.RetrieveError) (string, string) {
	if re.ErrorCode != "" {
		return re.ErrorCode, re.ErrorDescription
	}
	return errorPair(re.Body)
}

func errorPair(body []byte) (string, string) {
	var pair struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if len(body) == 0 || json.Unmarshal(body, &pair) != nil {
		return "", ""
	}
	return pair.Error, pair.ErrorDescription
}

var _ Authorizer = (*OAuthDeviceAuthorizer)(nil)
