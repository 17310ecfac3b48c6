package auth

import (
	"bytes"
	"context"
	"sync"

	"mailsync_server/core/domain"
	"mailsync_server/core/port/out"
	"mailsync_server/pkg/apperr"
	"mailsync_server/pkg/logger"

	"github.com/goccy/go-json"
)

const (
	noErrorCode        = "<no-error>"
	noErrorDescription = "<no-description>"
)

// TokenCache owns the mailbox credential. It prefers silent reacquisition and
// falls back to the interactive device flow. Calls are serialized so that
// concurrent callers never start more than one device flow.
type TokenCache struct {
	store      out.BlobStore
	authorizer Authorizer
	account    string
	log        *logger.Logger

	mu       sync.Mutex
	loaded   bool
	cred     *domain.Credential
	lastBlob []byte
}

// NewTokenCache creates a cache persisted in store. account labels credentials
// obtained through the device flow.
func NewTokenCache(store out.BlobStore, authorizer Authorizer, account string) *TokenCache {
	return &TokenCache{
		store:      store,
		authorizer: authorizer,
		account:    account,
		log:        logger.WithComponent("token_cache"),
	}
}

// AcquireToken returns a copy of a usable credential.
func (c *TokenCache) AcquireToken(ctx context.Context) (*domain.Credential, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.load(ctx); err != nil {
		return nil, err
	}

	if c.cred != nil && c.cred.Account != "" {
		cred, err := c.acquireSilent(ctx)
		if err != nil {
			return nil, err
		}
		if cred != nil {
			return cred, nil
		}
	}

	return c.acquireInteractive(ctx)
}

func (c *TokenCache) acquireSilent(ctx context.Context) (*domain.Credential, error) {
	if c.cred.Valid() {
		return c.cred.Clone(), nil
	}

	fresh, err := c.authorizer.RefreshSilently(ctx, c.cred.Clone())
	if err != nil {
		c.log.WithError(err).Warn("silent token refresh failed for %s, falling back to device flow", c.cred.Account)
		return nil, nil
	}
	if fresh == nil || fresh.AccessToken == "" {
		return nil, nil
	}

	if fresh.Account == "" {
		fresh.Account = c.cred.Account
	}
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = c.cred.RefreshToken
	}
	if err := c.persist(ctx, fresh); err != nil {
		return nil, err
	}
	return fresh.Clone(), nil
}

func (c *TokenCache) acquireInteractive(ctx context.Context) (*domain.Credential, error) {
	challenge, err := c.authorizer.InitiateDeviceFlow(ctx)
	if err != nil {
		return nil, err
	}
	if challenge.UserCode == "" {
		code, desc := challenge.Error, challenge.ErrorDescription
		if code == "" {
			code = noErrorCode
		}
		if desc == "" {
			desc = noErrorDescription
		}
		return nil, apperr.DeviceFlowFailed(code, desc)
	}

	c.log.Warn("device login required: %s (code %s, url %s)", challenge.Message, challenge.UserCode, challenge.VerificationURI)

	cred, err := c.authorizer.CompleteDeviceFlow(ctx, challenge)
	if err != nil {
		return nil, err
	}
	if cred == nil || cred.AccessToken == "" {
		return nil, apperr.AuthFailed("device flow returned no access token", nil)
	}
	if cred.Account == "" {
		cred.Account = c.account
	}

	if err := c.persist(ctx, cred); err != nil {
		return nil, err
	}
	c.log.Info("device login completed for %s", cred.Account)
	return cred.Clone(), nil
}

func (c *TokenCache) load(ctx context.Context) error {
	if c.loaded {
		return nil
	}

	blob, err := c.store.Load(ctx)
	if err != nil {
		return apperr.AuthFailed("load token cache", err)
	}
	if len(blob) > 0 {
		var cred domain.Credential
		if err := json.Unmarshal(blob, &cred); err != nil {
			c.log.WithError(err).Warn("discarding unreadable token cache")
		} else {
			c.cred = &cred
			c.lastBlob = blob
		}
	}
	c.loaded = true
	return nil
}

// persist keeps cred in memory and writes it only when the serialized form changed.
func (c *TokenCache) persist(ctx context.Context, cred *domain.Credential) error {
	c.cred = cred.Clone()

	blob, err := json.Marshal(cred)
	if err != nil {
		return apperr.InternalWithError(err)
	}
	if bytes.Equal(blob, c.lastBlob) {
		return nil
	}
	if err := c.store.Save(ctx, blob); err != nil {
		c.log.WithError(err).Error("failed to persist token cache")
		return nil
	}
	c.lastBlob = blob
	return nil
}

var _ out.TokenProvider = (*TokenCache)(nil)
