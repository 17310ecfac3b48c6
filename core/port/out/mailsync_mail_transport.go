package out

import (
	"context"
	"time"

	"mailsync_server/core/domain"
)

// MailTransport is the outbound port to the remote mail API.
type MailTransport interface {
	// Send returns true when the provider accepted the message. Provider
	// rejections and network failures are reported as false; only credential
	// failures are returned as errors.
	Send(ctx context.Context, email *domain.OutboundEmail) (bool, error)

	// Fetch returns messages received at or after the cursor and advances the
	// cursor to the last one. On failure it returns nothing and keeps the cursor.
	Fetch(ctx context.Context) ([]domain.RawMessage, error)

	// Cursor returns the current lower bound of the fetch window.
	Cursor() time.Time
}

// TokenProvider supplies bearer credentials for the mailbox account.
type TokenProvider interface {
	AcquireToken(ctx context.Context) (*domain.Credential, error)
}
