package out

import (
	"context"

	"mailsync_server/core/domain"
)

// EmailRepository persists normalized messages keyed by provider message ID.
type EmailRepository interface {
	// Upsert replaces the stored document with the same ID or inserts it.
	Upsert(ctx context.Context, msg *domain.Message) error

	// ListRecent returns up to limit messages, most recently received first.
	ListRecent(ctx context.Context, limit int) ([]*domain.Message, error)

	// RecordSent stores a best-effort trace of an accepted send.
	RecordSent(ctx context.Context, record *domain.SentRecord) error
}

// ContactRepository keeps the per-owner address book.
type ContactRepository interface {
	// RecordContacts adds contacts to owner's set. Existing entries are kept.
	RecordContacts(ctx context.Context, owner string, contacts []string) error

	// GetContacts returns owner's address book, or nil when none exists.
	GetContacts(ctx context.Context, owner string) (*domain.Contact, error)
}
