package in

import (
	"context"
	"time"

	"mailsync_server/core/domain"
)

// SyncState is the orchestrator's position in a tick.
type SyncState string

const (
	SyncStateIdle       SyncState = "IDLE"
	SyncStateFetching   SyncState = "FETCHING"
	SyncStateParsing    SyncState = "PARSING"
	SyncStatePersisting SyncState = "PERSISTING"
)

// SyncStatus is a snapshot for diagnostics.
type SyncStatus struct {
	State  SyncState `json:"state"`
	Cursor time.Time `json:"cursor"`
}

type EmailService interface {
	// Sync fetches new messages and stores the valid ones. It returns the
	// messages that were stored.
	Sync(ctx context.Context) ([]*domain.Message, error)

	// Send records contacts and relays the message. The bool is the transport verdict.
	Send(ctx context.Context, email *domain.OutboundEmail) (bool, error)

	ListRecent(ctx context.Context, limit int) ([]*domain.Message, error)

	Status() SyncStatus
}
