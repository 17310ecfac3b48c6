package out

import "context"

// BlobStore persists one opaque blob, such as the serialized token cache.
type BlobStore interface {
	// Load returns nil, nil when nothing has been saved yet.
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
}

// TickGuard prevents overlapping sync ticks.
type TickGuard interface {
	// TryAcquire returns false without blocking when another tick holds the guard.
	TryAcquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}
