package persistence

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"mailsync_server/core/port/out"

	"github.com/99designs/keyring"
)

// =============================================================================
// FileBlobStore - token cache on local disk
// =============================================================================

// FileBlobStore keeps the blob in a single owner-only file.
type FileBlobStore struct {
	path string
}

func NewFileBlobStore(path string) *FileBlobStore {
	return &FileBlobStore{path: path}
}

func (s *FileBlobStore) Load(ctx context.Context) ([]byte, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.path, err)
	}
	return data, nil
}

// Save writes to a temp file in the same directory and renames it into place.
func (s *FileBlobStore) Save(ctx context.Context, data []byte) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", s.path, err)
	}
	return nil
}

// =============================================================================
// KeyringBlobStore - token cache in the OS keyring
// =============================================================================

const (
	keyringService = "mailsync"
	tokenCacheKey  = "token-cache"
)

// KeyringConfig selects the keyring backend. FileDir and FilePassword are
// used by the encrypted file backend, the fallback when no OS keyring exists.
type KeyringConfig struct {
	FileDir      string
	FilePassword string
	FileOnly     bool
}

type KeyringBlobStore struct {
	ring keyring.Keyring
	key  string
}

func NewKeyringBlobStore(cfg KeyringConfig) (*KeyringBlobStore, error) {
	backends := []keyring.BackendType{
		keyring.KeychainBackend,
		keyring.SecretServiceBackend,
		keyring.WinCredBackend,
		keyring.PassBackend,
		keyring.FileBackend,
	}
	if cfg.FileOnly {
		backends = []keyring.BackendType{keyring.FileBackend}
	}

	ring, err := keyring.Open(keyring.Config{
		ServiceName:              keyringService,
		AllowedBackends:          backends,
		FileDir:                  cfg.FileDir,
		FilePasswordFunc:         keyring.FixedStringPrompt(cfg.FilePassword),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return &KeyringBlobStore{ring: ring, key: tokenCacheKey}, nil
}

func (s *KeyringBlobStore) Load(ctx context.Context) ([]byte, error) {
	item, err := s.ring.Get(s.key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting %q from keyring: %w", s.key, err)
	}
	return item.Data, nil
}

func (s *KeyringBlobStore) Save(ctx context.Context, data []byte) error {
	err := s.ring.Set(keyring.Item{
		Key:   s.key,
		Label: "mailsync token cache",
		Data:  data,
	})
	if err != nil {
		return fmt.Errorf("storing %q in keyring: %w", s.key, err)
	}
	return nil
}

var (
	_ out.BlobStore = (*FileBlobStore)(nil)
	_ out.BlobStore = (*KeyringBlobStore)(nil)
)
