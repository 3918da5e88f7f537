// Package state persists the client's configuration, model weights and point
// set across restarts.
package state

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/hashicorp/go-hclog"
)

var (
	// ErrUnknownScheme is returned by Open for an unrecognized DSN.
	ErrUnknownScheme = errors.New("unknown state store scheme")

	// ErrChecksumMismatch indicates a file entry whose payload was altered.
	ErrChecksumMismatch = errors.New("state entry checksum mismatch")

	// ErrBackendClosed is returned by operations on a closed backend.
	ErrBackendClosed = errors.New("state backend closed")
)

// Backend is a key/value store holding one JSON document per key. Put
// replaces the value atomically.
type Backend interface {
	// Get returns the value and whether the key exists.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Open selects a backend from a DSN:
//
//	memory:
//	file:<dir>
//	sqlite:<path>
//	postgres://... or postgresql://...
//	mysql:<go-sql-driver dsn>
func Open(ctx context.Context, dsn string) (Backend, error) {
	switch {
	case dsn == "" || dsn == "memory:":
		return NewMemoryBackend(), nil

	case strings.HasPrefix(dsn, "file:"):
		return NewFileBackend(strings.TrimPrefix(dsn, "file:"))

	case strings.HasPrefix(dsn, "sqlite:"):
		path := strings.TrimPrefix(dsn, "sqlite:")
		if path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
				return nil, fmt.Errorf("failed to create state directory: %w", err)
			}
		}
		return OpenSQL(ctx, DialectSQLite, path)

	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return OpenSQL(ctx, DialectPostgres, dsn)

	case strings.HasPrefix(dsn, "mysql:"):
		return OpenSQL(ctx, DialectMySQL, strings.TrimPrefix(dsn, "mysql:"))
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownScheme, dsn)
}

// OpenWithFallback opens dsn and falls back to an in-memory backend when the
// configured store is unusable, so the client still runs without persistence.
func OpenWithFallback(ctx context.Context, dsn string, logger hclog.Logger) Backend {
	backend, err := Open(ctx, dsn)
	if err != nil {
		logger.Warn("state store unavailable, falling back to memory", "dsn", redact(dsn), "error", err)
		return NewMemoryBackend()
	}
	return backend
}

// redact hides credentials in URL-style DSNs before they are logged.
func redact(dsn string) string {
	at := strings.LastIndex(dsn, "@")
	if at < 0 {
		return dsn
	}
	scheme := strings.Index(dsn, "://")
	if scheme >= 0 && scheme < at {
		return dsn[:scheme+3] + "***" + dsn[at:]
	}
	if colon := strings.Index(dsn, ":"); colon >= 0 && colon < at {
		return dsn[:colon+1] + "***" + dsn[at:]
	}
	return dsn
}

// ============================================================================
// Memory Backend
// ============================================================================

// MemoryBackend keeps values in a map. It is used for tests and as the
// fallback when no durable store can be opened.
type MemoryBackend struct {
	mu     sync.RWMutex
	values map[string][]byte
	closed bool
}

// NewMemoryBackend creates an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{values: make(map[string][]byte)}
}

// Get implements Backend.
func (m *MemoryBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, false, ErrBackendClosed
	}
	value, ok := m.values[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), value...), true, nil
}

// Put implements Backend.
func (m *MemoryBackend) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrBackendClosed
	}
	m.values[key] = append([]byte(nil), value...)
	return nil
}

// Delete implements Backend.
func (m *MemoryBackend) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrBackendClosed
	}
	delete(m.values, key)
	return nil
}

// Close implements Backend.
func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.values = make(map[string][]byte)
	return nil
}
