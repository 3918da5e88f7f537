package state

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/hashicorp/go-hclog"

	"github.com/nnvisu/nnvisu-go/internal/shared"
)

// Storage keys. Each holds one JSON document.
const (
	KeyConfig  = "nnvisu_config"
	KeyWeights = "nnvisu_weights"
	KeyData    = "nnvisu_data"
)

// Keys lists every key the store manages.
var Keys = []string{KeyConfig, KeyWeights, KeyData}

// Snapshot is the persisted session state.
type Snapshot struct {
	Config  shared.Config       `json:"config"`
	Weights shared.ModelWeights `json:"weights"`
	Points  []shared.Point      `json:"points"`
}

// DefaultSnapshot is what Load returns when nothing was persisted.
func DefaultSnapshot() Snapshot {
	return Snapshot{
		Config: shared.DefaultConfig(),
		Points: []shared.Point{},
	}
}

// Store reads and writes the three session slices. It never returns
// persistence errors to the caller: they are logged and the affected slice
// is treated as absent.
type Store struct {
	backend Backend
	logger  hclog.Logger
}

// StoreOption configures the Store.
type StoreOption func(*Store)

// WithLogger sets the logger.
func WithLogger(logger hclog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

// NewStore creates a Store over backend.
func NewStore(backend Backend, opts ...StoreOption) *Store {
	s := &Store{
		backend: backend,
		logger:  hclog.NewNullLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load reads every slice independently. A missing or corrupt slice yields
// its default without affecting the others.
func (s *Store) Load(ctx context.Context) Snapshot {
	snap := DefaultSnapshot()

	if raw, ok := s.get(ctx, KeyConfig); ok {
		cfg := shared.DefaultConfig()
		if err := json.Unmarshal(raw, &cfg); err != nil {
			s.logger.Warn("stored config is corrupt, using defaults", "error", err)
		} else if err := cfg.Validate(); err != nil {
			s.logger.Warn("stored config is invalid, using defaults", "error", err)
		} else {
			snap.Config = cfg
		}
	}

	if raw, ok := s.get(ctx, KeyWeights); ok {
		if !json.Valid(raw) {
			s.logger.Warn("stored weights are corrupt, discarding")
		} else if !shared.IsNullWeights(raw) {
			snap.Weights = shared.ModelWeights(raw)
		}
	}

	if raw, ok := s.get(ctx, KeyData); ok {
		var points []shared.Point
		if err := json.Unmarshal(raw, &points); err != nil {
			s.logger.Warn("stored points are corrupt, using empty set", "error", err)
		} else if points != nil {
			snap.Points = points
		}
	}

	return snap
}

func (s *Store) get(ctx context.Context, key string) ([]byte, bool) {
	raw, ok, err := s.backend.Get(ctx, key)
	if err != nil {
		s.logger.Warn("failed to read state", "key", key, "error", err)
		return nil, false
	}
	return raw, ok
}

func (s *Store) put(ctx context.Context, key string, v interface{}) {
	raw, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("failed to encode state", "key", key, "error", err)
		return
	}
	if err := s.backend.Put(ctx, key, raw); err != nil {
		s.logger.Error("failed to write state", "key", key, "error", err)
		return
	}
	s.logger.Trace("state saved", "key", key, "bytes", len(raw))
}

// SaveConfig persists the configuration.
func (s *Store) SaveConfig(ctx context.Context, cfg shared.Config) {
	s.put(ctx, KeyConfig, cfg)
}

// SaveWeights persists the model weights. Nil weights are stored as null.
func (s *Store) SaveWeights(ctx context.Context, weights shared.ModelWeights) {
	if shared.IsNullWeights(weights) {
		s.put(ctx, KeyWeights, nil)
		return
	}
	s.put(ctx, KeyWeights, json.RawMessage(weights))
}

// SaveData persists the point set.
func (s *Store) SaveData(ctx context.Context, points []shared.Point) {
	s.put(ctx, KeyData, shared.ClonePoints(points))
}

// Clear removes every slice. Unlike the save operations it reports failures,
// since it is only invoked administratively.
func (s *Store) Clear(ctx context.Context) error {
	var errs []error
	for _, key := range Keys {
		if err := s.backend.Delete(ctx, key); err != nil {
			errs = append(errs, shared.NewPersistenceError(err.Error(), map[string]interface{}{"key": key}))
		}
	}
	return errors.Join(errs...)
}

// Close closes the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}
