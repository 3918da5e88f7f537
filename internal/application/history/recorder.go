// Package history keeps a bounded, decimated record of decision maps taken
// during training so a stopped run can be scrubbed back through.
package history

import (
	"errors"
	"fmt"
	"sync"

	"github.com/hashicorp/go-hclog"

	"github.com/nnvisu/nnvisu-go/internal/shared"
)

const (
	// MaxHistory bounds the number of stored snapshots.
	MaxHistory = 256

	// DefaultInterval is the recording interval in epochs after a reset.
	DefaultInterval = 10
)

var (
	// ErrSeekWhileTraining is returned by Seek during a training run.
	ErrSeekWhileTraining = errors.New("cannot seek history while training")

	// ErrIndexOutOfRange is returned by Seek for an index outside the buffer.
	ErrIndexOutOfRange = errors.New("history index out of range")
)

// Snapshot is one recorded decision map.
type Snapshot struct {
	ID         string                `json:"id"`
	Epoch      int                   `json:"epoch"`
	Loss       float64               `json:"loss"`
	RecordedAt int64                 `json:"recordedAt"`
	Bitmap     shared.DecisionBitmap `json:"-"`
}

// Summary describes a snapshot without its pixels.
type Summary struct {
	Index      int     `json:"index"`
	ID         string  `json:"id"`
	Epoch      int     `json:"epoch"`
	Loss       float64 `json:"loss"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	RecordedAt int64   `json:"recordedAt"`
}

// Recorder appends snapshots every Interval epochs while training. When the
// buffer is full it drops every other entry and doubles the interval, so
// coverage of the whole run is kept at decreasing resolution.
type Recorder struct {
	mu          sync.RWMutex
	snapshots   []Snapshot
	interval    int
	training    bool
	lastEpoch   int
	compactions int
	logger      hclog.Logger
	onCompact   func(interval int)
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithLogger sets the logger.
func WithLogger(logger hclog.Logger) Option {
	return func(r *Recorder) {
		r.logger = logger
	}
}

// WithCompactHook registers a callback invoked after each compaction with
// the new interval.
func WithCompactHook(fn func(interval int)) Option {
	return func(r *Recorder) {
		r.onCompact = fn
	}
}

// NewRecorder creates an empty recorder.
func NewRecorder(opts ...Option) *Recorder {
	r := &Recorder{
		snapshots: make([]Snapshot, 0, MaxHistory),
		interval:  DefaultInterval,
		lastEpoch: -1,
		logger:    hclog.NewNullLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetTraining tells the recorder whether a run is active.
func (r *Recorder) SetTraining(training bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.training = training
}

// Record stores bitmap for epoch if a run is active, epoch falls on the
// interval and it was not already recorded. It reports whether the snapshot
// was stored.
func (r *Recorder) Record(bitmap shared.DecisionBitmap, epoch int, loss float64) bool {
	r.mu.Lock()

	if !r.training || epoch%r.interval != 0 {
		r.mu.Unlock()
		return false
	}
	if len(r.snapshots) > 0 && r.lastEpoch == epoch {
		r.mu.Unlock()
		return false
	}

	compacted := false
	if len(r.snapshots) >= MaxHistory {
		r.compact()
		compacted = true
	}

	r.snapshots = append(r.snapshots, Snapshot{
		ID:         shared.GenerateID("snap"),
		Epoch:      epoch,
		Loss:       loss,
		RecordedAt: shared.Now(),
		Bitmap:     bitmap,
	})
	r.lastEpoch = epoch
	interval := r.interval
	hook := r.onCompact
	r.mu.Unlock()

	if compacted {
		r.logger.Debug("history compacted", "interval", interval)
		if hook != nil {
			hook(interval)
		}
	}
	return true
}

// compact keeps the even-indexed snapshots and doubles the interval.
// Caller holds the lock.
func (r *Recorder) compact() {
	kept := r.snapshots[:0]
	for i := 0; i < len(r.snapshots); i += 2 {
		kept = append(kept, r.snapshots[i])
	}
	for i := len(kept); i < len(r.snapshots); i++ {
		r.snapshots[i] = Snapshot{}
	}
	r.snapshots = kept
	r.interval *= 2
	r.compactions++
}

// Seek returns the snapshot at index. The buffer is not modified.
func (r *Recorder) Seek(index int) (Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.training {
		return Snapshot{}, ErrSeekWhileTraining
	}
	if index < 0 || index >= len(r.snapshots) {
		return Snapshot{}, fmt.Errorf("%w: %d not in [0,%d)", ErrIndexOutOfRange, index, len(r.snapshots))
	}
	return r.snapshots[index], nil
}

// Last returns the most recent snapshot.
func (r *Recorder) Last() (Snapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.snapshots) == 0 {
		return Snapshot{}, false
	}
	return r.snapshots[len(r.snapshots)-1], true
}

// Reset clears the buffer and restores the default interval.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.snapshots = make([]Snapshot, 0, MaxHistory)
	r.interval = DefaultInterval
	r.lastEpoch = -1
}

// Interval returns the current recording interval in epochs.
func (r *Recorder) Interval() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.interval
}

// Len returns the number of stored snapshots.
func (r *Recorder) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.snapshots)
}

// Compactions returns how many times the buffer was compacted since creation.
func (r *Recorder) Compactions() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.compactions
}

// List returns summaries of every snapshot in order.
func (r *Recorder) List() []Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Summary, len(r.snapshots))
	for i, s := range r.snapshots {
		out[i] = Summary{
			Index:      i,
			ID:         s.ID,
			Epoch:      s.Epoch,
			Loss:       s.Loss,
			Width:      s.Bitmap.Width,
			Height:     s.Bitmap.Height,
			RecordedAt: s.RecordedAt,
		}
	}
	return out
}
