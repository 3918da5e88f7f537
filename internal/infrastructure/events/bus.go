// Package events provides an event bus implementation using Go channels.
package events

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/nnvisu/nnvisu-go/internal/shared"
)

// Wildcard subscribes to every event type.
const Wildcard shared.EventType = "*"

// Handler is a function that handles events.
type Handler func(event shared.Event)

type registeredHandler struct {
	id      string
	handler Handler
}

// EventBus provides a publish-subscribe event system using Go channels.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[shared.EventType][]chan shared.Event
	handlers    map[shared.EventType][]registeredHandler
	bufferSize  int
	closed      bool
	dropped     atomic.Uint64
}

// Option configures the EventBus.
type Option func(*EventBus)

// WithBufferSize sets the channel buffer size.
func WithBufferSize(size int) Option {
	return func(eb *EventBus) {
		eb.bufferSize = size
	}
}

// New creates a new EventBus.
func New(opts ...Option) *EventBus {
	eb := &EventBus{
		subscribers: make(map[shared.EventType][]chan shared.Event),
		handlers:    make(map[shared.EventType][]registeredHandler),
		bufferSize:  100,
	}

	for _, opt := range opts {
		opt(eb)
	}

	return eb
}

// Subscribe creates a channel to receive events of the given type.
func (eb *EventBus) Subscribe(eventType shared.EventType) <-chan shared.Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	ch := make(chan shared.Event, eb.bufferSize)
	if eb.closed {
		close(ch)
		return ch
	}
	eb.subscribers[eventType] = append(eb.subscribers[eventType], ch)
	return ch
}

// SubscribeAll creates a channel to receive all events.
func (eb *EventBus) SubscribeAll() <-chan shared.Event {
	return eb.Subscribe(Wildcard)
}

// Unsubscribe removes a subscription channel and closes it.
func (eb *EventBus) Unsubscribe(eventType shared.EventType, ch <-chan shared.Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	subs := eb.subscribers[eventType]
	for i, sub := range subs {
		if (<-chan shared.Event)(sub) == ch {
			eb.subscribers[eventType] = append(subs[:i], subs[i+1:]...)
			close(sub)
			break
		}
	}
}

// On registers a handler for events of the given type and returns an id for Off.
func (eb *EventBus) On(eventType shared.EventType, handler Handler) string {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	id := shared.GenerateID("handler")
	eb.handlers[eventType] = append(eb.handlers[eventType], registeredHandler{id: id, handler: handler})
	return id
}

// Off removes the handler with the given id, or every handler for the type
// when id is empty.
func (eb *EventBus) Off(eventType shared.EventType, id string) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if id == "" {
		delete(eb.handlers, eventType)
		return
	}

	hs := eb.handlers[eventType]
	for i, h := range hs {
		if h.id == id {
			eb.handlers[eventType] = append(hs[:i], hs[i+1:]...)
			return
		}
	}
}

// Emit publishes an event to all subscribers and handlers. Subscribers with
// a full buffer miss the event.
func (eb *EventBus) Emit(event shared.Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if eb.closed {
		return
	}

	// Ensure timestamp
	if event.Timestamp == 0 {
		event.Timestamp = shared.Now()
	}

	deliver := func(ch chan shared.Event) {
		select {
		case ch <- event:
		default:
			eb.dropped.Add(1)
		}
	}
	for _, ch := range eb.subscribers[event.Type] {
		deliver(ch)
	}
	for _, ch := range eb.subscribers[Wildcard] {
		deliver(ch)
	}

	for _, h := range eb.handlers[event.Type] {
		go h.handler(event)
	}
	for _, h := range eb.handlers[Wildcard] {
		go h.handler(event)
	}
}

// Dropped returns how many channel deliveries were skipped on full buffers.
func (eb *EventBus) Dropped() uint64 {
	return eb.dropped.Load()
}

// EmitWithContext publishes an event with context support.
func (eb *EventBus) EmitWithContext(ctx context.Context, event shared.Event) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		eb.Emit(event)
		return nil
	}
}

// Close closes all subscriber channels and stops the event bus.
func (eb *EventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}

	eb.closed = true

	for _, subs := range eb.subscribers {
		for _, ch := range subs {
			close(ch)
		}
	}

	eb.subscribers = make(map[shared.EventType][]chan shared.Event)
	eb.handlers = make(map[shared.EventType][]registeredHandler)
}

// ============================================================================
// Helper Functions
// ============================================================================

// EmitStatusChanged emits a status change.
func (eb *EventBus) EmitStatusChanged(status shared.Status) {
	eb.Emit(shared.Event{
		Type: shared.EventStatusChanged,
		Payload: map[string]interface{}{
			"status": string(status.Text),
			"detail": status.Detail,
		},
	})
}

// EmitMetricsUpdated emits the latest epoch and loss.
func (eb *EventBus) EmitMetricsUpdated(metrics shared.TrainingMetrics) {
	eb.Emit(shared.Event{
		Type: shared.EventMetricsUpdated,
		Payload: map[string]interface{}{
			"epoch":    metrics.Epoch,
			"loss":     metrics.Loss,
			"accuracy": metrics.Accuracy,
		},
	})
}

// EmitPointsChanged emits a point set change.
func (eb *EventBus) EmitPointsChanged(count int) {
	eb.Emit(shared.Event{
		Type: shared.EventPointsChanged,
		Payload: map[string]interface{}{
			"count": count,
		},
	})
}

// EmitConfigChanged emits an accepted configuration.
func (eb *EventBus) EmitConfigChanged(cfg shared.Config, modelReset bool) {
	eb.Emit(shared.Event{
		Type: shared.EventConfigChanged,
		Payload: map[string]interface{}{
			"architecture": shared.FormatArchitecture(cfg.Architecture),
			"activation":   string(cfg.Activation),
			"optimizer":    string(cfg.Optimizer),
			"modelReset":   modelReset,
		},
	})
}

// EmitSnapshotStored emits a recorded history snapshot.
func (eb *EventBus) EmitSnapshotStored(id string, epoch, count int) {
	eb.Emit(shared.Event{
		Type: shared.EventSnapshotStored,
		Payload: map[string]interface{}{
			"id":    id,
			"epoch": epoch,
			"count": count,
		},
	})
}

// EmitHistoryCompacted emits a history compaction.
func (eb *EventBus) EmitHistoryCompacted(interval int) {
	eb.Emit(shared.Event{
		Type: shared.EventHistoryCompact,
		Payload: map[string]interface{}{
			"interval": interval,
		},
	})
}

// EmitConnectionOpen emits an opened channel.
func (eb *EventBus) EmitConnectionOpen(endpoint string) {
	eb.Emit(shared.Event{
		Type: shared.EventConnectionOpen,
		Payload: map[string]interface{}{
			"endpoint": endpoint,
		},
	})
}

// EmitConnectionClosed emits a closed channel.
func (eb *EventBus) EmitConnectionClosed(err error) {
	payload := map[string]interface{}{}
	if err != nil {
		payload["error"] = err.Error()
	}
	eb.Emit(shared.Event{
		Type:    shared.EventConnectionClose,
		Payload: payload,
	})
}
