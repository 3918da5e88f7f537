// Package logging configures hclog for the client and keeps a bounded ring
// of recent entries for inspection.
package logging

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
)

// Entry is one captured log line.
type Entry struct {
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Logger    string                 `json:"logger,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp int64                  `json:"timestamp"`
}

// Handler is a callback for captured entries.
type Handler func(entry Entry)

// Ring keeps the most recent log entries. It implements hclog.SinkAdapter so
// it can be registered on an InterceptLogger.
type Ring struct {
	mu         sync.RWMutex
	level      hclog.Level
	handlers   []Handler
	entries    []Entry
	maxEntries int
}

var _ hclog.SinkAdapter = (*Ring)(nil)

func safeInvokeHandler(handler Handler, entry Entry) {
	if handler == nil {
		return
	}

	defer func() {
		_ = recover()
	}()
	handler(entry)
}

// NewRing creates a Ring capturing entries at level and above.
func NewRing(level hclog.Level, maxEntries int) *Ring {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	if level == hclog.NoLevel {
		level = hclog.Info
	}
	return &Ring{
		level:      level,
		handlers:   make([]Handler, 0),
		entries:    make([]Entry, 0),
		maxEntries: maxEntries,
	}
}

// SetLevel sets the capture level by name.
func (r *Ring) SetLevel(level string) error {
	if r == nil {
		return fmt.Errorf("log ring is required")
	}

	parsed := hclog.LevelFromString(strings.TrimSpace(level))
	if parsed == hclog.NoLevel {
		return fmt.Errorf("invalid log level: %s", level)
	}

	r.mu.Lock()
	r.level = parsed
	r.mu.Unlock()
	return nil
}

// Level returns the capture level.
func (r *Ring) Level() hclog.Level {
	if r == nil {
		return hclog.Info
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.level
}

// AddHandler adds a handler invoked asynchronously for every captured entry.
func (r *Ring) AddHandler(handler Handler) {
	if r == nil || handler == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = append(r.handlers, handler)
}

// Accept implements hclog.SinkAdapter.
func (r *Ring) Accept(name string, level hclog.Level, msg string, args ...interface{}) {
	if r == nil {
		return
	}

	r.mu.RLock()
	threshold := r.level
	r.mu.RUnlock()
	if level < threshold {
		return
	}

	entry := Entry{
		Level:     level.String(),
		Message:   msg,
		Logger:    name,
		Data:      argsToData(args),
		Timestamp: time.Now().UnixMilli(),
	}

	r.mu.Lock()
	r.entries = append(r.entries, entry)
	if len(r.entries) > r.maxEntries {
		r.entries = r.entries[1:]
	}
	handlers := make([]Handler, len(r.handlers))
	copy(handlers, r.handlers)
	r.mu.Unlock()

	for _, handler := range handlers {
		go safeInvokeHandler(handler, entry)
	}
}

// argsToData turns hclog key/value pairs into a JSON-friendly map.
func argsToData(args []interface{}) map[string]interface{} {
	if len(args) == 0 {
		return nil
	}

	data := make(map[string]interface{}, (len(args)+1)/2)
	for i := 0; i < len(args); i += 2 {
		if i+1 >= len(args) {
			data["EXTRA_VALUE_AT_END"] = fmt.Sprint(args[i])
			break
		}
		key := fmt.Sprint(args[i])
		switch v := args[i+1].(type) {
		case error:
			data[key] = v.Error()
		case fmt.Stringer:
			data[key] = v.String()
		default:
			data[key] = v
		}
	}
	return data
}

// Entries returns up to limit most recent entries, oldest first. A limit of
// zero or less returns everything.
func (r *Ring) Entries(limit int) []Entry {
	if r == nil {
		return []Entry{}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 || limit > len(r.entries) {
		limit = len(r.entries)
	}

	result := make([]Entry, limit)
	copy(result, r.entries[len(r.entries)-limit:])
	return result
}

// EntriesByLevel returns up to limit most recent entries at exactly level.
func (r *Ring) EntriesByLevel(level hclog.Level, limit int) []Entry {
	if r == nil {
		return []Entry{}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	name := level.String()
	result := make([]Entry, 0)
	for i := len(r.entries) - 1; i >= 0 && (limit <= 0 || len(result) < limit); i-- {
		if r.entries[i].Level == name {
			result = append(result, r.entries[i])
		}
	}

	// Reverse to maintain chronological order
	for i, j := 0, len(result)-1; i < j; i, j = i+1, j-1 {
		result[i], result[j] = result[j], result[i]
	}
	return result
}

// Clear drops all entries.
func (r *Ring) Clear() {
	if r == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make([]Entry, 0)
}

// Count returns the number of stored entries.
func (r *Ring) Count() int {
	if r == nil {
		return 0
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
