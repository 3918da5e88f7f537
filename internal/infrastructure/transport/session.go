package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/nnvisu/nnvisu-go/internal/domain/protocol"
)

// DefaultReconnectDelay is the fixed wait between a close and the next dial.
const DefaultReconnectDelay = 2000 * time.Millisecond

// State is the channel lifecycle state.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Handler receives channel events. Calls are made from the session's
// goroutine, in order: OnOpen, any number of OnMessage, OnClose.
type Handler interface {
	OnOpen()
	OnMessage(msg protocol.Inbound)
	OnClose(err error)
}

// Session keeps one channel to the trainer open, reconnecting after a fixed
// delay for as long as its context lives.
type Session struct {
	mu       sync.RWMutex
	sendMu   sync.Mutex
	dialer   Dialer
	endpoint string
	handler  Handler
	delay    time.Duration
	logger   hclog.Logger
	conn     Conn
	state    State
	onState  func(State)
	attempts int
}

// SessionOption configures the Session.
type SessionOption func(*Session)

// WithReconnectDelay sets the wait between a close and the next dial.
func WithReconnectDelay(d time.Duration) SessionOption {
	return func(s *Session) {
		if d > 0 {
			s.delay = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger hclog.Logger) SessionOption {
	return func(s *Session) {
		s.logger = logger
	}
}

// withStateHook registers a callback for every state transition.
func withStateHook(fn func(State)) SessionOption {
	return func(s *Session) {
		s.onState = fn
	}
}

// NewSession creates a Session. Nothing is dialed until Run.
func NewSession(dialer Dialer, endpoint string, handler Handler, opts ...SessionOption) *Session {
	s := &Session{
		dialer:   dialer,
		endpoint: endpoint,
		handler:  handler,
		delay:    DefaultReconnectDelay,
		logger:   hclog.NewNullLogger(),
		state:    StateClosed,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Endpoint returns the endpoint the session dials.
func (s *Session) Endpoint() string {
	return s.endpoint
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Attempts returns the number of dials made so far.
func (s *Session) Attempts() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.attempts
}

func (s *Session) setState(state State, conn Conn) {
	s.mu.Lock()
	s.state = state
	s.conn = conn
	hook := s.onState
	s.mu.Unlock()

	if hook != nil {
		hook(state)
	}
}

// Run dials, serves and redials until ctx is cancelled. Retries are
// unbounded and the delay does not grow.
func (s *Session) Run(ctx context.Context) error {
	for {
		s.mu.Lock()
		s.attempts++
		attempt := s.attempts
		s.mu.Unlock()

		s.setState(StateConnecting, nil)
		s.logger.Debug("dialing trainer", "endpoint", s.endpoint, "attempt", attempt)

		conn, err := s.dialer.Dial(ctx, s.endpoint)
		if err != nil {
			s.setState(StateClosed, nil)
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Warn("dial failed", "endpoint", s.endpoint, "error", err)
			s.handler.OnClose(err)
		} else {
			s.serve(ctx, conn)
		}

		if ctx.Err() != nil {
			return nil
		}

		timer := time.NewTimer(s.delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

func (s *Session) serve(ctx context.Context, conn Conn) {
	s.setState(StateOpen, conn)
	s.logger.Info("channel open", "endpoint", s.endpoint)
	s.handler.OnOpen()

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	var readErr error
	for {
		frame, err := conn.Receive()
		if err != nil {
			readErr = err
			break
		}
		s.dispatch(frame)
	}
	close(done)

	s.setState(StateClosed, nil)
	conn.Close()

	if ctx.Err() != nil {
		s.logger.Debug("channel closed on shutdown")
	} else {
		s.logger.Warn("channel closed", "error", readErr, "retry_in", s.delay)
	}
	s.handler.OnClose(readErr)
}

func (s *Session) dispatch(frame Frame) {
	var (
		msg protocol.Inbound
		err error
	)
	if frame.Kind == FrameBinary {
		msg, err = protocol.DecodeBinary(frame.Data)
	} else {
		msg, err = protocol.DecodeText(frame.Data)
	}
	if err != nil {
		s.logger.Warn("dropping undecodable frame", "kind", frame.Kind, "bytes", len(frame.Data), "error", err)
		return
	}
	s.handler.OnMessage(msg)
}

// Send encodes and writes msg. Sends are serialized, so messages go out in
// call order. A write error closes the channel, which triggers a reconnect.
func (s *Session) Send(msg protocol.Outbound) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}

	s.mu.RLock()
	conn, state := s.conn, s.state
	s.mu.RUnlock()
	if state != StateOpen || conn == nil {
		return fmt.Errorf("%w: %s", ErrNotConnected, msg.OutboundType())
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	if err := conn.SendText(data); err != nil {
		conn.Close()
		return fmt.Errorf("%w: %s: %v", ErrSendFailed, msg.OutboundType(), err)
	}
	s.logger.Trace("sent", "type", msg.OutboundType(), "bytes", len(data))
	return nil
}
