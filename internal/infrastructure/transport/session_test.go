package transport

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/nnvisu/nnvisu-go/internal/domain/protocol"
)

// ============================================================================
// Fakes
// ============================================================================

type fakeConn struct {
	frames   chan Frame
	closed   chan struct{}
	once     sync.Once
	mu       sync.Mutex
	sent     []string
	failSend bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{frames: make(chan Frame, 16), closed: make(chan struct{})}
}

func (c *fakeConn) Receive() (Frame, error) {
	select {
	case f := <-c.frames:
		return f, nil
	case <-c.closed:
		return Frame{}, io.EOF
	}
}

func (c *fakeConn) SendText(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failSend {
		return errors.New("broken pipe")
	}
	c.sent = append(c.sent, string(data))
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) Sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

type fakeDialer struct {
	mu    sync.Mutex
	conns chan *fakeConn
	dials []time.Time
	fail  int
}

func newFakeDialer(conns ...*fakeConn) *fakeDialer {
	d := &fakeDialer{conns: make(chan *fakeConn, 8)}
	for _, c := range conns {
		d.conns <- c
	}
	return d
}

func (d *fakeDialer) Dial(ctx context.Context, _ string) (Conn, error) {
	d.mu.Lock()
	d.dials = append(d.dials, time.Now())
	if d.fail > 0 {
		d.fail--
		d.mu.Unlock()
		return nil, errors.New("connection refused")
	}
	d.mu.Unlock()

	select {
	case c := <-d.conns:
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (d *fakeDialer) Dials() []time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]time.Time(nil), d.dials...)
}

type recorder struct {
	events chan string
}

func newRecorder() *recorder {
	return &recorder{events: make(chan string, 64)}
}

func (r *recorder) OnOpen()                        { r.events <- "open" }
func (r *recorder) OnClose(error)                  { r.events <- "close" }
func (r *recorder) OnMessage(msg protocol.Inbound) { r.events <- "msg:" + msg.InboundType() }

func (r *recorder) expect(t *testing.T, want string) {
	t.Helper()
	select {
	case got := <-r.events:
		if got != want {
			t.Fatalf("expected event %q, got %q", want, got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %q", want)
	}
}

func startSession(t *testing.T, s *Session) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("session did not stop")
		}
	})
	return cancel
}

// ============================================================================
// Tests
// ============================================================================

func TestSessionReconnectsAfterDelay(t *testing.T) {
	const delay = 60 * time.Millisecond
	first, second := newFakeConn(), newFakeConn()
	dialer := newFakeDialer(first, second)
	rec := newRecorder()

	var statesMu sync.Mutex
	var states []State
	s := NewSession(dialer, "ws://trainer/ws", rec,
		WithReconnectDelay(delay),
		withStateHook(func(st State) {
			statesMu.Lock()
			states = append(states, st)
			statesMu.Unlock()
		}))
	startSession(t, s)

	rec.expect(t, "open")
	closedAt := time.Now()
	first.Close()
	rec.expect(t, "close")
	rec.expect(t, "open")

	dials := dialer.Dials()
	if len(dials) != 2 {
		t.Fatalf("expected 2 dials, got %d", len(dials))
	}
	if gap := dials[1].Sub(closedAt); gap < delay {
		t.Fatalf("expected redial after at least %v, got %v", delay, gap)
	}

	statesMu.Lock()
	defer statesMu.Unlock()
	want := []State{StateConnecting, StateOpen, StateClosed, StateConnecting, StateOpen}
	if len(states) < len(want) {
		t.Fatalf("expected states %v, got %v", want, states)
	}
	for i, st := range want {
		if states[i] != st {
			t.Fatalf("expected states %v, got %v", want, states)
		}
	}
}

func TestSessionRetriesFailedDial(t *testing.T) {
	conn := newFakeConn()
	dialer := newFakeDialer(conn)
	dialer.fail = 2
	rec := newRecorder()

	s := NewSession(dialer, "ws://trainer/ws", rec, WithReconnectDelay(10*time.Millisecond))
	startSession(t, s)

	rec.expect(t, "close")
	rec.expect(t, "close")
	rec.expect(t, "open")
	if n := s.Attempts(); n != 3 {
		t.Fatalf("expected 3 attempts, got %d", n)
	}
}

func TestSessionDispatchesFramesAndDropsGarbage(t *testing.T) {
	conn := newFakeConn()
	rec := newRecorder()
	s := NewSession(newFakeDialer(conn), "ws://trainer/ws", rec)
	startSession(t, s)

	rec.expect(t, "open")
	conn.frames <- Frame{Kind: FrameText, Data: []byte(`{"type":"error","message":"bad"}`)}
	conn.frames <- Frame{Kind: FrameText, Data: []byte(`garbage`)}
	conn.frames <- Frame{Kind: FrameBinary, Data: []byte{0x01, 1, 0, 1, 0, 1, 2, 3}}
	conn.frames <- Frame{Kind: FrameText, Data: []byte(`{"type":"mystery"}`)}

	rec.expect(t, "msg:error")
	rec.expect(t, "msg:map_update")
	rec.expect(t, "msg:mystery")
}

func TestSessionSend(t *testing.T) {
	conn := newFakeConn()
	rec := newRecorder()
	s := NewSession(newFakeDialer(conn), "ws://trainer/ws", rec)

	if err := s.Send(protocol.StartTraining{}); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected before run, got %v", err)
	}

	startSession(t, s)
	rec.expect(t, "open")

	if err := s.Send(protocol.StartTraining{}); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if err := s.Send(protocol.StopTraining{}); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	sent := conn.Sent()
	want := []string{`{"type":"start_training"}`, `{"type":"stop_training"}`}
	if len(sent) != len(want) || sent[0] != want[0] || sent[1] != want[1] {
		t.Fatalf("expected %v in order, got %v", want, sent)
	}
}

func TestSessionSendFailureClosesChannel(t *testing.T) {
	conn := newFakeConn()
	conn.failSend = true
	rec := newRecorder()
	s := NewSession(newFakeDialer(conn), "ws://trainer/ws", rec, WithReconnectDelay(time.Hour))
	startSession(t, s)

	rec.expect(t, "open")
	if err := s.Send(protocol.Reset{}); !errors.Is(err, ErrSendFailed) {
		t.Fatalf("expected ErrSendFailed, got %v", err)
	}
	rec.expect(t, "close")

	if err := s.Send(protocol.Reset{}); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected after close, got %v", err)
	}
}

func TestSessionStopsOnCancel(t *testing.T) {
	conn := newFakeConn()
	rec := newRecorder()
	s := NewSession(newFakeDialer(conn), "ws://trainer/ws", rec)
	cancel := startSession(t, s)

	rec.expect(t, "open")
	cancel()
	rec.expect(t, "close")

	deadline := time.Now().Add(2 * time.Second)
	for s.State() != StateClosed {
		if time.Now().After(deadline) {
			t.Fatalf("expected closed state, got %v", s.State())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestEndpointFromPage(t *testing.T) {
	tests := []struct {
		page string
		want string
	}{
		{"http://localhost:8888/", "ws://localhost:8888/ws"},
		{"https://example.com/app/", "wss://example.com/app/ws"},
		{"http://host/viz?x=1#top", "ws://host/viz/ws"},
		{"http://host", "ws://host/ws"},
		{"wss://trainer.internal/ws", "wss://trainer.internal/ws"},
	}

	for _, tt := range tests {
		got, err := EndpointFromPage(tt.page)
		if err != nil {
			t.Fatalf("EndpointFromPage(%q) failed: %v", tt.page, err)
		}
		if got != tt.want {
			t.Fatalf("EndpointFromPage(%q): expected %q, got %q", tt.page, tt.want, got)
		}
	}

	if _, err := EndpointFromPage("ftp://host/"); !errors.Is(err, ErrUnsupportedScheme) {
		t.Fatalf("expected ErrUnsupportedScheme, got %v", err)
	}
}

func TestOriginFor(t *testing.T) {
	if got, _ := originFor("wss://example.com/app/ws"); got != "https://example.com" {
		t.Fatalf("expected https origin, got %q", got)
	}
	if got, _ := originFor("ws://localhost:8888/ws"); got != "http://localhost:8888" {
		t.Fatalf("expected http origin, got %q", got)
	}
}
