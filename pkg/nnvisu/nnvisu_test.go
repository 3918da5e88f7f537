package nnvisu

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/nnvisu/nnvisu-go/internal/infrastructure/state"
	"github.com/nnvisu/nnvisu-go/internal/infrastructure/transport"
)

type pipeConn struct {
	frames chan transport.Frame
	closed chan struct{}
	once   sync.Once
	mu     sync.Mutex
	sent   []string
}

func newPipeConn() *pipeConn {
	return &pipeConn{frames: make(chan transport.Frame, 16), closed: make(chan struct{})}
}

func (c *pipeConn) Receive() (transport.Frame, error) {
	select {
	case f := <-c.frames:
		return f, nil
	case <-c.closed:
		return transport.Frame{}, io.EOF
	}
}

func (c *pipeConn) SendText(data []byte) error {
	var head struct {
		Type string `json:"type"`
	}
	_ = json.Unmarshal(data, &head)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, head.Type)
	return nil
}

func (c *pipeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *pipeConn) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

type pipeDialer struct {
	conn *pipeConn
}

func (d pipeDialer) Dial(ctx context.Context, _ string) (transport.Conn, error) {
	return d.conn, nil
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func contains(list []string, item string) bool {
	for _, v := range list {
		if v == item {
			return true
		}
	}
	return false
}

func newTestClient(t *testing.T, conn *pipeConn) *Client {
	t.Helper()

	config := DefaultConfig()
	config.Listen = ""
	config.CanvasWidth = 100
	config.CanvasHeight = 100
	config.RefreshRate = 30

	client, err := New(config,
		WithDialer(pipeDialer{conn: conn}),
		WithBackend(state.NewMemoryBackend()),
		WithLogOutput(io.Discard),
	)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	if err := client.Initialize(context.Background()); err != nil {
		t.Fatalf("failed to initialize: %v", err)
	}
	t.Cleanup(func() { _ = client.Shutdown() })
	return client
}

func TestNewRejectsBadPageURL(t *testing.T) {
	config := DefaultConfig()
	config.PageURL = "ftp://example.com/"
	if _, err := New(config); err == nil {
		t.Fatal("expected error for unsupported page URL")
	}
}

func TestRunBeforeInitialize(t *testing.T) {
	client, err := New(DefaultConfig(), WithLogOutput(io.Discard))
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	if err := client.Run(context.Background()); err == nil {
		t.Fatal("expected error before Initialize")
	}
}

func TestClientTrainingRoundTrip(t *testing.T) {
	conn := newPipeConn()
	client := newTestClient(t, conn)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- client.Run(ctx) }()

	waitFor(t, "connection", func() bool { return client.View().Connected })
	if n := client.ConnectionAttempts(); n != 1 {
		t.Fatalf("expected 1 connection attempt, got %d", n)
	}
	waitFor(t, "initial state push", func() bool {
		sent := conn.types()
		return len(sent) >= 2 && sent[0] == "update_config" && sent[1] == "update_data"
	})

	ctl := client.Controller()
	if err := ctl.PointerDown(50, 50); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ctl.StartTraining(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	waitFor(t, "step request", func() bool { return contains(conn.types(), "train_step") })

	conn.frames <- transport.Frame{
		Kind: transport.FrameText,
		Data: []byte(`{"type":"step_result","model":{"w":[0.5]},"metrics":{"epoch":7,"loss":0.3}}`),
	}
	waitFor(t, "step result", func() bool { return client.View().Metrics.Epoch == 7 })
	if !client.View().HasModel {
		t.Fatal("expected model after step result")
	}

	conn.frames <- transport.Frame{
		Kind: transport.FrameBinary,
		Data: []byte{0x01, 1, 0, 1, 0, 255, 0, 0},
	}
	waitFor(t, "map displayed", func() bool { return client.View().MapSeq == 1 })
	waitFor(t, "rendered frame", func() bool {
		var buf bytes.Buffer
		return client.WritePNG(&buf) == nil && buf.Len() > 0
	})

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean exit, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestHandlerServesStatus(t *testing.T) {
	client := newTestClient(t, newPipeConn())

	srv := httptest.NewServer(client.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	var view View
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		t.Fatalf("failed to decode view: %v", err)
	}
	if view.Status.Text != "Disconnected" {
		t.Fatalf("expected Disconnected, got %s", view.Status.Text)
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	client := newTestClient(t, newPipeConn())

	if err := client.Shutdown(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := client.Shutdown(); err != nil {
		t.Fatalf("expected second shutdown to be a no-op, got %v", err)
	}
}

func TestLogsCaptured(t *testing.T) {
	client := newTestClient(t, newPipeConn())

	entries := client.Logs(0)
	found := false
	for _, e := range entries {
		if e.Message == "client initialized" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected initialization to be logged, got %+v", entries)
	}
}
