package transport

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"time"

	"golang.org/x/net/websocket"
)

// frameCodec keeps the websocket payload type so text and binary frames can
// be dispatched to different decoders.
var frameCodec = websocket.Codec{
	Marshal: func(v interface{}) ([]byte, byte, error) {
		f, ok := v.(Frame)
		if !ok {
			return nil, 0, fmt.Errorf("unexpected frame value %T", v)
		}
		if f.Kind == FrameBinary {
			return f.Data, websocket.BinaryFrame, nil
		}
		return f.Data, websocket.TextFrame, nil
	},
	Unmarshal: func(data []byte, payloadType byte, v interface{}) error {
		f, ok := v.(*Frame)
		if !ok {
			return fmt.Errorf("unexpected frame target %T", v)
		}
		f.Kind = FrameText
		if payloadType == websocket.BinaryFrame {
			f.Kind = FrameBinary
		}
		f.Data = data
		return nil
	},
}

// WebSocketDialer dials the trainer over a websocket.
type WebSocketDialer struct {
	// Origin is sent in the handshake. Empty derives it from the endpoint.
	Origin string

	// Timeout bounds the TCP connect. Zero means no limit.
	Timeout time.Duration
}

// Dial implements Dialer.
func (d WebSocketDialer) Dial(ctx context.Context, endpoint string) (Conn, error) {
	origin := d.Origin
	if origin == "" {
		var err error
		if origin, err = originFor(endpoint); err != nil {
			return nil, err
		}
	}

	cfg, err := websocket.NewConfig(endpoint, origin)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	dialer := &net.Dialer{Timeout: d.Timeout}
	if deadline, ok := ctx.Deadline(); ok {
		dialer.Deadline = deadline
	}
	cfg.Dialer = dialer

	type result struct {
		ws  *websocket.Conn
		err error
	}
	done := make(chan result, 1)
	go func() {
		ws, err := websocket.DialConfig(cfg)
		done <- result{ws, err}
	}()

	select {
	case <-ctx.Done():
		go func() {
			if r := <-done; r.ws != nil {
				r.ws.Close()
			}
		}()
		return nil, ctx.Err()
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		return &wsConn{ws: r.ws}, nil
	}
}

// originFor maps ws://host/path to http://host.
func originFor(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	scheme := "http"
	if u.Scheme == "wss" {
		scheme = "https"
	}
	return scheme + "://" + u.Host, nil
}

type wsConn struct {
	ws *websocket.Conn
}

func (c *wsConn) Receive() (Frame, error) {
	var f Frame
	if err := frameCodec.Receive(c.ws, &f); err != nil {
		return Frame{}, err
	}
	return f, nil
}

func (c *wsConn) SendText(data []byte) error {
	return frameCodec.Send(c.ws, Frame{Kind: FrameText, Data: data})
}

func (c *wsConn) Close() error {
	return c.ws.Close()
}
