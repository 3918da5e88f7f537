// Package transport maintains the duplex channel to the trainer: dialing,
// framing, dispatch and fixed-delay reconnection.
package transport

import (
	"context"
	"errors"
)

var (
	// ErrNotConnected is returned by Send while the channel is not open.
	ErrNotConnected = errors.New("channel not connected")

	// ErrSendFailed wraps a write error; the channel is closed afterwards.
	ErrSendFailed = errors.New("send failed")

	// ErrUnsupportedScheme is returned for page URLs that cannot be mapped to
	// a channel endpoint.
	ErrUnsupportedScheme = errors.New("unsupported URL scheme")
)

// FrameKind distinguishes text and binary frames.
type FrameKind int

const (
	FrameText FrameKind = iota
	FrameBinary
)

func (k FrameKind) String() string {
	if k == FrameBinary {
		return "binary"
	}
	return "text"
}

// Frame is one received message with its frame type.
type Frame struct {
	Kind FrameKind
	Data []byte
}

// Conn is an open duplex channel. Receive blocks until a frame arrives or
// the channel fails; Close unblocks it.
type Conn interface {
	Receive() (Frame, error)
	SendText(data []byte) error
	Close() error
}

// Dialer opens channels.
type Dialer interface {
	Dial(ctx context.Context, endpoint string) (Conn, error)
}
