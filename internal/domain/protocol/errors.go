// Package protocol defines the message vocabulary exchanged with the remote trainer.
package protocol

import "errors"

// Domain errors for the wire protocol.
var (
	// ErrMalformedFrame indicates a frame that could not be parsed at all.
	ErrMalformedFrame = errors.New("malformed frame")

	// ErrEmptyFrame indicates a frame without any bytes.
	ErrEmptyFrame = errors.New("empty frame")

	// ErrUnknownOutbound indicates an outbound message type the encoder does not know.
	ErrUnknownOutbound = errors.New("unknown outbound message")

	// ErrInvalidDistribution indicates a dataset distribution the trainer cannot generate.
	ErrInvalidDistribution = errors.New("invalid distribution")

	// ErrInvalidClassCount indicates a class count outside the palette range.
	ErrInvalidClassCount = errors.New("invalid class count")
)
