package canobj

import (
	"context"
	"errors"
)

// Bus represents a CAN bus connection which can send and receive CAN frames.
// Implementations should be safe for concurrent use by multiple goroutines.
type Bus interface {
	// Send transmits a frame. It may block until the frame has been accepted
	// by at least one other node. Context cancellation aborts the operation
	// and returns the context error.
	Send(ctx context.Context, frame Frame) error

	// Receive retrieves the next available frame. It blocks until a frame
	// is available or the context is cancelled.
	Receive(ctx context.Context) (Frame, error)

	// Close releases resources. Further Send/Receive return ErrClosed.
	Close() error
}

var (
	// ErrClosed indicates the bus or endpoint has been closed.
	ErrClosed = errors.New("canobj: closed")

	// ErrNoAck indicates that no other node acknowledged a transmitted frame.
	// Controllers report this as an acknowledgement error in their status.
	ErrNoAck = errors.New("canobj: no acknowledging peer")
)
