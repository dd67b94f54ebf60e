package outbound

import (
	"errors"
	"fmt"
)

var (
	// ErrConfig signals an adapter that cannot deliver anything as configured.
	ErrConfig = errors.New("outbound: invalid configuration")

	// ErrNoRecipient is returned when a send has no target.
	ErrNoRecipient = errors.New("outbound: recipient is required")
)

// TransientError marks a failure that may succeed on retry. Senders
// without their own error types can wrap errors in it.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string   { return "transient: " + e.Err.Error() }
func (e *TransientError) Unwrap() error   { return e.Err }
func (e *TransientError) Temporary() bool { return true }

// IsTransient reports whether err, or anything it wraps, says retrying
// may help.
func IsTransient(err error) bool {
	var t interface{ Temporary() bool }
	return errors.As(err, &t) && t.Temporary()
}

// DeliveryError is returned when a message could not be delivered after
// all attempts.
type DeliveryError struct {
	Op       string // "send_text" | "send_media"
	Chunk    int    // index of the failed chunk, -1 for media
	Attempts int
	Err      error
}

func (e *DeliveryError) Error() string {
	if e.Chunk >= 0 {
		return fmt.Sprintf("outbound: %s chunk %d failed after %d attempt(s): %v", e.Op, e.Chunk, e.Attempts, e.Err)
	}
	return fmt.Sprintf("outbound: %s failed after %d attempt(s): %v", e.Op, e.Attempts, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
