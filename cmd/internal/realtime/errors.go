package realtime

import (
	"errors"
	"fmt"
)

var (
	// ErrDeliveryFailed is returned when a frame could not be queued for a
	// registered client.
	ErrDeliveryFailed = errors.New("delivery failed")
	// ErrUnknownAction marks inbound frames with a missing or unsupported action.
	ErrUnknownAction = errors.New("unknown action")
)

// Delivery failure reasons.
const (
	ReasonClosed    = "closed"
	ReasonQueueFull = "queue_full"
	ReasonCanceled  = "canceled"
)

// DeliveryError describes why a frame did not reach UserID's send queue.
type DeliveryError struct {
	UserID string
	Reason string
}

func (e DeliveryError) Error() string {
	return fmt.Sprintf("%v: %s: %s", ErrDeliveryFailed, e.UserID, e.Reason)
}

func (e DeliveryError) Unwrap() error { return ErrDeliveryFailed }

// UnknownActionError reports an inbound frame the relay does not handle.
// Action is empty when the frame had no string action field.
type UnknownActionError struct {
	Action string
}

func (e UnknownActionError) Error() string {
	if e.Action == "" {
		return fmt.Sprintf("%v: <missing>", ErrUnknownAction)
	}
	return fmt.Sprintf("%v: %q", ErrUnknownAction, e.Action)
}

func (e UnknownActionError) Unwrap() error { return ErrUnknownAction }
