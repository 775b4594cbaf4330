package funding

import (
	"context"
	"errors"
	"fmt"
)

// Gateway moves value on the engine's behalf. One call, one terminal outcome:
// all retry, gas and RPC concerns live behind this boundary.
type Gateway interface {
	Submit(ctx context.Context, amount float64) (confirmationID string, err error)
}

// Class splits funding failures by what the player may do next.
type Class int

const (
	// ClassUserDeclined: the player (or their wallet) refused. No retry.
	ClassUserDeclined Class = iota
	// ClassTransient: network or availability issue. The player may retry
	// manually; the engine never retries on its own.
	ClassTransient
	// ClassFatal: configuration or protocol problem. Retrying won't help.
	ClassFatal
)

func (c Class) String() string {
	switch c {
	case ClassUserDeclined:
		return "user_declined"
	case ClassTransient:
		return "transient"
	case ClassFatal:
		return "fatal"
	}
	return "unknown"
}

// Error is a classified funding failure.
type Error struct {
	Class  Class
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("funding %s: %s: %v", e.Class, e.Reason, e.Err)
	}
	return fmt.Sprintf("funding %s: %s", e.Class, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// ClassOf extracts the failure class; unclassified errors count as fatal so
// an unknown failure never invites a retry against a wallet that may already
// have moved money.
func ClassOf(err error) Class {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Class
	}
	return ClassFatal
}

// Retryable reports whether the player should be offered a manual retry.
func Retryable(err error) bool {
	return ClassOf(err) == ClassTransient
}
