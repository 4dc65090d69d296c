package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrRateLimited       = errors.New("rate limited")
	ErrMalformedMessage  = errors.New("malformed message")
	ErrUnrecognized      = errors.New("unrecognized message")
	ErrUntracked         = errors.New("untracked symbol")
	ErrAttemptsExhausted = errors.New("reconnect attempts exhausted")
	ErrDeliveryFailed    = errors.New("notification delivery failed")
	ErrRecordStore       = errors.New("record store failure")
	ErrQueueFull         = errors.New("queue full")
)

// FaultKind classifies a connection-level failure for retry purposes.
type FaultKind string

const (
	// FaultTransient covers network drops, idle timeouts, heartbeat failures
	// and abnormal closes.
	FaultTransient FaultKind = "transient"
	// FaultRejected means the server actively refused the connection
	// (403, 429, 418 or a policy close).
	FaultRejected FaultKind = "rejected"
	// FaultProtocol covers unexpected handshake statuses and framing errors.
	// It is retried like FaultTransient.
	FaultProtocol FaultKind = "protocol"
)

// Fault is the terminal error of a stream session.
type Fault struct {
	Kind FaultKind
	Code int // HTTP status or websocket close code, 0 if unknown
	Err  error
}

func (f *Fault) Error() string {
	if f.Code != 0 {
		return fmt.Sprintf("%s fault (code %d): %v", f.Kind, f.Code, f.Err)
	}
	return fmt.Sprintf("%s fault: %v", f.Kind, f.Err)
}

func (f *Fault) Unwrap() error { return f.Err }

// IsDiscardable reports whether a decode error means the message should be
// dropped silently rather than logged.
func IsDiscardable(err error) bool {
	return errors.Is(err, ErrUnrecognized) || errors.Is(err, ErrUntracked)
}
