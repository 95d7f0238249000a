package keypool

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrExhausted means no credential could serve a request in one full rotation.
	ErrExhausted = errors.New("all API keys exhausted")
	// ErrProbeFailed means a new key was rejected by the provider and not stored.
	ErrProbeFailed = errors.New("credential probe failed")
	// ErrNotFound means no stored credential has the given key.
	ErrNotFound = errors.New("credential not found")
	// ErrDuplicate means the key is already in the pool.
	ErrDuplicate = errors.New("credential already exists")
)

// ExhaustedError is returned by ExecuteRequest when a full rotation found no
// credential able to serve the call.
type ExhaustedError struct {
	// NextAvailable is the earliest time a credential is expected to be usable.
	NextAvailable time.Time
	// Attempted counts credentials that were tried and failed during the pass.
	Attempted int
	// LastErr is the error from the last credential tried, if any.
	LastErr error
}

func (e *ExhaustedError) Error() string {
	if e.LastErr != nil {
		return fmt.Sprintf("%s after %d attempt(s): %v", ErrExhausted, e.Attempted, e.LastErr)
	}
	return ErrExhausted.Error()
}

// Is makes errors.Is(err, ErrExhausted) hold.
func (e *ExhaustedError) Is(target error) bool { return target == ErrExhausted }

// Unwrap exposes the last provider error.
func (e *ExhaustedError) Unwrap() error { return e.LastErr }
