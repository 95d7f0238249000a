package queue

import (
	"fmt"
	"time"
)

// DelayError is returned by a handler that wants its job run again at Until
// instead of being failed. The attempt is not counted.
type DelayError struct {
	Until  time.Time
	Reason string
}

func (e *DelayError) Error() string {
	return fmt.Sprintf("delay until %s: %s", e.Until.UTC().Format(time.RFC3339), e.Reason)
}

// DelayUntil builds a DelayError.
func DelayUntil(until time.Time, reason string) error {
	return &DelayError{Until: until, Reason: reason}
}
