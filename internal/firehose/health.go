package firehose

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotStarted means no commit has been handled yet.
var ErrNotStarted = errors.New("firehose: no events handled yet")

// StalledError means the newest handled commit is older than allowed.
type StalledError struct {
	Age    time.Duration
	MaxAge time.Duration
}

func (e *StalledError) Error() string {
	return fmt.Sprintf("firehose: stalled, last event %s ago (max %s)", e.Age.Round(time.Millisecond), e.MaxAge)
}

// CheckFreshness reports whether lastEvent is recent enough at now.
func CheckFreshness(lastEvent, now time.Time, maxAge time.Duration) error {
	if lastEvent.IsZero() {
		return ErrNotStarted
	}
	if age := now.Sub(lastEvent); age > maxAge {
		return &StalledError{Age: age, MaxAge: maxAge}
	}
	return nil
}
