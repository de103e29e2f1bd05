// Package clock wraps benbjohnson/clock so heartbeat monitors and idle
// timers can be driven by a fake clock in tests instead of wall time.
package clock

import (
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gavv/monotime"
)

// Clock is the subset of benbjohnson/clock.Clock the resource manager
// needs: wall-clock reads for logging/reporting and timers for expiry.
type Clock interface {
	Now() time.Time
	Timer(d time.Duration) *clock.Timer
	Ticker(d time.Duration) *clock.Ticker
	AfterFunc(d time.Duration, f func()) *clock.Timer
}

// New returns the real clock.
func New() Clock {
	return clock.New()
}

// NewMock returns a fake clock that tests can advance manually.
func NewMock() *clock.Mock {
	return clock.NewMock()
}

// MonotonicNow returns a monotonic timestamp immune to wall-clock
// adjustments. Heartbeat expiry does not use it; it reads the injected
// Clock instead.
func MonotonicNow() time.Duration {
	return monotime.Now()
}
