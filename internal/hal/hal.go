// Package hal declares the hardware capability interfaces the runtime
// consumes. Platform-specific implementations live alongside; the runtime
// never touches pins, PWM, or the watchdog device directly.
package hal

import (
	"time"

	"github.com/picorelay/relayd/internal/model"
)

// OutputDriver drives digital output pins.
type OutputDriver interface {
	// Configure sets the pin up as an output in its inactive state.
	Configure(pin model.GPIOPin) error

	// Set drives the pin active (true) or inactive (false), honoring
	// the pin's active-high/active-low wiring.
	Set(pin model.GPIOPin, active bool) error
}

// ToneDriver drives the PWM buzzer.
type ToneDriver interface {
	// Start begins a continuous tone at the given frequency.
	Start(freqHz int) error

	// Stop silences the buzzer.
	Stop() error
}

// Watchdog is the hardware watchdog feed primitive. A missed feed past the
// hardware timeout resets the whole device; Feed failures are logged by the
// caller, never retried in a blocking way.
type Watchdog interface {
	Feed() error
}

// Clock supplies monotonic time for the scheduler. time.Time carries a
// monotonic reading on this platform, which is what due-time comparisons use.
type Clock interface {
	Now() time.Time
}

// DeviceID exposes the unique chip identifier used by INFO and UID.
type DeviceID interface {
	// UID returns a 16-character uppercase hex identifier.
	UID() string
}

// SystemClock is the real monotonic clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// NopWatchdog is used when no watchdog device is configured.
type NopWatchdog struct{}

func (NopWatchdog) Feed() error { return nil }
