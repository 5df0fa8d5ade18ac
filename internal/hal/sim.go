package hal

import (
	"sync"
	"time"

	"github.com/picorelay/relayd/internal/model"
)

// Simulated drivers back the runtime when no board is attached and stand in
// for hardware in tests.

// SimOutputs records pin levels in memory.
type SimOutputs struct {
	mu     sync.Mutex
	levels map[int]bool

	// FailPins lists pin numbers whose writes should fail, for
	// hardware-error paths.
	FailPins map[int]bool
}

func NewSimOutputs() *SimOutputs {
	return &SimOutputs{levels: make(map[int]bool)}
}

func (d *SimOutputs) Configure(pin model.GPIOPin) error {
	return d.Set(pin, false)
}

func (d *SimOutputs) Set(pin model.GPIOPin, active bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.FailPins[pin.Number] {
		return errSimulatedFailure
	}
	d.levels[pin.Number] = active
	return nil
}

// Active reports the last driven state of a pin.
func (d *SimOutputs) Active(pin int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.levels[pin]
}

// SimTone records buzzer activity.
type SimTone struct {
	mu      sync.Mutex
	playing bool
	freq    int
	starts  int
}

func (t *SimTone) Start(freqHz int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.playing = true
	t.freq = freqHz
	t.starts++
	return nil
}

func (t *SimTone) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.playing = false
	return nil
}

func (t *SimTone) Playing() (bool, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.playing, t.freq
}

func (t *SimTone) Starts() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.starts
}

// SimWatchdog records feed times so tests can prove the loop never starves it.
type SimWatchdog struct {
	mu    sync.Mutex
	feeds []time.Time
}

func (w *SimWatchdog) Feed() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.feeds = append(w.feeds, time.Now())
	return nil
}

func (w *SimWatchdog) FeedCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.feeds)
}

// FixedID is a static device identifier.
type FixedID string

func (f FixedID) UID() string { return string(f) }

// FakeClock is a manually advanced clock for scheduler and loop tests.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type simError string

func (e simError) Error() string { return string(e) }

const errSimulatedFailure = simError("simulated output failure")
