// Package buzzer wraps the PWM tone driver with the protocol's fixed limits.
package buzzer

import (
	"github.com/rs/zerolog/log"

	"github.com/picorelay/relayd/internal/hal"
)

const (
	// DefaultFreq is the fixed frequency used by BEEP and BUZZ.
	DefaultFreq = 1000

	// DefaultBeepMillis is the BEEP duration when none is given.
	DefaultBeepMillis = 100

	// MaxDurationMillis caps every timed tone.
	MaxDurationMillis = 5000

	MinToneFreq = 50
	MaxToneFreq = 20000
)

// Buzzer tracks whether the tone generator is running. Durations are not
// handled here: timed stops are armed by the dispatcher through the
// scheduled action registry so nothing in the dispatch path sleeps.
type Buzzer struct {
	driver hal.ToneDriver
	active bool
}

func New(driver hal.ToneDriver) *Buzzer {
	return &Buzzer{driver: driver}
}

// On starts a continuous tone at the default frequency.
func (b *Buzzer) On() error {
	return b.Tone(DefaultFreq)
}

// Tone starts a continuous tone at freqHz. The frequency must already be
// validated to the protocol range.
func (b *Buzzer) Tone(freqHz int) error {
	if err := b.driver.Start(freqHz); err != nil {
		log.Error().Err(err).Int("freq_hz", freqHz).Msg("Buzzer start failed")
		return err
	}
	b.active = true
	return nil
}

// Off silences the buzzer. Safe to call when already silent.
func (b *Buzzer) Off() error {
	if err := b.driver.Stop(); err != nil {
		log.Error().Err(err).Msg("Buzzer stop failed")
		return err
	}
	b.active = false
	return nil
}

func (b *Buzzer) Active() bool { return b.active }
