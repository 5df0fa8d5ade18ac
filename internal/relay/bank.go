// Package relay owns the 8-channel output bank and its wire representation.
package relay

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/picorelay/relayd/internal/hal"
	"github.com/picorelay/relayd/internal/model"
)

// Bank is the fixed collection of 8 relay channels. It is created at boot
// with every channel OFF and mutated only from the main loop.
//
// Wire representation: the status string has channel 8 leftmost and channel 1
// rightmost, i.e. channel 1 is the least-significant bit.
type Bank struct {
	channels [model.RelayCount]model.RelayChannel
	driver   hal.OutputDriver
}

// NewBank configures the relay pins as outputs in the OFF state.
func NewBank(pins [model.RelayCount]int, activeHigh bool, driver hal.OutputDriver) (*Bank, error) {
	b := &Bank{driver: driver}
	for i := range b.channels {
		b.channels[i] = model.RelayChannel{
			ID:  i + 1,
			Pin: model.GPIOPin{Number: pins[i], ActiveHigh: activeHigh},
		}
		if err := driver.Configure(b.channels[i].Pin); err != nil {
			return nil, fmt.Errorf("failed to configure relay %d: %w", i+1, err)
		}
	}
	return b, nil
}

// Set drives one channel. relay must already be validated to 1..8.
func (b *Bank) Set(relay int, on bool) error {
	ch := &b.channels[relay-1]
	if err := b.driver.Set(ch.Pin, on); err != nil {
		log.Error().Err(err).Int("relay", relay).Msg("Relay output write failed")
		return err
	}
	ch.On = on
	log.Debug().Int("relay", relay).Bool("on", on).Msg("Relay switched")
	return nil
}

// SetAll drives every channel to the same state.
func (b *Bank) SetAll(on bool) error {
	for i := 1; i <= model.RelayCount; i++ {
		if err := b.Set(i, on); err != nil {
			return err
		}
	}
	return nil
}

// SetPattern replaces the full bank state from a wire-order pattern string.
// The pattern must already be validated; see model.ValidPattern.
func (b *Bank) SetPattern(pattern string) error {
	for i := 0; i < model.RelayCount; i++ {
		relay := model.RelayCount - i // leftmost char is relay 8
		if err := b.Set(relay, pattern[i] == '1'); err != nil {
			return err
		}
	}
	return nil
}

// Pattern returns the current bank state in wire order.
func (b *Bank) Pattern() string {
	buf := make([]byte, model.RelayCount)
	for i := 0; i < model.RelayCount; i++ {
		relay := model.RelayCount - i
		if b.channels[relay-1].On {
			buf[i] = '1'
		} else {
			buf[i] = '0'
		}
	}
	return string(buf)
}

// On reports the current state of one channel.
func (b *Bank) On(relay int) bool {
	return b.channels[relay-1].On
}
