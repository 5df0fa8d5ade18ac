package model

import (
	"strconv"
	"time"
)

const (
	// BoardName and BoardVersion identify the relay board on the wire.
	BoardName    = "WAVESHARE-PICO-RELAY-B"
	BoardVersion = "V1.0"

	FirmwareVersion = "1.2.0"

	// RelayCount is fixed by the board hardware.
	RelayCount = 8

	// MaxNameLen bounds persisted relay names.
	MaxNameLen = 32
)

type GPIOPin struct {
	Number     int  `json:"number"`
	ActiveHigh bool `json:"active_high"`
}

// RelayChannel is one switchable output. Channels are 1-indexed to match
// the wire protocol and the board silkscreen.
type RelayChannel struct {
	ID  int
	Pin GPIOPin
	On  bool
}

// PersistedConfig is the durable portion of device state: relay names, an
// optionally saved output pattern, and the auto-load policy. Loaded once at
// boot, written back synchronously on every mutating command.
type PersistedConfig struct {
	Names     [RelayCount]string `json:"names"`
	Pattern   *string            `json:"pattern,omitempty"` // wire order: relay 8 leftmost
	AutoLoad  bool               `json:"auto_load"`
	LastSaved time.Time          `json:"last_saved,omitempty"`
}

// DefaultPersistedConfig matches a factory-fresh board: default names,
// no saved pattern, auto-load enabled.
func DefaultPersistedConfig() *PersistedConfig {
	cfg := &PersistedConfig{AutoLoad: true}
	for i := range cfg.Names {
		cfg.Names[i] = DefaultRelayName(i + 1)
	}
	return cfg
}

func DefaultRelayName(relay int) string {
	return "Relay " + strconv.Itoa(relay)
}

func ValidRelayNumber(n int) bool {
	return n >= 1 && n <= RelayCount
}

// ValidPattern reports whether s is a full-width pattern of '0'/'1'.
func ValidPattern(s string) bool {
	if len(s) != RelayCount {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] != '0' && s[i] != '1' {
			return false
		}
	}
	return true
}
