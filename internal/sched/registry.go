// Package sched is the bounded registry of deferred actions the main loop
// polls every tick. The set is small by construction (at most one relay-off
// per channel, one buzzer-stop, and the two periodic actions), so a
// due-time-sorted slice is used rather than a heap.
package sched

import (
	"time"

	"github.com/picorelay/relayd/internal/hal"
)

type Kind int

const (
	KindRelayOff Kind = iota
	KindBuzzerStop
	KindHeartbeatToggle
	KindWatchdogFeed
)

func (k Kind) String() string {
	switch k {
	case KindRelayOff:
		return "relay-off"
	case KindBuzzerStop:
		return "buzzer-stop"
	case KindHeartbeatToggle:
		return "heartbeat-toggle"
	case KindWatchdogFeed:
		return "watchdog-feed"
	}
	return "unknown"
}

// Action is one deferred, due-time-stamped action. Relay is only meaningful
// for KindRelayOff. A non-zero Period re-arms the action each time it fires.
type Action struct {
	Kind   Kind
	Relay  int
	Due    time.Time
	Period time.Duration
	Fire   func(now time.Time)
}

type Registry struct {
	clock   hal.Clock
	actions []Action // sorted by Due, earliest first
}

func New(clock hal.Clock) *Registry {
	return &Registry{clock: clock}
}

// Arm inserts an action, replacing any pending action in the same slot.
// A slot is (kind, relay) for relay-off and just the kind otherwise:
// re-arming is last-writer-wins, never queueing.
func (r *Registry) Arm(a Action) {
	r.Cancel(a.Kind, a.Relay)
	r.insert(a)
}

// Cancel removes a pending action for the slot, if any.
func (r *Registry) Cancel(kind Kind, relay int) {
	for i, existing := range r.actions {
		if existing.Kind == kind && (kind != KindRelayOff || existing.Relay == relay) {
			r.actions = append(r.actions[:i], r.actions[i+1:]...)
			return
		}
	}
}

// Pending reports whether the slot has an armed action.
func (r *Registry) Pending(kind Kind, relay int) bool {
	for _, a := range r.actions {
		if a.Kind == kind && (kind != KindRelayOff || a.Relay == relay) {
			return true
		}
	}
	return false
}

// FireDue fires every action whose due time has passed, in due-time order,
// and re-arms periodic ones. Returns the number fired.
func (r *Registry) FireDue() int {
	now := r.clock.Now()
	fired := 0

	for len(r.actions) > 0 && !r.actions[0].Due.After(now) {
		a := r.actions[0]
		r.actions = r.actions[1:]
		a.Fire(now)
		fired++

		if a.Period > 0 {
			a.Due = now.Add(a.Period)
			r.insert(a)
		}
	}
	return fired
}

func (r *Registry) Len() int { return len(r.actions) }

func (r *Registry) insert(a Action) {
	i := len(r.actions)
	for j, existing := range r.actions {
		if a.Due.Before(existing.Due) {
			i = j
			break
		}
	}
	r.actions = append(r.actions, Action{})
	copy(r.actions[i+1:], r.actions[i:])
	r.actions[i] = a
}
