package sched

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/picorelay/relayd/internal/hal"
)

func TestFireDueInDueTimeOrder(t *testing.T) {
	clock := hal.NewFakeClock(time.Unix(0, 0))
	r := New(clock)

	var order []string
	r.Arm(Action{Kind: KindBuzzerStop, Due: clock.Now().Add(200 * time.Millisecond), Fire: func(time.Time) { order = append(order, "buzzer") }})
	r.Arm(Action{Kind: KindRelayOff, Relay: 1, Due: clock.Now().Add(100 * time.Millisecond), Fire: func(time.Time) { order = append(order, "relay1") }})
	r.Arm(Action{Kind: KindRelayOff, Relay: 2, Due: clock.Now().Add(300 * time.Millisecond), Fire: func(time.Time) { order = append(order, "relay2") }})

	clock.Advance(250 * time.Millisecond)
	assert.Equal(t, 2, r.FireDue())
	assert.Equal(t, []string{"relay1", "buzzer"}, order)
	assert.Equal(t, 1, r.Len())

	clock.Advance(100 * time.Millisecond)
	assert.Equal(t, 1, r.FireDue())
	assert.Equal(t, []string{"relay1", "buzzer", "relay2"}, order)
}

func TestArmReplacesSameSlot(t *testing.T) {
	clock := hal.NewFakeClock(time.Unix(0, 0))
	r := New(clock)

	fired := 0
	r.Arm(Action{Kind: KindRelayOff, Relay: 1, Due: clock.Now().Add(100 * time.Millisecond), Fire: func(time.Time) { fired++ }})
	r.Arm(Action{Kind: KindRelayOff, Relay: 1, Due: clock.Now().Add(500 * time.Millisecond), Fire: func(time.Time) { fired++ }})
	assert.Equal(t, 1, r.Len(), "same slot replaces, never queues")

	clock.Advance(200 * time.Millisecond)
	assert.Zero(t, r.FireDue(), "replaced deadline must not fire")

	clock.Advance(400 * time.Millisecond)
	assert.Equal(t, 1, r.FireDue())
	assert.Equal(t, 1, fired)
}

func TestRelayOffSlotsArePerChannel(t *testing.T) {
	clock := hal.NewFakeClock(time.Unix(0, 0))
	r := New(clock)

	r.Arm(Action{Kind: KindRelayOff, Relay: 1, Due: clock.Now().Add(time.Second), Fire: func(time.Time) {}})
	r.Arm(Action{Kind: KindRelayOff, Relay: 2, Due: clock.Now().Add(time.Second), Fire: func(time.Time) {}})
	assert.Equal(t, 2, r.Len())

	r.Cancel(KindRelayOff, 1)
	assert.False(t, r.Pending(KindRelayOff, 1))
	assert.True(t, r.Pending(KindRelayOff, 2))
}

func TestPeriodicActionRearms(t *testing.T) {
	clock := hal.NewFakeClock(time.Unix(0, 0))
	r := New(clock)

	fired := 0
	r.Arm(Action{Kind: KindWatchdogFeed, Due: clock.Now(), Period: 100 * time.Millisecond, Fire: func(time.Time) { fired++ }})

	for i := 0; i < 5; i++ {
		r.FireDue()
		clock.Advance(100 * time.Millisecond)
	}
	assert.Equal(t, 5, fired)
	assert.Equal(t, 1, r.Len(), "periodic action stays armed")
}

func TestCancelMissingSlotIsNoop(t *testing.T) {
	clock := hal.NewFakeClock(time.Unix(0, 0))
	r := New(clock)

	r.Cancel(KindBuzzerStop, 0)
	assert.Zero(t, r.Len())
}
