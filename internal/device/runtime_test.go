package device

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/picorelay/relayd/internal/buzzer"
	"github.com/picorelay/relayd/internal/hal"
	"github.com/picorelay/relayd/internal/model"
	"github.com/picorelay/relayd/internal/protocol"
	"github.com/picorelay/relayd/internal/relay"
	"github.com/picorelay/relayd/internal/sched"
	"github.com/picorelay/relayd/internal/store"
)

var testPins = [model.RelayCount]int{21, 20, 19, 18, 17, 16, 15, 14}

const heartbeatPin = 25

type loopFixture struct {
	rt      *Runtime
	bank    *relay.Bank
	outputs *hal.SimOutputs
	tone    *hal.SimTone
	wdt     *hal.SimWatchdog
	clock   *hal.FakeClock
	cfg     *model.PersistedConfig
	out     *bytes.Buffer
	input   chan []byte
}

func newLoopFixture(t *testing.T, cfg *model.PersistedConfig) *loopFixture {
	t.Helper()

	outputs := hal.NewSimOutputs()
	bank, err := relay.NewBank(testPins, true, outputs)
	require.NoError(t, err)

	tone := &hal.SimTone{}
	buzz := buzzer.New(tone)
	clock := hal.NewFakeClock(time.Unix(1000, 0))
	registry := sched.New(clock)
	storage := store.New(t.TempDir() + "/relay_config.json")
	if cfg == nil {
		cfg = storage.Load()
	}

	disp := protocol.NewDispatcher(bank, buzz, registry, storage, cfg, hal.FixedID("ECD43B7502A23159"), clock)

	wdt := &hal.SimWatchdog{}
	out := &bytes.Buffer{}
	input := make(chan []byte, 16)

	rt := NewRuntime(bank, buzz, registry, disp, cfg, outputs, wdt, clock, input, out, nil, Options{
		TickInterval:    5 * time.Millisecond,
		FeedPeriod:      100 * time.Millisecond,
		HeartbeatPeriod: 500 * time.Millisecond,
		HeartbeatPin:    model.GPIOPin{Number: heartbeatPin, ActiveHigh: true},
	})
	return &loopFixture{rt, bank, outputs, tone, wdt, clock, cfg, out, input}
}

func (f *loopFixture) responses() []string {
	return strings.Split(strings.TrimRight(f.out.String(), "\n"), "\n")
}

func TestPulseExpiresOneTickAfterDeadline(t *testing.T) {
	f := newLoopFixture(t, nil)

	f.rt.ingest([]byte("PULSE 1 500\n"))
	f.rt.Tick()
	assert.True(t, f.bank.On(1), "bit set before the response is produced")
	assert.Equal(t, []string{"OK"}, f.responses())

	f.clock.Advance(499 * time.Millisecond)
	f.rt.Tick()
	assert.True(t, f.bank.On(1))

	f.clock.Advance(2 * time.Millisecond)
	f.rt.Tick()
	assert.False(t, f.bank.On(1))
}

func TestOneDispatchPerTick(t *testing.T) {
	f := newLoopFixture(t, nil)

	f.rt.ingest([]byte("PING\nPING\n"))
	f.rt.Tick()
	assert.Equal(t, []string{"PONG"}, f.responses())

	f.rt.Tick()
	assert.Equal(t, []string{"PONG", "PONG"}, f.responses())
}

func TestOverflowSignaledAndNextLineParses(t *testing.T) {
	f := newLoopFixture(t, nil)

	f.rt.ingest([]byte(strings.Repeat("X", protocol.MaxLineLen+1)))
	assert.Equal(t, []string{"ERROR:BUFFER_OVERFLOW"}, f.responses())

	f.rt.ingest([]byte("PING\n"))
	f.rt.Tick()
	assert.Equal(t, []string{"ERROR:BUFFER_OVERFLOW", "PONG"}, f.responses())
}

func TestWatchdogFedUnderSustainedTraffic(t *testing.T) {
	f := newLoopFixture(t, nil)
	f.rt.Boot()

	for i := 0; i < 100; i++ {
		f.rt.ingest([]byte("PING\n"))
		f.rt.Tick()
		f.clock.Advance(10 * time.Millisecond)
	}

	// 1 second of fed-every-100ms plus the boot feed
	assert.GreaterOrEqual(t, f.wdt.FeedCount(), 10)
}

func TestAutoLoadAppliesSavedPatternBeforeFirstCommand(t *testing.T) {
	pattern := "10110000"
	cfg := model.DefaultPersistedConfig()
	cfg.Pattern = &pattern

	f := newLoopFixture(t, cfg)
	f.rt.Boot()

	assert.Equal(t, "10110000", f.bank.Pattern())
}

func TestAutoLoadSkipsAllZeroPattern(t *testing.T) {
	pattern := "00000000"
	cfg := model.DefaultPersistedConfig()
	cfg.Pattern = &pattern

	f := newLoopFixture(t, cfg)
	f.rt.Boot()

	assert.Equal(t, "00000000", f.bank.Pattern())
}

func TestAutoLoadDisabledLeavesBankOff(t *testing.T) {
	pattern := "11111111"
	cfg := model.DefaultPersistedConfig()
	cfg.Pattern = &pattern
	cfg.AutoLoad = false

	f := newLoopFixture(t, cfg)
	f.rt.Boot()

	assert.Equal(t, "00000000", f.bank.Pattern())
}

func TestHeartbeatTogglesAtConfiguredPeriod(t *testing.T) {
	f := newLoopFixture(t, nil)
	f.rt.Boot()

	assert.False(t, f.outputs.Active(heartbeatPin))

	f.clock.Advance(500 * time.Millisecond)
	f.rt.Tick()
	assert.True(t, f.outputs.Active(heartbeatPin))

	f.clock.Advance(500 * time.Millisecond)
	f.rt.Tick()
	assert.False(t, f.outputs.Active(heartbeatPin))
}

func TestBootBeepStopsOnSchedule(t *testing.T) {
	f := newLoopFixture(t, nil)
	f.rt.opts.BootBeep = true
	f.rt.Boot()

	playing, _ := f.tone.Playing()
	assert.True(t, playing)

	f.clock.Advance(bootBeepMillis * time.Millisecond)
	f.rt.Tick()
	playing, _ = f.tone.Playing()
	assert.False(t, playing)
}

func TestClosedInputDisablesChannelOnly(t *testing.T) {
	f := newLoopFixture(t, nil)

	close(f.input)
	f.rt.drain()
	assert.Nil(t, f.rt.input)

	// loop keeps ticking without input
	f.rt.Boot()
	f.clock.Advance(100 * time.Millisecond)
	f.rt.Tick()
	assert.GreaterOrEqual(t, f.wdt.FeedCount(), 1)
}

func TestCommandErrorsAreIsolatedPerDispatch(t *testing.T) {
	f := newLoopFixture(t, nil)

	f.rt.ingest([]byte("FOO\nON 1\n"))
	f.rt.Tick()
	f.rt.Tick()
	assert.Equal(t, []string{"ERROR:INVALID_COMMAND", "OK"}, f.responses())
	assert.True(t, f.bank.On(1))
}
