// Package device composes the relay runtime: one cooperative loop that
// interleaves line-based command handling with the scheduled actions
// (pulse shutoffs, tone stops, heartbeat, watchdog feeds) without blocking.
package device

import (
	"context"
	"io"
	gort "runtime"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/picorelay/relayd/internal/buzzer"
	"github.com/picorelay/relayd/internal/hal"
	"github.com/picorelay/relayd/internal/metrics"
	"github.com/picorelay/relayd/internal/model"
	"github.com/picorelay/relayd/internal/protocol"
	"github.com/picorelay/relayd/internal/relay"
	"github.com/picorelay/relayd/internal/sched"
)

// gcEveryNCommands is the cadence of the bounded memory-reclamation pass.
const gcEveryNCommands = 10

// bootBeepMillis is the ready chirp played once boot completes.
const bootBeepMillis = 150

// Auditor records dispatched commands. Implementations must never block the
// loop on failure; db.Recorder satisfies this.
type Auditor interface {
	RecordCommand(receivedAt time.Time, line, response string, latency time.Duration)
}

// Options carries the loop timing knobs from config.
type Options struct {
	TickInterval    time.Duration
	FeedPeriod      time.Duration
	HeartbeatPeriod time.Duration
	HeartbeatPin    model.GPIOPin
	BootBeep        bool
}

// Runtime owns every piece of mutable device state. All mutation happens on
// the goroutine running Run; the input pump only moves raw bytes.
type Runtime struct {
	bank     *relay.Bank
	buzz     *buzzer.Buzzer
	registry *sched.Registry
	disp     *protocol.Dispatcher
	cfg      *model.PersistedConfig

	outputs hal.OutputDriver
	wdt     hal.Watchdog
	clock   hal.Clock

	opts  Options
	asm   *protocol.Assembler
	lines []string

	input <-chan []byte
	out   io.Writer

	auditor Auditor

	heartbeatOn bool
	dispatched  int
}

func NewRuntime(
	bank *relay.Bank,
	buzz *buzzer.Buzzer,
	registry *sched.Registry,
	disp *protocol.Dispatcher,
	cfg *model.PersistedConfig,
	outputs hal.OutputDriver,
	wdt hal.Watchdog,
	clock hal.Clock,
	input <-chan []byte,
	out io.Writer,
	auditor Auditor,
	opts Options,
) *Runtime {
	return &Runtime{
		bank:     bank,
		buzz:     buzz,
		registry: registry,
		disp:     disp,
		cfg:      cfg,
		outputs:  outputs,
		wdt:      wdt,
		clock:    clock,
		input:    input,
		out:      out,
		auditor:  auditor,
		opts:     opts,
		asm:      protocol.NewAssembler(),
	}
}

// Boot runs the one-time pre-loop initialization: heartbeat pin setup,
// optional auto-load of the saved pattern, periodic action arming, and the
// ready beep. This is the only place the runtime is allowed to block.
func (r *Runtime) Boot() {
	if r.opts.HeartbeatPin.Number != 0 {
		if err := r.outputs.Configure(r.opts.HeartbeatPin); err != nil {
			log.Warn().Err(err).Msg("Heartbeat LED unavailable")
		}
	}

	if r.cfg.AutoLoad && r.cfg.Pattern != nil && *r.cfg.Pattern != "00000000" {
		if err := r.bank.SetPattern(*r.cfg.Pattern); err != nil {
			log.Warn().Err(err).Str("pattern", *r.cfg.Pattern).Msg("Auto-load failed")
		} else {
			log.Info().Str("pattern", *r.cfg.Pattern).Msg("Auto-loaded saved relay pattern")
		}
	}

	now := r.clock.Now()

	r.registry.Arm(sched.Action{
		Kind:   sched.KindWatchdogFeed,
		Due:    now,
		Period: r.opts.FeedPeriod,
		Fire:   r.feedWatchdog,
	})

	if r.opts.HeartbeatPin.Number != 0 {
		r.registry.Arm(sched.Action{
			Kind:   sched.KindHeartbeatToggle,
			Due:    now.Add(r.opts.HeartbeatPeriod),
			Period: r.opts.HeartbeatPeriod,
			Fire:   r.toggleHeartbeat,
		})
	}

	if r.opts.BootBeep {
		if err := r.buzz.On(); err == nil {
			r.registry.Arm(sched.Action{
				Kind: sched.KindBuzzerStop,
				Due:  now.Add(bootBeepMillis * time.Millisecond),
				Fire: func(time.Time) { r.buzz.Off() },
			})
		}
	}

	log.Info().
		Str("board", model.BoardName).
		Str("firmware", model.FirmwareVersion).
		Msg("Relay runtime ready")
}

// Run is the main loop. It runs until ctx is canceled; on the device the
// context never fires and the hardware watchdog is the only way out of a
// wedged loop.
func (r *Runtime) Run(ctx context.Context) {
	ticker := time.NewTicker(r.opts.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-r.input:
			if !ok {
				// transport gone; keep ticking so the watchdog stays fed
				r.input = nil
				continue
			}
			r.ingest(data)
			r.drain()
		case <-ticker.C:
		}

		r.Tick()
	}
}

// Tick performs one loop iteration: dispatch at most one completed line,
// then fire every due scheduled action. Exported so tests can drive the
// loop deterministically with a fake clock.
func (r *Runtime) Tick() {
	start := r.clock.Now()

	if len(r.lines) > 0 {
		line := r.lines[0]
		r.lines = r.lines[1:]
		r.dispatch(line)
	}

	r.registry.FireDue()

	metrics.Timing("loop.tick", r.clock.Now().Sub(start))
}

// drain empties whatever the pump has buffered without ever waiting.
func (r *Runtime) drain() {
	for {
		select {
		case data, ok := <-r.input:
			if !ok {
				r.input = nil
				return
			}
			r.ingest(data)
		default:
			return
		}
	}
}

func (r *Runtime) ingest(data []byte) {
	for _, ev := range r.asm.Feed(data) {
		if ev.Overflow {
			log.Warn().Msg("Command line overflow, buffer discarded")
			r.respond(protocol.ErrorResponse(protocol.CodeBufferOverflow))
			metrics.Count("commands.errors", 1, "code:BUFFER_OVERFLOW")
			continue
		}
		r.lines = append(r.lines, ev.Line)
	}
}

func (r *Runtime) dispatch(line string) {
	received := r.clock.Now()
	response := r.disp.Dispatch(line)
	latency := r.clock.Now().Sub(received)

	r.respond(response)

	metrics.Count("commands.dispatched", 1)
	if strings.HasPrefix(response, "ERROR:") {
		metrics.Count("commands.errors", 1)
	}
	metrics.Gauge("relay.active", float64(strings.Count(r.bank.Pattern(), "1")))

	if r.auditor != nil {
		r.auditor.RecordCommand(received, line, response, latency)
	}

	r.dispatched++
	if r.dispatched%gcEveryNCommands == 0 {
		gort.GC()
	}
}

func (r *Runtime) respond(response string) {
	if _, err := io.WriteString(r.out, response+"\n"); err != nil {
		log.Warn().Err(err).Msg("Failed to write response")
	}
}

func (r *Runtime) feedWatchdog(time.Time) {
	if err := r.wdt.Feed(); err != nil {
		log.Error().Err(err).Msg("Watchdog feed failed")
		return
	}
	metrics.Count("watchdog.feeds", 1)
}

func (r *Runtime) toggleHeartbeat(time.Time) {
	r.heartbeatOn = !r.heartbeatOn
	if err := r.outputs.Set(r.opts.HeartbeatPin, r.heartbeatOn); err != nil {
		log.Warn().Err(err).Msg("Heartbeat toggle failed")
	}
}

// Pump copies reader bytes into a channel the loop can drain without
// blocking. It returns once the reader fails or closes.
func Pump(reader io.Reader, ch chan<- []byte) {
	buf := make([]byte, 256)
	for {
		n, err := reader.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			ch <- chunk
		}
		if err != nil {
			return
		}
	}
}
