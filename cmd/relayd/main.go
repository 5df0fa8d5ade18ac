package main

import (
	"context"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/picorelay/relayd/db"
	"github.com/picorelay/relayd/internal/buzzer"
	"github.com/picorelay/relayd/internal/config"
	"github.com/picorelay/relayd/internal/device"
	"github.com/picorelay/relayd/internal/hal"
	"github.com/picorelay/relayd/internal/logging"
	"github.com/picorelay/relayd/internal/metrics"
	"github.com/picorelay/relayd/internal/model"
	"github.com/picorelay/relayd/internal/protocol"
	"github.com/picorelay/relayd/internal/relay"
	"github.com/picorelay/relayd/internal/sched"
	"github.com/picorelay/relayd/internal/store"
	"github.com/picorelay/relayd/system/shutdown"
)

func main() {
	cfg := config.Load()
	logging.Init(cfg.LogLevel, cfg.LogFile)

	log.Info().
		Str("board", model.BoardName).
		Str("firmware", model.FirmwareVersion).
		Str("state_file", cfg.StateFile).
		Msg("Starting relay runtime")

	if cfg.SafeMode {
		log.Warn().Msg("SAFE MODE ENABLED — pin writes are disabled system-wide")
	}

	metrics.Init(metrics.Config{
		Enabled:   cfg.EnableDatadog,
		AgentAddr: cfg.DDAgentAddr,
		Namespace: cfg.DDNamespace,
		Tags:      cfg.DDTags,
	})

	outputs := &hal.PinctrlOutputs{SafeMode: cfg.SafeMode}
	clock := hal.SystemClock{}

	bank, err := relay.NewBank(cfg.RelayPins(), cfg.RelayActiveHigh, outputs)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to configure relay bank")
	}

	buzz := buzzer.New(&hal.SysfsPWM{Chip: cfg.PWMChip, Channel: cfg.PWMChannel})

	var wdt hal.Watchdog = hal.NopWatchdog{}
	if cfg.WatchdogDevice != "" {
		devWdt, err := hal.OpenDevWatchdog(cfg.WatchdogDevice)
		if err != nil {
			shutdown.ShutdownWithError(err, "Failed to arm hardware watchdog", bank, buzz)
		}
		wdt = devWdt
	}

	persisted := store.New(cfg.StateFile)
	deviceCfg := persisted.Load()

	conn, err := db.Open(cfg.DBPath)
	var auditor device.Auditor
	if err != nil {
		log.Warn().Err(err).Msg("Command audit disabled")
	} else {
		defer conn.Close()
		auditor = db.NewRecorder(conn)
	}

	registry := sched.New(clock)
	id := hal.NewCPUInfoID()
	dispatcher := protocol.NewDispatcher(bank, buzz, registry, persisted, deviceCfg, id, clock)

	input := make(chan []byte, 64)
	out := newSwitchableWriter(os.Stdout)

	runtime := device.NewRuntime(bank, buzz, registry, dispatcher, deviceCfg, outputs, wdt, clock, input, out, auditor, device.Options{
		TickInterval:    time.Duration(cfg.TickMillis) * time.Millisecond,
		FeedPeriod:      time.Duration(cfg.FeedPeriodMillis) * time.Millisecond,
		HeartbeatPeriod: time.Duration(cfg.HeartbeatMillis) * time.Millisecond,
		HeartbeatPin:    model.GPIOPin{Number: *cfg.GPIO.HeartbeatPin, ActiveHigh: true},
		BootBeep:        true,
	})

	if cfg.ListenAddr != "" {
		go serveTCP(cfg.ListenAddr, input, out)
	} else {
		go func() {
			device.Pump(os.Stdin, input)
			close(input)
		}()
	}

	runtime.Boot()
	runtime.Run(context.Background())
}

// serveTCP accepts one client at a time and pipes its bytes into the loop's
// input channel. Sessions are strictly sequential.
func serveTCP(addr string, input chan<- []byte, out *switchableWriter) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		log.Fatal().Err(err).Str("addr", addr).Msg("Failed to listen")
	}
	log.Info().Str("addr", addr).Msg("Serving relay protocol")

	for {
		conn, err := listener.Accept()
		if err != nil {
			log.Warn().Err(err).Msg("Accept failed")
			continue
		}
		log.Info().Str("remote", conn.RemoteAddr().String()).Msg("Client connected")

		out.Swap(conn)
		device.Pump(conn, input)
		out.Swap(io.Discard)
		conn.Close()
		log.Info().Str("remote", conn.RemoteAddr().String()).Msg("Client disconnected")
	}
}

// switchableWriter lets the accept goroutine retarget responses at the
// current client while the loop goroutine keeps writing.
type switchableWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func newSwitchableWriter(w io.Writer) *switchableWriter {
	return &switchableWriter{w: w}
}

func (s *switchableWriter) Swap(w io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w = w
}

func (s *switchableWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
