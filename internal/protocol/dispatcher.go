package protocol

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/picorelay/relayd/internal/buzzer"
	"github.com/picorelay/relayd/internal/hal"
	"github.com/picorelay/relayd/internal/model"
	"github.com/picorelay/relayd/internal/relay"
	"github.com/picorelay/relayd/internal/sched"
	"github.com/picorelay/relayd/internal/store"
)

const (
	// MaxPulseMillis caps PULSE, BEEP, and TONE durations.
	MaxPulseMillis = 5000

	helpText = "Commands: PING,STATUS,ON,OFF,ALL,SET,PULSE,INFO,UID,NAME,GET,BEEP,BUZZ,TONE,VERSION,HELP,SAVE,LOAD,CLEAR"
)

// Dispatcher parses one command line into verb + arguments, validates, runs
// the matching operation, and produces the response. Validation always
// precedes mutation: a rejected command never touches the bank, the buzzer,
// or the persisted config.
type Dispatcher struct {
	bank     *relay.Bank
	buzz     *buzzer.Buzzer
	registry *sched.Registry
	storage  *store.Store
	cfg      *model.PersistedConfig
	id       hal.DeviceID
	clock    hal.Clock

	commandCount int
	errorCount   int
	lastCommand  time.Time
}

func NewDispatcher(
	bank *relay.Bank,
	buzz *buzzer.Buzzer,
	registry *sched.Registry,
	storage *store.Store,
	cfg *model.PersistedConfig,
	id hal.DeviceID,
	clock hal.Clock,
) *Dispatcher {
	return &Dispatcher{
		bank:     bank,
		buzz:     buzz,
		registry: registry,
		storage:  storage,
		cfg:      cfg,
		id:       id,
		clock:    clock,
	}
}

// handler binds a verb to its argument-count contract and implementation.
// Arities lists every accepted argument count for the verb.
type handler struct {
	arities []int
	run     func(d *Dispatcher, args []string) (string, Code)
}

var verbs = map[string]handler{
	"PING":    {[]int{0}, (*Dispatcher).ping},
	"STATUS":  {[]int{0}, (*Dispatcher).status},
	"ON":      {[]int{1}, (*Dispatcher).on},
	"OFF":     {[]int{1}, (*Dispatcher).off},
	"ALL":     {[]int{1}, (*Dispatcher).all},
	"SET":     {[]int{1}, (*Dispatcher).set},
	"PULSE":   {[]int{2}, (*Dispatcher).pulse},
	"INFO":    {[]int{0}, (*Dispatcher).info},
	"UID":     {[]int{0}, (*Dispatcher).uid},
	"VERSION": {[]int{0}, (*Dispatcher).version},
	"HELP":    {[]int{0}, (*Dispatcher).help},
	"NAME":    {[]int{1, 2}, (*Dispatcher).name},
	"GET":     {[]int{2}, (*Dispatcher).getName},
	"SAVE":    {[]int{0}, (*Dispatcher).save},
	"LOAD":    {[]int{0}, (*Dispatcher).load},
	"CLEAR":   {[]int{0}, (*Dispatcher).clear},
	"BEEP":    {[]int{0, 1}, (*Dispatcher).beep},
	"BUZZ":    {[]int{1}, (*Dispatcher).buzzCmd},
	"TONE":    {[]int{2}, (*Dispatcher).tone},
}

// Dispatch processes one complete command line and returns the response
// without its terminator.
func (d *Dispatcher) Dispatch(line string) string {
	d.commandCount++
	d.lastCommand = d.clock.Now()

	fields := strings.Fields(strings.TrimSpace(line))
	if len(fields) == 0 {
		return d.fail(CodeInvalidCommand)
	}

	verb := strings.ToUpper(fields[0])
	args := fields[1:]

	h, ok := verbs[verb]
	if !ok {
		log.Debug().Str("verb", verb).Msg("Unknown command")
		return d.fail(CodeInvalidCommand)
	}

	arityOK := false
	for _, n := range h.arities {
		if len(args) == n {
			arityOK = true
			break
		}
	}
	if !arityOK {
		return d.fail(CodeInvalidParameterCount)
	}

	data, code := h.run(d, args)
	if code != "" {
		return d.fail(code)
	}
	if data == "" {
		return ResponseOK
	}
	return data
}

func (d *Dispatcher) fail(code Code) string {
	d.errorCount++
	return ErrorResponse(code)
}

// Stats reports commands processed, errors, and last command time.
func (d *Dispatcher) Stats() (commands, errors int, last time.Time) {
	return d.commandCount, d.errorCount, d.lastCommand
}

func (d *Dispatcher) ping(args []string) (string, Code) {
	return ResponsePong, ""
}

func (d *Dispatcher) status(args []string) (string, Code) {
	return d.bank.Pattern(), ""
}

func (d *Dispatcher) on(args []string) (string, Code) {
	return d.switchOne(args[0], true)
}

func (d *Dispatcher) off(args []string) (string, Code) {
	return d.switchOne(args[0], false)
}

func (d *Dispatcher) switchOne(arg string, on bool) (string, Code) {
	relayNum, err := strconv.Atoi(arg)
	if err != nil || !model.ValidRelayNumber(relayNum) {
		return "", CodeInvalidRelayNumber
	}
	if err := d.bank.Set(relayNum, on); err != nil {
		return "", CodeHardwareError
	}
	// explicit switching supersedes a pending pulse shutoff
	d.registry.Cancel(sched.KindRelayOff, relayNum)
	return "", ""
}

func (d *Dispatcher) all(args []string) (string, Code) {
	var on bool
	switch strings.ToUpper(args[0]) {
	case "ON":
		on = true
	case "OFF":
		on = false
	default:
		return "", CodeInvalidParameter
	}
	if err := d.bank.SetAll(on); err != nil {
		return "", CodeHardwareError
	}
	for i := 1; i <= model.RelayCount; i++ {
		d.registry.Cancel(sched.KindRelayOff, i)
	}
	return "", ""
}

func (d *Dispatcher) set(args []string) (string, Code) {
	pattern := args[0]
	if !model.ValidPattern(pattern) {
		return "", CodeInvalidParameter
	}
	if err := d.bank.SetPattern(pattern); err != nil {
		return "", CodeHardwareError
	}
	for i := 1; i <= model.RelayCount; i++ {
		d.registry.Cancel(sched.KindRelayOff, i)
	}
	return "", ""
}

func (d *Dispatcher) pulse(args []string) (string, Code) {
	relayNum, err := strconv.Atoi(args[0])
	if err != nil {
		return "", CodeInvalidParameter
	}
	if !model.ValidRelayNumber(relayNum) {
		return "", CodeInvalidRelayNumber
	}
	durationMs, err := strconv.Atoi(args[1])
	if err != nil || durationMs <= 0 || durationMs > MaxPulseMillis {
		return "", CodeInvalidParameter
	}

	if err := d.bank.Set(relayNum, true); err != nil {
		return "", CodeHardwareError
	}

	// replaces any prior shutoff timer for this channel
	d.registry.Arm(sched.Action{
		Kind:  sched.KindRelayOff,
		Relay: relayNum,
		Due:   d.clock.Now().Add(time.Duration(durationMs) * time.Millisecond),
		Fire: func(now time.Time) {
			if err := d.bank.Set(relayNum, false); err != nil {
				log.Error().Err(err).Int("relay", relayNum).Msg("Pulse shutoff failed")
			}
		},
	})
	return "", ""
}

func (d *Dispatcher) info(args []string) (string, Code) {
	return fmt.Sprintf("%s,%s,%dCH,UID:%s", model.BoardName, model.BoardVersion, model.RelayCount, d.id.UID()), ""
}

func (d *Dispatcher) uid(args []string) (string, Code) {
	return d.id.UID(), ""
}

func (d *Dispatcher) version(args []string) (string, Code) {
	return model.FirmwareVersion, ""
}

func (d *Dispatcher) help(args []string) (string, Code) {
	return helpText, ""
}

func (d *Dispatcher) name(args []string) (string, Code) {
	relayNum, err := strconv.Atoi(args[0])
	if err != nil || !model.ValidRelayNumber(relayNum) {
		return "", CodeInvalidRelayNumber
	}

	name := model.DefaultRelayName(relayNum) // bare NAME <relay> resets
	if len(args) == 2 {
		name = args[1]
		if len(name) > model.MaxNameLen {
			return "", CodeInvalidParameter
		}
	}

	prev := d.cfg.Names[relayNum-1]
	d.cfg.Names[relayNum-1] = name
	if err := d.storage.Save(d.cfg); err != nil {
		d.cfg.Names[relayNum-1] = prev
		log.Error().Err(err).Msg("Failed to persist relay name")
		return "", CodeSaveFailed
	}
	return "", ""
}

func (d *Dispatcher) getName(args []string) (string, Code) {
	if strings.ToUpper(args[0]) != "NAME" {
		return "", CodeInvalidParameter
	}
	relayNum, err := strconv.Atoi(args[1])
	if err != nil || !model.ValidRelayNumber(relayNum) {
		return "", CodeInvalidRelayNumber
	}
	return d.cfg.Names[relayNum-1], ""
}

func (d *Dispatcher) save(args []string) (string, Code) {
	pattern := d.bank.Pattern()
	prevPattern, prevSaved := d.cfg.Pattern, d.cfg.LastSaved

	d.cfg.Pattern = &pattern
	d.cfg.LastSaved = d.clock.Now()
	if err := d.storage.Save(d.cfg); err != nil {
		d.cfg.Pattern, d.cfg.LastSaved = prevPattern, prevSaved
		log.Error().Err(err).Msg("Failed to persist relay pattern")
		return "", CodeSaveFailed
	}
	return ResponseSaved, ""
}

func (d *Dispatcher) load(args []string) (string, Code) {
	if d.cfg.Pattern == nil {
		return "", CodeNoSavedState
	}
	if err := d.bank.SetPattern(*d.cfg.Pattern); err != nil {
		return "", CodeLoadFailed
	}
	for i := 1; i <= model.RelayCount; i++ {
		d.registry.Cancel(sched.KindRelayOff, i)
	}
	return ResponseLoaded, ""
}

func (d *Dispatcher) clear(args []string) (string, Code) {
	prevPattern, prevSaved := d.cfg.Pattern, d.cfg.LastSaved

	if err := d.storage.Clear(d.cfg); err != nil {
		d.cfg.Pattern, d.cfg.LastSaved = prevPattern, prevSaved
		log.Error().Err(err).Msg("Failed to clear saved pattern")
		return "", CodeClearFailed
	}
	return ResponseCleared, ""
}

func (d *Dispatcher) beep(args []string) (string, Code) {
	durationMs := buzzer.DefaultBeepMillis
	if len(args) == 1 {
		var err error
		durationMs, err = strconv.Atoi(args[0])
		if err != nil || durationMs <= 0 || durationMs > MaxPulseMillis {
			return "", CodeInvalidParameter
		}
	}
	return d.timedTone(buzzer.DefaultFreq, durationMs)
}

func (d *Dispatcher) buzzCmd(args []string) (string, Code) {
	switch strings.ToUpper(args[0]) {
	case "ON":
		if err := d.buzz.On(); err != nil {
			return "", CodeHardwareError
		}
		// continuous: no auto-stop
		d.registry.Cancel(sched.KindBuzzerStop, 0)
		return "", ""
	case "OFF":
		if err := d.buzz.Off(); err != nil {
			return "", CodeHardwareError
		}
		d.registry.Cancel(sched.KindBuzzerStop, 0)
		return "", ""
	default:
		return "", CodeInvalidParameter
	}
}

func (d *Dispatcher) tone(args []string) (string, Code) {
	freqHz, err := strconv.Atoi(args[0])
	if err != nil || freqHz < buzzer.MinToneFreq || freqHz > buzzer.MaxToneFreq {
		return "", CodeInvalidParameter
	}
	durationMs, err := strconv.Atoi(args[1])
	if err != nil || durationMs <= 0 || durationMs > MaxPulseMillis {
		return "", CodeInvalidParameter
	}
	return d.timedTone(freqHz, durationMs)
}

// timedTone starts a tone and arms its stop timer, replacing any pending one.
func (d *Dispatcher) timedTone(freqHz, durationMs int) (string, Code) {
	if err := d.buzz.Tone(freqHz); err != nil {
		return "", CodeHardwareError
	}
	d.registry.Arm(sched.Action{
		Kind: sched.KindBuzzerStop,
		Due:  d.clock.Now().Add(time.Duration(durationMs) * time.Millisecond),
		Fire: func(now time.Time) {
			if err := d.buzz.Off(); err != nil {
				log.Error().Err(err).Msg("Scheduled buzzer stop failed")
			}
		},
	})
	return "", ""
}
