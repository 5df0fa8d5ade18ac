package hal

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/picorelay/relayd/internal/model"
	"github.com/picorelay/relayd/internal/pinctrl"
)

// PinctrlOutputs drives output pins through the Raspberry Pi pinctrl binary.
type PinctrlOutputs struct {
	// SafeMode disables all pin writes system-wide.
	SafeMode bool
}

func (d *PinctrlOutputs) Configure(pin model.GPIOPin) error {
	return d.Set(pin, false)
}

func (d *PinctrlOutputs) Set(pin model.GPIOPin, active bool) error {
	if d.SafeMode {
		return nil
	}

	drive := "dl"
	if pin.ActiveHigh == active {
		drive = "dh"
	}
	if err := pinctrl.SetPin(pin.Number, "op", "pn", drive); err != nil {
		return fmt.Errorf("failed to set pin %d: %w", pin.Number, err)
	}
	return nil
}

// SysfsPWM drives the buzzer through the Linux sysfs PWM interface.
type SysfsPWM struct {
	// Chip and Channel select the PWM line, e.g. pwmchip0 channel 0.
	Chip    int
	Channel int

	exported bool
}

func (p *SysfsPWM) chipDir() string {
	return fmt.Sprintf("/sys/class/pwm/pwmchip%d", p.Chip)
}

func (p *SysfsPWM) channelDir() string {
	return filepath.Join(p.chipDir(), fmt.Sprintf("pwm%d", p.Channel))
}

func (p *SysfsPWM) export() error {
	if p.exported {
		return nil
	}
	if _, err := os.Stat(p.channelDir()); err == nil {
		p.exported = true
		return nil
	}
	if err := writeSysfs(filepath.Join(p.chipDir(), "export"), fmt.Sprint(p.Channel)); err != nil {
		return fmt.Errorf("failed to export pwm channel %d: %w", p.Channel, err)
	}
	p.exported = true
	return nil
}

func (p *SysfsPWM) Start(freqHz int) error {
	if err := p.export(); err != nil {
		return err
	}

	periodNs := int64(1e9) / int64(freqHz)
	dir := p.channelDir()

	// Duty must never exceed period, so zero it before shrinking the period.
	if err := writeSysfs(filepath.Join(dir, "duty_cycle"), "0"); err != nil {
		return err
	}
	if err := writeSysfs(filepath.Join(dir, "period"), fmt.Sprint(periodNs)); err != nil {
		return err
	}
	// 50% duty square wave
	if err := writeSysfs(filepath.Join(dir, "duty_cycle"), fmt.Sprint(periodNs/2)); err != nil {
		return err
	}
	return writeSysfs(filepath.Join(dir, "enable"), "1")
}

func (p *SysfsPWM) Stop() error {
	if !p.exported {
		return nil
	}
	return writeSysfs(filepath.Join(p.channelDir(), "enable"), "0")
}

func writeSysfs(path, value string) error {
	if err := os.WriteFile(path, []byte(value), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// DevWatchdog feeds the Linux watchdog device. Opening the device arms the
// hardware timer; the device node is kept open for the process lifetime.
type DevWatchdog struct {
	file *os.File
}

func OpenDevWatchdog(path string) (*DevWatchdog, error) {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open watchdog device %s: %w", path, err)
	}
	log.Info().Str("device", path).Msg("Hardware watchdog armed")
	return &DevWatchdog{file: f}, nil
}

func (w *DevWatchdog) Feed() error {
	// Any write keeps the timer from expiring.
	if _, err := w.file.Write([]byte{'f'}); err != nil {
		return fmt.Errorf("failed to feed watchdog: %w", err)
	}
	return nil
}

// CPUInfoID derives the board UID from the SoC serial in /proc/cpuinfo.
type CPUInfoID struct {
	uid string
}

func NewCPUInfoID() *CPUInfoID {
	id := &CPUInfoID{uid: readCPUSerial("/proc/cpuinfo")}
	return id
}

func (c *CPUInfoID) UID() string { return c.uid }

func readCPUSerial(path string) string {
	const fallback = "0000000000000000"

	data, err := os.ReadFile(path)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read cpuinfo, using fallback UID")
		return fallback
	}

	for _, line := range strings.Split(string(data), "\n") {
		if !strings.HasPrefix(line, "Serial") {
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		serial := strings.ToUpper(strings.TrimSpace(parts[1]))
		if len(serial) > 16 {
			serial = serial[len(serial)-16:]
		}
		for len(serial) < 16 {
			serial = "0" + serial
		}
		return serial
	}

	log.Warn().Msg("No serial found in cpuinfo, using fallback UID")
	return fallback
}
