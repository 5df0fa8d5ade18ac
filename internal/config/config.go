package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/rs/zerolog"
)

type GPIO struct {
	// relay outputs, board order
	Relay1 *int `json:"relay_1"`
	Relay2 *int `json:"relay_2"`
	Relay3 *int `json:"relay_3"`
	Relay4 *int `json:"relay_4"`
	Relay5 *int `json:"relay_5"`
	Relay6 *int `json:"relay_6"`
	Relay7 *int `json:"relay_7"`
	Relay8 *int `json:"relay_8"`

	// peripherals
	BuzzerPin    *int `json:"buzzer"`
	HeartbeatPin *int `json:"heartbeat_led"`
}

type Config struct {
	ConfigFile string
	StateFile  string
	DBPath     string
	LogFile    string
	LogLevel   zerolog.Level

	// Transport endpoint. Empty ListenAddr means serve stdin/stdout.
	ListenAddr string `json:"listen_addr"`

	SafeMode        bool `json:"safe_mode"`
	RelayActiveHigh bool `json:"relay_active_high"`

	// PWM line driving the buzzer (sysfs pwmchip/channel)
	PWMChip    int `json:"pwm_chip"`
	PWMChannel int `json:"pwm_channel"`

	WatchdogDevice   string `json:"watchdog_device"`
	WatchdogMillis   int    `json:"watchdog_timeout_ms"`
	FeedPeriodMillis int    `json:"watchdog_feed_ms"`
	HeartbeatMillis  int    `json:"heartbeat_ms"`
	TickMillis       int    `json:"tick_ms"`

	EnableDatadog bool     `json:"enable_datadog"`
	DDAgentAddr   string   `json:"dd_agent_addr"`
	DDNamespace   string   `json:"dd_namespace"`
	DDTags        []string `json:"dd_tags"`

	GPIO GPIO `json:"gpio"`
}

func Load() Config {
	var cfg Config
	var logLevel string

	flag.StringVar(&cfg.ConfigFile, "config-file", "config.json", "Path to board config file")
	flag.StringVar(&cfg.StateFile, "state-file", "data/relay_config.json", "Path to persisted relay config file")
	flag.StringVar(&cfg.DBPath, "db", "data/relayd.db", "Path to the command audit database")
	flag.StringVar(&cfg.LogFile, "log-file", "/var/log/relayd.log", "Path to log file")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	cfg.LogLevel = parseLogLevel(logLevel)

	file, err := os.Open(cfg.ConfigFile)
	if err != nil {
		panic("Failed to load config file: " + err.Error())
	}
	defer file.Close()

	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		panic("Failed to parse config file: " + err.Error())
	}

	cfg.applyDefaults()
	cfg.validate()
	return cfg
}

func (cfg *Config) applyDefaults() {
	if cfg.WatchdogMillis == 0 {
		cfg.WatchdogMillis = 8000
	}
	if cfg.FeedPeriodMillis == 0 {
		cfg.FeedPeriodMillis = 100
	}
	if cfg.HeartbeatMillis == 0 {
		cfg.HeartbeatMillis = 500
	}
	if cfg.TickMillis == 0 {
		cfg.TickMillis = 5
	}
}

// RelayPins returns the configured relay output pins in channel order.
// Only valid after validate() has run.
func (cfg *Config) RelayPins() [8]int {
	g := cfg.GPIO
	return [8]int{
		*g.Relay1, *g.Relay2, *g.Relay3, *g.Relay4,
		*g.Relay5, *g.Relay6, *g.Relay7, *g.Relay8,
	}
}

func parseLogLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (cfg *Config) validate() {
	var (
		missingFields []string
		usedPins      = map[int]string{}
		conflicts     []string
	)

	v := reflect.ValueOf(cfg.GPIO)
	t := reflect.TypeOf(cfg.GPIO)

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldName := t.Field(i).Tag.Get("json")

		if field.IsNil() {
			missingFields = append(missingFields, "gpio."+fieldName)
			continue
		}

		pin := field.Elem().Int()
		if other, exists := usedPins[int(pin)]; exists {
			conflicts = append(conflicts, fmt.Sprintf("gpio.%s and gpio.%s both use pin %d", fieldName, other, pin))
		} else {
			usedPins[int(pin)] = fieldName
		}
	}

	if len(missingFields) > 0 {
		panic("Missing required GPIO config fields: " + strings.Join(missingFields, ", "))
	}
	if len(conflicts) > 0 {
		panic("Conflicting GPIO pins: " + strings.Join(conflicts, ", "))
	}

	// Timed actions must stay well inside half the watchdog window so a
	// pending pulse or tone can never outlive a starved feed.
	if cfg.WatchdogMillis < 2000 {
		panic(fmt.Sprintf("watchdog_timeout_ms %d is below the 2000ms floor", cfg.WatchdogMillis))
	}
	if cfg.FeedPeriodMillis*4 > cfg.WatchdogMillis {
		panic(fmt.Sprintf("watchdog_feed_ms %d is too close to watchdog_timeout_ms %d", cfg.FeedPeriodMillis, cfg.WatchdogMillis))
	}
}
