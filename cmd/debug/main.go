package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/picorelay/relayd/db"
	"github.com/picorelay/relayd/internal/config"
	"github.com/picorelay/relayd/internal/pinctrl"
	"github.com/picorelay/relayd/internal/store"
)

func main() {
	DebugCLI()
}

func DebugCLI() {
	var dbPath, statePath, configPath, command string
	var limit, keep int
	flag.StringVar(&dbPath, "db", "data/relayd.db", "Path to the command audit database")
	flag.StringVar(&statePath, "state-file", "data/relay_config.json", "Path to the persisted relay config")
	flag.StringVar(&configPath, "config-file", "config.json", "Path to the board config file")
	flag.StringVar(&command, "cmd", "", "Command to run: tail, stats, show-config, pins, prune")
	flag.IntVar(&limit, "limit", 20, "Number of audit rows for tail")
	flag.IntVar(&keep, "keep", 10000, "Number of audit rows to keep for prune")
	help := flag.Bool("help", false, "Show help")
	flag.Parse()

	if *help || command == "" {
		fmt.Println("\nUsage of relayd-debug:")
		fmt.Println("  -db string\tPath to the command audit database (default 'data/relayd.db')")
		fmt.Println("  -state-file string\tPath to the persisted relay config (default 'data/relay_config.json')")
		fmt.Println("  -config-file string\tPath to the board config file (default 'config.json')")
		fmt.Println("  -cmd string\tCommand to run: tail, stats, show-config, pins, prune")
		fmt.Println("  -limit int\tNumber of audit rows for tail (default 20)")
		fmt.Println("  -keep int\tNumber of audit rows to keep for prune (default 10000)")
		fmt.Println("  -help\tShow this help message")
		os.Exit(0)
	}

	var err error
	switch command {
	case "tail":
		err = tailCommands(dbPath, limit)
	case "stats":
		err = showStats(dbPath)
	case "show-config":
		err = showConfig(statePath)
	case "pins":
		err = showPins(configPath)
	case "prune":
		err = pruneCommands(dbPath, keep)
	default:
		fmt.Println("Invalid command")
		os.Exit(1)
	}

	if err != nil {
		fmt.Printf("Command %s failed: %v\n", command, err)
		os.Exit(1)
	}
}

func tailCommands(dbPath string, limit int) error {
	conn, err := db.Open(dbPath)
	if err != nil {
		return err
	}
	defer conn.Close()

	events, err := db.GetRecentCommands(conn, limit)
	if err != nil {
		return err
	}
	for _, ev := range events {
		fmt.Printf("%s  %-24q -> %-24q  %dus\n", ev.ReceivedAt.Format("2006-01-02 15:04:05.000"), ev.Line, ev.Response, ev.LatencyMicros)
	}
	return nil
}

func showStats(dbPath string) error {
	conn, err := db.Open(dbPath)
	if err != nil {
		return err
	}
	defer conn.Close()

	total, errors, err := db.GetCommandStats(conn)
	if err != nil {
		return err
	}
	fmt.Printf("commands: %d\nerrors:   %d\n", total, errors)
	return nil
}

func showConfig(statePath string) error {
	cfg := store.New(statePath).Load()
	out, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// showPins reads the live logic level of every configured pin straight from
// the hardware, bypassing the daemon.
func showPins(configPath string) error {
	file, err := os.Open(configPath)
	if err != nil {
		return err
	}
	defer file.Close()

	var board struct {
		GPIO config.GPIO `json:"gpio"`
	}
	if err := json.NewDecoder(file).Decode(&board); err != nil {
		return err
	}

	pins := []struct {
		label string
		pin   *int
	}{
		{"relay_1", board.GPIO.Relay1},
		{"relay_2", board.GPIO.Relay2},
		{"relay_3", board.GPIO.Relay3},
		{"relay_4", board.GPIO.Relay4},
		{"relay_5", board.GPIO.Relay5},
		{"relay_6", board.GPIO.Relay6},
		{"relay_7", board.GPIO.Relay7},
		{"relay_8", board.GPIO.Relay8},
		{"buzzer", board.GPIO.BuzzerPin},
		{"heartbeat_led", board.GPIO.HeartbeatPin},
	}
	for _, p := range pins {
		if p.pin == nil {
			fmt.Printf("%-14s unset\n", p.label)
			continue
		}
		level, err := pinctrl.ReadLevel(*p.pin)
		if err != nil {
			fmt.Printf("%-14s GPIO%-3d read failed: %v\n", p.label, *p.pin, err)
			continue
		}
		state := "low"
		if level {
			state = "high"
		}
		fmt.Printf("%-14s GPIO%-3d %s\n", p.label, *p.pin, state)
	}
	return nil
}

func pruneCommands(dbPath string, keep int) error {
	conn, err := db.Open(dbPath)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := db.PruneCommandLog(conn, keep); err != nil {
		return err
	}
	fmt.Printf("command log pruned to the most recent %d rows\n", keep)
	return nil
}
