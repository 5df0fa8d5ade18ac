package shutdown

import (
	"os"

	"github.com/rs/zerolog/log"

	"github.com/picorelay/relayd/internal/buzzer"
	"github.com/picorelay/relayd/internal/relay"
)

// Shutdown drops every output before the process exits so a fatal error can
// never leave relays latched on.
func Shutdown(bank *relay.Bank, buzz *buzzer.Buzzer) {
	if bank != nil {
		if err := bank.SetAll(false); err != nil {
			log.Error().Err(err).Msg("Failed to drop relays on shutdown")
		}
	}
	if buzz != nil {
		buzz.Off()
	}
	log.Info().Msg("All outputs deactivated")
	os.Exit(0)
}

func ShutdownWithError(err error, msg string, bank *relay.Bank, buzz *buzzer.Buzzer) {
	log.Error().Err(err).Msg(msg)
	Shutdown(bank, buzz)
}
