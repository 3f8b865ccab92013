package telemetry

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/isqad/syncflow/internal/config"
)

// InitLogger configures the global zerolog logger for env.
func InitLogger(env config.Environment) {
	if env.IsDevelopment() {
		log.Logger = log.Output(zerolog.NewConsoleWriter())
	}

	level := zerolog.InfoLevel
	if env.IsDevelopment() {
		level = zerolog.DebugLevel
	}

	zerolog.SetGlobalLevel(level)
}
