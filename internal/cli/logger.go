package cli

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger configures the global logger and returns it. Unknown levels fall
// back to info.
func InitLogger(cfg LogConfig, w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	zerolog.TimeFieldFormat = time.RFC3339

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	if cfg.Format == "json" {
		log.Logger = zerolog.New(w).With().Timestamp().Logger().Level(level)
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: w}).Level(level)
	}
	return log.Logger
}
