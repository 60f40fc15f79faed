package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New возвращает логгер: локально — читаемый консольный вывод,
// в остальных окружениях — JSON в stdout.
func New(appEnv string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.DurationFieldInteger = true

	if appEnv == "local" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "2006-01-02 15:04:05 MST",
		}
		return zerolog.New(output).With().Timestamp().Logger()
	}

	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}
