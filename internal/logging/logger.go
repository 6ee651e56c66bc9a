package logging

import (
	"io"
	"os"

	"github.com/lieberdev/hostd/internal/config"
	"github.com/natefinch/lumberjack"
	"github.com/rs/zerolog"
)

var globalLogger = zerolog.New(os.Stderr).With().Timestamp().Logger()

// InitGlobalLogger points the global logger at stderr or, when the config
// asks for it, at a rotating log file. Debug mode writes to both.
func InitGlobalLogger(debug bool, cfg *config.Config) {
	var output io.Writer = os.Stderr

	if cfg != nil && cfg.Logging.LogToFile {
		file := &lumberjack.Logger{
			Filename:   cfg.Logging.LogFilePath,
			MaxSize:    cfg.Logging.MaxSize, // megabytes
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAge:     cfg.Logging.MaxAge, // days
			Compress:   cfg.Logging.Compress,
		}
		if debug {
			output = io.MultiWriter(file, os.Stderr)
		} else {
			output = file
			stderrLogger := NewLogger(false, os.Stderr)
			stderrLogger.Info().Str("path", cfg.Logging.LogFilePath).Msg("Logging to file only")
		}
	}

	globalLogger = NewLogger(debug, output)
}

func NewLogger(debug bool, output io.Writer) zerolog.Logger {
	if output == nil {
		output = os.Stderr
	}

	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}

	return zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Caller().
		Logger()
}

func Debug(msg string) {
	globalLogger.Debug().Msg(msg)
}

func Info(msg string) {
	globalLogger.Info().Msg(msg)
}

func Warn(msg string) {
	globalLogger.Warn().Msg(msg)
}

// WithComponent returns a child of the global logger tagged with component.
// Callers attach structured fields to its events directly.
func WithComponent(component string) zerolog.Logger {
	return globalLogger.With().Str("component", component).Logger()
}
