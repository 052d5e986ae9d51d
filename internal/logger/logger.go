package logger

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the global logger instance
var Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

// Config selects level, format and destination.
type Config struct {
	Level      string `yaml:"level" env:"LEVEL" env-default:"info"`
	Format     string `yaml:"format" env:"FORMAT" env-default:"json"`   // json|console
	Output     string `yaml:"output" env:"OUTPUT" env-default:"stdout"` // stdout|file
	FilePath   string `yaml:"file_path" env:"FILE_PATH"`
	MaxSizeMB  int    `yaml:"max_size_mb" env:"MAX_SIZE_MB" env-default:"100"`
	MaxBackups int    `yaml:"max_backups" env:"MAX_BACKUPS" env-default:"3"`
	MaxAgeDays int    `yaml:"max_age_days" env:"MAX_AGE_DAYS" env-default:"7"`
	Compress   bool   `yaml:"compress" env:"COMPRESS" env-default:"true"`
}

// Init initializes the global logger
func Init(cfg Config, service string) {
	logLevel, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	out := writer(cfg)
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	Logger = zerolog.New(out).
		With().
		Timestamp().
		Str("service", service).
		Logger()
	zlog.Logger = Logger

	Logger.Info().
		Str("level", logLevel.String()).
		Str("output", cfg.Output).
		Msg("logger initialized")
}

func writer(cfg Config) io.Writer {
	if cfg.Output != "file" || cfg.FilePath == "" {
		return os.Stdout
	}
	if dir := filepath.Dir(cfg.FilePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return os.Stdout
		}
	}
	return &lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
}

// WithComponent returns a logger with a component field
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}
