package common

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	_ "github.com/joho/godotenv/autoload" // Load .env file automatically
	"github.com/pkg/errors"
)

// Config is read from OTPKEEPER_* environment variables, or a .env file in
// the working directory.
type Config struct {
	Directory string        `env:"OTPKEEPER_DIR"`
	LogLevel  string        `env:"OTPKEEPER_LOG_LEVEL" envDefault:"warn"`
	Skew      uint          `env:"OTPKEEPER_SKEW" envDefault:"1"`
	Refresh   time.Duration `env:"OTPKEEPER_REFRESH" envDefault:"1s"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "invalid configuration")
	}
	if cfg.Directory == "" {
		cfg.Directory = DefaultDirectory()
	}
	if cfg.Refresh <= 0 {
		return Config{}, errors.Errorf("invalid configuration: OTPKEEPER_REFRESH must be positive, got %s", cfg.Refresh)
	}
	if _, err := ParseLevel(cfg.LogLevel); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DatabasePath is the account database inside the configured directory.
func (c Config) DatabasePath() string {
	return filepath.Join(c.Directory, "accounts")
}

func ParseLevel(level string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return 0, errors.Wrapf(err, "invalid log level %q", level)
	}
	return l, nil
}

// NewLogger writes text logs to stderr. Unknown levels fall back to warn.
func NewLogger(level string) *slog.Logger {
	l, err := ParseLevel(level)
	if err != nil {
		l = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}
