package logging

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/Hunga9k50doker/spheron/internal/config"
)

// New constructs a slog.Logger configured according to the provided settings.
func New(cfg config.LoggingConfig) (*slog.Logger, error) {
	handler, err := buildHandler(cfg)
	if err != nil {
		return nil, err
	}

	return slog.New(handler), nil
}

func buildHandler(cfg config.LoggingConfig) (slog.Handler, error) {
	opts := &slog.HandlerOptions{Level: cfg.Level}

	switch cfg.Format {
	case "json":
		return slog.NewJSONHandler(os.Stdout, opts), nil
	case "text":
		return slog.NewTextHandler(os.Stdout, opts), nil
	default:
		return nil, fmt.Errorf("unsupported log format: %s", cfg.Format)
	}
}

// ForAccount returns a child logger carrying the account context every
// per-account line is expected to have. The observed egress IP is attached
// later, once resolved.
func ForAccount(base *slog.Logger, key string, index int) *slog.Logger {
	return base.With("account", key, "index", index+1)
}
