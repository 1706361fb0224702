// Package observability wires structured logging and crash reporting for the
// pipeline. Logging is log/slog with a text handler; unexpected errors are
// forwarded to Sentry when the feature is enabled.
package observability

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/antarctica/lantern/internal/config"
)

// Setup installs the default slog logger and, when enabled, initialises the
// Sentry client. The returned func flushes pending events and must be called
// before process exit.
func Setup(cfg *config.Config) (func(), error) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	if !cfg.Sentry.Enabled || cfg.Sentry.DSN == "" {
		return func() {}, nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.Sentry.DSN,
		Environment: cfg.Sentry.Environment,
	})
	if err != nil {
		return nil, fmt.Errorf("initialise sentry: %w", err)
	}

	slog.Debug("sentry enabled", "environment", cfg.Sentry.Environment)
	return func() { sentry.Flush(2 * time.Second) }, nil
}

// CaptureError forwards an unexpected error to Sentry when active. Callers
// are expected to log it themselves.
func CaptureError(err error) {
	if err == nil {
		return
	}
	sentry.CaptureException(err)
}
