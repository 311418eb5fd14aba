// Package organizer parses organizer command flags and launches the
// organizer runtime.
package organizer

import (
	"context"
	"flag"
	"log/slog"
	"time"

	"github.com/inkwell-app/inkwell/internal/organizer/app"
	entrypoint "github.com/inkwell-app/inkwell/internal/platform/cmd"
)

// Config holds organizer command configuration.
type Config struct {
	EventsDBPath      string        `env:"INKWELL_EVENTS_DB_PATH" envDefault:"data/events.db"`
	ProjectionsDBPath string        `env:"INKWELL_PROJECTIONS_DB_PATH" envDefault:"data/projections.db"`
	CatchUpInterval   time.Duration `env:"INKWELL_CATCHUP_INTERVAL" envDefault:"5s"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.EventsDBPath, "events-db", cfg.EventsDBPath, "The event journal SQLite database path")
	fs.StringVar(&cfg.ProjectionsDBPath, "projections-db", cfg.ProjectionsDBPath, "The projections SQLite database path")
	fs.DurationVar(&cfg.CatchUpInterval, "catchup-interval", cfg.CatchUpInterval, "Interval between periodic projection catch-ups")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the organizer runtime.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceOrganizer, func(ctx context.Context) error {
		return app.Run(ctx, app.RuntimeConfig{
			EventsDBPath:      cfg.EventsDBPath,
			ProjectionsDBPath: cfg.ProjectionsDBPath,
			CatchUpInterval:   cfg.CatchUpInterval,
		}, slog.Default())
	})
}
