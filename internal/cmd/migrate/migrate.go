// Package migrate parses migrate command flags and imports a legacy
// organizer export into the event journal.
package migrate

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/inkwell-app/inkwell/internal/organizer/app"
	organizermigrate "github.com/inkwell-app/inkwell/internal/organizer/migrate"
	entrypoint "github.com/inkwell-app/inkwell/internal/platform/cmd"
)

// Config holds migrate command configuration.
type Config struct {
	EventsDBPath      string `env:"INKWELL_EVENTS_DB_PATH" envDefault:"data/events.db"`
	ProjectionsDBPath string `env:"INKWELL_PROJECTIONS_DB_PATH" envDefault:"data/projections.db"`

	InputPath string
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.EventsDBPath, "events-db", cfg.EventsDBPath, "The event journal SQLite database path")
	fs.StringVar(&cfg.ProjectionsDBPath, "projections-db", cfg.ProjectionsDBPath, "The projections SQLite database path")
	fs.StringVar(&cfg.InputPath, "input", "", "Path to the legacy JSON export")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run imports the legacy export.
func Run(ctx context.Context, cfg Config) error {
	if cfg.InputPath == "" {
		return fmt.Errorf("an -input path is required")
	}
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceMigrate, func(ctx context.Context) error {
		logger := slog.Default()

		file, err := os.Open(cfg.InputPath)
		if err != nil {
			return fmt.Errorf("open legacy export: %w", err)
		}
		defer file.Close()

		data, err := organizermigrate.Load(file)
		if err != nil {
			return err
		}

		runtime, err := app.Open(app.RuntimeConfig{
			EventsDBPath:      cfg.EventsDBPath,
			ProjectionsDBPath: cfg.ProjectionsDBPath,
		}, logger)
		if err != nil {
			return err
		}
		defer runtime.Close()

		importer := organizermigrate.NewImporter(runtime.Repo, runtime.Orchestrator, logger)
		result, err := importer.Import(ctx, data)
		if err != nil {
			return err
		}
		logger.Info("legacy import finished",
			"categories", result.Categories,
			"notes", result.Notes,
			"tasks", result.Tasks,
			"skipped", result.Skipped)
		return nil
	})
}
