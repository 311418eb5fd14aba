// Package maintenance parses maintenance command flags and runs one-shot
// journal and projection operations: rebuild, integrity verification, and
// status reporting.
package maintenance

import (
	"context"
	"flag"
	"fmt"
	"log/slog"

	"github.com/inkwell-app/inkwell/internal/organizer/app"
	"github.com/inkwell-app/inkwell/internal/organizer/domain/event"
	entrypoint "github.com/inkwell-app/inkwell/internal/platform/cmd"
)

// Config holds maintenance command configuration.
type Config struct {
	EventsDBPath      string `env:"INKWELL_EVENTS_DB_PATH" envDefault:"data/events.db"`
	ProjectionsDBPath string `env:"INKWELL_PROJECTIONS_DB_PATH" envDefault:"data/projections.db"`

	Rebuild bool
	Verify  bool
	Status  bool
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.EventsDBPath, "events-db", cfg.EventsDBPath, "The event journal SQLite database path")
	fs.StringVar(&cfg.ProjectionsDBPath, "projections-db", cfg.ProjectionsDBPath, "The projections SQLite database path")
	fs.BoolVar(&cfg.Rebuild, "rebuild", false, "Rebuild all projections from the journal")
	fs.BoolVar(&cfg.Verify, "verify", false, "Verify event hash chains for every aggregate")
	fs.BoolVar(&cfg.Status, "status", false, "Report projection checkpoint against the journal head")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run executes the requested maintenance operations.
func Run(ctx context.Context, cfg Config) error {
	if !cfg.Rebuild && !cfg.Verify && !cfg.Status {
		return fmt.Errorf("nothing to do: pass -rebuild, -verify, or -status")
	}
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceMaintenance, func(ctx context.Context) error {
		logger := slog.Default()
		runtime, err := app.Open(app.RuntimeConfig{
			EventsDBPath:      cfg.EventsDBPath,
			ProjectionsDBPath: cfg.ProjectionsDBPath,
		}, logger)
		if err != nil {
			return err
		}
		defer runtime.Close()

		if cfg.Verify {
			if err := verify(ctx, runtime); err != nil {
				return err
			}
			logger.Info("journal integrity verified")
		}
		if cfg.Rebuild {
			if err := runtime.Orchestrator.RebuildAll(ctx); err != nil {
				return fmt.Errorf("rebuild projections: %w", err)
			}
		}
		if cfg.Status {
			checkpoint, err := runtime.Projections.GetCheckpoint(ctx)
			if err != nil {
				return fmt.Errorf("read checkpoint: %w", err)
			}
			head, err := runtime.Events.LatestGlobalSeq(ctx)
			if err != nil {
				return fmt.Errorf("read journal head: %w", err)
			}
			logger.Info("projection status",
				"checkpoint", checkpoint,
				"journal_head", head,
				"lag", head-checkpoint)
		}
		return nil
	})
}

func verify(ctx context.Context, runtime *app.Runtime) error {
	for _, aggregateType := range []string{event.AggregateCategory, event.AggregateNote, event.AggregateTask} {
		ids, err := runtime.Events.ListAggregateIDs(ctx, aggregateType)
		if err != nil {
			return fmt.Errorf("list %s aggregates: %w", aggregateType, err)
		}
		for _, id := range ids {
			if err := runtime.Events.VerifyIntegrity(ctx, id); err != nil {
				return fmt.Errorf("verify %s: %w", id, err)
			}
		}
	}
	return nil
}
