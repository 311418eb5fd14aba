// Package app wires the organizer runtime: storage, projections, the
// command service, and the background propagation worker.
package app

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/inkwell-app/inkwell/internal/organizer/projection"
	"github.com/inkwell-app/inkwell/internal/organizer/repository"
	"github.com/inkwell-app/inkwell/internal/organizer/service"
	"github.com/inkwell-app/inkwell/internal/organizer/storage/sqlite"
	"github.com/inkwell-app/inkwell/internal/organizer/tagging"
)

// RuntimeConfig controls organizer startup and background behavior.
type RuntimeConfig struct {
	EventsDBPath      string
	ProjectionsDBPath string
	CatchUpInterval   time.Duration
}

const (
	defaultEventsDB        = "data/events.db"
	defaultProjectionsDB   = "data/projections.db"
	defaultCatchUpInterval = 5 * time.Second
)

// Runtime holds the assembled organizer components.
type Runtime struct {
	Service      *service.Service
	Repo         *repository.Repository
	Orchestrator *projection.Orchestrator
	Propagator   *tagging.Propagator
	Events       *sqlite.Store
	Projections  *sqlite.Store
}

// Open assembles a runtime from configuration. The caller owns Close.
func Open(cfg RuntimeConfig, logger *slog.Logger) (*Runtime, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(cfg.EventsDBPath) == "" {
		cfg.EventsDBPath = defaultEventsDB
	}
	if strings.TrimSpace(cfg.ProjectionsDBPath) == "" {
		cfg.ProjectionsDBPath = defaultProjectionsDB
	}

	for _, path := range []string{cfg.EventsDBPath, cfg.ProjectionsDBPath} {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create storage dir: %w", err)
			}
		}
	}

	events, err := sqlite.OpenEvents(cfg.EventsDBPath)
	if err != nil {
		return nil, fmt.Errorf("open event store: %w", err)
	}
	projections, err := sqlite.OpenProjections(cfg.ProjectionsDBPath)
	if err != nil {
		_ = events.Close()
		return nil, fmt.Errorf("open projection store: %w", err)
	}

	repo := repository.New(events)
	orchestrator := projection.NewOrchestrator(events, projections, logger)
	propagator := tagging.NewPropagator(repo, projections, orchestrator, nil, logger)

	return &Runtime{
		Service:      service.New(repo, projections, orchestrator, propagator, logger),
		Repo:         repo,
		Orchestrator: orchestrator,
		Propagator:   propagator,
		Events:       events,
		Projections:  projections,
	}, nil
}

// Close releases the runtime's storage.
func (r *Runtime) Close() {
	if r == nil {
		return
	}
	if err := r.Projections.Close(); err != nil {
		log.Printf("close projection store: %v", err)
	}
	if err := r.Events.Close(); err != nil {
		log.Printf("close event store: %v", err)
	}
}

// Run starts the organizer runtime and blocks until ctx is cancelled: an
// initial projection catch-up, the propagation worker, and a periodic
// catch-up ticker that picks up writes from other processes.
func Run(ctx context.Context, cfg RuntimeConfig, logger *slog.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.CatchUpInterval <= 0 {
		cfg.CatchUpInterval = defaultCatchUpInterval
	}

	runtime, err := Open(cfg, logger)
	if err != nil {
		return err
	}
	defer runtime.Close()

	if err := runtime.Orchestrator.CatchUp(ctx); err != nil {
		return fmt.Errorf("initial catch-up: %w", err)
	}

	workerDone := make(chan error, 1)
	go func() {
		workerDone <- runtime.Propagator.Run(ctx)
	}()

	logger.Info("organizer runtime started",
		"events_db", cfg.EventsDBPath,
		"projections_db", cfg.ProjectionsDBPath)

	ticker := time.NewTicker(cfg.CatchUpInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			<-workerDone
			logger.Info("organizer runtime stopped")
			return nil
		case <-ticker.C:
			if err := runtime.Orchestrator.CatchUp(ctx); err != nil && ctx.Err() == nil {
				logger.Warn("periodic catch-up failed", "error", err)
			}
		}
	}
}
