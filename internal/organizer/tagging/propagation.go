package tagging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/inkwell-app/inkwell/internal/organizer/domain/tag"
	"github.com/inkwell-app/inkwell/internal/organizer/projection"
	"github.com/inkwell-app/inkwell/internal/organizer/repository"
	"github.com/inkwell-app/inkwell/internal/organizer/storage"
	"github.com/inkwell-app/inkwell/internal/platform/id"
)

// RunStatus is the lifecycle state of a propagation run.
type RunStatus string

const (
	// RunQueued means the run is waiting for the worker.
	RunQueued RunStatus = "queued"
	// RunPropagating means the worker is applying batches.
	RunPropagating RunStatus = "propagating"
	// RunCompleted means every descendant note was processed.
	RunCompleted RunStatus = "completed"
	// RunCancelled means the run stopped at a batch boundary after a
	// cancellation request. Already processed notes keep their tags.
	RunCancelled RunStatus = "cancelled"
	// RunFailed means the run aborted before processing any notes.
	RunFailed RunStatus = "failed"
)

// RunInfo is a point-in-time view of a propagation run.
type RunInfo struct {
	ID         string
	CategoryID string
	Status     RunStatus
	Processed  int
	Total      int
	Error      string
}

var (
	// ErrQueueFull is returned by Enqueue when the propagation queue is at
	// capacity. The caller's tag change is already committed; only the
	// downward propagation is declined.
	ErrQueueFull = errors.New("propagation queue is full")
	// ErrUnknownRun is returned for run ids the propagator has never seen.
	ErrUnknownRun = errors.New("unknown propagation run")
)

const (
	propagationQueueSize = 16
	propagationBatchSize = 10
	interBatchDelay      = 150 * time.Millisecond
	maxSaveRetries       = 3
	saveRetryBackoff     = 50 * time.Millisecond
)

type run struct {
	id         string
	categoryID string
	tags       []tag.Tag
	cancelled  atomic.Bool

	// Guarded by Propagator.mu.
	status    RunStatus
	processed int
	total     int
	err       string
}

// Propagator applies a category's tags to its descendant notes in the
// background: batched, cancellable between batches, and retried on write
// conflicts. Propagation only ever adds tags; it never removes or rewrites
// a note's existing ones.
type Propagator struct {
	repo         *repository.Repository
	projections  storage.ProjectionStore
	orchestrator *projection.Orchestrator
	notifier     Notifier
	logger       *slog.Logger

	queue chan *run
	mu    sync.Mutex
	runs  map[string]*run
}

// NewPropagator builds a propagator. notifier and logger may be nil.
func NewPropagator(repo *repository.Repository, projections storage.ProjectionStore, orchestrator *projection.Orchestrator, notifier Notifier, logger *slog.Logger) *Propagator {
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = LogNotifier{Logger: logger}
	}
	return &Propagator{
		repo:         repo,
		projections:  projections,
		orchestrator: orchestrator,
		notifier:     notifier,
		logger:       logger,
		queue:        make(chan *run, propagationQueueSize),
		runs:         make(map[string]*run),
	}
}

// Enqueue schedules a propagation of tags into the notes under categoryID
// and returns the run id. A full queue returns ErrQueueFull immediately
// rather than blocking the caller.
func (p *Propagator) Enqueue(ctx context.Context, categoryID string, tags []tag.Tag) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if p == nil || p.repo == nil {
		return "", fmt.Errorf("propagator is not configured")
	}
	runID, err := id.NewID()
	if err != nil {
		return "", fmt.Errorf("generate run id: %w", err)
	}
	r := &run{
		id:         runID,
		categoryID: categoryID,
		tags:       tag.Normalize(tags),
		status:     RunQueued,
	}
	select {
	case p.queue <- r:
	default:
		return "", ErrQueueFull
	}
	p.mu.Lock()
	p.runs[r.id] = r
	p.mu.Unlock()
	return r.id, nil
}

// Run processes queued propagations until ctx is cancelled. It is meant to
// be run in a single background goroutine.
func (p *Propagator) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case r := <-p.queue:
			p.process(ctx, r)
		}
	}
}

// Cancel requests a run to stop. The run finishes its current batch first;
// notes already processed keep their propagated tags.
func (p *Propagator) Cancel(runID string) error {
	p.mu.Lock()
	r, ok := p.runs[runID]
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("run %s: %w", runID, ErrUnknownRun)
	}
	r.cancelled.Store(true)
	return nil
}

// Status reports a run's current state.
func (p *Propagator) Status(runID string) (RunInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.runs[runID]
	if !ok {
		return RunInfo{}, fmt.Errorf("run %s: %w", runID, ErrUnknownRun)
	}
	return RunInfo{
		ID:         r.id,
		CategoryID: r.categoryID,
		Status:     r.status,
		Processed:  r.processed,
		Total:      r.total,
		Error:      r.err,
	}, nil
}

func (p *Propagator) process(ctx context.Context, r *run) {
	notes, err := p.descendantNotes(ctx, r.categoryID)
	if err != nil {
		p.update(r, func(r *run) {
			r.status = RunFailed
			r.err = err.Error()
		})
		p.notifier.ShowStatus(ctx, fmt.Sprintf("Tag propagation failed: %v", err), SeverityError, 0)
		return
	}

	p.update(r, func(r *run) {
		r.status = RunPropagating
		r.total = len(notes)
	})
	p.notifier.ShowStatus(ctx,
		fmt.Sprintf("Propagating tags to %d notes", len(notes)), SeverityInfo, 0)

	// A note inherits the effective tags of its own parent category, so a
	// note under a nested child also receives the tags of the categories
	// between it and the run's category. The trigger tags go first so their
	// display casing wins.
	query := Query{Projections: p.projections, Logger: p.logger}
	inheritedByParent := make(map[string][]tag.Tag)
	inheritedFor := func(parentID string) []tag.Tag {
		if tags, ok := inheritedByParent[parentID]; ok {
			return tags
		}
		tags := tag.Union(r.tags, query.EffectiveTags(ctx, parentID, storage.NodeCategory))
		inheritedByParent[parentID] = tags
		return tags
	}

	for start := 0; start < len(notes); start += propagationBatchSize {
		if r.cancelled.Load() || ctx.Err() != nil {
			p.finishCancelled(ctx, r)
			return
		}
		end := start + propagationBatchSize
		if end > len(notes) {
			end = len(notes)
		}
		for _, target := range notes[start:end] {
			if err := p.propagateNote(ctx, target.id, inheritedFor(target.parentID)); err != nil {
				p.logger.Warn("tag propagation skipped note",
					"run_id", r.id, "note_id", target.id, "error", err)
			}
		}
		p.update(r, func(r *run) { r.processed = end })
		if err := p.orchestrator.CatchUp(ctx); err != nil {
			p.logger.Warn("projection catch-up failed during propagation",
				"run_id", r.id, "error", err)
		}
		if end < len(notes) {
			select {
			case <-ctx.Done():
				p.finishCancelled(ctx, r)
				return
			case <-time.After(interBatchDelay):
			}
		}
	}

	p.update(r, func(r *run) { r.status = RunCompleted })
	p.notifier.ShowStatus(ctx,
		fmt.Sprintf("Tags propagated to %d notes", len(notes)), SeverityInfo, 0)
}

func (p *Propagator) finishCancelled(ctx context.Context, r *run) {
	var processed, total int
	p.update(r, func(r *run) {
		r.status = RunCancelled
		processed = r.processed
		total = r.total
	})
	p.notifier.ShowStatus(ctx,
		fmt.Sprintf("Tag propagation cancelled after %d of %d notes", processed, total),
		SeverityWarning, 0)
}

// propagateNote merges the inherited tags into one note's tag set. On a
// write conflict the note is reloaded and retried with backoff; the merge
// is recomputed each attempt so a concurrent manual edit is preserved.
func (p *Propagator) propagateNote(ctx context.Context, noteID string, inherited []tag.Tag) error {
	backoff := saveRetryBackoff
	for attempt := 0; ; attempt++ {
		n, err := p.repo.LoadNote(ctx, noteID)
		if err != nil {
			return err
		}
		combined := tag.Union(n.State().Tags, tag.WithSource(inherited, tag.SourceAutoInherit))
		if err := n.SetTags(combined, time.Now().UTC()); err != nil {
			return err
		}
		if _, err := p.repo.Save(ctx, n); err != nil {
			if errors.Is(err, storage.ErrConcurrencyConflict) && attempt < maxSaveRetries {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(backoff):
				}
				backoff *= 2
				continue
			}
			return err
		}
		return nil
	}
}

// noteTarget is a descendant note paired with the category it sits in.
type noteTarget struct {
	id       string
	parentID string
}

// descendantNotes walks the projected tree under a category and returns
// the notes in traversal order. The walk is breadth-first with a hard
// depth cap and a visited set, so a damaged tree with parent cycles still
// terminates.
func (p *Propagator) descendantNotes(ctx context.Context, categoryID string) ([]noteTarget, error) {
	type frontier struct {
		id    string
		depth int
	}
	var notes []noteTarget
	visited := make(map[string]bool)
	pending := []frontier{{id: categoryID}}
	for len(pending) > 0 {
		current := pending[0]
		pending = pending[1:]
		if visited[current.id] || current.depth >= maxInheritDepth {
			continue
		}
		visited[current.id] = true

		children, err := p.projections.ListChildren(ctx, current.id)
		if err != nil {
			return nil, fmt.Errorf("list children of %s: %w", current.id, err)
		}
		for _, child := range children {
			switch child.NodeType {
			case storage.NodeNote:
				notes = append(notes, noteTarget{id: child.ID, parentID: current.id})
			case storage.NodeCategory:
				pending = append(pending, frontier{id: child.ID, depth: current.depth + 1})
			}
		}
	}
	return notes, nil
}

func (p *Propagator) update(r *run, fn func(*run)) {
	p.mu.Lock()
	fn(r)
	p.mu.Unlock()
}
