package tagging

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"sort"
	"testing"
	"time"

	"github.com/inkwell-app/inkwell/internal/organizer/domain/category"
	"github.com/inkwell-app/inkwell/internal/organizer/domain/note"
	"github.com/inkwell-app/inkwell/internal/organizer/domain/tag"
	"github.com/inkwell-app/inkwell/internal/organizer/projection"
	"github.com/inkwell-app/inkwell/internal/organizer/repository"
	"github.com/inkwell-app/inkwell/internal/organizer/storage"
	"github.com/inkwell-app/inkwell/internal/organizer/storage/sqlite"
)

type propagationFixture struct {
	events       *sqlite.Store
	projections  *sqlite.Store
	repo         *repository.Repository
	orchestrator *projection.Orchestrator
	propagator   *Propagator
}

func newPropagationFixture(t *testing.T) *propagationFixture {
	t.Helper()
	dir := t.TempDir()
	events, err := sqlite.OpenEvents(filepath.Join(dir, "events.db"))
	if err != nil {
		t.Fatalf("open event store: %v", err)
	}
	t.Cleanup(func() { _ = events.Close() })
	projections, err := sqlite.OpenProjections(filepath.Join(dir, "projections.db"))
	if err != nil {
		t.Fatalf("open projection store: %v", err)
	}
	t.Cleanup(func() { _ = projections.Close() })

	repo := repository.New(events)
	orchestrator := projection.NewOrchestrator(events, projections, nil)
	return &propagationFixture{
		events:       events,
		projections:  projections,
		repo:         repo,
		orchestrator: orchestrator,
		propagator:   NewPropagator(repo, projections, orchestrator, nil, nil),
	}
}

// seedCategoryWithNotes creates one category holding count notes and
// projects everything.
func (f *propagationFixture) seedCategoryWithNotes(t *testing.T, categoryID, name string, count int) {
	t.Helper()
	ctx := context.Background()

	c := category.New(categoryID)
	if err := c.Create(name, "", testTime); err != nil {
		t.Fatalf("create category: %v", err)
	}
	if _, err := f.repo.Save(ctx, c); err != nil {
		t.Fatalf("save category: %v", err)
	}

	for i := 1; i <= count; i++ {
		noteID := fmt.Sprintf("note-%02d", i)
		n := note.New(noteID)
		if err := n.Create(fmt.Sprintf("Note %02d", i), categoryID, "", testTime); err != nil {
			t.Fatalf("create note %s: %v", noteID, err)
		}
		if _, err := f.repo.Save(ctx, n); err != nil {
			t.Fatalf("save note %s: %v", noteID, err)
		}
	}

	if err := f.orchestrator.CatchUp(ctx); err != nil {
		t.Fatalf("catch up: %v", err)
	}
}

func (f *propagationFixture) waitForTerminal(t *testing.T, runID string) RunInfo {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		info, err := f.propagator.Status(runID)
		if err != nil {
			t.Fatalf("status: %v", err)
		}
		switch info.Status {
		case RunCompleted, RunCancelled, RunFailed:
			return info
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("propagation run did not reach a terminal state")
	return RunInfo{}
}

func TestPropagationAddsInheritedTags(t *testing.T) {
	f := newPropagationFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = f.propagator.Run(ctx) }()

	f.seedCategoryWithNotes(t, "cat-projects", "Projects", 3)

	// One note already carries a manual tag that must survive untouched.
	n, err := f.repo.LoadNote(ctx, "note-01")
	if err != nil {
		t.Fatalf("load note: %v", err)
	}
	if err := n.SetTags([]tag.Tag{{Text: "urgent", Source: tag.SourceManual}}, testTime); err != nil {
		t.Fatalf("set tags: %v", err)
	}
	if _, err := f.repo.Save(ctx, n); err != nil {
		t.Fatalf("save note: %v", err)
	}

	runID, err := f.propagator.Enqueue(ctx, "cat-projects", tag.FromTexts([]string{"Work", "Active"}, tag.SourceManual))
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	info := f.waitForTerminal(t, runID)
	if info.Status != RunCompleted {
		t.Fatalf("status = %q, want completed (error %q)", info.Status, info.Error)
	}
	if info.Processed != 3 || info.Total != 3 {
		t.Fatalf("processed = %d/%d, want 3/3", info.Processed, info.Total)
	}

	tagged, err := f.repo.LoadNote(ctx, "note-01")
	if err != nil {
		t.Fatalf("load note: %v", err)
	}
	keys := map[string]tag.Source{}
	for _, tg := range tagged.State().Tags {
		keys[tag.Key(tg.Text)] = tg.Source
	}
	if keys["urgent"] != tag.SourceManual {
		t.Fatalf("urgent source = %q, manual tag must not change", keys["urgent"])
	}
	if keys["work"] != tag.SourceAutoInherit || keys["active"] != tag.SourceAutoInherit {
		t.Fatalf("inherited sources = %v, want auto-inherit", keys)
	}
}

func TestPropagationIncludesIntermediateCategoryTags(t *testing.T) {
	f := newPropagationFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = f.propagator.Run(ctx) }()

	// Alpha{x} holds Beta{y} holds a note with a manual tag. Propagating
	// from Alpha must land x, y, and keep the manual tag.
	a := category.New("cat-alpha")
	if err := a.Create("Alpha", "", testTime); err != nil {
		t.Fatalf("create alpha: %v", err)
	}
	if err := a.SetTags(tag.FromTexts([]string{"x"}, tag.SourceManual), true, testTime); err != nil {
		t.Fatalf("tag alpha: %v", err)
	}
	if _, err := f.repo.Save(ctx, a); err != nil {
		t.Fatalf("save alpha: %v", err)
	}
	b := category.New("cat-beta")
	if err := b.Create("Beta", "cat-alpha", testTime); err != nil {
		t.Fatalf("create beta: %v", err)
	}
	if err := b.SetTags(tag.FromTexts([]string{"y"}, tag.SourceManual), false, testTime); err != nil {
		t.Fatalf("tag beta: %v", err)
	}
	if _, err := f.repo.Save(ctx, b); err != nil {
		t.Fatalf("save beta: %v", err)
	}
	n := note.New("note-deep")
	if err := n.Create("Minutes", "cat-beta", "", testTime); err != nil {
		t.Fatalf("create note: %v", err)
	}
	if err := n.SetTags([]tag.Tag{{Text: "m", Source: tag.SourceManual}}, testTime); err != nil {
		t.Fatalf("tag note: %v", err)
	}
	if _, err := f.repo.Save(ctx, n); err != nil {
		t.Fatalf("save note: %v", err)
	}
	if err := f.orchestrator.CatchUp(ctx); err != nil {
		t.Fatalf("catch up: %v", err)
	}

	runID, err := f.propagator.Enqueue(ctx, "cat-alpha", tag.FromTexts([]string{"x"}, tag.SourceManual))
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if info := f.waitForTerminal(t, runID); info.Status != RunCompleted {
		t.Fatalf("status = %q, want completed (error %q)", info.Status, info.Error)
	}

	deep, err := f.repo.LoadNote(ctx, "note-deep")
	if err != nil {
		t.Fatalf("load note: %v", err)
	}
	keys := map[string]tag.Source{}
	for _, tg := range deep.State().Tags {
		keys[tag.Key(tg.Text)] = tg.Source
	}
	for _, want := range []string{"x", "y", "m"} {
		if _, ok := keys[want]; !ok {
			t.Fatalf("note tags = %v, want %q present", keys, want)
		}
	}
	if keys["m"] != tag.SourceManual {
		t.Fatalf("manual tag source = %q, must stay manual", keys["m"])
	}
}

func TestPropagationReadsAgreeWithWrites(t *testing.T) {
	f := newPropagationFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = f.propagator.Run(ctx) }()

	f.seedCategoryWithNotes(t, "cat-projects", "Projects", 2)

	runID, err := f.propagator.Enqueue(ctx, "cat-projects", tag.FromTexts([]string{"shared"}, tag.SourceManual))
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if info := f.waitForTerminal(t, runID); info.Status != RunCompleted {
		t.Fatalf("status = %q, want completed", info.Status)
	}

	// What the query service reports must be the same set propagation
	// wrote, not merely overlap with it.
	q := Query{Projections: f.projections}
	effective := effectiveKeys(q, "note-01", storage.NodeNote)
	stored, err := f.projections.ListEntityTags(ctx, "note-01")
	if err != nil {
		t.Fatalf("list tags: %v", err)
	}
	storedKeys := make([]string, 0, len(stored))
	for _, row := range stored {
		storedKeys = append(storedKeys, row.Key)
	}
	sort.Strings(storedKeys)
	sort.Strings(effective)
	if len(storedKeys) == 0 {
		t.Fatal("no stored tags after propagation")
	}
	if !reflect.DeepEqual(effective, storedKeys) {
		t.Fatalf("effective keys = %v, stored keys = %v, want identical", effective, storedKeys)
	}
	found := false
	for _, key := range storedKeys {
		if key == "shared" {
			found = true
		}
	}
	if !found {
		t.Fatalf("stored keys = %v, want shared tag present", storedKeys)
	}
}

func TestPropagationCancellationIsBatchGranular(t *testing.T) {
	f := newPropagationFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = f.propagator.Run(ctx) }()

	f.seedCategoryWithNotes(t, "cat-big", "Big", 25)

	runID, err := f.propagator.Enqueue(ctx, "cat-big", tag.FromTexts([]string{"bulk"}, tag.SourceManual))
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	// Cancel as soon as the first batch lands; the inter-batch delay gives
	// the request time to arrive before the next batch starts.
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		info, err := f.propagator.Status(runID)
		if err != nil {
			t.Fatalf("status: %v", err)
		}
		if info.Processed >= 10 || info.Status == RunCompleted {
			break
		}
		time.Sleep(time.Millisecond)
	}
	if err := f.propagator.Cancel(runID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	info := f.waitForTerminal(t, runID)
	if info.Status == RunFailed {
		t.Fatalf("status = failed: %s", info.Error)
	}
	if info.Status != RunCancelled {
		// The run may legitimately finish if cancellation raced the last
		// batch, but with 25 notes and a 150ms delay that is unexpected.
		t.Fatalf("status = %q, want cancelled", info.Status)
	}
	if info.Processed == 0 || info.Processed >= info.Total {
		t.Fatalf("processed = %d of %d, want a partial run", info.Processed, info.Total)
	}

	// Notes in completed batches keep their tags; unprocessed notes have
	// none. Processed count is a batch boundary, so the split is exact.
	for i := 1; i <= info.Total; i++ {
		noteID := fmt.Sprintf("note-%02d", i)
		n, err := f.repo.LoadNote(ctx, noteID)
		if err != nil {
			t.Fatalf("load %s: %v", noteID, err)
		}
		hasBulk := false
		for _, tg := range n.State().Tags {
			if tag.Key(tg.Text) == "bulk" {
				hasBulk = true
			}
		}
		if i <= info.Processed && !hasBulk {
			t.Fatalf("%s in a completed batch is missing the tag", noteID)
		}
		if i > info.Processed && hasBulk {
			t.Fatalf("%s past the cancellation point should be untouched", noteID)
		}
	}
}

func TestEnqueueFailsWhenQueueIsFull(t *testing.T) {
	f := newPropagationFixture(t)
	ctx := context.Background()

	// No worker is draining the queue.
	var err error
	for i := 0; i <= propagationQueueSize; i++ {
		_, err = f.propagator.Enqueue(ctx, "cat-any", nil)
		if err != nil {
			break
		}
	}
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("err = %v, want ErrQueueFull", err)
	}
}

func TestCancelUnknownRun(t *testing.T) {
	f := newPropagationFixture(t)
	if err := f.propagator.Cancel("missing"); !errors.Is(err, ErrUnknownRun) {
		t.Fatalf("err = %v, want ErrUnknownRun", err)
	}
	if _, err := f.propagator.Status("missing"); !errors.Is(err, ErrUnknownRun) {
		t.Fatalf("err = %v, want ErrUnknownRun", err)
	}
}
