package projection

import (
	"context"
	"encoding/json"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/inkwell-app/inkwell/internal/organizer/domain/category"
	"github.com/inkwell-app/inkwell/internal/organizer/domain/event"
	"github.com/inkwell-app/inkwell/internal/organizer/domain/note"
	"github.com/inkwell-app/inkwell/internal/organizer/domain/tag"
	"github.com/inkwell-app/inkwell/internal/organizer/domain/task"
	"github.com/inkwell-app/inkwell/internal/organizer/storage"
	"github.com/inkwell-app/inkwell/internal/organizer/storage/sqlite"
)

var testTime = time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)

type fixture struct {
	events       *sqlite.Store
	projections  *sqlite.Store
	orchestrator *Orchestrator
}

func newFixture(t *testing.T) *fixture {
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
	return &fixture{
		events:       events,
		projections:  projections,
		orchestrator: NewOrchestrator(events, projections, nil),
	}
}

func (f *fixture) append(t *testing.T, expectedVersion uint64, events []event.Event) {
	t.Helper()
	if _, err := f.events.AppendEvents(context.Background(), expectedVersion, events); err != nil {
		t.Fatalf("append: %v", err)
	}
}

func (f *fixture) catchUp(t *testing.T) {
	t.Helper()
	if err := f.orchestrator.CatchUp(context.Background()); err != nil {
		t.Fatalf("catch up: %v", err)
	}
}

func TestCatchUpProjectsTree(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	work := category.New("cat-work")
	if err := work.Create("Work", "", testTime); err != nil {
		t.Fatalf("create: %v", err)
	}
	f.append(t, 0, work.Uncommitted())

	client := category.New("cat-client")
	if err := client.Create("ClientA", "cat-work", testTime); err != nil {
		t.Fatalf("create: %v", err)
	}
	f.append(t, 0, client.Uncommitted())

	f.catchUp(t)

	node, err := f.projections.GetTreeNode(ctx, "cat-client")
	if err != nil {
		t.Fatalf("get node: %v", err)
	}
	if node.CanonicalPath != "/Work/ClientA" {
		t.Fatalf("path = %q, want %q", node.CanonicalPath, "/Work/ClientA")
	}

	checkpoint, err := f.projections.GetCheckpoint(ctx)
	if err != nil {
		t.Fatalf("checkpoint: %v", err)
	}
	if checkpoint != 2 {
		t.Fatalf("checkpoint = %d, want 2", checkpoint)
	}
}

func TestCatchUpIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c := category.New("cat-1")
	if err := c.Create("Projects", "", testTime); err != nil {
		t.Fatalf("create: %v", err)
	}
	f.append(t, 0, c.Uncommitted())

	f.catchUp(t)
	before, err := f.projections.ListTreeNodes(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	f.catchUp(t)
	after, err := f.projections.ListTreeNodes(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("second catch up changed projections: %+v vs %+v", before, after)
	}
}

func TestCategoryRenameUpdatesDescendantPathsAndNoteTags(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	work := category.New("cat-work")
	if err := work.Create("Work", "", testTime); err != nil {
		t.Fatalf("create: %v", err)
	}
	f.append(t, 0, work.Uncommitted())

	client := category.New("cat-client")
	if err := client.Create("ClientA", "cat-work", testTime); err != nil {
		t.Fatalf("create: %v", err)
	}
	f.append(t, 0, client.Uncommitted())

	minutes := note.New("note-1")
	if err := minutes.Create("Minutes", "cat-client", "", testTime); err != nil {
		t.Fatalf("create note: %v", err)
	}
	f.append(t, 0, minutes.Uncommitted())
	f.catchUp(t)

	renamed := category.Replay("cat-work", mustList(t, f, "cat-work"))
	if err := renamed.Rename("Office", testTime.Add(time.Minute)); err != nil {
		t.Fatalf("rename: %v", err)
	}
	f.append(t, 1, renamed.Uncommitted())
	f.catchUp(t)

	noteNode, err := f.projections.GetTreeNode(ctx, "note-1")
	if err != nil {
		t.Fatalf("get note node: %v", err)
	}
	if noteNode.CanonicalPath != "/Office/ClientA/Minutes" {
		t.Fatalf("path = %q, want %q", noteNode.CanonicalPath, "/Office/ClientA/Minutes")
	}

	tags, err := f.projections.ListEntityTags(ctx, "note-1")
	if err != nil {
		t.Fatalf("list tags: %v", err)
	}
	keys := tagKeys(tags)
	want := []string{"clienta", "office"}
	if !reflect.DeepEqual(keys, want) {
		t.Fatalf("tag keys = %v, want %v", keys, want)
	}
	for _, row := range tags {
		if row.Source != string(tag.SourceAutoPath) {
			t.Fatalf("source = %q, want auto-path", row.Source)
		}
	}
}

func TestManualTagSurvivesPathRecomputation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	work := category.New("cat-work")
	if err := work.Create("Work", "", testTime); err != nil {
		t.Fatalf("create: %v", err)
	}
	f.append(t, 0, work.Uncommitted())

	n := note.New("note-1")
	if err := n.Create("Minutes", "cat-work", "", testTime); err != nil {
		t.Fatalf("create note: %v", err)
	}
	// Manual tag "work" collides with the path tag for /Work.
	if err := n.SetTags([]tag.Tag{{Text: "work", Source: tag.SourceManual}}, testTime); err != nil {
		t.Fatalf("set tags: %v", err)
	}
	f.append(t, 0, n.Uncommitted())
	f.catchUp(t)

	tags, err := f.projections.ListEntityTags(ctx, "note-1")
	if err != nil {
		t.Fatalf("list tags: %v", err)
	}
	if len(tags) != 1 {
		t.Fatalf("tags = %+v, want single collapsed tag", tags)
	}
	if tags[0].Source != string(tag.SourceManual) {
		t.Fatalf("source = %q, manual tag must not be downgraded", tags[0].Source)
	}
}

func TestNoteDeletionOrphansExtractedTasks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	n := note.New("note-1")
	if err := n.Create("Minutes", "", "notes/minutes.md", testTime); err != nil {
		t.Fatalf("create note: %v", err)
	}
	f.append(t, 0, n.Uncommitted())

	tk := task.New("task-1")
	source := task.Source{NoteID: "note-1", FilePath: "notes/minutes.md", LineNumber: 4}
	if err := tk.Create("Follow up", "", "", 0, nil, source, testTime); err != nil {
		t.Fatalf("create task: %v", err)
	}
	f.append(t, 0, tk.Uncommitted())
	f.catchUp(t)

	deleted := note.Replay("note-1", mustList(t, f, "note-1"))
	if err := deleted.Delete(testTime.Add(time.Minute)); err != nil {
		t.Fatalf("delete: %v", err)
	}
	f.append(t, 1, deleted.Uncommitted())
	f.catchUp(t)

	row, err := f.projections.GetTaskRow(ctx, "task-1")
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if !row.IsOrphaned {
		t.Fatal("task should be orphaned after its source note is deleted")
	}
	if _, err := f.projections.GetTreeNode(ctx, "note-1"); err == nil {
		t.Fatal("note tree row should be gone")
	}
}

func TestCatchUpSkipsFailingEventAndAdvances(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// An edit for a task that was never created cannot be applied; the
	// catch-up must log it, skip it, and keep going.
	f.append(t, 0, []event.Event{{
		AggregateID:   "task-ghost",
		AggregateType: event.AggregateTask,
		OccurredAt:    testTime,
		Type:          event.TypeTaskEdited,
		PayloadJSON:   []byte(`{"text":"never created"}`),
	}})

	c := category.New("cat-1")
	if err := c.Create("Projects", "", testTime); err != nil {
		t.Fatalf("create: %v", err)
	}
	f.append(t, 0, c.Uncommitted())

	f.catchUp(t)

	if _, err := f.projections.GetTreeNode(ctx, "cat-1"); err != nil {
		t.Fatalf("later event should still apply: %v", err)
	}
	checkpoint, err := f.projections.GetCheckpoint(ctx)
	if err != nil {
		t.Fatalf("checkpoint: %v", err)
	}
	if checkpoint != 2 {
		t.Fatalf("checkpoint = %d, want 2", checkpoint)
	}
}

func TestRebuildAllReproducesProjections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Deep-ish tree with notes, tags, and tasks; appended in an order a
	// depth-sorted rebuild must not depend on.
	work := category.New("cat-work")
	if err := work.Create("Work", "", testTime); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := work.SetTags(tag.FromTexts([]string{"office"}, tag.SourceManual), true, testTime); err != nil {
		t.Fatalf("set tags: %v", err)
	}
	f.append(t, 0, work.Uncommitted())

	client := category.New("cat-client")
	if err := client.Create("ClientA", "cat-work", testTime); err != nil {
		t.Fatalf("create: %v", err)
	}
	f.append(t, 0, client.Uncommitted())

	n := note.New("note-1")
	if err := n.Create("Minutes", "cat-client", "", testTime); err != nil {
		t.Fatalf("create note: %v", err)
	}
	if err := n.SetTags([]tag.Tag{{Text: "urgent", Source: tag.SourceManual}}, testTime.Add(time.Minute)); err != nil {
		t.Fatalf("set tags: %v", err)
	}
	f.append(t, 0, n.Uncommitted())

	tk := task.New("task-1")
	if err := tk.Create("Follow up", "cat-client", "", 2, nil, task.Source{NoteID: "note-1"}, testTime); err != nil {
		t.Fatalf("create task: %v", err)
	}
	if err := tk.Complete(testTime.Add(time.Hour)); err != nil {
		t.Fatalf("complete: %v", err)
	}
	f.append(t, 0, tk.Uncommitted())

	f.catchUp(t)
	live := f.snapshot(t, ctx)

	if err := f.orchestrator.RebuildAll(ctx); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	rebuilt := f.snapshot(t, ctx)

	if !reflect.DeepEqual(live, rebuilt) {
		t.Fatalf("rebuild diverged from live projections:\nlive:    %+v\nrebuilt: %+v", live, rebuilt)
	}

	if err := f.orchestrator.RebuildAll(ctx); err != nil {
		t.Fatalf("second rebuild: %v", err)
	}
	again := f.snapshot(t, ctx)
	if !reflect.DeepEqual(rebuilt, again) {
		t.Fatalf("second rebuild diverged:\nfirst:  %+v\nsecond: %+v", rebuilt, again)
	}
}

func TestRebuildAllOrphansTasksOfDeletedNotes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	n := note.New("note-1")
	if err := n.Create("Minutes", "", "", testTime); err != nil {
		t.Fatalf("create note: %v", err)
	}
	if err := n.Delete(testTime.Add(time.Minute)); err != nil {
		t.Fatalf("delete: %v", err)
	}
	f.append(t, 0, n.Uncommitted())

	tk := task.New("task-1")
	if err := tk.Create("Follow up", "", "", 0, nil, task.Source{NoteID: "note-1"}, testTime); err != nil {
		t.Fatalf("create task: %v", err)
	}
	f.append(t, 0, tk.Uncommitted())

	if err := f.orchestrator.RebuildAll(ctx); err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	row, err := f.projections.GetTaskRow(ctx, "task-1")
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if !row.IsOrphaned {
		t.Fatal("rebuild should orphan tasks of deleted notes")
	}
}

type snapshot struct {
	Nodes []storage.TreeNode
	Tasks []storage.TaskRow
	Tags  map[string][]storage.TagRow
}

func (f *fixture) snapshot(t *testing.T, ctx context.Context) snapshot {
	t.Helper()
	nodes, err := f.projections.ListTreeNodes(ctx)
	if err != nil {
		t.Fatalf("list nodes: %v", err)
	}
	tags := make(map[string][]storage.TagRow)
	var tasks []storage.TaskRow
	for _, node := range nodes {
		rows, err := f.projections.ListEntityTags(ctx, node.ID)
		if err != nil {
			t.Fatalf("list tags for %s: %v", node.ID, err)
		}
		if len(rows) > 0 {
			tags[node.ID] = rows
		}
		if node.NodeType == storage.NodeCategory {
			categoryTasks, err := f.projections.ListTasksByCategory(ctx, node.ID)
			if err != nil {
				t.Fatalf("list tasks for %s: %v", node.ID, err)
			}
			tasks = append(tasks, categoryTasks...)
		}
	}
	return snapshot{Nodes: nodes, Tasks: tasks, Tags: tags}
}

func mustList(t *testing.T, f *fixture, aggregateID string) []event.Event {
	t.Helper()
	events, err := f.events.ListEvents(context.Background(), aggregateID)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	return events
}

func tagKeys(rows []storage.TagRow) []string {
	keys := make([]string, 0, len(rows))
	for _, row := range rows {
		keys = append(keys, row.Key)
	}
	return keys
}

func TestRenameTerminatesOnParentCycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// A damaged tree where two categories claim each other as parent. The
	// subtree refresh must still terminate and touch each node once.
	put := func(id, parentID, name, path string) {
		t.Helper()
		err := f.projections.PutTreeNode(ctx, storage.TreeNode{
			ID:            id,
			ParentID:      parentID,
			NodeType:      storage.NodeCategory,
			Name:          name,
			CanonicalPath: path,
			CreatedAt:     testTime,
			ModifiedAt:    testTime,
		})
		if err != nil {
			t.Fatalf("put node %s: %v", id, err)
		}
	}
	put("cat-a", "cat-b", "A", "/B/A")
	put("cat-b", "cat-a", "B", "/B")

	payload, err := json.Marshal(event.CategoryRenamedPayload{Name: "Alpha"})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	applier := Applier{Projections: f.projections}
	err = applier.Apply(ctx, event.Event{
		AggregateID:   "cat-a",
		AggregateType: event.AggregateCategory,
		Seq:           2,
		OccurredAt:    testTime,
		Type:          event.TypeCategoryRenamed,
		PayloadJSON:   payload,
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	renamed, err := f.projections.GetTreeNode(ctx, "cat-a")
	if err != nil {
		t.Fatalf("get node: %v", err)
	}
	if renamed.Name != "Alpha" {
		t.Fatalf("name = %q, want %q", renamed.Name, "Alpha")
	}
	nodes, err := f.projections.ListTreeNodes(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(nodes) != 2 {
		t.Fatalf("nodes = %d, want 2", len(nodes))
	}
}
