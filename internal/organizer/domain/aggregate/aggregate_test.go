package aggregate

import (
	"testing"
	"time"

	"github.com/inkwell-app/inkwell/internal/organizer/domain/event"
)

func TestRecordAssignsContiguousSeq(t *testing.T) {
	root := New("cat-1")
	root.Restore(3)

	at := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)
	first, err := root.Record(event.AggregateCategory, event.TypeCategoryRenamed, at, map[string]string{"name": "Work"})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	second, err := root.Record(event.AggregateCategory, event.TypeCategoryMoved, at, map[string]string{"parent_id": "cat-0"})
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	if first.Seq != 4 || second.Seq != 5 {
		t.Fatalf("seq = %d, %d, want 4, 5", first.Seq, second.Seq)
	}
	if len(root.Uncommitted()) != 2 {
		t.Fatalf("uncommitted = %d, want 2", len(root.Uncommitted()))
	}
}

func TestMarkCommittedAdvancesVersion(t *testing.T) {
	root := New("note-1")
	at := time.Now()
	if _, err := root.Record(event.AggregateNote, event.TypeNoteCreated, at, map[string]string{"title": "Minutes"}); err != nil {
		t.Fatalf("record: %v", err)
	}

	root.MarkCommitted()

	if root.Version() != 1 {
		t.Fatalf("version = %d, want 1", root.Version())
	}
	if len(root.Uncommitted()) != 0 {
		t.Fatalf("uncommitted = %d, want 0", len(root.Uncommitted()))
	}
}

func TestRecordRequiresID(t *testing.T) {
	var root Root
	if _, err := root.Record(event.AggregateTask, event.TypeTaskCreated, time.Now(), nil); err == nil {
		t.Fatal("expected error for empty aggregate id")
	}
}
