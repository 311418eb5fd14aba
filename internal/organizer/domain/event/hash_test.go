package event

import (
	"testing"
	"time"
)

func TestContentHashDeterministic(t *testing.T) {
	evt := Event{
		AggregateID:   "cat-1",
		AggregateType: AggregateCategory,
		Seq:           1,
		OccurredAt:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Type:          TypeCategoryCreated,
		PayloadJSON:   []byte(`{"name":"Projects"}`),
	}

	first, err := ContentHash(evt)
	if err != nil {
		t.Fatalf("content hash: %v", err)
	}
	second, err := ContentHash(evt)
	if err != nil {
		t.Fatalf("content hash second: %v", err)
	}
	if first != second {
		t.Fatalf("hash differs across calls: %q vs %q", first, second)
	}
	if len(first) != 64 {
		t.Fatalf("hash length = %d, want 64 hex chars", len(first))
	}
}

func TestContentHashChangesWithPayload(t *testing.T) {
	base := Event{
		AggregateID:   "cat-1",
		AggregateType: AggregateCategory,
		Seq:           1,
		OccurredAt:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Type:          TypeCategoryCreated,
		PayloadJSON:   []byte(`{"name":"Projects"}`),
	}
	other := base
	other.PayloadJSON = []byte(`{"name":"Archive"}`)

	baseHash, err := ContentHash(base)
	if err != nil {
		t.Fatalf("content hash: %v", err)
	}
	otherHash, err := ContentHash(other)
	if err != nil {
		t.Fatalf("content hash: %v", err)
	}
	if baseHash == otherHash {
		t.Fatal("expected differing payloads to hash differently")
	}
}

func TestContentHashRequiresIdentity(t *testing.T) {
	if _, err := ContentHash(Event{Type: TypeNoteCreated}); err == nil {
		t.Fatal("expected missing aggregate id error")
	}
	if _, err := ContentHash(Event{AggregateID: "n-1"}); err == nil {
		t.Fatal("expected missing type error")
	}
}

func TestChainHashLinksPredecessor(t *testing.T) {
	evt := Event{
		AggregateID:   "note-1",
		AggregateType: AggregateNote,
		Seq:           2,
		OccurredAt:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Type:          TypeNoteRenamed,
		PayloadJSON:   []byte(`{"title":"Minutes"}`),
	}

	linked, err := ChainHash(evt, "prev-hash")
	if err != nil {
		t.Fatalf("chain hash: %v", err)
	}
	unlinked, err := ChainHash(evt, "")
	if err != nil {
		t.Fatalf("chain hash: %v", err)
	}
	if linked == unlinked {
		t.Fatal("expected prev hash to alter chain hash")
	}
}

func TestTypeDomain(t *testing.T) {
	if got := TypeTaskCompleted.Domain(); got != "task" {
		t.Fatalf("domain = %q, want %q", got, "task")
	}
	if got := Type("plain").Domain(); got != "plain" {
		t.Fatalf("domain = %q, want %q", got, "plain")
	}
}
