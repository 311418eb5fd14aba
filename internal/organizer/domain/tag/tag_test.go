package tag

import (
	"reflect"
	"testing"
)

func TestKeyFoldsCase(t *testing.T) {
	if Key("Projects") != Key("pRoJeCtS") {
		t.Fatal("expected folded keys to match")
	}
	if Key(" urgent ") != Key("URGENT") {
		t.Fatal("expected trimmed folded keys to match")
	}
	if Key("Straße") != Key("STRASSE") {
		t.Fatal("expected unicode case folding, not plain lowercasing")
	}
}

func TestUnionDeduplicatesCaseInsensitively(t *testing.T) {
	got := Union(
		[]Tag{{Text: "Urgent", Source: SourceManual}},
		[]Tag{{Text: "URGENT", Source: SourceAutoInherit}, {Text: "Projects", Source: SourceAutoInherit}},
	)
	want := []Tag{
		{Text: "Projects", Source: SourceAutoInherit},
		{Text: "Urgent", Source: SourceManual},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("union = %v, want %v", got, want)
	}
}

func TestUnionDropsEmptyAndDefaultsSource(t *testing.T) {
	got := Union([]Tag{{Text: "  "}, {Text: "a"}})
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if got[0].Source != SourceManual {
		t.Fatalf("source = %q, want manual default", got[0].Source)
	}
}

func TestUnionIsDeterministic(t *testing.T) {
	first := Union([]Tag{{Text: "b"}, {Text: "a"}, {Text: "c"}})
	second := Union([]Tag{{Text: "c"}, {Text: "a"}, {Text: "b"}})
	if !reflect.DeepEqual(Texts(first), Texts(second)) {
		t.Fatalf("union order differs: %v vs %v", Texts(first), Texts(second))
	}
}

func TestEqualIgnoresDisplayCasing(t *testing.T) {
	a := []Tag{{Text: "Work", Source: SourceManual}}
	b := []Tag{{Text: "work", Source: SourceManual}}
	if !Equal(a, b) {
		t.Fatal("expected sets to be equal")
	}
	c := []Tag{{Text: "work", Source: SourceAutoInherit}}
	if Equal(a, c) {
		t.Fatal("expected differing sources to be unequal")
	}
}

func TestFromTextsAndFilterSource(t *testing.T) {
	tags := FromTexts([]string{"One", "two", "ONE"}, SourceAutoPath)
	if len(tags) != 2 {
		t.Fatalf("len = %d, want 2", len(tags))
	}
	if got := FilterSource(tags, SourceAutoPath); len(got) != 2 {
		t.Fatalf("filtered len = %d, want 2", len(got))
	}
	if got := FilterSource(tags, SourceManual); len(got) != 0 {
		t.Fatalf("filtered manual len = %d, want 0", len(got))
	}
}
