// Package migrate imports data from the legacy organizer format into the
// event journal. The import synthesizes creation events for every legacy
// record and finishes with a full projection rebuild, so a migrated
// installation is indistinguishable from one that was event-sourced from
// the start.
package migrate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/inkwell-app/inkwell/internal/organizer/domain/category"
	"github.com/inkwell-app/inkwell/internal/organizer/domain/note"
	"github.com/inkwell-app/inkwell/internal/organizer/domain/tag"
	"github.com/inkwell-app/inkwell/internal/organizer/domain/task"
	"github.com/inkwell-app/inkwell/internal/organizer/projection"
	"github.com/inkwell-app/inkwell/internal/organizer/repository"
)

// maxCategoryDepth bounds parent-chain walks over legacy data, which may
// contain cycles.
const maxCategoryDepth = 20

// LegacyCategory is one category record of the legacy format.
type LegacyCategory struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	ParentID string   `json:"parent_id,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

// LegacyNote is one note record of the legacy format.
type LegacyNote struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	CategoryID string   `json:"category_id,omitempty"`
	FilePath   string   `json:"file_path,omitempty"`
	Tags       []string `json:"tags,omitempty"`
}

// LegacyTask is one task record of the legacy format.
type LegacyTask struct {
	ID         string     `json:"id"`
	Text       string     `json:"text"`
	Done       bool       `json:"done"`
	CategoryID string     `json:"category_id,omitempty"`
	NoteID     string     `json:"note_id,omitempty"`
	FilePath   string     `json:"file_path,omitempty"`
	Line       int        `json:"line,omitempty"`
	Priority   int        `json:"priority,omitempty"`
	DueDate    *time.Time `json:"due_date,omitempty"`
}

// LegacyData is the legacy export document.
type LegacyData struct {
	Categories []LegacyCategory `json:"categories"`
	Notes      []LegacyNote     `json:"notes"`
	Tasks      []LegacyTask     `json:"tasks"`
}

// Result summarizes an import.
type Result struct {
	Categories int
	Notes      int
	Tasks      int
	Skipped    int
}

// Importer writes legacy records into the event journal.
type Importer struct {
	repo         *repository.Repository
	orchestrator *projection.Orchestrator
	logger       *slog.Logger
	now          func() time.Time
}

// NewImporter builds an importer. logger may be nil.
func NewImporter(repo *repository.Repository, orchestrator *projection.Orchestrator, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{
		repo:         repo,
		orchestrator: orchestrator,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Load parses a legacy export document.
func Load(r io.Reader) (LegacyData, error) {
	var data LegacyData
	if err := json.NewDecoder(r).Decode(&data); err != nil {
		return LegacyData{}, fmt.Errorf("decode legacy export: %w", err)
	}
	return data, nil
}

// Import writes every legacy record as events, parents before children, and
// rebuilds the projections. A record that cannot be imported is logged and
// skipped; the rest of the import continues.
func (im *Importer) Import(ctx context.Context, data LegacyData) (Result, error) {
	if im == nil || im.repo == nil {
		return Result{}, fmt.Errorf("importer is not configured")
	}
	var result Result

	for _, legacy := range im.sortCategories(data.Categories) {
		if err := im.importCategory(ctx, legacy); err != nil {
			im.logger.Warn("skipping legacy category", "id", legacy.ID, "error", err)
			result.Skipped++
			continue
		}
		result.Categories++
	}
	for _, legacy := range data.Notes {
		if err := im.importNote(ctx, legacy); err != nil {
			im.logger.Warn("skipping legacy note", "id", legacy.ID, "error", err)
			result.Skipped++
			continue
		}
		result.Notes++
	}
	for _, legacy := range data.Tasks {
		if err := im.importTask(ctx, legacy); err != nil {
			im.logger.Warn("skipping legacy task", "id", legacy.ID, "error", err)
			result.Skipped++
			continue
		}
		result.Tasks++
	}

	if err := im.orchestrator.RebuildAll(ctx); err != nil {
		return result, fmt.Errorf("rebuild after import: %w", err)
	}
	return result, nil
}

// sortCategories orders categories parents-first so a child's stream is
// never appended before its parent exists.
func (im *Importer) sortCategories(categories []LegacyCategory) []LegacyCategory {
	parents := make(map[string]string, len(categories))
	for _, c := range categories {
		parents[c.ID] = c.ParentID
	}
	depth := func(id string) int {
		d := 0
		for current := parents[id]; current != "" && d < maxCategoryDepth; current = parents[current] {
			d++
		}
		return d
	}
	sorted := append([]LegacyCategory(nil), categories...)
	sort.SliceStable(sorted, func(i, j int) bool {
		di, dj := depth(sorted[i].ID), depth(sorted[j].ID)
		if di != dj {
			return di < dj
		}
		return sorted[i].ID < sorted[j].ID
	})
	return sorted
}

func (im *Importer) importCategory(ctx context.Context, legacy LegacyCategory) error {
	if legacy.ID == "" {
		return fmt.Errorf("category id is required")
	}
	c := category.New(legacy.ID)
	at := im.now()
	if err := c.Create(legacy.Name, legacy.ParentID, at); err != nil {
		return err
	}
	if len(legacy.Tags) > 0 {
		if err := c.SetTags(tag.FromTexts(legacy.Tags, tag.SourceManual), false, at); err != nil {
			return err
		}
	}
	_, err := im.repo.Save(ctx, c)
	return err
}

func (im *Importer) importNote(ctx context.Context, legacy LegacyNote) error {
	if legacy.ID == "" {
		return fmt.Errorf("note id is required")
	}
	n := note.New(legacy.ID)
	at := im.now()
	if err := n.Create(legacy.Title, legacy.CategoryID, legacy.FilePath, at); err != nil {
		return err
	}
	if len(legacy.Tags) > 0 {
		if err := n.SetTags(tag.FromTexts(legacy.Tags, tag.SourceManual), at); err != nil {
			return err
		}
	}
	_, err := im.repo.Save(ctx, n)
	return err
}

func (im *Importer) importTask(ctx context.Context, legacy LegacyTask) error {
	if legacy.ID == "" {
		return fmt.Errorf("task id is required")
	}
	t := task.New(legacy.ID)
	at := im.now()
	source := task.Source{
		NoteID:     legacy.NoteID,
		FilePath:   legacy.FilePath,
		LineNumber: legacy.Line,
	}
	if err := t.Create(legacy.Text, legacy.CategoryID, "", legacy.Priority, legacy.DueDate, source, at); err != nil {
		return err
	}
	if legacy.Done {
		if err := t.Complete(at); err != nil {
			return err
		}
	}
	_, err := im.repo.Save(ctx, t)
	return err
}
