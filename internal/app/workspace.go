package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"grammardesk/internal/index"
	"grammardesk/internal/question"
	"grammardesk/internal/rbac"
	"grammardesk/internal/reconcile"
	"grammardesk/internal/rowstore"
	"grammardesk/internal/snapshot"
	"grammardesk/internal/store"
	"grammardesk/internal/writeback"
)

// Workspace is the sheet state for one request. It is rebuilt from a full
// reload every time and never outlives the request.
type Workspace struct {
	Area    string
	Store   rowstore.Store
	Records []question.Record
}

func (s *Service) openWorkspace(ctx context.Context, area string) (*Workspace, error) {
	st, err := s.source.Open(ctx, area)
	if err != nil {
		return nil, err
	}
	records, err := st.LoadRecords(ctx)
	if err != nil {
		return nil, err
	}
	return &Workspace{Area: area, Store: st, Records: records}, nil
}

func requireRead(current Session) error {
	if !rbac.Can(current.Role, rbac.ActionRead) {
		return reconcile.ErrUnknownRole
	}
	return nil
}

func (s *Service) Catalog(ctx context.Context, current Session, area string) ([]index.Entry, error) {
	if err := requireRead(current); err != nil {
		return nil, err
	}
	ws, err := s.openWorkspace(ctx, area)
	if err != nil {
		return nil, err
	}
	return index.Catalog(ws.Records), nil
}

type SuffixRange struct {
	Prefix   string   `json:"prefix"`
	Suffixes []string `json:"suffixes"`
	Min      int      `json:"min"`
	Max      int      `json:"max"`
}

func (s *Service) Suffixes(ctx context.Context, current Session, area, prefix string) (SuffixRange, error) {
	if err := requireRead(current); err != nil {
		return SuffixRange{}, err
	}
	ws, err := s.openWorkspace(ctx, area)
	if err != nil {
		return SuffixRange{}, err
	}
	suffixes := index.Suffixes(ws.Records, prefix)
	upper, err := index.MaxSuffix(suffixes)
	if err != nil {
		return SuffixRange{}, err
	}
	return SuffixRange{Prefix: prefix, Suffixes: suffixes, Min: 1, Max: upper}, nil
}

type QuestionView struct {
	Area     string                `json:"area"`
	ID       string                `json:"id"`
	SheetRow int                   `json:"sheetRow"`
	Role     rbac.Role             `json:"role"`
	StageMax int                   `json:"stageMax"`
	Fields   []reconcile.FieldView `json:"fields"`
}

func (s *Service) View(ctx context.Context, current Session, area, prefix, suffix string) (QuestionView, error) {
	if err := requireRead(current); err != nil {
		return QuestionView{}, err
	}
	ws, err := s.openWorkspace(ctx, area)
	if err != nil {
		return QuestionView{}, err
	}
	record, err := index.Resolve(ws.Records, prefix, suffix)
	if err != nil {
		return QuestionView{}, err
	}
	views, err := s.reconciler.Classify(current.Role, record)
	if err != nil {
		return QuestionView{}, err
	}
	views = reconcile.Visible(views)
	for idx := range views {
		if views[idx].Markup {
			views[idx].Rendered = s.formatter.Format(views[idx].Value)
		}
	}
	return QuestionView{
		Area:     area,
		ID:       record.ID(),
		SheetRow: record.SheetRow(),
		Role:     current.Role,
		StageMax: s.reconciler.StageMax(),
		Fields:   views,
	}, nil
}

type SaveResult struct {
	ID           string `json:"id"`
	SheetRow     int    `json:"sheetRow"`
	Stamp        string `json:"stamp"`
	CellsWritten int    `json:"cellsWritten"`
	SavedAt      string `json:"savedAt"`
	SavedAtLabel string `json:"savedAtLabel"`
	Snapshot     string `json:"snapshot,omitempty"`
}

func saveAction(role rbac.Role) rbac.Action {
	if role == rbac.RoleEditor {
		return rbac.ActionEdit
	}
	return rbac.ActionReview
}

// Save reloads the sheet, resolves the question again and commits the
// reconciled patch. Nothing is retried; the client reloads afterwards.
func (s *Service) Save(ctx context.Context, current Session, area, prefix, suffix string, edits map[string]string) (SaveResult, error) {
	if !rbac.Can(current.Role, saveAction(current.Role)) {
		return SaveResult{}, reconcile.ErrUnknownRole
	}
	ws, err := s.openWorkspace(ctx, area)
	if err != nil {
		return SaveResult{}, err
	}
	record, err := index.Resolve(ws.Records, prefix, suffix)
	if err != nil {
		return SaveResult{}, err
	}

	now := s.now()
	patch, err := s.reconciler.ReconcilePatch(current.Role, record, edits, current.Username, now)
	if err != nil {
		return SaveResult{}, err
	}

	logger := s.logger.With(
		zap.String("area", area),
		zap.String("question_id", record.ID()),
		zap.Int("sheet_row", record.SheetRow()),
		zap.String("role", string(current.Role)),
		zap.String("actor", current.Username),
	)

	committed, err := writeback.Commit(ctx, current.Role, ws.Store, record, patch)
	if err != nil {
		var writeErr *writeback.WriteError
		if errors.As(err, &writeErr) {
			logger.Error("save failed", zap.Int("cells_written", writeErr.Written), zap.String("field", writeErr.Field), zap.Error(err))
		}
		return SaveResult{}, err
	}
	result := SaveResult{ID: record.ID(), SheetRow: record.SheetRow(), Stamp: patch.Stamp, CellsWritten: committed.Cells}

	// record still holds the row as loaded before the overwrite.
	if current.Role == rbac.RoleEditor {
		key, err := s.archiver.Archive(ctx, snapshot.Snapshot{
			Area:       area,
			QuestionID: record.ID(),
			SheetRow:   record.SheetRow(),
			Header:     record.Schema.Names(),
			Values:     record.Row(),
			Actor:      current.Username,
			TakenAt:    now,
		})
		if err != nil {
			logger.Warn("row snapshot failed", zap.Error(err))
		}
		result.Snapshot = key
	}

	local := now.In(s.location)
	result.SavedAt = local.Format("2006-01-02T15:04:05Z07:00")
	result.SavedAtLabel = local.Format("03:04:05 PM")

	if s.journal != nil {
		if err := s.journal.AppendJournal(ctx, store.JournalEntry{
			Area:         area,
			QuestionID:   record.ID(),
			SheetRow:     record.SheetRow(),
			Role:         string(current.Role),
			Actor:        current.Username,
			Stamp:        patch.Stamp,
			Changes:      patch.Changes,
			CellsWritten: committed.Cells,
			SavedAt:      now.UTC(),
		}); err != nil {
			logger.Warn("journal append failed", zap.Error(err))
		}
	}

	logger.Info("question saved", zap.Int("cells_written", committed.Cells), zap.Int("calls", committed.Calls))
	return result, nil
}

type History struct {
	Enabled bool                 `json:"enabled"`
	ID      string               `json:"id"`
	Entries []store.JournalEntry `json:"entries"`
}

func (s *Service) History(ctx context.Context, current Session, area, prefix, suffix string, limit int) (History, error) {
	if err := requireRead(current); err != nil {
		return History{}, err
	}
	if err := s.knownArea(area); err != nil {
		return History{}, err
	}
	id := question.ComposeID(prefix, suffix)
	if s.journal == nil {
		return History{ID: id, Entries: []store.JournalEntry{}}, nil
	}
	entries, err := s.journal.ListJournal(ctx, area, id, limit)
	if err != nil {
		return History{}, fmt.Errorf("history: %w", err)
	}
	return History{Enabled: true, ID: id, Entries: entries}, nil
}
