package reconcile

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"grammardesk/internal/question"
	"grammardesk/internal/rbac"
)

// Stamp labels written in front of the save time.
const (
	ReviewLabel = "검토"
	EditLabel   = "수정"
)

// StampLayout is the minute-precision time format of save stamps.
const StampLayout = "2006-01-02 15:04"

// FieldError rejects one submitted field.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("field %q: %s", e.Field, e.Reason)
}

// Patch is what a save writes back. Changes always includes the stamp field.
// Row is set for editor patches only and holds the whole row in header order.
type Patch struct {
	Role    rbac.Role
	Changes map[string]string
	Stamp   string
	Row     []string
}

// ReviewFields are the fields a reviewer patch writes, in write order.
var ReviewFields = []string{
	question.FieldReviewComment,
	question.FieldReviewExplanation,
	question.FieldReviewStamp,
}

// FormatStamp renders "<label>: <time> / <actor>".
func (r *Reconciler) FormatStamp(label string, now time.Time, actor string) string {
	return label + ": " + now.In(r.location).Format(StampLayout) + " / " + actor
}

// ReconcilePatch validates edits against role's policy for record and builds
// the patch to commit.
func (r *Reconciler) ReconcilePatch(role rbac.Role, record question.Record, edits map[string]string, actor string, now time.Time) (Patch, error) {
	if !record.Schema.Has(question.FieldReviewStamp) {
		return Patch{}, fmt.Errorf("%w: %s", ErrMissingFields, question.FieldReviewStamp)
	}
	switch role {
	case rbac.RoleReviewer:
		return r.reviewerPatch(record, edits, actor, now)
	case rbac.RoleEditor:
		return r.editorPatch(record, edits, actor, now)
	default:
		return Patch{}, ErrUnknownRole
	}
}

func (r *Reconciler) reviewerPatch(record question.Record, edits map[string]string, actor string, now time.Time) (Patch, error) {
	for name := range edits {
		if name != question.FieldReviewComment && name != question.FieldReviewExplanation {
			return Patch{}, &FieldError{Field: name, Reason: "not editable by reviewer"}
		}
	}
	for _, name := range ReviewFields[:2] {
		if !record.Schema.Has(name) {
			return Patch{}, fmt.Errorf("%w: %s", ErrMissingFields, name)
		}
	}

	stamp := r.FormatStamp(ReviewLabel, now, actor)
	changes := make(map[string]string, len(ReviewFields))
	for _, name := range ReviewFields[:2] {
		value, ok := edits[name]
		if !ok {
			value = record.Get(name)
		}
		changes[name] = value
	}
	changes[question.FieldReviewStamp] = stamp
	return Patch{Role: rbac.RoleReviewer, Changes: changes, Stamp: stamp}, nil
}

func (r *Reconciler) editorPatch(record question.Record, edits map[string]string, actor string, now time.Time) (Patch, error) {
	row := record.Row()
	changes := make(map[string]string, len(edits)+1)
	names := make([]string, 0, len(edits))
	for name := range edits {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		value := edits[name]
		pos, ok := record.Schema.Position(name)
		if !ok {
			return Patch{}, &FieldError{Field: name, Reason: "not in sheet header"}
		}
		if rule := r.ruleFor(rbac.RoleEditor, name, record); rule.Visibility != Editable {
			return Patch{}, &FieldError{Field: name, Reason: "not editable by editor"}
		}
		normalized, err := r.checkEditorValue(name, value)
		if err != nil {
			return Patch{}, err
		}
		if normalized == row[pos] {
			continue
		}
		row[pos] = normalized
		changes[name] = normalized
	}

	stamp := r.FormatStamp(EditLabel, now, actor)
	stampPos, _ := record.Schema.Position(question.FieldReviewStamp)
	row[stampPos] = stamp
	changes[question.FieldReviewStamp] = stamp
	return Patch{Role: rbac.RoleEditor, Changes: changes, Stamp: stamp, Row: row}, nil
}

func (r *Reconciler) checkEditorValue(name, value string) (string, error) {
	switch name {
	case question.FieldStage:
		stage, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return "", &FieldError{Field: name, Reason: "must be an integer"}
		}
		if stage < 1 || stage > r.stageMax {
			return "", &FieldError{Field: name, Reason: fmt.Sprintf("must be between 1 and %d", r.stageMax)}
		}
		return strconv.Itoa(stage), nil
	case question.FieldType:
		if value == "" {
			return value, nil
		}
		if _, ok := r.types[value]; !ok {
			return "", &FieldError{Field: name, Reason: "unknown type code"}
		}
		return value, nil
	default:
		return value, nil
	}
}
