// Package writeback commits a reconciled patch to the row store.
package writeback

import (
	"context"
	"fmt"

	"grammardesk/internal/question"
	"grammardesk/internal/rbac"
	"grammardesk/internal/reconcile"
	"grammardesk/internal/rowstore"
)

// WriteError reports a failed commit. Written counts store calls that had
// already succeeded; those cells are not rolled back.
type WriteError struct {
	Field   string
	Written int
	Err     error
}

func (e *WriteError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("write row (%d calls applied): %v", e.Written, e.Err)
	}
	return fmt.Sprintf("write %q (%d calls applied): %v", e.Field, e.Written, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// Result summarizes a successful commit.
type Result struct {
	Calls int
	Cells int
}

// Commit writes patch to the row holding original. Reviewers get one cell
// update per review field, in reconcile.ReviewFields order; editors get one
// whole-row overwrite.
func Commit(ctx context.Context, role rbac.Role, store rowstore.Store, original question.Record, patch reconcile.Patch) (Result, error) {
	switch role {
	case rbac.RoleReviewer:
		return commitCells(ctx, store, original, patch)
	case rbac.RoleEditor:
		return commitRow(ctx, store, original, patch)
	default:
		return Result{}, reconcile.ErrUnknownRole
	}
}

func commitCells(ctx context.Context, store rowstore.Store, original question.Record, patch reconcile.Patch) (Result, error) {
	var result Result
	for _, name := range reconcile.ReviewFields {
		value, ok := patch.Changes[name]
		if !ok {
			return result, &WriteError{Field: name, Written: result.Calls, Err: fmt.Errorf("patch has no value")}
		}
		column, ok := original.Schema.Column(name)
		if !ok {
			return result, &WriteError{Field: name, Written: result.Calls, Err: fmt.Errorf("no column in header")}
		}
		if err := store.UpdateCell(ctx, original.Index, column, value); err != nil {
			return result, &WriteError{Field: name, Written: result.Calls, Err: err}
		}
		result.Calls++
		result.Cells++
	}
	return result, nil
}

func commitRow(ctx context.Context, store rowstore.Store, original question.Record, patch reconcile.Patch) (Result, error) {
	if len(patch.Row) != original.Schema.Len() {
		return Result{}, &WriteError{Err: fmt.Errorf("patch row has %d values, header has %d", len(patch.Row), original.Schema.Len())}
	}
	if err := store.UpdateRow(ctx, original.Index, patch.Row); err != nil {
		return Result{}, &WriteError{Err: err}
	}
	return Result{Calls: 1, Cells: len(patch.Row)}, nil
}
