package writeback

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"grammardesk/internal/rbac"
	"grammardesk/internal/reconcile"
	"grammardesk/internal/rowstore"
)

var header = []string{"ID", "stage", "소분류", "type", "solve", "검토사항", "해설 검토사항", "검토 날짜"}

func fixture(t *testing.T) (*rowstore.Memory, *reconcile.Reconciler) {
	t.Helper()
	store := rowstore.NewMemory(header,
		[]string{"GRM-A-001", "1", "시제", "A1", "goes", "", "", ""},
		[]string{"GRM-A-002", "2", "시제", "A2", "went", "", "", ""},
	)
	r, err := reconcile.New(reconcile.Options{StageMax: 4, Location: time.UTC})
	require.NoError(t, err)
	return store, r
}

func TestReviewerCommitWritesThreeCells(t *testing.T) {
	store, r := fixture(t)
	ctx := context.Background()
	records, err := store.LoadRecords(ctx)
	require.NoError(t, err)
	original := records[1]

	patch, err := r.ReconcilePatch(rbac.RoleReviewer, original, map[string]string{
		"검토사항":    "시제 확인",
		"해설 검토사항": "해설 보강",
	}, "kim", time.Date(2024, 5, 2, 9, 30, 0, 0, time.UTC))
	require.NoError(t, err)

	result, err := Commit(ctx, rbac.RoleReviewer, store, original, patch)
	require.NoError(t, err)
	require.Equal(t, 3, result.Calls)

	require.Equal(t, []rowstore.CellWrite{
		{Row: 3, Column: 6, Value: "시제 확인"},
		{Row: 3, Column: 7, Value: "해설 보강"},
		{Row: 3, Column: 8, Value: "검토: 2024-05-02 09:30 / kim"},
	}, store.CellWrites())
	require.Empty(t, store.RowWrites())
	require.Equal(t, []string{"GRM-A-002", "2", "시제", "A2", "went", "시제 확인", "해설 보강", "검토: 2024-05-02 09:30 / kim"}, store.Row(3))
}

func TestEditorCommitOverwritesRow(t *testing.T) {
	store, r := fixture(t)
	ctx := context.Background()
	records, err := store.LoadRecords(ctx)
	require.NoError(t, err)
	original := records[0]

	patch, err := r.ReconcilePatch(rbac.RoleEditor, original, map[string]string{"stage": "3"}, "lee", time.Date(2024, 5, 2, 9, 30, 0, 0, time.UTC))
	require.NoError(t, err)

	_, err = Commit(ctx, rbac.RoleEditor, store, original, patch)
	require.NoError(t, err)

	writes := store.RowWrites()
	require.Len(t, writes, 1)
	require.Equal(t, 2, writes[0].Row)
	before := original.Row()
	for idx, value := range writes[0].Values {
		switch header[idx] {
		case "stage":
			require.Equal(t, "3", value)
		case "검토 날짜":
			require.Equal(t, "수정: 2024-05-02 09:30 / lee", value)
		default:
			require.Equal(t, before[idx], value, "column %s", header[idx])
		}
	}
	require.Empty(t, store.CellWrites())
}

func TestReviewerPartialFailureIsReported(t *testing.T) {
	store, r := fixture(t)
	ctx := context.Background()
	records, err := store.LoadRecords(ctx)
	require.NoError(t, err)
	original := records[0]

	patch, err := r.ReconcilePatch(rbac.RoleReviewer, original, map[string]string{"검토사항": "a", "해설 검토사항": "b"}, "kim", time.Now())
	require.NoError(t, err)

	boom := errors.New("quota exceeded")
	store.FailWritesAfter(2, boom)

	_, err = Commit(ctx, rbac.RoleReviewer, store, original, patch)
	var writeErr *WriteError
	require.ErrorAs(t, err, &writeErr)
	require.Equal(t, 2, writeErr.Written)
	require.Equal(t, "검토 날짜", writeErr.Field)
	require.ErrorIs(t, err, boom)

	// The first two cells stay written.
	row := store.Row(2)
	require.Equal(t, "a", row[5])
	require.Equal(t, "b", row[6])
	require.Equal(t, "", row[7])
}

func TestCommitUnknownRole(t *testing.T) {
	store, _ := fixture(t)
	records, err := store.LoadRecords(context.Background())
	require.NoError(t, err)
	_, err = Commit(context.Background(), rbac.RoleNone, store, records[0], reconcile.Patch{})
	require.ErrorIs(t, err, reconcile.ErrUnknownRole)
}
