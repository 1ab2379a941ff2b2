// Package rowstore reads question sheets as records and writes single cells or
// whole rows back. Every load is a full re-fetch; nothing is cached.
package rowstore

import (
	"context"
	"errors"
	"fmt"

	"grammardesk/internal/question"
)

// Store is one worksheet of question rows.
//
// rowIndex is the 0-based record position returned by LoadRecords; the
// backend adds question.HeaderOffset to reach its native row. column is
// 1-based. Calls are independent: there is no transaction across them.
type Store interface {
	LoadRecords(ctx context.Context) ([]question.Record, error)
	UpdateCell(ctx context.Context, rowIndex, column int, value string) error
	UpdateRow(ctx context.Context, rowIndex int, values []string) error
	Ping(ctx context.Context) error
}

// Source opens the store behind a grammar area.
type Source interface {
	Areas() []string
	Open(ctx context.Context, area string) (Store, error)
}

// ErrUnknownArea is returned by a Source for an area it has no sheet for.
var ErrUnknownArea = errors.New("unknown grammar area")

// ConnectivityError reports that the backing service could not be reached or
// refused our credentials.
type ConnectivityError struct {
	Op  string
	Err error
}

func (e *ConnectivityError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("row store %s: %v", e.Op, e.Err)
}

func (e *ConnectivityError) Unwrap() error {
	return e.Err
}

func connectivity(op string, err error) error {
	return &ConnectivityError{Op: op, Err: err}
}

// buildRecords turns a raw grid (header first) into records.
func buildRecords(grid [][]string) ([]question.Record, error) {
	if len(grid) == 0 {
		return nil, fmt.Errorf("sheet has no header row")
	}
	schema, err := question.NewSchema(grid[0])
	if err != nil {
		return nil, err
	}
	records := make([]question.Record, 0, len(grid)-1)
	for idx, row := range grid[1:] {
		records = append(records, question.NewRecord(idx, schema, row))
	}
	return records, nil
}

func sheetRow(rowIndex int) (int, error) {
	if rowIndex < 0 {
		return 0, fmt.Errorf("row index %d out of range", rowIndex)
	}
	return rowIndex + question.HeaderOffset, nil
}
