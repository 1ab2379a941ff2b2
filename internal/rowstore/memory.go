package rowstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"grammardesk/internal/question"
)

// CellWrite is one UpdateCell call seen by a Memory store.
type CellWrite struct {
	Row    int
	Column int
	Value  string
}

// RowWrite is one UpdateRow call seen by a Memory store.
type RowWrite struct {
	Row    int
	Values []string
}

// Memory keeps a sheet grid in process. Rows and columns use the same native
// addressing as the real backends. Writes are recorded for inspection.
type Memory struct {
	mu        sync.Mutex
	grid      [][]string
	cellLog   []CellWrite
	rowLog    []RowWrite
	failAfter int
	failErr   error
	calls     int
	loadErr   error
}

// NewMemory copies header and rows into a new in-process sheet.
func NewMemory(header []string, rows ...[]string) *Memory {
	grid := make([][]string, 0, len(rows)+1)
	grid = append(grid, append([]string(nil), header...))
	for _, row := range rows {
		grid = append(grid, append([]string(nil), row...))
	}
	return &Memory{grid: grid, failAfter: -1}
}

// FailWritesAfter lets the first n writes succeed and fails the rest with err.
func (m *Memory) FailWritesAfter(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAfter = n
	m.failErr = err
}

// FailLoads makes LoadRecords and Ping fail with a ConnectivityError.
func (m *Memory) FailLoads(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadErr = err
}

func (m *Memory) LoadRecords(ctx context.Context) ([]question.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, connectivity("load", m.loadErr)
	}
	grid := make([][]string, len(m.grid))
	for idx, row := range m.grid {
		grid[idx] = append([]string(nil), row...)
	}
	return buildRecords(grid)
}

func (m *Memory) UpdateCell(ctx context.Context, rowIndex, column int, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, err := sheetRow(rowIndex)
	if err != nil {
		return err
	}
	if column < 1 {
		return fmt.Errorf("column %d out of range", column)
	}
	if err := m.tick(); err != nil {
		return err
	}
	line := m.line(row)
	for len(*line) < column {
		*line = append(*line, "")
	}
	(*line)[column-1] = value
	m.cellLog = append(m.cellLog, CellWrite{Row: row, Column: column, Value: value})
	return nil
}

func (m *Memory) UpdateRow(ctx context.Context, rowIndex int, values []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, err := sheetRow(rowIndex)
	if err != nil {
		return err
	}
	if err := m.tick(); err != nil {
		return err
	}
	line := m.line(row)
	copied := append([]string(nil), values...)
	if len(*line) > len(copied) {
		copied = append(copied, (*line)[len(copied):]...)
	}
	*line = copied
	m.rowLog = append(m.rowLog, RowWrite{Row: row, Values: append([]string(nil), values...)})
	return nil
}

func (m *Memory) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return connectivity("ping", m.loadErr)
	}
	return nil
}

// CellWrites returns the UpdateCell calls made so far.
func (m *Memory) CellWrites() []CellWrite {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]CellWrite(nil), m.cellLog...)
}

// RowWrites returns the UpdateRow calls made so far.
func (m *Memory) RowWrites() []RowWrite {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RowWrite, len(m.rowLog))
	for idx, write := range m.rowLog {
		out[idx] = RowWrite{Row: write.Row, Values: append([]string(nil), write.Values...)}
	}
	return out
}

// Row returns a copy of the native 1-based sheet row.
func (m *Memory) Row(row int) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row < 1 || row > len(m.grid) {
		return nil
	}
	return append([]string(nil), m.grid[row-1]...)
}

func (m *Memory) tick() error {
	if m.failAfter >= 0 && m.calls >= m.failAfter {
		return connectivity("write", m.failErr)
	}
	m.calls++
	return nil
}

func (m *Memory) line(row int) *[]string {
	for len(m.grid) < row {
		m.grid = append(m.grid, nil)
	}
	return &m.grid[row-1]
}

// MemorySource serves fixed Memory stores by area name.
type MemorySource struct {
	stores map[string]*Memory
}

// NewMemorySource wraps the given stores.
func NewMemorySource(stores map[string]*Memory) *MemorySource {
	return &MemorySource{stores: stores}
}

func (s *MemorySource) Areas() []string {
	areas := make([]string, 0, len(s.stores))
	for area := range s.stores {
		areas = append(areas, area)
	}
	sort.Strings(areas)
	return areas
}

func (s *MemorySource) Open(ctx context.Context, area string) (Store, error) {
	store, ok := s.stores[area]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownArea, area)
	}
	return store, nil
}
