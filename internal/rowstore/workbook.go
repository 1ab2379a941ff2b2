package rowstore

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/xuri/excelize/v2"

	"grammardesk/internal/question"
)

// WorkbookSource serves grammar areas from local .xlsx files, one file per
// area, all using the same worksheet name.
type WorkbookSource struct {
	worksheet string
	paths     map[string]string
	locks     map[string]*sync.Mutex
}

// NewWorkbookSource maps area names to workbook paths.
func NewWorkbookSource(worksheet string, paths map[string]string) *WorkbookSource {
	src := &WorkbookSource{
		worksheet: worksheet,
		paths:     make(map[string]string, len(paths)),
		locks:     make(map[string]*sync.Mutex, len(paths)),
	}
	for area, path := range paths {
		src.paths[area] = path
		src.locks[path] = &sync.Mutex{}
	}
	return src
}

func (s *WorkbookSource) Areas() []string {
	areas := make([]string, 0, len(s.paths))
	for area := range s.paths {
		areas = append(areas, area)
	}
	sort.Strings(areas)
	return areas
}

func (s *WorkbookSource) Open(ctx context.Context, area string) (Store, error) {
	path, ok := s.paths[area]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownArea, area)
	}
	return &Workbook{path: path, worksheet: s.worksheet, fileMu: s.locks[path]}, nil
}

// Workbook is one worksheet of a local .xlsx file. The file is reopened on
// every call. fileMu only keeps concurrent saves from interleaving inside the
// zip container; it is not a row lock.
type Workbook struct {
	path      string
	worksheet string
	fileMu    *sync.Mutex
}

// NewWorkbook opens a single workbook worksheet as a store.
func NewWorkbook(path, worksheet string) *Workbook {
	return &Workbook{path: path, worksheet: worksheet, fileMu: &sync.Mutex{}}
}

func (w *Workbook) LoadRecords(ctx context.Context) ([]question.Record, error) {
	f, err := excelize.OpenFile(w.path)
	if err != nil {
		return nil, connectivity("open workbook", err)
	}
	defer f.Close()

	rows, err := f.GetRows(w.worksheet)
	if err != nil {
		return nil, connectivity("read worksheet "+w.worksheet, err)
	}
	return buildRecords(rows)
}

func (w *Workbook) UpdateCell(ctx context.Context, rowIndex, column int, value string) error {
	row, err := sheetRow(rowIndex)
	if err != nil {
		return err
	}
	cell, err := excelize.CoordinatesToCellName(column, row)
	if err != nil {
		return err
	}
	return w.modify("update cell "+cell, func(f *excelize.File) error {
		return f.SetCellValue(w.worksheet, cell, cellValue(value))
	})
}

func (w *Workbook) UpdateRow(ctx context.Context, rowIndex int, values []string) error {
	row, err := sheetRow(rowIndex)
	if err != nil {
		return err
	}
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	line := make([]interface{}, len(values))
	for idx, value := range values {
		line[idx] = cellValue(value)
	}
	return w.modify("update row "+cell, func(f *excelize.File) error {
		return f.SetSheetRow(w.worksheet, cell, &line)
	})
}

func (w *Workbook) Ping(ctx context.Context) error {
	f, err := excelize.OpenFile(w.path)
	if err != nil {
		return connectivity("ping", err)
	}
	defer f.Close()
	if idx, err := f.GetSheetIndex(w.worksheet); err != nil || idx < 0 {
		return connectivity("ping", fmt.Errorf("worksheet %q not found", w.worksheet))
	}
	return nil
}

func (w *Workbook) modify(op string, apply func(*excelize.File) error) error {
	w.fileMu.Lock()
	defer w.fileMu.Unlock()

	f, err := excelize.OpenFile(w.path)
	if err != nil {
		return connectivity(op, err)
	}
	defer f.Close()

	if err := apply(f); err != nil {
		return fmt.Errorf("row store %s: %w", op, err)
	}
	if err := f.Save(); err != nil {
		return connectivity(op, err)
	}
	return nil
}

// cellValue stores canonical whole numbers as numbers and everything else,
// including "001" and "3/4", as text.
func cellValue(value string) interface{} {
	if value == "" {
		return ""
	}
	if n, err := strconv.Atoi(value); err == nil && strconv.Itoa(n) == value {
		return n
	}
	return value
}
