package rowstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"grammardesk/internal/question"
)

// Value input options for the Sheets values API. Single cells are parsed the
// way a user typing them would be; whole rows go back verbatim.
const (
	inputUserEntered = "USER_ENTERED"
	inputRaw         = "RAW"
)

// valueRange is the slice of the Sheets values API the adapter needs.
type valueRange interface {
	Get(ctx context.Context, spreadsheetID, a1 string) ([][]any, error)
	Update(ctx context.Context, spreadsheetID, a1 string, values [][]any, input string) error
	Meta(ctx context.Context, spreadsheetID string) error
}

type googleValues struct {
	svc *sheets.Service
}

func (g googleValues) Get(ctx context.Context, spreadsheetID, a1 string) ([][]any, error) {
	resp, err := g.svc.Spreadsheets.Values.Get(spreadsheetID, a1).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	out := make([][]any, len(resp.Values))
	for idx, row := range resp.Values {
		out[idx] = append([]any(nil), row...)
	}
	return out, nil
}

func (g googleValues) Update(ctx context.Context, spreadsheetID, a1 string, values [][]any, input string) error {
	body := &sheets.ValueRange{Values: make([][]interface{}, len(values))}
	for idx, row := range values {
		body.Values[idx] = append([]interface{}(nil), row...)
	}
	_, err := g.svc.Spreadsheets.Values.Update(spreadsheetID, a1, body).
		ValueInputOption(input).
		Context(ctx).
		Do()
	return err
}

func (g googleValues) Meta(ctx context.Context, spreadsheetID string) error {
	_, err := g.svc.Spreadsheets.Get(spreadsheetID).Fields("spreadsheetId").Context(ctx).Do()
	return err
}

// SheetsSource opens one worksheet per grammar area through a shared Sheets
// API client.
type SheetsSource struct {
	values    valueRange
	worksheet string
	sheetIDs  map[string]string
}

// NewSheetsSource authorizes a Sheets API client from a service-account JSON.
func NewSheetsSource(ctx context.Context, credentialsJSON []byte, worksheet string, sheetIDs map[string]string) (*SheetsSource, error) {
	svc, err := sheets.NewService(ctx,
		option.WithCredentialsJSON(credentialsJSON),
		option.WithScopes(sheets.SpreadsheetsScope, sheets.DriveFileScope),
	)
	if err != nil {
		return nil, connectivity("authorize", err)
	}
	return newSheetsSource(googleValues{svc: svc}, worksheet, sheetIDs), nil
}

func newSheetsSource(values valueRange, worksheet string, sheetIDs map[string]string) *SheetsSource {
	ids := make(map[string]string, len(sheetIDs))
	for area, id := range sheetIDs {
		ids[area] = id
	}
	return &SheetsSource{values: values, worksheet: worksheet, sheetIDs: ids}
}

func (s *SheetsSource) Areas() []string {
	areas := make([]string, 0, len(s.sheetIDs))
	for area := range s.sheetIDs {
		areas = append(areas, area)
	}
	sort.Strings(areas)
	return areas
}

func (s *SheetsSource) Open(ctx context.Context, area string) (Store, error) {
	id, ok := s.sheetIDs[area]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownArea, area)
	}
	return &Sheets{values: s.values, spreadsheetID: id, worksheet: s.worksheet}, nil
}

// Sheets is one worksheet of a Google spreadsheet.
type Sheets struct {
	values        valueRange
	spreadsheetID string
	worksheet     string
}

func (s *Sheets) LoadRecords(ctx context.Context) ([]question.Record, error) {
	raw, err := s.values.Get(ctx, s.spreadsheetID, quoteSheet(s.worksheet))
	if err != nil {
		return nil, classify("load", err)
	}
	grid := make([][]string, len(raw))
	for idx, row := range raw {
		grid[idx] = make([]string, len(row))
		for col, cell := range row {
			grid[idx][col] = cellString(cell)
		}
	}
	return buildRecords(grid)
}

func (s *Sheets) UpdateCell(ctx context.Context, rowIndex, column int, value string) error {
	row, err := sheetRow(rowIndex)
	if err != nil {
		return err
	}
	cell, err := excelize.CoordinatesToCellName(column, row)
	if err != nil {
		return err
	}
	if err := s.values.Update(ctx, s.spreadsheetID, quoteSheet(s.worksheet)+"!"+cell, [][]any{{value}}, inputUserEntered); err != nil {
		return classify("update cell "+cell, err)
	}
	return nil
}

func (s *Sheets) UpdateRow(ctx context.Context, rowIndex int, values []string) error {
	row, err := sheetRow(rowIndex)
	if err != nil {
		return err
	}
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	// Untouched cells come back as loaded. Whole numbers stay numeric and
	// everything else is stored as text, never re-parsed as dates or formulas.
	line := make([]any, len(values))
	for idx, value := range values {
		line[idx] = cellValue(value)
	}
	if err := s.values.Update(ctx, s.spreadsheetID, quoteSheet(s.worksheet)+"!"+cell, [][]any{line}, inputRaw); err != nil {
		return classify("update row "+cell, err)
	}
	return nil
}

func (s *Sheets) Ping(ctx context.Context) error {
	if err := s.values.Meta(ctx, s.spreadsheetID); err != nil {
		return classify("ping", err)
	}
	return nil
}

// classify keeps API-level rejections (bad range, bad value) as plain errors
// and reports transport and authorization failures as connectivity errors.
func classify(op string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound,
			http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable,
			http.StatusGatewayTimeout, http.StatusInternalServerError:
			return connectivity(op, err)
		default:
			return fmt.Errorf("row store %s: %w", op, err)
		}
	}
	return connectivity(op, err)
}

func quoteSheet(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

func cellString(cell any) string {
	switch v := cell.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%g", v)
	default:
		return fmt.Sprint(v)
	}
}
