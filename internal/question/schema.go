// Package question holds the record model shared by the row store, the
// identifier index and the field reconciler.
package question

import (
	"fmt"
	"strings"
)

// Header names used by the question sheets.
const (
	FieldID                = "ID"
	FieldStage             = "stage"
	FieldCategory          = "소분류"
	FieldType              = "type"
	FieldInstructions      = "instructions"
	FieldEPassage          = "e-passage"
	FieldSolve             = "solve"
	FieldExplanation       = "explanation"
	FieldTranslation       = "translation"
	FieldDuplicate         = "중복"
	FieldReviewComment     = "검토사항"
	FieldReviewExplanation = "해설 검토사항"
	FieldReviewStamp       = "검토 날짜"
)

// ImageMarker in the instructions field turns picture fields on.
const ImageMarker = "그림"

// IsImageField reports whether name is one of the picture URL columns.
func IsImageField(name string) bool {
	return strings.Contains(name, "picture")
}

// Schema is the header row of a question sheet with a named column map built
// once at load time.
type Schema struct {
	names   []string
	columns map[string]int
}

// NewSchema builds a schema from a header row. Empty header cells are kept so
// positional writes cover the whole row, but they are not addressable by name.
func NewSchema(header []string) (*Schema, error) {
	names := make([]string, len(header))
	columns := make(map[string]int, len(header))
	for idx, raw := range header {
		name := strings.TrimSpace(raw)
		names[idx] = name
		if name == "" {
			continue
		}
		if _, exists := columns[name]; exists {
			return nil, fmt.Errorf("duplicate header %q at column %d", name, idx+1)
		}
		columns[name] = idx + 1
	}
	return &Schema{names: names, columns: columns}, nil
}

// MustSchema is NewSchema for fixed headers in tests and fixtures.
func MustSchema(header ...string) *Schema {
	schema, err := NewSchema(header)
	if err != nil {
		panic(err)
	}
	return schema
}

// Names returns the header in sheet order.
func (s *Schema) Names() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// Len is the number of header columns.
func (s *Schema) Len() int {
	return len(s.names)
}

// Column returns the 1-based sheet column of a named field.
func (s *Schema) Column(name string) (int, bool) {
	col, ok := s.columns[name]
	return col, ok
}

// Position returns the 0-based index of a named field within a row.
func (s *Schema) Position(name string) (int, bool) {
	col, ok := s.columns[name]
	if !ok {
		return -1, false
	}
	return col - 1, true
}

// Has reports whether the header contains name.
func (s *Schema) Has(name string) bool {
	_, ok := s.columns[name]
	return ok
}
