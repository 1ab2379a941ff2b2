package question

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// Field is one name/value pair of a record, in header order.
type Field struct {
	Name  string
	Value string
}

// Record is one data row of a question sheet. Index is the 0-based position
// among the data rows as loaded; the sheet row is Index + HeaderOffset.
type Record struct {
	Index  int
	Schema *Schema
	Values []string
}

// HeaderOffset converts a 0-based record index into the sheet's 1-based row
// number, skipping the header row.
const HeaderOffset = 2

// NewRecord aligns values with the schema, padding short rows with empty
// strings and dropping cells past the last header column.
func NewRecord(index int, schema *Schema, values []string) Record {
	aligned := make([]string, schema.Len())
	copy(aligned, values)
	return Record{Index: index, Schema: schema, Values: aligned}
}

// SheetRow is the 1-based sheet row holding this record.
func (r Record) SheetRow() int {
	return r.Index + HeaderOffset
}

// Get returns the value of a named field, or "" when the header lacks it.
func (r Record) Get(name string) string {
	pos, ok := r.Schema.Position(name)
	if !ok || pos >= len(r.Values) {
		return ""
	}
	return r.Values[pos]
}

// Lookup is Get with a presence flag.
func (r Record) Lookup(name string) (string, bool) {
	pos, ok := r.Schema.Position(name)
	if !ok || pos >= len(r.Values) {
		return "", false
	}
	return r.Values[pos], true
}

// Fields lists the record in header order.
func (r Record) Fields() []Field {
	names := r.Schema.names
	out := make([]Field, len(names))
	for idx, name := range names {
		out[idx] = Field{Name: name, Value: r.Values[idx]}
	}
	return out
}

// Row returns a copy of the values in header order.
func (r Record) Row() []string {
	out := make([]string, len(r.Values))
	copy(out, r.Values)
	return out
}

// ID is the composite identifier of the record.
func (r Record) ID() string {
	return strings.TrimSpace(r.Get(FieldID))
}

// Category is the subcategory label paired with the prefix.
func (r Record) Category() string {
	return r.Get(FieldCategory)
}

// Stage parses the stage field. ok is false for empty or non-numeric values.
func (r Record) Stage() (int, bool) {
	raw := strings.TrimSpace(r.Get(FieldStage))
	if raw == "" {
		return 0, false
	}
	stage, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return stage, true
}

// ShowsImages reports whether the instructions ask for a picture.
func (r Record) ShowsImages() bool {
	return strings.Contains(r.Get(FieldInstructions), ImageMarker)
}

// Prefix is everything but the last four runes of id ("-" plus the suffix).
func Prefix(id string) string {
	n := utf8.RuneCountInString(id)
	if n <= 4 {
		return ""
	}
	runes := []rune(id)
	return string(runes[:n-4])
}

// Suffix is the last three runes of id, zero padded to three characters.
func Suffix(id string) string {
	runes := []rune(id)
	if len(runes) > 3 {
		runes = runes[len(runes)-3:]
	}
	return PadSuffix(string(runes))
}

// PadSuffix left-pads a suffix with zeros to three characters.
func PadSuffix(suffix string) string {
	suffix = strings.TrimSpace(suffix)
	for utf8.RuneCountInString(suffix) < 3 {
		suffix = "0" + suffix
	}
	return suffix
}

// ComposeID joins a prefix and a suffix into a composite identifier.
func ComposeID(prefix, suffix string) string {
	return prefix + "-" + PadSuffix(suffix)
}
