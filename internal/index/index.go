// Package index derives the prefix/suffix key space of a question sheet and
// resolves a selected composite id back to its record.
package index

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"grammardesk/internal/question"
)

var (
	ErrNotFound   = errors.New("no record matches the selected id")
	ErrEmptyIndex = errors.New("prefix has no question numbers")
)

// DisplaySeparator joins a prefix and its category label for selection lists.
const DisplaySeparator = " // "

// Entry is one selectable (prefix, category) pair.
type Entry struct {
	Prefix   string `json:"prefix"`
	Category string `json:"category"`
}

// Display is the label shown in the category selector.
func (e Entry) Display() string {
	return e.Prefix + DisplaySeparator + e.Category
}

// ParseEntry splits a display label back into prefix and category.
func ParseEntry(display string) (Entry, error) {
	prefix, category, ok := strings.Cut(display, DisplaySeparator)
	if !ok || prefix == "" {
		return Entry{}, fmt.Errorf("malformed selection %q", display)
	}
	return Entry{Prefix: prefix, Category: category}, nil
}

// Catalog lists the distinct (prefix, category) pairs of records with an ID,
// sorted by display label.
func Catalog(records []question.Record) []Entry {
	seen := make(map[Entry]struct{})
	entries := make([]Entry, 0)
	for _, record := range records {
		id := record.ID()
		if id == "" {
			continue
		}
		entry := Entry{Prefix: question.Prefix(id), Category: record.Category()}
		if _, ok := seen[entry]; ok {
			continue
		}
		seen[entry] = struct{}{}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Display() < entries[j].Display()
	})
	return entries
}

// Suffixes lists the three character suffixes of records under prefix in
// ascending order.
func Suffixes(records []question.Record, prefix string) []string {
	out := make([]string, 0)
	for _, record := range records {
		id := record.ID()
		if id == "" || question.Prefix(id) != prefix {
			continue
		}
		out = append(out, question.Suffix(id))
	}
	sort.Strings(out)
	return out
}

// MaxSuffix is the numeric upper bound of a suffix list.
func MaxSuffix(suffixes []string) (int, error) {
	if len(suffixes) == 0 {
		return 0, ErrEmptyIndex
	}
	last := suffixes[len(suffixes)-1]
	n, err := strconv.Atoi(last)
	if err != nil {
		return 0, fmt.Errorf("suffix %q is not numeric: %w", last, err)
	}
	return n, nil
}

// Resolve returns the first record whose ID equals prefix-suffix.
func Resolve(records []question.Record, prefix, suffix string) (question.Record, error) {
	id := question.ComposeID(prefix, suffix)
	for _, record := range records {
		if record.ID() == id {
			return record, nil
		}
	}
	return question.Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}
