// Package reference serves the read-only clinical lookup tables bundled with the gateway.
package reference

import (
	"sort"
	"strings"
)

// MinQueryLength is the shortest query Search answers
const MinQueryLength = 2

// Record is one row of a reference table
type Record interface {
	Key() string
	Title() string
	Category() string
	// SearchFields are the human-readable fields a query is matched against.
	SearchFields() []string
}

// Entry holds the fields every record shares
type Entry struct {
	ID    string `yaml:"key" json:"key"`
	Name  string `yaml:"name" json:"name"`
	Group string `yaml:"category" json:"category"`
}

func (e Entry) Key() string      { return e.ID }
func (e Entry) Title() string    { return e.Name }
func (e Entry) Category() string { return e.Group }

// Ordering decides how search results are ranked
type Ordering int

const (
	// OrderByTitle sorts matches alphabetically by title
	OrderByTitle Ordering = iota
	// OrderByRelevance puts an exact title match first, then title prefixes, then the rest alphabetically
	OrderByRelevance
)

// Table is an immutable keyed table with lookup helpers
type Table[T Record] struct {
	name     string
	ordering Ordering
	records  []T
	byKey    map[string]int
}

// NewTable indexes records by key. Later duplicates replace earlier ones.
func NewTable[T Record](name string, ordering Ordering, records []T) *Table[T] {
	t := &Table[T]{
		name:     name,
		ordering: ordering,
		byKey:    make(map[string]int, len(records)),
	}
	for _, r := range records {
		if i, ok := t.byKey[r.Key()]; ok {
			t.records[i] = r
			continue
		}
		t.byKey[r.Key()] = len(t.records)
		t.records = append(t.records, r)
	}
	return t
}

// Name returns the table name
func (t *Table[T]) Name() string { return t.name }

// Len returns the number of records
func (t *Table[T]) Len() int { return len(t.records) }

// All returns every record in load order
func (t *Table[T]) All() []T {
	out := make([]T, len(t.records))
	copy(out, t.records)
	return out
}

// Get returns the record stored under key
func (t *Table[T]) Get(key string) (T, bool) {
	i, ok := t.byKey[key]
	if !ok {
		var zero T
		return zero, false
	}
	return t.records[i], true
}

// Search returns records whose key or search fields contain query, ignoring case.
// Queries shorter than MinQueryLength match nothing.
func (t *Table[T]) Search(query string) []T {
	q := strings.ToLower(strings.TrimSpace(query))
	if len([]rune(q)) < MinQueryLength {
		return []T{}
	}

	matches := []T{}
	for _, r := range t.records {
		if matchesAny(q, r) {
			matches = append(matches, r)
		}
	}

	switch t.ordering {
	case OrderByRelevance:
		sort.SliceStable(matches, func(i, j int) bool {
			ri, rj := relevance(q, matches[i]), relevance(q, matches[j])
			if ri != rj {
				return ri < rj
			}
			return lowerTitle(matches[i]) < lowerTitle(matches[j])
		})
	default:
		sortByTitle(matches)
	}
	return matches
}

// ByCategory returns records whose category equals category
func (t *Table[T]) ByCategory(category string) []T {
	out := []T{}
	for _, r := range t.records {
		if r.Category() == category {
			out = append(out, r)
		}
	}
	sortByTitle(out)
	return out
}

// AllCategories returns the distinct non-empty categories, sorted
func (t *Table[T]) AllCategories() []string {
	seen := make(map[string]bool)
	out := []string{}
	for _, r := range t.records {
		c := r.Category()
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func matchesAny(q string, r Record) bool {
	if strings.Contains(strings.ToLower(r.Key()), q) || strings.Contains(lowerTitle(r), q) {
		return true
	}
	for _, field := range r.SearchFields() {
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	return false
}

func relevance(q string, r Record) int {
	title := lowerTitle(r)
	switch {
	case title == q:
		return 0
	case strings.HasPrefix(title, q):
		return 1
	default:
		return 2
	}
}

func lowerTitle(r Record) string {
	return strings.ToLower(r.Title())
}

func sortByTitle[T Record](records []T) {
	sort.SliceStable(records, func(i, j int) bool {
		return lowerTitle(records[i]) < lowerTitle(records[j])
	})
}
