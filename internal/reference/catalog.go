package reference

import (
	"embed"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed data/*.yaml
var dataFS embed.FS

// Lookup is a table with its record type erased, for callers that pick tables by name
type Lookup interface {
	Name() string
	Len() int
	Get(key string) (any, bool)
	Search(query string) []any
	ByCategory(category string) []any
	AllCategories() []string
}

type erased[T Record] struct {
	*Table[T]
}

func (e erased[T]) Get(key string) (any, bool) {
	r, ok := e.Table.Get(key)
	if !ok {
		return nil, false
	}
	return r, true
}

func (e erased[T]) Search(query string) []any {
	return toAny(e.Table.Search(query))
}

func (e erased[T]) ByCategory(category string) []any {
	return toAny(e.Table.ByCategory(category))
}

func toAny[T Record](records []T) []any {
	out := make([]any, len(records))
	for i, r := range records {
		out[i] = r
	}
	return out
}

// Catalog holds every bundled table
type Catalog struct {
	Drugs         *Table[Drug]
	Labs          *Table[LabValue]
	Differentials *Table[Differential]
	Protocols     *Table[Protocol]
	Genetics      *Table[Genetic]
	Triads        *Table[Triad]
	Mnemonics     *Table[Mnemonic]
	Vaccinations  *Table[Vaccination]

	tables map[string]Lookup
}

// Load parses the embedded tables
func Load() (*Catalog, error) {
	c := &Catalog{tables: make(map[string]Lookup)}
	var err error

	if c.Drugs, err = loadTable[Drug]("drugs", OrderByRelevance); err != nil {
		return nil, err
	}
	if c.Labs, err = loadTable[LabValue]("labs", OrderByTitle); err != nil {
		return nil, err
	}
	if c.Differentials, err = loadTable[Differential]("differentials", OrderByTitle); err != nil {
		return nil, err
	}
	if c.Protocols, err = loadTable[Protocol]("protocols", OrderByTitle); err != nil {
		return nil, err
	}
	if c.Genetics, err = loadTable[Genetic]("genetics", OrderByTitle); err != nil {
		return nil, err
	}
	if c.Triads, err = loadTable[Triad]("triads", OrderByTitle); err != nil {
		return nil, err
	}
	if c.Mnemonics, err = loadTable[Mnemonic]("mnemonics", OrderByTitle); err != nil {
		return nil, err
	}
	if c.Vaccinations, err = loadTable[Vaccination]("vaccinations", OrderByTitle); err != nil {
		return nil, err
	}

	register(c, c.Drugs)
	register(c, c.Labs)
	register(c, c.Differentials)
	register(c, c.Protocols)
	register(c, c.Genetics)
	register(c, c.Triads)
	register(c, c.Mnemonics)
	register(c, c.Vaccinations)
	return c, nil
}

func register[T Record](c *Catalog, t *Table[T]) {
	c.tables[t.Name()] = erased[T]{t}
}

func loadTable[T Record](name string, ordering Ordering) (*Table[T], error) {
	data, err := dataFS.ReadFile("data/" + name + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("failed to read %s table: %w", name, err)
	}
	var records []T
	if err := yaml.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse %s table: %w", name, err)
	}
	for i, r := range records {
		if r.Key() == "" || r.Title() == "" {
			return nil, fmt.Errorf("%s table: record %d is missing key or name", name, i)
		}
	}
	return NewTable(name, ordering, records), nil
}

// Table returns a table by name
func (c *Catalog) Table(name string) (Lookup, bool) {
	t, ok := c.tables[name]
	return t, ok
}

// Names returns the table names, sorted
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.tables))
	for name := range c.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// InCategory keeps the Lookup results whose category equals category
func InCategory(results []any, category string) []any {
	out := []any{}
	for _, r := range results {
		if rec, ok := r.(Record); ok && rec.Category() == category {
			out = append(out, r)
		}
	}
	return out
}
