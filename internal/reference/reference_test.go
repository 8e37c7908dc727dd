package reference

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := Load()
	require.NoError(t, err)
	return c
}

func keys[T Record](records []T) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Key()
	}
	return out
}

func TestLoad(t *testing.T) {
	c := loadCatalog(t)

	assert.Equal(t, []string{
		"differentials", "drugs", "genetics", "labs", "mnemonics", "protocols", "triads", "vaccinations",
	}, c.Names())

	for _, name := range c.Names() {
		table, ok := c.Table(name)
		require.True(t, ok)
		assert.Positive(t, table.Len(), name)
	}

	_, ok := c.Table("calculators")
	assert.False(t, ok)
}

func TestTable_Get(t *testing.T) {
	c := loadCatalog(t)

	triad, ok := c.Triads.Get("becks-triad")
	require.True(t, ok)
	assert.Equal(t, "Beck's Triad", triad.Title())
	assert.Equal(t, "Cardiac Tamponade", triad.Condition)
	assert.True(t, triad.Emergency())

	_, ok = c.Triads.Get("no-such-triad")
	assert.False(t, ok)
}

func TestTable_SearchMinimumLength(t *testing.T) {
	c := loadCatalog(t)

	for _, q := range []string{"", " ", "a", " a "} {
		assert.Empty(t, c.Drugs.Search(q), "query %q", q)
		assert.Empty(t, c.Mnemonics.Search(q), "query %q", q)
	}
}

func TestTable_SearchIgnoresCase(t *testing.T) {
	c := loadCatalog(t)

	for _, q := range []string{"cardiac", "statin", "fever", "sepsis"} {
		lower := keys(c.Drugs.Search(q))
		for _, variant := range []string{strings.ToUpper(q), strings.ToUpper(q[:1]) + q[1:]} {
			assert.Subset(t, lower, keys(c.Drugs.Search(variant)))
		}

		lowerTriads := keys(c.Triads.Search(q))
		assert.Subset(t, lowerTriads, keys(c.Triads.Search(strings.ToUpper(q))))
	}
}

func TestDrugSearch_ExactNameFirst(t *testing.T) {
	c := loadCatalog(t)

	results := c.Drugs.Search("aspirin")
	require.Len(t, results, 2)
	assert.Equal(t, []string{"aspirin", "aspirin-dipyridamole"}, keys(results))

	results = c.Drugs.Search("ASP")
	assert.Equal(t, []string{"aspirin", "aspirin-dipyridamole"}, keys(results))
}

func TestDrugSearch_MatchesClassAndIndication(t *testing.T) {
	c := loadCatalog(t)

	assert.Equal(t, []string{"atorvastatin"}, keys(c.Drugs.Search("statin")))
	assert.Contains(t, keys(c.Drugs.Search("pneumonia")), "amoxicillin")
}

func TestTable_SearchOrderedByTitle(t *testing.T) {
	c := loadCatalog(t)

	results := c.Triads.Search("ascending cholangitis")
	assert.Equal(t, []string{"charcots-triad"}, keys(results))

	results = c.Triads.Search("tension")
	assert.Equal(t, []string{"becks-triad", "cushings-triad"}, keys(results))
}

func TestDifferentialSearch_Presentations(t *testing.T) {
	c := loadCatalog(t)

	assert.Equal(t, []string{"chest-pain"}, keys(c.Differentials.Search("pulmonary embolism")))
	assert.Equal(t, []string{"headache"}, keys(c.Differentials.Search("jaw claudication")))
}

func TestTable_ByCategory(t *testing.T) {
	c := loadCatalog(t)

	cardio := c.Triads.ByCategory("cardiovascular")
	assert.Equal(t, []string{"becks-triad", "virchows-triad"}, keys(cardio))
	for _, r := range cardio {
		assert.Equal(t, "cardiovascular", r.Category())
	}

	assert.Empty(t, c.Triads.ByCategory("Cardiovascular"))
	assert.Empty(t, c.Triads.ByCategory("dermatology"))
}

func TestTable_AllCategories(t *testing.T) {
	c := loadCatalog(t)

	assert.Equal(t, []string{"cardiovascular", "emergency", "endocrine", "neurologic"}, c.Triads.AllCategories())
	assert.Equal(t, []string{"Complete Blood Count (CBC)", "Urea & Electrolytes"}, c.Labs.AllCategories())
}

func TestNewTable_DuplicateKeys(t *testing.T) {
	table := NewTable("triads", OrderByTitle, []Triad{
		{Entry: Entry{ID: "a", Name: "First"}},
		{Entry: Entry{ID: "b", Name: "Second"}},
		{Entry: Entry{ID: "a", Name: "Replaced"}},
	})

	assert.Equal(t, 2, table.Len())
	got, ok := table.Get("a")
	require.True(t, ok)
	assert.Equal(t, "Replaced", got.Title())
	assert.Equal(t, []string{"a", "b"}, keys(table.All()))
}

func TestLookup_Erased(t *testing.T) {
	c := loadCatalog(t)
	table, ok := c.Table("mnemonics")
	require.True(t, ok)

	results := table.Search("curb")
	require.Len(t, results, 1)
	m, ok := results[0].(Mnemonic)
	require.True(t, ok)
	assert.Equal(t, "CURB-65", m.Mnemonic)

	rec, ok := table.Get("fast-stroke")
	require.True(t, ok)
	assert.Equal(t, "FAST", rec.(Mnemonic).Mnemonic)

	assert.Len(t, table.ByCategory("respiratory"), 1)
}

func TestInCategory(t *testing.T) {
	c := loadCatalog(t)
	table, ok := c.Table("triads")
	require.True(t, ok)

	results := InCategory(table.Search("tension"), "neurologic")
	require.Len(t, results, 1)
	assert.Equal(t, "cushings-triad", results[0].(Record).Key())

	assert.Empty(t, InCategory(table.Search("tension"), "dermatology"))
}
