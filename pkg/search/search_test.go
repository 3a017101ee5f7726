package search

import (
	"fmt"
	"testing"

	"github.com/DrSkyle/depotmap/pkg/attribution"
	"github.com/DrSkyle/depotmap/pkg/dataset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newIndex(t *testing.T, opts ...Option) *Index {
	t.Helper()
	groups := attribution.Groups{
		10:   {10, 11},
		730:  {730, 731, 732},
		7300: {7300},
		9100: {9100},
	}
	catalog := dataset.NewCatalog(map[int]string{
		10:   "Counter-Strike",
		730:  "Counter-Strike 2",
		7300: "Portal Stories",
	})
	ix, err := New(groups, catalog, opts...)
	require.NoError(t, err)
	return ix
}

func owners(results []Result) []int {
	ids := make([]int, len(results))
	for i, r := range results {
		ids[i] = r.Owner
	}
	return ids
}

func TestSearchByName(t *testing.T) {
	ix := newIndex(t)
	assert.Equal(t, 4, ix.Len())

	assert.Equal(t, []int{10, 730}, owners(ix.Search("counter")))
	assert.Equal(t, []int{10, 730}, owners(ix.Search("  STRIKE ")))
	assert.Equal(t, []int{9100}, owners(ix.Search("unknown game")))
}

func TestSearchByID(t *testing.T) {
	ix := newIndex(t)

	results := ix.Search("73")
	assert.Equal(t, []int{730, 7300}, owners(results))
	assert.Equal(t, Result{Owner: 730, Name: "Counter-Strike 2", Known: true, Depots: 3}, results[0])
}

func TestSearchShortQuery(t *testing.T) {
	ix := newIndex(t)

	assert.Empty(t, ix.Search(""))
	assert.Empty(t, ix.Search("c"))
	assert.Empty(t, ix.Search("  7  "))
}

func TestSearchLimit(t *testing.T) {
	groups := make(attribution.Groups)
	for id := 1000; id < 1200; id++ {
		groups[id] = []int{id}
	}
	ix, err := New(groups, dataset.NewCatalog(nil), WithLimit(5), WithCacheSize(2))
	require.NoError(t, err)

	got := ix.Search("11")
	assert.Equal(t, []int{1011, 1100, 1101, 1102, 1103}, owners(got))
}

func TestSearchCachedResultsAreIsolated(t *testing.T) {
	ix := newIndex(t)

	first := ix.Search("counter")
	first[0].Name = "mutated"

	again := ix.Search("counter")
	assert.Equal(t, "Counter-Strike", again[0].Name)
}

func TestSearchConcurrent(t *testing.T) {
	ix := newIndex(t)
	done := make(chan []int)
	for i := 0; i < 8; i++ {
		go func(i int) {
			done <- owners(ix.Search(fmt.Sprintf("%d", 730+i%2*6570)))
		}(i)
	}
	for i := 0; i < 8; i++ {
		assert.NotEmpty(t, <-done)
	}
}
