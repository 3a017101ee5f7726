// Package search finds owners of an attribution run by name or identifier.
package search

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/DrSkyle/depotmap/pkg/attribution"
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	DefaultLimit     = 50
	DefaultCacheSize = 256
	MinQueryLength   = 2
)

// Names resolves an application identifier to its catalog name.
type Names interface {
	Name(id int) (string, bool)
}

// Result is one matching owner.
type Result struct {
	Owner  int
	Name   string
	Known  bool
	Depots int
}

type entry struct {
	Result
	lowerName string
	id        string
}

// Index answers substring queries over the owners of a run. It is safe for concurrent use.
type Index struct {
	entries []entry
	limit   int
	cache   *lru.Cache[string, []Result]
}

// Option configures an Index.
type Option func(*Index) error

// WithLimit caps the number of results per query.
func WithLimit(n int) Option {
	return func(ix *Index) error {
		if n > 0 {
			ix.limit = n
		}
		return nil
	}
}

// WithCacheSize sets how many distinct queries are memoized.
func WithCacheSize(n int) Option {
	return func(ix *Index) error {
		if n <= 0 {
			return nil
		}
		cache, err := lru.New[string, []Result](n)
		if err != nil {
			return fmt.Errorf("failed to create search cache: %w", err)
		}
		ix.cache = cache
		return nil
	}
}

// New indexes every owner of groups.
func New(groups attribution.Groups, names Names, opts ...Option) (*Index, error) {
	cache, err := lru.New[string, []Result](DefaultCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create search cache: %w", err)
	}
	ix := &Index{limit: DefaultLimit, cache: cache}
	for _, opt := range opts {
		if err := opt(ix); err != nil {
			return nil, err
		}
	}

	owners := groups.Owners()
	ix.entries = make([]entry, 0, len(owners))
	for _, owner := range owners {
		name, known := names.Name(owner)
		if !known {
			name = fmt.Sprintf("Unknown Game %d", owner)
		}
		ix.entries = append(ix.entries, entry{
			Result:    Result{Owner: owner, Name: name, Known: known, Depots: len(groups[owner])},
			lowerName: strings.ToLower(name),
			id:        strconv.Itoa(owner),
		})
	}
	return ix, nil
}

// Len is the number of indexed owners.
func (ix *Index) Len() int {
	return len(ix.entries)
}

// Search returns owners whose name contains query, ignoring case, or whose decimal identifier
// contains it. Results are in ascending owner order. Queries shorter than two characters match
// nothing.
func (ix *Index) Search(query string) []Result {
	q := strings.ToLower(strings.TrimSpace(query))
	if utf8.RuneCountInString(q) < MinQueryLength {
		return nil
	}
	if hit, ok := ix.cache.Get(q); ok {
		return slices.Clone(hit)
	}

	var results []Result
	for _, e := range ix.entries {
		if strings.Contains(e.lowerName, q) || strings.Contains(e.id, q) {
			results = append(results, e.Result)
			if len(results) == ix.limit {
				break
			}
		}
	}
	ix.cache.Add(q, results)
	return slices.Clone(results)
}
