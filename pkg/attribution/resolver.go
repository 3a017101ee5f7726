// Package attribution assigns depots to the application that most likely owns them.
//
// No authoritative depot to application table exists, so ownership is inferred in two passes:
// a windowed nearest-owner search against the application catalog, then gap-based clustering of
// whatever the first pass could not place.
package attribution

// Search window around a depot, relative to its identifier. Applications are registered before
// their depots, so the window leans towards lower identifiers.
const (
	WindowBelow = 50
	WindowAbove = 10

	// AncestorBias scales the distance of candidates at or below the depot.
	AncestorBias = 0.8
)

// Catalog answers membership queries against the set of known application identifiers.
type Catalog interface {
	Contains(id int) bool
}

// IDSet is an in-memory Catalog.
type IDSet map[int]struct{}

// NewIDSet builds an IDSet from a list of identifiers.
func NewIDSet(ids ...int) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Contains reports whether id is a member.
func (s IDSet) Contains(id int) bool {
	_, ok := s[id]
	return ok
}

// Resolve finds the best-matching owner for a depot.
//
// An exact match wins outright. Otherwise every catalog member in
// [max(1, depotID-WindowBelow), depotID+WindowAbove) is scored by its distance to the depot,
// with candidates at or below the depot scaled by AncestorBias. The scan runs upwards and only a
// strictly smaller score replaces the current best, so ties go to the lowest candidate.
// Identifier 0 is never returned.
func Resolve(depotID int, catalog Catalog) (int, bool) {
	if depotID > 0 && catalog.Contains(depotID) {
		return depotID, true
	}

	lo := depotID - WindowBelow
	if lo < 1 {
		lo = 1
	}
	hi := depotID + WindowAbove

	best := 0
	found := false
	var bestDistance float64

	for c := lo; c < hi; c++ {
		if c <= 0 || !catalog.Contains(c) {
			continue
		}

		distance := float64(depotID - c)
		if distance < 0 {
			distance = -distance
		}
		if c <= depotID {
			distance *= AncestorBias
		}

		if !found || distance < bestDistance {
			best, bestDistance, found = c, distance, true
		}
	}

	return best, found
}
