package artifact

import (
	"bytes"
	"encoding/json"
	"slices"
	"strconv"
)

// Entry describes one owner in depot_mapping.json.
type Entry struct {
	Name       string   `json:"name"`
	Depots     []string `json:"depots"`
	DepotCount int      `json:"depot_count"`
	Known      bool     `json:"is_known_app"`
	Generated  bool     `json:"file_generated"`
}

// Mapping is the per-owner record of a run, including owners whose script was not generated.
// It marshals as a JSON object keyed by owner id in ascending numeric order.
type Mapping struct {
	entries map[int]Entry
}

// NewMapping returns an empty Mapping.
func NewMapping() *Mapping {
	return &Mapping{entries: make(map[int]Entry)}
}

func (m *Mapping) set(owner int, e Entry) {
	m.entries[owner] = e
}

// Len is the number of owners recorded.
func (m *Mapping) Len() int {
	return len(m.entries)
}

// Entry returns the record of one owner.
func (m *Mapping) Entry(owner int) (Entry, bool) {
	e, ok := m.entries[owner]
	return e, ok
}

// Owners returns the recorded owners in ascending order.
func (m *Mapping) Owners() []int {
	owners := make([]int, 0, len(m.entries))
	for owner := range m.entries {
		owners = append(owners, owner)
	}
	slices.Sort(owners)
	return owners
}

// Ranked is an Entry paired with its owner.
type Ranked struct {
	Owner int
	Entry
}

// Top returns up to n owners with the most depots. Owners with equal counts keep ascending id
// order.
func (m *Mapping) Top(n int) []Ranked {
	ranked := make([]Ranked, 0, len(m.entries))
	for _, owner := range m.Owners() {
		ranked = append(ranked, Ranked{Owner: owner, Entry: m.entries[owner]})
	}
	slices.SortStableFunc(ranked, func(a, b Ranked) int {
		return b.DepotCount - a.DepotCount
	})
	if n >= 0 && len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

// MarshalJSON writes owners in ascending numeric order.
func (m *Mapping) MarshalJSON() ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('{')
	for i, owner := range m.Owners() {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Quote(strconv.Itoa(owner)))
		b.WriteByte(':')
		if err := encodeJSON(&b, m.entries[owner], false); err != nil {
			return nil, err
		}
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}

// Statistics is the content of statistics.json.
type Statistics struct {
	KnownApps      int `json:"known_apps"`
	UnknownApps    int `json:"unknown_apps"`
	SkippedUnknown int `json:"skipped_unknown"`
	SkippedByRule  int `json:"skipped_by_rule"`
	TotalDepots    int `json:"total_depots"`
}

// Owners is the number of owners recorded in the mapping.
func (s Statistics) Owners() int {
	return s.KnownApps + s.UnknownApps
}

// Quality is the percentage of recorded owners that are known applications.
func (s Statistics) Quality() float64 {
	if s.Owners() == 0 {
		return 0
	}
	return float64(s.KnownApps) / float64(s.Owners()) * 100
}

// encodeJSON writes v without HTML escaping. Indented output ends with a newline.
func encodeJSON(b *bytes.Buffer, v any, indent bool) error {
	enc := json.NewEncoder(b)
	enc.SetEscapeHTML(false)
	if indent {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		return err
	}
	if !indent {
		b.Truncate(b.Len() - 1)
	}
	return nil
}
