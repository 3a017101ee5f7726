// Package artifact renders attribution results into unlock scripts and the run's summary files.
package artifact

import (
	"bytes"
	"slices"
	"strconv"
)

// Keys resolves a depot to its usable key.
type Keys interface {
	Key(depot int) (string, bool)
}

// Names resolves an application identifier to its catalog name.
type Names interface {
	Name(id int) (string, bool)
}

// UsableDepots returns the depots that have a non-blank key, in ascending order.
func UsableDepots(depots []int, keys Keys) []int {
	usable := make([]int, 0, len(depots))
	for _, d := range depots {
		if _, ok := keys.Key(d); ok {
			usable = append(usable, d)
		}
	}
	slices.Sort(usable)
	return usable
}

// RenderLua builds the script for one owner:
//
//	addappid(<owner>)
//	addappid(<depot>,0,"<key>")
//
// with one depot line per usable depot in ascending order. There is no trailing newline.
func RenderLua(owner int, depots []int, keys Keys) []byte {
	var b bytes.Buffer
	b.WriteString("addappid(")
	b.WriteString(strconv.Itoa(owner))
	b.WriteString(")")

	for _, d := range UsableDepots(depots, keys) {
		key, _ := keys.Key(d)
		b.WriteString("\naddappid(")
		b.WriteString(strconv.Itoa(d))
		b.WriteString(`,0,"`)
		b.WriteString(key)
		b.WriteString(`")`)
	}
	return b.Bytes()
}

// ScriptName is the sink key of an owner's script.
func ScriptName(owner int) string {
	return strconv.Itoa(owner) + ".lua"
}
