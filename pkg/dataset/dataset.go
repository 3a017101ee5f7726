// Package dataset decodes and validates the depot key table and the application catalog.
//
// Everything handed to the attribution engine passes through here first: identifiers are parsed
// and range-checked once, so the engine can treat its inputs as well formed.
package dataset

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/DrSkyle/depotmap/pkg/storage"
)

var (
	// ErrInvalidID is returned for identifiers that are not non-negative base-10 integers.
	ErrInvalidID = errors.New("invalid identifier")
	// ErrMalformed is returned when a document does not have the expected shape.
	ErrMalformed = errors.New("malformed dataset")
)

// DepotKeys maps a depot identifier to its key. Keys may be blank.
type DepotKeys map[int]string

// Key returns the key of a depot and whether it is usable.
func (k DepotKeys) Key(depot int) (string, bool) {
	key, ok := k[depot]
	if !ok || strings.TrimSpace(key) == "" {
		return "", false
	}
	return key, true
}

// DecodeDepotKeys reads a JSON object of the form {"<depot>": "<key>"}. A null key is kept as
// an empty key.
func DecodeDepotKeys(r io.Reader) (DepotKeys, error) {
	var raw map[string]*string
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: depot keys: %w", ErrMalformed, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: depot keys: document is null", ErrMalformed)
	}

	keys := make(DepotKeys, len(raw))
	for id, key := range raw {
		depot, err := parseID(id)
		if err != nil {
			return nil, err
		}
		if key == nil {
			keys[depot] = ""
			continue
		}
		keys[depot] = *key
	}
	return keys, nil
}

// parseID accepts only the canonical decimal form, so two keys of one document can never name
// the same depot.
func parseID(s string) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil || id < 0 || strconv.Itoa(id) != s {
		return 0, fmt.Errorf("%w: %q", ErrInvalidID, s)
	}
	return id, nil
}

// Catalog holds the known applications.
type Catalog struct {
	names   map[int]string
	skipped int
}

// NewCatalog builds a catalog from id to name pairs. Identifiers at or below zero are ignored.
func NewCatalog(names map[int]string) *Catalog {
	c := &Catalog{names: make(map[int]string, len(names))}
	for id, name := range names {
		c.add(id, name)
	}
	return c
}

func (c *Catalog) add(id int, name string) {
	if id <= 0 {
		c.skipped++
		return
	}
	c.names[id] = name
}

// Contains reports whether id is a known application.
func (c *Catalog) Contains(id int) bool {
	_, ok := c.names[id]
	return ok
}

// Name returns the display name of an application.
func (c *Catalog) Name(id int) (string, bool) {
	name, ok := c.names[id]
	return name, ok
}

// Len is the number of applications.
func (c *Catalog) Len() int {
	return len(c.names)
}

// Skipped is the number of entries rejected for having a reserved identifier.
func (c *Catalog) Skipped() int {
	return c.skipped
}

type appList struct {
	AppList *struct {
		Apps []struct {
			AppID *int   `json:"appid"`
			Name  string `json:"name"`
		} `json:"apps"`
	} `json:"applist"`
}

// DecodeCatalog reads the steamcmd application list:
// {"applist": {"apps": [{"appid": 10, "name": "Counter-Strike"}]}}.
// Later duplicates overwrite earlier names.
func DecodeCatalog(r io.Reader) (*Catalog, error) {
	var doc appList
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: catalog: %w", ErrMalformed, err)
	}
	if doc.AppList == nil || doc.AppList.Apps == nil {
		return nil, fmt.Errorf("%w: catalog: missing applist.apps", ErrMalformed)
	}

	c := &Catalog{names: make(map[int]string, len(doc.AppList.Apps))}
	for i, app := range doc.AppList.Apps {
		if app.AppID == nil {
			return nil, fmt.Errorf("%w: catalog: entry %d has no appid", ErrMalformed, i)
		}
		c.add(*app.AppID, app.Name)
	}
	return c, nil
}

// LoadDepotKeys fetches and decodes the depot key table stored under key.
func LoadDepotKeys(ctx context.Context, store storage.BlobStore, key string) (DepotKeys, error) {
	data, err := store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to read depot keys %q: %w", key, err)
	}
	return DecodeDepotKeys(bytes.NewReader(data))
}

// LoadCatalog fetches and decodes the application catalog stored under key.
func LoadCatalog(ctx context.Context, store storage.BlobStore, key string) (*Catalog, error) {
	data, err := store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %q: %w", key, err)
	}
	return DecodeCatalog(bytes.NewReader(data))
}
