package core

import (
	"fmt"
	"strings"
)

// existingOwner marks keys that belong to records already in the store.
const existingOwner = 0

// KeyIndex maps natural keys to the row that claimed them.
//
// It is filled once from persisted records and then incrementally, in file
// order, as rows are accepted. A row therefore only ever sees keys from
// persisted records and from earlier rows of the same file.
type KeyIndex struct {
	keys   []string
	owners map[string]int
}

// NewKeyIndex returns an index over the given natural key fields.
func NewKeyIndex(keys []string) *KeyIndex {
	return &KeyIndex{keys: keys, owners: make(map[string]int)}
}

// Duplicate describes why a row collides with an earlier one.
type Duplicate struct {
	Field string
	Value string
	Row   int // 0 when the owner is a persisted record
}

// Reason is the operator-facing explanation.
func (d Duplicate) Reason() string {
	if d.Row == existingOwner {
		return fmt.Sprintf("%s %q already exists", d.Field, d.Value)
	}
	return fmt.Sprintf("%s %q duplicates row %d", d.Field, d.Value, d.Row)
}

func indexKey(field string, value any) (string, string, bool) {
	s := strings.TrimSpace(FormatValue(value))
	if s == "" {
		return "", "", false
	}
	return field + "\x00" + strings.ToLower(s), s, true
}

// AddRecord registers the keys of a persisted record.
func (ix *KeyIndex) AddRecord(fields map[string]any) {
	ix.add(fields, existingOwner)
}

// Add registers the keys of an accepted row. Keys already claimed keep
// their first owner.
func (ix *KeyIndex) Add(fields map[string]any, row int) {
	ix.add(fields, row)
}

func (ix *KeyIndex) add(fields map[string]any, owner int) {
	for _, field := range ix.keys {
		key, _, ok := indexKey(field, fields[field])
		if !ok {
			continue
		}
		if _, taken := ix.owners[key]; !taken {
			ix.owners[key] = owner
		}
	}
}

// Find returns the first natural key of fields that is already claimed.
func (ix *KeyIndex) Find(fields map[string]any) (Duplicate, bool) {
	for _, field := range ix.keys {
		key, display, ok := indexKey(field, fields[field])
		if !ok {
			continue
		}
		if owner, taken := ix.owners[key]; taken {
			return Duplicate{Field: field, Value: display, Row: owner}, true
		}
	}
	return Duplicate{}, false
}

// Len returns the number of claimed keys.
func (ix *KeyIndex) Len() int {
	return len(ix.owners)
}

// FindDuplicate reports whether a validated row collides with the index
// on any of the module's natural keys.
func FindDuplicate(def ModuleDefinition, fields map[string]any, index *KeyIndex) (Duplicate, bool) {
	if len(def.NaturalKeys) == 0 || index == nil {
		return Duplicate{}, false
	}
	return index.Find(fields)
}
