// Package core defines the domain types shared by every storage backend:
// schemaless documents, equality predicates, backend descriptors and the
// connection-state machine.
package core

import "reflect"

// IDField is the document field every backend keys on. It is assigned at
// insert time when absent and must never be empty afterwards.
const IDField = "id"

// Document is a schemaless key-value record. Values are restricted to what
// survives a JSON round-trip (strings, float64 numbers, bools, nested maps
// and slices) so the three backends agree on equality.
type Document map[string]any

// ID returns the document's id field, or "" when unset or not a string.
func (d Document) ID() string {
	id, _ := d[IDField].(string)
	return id
}

// Clone returns a shallow copy. Top-level keys are copied; nested values
// are shared.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Merge shallow-merges patch into a copy of the document and returns it.
// Patch keys overwrite existing keys; all other fields are preserved.
func (d Document) Merge(patch Document) Document {
	out := d.Clone()
	if out == nil {
		out = make(Document, len(patch))
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}

// Predicate is a conjunction of field equality matches. An empty predicate
// matches every document.
type Predicate map[string]any

// Matches reports whether every predicate field is present in doc with an
// equal value. Used by backends that filter scans in memory.
func (p Predicate) Matches(doc Document) bool {
	for field, want := range p {
		got, ok := doc[field]
		if !ok || !reflect.DeepEqual(got, want) {
			return false
		}
	}
	return true
}
