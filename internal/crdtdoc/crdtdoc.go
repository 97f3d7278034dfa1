// Package crdtdoc wraps automerge-go behind the narrow Import/Apply/Save
// shape the CollectionActor's mutation pipeline needs. Stands in for the
// original Rust engine's embedded loro library (same
// snapshot/update/import/export shape, different CRDT implementation).
package crdtdoc

import (
	"fmt"

	"github.com/automerge/automerge-go"
)

// Doc is a single CRDT-backed document. It is not safe for concurrent
// use; callers serialize access to a document through the worker pool
// (spec.md §4.2.2 step 3).
type Doc struct {
	inner *automerge.Doc
}

// New creates an empty document with no history. The Create path does not
// use it: it stores the client's bytes as-is.
func New() *Doc {
	return &Doc{inner: automerge.New()}
}

// Import loads a document from a full snapshot, as persisted in
// store.Document.Data.
func Import(snapshot []byte) (*Doc, error) {
	d, err := automerge.Load(snapshot)
	if err != nil {
		return nil, fmt.Errorf("loading crdt snapshot: %w", err)
	}
	return &Doc{inner: d}, nil
}

// ApplyUpdate merges an incremental update (as sent by a client in a
// ChangeMessage) into the document.
func (d *Doc) ApplyUpdate(update []byte) error {
	if _, err := d.inner.LoadIncremental(update); err != nil {
		return fmt.Errorf("applying crdt update: %w", err)
	}
	return nil
}

// Save serializes the full document back to a snapshot for persistence.
func (d *Doc) Save() []byte {
	return d.inner.Save()
}
