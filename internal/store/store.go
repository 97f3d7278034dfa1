// Package store is sinkron's persistence layer: collections, documents,
// groups, and membership, backed by Postgres. Row shapes are grounded on
// original_source/sinkron/src/models.rs and schema.rs; the colrev bump is
// the one operation every mutation path in internal/actors depends on.
package store

import (
	"context"
	"time"
)

// Collection is a row of the collections table.
type Collection struct {
	Id          string `json:"id"`
	IsRef       bool   `json:"isRef"`
	Colrev      int64  `json:"colrev"`
	Permissions string `json:"permissions"` // JSON-encoded permissions.Permissions
}

// Document is a row of the documents table. Data is nil for tombstoned
// (deleted) documents. Permissions is set at creation time: the admin
// API's per-document override when one is given (SPEC_FULL §12.2),
// otherwise a copy of the collection's permissions.
type Document struct {
	Id          string    `json:"id"`
	ColId       string    `json:"col"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	Colrev      int64     `json:"colrev"`
	Data        []byte    `json:"data,omitempty"`
	IsDeleted   bool      `json:"isDeleted"`
	Permissions string    `json:"permissions,omitempty"`
}

// Group is a row of the groups table, with its resolved membership.
type Group struct {
	Id      string   `json:"id"`
	Members []string `json:"members"`
}

// Ref is a row of the refs table (SPEC_FULL §12.5): scaffolded in the
// schema, not yet acted on by the sync engine.
type Ref struct {
	Id        string
	IsRemoved bool
	Colrev    int64
	ColId     string
	DocId     string
}

// ErrNotFound is returned by lookups that find no matching row.
var ErrNotFound = errNotFound{}

type errNotFound struct{}

func (errNotFound) Error() string { return "not found" }

// Store is the persistence interface the actor system depends on. The
// production implementation is Postgres-backed (postgres.go); tests may
// substitute an in-memory fake.
type Store interface {
	GetCollection(ctx context.Context, id string) (*Collection, error)
	CreateCollection(ctx context.Context, id string, isRef bool, permissions string) (*Collection, error)
	UpdateCollectionPermissions(ctx context.Context, id, permissions string) error
	IncrementColrev(ctx context.Context, colId string) (int64, error)

	GetDocument(ctx context.Context, colId, docId string) (*Document, error)
	// ListChangedSince returns documents in colId per spec.md §4.2.1's
	// sync branching: sinceColrev == 0 returns all non-deleted documents
	// ordered by created_at ascending; sinceColrev > 0 returns every
	// document (including tombstones) with colrev > sinceColrev.
	ListChangedSince(ctx context.Context, colId string, sinceColrev int64) ([]*Document, error)
	CreateDocument(ctx context.Context, colId, docId string, data []byte, colrev int64, permissions string) (*Document, error)
	UpdateDocument(ctx context.Context, colId, docId string, data []byte, colrev int64) (*Document, error)
	DeleteDocument(ctx context.Context, colId, docId string, colrev int64) (*Document, error)
	UpdateDocumentPermissions(ctx context.Context, colId, docId, permissions string) error

	CreateGroup(ctx context.Context, id string) (*Group, error)
	GetGroup(ctx context.Context, id string) (*Group, error)
	// DeleteGroup returns the ids of users who were members at the time
	// of deletion, so callers can invalidate their cached group
	// membership (spec.md §4.4, SPEC_FULL supplemented over the
	// original's unimplemented TODO).
	DeleteGroup(ctx context.Context, id string) ([]string, error)
	AddUserToGroup(ctx context.Context, group, user string) error
	RemoveUserFromGroup(ctx context.Context, group, user string) error
	// RemoveUserFromAllGroups returns the ids of groups the user was
	// removed from.
	RemoveUserFromAllGroups(ctx context.Context, user string) ([]string, error)
	GetUserGroups(ctx context.Context, user string) ([]string, error)

	Close()
}
