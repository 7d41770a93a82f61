// Package remote defines the shared document store the engine synchronizes
// against: per-entity collections of documents ordered by a server-assigned
// update timestamp.
//
// Adapters report failures as gRPC status errors (see
// google.golang.org/grpc/status) so callers can classify them uniformly:
// codes.Unavailable and codes.FailedPrecondition are transient,
// codes.PermissionDenied is not.
package remote

import (
	"context"
	"errors"

	"google.golang.org/protobuf/types/known/timestamppb"
)

// MaxBatchWrites caps the operations of one atomic Commit.
const MaxBatchWrites = 500

var ErrBatchTooLarge = errors.New("batch exceeds write limit")

// Reserved document field names. They form the sync envelope and are never
// part of an entity payload.
const (
	FieldID        = "id"
	FieldVersion   = "version"
	FieldUpdatedAt = "updatedAt"
	FieldCreatedAt = "createdAt"
	FieldIsDeleted = "isDeleted"
	FieldDeletedAt = "deletedAt"
	FieldIsDirty   = "isDirty"
)

// Reserved reports whether name is an envelope field.
func Reserved(name string) bool {
	switch name {
	case FieldID, FieldVersion, FieldUpdatedAt, FieldCreatedAt, FieldIsDeleted, FieldDeletedAt, FieldIsDirty:
		return true
	}
	return false
}

// Document is one stored document. UpdatedAt and Version are nil when the
// stored document lacks them.
type Document struct {
	ID        string
	UpdatedAt *timestamppb.Timestamp
	Version   *int64
	// Fields holds every other field, including createdAt, isDeleted and
	// deletedAt when present. Timestamps are *timestamppb.Timestamp.
	Fields map[string]any
}

// Source selects where Get reads from.
type Source int

const (
	// Default lets the adapter answer from a cache.
	Default Source = iota
	// Server forces a fresh read from the backend.
	Server
)

// Position is a point in (updatedAt, id) order.
type Position struct {
	UpdatedAt *timestamppb.Timestamp
	ID        string
}

// Query selects a page of documents ordered by (updatedAt, id) ascending.
type Query struct {
	Collection string
	// From restricts results to updatedAt >= From. Nil means no lower bound.
	From *timestamppb.Timestamp
	// StartAfter, when set, skips every document at or before it.
	StartAfter *Position
	Limit      int
}

// Write is one merge-write of a Commit. Fields are merged into the stored
// document; fields not named are kept.
type Write struct {
	ID        string
	Version   int64
	UpdatedAt *timestamppb.Timestamp
	Fields    map[string]any
}

// Store is a remote document store.
type Store interface {
	// Query returns one page. Documents without updatedAt never match.
	Query(ctx context.Context, q Query) ([]*Document, error)
	// Get returns (nil, nil) when the document does not exist.
	Get(ctx context.Context, collection, id string, src Source) (*Document, error)
	// Commit applies all writes atomically or none of them.
	Commit(ctx context.Context, collection string, writes []Write) error
	// Delete removes the document. Deleting a missing document succeeds.
	Delete(ctx context.Context, collection, id string) error
}
