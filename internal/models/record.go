// Package models defines the syncable records shared by the local store,
// the remote store adapters and the sync engine.
package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Record is one syncable row of an entity, keyed by ID.
//
// Data holds the entity's domain fields as a JSON object; everything else is
// the sync envelope.
type Record struct {
	// ID is the stable identity of the record. Non-empty once synced.
	ID string

	// Data contains the domain payload (see Child, Event, ...).
	Data json.RawMessage

	// CreatedAt is set once at creation and never decreases.
	CreatedAt time.Time

	// UpdatedAt is advanced on every accepted write.
	UpdatedAt time.Time

	// Version is incremented by exactly one on every successful remote write.
	Version int64

	// IsDirty marks local edits that have not been confirmed pushed.
	IsDirty bool

	// IsDeleted and DeletedAt form the tombstone pair.
	IsDeleted bool
	DeletedAt *time.Time
}

// NewRecord creates a dirty, never-synced record with a fresh identity.
func NewRecord(data json.RawMessage, now time.Time) *Record {
	return &Record{
		ID:        uuid.NewString(),
		Data:      data,
		CreatedAt: now,
		UpdatedAt: now,
		IsDirty:   true,
	}
}

// Clone returns a deep copy of r.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	if r.Data != nil {
		c.Data = append(json.RawMessage(nil), r.Data...)
	}
	if r.DeletedAt != nil {
		t := *r.DeletedAt
		c.DeletedAt = &t
	}
	return &c
}

// Touch records a local edit at now.
func (r *Record) Touch(now time.Time) {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	r.IsDirty = true
}

// MarkDeleted turns r into a dirty tombstone. Deletions replicate like any
// other update, so UpdatedAt moves forward too.
func (r *Record) MarkDeleted(now time.Time) {
	r.IsDeleted = true
	t := now
	r.DeletedAt = &t
	r.Touch(now)
}

// UpdatedAtMillis is the comparison key used by conflict resolution.
func (r *Record) UpdatedAtMillis() int64 {
	return r.UpdatedAt.UnixMilli()
}
