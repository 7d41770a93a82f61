package syncx

import (
	"context"
	"errors"
	"fmt"
	"strconv"
)

// Persisted field names; each is stored under "<entity>_<field>".
const (
	FieldSeconds     = "lastPulledSeconds"
	FieldNanos       = "lastPulledNanos"
	FieldDocID       = "lastPulledDocId"
	FieldLastSuccess = "lastSuccessWallClockMs"
)

var ErrCorruptCursor = errors.New("corrupt cursor")

// KV is the flat key/value region cursors are persisted in.
type KV interface {
	List(ctx context.Context, prefix string) (map[string][]byte, error)
	SetMany(ctx context.Context, values map[string][]byte) error
	DeleteMany(ctx context.Context, keys ...string) error
}

// CursorStore loads and saves per-entity cursors. Only an entity's Puller
// should write its cursor.
type CursorStore struct {
	kv KV
}

func NewCursorStore(kv KV) *CursorStore {
	return &CursorStore{kv: kv}
}

// Key returns the storage key of field for entity.
func Key(entity, field string) string {
	return entity + "_" + field
}

// Load returns the stored cursor of entity. Missing fields read as zero. A
// field that does not parse yields ErrCorruptCursor together with the zero
// cursor.
func (s *CursorStore) Load(ctx context.Context, entity string) (Cursor, error) {
	values, err := s.kv.List(ctx, entity+"_")
	if err != nil {
		return Cursor{}, fmt.Errorf("load cursor %s: %w", entity, err)
	}

	var c Cursor
	if c.Seconds, err = parseInt(values, Key(entity, FieldSeconds), 64); err != nil {
		return Cursor{}, err
	}
	nanos, err := parseInt(values, Key(entity, FieldNanos), 32)
	if err != nil {
		return Cursor{}, err
	}
	c.Nanos = int32(nanos)
	if c.LastSuccessWallMs, err = parseInt(values, Key(entity, FieldLastSuccess), 64); err != nil {
		return Cursor{}, err
	}
	c.DocID = string(values[Key(entity, FieldDocID)])
	return c, nil
}

// Save persists all four fields of c in one transaction.
func (s *CursorStore) Save(ctx context.Context, entity string, c Cursor) error {
	err := s.kv.SetMany(ctx, map[string][]byte{
		Key(entity, FieldSeconds):     []byte(strconv.FormatInt(c.Seconds, 10)),
		Key(entity, FieldNanos):       []byte(strconv.FormatInt(int64(c.Nanos), 10)),
		Key(entity, FieldDocID):       []byte(c.DocID),
		Key(entity, FieldLastSuccess): []byte(strconv.FormatInt(c.LastSuccessWallMs, 10)),
	})
	if err != nil {
		return fmt.Errorf("save cursor %s: %w", entity, err)
	}
	return nil
}

// Reset forgets entity's cursor so the next pull re-scans the collection.
func (s *CursorStore) Reset(ctx context.Context, entity string) error {
	err := s.kv.DeleteMany(ctx,
		Key(entity, FieldSeconds), Key(entity, FieldNanos),
		Key(entity, FieldDocID), Key(entity, FieldLastSuccess))
	if err != nil {
		return fmt.Errorf("reset cursor %s: %w", entity, err)
	}
	return nil
}

func parseInt(values map[string][]byte, key string, bits int) (int64, error) {
	raw, ok := values[key]
	if !ok || len(raw) == 0 {
		return 0, nil
	}
	v, err := strconv.ParseInt(string(raw), 10, bits)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", ErrCorruptCursor, key, raw)
	}
	return v, nil
}
