// Package syncx holds the Puller's resumable position in a remote collection
// and its persistence in the local metadata table.
package syncx

import "time"

// Cursor is the last remote position an entity's Puller committed, plus the
// wall-clock time of its last successful run.
//
// A zero Seconds/Nanos pair means no position has been observed yet and the
// next pull scans from the beginning. LastSuccessWallMs is 0 when no run has
// completed.
type Cursor struct {
	Seconds           int64
	Nanos             int32
	DocID             string
	LastSuccessWallMs int64
}

// CursorAt returns a cursor positioned at t and docID with no recorded success.
func CursorAt(t time.Time, docID string) Cursor {
	return Cursor{Seconds: t.Unix(), Nanos: int32(t.Nanosecond()), DocID: docID}
}

// IsZero reports whether no position has been observed.
func (c Cursor) IsZero() bool {
	return c.Seconds == 0 && c.Nanos == 0
}

// Instant is the cursor position as a time.
func (c Cursor) Instant() time.Time {
	return time.Unix(c.Seconds, int64(c.Nanos)).UTC()
}

// LastSuccess returns the last successful run time, or the zero time.
func (c Cursor) LastSuccess() time.Time {
	if c.LastSuccessWallMs == 0 {
		return time.Time{}
	}
	return time.UnixMilli(c.LastSuccessWallMs).UTC()
}

// WithSuccess returns a copy of c stamped as successful at now.
func (c Cursor) WithSuccess(now time.Time) Cursor {
	c.LastSuccessWallMs = now.UnixMilli()
	return c
}
