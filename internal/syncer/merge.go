package syncer

import "github.com/dmitrijs2005/caresync/internal/models"

// Winner names the side Resolve picked.
type Winner int

const (
	KeepLocal Winner = iota
	TakeRemote
)

// Resolve applies the conflict rule to two candidates for one identity:
//
//  1. no remote: keep local
//  2. no local: take remote, clean
//  3. local dirty: keep local
//  4. higher version wins
//  5. newer updatedAt (millisecond resolution) wins
//  6. full tie: keep local, so a local tombstone is never resurrected
//
// The returned record is local itself or a clean copy of remote.
func Resolve(local, remote *models.Record) (*models.Record, Winner) {
	switch {
	case remote == nil:
		return local, KeepLocal
	case local == nil:
		return clean(remote), TakeRemote
	case local.IsDirty:
		return local, KeepLocal
	case remote.Version != local.Version:
		if remote.Version > local.Version {
			return clean(remote), TakeRemote
		}
		return local, KeepLocal
	case remote.UpdatedAtMillis() > local.UpdatedAtMillis():
		return clean(remote), TakeRemote
	default:
		return local, KeepLocal
	}
}

func clean(r *models.Record) *models.Record {
	c := r.Clone()
	c.IsDirty = false
	return c
}
