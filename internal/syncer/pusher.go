package syncer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/caresync/internal/common"
	"github.com/dmitrijs2005/caresync/internal/logging"
	"github.com/dmitrijs2005/caresync/internal/models"
	"github.com/dmitrijs2005/caresync/internal/remote"
)

// Pusher sends one entity's dirty local records to the remote store.
type Pusher struct {
	entity models.Entity
	local  LocalStore
	remote remote.Store
	log    logging.Logger
	opts   Options
}

func NewPusher(entity models.Entity, local LocalStore, rs remote.Store, log logging.Logger, opts Options) *Pusher {
	return &Pusher{
		entity: entity,
		local:  local,
		remote: rs,
		log:    log.With("unit", "pusher", "entity", entity.Name),
		opts:   opts.withDefaults(),
	}
}

// PushStats describes one push run.
type PushStats struct {
	Dirty       int
	Skipped     int
	ServerWins  int
	Undecodable int
	// Reedited counts server wins not applied because the record was
	// edited again while the push ran.
	Reedited int
	Pushed      int
}

// Push runs one push. It never reports PermanentFailure: every failure is
// retried and whatever is still dirty is picked up next time.
func (p *Pusher) Push(ctx context.Context) Result {
	stats, err := p.push(ctx)
	if err != nil {
		p.log.Error(ctx, "push failed", "error", err)
		return Retry
	}
	if stats.Dirty > 0 {
		p.log.Info(ctx, "push finished",
			"dirty", stats.Dirty, "pushed", stats.Pushed, "server_wins", stats.ServerWins,
			"undecodable", stats.Undecodable, "reedited", stats.Reedited, "skipped", stats.Skipped)
	}
	return Success
}

func (p *Pusher) push(ctx context.Context) (PushStats, error) {
	var stats PushStats

	dirty, err := p.local.LoadDirtyBatch(ctx, p.opts.PushBatchSize)
	if err != nil {
		return stats, fmt.Errorf("load dirty batch: %w", err)
	}
	stats.Dirty = len(dirty)
	if len(dirty) == 0 {
		return stats, nil
	}

	var resolved, outgoing []*models.Record
	seen := make(map[string]time.Time)
	for _, rec := range dirty {
		if strings.TrimSpace(rec.ID) == "" {
			stats.Skipped++
			p.log.Warn(ctx, "skipping dirty record", "error", p.recordError(rec.ID, common.ErrBlankID))
			continue
		}

		doc, err := p.remote.Get(ctx, p.entity.Collection, rec.ID, remote.Server)
		if err != nil {
			return stats, fmt.Errorf("read remote: %w", p.recordError(rec.ID, err))
		}
		if !serverWins(rec, doc) {
			outgoing = append(outgoing, rec)
			continue
		}

		winner, err := decodeDocument(p.entity, doc)
		if err != nil {
			stats.Undecodable++
			p.log.Warn(ctx, "remote winner cannot be decoded, keeping local edit dirty",
				"error", p.recordError(rec.ID, err))
			continue
		}
		winner.IsDirty = false
		resolved = append(resolved, winner)
		seen[rec.ID] = rec.UpdatedAt
	}

	if len(resolved) > 0 {
		reedited, err := p.local.ReplaceDirty(ctx, resolved, seen)
		if err != nil {
			return stats, fmt.Errorf("apply server wins: %w", err)
		}
		stats.Reedited = len(reedited)
		stats.ServerWins = len(resolved) - len(reedited)
	}
	if len(outgoing) == 0 {
		return stats, nil
	}

	now := p.opts.Now()
	writes := make([]remote.Write, 0, len(outgoing))
	pushed := make([]*models.Record, 0, len(outgoing))
	for _, rec := range outgoing {
		w, err := toWrite(rec, now)
		if err != nil {
			stats.Skipped++
			p.log.Warn(ctx, "skipping dirty record with unreadable payload", "error", p.recordError(rec.ID, err))
			continue
		}
		writes = append(writes, w)
		pushed = append(pushed, rec)
	}
	if len(writes) == 0 {
		return stats, nil
	}

	if err := p.remote.Commit(ctx, p.entity.Collection, writes); err != nil {
		return stats, fmt.Errorf("commit %d writes: %w", len(writes), err)
	}
	if err := p.local.MarkBatchPushed(ctx, pushed, now); err != nil {
		return stats, fmt.Errorf("mark pushed: %w", err)
	}
	stats.Pushed = len(pushed)
	return stats, nil
}

func (p *Pusher) recordError(id string, err error) error {
	return &common.EntityError{Entity: p.entity.Name, ID: id, Err: err}
}

// serverWins reports whether the remote copy supersedes a dirty local record.
// An absent or quarantined remote never wins.
func serverWins(local *models.Record, doc *remote.Document) bool {
	if doc == nil || doc.Version == nil || doc.UpdatedAt == nil {
		return false
	}
	rv := *doc.Version
	if rv != local.Version {
		return rv > local.Version
	}
	return doc.UpdatedAt.AsTime().UnixMilli() > local.UpdatedAtMillis()
}
