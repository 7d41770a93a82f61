package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/caresync/internal/logging"
	"github.com/dmitrijs2005/caresync/internal/models"
	"github.com/dmitrijs2005/caresync/internal/remote"
	"github.com/dmitrijs2005/caresync/internal/syncx"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// Puller copies remote changes of one entity into the local store.
type Puller struct {
	entity  models.Entity
	local   LocalStore
	remote  remote.Store
	cursors CursorStore
	log     logging.Logger
	opts    Options
}

func NewPuller(entity models.Entity, local LocalStore, rs remote.Store, cursors CursorStore, log logging.Logger, opts Options) *Puller {
	return &Puller{
		entity:  entity,
		local:   local,
		remote:  rs,
		cursors: cursors,
		log:     log.With("unit", "puller", "entity", entity.Name),
		opts:    opts.withDefaults(),
	}
}

// PullStats describes one pull run.
type PullStats struct {
	Pages       int
	Fetched     int
	Merged      int
	Quarantined int
	Cursor      syncx.Cursor
}

// Pull runs one pull. attempt is the number of earlier failed attempts of
// the same scheduled run; any retry widens the re-scan window.
func (p *Puller) Pull(ctx context.Context, attempt int) Result {
	stats, err := p.pull(ctx, attempt)
	res := Classify(err)
	if err != nil {
		p.log.Error(ctx, "pull failed", "attempt", attempt, "result", res.String(), "error", err)
		return res
	}
	p.log.Info(ctx, "pull finished",
		"attempt", attempt, "pages", stats.Pages, "fetched", stats.Fetched,
		"merged", stats.Merged, "quarantined", stats.Quarantined,
		"cursor", stats.Cursor.Instant(), "cursor_doc", stats.Cursor.DocID)
	return Success
}

func (p *Puller) pull(ctx context.Context, attempt int) (PullStats, error) {
	var stats PullStats
	now := p.opts.Now()

	cur, err := p.cursors.Load(ctx, p.entity.Name)
	if errors.Is(err, syncx.ErrCorruptCursor) {
		p.log.Warn(ctx, "discarding unreadable cursor", "error", err)
		cur = syncx.Cursor{}
	} else if err != nil {
		return stats, err
	}

	if !cur.IsZero() && p.poisoned(cur.Instant(), now) {
		p.log.Warn(ctx, "stored cursor is in the future, resetting",
			"cursor", cur.Instant(), "now", now)
		cur = p.resetCursor(now)
		if err := p.cursors.Save(ctx, p.entity.Name, cur); err != nil {
			return stats, fmt.Errorf("save reset cursor: %w", err)
		}
	}

	var from *timestamppb.Timestamp
	if !cur.IsZero() {
		start := cur.Instant().Add(-p.overlap(cur, attempt, now))
		if start.Before(time.Unix(0, 0)) {
			start = time.Unix(0, 0)
		}
		from = timestamppb.New(start)
	}

	var (
		after  *remote.Position
		newest *remote.Position
	)
	for stats.Pages < p.opts.MaxPages {
		docs, err := p.remote.Query(ctx, remote.Query{
			Collection: p.entity.Collection,
			From:       from,
			StartAfter: after,
			Limit:      p.opts.PageSize,
		})
		if err != nil {
			return stats, fmt.Errorf("query page %d: %w", stats.Pages, err)
		}
		stats.Pages++
		stats.Fetched += len(docs)
		if len(docs) == 0 {
			break
		}

		merged, quarantined, err := p.mergePage(ctx, docs)
		if err != nil {
			return stats, err
		}
		stats.Merged += merged
		stats.Quarantined += quarantined

		last := docs[len(docs)-1]
		after = &remote.Position{UpdatedAt: last.UpdatedAt, ID: last.ID}
		if last.UpdatedAt != nil && last.Version != nil {
			newest = after
		}

		if len(docs) < p.opts.PageSize {
			break
		}
	}

	next := cur.WithSuccess(now)
	if newest != nil {
		candidate := syncx.CursorAt(newest.UpdatedAt.AsTime(), newest.ID)
		switch {
		case p.poisoned(candidate.Instant(), now):
			p.log.Warn(ctx, "newest document is in the future, resetting cursor",
				"doc", newest.ID, "updated_at", candidate.Instant(), "now", now)
			next = p.resetCursor(now)
		case cur.IsZero() || cursorAfter(candidate, cur):
			next = candidate.WithSuccess(now)
		}
	}

	if err := p.cursors.Save(ctx, p.entity.Name, next); err != nil {
		return stats, fmt.Errorf("save cursor: %w", err)
	}
	stats.Cursor = next
	return stats, nil
}

// mergePage resolves one page against the local store and upserts the
// records the remote side won. It returns the merged and quarantined counts.
func (p *Puller) mergePage(ctx context.Context, docs []*remote.Document) (int, int, error) {
	incoming := make([]*models.Record, 0, len(docs))
	quarantined := 0
	for _, doc := range docs {
		rec, err := FromDocument(doc)
		if err != nil {
			quarantined++
			p.log.Warn(ctx, "skipping remote document", "doc", doc.ID, "error", err)
			continue
		}
		incoming = append(incoming, rec)
	}
	if len(incoming) == 0 {
		return 0, quarantined, nil
	}

	ids := make([]string, len(incoming))
	for i, rec := range incoming {
		ids[i] = rec.ID
	}
	locals, err := p.local.GetByIDs(ctx, ids)
	if err != nil {
		return 0, quarantined, fmt.Errorf("load local page: %w", err)
	}

	var winners []*models.Record
	for _, rec := range incoming {
		if merged, w := Resolve(locals[rec.ID], rec); w == TakeRemote {
			winners = append(winners, merged)
		}
	}
	if err := p.local.UpsertAll(ctx, winners); err != nil {
		return 0, quarantined, fmt.Errorf("upsert page: %w", err)
	}
	return len(winners), quarantined, nil
}

func (p *Puller) overlap(cur syncx.Cursor, attempt int, now time.Time) time.Duration {
	if attempt > 0 || cur.LastSuccessWallMs == 0 || now.Sub(cur.LastSuccess()) > p.opts.OfflineThreshold {
		return p.opts.ExtendedOverlap
	}
	return p.opts.NormalOverlap
}

func (p *Puller) poisoned(t, now time.Time) bool {
	return t.After(now.Add(p.opts.FutureGuard))
}

// resetCursor is the safe horizon used after poisoning: extended overlap
// behind now, no document and no recorded success.
func (p *Puller) resetCursor(now time.Time) syncx.Cursor {
	return syncx.CursorAt(now.Add(-p.opts.ExtendedOverlap), "")
}

// cursorAfter orders cursors by (instant, doc id).
func cursorAfter(a, b syncx.Cursor) bool {
	if a.Seconds != b.Seconds {
		return a.Seconds > b.Seconds
	}
	if a.Nanos != b.Nanos {
		return a.Nanos > b.Nanos
	}
	return a.DocID > b.DocID
}
