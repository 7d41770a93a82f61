package syncer

import (
	"context"
	"time"

	"github.com/dmitrijs2005/caresync/internal/logging"
)

// TombstonePurger physically removes expired tombstones.
type TombstonePurger interface {
	HardDeleteOldTombstones(ctx context.Context, cutoff time.Time) (int64, error)
}

// CleanTarget is one entity's local store as seen by the Cleaner.
type CleanTarget struct {
	Entity string
	Store  TombstonePurger
}

// CleanReport lists how many tombstones each entity lost.
type CleanReport struct {
	Cutoff  time.Time
	Deleted map[string]int64
	Total   int64
}

// Cleaner purges expired local tombstones. It never touches the remote store.
type Cleaner struct {
	targets []CleanTarget
	log     logging.Logger
	now     func() time.Time
}

func NewCleaner(targets []CleanTarget, log logging.Logger, opts Options) *Cleaner {
	return &Cleaner{
		targets: targets,
		log:     log.With("unit", "cleaner"),
		now:     opts.withDefaults().Now,
	}
}

// Clean removes tombstones last updated more than retentionDays ago.
// Negative retention counts as zero. A failing entity does not stop the
// others; the report covers what was deleted and the result is Retry.
func (c *Cleaner) Clean(ctx context.Context, retentionDays int) (CleanReport, Result) {
	retentionDays = max(retentionDays, 0)
	report := CleanReport{
		Cutoff:  c.now().AddDate(0, 0, -retentionDays),
		Deleted: make(map[string]int64, len(c.targets)),
	}

	res := Success
	for _, t := range c.targets {
		n, err := t.Store.HardDeleteOldTombstones(ctx, report.Cutoff)
		if err != nil {
			c.log.Error(ctx, "tombstone purge failed", "entity", t.Entity, "error", err)
			res = Retry
			continue
		}
		report.Deleted[t.Entity] = n
		report.Total += n
	}

	c.log.Info(ctx, "clean finished",
		"cutoff", report.Cutoff, "retention_days", retentionDays,
		"deleted", report.Total, "result", res.String())
	return report, res
}
