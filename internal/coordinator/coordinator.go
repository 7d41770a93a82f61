// Package coordinator schedules the synchronization units of every entity:
// periodic and on-demand pull+push passes with retries, daily tombstone
// cleanup, verified cascade deletes and a health view.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dmitrijs2005/caresync/internal/client/localdb"
	"github.com/dmitrijs2005/caresync/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/caresync/internal/client/repositories/records"
	"github.com/dmitrijs2005/caresync/internal/common"
	"github.com/dmitrijs2005/caresync/internal/logging"
	"github.com/dmitrijs2005/caresync/internal/models"
	"github.com/dmitrijs2005/caresync/internal/remote"
	"github.com/dmitrijs2005/caresync/internal/syncer"
	"github.com/dmitrijs2005/caresync/internal/syncx"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// cleanerLastRunKey stores the wall-clock millis of the last clean.
const cleanerLastRunKey = "cleaner_lastRunWallClockMs"

// Options configures scheduling. Zero fields take defaults.
type Options struct {
	Interval      time.Duration
	RetentionDays int
	// CleanEvery is the minimum gap between two automatic cleans.
	CleanEvery time.Duration
	// MaxRetries bounds the extra attempts a unit gets after a Retry result.
	MaxRetries   uint64
	RetryBackoff time.Duration
	// Parallelism bounds how many entities sync at once.
	Parallelism int

	Sync syncer.Options
}

func (o Options) withDefaults() Options {
	if o.Interval <= 0 {
		o.Interval = 30 * time.Minute
	}
	if o.RetentionDays < 0 {
		o.RetentionDays = 0
	}
	if o.CleanEvery <= 0 {
		o.CleanEvery = 24 * time.Hour
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = time.Second
	}
	if o.Parallelism <= 0 {
		o.Parallelism = len(models.Entities())
	}
	if o.Sync.Now == nil {
		o.Sync.Now = time.Now
	}
	return o
}

type unit struct {
	entity  models.Entity
	store   records.Repository
	puller  *syncer.Puller
	pusher  *syncer.Pusher
	cascade *syncer.CascadeDeleter
}

type Coordinator struct {
	units   []unit
	cleaner *syncer.Cleaner
	meta    metadata.Repository
	cursors *syncx.CursorStore
	log     logging.Logger
	opts    Options
	now     func() time.Time

	flight singleflight.Group
}

// New wires one Puller, Pusher and (for hard-delete entities) CascadeDeleter
// per registered entity over the local repositories and the remote store.
func New(local *localdb.Repositories, rs remote.Store, log logging.Logger, opts Options) *Coordinator {
	opts = opts.withDefaults()
	c := &Coordinator{
		meta:    local.Metadata,
		cursors: syncx.NewCursorStore(local.Metadata),
		log:     log.With("unit", "coordinator"),
		opts:    opts,
		now:     opts.Sync.Now,
	}

	var targets []syncer.CleanTarget
	for _, e := range models.Entities() {
		store := local.Records[e.Name]
		u := unit{
			entity: e,
			store:  store,
			puller: syncer.NewPuller(e, store, rs, c.cursors, log, opts.Sync),
			pusher: syncer.NewPusher(e, store, rs, log, opts.Sync),
		}
		if e.HardDelete {
			u.cascade = syncer.NewCascadeDeleter(e, rs, store, log)
		}
		c.units = append(c.units, u)
		targets = append(targets, syncer.CleanTarget{Entity: e.Name, Store: store})
	}
	c.cleaner = syncer.NewCleaner(targets, log, opts.Sync)
	return c
}

// EntityReport is the outcome of one entity's pass.
type EntityReport struct {
	Entity       string
	Push         syncer.Result
	PushAttempts int
	Pull         syncer.Result
	PullAttempts int
}

// Report is the outcome of one pass over every entity.
type Report struct {
	RunID    string
	Started  time.Time
	Finished time.Time
	Entities []EntityReport
}

// Result is the worst unit result of the pass.
func (r Report) Result() syncer.Result {
	res := syncer.Success
	for _, e := range r.Entities {
		res = max(res, e.Push, e.Pull)
	}
	return res
}

// RunOnce pushes then pulls every entity, entities in parallel.
func (c *Coordinator) RunOnce(ctx context.Context) Report {
	report := Report{
		RunID:    uuid.NewString(),
		Started:  c.now(),
		Entities: make([]EntityReport, len(c.units)),
	}
	log := c.log.With("run", report.RunID)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Parallelism)
	for i, u := range c.units {
		g.Go(func() error {
			report.Entities[i] = c.syncEntity(gctx, u)
			return nil
		})
	}
	_ = g.Wait()

	report.Finished = c.now()
	log.Info(ctx, "sync pass finished",
		"result", report.Result().String(), "took", report.Finished.Sub(report.Started))
	return report
}

// SyncNow runs an on-demand pass. Concurrent callers share the pass already
// in flight instead of queueing another one.
func (c *Coordinator) SyncNow(ctx context.Context) Report {
	v, _, _ := c.flight.Do("sync-now", func() (any, error) {
		return c.RunOnce(ctx), nil
	})
	return v.(Report)
}

// Run performs a pass immediately and then every Interval until ctx ends,
// cleaning tombstones whenever CleanEvery has elapsed since the last clean.
func (c *Coordinator) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.opts.Interval)
	defer ticker.Stop()

	for {
		c.periodic(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (c *Coordinator) periodic(ctx context.Context) {
	_, _, _ = c.flight.Do("periodic", func() (any, error) {
		c.RunOnce(ctx)
		if err := c.maybeClean(ctx); err != nil {
			c.log.Error(ctx, "scheduled clean skipped", "error", err)
		}
		return nil, nil
	})
}

// Clean purges expired tombstones now and records the run.
func (c *Coordinator) Clean(ctx context.Context) (syncer.CleanReport, syncer.Result) {
	report, res := c.cleaner.Clean(ctx, c.opts.RetentionDays)
	if res == syncer.Success {
		stamp := []byte(strconv.FormatInt(c.now().UnixMilli(), 10))
		if err := c.meta.Set(ctx, cleanerLastRunKey, stamp); err != nil {
			c.log.Error(ctx, "failed to record clean", "error", err)
		}
	}
	return report, res
}

func (c *Coordinator) maybeClean(ctx context.Context) error {
	raw, err := c.meta.Get(ctx, cleanerLastRunKey)
	if err != nil {
		return err
	}
	if raw != nil {
		last, err := strconv.ParseInt(string(raw), 10, 64)
		if err == nil && c.now().Sub(time.UnixMilli(last)) < c.opts.CleanEvery {
			return nil
		}
	}
	c.Clean(ctx)
	return nil
}

// CascadeDelete hard-deletes one record of a hard-delete entity remotely and
// locally. Other entities are rejected with common.ErrUnsupportedEntity.
func (c *Coordinator) CascadeDelete(ctx context.Context, entity, id string) (syncer.Result, error) {
	u, ok := c.unit(entity)
	if !ok || !u.entity.HardDelete {
		return syncer.PermanentFailure, fmt.Errorf("cascade delete %q: %w", entity, common.ErrUnsupportedEntity)
	}
	res, _ := c.withRetry(ctx, func(ctx context.Context, _ int) syncer.Result {
		return u.cascade.Delete(ctx, id)
	})
	return res, nil
}

// ResetCursor forgets an entity's pull position; the next pass re-scans it.
func (c *Coordinator) ResetCursor(ctx context.Context, entity string) error {
	if _, ok := c.unit(entity); !ok {
		return fmt.Errorf("reset cursor %q: %w", entity, common.ErrUnsupportedEntity)
	}
	return c.cursors.Reset(ctx, entity)
}

// EntityHealth is the administrative view of one entity's local store.
type EntityHealth struct {
	Entity string
	Local  int64
	Dirty  int64
}

// Health reports local and dirty counts per entity.
func (c *Coordinator) Health(ctx context.Context) ([]EntityHealth, error) {
	out := make([]EntityHealth, 0, len(c.units))
	for _, u := range c.units {
		total, err := u.store.Count(ctx)
		if err != nil {
			return nil, err
		}
		dirty, err := u.store.CountDirty(ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, EntityHealth{Entity: u.entity.Name, Local: total, Dirty: dirty})
	}
	return out, nil
}

func (c *Coordinator) syncEntity(ctx context.Context, u unit) EntityReport {
	r := EntityReport{Entity: u.entity.Name}
	r.Push, r.PushAttempts = c.withRetry(ctx, func(ctx context.Context, _ int) syncer.Result {
		return u.pusher.Push(ctx)
	})
	r.Pull, r.PullAttempts = c.withRetry(ctx, u.puller.Pull)
	return r
}

var errPermanent = errors.New("permanent failure")

// withRetry re-invokes fn with exponential backoff while it reports Retry.
// fn receives the number of earlier attempts.
func (c *Coordinator) withRetry(ctx context.Context, fn func(ctx context.Context, attempt int) syncer.Result) (syncer.Result, int) {
	attempts := 0
	backoff := retry.WithMaxRetries(c.opts.MaxRetries, retry.NewExponential(c.opts.RetryBackoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		res := fn(ctx, attempts)
		attempts++
		switch res {
		case syncer.Success:
			return nil
		case syncer.PermanentFailure:
			return errPermanent
		default:
			return retry.RetryableError(errors.New(res.String()))
		}
	})
	switch {
	case err == nil:
		return syncer.Success, attempts
	case errors.Is(err, errPermanent):
		return syncer.PermanentFailure, attempts
	default:
		return syncer.Retry, attempts
	}
}

// unit finds the wiring of a registered entity.
func (c *Coordinator) unit(name string) (unit, bool) {
	e, ok := models.EntityByName(name)
	if !ok {
		return unit{}, false
	}
	for _, u := range c.units {
		if u.entity.Name == e.Name {
			return u, true
		}
	}
	return unit{}, false
}
