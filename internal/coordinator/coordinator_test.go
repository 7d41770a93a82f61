package coordinator

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/dmitrijs2005/caresync/internal/client/localdb"
	"github.com/dmitrijs2005/caresync/internal/common"
	"github.com/dmitrijs2005/caresync/internal/logging"
	"github.com/dmitrijs2005/caresync/internal/models"
	"github.com/dmitrijs2005/caresync/internal/remote"
	"github.com/dmitrijs2005/caresync/internal/remote/memstore"
	"github.com/dmitrijs2005/caresync/internal/syncer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/timestamppb"
)

var now = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	repos  *localdb.Repositories
	remote *memstore.Store
	clock  time.Time
	c      *Coordinator
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	repos, err := localdb.InitDatabase(context.Background(), filepath.Join(t.TempDir(), "sync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repos.Close() })

	f := &fixture{repos: repos, remote: memstore.New(), clock: now}
	if opts.RetryBackoff == 0 {
		opts.RetryBackoff = time.Millisecond
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	// Sequential entities keep memstore fault injection deterministic.
	opts.Parallelism = 1
	opts.Sync.Now = func() time.Time { return f.clock }
	f.c = New(repos, f.remote, logging.Discard(), opts)
	return f
}

func (f *fixture) saveLocal(t *testing.T, entity models.Entity, id, data string) {
	t.Helper()
	rec := &models.Record{ID: id, Data: json.RawMessage(data)}
	require.NoError(t, f.repos.Records[entity.Name].SaveLocal(context.Background(), rec, f.clock))
}

func (f *fixture) local(t *testing.T, entity models.Entity, id string) *models.Record {
	t.Helper()
	got, err := f.repos.Records[entity.Name].GetByIDs(context.Background(), []string{id})
	require.NoError(t, err)
	return got[id]
}

func remoteDoc(id string, version int64, updated time.Time, fields map[string]any) *remote.Document {
	return &remote.Document{ID: id, UpdatedAt: timestamppb.New(updated), Version: &version, Fields: fields}
}

func entityReport(t *testing.T, r Report, name string) EntityReport {
	t.Helper()
	for _, e := range r.Entities {
		if e.Entity == name {
			return e
		}
	}
	t.Fatalf("no report for %s", name)
	return EntityReport{}
}

func TestRunOnce_PushesAndPullsEveryEntity(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	f.saveLocal(t, models.Children, "c1", `{"fullName":"Ama Mensah"}`)
	f.remote.Put("events", remoteDoc("e1", 3, now.Add(-time.Hour), map[string]any{"title": "Clinic day"}))

	report := f.c.RunOnce(ctx)

	require.Len(t, report.Entities, len(models.Entities()))
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, syncer.Success, report.Result())
	for _, e := range report.Entities {
		assert.Equal(t, syncer.Success, e.Push, e.Entity)
		assert.Equal(t, syncer.Success, e.Pull, e.Entity)
		assert.Equal(t, 1, e.PullAttempts, e.Entity)
	}

	pushed := f.remote.Snapshot("children", "c1")
	require.NotNil(t, pushed)
	require.NotNil(t, pushed.Version)
	assert.Equal(t, int64(1), *pushed.Version)
	assert.Equal(t, "Ama Mensah", pushed.Fields["fullName"])
	assert.False(t, f.local(t, models.Children, "c1").IsDirty)

	pulled := f.local(t, models.Events, "e1")
	require.NotNil(t, pulled)
	assert.Equal(t, int64(3), pulled.Version)
	assert.False(t, pulled.IsDirty)
}

func TestRunOnce_RetriesTransientFailures(t *testing.T) {
	f := newFixture(t, Options{})
	f.remote.FailNext(memstore.OpQuery, status.Error(codes.Unavailable, "offline"))

	report := f.c.RunOnce(context.Background())

	children := entityReport(t, report, models.Children.Name)
	assert.Equal(t, syncer.Success, children.Pull)
	assert.Equal(t, 2, children.PullAttempts)
	assert.Equal(t, syncer.Success, report.Result())
}

func TestRunOnce_GivesUpAfterMaxRetries(t *testing.T) {
	f := newFixture(t, Options{MaxRetries: 1})
	f.remote.FailNext(memstore.OpQuery, status.Error(codes.Unavailable, "offline"))
	f.remote.FailNext(memstore.OpQuery, status.Error(codes.Unavailable, "offline"))

	report := f.c.RunOnce(context.Background())

	children := entityReport(t, report, models.Children.Name)
	assert.Equal(t, syncer.Retry, children.Pull)
	assert.Equal(t, 2, children.PullAttempts)
	assert.Equal(t, syncer.Retry, report.Result())
	assert.Equal(t, syncer.Success, entityReport(t, report, models.Events.Name).Pull)
}

func TestRunOnce_PermanentFailureIsNotRetried(t *testing.T) {
	f := newFixture(t, Options{})
	f.remote.FailNext(memstore.OpQuery, status.Error(codes.PermissionDenied, "rules"))

	report := f.c.RunOnce(context.Background())

	children := entityReport(t, report, models.Children.Name)
	assert.Equal(t, syncer.PermanentFailure, children.Pull)
	assert.Equal(t, 1, children.PullAttempts)
	assert.Equal(t, syncer.PermanentFailure, report.Result())
}

func TestSyncNow_ReturnsReport(t *testing.T) {
	f := newFixture(t, Options{})
	f.saveLocal(t, models.Children, "c1", `{"fullName":"Kofi"}`)

	report := f.c.SyncNow(context.Background())

	assert.Equal(t, syncer.Success, report.Result())
	assert.NotNil(t, f.remote.Snapshot("children", "c1"))
}

func TestCascadeDelete(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	f.remote.Put("events", remoteDoc("e1", 1, now.Add(-time.Hour), map[string]any{"title": "Clinic day"}))
	f.c.RunOnce(ctx)
	require.NotNil(t, f.local(t, models.Events, "e1"))

	res, err := f.c.CascadeDelete(ctx, models.Events.Name, "e1")
	require.NoError(t, err)
	assert.Equal(t, syncer.Success, res)
	assert.Nil(t, f.remote.Snapshot("events", "e1"))
	assert.Nil(t, f.local(t, models.Events, "e1"))

	_, err = f.c.CascadeDelete(ctx, models.Children.Name, "c1")
	assert.ErrorIs(t, err, common.ErrUnsupportedEntity)

	_, err = f.c.CascadeDelete(ctx, "invoices", "i1")
	assert.ErrorIs(t, err, common.ErrUnsupportedEntity)
}

func TestCascadeDelete_RetriesUnverifiedDelete(t *testing.T) {
	f := newFixture(t, Options{MaxRetries: 2})
	f.remote.Put("events", remoteDoc("e1", 1, now.Add(-time.Hour), map[string]any{"title": "Clinic day"}))
	f.remote.DropDeletes = true

	res, err := f.c.CascadeDelete(context.Background(), models.Events.Name, "e1")

	require.NoError(t, err)
	assert.Equal(t, syncer.Retry, res)
	assert.Equal(t, 3, f.remote.Calls(memstore.OpDelete))
}

func TestClean_RecordsRunAndSchedulesDaily(t *testing.T) {
	f := newFixture(t, Options{RetentionDays: 30})
	ctx := context.Background()

	deletedAt := now.AddDate(0, 0, -40)
	old := &models.Record{
		ID:        "gone",
		Data:      json.RawMessage(`{"fullName":"x"}`),
		CreatedAt: now.AddDate(0, 0, -60),
		UpdatedAt: now.AddDate(0, 0, -40),
		Version:   2,
		IsDeleted: true,
		DeletedAt: &deletedAt,
	}
	require.NoError(t, f.repos.Records[models.Children.Name].UpsertAll(ctx, []*models.Record{old}))

	report, res := f.c.Clean(ctx)
	require.Equal(t, syncer.Success, res)
	assert.Equal(t, int64(1), report.Total)

	raw, err := f.repos.Metadata.Get(ctx, cleanerLastRunKey)
	require.NoError(t, err)
	assert.Equal(t, strconv.FormatInt(now.UnixMilli(), 10), string(raw))

	// Within a day the scheduled clean is skipped.
	f.clock = now.Add(23 * time.Hour)
	require.NoError(t, f.c.maybeClean(ctx))
	raw, err = f.repos.Metadata.Get(ctx, cleanerLastRunKey)
	require.NoError(t, err)
	assert.Equal(t, strconv.FormatInt(now.UnixMilli(), 10), string(raw))

	f.clock = now.Add(25 * time.Hour)
	require.NoError(t, f.c.maybeClean(ctx))
	raw, err = f.repos.Metadata.Get(ctx, cleanerLastRunKey)
	require.NoError(t, err)
	assert.Equal(t, strconv.FormatInt(f.clock.UnixMilli(), 10), string(raw))
}

func TestHealth(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	f.saveLocal(t, models.Children, "c1", `{"fullName":"A"}`)
	f.saveLocal(t, models.Children, "c2", `{"fullName":"B"}`)
	f.remote.Put("events", remoteDoc("e1", 1, now.Add(-time.Hour), map[string]any{"title": "Clinic day"}))

	health, err := f.c.Health(ctx)
	require.NoError(t, err)
	require.Len(t, health, len(models.Entities()))
	assert.Equal(t, EntityHealth{Entity: models.Children.Name, Local: 2, Dirty: 2}, health[0])

	f.c.RunOnce(ctx)

	health, err = f.c.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, EntityHealth{Entity: models.Children.Name, Local: 2, Dirty: 0}, health[0])
	assert.Equal(t, EntityHealth{Entity: models.Events.Name, Local: 1, Dirty: 0}, health[1])
}

func TestResetCursor(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	f.remote.Put("children", remoteDoc("c1", 1, now.Add(-time.Hour), map[string]any{"fullName": "A"}))
	f.c.RunOnce(ctx)

	cur, err := f.c.cursors.Load(ctx, models.Children.Name)
	require.NoError(t, err)
	require.False(t, cur.IsZero())

	require.NoError(t, f.c.ResetCursor(ctx, models.Children.Name))
	cur, err = f.c.cursors.Load(ctx, models.Children.Name)
	require.NoError(t, err)
	assert.True(t, cur.IsZero())

	assert.ErrorIs(t, f.c.ResetCursor(ctx, "invoices"), common.ErrUnsupportedEntity)
}

func TestReportResultIsWorst(t *testing.T) {
	r := Report{Entities: []EntityReport{
		{Push: syncer.Success, Pull: syncer.Retry},
		{Push: syncer.Success, Pull: syncer.Success},
	}}
	assert.Equal(t, syncer.Retry, r.Result())
	assert.Equal(t, syncer.Success, Report{}.Result())
}
