package syncer

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmitrijs2005/caresync/internal/client/localdb"
	"github.com/dmitrijs2005/caresync/internal/logging"
	"github.com/dmitrijs2005/caresync/internal/models"
	"github.com/dmitrijs2005/caresync/internal/remote"
	"github.com/dmitrijs2005/caresync/internal/remote/memstore"
	"github.com/dmitrijs2005/caresync/internal/syncx"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/timestamppb"
)

var now = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

type env struct {
	repos   *localdb.Repositories
	local   LocalStore
	remote  *memstore.Store
	cursors *syncx.CursorStore
	opts    Options
}

func newEnv(t *testing.T) *env {
	t.Helper()
	repos, err := localdb.InitDatabase(context.Background(), filepath.Join(t.TempDir(), "sync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repos.Close() })

	return &env{
		repos:   repos,
		local:   repos.Records[models.Children.Name],
		remote:  memstore.New(),
		cursors: syncx.NewCursorStore(repos.Metadata),
		opts:    Options{Now: func() time.Time { return now }},
	}
}

func (e *env) puller() *Puller {
	return NewPuller(models.Children, e.local, e.remote, e.cursors, logging.Discard(), e.opts)
}

func (e *env) pusher() *Pusher {
	return NewPusher(models.Children, e.local, e.remote, logging.Discard(), e.opts)
}

func (e *env) seedLocal(t *testing.T, recs ...*models.Record) {
	t.Helper()
	require.NoError(t, e.local.UpsertAll(context.Background(), recs))
}

func (e *env) getLocal(t *testing.T, id string) *models.Record {
	t.Helper()
	got, err := e.local.GetByIDs(context.Background(), []string{id})
	require.NoError(t, err)
	return got[id]
}

func (e *env) cursor(t *testing.T) syncx.Cursor {
	t.Helper()
	c, err := e.cursors.Load(context.Background(), models.Children.Name)
	require.NoError(t, err)
	return c
}

func localRec(id string, version int64, updated time.Time, dirty bool) *models.Record {
	return &models.Record{
		ID:        id,
		Data:      json.RawMessage(`{"fullName":"Local Name"}`),
		CreatedAt: updated.Add(-time.Hour),
		UpdatedAt: updated,
		Version:   version,
		IsDirty:   dirty,
	}
}

func doc(id string, version int64, updated time.Time, fields map[string]any) *remote.Document {
	if fields == nil {
		fields = map[string]any{"fullName": "Remote Name"}
	}
	return &remote.Document{
		ID:        id,
		UpdatedAt: timestamppb.New(updated),
		Version:   &version,
		Fields:    fields,
	}
}

// failingLocal injects errors into selected LocalStore calls.
type failingLocal struct {
	LocalStore
	upsertErr, getErr, loadErr, markErr, purgeErr error
}

func (f *failingLocal) UpsertAll(ctx context.Context, recs []*models.Record) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	return f.LocalStore.UpsertAll(ctx, recs)
}

func (f *failingLocal) GetByIDs(ctx context.Context, ids []string) (map[string]*models.Record, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.LocalStore.GetByIDs(ctx, ids)
}

func (f *failingLocal) LoadDirtyBatch(ctx context.Context, limit int) ([]*models.Record, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return f.LocalStore.LoadDirtyBatch(ctx, limit)
}

func (f *failingLocal) MarkBatchPushed(ctx context.Context, pushed []*models.Record, at time.Time) error {
	if f.markErr != nil {
		return f.markErr
	}
	return f.LocalStore.MarkBatchPushed(ctx, pushed, at)
}

func (f *failingLocal) HardDeleteOldTombstones(ctx context.Context, cutoff time.Time) (int64, error) {
	if f.purgeErr != nil {
		return 0, f.purgeErr
	}
	return f.LocalStore.HardDeleteOldTombstones(ctx, cutoff)
}

// recordingRemote remembers every query it forwards.
type recordingRemote struct {
	remote.Store
	queries []remote.Query
}

func (r *recordingRemote) Query(ctx context.Context, q remote.Query) ([]*remote.Document, error) {
	r.queries = append(r.queries, q)
	return r.Store.Query(ctx, q)
}
