package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/dmitrijs2005/caresync/internal/logging"
	"github.com/dmitrijs2005/caresync/internal/models"
	"github.com/dmitrijs2005/caresync/internal/remote"
	"github.com/dmitrijs2005/caresync/internal/remote/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/timestamppb"
)

func TestPush_LocalWinsOnVersionTieWithOlderRemote(t *testing.T) {
	e := newEnv(t)
	t1 := now.Add(-2 * time.Hour)
	t2 := now.Add(-time.Hour)
	e.seedLocal(t, localRec("c1", 2, t2, true))
	e.remote.Put("children", doc("c1", 2, t1, map[string]any{"fullName": "Remote Name", "legacyCode": "L-7"}))

	require.Equal(t, Success, e.pusher().Push(context.Background()))

	stored := e.remote.Snapshot("children", "c1")
	require.NotNil(t, stored)
	assert.Equal(t, int64(3), *stored.Version)
	assert.True(t, stored.UpdatedAt.AsTime().Equal(now))
	assert.Equal(t, "Local Name", stored.Fields["fullName"])
	assert.Equal(t, "L-7", stored.Fields["legacyCode"], "merge keeps remote-only fields")

	got := e.getLocal(t, "c1")
	assert.Equal(t, int64(3), got.Version)
	assert.False(t, got.IsDirty)
	assert.True(t, got.UpdatedAt.Equal(now))
}

func TestPush_ServerWinsDiscardsLocalEdit(t *testing.T) {
	e := newEnv(t)
	e.seedLocal(t, localRec("c1", 2, now.Add(-time.Hour), true))
	e.remote.Put("children", doc("c1", 5, now.Add(-3*time.Hour), nil))

	require.Equal(t, Success, e.pusher().Push(context.Background()))

	got := e.getLocal(t, "c1")
	assert.Equal(t, int64(5), got.Version)
	assert.False(t, got.IsDirty)
	assert.JSONEq(t, `{"fullName":"Remote Name"}`, string(got.Data))
	assert.Zero(t, e.remote.Calls(memstore.OpCommit))
	assert.Equal(t, int64(5), *e.remote.Snapshot("children", "c1").Version)
}

func TestPush_ServerWinsOnVersionTieWithNewerRemote(t *testing.T) {
	e := newEnv(t)
	e.seedLocal(t, localRec("c1", 2, now.Add(-time.Hour), true))
	e.remote.Put("children", doc("c1", 2, now.Add(-time.Minute), nil))

	require.Equal(t, Success, e.pusher().Push(context.Background()))

	got := e.getLocal(t, "c1")
	assert.False(t, got.IsDirty)
	assert.Equal(t, int64(2), got.Version)
	assert.JSONEq(t, `{"fullName":"Remote Name"}`, string(got.Data))
}

func TestPush_NothingDirtyIsSuccess(t *testing.T) {
	e := newEnv(t)
	e.seedLocal(t, localRec("c1", 1, now, false))

	require.Equal(t, Success, e.pusher().Push(context.Background()))
	assert.Zero(t, e.remote.Calls(memstore.OpGet))
	assert.Zero(t, e.remote.Calls(memstore.OpCommit))
}

func TestPush_NewRecordAndTombstone(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	fresh := models.NewRecord(json.RawMessage(`{"fullName":"New Child"}`), now.Add(-time.Minute))
	gone := localRec("c2", 4, now.Add(-time.Hour), true)
	gone.IsDeleted = true
	e.seedLocal(t, fresh, gone)
	e.remote.Put("children", doc("c2", 4, now.Add(-2*time.Hour), nil))

	require.Equal(t, Success, e.pusher().Push(ctx))
	assert.Equal(t, 2, e.remote.ServerReads())

	created := e.remote.Snapshot("children", fresh.ID)
	require.NotNil(t, created)
	assert.Equal(t, int64(1), *created.Version)
	assert.Equal(t, false, created.Fields[remote.FieldIsDeleted])

	tomb := e.remote.Snapshot("children", "c2")
	assert.Equal(t, int64(5), *tomb.Version)
	assert.Equal(t, true, tomb.Fields[remote.FieldIsDeleted])
	deletedAt, ok := tomb.Fields[remote.FieldDeletedAt].(*timestamppb.Timestamp)
	require.True(t, ok)
	assert.True(t, deletedAt.AsTime().Equal(now))

	n, err := e.repos.Records[models.Children.Name].CountDirty(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPush_QuarantinedRemoteIsOverwritten(t *testing.T) {
	e := newEnv(t)
	e.seedLocal(t, localRec("c1", 2, now.Add(-time.Hour), true))
	bad := doc("c1", 9, now, nil)
	bad.Version = nil
	e.remote.Put("children", bad)

	require.Equal(t, Success, e.pusher().Push(context.Background()))

	assert.Equal(t, int64(3), *e.remote.Snapshot("children", "c1").Version)
	assert.False(t, e.getLocal(t, "c1").IsDirty)
}

func TestPush_UndecodableWinnerStaysDirty(t *testing.T) {
	e := newEnv(t)
	local := localRec("c1", 1, now.Add(-time.Hour), true)
	e.seedLocal(t, local, localRec("c2", 1, now.Add(-time.Hour), true))
	e.remote.Put("children", doc("c1", 4, now, map[string]any{"fullName": 42}))

	require.Equal(t, Success, e.pusher().Push(context.Background()))

	got := e.getLocal(t, "c1")
	assert.True(t, got.IsDirty)
	assert.Equal(t, int64(1), got.Version)
	assert.Equal(t, int64(4), *e.remote.Snapshot("children", "c1").Version)

	assert.False(t, e.getLocal(t, "c2").IsDirty)
}

func TestPush_BlankIdentityIsSkipped(t *testing.T) {
	e := newEnv(t)
	e.seedLocal(t, localRec("", 1, now.Add(-time.Hour), true), localRec("c1", 1, now.Add(-time.Hour), true))

	require.Equal(t, Success, e.pusher().Push(context.Background()))

	assert.Equal(t, 1, e.remote.Len("children"))
	assert.True(t, e.getLocal(t, "").IsDirty)
}

func TestPush_FailuresAreRetried(t *testing.T) {
	tests := []struct {
		name  string
		setup func(e *env) LocalStore
	}{
		{"forced read fails", func(e *env) LocalStore {
			e.remote.FailNext(memstore.OpGet, status.Error(codes.Unavailable, "offline"))
			return e.local
		}},
		{"permission denied is still retried", func(e *env) LocalStore {
			e.remote.FailNext(memstore.OpCommit, status.Error(codes.PermissionDenied, "rules"))
			return e.local
		}},
		{"commit fails", func(e *env) LocalStore {
			e.remote.FailNext(memstore.OpCommit, errors.New("aborted"))
			return e.local
		}},
		{"dirty batch cannot load", func(e *env) LocalStore {
			return &failingLocal{LocalStore: e.local, loadErr: errors.New("locked")}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			e.seedLocal(t, localRec("c1", 1, now.Add(-time.Hour), true))
			p := NewPusher(models.Children, tt.setup(e), e.remote, logging.Discard(), e.opts)

			assert.Equal(t, Retry, p.Push(context.Background()))
			got := e.getLocal(t, "c1")
			assert.True(t, got.IsDirty)
			assert.Equal(t, int64(1), got.Version)
		})
	}
}

func TestPush_MarkFailureConvergesOnNextRun(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.seedLocal(t, localRec("c1", 1, now.Add(-time.Hour), true))

	broken := NewPusher(models.Children, &failingLocal{LocalStore: e.local, markErr: errors.New("locked")},
		e.remote, logging.Discard(), e.opts)
	require.Equal(t, Retry, broken.Push(ctx))
	require.Equal(t, int64(2), *e.remote.Snapshot("children", "c1").Version)

	// The remote now holds our own write at a higher version, so it wins and
	// the local copy is settled clean without a second commit.
	require.Equal(t, Success, e.pusher().Push(ctx))
	got := e.getLocal(t, "c1")
	assert.False(t, got.IsDirty)
	assert.Equal(t, int64(2), got.Version)
	assert.Equal(t, 1, e.remote.Calls(memstore.OpCommit))
}

func TestPush_BatchSizeIsBounded(t *testing.T) {
	e := newEnv(t)
	e.opts.PushBatchSize = 2
	e.seedLocal(t,
		localRec("c1", 0, now.Add(-3*time.Minute), true),
		localRec("c2", 0, now.Add(-2*time.Minute), true),
		localRec("c3", 0, now.Add(-time.Minute), true),
	)

	require.Equal(t, Success, e.pusher().Push(context.Background()))
	assert.Equal(t, 2, e.remote.Len("children"))
	assert.True(t, e.getLocal(t, "c3").IsDirty)
}

func TestOptions_PushBatchClampedToRemoteLimit(t *testing.T) {
	o := Options{PushBatchSize: 10000}.withDefaults()
	assert.Equal(t, remote.MaxBatchWrites, o.PushBatchSize)
	assert.Equal(t, DefaultPageSize, o.PageSize)
	assert.Equal(t, 5*time.Hour, o.FutureGuard)
}
