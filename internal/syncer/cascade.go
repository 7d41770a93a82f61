package syncer

import (
	"context"
	"strings"

	"github.com/dmitrijs2005/caresync/internal/common"
	"github.com/dmitrijs2005/caresync/internal/logging"
	"github.com/dmitrijs2005/caresync/internal/models"
	"github.com/dmitrijs2005/caresync/internal/remote"
)

// LocalRemover physically removes local records.
type LocalRemover interface {
	DeleteByIDs(ctx context.Context, ids []string) error
}

// CascadeDeleter hard-deletes remote documents of an entity whose removal
// must be visible to every client at once, verifying each delete with a
// fresh server read.
type CascadeDeleter struct {
	entity models.Entity
	remote remote.Store
	local  LocalRemover
	log    logging.Logger
}

// NewCascadeDeleter returns a deleter for entity. local may be nil; when set,
// the local copy is dropped once the remote delete is verified.
func NewCascadeDeleter(entity models.Entity, rs remote.Store, local LocalRemover, log logging.Logger) *CascadeDeleter {
	return &CascadeDeleter{
		entity: entity,
		remote: rs,
		local:  local,
		log:    log.With("unit", "cascade", "entity", entity.Name),
	}
}

// Delete removes id remotely and confirms it is gone. A document that is
// still readable afterwards yields Retry.
func (d *CascadeDeleter) Delete(ctx context.Context, id string) Result {
	if strings.TrimSpace(id) == "" {
		d.log.Error(ctx, "refusing cascade delete", "error", common.ErrBlankID)
		return PermanentFailure
	}
	log := d.log.With("id", id)

	if err := d.remote.Delete(ctx, d.entity.Collection, id); err != nil {
		res := Classify(err)
		log.Error(ctx, "remote delete failed", "result", res.String(), "error", err)
		return res
	}

	doc, err := d.remote.Get(ctx, d.entity.Collection, id, remote.Server)
	if err != nil {
		res := Classify(err)
		log.Error(ctx, "delete verification failed", "result", res.String(), "error", err)
		return res
	}
	if doc != nil {
		log.Error(ctx, "document survived delete", "error", common.ErrDeleteNotApplied)
		return Retry
	}

	if d.local != nil {
		if err := d.local.DeleteByIDs(ctx, []string{id}); err != nil {
			log.Error(ctx, "local delete failed", "error", err)
			return Retry
		}
	}
	log.Info(ctx, "cascade delete verified")
	return Success
}
