package syncer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/caresync/internal/common"
	"github.com/dmitrijs2005/caresync/internal/models"
	"github.com/dmitrijs2005/caresync/internal/remote"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// FromDocument maps a remote document onto a clean Record. Documents missing
// updatedAt or version are rejected with common.ErrQuarantined; malformed
// envelope fields yield common.ErrDecode. A missing createdAt defaults to
// updatedAt.
func FromDocument(doc *remote.Document) (*models.Record, error) {
	if doc == nil {
		return nil, nil
	}
	if strings.TrimSpace(doc.ID) == "" {
		return nil, common.ErrBlankID
	}
	if doc.UpdatedAt == nil || doc.Version == nil {
		return nil, common.ErrQuarantined
	}

	rec := &models.Record{
		ID:        doc.ID,
		UpdatedAt: doc.UpdatedAt.AsTime(),
		Version:   *doc.Version,
	}

	created, err := remote.AsTimestamp(doc.Fields[remote.FieldCreatedAt])
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", common.ErrDecode, remote.FieldCreatedAt, err)
	}
	if created != nil {
		rec.CreatedAt = created.AsTime()
	} else {
		rec.CreatedAt = rec.UpdatedAt
	}

	if rec.IsDeleted, err = remote.AsBool(doc.Fields[remote.FieldIsDeleted]); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", common.ErrDecode, remote.FieldIsDeleted, err)
	}
	deletedAt, err := remote.AsTimestamp(doc.Fields[remote.FieldDeletedAt])
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", common.ErrDecode, remote.FieldDeletedAt, err)
	}
	if deletedAt != nil {
		t := deletedAt.AsTime()
		rec.DeletedAt = &t
	}

	payload := make(map[string]any, len(doc.Fields))
	for k, v := range doc.Fields {
		if !remote.Reserved(k) {
			payload[k] = v
		}
	}
	if rec.Data, err = json.Marshal(payload); err != nil {
		return nil, fmt.Errorf("%w: payload: %v", common.ErrDecode, err)
	}
	return rec, nil
}

// decodeDocument is FromDocument plus validation of the entity payload.
func decodeDocument(entity models.Entity, doc *remote.Document) (*models.Record, error) {
	rec, err := FromDocument(doc)
	if err != nil {
		return nil, err
	}
	if err := entity.Validate(rec.Data); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrDecode, err)
	}
	return rec, nil
}

// toWrite builds the merge-write pushing rec at now: version+1, updatedAt now
// and a deletedAt defaulted to now for tombstones without one.
func toWrite(rec *models.Record, now time.Time) (remote.Write, error) {
	fields := make(map[string]any)
	if len(bytes.TrimSpace(rec.Data)) > 0 {
		dec := json.NewDecoder(bytes.NewReader(rec.Data))
		dec.UseNumber()
		if err := dec.Decode(&fields); err != nil {
			return remote.Write{}, fmt.Errorf("payload of %s: %w", rec.ID, err)
		}
	}
	for k := range fields {
		if remote.Reserved(k) {
			delete(fields, k)
		}
	}

	created := rec.CreatedAt
	if created.IsZero() {
		created = rec.UpdatedAt
	}
	fields[remote.FieldCreatedAt] = timestamppb.New(created)
	fields[remote.FieldIsDeleted] = rec.IsDeleted
	switch {
	case !rec.IsDeleted:
		fields[remote.FieldDeletedAt] = nil
	case rec.DeletedAt != nil:
		fields[remote.FieldDeletedAt] = timestamppb.New(*rec.DeletedAt)
	default:
		fields[remote.FieldDeletedAt] = timestamppb.New(now)
	}

	return remote.Write{
		ID:        rec.ID,
		Version:   rec.Version + 1,
		UpdatedAt: timestamppb.New(now),
		Fields:    fields,
	}, nil
}
