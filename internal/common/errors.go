// Package common defines sentinel errors shared by the local store, the
// remote adapters and the sync engine. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Sync envelope errors.
	ErrQuarantined = errors.New("document missing updatedAt or version")
	ErrBlankID     = errors.New("blank record identity")
	ErrDecode      = errors.New("document cannot be decoded")

	// Remote delete was acknowledged but the document is still readable.
	ErrDeleteNotApplied = errors.New("remote delete not applied")

	// Entity does not allow the requested operation.
	ErrUnsupportedEntity = errors.New("unsupported entity")
)
