// Provides common zerkalo errors definitions.
package zerkalo_errors

import "errors"

var (
	ErrAlreadyManaged = errors.New("zerkalo: value is already managed")
	ErrNonManageable  = errors.New("zerkalo: value can't be a document root")
	ErrNotManaged     = errors.New("zerkalo: value is not managed")

	ErrNonAssignableValue = errors.New("zerkalo: value can't be assigned")
	ErrInvalidKey         = errors.New("zerkalo: invalid key")
	ErrNotSequence        = errors.New("zerkalo: not a sequence")
	ErrCrossAttachment    = errors.New("zerkalo: managed value can't be attached to a document")
	ErrOrphanedView       = errors.New("zerkalo: view path no longer resolves")
	ErrReadOnlyViolation  = errors.New("zerkalo: write on a read-only view")

	ErrInvalidVersionId      = errors.New("zerkalo: no such version")
	ErrInvalidSnapshot       = errors.New("zerkalo: bad snapshot")
	ErrInvalidVersioningData = errors.New("zerkalo: bad versioning data")
	ErrMalformedEntry        = errors.New("zerkalo: malformed log entry")

	ErrNotReplica = errors.New("zerkalo: value is not a replica")
	ErrOutOfSync  = errors.New("zerkalo: replica out of sync")
)
