package storageclient

import "errors"

// Errors returned by TableStore, QueueStore, and BlobStore implementations.
var (
	// ErrETagMismatch is returned by UpdateEntity/DeleteEntity when the
	// caller's etag no longer matches the stored row (optimistic-concurrency
	// conflict, analogous to an Azure Table Storage 412/409).
	ErrETagMismatch = errors.New("storageclient: etag mismatch")

	// ErrEntityNotFound is returned when no row matches the given keys.
	ErrEntityNotFound = errors.New("storageclient: entity not found")

	// ErrLeaseNotHeld is returned by RenewLease/ReleaseLease when the caller
	// does not (or no longer) holds the lease.
	ErrLeaseNotHeld = errors.New("storageclient: lease not held")

	// ErrLeaseAlreadyHeld is returned by AcquireLease when another owner
	// currently holds the lease.
	ErrLeaseAlreadyHeld = errors.New("storageclient: lease already held")

	// ErrMessageNotFound is returned by UpdateMessageVisibility when the referenced message is gone or its handle has expired.
	ErrMessageNotFound = errors.New("storageclient: message not found")
)
