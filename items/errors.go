package items

import "errors"

var (
	// ErrNotFound is returned when an update or delete target doesn't exist,
	// or vanished between the resolving read and the mutation.
	ErrNotFound = errors.New("arbor: item not found")

	// ErrAlreadyExists is returned when a create collides with an occupied
	// key pair.
	ErrAlreadyExists = errors.New("arbor: item already exists")

	// ErrInvalidCursor is returned when a pagination cursor is malformed,
	// expired, or was issued by a differently-shaped query.
	ErrInvalidCursor = errors.New("arbor: invalid pagination cursor")

	// ErrUpstreamUnavailable is returned for transient DynamoDB faults.
	// The operation is safe to retry by the caller; the store never retries
	// internally.
	ErrUpstreamUnavailable = errors.New("arbor: storage temporarily unavailable")
)
