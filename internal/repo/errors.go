package repo

import "errors"

var (
	// ErrNotFound is returned when a lookup matches no live row.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate indicates that an idempotency record already exists for
	// the given (actor_id, scope, key) tuple.
	ErrDuplicate = errors.New("duplicate")
)
