package domain

import "errors"

// Error taxonomy surfaced to the HTTP layer. Repository adapters map
// store failures onto these; usecases wrap with context via %w.
var (
	// ErrNotFound means the requested account, book or entry does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidArgument means a caller-supplied value failed a precondition.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrUpstream means the backing store or queue was unreachable.
	// The core does not retry; retries belong to the collaborator's client.
	ErrUpstream = errors.New("upstream unavailable")
)
