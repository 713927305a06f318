package webhook

import (
	"context"
	"errors"
)

/* Small, focused interfaces following "The Go Way"
 * Interfaces abstract behavior, not things
 * Written for users of the API, not just for testing
 */

// ErrNotFound is returned when no endpoint with the given id exists.
// The HTTP layer translates it to a 404.
var ErrNotFound = errors.New("endpoint not found")

// ValidationError marks configuration errors the HTTP layer translates
// to a 400, keeping them distinct from storage failures.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// Reader provides read operations over the endpoint registry
type Reader interface {
	/* Context is always the first parameter in functions that do I/O
	 * This allows for cancellation, timeouts, and shared values
	 */

	// Get returns the full record, secret included, or ErrNotFound.
	Get(ctx context.Context, id string) (Endpoint, error)

	// List returns all registered endpoints.
	List(ctx context.Context) ([]Endpoint, error)
}

// Writer provides write operations over the endpoint registry.
// Mutations are atomic per entry; concurrent updates to the same id
// resolve last-write-wins. Persistent backends flush before returning.
type Writer interface {
	// Store persists a new endpoint. The caller assigns the id.
	Store(ctx context.Context, endpoint Endpoint) error

	// Update replaces the stored record whole, or returns ErrNotFound.
	Update(ctx context.Context, endpoint Endpoint) error

	// Remove deletes the record, or returns ErrNotFound.
	Remove(ctx context.Context, id string) error
}

/* Interface composition - combining small interfaces into larger ones
 * This is preferred over large monolithic interfaces
 */
type Repository interface {
	Reader
	Writer
	Close(ctx context.Context) error
}
