// Package errors provides centralized error definitions for the application.
//
// Naming conventions:
//   - Exported errors (Err*): checked by callers with errors.Is
//   - Sentinels are variables, never inline errors.New calls
//   - Use fmt.Errorf with %w to wrap sentinels with context
package errors

import "errors"

// Remote source errors.
var (
	// ErrRateLimited indicates the remote API throttled the request; the
	// caller may retry after backing off.
	ErrRateLimited = errors.New("rate limited")

	// ErrForbidden indicates the remote resource is inaccessible.
	ErrForbidden = errors.New("access forbidden")

	// ErrMessageNotFound indicates a message does not exist remotely.
	ErrMessageNotFound = errors.New("message not found")

	// ErrChannelNotFound indicates a channel does not exist remotely.
	ErrChannelNotFound = errors.New("channel not found")
)

// Storage errors.
var (
	// ErrNotFound is returned by lookups that matched no row.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate indicates a unique-key conflict on insert. Lazy entity
	// creation treats it as "someone else won the race" and re-reads.
	ErrDuplicate = errors.New("duplicate key")
)

// Reply resolution errors.
var (
	// ErrMalformedReference indicates a reply marker that does not name a
	// resolvable message.
	ErrMalformedReference = errors.New("malformed message reference")

	// ErrDepthExceeded indicates the reply chain recursion budget ran out.
	ErrDepthExceeded = errors.New("reply chain depth exceeded")
)

// Is is a convenience wrapper around errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
