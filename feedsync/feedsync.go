// Package feedsync keeps a client's in-memory view of posts, comments and
// likes consistent across optimistic local mutations, the authoritative
// server responses to those mutations, and the out-of-band event stream
// reporting mutations made by other users on the same post.
//
// The engine owns a single State guarded by one mutex. All mutation paths
// (Coordinator), page loads (Pager), debounced searches (Debouncer) and
// stream merges (Reconciler) funnel their writes through it, so completions
// racing in time can never interleave mid-update.
package feedsync

import "errors"

var (
	// ErrBusy is returned when a mutation for the same entity and
	// operation kind is already in flight.
	ErrBusy = errors.New("operation already in flight for this entity")

	// ErrValidation is returned before any request is dispatched when the
	// input is rejected locally. No state is changed.
	ErrValidation = errors.New("validation failed")

	// ErrUnauthorized is returned when the caller is neither the item's
	// author nor an admin. The request is never dispatched.
	ErrUnauthorized = errors.New("caller is not allowed to perform this operation")

	// ErrSuperseded is returned to a page or search request whose result
	// was discarded because a newer request was issued before it resolved.
	ErrSuperseded = errors.New("request superseded by a newer one")

	// ErrUnknownParent is reported when a streamed reply references a
	// parent comment that is not known locally. The item is dropped.
	ErrUnknownParent = errors.New("parent comment not known locally")

	// ErrNoThread is returned by thread-scoped operations when no thread
	// is currently open.
	ErrNoThread = errors.New("no thread is open")
)
