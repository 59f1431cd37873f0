package mongopager

import "errors"

var (
	// ErrInvalidCursor reports a malformed or undecodable cursor token, or a
	// cursor used with a sort spec it was not generated from.
	ErrInvalidCursor = errors.New("invalid cursor")

	// ErrInvalidParams reports pagination or relation parameters that failed
	// validation. Returned before any query is issued.
	ErrInvalidParams = errors.New("invalid parameters")

	// ErrQueryFailed reports a failed document-store or cache operation.
	// The failure is propagated unchanged, no retries are performed.
	ErrQueryFailed = errors.New("upstream query failed")

	// ErrRelationLoad reports a failed relation load. The Preloader isolates
	// this error per relation instead of failing the whole call.
	ErrRelationLoad = errors.New("relation load failed")
)
