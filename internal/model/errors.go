package model

import "errors"

var (
	// ErrAuthTrustViolation means the upstream tenant or thread identifier is missing or malformed.
	ErrAuthTrustViolation = errors.New("tenant or thread identifier missing or malformed")

	// ErrCacheUnavailable means the semantic cache could not be reached.
	ErrCacheUnavailable = errors.New("cache unavailable")

	// ErrRetrievalUnavailable means the knowledge index could not be searched.
	ErrRetrievalUnavailable = errors.New("retrieval unavailable")

	// ErrGenerationFailure means the answer could not be generated after bounded retries.
	ErrGenerationFailure = errors.New("generation failed")

	// ErrConcurrentResumeConflict means the checkpoint version moved under the caller.
	ErrConcurrentResumeConflict = errors.New("concurrent run on thread")

	// ErrInvalidResumeState means the thread is not awaiting human resolution.
	ErrInvalidResumeState = errors.New("thread is not awaiting resolution")

	// ErrInvalidTicketTransition means a ticket status would move backward.
	ErrInvalidTicketTransition = errors.New("invalid ticket status transition")

	// ErrNotFound means the requested record does not exist for the tenant.
	ErrNotFound = errors.New("not found")
)
