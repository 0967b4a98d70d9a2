package services

import "errors"

var (
	// ErrInvalidRadius rejects a cross-match request before any work starts.
	ErrInvalidRadius = errors.New("invalid match radius")
	// ErrConcurrentRun rejects a request while another run is active.
	ErrConcurrentRun = errors.New("a cross-match run is already in progress")
	// ErrStoreUnavailable marks a run-fatal store failure; no group
	// assignments are mutated when it is returned.
	ErrStoreUnavailable = errors.New("catalog store unavailable")
	// ErrGroupNotFound covers unknown and unresolvable group ids.
	ErrGroupNotFound = errors.New("fusion group not found")
	// ErrRunNotFound covers unknown run ids.
	ErrRunNotFound = errors.New("cross-match run not found")
	// ErrInvalidRecord rejects ingestion payloads that fail validation.
	ErrInvalidRecord = errors.New("invalid star record")
)
