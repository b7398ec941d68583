package analytics

import "errors"

var (
	// ErrDuplicateSession is returned when a session token is already in use.
	ErrDuplicateSession = errors.New("reading session already exists")
	// ErrUnknownSession is returned by heartbeat/complete for a token that was never started.
	ErrUnknownSession = errors.New("reading session not found")
	// ErrMetadataSerialization marks metadata that could not be encoded.
	ErrMetadataSerialization = errors.New("metadata could not be serialized")
	// ErrStorageUnavailable marks a persistence layer that cannot be reached.
	ErrStorageUnavailable = errors.New("storage unavailable")

	ErrInvalidReader   = errors.New("invalid reader")
	ErrInvalidProgress = errors.New("progress percent must be between 0 and 100")
	ErrMissingArticle  = errors.New("article id is required")
	ErrInvalidEvent    = errors.New("invalid event")
)
