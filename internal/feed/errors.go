package feed

import "errors"

var (
	// ErrSourceUnavailable means the feed source could not be reached or parsed.
	ErrSourceUnavailable = errors.New("feed source unavailable")
	// ErrPersistence means a store write failed.
	ErrPersistence = errors.New("feed persistence failed")
	// ErrUnknownAttribute is returned by Attribute for names outside the declared set.
	ErrUnknownAttribute = errors.New("unknown feed attribute")
	// ErrInvalidIdentity rejects empty feed or item URIs.
	ErrInvalidIdentity = errors.New("invalid feed identity")
)
