package domain

import "errors"

// Transport-level outcomes shared by the remote clients and the stores that consume them.
var (
	// ErrUnauthorized indicates the backend rejected the request with 401.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotFound indicates the backend answered 404 for the endpoint or resource.
	ErrNotFound = errors.New("not found")
)
