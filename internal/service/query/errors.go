package query

import "errors"

var (
	ErrEventNotFound = errors.New("event not found")
	ErrOrderNotFound = errors.New("order not found")
	ErrShortTerm     = errors.New("search term must be at least 2 characters")
	ErrMissingEmail  = errors.New("email is required")
)
