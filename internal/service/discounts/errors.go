package discounts

import "errors"

var (
	ErrEventNotFound = errors.New("event not found")
	ErrEmptyCode     = errors.New("discount code is required")
)
