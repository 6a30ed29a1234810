package repository

import "errors"

var (
	ErrNotFound              = errors.New("not found")
	ErrConflict              = errors.New("conflict")
	ErrInsufficientInventory = errors.New("insufficient inventory")
	ErrDiscountNotEligible   = errors.New("discount code not eligible")
	ErrAlreadyCheckedIn      = errors.New("ticket already checked in")
)
