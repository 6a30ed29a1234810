package checkout

import "errors"

var (
	ErrEventNotFound         = errors.New("event not found or not purchasable")
	ErrUnknownTicketType     = errors.New("ticket type does not belong to event")
	ErrEmptyCart             = errors.New("cart has no items")
	ErrBadQuantity           = errors.New("quantity must be positive")
	ErrDuplicateCartLine     = errors.New("duplicate ticket type in cart")
	ErrMissingBuyer          = errors.New("buyer name and email are required")
	ErrNotOnSale             = errors.New("ticket type is not on sale")
	ErrInsufficientInventory = errors.New("insufficient inventory")
	ErrDiscountConflict      = errors.New("discount code redemption conflict")
	ErrRateLimited           = errors.New("rate limited")
)
