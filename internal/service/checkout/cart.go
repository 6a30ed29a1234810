package checkout

import (
	"github.com/google/uuid"
	"github.com/mkravets/tickethub/internal/domain"
)

// CartItem is one requested (ticket type, quantity) pair.
type CartItem struct {
	TicketTypeID uuid.UUID
	Quantity     int
}

// CartLine is a resolved cart item carrying the price snapshot taken at
// resolution time. The snapshot, not the live ticket-type price, is what the
// order item records.
type CartLine struct {
	TicketType     domain.TicketType
	Quantity       int
	UnitPriceMinor int64
	SubtotalMinor  int64
}

// Cart is the priced result of resolving a request against live catalog
// data. Resolution has no side effects; every check is repeated
// authoritatively inside the checkout transaction.
type Cart struct {
	Event         *domain.Event
	Lines         []CartLine
	SubtotalMinor int64
	Discount      *domain.DiscountCode
	DiscountMinor int64
	TotalMinor    int64
}

func (c *Cart) applyDiscount(d *domain.DiscountCode) {
	c.Discount = d
	c.DiscountMinor = d.AmountFor(c.SubtotalMinor)
	c.TotalMinor = c.SubtotalMinor - c.DiscountMinor
	if c.TotalMinor < 0 {
		c.TotalMinor = 0
	}
}
