package domain

import (
	"time"

	"github.com/google/uuid"
)

type EventStatus string

const (
	EventDraft    EventStatus = "draft"
	EventActive   EventStatus = "active"
	EventArchived EventStatus = "archived"
)

type TicketTypeStatus string

const (
	TicketTypeDraft   TicketTypeStatus = "draft"
	TicketTypeActive  TicketTypeStatus = "active"
	TicketTypePaused  TicketTypeStatus = "paused"
	TicketTypeSoldOut TicketTypeStatus = "sold_out"
	TicketTypeClosed  TicketTypeStatus = "closed"
)

type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed_amount"
)

type DiscountStatus string

const (
	DiscountActive   DiscountStatus = "active"
	DiscountExpired  DiscountStatus = "expired"
	DiscountDisabled DiscountStatus = "disabled"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderCompleted OrderStatus = "completed"
	OrderFailed    OrderStatus = "failed"
	OrderCancelled OrderStatus = "cancelled"
	OrderRefunded  OrderStatus = "refunded"
)

type TicketStatus string

const (
	TicketValid     TicketStatus = "valid"
	TicketScanned   TicketStatus = "scanned"
	TicketUsed      TicketStatus = "used"
	TicketCancelled TicketStatus = "cancelled"
	TicketRefunded  TicketStatus = "refunded"
)

type Event struct {
	ID        uuid.UUID   `json:"id"`
	TenantID  uuid.UUID   `json:"tenant_id"`
	Name      string      `json:"name"`
	Slug      string      `json:"slug"`
	Venue     string      `json:"venue"`
	City      string      `json:"city"`
	Status    EventStatus `json:"status"`
	Published bool        `json:"published"`
	StartAt   time.Time   `json:"start_at"`
	EndAt     time.Time   `json:"end_at"`
}

// Purchasable reports whether the event is open on the public storefront.
func (e *Event) Purchasable() bool {
	return e.Status == EventActive && e.Published
}

type TicketType struct {
	ID            uuid.UUID        `json:"id"`
	EventID       uuid.UUID        `json:"event_id"`
	Name          string           `json:"name"`
	Description   string           `json:"description"`
	PriceMinor    int64            `json:"price_minor"`
	Currency      string           `json:"currency"`
	QuantityTotal int              `json:"quantity_total"`
	QuantitySold  int              `json:"quantity_sold"`
	SalesStart    time.Time        `json:"sales_start"`
	SalesEnd      time.Time        `json:"sales_end"`
	Status        TicketTypeStatus `json:"status"`
}

// Available is the advisory remaining capacity at read time. The conditional
// reservation UPDATE inside the checkout transaction is the authoritative guard.
func (t *TicketType) Available() int {
	return t.QuantityTotal - t.QuantitySold
}

// OnSale reports whether the type can be purchased at the given instant.
func (t *TicketType) OnSale(now time.Time) bool {
	return t.Status == TicketTypeActive &&
		!now.Before(t.SalesStart) &&
		!now.After(t.SalesEnd)
}

type DiscountCode struct {
	ID             uuid.UUID      `json:"id"`
	EventID        uuid.UUID      `json:"event_id"`
	Code           string         `json:"code"`
	Type           DiscountType   `json:"type"`
	Value          int64          `json:"value"`
	StartsAt       time.Time      `json:"starts_at"`
	ExpiresAt      time.Time      `json:"expires_at"`
	MaxRedemptions int            `json:"max_redemptions"`
	TimesRedeemed  int            `json:"times_redeemed"`
	Status         DiscountStatus `json:"status"`
}

// EligibleAt checks the full validity predicate. The same predicate is
// re-evaluated inside the redeem UPDATE, so a true result here is advisory.
func (d *DiscountCode) EligibleAt(now time.Time) (bool, string) {
	if d.Status != DiscountActive {
		return false, "discount code is not active"
	}
	if now.Before(d.StartsAt) {
		return false, "discount code has not started yet"
	}
	if now.After(d.ExpiresAt) {
		return false, "discount code has expired"
	}
	if d.TimesRedeemed >= d.MaxRedemptions {
		return false, "discount code has reached maximum redemptions"
	}
	return true, ""
}

// AmountFor computes the discount against a subtotal in minor units.
// Percentage values floor; the result never exceeds the subtotal.
func (d *DiscountCode) AmountFor(subtotal int64) int64 {
	var amount int64
	switch d.Type {
	case DiscountPercentage:
		amount = subtotal * d.Value / 100
	case DiscountFixed:
		amount = d.Value
	}
	if amount > subtotal {
		amount = subtotal
	}
	if amount < 0 {
		amount = 0
	}
	return amount
}

type Order struct {
	ID         uuid.UUID   `json:"id"`
	TenantID   uuid.UUID   `json:"tenant_id"`
	EventID    uuid.UUID   `json:"event_id"`
	BuyerEmail string      `json:"buyer_email"`
	BuyerName  string      `json:"buyer_name"`
	TotalMinor int64       `json:"total_minor"`
	Currency   string      `json:"currency"`
	Status     OrderStatus `json:"status"`
	PaymentRef string      `json:"payment_ref,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}

// OrderItem is an immutable price snapshot per cart line.
type OrderItem struct {
	ID             uuid.UUID `json:"id"`
	OrderID        uuid.UUID `json:"order_id"`
	TicketTypeID   uuid.UUID `json:"ticket_type_id"`
	UnitPriceMinor int64     `json:"unit_price_minor"`
	Quantity       int       `json:"quantity"`
	SubtotalMinor  int64     `json:"subtotal_minor"`
}

type Ticket struct {
	ID            uuid.UUID    `json:"id"`
	OrderID       uuid.UUID    `json:"order_id"`
	TicketTypeID  uuid.UUID    `json:"ticket_type_id"`
	AttendeeName  string       `json:"attendee_name"`
	AttendeeEmail string       `json:"attendee_email"`
	QRPayload     string       `json:"qr_payload,omitempty"`
	QRSignature   string       `json:"-"`
	Status        TicketStatus `json:"status"`
	CheckedInAt   *time.Time   `json:"checked_in_at,omitempty"`
	SeatLabel     string       `json:"seat_label,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
}

type OrderDetail struct {
	Order   Order       `json:"order"`
	Items   []OrderItem `json:"items"`
	Tickets []Ticket    `json:"tickets"`
}

// CheckinTicket is a ticket joined with the owning order's tenant and event,
// which the check-in flow needs for the tenant-ownership gate.
type CheckinTicket struct {
	Ticket
	TenantID uuid.UUID `json:"tenant_id"`
	EventID  uuid.UUID `json:"event_id"`
}

type ActivityLog struct {
	ID        int64     `json:"id"`
	TenantID  uuid.UUID `json:"tenant_id"`
	ActorID   uuid.UUID `json:"actor_id"`
	Action    string    `json:"action"`
	Metadata  []byte    `json:"metadata,omitempty"` // jsonb raw
	CreatedAt time.Time `json:"created_at"`
}

type TypeCapacity struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Total          int       `json:"total"`
	Sold           int       `json:"sold"`
	Remaining      int       `json:"remaining"`
	PercentageSold int       `json:"percentage_sold"`
}

type CapacitySummary struct {
	EventID        uuid.UUID      `json:"event_id"`
	EventName      string         `json:"event_name"`
	TicketTypes    []TypeCapacity `json:"ticket_types"`
	TotalCapacity  int            `json:"total_capacity"`
	TotalSold      int            `json:"total_sold"`
	TotalRemaining int            `json:"total_remaining"`
}
