package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mkravets/tickethub/internal/domain"
)

// Catalog reads event and ticket-type master data.
type Catalog interface {
	// GetPublishedEvent returns an event only if it is active and published.
	GetPublishedEvent(ctx context.Context, id uuid.UUID) (*domain.Event, error)
	// GetTenantEvent returns an event scoped to a tenant, regardless of status.
	GetTenantEvent(ctx context.Context, tenantID, eventID uuid.UUID) (*domain.Event, error)
	ListPublishedEvents(ctx context.Context, limit, offset int) ([]domain.Event, error)
	// TicketTypesByIDs returns the subset of ids that belong to the event.
	TicketTypesByIDs(ctx context.Context, eventID uuid.UUID, ids []uuid.UUID) ([]domain.TicketType, error)
	TicketTypesByEvent(ctx context.Context, eventID uuid.UUID) ([]domain.TicketType, error)
}

// Inventory owns the per-ticket-type capacity counter.
type Inventory interface {
	// Reserve atomically adds qty to quantity_sold, guarded by
	// quantity_sold + qty <= quantity_total. Zero affected rows is
	// ErrInsufficientInventory.
	Reserve(ctx context.Context, ticketTypeID uuid.UUID, qty int) error
}

// Discounts owns discount codes and their redemption counter.
type Discounts interface {
	Find(ctx context.Context, eventID uuid.UUID, code string) (*domain.DiscountCode, error)
	// Redeem atomically increments times_redeemed with the full validity
	// predicate re-checked in the same statement. Zero affected rows is
	// ErrDiscountNotEligible.
	Redeem(ctx context.Context, eventID uuid.UUID, code string, now time.Time) error
}

// Orders persists orders, their items and tickets.
type Orders interface {
	InsertOrder(ctx context.Context, o *domain.Order) error
	InsertItems(ctx context.Context, items []domain.OrderItem) error
	InsertTickets(ctx context.Context, tickets []domain.Ticket) error
	SetTicketCredential(ctx context.Context, ticketID uuid.UUID, payload, signature string) error
	OrderDetail(ctx context.Context, orderID uuid.UUID) (*domain.OrderDetail, error)
	OrderForBuyer(ctx context.Context, orderID uuid.UUID, email string) (*domain.OrderDetail, error)
	OrderForTenant(ctx context.Context, tenantID, orderID uuid.UUID) (*domain.OrderDetail, error)
	OrdersByEmail(ctx context.Context, email string) ([]domain.OrderDetail, error)
	OrdersByTenantEmail(ctx context.Context, tenantID uuid.UUID, email string) ([]domain.Order, error)
}

// Tickets serves the check-in flow and staff ticket views.
type Tickets interface {
	FindByPayload(ctx context.Context, payload string) (*domain.CheckinTicket, error)
	FindByID(ctx context.Context, id uuid.UUID) (*domain.CheckinTicket, error)
	// CheckIn sets checked_in_at and flips status to scanned, guarded by
	// checked_in_at IS NULL AND status = 'valid'. Zero affected rows is
	// ErrAlreadyCheckedIn.
	CheckIn(ctx context.Context, ticketID uuid.UUID, at time.Time) error
	ListByTenant(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]domain.Ticket, int64, error)
	Attendance(ctx context.Context, tenantID uuid.UUID, eventID *uuid.UUID) ([]domain.Ticket, error)
	SearchByAttendee(ctx context.Context, tenantID uuid.UUID, term string) ([]domain.Ticket, error)
}

// Audit stores the check-in audit trail.
type Audit interface {
	Append(ctx context.Context, entry *domain.ActivityLog) error
	ListByActor(ctx context.Context, tenantID, actorID uuid.UUID, limit, offset int) ([]domain.ActivityLog, int64, error)
}

// Tx is the repository set bound to a single transaction (or, on a Store,
// to the auto-committing pool).
type Tx interface {
	Catalog() Catalog
	Inventory() Inventory
	Discounts() Discounts
	Orders() Orders
	Tickets() Tickets
	Audit() Audit
}

// Store is the durable entry point. RunTx executes fn inside one database
// transaction; any error rolls the whole transaction back.
type Store interface {
	Tx
	RunTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
