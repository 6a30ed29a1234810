// Package query serves the read side: the public storefront catalog, buyer
// order lookups, and the staff views over tickets, attendance and capacity.
package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mkravets/tickethub/internal/domain"
	"github.com/mkravets/tickethub/internal/repository"
	redisrepo "github.com/mkravets/tickethub/internal/repository/redis"
)

const (
	defaultLimit = 20
	maxLimit     = 100

	catalogTTL = 30 * time.Second
)

type Service struct {
	store repository.Store
	cache *redisrepo.Cache
	now   func() time.Time
}

// New builds the read service. cache may be nil; catalog reads then go
// straight to the database.
func New(store repository.Store, cache *redisrepo.Cache) *Service {
	return &Service{store: store, cache: cache, now: time.Now}
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// ListEvents returns the public storefront catalog page.
func (s *Service) ListEvents(ctx context.Context, limit, offset int) ([]domain.Event, error) {
	const op = "service.query.ListEvents"

	limit, offset = clampPage(limit, offset)

	events, err := s.store.Catalog().ListPublishedEvents(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return events, nil
}

// GetEvent returns one published event, cached.
func (s *Service) GetEvent(ctx context.Context, eventID uuid.UUID) (*domain.Event, error) {
	const op = "service.query.GetEvent"

	load := func(ctx context.Context) (*domain.Event, error) {
		return s.store.Catalog().GetPublishedEvent(ctx, eventID)
	}

	var (
		event *domain.Event
		err   error
	)
	if s.cache != nil {
		event, err = redisrepo.GetOrSetJSON(
			ctx, s.cache, redisrepo.KeyEventSummary(eventID), catalogTTL, load,
		)
	} else {
		event, err = load(ctx)
	}
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrEventNotFound)
		}

		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return event, nil
}

// EventTicketType is the storefront view of a ticket type: price and
// advisory availability, never the raw sold counter.
type EventTicketType struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	PriceMinor  int64     `json:"price_minor"`
	Currency    string    `json:"currency"`
	Available   int       `json:"available"`
	OnSale      bool      `json:"on_sale"`
	SalesStart  time.Time `json:"sales_start"`
	SalesEnd    time.Time `json:"sales_end"`
}

// EventTicketTypes returns the purchasable ticket types of a published
// event. Draft and closed types are hidden.
func (s *Service) EventTicketTypes(ctx context.Context, eventID uuid.UUID) ([]EventTicketType, error) {
	const op = "service.query.EventTicketTypes"

	load := func(ctx context.Context) ([]EventTicketType, error) {
		if _, err := s.store.Catalog().GetPublishedEvent(ctx, eventID); err != nil {
			return nil, err
		}

		types, err := s.store.Catalog().TicketTypesByEvent(ctx, eventID)
		if err != nil {
			return nil, err
		}

		now := s.now()
		out := make([]EventTicketType, 0, len(types))
		for _, t := range types {
			switch t.Status {
			case domain.TicketTypeActive, domain.TicketTypePaused, domain.TicketTypeSoldOut:
			default:
				continue
			}
			out = append(out, EventTicketType{
				ID:          t.ID,
				Name:        t.Name,
				Description: t.Description,
				PriceMinor:  t.PriceMinor,
				Currency:    t.Currency,
				Available:   t.Available(),
				OnSale:      t.OnSale(now),
				SalesStart:  t.SalesStart,
				SalesEnd:    t.SalesEnd,
			})
		}

		return out, nil
	}

	var (
		types []EventTicketType
		err   error
	)
	if s.cache != nil {
		types, err = redisrepo.GetOrSetJSON(
			ctx, s.cache, redisrepo.KeyEventTicketTypes(eventID), catalogTTL, load,
		)
	} else {
		types, err = load(ctx)
	}
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrEventNotFound)
		}

		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return types, nil
}

// OrderForBuyer returns an order only when the supplied email matches the
// buyer, so an order id alone is not enough to read someone else's order.
func (s *Service) OrderForBuyer(ctx context.Context, orderID uuid.UUID, email string) (*domain.OrderDetail, error) {
	const op = "service.query.OrderForBuyer"

	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, fmt.Errorf("%s:%w", op, ErrMissingEmail)
	}

	detail, err := s.store.Orders().OrderForBuyer(ctx, orderID, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrOrderNotFound)
		}

		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return detail, nil
}

// OrdersByEmail returns all of a buyer's orders with items and tickets.
func (s *Service) OrdersByEmail(ctx context.Context, email string) ([]domain.OrderDetail, error) {
	const op = "service.query.OrdersByEmail"

	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, fmt.Errorf("%s:%w", op, ErrMissingEmail)
	}

	details, err := s.store.Orders().OrdersByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return details, nil
}

// TicketPage is one page of a tenant's tickets.
type TicketPage struct {
	Tickets []domain.Ticket `json:"tickets"`
	Total   int64           `json:"total"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
}

func (s *Service) TenantTickets(ctx context.Context, tenantID uuid.UUID, limit, offset int) (*TicketPage, error) {
	const op = "service.query.TenantTickets"

	limit, offset = clampPage(limit, offset)

	tickets, total, err := s.store.Tickets().ListByTenant(ctx, tenantID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return &TicketPage{
		Tickets: tickets,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
	}, nil
}

// Attendance lists checked-in tickets for a tenant, optionally narrowed to
// one event.
func (s *Service) Attendance(ctx context.Context, tenantID uuid.UUID, eventID *uuid.UUID) ([]domain.Ticket, error) {
	const op = "service.query.Attendance"

	tickets, err := s.store.Tickets().Attendance(ctx, tenantID, eventID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return tickets, nil
}

// SearchTickets finds a tenant's tickets by attendee name or email.
func (s *Service) SearchTickets(ctx context.Context, tenantID uuid.UUID, term string) ([]domain.Ticket, error) {
	const op = "service.query.SearchTickets"

	term = strings.TrimSpace(term)
	if len(term) < 2 {
		return nil, fmt.Errorf("%s:%w", op, ErrShortTerm)
	}

	tickets, err := s.store.Tickets().SearchByAttendee(ctx, tenantID, term)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return tickets, nil
}

// Capacity aggregates sold-versus-total across an event's ticket types.
func (s *Service) Capacity(ctx context.Context, tenantID, eventID uuid.UUID) (*domain.CapacitySummary, error) {
	const op = "service.query.Capacity"

	event, err := s.store.Catalog().GetTenantEvent(ctx, tenantID, eventID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrEventNotFound)
		}

		return nil, fmt.Errorf("%s:%w", op, err)
	}

	types, err := s.store.Catalog().TicketTypesByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	summary := &domain.CapacitySummary{
		EventID:     event.ID,
		EventName:   event.Name,
		TicketTypes: make([]domain.TypeCapacity, 0, len(types)),
	}

	for _, t := range types {
		pct := 0
		if t.QuantityTotal > 0 {
			pct = t.QuantitySold * 100 / t.QuantityTotal
		}
		summary.TicketTypes = append(summary.TicketTypes, domain.TypeCapacity{
			ID:             t.ID,
			Name:           t.Name,
			Total:          t.QuantityTotal,
			Sold:           t.QuantitySold,
			Remaining:      t.Available(),
			PercentageSold: pct,
		})
		summary.TotalCapacity += t.QuantityTotal
		summary.TotalSold += t.QuantitySold
	}
	summary.TotalRemaining = summary.TotalCapacity - summary.TotalSold

	return summary, nil
}

// TenantOrder returns an order scoped to the staff member's tenant.
func (s *Service) TenantOrder(ctx context.Context, tenantID, orderID uuid.UUID) (*domain.OrderDetail, error) {
	const op = "service.query.TenantOrder"

	detail, err := s.store.Orders().OrderForTenant(ctx, tenantID, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrOrderNotFound)
		}

		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return detail, nil
}

// SearchOrders finds a tenant's orders by buyer email.
func (s *Service) SearchOrders(ctx context.Context, tenantID uuid.UUID, email string) ([]domain.Order, error) {
	const op = "service.query.SearchOrders"

	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, fmt.Errorf("%s:%w", op, ErrMissingEmail)
	}

	orders, err := s.store.Orders().OrdersByTenantEmail(ctx, tenantID, email)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return orders, nil
}

// ActorActivity returns a page of a staff member's audit trail.
func (s *Service) ActorActivity(ctx context.Context, tenantID, actorID uuid.UUID, limit, offset int) ([]domain.ActivityLog, int64, error) {
	const op = "service.query.ActorActivity"

	limit, offset = clampPage(limit, offset)

	entries, total, err := s.store.Audit().ListByActor(ctx, tenantID, actorID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("%s:%w", op, err)
	}

	return entries, total, nil
}
