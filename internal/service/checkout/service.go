package checkout

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mkravets/tickethub/internal/domain"
	"github.com/mkravets/tickethub/internal/metrics"
	redisx "github.com/mkravets/tickethub/internal/redis"
	"github.com/mkravets/tickethub/internal/repository"
	redisrepo "github.com/mkravets/tickethub/internal/repository/redis"
	"github.com/mkravets/tickethub/internal/ticketsig"
	"github.com/mkravets/tickethub/internal/uow"
)

type Config struct {
	Currency string
}

// Service orchestrates checkout: cart resolution, inventory reservation,
// discount redemption, order persistence and ticket issuance, all inside one
// transaction.
type Service struct {
	store   repository.Store
	cache   *redisrepo.Cache
	pubsub  *redisx.InventoryPubSub
	limiter *redisrepo.SlidingWindowLimiter
	uow     *uow.UoW
	signer  *ticketsig.Signer
	now     func() time.Time
	cfg     Config
}

func New(
	store repository.Store,
	cache *redisrepo.Cache,
	pubsub *redisx.InventoryPubSub,
	limiter *redisrepo.SlidingWindowLimiter,
	signer *ticketsig.Signer,
	cfg Config,
) *Service {
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}

	return &Service{
		store:   store,
		cache:   cache,
		pubsub:  pubsub,
		limiter: limiter,
		uow:     uow.NewUoW(store),
		signer:  signer,
		now:     time.Now,
		cfg:     cfg,
	}
}

// Input describes one checkout request.
type Input struct {
	EventID      uuid.UUID
	Items        []CartItem
	BuyerEmail   string
	BuyerName    string
	DiscountCode string
}

// ResolveCart validates a requested cart against the live catalog and prices
// it. Pure read: the availability check here is advisory, the reservation
// inside Checkout is authoritative.
//
// Returns:
//   - error: checkout.ErrEventNotFound if the event is unknown or closed.
//   - error: checkout.ErrUnknownTicketType if an id is not part of the event.
//   - error: checkout.ErrNotOnSale if a type is inactive or outside its
//     sales window.
//   - error: checkout.ErrInsufficientInventory if a quantity exceeds what is
//     available at resolution time.
func (s *Service) ResolveCart(ctx context.Context, eventID uuid.UUID, items []CartItem) (*Cart, error) {
	const op = "service.checkout.ResolveCart"

	if len(items) == 0 {
		return nil, fmt.Errorf("%s:%w", op, ErrEmptyCart)
	}

	seen := make(map[uuid.UUID]bool, len(items))
	ids := make([]uuid.UUID, 0, len(items))
	for _, it := range items {
		if it.Quantity <= 0 {
			return nil, fmt.Errorf("%s:%w", op, ErrBadQuantity)
		}
		if seen[it.TicketTypeID] {
			return nil, fmt.Errorf("%s:%w", op, ErrDuplicateCartLine)
		}
		seen[it.TicketTypeID] = true
		ids = append(ids, it.TicketTypeID)
	}

	event, err := s.store.Catalog().GetPublishedEvent(ctx, eventID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrEventNotFound)
		}

		return nil, fmt.Errorf("%s:%w", op, err)
	}

	types, err := s.store.Catalog().TicketTypesByIDs(ctx, eventID, ids)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	byID := make(map[uuid.UUID]domain.TicketType, len(types))
	for _, t := range types {
		byID[t.ID] = t
	}

	now := s.now()
	cart := &Cart{Event: event}

	for _, it := range items {
		tt, ok := byID[it.TicketTypeID]
		if !ok {
			return nil, fmt.Errorf("%s: %s:%w", op, it.TicketTypeID, ErrUnknownTicketType)
		}

		if !tt.OnSale(now) {
			return nil, fmt.Errorf("%s: %q:%w", op, tt.Name, ErrNotOnSale)
		}

		if it.Quantity > tt.Available() {
			return nil, fmt.Errorf(
				"%s: %q (available %d, requested %d):%w",
				op, tt.Name, tt.Available(), it.Quantity, ErrInsufficientInventory,
			)
		}

		subtotal := tt.PriceMinor * int64(it.Quantity)
		cart.SubtotalMinor += subtotal
		cart.Lines = append(cart.Lines, CartLine{
			TicketType:     tt,
			Quantity:       it.Quantity,
			UnitPriceMinor: tt.PriceMinor,
			SubtotalMinor:  subtotal,
		})
	}

	cart.TotalMinor = cart.SubtotalMinor

	return cart, nil
}

// Checkout turns a cart request into a committed order with issued tickets.
//
// The flow is: resolve and price outside the transaction, then inside one
// transaction re-validate the event, reserve inventory per line (stable
// ascending ticket-type order, to keep lock acquisition deterministic under
// contention), redeem the discount, persist order/items/tickets and sign
// each ticket. Any failure rolls the whole transaction back; no partial
// reservation, redemption or order survives.
//
// An unknown discount code is ignored, matching the storefront's advisory
// validation. A code that exists but is ineligible, whether that shows up
// at resolution time or as a lost redemption race inside the transaction,
// fails the checkout with ErrDiscountConflict: completing without the
// discount would charge more than the quoted total.
func (s *Service) Checkout(ctx context.Context, in Input, rlKey string) (*domain.OrderDetail, error) {
	const op = "service.checkout.Checkout"

	if strings.TrimSpace(in.BuyerEmail) == "" || strings.TrimSpace(in.BuyerName) == "" {
		return nil, fmt.Errorf("%s:%w", op, ErrMissingBuyer)
	}

	if s.limiter != nil && rlKey != "" {
		ok, _, retry, err := s.limiter.Allow(ctx, rlKey)
		if err != nil {
			return nil, fmt.Errorf("%s:%w", op, err)
		}
		if !ok {
			return nil, fmt.Errorf("%s: retry in %s:%w", op, retry, ErrRateLimited)
		}
	}

	cart, err := s.ResolveCart(ctx, in.EventID, in.Items)
	if err != nil {
		metrics.CheckoutTotal.WithLabelValues(metrics.OutcomeRejected).Inc()
		return nil, err
	}

	if code := strings.TrimSpace(in.DiscountCode); code != "" {
		d, err := s.store.Discounts().Find(ctx, in.EventID, code)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, err)
		}

		// Unknown codes are ignored, matching the storefront's advisory
		// validation. A known code that is no longer eligible fails the
		// checkout the same way losing the redemption race does, so the
		// outcome does not depend on when the cap became visible.
		if d != nil {
			ok, reason := d.EligibleAt(s.now())
			if !ok {
				metrics.CheckoutTotal.WithLabelValues(metrics.OutcomeConflict).Inc()
				return nil, fmt.Errorf("%s: %q (%s):%w", op, d.Code, reason, ErrDiscountConflict)
			}
			cart.applyDiscount(d)
		}
	}

	// Deterministic reservation order prevents lock-order deadlocks when
	// concurrent carts overlap on ticket types.
	lines := make([]CartLine, len(cart.Lines))
	copy(lines, cart.Lines)
	sort.Slice(lines, func(i, j int) bool {
		return strings.Compare(lines[i].TicketType.ID.String(), lines[j].TicketType.ID.String()) < 0
	})

	orderID := uuid.New()
	now := s.now()

	err = s.uow.Do(ctx, func(
		ctx context.Context,
		tx repository.Tx,
		after func(uow.AfterCommit),
	) error {
		// Re-validate inside the transaction: the event may have been
		// unpublished between resolution and commit.
		event, err := tx.Catalog().GetPublishedEvent(ctx, in.EventID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%s:%w", op, ErrEventNotFound)
			}

			return fmt.Errorf("%s:%w", op, err)
		}

		for _, line := range lines {
			if err := tx.Inventory().Reserve(ctx, line.TicketType.ID, line.Quantity); err != nil {
				if errors.Is(err, repository.ErrInsufficientInventory) {
					return fmt.Errorf("%s: %q:%w", op, line.TicketType.Name, ErrInsufficientInventory)
				}

				return fmt.Errorf("%s:%w", op, err)
			}
		}

		if cart.Discount != nil {
			if err := tx.Discounts().Redeem(ctx, in.EventID, cart.Discount.Code, now); err != nil {
				if errors.Is(err, repository.ErrDiscountNotEligible) {
					return fmt.Errorf("%s: %q:%w", op, cart.Discount.Code, ErrDiscountConflict)
				}

				return fmt.Errorf("%s:%w", op, err)
			}
		}

		order := &domain.Order{
			ID:         orderID,
			TenantID:   event.TenantID,
			EventID:    event.ID,
			BuyerEmail: in.BuyerEmail,
			BuyerName:  in.BuyerName,
			TotalMinor: cart.TotalMinor,
			Currency:   s.cfg.Currency,
			Status:     domain.OrderPending,
		}
		if err := tx.Orders().InsertOrder(ctx, order); err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}

		items := make([]domain.OrderItem, 0, len(cart.Lines))
		var tickets []domain.Ticket
		for _, line := range cart.Lines {
			items = append(items, domain.OrderItem{
				ID:             uuid.New(),
				OrderID:        orderID,
				TicketTypeID:   line.TicketType.ID,
				UnitPriceMinor: line.UnitPriceMinor,
				Quantity:       line.Quantity,
				SubtotalMinor:  line.SubtotalMinor,
			})

			for i := 0; i < line.Quantity; i++ {
				tickets = append(tickets, domain.Ticket{
					ID:            uuid.New(),
					OrderID:       orderID,
					TicketTypeID:  line.TicketType.ID,
					AttendeeName:  in.BuyerName,
					AttendeeEmail: in.BuyerEmail,
					Status:        domain.TicketValid,
				})
			}
		}

		if err := tx.Orders().InsertItems(ctx, items); err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}

		if err := tx.Orders().InsertTickets(ctx, tickets); err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}

		for _, t := range tickets {
			payload, sig := s.signer.Issue(t.ID, orderID, event.ID, in.BuyerName, now)
			if err := tx.Orders().SetTicketCredential(ctx, t.ID, payload, sig); err != nil {
				return fmt.Errorf("%s:%w", op, err)
			}
		}

		after(func(ctx context.Context) {
			if s.cache != nil {
				_ = s.cache.InvalidateEvent(ctx, event.ID)
			}
			if s.pubsub != nil {
				_ = s.pubsub.PublishInventoryChanged(ctx, event.ID)
			}
			metrics.CheckoutTotal.WithLabelValues(metrics.OutcomeCommitted).Inc()
			metrics.TicketsIssued.Add(float64(len(tickets)))
		})

		return nil
	})
	if err != nil {
		if errors.Is(err, ErrInsufficientInventory) || errors.Is(err, ErrDiscountConflict) {
			metrics.CheckoutTotal.WithLabelValues(metrics.OutcomeConflict).Inc()
		} else {
			metrics.CheckoutTotal.WithLabelValues(metrics.OutcomeError).Inc()
		}
		return nil, err
	}

	detail, err := s.store.Orders().OrderDetail(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return detail, nil
}
