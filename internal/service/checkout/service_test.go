package checkout

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mkravets/tickethub/internal/domain"
	"github.com/mkravets/tickethub/internal/repository/repotest"
	"github.com/mkravets/tickethub/internal/ticketsig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store  *repotest.FakeStore
	svc    *Service
	event  domain.Event
	ga     domain.TicketType
	vip    domain.TicketType
	codeID uuid.UUID
	signer *ticketsig.Signer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := repotest.NewFakeStore()

	event := domain.Event{
		ID:        uuid.New(),
		TenantID:  uuid.New(),
		Name:      "Synth Night",
		Status:    domain.EventActive,
		Published: true,
		StartAt:   testNow.Add(24 * time.Hour),
		EndAt:     testNow.Add(30 * time.Hour),
	}
	store.SeedEvent(event)

	ga := domain.TicketType{
		ID:            uuid.New(),
		EventID:       event.ID,
		Name:          "General Admission",
		PriceMinor:    2500,
		Currency:      "USD",
		QuantityTotal: 100,
		SalesStart:    testNow.Add(-time.Hour),
		SalesEnd:      testNow.Add(12 * time.Hour),
		Status:        domain.TicketTypeActive,
	}
	vip := domain.TicketType{
		ID:            uuid.New(),
		EventID:       event.ID,
		Name:          "VIP",
		PriceMinor:    10000,
		Currency:      "USD",
		QuantityTotal: 10,
		SalesStart:    testNow.Add(-time.Hour),
		SalesEnd:      testNow.Add(12 * time.Hour),
		Status:        domain.TicketTypeActive,
	}
	store.SeedTicketType(ga)
	store.SeedTicketType(vip)

	codeID := uuid.New()
	store.SeedDiscount(domain.DiscountCode{
		ID:             codeID,
		EventID:        event.ID,
		Code:           "EARLY10",
		Status:         domain.DiscountActive,
		Type:           domain.DiscountPercentage,
		Value:          10,
		StartsAt:       testNow.Add(-time.Hour),
		ExpiresAt:      testNow.Add(time.Hour),
		MaxRedemptions: 100,
	})

	signer, err := ticketsig.NewSigner("test-secret")
	require.NoError(t, err)

	svc := New(store, nil, nil, nil, signer, Config{Currency: "USD"})
	svc.now = func() time.Time { return testNow }

	return &fixture{
		store:  store,
		svc:    svc,
		event:  event,
		ga:     ga,
		vip:    vip,
		codeID: codeID,
		signer: signer,
	}
}

func TestCheckout_Success(t *testing.T) {
	f := newFixture(t)

	detail, err := f.svc.Checkout(context.Background(), Input{
		EventID: f.event.ID,
		Items: []CartItem{
			{TicketTypeID: f.ga.ID, Quantity: 2},
			{TicketTypeID: f.vip.ID, Quantity: 1},
		},
		BuyerEmail: "Buyer@Example.com",
		BuyerName:  "Grace Hopper",
	}, "")
	require.NoError(t, err)

	assert.Equal(t, int64(2*2500+10000), detail.Order.TotalMinor)
	assert.Equal(t, "USD", detail.Order.Currency)
	assert.Len(t, detail.Items, 2)
	assert.Len(t, detail.Tickets, 3)

	for _, ticket := range detail.Tickets {
		assert.Equal(t, domain.TicketValid, ticket.Status)
		assert.NotEmpty(t, ticket.QRPayload)

		stored := f.store.Ticket(ticket.ID)
		assert.True(t, f.signer.Verify(stored.QRPayload, stored.QRSignature))
	}

	assert.Equal(t, 2, f.store.TicketType(f.ga.ID).QuantitySold)
	assert.Equal(t, 1, f.store.TicketType(f.vip.ID).QuantitySold)
}

func TestCheckout_PercentageDiscountFloors(t *testing.T) {
	f := newFixture(t)

	// 10% of 2500+10000 = 1250, total 11250
	detail, err := f.svc.Checkout(context.Background(), Input{
		EventID: f.event.ID,
		Items: []CartItem{
			{TicketTypeID: f.ga.ID, Quantity: 1},
			{TicketTypeID: f.vip.ID, Quantity: 1},
		},
		BuyerEmail:   "buyer@example.com",
		BuyerName:    "Grace Hopper",
		DiscountCode: "early10",
	}, "")
	require.NoError(t, err)

	assert.Equal(t, int64(11250), detail.Order.TotalMinor)
	assert.Equal(t, 1, f.store.Discount(f.codeID).TimesRedeemed)
}

func TestCheckout_UnknownDiscountIgnored(t *testing.T) {
	f := newFixture(t)

	detail, err := f.svc.Checkout(context.Background(), Input{
		EventID:      f.event.ID,
		Items:        []CartItem{{TicketTypeID: f.ga.ID, Quantity: 1}},
		BuyerEmail:   "buyer@example.com",
		BuyerName:    "Grace Hopper",
		DiscountCode: "NOPE",
	}, "")
	require.NoError(t, err)

	assert.Equal(t, int64(2500), detail.Order.TotalMinor)
}

// A code that exists but is no longer eligible fails the checkout, whether
// the cap was visible before the transaction or hit inside it.
func TestCheckout_ExhaustedDiscountConflicts(t *testing.T) {
	f := newFixture(t)

	f.store.SeedDiscount(domain.DiscountCode{
		ID:             uuid.New(),
		EventID:        f.event.ID,
		Code:           "GONE",
		Status:         domain.DiscountActive,
		Type:           domain.DiscountFixed,
		Value:          500,
		StartsAt:       testNow.Add(-time.Hour),
		ExpiresAt:      testNow.Add(time.Hour),
		MaxRedemptions: 1,
		TimesRedeemed:  1,
	})

	_, err := f.svc.Checkout(context.Background(), Input{
		EventID:      f.event.ID,
		Items:        []CartItem{{TicketTypeID: f.ga.ID, Quantity: 1}},
		BuyerEmail:   "buyer@example.com",
		BuyerName:    "Grace Hopper",
		DiscountCode: "GONE",
	}, "")

	assert.ErrorIs(t, err, ErrDiscountConflict)
	assert.Equal(t, 0, f.store.TicketType(f.ga.ID).QuantitySold)
	assert.Equal(t, 0, f.store.OrderCount())
}

func TestCheckout_ExpiredDiscountConflicts(t *testing.T) {
	f := newFixture(t)

	f.store.SeedDiscount(domain.DiscountCode{
		ID:             uuid.New(),
		EventID:        f.event.ID,
		Code:           "LASTYEAR",
		Status:         domain.DiscountActive,
		Type:           domain.DiscountPercentage,
		Value:          10,
		StartsAt:       testNow.Add(-48 * time.Hour),
		ExpiresAt:      testNow.Add(-24 * time.Hour),
		MaxRedemptions: 100,
	})

	_, err := f.svc.Checkout(context.Background(), Input{
		EventID:      f.event.ID,
		Items:        []CartItem{{TicketTypeID: f.ga.ID, Quantity: 1}},
		BuyerEmail:   "buyer@example.com",
		BuyerName:    "Grace Hopper",
		DiscountCode: "LASTYEAR",
	}, "")

	assert.ErrorIs(t, err, ErrDiscountConflict)
	assert.Equal(t, 0, f.store.OrderCount())
}

func TestCheckout_LastTicketRace(t *testing.T) {
	f := newFixture(t)

	last := domain.TicketType{
		ID:            uuid.New(),
		EventID:       f.event.ID,
		Name:          "Last One",
		PriceMinor:    5000,
		Currency:      "USD",
		QuantityTotal: 1,
		SalesStart:    testNow.Add(-time.Hour),
		SalesEnd:      testNow.Add(12 * time.Hour),
		Status:        domain.TicketTypeActive,
	}
	f.store.SeedTicketType(last)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Checkout(context.Background(), Input{
				EventID:    f.event.ID,
				Items:      []CartItem{{TicketTypeID: last.ID, Quantity: 1}},
				BuyerEmail: "buyer@example.com",
				BuyerName:  "Grace Hopper",
			}, "")
		}(i)
	}
	wg.Wait()

	var won, lost int
	for _, err := range errs {
		if err == nil {
			won++
		} else {
			assert.ErrorIs(t, err, ErrInsufficientInventory)
			lost++
		}
	}
	assert.Equal(t, 1, won)
	assert.Equal(t, 1, lost)
	assert.Equal(t, 1, f.store.TicketType(last.ID).QuantitySold)
}

func TestCheckout_NeverOversellsUnderContention(t *testing.T) {
	f := newFixture(t)

	scarce := domain.TicketType{
		ID:            uuid.New(),
		EventID:       f.event.ID,
		Name:          "Scarce",
		PriceMinor:    1000,
		Currency:      "USD",
		QuantityTotal: 7,
		SalesStart:    testNow.Add(-time.Hour),
		SalesEnd:      testNow.Add(12 * time.Hour),
		Status:        domain.TicketTypeActive,
	}
	f.store.SeedTicketType(scarce)

	const attempts = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	committed := 0

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Checkout(context.Background(), Input{
				EventID:    f.event.ID,
				Items:      []CartItem{{TicketTypeID: scarce.ID, Quantity: 1}},
				BuyerEmail: "buyer@example.com",
				BuyerName:  "Grace Hopper",
			}, "")
			if err == nil {
				mu.Lock()
				committed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 7, committed)
	assert.Equal(t, 7, f.store.TicketType(scarce.ID).QuantitySold)
}

func TestCheckout_DiscountRedemptionRace(t *testing.T) {
	f := newFixture(t)

	oneUse := uuid.New()
	f.store.SeedDiscount(domain.DiscountCode{
		ID:             oneUse,
		EventID:        f.event.ID,
		Code:           "ONCE",
		Status:         domain.DiscountActive,
		Type:           domain.DiscountFixed,
		Value:          500,
		StartsAt:       testNow.Add(-time.Hour),
		ExpiresAt:      testNow.Add(time.Hour),
		MaxRedemptions: 1,
	})

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Checkout(context.Background(), Input{
				EventID:      f.event.ID,
				Items:        []CartItem{{TicketTypeID: f.ga.ID, Quantity: 1}},
				BuyerEmail:   "buyer@example.com",
				BuyerName:    "Grace Hopper",
				DiscountCode: "ONCE",
			}, "")
		}(i)
	}
	wg.Wait()

	var won int
	for _, err := range errs {
		if err == nil {
			won++
		} else {
			assert.ErrorIs(t, err, ErrDiscountConflict)
		}
	}
	assert.Equal(t, 1, won)
	assert.Equal(t, 1, f.store.Discount(oneUse).TimesRedeemed)

	// Losers reserved inventory before the redeem conflict; the rollback
	// must return it. Only the winner's state survives.
	assert.Equal(t, 1, f.store.TicketType(f.ga.ID).QuantitySold)
	assert.Equal(t, 1, f.store.OrderCount())
	assert.Equal(t, 1, f.store.TicketCount())
}

func TestCheckout_SalesWindowClosed(t *testing.T) {
	f := newFixture(t)

	closed := domain.TicketType{
		ID:            uuid.New(),
		EventID:       f.event.ID,
		Name:          "Early Bird",
		PriceMinor:    1500,
		Currency:      "USD",
		QuantityTotal: 50,
		SalesStart:    testNow.Add(-48 * time.Hour),
		SalesEnd:      testNow.Add(-24 * time.Hour),
		Status:        domain.TicketTypeActive,
	}
	f.store.SeedTicketType(closed)

	_, err := f.svc.Checkout(context.Background(), Input{
		EventID:    f.event.ID,
		Items:      []CartItem{{TicketTypeID: closed.ID, Quantity: 1}},
		BuyerEmail: "buyer@example.com",
		BuyerName:  "Grace Hopper",
	}, "")

	assert.ErrorIs(t, err, ErrNotOnSale)
	assert.Equal(t, 0, f.store.OrderCount())
	assert.Equal(t, 0, f.store.TicketType(closed.ID).QuantitySold)
}

func TestCheckout_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("empty cart", func(t *testing.T) {
		_, err := f.svc.Checkout(ctx, Input{
			EventID:    f.event.ID,
			BuyerEmail: "b@example.com",
			BuyerName:  "B",
		}, "")
		assert.ErrorIs(t, err, ErrEmptyCart)
	})

	t.Run("zero quantity", func(t *testing.T) {
		_, err := f.svc.Checkout(ctx, Input{
			EventID:    f.event.ID,
			Items:      []CartItem{{TicketTypeID: f.ga.ID, Quantity: 0}},
			BuyerEmail: "b@example.com",
			BuyerName:  "B",
		}, "")
		assert.ErrorIs(t, err, ErrBadQuantity)
	})

	t.Run("duplicate line", func(t *testing.T) {
		_, err := f.svc.Checkout(ctx, Input{
			EventID: f.event.ID,
			Items: []CartItem{
				{TicketTypeID: f.ga.ID, Quantity: 1},
				{TicketTypeID: f.ga.ID, Quantity: 2},
			},
			BuyerEmail: "b@example.com",
			BuyerName:  "B",
		}, "")
		assert.ErrorIs(t, err, ErrDuplicateCartLine)
	})

	t.Run("missing buyer", func(t *testing.T) {
		_, err := f.svc.Checkout(ctx, Input{
			EventID: f.event.ID,
			Items:   []CartItem{{TicketTypeID: f.ga.ID, Quantity: 1}},
		}, "")
		assert.ErrorIs(t, err, ErrMissingBuyer)
	})

	t.Run("unknown ticket type", func(t *testing.T) {
		_, err := f.svc.Checkout(ctx, Input{
			EventID:    f.event.ID,
			Items:      []CartItem{{TicketTypeID: uuid.New(), Quantity: 1}},
			BuyerEmail: "b@example.com",
			BuyerName:  "B",
		}, "")
		assert.ErrorIs(t, err, ErrUnknownTicketType)
	})

	t.Run("unknown event", func(t *testing.T) {
		_, err := f.svc.Checkout(ctx, Input{
			EventID:    uuid.New(),
			Items:      []CartItem{{TicketTypeID: f.ga.ID, Quantity: 1}},
			BuyerEmail: "b@example.com",
			BuyerName:  "B",
		}, "")
		assert.ErrorIs(t, err, ErrEventNotFound)
	})
}

func TestResolveCart_PricesAndSubtotals(t *testing.T) {
	f := newFixture(t)

	cart, err := f.svc.ResolveCart(context.Background(), f.event.ID, []CartItem{
		{TicketTypeID: f.ga.ID, Quantity: 3},
	})
	require.NoError(t, err)

	require.Len(t, cart.Lines, 1)
	assert.Equal(t, int64(2500), cart.Lines[0].UnitPriceMinor)
	assert.Equal(t, int64(7500), cart.Lines[0].SubtotalMinor)
	assert.Equal(t, int64(7500), cart.SubtotalMinor)
	assert.Equal(t, int64(7500), cart.TotalMinor)
}

func TestResolveCart_AdvisoryAvailability(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.ResolveCart(context.Background(), f.event.ID, []CartItem{
		{TicketTypeID: f.vip.ID, Quantity: 11},
	})

	assert.ErrorIs(t, err, ErrInsufficientInventory)
}
