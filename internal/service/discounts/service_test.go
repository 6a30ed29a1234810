package discounts

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mkravets/tickethub/internal/domain"
	"github.com/mkravets/tickethub/internal/repository/repotest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var validateNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newFixture(t *testing.T) (*Service, *repotest.FakeStore, domain.Event) {
	t.Helper()

	store := repotest.NewFakeStore()

	event := domain.Event{
		ID:        uuid.New(),
		TenantID:  uuid.New(),
		Name:      "Synth Night",
		Status:    domain.EventActive,
		Published: true,
	}
	store.SeedEvent(event)

	svc := New(store)
	svc.now = func() time.Time { return validateNow }

	return svc, store, event
}

func TestValidate_Valid(t *testing.T) {
	svc, store, event := newFixture(t)

	store.SeedDiscount(domain.DiscountCode{
		ID:             uuid.New(),
		EventID:        event.ID,
		Code:           "EARLY10",
		Status:         domain.DiscountActive,
		Type:           domain.DiscountPercentage,
		Value:          10,
		StartsAt:       validateNow.Add(-time.Hour),
		ExpiresAt:      validateNow.Add(time.Hour),
		MaxRedemptions: 100,
	})

	res, err := svc.Validate(context.Background(), event.ID, "early10")
	require.NoError(t, err)

	assert.True(t, res.Valid)
	assert.Equal(t, "EARLY10", res.Code)
	assert.Equal(t, domain.DiscountPercentage, res.Type)
	assert.Equal(t, int64(10), res.Value)
}

func TestValidate_UnknownCode(t *testing.T) {
	svc, _, event := newFixture(t)

	res, err := svc.Validate(context.Background(), event.ID, "NOPE")
	require.NoError(t, err)

	assert.False(t, res.Valid)
	assert.NotEmpty(t, res.Message)
}

func TestValidate_IneligibleReasons(t *testing.T) {
	svc, store, event := newFixture(t)

	base := domain.DiscountCode{
		EventID:        event.ID,
		Status:         domain.DiscountActive,
		Type:           domain.DiscountFixed,
		Value:          500,
		StartsAt:       validateNow.Add(-time.Hour),
		ExpiresAt:      validateNow.Add(time.Hour),
		MaxRedemptions: 10,
	}

	expired := base
	expired.ID = uuid.New()
	expired.Code = "EXPIRED"
	expired.ExpiresAt = validateNow.Add(-time.Minute)
	store.SeedDiscount(expired)

	exhausted := base
	exhausted.ID = uuid.New()
	exhausted.Code = "EXHAUSTED"
	exhausted.TimesRedeemed = 10
	store.SeedDiscount(exhausted)

	disabled := base
	disabled.ID = uuid.New()
	disabled.Code = "DISABLED"
	disabled.Status = domain.DiscountDisabled
	store.SeedDiscount(disabled)

	for _, code := range []string{"EXPIRED", "EXHAUSTED", "DISABLED"} {
		res, err := svc.Validate(context.Background(), event.ID, code)
		require.NoError(t, err, code)
		assert.False(t, res.Valid, code)
		assert.NotEmpty(t, res.Message, code)
	}
}

func TestValidate_EmptyCode(t *testing.T) {
	svc, _, event := newFixture(t)

	_, err := svc.Validate(context.Background(), event.ID, "   ")

	assert.ErrorIs(t, err, ErrEmptyCode)
}

func TestValidate_UnknownEvent(t *testing.T) {
	svc, _, _ := newFixture(t)

	_, err := svc.Validate(context.Background(), uuid.New(), "EARLY10")

	assert.ErrorIs(t, err, ErrEventNotFound)
}
