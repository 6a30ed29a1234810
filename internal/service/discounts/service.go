// Package discounts validates discount codes for the public storefront.
// Validation is advisory: the checkout transaction re-evaluates the same
// predicate atomically when the code is redeemed.
package discounts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mkravets/tickethub/internal/domain"
	"github.com/mkravets/tickethub/internal/repository"
)

type Service struct {
	store repository.Store
	now   func() time.Time
}

func New(store repository.Store) *Service {
	return &Service{store: store, now: time.Now}
}

// Result is what the storefront shows before the buyer commits.
type Result struct {
	Valid   bool                `json:"valid"`
	Code    string              `json:"code,omitempty"`
	Type    domain.DiscountType `json:"type,omitempty"`
	Value   int64               `json:"value,omitempty"`
	Message string              `json:"message,omitempty"`
}

// Validate checks a code against an event without consuming a redemption.
// An unknown code is a negative result, not an error; errors are reserved
// for missing input and infrastructure failures.
func (s *Service) Validate(ctx context.Context, eventID uuid.UUID, code string) (*Result, error) {
	const op = "service.discounts.Validate"

	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, fmt.Errorf("%s:%w", op, ErrEmptyCode)
	}

	if _, err := s.store.Catalog().GetPublishedEvent(ctx, eventID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrEventNotFound)
		}

		return nil, fmt.Errorf("%s:%w", op, err)
	}

	d, err := s.store.Discounts().Find(ctx, eventID, code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return &Result{Valid: false, Message: "discount code not found"}, nil
		}

		return nil, fmt.Errorf("%s:%w", op, err)
	}

	if ok, reason := d.EligibleAt(s.now()); !ok {
		return &Result{Valid: false, Message: reason}, nil
	}

	return &Result{
		Valid: true,
		Code:  d.Code,
		Type:  d.Type,
		Value: d.Value,
	}, nil
}
