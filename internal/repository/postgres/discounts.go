package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mkravets/tickethub/internal/domain"
	"github.com/mkravets/tickethub/internal/repository"
)

type DiscountRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *DiscountRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// Find looks up a code scoped to an event. Codes are stored upper-cased;
// the input is normalized the same way.
func (r *DiscountRepo) Find(ctx context.Context, eventID uuid.UUID, code string) (*domain.DiscountCode, error) {
	const op = "postgres.DiscountRepo.Find"

	db := r.handle()

	var d domain.DiscountCode
	err := db.QueryRow(ctx,
		`SELECT id, event_id, code, discount_type, discount_value,
        	starts_at, expires_at, max_redemptions, times_redeemed, status
       	 FROM discount_codes
      	 WHERE event_id = $1 AND code = $2`,
		eventID, strings.ToUpper(code),
	).Scan(
		&d.ID, &d.EventID, &d.Code, &d.Type, &d.Value,
		&d.StartsAt, &d.ExpiresAt, &d.MaxRedemptions, &d.TimesRedeemed, &d.Status,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return &d, nil
}

// Redeem is a compare-and-increment: the validity predicate sits in the same
// UPDATE as the counter bump, so the redemption cap holds under concurrent
// checkouts.
//
// Returns:
//   - error: repository.ErrDiscountNotEligible if the predicate no longer holds.
func (r *DiscountRepo) Redeem(ctx context.Context, eventID uuid.UUID, code string, now time.Time) error {
	const op = "postgres.DiscountRepo.Redeem"

	db := r.handle()

	tag, err := db.Exec(ctx,
		`UPDATE discount_codes
        	SET times_redeemed = times_redeemed + 1
      	 WHERE event_id = $1
        	AND code = $2
        	AND status = 'active'
        	AND starts_at <= $3
        	AND expires_at >= $3
        	AND times_redeemed < max_redemptions`,
		eventID, strings.ToUpper(code), now,
	)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrDiscountNotEligible)
	}

	return nil
}
