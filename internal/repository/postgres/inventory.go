package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mkravets/tickethub/internal/repository"
)

type InventoryRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *InventoryRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// Reserve decrements remaining capacity by adding qty to quantity_sold.
// The WHERE clause carries the no-oversell invariant: the row only updates
// while quantity_sold + qty still fits under quantity_total, so two
// concurrent reservations can never both take the last units.
//
// Returns:
//   - error: repository.ErrInsufficientInventory if capacity is exhausted.
func (r *InventoryRepo) Reserve(ctx context.Context, ticketTypeID uuid.UUID, qty int) error {
	const op = "postgres.InventoryRepo.Reserve"

	if qty <= 0 {
		return fmt.Errorf("%s: quantity must be positive", op)
	}

	db := r.handle()

	tag, err := db.Exec(ctx,
		`UPDATE ticket_types
        	SET quantity_sold = quantity_sold + $2
      	 WHERE id = $1
        	AND status = 'active'
        	AND quantity_sold + $2 <= quantity_total`,
		ticketTypeID, qty,
	)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrInsufficientInventory)
	}

	return nil
}
