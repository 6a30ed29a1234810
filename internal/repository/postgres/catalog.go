package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mkravets/tickethub/internal/domain"
)

type CatalogRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *CatalogRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

const eventColumns = `id, tenant_id, name, slug, venue, city, status, is_published, start_at, end_at`

func scanEvent(row interface{ Scan(dest ...any) error }, e *domain.Event) error {
	return row.Scan(
		&e.ID, &e.TenantID, &e.Name, &e.Slug, &e.Venue, &e.City,
		&e.Status, &e.Published, &e.StartAt, &e.EndAt,
	)
}

// GetPublishedEvent retrieves an event visible on the public storefront.
//
// Returns repository.ErrNotFound when the event does not exist, is inactive
// or is unpublished.
func (r *CatalogRepo) GetPublishedEvent(ctx context.Context, id uuid.UUID) (*domain.Event, error) {
	const op = "postgres.CatalogRepo.GetPublishedEvent"

	db := r.handle()

	var e domain.Event
	err := scanEvent(db.QueryRow(ctx,
		`SELECT `+eventColumns+`
       	 FROM events
      	 WHERE id = $1 AND status = 'active' AND is_published = TRUE`,
		id,
	), &e)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return &e, nil
}

// GetTenantEvent retrieves an event scoped to a tenant, any status.
func (r *CatalogRepo) GetTenantEvent(ctx context.Context, tenantID, eventID uuid.UUID) (*domain.Event, error) {
	const op = "postgres.CatalogRepo.GetTenantEvent"

	db := r.handle()

	var e domain.Event
	err := scanEvent(db.QueryRow(ctx,
		`SELECT `+eventColumns+`
       	 FROM events
      	 WHERE id = $1 AND tenant_id = $2`,
		eventID, tenantID,
	), &e)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return &e, nil
}

func (r *CatalogRepo) ListPublishedEvents(ctx context.Context, limit, offset int) ([]domain.Event, error) {
	const op = "postgres.CatalogRepo.ListPublishedEvents"

	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT `+eventColumns+`
       	 FROM events
      	 WHERE status = 'active' AND is_published = TRUE
      	 ORDER BY start_at
      	 LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	defer rows.Close()

	var out []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := scanEvent(rows, &e); err != nil {
			return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
		}

		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

const ticketTypeColumns = `id, event_id, name, description, price_minor, currency,
	quantity_total, quantity_sold, sales_start, sales_end, status`

func scanTicketType(row interface{ Scan(dest ...any) error }, t *domain.TicketType) error {
	return row.Scan(
		&t.ID, &t.EventID, &t.Name, &t.Description, &t.PriceMinor, &t.Currency,
		&t.QuantityTotal, &t.QuantitySold, &t.SalesStart, &t.SalesEnd, &t.Status,
	)
}

// TicketTypesByIDs returns the requested types that belong to the event.
// Callers compare the result length against len(ids) to detect foreign or
// unknown ticket types.
func (r *CatalogRepo) TicketTypesByIDs(
	ctx context.Context,
	eventID uuid.UUID,
	ids []uuid.UUID,
) ([]domain.TicketType, error) {
	const op = "postgres.CatalogRepo.TicketTypesByIDs"

	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT `+ticketTypeColumns+`
       	 FROM ticket_types
      	 WHERE event_id = $1 AND id = ANY($2)
      	 ORDER BY id`,
		eventID, ids,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	defer rows.Close()

	var out []domain.TicketType
	for rows.Next() {
		var t domain.TicketType
		if err := scanTicketType(rows, &t); err != nil {
			return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
		}

		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

func (r *CatalogRepo) TicketTypesByEvent(ctx context.Context, eventID uuid.UUID) ([]domain.TicketType, error) {
	const op = "postgres.CatalogRepo.TicketTypesByEvent"

	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT `+ticketTypeColumns+`
       	 FROM ticket_types
      	 WHERE event_id = $1
      	 ORDER BY price_minor`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	defer rows.Close()

	var out []domain.TicketType
	for rows.Next() {
		var t domain.TicketType
		if err := scanTicketType(rows, &t); err != nil {
			return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
		}

		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}
