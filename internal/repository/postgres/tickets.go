package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mkravets/tickethub/internal/domain"
	"github.com/mkravets/tickethub/internal/repository"
)

type TicketRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *TicketRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

const checkinTicketQuery = `
	SELECT t.id, t.order_id, t.ticket_type_id, t.attendee_name, t.attendee_email,
	       t.qr_payload, t.qr_signature, t.status, t.checked_in_at,
	       COALESCE(t.seat_label, ''), t.created_at,
	       o.tenant_id, o.event_id
	  FROM tickets t
	  JOIN orders o ON o.id = t.order_id`

func scanCheckinTicket(row pgx.Row, t *domain.CheckinTicket) error {
	return row.Scan(
		&t.ID, &t.OrderID, &t.TicketTypeID, &t.AttendeeName, &t.AttendeeEmail,
		&t.QRPayload, &t.QRSignature, &t.Status, &t.CheckedInAt,
		&t.SeatLabel, &t.CreatedAt,
		&t.TenantID, &t.EventID,
	)
}

func (r *TicketRepo) FindByPayload(ctx context.Context, payload string) (*domain.CheckinTicket, error) {
	const op = "postgres.TicketRepo.FindByPayload"

	db := r.handle()

	var t domain.CheckinTicket
	err := scanCheckinTicket(
		db.QueryRow(ctx, checkinTicketQuery+` WHERE t.qr_payload = $1`, payload), &t)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return &t, nil
}

func (r *TicketRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.CheckinTicket, error) {
	const op = "postgres.TicketRepo.FindByID"

	db := r.handle()

	var t domain.CheckinTicket
	err := scanCheckinTicket(
		db.QueryRow(ctx, checkinTicketQuery+` WHERE t.id = $1`, id), &t)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return &t, nil
}

// CheckIn transitions valid -> scanned exactly once. The idempotency check
// lives in the WHERE clause, so two concurrent scans race on the same row
// and only one sees an affected row.
//
// Returns:
//   - error: repository.ErrAlreadyCheckedIn if checked_in_at was already set
//     or the ticket is no longer in the valid state.
func (r *TicketRepo) CheckIn(ctx context.Context, ticketID uuid.UUID, at time.Time) error {
	const op = "postgres.TicketRepo.CheckIn"

	db := r.handle()

	tag, err := db.Exec(ctx,
		`UPDATE tickets
        	SET checked_in_at = $2, status = 'scanned'
      	 WHERE id = $1
        	AND checked_in_at IS NULL
        	AND status = 'valid'`,
		ticketID, at,
	)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrAlreadyCheckedIn)
	}

	return nil
}

func (r *TicketRepo) ListByTenant(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]domain.Ticket, int64, error) {
	const op = "postgres.TicketRepo.ListByTenant"

	db := r.handle()

	var total int64
	err := db.QueryRow(ctx,
		`SELECT COUNT(*)
       	 FROM tickets t
       	 JOIN orders o ON o.id = t.order_id
      	 WHERE o.tenant_id = $1`,
		tenantID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	tickets, err := r.queryTickets(ctx,
		checkinTicketQuery+`
      	 WHERE o.tenant_id = $1
      	 ORDER BY t.created_at DESC
      	 LIMIT $2 OFFSET $3`,
		tenantID, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("%s:%w", op, err)
	}

	return tickets, total, nil
}

func (r *TicketRepo) Attendance(ctx context.Context, tenantID uuid.UUID, eventID *uuid.UUID) ([]domain.Ticket, error) {
	const op = "postgres.TicketRepo.Attendance"

	var (
		tickets []domain.Ticket
		err     error
	)

	if eventID != nil {
		tickets, err = r.queryTickets(ctx,
			checkinTicketQuery+`
          	 WHERE o.tenant_id = $1
            	AND o.event_id = $2
            	AND t.checked_in_at IS NOT NULL
          	 ORDER BY t.checked_in_at DESC`,
			tenantID, *eventID,
		)
	} else {
		tickets, err = r.queryTickets(ctx,
			checkinTicketQuery+`
          	 WHERE o.tenant_id = $1
            	AND t.checked_in_at IS NOT NULL
          	 ORDER BY t.checked_in_at DESC`,
			tenantID,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return tickets, nil
}

func (r *TicketRepo) SearchByAttendee(ctx context.Context, tenantID uuid.UUID, term string) ([]domain.Ticket, error) {
	const op = "postgres.TicketRepo.SearchByAttendee"

	tickets, err := r.queryTickets(ctx,
		checkinTicketQuery+`
      	 WHERE o.tenant_id = $1
        	AND (t.attendee_name ILIKE $2 OR t.attendee_email ILIKE $2)
      	 ORDER BY t.created_at DESC`,
		tenantID, "%"+term+"%",
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return tickets, nil
}

func (r *TicketRepo) queryTickets(ctx context.Context, sql string, args ...any) ([]domain.Ticket, error) {
	db := r.handle()

	rows, err := db.Query(ctx, sql, args...)
	if err != nil {
		return nil, translateDBErr(err)
	}

	defer rows.Close()

	var out []domain.Ticket
	for rows.Next() {
		var t domain.CheckinTicket
		if err := scanCheckinTicket(rows, &t); err != nil {
			return nil, translateDBErr(err)
		}

		out = append(out, t.Ticket)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return out, nil
}
