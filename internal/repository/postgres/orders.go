package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mkravets/tickethub/internal/domain"
)

type OrderRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *OrderRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

func (r *OrderRepo) InsertOrder(ctx context.Context, o *domain.Order) error {
	const op = "postgres.OrderRepo.InsertOrder"

	db := r.handle()

	err := db.QueryRow(ctx,
		`INSERT INTO orders(id, tenant_id, event_id, buyer_email, buyer_name,
        	total_minor, currency, status, payment_ref)
       	 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''))
     	 RETURNING created_at`,
		o.ID, o.TenantID, o.EventID, strings.ToLower(o.BuyerEmail), o.BuyerName,
		o.TotalMinor, o.Currency, o.Status, o.PaymentRef,
	).Scan(&o.CreatedAt)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return nil
}

func (r *OrderRepo) InsertItems(ctx context.Context, items []domain.OrderItem) error {
	const op = "postgres.OrderRepo.InsertItems"

	db := r.handle()

	batch := &pgx.Batch{}
	for _, it := range items {
		batch.Queue(
			`INSERT INTO order_items(id, order_id, ticket_type_id,
            	unit_price_minor, quantity, subtotal_minor)
         	 VALUES ($1, $2, $3, $4, $5, $6)`,
			it.ID, it.OrderID, it.TicketTypeID,
			it.UnitPriceMinor, it.Quantity, it.SubtotalMinor,
		)
	}
	if err := db.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return nil
}

func (r *OrderRepo) InsertTickets(ctx context.Context, tickets []domain.Ticket) error {
	const op = "postgres.OrderRepo.InsertTickets"

	db := r.handle()

	batch := &pgx.Batch{}
	for _, t := range tickets {
		batch.Queue(
			`INSERT INTO tickets(id, order_id, ticket_type_id, attendee_name,
            	attendee_email, qr_payload, qr_signature, status, seat_label)
         	 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''))`,
			t.ID, t.OrderID, t.TicketTypeID, t.AttendeeName,
			strings.ToLower(t.AttendeeEmail), t.QRPayload, t.QRSignature,
			t.Status, t.SeatLabel,
		)
	}
	if err := db.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return nil
}

// SetTicketCredential stores the signed QR credential. Issuance needs the
// generated ticket id, so this runs after the insert, in the same transaction.
func (r *OrderRepo) SetTicketCredential(ctx context.Context, ticketID uuid.UUID, payload, signature string) error {
	const op = "postgres.OrderRepo.SetTicketCredential"

	db := r.handle()

	tag, err := db.Exec(ctx,
		`UPDATE tickets SET qr_payload = $2, qr_signature = $3 WHERE id = $1`,
		ticketID, payload, signature,
	)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: ticket %s missing", op, ticketID)
	}

	return nil
}

const orderColumns = `id, tenant_id, event_id, buyer_email, buyer_name,
	total_minor, currency, status, COALESCE(payment_ref, ''), created_at`

func scanOrder(row interface{ Scan(dest ...any) error }, o *domain.Order) error {
	return row.Scan(
		&o.ID, &o.TenantID, &o.EventID, &o.BuyerEmail, &o.BuyerName,
		&o.TotalMinor, &o.Currency, &o.Status, &o.PaymentRef, &o.CreatedAt,
	)
}

func (r *OrderRepo) OrderDetail(ctx context.Context, orderID uuid.UUID) (*domain.OrderDetail, error) {
	const op = "postgres.OrderRepo.OrderDetail"

	detail, err := r.detailWhere(ctx, `id = $1`, orderID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return detail, nil
}

func (r *OrderRepo) OrderForBuyer(ctx context.Context, orderID uuid.UUID, email string) (*domain.OrderDetail, error) {
	const op = "postgres.OrderRepo.OrderForBuyer"

	detail, err := r.detailWhere(ctx, `id = $1 AND buyer_email = $2`,
		orderID, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return detail, nil
}

func (r *OrderRepo) OrderForTenant(ctx context.Context, tenantID, orderID uuid.UUID) (*domain.OrderDetail, error) {
	const op = "postgres.OrderRepo.OrderForTenant"

	detail, err := r.detailWhere(ctx, `id = $1 AND tenant_id = $2`, orderID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return detail, nil
}

func (r *OrderRepo) detailWhere(ctx context.Context, where string, args ...any) (*domain.OrderDetail, error) {
	db := r.handle()

	var out domain.OrderDetail
	err := scanOrder(db.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE `+where, args...,
	), &out.Order)
	if err != nil {
		return nil, translateDBErr(err)
	}

	items, err := r.itemsForOrder(ctx, out.Order.ID)
	if err != nil {
		return nil, err
	}
	out.Items = items

	tickets, err := r.ticketsForOrder(ctx, out.Order.ID)
	if err != nil {
		return nil, err
	}
	out.Tickets = tickets

	return &out, nil
}

func (r *OrderRepo) itemsForOrder(ctx context.Context, orderID uuid.UUID) ([]domain.OrderItem, error) {
	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT id, order_id, ticket_type_id, unit_price_minor, quantity, subtotal_minor
       	 FROM order_items
      	 WHERE order_id = $1
      	 ORDER BY ticket_type_id`,
		orderID,
	)
	if err != nil {
		return nil, translateDBErr(err)
	}

	defer rows.Close()

	var out []domain.OrderItem
	for rows.Next() {
		var it domain.OrderItem
		if err := rows.Scan(
			&it.ID, &it.OrderID, &it.TicketTypeID,
			&it.UnitPriceMinor, &it.Quantity, &it.SubtotalMinor,
		); err != nil {
			return nil, translateDBErr(err)
		}

		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return out, nil
}

func (r *OrderRepo) ticketsForOrder(ctx context.Context, orderID uuid.UUID) ([]domain.Ticket, error) {
	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT id, order_id, ticket_type_id, attendee_name, attendee_email,
        	qr_payload, qr_signature, status, checked_in_at,
        	COALESCE(seat_label, ''), created_at
       	 FROM tickets
      	 WHERE order_id = $1
      	 ORDER BY created_at, id`,
		orderID,
	)
	if err != nil {
		return nil, translateDBErr(err)
	}

	defer rows.Close()

	var out []domain.Ticket
	for rows.Next() {
		var t domain.Ticket
		if err := rows.Scan(
			&t.ID, &t.OrderID, &t.TicketTypeID, &t.AttendeeName, &t.AttendeeEmail,
			&t.QRPayload, &t.QRSignature, &t.Status, &t.CheckedInAt,
			&t.SeatLabel, &t.CreatedAt,
		); err != nil {
			return nil, translateDBErr(err)
		}

		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return out, nil
}

func (r *OrderRepo) OrdersByEmail(ctx context.Context, email string) ([]domain.OrderDetail, error) {
	const op = "postgres.OrderRepo.OrdersByEmail"

	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT `+orderColumns+`
       	 FROM orders
      	 WHERE buyer_email = $1
      	 ORDER BY created_at DESC`,
		strings.ToLower(strings.TrimSpace(email)),
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	var orders []domain.Order
	for rows.Next() {
		var o domain.Order
		if err := scanOrder(rows, &o); err != nil {
			rows.Close()
			return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
		}

		orders = append(orders, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	out := make([]domain.OrderDetail, 0, len(orders))
	for _, o := range orders {
		items, err := r.itemsForOrder(ctx, o.ID)
		if err != nil {
			return nil, fmt.Errorf("%s:%w", op, err)
		}

		tickets, err := r.ticketsForOrder(ctx, o.ID)
		if err != nil {
			return nil, fmt.Errorf("%s:%w", op, err)
		}

		out = append(out, domain.OrderDetail{Order: o, Items: items, Tickets: tickets})
	}

	return out, nil
}

func (r *OrderRepo) OrdersByTenantEmail(ctx context.Context, tenantID uuid.UUID, email string) ([]domain.Order, error) {
	const op = "postgres.OrderRepo.OrdersByTenantEmail"

	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT `+orderColumns+`
       	 FROM orders
      	 WHERE tenant_id = $1 AND buyer_email = $2
      	 ORDER BY created_at DESC`,
		tenantID, strings.ToLower(strings.TrimSpace(email)),
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	defer rows.Close()

	var out []domain.Order
	for rows.Next() {
		var o domain.Order
		if err := scanOrder(rows, &o); err != nil {
			return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
		}

		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}
