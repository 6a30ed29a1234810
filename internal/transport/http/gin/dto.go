package httpgin

import (
	"time"

	"github.com/google/uuid"
	"github.com/mkravets/tickethub/internal/domain"
)

type CheckoutItem struct {
	TicketTypeID string `json:"ticket_type_id" binding:"required,uuid"`
	Quantity     int    `json:"quantity" binding:"required,gt=0"`
}

type CheckoutRequest struct {
	EventID      string         `json:"event_id" binding:"required,uuid"`
	Items        []CheckoutItem `json:"items" binding:"required,min=1,dive"`
	BuyerEmail   string         `json:"buyer_email" binding:"required,email"`
	BuyerName    string         `json:"buyer_name" binding:"required"`
	DiscountCode string         `json:"discount_code"`
}

type ValidateDiscountRequest struct {
	EventID string `json:"event_id" binding:"required,uuid"`
	Code    string `json:"code" binding:"required"`
}

type CheckinRequest struct {
	QRPayload string `json:"qr_payload"`
	Signature string `json:"signature"`
	TicketID  string `json:"ticket_id"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// TicketView is a ticket as shown in staff listings. The QR credential stays
// out of list responses; only the buyer's own order carries it.
type TicketView struct {
	ID            uuid.UUID           `json:"id"`
	OrderID       uuid.UUID           `json:"order_id"`
	TicketTypeID  uuid.UUID           `json:"ticket_type_id"`
	AttendeeName  string              `json:"attendee_name"`
	AttendeeEmail string              `json:"attendee_email"`
	Status        domain.TicketStatus `json:"status"`
	CheckedInAt   *time.Time          `json:"checked_in_at,omitempty"`
	SeatLabel     string              `json:"seat_label,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
}

func toTicketView(t domain.Ticket) TicketView {
	return TicketView{
		ID:            t.ID,
		OrderID:       t.OrderID,
		TicketTypeID:  t.TicketTypeID,
		AttendeeName:  t.AttendeeName,
		AttendeeEmail: t.AttendeeEmail,
		Status:        t.Status,
		CheckedInAt:   t.CheckedInAt,
		SeatLabel:     t.SeatLabel,
		CreatedAt:     t.CreatedAt,
	}
}

func toTicketViews(tickets []domain.Ticket) []TicketView {
	out := make([]TicketView, 0, len(tickets))
	for _, t := range tickets {
		out = append(out, toTicketView(t))
	}
	return out
}

type TicketPageResponse struct {
	Tickets []TicketView `json:"tickets"`
	Total   int64        `json:"total"`
	Limit   int          `json:"limit"`
	Offset  int          `json:"offset"`
}

type CheckinResponse struct {
	Message string     `json:"message"`
	Ticket  TicketView `json:"ticket"`
}

func parseUUIDParam(s string) (uuid.UUID, bool) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
