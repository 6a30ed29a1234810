package checkin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mkravets/tickethub/internal/domain"
	"github.com/mkravets/tickethub/internal/metrics"
	"github.com/mkravets/tickethub/internal/repository"
	"github.com/mkravets/tickethub/internal/ticketsig"
	"github.com/mkravets/tickethub/internal/uow"
)

// Audit actions recorded for every scan attempt. The audit trail is a
// product requirement, not debug logging.
const (
	ActionInvalidQR           = "INVALID_QR"
	ActionUnauthorizedAttempt = "UNAUTHORIZED_CHECKIN_ATTEMPT"
	ActionDuplicateScan       = "DUPLICATE_SCAN"
	ActionCheckinSuccess      = "CHECKIN_SUCCESS"
)

// Service transitions tickets from valid to scanned exactly once.
type Service struct {
	store  repository.Store
	uow    *uow.UoW
	signer *ticketsig.Signer
	now    func() time.Time
}

func New(store repository.Store, signer *ticketsig.Signer) *Service {
	return &Service{
		store:  store,
		uow:    uow.NewUoW(store),
		signer: signer,
		now:    time.Now,
	}
}

// StaffContext identifies the authenticated staff actor. It is established
// by the upstream auth collaborator and trusted here.
type StaffContext struct {
	TenantID uuid.UUID
	StaffID  uuid.UUID
}

// ScanInput carries either a scanned QR payload or a raw ticket id.
// Signature is optional; when absent the stored MAC is used.
type ScanInput struct {
	QRPayload string
	Signature string
	TicketID  uuid.UUID
}

// CheckIn runs the scan state machine: signature verification, tenant
// ownership, then an atomic idempotent transition. Failed steps change no
// ticket state but are persisted to the audit trail.
//
// Returns:
//   - error: checkin.ErrInvalidCredential if the MAC does not verify.
//   - error: checkin.ErrTicketNotFound if no ticket matches.
//   - error: checkin.ErrWrongTenant if the ticket's order belongs elsewhere.
//   - error: checkin.ErrDuplicateScan if the ticket was already checked in.
func (s *Service) CheckIn(ctx context.Context, staff StaffContext, in ScanInput) (*domain.Ticket, error) {
	const op = "service.checkin.CheckIn"

	ticket, err := s.resolve(ctx, staff, in)
	if err != nil {
		return nil, err
	}

	// Verify the credential before any state change. Scanners only hold the
	// payload; the MAC stays server-side, so a presented payload verifies
	// against the stored signature. A tampered payload fails the same way,
	// it no longer matches the stored MAC. Raw id scans re-verify the stored
	// pair to catch corrupted rows.
	payload, sig := in.QRPayload, in.Signature
	if payload == "" {
		payload = ticket.QRPayload
	}
	if sig == "" {
		sig = ticket.QRSignature
	}
	if !s.signer.Verify(payload, sig) {
		s.audit(ctx, staff, ActionInvalidQR, map[string]any{
			"ticket_id": ticket.ID,
		})
		metrics.CheckinTotal.WithLabelValues(metrics.OutcomeInvalidQR).Inc()
		return nil, fmt.Errorf("%s:%w", op, ErrInvalidCredential)
	}

	if ticket.TenantID != staff.TenantID {
		s.audit(ctx, staff, ActionUnauthorizedAttempt, map[string]any{
			"ticket_id":        ticket.ID,
			"ticket_tenant_id": ticket.TenantID,
			"staff_tenant_id":  staff.TenantID,
		})
		metrics.CheckinTotal.WithLabelValues(metrics.OutcomeForbidden).Inc()
		return nil, fmt.Errorf("%s:%w", op, ErrWrongTenant)
	}

	switch ticket.Status {
	case domain.TicketValid, domain.TicketScanned, domain.TicketUsed:
	default:
		// cancelled/refunded tickets never admit.
		metrics.CheckinTotal.WithLabelValues(metrics.OutcomeRejected).Inc()
		return nil, fmt.Errorf("%s: status %s:%w", op, ticket.Status, ErrNotCheckable)
	}

	at := s.now()

	err = s.uow.Do(ctx, func(
		ctx context.Context,
		tx repository.Tx,
		after func(uow.AfterCommit),
	) error {
		// The WHERE clause re-checks checked_in_at inside the write, so two
		// concurrent scans cannot both succeed.
		if err := tx.Tickets().CheckIn(ctx, ticket.ID, at); err != nil {
			return err
		}

		entry := &domain.ActivityLog{
			TenantID: staff.TenantID,
			ActorID:  staff.StaffID,
			Action:   ActionCheckinSuccess,
			Metadata: mustJSON(map[string]any{
				"ticket_id":      ticket.ID,
				"attendee_name":  ticket.AttendeeName,
				"attendee_email": ticket.AttendeeEmail,
				"event_id":       ticket.EventID,
			}),
		}

		return tx.Audit().Append(ctx, entry)
	})
	if err != nil {
		if errors.Is(err, repository.ErrAlreadyCheckedIn) {
			s.audit(ctx, staff, ActionDuplicateScan, map[string]any{
				"ticket_id":     ticket.ID,
				"checked_in_at": ticket.CheckedInAt,
			})
			metrics.CheckinTotal.WithLabelValues(metrics.OutcomeDuplicate).Inc()
			return nil, fmt.Errorf("%s:%w", op, ErrDuplicateScan)
		}

		return nil, fmt.Errorf("%s:%w", op, err)
	}

	metrics.CheckinTotal.WithLabelValues(metrics.OutcomeSuccess).Inc()

	out := ticket.Ticket
	out.Status = domain.TicketScanned
	out.CheckedInAt = &at

	return &out, nil
}

func (s *Service) resolve(ctx context.Context, staff StaffContext, in ScanInput) (*domain.CheckinTicket, error) {
	const op = "service.checkin.resolve"

	var (
		ticket *domain.CheckinTicket
		err    error
	)

	switch {
	case in.QRPayload != "":
		ticket, err = s.store.Tickets().FindByPayload(ctx, in.QRPayload)
	case in.TicketID != uuid.Nil:
		ticket, err = s.store.Tickets().FindByID(ctx, in.TicketID)
	default:
		return nil, fmt.Errorf("%s:%w", op, ErrMissingInput)
	}

	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.audit(ctx, staff, ActionInvalidQR, map[string]any{
				"qr_payload": in.QRPayload,
				"ticket_id":  in.TicketID,
			})
			metrics.CheckinTotal.WithLabelValues(metrics.OutcomeInvalidQR).Inc()
			return nil, fmt.Errorf("%s:%w", op, ErrTicketNotFound)
		}

		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return ticket, nil
}

// audit records a rejected scan. Rejections happen outside any transaction
// (there is nothing to roll back), so the entry goes straight to the pool.
func (s *Service) audit(ctx context.Context, staff StaffContext, action string, meta map[string]any) {
	_ = s.store.Audit().Append(ctx, &domain.ActivityLog{
		TenantID: staff.TenantID,
		ActorID:  staff.StaffID,
		Action:   action,
		Metadata: mustJSON(meta),
	})
}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return b
}
