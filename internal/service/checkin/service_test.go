package checkin

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

var scanTime = time.Date(2025, 6, 2, 19, 30, 0, 0, time.UTC)

type fixture struct {
	store  *repotest.FakeStore
	svc    *Service
	signer *ticketsig.Signer
	staff  StaffContext
	ticket domain.Ticket
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := repotest.NewFakeStore()
	signer, err := ticketsig.NewSigner("test-secret")
	require.NoError(t, err)

	tenantID := uuid.New()
	eventID := uuid.New()
	orderID := uuid.New()
	ticketID := uuid.New()

	payload, sig := signer.Issue(ticketID, orderID, eventID, "Grace Hopper", scanTime.Add(-time.Hour))

	ticket := domain.Ticket{
		ID:            ticketID,
		OrderID:       orderID,
		TicketTypeID:  uuid.New(),
		AttendeeName:  "Grace Hopper",
		AttendeeEmail: "grace@example.com",
		QRPayload:     payload,
		QRSignature:   sig,
		Status:        domain.TicketValid,
		CreatedAt:     scanTime.Add(-time.Hour),
	}

	store.SeedOrder(domain.Order{
		ID:         orderID,
		TenantID:   tenantID,
		EventID:    eventID,
		BuyerEmail: "grace@example.com",
		BuyerName:  "Grace Hopper",
		Status:     domain.OrderPending,
		CreatedAt:  scanTime.Add(-time.Hour),
	}, nil, []domain.Ticket{ticket})

	svc := New(store, signer)
	svc.now = func() time.Time { return scanTime }

	return &fixture{
		store:  store,
		svc:    svc,
		signer: signer,
		staff:  StaffContext{TenantID: tenantID, StaffID: uuid.New()},
		ticket: ticket,
	}
}

func TestCheckIn_Success(t *testing.T) {
	f := newFixture(t)

	out, err := f.svc.CheckIn(context.Background(), f.staff, ScanInput{
		QRPayload: f.ticket.QRPayload,
		Signature: f.ticket.QRSignature,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.TicketScanned, out.Status)
	require.NotNil(t, out.CheckedInAt)
	assert.Equal(t, scanTime, *out.CheckedInAt)

	stored := f.store.Ticket(f.ticket.ID)
	assert.Equal(t, domain.TicketScanned, stored.Status)
	require.NotNil(t, stored.CheckedInAt)
	assert.Equal(t, scanTime, *stored.CheckedInAt)

	assert.Equal(t, []string{ActionCheckinSuccess}, f.store.AuditActions())
}

// Scanners only hold the payload; the signature never leaves the server.
func TestCheckIn_PayloadOnly(t *testing.T) {
	f := newFixture(t)

	out, err := f.svc.CheckIn(context.Background(), f.staff, ScanInput{
		QRPayload: f.ticket.QRPayload,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.TicketScanned, out.Status)
	require.NotNil(t, out.CheckedInAt)
	assert.Equal(t, scanTime, *out.CheckedInAt)
	assert.Equal(t, []string{ActionCheckinSuccess}, f.store.AuditActions())
}

func TestCheckIn_PayloadOnly_StoredSignatureMismatch(t *testing.T) {
	f := newFixture(t)

	corrupted := f.store.Ticket(f.ticket.ID)
	corrupted.QRSignature = "deadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef"
	f.store.SeedOrder(domain.Order{
		ID:       f.ticket.OrderID,
		TenantID: f.staff.TenantID,
	}, nil, []domain.Ticket{corrupted})

	_, err := f.svc.CheckIn(context.Background(), f.staff, ScanInput{
		QRPayload: f.ticket.QRPayload,
	})

	assert.ErrorIs(t, err, ErrInvalidCredential)
	assert.Equal(t, domain.TicketValid, f.store.Ticket(f.ticket.ID).Status)
	assert.Equal(t, []string{ActionInvalidQR}, f.store.AuditActions())
}

func TestCheckIn_ByTicketID(t *testing.T) {
	f := newFixture(t)

	out, err := f.svc.CheckIn(context.Background(), f.staff, ScanInput{
		TicketID: f.ticket.ID,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.TicketScanned, out.Status)
}

func TestCheckIn_TamperedSignature(t *testing.T) {
	f := newFixture(t)

	bad := []byte(f.ticket.QRSignature)
	if bad[0] == 'a' {
		bad[0] = 'b'
	} else {
		bad[0] = 'a'
	}

	_, err := f.svc.CheckIn(context.Background(), f.staff, ScanInput{
		QRPayload: f.ticket.QRPayload,
		Signature: string(bad),
	})

	assert.ErrorIs(t, err, ErrInvalidCredential)
	assert.Equal(t, domain.TicketValid, f.store.Ticket(f.ticket.ID).Status)
	assert.Equal(t, []string{ActionInvalidQR}, f.store.AuditActions())
}

func TestCheckIn_UnknownPayload(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CheckIn(context.Background(), f.staff, ScanInput{
		QRPayload: `{"ticketId":"nope"}`,
		Signature: "deadbeef",
	})

	assert.ErrorIs(t, err, ErrTicketNotFound)
	assert.Equal(t, []string{ActionInvalidQR}, f.store.AuditActions())
}

func TestCheckIn_WrongTenant(t *testing.T) {
	f := newFixture(t)

	other := StaffContext{TenantID: uuid.New(), StaffID: uuid.New()}

	_, err := f.svc.CheckIn(context.Background(), other, ScanInput{
		QRPayload: f.ticket.QRPayload,
		Signature: f.ticket.QRSignature,
	})

	assert.ErrorIs(t, err, ErrWrongTenant)
	assert.Equal(t, domain.TicketValid, f.store.Ticket(f.ticket.ID).Status)
	assert.Equal(t, []string{ActionUnauthorizedAttempt}, f.store.AuditActions())
}

func TestCheckIn_DuplicateScan(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CheckIn(context.Background(), f.staff, ScanInput{
		QRPayload: f.ticket.QRPayload,
		Signature: f.ticket.QRSignature,
	})
	require.NoError(t, err)

	firstScan := f.store.Ticket(f.ticket.ID).CheckedInAt
	require.NotNil(t, firstScan)

	f.svc.now = func() time.Time { return scanTime.Add(10 * time.Minute) }

	_, err = f.svc.CheckIn(context.Background(), f.staff, ScanInput{
		QRPayload: f.ticket.QRPayload,
		Signature: f.ticket.QRSignature,
	})

	assert.ErrorIs(t, err, ErrDuplicateScan)
	// original check-in time is preserved
	assert.Equal(t, *firstScan, *f.store.Ticket(f.ticket.ID).CheckedInAt)
	assert.Equal(t,
		[]string{ActionCheckinSuccess, ActionDuplicateScan},
		f.store.AuditActions(),
	)
}

func TestCheckIn_ConcurrentScansAdmitOnce(t *testing.T) {
	f := newFixture(t)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.CheckIn(context.Background(), f.staff, ScanInput{
				QRPayload: f.ticket.QRPayload,
				Signature: f.ticket.QRSignature,
			})
		}(i)
	}
	wg.Wait()

	var admitted, rejected int
	for _, err := range errs {
		if err == nil {
			admitted++
		} else {
			assert.ErrorIs(t, err, ErrDuplicateScan)
			rejected++
		}
	}
	assert.Equal(t, 1, admitted)
	assert.Equal(t, 1, rejected)
}

func TestCheckIn_CancelledTicket(t *testing.T) {
	f := newFixture(t)

	cancelled := f.store.Ticket(f.ticket.ID)
	cancelled.Status = domain.TicketCancelled
	f.store.SeedOrder(domain.Order{
		ID:       f.ticket.OrderID,
		TenantID: f.staff.TenantID,
	}, nil, []domain.Ticket{cancelled})

	_, err := f.svc.CheckIn(context.Background(), f.staff, ScanInput{
		QRPayload: f.ticket.QRPayload,
		Signature: f.ticket.QRSignature,
	})

	assert.ErrorIs(t, err, ErrNotCheckable)
}

func TestCheckIn_MissingInput(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CheckIn(context.Background(), f.staff, ScanInput{})

	assert.ErrorIs(t, err, ErrMissingInput)
}
