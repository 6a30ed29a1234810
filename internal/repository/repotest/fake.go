// Package repotest provides an in-memory repository.Store for service tests.
// Transactions are serialized on one mutex; a failed transaction restores the
// pre-transaction snapshot, so rollback semantics match the real store.
package repotest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mkravets/tickethub/internal/domain"
	"github.com/mkravets/tickethub/internal/repository"
)

type state struct {
	events      map[uuid.UUID]domain.Event
	ticketTypes map[uuid.UUID]domain.TicketType
	discounts   map[uuid.UUID]domain.DiscountCode
	orders      map[uuid.UUID]domain.Order
	items       map[uuid.UUID][]domain.OrderItem
	tickets     map[uuid.UUID]domain.Ticket
	audit       []domain.ActivityLog
	nextAuditID int64
}

func newState() *state {
	return &state{
		events:      make(map[uuid.UUID]domain.Event),
		ticketTypes: make(map[uuid.UUID]domain.TicketType),
		discounts:   make(map[uuid.UUID]domain.DiscountCode),
		orders:      make(map[uuid.UUID]domain.Order),
		items:       make(map[uuid.UUID][]domain.OrderItem),
		tickets:     make(map[uuid.UUID]domain.Ticket),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.events {
		c.events[k] = v
	}
	for k, v := range s.ticketTypes {
		c.ticketTypes[k] = v
	}
	for k, v := range s.discounts {
		c.discounts[k] = v
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.items {
		c.items[k] = append([]domain.OrderItem(nil), v...)
	}
	for k, v := range s.tickets {
		c.tickets[k] = v
	}
	c.audit = append([]domain.ActivityLog(nil), s.audit...)
	c.nextAuditID = s.nextAuditID
	return c
}

// FakeStore implements repository.Store in memory.
type FakeStore struct {
	mu sync.Mutex
	st *state
}

func NewFakeStore() *FakeStore {
	return &FakeStore{st: newState()}
}

// --- seeding and inspection helpers ---

func (f *FakeStore) SeedEvent(e domain.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.st.events[e.ID] = e
}

func (f *FakeStore) SeedTicketType(t domain.TicketType) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.st.ticketTypes[t.ID] = t
}

func (f *FakeStore) SeedDiscount(d domain.DiscountCode) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.st.discounts[d.ID] = d
}

func (f *FakeStore) SeedOrder(o domain.Order, items []domain.OrderItem, tickets []domain.Ticket) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.st.orders[o.ID] = o
	f.st.items[o.ID] = append([]domain.OrderItem(nil), items...)
	for _, t := range tickets {
		f.st.tickets[t.ID] = t
	}
}

func (f *FakeStore) TicketType(id uuid.UUID) domain.TicketType {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.st.ticketTypes[id]
}

func (f *FakeStore) Discount(id uuid.UUID) domain.DiscountCode {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.st.discounts[id]
}

func (f *FakeStore) Ticket(id uuid.UUID) domain.Ticket {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.st.tickets[id]
}

func (f *FakeStore) OrderCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.st.orders)
}

func (f *FakeStore) TicketCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.st.tickets)
}

func (f *FakeStore) AuditActions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.st.audit))
	for _, e := range f.st.audit {
		out = append(out, e.Action)
	}
	return out
}

// --- repository.Store ---

func (f *FakeStore) Catalog() repository.Catalog     { return &session{fs: f} }
func (f *FakeStore) Inventory() repository.Inventory { return &session{fs: f} }
func (f *FakeStore) Discounts() repository.Discounts { return &session{fs: f} }
func (f *FakeStore) Orders() repository.Orders       { return &session{fs: f} }
func (f *FakeStore) Tickets() repository.Tickets     { return &session{fs: f} }
func (f *FakeStore) Audit() repository.Audit         { return &session{fs: f} }

func (f *FakeStore) RunTx(
	ctx context.Context,
	fn func(ctx context.Context, tx repository.Tx) error,
) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	snap := f.st.clone()
	if err := fn(ctx, &txSession{s: session{fs: f, inTx: true}}); err != nil {
		f.st = snap
		return err
	}

	return nil
}

// session implements every repository interface over the shared state. A
// transactional session skips locking: RunTx already holds the mutex.
type session struct {
	fs   *FakeStore
	inTx bool
}

type txSession struct {
	s session
}

func (t *txSession) Catalog() repository.Catalog     { return &t.s }
func (t *txSession) Inventory() repository.Inventory { return &t.s }
func (t *txSession) Discounts() repository.Discounts { return &t.s }
func (t *txSession) Orders() repository.Orders       { return &t.s }
func (t *txSession) Tickets() repository.Tickets     { return &t.s }
func (t *txSession) Audit() repository.Audit         { return &t.s }

func (s *session) enter() func() {
	if s.inTx {
		return func() {}
	}
	s.fs.mu.Lock()
	return s.fs.mu.Unlock
}

// --- Catalog ---

func (s *session) GetPublishedEvent(_ context.Context, id uuid.UUID) (*domain.Event, error) {
	defer s.enter()()

	e, ok := s.fs.st.events[id]
	if !ok || !e.Purchasable() {
		return nil, repository.ErrNotFound
	}
	return &e, nil
}

func (s *session) GetTenantEvent(_ context.Context, tenantID, eventID uuid.UUID) (*domain.Event, error) {
	defer s.enter()()

	e, ok := s.fs.st.events[eventID]
	if !ok || e.TenantID != tenantID {
		return nil, repository.ErrNotFound
	}
	return &e, nil
}

func (s *session) ListPublishedEvents(_ context.Context, limit, offset int) ([]domain.Event, error) {
	defer s.enter()()

	var out []domain.Event
	for _, e := range s.fs.st.events {
		if e.Purchasable() {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartAt.Before(out[j].StartAt) })

	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *session) TicketTypesByIDs(_ context.Context, eventID uuid.UUID, ids []uuid.UUID) ([]domain.TicketType, error) {
	defer s.enter()()

	var out []domain.TicketType
	for _, id := range ids {
		t, ok := s.fs.st.ticketTypes[id]
		if ok && t.EventID == eventID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (s *session) TicketTypesByEvent(_ context.Context, eventID uuid.UUID) ([]domain.TicketType, error) {
	defer s.enter()()

	var out []domain.TicketType
	for _, t := range s.fs.st.ticketTypes {
		if t.EventID == eventID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PriceMinor < out[j].PriceMinor })
	return out, nil
}

// --- Inventory ---

func (s *session) Reserve(_ context.Context, ticketTypeID uuid.UUID, qty int) error {
	defer s.enter()()

	t, ok := s.fs.st.ticketTypes[ticketTypeID]
	if !ok {
		return repository.ErrInsufficientInventory
	}
	if t.Status != domain.TicketTypeActive || t.QuantitySold+qty > t.QuantityTotal {
		return repository.ErrInsufficientInventory
	}

	t.QuantitySold += qty
	s.fs.st.ticketTypes[ticketTypeID] = t
	return nil
}

// --- Discounts ---

func (s *session) Find(_ context.Context, eventID uuid.UUID, code string) (*domain.DiscountCode, error) {
	defer s.enter()()

	code = strings.ToUpper(code)
	for _, d := range s.fs.st.discounts {
		if d.EventID == eventID && d.Code == code {
			out := d
			return &out, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *session) Redeem(_ context.Context, eventID uuid.UUID, code string, now time.Time) error {
	defer s.enter()()

	code = strings.ToUpper(code)
	for id, d := range s.fs.st.discounts {
		if d.EventID != eventID || d.Code != code {
			continue
		}
		if ok, _ := d.EligibleAt(now); !ok {
			return repository.ErrDiscountNotEligible
		}
		d.TimesRedeemed++
		s.fs.st.discounts[id] = d
		return nil
	}
	return repository.ErrDiscountNotEligible
}

// --- Orders ---

func (s *session) InsertOrder(_ context.Context, o *domain.Order) error {
	defer s.enter()()

	if _, exists := s.fs.st.orders[o.ID]; exists {
		return repository.ErrConflict
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now()
	}
	o.BuyerEmail = strings.ToLower(o.BuyerEmail)
	s.fs.st.orders[o.ID] = *o
	return nil
}

func (s *session) InsertItems(_ context.Context, items []domain.OrderItem) error {
	defer s.enter()()

	for _, it := range items {
		s.fs.st.items[it.OrderID] = append(s.fs.st.items[it.OrderID], it)
	}
	return nil
}

func (s *session) InsertTickets(_ context.Context, tickets []domain.Ticket) error {
	defer s.enter()()

	for _, t := range tickets {
		if t.CreatedAt.IsZero() {
			t.CreatedAt = time.Now()
		}
		s.fs.st.tickets[t.ID] = t
	}
	return nil
}

func (s *session) SetTicketCredential(_ context.Context, ticketID uuid.UUID, payload, signature string) error {
	defer s.enter()()

	t, ok := s.fs.st.tickets[ticketID]
	if !ok {
		return repository.ErrNotFound
	}
	t.QRPayload = payload
	t.QRSignature = signature
	s.fs.st.tickets[ticketID] = t
	return nil
}

func (s *session) detail(orderID uuid.UUID) *domain.OrderDetail {
	o, ok := s.fs.st.orders[orderID]
	if !ok {
		return nil
	}

	d := &domain.OrderDetail{
		Order: o,
		Items: append([]domain.OrderItem(nil), s.fs.st.items[orderID]...),
	}
	for _, t := range s.fs.st.tickets {
		if t.OrderID == orderID {
			d.Tickets = append(d.Tickets, t)
		}
	}
	sort.Slice(d.Tickets, func(i, j int) bool {
		return d.Tickets[i].ID.String() < d.Tickets[j].ID.String()
	})
	return d
}

func (s *session) OrderDetail(_ context.Context, orderID uuid.UUID) (*domain.OrderDetail, error) {
	defer s.enter()()

	d := s.detail(orderID)
	if d == nil {
		return nil, repository.ErrNotFound
	}
	return d, nil
}

func (s *session) OrderForBuyer(_ context.Context, orderID uuid.UUID, email string) (*domain.OrderDetail, error) {
	defer s.enter()()

	d := s.detail(orderID)
	if d == nil || d.Order.BuyerEmail != strings.ToLower(email) {
		return nil, repository.ErrNotFound
	}
	return d, nil
}

func (s *session) OrderForTenant(_ context.Context, tenantID, orderID uuid.UUID) (*domain.OrderDetail, error) {
	defer s.enter()()

	d := s.detail(orderID)
	if d == nil || d.Order.TenantID != tenantID {
		return nil, repository.ErrNotFound
	}
	return d, nil
}

func (s *session) OrdersByEmail(_ context.Context, email string) ([]domain.OrderDetail, error) {
	defer s.enter()()

	email = strings.ToLower(email)
	var out []domain.OrderDetail
	for id, o := range s.fs.st.orders {
		if o.BuyerEmail == email {
			out = append(out, *s.detail(id))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Order.CreatedAt.After(out[j].Order.CreatedAt)
	})
	return out, nil
}

func (s *session) OrdersByTenantEmail(_ context.Context, tenantID uuid.UUID, email string) ([]domain.Order, error) {
	defer s.enter()()

	email = strings.ToLower(email)
	var out []domain.Order
	for _, o := range s.fs.st.orders {
		if o.TenantID == tenantID && o.BuyerEmail == email {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// --- Tickets ---

func (s *session) checkinTicket(t domain.Ticket) *domain.CheckinTicket {
	o := s.fs.st.orders[t.OrderID]
	return &domain.CheckinTicket{
		Ticket:   t,
		TenantID: o.TenantID,
		EventID:  o.EventID,
	}
}

func (s *session) FindByPayload(_ context.Context, payload string) (*domain.CheckinTicket, error) {
	defer s.enter()()

	for _, t := range s.fs.st.tickets {
		if t.QRPayload == payload {
			return s.checkinTicket(t), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *session) FindByID(_ context.Context, id uuid.UUID) (*domain.CheckinTicket, error) {
	defer s.enter()()

	t, ok := s.fs.st.tickets[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return s.checkinTicket(t), nil
}

func (s *session) CheckIn(_ context.Context, ticketID uuid.UUID, at time.Time) error {
	defer s.enter()()

	t, ok := s.fs.st.tickets[ticketID]
	if !ok {
		return repository.ErrNotFound
	}
	if t.CheckedInAt != nil || t.Status != domain.TicketValid {
		return repository.ErrAlreadyCheckedIn
	}

	t.CheckedInAt = &at
	t.Status = domain.TicketScanned
	s.fs.st.tickets[ticketID] = t
	return nil
}

func (s *session) tenantTickets(tenantID uuid.UUID) []domain.Ticket {
	var out []domain.Ticket
	for _, t := range s.fs.st.tickets {
		if s.fs.st.orders[t.OrderID].TenantID == tenantID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (s *session) ListByTenant(_ context.Context, tenantID uuid.UUID, limit, offset int) ([]domain.Ticket, int64, error) {
	defer s.enter()()

	all := s.tenantTickets(tenantID)
	total := int64(len(all))

	if offset >= len(all) {
		return nil, total, nil
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, total, nil
}

func (s *session) Attendance(_ context.Context, tenantID uuid.UUID, eventID *uuid.UUID) ([]domain.Ticket, error) {
	defer s.enter()()

	var out []domain.Ticket
	for _, t := range s.tenantTickets(tenantID) {
		if t.CheckedInAt == nil {
			continue
		}
		if eventID != nil && s.fs.st.orders[t.OrderID].EventID != *eventID {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *session) SearchByAttendee(_ context.Context, tenantID uuid.UUID, term string) ([]domain.Ticket, error) {
	defer s.enter()()

	term = strings.ToLower(term)
	var out []domain.Ticket
	for _, t := range s.tenantTickets(tenantID) {
		if strings.Contains(strings.ToLower(t.AttendeeName), term) ||
			strings.Contains(strings.ToLower(t.AttendeeEmail), term) {
			out = append(out, t)
		}
	}
	return out, nil
}

// --- Audit ---

func (s *session) Append(_ context.Context, entry *domain.ActivityLog) error {
	defer s.enter()()

	s.fs.st.nextAuditID++
	entry.ID = s.fs.st.nextAuditID
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	s.fs.st.audit = append(s.fs.st.audit, *entry)
	return nil
}

func (s *session) ListByActor(_ context.Context, tenantID, actorID uuid.UUID, limit, offset int) ([]domain.ActivityLog, int64, error) {
	defer s.enter()()

	var all []domain.ActivityLog
	for _, e := range s.fs.st.audit {
		if e.TenantID == tenantID && e.ActorID == actorID {
			all = append(all, e)
		}
	}
	total := int64(len(all))

	if offset >= len(all) {
		return nil, total, nil
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, total, nil
}
