package registrations

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/aura-webinar/admissions/internal/events"
	"github.com/aura-webinar/admissions/internal/models"
	"github.com/aura-webinar/admissions/internal/notify"
	"github.com/aura-webinar/admissions/internal/payments"
	"github.com/aura-webinar/admissions/internal/webinars"
)

var testNow = time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)

// memStore is an in-memory Store. A single mutex gives InsertAdmitted the
// same serialization the webinar row lock gives the Postgres repository.
type memStore struct {
	mu       sync.Mutex
	webinars map[uuid.UUID]*models.Webinar
	regs     map[uuid.UUID]*models.Registration

	deleteErr error
	// beforeTransition runs once, before the next Transition, outside the lock.
	beforeTransition func()
}

func newMemStore(ws ...*models.Webinar) *memStore {
	s := &memStore{
		webinars: map[uuid.UUID]*models.Webinar{},
		regs:     map[uuid.UUID]*models.Registration{},
	}
	for _, w := range ws {
		s.webinars[w.ID] = w
	}
	return s
}

func sameIdentity(a, b models.Attendee) bool {
	if id, ok := a.UserID(); ok {
		return b.IsUser(id)
	}
	ga, _ := a.Guest()
	gb, ok := b.Guest()
	return ok && ga.Email == gb.Email
}

func (s *memStore) InsertAdmitted(_ context.Context, reg *models.Registration, check func(AdmissionSnapshot) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.webinars[reg.WebinarID]
	if !ok {
		return fmt.Errorf("%w: webinar", ErrNotFound)
	}
	snap := AdmissionSnapshot{Capacity: w.Capacity, StartsAt: w.StartsAt}
	for _, r := range s.regs {
		if r.WebinarID != reg.WebinarID || r.PaymentStatus == models.PaymentFailed {
			continue
		}
		snap.Held++
		if sameIdentity(reg.Attendee, r.Attendee) {
			snap.Duplicate = true
		}
	}
	if err := check(snap); err != nil {
		return err
	}
	reg.ID = uuid.New()
	reg.Version = 1
	reg.RegisteredAt = testNow
	reg.UpdatedAt = testNow
	cp := *reg
	s.regs[reg.ID] = &cp
	return nil
}

func (s *memStore) GetByID(_ context.Context, id uuid.UUID) (*models.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.regs[id]
	if !ok {
		return nil, fmt.Errorf("%w: registration", ErrNotFound)
	}
	cp := *r
	return &cp, nil
}

func (s *memStore) SetOrderID(_ context.Context, reg *models.Registration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.regs[reg.ID]
	if !ok || r.Version != reg.Version || r.PaymentStatus != models.PaymentPending {
		return ErrConcurrencyConflict
	}
	r.OrderID = reg.OrderID
	r.Version++
	reg.Version = r.Version
	return nil
}

func (s *memStore) Transition(_ context.Context, t Transition) (*models.Registration, error) {
	if hook := s.beforeTransition; hook != nil {
		s.beforeTransition = nil
		hook()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.regs[t.ID]
	if !ok || r.Version != t.ExpectedVersion {
		return nil, ErrConcurrencyConflict
	}
	if !r.PaymentStatus.CanTransition(t.To) {
		return nil, illegalTransition(r.PaymentStatus, t.To)
	}
	r.PaymentStatus = t.To
	if t.PaymentID != "" {
		r.PaymentID = t.PaymentID
	}
	if t.Signature != "" {
		r.Signature = t.Signature
	}
	r.Version++
	cp := *r
	return &cp, nil
}

func (s *memStore) Delete(_ context.Context, id uuid.UUID, version int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return s.deleteErr
	}
	r, ok := s.regs[id]
	if !ok || r.Version != version {
		return ErrConcurrencyConflict
	}
	delete(s.regs, id)
	return nil
}

func (s *memStore) RecordLatePayment(_ context.Context, t Transition) (*models.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.regs[t.ID]
	if !ok || r.Version != t.ExpectedVersion || r.PaymentStatus != models.PaymentFailed || r.PaymentID != "" {
		return nil, ErrConcurrencyConflict
	}
	r.PaymentID, r.Signature = t.PaymentID, t.Signature
	r.Version++
	cp := *r
	return &cp, nil
}

func (s *memStore) ExpireStalePending(_ context.Context, cutoff time.Time) ([]models.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Registration
	for _, r := range s.regs {
		if r.PaymentStatus == models.PaymentPending && r.RegisteredAt.Before(cutoff) {
			r.PaymentStatus = models.PaymentFailed
			r.Version++
			out = append(out, *r)
		}
	}
	return out, nil
}

func (s *memStore) ListByUser(_ context.Context, userID uuid.UUID) ([]models.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Registration{}
	for _, r := range s.regs {
		if r.Attendee.IsUser(userID) {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (s *memStore) ListAttendees(_ context.Context, webinarID uuid.UUID) ([]AttendeeRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []AttendeeRow{}
	for _, r := range s.regs {
		if r.WebinarID != webinarID || r.PaymentStatus != models.PaymentSuccess {
			continue
		}
		row := AttendeeRow{RegistrationID: r.ID, RegisteredAt: r.RegisteredAt}
		if g, ok := r.Attendee.Guest(); ok {
			row.Guest, row.Name, row.Email, row.Phone = true, g.Name, g.Email, g.Phone
		} else if id, ok := r.Attendee.UserID(); ok {
			row.UserID = &id
		}
		out = append(out, row)
	}
	return out, nil
}

func (s *memStore) get(id uuid.UUID) *models.Registration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.regs[id]; ok {
		cp := *r
		return &cp
	}
	return nil
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.regs)
}

// bumpVersion simulates a concurrent writer touching the row.
func (s *memStore) bumpVersion(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.regs[id].Version++
}

type memCatalog struct {
	store *memStore
}

func (c memCatalog) GetByID(_ context.Context, id uuid.UUID) (*models.Webinar, error) {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	w, ok := c.store.webinars[id]
	if !ok {
		return nil, webinars.ErrNotFound
	}
	cp := *w
	return &cp, nil
}

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) CreateOrder(ctx context.Context, req payments.OrderRequest) (*payments.Order, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payments.Order), args.Error(1)
}

func (m *MockGateway) VerifySignature(orderID, paymentID, signature string) bool {
	args := m.Called(orderID, paymentID, signature)
	return args.Bool(0)
}

func (m *MockGateway) Refund(ctx context.Context, paymentID string, amountMinor int64, notes map[string]string) (string, error) {
	args := m.Called(ctx, paymentID, amountMinor, notes)
	return args.String(0), args.Error(1)
}

type MockSender struct {
	mock.Mock
}

func (m *MockSender) SendConfirmation(ctx context.Context, n notify.Notice) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

func (m *MockSender) SendReminder(ctx context.Context, n notify.Notice, kind notify.ReminderKind) error {
	args := m.Called(ctx, n, kind)
	return args.Error(0)
}

func (m *MockSender) SendStartingNotice(ctx context.Context, n notify.Notice) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.RegistrationEvent
}

func (p *recordingPublisher) Publish(_ context.Context, ev events.RegistrationEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

func paidWebinar(capacity int) *models.Webinar {
	return &models.Webinar{
		ID:              uuid.New(),
		Title:           "Paid Masterclass",
		StartsAt:        testNow.Add(72 * time.Hour),
		DurationMinutes: 60,
		Capacity:        capacity,
		PriceMinor:      50000,
		Currency:        models.DefaultCurrency,
		JoinLink:        "https://meet.example.com/paid",
	}
}

func freeWebinar(capacity int) *models.Webinar {
	w := paidWebinar(capacity)
	w.Title = "Free Intro"
	w.PriceMinor = 0
	return w
}

type fixture struct {
	store      *memStore
	gateway    *MockGateway
	sender     *MockSender
	events     *recordingPublisher
	controller *Controller
	reconciler *Reconciler
}

func newFixture(opts Options, ws ...*models.Webinar) *fixture {
	store := newMemStore(ws...)
	f := &fixture{
		store:   store,
		gateway: new(MockGateway),
		sender:  new(MockSender),
		events:  &recordingPublisher{},
	}
	deps := Deps{
		Catalog: memCatalog{store: store},
		Store:   store,
		Gateway: f.gateway,
		Sender:  f.sender,
		Events:  f.events,
	}
	f.controller = NewController(deps, opts)
	f.reconciler = NewReconciler(deps, opts)
	clock := func() time.Time { return testNow }
	f.controller.now = clock
	f.reconciler.now = clock
	return f
}

func guest(name, email string) *GuestDetails {
	return &GuestDetails{Name: name, Email: email}
}
