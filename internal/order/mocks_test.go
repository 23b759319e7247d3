package order

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/comandaclub/comanda/internal/fault"
	"github.com/comandaclub/comanda/internal/kiosk"
	"github.com/comandaclub/comanda/internal/kitchen"
	"github.com/comandaclub/comanda/internal/session"
	"github.com/comandaclub/comanda/internal/tenant"
)

// MockOrderRepo reproduces the store's conditional-update semantics, which
// the service's claim/revert dance depends on.
type MockOrderRepo struct {
	mu       sync.Mutex
	orders   map[uuid.UUID]*Order
	counters map[string]int64

	CreateFunc       func(ctx context.Context, tn tenant.Context, o *Order) error
	AppendTicketFunc func(ctx context.Context, tn tenant.Context, id uuid.UUID, ticketID uuid.UUID) error
}

func NewMockOrderRepo() *MockOrderRepo {
	return &MockOrderRepo{
		orders:   make(map[uuid.UUID]*Order),
		counters: make(map[string]int64),
	}
}

func (m *MockOrderRepo) Create(ctx context.Context, tn tenant.Context, o *Order) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, tn, o)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *o
	m.orders[o.ID] = &copied
	return nil
}

func (m *MockOrderRepo) Get(ctx context.Context, tn tenant.Context, id uuid.UUID) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, nil
	}
	copied := *o
	return &copied, nil
}

func (m *MockOrderRepo) ClaimTransition(ctx context.Context, tn tenant.Context, id uuid.UUID, from []Status, to Status, at time.Time, reason string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, nil
	}
	matched := false
	for _, f := range from {
		if o.Status == f {
			matched = true
		}
	}
	if !matched {
		return nil, nil
	}
	o.Status = to
	o.UpdatedAt = at
	switch to {
	case StatusConfirmed:
		o.ConfirmedAt = &at
	case StatusInPreparation:
		o.PreparingAt = &at
	case StatusReady:
		o.ReadyAt = &at
	case StatusDelivered:
		o.DeliveredAt = &at
	case StatusCancelled:
		o.CancelledAt = &at
		o.CancelReason = reason
	}
	copied := *o
	return &copied, nil
}

func (m *MockOrderRepo) RevertStatus(ctx context.Context, tn tenant.Context, id uuid.UUID, from, to Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok || o.Status != from {
		return fmt.Errorf("order %s not in %s", id, from)
	}
	o.Status = to
	if from == StatusInPreparation {
		o.PreparingAt = nil
	}
	return nil
}

func (m *MockOrderRepo) MarkPaid(ctx context.Context, tn tenant.Context, id uuid.UUID, method, ref string, at time.Time) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok || o.Paid {
		return nil, nil
	}
	switch o.Status {
	case StatusPendingPayment, StatusPendingValidation, StatusConfirmed:
	default:
		return nil, nil
	}
	o.Paid = true
	o.PaymentMethod = method
	o.PaymentRef = ref
	o.PaidAt = &at
	o.Status = StatusConfirmed
	o.ConfirmedAt = &at
	copied := *o
	return &copied, nil
}

func (m *MockOrderRepo) AppendTicket(ctx context.Context, tn tenant.Context, id uuid.UUID, ticketID uuid.UUID) error {
	if m.AppendTicketFunc != nil {
		return m.AppendTicketFunc(ctx, tn, id, ticketID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return fmt.Errorf("order %s not found", id)
	}
	o.TicketIDs = append(o.TicketIDs, ticketID)
	return nil
}

func (m *MockOrderRepo) PendingForPOS(ctx context.Context, tn tenant.Context, posID uuid.UUID) ([]*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*Order
	for _, o := range m.orders {
		if o.Status == StatusPendingValidation && o.POSID != nil && *o.POSID == posID {
			copied := *o
			result = append(result, &copied)
		}
	}
	return result, nil
}

func (m *MockOrderRepo) ListByDevice(ctx context.Context, tn tenant.Context, deviceID uuid.UUID, limit int) ([]*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*Order
	for _, o := range m.orders {
		if o.DeviceID == deviceID {
			copied := *o
			result = append(result, &copied)
		}
	}
	return result, nil
}

func (m *MockOrderRepo) CountByDevice(ctx context.Context, tn tenant.Context, deviceID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, o := range m.orders {
		if o.DeviceID == deviceID {
			n++
		}
	}
	return n, nil
}

func (m *MockOrderRepo) NextNumber(ctx context.Context, tn tenant.Context, day string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[day]++
	return m.counters[day], nil
}

func (m *MockOrderRepo) stored(id uuid.UUID) *Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orders[id]
}

// MockDeviceResolver serves fixed devices; the secret "good" verifies.
type MockDeviceResolver struct {
	Devices map[uuid.UUID]*kiosk.Device
}

func (m *MockDeviceResolver) VerifyCredentials(ctx context.Context, tn tenant.Context, deviceID uuid.UUID, secret string) (*kiosk.Device, error) {
	d, ok := m.Devices[deviceID]
	if !ok || secret != "good" || !d.Operational() {
		return nil, fmt.Errorf("device credentials rejected: %w", fault.ErrInvalidCredentials)
	}
	return d, nil
}

func (m *MockDeviceResolver) Get(ctx context.Context, tn tenant.Context, deviceID uuid.UUID) (*kiosk.Device, error) {
	d, ok := m.Devices[deviceID]
	if !ok {
		return nil, fmt.Errorf("device %s: %w", deviceID, fault.ErrNotFound)
	}
	return d, nil
}

// MockSessionSource tracks completion so tests can assert the
// complete-before-create ordering.
type MockSessionSource struct {
	mu        sync.Mutex
	Sessions  map[string]*session.Session
	Completed []string

	GetFunc      func(ctx context.Context, tn tenant.Context, token string) (*session.Session, error)
	CompleteFunc func(ctx context.Context, tn tenant.Context, token string, orderID uuid.UUID) (*session.Session, error)
}

func (m *MockSessionSource) Get(ctx context.Context, tn tenant.Context, token string) (*session.Session, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, tn, token)
	}
	s, ok := m.Sessions[token]
	if !ok {
		return nil, fmt.Errorf("session: %w", fault.ErrNotFound)
	}
	return s, nil
}

func (m *MockSessionSource) Complete(ctx context.Context, tn tenant.Context, token string, orderID uuid.UUID) (*session.Session, error) {
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, tn, token, orderID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.Sessions[token]
	if !ok {
		return nil, fmt.Errorf("session: %w", fault.ErrNotFound)
	}
	if s.State != session.StateActive {
		return nil, fmt.Errorf("session is %s: %w", s.State, fault.ErrInvalidState)
	}
	s.State = session.StateCompleted
	s.OrderID = &orderID
	m.Completed = append(m.Completed, token)
	return s, nil
}

// MockKitchen counts ticket creations and can be told to fail.
type MockKitchen struct {
	mu               sync.Mutex
	Calls            int
	Fail             bool
	CreateTicketFunc func(ctx context.Context, tn tenant.Context, req kitchen.TicketRequest) (uuid.UUID, error)
	LastRequest      kitchen.TicketRequest
}

func (m *MockKitchen) CreateTicket(ctx context.Context, tn tenant.Context, req kitchen.TicketRequest) (uuid.UUID, error) {
	if m.CreateTicketFunc != nil {
		return m.CreateTicketFunc(ctx, tn, req)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	m.LastRequest = req
	if m.Fail {
		return uuid.Nil, fmt.Errorf("kitchen unreachable: %w", fault.ErrDependency)
	}
	return uuid.New(), nil
}

// MockPublisher records published topics.
type MockPublisher struct {
	mu          sync.Mutex
	Published   []string
	PublishFunc func(ctx context.Context, topic string, msg []byte) error
}

func (m *MockPublisher) Publish(ctx context.Context, topic string, msg []byte) error {
	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, topic, msg)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Published = append(m.Published, topic)
	return nil
}

func testTenant() tenant.Context {
	return tenant.Context{ID: "demo", Database: "comanda_demo"}
}

type testServiceFixture struct {
	service  *Service
	orders   *MockOrderRepo
	devices  *MockDeviceResolver
	sessions *MockSessionSource
	kitchen  *MockKitchen
	pub      *MockPublisher
	device   *kiosk.Device
}

func newTestService(taxRate float64) *testServiceFixture {
	d := &kiosk.Device{
		ID:     uuid.New(),
		Name:   "Front totem",
		Kind:   kiosk.KindTotem,
		Status: kiosk.DeviceActive,
	}
	f := &testServiceFixture{
		orders:   NewMockOrderRepo(),
		devices:  &MockDeviceResolver{Devices: map[uuid.UUID]*kiosk.Device{d.ID: d}},
		sessions: &MockSessionSource{Sessions: map[string]*session.Session{}},
		kitchen:  &MockKitchen{},
		pub:      &MockPublisher{},
		device:   d,
	}
	f.service = NewService(ServiceDeps{
		Orders:    f.orders,
		Devices:   f.devices,
		Sessions:  f.sessions,
		Kitchen:   f.kitchen,
		Publisher: f.pub,
	}, taxRate, nil)
	return f
}
