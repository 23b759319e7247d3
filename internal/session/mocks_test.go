package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/comandaclub/comanda/internal/fault"
	"github.com/comandaclub/comanda/internal/kiosk"
	"github.com/comandaclub/comanda/internal/tenant"
)

// MockSessionRepo keeps the store's conditional-update semantics: Complete
// only succeeds while the session is active.
type MockSessionRepo struct {
	mu                    sync.Mutex
	sessions              map[uuid.UUID]*Session
	CreateFunc            func(ctx context.Context, tn tenant.Context, s *Session) error
	ActiveTokenExistsFunc func(ctx context.Context, tn tenant.Context, token string) (bool, error)
}

func NewMockSessionRepo() *MockSessionRepo {
	return &MockSessionRepo{
		sessions: make(map[uuid.UUID]*Session),
	}
}

func (m *MockSessionRepo) Create(ctx context.Context, tn tenant.Context, s *Session) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, tn, s)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *s
	m.sessions[s.ID] = &copied
	return nil
}

func (m *MockSessionRepo) GetByToken(ctx context.Context, tn tenant.Context, token string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.Token == token {
			copied := *s
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *MockSessionRepo) ActiveTokenExists(ctx context.Context, tn tenant.Context, token string) (bool, error) {
	if m.ActiveTokenExistsFunc != nil {
		return m.ActiveTokenExistsFunc(ctx, tn, token)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.Token == token && s.State == StateActive {
			return true, nil
		}
	}
	return false, nil
}

// Save keeps the store's guard: only a still-active record accepts writes.
func (m *MockSessionRepo) Save(ctx context.Context, tn tenant.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.sessions[s.ID]
	if !ok || stored.State != StateActive {
		return fmt.Errorf("session %s is no longer active: %w", s.ID, fault.ErrInvalidState)
	}
	copied := *s
	m.sessions[s.ID] = &copied
	return nil
}

func (m *MockSessionRepo) Complete(ctx context.Context, tn tenant.Context, token string, orderID uuid.UUID, at time.Time) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.Token == token && s.State == StateActive {
			s.State = StateCompleted
			s.OrderID = &orderID
			s.UpdatedAt = at
			copied := *s
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *MockSessionRepo) MarkExpired(ctx context.Context, tn tenant.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok && s.State == StateActive {
		s.State = StateExpired
	}
	return nil
}

func (m *MockSessionRepo) ExpireAllActive(ctx context.Context, tn tenant.Context, deviceID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, s := range m.sessions {
		if s.DeviceID == deviceID && s.State == StateActive {
			s.State = StateExpired
			n++
		}
	}
	return n, nil
}

func (m *MockSessionRepo) byID(id uuid.UUID) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[id]
}

// MockDeviceVerifier serves a fixed set of devices keyed by id; every
// device accepts the secret "good".
type MockDeviceVerifier struct {
	Devices map[uuid.UUID]*kiosk.Device
}

func (m *MockDeviceVerifier) VerifyCredentials(ctx context.Context, tn tenant.Context, deviceID uuid.UUID, secret string) (*kiosk.Device, error) {
	d, ok := m.Devices[deviceID]
	if !ok || secret != "good" || !d.Operational() {
		return nil, fmt.Errorf("device credentials rejected: %w", fault.ErrInvalidCredentials)
	}
	return d, nil
}

func (m *MockDeviceVerifier) Get(ctx context.Context, tn tenant.Context, deviceID uuid.UUID) (*kiosk.Device, error) {
	d, ok := m.Devices[deviceID]
	if !ok {
		return nil, fmt.Errorf("device %s: %w", deviceID, fault.ErrNotFound)
	}
	return d, nil
}

func testTenant() tenant.Context {
	return tenant.Context{ID: "demo", Database: "comanda_demo"}
}

func newTestManager(taxRate float64) (*Manager, *MockSessionRepo, *kiosk.Device) {
	d := &kiosk.Device{
		ID:     uuid.New(),
		Name:   "QR table 7",
		Kind:   kiosk.KindQRTable,
		Status: kiosk.DeviceActive,
	}
	repo := NewMockSessionRepo()
	devices := &MockDeviceVerifier{Devices: map[uuid.UUID]*kiosk.Device{d.ID: d}}
	return NewManager(repo, devices, taxRate, nil), repo, d
}
