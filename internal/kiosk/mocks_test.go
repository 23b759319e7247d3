package kiosk

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/comandaclub/comanda/internal/fault"
	"github.com/comandaclub/comanda/internal/tenant"
)

// MockDeviceRepo is a map-backed implementation of DeviceRepo for testing
type MockDeviceRepo struct {
	mu         sync.RWMutex
	devices    map[uuid.UUID]*Device
	CreateFunc func(ctx context.Context, tn tenant.Context, d *Device) error
	GetFunc    func(ctx context.Context, tn tenant.Context, id uuid.UUID) (*Device, error)
	SaveFunc   func(ctx context.Context, tn tenant.Context, d *Device) error
	DeleteFunc func(ctx context.Context, tn tenant.Context, id uuid.UUID) error
}

func NewMockDeviceRepo() *MockDeviceRepo {
	return &MockDeviceRepo{
		devices: make(map[uuid.UUID]*Device),
	}
}

func (m *MockDeviceRepo) Create(ctx context.Context, tn tenant.Context, d *Device) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, tn, d)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devices[d.ID] = d
	return nil
}

func (m *MockDeviceRepo) Get(ctx context.Context, tn tenant.Context, id uuid.UUID) (*Device, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, tn, id)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.devices[id]
	if !ok {
		return nil, nil
	}
	copied := *d
	return &copied, nil
}

func (m *MockDeviceRepo) List(ctx context.Context, tn tenant.Context) ([]*Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]*Device, 0, len(m.devices))
	for _, d := range m.devices {
		copied := *d
		result = append(result, &copied)
	}
	return result, nil
}

func (m *MockDeviceRepo) Save(ctx context.Context, tn tenant.Context, d *Device) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, tn, d)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.devices[d.ID]
	if !ok || stored.Status == DeviceDeactivated {
		return fmt.Errorf("device %s is deactivated or missing: %w", d.ID, fault.ErrInvalidState)
	}
	copied := *d
	m.devices[d.ID] = &copied
	return nil
}

func (m *MockDeviceRepo) Delete(ctx context.Context, tn tenant.Context, id uuid.UUID) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, tn, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.devices[id]; !ok {
		return fmt.Errorf("device %s: %w", id, fault.ErrNotFound)
	}
	delete(m.devices, id)
	return nil
}

// MockActivationTokenRepo mirrors the store's conditional-update semantics:
// Consume succeeds at most once per token.
type MockActivationTokenRepo struct {
	mu          sync.Mutex
	tokens      map[uuid.UUID]*ActivationToken
	CreateFunc  func(ctx context.Context, tn tenant.Context, t *ActivationToken) error
	ConsumeFunc func(ctx context.Context, tn tenant.Context, codeHash string, at time.Time, fromIP string) (*ActivationToken, error)
}

func NewMockActivationTokenRepo() *MockActivationTokenRepo {
	return &MockActivationTokenRepo{
		tokens: make(map[uuid.UUID]*ActivationToken),
	}
}

func (m *MockActivationTokenRepo) Create(ctx context.Context, tn tenant.Context, t *ActivationToken) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, tn, t)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *t
	m.tokens[t.ID] = &copied
	return nil
}

func (m *MockActivationTokenRepo) ExpireUnused(ctx context.Context, tn tenant.Context, deviceID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tokens {
		if t.DeviceID == deviceID && !t.Used {
			t.ExpiresAt = time.Now()
		}
	}
	return nil
}

func (m *MockActivationTokenRepo) UnusedCodeExists(ctx context.Context, tn tenant.Context, codeHash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for _, t := range m.tokens {
		if t.CodeHash == codeHash && !t.Used && t.ExpiresAt.After(now) {
			return true, nil
		}
	}
	return false, nil
}

func (m *MockActivationTokenRepo) FindUnused(ctx context.Context, tn tenant.Context, codeHash string, at time.Time) (*ActivationToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tokens {
		if t.CodeHash == codeHash && !t.Used && t.ExpiresAt.After(at) {
			copied := *t
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *MockActivationTokenRepo) Consume(ctx context.Context, tn tenant.Context, codeHash string, at time.Time, fromIP string) (*ActivationToken, error) {
	if m.ConsumeFunc != nil {
		return m.ConsumeFunc(ctx, tn, codeHash, at, fromIP)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tokens {
		if t.CodeHash == codeHash && !t.Used && t.ExpiresAt.After(at) {
			t.Used = true
			t.UsedAt = &at
			t.UsedFromIP = fromIP
			copied := *t
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *MockActivationTokenRepo) DeleteExpiredBefore(ctx context.Context, tn tenant.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var deleted int64
	for id, t := range m.tokens {
		if t.ExpiresAt.Before(cutoff) {
			delete(m.tokens, id)
			deleted++
		}
	}
	return deleted, nil
}

// Unused returns the ids of the device's still-live tokens.
func (m *MockActivationTokenRepo) Unused(deviceID uuid.UUID) []uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	var out []uuid.UUID
	for id, t := range m.tokens {
		if t.DeviceID == deviceID && !t.Used && t.ExpiresAt.After(now) {
			out = append(out, id)
		}
	}
	return out
}

// MockSessionExpirer records cascade calls.
type MockSessionExpirer struct {
	mu              sync.Mutex
	ExpiredDevices  []uuid.UUID
	ExpireAllFunc   func(ctx context.Context, tn tenant.Context, deviceID uuid.UUID) (int64, error)
	ExpiredPerCall  int64
}

func (m *MockSessionExpirer) ExpireAllActive(ctx context.Context, tn tenant.Context, deviceID uuid.UUID) (int64, error) {
	if m.ExpireAllFunc != nil {
		return m.ExpireAllFunc(ctx, tn, deviceID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ExpiredDevices = append(m.ExpiredDevices, deviceID)
	return m.ExpiredPerCall, nil
}

// MockOrderCounter reports a fixed order count per device.
type MockOrderCounter struct {
	Counts map[uuid.UUID]int64
}

func (m *MockOrderCounter) CountByDevice(ctx context.Context, tn tenant.Context, deviceID uuid.UUID) (int64, error) {
	if m.Counts == nil {
		return 0, nil
	}
	return m.Counts[deviceID], nil
}

// MockLicense is active unless told otherwise.
type MockLicense struct {
	Inactive   bool
	ActiveFunc func(ctx context.Context, tenantID string) (bool, error)
}

func (m *MockLicense) Active(ctx context.Context, tenantID string) (bool, error) {
	if m.ActiveFunc != nil {
		return m.ActiveFunc(ctx, tenantID)
	}
	return !m.Inactive, nil
}

func testTenant() tenant.Context {
	return tenant.Context{ID: "demo", Database: "comanda_demo"}
}

func newTestRegistry() (*Registry, *MockDeviceRepo, *MockActivationTokenRepo, *MockSessionExpirer) {
	devices := NewMockDeviceRepo()
	tokens := NewMockActivationTokenRepo()
	sessions := &MockSessionExpirer{}
	registry := NewRegistry(RegistryDeps{
		Devices:  devices,
		Tokens:   tokens,
		Sessions: sessions,
		Orders:   &MockOrderCounter{},
		License:  &MockLicense{},
	}, []byte("test-sign-key"), nil)
	return registry, devices, tokens, sessions
}
