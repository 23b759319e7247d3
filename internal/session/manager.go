package session

import (
	"context"
	"fmt"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/google/uuid"

	"github.com/comandaclub/comanda/internal/fault"
	"github.com/comandaclub/comanda/internal/kiosk"
	"github.com/comandaclub/comanda/internal/tenant"
	"github.com/comandaclub/comanda/internal/token"
)

// maxTokenAttempts bounds the live-collision retry loop for session tokens.
const maxTokenAttempts = 5

// DeviceVerifier is the slice of the device registry the manager needs.
type DeviceVerifier interface {
	VerifyCredentials(ctx context.Context, tn tenant.Context, deviceID uuid.UUID, secret string) (*kiosk.Device, error)
	Get(ctx context.Context, tn tenant.Context, deviceID uuid.UUID) (*kiosk.Device, error)
}

// Manager owns the QR/table session lifecycle. Stateless; all state lives in
// the tenant store so any instance can serve any request.
type Manager struct {
	sessions SessionRepo
	devices  DeviceVerifier
	taxRate  float64
	logger   apt.Logger
}

func NewManager(sessions SessionRepo, devices DeviceVerifier, taxRate float64, logger apt.Logger) *Manager {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &Manager{
		sessions: sessions,
		devices:  devices,
		taxRate:  taxRate,
		logger:   logger,
	}
}

// Open verifies the device and creates a fresh session whose expiry is the
// device's configured QR duration. The token is retried until no currently
// active session holds it.
func (m *Manager) Open(ctx context.Context, tn tenant.Context, deviceID uuid.UUID, secret string, tableID *uuid.UUID) (*Session, error) {
	d, err := m.devices.VerifyCredentials(ctx, tn, deviceID, secret)
	if err != nil {
		return nil, err
	}
	return m.OpenForDevice(ctx, tn, d, tableID)
}

// OpenForDevice creates a session for an already-verified device, e.g. when
// the call arrives with a valid access token.
func (m *Manager) OpenForDevice(ctx context.Context, tn tenant.Context, d *kiosk.Device, tableID *uuid.UUID) (*Session, error) {
	if !d.Operational() {
		return nil, fmt.Errorf("device is %s: %w", d.Status, fault.ErrInvalidState)
	}

	var tok string
	for attempt := 0; ; attempt++ {
		if attempt >= maxTokenAttempts {
			return nil, fmt.Errorf("cannot find a free session token: %w", fault.ErrConflict)
		}
		candidate, err := token.NewSessionToken()
		if err != nil {
			return nil, err
		}
		live, err := m.sessions.ActiveTokenExists(ctx, tn, candidate)
		if err != nil {
			return nil, err
		}
		if !live {
			tok = candidate
			break
		}
	}

	now := time.Now()
	s := &Session{
		Token:          tok,
		DeviceID:       d.ID,
		SalonID:        d.SalonID,
		TableID:        tableID,
		State:          StateActive,
		ExpiresAt:      now.Add(d.SessionDuration()),
		LastActivityAt: now,
	}
	if s.TableID == nil {
		s.TableID = d.TableID
	}
	s.Cart.UpdatedAt = now
	s.BeforeCreate()

	if err := m.sessions.Create(ctx, tn, s); err != nil {
		return nil, fmt.Errorf("cannot create session: %w", err)
	}
	return s, nil
}

// Get resolves a live session by token. Reads at or past the absolute expiry
// behave as if the session does not exist; the record is flipped to expired
// lazily so it stays around for audit.
func (m *Manager) Get(ctx context.Context, tn tenant.Context, tok string) (*Session, error) {
	s, err := m.sessions.GetByToken(ctx, tn, tok)
	if err != nil {
		return nil, err
	}
	if s == nil || s.State == StateAbandoned {
		return nil, fmt.Errorf("session: %w", fault.ErrNotFound)
	}
	// Holding the token proves prior possession of the session, so telling
	// the caller it expired leaks nothing.
	if s.State == StateExpired {
		return nil, fmt.Errorf("session: %w", fault.ErrExpired)
	}
	if s.State == StateActive && s.PastExpiry(time.Now()) {
		if err := m.sessions.MarkExpired(ctx, tn, s.ID); err != nil {
			m.logger.Errorf("cannot mark session %s expired: %v", s.ID, err)
		}
		return nil, fmt.Errorf("session: %w", fault.ErrExpired)
	}
	if s.State == StateActive {
		s.LastActivityAt = time.Now()
		s.BeforeUpdate()
		if err := m.sessions.Save(ctx, tn, s); err != nil {
			m.logger.Errorf("cannot bump session %s activity: %v", s.ID, err)
		}
	}
	return s, nil
}

// getActive resolves a session that must still accept mutations.
func (m *Manager) getActive(ctx context.Context, tn tenant.Context, tok string) (*Session, error) {
	s, err := m.sessions.GetByToken(ctx, tn, tok)
	if err != nil {
		return nil, err
	}
	if s == nil || s.State == StateAbandoned {
		return nil, fmt.Errorf("session: %w", fault.ErrNotFound)
	}
	if s.State == StateExpired {
		return nil, fmt.Errorf("session: %w", fault.ErrExpired)
	}
	if s.State == StateCompleted {
		return nil, fmt.Errorf("session is %s: %w", s.State, fault.ErrInvalidState)
	}
	if s.PastExpiry(time.Now()) {
		if err := m.sessions.MarkExpired(ctx, tn, s.ID); err != nil {
			m.logger.Errorf("cannot mark session %s expired: %v", s.ID, err)
		}
		return nil, fmt.Errorf("session: %w", fault.ErrExpired)
	}
	return s, nil
}

// ReplaceCart swaps the whole cart and recomputes totals server-side.
func (m *Manager) ReplaceCart(ctx context.Context, tn tenant.Context, tok string, lines []CartLine) (*Session, error) {
	s, err := m.getActive(ctx, tn, tok)
	if err != nil {
		return nil, err
	}
	for _, l := range lines {
		if l.Kind != LineProduct {
			return nil, fmt.Errorf("unsupported line kind %q: %w", l.Kind, fault.ErrPolicy)
		}
		if l.Quantity <= 0 {
			return nil, fmt.Errorf("line quantity must be positive: %w", fault.ErrPolicy)
		}
	}
	s.Cart.Lines = lines
	s.Cart.Recalculate(m.taxRate)
	s.LastActivityAt = time.Now()
	s.BeforeUpdate()
	if err := m.sessions.Save(ctx, tn, s); err != nil {
		return nil, fmt.Errorf("cannot save cart: %w", err)
	}
	return s, nil
}

func (m *Manager) SetCustomer(ctx context.Context, tn tenant.Context, tok string, info CustomerInfo, serviceType ServiceType) (*Session, error) {
	s, err := m.getActive(ctx, tn, tok)
	if err != nil {
		return nil, err
	}
	s.Customer = &info
	if serviceType != "" {
		if serviceType != DineIn && serviceType != Takeaway {
			return nil, fmt.Errorf("unknown service type %q: %w", serviceType, fault.ErrPolicy)
		}
		s.ServiceType = serviceType
	}
	s.LastActivityAt = time.Now()
	s.BeforeUpdate()
	if err := m.sessions.Save(ctx, tn, s); err != nil {
		return nil, fmt.Errorf("cannot save customer info: %w", err)
	}
	return s, nil
}

// Complete is the only happy-path transition out of active. The underlying
// update is conditional on the session still being active, so a session can
// never be completed twice.
func (m *Manager) Complete(ctx context.Context, tn tenant.Context, tok string, orderID uuid.UUID) (*Session, error) {
	now := time.Now()
	s, err := m.sessions.Complete(ctx, tn, tok, orderID, now)
	if err != nil {
		return nil, fmt.Errorf("cannot complete session: %w", err)
	}
	if s != nil {
		return s, nil
	}

	existing, err := m.sessions.GetByToken(ctx, tn, tok)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("session: %w", fault.ErrNotFound)
	}
	return nil, fmt.Errorf("session is %s: %w", existing.State, fault.ErrInvalidState)
}

// Abandon retires an active session without an order. Staff/user driven.
func (m *Manager) Abandon(ctx context.Context, tn tenant.Context, tok string) error {
	s, err := m.getActive(ctx, tn, tok)
	if err != nil {
		return err
	}
	s.State = StateAbandoned
	s.BeforeUpdate()
	if err := m.sessions.Save(ctx, tn, s); err != nil {
		return fmt.Errorf("cannot abandon session: %w", err)
	}
	return nil
}
