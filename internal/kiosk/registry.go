package kiosk

import (
	"context"
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/google/uuid"

	"github.com/comandaclub/comanda/internal/fault"
	"github.com/comandaclub/comanda/internal/tenant"
	"github.com/comandaclub/comanda/internal/token"
)

// maxCodeAttempts bounds the short-code collision retry loop; exhaustion
// surfaces as a conflict instead of looping unboundedly.
const maxCodeAttempts = 5

// TokenRetention keeps consumed/expired activation tokens around for audit
// before the sweep reclaims them.
const TokenRetention = 7 * 24 * time.Hour

type RegistryDeps struct {
	Devices  DeviceRepo
	Tokens   ActivationTokenRepo
	Sessions SessionExpirer
	Orders   OrderCounter
	License  tenant.LicenseChecker
}

// Registry owns device identity, capability configuration and the activation
// token lifecycle. Stateless; one instance serves all tenants because every
// call carries its tenant context.
type Registry struct {
	devices  DeviceRepo
	tokens   ActivationTokenRepo
	sessions SessionExpirer
	orders   OrderCounter
	license  tenant.LicenseChecker
	signKey  []byte
	logger   apt.Logger
}

func NewRegistry(deps RegistryDeps, signKey []byte, logger apt.Logger) *Registry {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &Registry{
		devices:  deps.Devices,
		tokens:   deps.Tokens,
		sessions: deps.Sessions,
		orders:   deps.Orders,
		license:  deps.License,
		signKey:  signKey,
		logger:   logger,
	}
}

type RegisterInput struct {
	Code     string
	Name     string
	Kind     DeviceKind
	SalonID  *uuid.UUID
	TableID  *uuid.UUID
	Payment  PaymentPolicy
	Theme    Theme
	Behavior Behavior
}

// Register creates a device entry and returns its plaintext secret exactly
// once; only the digest is persisted.
func (r *Registry) Register(ctx context.Context, tn tenant.Context, in RegisterInput) (*Device, string, error) {
	if in.Name == "" {
		return nil, "", fmt.Errorf("device name is required: %w", fault.ErrPolicy)
	}
	switch in.Kind {
	case KindTotem, KindQRTable, KindFixedTablet, KindDisplayOnly:
	default:
		return nil, "", fmt.Errorf("unknown kiosk kind %q: %w", in.Kind, fault.ErrPolicy)
	}

	secret, err := token.NewSecret()
	if err != nil {
		return nil, "", fmt.Errorf("cannot mint device secret: %w", err)
	}

	d := &Device{
		Code:         in.Code,
		Name:         in.Name,
		SecretHash:   token.Hash(secret),
		TokenVersion: 1,
		Kind:         in.Kind,
		SalonID:      in.SalonID,
		TableID:      in.TableID,
		Payment:      in.Payment,
		Theme:        in.Theme,
		Behavior:     in.Behavior,
		Status:       DeviceSuspended,
	}
	d.BeforeCreate()
	if d.Code == "" {
		code, err := token.NewShortCode()
		if err != nil {
			return nil, "", err
		}
		d.Code = code
	}

	if err := r.devices.Create(ctx, tn, d); err != nil {
		return nil, "", fmt.Errorf("cannot register device: %w", err)
	}
	return d, secret, nil
}

// UpdateInput carries the mutable configuration of a device. Nil sections
// are left untouched; identity, credentials and status never change here.
type UpdateInput struct {
	Name     string
	SalonID  *uuid.UUID
	TableID  *uuid.UUID
	Payment  *PaymentPolicy
	Theme    *Theme
	Behavior *Behavior
}

// Update reconfigures a device in place. Refused once deactivated.
func (r *Registry) Update(ctx context.Context, tn tenant.Context, deviceID uuid.UUID, in UpdateInput) (*Device, error) {
	d, err := r.devices.Get(ctx, tn, deviceID)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, fmt.Errorf("device %s: %w", deviceID, fault.ErrNotFound)
	}
	if d.Status == DeviceDeactivated {
		return nil, fmt.Errorf("device is deactivated: %w", fault.ErrInvalidState)
	}

	if in.Name != "" {
		d.Name = in.Name
	}
	if in.SalonID != nil {
		d.SalonID = in.SalonID
	}
	if in.TableID != nil {
		d.TableID = in.TableID
	}
	if in.Payment != nil {
		d.Payment = *in.Payment
	}
	if in.Theme != nil {
		d.Theme = *in.Theme
	}
	if in.Behavior != nil {
		d.Behavior = *in.Behavior
	}
	d.BeforeUpdate()
	if err := r.devices.Save(ctx, tn, d); err != nil {
		return nil, fmt.Errorf("cannot update device: %w", err)
	}
	return d, nil
}

// IssueActivationToken invalidates prior unused tokens for the device and
// mints a fresh single-use short code valid for 24 hours.
func (r *Registry) IssueActivationToken(ctx context.Context, tn tenant.Context, deviceID uuid.UUID, issuer string) (string, time.Time, error) {
	active, err := r.license.Active(ctx, tn.ID)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("cannot check license: %w", fault.ErrDependency)
	}
	if !active {
		return "", time.Time{}, fmt.Errorf("tenant license inactive: %w", fault.ErrPolicy)
	}

	d, err := r.devices.Get(ctx, tn, deviceID)
	if err != nil {
		return "", time.Time{}, err
	}
	if d == nil {
		return "", time.Time{}, fmt.Errorf("device %s: %w", deviceID, fault.ErrNotFound)
	}
	if d.Status == DeviceDeactivated {
		return "", time.Time{}, fmt.Errorf("device is deactivated: %w", fault.ErrInvalidState)
	}

	if err := r.tokens.ExpireUnused(ctx, tn, deviceID); err != nil {
		return "", time.Time{}, fmt.Errorf("cannot invalidate prior tokens: %w", err)
	}

	var code string
	for attempt := 0; ; attempt++ {
		if attempt >= maxCodeAttempts {
			return "", time.Time{}, fmt.Errorf("cannot find a free activation code: %w", fault.ErrConflict)
		}
		candidate, err := token.NewShortCode()
		if err != nil {
			return "", time.Time{}, err
		}
		taken, err := r.tokens.UnusedCodeExists(ctx, tn, token.Hash(candidate))
		if err != nil {
			return "", time.Time{}, err
		}
		if !taken {
			code = candidate
			break
		}
	}

	t := &ActivationToken{
		DeviceID:  deviceID,
		CodeHash:  token.Hash(code),
		IssuedBy:  issuer,
		ExpiresAt: time.Now().Add(ActivationTokenTTL),
	}
	t.BeforeCreate()
	if err := r.tokens.Create(ctx, tn, t); err != nil {
		return "", time.Time{}, fmt.Errorf("cannot store activation token: %w", err)
	}

	r.logger.Infof("issued activation token for device %s (tenant %s)", deviceID, tn.ID)
	return code, t.ExpiresAt, nil
}

type RedeemInfo struct {
	HardwareID string
	IP         string
}

type RedeemResult struct {
	DeviceID uuid.UUID
	Secret   string
	Tenant   tenant.Context
}

// uniform redeem failure: token-not-found, already used, expired and
// unusable-device all look identical to the caller.
func redeemFailed() error {
	return fmt.Errorf("activation code invalid or expired: %w", fault.ErrInvalidCredentials)
}

// RedeemActivationToken consumes a code atomically and mints a brand-new
// secret for the device; the previous secret becomes invalid by replacement.
// The device is checked before the consume so a redeem against a retired
// device rejects without burning the code.
func (r *Registry) RedeemActivationToken(ctx context.Context, tn tenant.Context, code string, info RedeemInfo) (*RedeemResult, error) {
	now := time.Now()
	codeHash := token.Hash(code)

	pending, err := r.tokens.FindUnused(ctx, tn, codeHash, now)
	if err != nil {
		return nil, fmt.Errorf("cannot look up activation token: %w", err)
	}
	if pending == nil {
		return nil, redeemFailed()
	}
	d, err := r.devices.Get(ctx, tn, pending.DeviceID)
	if err != nil {
		return nil, err
	}
	if d == nil || d.Status == DeviceDeactivated {
		return nil, redeemFailed()
	}

	t, err := r.tokens.Consume(ctx, tn, codeHash, now, info.IP)
	if err != nil {
		return nil, fmt.Errorf("cannot consume activation token: %w", err)
	}
	if t == nil {
		return nil, redeemFailed()
	}

	secret, err := token.NewSecret()
	if err != nil {
		return nil, fmt.Errorf("cannot mint device secret: %w", err)
	}
	d.SecretHash = token.Hash(secret)
	d.Status = DeviceActive
	d.LastIP = info.IP
	if info.HardwareID != "" {
		d.HardwareID = info.HardwareID
	}
	d.BeforeUpdate()
	if err := r.devices.Save(ctx, tn, d); err != nil {
		return nil, fmt.Errorf("cannot activate device: %w", err)
	}

	r.logger.Infof("device %s activated from %s (tenant %s)", d.ID, info.IP, tn.ID)
	return &RedeemResult{DeviceID: d.ID, Secret: secret, Tenant: tn}, nil
}

// VerifyCredentials resolves a device by id and secret. Mismatch, missing
// device and non-active device are indistinguishable to the caller.
func (r *Registry) VerifyCredentials(ctx context.Context, tn tenant.Context, deviceID uuid.UUID, secret string) (*Device, error) {
	d, err := r.devices.Get(ctx, tn, deviceID)
	if err != nil {
		return nil, err
	}
	if d == nil || !d.Operational() {
		return nil, fmt.Errorf("device credentials rejected: %w", fault.ErrInvalidCredentials)
	}
	digest := token.Hash(secret)
	if subtle.ConstantTimeCompare([]byte(digest), []byte(d.SecretHash)) != 1 {
		return nil, fmt.Errorf("device credentials rejected: %w", fault.ErrInvalidCredentials)
	}
	return d, nil
}

// RotateSecret replaces the device secret and bumps the token version so any
// cached credential elsewhere becomes immediately unusable. Active sessions
// of the device are force-expired.
func (r *Registry) RotateSecret(ctx context.Context, tn tenant.Context, deviceID uuid.UUID) (string, error) {
	d, err := r.devices.Get(ctx, tn, deviceID)
	if err != nil {
		return "", err
	}
	if d == nil {
		return "", fmt.Errorf("device %s: %w", deviceID, fault.ErrNotFound)
	}
	if d.Status == DeviceDeactivated {
		return "", fmt.Errorf("device is deactivated: %w", fault.ErrInvalidState)
	}

	secret, err := token.NewSecret()
	if err != nil {
		return "", fmt.Errorf("cannot mint device secret: %w", err)
	}
	d.SecretHash = token.Hash(secret)
	d.TokenVersion++
	d.BeforeUpdate()
	if err := r.devices.Save(ctx, tn, d); err != nil {
		return "", fmt.Errorf("cannot rotate device secret: %w", err)
	}

	expired, err := r.sessions.ExpireAllActive(ctx, tn, deviceID)
	if err != nil {
		return "", fmt.Errorf("cannot expire device sessions: %w", err)
	}
	r.logger.Infof("rotated secret for device %s, expired %d sessions", deviceID, expired)
	return secret, nil
}

func (r *Registry) Suspend(ctx context.Context, tn tenant.Context, deviceID uuid.UUID) error {
	return r.setStatus(ctx, tn, deviceID, DeviceActive, DeviceSuspended)
}

func (r *Registry) Reactivate(ctx context.Context, tn tenant.Context, deviceID uuid.UUID) error {
	return r.setStatus(ctx, tn, deviceID, DeviceSuspended, DeviceActive)
}

func (r *Registry) setStatus(ctx context.Context, tn tenant.Context, deviceID uuid.UUID, from, to DeviceStatus) error {
	d, err := r.devices.Get(ctx, tn, deviceID)
	if err != nil {
		return err
	}
	if d == nil {
		return fmt.Errorf("device %s: %w", deviceID, fault.ErrNotFound)
	}
	if d.Status != from {
		return fmt.Errorf("device is %s, cannot move to %s: %w", d.Status, to, fault.ErrInvalidState)
	}
	d.Status = to
	d.BeforeUpdate()
	if err := r.devices.Save(ctx, tn, d); err != nil {
		return fmt.Errorf("cannot update device status: %w", err)
	}
	return nil
}

// Deactivate retires a device permanently, recording actor and reason, and
// force-expires every active session it owns at that moment.
func (r *Registry) Deactivate(ctx context.Context, tn tenant.Context, deviceID uuid.UUID, actor, reason string) error {
	d, err := r.devices.Get(ctx, tn, deviceID)
	if err != nil {
		return err
	}
	if d == nil {
		return fmt.Errorf("device %s: %w", deviceID, fault.ErrNotFound)
	}
	if d.Status == DeviceDeactivated {
		return fmt.Errorf("device already deactivated: %w", fault.ErrInvalidState)
	}
	now := time.Now()
	d.Status = DeviceDeactivated
	d.DeactivatedAt = &now
	d.DeactivatedBy = actor
	d.DeactivationReason = reason
	d.BeforeUpdate()
	if err := r.devices.Save(ctx, tn, d); err != nil {
		return fmt.Errorf("cannot deactivate device: %w", err)
	}

	expired, err := r.sessions.ExpireAllActive(ctx, tn, deviceID)
	if err != nil {
		return fmt.Errorf("cannot expire device sessions: %w", err)
	}
	r.logger.Infof("deactivated device %s (by %s), expired %d sessions", deviceID, actor, expired)
	return nil
}

// Delete removes a device record. Refused while orders reference the device;
// suspend instead to keep historical financial records intact.
func (r *Registry) Delete(ctx context.Context, tn tenant.Context, deviceID uuid.UUID) error {
	count, err := r.orders.CountByDevice(ctx, tn, deviceID)
	if err != nil {
		return fmt.Errorf("cannot count device orders: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("device has %d orders, suspend instead of deleting: %w", count, fault.ErrPolicy)
	}
	if err := r.devices.Delete(ctx, tn, deviceID); err != nil {
		return err
	}
	return nil
}

func (r *Registry) Get(ctx context.Context, tn tenant.Context, deviceID uuid.UUID) (*Device, error) {
	d, err := r.devices.Get(ctx, tn, deviceID)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, fmt.Errorf("device %s: %w", deviceID, fault.ErrNotFound)
	}
	return d, nil
}

func (r *Registry) List(ctx context.Context, tn tenant.Context) ([]*Device, error) {
	return r.devices.List(ctx, tn)
}
