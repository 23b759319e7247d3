package kiosk

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/comandaclub/comanda/internal/tenant"
)

type DeviceRepo interface {
	Create(ctx context.Context, tn tenant.Context, d *Device) error
	Get(ctx context.Context, tn tenant.Context, id uuid.UUID) (*Device, error)
	List(ctx context.Context, tn tenant.Context) ([]*Device, error)
	// Save writes the device back unless the stored record is already
	// deactivated. Deactivation is terminal; stale snapshots from racing
	// writers must not resurrect a retired device.
	Save(ctx context.Context, tn tenant.Context, d *Device) error
	// Delete removes the record, reporting not-found when nothing matched.
	Delete(ctx context.Context, tn tenant.Context, id uuid.UUID) error
}

type ActivationTokenRepo interface {
	Create(ctx context.Context, tn tenant.Context, t *ActivationToken) error
	// ExpireUnused invalidates every unused token for the device so at most
	// one live token exists at a time.
	ExpireUnused(ctx context.Context, tn tenant.Context, deviceID uuid.UUID) error
	// UnusedCodeExists reports whether an unused token with the given code
	// digest exists, regardless of owner.
	UnusedCodeExists(ctx context.Context, tn tenant.Context, codeHash string) (bool, error)
	// FindUnused resolves a live token by code digest without consuming it.
	FindUnused(ctx context.Context, tn tenant.Context, codeHash string, at time.Time) (*ActivationToken, error)
	// Consume atomically marks the token matching codeHash as used, provided
	// it is unused and not past expiry. Returns nil when no token matched.
	Consume(ctx context.Context, tn tenant.Context, codeHash string, at time.Time, fromIP string) (*ActivationToken, error)
	// DeleteExpiredBefore reclaims tokens whose expiry predates cutoff.
	DeleteExpiredBefore(ctx context.Context, tn tenant.Context, cutoff time.Time) (int64, error)
}

// SessionExpirer force-expires every active session of a device. Implemented
// by the session store; used for deactivation and secret-rotation cascades.
type SessionExpirer interface {
	ExpireAllActive(ctx context.Context, tn tenant.Context, deviceID uuid.UUID) (int64, error)
}

// OrderCounter guards device deletion against orphaning financial records.
type OrderCounter interface {
	CountByDevice(ctx context.Context, tn tenant.Context, deviceID uuid.UUID) (int64, error)
}
