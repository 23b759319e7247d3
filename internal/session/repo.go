package session

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/comandaclub/comanda/internal/tenant"
)

type SessionRepo interface {
	Create(ctx context.Context, tn tenant.Context, s *Session) error
	// GetByToken returns the session regardless of state, or nil when no
	// record exists.
	GetByToken(ctx context.Context, tn tenant.Context, token string) (*Session, error)
	// ActiveTokenExists reports a live collision: some currently-active
	// session already holds the token. Stale tokens may be reused.
	ActiveTokenExists(ctx context.Context, tn tenant.Context, token string) (bool, error)
	// Save writes the session back only while the stored record is still
	// active. A writer holding a stale snapshot cannot flip a terminal
	// session back to active.
	Save(ctx context.Context, tn tenant.Context, s *Session) error
	// Complete atomically moves an active session to completed, recording
	// the resulting order. Returns nil when the session was not active.
	Complete(ctx context.Context, tn tenant.Context, token string, orderID uuid.UUID, at time.Time) (*Session, error)
	// MarkExpired flips a session to expired; used by the lazy read-side
	// expiry so the record stays queryable for audit.
	MarkExpired(ctx context.Context, tn tenant.Context, id uuid.UUID) error
	// ExpireAllActive rewrites every active session of a device to expired.
	// Device deactivation and secret rotation cascade through this.
	ExpireAllActive(ctx context.Context, tn tenant.Context, deviceID uuid.UUID) (int64, error)
}
