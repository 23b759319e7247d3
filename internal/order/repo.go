package order

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/comandaclub/comanda/internal/tenant"
)

type OrderRepo interface {
	Create(ctx context.Context, tn tenant.Context, o *Order) error
	// Get returns nil when no order exists.
	Get(ctx context.Context, tn tenant.Context, id uuid.UUID) (*Order, error)
	// ClaimTransition atomically moves the order to `to`, provided its
	// current status is one of `from`, stamping the matching timestamp
	// field (and the cancellation reason when cancelling). Returns the
	// updated order, or nil when the condition did not match.
	ClaimTransition(ctx context.Context, tn tenant.Context, id uuid.UUID, from []Status, to Status, at time.Time, reason string) (*Order, error)
	// RevertStatus undoes a claimed transition after a failed dispatch so
	// the order stays in its prior, still-actionable state.
	RevertStatus(ctx context.Context, tn tenant.Context, id uuid.UUID, from, to Status) error
	// MarkPaid atomically records payment and forces the order to
	// confirmed, provided it is unpaid and not in a terminal state.
	// Returns nil when the condition did not match.
	MarkPaid(ctx context.Context, tn tenant.Context, id uuid.UUID, method, ref string, at time.Time) (*Order, error)
	AppendTicket(ctx context.Context, tn tenant.Context, id uuid.UUID, ticketID uuid.UUID) error
	// PendingForPOS lists pending_validation orders destined for the given
	// staffed terminal, oldest first.
	PendingForPOS(ctx context.Context, tn tenant.Context, posID uuid.UUID) ([]*Order, error)
	ListByDevice(ctx context.Context, tn tenant.Context, deviceID uuid.UUID, limit int) ([]*Order, error)
	CountByDevice(ctx context.Context, tn tenant.Context, deviceID uuid.UUID) (int64, error)
	// NextNumber increments and returns the per-day order counter used for
	// human order numbers.
	NextNumber(ctx context.Context, tn tenant.Context, day string) (int64, error)
}
