package order

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/apt/events"
	"github.com/google/uuid"

	"github.com/comandaclub/comanda/internal/fault"
	"github.com/comandaclub/comanda/internal/kiosk"
	"github.com/comandaclub/comanda/internal/kitchen"
	"github.com/comandaclub/comanda/internal/metrics"
	"github.com/comandaclub/comanda/internal/session"
	"github.com/comandaclub/comanda/internal/tenant"
	"github.com/comandaclub/comanda/internal/token"
	"github.com/comandaclub/comanda/pkg/event"
)

// DeviceResolver is the slice of the device registry the order service uses.
type DeviceResolver interface {
	VerifyCredentials(ctx context.Context, tn tenant.Context, deviceID uuid.UUID, secret string) (*kiosk.Device, error)
	Get(ctx context.Context, tn tenant.Context, deviceID uuid.UUID) (*kiosk.Device, error)
}

// SessionSource resolves and finalizes the session an order originates from.
type SessionSource interface {
	Get(ctx context.Context, tn tenant.Context, token string) (*session.Session, error)
	Complete(ctx context.Context, tn tenant.Context, token string, orderID uuid.UUID) (*session.Session, error)
}

type ServiceDeps struct {
	Orders    OrderRepo
	Devices   DeviceResolver
	Sessions  SessionSource
	Kitchen   kitchen.TicketCreator
	Publisher events.Publisher
}

// Service owns the order state machine and the only write path into the
// kitchen system. Stateless; every call carries its tenant context.
type Service struct {
	orders    OrderRepo
	devices   DeviceResolver
	sessions  SessionSource
	kitchen   kitchen.TicketCreator
	publisher events.Publisher
	taxRate   float64
	logger    apt.Logger
}

func NewService(deps ServiceDeps, taxRate float64, logger apt.Logger) *Service {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &Service{
		orders:    deps.Orders,
		devices:   deps.Devices,
		sessions:  deps.Sessions,
		kitchen:   deps.Kitchen,
		publisher: deps.Publisher,
		taxRate:   taxRate,
		logger:    logger,
	}
}

type PaymentInfo struct {
	Method string
	Ref    string
}

type PlaceInput struct {
	DeviceID uuid.UUID
	// Secret authenticates the device unless the call arrives through an
	// already-verified parent context (PreAuthed).
	Secret       string
	PreAuthed    bool
	SessionToken string
	Lines        []Line
	ServiceType  session.ServiceType
	Customer     *session.CustomerInfo
	Payment      *PaymentInfo
}

// Place creates an immutable order snapshot, applies the routing decision
// and, when the order lands confirmed, dispatches it to the kitchen
// synchronously. On dispatch failure the order is returned alongside the
// error, still confirmed and still actionable.
func (s *Service) Place(ctx context.Context, tn tenant.Context, in PlaceInput) (*Order, error) {
	var d *kiosk.Device
	var err error
	if in.PreAuthed {
		d, err = s.devices.Get(ctx, tn, in.DeviceID)
		if err != nil {
			return nil, err
		}
		if !d.Operational() {
			return nil, fmt.Errorf("device is %s: %w", d.Status, fault.ErrInvalidState)
		}
	} else {
		d, err = s.devices.VerifyCredentials(ctx, tn, in.DeviceID, in.Secret)
		if err != nil {
			return nil, err
		}
	}

	o := &Order{
		DeviceID:    d.ID,
		SalonID:     d.SalonID,
		TableID:     d.TableID,
		ServiceType: in.ServiceType,
		Customer:    in.Customer,
		Lines:       in.Lines,
	}
	o.BeforeCreate()

	var sess *session.Session
	if in.SessionToken != "" {
		sess, err = s.sessions.Get(ctx, tn, in.SessionToken)
		if err != nil {
			return nil, err
		}
		if sess.DeviceID != d.ID {
			return nil, fmt.Errorf("session belongs to another device: %w", fault.ErrInvalidCredentials)
		}
		o.SessionID = &sess.ID
		if sess.TableID != nil {
			o.TableID = sess.TableID
		}
		if sess.SalonID != nil {
			o.SalonID = sess.SalonID
		}
		if o.Customer == nil {
			o.Customer = sess.Customer
		}
		if o.ServiceType == "" {
			o.ServiceType = sess.ServiceType
		}
	}

	o.Subtotal, o.Tax, o.Total, err = ComputeTotals(in.Lines, s.taxRate)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	switch {
	case in.Payment != nil:
		o.Paid = true
		o.PaymentMethod = in.Payment.Method
		o.PaymentRef = in.Payment.Ref
		o.PaidAt = &now
		o.Status = StatusConfirmed
		o.ConfirmedAt = &now
	case d.Payment.Required:
		o.Status = StatusPendingPayment
	case d.Payment.POSFallbackID != nil:
		o.Status = StatusPendingValidation
		o.POSID = d.Payment.POSFallbackID
	default:
		o.Status = StatusConfirmed
		o.ConfirmedAt = &now
	}

	seq, err := s.orders.NextNumber(ctx, tn, now.Format("20060102"))
	if err != nil {
		return nil, fmt.Errorf("cannot allocate order number: %w", err)
	}
	o.Number = fmt.Sprintf("K%s-%04d", now.Format("0102"), seq)
	o.PickupCode, err = token.NewPickupCode()
	if err != nil {
		return nil, err
	}

	// Completing the session before inserting the order means a session can
	// never yield two orders; the reverse window would allow it.
	if sess != nil {
		if _, err := s.sessions.Complete(ctx, tn, in.SessionToken, o.ID); err != nil {
			return nil, err
		}
	}

	if err := s.orders.Create(ctx, tn, o); err != nil {
		return nil, fmt.Errorf("cannot create order: %w", err)
	}

	metrics.OrdersPlaced.WithLabelValues(string(o.Status)).Inc()
	s.publish(ctx, tn, event.EventOrderPlaced, o, uuid.Nil)

	if o.Status == StatusConfirmed {
		if err := s.dispatch(ctx, tn, o); err != nil {
			return o, err
		}
	}
	return o, nil
}

// RegisterPayment records payment atomically, forces the order to confirmed
// and dispatches it. A lost race (already paid, already cancelled) surfaces
// as invalid state, never a double dispatch.
func (s *Service) RegisterPayment(ctx context.Context, tn tenant.Context, orderID uuid.UUID, method, ref string) (*Order, error) {
	o, err := s.orders.MarkPaid(ctx, tn, orderID, method, ref, time.Now())
	if err != nil {
		return nil, fmt.Errorf("cannot register payment: %w", err)
	}
	if o == nil {
		existing, err := s.orders.Get(ctx, tn, orderID)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, fmt.Errorf("order %s: %w", orderID, fault.ErrNotFound)
		}
		return nil, fmt.Errorf("order is %s (paid=%v): %w", existing.Status, existing.Paid, fault.ErrInvalidState)
	}

	s.publish(ctx, tn, event.EventOrderConfirmed, o, uuid.Nil)
	if err := s.dispatch(ctx, tn, o); err != nil {
		return o, err
	}
	return o, nil
}

// SetState applies a requested transition, stamping the matching timestamp.
// Cancelling requires a reason. Transitions into confirmed dispatch the
// order as part of the same logical step.
func (s *Service) SetState(ctx context.Context, tn tenant.Context, orderID uuid.UUID, to Status, reason string) (*Order, error) {
	if to == StatusCancelled && strings.TrimSpace(reason) == "" {
		return nil, fmt.Errorf("cancellation requires a reason: %w", fault.ErrPolicy)
	}

	current, err := s.orders.Get(ctx, tn, orderID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, fmt.Errorf("order %s: %w", orderID, fault.ErrNotFound)
	}
	if !ValidTransition(current.Status, to) {
		return nil, fmt.Errorf("cannot move order from %s to %s: %w", current.Status, to, fault.ErrInvalidState)
	}

	// Moving into in_preparation is the kitchen hand-off itself; route it
	// through dispatch so the ticket is created under the same claim. This
	// is also the retry path after a failed dispatch.
	if to == StatusInPreparation {
		if err := s.dispatch(ctx, tn, current); err != nil {
			return nil, err
		}
		return current, nil
	}

	o, err := s.orders.ClaimTransition(ctx, tn, orderID, []Status{current.Status}, to, time.Now(), reason)
	if err != nil {
		return nil, fmt.Errorf("cannot transition order: %w", err)
	}
	if o == nil {
		// Lost the race to a concurrent transition.
		return nil, fmt.Errorf("order state changed concurrently: %w", fault.ErrInvalidState)
	}

	if to == StatusCancelled {
		s.publish(ctx, tn, event.EventOrderCancelled, o, uuid.Nil)
		return o, nil
	}
	if to == StatusConfirmed {
		s.publish(ctx, tn, event.EventOrderConfirmed, o, uuid.Nil)
		if err := s.dispatch(ctx, tn, o); err != nil {
			return o, err
		}
	}
	return o, nil
}

func (s *Service) Get(ctx context.Context, tn tenant.Context, orderID uuid.UUID) (*Order, error) {
	o, err := s.orders.Get(ctx, tn, orderID)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, fmt.Errorf("order %s: %w", orderID, fault.ErrNotFound)
	}
	return o, nil
}

// PendingForPOS lists pending_validation orders destined for a staffed
// terminal, oldest first. POS-side polling consumes this.
func (s *Service) PendingForPOS(ctx context.Context, tn tenant.Context, posID uuid.UUID) ([]*Order, error) {
	return s.orders.PendingForPOS(ctx, tn, posID)
}

// dispatch creates exactly one kitchen ticket per confirmation. The claim to
// in_preparation is atomic, so concurrent confirmers cannot both create a
// ticket; a failed kitchen call reverts the claim and leaves the order
// confirmed with the failure surfaced.
func (s *Service) dispatch(ctx context.Context, tn tenant.Context, o *Order) error {
	claimed, err := s.orders.ClaimTransition(ctx, tn, o.ID, []Status{StatusConfirmed}, StatusInPreparation, time.Now(), "")
	if err != nil {
		return fmt.Errorf("cannot claim dispatch: %w", err)
	}
	if claimed == nil {
		return fmt.Errorf("order is no longer confirmed: %w", fault.ErrInvalidState)
	}

	ticketID, err := s.kitchen.CreateTicket(ctx, tn, buildTicket(o))
	if err != nil {
		metrics.DispatchFailures.Inc()
		if revertErr := s.orders.RevertStatus(ctx, tn, o.ID, StatusInPreparation, StatusConfirmed); revertErr != nil {
			s.logger.Errorf("cannot revert order %s after failed dispatch: %v", o.ID, revertErr)
		}
		return fmt.Errorf("kitchen dispatch failed for order %s: %w", o.ID, err)
	}

	if err := s.orders.AppendTicket(ctx, tn, o.ID, ticketID); err != nil {
		return fmt.Errorf("cannot record kitchen ticket: %w", err)
	}

	o.Status = StatusInPreparation
	o.TicketIDs = append(o.TicketIDs, ticketID)
	metrics.TicketsDispatched.Inc()
	s.publish(ctx, tn, event.EventOrderDispatched, o, ticketID)
	s.logger.Infof("order %s dispatched to kitchen, ticket %s", o.ID, ticketID)
	return nil
}

// buildTicket flattens order lines into display strings for the kitchen.
func buildTicket(o *Order) kitchen.TicketRequest {
	req := kitchen.TicketRequest{
		OrderID:     o.ID,
		OrderNumber: o.Number,
		PickupCode:  o.PickupCode,
		Origin:      "kiosk",
	}
	if o.TableID != nil {
		req.TableRef = o.TableID.String()
	}
	for _, l := range o.Lines {
		name := l.Name
		if len(l.Modifiers) > 0 {
			parts := make([]string, 0, len(l.Modifiers))
			for _, m := range l.Modifiers {
				if m.Quantity > 1 {
					parts = append(parts, fmt.Sprintf("%dx %s", m.Quantity, m.Name))
				} else {
					parts = append(parts, m.Name)
				}
			}
			name = fmt.Sprintf("%s (%s)", name, strings.Join(parts, ", "))
		}
		req.Lines = append(req.Lines, kitchen.TicketLine{
			Name:     name,
			Quantity: l.Quantity,
			Comment:  l.Comment,
		})
	}
	return req
}

func (s *Service) publish(ctx context.Context, tn tenant.Context, eventType string, o *Order, ticketID uuid.UUID) {
	if s.publisher == nil {
		return
	}
	ev := event.OrderEvent{
		EventType:   eventType,
		OccurredAt:  time.Now(),
		TenantID:    tn.ID,
		OrderID:     o.ID.String(),
		OrderNumber: o.Number,
		DeviceID:    o.DeviceID.String(),
		Status:      string(o.Status),
		Total:       o.Total,
		PickupCode:  o.PickupCode,
	}
	if o.TableID != nil {
		ev.TableID = o.TableID.String()
	}
	if o.POSID != nil {
		ev.POSID = o.POSID.String()
	}
	if ticketID != uuid.Nil {
		ev.TicketID = ticketID.String()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		s.logger.Errorf("cannot marshal order event: %v", err)
		return
	}
	if err := s.publisher.Publish(ctx, event.OrdersTopic, payload); err != nil {
		s.logger.Errorf("cannot publish %s for order %s: %v", eventType, o.ID, err)
	}
}
