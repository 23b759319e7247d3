package order

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/apt/events"
	"github.com/google/uuid"

	"github.com/comandaclub/comanda/internal/fault"
	"github.com/comandaclub/comanda/internal/tenant"
	"github.com/comandaclub/comanda/pkg/event"
)

// TicketConsumer advances orders from kitchen ticket events: a ready ticket
// moves its order to ready, a delivered ticket to delivered. The events are
// informational fan-out; a lost or replayed message at worst leaves the
// order for staff to advance by hand.
type TicketConsumer struct {
	subscriber events.Subscriber
	service    *Service
	tenants    tenant.Directory
	logger     apt.Logger
}

func NewTicketConsumer(subscriber events.Subscriber, service *Service, tenants tenant.Directory, logger apt.Logger) *TicketConsumer {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &TicketConsumer{
		subscriber: subscriber,
		service:    service,
		tenants:    tenants,
		logger:     logger,
	}
}

func (c *TicketConsumer) Start(ctx context.Context) error {
	if err := c.subscriber.Subscribe(ctx, event.KitchenTicketsTopic, c.handleEvent); err != nil {
		return fmt.Errorf("cannot subscribe to %s: %w", event.KitchenTicketsTopic, err)
	}
	c.logger.Infof("listening for kitchen ticket events on %s", event.KitchenTicketsTopic)
	return nil
}

func (c *TicketConsumer) handleEvent(ctx context.Context, msg []byte) error {
	var evt event.TicketEvent
	if err := json.Unmarshal(msg, &evt); err != nil {
		c.logger.Errorf("cannot unmarshal ticket event: %v", err)
		return nil
	}

	var to Status
	switch evt.Status {
	case "ready":
		to = StatusReady
	case "delivered":
		to = StatusDelivered
	default:
		return nil
	}

	orderID, err := uuid.Parse(evt.OrderID)
	if err != nil {
		c.logger.Errorf("ticket event carries invalid order id %q", evt.OrderID)
		return nil
	}
	tn, err := c.tenants.Resolve(ctx, evt.TenantID)
	if err != nil {
		return fmt.Errorf("cannot resolve tenant %s: %w", evt.TenantID, err)
	}

	if _, err := c.service.SetState(ctx, tn, orderID, to, ""); err != nil {
		// Replays and out-of-order deliveries surface as state errors; the
		// order already moved on, so there is nothing left to apply.
		if fault.IsInvalidState(err) || fault.IsNotFound(err) {
			c.logger.Infof("skipping ticket event for order %s: %v", orderID, err)
			return nil
		}
		return err
	}
	c.logger.Infof("order %s moved to %s from kitchen ticket %s", orderID, to, evt.TicketID)
	return nil
}
