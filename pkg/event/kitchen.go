package event

import "time"

// KitchenTicketsTopic carries ticket lifecycle events published by the
// kitchen system as staff work through preparation.
const (
	KitchenTicketsTopic = "kitchen.tickets"

	EventTicketReady     = "kitchen.ticket.ready"
	EventTicketDelivered = "kitchen.ticket.delivered"
)

// TicketEvent announces a kitchen ticket status change. Status carries the
// ticket's new state; consumers map it onto their own lifecycle.
type TicketEvent struct {
	EventType  string    `json:"event_type"`
	OccurredAt time.Time `json:"occurred_at"`
	TenantID   string    `json:"tenant_id"`
	TicketID   string    `json:"ticket_id"`
	OrderID    string    `json:"order_id"`
	Status     string    `json:"status"`
}
