package event

import "time"

const (
	// OrdersTopic carries kiosk order lifecycle events consumed by
	// displays and reporting.
	OrdersTopic = "kiosk.orders"

	EventOrderPlaced     = "kiosk.order.placed"
	EventOrderConfirmed  = "kiosk.order.confirmed"
	EventOrderDispatched = "kiosk.order.dispatched"
	EventOrderCancelled  = "kiosk.order.cancelled"
)

// OrderEvent announces an order lifecycle change. Informational fan-out
// only: the authoritative write path into the kitchen system is the
// synchronous dispatch call, never this event.
type OrderEvent struct {
	EventType   string    `json:"event_type"`
	OccurredAt  time.Time `json:"occurred_at"`
	TenantID    string    `json:"tenant_id"`
	OrderID     string    `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	DeviceID    string    `json:"device_id"`
	Status      string    `json:"status"`
	Total       float64   `json:"total"`
	PickupCode  string    `json:"pickup_code,omitempty"`
	TableID     string    `json:"table_id,omitempty"`
	POSID       string    `json:"pos_id,omitempty"`
	TicketID    string    `json:"ticket_id,omitempty"`
}
