package order

import (
	"fmt"
	"math"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/google/uuid"

	"github.com/comandaclub/comanda/internal/fault"
	"github.com/comandaclub/comanda/internal/session"
)

type Status string

const (
	StatusPendingPayment    Status = "pending_payment"
	StatusPendingValidation Status = "pending_validation"
	StatusConfirmed         Status = "confirmed"
	StatusInPreparation     Status = "in_preparation"
	StatusReady             Status = "ready"
	StatusDelivered         Status = "delivered"
	StatusCancelled         Status = "cancelled"
)

type LineKind string

const (
	LineProduct LineKind = "product"
)

type Modifier struct {
	ModifierID uuid.UUID `json:"modifier_id" bson:"modifier_id"`
	Name       string    `json:"name" bson:"name"`
	Quantity   int       `json:"quantity" bson:"quantity"`
	Price      float64   `json:"price" bson:"price"`
}

type Line struct {
	Kind      LineKind   `json:"kind" bson:"kind"`
	ProductID uuid.UUID  `json:"product_id" bson:"product_id"`
	Name      string     `json:"name" bson:"name"`
	Quantity  int        `json:"quantity" bson:"quantity"`
	UnitPrice float64    `json:"unit_price" bson:"unit_price"`
	Modifiers []Modifier `json:"modifiers,omitempty" bson:"modifiers,omitempty"`
	Comment   string     `json:"comment,omitempty" bson:"comment,omitempty"`
}

// Order is the immutable snapshot produced from a cart, with its own
// lifecycle independent of the session that created it.
type Order struct {
	ID         uuid.UUID  `json:"id" bson:"_id"`
	Number     string     `json:"number" bson:"number"`
	PickupCode string     `json:"pickup_code,omitempty" bson:"pickup_code,omitempty"`
	DeviceID   uuid.UUID  `json:"device_id" bson:"device_id"`
	SalonID    *uuid.UUID `json:"salon_id,omitempty" bson:"salon_id,omitempty"`
	TableID    *uuid.UUID `json:"table_id,omitempty" bson:"table_id,omitempty"`
	SessionID  *uuid.UUID `json:"session_id,omitempty" bson:"session_id,omitempty"`

	ServiceType session.ServiceType   `json:"service_type,omitempty" bson:"service_type,omitempty"`
	Customer    *session.CustomerInfo `json:"customer,omitempty" bson:"customer,omitempty"`

	Lines    []Line  `json:"lines" bson:"lines"`
	Subtotal float64 `json:"subtotal" bson:"subtotal"`
	Tax      float64 `json:"tax" bson:"tax"`
	Total    float64 `json:"total" bson:"total"`

	Paid          bool       `json:"paid" bson:"paid"`
	PaymentMethod string     `json:"payment_method,omitempty" bson:"payment_method,omitempty"`
	PaymentRef    string     `json:"payment_ref,omitempty" bson:"payment_ref,omitempty"`
	PaidAt        *time.Time `json:"paid_at,omitempty" bson:"paid_at,omitempty"`

	// POSID is set when the routing decision hands the order to a staffed
	// terminal for validation.
	POSID     *uuid.UUID  `json:"pos_id,omitempty" bson:"pos_id,omitempty"`
	TicketIDs []uuid.UUID `json:"ticket_ids,omitempty" bson:"ticket_ids,omitempty"`

	Status        Status     `json:"status" bson:"status"`
	ConfirmedAt   *time.Time `json:"confirmed_at,omitempty" bson:"confirmed_at,omitempty"`
	PreparingAt   *time.Time `json:"preparing_at,omitempty" bson:"preparing_at,omitempty"`
	ReadyAt       *time.Time `json:"ready_at,omitempty" bson:"ready_at,omitempty"`
	DeliveredAt   *time.Time `json:"delivered_at,omitempty" bson:"delivered_at,omitempty"`
	CancelledAt   *time.Time `json:"cancelled_at,omitempty" bson:"cancelled_at,omitempty"`
	CancelReason  string     `json:"cancel_reason,omitempty" bson:"cancel_reason,omitempty"`

	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

func (o *Order) GetID() uuid.UUID {
	return o.ID
}

func (o *Order) ResourceType() string {
	return "order"
}

func (o *Order) EnsureID() {
	if o.ID == uuid.Nil {
		o.ID = apt.GenerateNewID()
	}
}

func (o *Order) BeforeCreate() {
	o.EnsureID()
	o.CreatedAt = time.Now()
	o.UpdatedAt = time.Now()
}

func (o *Order) BeforeUpdate() {
	o.UpdatedAt = time.Now()
}

// ComputeTotals derives the authoritative amounts from the lines:
// subtotal = Σ qty*(unitPrice + Σ modQty*modPrice), tax = subtotal*rate,
// total = subtotal + tax. Client-sent totals are never trusted. The rate is
// a single flat rate applied to the whole order.
func ComputeTotals(lines []Line, taxRate float64) (subtotal, tax, total float64, err error) {
	if len(lines) == 0 {
		return 0, 0, 0, fmt.Errorf("order has no lines: %w", fault.ErrPolicy)
	}
	for _, l := range lines {
		if l.Kind != LineProduct {
			return 0, 0, 0, fmt.Errorf("unsupported line kind %q: %w", l.Kind, fault.ErrPolicy)
		}
		if l.Quantity <= 0 {
			return 0, 0, 0, fmt.Errorf("line quantity must be positive: %w", fault.ErrPolicy)
		}
		unit := l.UnitPrice
		for _, m := range l.Modifiers {
			unit += m.Price * float64(m.Quantity)
		}
		subtotal += float64(l.Quantity) * unit
	}
	subtotal = round2(subtotal)
	tax = round2(subtotal * taxRate)
	total = round2(subtotal + tax)
	return subtotal, tax, total, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
