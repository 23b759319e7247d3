package session

import (
	"math"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/google/uuid"
)

type State string

const (
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateExpired   State = "expired"
	StateAbandoned State = "abandoned"
)

type ServiceType string

const (
	DineIn   ServiceType = "dine_in"
	Takeaway ServiceType = "takeaway"
)

type LineKind string

const (
	// LineProduct is the only kind kiosks submit today; service and kit
	// lines reuse the same envelope later.
	LineProduct LineKind = "product"
)

type CartModifier struct {
	ModifierID uuid.UUID `json:"modifier_id" bson:"modifier_id"`
	Name       string    `json:"name" bson:"name"`
	Quantity   int       `json:"quantity" bson:"quantity"`
	Price      float64   `json:"price" bson:"price"`
}

type CartLine struct {
	Kind      LineKind       `json:"kind" bson:"kind"`
	ProductID uuid.UUID      `json:"product_id" bson:"product_id"`
	Name      string         `json:"name" bson:"name"`
	Quantity  int            `json:"quantity" bson:"quantity"`
	UnitPrice float64        `json:"unit_price" bson:"unit_price"`
	Modifiers []CartModifier `json:"modifiers,omitempty" bson:"modifiers,omitempty"`
	Comment   string         `json:"comment,omitempty" bson:"comment,omitempty"`
}

type Cart struct {
	Lines     []CartLine `json:"lines" bson:"lines"`
	Subtotal  float64    `json:"subtotal" bson:"subtotal"`
	Tax       float64    `json:"tax" bson:"tax"`
	Total     float64    `json:"total" bson:"total"`
	UpdatedAt time.Time  `json:"updated_at" bson:"updated_at"`
}

// Recalculate derives totals from the lines. Client-sent monetary fields are
// never trusted; this runs on every cart replacement.
func (c *Cart) Recalculate(taxRate float64) {
	subtotal := 0.0
	for _, l := range c.Lines {
		lineUnit := l.UnitPrice
		for _, m := range l.Modifiers {
			lineUnit += m.Price * float64(m.Quantity)
		}
		subtotal += float64(l.Quantity) * lineUnit
	}
	c.Subtotal = round2(subtotal)
	c.Tax = round2(c.Subtotal * taxRate)
	c.Total = round2(c.Subtotal + c.Tax)
	c.UpdatedAt = time.Now()
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

type CustomerInfo struct {
	Name  string `json:"name,omitempty" bson:"name,omitempty"`
	Phone string `json:"phone,omitempty" bson:"phone,omitempty"`
	Email string `json:"email,omitempty" bson:"email,omitempty"`
}

// Session is one QR/table-scoped shopping-cart context. Expiry is an
// absolute deadline; a session in any terminal state is immutable.
type Session struct {
	ID             uuid.UUID     `json:"id" bson:"_id"`
	Token          string        `json:"token" bson:"token"`
	DeviceID       uuid.UUID     `json:"device_id" bson:"device_id"`
	SalonID        *uuid.UUID    `json:"salon_id,omitempty" bson:"salon_id,omitempty"`
	TableID        *uuid.UUID    `json:"table_id,omitempty" bson:"table_id,omitempty"`
	ServiceType    ServiceType   `json:"service_type,omitempty" bson:"service_type,omitempty"`
	Cart           Cart          `json:"cart" bson:"cart"`
	Customer       *CustomerInfo `json:"customer,omitempty" bson:"customer,omitempty"`
	State          State         `json:"state" bson:"state"`
	ExpiresAt      time.Time     `json:"expires_at" bson:"expires_at"`
	LastActivityAt time.Time     `json:"last_activity_at" bson:"last_activity_at"`
	OrderID        *uuid.UUID    `json:"order_id,omitempty" bson:"order_id,omitempty"`
	CreatedAt      time.Time     `json:"created_at" bson:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at" bson:"updated_at"`
}

func (s *Session) GetID() uuid.UUID {
	return s.ID
}

func (s *Session) ResourceType() string {
	return "session"
}

func (s *Session) EnsureID() {
	if s.ID == uuid.Nil {
		s.ID = apt.GenerateNewID()
	}
}

func (s *Session) BeforeCreate() {
	s.EnsureID()
	s.CreatedAt = time.Now()
	s.UpdatedAt = time.Now()
}

func (s *Session) BeforeUpdate() {
	s.UpdatedAt = time.Now()
}

func (s *Session) Terminal() bool {
	return s.State == StateCompleted || s.State == StateExpired || s.State == StateAbandoned
}

// PastExpiry treats the deadline itself as already expired.
func (s *Session) PastExpiry(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
