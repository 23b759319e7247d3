package kiosk

import (
	"time"

	"github.com/appetiteclub/apt"
	"github.com/google/uuid"
)

type DeviceKind string

const (
	KindTotem       DeviceKind = "totem"
	KindQRTable     DeviceKind = "qr_table"
	KindFixedTablet DeviceKind = "fixed_tablet"
	KindDisplayOnly DeviceKind = "display_only"
)

type DeviceStatus string

const (
	DeviceActive      DeviceStatus = "active"
	DeviceSuspended   DeviceStatus = "suspended"
	DeviceDeactivated DeviceStatus = "deactivated"
)

// PaymentPolicy drives the order routing decision for a device.
type PaymentPolicy struct {
	Allowed       bool       `json:"allowed" bson:"allowed"`
	Required      bool       `json:"required" bson:"required"`
	Methods       []string   `json:"methods,omitempty" bson:"methods,omitempty"`
	POSFallbackID *uuid.UUID `json:"pos_fallback_id,omitempty" bson:"pos_fallback_id,omitempty"`
}

type Theme struct {
	PrimaryColor string `json:"primary_color,omitempty" bson:"primary_color,omitempty"`
	LogoURL      string `json:"logo_url,omitempty" bson:"logo_url,omitempty"`
	Layout       string `json:"layout,omitempty" bson:"layout,omitempty"`
}

// Behavior holds per-device flags the kiosk UI honors.
type Behavior struct {
	IdleTimeoutSec   int      `json:"idle_timeout_sec,omitempty" bson:"idle_timeout_sec,omitempty"`
	ShowComments     bool     `json:"show_comments" bson:"show_comments"`
	ShowAllergens    bool     `json:"show_allergens" bson:"show_allergens"`
	ShowCalories     bool     `json:"show_calories" bson:"show_calories"`
	QRSessionMinutes int      `json:"qr_session_minutes,omitempty" bson:"qr_session_minutes,omitempty"`
	CustomerFields   []string `json:"customer_fields,omitempty" bson:"customer_fields,omitempty"`
}

// Device is one registered ordering terminal. Only the digest of its secret
// is ever persisted; TokenVersion invalidates all previously issued access
// when bumped.
type Device struct {
	ID           uuid.UUID    `json:"id" bson:"_id"`
	Code         string       `json:"code" bson:"code"`
	HardwareID   string       `json:"hardware_id,omitempty" bson:"hardware_id,omitempty"`
	Name         string       `json:"name" bson:"name"`
	SecretHash   string       `json:"-" bson:"secret_hash"`
	TokenVersion int          `json:"-" bson:"token_version"`
	Kind         DeviceKind   `json:"kind" bson:"kind"`
	SalonID      *uuid.UUID   `json:"salon_id,omitempty" bson:"salon_id,omitempty"`
	TableID      *uuid.UUID   `json:"table_id,omitempty" bson:"table_id,omitempty"`
	Payment      PaymentPolicy `json:"payment" bson:"payment"`
	Theme        Theme        `json:"theme" bson:"theme"`
	Behavior     Behavior     `json:"behavior" bson:"behavior"`
	Status       DeviceStatus `json:"status" bson:"status"`
	LastIP       string       `json:"last_ip,omitempty" bson:"last_ip,omitempty"`

	DeactivatedAt      *time.Time `json:"deactivated_at,omitempty" bson:"deactivated_at,omitempty"`
	DeactivatedBy      string     `json:"deactivated_by,omitempty" bson:"deactivated_by,omitempty"`
	DeactivationReason string     `json:"deactivation_reason,omitempty" bson:"deactivation_reason,omitempty"`

	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

func (d *Device) GetID() uuid.UUID {
	return d.ID
}

func (d *Device) ResourceType() string {
	return "device"
}

func (d *Device) EnsureID() {
	if d.ID == uuid.Nil {
		d.ID = apt.GenerateNewID()
	}
}

func (d *Device) BeforeCreate() {
	d.EnsureID()
	d.CreatedAt = time.Now()
	d.UpdatedAt = time.Now()
}

func (d *Device) BeforeUpdate() {
	d.UpdatedAt = time.Now()
}

// Operational reports whether the device may open sessions or place orders.
func (d *Device) Operational() bool {
	return d.Status == DeviceActive
}

// SessionDuration is the QR session lifetime configured for the device,
// falling back to the default when unset.
func (d *Device) SessionDuration() time.Duration {
	if d.Behavior.QRSessionMinutes > 0 {
		return time.Duration(d.Behavior.QRSessionMinutes) * time.Minute
	}
	return DefaultSessionDuration
}

// DefaultSessionDuration applies when a device has no QR duration configured.
const DefaultSessionDuration = 30 * time.Minute
