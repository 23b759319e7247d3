package kiosk

import (
	"time"

	"github.com/appetiteclub/apt"
	"github.com/google/uuid"
)

// ActivationTokenTTL bounds the provisioning window.
const ActivationTokenTTL = 24 * time.Hour

// ActivationToken binds a registry entry to a physical device during
// provisioning. Single-use: validation and consumption are the same
// transition. Only the code's digest is persisted.
type ActivationToken struct {
	ID         uuid.UUID  `json:"id" bson:"_id"`
	DeviceID   uuid.UUID  `json:"device_id" bson:"device_id"`
	CodeHash   string     `json:"-" bson:"code_hash"`
	IssuedBy   string     `json:"issued_by" bson:"issued_by"`
	Used       bool       `json:"used" bson:"used"`
	UsedAt     *time.Time `json:"used_at,omitempty" bson:"used_at,omitempty"`
	UsedFromIP string     `json:"used_from_ip,omitempty" bson:"used_from_ip,omitempty"`
	ExpiresAt  time.Time  `json:"expires_at" bson:"expires_at"`
	CreatedAt  time.Time  `json:"created_at" bson:"created_at"`
}

func (t *ActivationToken) GetID() uuid.UUID {
	return t.ID
}

func (t *ActivationToken) ResourceType() string {
	return "activation-token"
}

func (t *ActivationToken) EnsureID() {
	if t.ID == uuid.Nil {
		t.ID = apt.GenerateNewID()
	}
}

func (t *ActivationToken) BeforeCreate() {
	t.EnsureID()
	t.CreatedAt = time.Now()
}
