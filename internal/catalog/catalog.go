package catalog

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/comandaclub/comanda/internal/kiosk"
	"github.com/comandaclub/comanda/internal/tenant"
)

// Product is one sellable item as the device renders it. Prices here are
// display data; the order service recomputes totals from the lines it
// receives, so a stale snapshot can never corrupt an order's amounts.
type Product struct {
	ID          uuid.UUID   `json:"id" bson:"_id"`
	CategoryID  uuid.UUID   `json:"category_id" bson:"category_id"`
	Name        string      `json:"name" bson:"name"`
	Description string      `json:"description,omitempty" bson:"description,omitempty"`
	Price       float64     `json:"price" bson:"price"`
	ImageURL    string      `json:"image_url,omitempty" bson:"image_url,omitempty"`
	Allergens   []string    `json:"allergens,omitempty" bson:"allergens,omitempty"`
	Calories    int         `json:"calories,omitempty" bson:"calories,omitempty"`
	Available   bool        `json:"available" bson:"available"`
	Modifiers   []GroupLink `json:"modifiers,omitempty" bson:"modifiers,omitempty"`
}

// GroupLink attaches a modifier group to a product with its selection rules.
type GroupLink struct {
	GroupID uuid.UUID `json:"group_id" bson:"group_id"`
	Min     int       `json:"min" bson:"min"`
	Max     int       `json:"max" bson:"max"`
}

type ModifierGroup struct {
	ID      uuid.UUID        `json:"id" bson:"_id"`
	Name    string           `json:"name" bson:"name"`
	Options []ModifierOption `json:"options" bson:"options"`
}

type ModifierOption struct {
	ID    uuid.UUID `json:"id" bson:"_id"`
	Name  string    `json:"name" bson:"name"`
	Price float64   `json:"price" bson:"price"`
}

type Category struct {
	ID       uuid.UUID `json:"id" bson:"_id"`
	Name     string    `json:"name" bson:"name"`
	Position int       `json:"position" bson:"position"`
	ImageURL string    `json:"image_url,omitempty" bson:"image_url,omitempty"`
}

// PaymentMethod is a tender the tenant accepts, matched against a device's
// payment policy by code.
type PaymentMethod struct {
	Code string `json:"code" bson:"code"`
	Name string `json:"name" bson:"name"`
}

type Table struct {
	ID      uuid.UUID  `json:"id" bson:"_id"`
	SalonID *uuid.UUID `json:"salon_id,omitempty" bson:"salon_id,omitempty"`
	Name    string     `json:"name" bson:"name"`
	Seats   int        `json:"seats,omitempty" bson:"seats,omitempty"`
}

// Snapshot is the complete bundle a device downloads in one request and
// caches for offline browsing. Version is a monotonically increasing
// watermark bumped whenever the menu side publishes changes.
type Snapshot struct {
	Version        int64           `json:"version" bson:"version"`
	Categories     []Category      `json:"categories" bson:"categories"`
	Products       []Product       `json:"products" bson:"products"`
	Modifiers      []ModifierGroup `json:"modifiers" bson:"modifiers"`
	PaymentMethods []PaymentMethod `json:"payment_methods,omitempty" bson:"payment_methods,omitempty"`
	Tables         []Table         `json:"tables,omitempty" bson:"tables,omitempty"`
	UpdatedAt      time.Time       `json:"updated_at" bson:"updated_at"`
}

// ForDevice trims the published bundle to what the device is configured to
// show. The stored snapshot is shared across requests, so the result is a
// filtered copy, never an in-place edit.
func (s *Snapshot) ForDevice(d *kiosk.Device) *Snapshot {
	out := *s
	if !d.Behavior.ShowAllergens || !d.Behavior.ShowCalories {
		products := make([]Product, len(s.Products))
		copy(products, s.Products)
		for i := range products {
			if !d.Behavior.ShowAllergens {
				products[i].Allergens = nil
			}
			if !d.Behavior.ShowCalories {
				products[i].Calories = 0
			}
		}
		out.Products = products
	}
	out.PaymentMethods = methodsFor(s.PaymentMethods, d.Payment)
	out.Tables = tablesFor(s.Tables, d)
	return &out
}

func methodsFor(methods []PaymentMethod, p kiosk.PaymentPolicy) []PaymentMethod {
	if !p.Allowed {
		return nil
	}
	if len(p.Methods) == 0 {
		return methods
	}
	allowed := make(map[string]bool, len(p.Methods))
	for _, code := range p.Methods {
		allowed[code] = true
	}
	var out []PaymentMethod
	for _, m := range methods {
		if allowed[m.Code] {
			out = append(out, m)
		}
	}
	return out
}

func tablesFor(tables []Table, d *kiosk.Device) []Table {
	if d.TableID != nil {
		for _, t := range tables {
			if t.ID == *d.TableID {
				return []Table{t}
			}
		}
		return nil
	}
	if d.SalonID == nil {
		return tables
	}
	var out []Table
	for _, t := range tables {
		if t.SalonID != nil && *t.SalonID == *d.SalonID {
			out = append(out, t)
		}
	}
	return out
}

// Reader serves the latest published snapshot for a tenant. Nil with no
// error means nothing has been published yet.
type Reader interface {
	Latest(ctx context.Context, tn tenant.Context) (*Snapshot, error)
}
