package order

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/appetiteclub/apt/events"
	"github.com/google/uuid"

	"github.com/comandaclub/comanda/internal/fault"
	"github.com/comandaclub/comanda/internal/tenant"
	"github.com/comandaclub/comanda/pkg/event"
)

// MockSubscriber captures the registered handler so tests can feed it
// messages directly.
type MockSubscriber struct {
	Topic   string
	Handler events.HandlerFunc
}

func (m *MockSubscriber) Subscribe(ctx context.Context, topic string, handler events.HandlerFunc) error {
	m.Topic = topic
	m.Handler = handler
	return nil
}

type MockTenantDirectory struct{}

func (MockTenantDirectory) Resolve(ctx context.Context, tenantID string) (tenant.Context, error) {
	if tenantID != "demo" {
		return tenant.Context{}, fmt.Errorf("tenant %s: %w", tenantID, fault.ErrNotFound)
	}
	return tenant.Context{ID: "demo", Database: "comanda_demo"}, nil
}

func ticketPayload(t *testing.T, orderID uuid.UUID, tenantID, status string) []byte {
	t.Helper()
	payload, err := json.Marshal(event.TicketEvent{
		EventType: event.EventTicketReady,
		TenantID:  tenantID,
		TicketID:  uuid.NewString(),
		OrderID:   orderID.String(),
		Status:    status,
	})
	if err != nil {
		t.Fatalf("cannot marshal ticket event: %v", err)
	}
	return payload
}

func TestTicketConsumerAdvancesOrder(t *testing.T) {
	f := newTestService(0)
	tn := testTenant()

	o, err := f.service.Place(context.Background(), tn, PlaceInput{
		DeviceID: f.device.ID,
		Secret:   "good",
		Lines:    []Line{{Kind: LineProduct, Name: "Burger", Quantity: 1, UnitPrice: 10}},
		Payment:  &PaymentInfo{Method: "card", Ref: "tx-1"},
	})
	if err != nil {
		t.Fatalf("Place() error = %v", err)
	}
	if o.Status != StatusInPreparation {
		t.Fatalf("status = %q, want %q", o.Status, StatusInPreparation)
	}

	sub := &MockSubscriber{}
	consumer := NewTicketConsumer(sub, f.service, MockTenantDirectory{}, nil)
	if err := consumer.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if sub.Topic != event.KitchenTicketsTopic {
		t.Errorf("topic = %q, want %q", sub.Topic, event.KitchenTicketsTopic)
	}

	if err := sub.Handler(context.Background(), ticketPayload(t, o.ID, "demo", "ready")); err != nil {
		t.Fatalf("handler error = %v", err)
	}
	if got := f.orders.stored(o.ID); got.Status != StatusReady {
		t.Errorf("status = %q, want %q", got.Status, StatusReady)
	}

	if err := sub.Handler(context.Background(), ticketPayload(t, o.ID, "demo", "delivered")); err != nil {
		t.Fatalf("handler error = %v", err)
	}
	if got := f.orders.stored(o.ID); got.Status != StatusDelivered {
		t.Errorf("status = %q, want %q", got.Status, StatusDelivered)
	}

	// A replayed ready event arrives after the order moved on; it is dropped
	// without disturbing the final state.
	if err := sub.Handler(context.Background(), ticketPayload(t, o.ID, "demo", "ready")); err != nil {
		t.Fatalf("replay handler error = %v", err)
	}
	if got := f.orders.stored(o.ID); got.Status != StatusDelivered {
		t.Errorf("status after replay = %q, want %q", got.Status, StatusDelivered)
	}
}

func TestTicketConsumerIgnoresNoise(t *testing.T) {
	f := newTestService(0)

	sub := &MockSubscriber{}
	consumer := NewTicketConsumer(sub, f.service, MockTenantDirectory{}, nil)
	if err := consumer.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if err := sub.Handler(context.Background(), []byte("not json")); err != nil {
		t.Errorf("malformed payload error = %v, want nil", err)
	}
	if err := sub.Handler(context.Background(), ticketPayload(t, uuid.New(), "demo", "plating")); err != nil {
		t.Errorf("unmapped status error = %v, want nil", err)
	}
	if err := sub.Handler(context.Background(), ticketPayload(t, uuid.New(), "ghost", "ready")); err == nil {
		t.Error("unknown tenant should surface an error for redelivery")
	}
}
