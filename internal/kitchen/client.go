package kitchen

import (
	"context"
	"fmt"

	"github.com/appetiteclub/apt"
	"github.com/google/uuid"

	"github.com/comandaclub/comanda/internal/fault"
	"github.com/comandaclub/comanda/internal/tenant"
)

type TicketLine struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Comment  string `json:"comment,omitempty"`
}

type TicketRequest struct {
	OrderID     uuid.UUID    `json:"order_id"`
	OrderNumber string       `json:"order_number"`
	PickupCode  string       `json:"pickup_code,omitempty"`
	TableRef    string       `json:"table_ref,omitempty"`
	Origin      string       `json:"origin"`
	Notes       string       `json:"notes,omitempty"`
	Lines       []TicketLine `json:"lines"`
}

// TicketCreator is the only write path into the kitchen-display system.
type TicketCreator interface {
	CreateTicket(ctx context.Context, tn tenant.Context, req TicketRequest) (uuid.UUID, error)
}

// Client talks to the kitchen service over HTTP.
type Client struct {
	client *apt.ServiceClient
	logger apt.Logger
}

func NewClient(kitchenURL string, logger apt.Logger) *Client {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &Client{
		client: apt.NewServiceClient(kitchenURL),
		logger: logger,
	}
}

func (c *Client) CreateTicket(ctx context.Context, tn tenant.Context, req TicketRequest) (uuid.UUID, error) {
	if c.client == nil {
		return uuid.Nil, fmt.Errorf("kitchen client not configured: %w", fault.ErrDependency)
	}

	path := fmt.Sprintf("/tenants/%s/tickets", tn.ID)
	resp, err := c.client.Request(ctx, "POST", path, req)
	if err != nil {
		return uuid.Nil, fmt.Errorf("cannot create kitchen ticket: %w", fault.ErrDependency)
	}

	data, ok := resp.Data.(map[string]interface{})
	if !ok {
		return uuid.Nil, fmt.Errorf("unexpected kitchen response shape: %w", fault.ErrDependency)
	}
	idStr, ok := data["id"].(string)
	if !ok {
		return uuid.Nil, fmt.Errorf("kitchen response missing ticket id: %w", fault.ErrDependency)
	}
	ticketID, err := uuid.Parse(idStr)
	if err != nil {
		return uuid.Nil, fmt.Errorf("kitchen returned malformed ticket id %q: %w", idStr, fault.ErrDependency)
	}
	return ticketID, nil
}
