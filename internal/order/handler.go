package order

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/apt/telemetry"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/comandaclub/comanda/internal/fault"
	"github.com/comandaclub/comanda/internal/kiosk"
	"github.com/comandaclub/comanda/internal/session"
	"github.com/comandaclub/comanda/internal/tenant"
)

const MaxBodyBytes = 1 << 20

// AccessVerifier validates a device bearer token.
type AccessVerifier interface {
	VerifyAccessToken(ctx context.Context, tn tenant.Context, token string) (*kiosk.Device, error)
}

// Handler exposes order placement and tracking to devices, plus the staff
// endpoints that drive validation and fulfilment. Devices authenticate
// per-request with either their secret or a bearer access token.
type Handler struct {
	logger  apt.Logger
	tlm     *telemetry.HTTP
	service *Service
	access  AccessVerifier
}

func NewHandler(service *Service, access AccessVerifier, logger apt.Logger) *Handler {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &Handler{
		logger:  logger,
		tlm:     telemetry.NewHTTP(),
		service: service,
		access:  access,
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/orders", func(r chi.Router) {
		r.Post("/", h.Place)
		r.Get("/{id}", h.Get)
		r.Post("/{id}/payment", h.RegisterPayment)
	})

	r.Route("/admin/orders", func(r chi.Router) {
		r.Get("/pending-validation", h.PendingForPOS)
		r.Post("/{id}/validate", h.Validate)
		r.Post("/{id}/state", h.SetState)
		r.Post("/{id}/cancel", h.Cancel)
	})
}

type placePayload struct {
	DeviceID     uuid.UUID             `json:"device_id"`
	Secret       string                `json:"secret"`
	SessionToken string                `json:"session_token"`
	Lines        []Line                `json:"lines"`
	ServiceType  session.ServiceType   `json:"service_type"`
	Customer     *session.CustomerInfo `json:"customer"`
	Payment      *PaymentInfo          `json:"payment"`
}

func (h *Handler) Place(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.Place")
	defer finish()

	log := h.log(r)
	tn, ok := h.tenant(w, r)
	if !ok {
		return
	}

	var req placePayload
	if !h.decode(w, r, log, &req) {
		return
	}

	in := PlaceInput{
		DeviceID:     req.DeviceID,
		Secret:       req.Secret,
		SessionToken: req.SessionToken,
		Lines:        req.Lines,
		ServiceType:  req.ServiceType,
		Customer:     req.Customer,
		Payment:      req.Payment,
	}

	// A valid bearer token replaces the per-request secret.
	if bearer := bearerToken(r); bearer != "" {
		d, err := h.access.VerifyAccessToken(r.Context(), tn, bearer)
		if err != nil {
			log.Info("rejected bearer token", "error", err)
			apt.RespondError(w, http.StatusUnauthorized, "Invalid access token")
			return
		}
		in.DeviceID = d.ID
		in.PreAuthed = true
	}

	o, err := h.service.Place(r.Context(), tn, in)
	if err != nil {
		if o != nil && fault.IsDependency(err) {
			// The order exists; only the kitchen hand-off failed. Return it
			// so the device can show the order while dispatch is retried.
			log.Error("order placed but dispatch failed", "error", err, "order_id", o.ID.String())
			w.WriteHeader(http.StatusAccepted)
			apt.RespondSuccess(w, o)
			return
		}
		log.Info("cannot place order", "error", err)
		apt.RespondError(w, fault.HTTPStatus(err), "Could not place order")
		return
	}

	w.WriteHeader(http.StatusCreated)
	apt.RespondSuccess(w, o)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.Get")
	defer finish()

	log := h.log(r)
	tn, ok := h.tenant(w, r)
	if !ok {
		return
	}
	id, ok := h.parseIDParam(w, r, log)
	if !ok {
		return
	}

	o, err := h.service.Get(r.Context(), tn, id)
	if err != nil {
		log.Debug("cannot load order", "error", err, "id", id.String())
		apt.RespondError(w, fault.HTTPStatus(err), "Order not found")
		return
	}
	apt.RespondSuccess(w, o)
}

type paymentPayload struct {
	Method string `json:"method"`
	Ref    string `json:"ref"`
}

func (h *Handler) RegisterPayment(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.RegisterPayment")
	defer finish()

	log := h.log(r)
	tn, ok := h.tenant(w, r)
	if !ok {
		return
	}
	id, ok := h.parseIDParam(w, r, log)
	if !ok {
		return
	}

	var req paymentPayload
	if !h.decode(w, r, log, &req) {
		return
	}
	if req.Method == "" {
		apt.RespondError(w, http.StatusBadRequest, "Payment method is required")
		return
	}

	o, err := h.service.RegisterPayment(r.Context(), tn, id, req.Method, req.Ref)
	if err != nil {
		if o != nil && fault.IsDependency(err) {
			log.Error("payment recorded but dispatch failed", "error", err, "order_id", id.String())
			w.WriteHeader(http.StatusAccepted)
			apt.RespondSuccess(w, o)
			return
		}
		log.Info("cannot register payment", "error", err, "order_id", id.String())
		apt.RespondError(w, fault.HTTPStatus(err), "Could not register payment")
		return
	}
	apt.RespondSuccess(w, o)
}

func (h *Handler) PendingForPOS(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.PendingForPOS")
	defer finish()

	log := h.log(r)
	tn, ok := h.tenant(w, r)
	if !ok {
		return
	}

	posIDStr := r.URL.Query().Get("pos_id")
	posID, err := uuid.Parse(posIDStr)
	if err != nil {
		log.Debug("invalid pos_id parameter", "pos_id", posIDStr)
		apt.RespondError(w, http.StatusBadRequest, "Invalid pos_id parameter")
		return
	}

	orders, err := h.service.PendingForPOS(r.Context(), tn, posID)
	if err != nil {
		log.Error("cannot list pending orders", "error", err)
		apt.RespondError(w, http.StatusInternalServerError, "Could not retrieve orders")
		return
	}
	apt.RespondCollection(w, orders, "order")
}

// Validate confirms a pending_validation order from the POS side.
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.Validate")
	defer finish()
	h.transition(w, r, StatusConfirmed, "")
}

type statePayload struct {
	Status Status `json:"status"`
	Reason string `json:"reason"`
}

func (h *Handler) SetState(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.SetState")
	defer finish()

	log := h.log(r)
	var req statePayload
	if !h.decode(w, r, log, &req) {
		return
	}
	h.transition(w, r, req.Status, req.Reason)
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.Cancel")
	defer finish()

	log := h.log(r)
	var req struct {
		Reason string `json:"reason"`
	}
	if !h.decode(w, r, log, &req) {
		return
	}
	h.transition(w, r, StatusCancelled, req.Reason)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, to Status, reason string) {
	log := h.log(r)
	tn, ok := h.tenant(w, r)
	if !ok {
		return
	}
	id, ok := h.parseIDParam(w, r, log)
	if !ok {
		return
	}

	o, err := h.service.SetState(r.Context(), tn, id, to, reason)
	if err != nil {
		if o != nil && fault.IsDependency(err) {
			log.Error("transition applied but dispatch failed", "error", err, "order_id", id.String())
			w.WriteHeader(http.StatusAccepted)
			apt.RespondSuccess(w, o)
			return
		}
		log.Info("cannot transition order", "error", err, "order_id", id.String(), "to", string(to))
		apt.RespondError(w, fault.HTTPStatus(err), "Could not transition order")
		return
	}
	apt.RespondSuccess(w, o)
}

func (h *Handler) tenant(w http.ResponseWriter, r *http.Request) (tenant.Context, bool) {
	tn, ok := tenant.FromRequest(r)
	if !ok {
		apt.RespondError(w, http.StatusBadRequest, "Missing tenant context")
		return tenant.Context{}, false
	}
	return tn, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, log apt.Logger, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		log.Debug("cannot decode request body", "error", err)
		apt.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func (h *Handler) parseIDParam(w http.ResponseWriter, r *http.Request, log apt.Logger) (uuid.UUID, bool) {
	idStr := chi.URLParam(r, "id")
	if idStr == "" {
		log.Debug("missing id parameter")
		apt.RespondError(w, http.StatusBadRequest, "Missing id parameter")
		return uuid.Nil, false
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		log.Debug("invalid id parameter", "id", idStr)
		apt.RespondError(w, http.StatusBadRequest, "Invalid id parameter")
		return uuid.Nil, false
	}
	return id, true
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

func (h *Handler) log(r *http.Request) apt.Logger {
	return h.logger.With("request_id", r.Context().Value("request_id"))
}
