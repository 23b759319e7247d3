package session

import (
	"encoding/json"
	"net/http"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/apt/telemetry"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/comandaclub/comanda/internal/fault"
	"github.com/comandaclub/comanda/internal/metrics"
	"github.com/comandaclub/comanda/internal/tenant"
)

const MaxBodyBytes = 1 << 20

// Handler exposes the QR session API consumed by the customer's phone.
// Every session route is keyed by the opaque session token; there is no
// session listing.
type Handler struct {
	logger  apt.Logger
	tlm     *telemetry.HTTP
	manager *Manager
}

func NewHandler(manager *Manager, logger apt.Logger) *Handler {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &Handler{
		logger:  logger,
		tlm:     telemetry.NewHTTP(),
		manager: manager,
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", h.Open)
		r.Get("/{token}", h.Get)
		r.Put("/{token}/cart", h.ReplaceCart)
		r.Put("/{token}/customer", h.SetCustomer)
		r.Post("/{token}/abandon", h.Abandon)
	})
}

type openPayload struct {
	DeviceID uuid.UUID  `json:"device_id"`
	Secret   string     `json:"secret"`
	TableID  *uuid.UUID `json:"table_id"`
}

func (h *Handler) Open(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.Open")
	defer finish()

	log := h.log(r)
	tn, ok := h.tenant(w, r)
	if !ok {
		return
	}

	var req openPayload
	if !h.decode(w, r, log, &req) {
		return
	}

	s, err := h.manager.Open(r.Context(), tn, req.DeviceID, req.Secret, req.TableID)
	if err != nil {
		log.Info("cannot open session", "error", err, "device_id", req.DeviceID.String())
		apt.RespondError(w, fault.HTTPStatus(err), "Could not open session")
		return
	}

	metrics.SessionsOpened.Inc()
	w.WriteHeader(http.StatusCreated)
	apt.RespondSuccess(w, s)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.Get")
	defer finish()

	log := h.log(r)
	tn, ok := h.tenant(w, r)
	if !ok {
		return
	}

	s, err := h.manager.Get(r.Context(), tn, chi.URLParam(r, "token"))
	if err != nil {
		log.Debug("cannot load session", "error", err)
		apt.RespondError(w, fault.HTTPStatus(err), "Session not found")
		return
	}
	apt.RespondSuccess(w, s)
}

type cartPayload struct {
	Lines []CartLine `json:"lines"`
}

func (h *Handler) ReplaceCart(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.ReplaceCart")
	defer finish()

	log := h.log(r)
	tn, ok := h.tenant(w, r)
	if !ok {
		return
	}

	var req cartPayload
	if !h.decode(w, r, log, &req) {
		return
	}

	s, err := h.manager.ReplaceCart(r.Context(), tn, chi.URLParam(r, "token"), req.Lines)
	if err != nil {
		log.Debug("cannot replace cart", "error", err)
		apt.RespondError(w, fault.HTTPStatus(err), "Could not update cart")
		return
	}
	apt.RespondSuccess(w, s)
}

type customerPayload struct {
	Customer    CustomerInfo `json:"customer"`
	ServiceType ServiceType  `json:"service_type"`
}

func (h *Handler) SetCustomer(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.SetCustomer")
	defer finish()

	log := h.log(r)
	tn, ok := h.tenant(w, r)
	if !ok {
		return
	}

	var req customerPayload
	if !h.decode(w, r, log, &req) {
		return
	}

	s, err := h.manager.SetCustomer(r.Context(), tn, chi.URLParam(r, "token"), req.Customer, req.ServiceType)
	if err != nil {
		log.Debug("cannot set customer info", "error", err)
		apt.RespondError(w, fault.HTTPStatus(err), "Could not update customer info")
		return
	}
	apt.RespondSuccess(w, s)
}

func (h *Handler) Abandon(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.Abandon")
	defer finish()

	log := h.log(r)
	tn, ok := h.tenant(w, r)
	if !ok {
		return
	}

	if err := h.manager.Abandon(r.Context(), tn, chi.URLParam(r, "token")); err != nil {
		log.Debug("cannot abandon session", "error", err)
		apt.RespondError(w, fault.HTTPStatus(err), "Could not abandon session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
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

func (h *Handler) log(r *http.Request) apt.Logger {
	return h.logger.With("request_id", r.Context().Value("request_id"))
}
