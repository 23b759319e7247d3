package kiosk

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

// Handler exposes the device fleet API. Activation is the only endpoint a
// non-activated device can reach; everything else under /admin is expected
// to sit behind the staff gateway.
type Handler struct {
	logger   apt.Logger
	config   *apt.Config
	tlm      *telemetry.HTTP
	registry *Registry
}

func NewHandler(registry *Registry, config *apt.Config, logger apt.Logger) *Handler {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &Handler{
		logger:   logger,
		config:   config,
		tlm:      telemetry.NewHTTP(),
		registry: registry,
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/devices/activate", h.Activate)

	r.Route("/admin/devices", func(r chi.Router) {
		r.Post("/", h.Register)
		r.Get("/", h.List)
		r.Get("/{id}", h.Get)
		r.Put("/{id}", h.Update)
		r.Post("/{id}/activation-token", h.IssueActivationToken)
		r.Post("/{id}/rotate-secret", h.RotateSecret)
		r.Post("/{id}/suspend", h.Suspend)
		r.Post("/{id}/reactivate", h.Reactivate)
		r.Post("/{id}/deactivate", h.Deactivate)
		r.Delete("/{id}", h.Delete)
		r.Get("/{id}/qr-url", h.QRURL)
	})
}

type registerPayload struct {
	Code     string        `json:"code"`
	Name     string        `json:"name"`
	Kind     DeviceKind    `json:"kind"`
	SalonID  *uuid.UUID    `json:"salon_id"`
	TableID  *uuid.UUID    `json:"table_id"`
	Payment  PaymentPolicy `json:"payment"`
	Theme    Theme         `json:"theme"`
	Behavior Behavior      `json:"behavior"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.Register")
	defer finish()

	log := h.log(r)
	tn, ok := h.tenant(w, r)
	if !ok {
		return
	}

	var req registerPayload
	if !h.decode(w, r, log, &req) {
		return
	}

	d, secret, err := h.registry.Register(r.Context(), tn, RegisterInput{
		Code:     req.Code,
		Name:     req.Name,
		Kind:     req.Kind,
		SalonID:  req.SalonID,
		TableID:  req.TableID,
		Payment:  req.Payment,
		Theme:    req.Theme,
		Behavior: req.Behavior,
	})
	if err != nil {
		log.Error("cannot register device", "error", err)
		apt.RespondError(w, fault.HTTPStatus(err), "Could not register device")
		return
	}

	// The plaintext secret appears in this response and never again.
	w.WriteHeader(http.StatusCreated)
	apt.RespondSuccess(w, map[string]any{
		"device": d,
		"secret": secret,
	})
}

type updatePayload struct {
	Name     string         `json:"name"`
	SalonID  *uuid.UUID     `json:"salon_id"`
	TableID  *uuid.UUID     `json:"table_id"`
	Payment  *PaymentPolicy `json:"payment"`
	Theme    *Theme         `json:"theme"`
	Behavior *Behavior      `json:"behavior"`
}

// Update reconfigures a device's payment policy, theme and behavior. Omitted
// sections keep their stored values.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.Update")
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

	var req updatePayload
	if !h.decode(w, r, log, &req) {
		return
	}

	d, err := h.registry.Update(r.Context(), tn, id, UpdateInput{
		Name:     req.Name,
		SalonID:  req.SalonID,
		TableID:  req.TableID,
		Payment:  req.Payment,
		Theme:    req.Theme,
		Behavior: req.Behavior,
	})
	if err != nil {
		log.Error("cannot update device", "error", err, "device_id", id.String())
		apt.RespondError(w, fault.HTTPStatus(err), "Could not update device")
		return
	}
	apt.RespondSuccess(w, d)
}

func (h *Handler) IssueActivationToken(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.IssueActivationToken")
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

	var req struct {
		Issuer string `json:"issuer"`
	}
	if !h.decode(w, r, log, &req) {
		return
	}

	code, expiresAt, err := h.registry.IssueActivationToken(r.Context(), tn, id, req.Issuer)
	if err != nil {
		log.Error("cannot issue activation token", "error", err, "device_id", id.String())
		apt.RespondError(w, fault.HTTPStatus(err), "Could not issue activation token")
		return
	}

	apt.RespondSuccess(w, map[string]any{
		"code":       code,
		"expires_at": expiresAt,
	})
}

type activatePayload struct {
	Code       string `json:"code"`
	HardwareID string `json:"hardware_id"`
}

// Activate redeems a short activation code. All failure modes respond
// identically so codes cannot be enumerated.
func (h *Handler) Activate(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.Activate")
	defer finish()

	log := h.log(r)
	tn, ok := h.tenant(w, r)
	if !ok {
		return
	}

	var req activatePayload
	if !h.decode(w, r, log, &req) {
		return
	}

	res, err := h.registry.RedeemActivationToken(r.Context(), tn, req.Code, RedeemInfo{
		IP:         clientIP(r),
		HardwareID: req.HardwareID,
	})
	if err != nil {
		log.Info("activation rejected", "error", err)
		apt.RespondError(w, fault.HTTPStatus(err), "Activation code invalid or expired")
		return
	}

	d, err := h.registry.Get(r.Context(), tn, res.DeviceID)
	if err != nil {
		log.Error("cannot load activated device", "error", err, "device_id", res.DeviceID.String())
		apt.RespondError(w, http.StatusInternalServerError, "Could not complete activation")
		return
	}
	access, err := h.registry.IssueAccessToken(tn, d)
	if err != nil {
		log.Error("cannot issue access token", "error", err, "device_id", res.DeviceID.String())
		apt.RespondError(w, http.StatusInternalServerError, "Could not complete activation")
		return
	}

	metrics.DevicesActivated.Inc()
	apt.RespondSuccess(w, map[string]any{
		"device_id":    res.DeviceID,
		"secret":       res.Secret,
		"access_token": access,
		"tenant_id":    tn.ID,
	})
}

func (h *Handler) RotateSecret(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.RotateSecret")
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

	secret, err := h.registry.RotateSecret(r.Context(), tn, id)
	if err != nil {
		log.Error("cannot rotate device secret", "error", err, "device_id", id.String())
		apt.RespondError(w, fault.HTTPStatus(err), "Could not rotate secret")
		return
	}

	apt.RespondSuccess(w, map[string]any{"secret": secret})
}

func (h *Handler) Suspend(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.Suspend")
	defer finish()
	h.statusChange(w, r, "suspend", func(tn tenant.Context, id uuid.UUID) error {
		return h.registry.Suspend(r.Context(), tn, id)
	})
}

func (h *Handler) Reactivate(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.Reactivate")
	defer finish()
	h.statusChange(w, r, "reactivate", func(tn tenant.Context, id uuid.UUID) error {
		return h.registry.Reactivate(r.Context(), tn, id)
	})
}

func (h *Handler) Deactivate(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.Deactivate")
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

	var req struct {
		Actor  string `json:"actor"`
		Reason string `json:"reason"`
	}
	if !h.decode(w, r, log, &req) {
		return
	}

	if err := h.registry.Deactivate(r.Context(), tn, id, req.Actor, req.Reason); err != nil {
		log.Error("cannot deactivate device", "error", err, "device_id", id.String())
		apt.RespondError(w, fault.HTTPStatus(err), "Could not deactivate device")
		return
	}
	apt.RespondSuccess(w, map[string]any{"status": DeviceDeactivated})
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.Delete")
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

	if err := h.registry.Delete(r.Context(), tn, id); err != nil {
		if fault.IsPolicy(err) {
			log.Info("delete refused, device has orders", "device_id", id.String())
			apt.RespondError(w, http.StatusUnprocessableEntity, "Device has orders; deactivate instead")
			return
		}
		log.Error("cannot delete device", "error", err, "device_id", id.String())
		apt.RespondError(w, fault.HTTPStatus(err), "Could not delete device")
		return
	}
	w.WriteHeader(http.StatusNoContent)
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

	d, err := h.registry.Get(r.Context(), tn, id)
	if err != nil {
		log.Error("cannot load device", "error", err, "device_id", id.String())
		apt.RespondError(w, fault.HTTPStatus(err), "Device not found")
		return
	}
	apt.RespondSuccess(w, d)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.List")
	defer finish()

	log := h.log(r)
	tn, ok := h.tenant(w, r)
	if !ok {
		return
	}

	devices, err := h.registry.List(r.Context(), tn)
	if err != nil {
		log.Error("cannot list devices", "error", err)
		apt.RespondError(w, http.StatusInternalServerError, "Could not list devices")
		return
	}
	apt.RespondCollection(w, devices, "device")
}

// QRURL renders the customer-facing link encoded into a table's printed QR.
// The base URL comes from configuration so every tenant points at the same
// ordering front-end.
func (h *Handler) QRURL(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.QRURL")
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

	d, err := h.registry.Get(r.Context(), tn, id)
	if err != nil {
		log.Error("cannot load device", "error", err, "device_id", id.String())
		apt.RespondError(w, fault.HTTPStatus(err), "Device not found")
		return
	}

	base := h.config.GetStringOrDef("web.qr.baseurl", "https://order.comanda.club")
	url := base + "/t/" + tn.ID + "/d/" + d.ID.String()
	apt.RespondSuccess(w, map[string]any{"url": url})
}

func (h *Handler) statusChange(w http.ResponseWriter, r *http.Request, action string, fn func(tenant.Context, uuid.UUID) error) {
	log := h.log(r)
	tn, ok := h.tenant(w, r)
	if !ok {
		return
	}
	id, ok := h.parseIDParam(w, r, log)
	if !ok {
		return
	}
	if err := fn(tn, id); err != nil {
		log.Error("cannot "+action+" device", "error", err, "device_id", id.String())
		apt.RespondError(w, fault.HTTPStatus(err), "Could not "+action+" device")
		return
	}
	apt.RespondSuccess(w, map[string]any{"ok": true})
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

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	return r.RemoteAddr
}

func (h *Handler) log(r *http.Request) apt.Logger {
	return h.logger.With("request_id", r.Context().Value("request_id"))
}
