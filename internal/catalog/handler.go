package catalog

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/apt/telemetry"
	"github.com/go-chi/chi/v5"

	"github.com/comandaclub/comanda/internal/kiosk"
	"github.com/comandaclub/comanda/internal/tenant"
)

// AccessVerifier validates a device bearer token so the bundle can be
// trimmed to that device's configuration.
type AccessVerifier interface {
	VerifyAccessToken(ctx context.Context, tn tenant.Context, token string) (*kiosk.Device, error)
}

// Handler serves the catalog bundle devices cache locally.
type Handler struct {
	logger apt.Logger
	tlm    *telemetry.HTTP
	reader Reader
	access AccessVerifier
}

func NewHandler(reader Reader, access AccessVerifier, logger apt.Logger) *Handler {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &Handler{
		logger: logger,
		tlm:    telemetry.NewHTTP(),
		reader: reader,
		access: access,
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/catalog", h.Download)
}

// Download returns the latest snapshot. When the device passes its cached
// version via ?since= and nothing newer exists, the response is 304 and the
// device keeps serving from cache. A bearer token scopes the bundle to the
// calling device's visibility configuration; without one the full bundle is
// served for staff tooling and previews.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.Download")
	defer finish()

	log := h.log(r)
	tn, ok := tenant.FromRequest(r)
	if !ok {
		apt.RespondError(w, http.StatusBadRequest, "Missing tenant context")
		return
	}

	var device *kiosk.Device
	if bearer := bearerToken(r); bearer != "" {
		d, err := h.access.VerifyAccessToken(r.Context(), tn, bearer)
		if err != nil {
			log.Info("rejected bearer token", "error", err)
			apt.RespondError(w, http.StatusUnauthorized, "Invalid access token")
			return
		}
		device = d
	}

	snap, err := h.reader.Latest(r.Context(), tn)
	if err != nil {
		log.Error("cannot load catalog snapshot", "error", err)
		apt.RespondError(w, http.StatusInternalServerError, "Could not load catalog")
		return
	}
	if snap == nil {
		apt.RespondError(w, http.StatusNotFound, "No catalog published")
		return
	}

	if sinceStr := r.URL.Query().Get("since"); sinceStr != "" {
		since, err := strconv.ParseInt(sinceStr, 10, 64)
		if err != nil {
			apt.RespondError(w, http.StatusBadRequest, "Invalid since parameter")
			return
		}
		if snap.Version <= since {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}

	if device != nil {
		snap = snap.ForDevice(device)
	}
	apt.RespondSuccess(w, snap)
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
