package metrics

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	OrdersPlaced = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kiosk_orders_placed_total",
			Help: "Orders placed, by initial routing state",
		},
		[]string{"state"},
	)

	DispatchFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kiosk_dispatch_failures_total",
			Help: "Kitchen dispatch attempts that failed",
		},
	)

	TicketsDispatched = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kiosk_tickets_dispatched_total",
			Help: "Kitchen tickets created",
		},
	)

	DevicesActivated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kiosk_devices_activated_total",
			Help: "Successful activation token redemptions",
		},
	)

	SessionsOpened = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kiosk_sessions_opened_total",
			Help: "QR/table sessions opened",
		},
	)
)

func Init() {
	prometheus.MustRegister(OrdersPlaced, DispatchFailures, TicketsDispatched, DevicesActivated, SessionsOpened)
}

// Module exposes /metrics as an HTTP server module.
type Module struct{}

func (Module) RegisterRoutes(r chi.Router) {
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
}
