package httpserver

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"zoneadmin/internal/http/handlers"
	"zoneadmin/internal/http/middleware"
)

// RouterDeps collects handler dependencies.
type RouterDeps struct {
	Payments      *handlers.PaymentsHandler
	HealthHandler http.HandlerFunc
}

// NewRouter wires HTTP routes with middleware.
func NewRouter(deps RouterDeps, authMiddleware func(http.Handler) http.Handler) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /health", deps.HealthHandler)
	mux.Handle("GET /metrics", promhttp.Handler())

	authenticated := func(handler http.HandlerFunc) http.Handler {
		return middleware.Chain(handler, authMiddleware)
	}

	mux.Handle("POST /api/payments", authenticated(deps.Payments.Create))
	mux.Handle("POST /api/payments/{id}/complete", authenticated(deps.Payments.Complete))
	mux.Handle("GET /api/payments/pending", authenticated(deps.Payments.ListPending))
	mux.Handle("GET /api/payments/completed", authenticated(deps.Payments.ListCompleted))

	return mux
}
