// Package httptransport assembles the public HTTP surface. Handlers stay in
// their domain packages; this router only mounts them behind the shared
// middleware stack.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	accrhandler "accredo/internal/accreditation/handler"
	"accredo/internal/platform/health"
	"accredo/internal/platform/middleware"
	"accredo/internal/refdata"
)

// Deps carries everything the router mounts.
type Deps struct {
	Accreditation *accrhandler.Handler
	RefData       *refdata.Handler
	Health        *health.Handler
	Logger        *slog.Logger
	Timeout       time.Duration
}

// NewRouter wires all public endpoints with middleware.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(deps.Logger))
	r.Use(middleware.Timeout(deps.Timeout))

	deps.Health.Register(r)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// JSON enforcement applies to the API surface only, not probes or metrics.
	r.Group(func(api chi.Router) {
		api.Use(middleware.ContentTypeJSON)
		deps.Accreditation.Register(api)
		deps.RefData.Register(api)
	})

	return r
}
