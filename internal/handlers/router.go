package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-ledger/internal/middleware"
	"github.com/ukydev/fleet-ledger/internal/models"
)

// RouterOptions configures the middleware stack around the handlers.
type RouterOptions struct {
	Auth              *middleware.AuthMiddleware
	CORSOrigins       []string
	RenewalsPerMinute int
	Logger            *logrus.Entry
}

// NewRouter mounts every endpoint behind request ids, request logging, panic
// recovery, CORS and authentication.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	if opts.Auth == nil {
		opts.Auth = middleware.NewAuthMiddleware(nil)
	}
	if opts.Logger == nil {
		opts.Logger = h.log
	}
	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	limiter := middleware.NewRateLimitMiddleware()
	allow := opts.Auth.RequirePermission

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.RequestLogger(opts.Logger))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders: []string{"Content-Disposition", "Retry-After"},
	}))
	r.Use(opts.Auth.Authenticate)

	r.Get("/health", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.With(allow(models.ActionViewFinancials)).Get("/fleet/summary", h.FleetSummary)

		r.Route("/vehicles/{id}", func(r chi.Router) {
			r.With(allow(models.ActionViewFinancials)).Get("/history", h.TruckHistory)
			r.With(allow(models.ActionExportReports)).Get("/report", h.TruckReport)

			r.Route("/compliance/{type}", func(r chi.Router) {
				r.With(allow(models.ActionViewCompliance)).Get("/", h.ComplianceHistory)
				r.With(
					allow(models.ActionRenewCompliance),
					limiter.RateLimit(opts.RenewalsPerMinute, time.Minute),
				).Post("/renew", h.Renew)
			})
		})

		r.Route("/trips/{id}", func(r chi.Router) {
			r.With(allow(models.ActionViewFinancials)).Get("/statement", h.TripStatement)
			r.With(allow(models.ActionExportReports)).Get("/statement/export", h.TripStatementExport)
		})

		r.With(allow(models.ActionExportReports)).Get("/reports/monthly", h.MonthlyReport)
		r.With(allow(models.ActionViewCompliance)).Get("/compliance/{type}", h.ComplianceQueue)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Not found", nil)
	})
	return r
}
