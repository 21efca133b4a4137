package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/amanah-erp/amanah-erp/internal/aging"
	"github.com/amanah-erp/amanah-erp/internal/beneficiaries"
	"github.com/amanah-erp/amanah-erp/internal/distribution"
	"github.com/amanah-erp/amanah-erp/internal/fiscalyear"
	"github.com/amanah-erp/amanah-erp/internal/ledger"
	"github.com/amanah-erp/amanah-erp/internal/observability"
	"github.com/amanah-erp/amanah-erp/internal/reconciliation"
	"github.com/amanah-erp/amanah-erp/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger                *slog.Logger
	Config                *Config
	LedgerHandler         *ledger.Handler
	DistributionHandler   *distribution.Handler
	FiscalYearHandler     *fiscalyear.Handler
	ReconciliationHandler *reconciliation.Handler
	AgingHandler          *aging.Handler
	BeneficiariesHandler  *beneficiaries.Handler
	JobHandler            *jobs.Handler
	Metrics               *observability.Metrics
}

// NewRouter constructs the chi.Router with Amanah defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.LedgerHandler != nil {
		r.Route("/ledger", params.LedgerHandler.MountRoutes)
	}
	if params.DistributionHandler != nil {
		r.Route("/distributions", params.DistributionHandler.MountRoutes)
	}
	if params.FiscalYearHandler != nil {
		r.Route("/fiscal-years", params.FiscalYearHandler.MountRoutes)
	}
	if params.ReconciliationHandler != nil {
		r.Route("/reconciliation", params.ReconciliationHandler.MountRoutes)
	}
	if params.AgingHandler != nil {
		r.Route("/reports/aging", params.AgingHandler.MountRoutes)
	}
	if params.BeneficiariesHandler != nil {
		r.Route("/beneficiaries", params.BeneficiariesHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
