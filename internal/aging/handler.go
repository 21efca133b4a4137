package aging

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/amanah-erp/amanah-erp/internal/platform/httpx"
)

// Handler exposes the aging report over the JSON API.
type Handler struct {
	logger  *slog.Logger
	service *Service
	printer *message.Printer
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, printer: message.NewPrinter(language.English)}
}

// MountRoutes registers aging endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.report)
}

func (h *Handler) report(w http.ResponseWriter, r *http.Request) {
	asOf := time.Time{}
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "as_of must be YYYY-MM-DD")
			return
		}
		asOf = parsed
	}
	report, err := h.service.ComputeAging(r.Context(), asOf)
	if err != nil {
		h.logger.Error("compute aging", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, h.toView(report))
}

type bucketView struct {
	Current     string `json:"current"`
	Days31to60  string `json:"days_31_60"`
	Days61to90  string `json:"days_61_90"`
	Days91to120 string `json:"days_91_120"`
	Over120     string `json:"over_120"`
	Total       string `json:"total"`
}

type rowView struct {
	DebtorID   int64      `json:"debtor_id"`
	DebtorName string     `json:"debtor_name"`
	Buckets    bucketView `json:"buckets"`
}

type reportView struct {
	AsOf  string     `json:"as_of"`
	Rows  []rowView  `json:"rows"`
	Total bucketView `json:"total"`
}

func (h *Handler) toView(report Report) reportView {
	view := reportView{
		AsOf:  report.AsOf.Format("2006-01-02"),
		Rows:  make([]rowView, 0, len(report.Rows)),
		Total: h.toBucketView(report.Total),
	}
	for _, row := range report.Rows {
		view.Rows = append(view.Rows, rowView{
			DebtorID:   row.DebtorID,
			DebtorName: row.DebtorName,
			Buckets:    h.toBucketView(row.Buckets),
		})
	}
	return view
}

// toBucketView renders amounts with locale-aware thousands separators.
func (h *Handler) toBucketView(b BucketSet) bucketView {
	return bucketView{
		Current:     h.format(b.Current),
		Days31to60:  h.format(b.Days31to60),
		Days61to90:  h.format(b.Days61to90),
		Days91to120: h.format(b.Days91to120),
		Over120:     h.format(b.Over120),
		Total:       h.format(b.Sum()),
	}
}

func (h *Handler) format(d decimal.Decimal) string {
	return h.printer.Sprintf("%.2f", d.InexactFloat64())
}
