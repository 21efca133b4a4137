package fiscalyear

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/amanah-erp/amanah-erp/internal/ledger"
	"github.com/amanah-erp/amanah-erp/internal/platform/httpx"
	"github.com/amanah-erp/amanah-erp/internal/shared"
)

// Handler exposes fiscal years over the JSON API.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers fiscal year endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Get("/{id}/closing", h.closing)
	r.Post("/{id}/close", h.close)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	years, err := h.service.ListYears(r.Context())
	if err != nil {
		h.respondError(w, "list fiscal years", err)
		return
	}
	views := make([]yearView, 0, len(years))
	for _, y := range years {
		views = append(views, toYearView(y))
	}
	httpx.JSON(w, http.StatusOK, views)
}

type createYearDTO struct {
	Code           string `json:"code" validate:"required"`
	StartDate      string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate        string `json:"end_date" validate:"required,datetime=2006-01-02"`
	OpeningBalance string `json:"opening_balance"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var dto createYearDTO
	if err := httpx.DecodeJSON(r, &dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	start, _ := time.Parse("2006-01-02", dto.StartDate)
	end, _ := time.Parse("2006-01-02", dto.EndDate)
	opening := decimal.Zero
	if dto.OpeningBalance != "" {
		var err error
		opening, err = decimal.NewFromString(dto.OpeningBalance)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "opening_balance is not a number")
			return
		}
	}
	year, err := h.service.CreateYear(r.Context(), CreateYearInput{
		Code:           dto.Code,
		StartDate:      start,
		EndDate:        end,
		OpeningBalance: opening,
		ActorID:        shared.PrincipalFromContext(r.Context()).UserID,
	})
	if err != nil {
		h.respondError(w, "create fiscal year", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toYearView(year))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	year, err := h.service.GetYear(r.Context(), id)
	if err != nil {
		h.respondError(w, "get fiscal year", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toYearView(year))
}

func (h *Handler) closing(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	closing, err := h.service.GetClosing(r.Context(), id)
	if err != nil {
		h.respondError(w, "get closing", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toClosingView(closing))
}

type closeDTO struct {
	RetentionPct string `json:"retention_pct" validate:"required"`
}

func (h *Handler) close(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	var dto closeDTO
	if err := httpx.DecodeJSON(r, &dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	pct, err := decimal.NewFromString(dto.RetentionPct)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "retention_pct is not a number")
		return
	}
	closing, err := h.service.Close(r.Context(), CloseInput{
		FiscalYearID: id,
		RetentionPct: pct,
		ActorID:      shared.PrincipalFromContext(r.Context()).UserID,
	})
	if err != nil {
		h.respondError(w, "close fiscal year", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toClosingView(closing))
}

func (h *Handler) parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid fiscal year id")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrAlreadyClosed), errors.Is(err, ErrPendingDistributions), errors.Is(err, ErrYearOverlap):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ledger.ErrOutOfBalance):
		httpx.Problem(w, http.StatusConflict, "Ledger Out Of Balance", err.Error())
	case errors.Is(err, shared.ErrForbidden):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

type yearView struct {
	ID             int64  `json:"id"`
	Code           string `json:"code"`
	StartDate      string `json:"start_date"`
	EndDate        string `json:"end_date"`
	Status         string `json:"status"`
	OpeningBalance string `json:"opening_balance"`
}

func toYearView(y FiscalYear) yearView {
	return yearView{
		ID:             y.ID,
		Code:           y.Code,
		StartDate:      y.StartDate.Format("2006-01-02"),
		EndDate:        y.EndDate.Format("2006-01-02"),
		Status:         string(y.Status),
		OpeningBalance: y.OpeningBalance.StringFixed(2),
	}
}

type closingView struct {
	FiscalYearID       int64  `json:"fiscal_year_id"`
	OpeningBalance     string `json:"opening_balance"`
	NetIncome          string `json:"net_income"`
	ClosingBalance     string `json:"closing_balance"`
	WaqfCorpus         string `json:"waqf_corpus"`
	NextOpeningBalance string `json:"next_opening_balance"`
	RetentionPct       string `json:"retention_pct"`
	Policy             string `json:"policy"`
}

func toClosingView(c Closing) closingView {
	return closingView{
		FiscalYearID:       c.FiscalYearID,
		OpeningBalance:     c.OpeningBalance.StringFixed(2),
		NetIncome:          c.NetIncome.StringFixed(2),
		ClosingBalance:     c.ClosingBalance.StringFixed(2),
		WaqfCorpus:         c.WaqfCorpus.StringFixed(2),
		NextOpeningBalance: c.NextOpeningBalance.StringFixed(2),
		RetentionPct:       c.RetentionPct.StringFixed(2),
		Policy:             string(c.Policy),
	}
}
