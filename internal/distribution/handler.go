package distribution

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/amanah-erp/amanah-erp/internal/platform/httpx"
	"github.com/amanah-erp/amanah-erp/internal/shared"
)

// Handler exposes distributions over the JSON API.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers distribution endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.calculate)
	r.Get("/{id}", h.get)
	r.Post("/{id}/submit", h.submit)
	r.Post("/{id}/approve", h.approve)
	r.Post("/{id}/reject", h.reject)
	r.Post("/{id}/cancel", h.cancel)
}

type calculateDTO struct {
	PeriodStart  string `json:"period_start" validate:"required,datetime=2006-01-02"`
	PeriodEnd    string `json:"period_end" validate:"required,datetime=2006-01-02"`
	TotalRevenue string `json:"total_revenue" validate:"required"`
	NazerPct     string `json:"nazer_pct" validate:"required"`
	CharityPct   string `json:"charity_pct" validate:"required"`
}

func (h *Handler) calculate(w http.ResponseWriter, r *http.Request) {
	var dto calculateDTO
	if err := httpx.DecodeJSON(r, &dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	start, _ := time.Parse("2006-01-02", dto.PeriodStart)
	end, _ := time.Parse("2006-01-02", dto.PeriodEnd)
	revenue, err := decimal.NewFromString(dto.TotalRevenue)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "total_revenue is not a number")
		return
	}
	nazerPct, err := decimal.NewFromString(dto.NazerPct)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "nazer_pct is not a number")
		return
	}
	charityPct, err := decimal.NewFromString(dto.CharityPct)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "charity_pct is not a number")
		return
	}
	dist, err := h.service.Calculate(r.Context(), CalculateInput{
		PeriodStart:  start,
		PeriodEnd:    end,
		TotalRevenue: revenue,
		NazerPct:     nazerPct,
		CharityPct:   charityPct,
		ActorID:      shared.PrincipalFromContext(r.Context()).UserID,
	})
	if err != nil {
		h.respondError(w, "calculate distribution", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toView(dist))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	dist, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, "get distribution", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toView(dist))
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, func(id uuid.UUID, actorID int64) (Distribution, error) {
		return h.service.Submit(r.Context(), id, actorID)
	}, "submit distribution")
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, func(id uuid.UUID, actorID int64) (Distribution, error) {
		return h.service.Approve(r.Context(), id, actorID)
	}, "approve distribution")
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	note := r.URL.Query().Get("note")
	h.lifecycle(w, r, func(id uuid.UUID, actorID int64) (Distribution, error) {
		return h.service.Reject(r.Context(), id, actorID, note)
	}, "reject distribution")
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	note := r.URL.Query().Get("note")
	h.lifecycle(w, r, func(id uuid.UUID, actorID int64) (Distribution, error) {
		return h.service.Cancel(r.Context(), id, actorID, note)
	}, "cancel distribution")
}

func (h *Handler) lifecycle(w http.ResponseWriter, r *http.Request, op func(uuid.UUID, int64) (Distribution, error), name string) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	actorID := shared.PrincipalFromContext(r.Context()).UserID
	dist, err := op(id, actorID)
	if err != nil {
		h.respondError(w, name, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toView(dist))
}

func (h *Handler) parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid distribution id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrValidation), errors.Is(err, ErrNoWeights):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrInvalidStatus):
		httpx.Problem(w, http.StatusConflict, "Invalid Status", err.Error())
	case errors.Is(err, shared.ErrForbidden):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

type detailView struct {
	BeneficiaryID int64  `json:"beneficiary_id"`
	Name          string `json:"name,omitempty"`
	Amount        string `json:"amount"`
}

type distributionView struct {
	ID            string       `json:"id"`
	PeriodStart   string       `json:"period_start"`
	PeriodEnd     string       `json:"period_end"`
	TotalRevenue  string       `json:"total_revenue"`
	NazerShare    string       `json:"nazer_share"`
	CharityShare  string       `json:"charity_share"`
	Distributable string       `json:"distributable"`
	HeldAmount    string       `json:"held_amount"`
	Status        string       `json:"status"`
	Details       []detailView `json:"details"`
}

func toView(d Distribution) distributionView {
	view := distributionView{
		ID:            d.ID.String(),
		PeriodStart:   d.PeriodStart.Format("2006-01-02"),
		PeriodEnd:     d.PeriodEnd.Format("2006-01-02"),
		TotalRevenue:  d.TotalRevenue.StringFixed(2),
		NazerShare:    d.NazerShare.StringFixed(2),
		CharityShare:  d.CharityShare.StringFixed(2),
		Distributable: d.Distributable.StringFixed(2),
		HeldAmount:    d.HeldAmount.StringFixed(2),
		Status:        string(d.Status),
	}
	for _, detail := range d.Details {
		view.Details = append(view.Details, detailView{
			BeneficiaryID: detail.BeneficiaryID,
			Name:          detail.Name,
			Amount:        detail.Amount.StringFixed(2),
		})
	}
	return view
}
