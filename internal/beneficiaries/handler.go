package beneficiaries

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/amanah-erp/amanah-erp/internal/platform/httpx"
	"github.com/amanah-erp/amanah-erp/internal/shared"
)

// Handler exposes the registry over the JSON API.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers registry endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Put("/{id}", h.update)
	r.Post("/{id}/deactivate", h.setActive(false))
	r.Post("/{id}/activate", h.setActive(true))
}

type upsertDTO struct {
	Name     string `json:"name" validate:"required"`
	Category string `json:"category"`
	IBAN     string `json:"iban" validate:"required"`
	Weight   string `json:"weight" validate:"required"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	items, err := h.service.List(r.Context(), activeOnly)
	if err != nil {
		h.respondError(w, "list beneficiaries", err)
		return
	}
	views := make([]view, 0, len(items))
	for _, b := range items {
		views = append(views, toView(b))
	}
	httpx.JSON(w, http.StatusOK, views)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	in, ok := h.decodeUpsert(w, r)
	if !ok {
		return
	}
	b, err := h.service.Create(r.Context(), in)
	if err != nil {
		h.respondError(w, "create beneficiary", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toView(b))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	b, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, "get beneficiary", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toView(b))
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	in, ok := h.decodeUpsert(w, r)
	if !ok {
		return
	}
	b, err := h.service.Update(r.Context(), id, in)
	if err != nil {
		h.respondError(w, "update beneficiary", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toView(b))
}

func (h *Handler) setActive(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := h.parseID(w, r)
		if !ok {
			return
		}
		if err := h.service.SetActive(r.Context(), id, active); err != nil {
			h.respondError(w, "toggle beneficiary", err)
			return
		}
		httpx.NoContent(w)
	}
}

func (h *Handler) decodeUpsert(w http.ResponseWriter, r *http.Request) (UpsertInput, bool) {
	var dto upsertDTO
	if err := httpx.DecodeJSON(r, &dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return UpsertInput{}, false
	}
	if err := h.validate.Struct(dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return UpsertInput{}, false
	}
	weight, err := decimal.NewFromString(dto.Weight)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "weight is not a number")
		return UpsertInput{}, false
	}
	return UpsertInput{
		Name:     dto.Name,
		Category: dto.Category,
		IBAN:     dto.IBAN,
		Weight:   weight,
		ActorID:  shared.PrincipalFromContext(r.Context()).UserID,
	}, true
}

func (h *Handler) parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid beneficiary id")
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
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

type view struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category,omitempty"`
	IBAN     string `json:"iban"`
	Weight   string `json:"weight"`
	Active   bool   `json:"active"`
}

func toView(b Beneficiary) view {
	return view{
		ID:       b.ID,
		Name:     b.Name,
		Category: b.Category,
		IBAN:     b.IBAN,
		Weight:   b.Weight.String(),
		Active:   b.Active,
	}
}
