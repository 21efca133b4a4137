package reconciliation

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/amanah-erp/amanah-erp/internal/platform/httpx"
	"github.com/amanah-erp/amanah-erp/internal/shared"
)

// Handler exposes reconciliation over the JSON API.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers reconciliation endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/statements/{id}/suggestions", h.suggestions)
	r.Get("/statements/{id}/matches", h.matches)
	r.Post("/matches", h.manualMatch)
}

func (h *Handler) suggestions(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	suggestions, err := h.service.AutoMatch(r.Context(), id)
	if err != nil {
		h.respondError(w, "auto match", err)
		return
	}
	views := make([]suggestionView, 0, len(suggestions))
	for _, s := range suggestions {
		views = append(views, suggestionView{
			BankTransactionID: s.BankTransactionID,
			JournalEntryID:    s.JournalEntryID,
			EntryDate:         s.EntryDate.Format("2006-01-02"),
			Score:             s.Score,
		})
	}
	httpx.JSON(w, http.StatusOK, views)
}

func (h *Handler) matches(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	matches, err := h.service.ListMatches(r.Context(), id)
	if err != nil {
		h.respondError(w, "list matches", err)
		return
	}
	views := make([]matchView, 0, len(matches))
	for _, m := range matches {
		views = append(views, toMatchView(m))
	}
	httpx.JSON(w, http.StatusOK, views)
}

type manualMatchDTO struct {
	BankTransactionID int64  `json:"bank_transaction_id" validate:"required,gt=0"`
	JournalEntryID    int64  `json:"journal_entry_id" validate:"required,gt=0"`
	Notes             string `json:"notes"`
}

func (h *Handler) manualMatch(w http.ResponseWriter, r *http.Request) {
	var dto manualMatchDTO
	if err := httpx.DecodeJSON(r, &dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	match, err := h.service.ManualMatch(r.Context(), ManualMatchInput{
		BankTransactionID: dto.BankTransactionID,
		JournalEntryID:    dto.JournalEntryID,
		Notes:             dto.Notes,
		ActorID:           shared.PrincipalFromContext(r.Context()).UserID,
	})
	if err != nil {
		h.respondError(w, "manual match", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toMatchView(match))
}

func parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid statement id")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicateMatch), errors.Is(err, ErrPairLocked):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

type suggestionView struct {
	BankTransactionID int64   `json:"bank_transaction_id"`
	JournalEntryID    int64   `json:"journal_entry_id"`
	EntryDate         string  `json:"entry_date"`
	Score             float64 `json:"score"`
}

type matchView struct {
	ID                int64   `json:"id"`
	BankTransactionID int64   `json:"bank_transaction_id"`
	JournalEntryID    int64   `json:"journal_entry_id"`
	Type              string  `json:"type"`
	Confidence        float64 `json:"confidence"`
	Notes             string  `json:"notes,omitempty"`
}

func toMatchView(m Match) matchView {
	return matchView{
		ID:                m.ID,
		BankTransactionID: m.BankTransactionID,
		JournalEntryID:    m.JournalEntryID,
		Type:              string(m.Type),
		Confidence:        m.Confidence,
		Notes:             m.Notes,
	}
}
