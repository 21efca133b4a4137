package ledger

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/amanah-erp/amanah-erp/internal/platform/httpx"
	"github.com/amanah-erp/amanah-erp/internal/shared"
)

func actorFrom(r *http.Request) int64 {
	return shared.PrincipalFromContext(r.Context()).UserID
}

// Handler exposes the ledger over the JSON API.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers ledger endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/accounts", h.listAccounts)
	r.Get("/entries/{id}", h.getEntry)
	r.Post("/entries", h.postEntry)
	r.Post("/entries/{id}/reverse", h.reverseEntry)
	r.Get("/trial-balance", h.trialBalance)
}

type postingLineDTO struct {
	AccountID int64  `json:"account_id" validate:"required"`
	Debit     string `json:"debit"`
	Credit    string `json:"credit"`
}

type postEntryDTO struct {
	Date         string           `json:"date" validate:"required,datetime=2006-01-02"`
	Memo         string           `json:"memo"`
	SourceModule string           `json:"source_module" validate:"required"`
	SourceID     string           `json:"source_id" validate:"required,uuid4"`
	Lines        []postingLineDTO `json:"lines" validate:"required,min=2,dive"`
}

func (h *Handler) postEntry(w http.ResponseWriter, r *http.Request) {
	var dto postEntryDTO
	if err := httpx.DecodeJSON(r, &dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	in, err := dto.toInput(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	entry, err := h.service.PostEntry(r.Context(), in)
	if err != nil {
		h.respondError(w, "post entry", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toEntryView(entry))
}

func (h *Handler) reverseEntry(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid entry id")
		return
	}
	var dto struct {
		Memo string `json:"memo"`
		By   int64  `json:"actor_id" validate:"required"`
	}
	if err := httpx.DecodeJSON(r, &dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(dto); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	reversal, err := h.service.ReverseEntry(r.Context(), ReverseInput{EntryID: id, ActorID: dto.By, Memo: dto.Memo})
	if err != nil {
		h.respondError(w, "reverse entry", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toEntryView(reversal))
}

func (h *Handler) getEntry(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid entry id")
		return
	}
	entry, err := h.service.GetEntry(r.Context(), id)
	if err != nil {
		h.respondError(w, "get entry", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toEntryView(entry))
}

func (h *Handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.service.ListAccounts(r.Context())
	if err != nil {
		h.respondError(w, "list accounts", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"accounts": accounts})
}

func (h *Handler) trialBalance(w http.ResponseWriter, r *http.Request) {
	asOf := time.Now()
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "as_of must be YYYY-MM-DD")
			return
		}
		asOf = parsed
	}
	tb, err := h.service.TrialBalance(r.Context(), asOf)
	if err != nil {
		h.respondError(w, "trial balance", err)
		return
	}
	httpx.JSON(w, http.StatusOK, tb)
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrEntryNotFound), errors.Is(err, ErrAccountNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrUnbalanced), errors.Is(err, ErrTooFewLines):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Unbalanced Entry", err.Error())
	case errors.Is(err, ErrPeriodClosed):
		httpx.Problem(w, http.StatusConflict, "Closed Period", err.Error())
	case errors.Is(err, ErrAlreadyReversed):
		httpx.Problem(w, http.StatusConflict, "Already Reversed", err.Error())
	case errors.Is(err, ErrVersionConflict):
		httpx.Problem(w, http.StatusConflict, "Concurrency Conflict", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func (dto postEntryDTO) toInput(r *http.Request) (PostingInput, error) {
	date, err := time.Parse("2006-01-02", dto.Date)
	if err != nil {
		return PostingInput{}, err
	}
	sourceID, err := uuid.Parse(dto.SourceID)
	if err != nil {
		return PostingInput{}, err
	}
	lines := make([]PostingLineInput, 0, len(dto.Lines))
	for _, l := range dto.Lines {
		debit, err := parseAmount(l.Debit)
		if err != nil {
			return PostingInput{}, err
		}
		credit, err := parseAmount(l.Credit)
		if err != nil {
			return PostingInput{}, err
		}
		lines = append(lines, PostingLineInput{AccountID: l.AccountID, Debit: debit, Credit: credit})
	}
	return PostingInput{
		Date:         date,
		Memo:         dto.Memo,
		SourceModule: dto.SourceModule,
		SourceID:     sourceID,
		PostedBy:     actorFrom(r),
		Lines:        lines,
	}, nil
}

func parseAmount(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(raw)
}

type entryLineView struct {
	AccountID int64  `json:"account_id"`
	Debit     string `json:"debit"`
	Credit    string `json:"credit"`
}

type entryView struct {
	ID           int64           `json:"id"`
	Number       int64           `json:"number"`
	Date         string          `json:"date"`
	Memo         string          `json:"memo,omitempty"`
	SourceModule string          `json:"source_module"`
	SourceID     string          `json:"source_id"`
	Status       string          `json:"status"`
	ReversalOf   *int64          `json:"reversal_of,omitempty"`
	Lines        []entryLineView `json:"lines"`
}

func toEntryView(entry JournalEntry) entryView {
	view := entryView{
		ID:           entry.ID,
		Number:       entry.Number,
		Date:         entry.Date.Format("2006-01-02"),
		Memo:         entry.Memo,
		SourceModule: entry.SourceModule,
		SourceID:     entry.SourceID.String(),
		Status:       string(entry.Status),
		ReversalOf:   entry.ReversalOf,
	}
	for _, l := range entry.Lines {
		view.Lines = append(view.Lines, entryLineView{
			AccountID: l.AccountID,
			Debit:     l.Debit.StringFixed(2),
			Credit:    l.Credit.StringFixed(2),
		})
	}
	return view
}
