// Package catalog serves read-only reference data: rate profiles, quotes and status tables.
package catalog

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/credinet/credinet/internal/amortization"
	"github.com/credinet/credinet/internal/loans"
	"github.com/credinet/credinet/internal/payments"
	"github.com/credinet/credinet/internal/periods"
	"github.com/credinet/credinet/internal/platform/httpx"
	"github.com/credinet/credinet/internal/rates"
	"github.com/credinet/credinet/internal/shared"
	"github.com/credinet/credinet/internal/statements"
)

// RateSource lists and resolves rate profiles.
type RateSource interface {
	amortization.Catalog
	Profiles() []rates.RateProfile
}

// Handler serves catalog endpoints.
type Handler struct {
	logger *slog.Logger
	rates  RateSource
	now    func() time.Time
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, source RateSource) *Handler {
	return &Handler{logger: logger, rates: source, now: time.Now}
}

// MountRoutes registers routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/rates", h.listProfiles)
	r.Get("/rates/{code}", h.getProfile)
	r.Post("/rates/quote", h.quote)
	r.Get("/catalog/statuses", h.statuses)
}

// StatusCatalog groups every entity's status table.
type StatusCatalog struct {
	Loans      []loans.StatusInfo      `json:"loans"`
	Payments   []payments.StatusInfo   `json:"payments"`
	Periods    []periods.StatusInfo    `json:"periods"`
	Statements []statements.StatusInfo `json:"statements"`
}

// Statuses assembles the status catalog.
func Statuses() StatusCatalog {
	return StatusCatalog{
		Loans:      loans.Statuses(),
		Payments:   payments.Statuses(),
		Periods:    periods.Statuses(),
		Statements: statements.Statuses(),
	}
}

type quoteRequest struct {
	ProfileCode  string           `json:"profile_code" validate:"required"`
	Amount       decimal.Decimal  `json:"amount"`
	TermBiweeks  int              `json:"term_biweeks" validate:"required,gt=0"`
	CustomRate   *decimal.Decimal `json:"custom_interest_rate"`
	ApprovalDate string           `json:"approval_date" validate:"omitempty,datetime=2006-01-02"`
}

func (h *Handler) listProfiles(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]any{"data": h.rates.Profiles()})
}

func (h *Handler) getProfile(w http.ResponseWriter, r *http.Request) {
	p, err := h.rates.Profile(chi.URLParam(r, "code"))
	if err != nil {
		h.fail(w, "get rate profile", err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) quote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	approval := h.now()
	if req.ApprovalDate != "" {
		parsed, err := time.Parse(time.DateOnly, req.ApprovalDate)
		if err != nil {
			httpx.RespondError(w, shared.Invalid("approval_date", "must be YYYY-MM-DD"))
			return
		}
		approval = parsed
	}
	q, err := amortization.BuildQuote(h.rates, amortization.QuoteInput{
		ProfileCode:  req.ProfileCode,
		Amount:       req.Amount,
		TermBiweeks:  req.TermBiweeks,
		CustomRate:   req.CustomRate,
		ApprovalDate: approval,
	})
	if err != nil {
		h.fail(w, "quote", err)
		return
	}
	httpx.JSON(w, http.StatusOK, q)
}

func (h *Handler) statuses(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, Statuses())
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	h.logger.Warn(msg, slog.Any("error", err))
	httpx.RespondError(w, err)
}
