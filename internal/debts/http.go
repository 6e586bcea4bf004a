package debts

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/credinet/credinet/internal/platform/httpx"
	"github.com/credinet/credinet/internal/shared"
)

type debtService interface {
	ApplyDebtPayment(ctx context.Context, in PaymentInput) (PaymentResult, error)
	DebtSummary(ctx context.Context, associateID int64) (Summary, error)
	ListItems(ctx context.Context, associateID int64, page shared.Page) ([]DebtItem, error)
}

// Handler serves debt ledger endpoints.
type Handler struct {
	logger  *slog.Logger
	service debtService
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service debtService) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/associates/{id}/debt", h.summary)
	r.Get("/associates/{id}/debt/items", h.items)
	r.Post("/associates/{id}/debt/payments", h.pay)
}

type paymentRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	sum, err := h.service.DebtSummary(r.Context(), id)
	if err != nil {
		h.fail(w, "debt summary", err)
		return
	}
	httpx.JSON(w, http.StatusOK, sum)
}

func (h *Handler) items(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out, err := h.service.ListItems(r.Context(), id, shared.PageFromQuery(r.URL.Query()))
	if err != nil {
		h.fail(w, "debt items", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": out})
}

func (h *Handler) pay(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req paymentRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.service.ApplyDebtPayment(r.Context(), PaymentInput{
		AssociateID: id,
		Amount:      req.Amount,
		ActorID:     shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.fail(w, "debt payment", err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	h.logger.Warn(msg, slog.Any("error", err))
	httpx.RespondError(w, err)
}
