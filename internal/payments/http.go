package payments

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/credinet/credinet/internal/platform/httpx"
	"github.com/credinet/credinet/internal/shared"
)

type paymentService interface {
	Get(ctx context.Context, id int64) (Payment, error)
	ListByLoan(ctx context.Context, loanID int64) ([]Payment, error)
	MarkPaid(ctx context.Context, in MarkPaidInput) (MarkPaidResult, error)
}

// Handler serves installment endpoints.
type Handler struct {
	logger  *slog.Logger
	service paymentService
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service paymentService) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/loans/{id}/payments", h.listByLoan)
	r.Get("/payments/{id}", h.get)
	r.Post("/payments/{id}/mark-paid", h.markPaid)
}

type markPaidRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Notes  string          `json:"notes" validate:"max=1000"`
}

func (h *Handler) listByLoan(w http.ResponseWriter, r *http.Request) {
	loanID, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out, err := h.service.ListByLoan(r.Context(), loanID)
	if err != nil {
		h.fail(w, "list payments", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": out})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get payment", err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) markPaid(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req markPaidRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.service.MarkPaid(r.Context(), MarkPaidInput{
		PaymentID: id,
		Amount:    req.Amount,
		MarkedBy:  shared.ActorFromContext(r.Context()),
		Notes:     req.Notes,
	})
	if err != nil {
		h.fail(w, "mark payment", err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	h.logger.Warn(msg, slog.Any("error", err))
	httpx.RespondError(w, err)
}
