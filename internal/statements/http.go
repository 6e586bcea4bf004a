package statements

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/credinet/credinet/internal/platform/httpx"
	"github.com/credinet/credinet/internal/shared"
)

type statementService interface {
	Get(ctx context.Context, id int64) (View, error)
	ListByPeriod(ctx context.Context, periodID int64, page shared.Page) ([]View, error)
	ListPayments(ctx context.Context, statementID int64) ([]StatementPayment, error)
	RegisterPayment(ctx context.Context, in RegisterPaymentInput) (RegisterPaymentResult, error)
	RegisterAssociatePayment(ctx context.Context, in AssociatePaymentInput) (AssociatePaymentResult, error)
	ApplyLateFee(ctx context.Context, statementID, actorID int64, notes string) (View, error)
}

// Handler serves statement endpoints.
type Handler struct {
	logger  *slog.Logger
	service statementService
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service statementService) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/periods/{id}/statements", h.listByPeriod)
	r.Get("/statements/{id}", h.get)
	r.Get("/statements/{id}/payments", h.listPayments)
	r.Post("/statements/{id}/payments", h.registerPayment)
	r.Post("/statements/{id}/installments/{paymentID}/associate-payment", h.registerAssociatePayment)
	r.Post("/statements/{id}/late-fee", h.lateFee)
}

type paymentRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	PaymentDate string          `json:"payment_date" validate:"required,datetime=2006-01-02"`
	Method      string          `json:"method" validate:"required"`
	Reference   string          `json:"reference" validate:"max=120"`
	Notes       string          `json:"notes" validate:"max=1000"`
}

type associatePaymentRequest struct {
	PaymentDate string `json:"payment_date" validate:"required,datetime=2006-01-02"`
	Method      string `json:"method" validate:"required"`
	Reference   string `json:"reference" validate:"max=120"`
	Notes       string `json:"notes" validate:"max=1000"`
}

type lateFeeRequest struct {
	Notes string `json:"notes" validate:"required,max=1000"`
}

func (h *Handler) listByPeriod(w http.ResponseWriter, r *http.Request) {
	periodID, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out, err := h.service.ListByPeriod(r.Context(), periodID, shared.PageFromQuery(r.URL.Query()))
	if err != nil {
		h.fail(w, "list statements", err)
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
	st, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get statement", err)
		return
	}
	httpx.JSON(w, http.StatusOK, st)
}

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out, err := h.service.ListPayments(r.Context(), id)
	if err != nil {
		h.fail(w, "list abonos", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": out})
}

func (h *Handler) registerPayment(w http.ResponseWriter, r *http.Request) {
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
	date, err := time.Parse(time.DateOnly, req.PaymentDate)
	if err != nil {
		httpx.RespondError(w, shared.Invalid("payment_date", "must be YYYY-MM-DD"))
		return
	}
	res, err := h.service.RegisterPayment(r.Context(), RegisterPaymentInput{
		StatementID: id,
		Amount:      req.Amount,
		PaymentDate: date,
		Method:      req.Method,
		Reference:   req.Reference,
		Notes:       req.Notes,
		RecordedBy:  shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.fail(w, "register abono", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, res)
}

func (h *Handler) registerAssociatePayment(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	paymentID, err := httpx.IDParam(r, "paymentID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req associatePaymentRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	date, err := time.Parse(time.DateOnly, req.PaymentDate)
	if err != nil {
		httpx.RespondError(w, shared.Invalid("payment_date", "must be YYYY-MM-DD"))
		return
	}
	res, err := h.service.RegisterAssociatePayment(r.Context(), AssociatePaymentInput{
		StatementID: id,
		PaymentID:   paymentID,
		PaymentDate: date,
		Method:      req.Method,
		Reference:   req.Reference,
		Notes:       req.Notes,
		RecordedBy:  shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.fail(w, "register associate payment", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, res)
}

func (h *Handler) lateFee(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req lateFeeRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	st, err := h.service.ApplyLateFee(r.Context(), id, shared.ActorFromContext(r.Context()), req.Notes)
	if err != nil {
		h.fail(w, "apply late fee", err)
		return
	}
	httpx.JSON(w, http.StatusOK, st)
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	h.logger.Warn(msg, slog.Any("error", err))
	httpx.RespondError(w, err)
}
