package loans

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/credinet/credinet/internal/platform/httpx"
	"github.com/credinet/credinet/internal/shared"
)

type loanService interface {
	CreateLoan(ctx context.Context, in CreateLoanInput) (Loan, error)
	ApproveLoan(ctx context.Context, in ApproveInput) (Loan, error)
	RejectLoan(ctx context.Context, in RejectInput) (Loan, error)
	TransitionLoan(ctx context.Context, in TransitionInput) (Loan, error)
	CancelLoan(ctx context.Context, in CancelInput) (Loan, error)
	DeleteLoan(ctx context.Context, in DeleteInput) error
	GetLoan(ctx context.Context, id int64) (Loan, error)
	ListLoans(ctx context.Context, filter ListFilter) ([]Loan, error)
	GetAmortizationSchedule(ctx context.Context, loanID int64) (LoanSchedule, error)
}

// Handler serves loan endpoints.
type Handler struct {
	logger  *slog.Logger
	service loanService
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service loanService) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/loans", h.list)
	r.Post("/loans", h.create)
	r.Get("/loans/{id}", h.get)
	r.Delete("/loans/{id}", h.delete)
	r.Get("/loans/{id}/schedule", h.schedule)
	r.Post("/loans/{id}/approve", h.approve)
	r.Post("/loans/{id}/reject", h.reject)
	r.Post("/loans/{id}/transition", h.transition)
	r.Post("/loans/{id}/cancel", h.cancel)
}

type createRequest struct {
	ClientID    int64            `json:"client_id" validate:"required,gt=0"`
	AssociateID *int64           `json:"associate_id" validate:"omitempty,gt=0"`
	Amount      decimal.Decimal  `json:"amount"`
	TermBiweeks int              `json:"term_biweeks" validate:"required,gt=0"`
	ProfileCode string           `json:"profile_code" validate:"required"`
	CustomRate  *decimal.Decimal `json:"custom_interest_rate"`
	Notes       string           `json:"notes" validate:"max=2000"`
}

type approveRequest struct {
	Notes string `json:"notes" validate:"max=2000"`
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

type transitionRequest struct {
	Status Status `json:"status" validate:"required"`
	Notes  string `json:"notes" validate:"max=2000"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{Status: Status(q.Get("status")), Page: shared.PageFromQuery(q)}
	filter.AssociateID, _ = strconv.ParseInt(q.Get("associate_id"), 10, 64)
	filter.ClientID, _ = strconv.ParseInt(q.Get("client_id"), 10, 64)
	out, err := h.service.ListLoans(r.Context(), filter)
	if err != nil {
		h.fail(w, "list loans", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": out})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	loan, err := h.service.CreateLoan(r.Context(), CreateLoanInput{
		ClientID:    req.ClientID,
		AssociateID: req.AssociateID,
		Amount:      req.Amount,
		TermBiweeks: req.TermBiweeks,
		ProfileCode: req.ProfileCode,
		CustomRate:  req.CustomRate,
		Notes:       req.Notes,
		CreatedBy:   shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.fail(w, "create loan", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, loan)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	loan, err := h.service.GetLoan(r.Context(), id)
	if err != nil {
		h.fail(w, "get loan", err)
		return
	}
	httpx.JSON(w, http.StatusOK, loan)
}

func (h *Handler) schedule(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	schedule, err := h.service.GetAmortizationSchedule(r.Context(), id)
	if err != nil {
		h.fail(w, "loan schedule", err)
		return
	}
	httpx.JSON(w, http.StatusOK, schedule)
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	var req approveRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	loan, err := h.service.ApproveLoan(r.Context(), ApproveInput{
		LoanID:     id,
		ApprovedBy: shared.ActorFromContext(r.Context()),
		Notes:      req.Notes,
	})
	if err != nil {
		h.fail(w, "approve loan", err)
		return
	}
	httpx.JSON(w, http.StatusOK, loan)
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	var req reasonRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	loan, err := h.service.RejectLoan(r.Context(), RejectInput{
		LoanID:     id,
		RejectedBy: shared.ActorFromContext(r.Context()),
		Reason:     req.Reason,
	})
	if err != nil {
		h.fail(w, "reject loan", err)
		return
	}
	httpx.JSON(w, http.StatusOK, loan)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	var req transitionRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	loan, err := h.service.TransitionLoan(r.Context(), TransitionInput{
		LoanID:  id,
		To:      req.Status,
		ActorID: shared.ActorFromContext(r.Context()),
		Notes:   req.Notes,
	})
	if err != nil {
		h.fail(w, "transition loan", err)
		return
	}
	httpx.JSON(w, http.StatusOK, loan)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	var req reasonRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	loan, err := h.service.CancelLoan(r.Context(), CancelInput{
		LoanID:  id,
		ActorID: shared.ActorFromContext(r.Context()),
		Reason:  req.Reason,
	})
	if err != nil {
		h.fail(w, "cancel loan", err)
		return
	}
	httpx.JSON(w, http.StatusOK, loan)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))
	if err := h.service.DeleteLoan(r.Context(), DeleteInput{
		LoanID:  id,
		ActorID: shared.ActorFromContext(r.Context()),
		Force:   force,
	}); err != nil {
		h.fail(w, "delete loan", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) id(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return 0, false
	}
	return id, true
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	h.logger.Warn(msg, slog.Any("error", err))
	httpx.RespondError(w, err)
}
