package associates

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/credinet/credinet/internal/platform/httpx"
	"github.com/credinet/credinet/internal/shared"
)

type associateService interface {
	Get(ctx context.Context, id int64) (Associate, error)
	List(ctx context.Context, page shared.Page) ([]Associate, error)
	Create(ctx context.Context, in CreateInput) (Associate, error)
	UpdateLimit(ctx context.Context, in UpdateLimitInput) (Associate, error)
}

// Handler serves associate endpoints.
type Handler struct {
	logger  *slog.Logger
	service associateService
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service associateService) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/associates", h.list)
	r.Post("/associates", h.create)
	r.Get("/associates/{id}", h.get)
	r.Put("/associates/{id}/credit-limit", h.updateLimit)
}

type createRequest struct {
	Name        string          `json:"name" validate:"required,max=200"`
	CreditLimit decimal.Decimal `json:"credit_limit"`
}

type limitRequest struct {
	CreditLimit decimal.Decimal `json:"credit_limit"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.List(r.Context(), shared.PageFromQuery(r.URL.Query()))
	if err != nil {
		h.fail(w, "list associates", err)
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
	a, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get associate", err)
		return
	}
	httpx.JSON(w, http.StatusOK, a)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	a, err := h.service.Create(r.Context(), CreateInput{
		Name:        req.Name,
		CreditLimit: req.CreditLimit,
		ActorID:     shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.fail(w, "create associate", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, a)
}

func (h *Handler) updateLimit(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req limitRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	a, err := h.service.UpdateLimit(r.Context(), UpdateLimitInput{
		AssociateID: id,
		CreditLimit: req.CreditLimit,
		ActorID:     shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.fail(w, "update credit limit", err)
		return
	}
	httpx.JSON(w, http.StatusOK, a)
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	h.logger.Warn(msg, slog.Any("error", err))
	httpx.RespondError(w, err)
}
