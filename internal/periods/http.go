package periods

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/credinet/credinet/internal/platform/httpx"
	"github.com/credinet/credinet/internal/shared"
)

type periodService interface {
	SeedYear(ctx context.Context, year int) ([]CutPeriod, error)
	GetPeriod(ctx context.Context, id int64) (CutPeriod, error)
	ListPeriods(ctx context.Context, status Status, page shared.Page) ([]CutPeriod, error)
	Cutoff(ctx context.Context, periodID, actorID int64) (BatchReport, error)
	OpenCollection(ctx context.Context, periodID, actorID int64) (CutPeriod, error)
	StartSettlement(ctx context.Context, periodID, actorID int64) (CutPeriod, error)
	ClosePeriod(ctx context.Context, periodID, actorID int64) (BatchReport, error)
}

// Handler exposes the period lifecycle over HTTP.
type Handler struct {
	logger  *slog.Logger
	service periodService
}

// NewHandler builds a Handler.
func NewHandler(logger *slog.Logger, service periodService) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/periods", h.list)
	r.Post("/periods/seed", h.seed)
	r.Get("/periods/{id}", h.get)
	r.Post("/periods/{id}/cutoff", h.cutoff)
	r.Post("/periods/{id}/collect", h.step(h.service.OpenCollection, "open collection"))
	r.Post("/periods/{id}/settle", h.step(h.service.StartSettlement, "start settlement"))
	r.Post("/periods/{id}/close", h.close)
}

type seedRequest struct {
	Year int `json:"year" validate:"required,gte=2000,lte=2100"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	status := Status(r.URL.Query().Get("status"))
	out, err := h.service.ListPeriods(r.Context(), status, shared.PageFromQuery(r.URL.Query()))
	if err != nil {
		h.fail(w, "list periods", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": out})
}

func (h *Handler) seed(w http.ResponseWriter, r *http.Request) {
	var req seedRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	created, err := h.service.SeedYear(r.Context(), req.Year)
	if err != nil {
		h.fail(w, "seed periods", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"created": len(created), "data": created})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, err := h.service.GetPeriod(r.Context(), id)
	if err != nil {
		h.fail(w, "get period", err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) cutoff(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	report, err := h.service.Cutoff(r.Context(), id, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.fail(w, "cutoff", err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) close(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	report, err := h.service.ClosePeriod(r.Context(), id, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.fail(w, "close period", err)
		return
	}
	status := http.StatusOK
	if report.Failed > 0 {
		status = http.StatusMultiStatus
	}
	httpx.JSON(w, status, report)
}

func (h *Handler) step(fn func(context.Context, int64, int64) (CutPeriod, error), msg string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := httpx.IDParam(r, "id")
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		p, err := fn(r.Context(), id, shared.ActorFromContext(r.Context()))
		if err != nil {
			h.fail(w, msg, err)
			return
		}
		httpx.JSON(w, http.StatusOK, p)
	}
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	h.logger.Warn(msg, slog.Any("error", err))
	httpx.RespondError(w, err)
}
