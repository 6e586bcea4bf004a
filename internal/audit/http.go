package audit

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/credinet/credinet/internal/platform/httpx"
	"github.com/credinet/credinet/internal/shared"
)

type timelineService interface {
	Timeline(ctx context.Context, filters TimelineFilters) (Result, error)
}

// Handler serves the audit trail.
type Handler struct {
	logger  *slog.Logger
	service timelineService
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service timelineService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/audit", h.timeline)
	r.Get("/audit/{entity}/{entityID}", h.entityTimeline)
}

func (h *Handler) timeline(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r.URL.Query())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.respond(w, r, filters)
}

func (h *Handler) entityTimeline(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r.URL.Query())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	filters.Entity = chi.URLParam(r, "entity")
	filters.EntityID = chi.URLParam(r, "entityID")
	h.respond(w, r, filters)
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, filters TimelineFilters) {
	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		h.logger.Warn("audit timeline", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func parseFilters(q url.Values) (TimelineFilters, error) {
	var (
		f   TimelineFilters
		err error
	)
	if f.From, err = parseInstant("from", q.Get("from")); err != nil {
		return f, err
	}
	if f.To, err = parseInstant("to", q.Get("to")); err != nil {
		return f, err
	}
	if raw := q.Get("actor_id"); raw != "" {
		if f.ActorID, err = strconv.ParseInt(raw, 10, 64); err != nil {
			return f, shared.Invalid("actor_id", "must be an integer")
		}
	}
	f.Entity = q.Get("entity")
	f.EntityID = q.Get("entity_id")
	f.Action = q.Get("action")
	f.Page, _ = strconv.Atoi(q.Get("page"))
	f.PageSize, _ = strconv.Atoi(q.Get("page_size"))
	return f, nil
}

// parseInstant accepts RFC3339 or a bare date, read as midnight UTC.
func parseInstant(field, raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, shared.Invalid(field, "expected RFC3339 or YYYY-MM-DD")
	}
	return t, nil
}
