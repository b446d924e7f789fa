// Package handler exposes the tool registry endpoints.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"overseer/internal/tool/models"
	"overseer/pkg/platform/httputil"
	"overseer/pkg/requestcontext"
)

// Service is the registry contract.
type Service interface {
	Register(ctx context.Context, name string) (models.Tool, error)
	List(ctx context.Context) ([]models.Tool, error)
	Delete(ctx context.Context, name string) error
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterPublic mounts the unauthenticated listing route.
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Get("/tool-types", h.handleList)
}

// RegisterAdmin mounts the registry mutation routes.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/tool-types", h.handleCreate)
	r.Delete("/tool-types/{toolName}", h.handleDelete)
}

type toolPayload struct {
	Name string `json:"name"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tools, err := h.service.List(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "tool listing failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	rendered := make([]toolPayload, len(tools))
	for i, tool := range tools {
		rendered[i] = toolPayload{Name: tool.Name}
	}
	httputil.WriteJSON(w, http.StatusOK, rendered)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	payload, ok := httputil.DecodeAndPrepare[toolPayload](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	tool, err := h.service.Register(ctx, payload.Name)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toolPayload{Name: tool.Name})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "toolName")); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
