// Package handler exposes the access request and log retrieval endpoints.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"overseer/internal/access/models"
	"overseer/internal/access/service"
	"overseer/internal/access/store"
	id "overseer/pkg/domain"
	dErrors "overseer/pkg/domain-errors"
	"overseer/pkg/platform/httputil"
	"overseer/pkg/requestcontext"
)

// Service is the access orchestration contract.
type Service interface {
	Request(ctx context.Context, req service.Request) (*service.Decision, error)
	List(ctx context.Context, owner id.SubjectID, filter store.ListFilter) ([]*models.DataAccess, error)
	Counts(ctx context.Context, owner id.SubjectID) (*store.FieldCounts, error)
	Generate(ctx context.Context, owner id.SubjectID, dateStart, dateEnd id.Date, n int, tools []string) error
}

// ToolLister provides the registered tool names for log generation.
type ToolLister interface {
	ListNames(ctx context.Context) ([]string, error)
}

type Handler struct {
	service Service
	tools   ToolLister
	logger  *slog.Logger
}

func New(service Service, tools ToolLister, logger *slog.Logger) *Handler {
	return &Handler{service: service, tools: tools, logger: logger}
}

// RegisterRequests mounts the technical-user endpoints.
func (h *Handler) RegisterRequests(r chi.Router) {
	r.Post("/request-access/direct", h.handleDirect)
	r.Post("/request-access/query", h.handleKind(id.AccessKindQuery))
	r.Post("/request-access/aggregate", h.handleKind(id.AccessKindAggregate))
}

// RegisterOwner mounts the owner-facing log endpoints.
func (h *Handler) RegisterOwner(r chi.Router) {
	r.Get("/data-accesses", h.handleList)
	r.Get("/data-accesses/counts", h.handleCounts)
}

// RegisterAdmin mounts the admin endpoints.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/generate", h.handleGenerate)
}

func (h *Handler) handleDirect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[directAccessRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	h.evaluate(w, r, service.Request{
		Tool:          req.Tool,
		Kind:          id.AccessKindDirect,
		User:          req.User,
		Justification: req.Justification,
		DataTypes:     req.DataTypes,
		OwnerIDs:      []string{req.Owner},
	})
}

func (h *Handler) handleKind(kind id.AccessKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		req, ok := httputil.DecodeAndPrepare[multiOwnerAccessRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
		if !ok {
			return
		}
		h.evaluate(w, r, service.Request{
			Tool:          req.Tool,
			Kind:          kind,
			User:          req.User,
			Justification: req.Justification,
			DataTypes:     req.DataTypes,
			OwnerIDs:      req.Owners,
		})
	}
}

func (h *Handler) evaluate(w http.ResponseWriter, r *http.Request, req service.Request) {
	ctx := r.Context()
	decision, err := h.service.Request(ctx, req)
	if err != nil {
		h.logError(ctx, "access request failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, accessResponse{
		Granted:        decision.Granted,
		GrantedOwners:  subjectsToStrings(decision.GrantedOwners),
		RejectedOwners: subjectsToStrings(decision.RejectedOwners),
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner := requestcontext.Subject(ctx)

	filter, err := parseListFilter(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	accesses, err := h.service.List(ctx, owner, filter)
	if err != nil {
		h.logError(ctx, "access listing failed", err)
		httputil.WriteError(w, err)
		return
	}

	listed := make([]listedAccess, len(accesses))
	for i, access := range accesses {
		listed[i] = listedAccess{
			AccessKind:    access.Kind.String(),
			DataTypes:     access.DataTypes,
			Justification: access.Justification,
			OwnerRID:      owner.String(),
			Timestamp:     access.Timestamp.Format(time.RFC3339),
			Tool:          access.Tool,
			UserRID:       access.User.String(),
		}
	}
	httputil.WriteJSON(w, http.StatusOK, listAccessesResponse{
		Accesses: listed,
		OwnerRID: owner.String(),
	})
}

func (h *Handler) handleCounts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	counts, err := h.service.Counts(ctx, requestcontext.Subject(ctx))
	if err != nil {
		h.logError(ctx, "access counting failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, countsResponse{
		Users:       counts.Users,
		Tools:       counts.Tools,
		AccessKinds: counts.Kinds,
	})
}

func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	owner, err := id.ParseSubjectID(query.Get("owner_rid"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	dateStart, err := id.ParseDate(query.Get("date_start"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	dateEnd, err := id.ParseDate(query.Get("date_end"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	n, err := strconv.Atoi(query.Get("number_of_entries"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "number_of_entries must be an integer"))
		return
	}

	tools, err := h.tools.ListNames(ctx)
	if err != nil {
		h.logError(ctx, "tool listing failed", err)
		httputil.WriteError(w, err)
		return
	}

	if err := h.service.Generate(ctx, owner, dateStart, dateEnd, n, tools); err != nil {
		h.logError(ctx, "log generation failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, strconv.Itoa(n)+" entries were added")
}

func parseListFilter(r *http.Request) (store.ListFilter, error) {
	var filter store.ListFilter
	query := r.URL.Query()

	if raw := query.Get("date_start"); raw != "" {
		date, err := id.ParseDate(raw)
		if err != nil {
			return filter, err
		}
		filter.DateStart = date
	}
	if raw := query.Get("date_end"); raw != "" {
		date, err := id.ParseDate(raw)
		if err != nil {
			return filter, err
		}
		filter.DateEnd = date
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return filter, dErrors.New(dErrors.CodeValidation, "limit must be a non-negative integer")
		}
		filter.Limit = limit
	}
	if raw := query.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return filter, dErrors.New(dErrors.CodeValidation, "offset must be a non-negative integer")
		}
		filter.Offset = offset
	}
	return filter, nil
}

func (h *Handler) logError(ctx context.Context, msg string, err error) {
	h.logger.ErrorContext(ctx, msg,
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	)
}
