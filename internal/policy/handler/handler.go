// Package handler exposes owner-scoped policy CRUD. Every route acts on the
// authenticated owner's policies only.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"overseer/internal/policy/models"
	id "overseer/pkg/domain"
	dErrors "overseer/pkg/domain-errors"
	"overseer/pkg/platform/httputil"
	"overseer/pkg/requestcontext"
)

// Service is the policy CRUD contract.
type Service interface {
	Create(ctx context.Context, owner id.SubjectID, fields models.Fields) (*models.Policy, error)
	List(ctx context.Context, owner id.SubjectID) ([]*models.Policy, error)
	Get(ctx context.Context, owner id.SubjectID, policyID id.PolicyID) (*models.Policy, error)
	Update(ctx context.Context, owner id.SubjectID, policyID id.PolicyID, fields models.Fields) (*models.Policy, error)
	Delete(ctx context.Context, owner id.SubjectID, policyID id.PolicyID) error
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/data-access-policies", h.handleList)
	r.Post("/data-access-policies", h.handleCreate)
	r.Get("/data-access-policies/{policyID}", h.handleGet)
	r.Put("/data-access-policies/{policyID}", h.handleUpdate)
	r.Delete("/data-access-policies/{policyID}", h.handleDelete)
}

// policyPayload is the wire form of a policy. Null fields are wildcards.
type policyPayload struct {
	ID            string         `json:"id,omitempty"`
	AccessKind    *id.AccessKind `json:"access_kind"`
	Tool          *string        `json:"tool"`
	UserRID       *string        `json:"user_rid"`
	ValidityStart *id.Date       `json:"validity_period_start_date"`
	ValidityEnd   *id.Date       `json:"validity_period_end_date"`
}

func (p *policyPayload) Validate() error {
	if p.AccessKind != nil {
		if _, err := id.ParseAccessKind(p.AccessKind.String()); err != nil {
			return err
		}
	}
	return p.fields().Validate()
}

func (p *policyPayload) fields() models.Fields {
	fields := models.Fields{
		Tool:       p.Tool,
		AccessKind: p.AccessKind,
	}
	if p.UserRID != nil {
		subject := id.SubjectID(*p.UserRID)
		fields.User = &subject
	}
	if p.ValidityStart != nil && !p.ValidityStart.IsZero() {
		fields.ValidityStart = p.ValidityStart
	}
	if p.ValidityEnd != nil && !p.ValidityEnd.IsZero() {
		fields.ValidityEnd = p.ValidityEnd
	}
	return fields
}

func renderPolicy(policy *models.Policy) policyPayload {
	payload := policyPayload{
		ID:            policy.ID.String(),
		AccessKind:    policy.AccessKind,
		Tool:          policy.Tool,
		ValidityStart: policy.ValidityStart,
		ValidityEnd:   policy.ValidityEnd,
	}
	if policy.User != nil {
		user := policy.User.String()
		payload.UserRID = &user
	}
	return payload
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	policies, err := h.service.List(ctx, requestcontext.Subject(ctx))
	if err != nil {
		h.logError(ctx, "policy listing failed", err)
		httputil.WriteError(w, err)
		return
	}
	rendered := make([]policyPayload, len(policies))
	for i, policy := range policies {
		rendered[i] = renderPolicy(policy)
	}
	httputil.WriteJSON(w, http.StatusOK, rendered)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	payload, ok := httputil.DecodeAndPrepare[policyPayload](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	policy, err := h.service.Create(ctx, requestcontext.Subject(ctx), payload.fields())
	if err != nil {
		h.logError(ctx, "policy creation failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, renderPolicy(policy))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	policyID, err := parsePolicyID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	policy, err := h.service.Get(ctx, requestcontext.Subject(ctx), policyID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, renderPolicy(policy))
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	policyID, err := parsePolicyID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	payload, ok := httputil.DecodeAndPrepare[policyPayload](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	policy, err := h.service.Update(ctx, requestcontext.Subject(ctx), policyID, payload.fields())
	if err != nil {
		h.logError(ctx, "policy update failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, renderPolicy(policy))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	policyID, err := parsePolicyID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.service.Delete(ctx, requestcontext.Subject(ctx), policyID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parsePolicyID(r *http.Request) (id.PolicyID, error) {
	policyID, err := id.ParsePolicyID(chi.URLParam(r, "policyID"))
	if err != nil {
		return id.PolicyID{}, dErrors.New(dErrors.CodeNotFound, "policy not found")
	}
	return policyID, nil
}

func (h *Handler) logError(ctx context.Context, msg string, err error) {
	h.logger.ErrorContext(ctx, msg,
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	)
}
