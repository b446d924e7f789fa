// Package service orchestrates the access request path: identity
// resolution, policy evaluation, and the conditional write to the log.
package service

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	accessmetrics "overseer/internal/access/metrics"
	"overseer/internal/access/models"
	"overseer/internal/access/store"
	"overseer/internal/consent"
	"overseer/internal/identity"
	policymodels "overseer/internal/policy/models"
	id "overseer/pkg/domain"
	dErrors "overseer/pkg/domain-errors"
	"overseer/pkg/requestcontext"
)

// AccessStore is the log persistence contract.
type AccessStore interface {
	Record(ctx context.Context, access *models.DataAccess) error
	ListByOwner(ctx context.Context, owner id.SubjectID, filter store.ListFilter) ([]*models.DataAccess, error)
	CountsByOwner(ctx context.Context, owner id.SubjectID) (*store.FieldCounts, error)
}

// PolicyStore loads the candidate policies for an owner set.
type PolicyStore interface {
	ListByOwners(ctx context.Context, owners []id.SubjectID) ([]*policymodels.Policy, error)
}

// ToolRegistry answers whether a tool name is registered.
type ToolRegistry interface {
	RequireExists(ctx context.Context, name string) error
}

// TxRunner executes fn inside a transaction. The access write and its
// outbox entry must land atomically.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// NopTxRunner runs fn directly. Memory stores have no transactions.
type NopTxRunner struct{}

func (NopTxRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// Request is an access request as submitted by a tool, with users and
// owners still identified by their tool-specific IDs.
type Request struct {
	Tool          string
	Kind          id.AccessKind
	User          string
	Justification string
	DataTypes     []string
	OwnerIDs      []string
}

// Decision is the per-owner outcome of an access request. The access was
// recorded only when Granted is true.
type Decision struct {
	Granted        bool
	GrantedOwners  []id.SubjectID
	RejectedOwners []id.SubjectID
}

type Service struct {
	accesses AccessStore
	policies PolicyStore
	tools    ToolRegistry
	resolver identity.Resolver
	tx       TxRunner
	metrics  *accessmetrics.Metrics
	logger   *slog.Logger
}

func New(accesses AccessStore, policies PolicyStore, tools ToolRegistry, resolver identity.Resolver, tx TxRunner, metrics *accessmetrics.Metrics, logger *slog.Logger) *Service {
	return &Service{
		accesses: accesses,
		policies: policies,
		tools:    tools,
		resolver: resolver,
		tx:       tx,
		metrics:  metrics,
		logger:   logger,
	}
}

var tracer = otel.Tracer("overseer/access")

// Request evaluates an access request against the owners' policies and
// records it when every owner consents. Rejected requests are not recorded:
// the data was not handed out, so there is nothing to log.
func (s *Service) Request(ctx context.Context, req Request) (*Decision, error) {
	ctx, span := tracer.Start(ctx, "access.request")
	defer span.End()
	span.SetAttributes(
		attribute.String("access.tool", req.Tool),
		attribute.String("access.kind", req.Kind.String()),
	)

	if len(req.OwnerIDs) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "access must involve at least one owner")
	}
	if err := s.tools.RequireExists(ctx, req.Tool); err != nil {
		return nil, err
	}

	user, owners, err := s.resolve(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	access, err := models.NewCandidate(user, req.Tool, req.Kind, requestcontext.Now(ctx), req.Justification, req.DataTypes, owners)
	if err != nil {
		return nil, err
	}

	breakdown, err := s.evaluate(ctx, access)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	decision := &Decision{
		Granted:        breakdown.Granted(),
		GrantedOwners:  breakdown.GrantedOwners,
		RejectedOwners: breakdown.RejectedOwners,
	}
	s.metrics.ObserveRequest(req.Kind.String(), decision.Granted)
	span.SetAttributes(attribute.Bool("access.granted", decision.Granted))

	if !decision.Granted {
		s.logger.Info("access rejected",
			"tool", req.Tool,
			"kind", req.Kind.String(),
			"rejected_owners", len(decision.RejectedOwners),
			"request_id", requestcontext.RequestID(ctx),
		)
		return decision, nil
	}

	if err := s.record(ctx, access); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	s.logger.Info("access recorded",
		"access_id", access.ID.String(),
		"tool", req.Tool,
		"kind", req.Kind.String(),
		"owners", len(access.Owners),
		"request_id", requestcontext.RequestID(ctx),
	)
	return decision, nil
}

// resolve maps the accessing user and the owners to subject IDs in
// parallel. The two failure modes stay distinguishable for the caller.
func (s *Service) resolve(ctx context.Context, req Request) (id.SubjectID, []id.SubjectID, error) {
	ctx, span := tracer.Start(ctx, "access.resolve_identities")
	defer span.End()
	defer s.metrics.ObserveResolve(time.Now())

	var (
		user   id.SubjectID
		owners []id.SubjectID
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		resolved, err := s.resolver.MapOne(gctx, req.Tool, req.User)
		if err != nil {
			if dErrors.HasCode(err, dErrors.CodeIDMapping) {
				return dErrors.Wrap(err, dErrors.CodeIDMapping, "accessing user is not signed up at the SSO provider")
			}
			return err
		}
		user = resolved
		return nil
	})
	g.Go(func() error {
		resolved, err := s.resolver.MapMany(gctx, req.Tool, req.OwnerIDs)
		if err != nil {
			if dErrors.HasCode(err, dErrors.CodeIDMapping) {
				return dErrors.Wrap(err, dErrors.CodeIDMapping, "one or more data owners are not signed up at the SSO provider")
			}
			return err
		}
		owners = resolved
		return nil
	})
	if err := g.Wait(); err != nil {
		return "", nil, err
	}
	return user, owners, nil
}

func (s *Service) evaluate(ctx context.Context, access *models.DataAccess) (consent.Breakdown, error) {
	_, span := tracer.Start(ctx, "access.evaluate_policies")
	defer span.End()
	defer s.metrics.ObserveEvaluate(time.Now())

	candidates, err := s.policies.ListByOwners(ctx, access.Owners)
	if err != nil {
		return consent.Breakdown{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load policies")
	}
	return consent.Evaluate(access, candidates), nil
}

func (s *Service) record(ctx context.Context, access *models.DataAccess) error {
	ctx, span := tracer.Start(ctx, "access.record")
	defer span.End()

	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		return s.accesses.Record(ctx, access)
	})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record access")
	}
	s.metrics.IncrementRecorded()
	return nil
}

// List returns the owner's view of the log, newest first.
func (s *Service) List(ctx context.Context, owner id.SubjectID, filter store.ListFilter) ([]*models.DataAccess, error) {
	accesses, err := s.accesses.ListByOwner(ctx, owner, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list accesses")
	}
	return accesses, nil
}

// Counts aggregates the owner's log per user, tool, and access kind.
func (s *Service) Counts(ctx context.Context, owner id.SubjectID) (*store.FieldCounts, error) {
	counts, err := s.accesses.CountsByOwner(ctx, owner)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count accesses")
	}
	return counts, nil
}
