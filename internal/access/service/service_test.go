package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	accessmetrics "overseer/internal/access/metrics"
	accessstore "overseer/internal/access/store"
	policymodels "overseer/internal/policy/models"
	policystore "overseer/internal/policy/store"
	toolservice "overseer/internal/tool/service"
	toolstore "overseer/internal/tool/store"
	id "overseer/pkg/domain"
	dErrors "overseer/pkg/domain-errors"
	"overseer/pkg/requestcontext"
)

// metrics register globally; share one instance across the package's tests.
var testMetrics = accessmetrics.New()

// stubResolver resolves from a fixed mapping and fails like the real client
// on unknown IDs.
type stubResolver struct {
	mapping map[string]id.SubjectID
	err     error
}

func (r *stubResolver) MapOne(_ context.Context, _ string, toolSpecificID string) (id.SubjectID, error) {
	if r.err != nil {
		return "", r.err
	}
	subject, ok := r.mapping[toolSpecificID]
	if !ok {
		return "", dErrors.New(dErrors.CodeIDMapping, "one or more ids couldn't be mapped")
	}
	return subject, nil
}

func (r *stubResolver) MapMany(ctx context.Context, tool string, toolSpecificIDs []string) ([]id.SubjectID, error) {
	seen := make(map[id.SubjectID]struct{})
	var subjects []id.SubjectID
	for _, toolSpecificID := range toolSpecificIDs {
		subject, err := r.MapOne(ctx, tool, toolSpecificID)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[subject]; dup {
			continue
		}
		seen[subject] = struct{}{}
		subjects = append(subjects, subject)
	}
	return subjects, nil
}

type fixture struct {
	service  *Service
	accesses *accessstore.InMemoryStore
	policies *policystore.InMemoryStore
	tools    *toolservice.Service
}

func newFixture(t *testing.T, resolver *stubResolver) *fixture {
	t.Helper()

	accesses := accessstore.NewInMemory()
	policies := policystore.NewInMemory()
	tools := toolservice.NewService(toolstore.NewInMemory())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return &fixture{
		service:  New(accesses, policies, tools, resolver, NopTxRunner{}, testMetrics, logger),
		accesses: accesses,
		policies: policies,
		tools:    tools,
	}
}

func (f *fixture) registerTool(t *testing.T, name string) {
	t.Helper()
	_, err := f.tools.Register(context.Background(), name)
	require.NoError(t, err)
}

func (f *fixture) addPolicy(t *testing.T, owner id.SubjectID, fields policymodels.Fields) {
	t.Helper()
	policy, err := policymodels.New(owner, fields)
	require.NoError(t, err)
	require.NoError(t, f.policies.Add(context.Background(), policy))
}

func pinnedContext(ts time.Time) context.Context {
	return requestcontext.WithTime(context.Background(), ts)
}

func TestService_Request(t *testing.T) {
	ts := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	resolver := &stubResolver{mapping: map[string]id.SubjectID{
		"user@corp.example": "subject-user",
		"o1@corp.example":   "subject-o1",
		"o2@corp.example":   "subject-o2",
	}}

	baseRequest := Request{
		Tool:          "jira",
		Kind:          id.AccessKindQuery,
		User:          "user@corp.example",
		Justification: "sprint report",
		DataTypes:     []string{"issues"},
		OwnerIDs:      []string{"o1@corp.example", "o2@corp.example"},
	}

	t.Run("granted when every owner consents, access is recorded", func(t *testing.T) {
		f := newFixture(t, resolver)
		f.registerTool(t, "jira")
		f.addPolicy(t, "subject-o1", policymodels.Fields{})
		f.addPolicy(t, "subject-o2", policymodels.Fields{})

		decision, err := f.service.Request(pinnedContext(ts), baseRequest)
		require.NoError(t, err)
		assert.True(t, decision.Granted)
		assert.ElementsMatch(t, []id.SubjectID{"subject-o1", "subject-o2"}, decision.GrantedOwners)

		recorded, err := f.accesses.ListByOwner(context.Background(), "subject-o1", accessstore.ListFilter{})
		require.NoError(t, err)
		require.Len(t, recorded, 1)
		assert.Equal(t, "jira", recorded[0].Tool)
		assert.Equal(t, id.SubjectID("subject-user"), recorded[0].User)
		assert.Equal(t, ts, recorded[0].Timestamp)
	})

	t.Run("rejected when one owner has no matching policy, nothing recorded", func(t *testing.T) {
		f := newFixture(t, resolver)
		f.registerTool(t, "jira")
		f.addPolicy(t, "subject-o1", policymodels.Fields{})

		decision, err := f.service.Request(pinnedContext(ts), baseRequest)
		require.NoError(t, err)
		assert.False(t, decision.Granted)
		assert.Equal(t, []id.SubjectID{"subject-o2"}, decision.RejectedOwners)

		recorded, err := f.accesses.ListByOwner(context.Background(), "subject-o1", accessstore.ListFilter{})
		require.NoError(t, err)
		assert.Empty(t, recorded, "rejected accesses are not logged")
	})

	t.Run("unknown tool fails before identity resolution", func(t *testing.T) {
		failing := &stubResolver{err: dErrors.New(dErrors.CodeDependency, "identity provider unreachable")}
		f := newFixture(t, failing)

		_, err := f.service.Request(pinnedContext(ts), baseRequest)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnknownTool))
	})

	t.Run("empty owner set fails before anything else", func(t *testing.T) {
		f := newFixture(t, resolver)
		req := baseRequest
		req.OwnerIDs = nil

		_, err := f.service.Request(pinnedContext(ts), req)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("unmapped user surfaces id mapping error", func(t *testing.T) {
		f := newFixture(t, resolver)
		f.registerTool(t, "jira")
		req := baseRequest
		req.User = "stranger@corp.example"

		_, err := f.service.Request(pinnedContext(ts), req)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeIDMapping))
	})

	t.Run("duplicate owner aliases collapse to one owner", func(t *testing.T) {
		aliasResolver := &stubResolver{mapping: map[string]id.SubjectID{
			"user@corp.example":  "subject-user",
			"o1@corp.example":    "subject-o1",
			"alias@corp.example": "subject-o1",
		}}
		f := newFixture(t, aliasResolver)
		f.registerTool(t, "jira")
		f.addPolicy(t, "subject-o1", policymodels.Fields{})

		req := baseRequest
		req.OwnerIDs = []string{"o1@corp.example", "alias@corp.example"}

		decision, err := f.service.Request(pinnedContext(ts), req)
		require.NoError(t, err)
		assert.True(t, decision.Granted)
		assert.Equal(t, []id.SubjectID{"subject-o1"}, decision.GrantedOwners)
	})

	t.Run("policy window outside the access date rejects", func(t *testing.T) {
		f := newFixture(t, resolver)
		f.registerTool(t, "jira")
		start := id.NewDate(2023, time.January, 1)
		end := id.NewDate(2023, time.December, 31)
		f.addPolicy(t, "subject-o1", policymodels.Fields{ValidityStart: &start, ValidityEnd: &end})
		f.addPolicy(t, "subject-o2", policymodels.Fields{})

		decision, err := f.service.Request(pinnedContext(ts), baseRequest)
		require.NoError(t, err)
		assert.False(t, decision.Granted)
		assert.Equal(t, []id.SubjectID{"subject-o1"}, decision.RejectedOwners)
	})
}

func TestService_Generate(t *testing.T) {
	owner := id.SubjectID("subject-o1")

	t.Run("writes the requested number of entries for the owner", func(t *testing.T) {
		f := newFixture(t, &stubResolver{})

		err := f.service.Generate(context.Background(), owner,
			id.NewDate(2024, time.January, 1), id.NewDate(2024, time.March, 31), 25, []string{"jira", "wiki"})
		require.NoError(t, err)

		recorded, err := f.accesses.ListByOwner(context.Background(), owner, accessstore.ListFilter{})
		require.NoError(t, err)
		require.Len(t, recorded, 25)
		for _, access := range recorded {
			date := access.Date()
			assert.False(t, date.Before(id.NewDate(2024, time.January, 1)))
			assert.False(t, date.After(id.NewDate(2024, time.March, 31)))
		}
	})

	t.Run("swapped date range is tolerated", func(t *testing.T) {
		f := newFixture(t, &stubResolver{})
		err := f.service.Generate(context.Background(), owner,
			id.NewDate(2024, time.March, 31), id.NewDate(2024, time.January, 1), 5, []string{"jira"})
		require.NoError(t, err)
	})

	t.Run("fails without registered tools", func(t *testing.T) {
		f := newFixture(t, &stubResolver{})
		err := f.service.Generate(context.Background(), owner,
			id.NewDate(2024, time.January, 1), id.NewDate(2024, time.March, 31), 5, nil)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
}
