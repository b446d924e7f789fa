package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	accesshandler "overseer/internal/access/handler"
	accessmetrics "overseer/internal/access/metrics"
	accessservice "overseer/internal/access/service"
	accessstore "overseer/internal/access/store"
	policyhandler "overseer/internal/policy/handler"
	policymodels "overseer/internal/policy/models"
	policyservice "overseer/internal/policy/service"
	policystore "overseer/internal/policy/store"
	toolhandler "overseer/internal/tool/handler"
	toolservice "overseer/internal/tool/service"
	toolstore "overseer/internal/tool/store"
	id "overseer/pkg/domain"
	dErrors "overseer/pkg/domain-errors"
	authmiddleware "overseer/pkg/platform/middleware/auth"
)

const signingKey = "router-test-signing-key"

var testMetrics = accessmetrics.New()

type staticResolver struct{}

func (staticResolver) MapOne(_ context.Context, _ string, toolSpecificID string) (id.SubjectID, error) {
	return id.SubjectID("subject-" + toolSpecificID), nil
}

func (r staticResolver) MapMany(ctx context.Context, tool string, toolSpecificIDs []string) ([]id.SubjectID, error) {
	subjects := make([]id.SubjectID, len(toolSpecificIDs))
	for i, toolSpecificID := range toolSpecificIDs {
		subjects[i], _ = r.MapOne(ctx, tool, toolSpecificID)
	}
	return subjects, nil
}

func newTestRouter(t *testing.T, healthErr error) http.Handler {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tools := toolservice.NewService(toolstore.NewInMemory())
	_, err := tools.Register(context.Background(), "jira")
	require.NoError(t, err)

	policies := policystore.NewInMemory()
	wildcard, err := policymodels.New("subject-o1", policymodels.Fields{})
	require.NoError(t, err)
	require.NoError(t, policies.Add(context.Background(), wildcard))

	accessSvc := accessservice.New(
		accessstore.NewInMemory(), policies, tools, staticResolver{},
		accessservice.NopTxRunner{}, testMetrics, logger,
	)

	return NewRouter(
		Handlers{
			Access: accesshandler.New(accessSvc, tools, logger),
			Policy: policyhandler.New(policyservice.NewService(policies, tools), logger),
			Tool:   toolhandler.New(tools, logger),
		},
		Auth{
			Verifier:  authmiddleware.NewHMACVerifier(signingKey),
			Technical: authmiddleware.BasicCredentials{Username: "tech", Password: "tech-secret"},
			Admin:     authmiddleware.BasicCredentials{Username: "admin", Password: "admin-secret"},
		},
		func(ctx context.Context) error { return healthErr },
		logger,
	)
}

func ownerToken(t *testing.T, subject string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": subject,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(signingKey))
	require.NoError(t, err)
	return signed
}

func TestRouter_AuthDomains(t *testing.T) {
	router := newTestRouter(t, nil)

	directBody := `{"tool": "jira", "user": "u", "owner": "o1", "data_types": []}`

	t.Run("request-access requires the technical user", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/request-access/direct", strings.NewReader(directBody))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Header().Get("WWW-Authenticate"), "Basic")
	})

	t.Run("request-access accepts the technical user", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/request-access/direct", strings.NewReader(directBody))
		req.SetBasicAuth("tech", "tech-secret")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var resp struct {
			Granted bool `json:"granted"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.True(t, resp.Granted)
	})

	t.Run("owner endpoints require a bearer token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/data-accesses", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("owner endpoints accept a valid token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/data-accesses", nil)
		req.Header.Set("Authorization", "Bearer "+ownerToken(t, "subject-o1"))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var resp struct {
			OwnerRID string `json:"owner_rid"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "subject-o1", resp.OwnerRID)
	})

	t.Run("technical user cannot reach admin endpoints", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/generate?owner_rid=o&date_start=2024-01-01&date_end=2024-01-31&number_of_entries=1", nil)
		req.SetBasicAuth("tech", "tech-secret")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("admin user can manage tools", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/tool-types", strings.NewReader(`{"name": "wiki"}`))
		req.SetBasicAuth("admin", "admin-secret")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusCreated, w.Code)
	})

	t.Run("tool listing is public", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/tool-types", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestRouter_Health(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		router := newTestRouter(t, nil)
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("unhealthy database", func(t *testing.T) {
		router := newTestRouter(t, errors.New("connection refused"))
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestRouter_Metrics(t *testing.T) {
	router := newTestRouter(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_RequestIDPropagation(t *testing.T) {
	router := newTestRouter(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestRouter_ErrorEnvelope(t *testing.T) {
	router := newTestRouter(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/request-access/direct", strings.NewReader(`{"tool": "ghost", "user": "u", "owner": "o", "data_types": []}`))
	req.SetBasicAuth("tech", "tech-secret")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, string(dErrors.CodeUnknownTool), resp["error"])
}
