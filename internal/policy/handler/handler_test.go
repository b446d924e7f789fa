package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	policyservice "overseer/internal/policy/service"
	policystore "overseer/internal/policy/store"
	toolservice "overseer/internal/tool/service"
	toolstore "overseer/internal/tool/store"
	id "overseer/pkg/domain"
	"overseer/pkg/requestcontext"
)

type env struct {
	router chi.Router
	tools  *toolservice.Service
}

func newEnv(t *testing.T, owner id.SubjectID) *env {
	t.Helper()

	tools := toolservice.NewService(toolstore.NewInMemory())
	svc := policyservice.NewService(policystore.NewInMemory(), tools)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := New(svc, logger)

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(requestcontext.WithSubject(r.Context(), owner)))
		})
	})
	h.Register(router)

	return &env{router: router, tools: tools}
}

func (e *env) do(method, target, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *env) create(t *testing.T, body string) string {
	t.Helper()
	w := e.do(http.MethodPost, "/data-access-policies", body)
	require.Equal(t, http.StatusCreated, w.Code)
	var resp struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.ID)
	return resp.ID
}

func TestHandler_CreateAndGet(t *testing.T) {
	e := newEnv(t, "subject-o1")
	_, err := e.tools.Register(context.Background(), "jira")
	require.NoError(t, err)

	policyID := e.create(t, `{
		"tool": "jira",
		"access_kind": "Query",
		"validity_period_start_date": "2024-01-01",
		"validity_period_end_date": "2024-12-31"
	}`)

	w := e.do(http.MethodGet, "/data-access-policies/"+policyID, "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "jira", resp["tool"])
	assert.Equal(t, "Query", resp["access_kind"])
	assert.Equal(t, "2024-01-01", resp["validity_period_start_date"])
	assert.Equal(t, "2024-12-31", resp["validity_period_end_date"])
	assert.Nil(t, resp["user_rid"], "omitted fields render as null wildcards")
}

func TestHandler_CreateValidation(t *testing.T) {
	e := newEnv(t, "subject-o1")

	t.Run("unknown tool", func(t *testing.T) {
		w := e.do(http.MethodPost, "/data-access-policies", `{"tool": "ghost"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("start after end", func(t *testing.T) {
		w := e.do(http.MethodPost, "/data-access-policies", `{
			"validity_period_start_date": "2024-12-31",
			"validity_period_end_date": "2024-01-01"
		}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("invalid access kind", func(t *testing.T) {
		w := e.do(http.MethodPost, "/data-access-policies", `{"access_kind": "browse"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("all wildcards is a valid policy", func(t *testing.T) {
		w := e.do(http.MethodPost, "/data-access-policies", `{}`)
		assert.Equal(t, http.StatusCreated, w.Code)
	})
}

func TestHandler_List(t *testing.T) {
	e := newEnv(t, "subject-o1")
	e.create(t, `{}`)
	e.create(t, `{"access_kind": "Direkt"}`)

	w := e.do(http.MethodGet, "/data-access-policies", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp []json.RawMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp, 2)
}

func TestHandler_Update(t *testing.T) {
	e := newEnv(t, "subject-o1")
	policyID := e.create(t, `{"access_kind": "Query", "user_rid": "subject-user"}`)

	// Whole-policy replacement: fields omitted from the update become
	// wildcards again.
	w := e.do(http.MethodPut, "/data-access-policies/"+policyID, `{"access_kind": "Direkt"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Direkt", resp["access_kind"])
	assert.Nil(t, resp["user_rid"])
}

func TestHandler_OwnerScoping(t *testing.T) {
	mine := newEnv(t, "subject-o1")
	policyID := mine.create(t, `{}`)

	// The same store is not shared between envs; simulate a foreign owner by
	// asking for an ID that was never created in this env.
	other := newEnv(t, "subject-o2")

	t.Run("foreign policy reads as not found", func(t *testing.T) {
		w := other.do(http.MethodGet, "/data-access-policies/"+policyID, "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("foreign delete reads as not found", func(t *testing.T) {
		w := other.do(http.MethodDelete, "/data-access-policies/"+policyID, "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("own delete succeeds", func(t *testing.T) {
		w := mine.do(http.MethodDelete, "/data-access-policies/"+policyID, "")
		assert.Equal(t, http.StatusNoContent, w.Code)
	})
}

func TestHandler_MalformedID(t *testing.T) {
	e := newEnv(t, "subject-o1")
	w := e.do(http.MethodGet, "/data-access-policies/not-a-uuid", "")
	assert.Equal(t, http.StatusNotFound, w.Code, "unparseable ids read as not found, not as bad request")
}
