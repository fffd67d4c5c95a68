package handler_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"invoicecheck/internal/domain"
	"invoicecheck/internal/handler"
	"invoicecheck/internal/ruleset"
	"invoicecheck/mocks"
)

func ruleSetRouter(src *mocks.MockRuleSetSource) *gin.Engine {
	h := handler.NewRuleSetHandler(src)
	hh := handler.NewHealthHandler(src, nil)
	r := gin.New()
	r.GET("/rulesets", h.List)
	r.GET("/rulesets/:version", h.Get)
	r.GET("/healthz", hh.Liveness)
	r.GET("/readyz", hh.Readiness)
	return r
}

func TestRuleSetHandler_List(t *testing.T) {
	src := new(mocks.MockRuleSetSource)
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	src.On("Versions", mock.Anything).Return([]domain.RuleSetRecord{
		{Version: "a-1", IsActive: true, CreatedAt: created, UpdatedAt: created},
		{Version: "b-2"},
	}, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/rulesets", http.NoBody)
	ruleSetRouter(src).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Success bool                   `json:"success"`
		Data    []domain.RuleSetRecord `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	require.Len(t, resp.Data, 2)
	assert.Equal(t, "a-1", resp.Data[0].Version)
	assert.True(t, resp.Data[0].IsActive)
	assert.NotContains(t, w.Body.String(), "definition")
}

func TestRuleSetHandler_Get(t *testing.T) {
	rs, err := ruleset.NewProvider(ruleset.NewEmbeddedStore()).Preload(t.Context())
	require.NoError(t, err)

	src := new(mocks.MockRuleSetSource)
	src.On("Get", mock.Anything, "").Return(rs, nil)
	src.On("Get", mock.Anything, "missing").Return(nil, fmt.Errorf("load: %w", domain.ErrRuleSetNotFound))

	t.Run("active", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, "/rulesets/active", http.NoBody)
		ruleSetRouter(src).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		var resp struct {
			Data handler.RuleSetDetail `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, ruleset.DefaultVersion, resp.Data.Version)
		assert.Equal(t, rs.Digest, resp.Data.Digest)
		assert.Len(t, resp.Data.Rules, len(rs.Rules))
		assert.Equal(t, "BR-CO-10", resp.Data.Rules[0].ID)
	})

	t.Run("missing", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, "/rulesets/missing", http.NoBody)
		ruleSetRouter(src).ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
		var resp handler.APIResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.False(t, resp.Success)
		assert.Equal(t, "RULE_SET_NOT_FOUND", resp.Error.Code)
	})
}

func TestHealthHandler(t *testing.T) {
	rs := &ruleset.RuleSet{Version: "v-1", Digest: "abc"}

	t.Run("ready", func(t *testing.T) {
		src := new(mocks.MockRuleSetSource)
		src.On("Preload", mock.Anything).Return(rs, nil)

		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, "/readyz", http.NoBody)
		ruleSetRouter(src).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"rule_set":"v-1"`)
	})

	t.Run("not ready", func(t *testing.T) {
		src := new(mocks.MockRuleSetSource)
		src.On("Preload", mock.Anything).Return(nil, domain.ErrInvalidRuleSet)

		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, "/readyz", http.NoBody)
		ruleSetRouter(src).ServeHTTP(w, req)

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	t.Run("live", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, "/healthz", http.NoBody)
		ruleSetRouter(new(mocks.MockRuleSetSource)).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestMapDomainError(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("x: %w", domain.ErrRuleSetNotFound), http.StatusNotFound, "RULE_SET_NOT_FOUND"},
		{domain.ErrInvalidRuleSet, http.StatusUnprocessableEntity, "INVALID_RULE_SET"},
		{domain.ErrMissingFile, http.StatusBadRequest, "MISSING_FILE"},
		{domain.ErrDocumentTooLarge, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE"},
		{domain.ErrObjectNotFound, http.StatusNotFound, "NOT_FOUND"},
		{errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			status, code, msg := handler.MapDomainError(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, code)
			assert.NotEmpty(t, msg)
		})
	}
}
