package router_test

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invoicecheck/internal/domain"
	"invoicecheck/internal/engine"
	"invoicecheck/internal/handler"
	"invoicecheck/internal/metrics"
	"invoicecheck/internal/report"
	"invoicecheck/internal/router"
	"invoicecheck/internal/ruleset"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func setup(t *testing.T) *gin.Engine {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	provider := ruleset.NewProvider(ruleset.NewEmbeddedStore())
	_, err := provider.Preload(context.Background())
	require.NoError(t, err)

	v := engine.New(provider, engine.WithMetrics(m))
	return router.Setup(router.Deps{
		Log:      zerolog.Nop(),
		Metrics:  m,
		Gatherer: reg,
		Validate: handler.NewValidateHandler(v, 1<<20),
		RuleSets: handler.NewRuleSetHandler(provider),
		Health:   handler.NewHealthHandler(provider, nil),
	})
}

func upload(t *testing.T, r http.Handler, content string) *httptest.ResponseRecorder {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("invoice", "invoice.xml")
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req, _ := http.NewRequest(http.MethodPost, "/validate", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Origin", "https://client.example")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestValidateEndToEnd(t *testing.T) {
	data, err := os.ReadFile("../engine/testdata/invoices/valid.xml")
	require.NoError(t, err)
	r := setup(t)

	t.Run("valid", func(t *testing.T) {
		w := upload(t, r, string(data))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
		assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
		rep, err := report.Decode(bytes.NewReader(w.Body.Bytes()))
		require.NoError(t, err)
		assert.Equal(t, domain.VerdictValid, rep.Verdict)
		assert.Equal(t, ruleset.DefaultVersion, rep.Metadata.RuleSetVersion)
	})

	t.Run("malformed", func(t *testing.T) {
		w := upload(t, r, strings.Replace(string(data), "</Invoice>", "", 1))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, report.ContentType, w.Header().Get("Content-Type"))
		rep, err := report.Decode(bytes.NewReader(w.Body.Bytes()))
		require.NoError(t, err)
		require.Len(t, rep.Findings, 1)
		assert.Equal(t, report.RuleParseError, rep.Findings[0].RuleID)
	})

	t.Run("metrics", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, "/metrics", http.NoBody)
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `invoicecheck_runs_total{state="REPORTED",verdict="VALID"} 1`)
		assert.Contains(t, w.Body.String(), `invoicecheck_http_requests_total{method="POST",route="/validate",status="400"} 1`)
	})
}

func TestRoutes(t *testing.T) {
	r := setup(t)

	tests := []struct {
		method string
		path   string
		status int
	}{
		{http.MethodGet, "/healthz", http.StatusOK},
		{http.MethodGet, "/readyz", http.StatusOK},
		{http.MethodGet, "/rulesets", http.StatusOK},
		{http.MethodGet, "/rulesets/active", http.StatusOK},
		{http.MethodGet, "/rulesets/nope", http.StatusNotFound},
		{http.MethodOptions, "/validate", http.StatusNoContent},
		{http.MethodGet, "/unknown", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest(tt.method, tt.path, http.NoBody)
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}
