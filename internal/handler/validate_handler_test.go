package handler_test

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"invoicecheck/internal/domain"
	"invoicecheck/internal/engine"
	"invoicecheck/internal/handler"
	"invoicecheck/internal/report"
	"invoicecheck/mocks"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func multipartBody(t *testing.T, field, filename, contentType string, content []byte, extra map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for k, v := range extra {
		require.NoError(t, writer.WriteField(k, v))
	}
	if field != "" {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="`+field+`"; filename="`+filename+`"`)
		h.Set("Content-Type", contentType)
		part, err := writer.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func invalidReport() *report.Report {
	return &report.Report{
		Verdict: domain.VerdictInvalid,
		Findings: []domain.Finding{{
			RuleID:   "BR-CO-10",
			Severity: domain.SeverityError,
			Stage:    domain.StageRule,
			Message:  "sum mismatch",
		}},
		Metadata: report.Metadata{RunID: "run-42", RuleSetVersion: "ubl-invoice-2.1"},
	}
}

func TestValidateHandler_Valid(t *testing.T) {
	mockV := new(mocks.MockValidator)
	h := handler.NewValidateHandler(mockV, 0)

	mockV.On("Validate", mock.Anything, mock.MatchedBy(func(in engine.Input) bool {
		return in.Body != nil && in.ContentType == "text/xml" && in.RuleSet == ""
	})).Return(&report.Report{Verdict: domain.VerdictValid, Metadata: report.Metadata{RunID: "run-1"}})

	body, ct := multipartBody(t, "invoice", "inv.xml", "text/xml", []byte("<Invoice/>"), nil)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodPost, "/validate", body)
	c.Request.Header.Set("Content-Type", ct)

	h.Validate(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, report.ContentType, w.Header().Get("Content-Type"))
	assert.Equal(t, "VALID", w.Header().Get("X-Validation-Verdict"))
	assert.Equal(t, "run-1", w.Header().Get("X-Run-ID"))
	assert.Contains(t, w.Body.String(), `verdict="VALID"`)
	mockV.AssertExpectations(t)
}

func TestValidateHandler_Invalid(t *testing.T) {
	mockV := new(mocks.MockValidator)
	h := handler.NewValidateHandler(mockV, 0)
	mockV.On("Validate", mock.Anything, mock.Anything).Return(invalidReport())

	body, ct := multipartBody(t, "invoice", "inv.xml", "application/xml", []byte("<Invoice/>"), nil)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodPost, "/validate", body)
	c.Request.Header.Set("Content-Type", ct)

	h.Validate(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID", w.Header().Get("X-Validation-Verdict"))

	decoded, err := report.Decode(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, invalidReport().Findings, decoded.Findings)
}

func TestValidateHandler_MissingFile(t *testing.T) {
	tests := []struct {
		name  string
		build func(t *testing.T) (*http.Request, error)
	}{
		{
			name: "no body",
			build: func(t *testing.T) (*http.Request, error) {
				return http.NewRequest(http.MethodPost, "/validate", nil)
			},
		},
		{
			name: "wrong field",
			build: func(t *testing.T) (*http.Request, error) {
				body, ct := multipartBody(t, "file", "inv.xml", "text/xml", []byte("<Invoice/>"), nil)
				req, err := http.NewRequest(http.MethodPost, "/validate", body)
				if err == nil {
					req.Header.Set("Content-Type", ct)
				}
				return req, err
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockV := new(mocks.MockValidator)
			h := handler.NewValidateHandler(mockV, 0)

			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			req, err := tt.build(t)
			require.NoError(t, err)
			c.Request = req

			h.Validate(c)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "Missing file", w.Body.String())
			assert.Contains(t, w.Header().Get("Content-Type"), "text/plain")
			mockV.AssertNotCalled(t, "Validate", mock.Anything, mock.Anything)
		})
	}
}

func TestValidateHandler_RuleSetSelection(t *testing.T) {
	tests := []struct {
		name   string
		form   map[string]string
		header string
		want   string
	}{
		{name: "form field", form: map[string]string{"rule_set": "custom-1"}, want: "custom-1"},
		{name: "header", header: "custom-2", want: "custom-2"},
		{name: "form wins", form: map[string]string{"rule_set": "custom-1"}, header: "custom-2", want: "custom-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockV := new(mocks.MockValidator)
			h := handler.NewValidateHandler(mockV, 0)
			mockV.On("Validate", mock.Anything, mock.MatchedBy(func(in engine.Input) bool {
				return in.RuleSet == tt.want
			})).Return(&report.Report{Verdict: domain.VerdictValid})

			body, ct := multipartBody(t, "invoice", "inv.xml", "text/xml", []byte("<Invoice/>"), tt.form)
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request, _ = http.NewRequest(http.MethodPost, "/validate", body)
			c.Request.Header.Set("Content-Type", ct)
			if tt.header != "" {
				c.Request.Header.Set("X-Rule-Set", tt.header)
			}

			h.Validate(c)

			assert.Equal(t, http.StatusOK, w.Code)
			mockV.AssertExpectations(t)
		})
	}
}

func TestValidateHandler_UploadTooLarge(t *testing.T) {
	mockV := new(mocks.MockValidator)
	h := handler.NewValidateHandler(mockV, 64)

	body, ct := multipartBody(t, "invoice", "inv.xml", "text/xml", bytes.Repeat([]byte("x"), 1024), nil)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodPost, "/validate", body)
	c.Request.Header.Set("Content-Type", ct)

	h.Validate(c)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	mockV.AssertNotCalled(t, "Validate", mock.Anything, mock.Anything)
}
