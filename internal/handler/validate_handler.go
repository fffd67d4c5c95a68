package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"invoicecheck/internal/engine"
	"invoicecheck/internal/report"
)

// Validator runs one document to a report.
type Validator interface {
	Validate(ctx context.Context, in engine.Input) *report.Report
}

// ValidateHandler relays uploaded invoices to the validation engine.
type ValidateHandler struct {
	validator Validator
	maxUpload int64
}

// NewValidateHandler creates a new ValidateHandler. maxUpload bounds the
// request body in bytes; zero means no limit.
func NewValidateHandler(v Validator, maxUpload int64) *ValidateHandler {
	return &ValidateHandler{validator: v, maxUpload: maxUpload}
}

// Validate handles POST /validate
//
// The multipart field "invoice" carries the document. The response body is
// the XML report, with 200 for a VALID verdict and 400 otherwise. The rule
// set is chosen by the "rule_set" form field or the X-Rule-Set header.
func (h *ValidateHandler) Validate(c *gin.Context) {
	if h.maxUpload > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)
	}

	header, err := c.FormFile("invoice")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || (h.maxUpload > 0 && c.Request.ContentLength > h.maxUpload) {
			c.String(http.StatusRequestEntityTooLarge, "File too large")
			return
		}
		c.String(http.StatusBadRequest, "Missing file")
		return
	}
	file, err := header.Open()
	if err != nil {
		HandleError(c, err)
		return
	}
	defer func() { _ = file.Close() }()

	ruleSet := c.PostForm("rule_set")
	if ruleSet == "" {
		ruleSet = c.GetHeader("X-Rule-Set")
	}

	rep := h.validator.Validate(c.Request.Context(), engine.Input{
		Body:        file,
		ContentType: header.Header.Get("Content-Type"),
		RuleSet:     ruleSet,
	})

	body, err := rep.Bytes()
	if err != nil {
		HandleError(c, err)
		return
	}

	zerolog.Ctx(c.Request.Context()).Debug().
		Str("file", header.Filename).
		Str("run_id", rep.Metadata.RunID).
		Str("verdict", string(rep.Verdict)).
		Msg("invoice validated")

	status := http.StatusOK
	if !rep.Valid() {
		status = http.StatusBadRequest
	}
	c.Header("X-Validation-Verdict", string(rep.Verdict))
	c.Header("X-Run-ID", rep.Metadata.RunID)
	c.Data(status, report.ContentType, body)
}
