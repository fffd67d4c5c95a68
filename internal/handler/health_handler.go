package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"invoicecheck/internal/ruleset"
)

// RuleSetLoader loads the active rule set.
type RuleSetLoader interface {
	Preload(ctx context.Context) (*ruleset.RuleSet, error)
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	rules RuleSetLoader
	db    *sqlx.DB
}

// NewHealthHandler creates a new HealthHandler. db is nil unless rule sets
// are stored in PostgreSQL.
func NewHealthHandler(rules RuleSetLoader, db *sqlx.DB) *HealthHandler {
	return &HealthHandler{rules: rules, db: db}
}

// Liveness handles GET /healthz
func (h *HealthHandler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readiness handles GET /readyz. The service is ready once the active rule
// set compiles.
func (h *HealthHandler) Readiness(c *gin.Context) {
	ctx := c.Request.Context()
	if h.db != nil {
		if err := h.db.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": "database not reachable"})
			return
		}
	}
	rs, err := h.rules.Preload(ctx)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "rule_set": rs.Version, "digest": rs.Digest})
}
