package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"invoicecheck/internal/handler"
	"invoicecheck/internal/metrics"
	"invoicecheck/internal/middleware"
)

// Deps holds everything the routes need. Gatherer defaults to the
// Prometheus default registry.
type Deps struct {
	Log            zerolog.Logger
	Metrics        *metrics.Metrics
	Gatherer       prometheus.Gatherer
	AllowedOrigins []string

	Validate *handler.ValidateHandler
	RuleSets *handler.RuleSetHandler
	Health   *handler.HealthHandler
}

// Setup configures the Gin engine with all routes and middleware.
func Setup(d Deps) *gin.Engine {
	r := gin.New()

	// Global middleware
	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(d.Log))
	r.Use(middleware.Logger(d.Log, d.Metrics))
	r.Use(middleware.CORS(d.AllowedOrigins))

	// Health checks
	r.GET("/healthz", d.Health.Liveness)
	r.GET("/readyz", d.Health.Readiness)

	gatherer := d.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	r.POST("/validate", d.Validate.Validate)

	rulesets := r.Group("/rulesets")
	rulesets.GET("", d.RuleSets.List)
	rulesets.GET("/:version", d.RuleSets.Get)

	return r
}
