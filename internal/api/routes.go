// Package api exposes the engine over HTTP: network management, exact and
// sampled queries, background sampling jobs and a progress stream.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rawblock/bayesnet-engine/internal/config"
	"github.com/rawblock/bayesnet-engine/internal/crosscheck"
	"github.com/rawblock/bayesnet-engine/internal/db"
	"github.com/rawblock/bayesnet-engine/internal/inference"
	"github.com/rawblock/bayesnet-engine/internal/jobs"
	"github.com/rawblock/bayesnet-engine/internal/registry"
	"github.com/rawblock/bayesnet-engine/pkg/models"
)

// Deps are the services the handlers call. Store, Hub and Limiter are
// optional.
type Deps struct {
	Registry   *registry.Registry
	Engine     *inference.Engine
	Jobs       *jobs.Manager
	Crosscheck *crosscheck.Runner
	Store      db.Store
	Hub        *Hub
	Limiter    *RateLimiter
	Logger     *zap.Logger
}

type APIHandler struct {
	Deps
	logger *zap.Logger
}

func SetupRouter(cfg config.Config, deps Deps) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("api")

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger), cors(cfg))

	handler := &APIHandler{Deps: deps, logger: logger}

	api := r.Group("/api/v1")
	{
		api.GET("/health", handler.handleHealth)
		api.GET("/networks", handler.handleListNetworks)
		api.GET("/networks/:id", handler.handleGetNetwork)
		api.GET("/networks/:id/adjacency", handler.handleAdjacency)
		api.GET("/networks/:id/structure", handler.handleStructure)
		api.GET("/networks/:id/history", handler.handleHistory)
		api.GET("/networks/:id/drift", handler.handleDrift)
		api.GET("/jobs", handler.handleListJobs)
		api.GET("/jobs/:id", handler.handleGetJob)
		if deps.Hub != nil {
			api.GET("/stream", deps.Hub.Subscribe)
		}
	}

	protected := api.Group("")
	protected.Use(AuthMiddleware(cfg.APIAuthToken, cfg.Release(), logger))
	if deps.Limiter != nil {
		protected.Use(deps.Limiter.Middleware())
	}
	{
		protected.POST("/networks", handler.handleCreateNetwork)
		protected.DELETE("/networks/:id", handler.handleDeleteNetwork)
		protected.POST("/networks/:id/exact", handler.handleExact)
		protected.POST("/networks/:id/approximate", handler.handleApproximate)
		protected.POST("/networks/:id/dseparation", handler.handleDSeparation)
		protected.POST("/networks/:id/crosscheck", handler.handleCrosscheck)
		protected.POST("/networks/:id/jobs", handler.handleStartJob)
		protected.DELETE("/jobs/:id", handler.handleCancelJob)
	}

	return r
}

// cors answers with the configured origin allow-list (ALLOWED_ORIGINS), or
// a wildcard when none is set.
func cors(cfg config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if cfg.AllowsAnyOrigin() {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else if slices.Contains(cfg.AllowedOrigins, origin) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)),
		)
	}
}

// handleHealth returns engine status for service discovery.
func (h *APIHandler) handleHealth(c *gin.Context) {
	body := gin.H{
		"status":      "operational",
		"engine":      "bayesnet-engine",
		"networks":    h.Registry.Len(),
		"dbConnected": h.Store != nil,
	}
	if h.Hub != nil {
		body["streamClients"] = h.Hub.Clients()
	}
	c.JSON(http.StatusOK, body)
}

// record writes the audit row of an answered query. Failures are logged,
// never surfaced to the caller.
func (h *APIHandler) record(ctx context.Context, networkID, kind string, req, res any, took time.Duration) {
	if h.Store == nil {
		return
	}
	reqJSON, err := json.Marshal(req)
	if err != nil {
		h.logger.Warn("encode query request", zap.Error(err))
		return
	}
	resJSON, err := json.Marshal(res)
	if err != nil {
		h.logger.Warn("encode query result", zap.Error(err))
		return
	}
	rec := models.QueryRecord{
		ID:         uuid.NewString(),
		NetworkID:  networkID,
		Kind:       kind,
		Request:    reqJSON,
		Result:     resJSON,
		DurationMs: float64(took.Microseconds()) / 1000,
		CreatedAt:  time.Now().UTC(),
	}
	if err := h.Store.SaveQueryRecord(ctx, rec); err != nil {
		h.logger.Warn("failed to save query record", zap.String("kind", kind), zap.Error(err))
	}
}
