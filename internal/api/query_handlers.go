package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/rawblock/bayesnet-engine/internal/inference"
	"github.com/rawblock/bayesnet-engine/pkg/models"
)

// POST /api/v1/networks/:id/exact
// { "query": ["Burglary"], "evidence": {"JohnCalls": "True"} }
func (h *APIHandler) handleExact(c *gin.Context) {
	n, err := h.Registry.Lookup(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	var req models.ExactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body. Expected: {query, evidence}", err)
		return
	}

	start := time.Now()
	post, err := h.Engine.ExactMarginal(c.Request.Context(), n, req.Query, req.Evidence)
	if err != nil {
		h.fail(c, err)
		return
	}
	res := inference.ExactResult(post)
	h.record(c.Request.Context(), res.NetworkID, "exact", req, res, time.Since(start))
	c.JSON(http.StatusOK, res)
}

// POST /api/v1/networks/:id/approximate
// Samples synchronously. Either "event" (a partial assignment) or "target"
// (a variable) must be set. A run cut short by options.timeoutMs returns
// what it counted, flagged partial.
func (h *APIHandler) handleApproximate(c *gin.Context) {
	n, err := h.Registry.Lookup(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	var req models.ApproximateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body. Expected: {target | event, evidence, options}", err)
		return
	}
	if req.Target == "" && len(req.Event) == 0 {
		badRequest(c, "Either target or event is required", nil)
		return
	}
	opts, err := inference.SamplingOptions(req.Options)
	if err != nil {
		h.fail(c, err)
		return
	}

	ctx, cancel := inference.SamplingContext(c.Request.Context(), req.Options)
	defer cancel()

	start := time.Now()
	target := -1
	var res models.ApproximateResult
	if len(req.Event) > 0 {
		est, err := h.Engine.ApproximateEventProbability(ctx, n, req.Event, req.Evidence, opts)
		if est == nil {
			h.fail(c, err)
			return
		}
		res = inference.ApproximateResult(n, target, est, err)
	} else {
		if target, err = n.Index(req.Target); err != nil {
			h.fail(c, err)
			return
		}
		est, err := h.Engine.ApproximateMarginal(ctx, n, req.Target, req.Evidence, opts)
		if est == nil {
			h.fail(c, err)
			return
		}
		res = inference.ApproximateResult(n, target, est, err)
	}
	h.record(c.Request.Context(), res.NetworkID, "approximate", req, res, time.Since(start))
	c.JSON(http.StatusOK, res)
}

// POST /api/v1/networks/:id/dseparation
// { "x": ["Burglary"], "y": ["Earthquake"], "z": [] }
func (h *APIHandler) handleDSeparation(c *gin.Context) {
	n, err := h.Registry.Lookup(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	var req models.DSeparationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body. Expected: {x, y, z}", err)
		return
	}

	start := time.Now()
	ok, err := h.Engine.DSeparated(c.Request.Context(), n, req.X, req.Y, req.Z)
	if err != nil {
		h.fail(c, err)
		return
	}
	res := models.DSeparationResult{X: req.X, Y: req.Y, Z: req.Z, Separated: ok}
	h.record(c.Request.Context(), n.ID().String(), "dseparation", req, res, time.Since(start))
	c.JSON(http.StatusOK, res)
}

// POST /api/v1/networks/:id/crosscheck
// Answers one marginal with both engines and reports their divergence.
func (h *APIHandler) handleCrosscheck(c *gin.Context) {
	n, err := h.Registry.Lookup(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	var req models.CrosscheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body. Expected: {target, evidence, options, tolerance}", err)
		return
	}
	report, err := h.Crosscheck.Run(c.Request.Context(), n, req)
	if err != nil && report == nil {
		h.fail(c, err)
		return
	}
	if err != nil {
		h.logger.Warn("crosscheck report not persisted", zap.Error(err))
	}
	c.JSON(http.StatusOK, report)
}

// GET /api/v1/networks/:id/drift?limit=50
// Aggregates the stored crosscheck reports of a network.
func (h *APIHandler) handleDrift(c *gin.Context) {
	n, err := h.Registry.Lookup(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	drift, err := h.Crosscheck.DriftReport(c.Request.Context(), n.ID().String(), limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, drift)
}

// POST /api/v1/networks/:id/jobs
// Launches a sampling run in the background. Progress is pushed on
// /api/v1/stream and polled on /api/v1/jobs/:id.
func (h *APIHandler) handleStartJob(c *gin.Context) {
	n, err := h.Registry.Lookup(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	var req models.ApproximateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body. Expected: {target | event, evidence, options}", err)
		return
	}
	if req.Target == "" && len(req.Event) == 0 {
		badRequest(c, "Either target or event is required", nil)
		return
	}
	status, err := h.Jobs.Start(n, req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, status)
}

// GET /api/v1/jobs
func (h *APIHandler) handleListJobs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": h.Jobs.List()})
}

// GET /api/v1/jobs/:id
func (h *APIHandler) handleGetJob(c *gin.Context) {
	status, err := h.Jobs.Status(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// DELETE /api/v1/jobs/:id
// Cancels a running job; it finishes with a partial estimate.
func (h *APIHandler) handleCancelJob(c *gin.Context) {
	if err := h.Jobs.Cancel(c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	status, _ := h.Jobs.Status(c.Param("id"))
	c.JSON(http.StatusAccepted, status)
}
