package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/rawblock/bayesnet-engine/internal/factor"
	"github.com/rawblock/bayesnet-engine/internal/gibbs"
	"github.com/rawblock/bayesnet-engine/internal/inference"
	"github.com/rawblock/bayesnet-engine/internal/jobs"
	"github.com/rawblock/bayesnet-engine/internal/network"
	"github.com/rawblock/bayesnet-engine/internal/registry"
)

// statusFor maps engine errors to HTTP statuses. Structural problems with a
// submitted network are 422, bad references in a query are 400, and
// evidence the model rules out (zero mass) is 422.
func statusFor(err error) int {
	var (
		cyclic  *network.CyclicGraphError
		scope   *factor.ScopeMismatchError
		dist    *network.InvalidDistributionError
		def     *network.InvalidDefinitionError
		unknown *network.UnknownVariableError
		invalid *network.InvalidEvidenceError
		zero    *factor.ZeroMassError
		empty   *gibbs.EmptyConditionalError
	)
	switch {
	case errors.Is(err, registry.ErrNotFound), errors.Is(err, jobs.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &cyclic), errors.As(err, &scope), errors.As(err, &dist), errors.As(err, &def):
		return http.StatusUnprocessableEntity
	case errors.As(err, &zero), errors.As(err, &empty):
		return http.StatusUnprocessableEntity
	case errors.As(err, &unknown), errors.As(err, &invalid), errors.Is(err, gibbs.ErrInvalidOptions),
		errors.Is(err, inference.ErrEmptyQuery):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// errorKind names the error class in responses so clients can branch on it.
func errorKind(err error) string {
	var (
		cyclic  *network.CyclicGraphError
		scope   *factor.ScopeMismatchError
		dist    *network.InvalidDistributionError
		def     *network.InvalidDefinitionError
		unknown *network.UnknownVariableError
		invalid *network.InvalidEvidenceError
		zero    *factor.ZeroMassError
		empty   *gibbs.EmptyConditionalError
	)
	switch {
	case errors.As(err, &cyclic):
		return "cyclic_graph"
	case errors.As(err, &scope):
		return "scope_mismatch"
	case errors.As(err, &dist):
		return "invalid_distribution"
	case errors.As(err, &def):
		return "invalid_definition"
	case errors.As(err, &unknown):
		return "unknown_variable"
	case errors.As(err, &invalid):
		return "invalid_evidence"
	case errors.As(err, &zero):
		return "zero_mass"
	case errors.As(err, &empty):
		return "empty_conditional"
	case errors.Is(err, gibbs.ErrInvalidOptions):
		return "invalid_options"
	case errors.Is(err, inference.ErrEmptyQuery):
		return "empty_query"
	case errors.Is(err, registry.ErrNotFound), errors.Is(err, jobs.ErrNotFound):
		return "not_found"
	default:
		return "internal"
	}
}

func (h *APIHandler) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error(), "kind": errorKind(err)})
}

func badRequest(c *gin.Context, msg string, err error) {
	body := gin.H{"error": msg}
	if err != nil {
		body["details"] = err.Error()
	}
	c.JSON(http.StatusBadRequest, body)
}
