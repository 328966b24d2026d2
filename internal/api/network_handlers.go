package api

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/rawblock/bayesnet-engine/internal/network"
)

// maxDocumentBytes bounds an uploaded network document.
const maxDocumentBytes = 8 << 20

// POST /api/v1/networks
// Accepts a network document as JSON, or YAML when the Content-Type says
// so, validates it and registers the network.
func (h *APIHandler) handleCreateNetwork(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxDocumentBytes+1))
	if err != nil {
		badRequest(c, "Failed to read request body", err)
		return
	}
	if len(body) > maxDocumentBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Network document too large"})
		return
	}

	format := network.FormatJSON
	if ct := c.ContentType(); strings.Contains(ct, "yaml") {
		format = network.FormatYAML
	}
	doc, err := network.Decode(body, format)
	if err != nil {
		badRequest(c, "Invalid network document", err)
		return
	}

	n, err := network.FromDocument(doc)
	if err != nil {
		h.fail(c, err)
		return
	}
	summary, err := h.Registry.Register(c.Request.Context(), n)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, summary)
}

// GET /api/v1/networks
func (h *APIHandler) handleListNetworks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": h.Registry.List()})
}

// GET /api/v1/networks/:id
// Returns the network document, which can be posted back as is.
func (h *APIHandler) handleGetNetwork(c *gin.Context) {
	n, err := h.Registry.Lookup(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":       n.ID().String(),
		"document": n.Document(),
	})
}

// DELETE /api/v1/networks/:id
func (h *APIHandler) handleDeleteNetwork(c *gin.Context) {
	n, err := h.Registry.Lookup(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := h.Registry.Remove(c.Request.Context(), n.ID()); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GET /api/v1/networks/:id/adjacency
// adjacency[i][j] is true when variable i is a parent of variable j.
func (h *APIHandler) handleAdjacency(c *gin.Context) {
	n, err := h.Registry.Lookup(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	names := make([]string, n.NumVariables())
	for i := range names {
		names[i] = n.VariableName(i)
	}
	c.JSON(http.StatusOK, gin.H{
		"variables": names,
		"adjacency": n.Adjacency(),
	})
}

// GET /api/v1/networks/:id/structure
// Compiles (or reuses) the junction tree and describes it.
func (h *APIHandler) handleStructure(c *gin.Context) {
	n, err := h.Registry.Lookup(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	tree, err := h.Engine.Compile(c.Request.Context(), n)
	if err != nil {
		h.fail(c, err)
		return
	}

	label := func(vars []int) []string {
		out := make([]string, len(vars))
		for i, v := range vars {
			out[i] = n.VariableName(v)
		}
		return out
	}
	cliques := make([][]string, 0, len(tree.Cliques()))
	for _, cl := range tree.Cliques() {
		cliques = append(cliques, label(cl))
	}
	separators := make([]gin.H, 0, len(tree.Separators()))
	for _, s := range tree.Separators() {
		separators = append(separators, gin.H{"a": s.A, "b": s.B, "variables": label(s.Vars)})
	}
	c.JSON(http.StatusOK, gin.H{
		"cliques":    cliques,
		"separators": separators,
		"treewidth":  tree.Treewidth(),
	})
}

// GET /api/v1/networks/:id/history?limit=50
// Returns the most recent query audit rows.
func (h *APIHandler) handleHistory(c *gin.Context) {
	n, err := h.Registry.Lookup(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if h.Store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Database not connected"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	records, err := h.Store.ListQueryRecords(c.Request.Context(), n.ID().String(), limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": records})
}
