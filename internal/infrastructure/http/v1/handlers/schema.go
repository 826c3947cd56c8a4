package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RouteSchema describes one API operation for clients.
type RouteSchema struct {
	Method     string `json:"method"`
	Path       string `json:"path"`
	Permission string `json:"permission,omitempty"`
	Public     bool   `json:"public,omitempty"`
}

// SchemaHandler serves the machine-readable API surface.
type SchemaHandler struct {
	routes []RouteSchema
}

// NewSchemaHandler creates a schema handler over the registered routes.
func NewSchemaHandler(routes []RouteSchema) *SchemaHandler {
	return &SchemaHandler{routes: routes}
}

// Get returns the API schema.
// GET /api/schema
func (h *SchemaHandler) Get(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"version": "v1",
		"routes":  h.routes,
	})
}
