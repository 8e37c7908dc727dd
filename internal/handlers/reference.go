package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mla-quiz/medref/internal/reference"
)

// ReferenceHandler serves the bundled lookup tables
type ReferenceHandler struct {
	catalog *reference.Catalog
}

// NewReferenceHandler creates a new reference handler
func NewReferenceHandler(catalog *reference.Catalog) *ReferenceHandler {
	return &ReferenceHandler{catalog: catalog}
}

func (h *ReferenceHandler) table(c *gin.Context) (reference.Lookup, bool) {
	table, ok := h.catalog.Table(c.Param("table"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown table"})
		return nil, false
	}
	return table, true
}

// Tables lists the available tables
func (h *ReferenceHandler) Tables(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tables": h.catalog.Names()})
}

// Query handles search (?q=) and category filtering (?category=)
func (h *ReferenceHandler) Query(c *gin.Context) {
	table, ok := h.table(c)
	if !ok {
		return
	}

	var results []any
	switch {
	case c.Query("q") != "":
		results = table.Search(c.Query("q"))
		if category := c.Query("category"); category != "" {
			results = reference.InCategory(results, category)
		}
	case c.Query("category") != "":
		results = table.ByCategory(c.Query("category"))
	default:
		results = []any{}
	}

	c.JSON(http.StatusOK, gin.H{"table": table.Name(), "results": results, "count": len(results)})
}

// Categories lists a table's categories
func (h *ReferenceHandler) Categories(c *gin.Context) {
	table, ok := h.table(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"categories": table.AllCategories()})
}

// Get returns one record
func (h *ReferenceHandler) Get(c *gin.Context) {
	table, ok := h.table(c)
	if !ok {
		return
	}
	record, ok := table.Get(c.Param("key"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
		return
	}
	c.JSON(http.StatusOK, record)
}
