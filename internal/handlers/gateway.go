package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mla-quiz/medref/internal/models"
	"github.com/mla-quiz/medref/internal/services"
	"go.uber.org/zap"
)

const maxInterceptBody = 10 << 20

// GatewayHandler hands every page request to the worker
type GatewayHandler struct {
	worker *services.Worker
	logger *zap.Logger
}

// NewGatewayHandler creates a new gateway handler
func NewGatewayHandler(worker *services.Worker, logger *zap.Logger) *GatewayHandler {
	return &GatewayHandler{worker: worker, logger: logger}
}

// Intercept handles any request no other route claimed
func (h *GatewayHandler) Intercept(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxInterceptBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	req := &services.Request{
		Method:   c.Request.Method,
		URL:      c.Request.URL.RequestURI(),
		Header:   c.Request.Header.Clone(),
		Body:     body,
		Navigate: services.IsNavigation(c.Request),
	}

	resp, kind := h.worker.Handle(c.Request.Context(), req)
	c.Set("route", kind.String())
	writeResponse(c, resp)
}

func writeResponse(c *gin.Context, resp *models.CachedResponse) {
	header := c.Writer.Header()
	for name, values := range resp.Header {
		if name == "Content-Length" {
			continue
		}
		header[name] = append([]string(nil), values...)
	}
	c.Status(resp.Status)
	if c.Request.Method == http.MethodHead {
		return
	}
	if _, err := c.Writer.Write(resp.Body); err != nil {
		c.Error(err)
	}
}
