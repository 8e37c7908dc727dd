package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mla-quiz/medref/internal/logging"
	"github.com/mla-quiz/medref/internal/middleware"
	"github.com/mla-quiz/medref/internal/reference"
	"github.com/mla-quiz/medref/internal/services"
	"go.uber.org/zap"
)

// Deps are the components the HTTP surface is built from
type Deps struct {
	Worker        *services.Worker
	Hub           *services.Hub
	Catalog       *reference.Catalog
	SyncTag       string
	ControlSecret string
	Logger        *zap.Logger
}

// SetupRouter builds the gateway engine. Anything outside /_sw, /_ref and /health is intercepted.
func SetupRouter(deps Deps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logging.GinLogger(deps.Logger))

	// CORS for the gateway's own surfaces; intercepted traffic keeps the upstream's headers
	router.Use(func(c *gin.Context) {
		if !ownPath(c.Request.URL.Path) {
			c.Next()
			return
		}
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "state": deps.Worker.State().String()})
	})

	controlHandler := NewControlHandler(deps.Worker, deps.Hub, deps.SyncTag, deps.Logger)
	referenceHandler := NewReferenceHandler(deps.Catalog)
	gatewayHandler := NewGatewayHandler(deps.Worker, deps.Logger)

	control := router.Group("/_sw")
	control.Use(middleware.ControlAuth(deps.ControlSecret))
	{
		control.POST("/message", controlHandler.Message)
		control.POST("/sync", controlHandler.Sync)
		control.GET("/status", controlHandler.Status)
		control.GET("/submissions", controlHandler.Submissions)
		control.GET("/clients", controlHandler.Clients)
	}

	ref := router.Group("/_ref")
	{
		ref.GET("", referenceHandler.Tables)
		ref.GET("/:table", referenceHandler.Query)
		ref.GET("/:table/categories", referenceHandler.Categories)
		ref.GET("/:table/:key", referenceHandler.Get)
	}

	router.NoRoute(func(c *gin.Context) {
		if ownPath(c.Request.URL.Path) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		gatewayHandler.Intercept(c)
	})

	return router
}

func ownPath(path string) bool {
	return path == "/_ref" || strings.HasPrefix(path, "/_sw/") || strings.HasPrefix(path, "/_ref/")
}
