package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/timmy/linkweaver/internal/api/handler"
	"github.com/timmy/linkweaver/internal/api/middleware"
	"github.com/timmy/linkweaver/internal/config"
)

// Dependencies are the services the routes are wired to.
type Dependencies struct {
	Projects handler.ProjectService
	Keys     handler.KeyPool
	Queue    handler.QueueInspector
	Health   map[string]handler.HealthCheck
	// Gatherer backs /metrics; Registerer receives the HTTP collectors.
	Gatherer   prometheus.Gatherer
	Registerer prometheus.Registerer
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(cfg *config.ServerConfig, deps Dependencies) *gin.Engine {
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.CORS(cfg.CORS))
	if deps.Registerer != nil {
		r.Use(middleware.Metrics(middleware.NewHTTPMetrics(deps.Registerer)))
	}

	healthHandler := handler.NewHealthHandler(deps.Health)
	projectHandler := handler.NewProjectHandler(deps.Projects)
	keyHandler := handler.NewKeyHandler(deps.Keys)
	queueHandler := handler.NewQueueHandler(deps.Queue)

	r.GET("/health", healthHandler.Health)
	if deps.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	// Projects
	r.POST("/projects", projectHandler.CreateProject)
	r.GET("/projects", projectHandler.ListProjects)
	r.GET("/project/:id", projectHandler.GetProject)
	r.GET("/project/blogs/:id", projectHandler.ListBlogs)
	r.POST("/project/:id/regenerate", projectHandler.Regenerate)

	// Pool-wide websites
	r.POST("/websites", projectHandler.AddWebsites)
	r.GET("/websites", projectHandler.ListWebsites)

	// Credential pool
	r.POST("/keys", keyHandler.AddKey)
	r.DELETE("/keys", keyHandler.RemoveKey)
	r.GET("/keys", keyHandler.ListKeys)

	// Capacity planning
	info := r.Group("/info")
	{
		info.GET("/calibrate", keyHandler.Calibrate)
		info.GET("/max-blogs/:tokens", keyHandler.MaxBlogs)
		info.GET("/days-to-exhaust/:tokens", keyHandler.DaysToExhaust)
		info.GET("/token-usage-daily", keyHandler.TokenUsageDaily)
	}

	r.GET("/queue/stats", queueHandler.Stats)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})
	return r
}
