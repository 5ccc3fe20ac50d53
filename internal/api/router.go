package api

import (
	"github.com/gin-gonic/gin"
	"github.com/timmy/producer-tools/internal/api/handler"
	"github.com/timmy/producer-tools/internal/api/middleware"
	"github.com/timmy/producer-tools/internal/deps"
	"github.com/timmy/producer-tools/internal/logger"
	"github.com/timmy/producer-tools/internal/service"
)

// RouterConfig wires the router's collaborators.
type RouterConfig struct {
	Converter    *service.ConverterService
	History      handler.HistoryLister // nil disables /api/v1/history
	Requirements []deps.Requirement
	Mode         string
	CORS         middleware.CORSConfig
	Logger       *logger.Logger
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(cfg RouterConfig) *gin.Engine {
	// Set Gin mode
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	// Add middleware
	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(cfg.Logger))
	r.Use(middleware.CORS(cfg.CORS))

	// Create handlers
	healthHandler := handler.NewHealthHandler(cfg.Requirements)
	convertHandler := handler.NewConvertHandler(cfg.Converter)

	r.GET("/", healthHandler.Index)
	r.GET("/health", healthHandler.Health)
	r.GET("/health/deps", healthHandler.Dependencies)

	r.POST("/convert", convertHandler.Convert)
	r.GET("/status/:task_id", convertHandler.Status)
	r.GET("/download/:task_id", convertHandler.Download)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		v1.POST("/convert", convertHandler.Convert)
		v1.GET("/status/:task_id", convertHandler.Status)
		v1.GET("/download/:task_id", convertHandler.Download)
		v1.GET("/jobs", convertHandler.ListJobs)

		if cfg.History != nil {
			historyHandler := handler.NewHistoryHandler(cfg.History)
			v1.GET("/history", historyHandler.List)
		}
	}

	return r
}
