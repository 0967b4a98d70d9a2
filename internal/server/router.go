package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/astrofuse/astrofuse-backend/internal/handlers"
	"github.com/astrofuse/astrofuse-backend/internal/middleware"
)

type RouterConfig struct {
	FusionHandler  *handlers.FusionHandler
	CatalogHandler *handlers.CatalogHandler
	RequestLogger  *middleware.RequestLogger
	AllowOrigins   []string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.RequestLogger != nil {
		router.Use(cfg.RequestLogger.Handle())
	}
	router.Use(otelgin.Middleware("astrofuse-backend"))

	// Cors
	origins := cfg.AllowOrigins
	if len(origins) == 0 {
		origins = []string{
			"http://localhost:80",
			"http://localhost:3000",
			"http://localhost:5174",
		}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", handlers.HealthCheck)

	api := router.Group("/api")
	{
		// Catalog ingestion boundary
		api.POST("/catalog/records", cfg.CatalogHandler.IngestRecords)
		api.DELETE("/catalog/datasets/:catalog", cfg.CatalogHandler.RemoveDataset)

		// Cross-match engine
		api.POST("/fusion/cross-match", cfg.FusionHandler.RunCrossMatch)
		api.GET("/fusion/stats", cfg.FusionHandler.GetStats)
		api.GET("/fusion/groups", cfg.FusionHandler.ListGroups)
		api.GET("/fusion/groups/:id", cfg.FusionHandler.GetGroup)
		api.GET("/fusion/runs", cfg.FusionHandler.ListRuns)
		api.GET("/fusion/runs/:id", cfg.FusionHandler.GetRun)
	}

	return router
}
