package app

import (
	"github.com/gin-gonic/gin"

	"github.com/astrofuse/astrofuse-backend/internal/server"
)

func wireRouter(cfg Config, handlerset Handlers, mw Middleware) *gin.Engine {
	return server.NewRouter(server.RouterConfig{
		FusionHandler:  handlerset.Fusion,
		CatalogHandler: handlerset.Catalog,
		RequestLogger:  mw.RequestLogger,
		AllowOrigins:   cfg.AllowOrigins,
	})
}
