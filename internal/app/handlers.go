package app

import (
	"github.com/astrofuse/astrofuse-backend/internal/handlers"
	"github.com/astrofuse/astrofuse-backend/internal/logger"
)

type Handlers struct {
	Fusion  *handlers.FusionHandler
	Catalog *handlers.CatalogHandler
}

func wireHandlers(log *logger.Logger, serviceset Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Fusion:  handlers.NewFusionHandler(serviceset.CrossMatch, serviceset.FusionQuery),
		Catalog: handlers.NewCatalogHandler(serviceset.Catalog),
	}
}
