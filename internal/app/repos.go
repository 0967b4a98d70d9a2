package app

import (
	"gorm.io/gorm"

	"github.com/astrofuse/astrofuse-backend/internal/logger"
	"github.com/astrofuse/astrofuse-backend/internal/repos"
)

type Repos struct {
	StarRecord    repos.StarRecordRepo
	FusionGroup   repos.FusionGroupRepo
	CrossMatchRun repos.CrossMatchRunRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		StarRecord:    repos.NewStarRecordRepo(db, log),
		FusionGroup:   repos.NewFusionGroupRepo(db, log),
		CrossMatchRun: repos.NewCrossMatchRunRepo(db, log),
	}
}
