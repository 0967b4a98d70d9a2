package db

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/astrofuse/astrofuse-backend/internal/logger"
	"github.com/astrofuse/astrofuse-backend/internal/types"
	"github.com/astrofuse/astrofuse-backend/internal/utils"
)

type PostgresService struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPostgresService(log *logger.Logger) (*PostgresService, error) {
	serviceLog := log.With("service", "PostgresService")

	log.Info("Loading environment variables...")
	postgresHost := utils.GetEnv("POSTGRES_HOST", "localhost", log)
	postgresPort := utils.GetEnv("POSTGRES_PORT", "5432", log)
	postgresUser := utils.GetEnv("POSTGRES_USER", "postgres", log)
	postgresPassword := utils.GetEnv("POSTGRES_PASSWORD", "", log)
	postgresName := utils.GetEnv("POSTGRES_NAME", "astrofuse", log)

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", postgresUser, postgresPassword, postgresHost, postgresPort, postgresName)

	log.Info("Connecting to Postgres...")
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		log.Error("Failed to connect to Postgres", "error", err)
		return nil, fmt.Errorf("Failed to connect to Postgres: %w", err)
	}

	return &PostgresService{db: gdb, log: serviceLog}, nil
}

func (s *PostgresService) AutoMigrateAll() error {
	s.log.Info("Auto migrating postgres tables...")
	err := s.db.AutoMigrate(
		&types.StarRecord{},
		&types.FusionGroup{},
		&types.CrossMatchRun{},
	)
	if err != nil {
		s.log.Error("Auto migration failed for postgres tables", "error", err)
		return err
	}

	// At most one run may sit in "running" state; concurrent starts hit a
	// unique violation instead of interleaving.
	s.log.Info("Configuring run exclusivity index...")
	if err := s.db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS uq_cross_match_run_active
		ON "cross_match_run" ("status")
		WHERE "status" = 'running'
	`).Error; err != nil {
		return fmt.Errorf("Failed to add uq_cross_match_run_active: %w", err)
	}

	if err := s.db.Exec(`
		ALTER TABLE "star_record"
		DROP CONSTRAINT IF EXISTS "fk_star_record_fusion_group";
		ALTER TABLE "star_record"
		ADD CONSTRAINT "fk_star_record_fusion_group"
		FOREIGN KEY ("fusion_group_id")
		REFERENCES "fusion_group"("id")
		ON DELETE SET NULL
	`).Error; err != nil {
		return fmt.Errorf("Failed to add fk_star_record_fusion_group: %w", err)
	}
	return nil
}

func (s *PostgresService) DB() *gorm.DB {
	return s.db
}
