package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/astrofuse/astrofuse-backend/internal/logger"
	"github.com/astrofuse/astrofuse-backend/internal/types"
)

type CrossMatchRunRepo interface {
	Begin(ctx context.Context, radiusArcsec float64) (*types.CrossMatchRun, error)
	Complete(ctx context.Context, tx *gorm.DB, run *types.CrossMatchRun) error
	MarkFailed(ctx context.Context, id uuid.UUID, runErr error) error
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.CrossMatchRun, error)
	ListRecent(ctx context.Context, tx *gorm.DB, limit int) ([]*types.CrossMatchRun, error)
}

type crossMatchRunRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCrossMatchRunRepo(db *gorm.DB, baseLog *logger.Logger) CrossMatchRunRepo {
	return &crossMatchRunRepo{
		db:  db,
		log: baseLog.With("repo", "CrossMatchRunRepo"),
	}
}

// Begin inserts a run in "running" state. The in-transaction count guards
// backends without partial indexes; on Postgres the uq_cross_match_run_active
// index turns a lost race into a unique violation, mapped to ErrRunActive.
func (r *crossMatchRunRepo) Begin(ctx context.Context, radiusArcsec float64) (*types.CrossMatchRun, error) {
	run := &types.CrossMatchRun{
		ID:           uuid.New(),
		RadiusArcsec: radiusArcsec,
		Status:       types.RunStatusRunning,
		StartedAt:    time.Now().UTC(),
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var active int64
		if err := tx.Model(&types.CrossMatchRun{}).
			Where("status = ?", types.RunStatusRunning).
			Count(&active).Error; err != nil {
			return err
		}
		if active > 0 {
			return ErrRunActive
		}
		return tx.Create(run).Error
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrRunActive
		}
		return nil, err
	}
	return run, nil
}

func (r *crossMatchRunRepo) Complete(ctx context.Context, tx *gorm.DB, run *types.CrossMatchRun) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	now := time.Now().UTC()
	run.Status = types.RunStatusCompleted
	run.CompletedAt = &now
	return transaction.WithContext(ctx).
		Model(&types.CrossMatchRun{}).
		Where("id = ? AND status = ?", run.ID, types.RunStatusRunning).
		Updates(map[string]interface{}{
			"status":          run.Status,
			"records_scanned": run.RecordsScanned,
			"records_skipped": run.RecordsSkipped,
			"groups_created":  run.GroupsCreated,
			"groups_merged":   run.GroupsMerged,
			"groups_split":    run.GroupsSplit,
			"large_groups":    run.LargeGroups,
			"completed_at":    run.CompletedAt,
		}).Error
}

func (r *crossMatchRunRepo) MarkFailed(ctx context.Context, id uuid.UUID, runErr error) error {
	now := time.Now().UTC()
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	return r.db.WithContext(ctx).
		Model(&types.CrossMatchRun{}).
		Where("id = ? AND status = ?", id, types.RunStatusRunning).
		Updates(map[string]interface{}{
			"status":       types.RunStatusFailed,
			"error":        msg,
			"completed_at": now,
		}).Error
}

func (r *crossMatchRunRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.CrossMatchRun, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var run types.CrossMatchRun
	err := transaction.WithContext(ctx).
		Where("id = ?", id).
		First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *crossMatchRunRepo) ListRecent(ctx context.Context, tx *gorm.DB, limit int) ([]*types.CrossMatchRun, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if limit < 1 {
		limit = 20
	}
	var out []*types.CrossMatchRun
	if err := transaction.WithContext(ctx).
		Order("started_at DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
