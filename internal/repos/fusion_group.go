package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/astrofuse/astrofuse-backend/internal/logger"
	"github.com/astrofuse/astrofuse-backend/internal/types"
)

type FusionGroupRepo interface {
	UpsertLive(ctx context.Context, tx *gorm.DB, groups []*types.FusionGroup) error
	Retire(ctx context.Context, tx *gorm.DB, aliases map[uuid.UUID]uuid.UUID, now time.Time) error
	Delete(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) error
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.FusionGroup, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.FusionGroup, error)
	List(ctx context.Context, tx *gorm.DB, minSize, limit, offset int) ([]*types.FusionGroup, error)
	LiveCreatedTimes(ctx context.Context, tx *gorm.DB) (map[uuid.UUID]time.Time, error)
	Stats(ctx context.Context, tx *gorm.DB, totalRecords int64) (*types.FusionStats, error)
}

type fusionGroupRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewFusionGroupRepo(db *gorm.DB, baseLog *logger.Logger) FusionGroupRepo {
	return &fusionGroupRepo{
		db:  db,
		log: baseLog.With("repo", "FusionGroupRepo"),
	}
}

// UpsertLive inserts new groups and refreshes centroid/count/timestamps on
// reused ones. A reused id always comes back live, so any stale alias on the
// row is cleared by the update.
func (r *fusionGroupRepo) UpsertLive(ctx context.Context, tx *gorm.DB, groups []*types.FusionGroup) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(groups) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"centroid_ra",
				"centroid_dec",
				"member_count",
				"canonical_id",
				"last_computed_at",
				"updated_at",
			}),
		}).
		CreateInBatches(&groups, assignChunkSize).Error
}

// Retire tombstones the losing groups of a merge. Existing tombstones whose
// alias points at a newly retired id are repointed to its canonical, so an
// alias always resolves in one hop.
func (r *fusionGroupRepo) Retire(ctx context.Context, tx *gorm.DB, aliases map[uuid.UUID]uuid.UUID, now time.Time) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	for retired, canonical := range aliases {
		if err := transaction.WithContext(ctx).
			Model(&types.FusionGroup{}).
			Where("id = ?", retired).
			Updates(map[string]interface{}{
				"canonical_id":     canonical,
				"member_count":     0,
				"last_computed_at": now,
			}).Error; err != nil {
			return err
		}
		if err := transaction.WithContext(ctx).
			Model(&types.FusionGroup{}).
			Where("canonical_id = ?", retired).
			Update("canonical_id", canonical).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *fusionGroupRepo) Delete(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(ids) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).
		Where("id IN ?", ids).
		Delete(&types.FusionGroup{}).Error
}

func (r *fusionGroupRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.FusionGroup, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var group types.FusionGroup
	err := transaction.WithContext(ctx).
		Where("id = ?", id).
		First(&group).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &group, nil
}

func (r *fusionGroupRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.FusionGroup, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.FusionGroup
	if len(ids) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *fusionGroupRepo) List(ctx context.Context, tx *gorm.DB, minSize, limit, offset int) ([]*types.FusionGroup, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if minSize < 1 {
		minSize = 1
	}
	var out []*types.FusionGroup
	if err := transaction.WithContext(ctx).
		Where("canonical_id IS NULL AND member_count >= ?", minSize).
		Order("member_count DESC, id ASC").
		Limit(limit).
		Offset(offset).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// LiveCreatedTimes returns creation times for every non-retired group, the
// prior-state input for merge canonicalization and orphan detection.
func (r *fusionGroupRepo) LiveCreatedTimes(ctx context.Context, tx *gorm.DB) (map[uuid.UUID]time.Time, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var rows []struct {
		ID        uuid.UUID
		CreatedAt time.Time
	}
	if err := transaction.WithContext(ctx).
		Model(&types.FusionGroup{}).
		Select("id", "created_at").
		Where("canonical_id IS NULL").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]time.Time, len(rows))
	for _, row := range rows {
		out[row.ID] = row.CreatedAt
	}
	return out, nil
}

func (r *fusionGroupRepo) Stats(ctx context.Context, tx *gorm.DB, totalRecords int64) (*types.FusionStats, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	stats := &types.FusionStats{TotalStars: totalRecords}
	if err := transaction.WithContext(ctx).
		Model(&types.FusionGroup{}).
		Where("canonical_id IS NULL").
		Count(&stats.UniqueFusionGroups).Error; err != nil {
		return nil, err
	}
	if err := transaction.WithContext(ctx).
		Model(&types.FusionGroup{}).
		Select("COALESCE(SUM(member_count), 0)").
		Where("canonical_id IS NULL AND member_count > 1").
		Scan(&stats.StarsInFusionGroup).Error; err != nil {
		return nil, err
	}
	if err := transaction.WithContext(ctx).
		Model(&types.FusionGroup{}).
		Where("canonical_id IS NULL AND member_count = 1").
		Count(&stats.IsolatedStars).Error; err != nil {
		return nil, err
	}
	return stats, nil
}
