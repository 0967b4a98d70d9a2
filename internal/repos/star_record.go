package repos

import (
	"bytes"
	"context"
	"sort"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/astrofuse/astrofuse-backend/internal/logger"
	"github.com/astrofuse/astrofuse-backend/internal/types"
)

const assignChunkSize = 500

type StarRecordRepo interface {
	Create(ctx context.Context, tx *gorm.DB, records []*types.StarRecord) ([]*types.StarRecord, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.StarRecord, error)
	GetByFusionGroupID(ctx context.Context, tx *gorm.DB, groupID uuid.UUID) ([]*types.StarRecord, error)
	ListActiveInBatches(ctx context.Context, tx *gorm.DB, batchSize int, fn func(batch []*types.StarRecord) error) error
	BulkAssignFusionGroups(ctx context.Context, tx *gorm.DB, byGroup map[uuid.UUID][]uuid.UUID) error
	DeleteByCatalog(ctx context.Context, tx *gorm.DB, catalog string) (int64, error)
	CountAll(ctx context.Context, tx *gorm.DB) (int64, error)
}

type starRecordRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewStarRecordRepo(db *gorm.DB, baseLog *logger.Logger) StarRecordRepo {
	return &starRecordRepo{
		db:  db,
		log: baseLog.With("repo", "StarRecordRepo"),
	}
}

func (r *starRecordRepo) Create(ctx context.Context, tx *gorm.DB, records []*types.StarRecord) ([]*types.StarRecord, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(records) == 0 {
		return []*types.StarRecord{}, nil
	}
	if err := transaction.WithContext(ctx).CreateInBatches(&records, assignChunkSize).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (r *starRecordRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.StarRecord, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.StarRecord
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

func (r *starRecordRepo) GetByFusionGroupID(ctx context.Context, tx *gorm.DB, groupID uuid.UUID) ([]*types.StarRecord, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.StarRecord
	if err := transaction.WithContext(ctx).
		Where("fusion_group_id = ?", groupID).
		Order("source_catalog ASC, id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *starRecordRepo) ListActiveInBatches(ctx context.Context, tx *gorm.DB, batchSize int, fn func(batch []*types.StarRecord) error) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if batchSize < 1 {
		batchSize = 1000
	}
	var batch []*types.StarRecord
	return transaction.WithContext(ctx).
		Order("id ASC").
		FindInBatches(&batch, batchSize, func(_ *gorm.DB, _ int) error {
			return fn(batch)
		}).Error
}

// BulkAssignFusionGroups rewrites fusion_group_id for every listed record,
// one statement per group, chunked. Callers are expected to pass only
// assignments that actually changed.
func (r *starRecordRepo) BulkAssignFusionGroups(ctx context.Context, tx *gorm.DB, byGroup map[uuid.UUID][]uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	groupIDs := make([]uuid.UUID, 0, len(byGroup))
	for gid := range byGroup {
		groupIDs = append(groupIDs, gid)
	}
	sort.Slice(groupIDs, func(a, b int) bool {
		return bytes.Compare(groupIDs[a][:], groupIDs[b][:]) < 0
	})
	for _, gid := range groupIDs {
		ids := byGroup[gid]
		for start := 0; start < len(ids); start += assignChunkSize {
			end := start + assignChunkSize
			if end > len(ids) {
				end = len(ids)
			}
			if err := transaction.WithContext(ctx).
				Model(&types.StarRecord{}).
				Where("id IN ?", ids[start:end]).
				Update("fusion_group_id", gid).Error; err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *starRecordRepo) DeleteByCatalog(ctx context.Context, tx *gorm.DB, catalog string) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	res := transaction.WithContext(ctx).
		Where("source_catalog = ?", catalog).
		Delete(&types.StarRecord{})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *starRecordRepo) CountAll(ctx context.Context, tx *gorm.DB) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var n int64
	if err := transaction.WithContext(ctx).Model(&types.StarRecord{}).Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}
