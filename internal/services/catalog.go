package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	redisclient "github.com/astrofuse/astrofuse-backend/internal/clients/redis"
	"github.com/astrofuse/astrofuse-backend/internal/fusion"
	"github.com/astrofuse/astrofuse-backend/internal/logger"
	"github.com/astrofuse/astrofuse-backend/internal/repos"
	"github.com/astrofuse/astrofuse-backend/internal/types"
)

// RecordInput is one point source as submitted by an upstream catalog
// adapter. Coordinates are validated here, at the ingestion boundary, so the
// engine can trust every stored record.
type RecordInput struct {
	RaDeg         float64         `json:"ra_deg"`
	DecDeg        float64         `json:"dec_deg"`
	Magnitude     *float64        `json:"magnitude"`
	SourceCatalog string          `json:"source_catalog"`
	Metadata      json.RawMessage `json:"metadata"`
}

type CatalogService interface {
	IngestRecords(ctx context.Context, inputs []RecordInput) ([]*types.StarRecord, error)
	RemoveDataset(ctx context.Context, catalog string) (int64, error)
}

type catalogService struct {
	log   *logger.Logger
	stars repos.StarRecordRepo
	cache redisclient.StatsCache
}

func NewCatalogService(baseLog *logger.Logger, stars repos.StarRecordRepo, cache redisclient.StatsCache) CatalogService {
	return &catalogService{
		log:   baseLog.With("service", "CatalogService"),
		stars: stars,
		cache: cache,
	}
}

func (s *catalogService) IngestRecords(ctx context.Context, inputs []RecordInput) ([]*types.StarRecord, error) {
	if len(inputs) == 0 {
		return []*types.StarRecord{}, nil
	}
	now := time.Now().UTC()
	records := make([]*types.StarRecord, 0, len(inputs))
	for i, in := range inputs {
		catalog := strings.ToLower(strings.TrimSpace(in.SourceCatalog))
		if catalog == "" {
			return nil, fmt.Errorf("%w: record %d: source_catalog is required", ErrInvalidRecord, i)
		}
		if !fusion.ValidCoord(in.RaDeg, in.DecDeg) {
			return nil, fmt.Errorf("%w: record %d: ra_deg/dec_deg out of range (%g, %g)", ErrInvalidRecord, i, in.RaDeg, in.DecDeg)
		}
		rec := &types.StarRecord{
			ID:            uuid.New(),
			RaDeg:         in.RaDeg,
			DecDeg:        in.DecDeg,
			Magnitude:     in.Magnitude,
			SourceCatalog: catalog,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if len(in.Metadata) > 0 {
			rec.Metadata = datatypes.JSON(in.Metadata)
		}
		records = append(records, rec)
	}

	created, err := s.stars.Create(ctx, nil, records)
	if err != nil {
		return nil, fmt.Errorf("%w: insert records: %v", ErrStoreUnavailable, err)
	}
	if s.cache != nil {
		s.cache.InvalidateFusionStats(ctx)
	}
	s.log.Info("Ingested star records", "count", len(created))
	return created, nil
}

// RemoveDataset deletes every record of one source catalog. Group membership
// for the survivors is reconciled by the next cross-match run.
func (s *catalogService) RemoveDataset(ctx context.Context, catalog string) (int64, error) {
	catalog = strings.ToLower(strings.TrimSpace(catalog))
	if catalog == "" {
		return 0, fmt.Errorf("%w: source_catalog is required", ErrInvalidRecord)
	}
	deleted, err := s.stars.DeleteByCatalog(ctx, nil, catalog)
	if err != nil {
		return 0, fmt.Errorf("%w: delete dataset: %v", ErrStoreUnavailable, err)
	}
	if s.cache != nil {
		s.cache.InvalidateFusionStats(ctx)
	}
	s.log.Info("Removed dataset", "source_catalog", catalog, "records_deleted", deleted)
	return deleted, nil
}
