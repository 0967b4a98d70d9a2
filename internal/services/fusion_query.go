package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	redisclient "github.com/astrofuse/astrofuse-backend/internal/clients/redis"
	"github.com/astrofuse/astrofuse-backend/internal/logger"
	"github.com/astrofuse/astrofuse-backend/internal/repos"
	"github.com/astrofuse/astrofuse-backend/internal/types"
)

// FusionQueryService is the read path over committed fusion state. It never
// mutates groups and sees only the last-committed run.
type FusionQueryService interface {
	GetGroup(ctx context.Context, id uuid.UUID) (*types.FusionGroup, []*types.StarRecord, error)
	ListGroups(ctx context.Context, minSize, limit, offset int) ([]*types.FusionGroup, error)
	GetStats(ctx context.Context) (*types.FusionStats, error)
	GetRun(ctx context.Context, id uuid.UUID) (*types.CrossMatchRun, error)
	ListRuns(ctx context.Context, limit int) ([]*types.CrossMatchRun, error)
}

type fusionQueryService struct {
	log    *logger.Logger
	cfg    EngineConfig
	stars  repos.StarRecordRepo
	groups repos.FusionGroupRepo
	runs   repos.CrossMatchRunRepo
	cache  redisclient.StatsCache
}

func NewFusionQueryService(baseLog *logger.Logger, cfg EngineConfig, stars repos.StarRecordRepo, groups repos.FusionGroupRepo, runs repos.CrossMatchRunRepo, cache redisclient.StatsCache) FusionQueryService {
	return &fusionQueryService{
		log:    baseLog.With("service", "FusionQueryService"),
		cfg:    cfg.withDefaults(),
		stars:  stars,
		groups: groups,
		runs:   runs,
		cache:  cache,
	}
}

// GetGroup resolves a retired id transparently to its canonical successor.
// Aliases are never chained, so a single hop is always enough.
func (s *fusionQueryService) GetGroup(ctx context.Context, id uuid.UUID) (*types.FusionGroup, []*types.StarRecord, error) {
	group, err := s.groups.GetByID(ctx, nil, id)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: get group: %v", ErrStoreUnavailable, err)
	}
	if group == nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrGroupNotFound, id)
	}
	if group.Retired() {
		canonical, err := s.groups.GetByID(ctx, nil, *group.CanonicalID)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: resolve alias: %v", ErrStoreUnavailable, err)
		}
		if canonical == nil {
			return nil, nil, fmt.Errorf("%w: alias target of %s", ErrGroupNotFound, id)
		}
		group = canonical
	}
	members, err := s.stars.GetByFusionGroupID(ctx, nil, group.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: list members: %v", ErrStoreUnavailable, err)
	}
	return group, members, nil
}

func (s *fusionQueryService) ListGroups(ctx context.Context, minSize, limit, offset int) ([]*types.FusionGroup, error) {
	if limit < 1 || limit > s.cfg.ListPageCap {
		limit = s.cfg.ListPageCap
	}
	if offset < 0 {
		offset = 0
	}
	groups, err := s.groups.List(ctx, nil, minSize, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%w: list groups: %v", ErrStoreUnavailable, err)
	}
	return groups, nil
}

func (s *fusionQueryService) GetStats(ctx context.Context) (*types.FusionStats, error) {
	if s.cache != nil {
		if stats, ok := s.cache.GetFusionStats(ctx); ok {
			return stats, nil
		}
	}
	total, err := s.stars.CountAll(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: count records: %v", ErrStoreUnavailable, err)
	}
	stats, err := s.groups.Stats(ctx, nil, total)
	if err != nil {
		return nil, fmt.Errorf("%w: group stats: %v", ErrStoreUnavailable, err)
	}
	if s.cache != nil {
		s.cache.SetFusionStats(ctx, stats)
	}
	return stats, nil
}

func (s *fusionQueryService) GetRun(ctx context.Context, id uuid.UUID) (*types.CrossMatchRun, error) {
	run, err := s.runs.GetByID(ctx, nil, id)
	if err != nil {
		return nil, fmt.Errorf("%w: get run: %v", ErrStoreUnavailable, err)
	}
	if run == nil {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run, nil
}

func (s *fusionQueryService) ListRuns(ctx context.Context, limit int) ([]*types.CrossMatchRun, error) {
	if limit < 1 || limit > s.cfg.ListPageCap {
		limit = s.cfg.ListPageCap
	}
	runs, err := s.runs.ListRecent(ctx, nil, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list runs: %v", ErrStoreUnavailable, err)
	}
	return runs, nil
}
