package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	redisclient "github.com/astrofuse/astrofuse-backend/internal/clients/redis"
	"github.com/astrofuse/astrofuse-backend/internal/fusion"
	"github.com/astrofuse/astrofuse-backend/internal/logger"
	"github.com/astrofuse/astrofuse-backend/internal/repos"
	"github.com/astrofuse/astrofuse-backend/internal/types"
)

// EngineConfig tunes the cross-match engine. Zero values fall back to the
// defaults below.
type EngineConfig struct {
	MaxRadiusArcsec     float64 `yaml:"max_radius_arcsec"`
	LargeGroupThreshold int     `yaml:"large_group_threshold"`
	CellWorkers         int     `yaml:"cell_workers"`
	ScanBatchSize       int     `yaml:"scan_batch_size"`
	ListPageCap         int     `yaml:"list_page_cap"`
}

const (
	defaultMaxRadiusArcsec     = 60.0
	defaultLargeGroupThreshold = 20
	defaultCellWorkers         = 8
	defaultScanBatchSize       = 2000
	defaultListPageCap         = 100
)

func (c EngineConfig) withDefaults() EngineConfig {
	if c.MaxRadiusArcsec <= 0 {
		c.MaxRadiusArcsec = defaultMaxRadiusArcsec
	}
	if c.LargeGroupThreshold <= 0 {
		c.LargeGroupThreshold = defaultLargeGroupThreshold
	}
	if c.CellWorkers <= 0 {
		c.CellWorkers = defaultCellWorkers
	}
	if c.ScanBatchSize <= 0 {
		c.ScanBatchSize = defaultScanBatchSize
	}
	if c.ListPageCap <= 0 {
		c.ListPageCap = defaultListPageCap
	}
	return c
}

type CrossMatchService interface {
	Run(ctx context.Context, radiusArcsec float64) (*types.CrossMatchRun, error)
}

type crossMatchService struct {
	db     *gorm.DB
	log    *logger.Logger
	cfg    EngineConfig
	stars  repos.StarRecordRepo
	groups repos.FusionGroupRepo
	runs   repos.CrossMatchRunRepo
	cache  redisclient.StatsCache
	tracer trace.Tracer
}

func NewCrossMatchService(db *gorm.DB, baseLog *logger.Logger, cfg EngineConfig, stars repos.StarRecordRepo, groups repos.FusionGroupRepo, runs repos.CrossMatchRunRepo, cache redisclient.StatsCache) CrossMatchService {
	return &crossMatchService{
		db:     db,
		log:    baseLog.With("service", "CrossMatchService"),
		cfg:    cfg.withDefaults(),
		stars:  stars,
		groups: groups,
		runs:   runs,
		cache:  cache,
		tracer: otel.Tracer("crossmatch"),
	}
}

// Run executes one full cross-match: candidate scan, transitive grouping,
// identity-preserving assignment, then a single-transaction commit. Prior
// group assignments stay untouched unless the whole run commits.
func (s *crossMatchService) Run(ctx context.Context, radiusArcsec float64) (*types.CrossMatchRun, error) {
	if math.IsNaN(radiusArcsec) || radiusArcsec <= 0 || radiusArcsec > s.cfg.MaxRadiusArcsec {
		return nil, fmt.Errorf("%w: radius_arcsec must be in (0, %g], got %g", ErrInvalidRadius, s.cfg.MaxRadiusArcsec, radiusArcsec)
	}

	run, err := s.runs.Begin(ctx, radiusArcsec)
	if err != nil {
		if errors.Is(err, repos.ErrRunActive) {
			return nil, fmt.Errorf("%w", ErrConcurrentRun)
		}
		return nil, fmt.Errorf("%w: begin run: %v", ErrStoreUnavailable, err)
	}
	s.log.Info("Cross-match run started", "run_id", run.ID, "radius_arcsec", radiusArcsec)

	if err := s.execute(ctx, run); err != nil {
		if failErr := s.runs.MarkFailed(context.WithoutCancel(ctx), run.ID, err); failErr != nil {
			s.log.Error("Failed to mark run as failed", "run_id", run.ID, "error", failErr)
		}
		s.log.Error("Cross-match run failed", "run_id", run.ID, "error", err)
		return nil, err
	}

	if s.cache != nil {
		s.cache.InvalidateFusionStats(ctx)
	}
	s.log.Info("Cross-match run completed",
		"run_id", run.ID,
		"records_scanned", run.RecordsScanned,
		"records_skipped", run.RecordsSkipped,
		"groups_created", run.GroupsCreated,
		"groups_merged", run.GroupsMerged,
		"groups_split", run.GroupsSplit,
		"duration", run.Duration().String(),
	)
	return run, nil
}

func (s *crossMatchService) execute(ctx context.Context, run *types.CrossMatchRun) error {
	ctx, span := s.tracer.Start(ctx, "crossmatch.run", trace.WithAttributes(
		attribute.String("run.id", run.ID.String()),
		attribute.Float64("run.radius_arcsec", run.RadiusArcsec),
	))
	defer span.End()

	records, prior, err := s.loadPriorState(ctx)
	if err != nil {
		return fmt.Errorf("%w: load records: %v", ErrStoreUnavailable, err)
	}

	scanCtx, scanSpan := s.tracer.Start(ctx, "crossmatch.scan")
	scan, err := fusion.FindCandidates(scanCtx, records, run.RadiusArcsec, s.cfg.CellWorkers)
	scanSpan.End()
	if err != nil {
		return fmt.Errorf("candidate scan: %w", err)
	}
	s.log.Debug("Candidate scan done", "pairs", len(scan.Pairs), "scanned", scan.Scanned, "skipped", scan.Skipped)

	components := s.groupComponents(ctx, records, scan.Pairs)

	plan := fusion.BuildPlan(components, prior, s.cfg.LargeGroupThreshold)
	if plan.Large > 0 {
		s.log.Warn("Oversized fusion groups formed; match radius may be too generous for this sky density",
			"large_groups", plan.Large,
			"threshold", s.cfg.LargeGroupThreshold,
			"radius_arcsec", run.RadiusArcsec,
		)
	}

	run.RecordsScanned = scan.Scanned
	run.RecordsSkipped = scan.Skipped
	run.GroupsCreated = plan.Created
	run.GroupsMerged = plan.Merged
	run.GroupsSplit = plan.Split
	run.LargeGroups = plan.Large

	persistCtx, persistSpan := s.tracer.Start(ctx, "crossmatch.persist")
	err = s.persist(persistCtx, run, plan, prior)
	persistSpan.End()
	if err != nil {
		return fmt.Errorf("%w: persist plan: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *crossMatchService) loadPriorState(ctx context.Context) ([]fusion.Record, fusion.PriorState, error) {
	ctx, span := s.tracer.Start(ctx, "crossmatch.load")
	defer span.End()

	prior := fusion.PriorState{
		RecordGroup: make(map[uuid.UUID]uuid.UUID),
	}
	var records []fusion.Record
	err := s.stars.ListActiveInBatches(ctx, nil, s.cfg.ScanBatchSize, func(batch []*types.StarRecord) error {
		for _, rec := range batch {
			records = append(records, fusion.Record{
				ID:      rec.ID,
				Coord:   fusion.Coord{RaDeg: rec.RaDeg, DecDeg: rec.DecDeg},
				Catalog: rec.SourceCatalog,
			})
			if rec.FusionGroupID != nil {
				prior.RecordGroup[rec.ID] = *rec.FusionGroupID
			}
		}
		return nil
	})
	if err != nil {
		return nil, fusion.PriorState{}, err
	}

	created, err := s.groups.LiveCreatedTimes(ctx, nil)
	if err != nil {
		return nil, fusion.PriorState{}, err
	}
	prior.GroupCreated = created
	return records, prior, nil
}

func (s *crossMatchService) groupComponents(ctx context.Context, records []fusion.Record, pairs []fusion.CandidatePair) [][]fusion.Record {
	_, span := s.tracer.Start(ctx, "crossmatch.group")
	defer span.End()

	posOf := make(map[uuid.UUID]int, len(records))
	for i, rec := range records {
		posOf[rec.ID] = i
	}
	uf := fusion.NewUnionFind(len(records))
	for _, p := range pairs {
		uf.Union(posOf[p.A], posOf[p.B])
	}

	indexComponents := uf.Components()
	components := make([][]fusion.Record, 0, len(indexComponents))
	for _, comp := range indexComponents {
		members := make([]fusion.Record, 0, len(comp))
		for _, i := range comp {
			members = append(members, records[i])
		}
		components = append(components, members)
	}
	return components
}

// persist commits the whole plan in one transaction so concurrent readers
// never observe a half-applied grouping.
func (s *crossMatchService) persist(ctx context.Context, run *types.CrossMatchRun, plan *fusion.Plan, prior fusion.PriorState) error {
	now := time.Now().UTC()

	groupRows := make([]*types.FusionGroup, 0, len(plan.Groups))
	for _, g := range plan.Groups {
		groupRows = append(groupRows, &types.FusionGroup{
			ID:             g.ID,
			CentroidRa:     g.CentroidRa,
			CentroidDec:    g.CentroidDec,
			MemberCount:    g.MemberCount,
			LastComputedAt: now,
		})
	}

	// Only rewrite assignments that actually changed; the common no-new-data
	// re-run touches zero star rows.
	changed := make(map[uuid.UUID][]uuid.UUID)
	for recID, gid := range plan.Assignments {
		if old, ok := prior.RecordGroup[recID]; ok && old == gid {
			continue
		}
		changed[gid] = append(changed[gid], recID)
	}

	return s.transact(ctx, func(tx *gorm.DB) error {
		if err := s.groups.UpsertLive(ctx, tx, groupRows); err != nil {
			return err
		}
		if len(plan.Retired) > 0 {
			if err := s.groups.Retire(ctx, tx, plan.Retired, now); err != nil {
				return err
			}
		}
		if err := s.stars.BulkAssignFusionGroups(ctx, tx, changed); err != nil {
			return err
		}
		if len(plan.Orphaned) > 0 {
			if err := s.groups.Delete(ctx, tx, plan.Orphaned); err != nil {
				return err
			}
		}
		return s.runs.Complete(ctx, tx, run)
	})
}

func (s *crossMatchService) transact(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s.db == nil {
		return fn(nil)
	}
	return s.db.WithContext(ctx).Transaction(fn)
}
