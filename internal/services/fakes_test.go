package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/astrofuse/astrofuse-backend/internal/logger"
	"github.com/astrofuse/astrofuse-backend/internal/repos"
	"github.com/astrofuse/astrofuse-backend/internal/types"
)

// fakeStore is an in-memory stand-in for the catalog store shared by the
// fake repo implementations below. Transactions are ignored; tests drive the
// services with a nil *gorm.DB so persistence runs through plain calls.
type fakeStore struct {
	mu      sync.Mutex
	records map[uuid.UUID]*types.StarRecord
	order   []uuid.UUID
	groups  map[uuid.UUID]*types.FusionGroup
	runs    map[uuid.UUID]*types.CrossMatchRun

	assignCalls   int
	failListStars bool
	failPersist   bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		records: make(map[uuid.UUID]*types.StarRecord),
		groups:  make(map[uuid.UUID]*types.FusionGroup),
		runs:    make(map[uuid.UUID]*types.CrossMatchRun),
	}
}

func (f *fakeStore) addRecord(ra, dec float64, catalog string) *types.StarRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec := &types.StarRecord{
		ID:            uuid.New(),
		RaDeg:         ra,
		DecDeg:        dec,
		SourceCatalog: catalog,
		CreatedAt:     time.Now().UTC(),
		UpdatedAt:     time.Now().UTC(),
	}
	f.records[rec.ID] = rec
	f.order = append(f.order, rec.ID)
	return rec
}

func (f *fakeStore) addGroup(id uuid.UUID, createdAt time.Time, members ...*types.StarRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.groups[id] = &types.FusionGroup{
		ID:             id,
		MemberCount:    len(members),
		CreatedAt:      createdAt,
		LastComputedAt: createdAt,
	}
	for _, rec := range members {
		gid := id
		rec.FusionGroupID = &gid
	}
}

func (f *fakeStore) groupOf(id uuid.UUID) uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec := f.records[id]
	if rec == nil || rec.FusionGroupID == nil {
		return uuid.Nil
	}
	return *rec.FusionGroupID
}

// partition returns the committed grouping as a sorted set-of-sets of record
// ids, independent of which group ids were assigned.
func (f *fakeStore) partition() [][]uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	byGroup := make(map[uuid.UUID][]uuid.UUID)
	for id, rec := range f.records {
		gid := uuid.Nil
		if rec.FusionGroupID != nil {
			gid = *rec.FusionGroupID
		}
		byGroup[gid] = append(byGroup[gid], id)
	}
	out := make([][]uuid.UUID, 0, len(byGroup))
	for _, members := range byGroup {
		sort.Slice(members, func(a, b int) bool { return members[a].String() < members[b].String() })
		out = append(out, members)
	}
	sort.Slice(out, func(a, b int) bool { return out[a][0].String() < out[b][0].String() })
	return out
}

type fakeStarRepo struct{ store *fakeStore }

func (r *fakeStarRepo) Create(ctx context.Context, tx *gorm.DB, records []*types.StarRecord) ([]*types.StarRecord, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, rec := range records {
		r.store.records[rec.ID] = rec
		r.store.order = append(r.store.order, rec.ID)
	}
	return records, nil
}

func (r *fakeStarRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.StarRecord, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	out := make([]*types.StarRecord, 0, len(ids))
	for _, id := range ids {
		if rec, ok := r.store.records[id]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *fakeStarRepo) GetByFusionGroupID(ctx context.Context, tx *gorm.DB, groupID uuid.UUID) ([]*types.StarRecord, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []*types.StarRecord
	for _, id := range r.store.order {
		rec := r.store.records[id]
		if rec != nil && rec.FusionGroupID != nil && *rec.FusionGroupID == groupID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *fakeStarRepo) ListActiveInBatches(ctx context.Context, tx *gorm.DB, batchSize int, fn func(batch []*types.StarRecord) error) error {
	r.store.mu.Lock()
	if r.store.failListStars {
		r.store.mu.Unlock()
		return errors.New("connection refused")
	}
	batch := make([]*types.StarRecord, 0, len(r.store.order))
	for _, id := range r.store.order {
		if rec, ok := r.store.records[id]; ok {
			batch = append(batch, rec)
		}
	}
	r.store.mu.Unlock()
	if len(batch) == 0 {
		return nil
	}
	return fn(batch)
}

func (r *fakeStarRepo) BulkAssignFusionGroups(ctx context.Context, tx *gorm.DB, byGroup map[uuid.UUID][]uuid.UUID) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if r.store.failPersist {
		return errors.New("connection reset")
	}
	for gid, ids := range byGroup {
		for _, id := range ids {
			if rec, ok := r.store.records[id]; ok {
				g := gid
				rec.FusionGroupID = &g
				r.store.assignCalls++
			}
		}
	}
	return nil
}

func (r *fakeStarRepo) DeleteByCatalog(ctx context.Context, tx *gorm.DB, catalog string) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var deleted int64
	for id, rec := range r.store.records {
		if rec.SourceCatalog == catalog {
			delete(r.store.records, id)
			deleted++
		}
	}
	return deleted, nil
}

func (r *fakeStarRepo) CountAll(ctx context.Context, tx *gorm.DB) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return int64(len(r.store.records)), nil
}

type fakeGroupRepo struct{ store *fakeStore }

func (r *fakeGroupRepo) UpsertLive(ctx context.Context, tx *gorm.DB, groups []*types.FusionGroup) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if r.store.failPersist {
		return errors.New("connection reset")
	}
	for _, g := range groups {
		if existing, ok := r.store.groups[g.ID]; ok {
			existing.CentroidRa = g.CentroidRa
			existing.CentroidDec = g.CentroidDec
			existing.MemberCount = g.MemberCount
			existing.CanonicalID = nil
			existing.LastComputedAt = g.LastComputedAt
			continue
		}
		cp := *g
		if cp.CreatedAt.IsZero() {
			cp.CreatedAt = time.Now().UTC()
		}
		r.store.groups[g.ID] = &cp
	}
	return nil
}

func (r *fakeGroupRepo) Retire(ctx context.Context, tx *gorm.DB, aliases map[uuid.UUID]uuid.UUID, now time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for retired, canonical := range aliases {
		if g, ok := r.store.groups[retired]; ok {
			c := canonical
			g.CanonicalID = &c
			g.MemberCount = 0
			g.LastComputedAt = now
		}
		// Keep aliases single-hop: tombstones pointing at the newly retired
		// id follow it to the canonical.
		for id, g := range r.store.groups {
			if id != retired && g.CanonicalID != nil && *g.CanonicalID == retired {
				c := canonical
				g.CanonicalID = &c
			}
		}
	}
	return nil
}

func (r *fakeGroupRepo) Delete(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, id := range ids {
		delete(r.store.groups, id)
	}
	return nil
}

func (r *fakeGroupRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.FusionGroup, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	g, ok := r.store.groups[id]
	if !ok {
		return nil, nil
	}
	cp := *g
	return &cp, nil
}

func (r *fakeGroupRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.FusionGroup, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	out := make([]*types.FusionGroup, 0, len(ids))
	for _, id := range ids {
		if g, ok := r.store.groups[id]; ok {
			cp := *g
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeGroupRepo) List(ctx context.Context, tx *gorm.DB, minSize, limit, offset int) ([]*types.FusionGroup, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if minSize < 1 {
		minSize = 1
	}
	var live []*types.FusionGroup
	for _, g := range r.store.groups {
		if g.CanonicalID == nil && g.MemberCount >= minSize {
			cp := *g
			live = append(live, &cp)
		}
	}
	sort.Slice(live, func(a, b int) bool {
		if live[a].MemberCount != live[b].MemberCount {
			return live[a].MemberCount > live[b].MemberCount
		}
		return live[a].ID.String() < live[b].ID.String()
	})
	if offset >= len(live) {
		return nil, nil
	}
	live = live[offset:]
	if limit > 0 && len(live) > limit {
		live = live[:limit]
	}
	return live, nil
}

func (r *fakeGroupRepo) LiveCreatedTimes(ctx context.Context, tx *gorm.DB) (map[uuid.UUID]time.Time, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	out := make(map[uuid.UUID]time.Time)
	for id, g := range r.store.groups {
		if g.CanonicalID == nil {
			out[id] = g.CreatedAt
		}
	}
	return out, nil
}

func (r *fakeGroupRepo) Stats(ctx context.Context, tx *gorm.DB, totalRecords int64) (*types.FusionStats, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	stats := &types.FusionStats{TotalStars: totalRecords}
	for _, g := range r.store.groups {
		if g.CanonicalID != nil {
			continue
		}
		stats.UniqueFusionGroups++
		if g.MemberCount > 1 {
			stats.StarsInFusionGroup += int64(g.MemberCount)
		} else if g.MemberCount == 1 {
			stats.IsolatedStars++
		}
	}
	return stats, nil
}

type fakeRunRepo struct{ store *fakeStore }

func (r *fakeRunRepo) Begin(ctx context.Context, radiusArcsec float64) (*types.CrossMatchRun, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, run := range r.store.runs {
		if run.Status == types.RunStatusRunning {
			return nil, repos.ErrRunActive
		}
	}
	run := &types.CrossMatchRun{
		ID:           uuid.New(),
		RadiusArcsec: radiusArcsec,
		Status:       types.RunStatusRunning,
		StartedAt:    time.Now().UTC(),
	}
	r.store.runs[run.ID] = run
	return run, nil
}

func (r *fakeRunRepo) Complete(ctx context.Context, tx *gorm.DB, run *types.CrossMatchRun) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if r.store.failPersist {
		return errors.New("connection reset")
	}
	stored, ok := r.store.runs[run.ID]
	if !ok || stored.Status != types.RunStatusRunning {
		return errors.New("run not running")
	}
	now := time.Now().UTC()
	run.Status = types.RunStatusCompleted
	run.CompletedAt = &now
	*stored = *run
	return nil
}

func (r *fakeRunRepo) MarkFailed(ctx context.Context, id uuid.UUID, runErr error) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if run, ok := r.store.runs[id]; ok && run.Status == types.RunStatusRunning {
		now := time.Now().UTC()
		run.Status = types.RunStatusFailed
		if runErr != nil {
			run.Error = runErr.Error()
		}
		run.CompletedAt = &now
	}
	return nil
}

func (r *fakeRunRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.CrossMatchRun, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	run, ok := r.store.runs[id]
	if !ok {
		return nil, nil
	}
	cp := *run
	return &cp, nil
}

func (r *fakeRunRepo) ListRecent(ctx context.Context, tx *gorm.DB, limit int) ([]*types.CrossMatchRun, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []*types.CrossMatchRun
	for _, run := range r.store.runs {
		cp := *run
		out = append(out, &cp)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].StartedAt.After(out[b].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func testLogger() *logger.Logger {
	log, err := logger.New("development")
	if err != nil {
		panic(err)
	}
	return log
}

func newTestCrossMatch(store *fakeStore) CrossMatchService {
	return NewCrossMatchService(
		nil,
		testLogger(),
		EngineConfig{},
		&fakeStarRepo{store: store},
		&fakeGroupRepo{store: store},
		&fakeRunRepo{store: store},
		nil,
	)
}

func newTestQuery(store *fakeStore) FusionQueryService {
	return NewFusionQueryService(
		testLogger(),
		EngineConfig{},
		&fakeStarRepo{store: store},
		&fakeGroupRepo{store: store},
		&fakeRunRepo{store: store},
		nil,
	)
}
