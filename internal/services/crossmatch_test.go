package services

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/astrofuse/astrofuse-backend/internal/types"
)

func TestRunMatchesWithinRadius(t *testing.T) {
	store := newFakeStore()
	a := store.addRecord(10.0000, 20.0000, "gaia")
	b := store.addRecord(10.0003, 20.0002, "sdss")

	run, err := newTestCrossMatch(store).Run(context.Background(), 2.0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if run.Status != types.RunStatusCompleted {
		t.Fatalf("status=%s, want completed", run.Status)
	}
	if run.RecordsScanned != 2 || run.RecordsSkipped != 0 {
		t.Fatalf("scanned/skipped = %d/%d, want 2/0", run.RecordsScanned, run.RecordsSkipped)
	}
	if run.GroupsCreated != 1 {
		t.Fatalf("groups_created=%d, want 1", run.GroupsCreated)
	}
	ga := store.groupOf(a.ID)
	if ga == uuid.Nil || ga != store.groupOf(b.ID) {
		t.Fatalf("records must share one fusion group, got %s and %s", ga, store.groupOf(b.ID))
	}
	group := store.groups[ga]
	if group == nil || group.MemberCount != 2 {
		t.Fatalf("expected a 2-member group, got %+v", group)
	}
}

func TestRunOutsideRadiusStaysSingleton(t *testing.T) {
	store := newFakeStore()
	a := store.addRecord(10.0, 20.0, "gaia")
	b := store.addRecord(10.0, 20.0+5.0/3600.0, "sdss")

	run, err := newTestCrossMatch(store).Run(context.Background(), 2.0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if run.GroupsCreated != 2 {
		t.Fatalf("groups_created=%d, want 2 singletons", run.GroupsCreated)
	}
	if store.groupOf(a.ID) == store.groupOf(b.ID) {
		t.Fatalf("records 5 arcsec apart must not share a group at radius 2")
	}
}

func TestRunPartitionInvariant(t *testing.T) {
	store := newFakeStore()
	for i := 0; i < 30; i++ {
		catalog := "gaia"
		if i%2 == 1 {
			catalog = "sdss"
		}
		store.addRecord(10.0+float64(i%6)*0.0003, 20.0+float64(i/6)*0.0003, catalog)
	}

	if _, err := newTestCrossMatch(store).Run(context.Background(), 2.0); err != nil {
		t.Fatalf("Run: %v", err)
	}

	seen := make(map[uuid.UUID]bool)
	for id := range store.records {
		gid := store.groupOf(id)
		if gid == uuid.Nil {
			t.Fatalf("record %s left without a fusion group", id)
		}
		seen[id] = true
	}
	var total int
	for _, g := range store.groups {
		if g.CanonicalID == nil {
			total += g.MemberCount
		}
	}
	if total != len(seen) {
		t.Fatalf("live group member counts sum to %d, want %d", total, len(seen))
	}
}

func TestRunIdempotence(t *testing.T) {
	store := newFakeStore()
	a := store.addRecord(10.0000, 20.0000, "gaia")
	b := store.addRecord(10.0003, 20.0002, "sdss")
	c := store.addRecord(200.0, -40.0, "gaia")
	svc := newTestCrossMatch(store)

	if _, err := svc.Run(context.Background(), 2.0); err != nil {
		t.Fatalf("first run: %v", err)
	}
	first := map[uuid.UUID]uuid.UUID{
		a.ID: store.groupOf(a.ID),
		b.ID: store.groupOf(b.ID),
		c.ID: store.groupOf(c.ID),
	}
	assignsAfterFirst := store.assignCalls

	second, err := svc.Run(context.Background(), 2.0)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.GroupsCreated != 0 || second.GroupsMerged != 0 || second.GroupsSplit != 0 {
		t.Fatalf("re-run counters created/merged/split = %d/%d/%d, want 0/0/0",
			second.GroupsCreated, second.GroupsMerged, second.GroupsSplit)
	}
	for id, gid := range first {
		if store.groupOf(id) != gid {
			t.Fatalf("record %s changed group across identical runs", id)
		}
	}
	if store.assignCalls != assignsAfterFirst {
		t.Fatalf("no-op re-run rewrote %d star rows", store.assignCalls-assignsAfterFirst)
	}
}

func TestRunMergeRetainsOlderID(t *testing.T) {
	store := newFakeStore()
	a := store.addRecord(10.0000, 20.0, "gaia")
	b := store.addRecord(10.0001, 20.0, "sdss")
	c := store.addRecord(10.0003, 20.0, "gaia")
	d := store.addRecord(10.0004, 20.0, "sdss")
	g1 := uuid.New()
	g2 := uuid.New()
	store.addGroup(g1, time.Now().Add(-2*time.Hour).UTC(), a, b)
	store.addGroup(g2, time.Now().Add(-1*time.Hour).UTC(), c, d)

	// E bridges B and C; the whole chain collapses into one group.
	e := store.addRecord(10.0002, 20.0, "panstarrs")

	run, err := newTestCrossMatch(store).Run(context.Background(), 2.0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if run.GroupsMerged != 1 {
		t.Fatalf("groups_merged=%d, want 1", run.GroupsMerged)
	}
	for _, rec := range []*types.StarRecord{a, b, c, d, e} {
		if got := store.groupOf(rec.ID); got != g1 {
			t.Fatalf("record %s in group %s, want older id %s", rec.ID, got, g1)
		}
	}
	retired := store.groups[g2]
	if retired == nil || retired.CanonicalID == nil || *retired.CanonicalID != g1 {
		t.Fatalf("g2 must be tombstoned to g1, got %+v", retired)
	}
	live := store.groups[g1]
	if live.MemberCount != 5 {
		t.Fatalf("merged group member_count=%d, want 5", live.MemberCount)
	}
}

func TestRunAliasStaysSingleHopAcrossMerges(t *testing.T) {
	store := newFakeStore()
	a1 := store.addRecord(10.0000, 20.0, "gaia")
	a2 := store.addRecord(10.0001, 20.0, "sdss")
	b1 := store.addRecord(10.0010, 20.0, "gaia")
	b2 := store.addRecord(10.0011, 20.0, "sdss")
	c1 := store.addRecord(10.0020, 20.0, "gaia")
	c2 := store.addRecord(10.0021, 20.0, "sdss")
	g0 := uuid.New()
	g1 := uuid.New()
	g2 := uuid.New()
	store.addGroup(g0, time.Now().Add(-3*time.Hour).UTC(), c1, c2)
	store.addGroup(g1, time.Now().Add(-2*time.Hour).UTC(), a1, a2)
	store.addGroup(g2, time.Now().Add(-1*time.Hour).UTC(), b1, b2)
	svc := newTestCrossMatch(store)

	// First run: a bridge collapses g1 and g2; g2 becomes an alias of g1.
	store.addRecord(10.00055, 20.0, "panstarrs")
	if _, err := svc.Run(context.Background(), 2.0); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if tomb := store.groups[g2]; tomb == nil || tomb.CanonicalID == nil || *tomb.CanonicalID != g1 {
		t.Fatalf("after first run g2 must alias g1, got %+v", store.groups[g2])
	}

	// Second run: another bridge merges the survivor into the older g0. The
	// g2 alias must follow, not stop at the g1 tombstone.
	store.addRecord(10.00155, 20.0, "twomass")
	run, err := svc.Run(context.Background(), 2.0)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if run.GroupsMerged != 1 {
		t.Fatalf("groups_merged=%d, want 1", run.GroupsMerged)
	}
	if tomb := store.groups[g1]; tomb.CanonicalID == nil || *tomb.CanonicalID != g0 {
		t.Fatalf("g1 must alias g0, got %+v", tomb)
	}
	if tomb := store.groups[g2]; tomb.CanonicalID == nil || *tomb.CanonicalID != g0 {
		t.Fatalf("g2 alias must be repointed to g0, got %+v", tomb)
	}

	group, members, err := newTestQuery(store).GetGroup(context.Background(), g2)
	if err != nil {
		t.Fatalf("GetGroup via alias: %v", err)
	}
	if group.ID != g0 || group.Retired() {
		t.Fatalf("alias lookup resolved to %s (retired=%v), want live %s", group.ID, group.Retired(), g0)
	}
	if len(members) != 8 {
		t.Fatalf("resolved group has %d members, want 8", len(members))
	}
}

func TestRunSplitKeepsIDOnLargestFragment(t *testing.T) {
	store := newFakeStore()
	a := store.addRecord(10.0000, 20.0, "gaia")
	b := store.addRecord(10.0001, 20.0, "sdss")
	c := store.addRecord(10.0002, 20.0, "panstarrs")
	g1 := uuid.New()
	store.addGroup(g1, time.Now().Add(-time.Hour).UTC(), a, b, c)

	// C's corrected position moved it far out of candidate range.
	store.mu.Lock()
	store.records[c.ID].RaDeg = 10.01
	store.mu.Unlock()

	run, err := newTestCrossMatch(store).Run(context.Background(), 2.0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if run.GroupsSplit != 1 {
		t.Fatalf("groups_split=%d, want 1", run.GroupsSplit)
	}
	if store.groupOf(a.ID) != g1 || store.groupOf(b.ID) != g1 {
		t.Fatalf("largest fragment must keep %s", g1)
	}
	if got := store.groupOf(c.ID); got == g1 || got == uuid.Nil {
		t.Fatalf("split fragment group=%s, want a fresh id", got)
	}
}

func TestRunInvalidRadius(t *testing.T) {
	store := newFakeStore()
	svc := newTestCrossMatch(store)
	for _, radius := range []float64{0, -1, 61, math.NaN()} {
		if _, err := svc.Run(context.Background(), radius); !errors.Is(err, ErrInvalidRadius) {
			t.Fatalf("radius %v: err=%v, want ErrInvalidRadius", radius, err)
		}
	}
	if len(store.runs) != 0 {
		t.Fatalf("invalid radius must not create run records, found %d", len(store.runs))
	}
}

func TestRunConcurrentConflict(t *testing.T) {
	store := newFakeStore()
	active := &types.CrossMatchRun{
		ID:        uuid.New(),
		Status:    types.RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	store.runs[active.ID] = active

	if _, err := newTestCrossMatch(store).Run(context.Background(), 2.0); !errors.Is(err, ErrConcurrentRun) {
		t.Fatalf("err=%v, want ErrConcurrentRun", err)
	}
}

func TestRunSkippedRecordsCounted(t *testing.T) {
	store := newFakeStore()
	store.addRecord(10.0, 20.0, "gaia")
	bad := store.addRecord(10.0, 20.0, "sdss")
	store.mu.Lock()
	store.records[bad.ID].DecDeg = math.NaN()
	store.mu.Unlock()

	run, err := newTestCrossMatch(store).Run(context.Background(), 2.0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if run.RecordsSkipped != 1 {
		t.Fatalf("records_skipped=%d, want 1", run.RecordsSkipped)
	}
	if store.groupOf(bad.ID) == uuid.Nil {
		t.Fatalf("skipped record must still land in a singleton group")
	}
}

func TestRunStoreFailureIsAtomic(t *testing.T) {
	store := newFakeStore()
	a := store.addRecord(10.0000, 20.0, "gaia")
	b := store.addRecord(10.0001, 20.0, "sdss")
	g1 := uuid.New()
	store.addGroup(g1, time.Now().Add(-time.Hour).UTC(), a, b)

	store.failListStars = true
	_, err := newTestCrossMatch(store).Run(context.Background(), 2.0)
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("err=%v, want ErrStoreUnavailable", err)
	}

	if store.groupOf(a.ID) != g1 || store.groupOf(b.ID) != g1 {
		t.Fatalf("failed run must leave prior assignments untouched")
	}
	var failed int
	for _, run := range store.runs {
		if run.Status == types.RunStatusFailed && run.Error != "" {
			failed++
		}
	}
	if failed != 1 {
		t.Fatalf("expected exactly one failed run record, got %d", failed)
	}
}

func TestRunOrderIndependence(t *testing.T) {
	positions := []struct {
		ra, dec float64
		catalog string
	}{
		{10.0000, 20.0000, "gaia"},
		{10.0003, 20.0002, "sdss"},
		{10.0006, 20.0000, "panstarrs"},
		{200.0, -40.0, "gaia"},
		{200.0001, -40.0, "sdss"},
		{355.5, 12.0, "gaia"},
	}

	buildAndRun := func(order []int) [][]int {
		store := newFakeStore()
		for _, i := range order {
			p := positions[i]
			store.addRecord(p.ra, p.dec, p.catalog)
		}
		if _, err := newTestCrossMatch(store).Run(context.Background(), 2.0); err != nil {
			t.Fatalf("Run: %v", err)
		}
		// Compare partitions by position index, not record id, since ids
		// differ between the two stores.
		byGroup := make(map[uuid.UUID][]int)
		for id, rec := range store.records {
			gid := store.groupOf(id)
			for i, p := range positions {
				if p.ra == rec.RaDeg && p.dec == rec.DecDeg && p.catalog == rec.SourceCatalog {
					byGroup[gid] = append(byGroup[gid], i)
				}
			}
		}
		parts := make([][]int, 0, len(byGroup))
		for _, members := range byGroup {
			sortInts(members)
			parts = append(parts, members)
		}
		sortParts(parts)
		return parts
	}

	forward := buildAndRun([]int{0, 1, 2, 3, 4, 5})
	shuffled := buildAndRun([]int{5, 2, 4, 0, 3, 1})
	if !reflect.DeepEqual(forward, shuffled) {
		t.Fatalf("partition depends on input order:\nforward:  %v\nshuffled: %v", forward, shuffled)
	}
}

func sortInts(xs []int) {
	for i := 1; i < len(xs); i++ {
		for j := i; j > 0 && xs[j] < xs[j-1]; j-- {
			xs[j], xs[j-1] = xs[j-1], xs[j]
		}
	}
}

func sortParts(parts [][]int) {
	for i := 1; i < len(parts); i++ {
		for j := i; j > 0 && lessIntSlice(parts[j], parts[j-1]); j-- {
			parts[j], parts[j-1] = parts[j-1], parts[j]
		}
	}
}

func lessIntSlice(a, b []int) bool {
	if len(a) == 0 || len(b) == 0 {
		return len(a) < len(b)
	}
	return a[0] < b[0]
}
