package fusion

import (
	"bytes"
	"sort"
	"time"

	"github.com/google/uuid"
)

// PriorState is the persisted grouping the planner reconciles against:
// each active record's current group id plus creation times for those groups.
type PriorState struct {
	RecordGroup  map[uuid.UUID]uuid.UUID
	GroupCreated map[uuid.UUID]time.Time
}

// PlannedGroup is one live group after the run: reused or freshly allocated.
type PlannedGroup struct {
	ID          uuid.UUID
	Members     []uuid.UUID
	CentroidRa  float64
	CentroidDec float64
	MemberCount int
	New         bool
}

// Plan is the full outcome of reconciling computed components with prior
// group identities. Applying a Plan is the only way group ids change.
type Plan struct {
	Assignments map[uuid.UUID]uuid.UUID
	Groups      []PlannedGroup
	Retired     map[uuid.UUID]uuid.UUID
	Orphaned    []uuid.UUID
	Created     int
	Merged      int
	Split       int
	Large       int
}

// BuildPlan maps connected components to stable group ids.
//
// Identity continuity is asymmetric on purpose: when components merge the
// oldest prior id survives, when a prior group fractures the fragment holding
// the most of its prior members keeps the id. Both rules keep ids as stable
// as possible for downstream consumers across incremental re-runs.
func BuildPlan(components [][]Record, prior PriorState, largeThreshold int) *Plan {
	plan := &Plan{
		Assignments: make(map[uuid.UUID]uuid.UUID),
		Retired:     make(map[uuid.UUID]uuid.UUID),
	}

	compOf := make(map[uuid.UUID]int)
	for ci, comp := range components {
		for _, rec := range comp {
			compOf[rec.ID] = ci
		}
	}

	// Fragments of each prior group among the active record set.
	fragments := make(map[uuid.UUID]map[int]int)
	for recID, gid := range prior.RecordGroup {
		ci, active := compOf[recID]
		if !active {
			continue
		}
		if fragments[gid] == nil {
			fragments[gid] = make(map[int]int)
		}
		fragments[gid][ci]++
	}

	// Each prior id is won by exactly one component: the fragment with the
	// largest overlap, ties broken toward the bigger component and then the
	// lowest member id so results do not depend on map order.
	wonBy := make(map[int][]uuid.UUID)
	priorIDs := make([]uuid.UUID, 0, len(fragments))
	for gid := range fragments {
		priorIDs = append(priorIDs, gid)
	}
	sort.Slice(priorIDs, func(a, b int) bool {
		return bytes.Compare(priorIDs[a][:], priorIDs[b][:]) < 0
	})
	for _, gid := range priorIDs {
		frag := fragments[gid]
		winner := -1
		for ci, overlap := range frag {
			if winner < 0 || betterWinner(components, ci, overlap, winner, frag[winner]) {
				winner = ci
			}
		}
		if len(frag) > 1 {
			plan.Split++
		}
		wonBy[winner] = append(wonBy[winner], gid)
	}

	for ci, comp := range components {
		memberIDs := make([]uuid.UUID, 0, len(comp))
		coords := make([]Coord, 0, len(comp))
		for _, rec := range comp {
			memberIDs = append(memberIDs, rec.ID)
			if ValidCoord(rec.Coord.RaDeg, rec.Coord.DecDeg) {
				coords = append(coords, rec.Coord)
			}
		}

		won := wonBy[ci]
		var groupID uuid.UUID
		isNew := false
		switch {
		case len(won) == 0:
			groupID = uuid.New()
			isNew = true
			plan.Created++
		case len(won) == 1:
			groupID = won[0]
		default:
			groupID = canonicalOf(won, prior.GroupCreated)
			for _, gid := range won {
				if gid == groupID {
					continue
				}
				plan.Retired[gid] = groupID
				plan.Merged++
			}
		}

		if largeThreshold > 0 && len(memberIDs) > largeThreshold {
			plan.Large++
		}

		centroid := Centroid(coords)
		plan.Groups = append(plan.Groups, PlannedGroup{
			ID:          groupID,
			Members:     memberIDs,
			CentroidRa:  centroid.RaDeg,
			CentroidDec: centroid.DecDeg,
			MemberCount: len(memberIDs),
			New:         isNew,
		})
		for _, id := range memberIDs {
			plan.Assignments[id] = groupID
		}
	}

	// Prior groups with no active members left and no alias pointing at a
	// survivor have nothing to resolve to; they are removed outright.
	for gid := range prior.GroupCreated {
		if _, hasFragment := fragments[gid]; hasFragment {
			continue
		}
		if _, retired := plan.Retired[gid]; retired {
			continue
		}
		plan.Orphaned = append(plan.Orphaned, gid)
	}
	sort.Slice(plan.Orphaned, func(a, b int) bool {
		return bytes.Compare(plan.Orphaned[a][:], plan.Orphaned[b][:]) < 0
	})

	return plan
}

func betterWinner(components [][]Record, ci, overlap, cur, curOverlap int) bool {
	if overlap != curOverlap {
		return overlap > curOverlap
	}
	if len(components[ci]) != len(components[cur]) {
		return len(components[ci]) > len(components[cur])
	}
	ciMin := minMemberID(components[ci])
	curMin := minMemberID(components[cur])
	return bytes.Compare(ciMin[:], curMin[:]) < 0
}

func minMemberID(comp []Record) uuid.UUID {
	min := comp[0].ID
	for _, rec := range comp[1:] {
		if bytes.Compare(rec.ID[:], min[:]) < 0 {
			min = rec.ID
		}
	}
	return min
}

// canonicalOf picks the merge survivor: oldest creation time, uuid bytes as
// the tie break.
func canonicalOf(ids []uuid.UUID, created map[uuid.UUID]time.Time) uuid.UUID {
	best := ids[0]
	for _, id := range ids[1:] {
		bt, bok := created[best]
		it, iok := created[id]
		switch {
		case bok && iok:
			if it.Before(bt) || (it.Equal(bt) && bytes.Compare(id[:], best[:]) < 0) {
				best = id
			}
		case iok && !bok:
			best = id
		case !iok && !bok:
			if bytes.Compare(id[:], best[:]) < 0 {
				best = id
			}
		}
	}
	return best
}
