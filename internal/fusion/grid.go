package fusion

import (
	"bytes"
	"context"
	"math"
	"sort"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Record is the slim view of a star record the engine matches on.
type Record struct {
	ID      uuid.UUID
	Coord   Coord
	Catalog string
}

// CandidatePair is an unordered cross-catalog pair within the match radius.
// A is always the byte-wise lower id so each pair has one canonical form.
type CandidatePair struct {
	A         uuid.UUID
	B         uuid.UUID
	SepArcsec float64
}

// ScanResult carries the candidate pairs plus per-record accounting for one
// scan of the active record set.
type ScanResult struct {
	Pairs   []CandidatePair
	Scanned int
	Skipped int
}

type cellKey struct {
	ix int
	iy int
}

func lessKey(a, b cellKey) bool {
	if a.iy != b.iy {
		return a.iy < b.iy
	}
	return a.ix < b.ix
}

// cellIndex buckets records into a sky grid whose cells are at least one
// match radius wide, so every within-radius pair sits in the same or an
// adjacent cell. Near the poles RA cells shrink on the sphere, so the RA
// neighbor span widens by 1/cos(dec), capped at the full ring.
type cellIndex struct {
	radiusDeg  float64
	raCellDeg  float64
	decRowDeg  float64
	raCells    int
	decRows    int
	cells      map[cellKey][]int
	rowCells   map[int][]cellKey
	records    []Record
}

func newCellIndex(records []Record, radiusArcsec float64) (*cellIndex, int) {
	radiusDeg := radiusArcsec / arcsecPerDeg
	cellDeg := radiusDeg
	if cellDeg < 1e-4 {
		cellDeg = 1e-4
	}
	raCells := int(360 / cellDeg)
	if raCells < 1 {
		raCells = 1
	}
	decRows := int(180 / cellDeg)
	if decRows < 1 {
		decRows = 1
	}
	idx := &cellIndex{
		radiusDeg: radiusDeg,
		raCellDeg: 360 / float64(raCells),
		decRowDeg: 180 / float64(decRows),
		raCells:   raCells,
		decRows:   decRows,
		cells:     make(map[cellKey][]int),
		rowCells:  make(map[int][]cellKey),
		records:   records,
	}
	skipped := 0
	for i, rec := range records {
		if !ValidCoord(rec.Coord.RaDeg, rec.Coord.DecDeg) {
			skipped++
			continue
		}
		k := idx.keyFor(rec.Coord)
		if _, ok := idx.cells[k]; !ok {
			idx.rowCells[k.iy] = append(idx.rowCells[k.iy], k)
		}
		idx.cells[k] = append(idx.cells[k], i)
	}
	for iy := range idx.rowCells {
		row := idx.rowCells[iy]
		sort.Slice(row, func(a, b int) bool { return row[a].ix < row[b].ix })
	}
	return idx, skipped
}

func (x *cellIndex) keyFor(c Coord) cellKey {
	ix := int(c.RaDeg / x.raCellDeg)
	if ix >= x.raCells {
		ix = x.raCells - 1
	}
	iy := int((c.DecDeg + 90) / x.decRowDeg)
	if iy >= x.decRows {
		iy = x.decRows - 1
	}
	return cellKey{ix: ix, iy: iy}
}

// raSpan returns how many RA cells to each side of a cell in row iy can hold
// a record within the match radius, and whether the whole ring must be
// considered (rows touching a pole).
func (x *cellIndex) raSpan(iy int) (int, bool) {
	lo := -90 + float64(iy)*x.decRowDeg
	hi := lo + x.decRowDeg
	edge := math.Max(math.Abs(lo), math.Abs(hi))
	if edge >= 89.999 {
		return 0, true
	}
	cosEdge := math.Cos(edge * degToRad)
	span := int(math.Ceil(x.radiusDeg / (cosEdge * x.raCellDeg)))
	if span < 1 {
		span = 1
	}
	if 2*span+1 >= x.raCells {
		return 0, true
	}
	return span, false
}

// neighborKeys returns the occupied cells adjacent to k that should be
// paired against k, restricted to keys strictly greater than k so every
// unordered cell pair is visited exactly once.
func (x *cellIndex) neighborKeys(k cellKey) []cellKey {
	out := make([]cellKey, 0, 8)
	for diy := -1; diy <= 1; diy++ {
		iy := k.iy + diy
		if iy < 0 || iy >= x.decRows {
			continue
		}
		span, fullRing := x.raSpan(k.iy)
		otherSpan, otherFull := x.raSpan(iy)
		if otherSpan > span {
			span = otherSpan
		}
		fullRing = fullRing || otherFull
		if fullRing {
			for _, nk := range x.rowCells[iy] {
				if lessKey(k, nk) {
					out = append(out, nk)
				}
			}
			continue
		}
		for dix := -span; dix <= span; dix++ {
			ix := ((k.ix+dix)%x.raCells + x.raCells) % x.raCells
			nk := cellKey{ix: ix, iy: iy}
			if !lessKey(k, nk) {
				continue
			}
			if _, ok := x.cells[nk]; ok {
				out = append(out, nk)
			}
		}
	}
	return out
}

func (x *cellIndex) scanCell(k cellKey, radiusArcsec float64) []CandidatePair {
	members := x.cells[k]
	pairs := make([]CandidatePair, 0)
	for i := 0; i < len(members); i++ {
		for j := i + 1; j < len(members); j++ {
			if p, ok := x.tryPair(members[i], members[j], radiusArcsec); ok {
				pairs = append(pairs, p)
			}
		}
	}
	for _, nk := range x.neighborKeys(k) {
		for _, a := range members {
			for _, b := range x.cells[nk] {
				if p, ok := x.tryPair(a, b, radiusArcsec); ok {
					pairs = append(pairs, p)
				}
			}
		}
	}
	return pairs
}

func (x *cellIndex) tryPair(i, j int, radiusArcsec float64) (CandidatePair, bool) {
	a := x.records[i]
	b := x.records[j]
	if a.Catalog == b.Catalog {
		return CandidatePair{}, false
	}
	sep := AngularSepArcsec(a.Coord, b.Coord)
	if sep > radiusArcsec {
		return CandidatePair{}, false
	}
	if bytes.Compare(a.ID[:], b.ID[:]) > 0 {
		a, b = b, a
	}
	return CandidatePair{A: a.ID, B: b.ID, SepArcsec: sep}, true
}

// FindCandidates enumerates every cross-catalog pair within radiusArcsec.
// Cells are scanned in parallel with at most workers goroutines; the merged
// pair list is deterministic for a given record slice. Records with
// malformed coordinates are excluded and counted, not fatal.
func FindCandidates(ctx context.Context, records []Record, radiusArcsec float64, workers int) (*ScanResult, error) {
	idx, skipped := newCellIndex(records, radiusArcsec)

	keys := make([]cellKey, 0, len(idx.cells))
	for k := range idx.cells {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(a, b int) bool { return lessKey(keys[a], keys[b]) })

	if workers < 1 {
		workers = 1
	}
	perCell := make([][]CandidatePair, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, k := range keys {
		i, k := i, k
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			perCell[i] = idx.scanCell(k, radiusArcsec)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &ScanResult{
		Scanned: len(records),
		Skipped: skipped,
	}
	for _, pairs := range perCell {
		res.Pairs = append(res.Pairs, pairs...)
	}
	return res, nil
}
