// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package rabitq

import (
	"math"
	"sort"

	"github.com/usamoi/VectorChord-sub003/config"
	"github.com/usamoi/VectorChord-sub003/distance"
	"github.com/usamoi/VectorChord-sub003/host"
	"github.com/usamoi/VectorChord-sub003/page"
	"github.com/usamoi/VectorChord-sub003/vector"
	"github.com/usamoi/VectorChord-sub003/vxerr"
)

// leafCandidate is one level-0 tuple surfaced during the level-0
// scan, carrying enough to rerank without re-reading its page.
type leafCandidate struct {
	payload uint64
	full    []float32 // non-nil iff rerank_in_table
	lower   float32
}

// Search runs default_search(query, k, probes, epsilon) (§4.F
// Search): narrows to probes[level] centroids per internal level
// via exact distance, fast-scans every level-0 chain reachable
// from the surviving level-1 centroids, admits candidates whose
// lower-bound estimate is within the current k-th best threshold,
// and reranks the admitted set against the ground-truth distance.
func (ix *Index) Search(query []float32, k int, q config.Query) ([]uint64, error) {
	if len(query) != ix.meta.Dims {
		return nil, vxerr.Validationf("search: query has %d dims, index expects %d", len(query), ix.meta.Dims)
	}
	if err := q.Validate(ix.meta.HeightOfRoot); err != nil {
		return nil, err
	}
	if k < 1 {
		return nil, vxerr.Validationf("search: k must be >= 1")
	}

	lut := vector.BuildLUT(query)

	cur := []scannedCentroid{{Centroid: Centroid{First: ix.meta.RootFirst}}}
	residual := query
	for level := 0; level < ix.meta.HeightOfRoot; level++ {
		var expanded []scannedCentroid
		for _, parent := range cur {
			children, err := scanCentroidChain(ix.bm, parent.First)
			if err != nil {
				return nil, err
			}
			expanded = append(expanded, children...)
		}
		probe := int(q.Probes[level])
		expanded = topByExactDistance(expanded, residual, ix.meta.DistanceKind, probe)
		if ix.meta.IsResidual && len(expanded) > 0 {
			residual = vector.Residual(residual, expanded[0].Vector)
		}
		cur = expanded
	}

	approxBound := int(math.Ceil(float64(k) / float64(nonZero(q.Epsilon))))
	if approxBound < k {
		approxBound = k
	}
	checker := distance.NewChecker[int](approxBound)
	var candidates []leafCandidate
	var scanned int
	for _, leafParent := range cur {
		leaves, err := scanLeafChain(ix.bm, leafParent.First)
		if err != nil {
			return nil, err
		}
		for _, lf := range leaves {
			if q.MaxScanTuples != nil && uint32(scanned) >= *q.MaxScanTuples {
				break
			}
			scanned++
			r := lut.FastScanRow(lf.Code.Bits)
			lower := vector.LowerBound(ix.meta.DistanceKind, lf.Code, lut, r, q.Epsilon)
			ls := distance.From(lower)
			if !checker.WouldEnter(ls) {
				continue
			}
			checker.Push(ls, len(candidates))
			candidates = append(candidates, leafCandidate{payload: lf.Payload, full: lf.Full, lower: lower})
		}
	}

	results := distance.NewResults[uint64](k)
	for _, c := range candidates {
		full := c.full
		if full == nil {
			v, ok := ix.payload.FetchVector(c.payload)
			if !ok {
				continue // consistency fault: row no longer live, skip (§7)
			}
			full = v
		}
		exact := vector.Exact(ix.meta.DistanceKind, query, full)
		results.Push(distance.From(exact), c.payload)
	}

	out := results.Drain()
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func nonZero(f float32) float32 {
	if f <= 0 {
		return 1
	}
	return f
}

// topByExactDistance returns the n candidates nearest to v under
// kind, exact (not lower-bound) distance -- internal-level
// centroid tuples hold full-precision vectors, so there is no
// fast-scan estimate to use here.
func topByExactDistance(cands []scannedCentroid, v []float32, kind vector.Distance, n int) []scannedCentroid {
	sort.Slice(cands, func(i, j int) bool {
		return vector.Exact(kind, v, cands[i].Vector) < vector.Exact(kind, v, cands[j].Vector)
	})
	if n < len(cands) {
		cands = cands[:n]
	}
	return cands
}

// scanLeafChain reads every live leaf tuple reachable from first.
func scanLeafChain(bm host.BufferManager, first host.PageID) ([]Leaf, error) {
	var out []Leaf
	cur := first
	for cur != host.NIL {
		pg, release, err := page.ReadPage(bm, cur)
		if err != nil {
			return nil, err
		}
		n := pg.NumSlots()
		next := pg.Next()
		for slot := 1; slot <= n; slot++ {
			data, ok := pg.Get(slot)
			if !ok {
				continue
			}
			out = append(out, decodeLeaf(data))
		}
		release()
		cur = next
	}
	return out, nil
}
