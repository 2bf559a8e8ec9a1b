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

package vamana

import (
	"sort"

	"github.com/usamoi/VectorChord-sub003/host"
	"github.com/usamoi/VectorChord-sub003/vector"
)

// ranked is one candidate neighbor considered during
// robust_prune: its pointer, its full-precision vector (needed to
// evaluate the alpha test against other candidates), and its
// distance to the vertex being pruned for (u).
type ranked struct {
	ptr  host.Pointer
	vec  []float32
	dist float32
}

func comparePointer(a, b host.Pointer) int {
	if a.Page != b.Page {
		if a.Page < b.Page {
			return -1
		}
		return 1
	}
	if a.Slot != b.Slot {
		if a.Slot < b.Slot {
			return -1
		}
		return 1
	}
	return 0
}

// robustPrune picks up to m outgoing neighbors for u from
// candidates (§4.G step 3): sort by distance to u ascending
// (ties broken by pointer for determinism, §4.G "Robust prune
// contract"); greedily take the nearest w, drop any remaining x
// with d(u,x) >= alpha*d(w,x), repeat; if fewer than m survive,
// backfill from the pruned-but-unused remainder in distance
// order.
func robustPrune(dist vector.Distance, u []float32, candidates []ranked, m int, alpha float32) []ranked {
	cands := append([]ranked(nil), candidates...)
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].dist != cands[j].dist {
			return cands[i].dist < cands[j].dist
		}
		return comparePointer(cands[i].ptr, cands[j].ptr) < 0
	})

	var chosen []ranked
	var pruned []ranked
	remaining := cands
	for len(remaining) > 0 && len(chosen) < m {
		w := remaining[0]
		remaining = remaining[1:]
		chosen = append(chosen, w)

		var kept []ranked
		for _, x := range remaining {
			dwx := vector.Exact(dist, w.vec, x.vec)
			if x.dist >= alpha*dwx {
				pruned = append(pruned, x)
				continue
			}
			kept = append(kept, x)
		}
		remaining = kept
	}
	if len(chosen) < m && len(pruned) > 0 {
		sort.Slice(pruned, func(i, j int) bool {
			if pruned[i].dist != pruned[j].dist {
				return pruned[i].dist < pruned[j].dist
			}
			return comparePointer(pruned[i].ptr, pruned[j].ptr) < 0
		})
		need := m - len(chosen)
		if need > len(pruned) {
			need = len(pruned)
		}
		chosen = append(chosen, pruned[:need]...)
	}
	return chosen
}
