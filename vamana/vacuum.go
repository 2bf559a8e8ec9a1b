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
	"github.com/usamoi/VectorChord-sub003/host"
	"github.com/usamoi/VectorChord-sub003/page"
	"github.com/usamoi/VectorChord-sub003/vxlog"
)

// Bulkdelete tombstones every live vertex for which
// callback(payload) reports true (§4.G "Vacuum is tombstone-based:
// bulkdelete only flips has_payload"). Unlike rabitq's leaf vacuum,
// a vamana vertex cannot simply be Reconstruct'd away the moment
// its payload dies: other vertices' neighbor lists may still point
// at it, and a beam search walking through it needs its vector and
// edges intact to keep the graph connected. Bulkdelete only clears
// the has_payload byte in place; Maintain later repairs the graph
// around tombstones and reclaims their pages for good.
func (ix *Index) Bulkdelete(callback func(payload uint64) bool) error {
	var tombstoned int
	cur := ix.meta.VerticesFirst
	for cur != host.NIL {
		wr, err := page.WritePage(ix.bm, cur, false)
		if err != nil {
			return err
		}
		n := wr.Page.NumSlots()
		for slot := 1; slot <= n; slot++ {
			data, ok := wr.Page.GetMut(slot)
			if !ok {
				continue
			}
			v := decodeVertex(data, ix.meta.M)
			if !v.HasPayload || !callback(v.Payload) {
				continue
			}
			v.HasPayload = false
			copy(data, encodeVertex(v, ix.meta.M))
			tombstoned++
		}
		next := wr.Page.Next()
		wr.Guard.Release()
		cur = next
	}
	vxlog.Default().Infof("vamana: bulkdelete tombstoned %d vertices", tombstoned)
	return nil
}
