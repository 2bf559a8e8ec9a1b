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
	"github.com/google/uuid"

	"github.com/usamoi/VectorChord-sub003/config"
	"github.com/usamoi/VectorChord-sub003/host"
	"github.com/usamoi/VectorChord-sub003/page"
	"github.com/usamoi/VectorChord-sub003/vector"
	"github.com/usamoi/VectorChord-sub003/vxerr"
	"github.com/usamoi/VectorChord-sub003/vxlog"
)

// maxTrainingSamplesPerCell bounds the training-set size sampled
// for k-means fitting (§4.F build step 1: "Sample <=256 *
// product(cells) training vectors").
const maxTrainingSamplesPerCell = 256

// Row is one vector to be indexed, supplied to Build.
type Row struct {
	Payload uint64
	Vector  []float32
}

// clusterNode is an in-memory handle onto one centroid of one
// level of the tree being constructed. children is nil iff this
// node's child chain holds leaf tuples rather than further
// centroid tuples.
type clusterNode struct {
	vector     []float32
	childFirst host.PageID
	ownerPage  host.PageID
	ownerSlot  int
	children   []*clusterNode
}

// Build constructs a fresh index over rows (§4.F Build). bm must
// be empty (page 0 does not yet exist); Build extends every page
// it needs, including page 0 for the metadata tuple, and is the
// only operation that writes page 0 slot 1.
func Build(bm host.BufferManager, cfg config.Build, rows []Row, pool host.ThreadPool) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Height() < 1 {
		return vxerr.Validationf("ivf height must be >= 1")
	}
	if pool == nil {
		pool = &noopPool{}
	}
	if bm.NumPages() != 0 {
		return vxerr.Corruptf("rabitq: build requires an empty relation, got %d existing pages", bm.NumPages())
	}

	// page 0 is reserved for the metadata tuple up front, even
	// though its contents are written last, since every other page
	// this build extends must land at id >= 1 (§3 "Metadata tuple
	// at page 0, slot 1").
	reservedMeta, reservedWR, err := page.ExtendPage(bm, nil, false)
	if err != nil {
		return err
	}
	reservedWR.Guard.Release()
	if reservedMeta != metaPage {
		return vxerr.Corruptf("rabitq: expected metadata page id %d, got %d", metaPage, reservedMeta)
	}

	rnd := vector.NewRand(buildSeed(cfg))
	samples := sampleTraining(rnd, rows, cfg)

	rootFirst, rootNodes, err := buildChain(bm, cfg, rnd, pool, samples, 0)
	if err != nil {
		return err
	}

	// route every data row through the in-memory tree, fanning the
	// (read-only) descent out across pool: it only touches rootNodes
	// and fitted centroids in memory, never bm, so concurrent workers
	// cannot race on page state. The actual leaf-chain splice below
	// stays strictly sequential, since it mutates an owner centroid's
	// `first` pointer read-then-write and is not safe for concurrent
	// callers sharing an owner (§4.F build step 4).
	routed := make([]routedRow, len(rows))
	for i := range rows {
		i, row := i, rows[i]
		pool.Go(func(cancel host.Cancel) error {
			if err := cancel.Err(); err != nil {
				return err
			}
			routed[i] = routeRow(cfg, rootNodes, row)
			return nil
		})
	}
	if err := pool.Wait(); err != nil {
		return err
	}
	for _, r := range routed {
		if err := spliceAppendLeaf(bm, r.owner, r.leaf); err != nil {
			return err
		}
	}

	// page 0 (metadata) was reserved first and is written last, only once
	// every page it references is durable (§5 "Metadata tuple is
	// written before any page referencing it via first /
	// centroids_first / freepages_first" -- read in reverse: every
	// page *it* references must itself already be written).
	freepagesFirst, err := allocFreepagesRoot(bm)
	if err != nil {
		return err
	}
	meta := Meta{
		BuildID:        uuid.New(),
		Dims:           cfg.Dims,
		VectorKind:     cfg.VectorKind,
		DistanceKind:   cfg.Distance,
		IsResidual:     cfg.ResidualQuantization,
		RerankInTable:  cfg.RerankInTable,
		HeightOfRoot:   cfg.Height(),
		RootFirst:      rootFirst,
		CentroidsFirst: rootFirst, // single root chain: centroids start at RootFirst
		FreepagesFirst: freepagesFirst,
		Cells:          cfg.Cells,
	}
	return writeMetaPage(bm, meta)
}

func buildSeed(cfg config.Build) uint64 {
	var seed uint64 = 0x1234_5678_9abc_def0
	seed ^= uint64(cfg.Dims) * 0x9E3779B97F4A7C15
	for _, c := range cfg.Cells {
		seed = seed*1099511628211 ^ uint64(c)
	}
	return seed
}

func sampleTraining(rnd *vector.Rand, rows []Row, cfg config.Build) [][]float32 {
	cap64 := maxTrainingSamplesPerCell
	for _, c := range cfg.Cells {
		cap64 *= int(c)
	}
	if len(rows) <= cap64 {
		out := make([][]float32, len(rows))
		for i, r := range rows {
			out[i] = r.Vector
		}
		return out
	}
	// reservoir sampling over rows using the deterministic build Rand.
	out := make([][]float32, cap64)
	for i := 0; i < cap64; i++ {
		out[i] = rows[i].Vector
	}
	for i := cap64; i < len(rows); i++ {
		j := rnd.Intn(i + 1)
		if j < cap64 {
			out[j] = rows[i].Vector
		}
	}
	return out
}

// buildChain fits cfg.Cells[level] centroids over samples,
// recursively building each centroid's child chain, and writes
// this level's chain of centroid tuples, returning its first page
// id and the in-memory nodes for routing.
func buildChain(bm host.BufferManager, cfg config.Build, rnd *vector.Rand, pool host.ThreadPool, samples [][]float32, level int) (host.PageID, []*clusterNode, error) {
	k := int(cfg.Cells[level])
	fitted := vector.KMeans(vector.KMeansConfig{
		K: k, Dims: cfg.Dims, MaxIters: 25, Rand: rnd, Dist: cfg.Distance,
	}, samples)

	groups := make([][][]float32, k)
	for _, s := range samples {
		c := nearestCentroid(fitted, s, cfg.Distance)
		groups[c] = append(groups[c], s)
	}

	leafLevel := level == cfg.Height()-1
	nodes := make([]*clusterNode, k)
	for i := 0; i < k; i++ {
		n := &clusterNode{vector: fitted[i]}
		if leafLevel {
			id, wr, err := page.ExtendPage(bm, nil, false)
			if err != nil {
				return 0, nil, err
			}
			wr.Guard.Release()
			n.childFirst = id
		} else {
			childFirst, children, err := buildChain(bm, cfg, rnd, pool, groups[i], level+1)
			if err != nil {
				return 0, nil, err
			}
			n.childFirst = childFirst
			n.children = children
		}
		nodes[i] = n
	}

	first, err := writeCentroidChain(bm, nodes)
	if err != nil {
		return 0, nil, err
	}
	return first, nodes, nil
}

// writeCentroidChain appends one centroid tuple per node into a
// freshly extended chain of pages, recording each node's resulting
// (page, slot) so later inserts can splice new chain-head pages in
// by mutating the owning centroid's `first` field in place.
func writeCentroidChain(bm host.BufferManager, nodes []*clusterNode) (host.PageID, error) {
	first, wr, err := page.ExtendPage(bm, nil, true)
	if err != nil {
		return 0, err
	}
	cur := wr
	curID := first
	for _, n := range nodes {
		enc := encodeCentroid(Centroid{Vector: n.vector, First: n.childFirst})
		slot, ok := cur.Page.Alloc(enc)
		if !ok {
			cur.Guard.Release()
			nextID, nwr, err := page.ExtendPage(bm, nil, true)
			if err != nil {
				return 0, err
			}
			// keep the chain forward-linked: previous page's next
			// must point at the new page, so re-open it briefly.
			prevWR, err := page.WritePage(bm, curID, true)
			if err != nil {
				return 0, err
			}
			prevWR.Page.SetNext(nextID)
			prevWR.Guard.Release()
			cur = nwr
			curID = nextID
			slot, ok = cur.Page.Alloc(enc)
			if !ok {
				return 0, vxerr.OutOfResource(curID, len(enc))
			}
		}
		n.ownerPage = curID
		n.ownerSlot = slot
	}
	cur.Guard.Release()
	return first, nil
}

func nearestCentroid(centroids [][]float32, v []float32, dist vector.Distance) int {
	best, bestD := 0, float32(0)
	for i, c := range centroids {
		d := vector.Exact(dist, v, c)
		if i == 0 || d < bestD {
			best, bestD = i, d
		}
	}
	return best
}

func nearestNode(nodes []*clusterNode, v []float32, dist vector.Distance) *clusterNode {
	best, bestD := nodes[0], vector.Exact(dist, v, nodes[0].vector)
	for _, n := range nodes[1:] {
		d := vector.Exact(dist, v, n.vector)
		if d < bestD {
			best, bestD = n, d
		}
	}
	return best
}

// routedRow is the outcome of routing one Row through the
// in-memory tree: which centroid owns it and the leaf tuple ready
// to splice into that centroid's chain.
type routedRow struct {
	owner host.Pointer
	leaf  Leaf
}

// routeRow walks the in-memory tree top-down choosing the nearest
// centroid at every level, building the row's leaf tuple along the
// way (§4.F build step 4). It touches only in-memory state
// (rootNodes, row) and never bm, so it is safe to call concurrently
// across rows from multiple goroutines.
func routeRow(cfg config.Build, rootNodes []*clusterNode, row Row) routedRow {
	residual := row.Vector
	var chosen *clusterNode
	nodes := rootNodes
	for {
		chosen = nearestNode(nodes, residual, cfg.Distance)
		if cfg.ResidualQuantization {
			residual = vector.Residual(residual, chosen.vector)
		}
		if chosen.children == nil {
			break
		}
		nodes = chosen.children
	}
	u := row.Vector
	if cfg.ResidualQuantization {
		u = residual
	}
	leaf := Leaf{Payload: row.Payload, Code: vector.Encode(u)}
	if cfg.RerankInTable {
		leaf.Full = row.Vector
	}
	owner := host.Pointer{Page: chosen.ownerPage, Slot: host.Slot(chosen.ownerSlot)}
	return routedRow{owner: owner, leaf: leaf}
}

func allocFreepagesRoot(bm host.BufferManager) (host.PageID, error) {
	id, wr, err := page.ExtendPage(bm, nil, false)
	if err != nil {
		return 0, err
	}
	wr.Guard.Release()
	return id, nil
}

// writeMetaPage writes the metadata tuple into page 0 (reserved
// empty by Build at the start of the call) as the very last step,
// once every page it references is already durable.
func writeMetaPage(bm host.BufferManager, m Meta) error {
	wr, err := page.WritePage(bm, metaPage, false)
	if err != nil {
		return err
	}
	enc := encodeMeta(m)
	slot, ok := wr.Page.Alloc(enc)
	if !ok {
		wr.Guard.Release()
		return vxerr.OutOfResource(metaPage, len(enc))
	}
	wr.Guard.Release()
	if slot != metaSlot {
		return vxerr.Corruptf("rabitq: expected metadata slot %d, got %d", metaSlot, slot)
	}
	vxlog.Default().Infof("rabitq: build wrote metadata tuple (dims=%d height=%d build_id=%s)", m.Dims, m.HeightOfRoot, m.BuildID)
	return nil
}

// noopPool is the default host.ThreadPool used when Build is
// called without one: every call runs synchronously, and the
// first non-nil error returned by a scheduled fn is latched and
// surfaced from Wait/Err, mirroring internal/workerpool.Pool's
// single-error contract without any actual concurrency.
type noopPool struct{ err error }

func (p *noopPool) Go(fn func(host.Cancel) error) {
	if p.err != nil {
		return
	}
	if err := fn(host.NeverCancel); err != nil {
		p.err = err
	}
}
func (p *noopPool) Wait() error { return p.err }
func (p *noopPool) Err() error  { return p.err }
