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

// Command vxbench builds a RaBitQ or Vamana index over a
// synthetic, in-memory relation, runs k-NN queries against it,
// reports recall, and exercises bulkdelete/maintain (SPEC_FULL
// §4.M). It is a bench/demo harness in the spirit of the teacher's
// plain flag-based cmd/dump, not a database binding.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/usamoi/VectorChord-sub003/config"
	"github.com/usamoi/VectorChord-sub003/host"
	"github.com/usamoi/VectorChord-sub003/internal/workerpool"
	"github.com/usamoi/VectorChord-sub003/memrel"
	"github.com/usamoi/VectorChord-sub003/prefetch"
	"github.com/usamoi/VectorChord-sub003/rabitq"
	"github.com/usamoi/VectorChord-sub003/vamana"
	"github.com/usamoi/VectorChord-sub003/vector"
)

func main() {
	indexKind := flag.String("index", "rabitq", "index to benchmark: rabitq or vamana")
	dims := flag.Int("dims", 32, "vector dimensionality")
	n := flag.Int("n", 2000, "number of base vectors to index")
	queries := flag.Int("queries", 50, "number of self-recall queries to run")
	k := flag.Int("k", 10, "k for k-NN queries")
	seed := flag.Uint64("seed", 1, "PRNG seed for synthetic vectors")
	cellsFlag := flag.String("cells", "16,64", "rabitq: comma-separated per-level cell counts")
	probesFlag := flag.String("probes", "4,16", "rabitq: comma-separated per-level probe counts")
	epsilon := flag.Float64("epsilon", 1.9, "rabitq: rerank epsilon")
	m := flag.Int("m", 16, "vamana: max neighbors per vertex")
	efConstruction := flag.Int("ef-construction", 64, "vamana: construction-time beam search width")
	beamConstruction := flag.Int("beam-construction", 8, "vamana: construction-time beam width")
	maxAlpha := flag.Float64("max-alpha", 1.2, "vamana: robust-prune alpha")
	efSearch := flag.Int("ef-search", 64, "query-time ef / result pool size")
	deleteFrac := flag.Float64("delete-frac", 0.1, "fraction of base vectors to bulkdelete + maintain")
	prefetchFlag := flag.String("prefetch", "batch", "page-read pipelining strategy: serial, hint, or batch")
	buildThreads := flag.Int("build-threads", 1, "rabitq: worker pool size for Build")
	flag.Parse()

	if err := run(benchConfig{
		indexKind:        *indexKind,
		dims:             *dims,
		n:                *n,
		queries:          *queries,
		k:                *k,
		seed:             *seed,
		cells:            *cellsFlag,
		probes:           *probesFlag,
		epsilon:          float32(*epsilon),
		m:                *m,
		efConstruction:   *efConstruction,
		beamConstruction: *beamConstruction,
		maxAlpha:         float32(*maxAlpha),
		efSearch:         *efSearch,
		deleteFrac:       float32(*deleteFrac),
		prefetch:         *prefetchFlag,
		buildThreads:     *buildThreads,
	}); err != nil {
		fmt.Fprintln(os.Stderr, "vxbench:", err)
		os.Exit(1)
	}
}

type benchConfig struct {
	indexKind                           string
	dims, n, queries, k                 int
	seed                                uint64
	cells, probes                       string
	epsilon                             float32
	m, efConstruction, beamConstruction int
	maxAlpha                            float32
	efSearch                            int
	deleteFrac                          float32
	prefetch                            string
	buildThreads                        int
}

type row struct {
	payload uint64
	vector  []float32
}

// anIndex is the common surface vxbench drives against either
// index, so the build/query/delete loop below is written once.
type anIndex interface {
	Search(query []float32, k int, q config.Query) ([]uint64, error)
	Bulkdelete(callback func(payload uint64) bool) error
}

func run(cfg benchConfig) error {
	rnd := vector.NewRand(cfg.seed)
	rows := make([]row, cfg.n)
	payloads := &memPayloads{vectors: make(map[uint64][]float32, cfg.n)}
	for i := range rows {
		v := rnd.PadVector(cfg.dims)
		rows[i] = row{payload: uint64(i), vector: v}
		payloads.vectors[uint64(i)] = v
	}

	bm := memrel.New()
	var ix anIndex
	var query func([]float32, int) (config.Query, error)

	switch cfg.indexKind {
	case "rabitq":
		cells, err := parseUints(cfg.cells)
		if err != nil {
			return fmt.Errorf("parsing -cells: %w", err)
		}
		probes, err := parseUints(cfg.probes)
		if err != nil {
			return fmt.Errorf("parsing -probes: %w", err)
		}
		buildCfg := config.Build{
			Dims:          cfg.dims,
			Distance:      vector.L2,
			VectorKind:    vector.KindF32,
			Cells:         cells,
			BuildThreads:  cfg.buildThreads,
			RerankInTable: true,
		}
		buildRows := make([]rabitq.Row, len(rows))
		for i, r := range rows {
			buildRows[i] = rabitq.Row{Payload: r.payload, Vector: r.vector}
		}
		pool := workerpool.New(cfg.buildThreads)
		if err := rabitq.Build(bm, buildCfg, buildRows, pool); err != nil {
			return fmt.Errorf("rabitq.Build: %w", err)
		}
		opened, err := rabitq.Open(bm, payloads)
		if err != nil {
			return fmt.Errorf("rabitq.Open: %w", err)
		}
		ix = opened
		query = func(v []float32, k int) (config.Query, error) {
			q := config.DefaultQuery()
			q.Probes = probes
			q.Epsilon = cfg.epsilon
			q.EfSearch = cfg.efSearch
			return q, q.Validate(len(cells))
		}
	case "vamana":
		buildCfg := config.Build{
			Dims:             cfg.dims,
			Distance:         vector.L2,
			VectorKind:       vector.KindF32,
			Cells:            []uint32{1},
			BuildThreads:     1,
			M:                cfg.m,
			EfConstruction:   cfg.efConstruction,
			BeamConstruction: cfg.beamConstruction,
			MaxAlpha:         cfg.maxAlpha,
		}
		if err := vamana.Build(bm, buildCfg); err != nil {
			return fmt.Errorf("vamana.Build: %w", err)
		}
		opened, err := vamana.Open(bm, payloads)
		if err != nil {
			return fmt.Errorf("vamana.Open: %w", err)
		}
		for _, r := range rows {
			if err := opened.Insert(r.payload, r.vector); err != nil {
				return fmt.Errorf("vamana.Insert(%d): %w", r.payload, err)
			}
		}
		ix = opened
		query = func(v []float32, k int) (config.Query, error) {
			q := config.DefaultQuery()
			q.EfSearch = cfg.efSearch
			return q, nil
		}
	default:
		return fmt.Errorf("unknown -index %q (want rabitq or vamana)", cfg.indexKind)
	}

	hits, err := measureRecall(ix, rows, cfg.queries, cfg.k, query)
	if err != nil {
		return err
	}
	fmt.Printf("%s: recall@%d over %d queries (n=%d, dims=%d): %.1f%%\n",
		cfg.indexKind, cfg.k, cfg.queries, cfg.n, cfg.dims, 100*float64(hits)/float64(cfg.queries))

	if cfg.deleteFrac > 0 {
		deleted := map[uint64]bool{}
		want := int(cfg.deleteFrac * float32(cfg.n))
		for i := 0; i < want && i < len(rows); i++ {
			deleted[rows[i].payload] = true
			delete(payloads.vectors, rows[i].payload)
		}
		if err := ix.Bulkdelete(func(payload uint64) bool { return deleted[payload] }); err != nil {
			return fmt.Errorf("Bulkdelete: %w", err)
		}
		if vix, ok := ix.(*vamana.Index); ok {
			if err := vix.Maintain(); err != nil {
				return fmt.Errorf("Maintain: %w", err)
			}
		}
		survivors := make([]row, 0, len(rows)-len(deleted))
		for _, r := range rows {
			if !deleted[r.payload] {
				survivors = append(survivors, r)
			}
		}
		hits, err = measureRecall(ix, survivors, cfg.queries, cfg.k, query)
		if err != nil {
			return err
		}
		fmt.Printf("%s: recall@%d after bulkdelete of %d vectors: %.1f%%\n",
			cfg.indexKind, cfg.k, len(deleted), 100*float64(hits)/float64(cfg.queries))
	}

	return demoPrefetch(bm, cfg.prefetch)
}

// measureRecall runs up to queries self-recall checks: the query
// vector is a base row's own vector, and a hit is that row's
// payload reappearing in its own top-k result set.
func measureRecall(ix anIndex, rows []row, queries, k int, query func([]float32, int) (config.Query, error)) (int, error) {
	if len(rows) == 0 || queries <= 0 {
		return 0, nil
	}
	hits := 0
	for i := 0; i < queries; i++ {
		target := rows[i%len(rows)]
		q, err := query(target.vector, k)
		if err != nil {
			return 0, fmt.Errorf("building query config: %w", err)
		}
		got, err := ix.Search(target.vector, k, q)
		if err != nil {
			return 0, fmt.Errorf("Search: %w", err)
		}
		for _, p := range got {
			if p == target.payload {
				hits++
				break
			}
		}
	}
	return hits, nil
}

// demoPrefetch walks every page of bm once under the chosen
// strategy, exercising prefetch.SequenceFamily end to end (§4.H).
func demoPrefetch(bm host.BufferManager, strategyName string) error {
	var strategy prefetch.Strategy
	switch strategyName {
	case "serial":
		strategy = prefetch.StrategySerial
	case "hint":
		strategy = prefetch.StrategyHint
	case "batch":
		strategy = prefetch.StrategyBatch
	default:
		return fmt.Errorf("unknown -prefetch %q (want serial, hint, or batch)", strategyName)
	}

	n := bm.NumPages()
	ids := make([]host.PageID, n)
	for i := range ids {
		ids[i] = host.PageID(i)
	}
	sf := prefetch.New(bm, ids, 8, strategy)
	var walked int
	for {
		_, guard, err, ok := sf.Next()
		if !ok {
			break
		}
		if err != nil {
			return fmt.Errorf("prefetch walk: %w", err)
		}
		guard.Release()
		walked++
	}
	fmt.Printf("prefetch(%s): walked %d pages\n", strategyName, walked)
	return nil
}

// memPayloads backs host.PayloadSource for the synthetic dataset.
type memPayloads struct {
	vectors map[uint64][]float32
}

func (p *memPayloads) FetchVector(payload uint64) ([]float32, bool) {
	v, ok := p.vectors[payload]
	return v, ok
}

func (p *memPayloads) IsDeleted(payload uint64) bool {
	_, ok := p.vectors[payload]
	return !ok
}

func parseUints(s string) ([]uint32, error) {
	parts := strings.Split(s, ",")
	out := make([]uint32, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return nil, err
		}
		out = append(out, uint32(v))
	}
	return out, nil
}
