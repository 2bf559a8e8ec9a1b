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
	"testing"

	"github.com/google/uuid"

	"github.com/usamoi/VectorChord-sub003/config"
	"github.com/usamoi/VectorChord-sub003/host"
	"github.com/usamoi/VectorChord-sub003/memrel"
	"github.com/usamoi/VectorChord-sub003/vector"
)

func TestMetaRoundTrip(t *testing.T) {
	m := Meta{
		BuildID:          uuid.New(),
		Dims:             16,
		M:                8,
		EfConstruction:   32,
		BeamConstruction: 4,
		MaxAlpha:         1.2,
		VectorKind:       vector.KindF32,
		DistanceKind:     vector.L2,
		Start:            host.Pointer{Page: 3, Slot: 2},
		VerticesFirst:    1,
		VectorsFirst:     2,
		FreepagesFirst:   4,
	}
	got := decodeMeta(encodeMeta(m))
	if got.Dims != m.Dims || got.M != m.M || got.EfConstruction != m.EfConstruction ||
		got.BeamConstruction != m.BeamConstruction || got.MaxAlpha != m.MaxAlpha ||
		got.VectorKind != m.VectorKind || got.DistanceKind != m.DistanceKind ||
		got.Start != m.Start || got.VerticesFirst != m.VerticesFirst ||
		got.VectorsFirst != m.VectorsFirst || got.FreepagesFirst != m.FreepagesFirst {
		t.Fatalf("meta round trip mismatch: got %+v want %+v", got, m)
	}
}

func TestVertexRoundTrip(t *testing.T) {
	const m = 4
	v := Vertex{
		HasPayload: true,
		Payload:    99,
		VectorHead: host.Pointer{Page: 7, Slot: 1},
		Neighbors:  []host.Pointer{{Page: 1, Slot: 2}, {Page: 1, Slot: 3}},
		EdgeDistances: []float32{0.5, 1.5},
	}
	got := decodeVertex(encodeVertex(v, m), m)
	if got.HasPayload != v.HasPayload || got.Payload != v.Payload || got.VectorHead != v.VectorHead {
		t.Fatalf("vertex header mismatch: got %+v", got)
	}
	if len(got.Neighbors) != len(v.Neighbors) {
		t.Fatalf("neighbor count mismatch: got %d want %d", len(got.Neighbors), len(v.Neighbors))
	}
	for i := range v.Neighbors {
		if got.Neighbors[i] != v.Neighbors[i] || got.EdgeDistances[i] != v.EdgeDistances[i] {
			t.Fatalf("neighbor[%d] mismatch: got %+v/%v want %+v/%v", i, got.Neighbors[i], got.EdgeDistances[i], v.Neighbors[i], v.EdgeDistances[i])
		}
	}
}

func TestVertexRoundTripTombstoned(t *testing.T) {
	const m = 4
	v := Vertex{HasPayload: false, VectorHead: host.Pointer{Page: 2, Slot: 1}}
	got := decodeVertex(encodeVertex(v, m), m)
	if got.HasPayload {
		t.Fatalf("expected tombstoned vertex, got HasPayload=true")
	}
	if len(got.Neighbors) != 0 {
		t.Fatalf("expected no neighbors, got %v", got.Neighbors)
	}
}

func TestVectorTupleRoundTrip(t *testing.T) {
	v := []float32{1, -2, 3.5, 0, 7}
	got := decodeVectorTuple(encodeVectorTuple(v))
	if len(got) != len(v) {
		t.Fatalf("length mismatch: got %d want %d", len(got), len(v))
	}
	for i := range v {
		if got[i] != v[i] {
			t.Fatalf("vector[%d] = %v, want %v", i, got[i], v[i])
		}
	}
}

// stubPayloads backs host.PayloadSource; vamana's search and
// insert paths never consult it (graph vectors are stored inline
// at full precision), but Open still requires one.
type stubPayloads struct {
	vectors map[uint64][]float32
}

func (s *stubPayloads) FetchVector(payload uint64) ([]float32, bool) {
	v, ok := s.vectors[payload]
	return v, ok
}

func (s *stubPayloads) IsDeleted(payload uint64) bool {
	_, ok := s.vectors[payload]
	return !ok
}

func axisRows(dims, n int) map[uint64][]float32 {
	rows := make(map[uint64][]float32, n)
	for i := 0; i < n; i++ {
		v := make([]float32, dims)
		v[i%dims] = float32(i + 1)
		rows[uint64(i)] = v
	}
	return rows
}

func buildIndex(t *testing.T, dims, m int) (*Index, *stubPayloads) {
	t.Helper()
	bm := memrel.New()
	cfg := config.Build{
		Dims:             dims,
		Distance:         vector.L2,
		VectorKind:       vector.KindF32,
		Cells:            []uint32{1},
		BuildThreads:     1,
		M:                m,
		EfConstruction:   32,
		BeamConstruction: 4,
	}
	if err := Build(bm, cfg); err != nil {
		t.Fatalf("Build: %v", err)
	}
	payloads := &stubPayloads{vectors: make(map[uint64][]float32)}
	ix, err := Open(bm, payloads)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return ix, payloads
}

func TestInsertAndSearchFindsExactMatch(t *testing.T) {
	dims := 8
	rows := axisRows(dims, 40)
	ix, payloads := buildIndex(t, dims, 6)

	for p, v := range rows {
		payloads.vectors[p] = v
		if err := ix.Insert(p, v); err != nil {
			t.Fatalf("Insert(%d): %v", p, err)
		}
	}

	q := config.DefaultQuery()
	q.EfSearch = 20
	var target uint64 = 5
	got, err := ix.Search(rows[target], 5, q)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) == 0 {
		t.Fatalf("Search returned no results")
	}
	found := false
	for _, p := range got {
		if p == target {
			found = true
		}
	}
	if !found {
		t.Fatalf("Search(%v) = %v, expected to contain payload %d", rows[target], got, target)
	}
}

func TestBulkdeleteTombstonesAndHidesFromSearch(t *testing.T) {
	dims := 4
	rows := axisRows(dims, 20)
	ix, payloads := buildIndex(t, dims, 4)

	for p, v := range rows {
		payloads.vectors[p] = v
		if err := ix.Insert(p, v); err != nil {
			t.Fatalf("Insert(%d): %v", p, err)
		}
	}

	deleted := map[uint64]bool{0: true, 1: true, 2: true}
	for p := range deleted {
		delete(payloads.vectors, p)
	}
	if err := ix.Bulkdelete(func(payload uint64) bool { return deleted[payload] }); err != nil {
		t.Fatalf("Bulkdelete: %v", err)
	}

	q := config.DefaultQuery()
	q.EfSearch = 20
	got, err := ix.Search(rows[10], 20, q)
	if err != nil {
		t.Fatalf("Search after bulkdelete: %v", err)
	}
	for _, p := range got {
		if deleted[p] {
			t.Fatalf("Search returned tombstoned payload %d", p)
		}
	}
}

func TestMaintainReclaimsTombstonedVertices(t *testing.T) {
	dims := 4
	rows := axisRows(dims, 24)
	ix, payloads := buildIndex(t, dims, 4)

	for p, v := range rows {
		payloads.vectors[p] = v
		if err := ix.Insert(p, v); err != nil {
			t.Fatalf("Insert(%d): %v", p, err)
		}
	}

	deleted := map[uint64]bool{0: true, 1: true, 2: true, 3: true}
	for p := range deleted {
		delete(payloads.vectors, p)
	}
	if err := ix.Bulkdelete(func(payload uint64) bool { return deleted[payload] }); err != nil {
		t.Fatalf("Bulkdelete: %v", err)
	}
	if err := ix.Maintain(); err != nil {
		t.Fatalf("Maintain: %v", err)
	}

	q := config.DefaultQuery()
	q.EfSearch = 20
	got, err := ix.Search(rows[15], 24, q)
	if err != nil {
		t.Fatalf("Search after maintain: %v", err)
	}
	for _, p := range got {
		if deleted[p] {
			t.Fatalf("Search returned reclaimed payload %d", p)
		}
	}
	var survivor uint64 = 15
	found := false
	for _, p := range got {
		if p == survivor {
			found = true
		}
	}
	if !found {
		t.Fatalf("Search(%v) = %v, expected to still contain surviving payload %d", rows[survivor], got, survivor)
	}
}
