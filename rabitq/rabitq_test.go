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
	"testing"

	"github.com/google/uuid"

	"github.com/usamoi/VectorChord-sub003/config"
	"github.com/usamoi/VectorChord-sub003/memrel"
	"github.com/usamoi/VectorChord-sub003/vector"
)

func TestMetaRoundTrip(t *testing.T) {
	m := Meta{
		BuildID:        uuid.New(),
		Dims:           16,
		VectorKind:     vector.KindF32,
		DistanceKind:   vector.L2,
		IsResidual:     true,
		RerankInTable:  false,
		HeightOfRoot:   2,
		RootFirst:      1,
		CentroidsFirst: 1,
		FreepagesFirst: 2,
		Cells:          []uint32{4, 16},
	}
	got := decodeMeta(encodeMeta(m))
	if got.Dims != m.Dims || got.HeightOfRoot != m.HeightOfRoot || got.RootFirst != m.RootFirst ||
		got.IsResidual != m.IsResidual || len(got.Cells) != len(m.Cells) {
		t.Fatalf("meta round trip mismatch: got %+v want %+v", got, m)
	}
	for i := range m.Cells {
		if got.Cells[i] != m.Cells[i] {
			t.Fatalf("cells[%d] = %d, want %d", i, got.Cells[i], m.Cells[i])
		}
	}
}

func TestCentroidRoundTrip(t *testing.T) {
	c := Centroid{Vector: []float32{1, -2, 3.5, 0}, First: 42}
	got := decodeCentroid(encodeCentroid(c))
	if got.First != c.First || len(got.Vector) != len(c.Vector) {
		t.Fatalf("centroid round trip mismatch")
	}
	for i := range c.Vector {
		if got.Vector[i] != c.Vector[i] {
			t.Fatalf("vector[%d] = %v, want %v", i, got.Vector[i], c.Vector[i])
		}
	}
}

func TestLeafRoundTrip(t *testing.T) {
	u := []float32{1, -1, 0.5, -0.5}
	l := Leaf{
		Payload:  7,
		HeadSlot: 3,
		Code:     vector.Encode(u),
		Hint:     []byte{1, 2, 3},
		Full:     []float32{1, 2, 3, 4},
	}
	got := decodeLeaf(encodeLeaf(l))
	if got.Payload != l.Payload || got.HeadSlot != l.HeadSlot {
		t.Fatalf("leaf header mismatch: got %+v", got)
	}
	if !got.Code.Equal(l.Code) {
		t.Fatalf("leaf code mismatch")
	}
	if len(got.Full) != len(l.Full) {
		t.Fatalf("leaf full vector length mismatch")
	}
	for i := range l.Full {
		if got.Full[i] != l.Full[i] {
			t.Fatalf("full[%d] mismatch", i)
		}
	}
}

func TestLeafRoundTripNoFull(t *testing.T) {
	l := Leaf{Payload: 1, Code: vector.Encode([]float32{1, 2, 3})}
	got := decodeLeaf(encodeLeaf(l))
	if got.Full != nil {
		t.Fatalf("expected nil Full, got %v", got.Full)
	}
}

// stubPayloads backs host.PayloadSource for tests where
// rerank_in_table is false and leaf tuples carry no inline vector.
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

func axisRows(dims, n int) []Row {
	rows := make([]Row, n)
	for i := 0; i < n; i++ {
		v := make([]float32, dims)
		v[i%dims] = float32(i + 1)
		rows[i] = Row{Payload: uint64(i), Vector: v}
	}
	return rows
}

func TestBuildAndSearchFindsExactMatch(t *testing.T) {
	dims := 8
	rows := axisRows(dims, 40)

	payloads := &stubPayloads{vectors: make(map[uint64][]float32)}
	for _, r := range rows {
		payloads.vectors[r.Payload] = r.Vector
	}

	bm := memrel.New()
	cfg := config.Build{
		Dims:         dims,
		Distance:     vector.L2,
		VectorKind:   vector.KindF32,
		Cells:        []uint32{2, 4},
		BuildThreads: 1,
	}
	if err := Build(bm, cfg, rows, nil); err != nil {
		t.Fatalf("Build: %v", err)
	}

	ix, err := Open(bm, payloads)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	query := make([]float32, dims)
	target := rows[5]
	copy(query, target.Vector)

	q := config.DefaultQuery()
	q.Probes = []uint32{2, 4}
	q.EfSearch = 10

	got, err := ix.Search(query, 5, q)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) == 0 {
		t.Fatalf("Search returned no results")
	}
	found := false
	for _, p := range got {
		if p == target.Payload {
			found = true
		}
	}
	if !found {
		t.Fatalf("Search(%v) = %v, expected to contain payload %d", query, got, target.Payload)
	}
}

func TestBulkdeleteReclaimsTuples(t *testing.T) {
	dims := 4
	rows := axisRows(dims, 20)
	payloads := &stubPayloads{vectors: make(map[uint64][]float32)}
	for _, r := range rows {
		payloads.vectors[r.Payload] = r.Vector
	}

	bm := memrel.New()
	cfg := config.Build{
		Dims:         dims,
		Distance:     vector.L2,
		VectorKind:   vector.KindF32,
		Cells:        []uint32{2},
		BuildThreads: 1,
	}
	if err := Build(bm, cfg, rows, nil); err != nil {
		t.Fatalf("Build: %v", err)
	}
	ix, err := Open(bm, payloads)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	deleted := map[uint64]bool{0: true, 1: true, 2: true}
	for p := range deleted {
		delete(payloads.vectors, p)
	}
	if err := ix.Bulkdelete(func(payload uint64) bool { return deleted[payload] }); err != nil {
		t.Fatalf("Bulkdelete: %v", err)
	}

	q := config.DefaultQuery()
	q.Probes = []uint32{2}
	q.EfSearch = 10
	got, err := ix.Search(rows[10].Vector, 20, q)
	if err != nil {
		t.Fatalf("Search after bulkdelete: %v", err)
	}
	for _, p := range got {
		if deleted[p] {
			t.Fatalf("Search returned deleted payload %d", p)
		}
	}
}
