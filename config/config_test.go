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

package config

import (
	"testing"

	"github.com/usamoi/VectorChord-sub003/vector"
	"github.com/usamoi/VectorChord-sub003/vxerr"
)

func validBuild() Build {
	return Build{
		Dims:         16,
		Distance:     vector.L2,
		VectorKind:   vector.KindF32,
		Cells:        []uint32{4, 16},
		BuildThreads: 1,
	}
}

func TestBuildValidateAccepts(t *testing.T) {
	b := validBuild()
	if err := b.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
}

func TestBuildValidateRejectsCellsLength(t *testing.T) {
	b := validBuild()
	b.Cells = nil
	if err := b.Validate(); err == nil || !vxerr.IsValidation(err) {
		t.Fatalf("empty cells: got %v, want a validation error", err)
	}
	b.Cells = make([]uint32, 9)
	for i := range b.Cells {
		b.Cells[i] = uint32(i + 1)
	}
	if err := b.Validate(); err == nil || !vxerr.IsValidation(err) {
		t.Fatalf("9 cells: got %v, want a validation error", err)
	}
}

func TestBuildValidateRejectsNonAscendingCells(t *testing.T) {
	b := validBuild()
	b.Cells = []uint32{16, 4}
	if err := b.Validate(); err == nil || !vxerr.IsValidation(err) {
		t.Fatalf("descending cells: got %v, want a validation error", err)
	}
}

func TestBuildValidateRejectsZeroCell(t *testing.T) {
	b := validBuild()
	b.Cells = []uint32{0, 4}
	if err := b.Validate(); err == nil || !vxerr.IsValidation(err) {
		t.Fatalf("cells[0]=0: got %v, want a validation error", err)
	}
}

func TestBuildValidateRejectsBuildThreadsRange(t *testing.T) {
	b := validBuild()
	b.BuildThreads = 0
	if err := b.Validate(); err == nil || !vxerr.IsValidation(err) {
		t.Fatalf("build_threads=0: got %v, want a validation error", err)
	}
	b.BuildThreads = 256
	if err := b.Validate(); err == nil || !vxerr.IsValidation(err) {
		t.Fatalf("build_threads=256: got %v, want a validation error", err)
	}
}

func TestBuildValidateRejectsNegativeM(t *testing.T) {
	b := validBuild()
	b.M = -1
	if err := b.Validate(); err == nil || !vxerr.IsValidation(err) {
		t.Fatalf("m=-1: got %v, want a validation error", err)
	}
}

func TestBuildValidateRejectsEfConstructionRange(t *testing.T) {
	b := validBuild()
	b.EfConstruction = 65536
	if err := b.Validate(); err == nil || !vxerr.IsValidation(err) {
		t.Fatalf("ef_construction=65536: got %v, want a validation error", err)
	}
}

func TestBuildValidateRejectsMaxAlphaBelowOne(t *testing.T) {
	b := validBuild()
	b.MaxAlpha = 0.5
	if err := b.Validate(); err == nil || !vxerr.IsValidation(err) {
		t.Fatalf("max_alpha=0.5: got %v, want a validation error", err)
	}
}

func TestQueryValidateAccepts(t *testing.T) {
	q := DefaultQuery()
	q.Probes = []uint32{4, 16}
	q.EfSearch = 64
	if err := q.Validate(2); err != nil {
		t.Fatalf("Validate(2) = %v, want nil", err)
	}
}

func TestQueryValidateRejectsProbesHeightMismatch(t *testing.T) {
	q := DefaultQuery()
	q.Probes = []uint32{4}
	q.EfSearch = 64
	if err := q.Validate(2); err == nil || !vxerr.IsValidation(err) {
		t.Fatalf("probes/height mismatch: got %v, want a validation error", err)
	}
}

func TestQueryValidateRejectsEpsilonRange(t *testing.T) {
	q := Query{Probes: []uint32{4}, Epsilon: 4.1, EfSearch: 64}
	if err := q.Validate(1); err == nil || !vxerr.IsValidation(err) {
		t.Fatalf("epsilon=4.1: got %v, want a validation error", err)
	}
	q.Epsilon = -0.1
	if err := q.Validate(1); err == nil || !vxerr.IsValidation(err) {
		t.Fatalf("epsilon=-0.1: got %v, want a validation error", err)
	}
}

func TestQueryValidateRejectsEfSearchRange(t *testing.T) {
	q := Query{Probes: []uint32{4}, Epsilon: 1.0, EfSearch: 0}
	if err := q.Validate(1); err == nil || !vxerr.IsValidation(err) {
		t.Fatalf("ef_search=0: got %v, want a validation error", err)
	}
}

func TestBuildHeight(t *testing.T) {
	b := validBuild()
	if got := b.Height(); got != 2 {
		t.Fatalf("Height() = %d, want 2", got)
	}
}
