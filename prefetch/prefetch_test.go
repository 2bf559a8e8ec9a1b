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

package prefetch

import (
	"testing"

	"github.com/usamoi/VectorChord-sub003/host"
	"github.com/usamoi/VectorChord-sub003/memrel"
)

func fillPages(t *testing.T, n int) (*memrel.Manager, []host.PageID) {
	t.Helper()
	bm := memrel.New()
	ids := make([]host.PageID, n)
	for i := 0; i < n; i++ {
		id, wr, err := bm.Extend(nil, false)
		if err != nil {
			t.Fatalf("Extend: %v", err)
		}
		wr.Release()
		ids[i] = id
	}
	return bm, ids
}

func drain(t *testing.T, sf *SequenceFamily, want []host.PageID) {
	t.Helper()
	for i, wantID := range want {
		id, guard, err, ok := sf.Next()
		if !ok {
			t.Fatalf("Next() exhausted early at index %d", i)
		}
		if err != nil {
			t.Fatalf("Next(): %v", err)
		}
		if id != wantID {
			t.Fatalf("Next() id = %d, want %d", id, wantID)
		}
		guard.Release()
	}
	if _, _, _, ok := sf.Next(); ok {
		t.Fatalf("Next() should be exhausted")
	}
}

func TestSequenceFamilySerial(t *testing.T) {
	bm, ids := fillPages(t, 5)
	sf := New(bm, ids, 2, StrategySerial)
	drain(t, sf, ids)
}

func TestSequenceFamilyHint(t *testing.T) {
	bm, ids := fillPages(t, 7)
	sf := New(bm, ids, 3, StrategyHint)
	drain(t, sf, ids)
}

func TestSequenceFamilyBatch(t *testing.T) {
	bm, ids := fillPages(t, 10)
	sf := New(bm, ids, 4, StrategyBatch)
	drain(t, sf, ids)
}

func TestSequenceFamilyEmpty(t *testing.T) {
	bm := memrel.New()
	sf := New(bm, nil, 4, StrategyBatch)
	if _, _, _, ok := sf.Next(); ok {
		t.Fatalf("Next() on empty sequence should report ok=false")
	}
}
