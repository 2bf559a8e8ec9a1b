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

package page

import (
	"testing"

	"github.com/usamoi/VectorChord-sub003/host"
	"github.com/usamoi/VectorChord-sub003/memrel"
)

func newFreepagesRoot(t *testing.T) (*memrel.Manager, host.PageID) {
	t.Helper()
	bm := memrel.New()
	id, wr, err := ExtendPage(bm, nil, false)
	if err != nil {
		t.Fatalf("ExtendPage: %v", err)
	}
	wr.Guard.Release()
	return bm, id
}

// TestFreepagesMarkFetch checks §8 scenario S6 / invariant 6: after
// marking {100, 200, 300}, three fetches return exactly that set (in
// any order), and a fourth fetch finds nothing.
func TestFreepagesMarkFetch(t *testing.T) {
	bm, root := newFreepagesRoot(t)

	if err := Mark(bm, root, []uint32{100, 200, 300}); err != nil {
		t.Fatalf("Mark: %v", err)
	}

	got := map[uint32]bool{}
	for i := 0; i < 3; i++ {
		id, ok, err := Fetch(bm, root)
		if err != nil {
			t.Fatalf("Fetch: %v", err)
		}
		if !ok {
			t.Fatalf("Fetch %d: ok = false, want a previously-marked id", i)
		}
		got[id] = true
	}
	want := map[uint32]bool{100: true, 200: true, 300: true}
	if len(got) != len(want) {
		t.Fatalf("fetched %v, want exactly %v", got, want)
	}
	for id := range want {
		if !got[id] {
			t.Fatalf("fetched set %v is missing %d", got, id)
		}
	}

	if _, ok, err := Fetch(bm, root); err != nil || ok {
		t.Fatalf("fourth Fetch = (ok=%v, err=%v), want (false, nil)", ok, err)
	}
}

// TestFreepagesNoDoubleFetch checks that an id is never returned
// twice without an intervening Mark, across a larger population
// that forces multiple free-page bitmap windows.
func TestFreepagesNoDoubleFetch(t *testing.T) {
	bm, root := newFreepagesRoot(t)

	ids := []uint32{5, freeWindowBits + 7, 2 * freeWindowBits, 42, freeWindowBits + 7}
	if err := Mark(bm, root, ids); err != nil {
		t.Fatalf("Mark: %v", err)
	}
	unique := map[uint32]bool{}
	for _, id := range ids {
		unique[id] = true
	}

	seen := map[uint32]int{}
	for {
		id, ok, err := Fetch(bm, root)
		if err != nil {
			t.Fatalf("Fetch: %v", err)
		}
		if !ok {
			break
		}
		seen[id]++
		if seen[id] > 1 {
			t.Fatalf("id %d fetched twice without an intervening Mark", id)
		}
	}
	if len(seen) != len(unique) {
		t.Fatalf("fetched %d distinct ids, want %d (%v)", len(seen), len(unique), unique)
	}
}

func TestFreepagesFetchEmptyPool(t *testing.T) {
	bm, root := newFreepagesRoot(t)
	if _, ok, err := Fetch(bm, root); err != nil || ok {
		t.Fatalf("Fetch on empty pool = (ok=%v, err=%v), want (false, nil)", ok, err)
	}
}
