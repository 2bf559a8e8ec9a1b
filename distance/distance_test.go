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

package distance

import (
	"math"
	"sort"
	"testing"
)

// TestScalarTotalOrder checks §8 invariant 3: for all finite a, b,
// (From(a) < From(b)) == (a < b), and NaN sorts strictly greater
// than any finite value.
func TestScalarTotalOrder(t *testing.T) {
	vals := []float32{
		0, -0,
		1, -1,
		0.5, -0.5,
		3.25, -3.25,
		float32(math.MaxFloat32), -float32(math.MaxFloat32),
		1e-30, -1e-30,
	}
	for _, a := range vals {
		for _, b := range vals {
			want := a < b
			got := From(a) < From(b)
			if got != want {
				t.Fatalf("From(%v) < From(%v) = %v, want %v", a, b, got, want)
			}
		}
	}

	nan := float32(math.NaN())
	for _, f := range vals {
		if !(From(f) < From(nan)) {
			t.Fatalf("From(%v) should sort strictly below From(NaN)", f)
		}
	}
}

func TestScalarFloatRoundTrip(t *testing.T) {
	vals := []float32{0, -0, 1, -1, 3.25, -3.25, float32(math.MaxFloat32), -float32(math.MaxFloat32)}
	for _, f := range vals {
		got := From(f).Float()
		if got != f {
			t.Fatalf("From(%v).Float() = %v, want %v", f, got, f)
		}
	}
}

func TestScalarLess(t *testing.T) {
	if !From(1).Less(From(2)) {
		t.Fatalf("From(1).Less(From(2)) = false, want true")
	}
	if From(2).Less(From(1)) {
		t.Fatalf("From(2).Less(From(1)) = true, want false")
	}
}

// TestSelectHeapDrainDescending checks §8 invariant 4:
// FromSlice(v) drained equals v sorted descending, for singleton
// and all-equal inputs as well as the general case, on both sides
// of the n/384 quick-select chunking threshold.
func TestSelectHeapDrainDescending(t *testing.T) {
	cases := [][]int{
		{},
		{5},
		{3, 3, 3, 3},
		{5, 1, 4, 2, 3, 0},
		make([]int, 1000), // all-equal, exercises the quick-select path
	}
	big := make([]int, 2000)
	for i := range big {
		big[i] = (i*7919 + 13) % 4001
	}
	cases = append(cases, big)

	for ci, in := range cases {
		sh := FromSlice(in, func(v int) Scalar { return From(float32(v)) })
		var got []int
		for {
			v, ok := sh.Pop()
			if !ok {
				break
			}
			got = append(got, v)
		}
		want := append([]int(nil), in...)
		sort.Sort(sort.Reverse(sort.IntSlice(want)))
		if len(got) != len(want) {
			t.Fatalf("case %d: got %d entries, want %d", ci, len(got), len(want))
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("case %d: position %d = %d, want %d", ci, i, got[i], want[i])
			}
		}
	}
}

// TestResultsPopMinDrainsAscending checks §8 scenario S5: pushing
// [5, 1, 4, 2, 3, 0] into a Results with ef=3 drains in ascending
// order across both the front and back heaps.
func TestResultsPopMinDrainsAscending(t *testing.T) {
	r := NewResults[int](3)
	for _, v := range []int{5, 1, 4, 2, 3, 0} {
		r.Push(From(float32(v)), v)
	}
	var got []int
	for {
		v, ok := r.PopMin()
		if !ok {
			break
		}
		got = append(got, v)
	}
	want := []int{0, 1, 2, 3, 4, 5}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("position %d = %d, want %d (full: got=%v want=%v)", i, got[i], want[i], got, want)
		}
	}
}

func TestResultsPeekEfTh(t *testing.T) {
	r := NewResults[int](2)
	if _, ok := r.PeekEfTh(); ok {
		t.Fatalf("PeekEfTh on empty Results: ok = true, want false")
	}
	r.Push(From(5), 5)
	r.Push(From(1), 1)
	d, ok := r.PeekEfTh()
	if !ok || d != From(5) {
		t.Fatalf("PeekEfTh() = (%v, %v), want (From(5), true)", d, ok)
	}
	r.Push(From(0), 0) // better than both: evicts 5 into back
	d, ok = r.PeekEfTh()
	if !ok || d != From(1) {
		t.Fatalf("PeekEfTh() after eviction = (%v, %v), want (From(1), true)", d, ok)
	}
}

func TestCheckerWouldEnterAndWorst(t *testing.T) {
	c := NewChecker[int](2)
	if !c.WouldEnter(From(100)) {
		t.Fatalf("WouldEnter on empty Checker should always be true")
	}
	c.Push(From(5), 5)
	c.Push(From(3), 3)
	if c.WouldEnter(From(10)) {
		t.Fatalf("WouldEnter(10) should be false once the set is full of smaller distances")
	}
	if !c.WouldEnter(From(1)) {
		t.Fatalf("WouldEnter(1) should be true: it beats the current worst")
	}
	worst, ok := c.Worst()
	if !ok || worst != From(5) {
		t.Fatalf("Worst() = (%v, %v), want (From(5), true)", worst, ok)
	}
	if c.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", c.Len())
	}
}
