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

import "sort"

// selectHeapChunkDivisor is the n/384 sizing from §4.E: the
// portion of the input that gets a one-time quick-select-and-sort
// treatment before the rest falls back to a plain heap.
const selectHeapChunkDivisor = 384

// SelectHeap drains a fixed input set in descending-distance
// order (§4.E). When the input is large it partitions once via
// quick-select into a sorted suffix of size n/384 plus a
// max-heap residual, and only switches to popping the residual
// heap once the pre-sorted suffix is exhausted — avoiding a full
// O(n log n) sort when only a fraction of the input is ever
// actually drained.
type SelectHeap[T any] struct {
	sortedDesc []entry[T] // popped from the tail, one at a time
	heap       []entry[T] // max-heap residual, built lazily
}

// FromSlice builds a SelectHeap over items, using dist to extract
// each item's sort key. The input order is treated as arbitrary
// and is not preserved.
func FromSlice[T any](items []T, dist func(T) Scalar) *SelectHeap[T] {
	es := make([]entry[T], len(items))
	for i, it := range items {
		es[i] = entry[T]{dist: dist(it), item: it}
	}
	n := len(es)
	chunk := n / selectHeapChunkDivisor
	if chunk < 1 {
		chunk = 1
	}
	if chunk >= n {
		sort.Slice(es, func(i, j int) bool { return es[i].dist < es[j].dist }) // ascending; pop from tail = descending
		return &SelectHeap[T]{sortedDesc: es}
	}

	// quick-select: partition so the `chunk` largest entries sit
	// in es[n-chunk:], in arbitrary order within that region.
	nthElement(es, n-chunk, func(a, b entry[T]) bool { return a.dist < b.dist })
	top := es[n-chunk:]
	rest := es[:n-chunk]

	sort.Slice(top, func(i, j int) bool { return top[i].dist < top[j].dist }) // ascending; pop from tail = descending
	sh := &SelectHeap[T]{sortedDesc: top}
	// heapify rest into a max-heap (residual), popped once
	// sortedDesc is drained.
	for i := len(rest)/2 - 1; i >= 0; i-- {
		siftDownSlice(rest, i, frontLess[T])
	}
	sh.heap = rest
	return sh
}

// Pop returns the next-largest remaining entry and true, or
// ok=false once the SelectHeap is empty. For any input
// permutation, repeated Pop calls are equivalent to sorting the
// whole input descending and popping from the front.
func (s *SelectHeap[T]) Pop() (T, bool) {
	var zero T
	if n := len(s.sortedDesc); n > 0 {
		e := s.sortedDesc[n-1]
		s.sortedDesc = s.sortedDesc[:n-1]
		return e.item, true
	}
	if len(s.heap) == 0 {
		return zero, false
	}
	e := popSlice(&s.heap, frontLess[T])
	return e.item, true
}

// Len returns the number of entries not yet popped.
func (s *SelectHeap[T]) Len() int { return len(s.sortedDesc) + len(s.heap) }

// nthElement partitions x in place (Hoare-scheme quickselect) so
// that, under less, x[target] holds the value it would hold if x
// were fully sorted ascending, every element before target is
// <= it, and every element from target onward is >= it.
func nthElement[T any](x []T, target int, less func(a, b T) bool) {
	lo, hi := 0, len(x)-1
	for lo < hi {
		p := partition(x, lo, hi, less)
		switch {
		case target < p:
			hi = p - 1
		case target > p:
			lo = p + 1
		default:
			return
		}
	}
}

func partition[T any](x []T, lo, hi int, less func(a, b T) bool) int {
	pivot := x[(lo+hi)/2]
	x[(lo+hi)/2], x[hi] = x[hi], x[(lo+hi)/2]
	store := lo
	for i := lo; i < hi; i++ {
		if less(x[i], pivot) {
			x[i], x[store] = x[store], x[i]
			store++
		}
	}
	x[store], x[hi] = x[hi], x[store]
	return store
}
