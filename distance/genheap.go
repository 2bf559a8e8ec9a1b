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

// genheap is a generic slice-heap, adapted from the teacher's
// heap package: a comparison function rather than an interface
// drives ordering, so the same three primitives serve every heap
// variant in this package (Results' front/back, Checker,
// SelectHeap, WindowHeap) regardless of element type.

func fixSlice[T any](x []T, index int, less func(a, b T) bool) {
	siftDownSlice(x, index, less)
	siftUpSlice(x, index, less)
}

func popSlice[T any](x *[]T, less func(a, b T) bool) T {
	ret := (*x)[0]
	(*x)[0], *x = (*x)[len(*x)-1], (*x)[:len(*x)-1]
	if len(*x) > 0 {
		siftDownSlice(*x, 0, less)
	}
	return ret
}

func pushSlice[T any](x *[]T, item T, less func(a, b T) bool) {
	*x = append(*x, item)
	siftUpSlice(*x, len(*x)-1, less)
}

// removeSlice removes the element at index while preserving the
// heap invariant, returning it. Needed by Results.PopMin, which
// must remove the minimum of the (max-ordered) front heap from
// wherever it happens to sit, not just the root.
func removeSlice[T any](x *[]T, index int, less func(a, b T) bool) T {
	n := len(*x) - 1
	ret := (*x)[index]
	if n != index {
		(*x)[index] = (*x)[n]
		*x = (*x)[:n]
		fixSlice(*x, index, less)
	} else {
		*x = (*x)[:n]
	}
	return ret
}

func siftUpSlice[T any](x []T, index int, less func(a, b T) bool) {
	for index > 0 {
		p := (index - 1) / 2
		if less(x[p], x[index]) {
			break
		}
		x[p], x[index] = x[index], x[p]
		index = p
	}
}

func siftDownSlice[T any](x []T, index int, less func(a, b T) bool) {
	for {
		left := (index * 2) + 1
		right := left + 1
		if left >= len(x) {
			break
		}
		c := left
		if len(x) > right && less(x[right], x[left]) {
			c = right
		}
		if less(x[index], x[c]) {
			break
		}
		x[c], x[index] = x[index], x[c]
		index = c
	}
}
