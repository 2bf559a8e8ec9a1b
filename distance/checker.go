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

// Checker is a bounded-size max-heap of the smallest `size`
// distances observed so far. It answers "would distance d enter
// the top-size set" (§4.E) without needing the caller to actually
// push and possibly discard candidates it was only scouting.
type Checker[T any] struct {
	size int
	heap []entry[T]
}

// NewChecker constructs a Checker bounded to size entries.
func NewChecker[T any](size int) *Checker[T] {
	if size < 1 {
		size = 1
	}
	return &Checker[T]{size: size}
}

// WouldEnter reports whether dist would be admitted into the
// top-size set given everything pushed so far.
func (c *Checker[T]) WouldEnter(dist Scalar) bool {
	if len(c.heap) < c.size {
		return true
	}
	return dist < c.heap[0].dist
}

// Push inserts (dist, item), evicting the current worst entry if
// the set is already at capacity and dist is an improvement.
// Pushing an entry that would not enter the set is a no-op.
func (c *Checker[T]) Push(dist Scalar, item T) {
	e := entry[T]{dist: dist, item: item}
	if len(c.heap) < c.size {
		pushSlice(&c.heap, e, frontLess[T])
		return
	}
	if dist < c.heap[0].dist {
		c.heap[0] = e
		fixSlice(c.heap, 0, frontLess[T])
	}
}

// Len returns the number of entries currently retained.
func (c *Checker[T]) Len() int { return len(c.heap) }

// Worst returns the current worst (largest) retained distance.
func (c *Checker[T]) Worst() (Scalar, bool) {
	if len(c.heap) == 0 {
		return 0, false
	}
	return c.heap[0].dist, true
}
