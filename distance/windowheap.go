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

// WindowWidth is the fixed sliding-window width (§4.E
// WindowHeap), chosen to line up with the 32-way fast-scan block
// size so a frontier built on WindowHeap never gets more than one
// fast-scan block ahead of what it has actually evaluated. The
// graph search in vamana uses its own frontier, not WindowHeap.
const WindowWidth = 32

// Source supplies the next (item, distance) pair to a WindowHeap,
// or ok=false once exhausted. Typically backed by an unvisited
// neighbor list or a candidate page-id sequence.
type Source[T any] func() (item T, dist Scalar, ok bool)

// WindowHeap fronts a min-heap with a sliding window of at most
// WindowWidth un-consumed source items, filling the window
// lazily as it drains (§4.E). PopIf only removes the current
// minimum when the caller's predicate accepts it, so a search
// loop can stop pulling from the frontier the instant the best
// remaining candidate can no longer improve the result set.
type WindowHeap[T any] struct {
	width int
	src   Source[T]
	heap  []entry[T]
	done  bool
}

// NewWindowHeap constructs a WindowHeap over src with the
// standard WindowWidth.
func NewWindowHeap[T any](src Source[T]) *WindowHeap[T] {
	w := &WindowHeap[T]{width: WindowWidth, src: src}
	w.fill()
	return w
}

func (w *WindowHeap[T]) fill() {
	for !w.done && len(w.heap) < w.width {
		item, dist, ok := w.src()
		if !ok {
			w.done = true
			break
		}
		pushSlice(&w.heap, entry[T]{dist: dist, item: item}, backLess[T])
	}
}

// PeekMin returns the current minimum without consuming it.
func (w *WindowHeap[T]) PeekMin() (Scalar, bool) {
	if len(w.heap) == 0 {
		return 0, false
	}
	return w.heap[0].dist, true
}

// PopIf removes and returns the current minimum only if pred
// accepts its distance; otherwise it leaves the window untouched
// and returns ok=false. The window is refilled from src after a
// successful pop.
func (w *WindowHeap[T]) PopIf(pred func(Scalar) bool) (item T, ok bool) {
	if len(w.heap) == 0 {
		var zero T
		return zero, false
	}
	if !pred(w.heap[0].dist) {
		var zero T
		return zero, false
	}
	e := popSlice(&w.heap, backLess[T])
	w.fill()
	return e.item, true
}

// Empty reports whether the window and its source are both
// exhausted.
func (w *WindowHeap[T]) Empty() bool { return len(w.heap) == 0 && w.done }
