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

// Package distance implements the sortable Distance scalar and
// the heap variants (§4.E) the two search loops drive candidate
// selection with.
package distance

import "math"

// Scalar is an f32 reinterpreted so that plain unsigned integer
// comparison (Go's built-in <, >, ==) exactly matches IEEE-754
// total order for finite values, with NaN sorting strictly above
// every finite value (§4.E "Distance scalar", §8 invariant 3).
//
// The encoding flips the sign bit of non-negative numbers and
// complements every bit of negative numbers, which is the
// standard order-preserving float-to-unsigned-int transform: it
// pushes every non-negative value into the upper half of the
// uint32 range and every negative value (reversed) into the lower
// half, so the two halves never interleave.
type Scalar uint32

// From converts a float32 distance into its sortable Scalar form.
func From(f float32) Scalar {
	bits := math.Float32bits(f)
	if bits&0x8000_0000 != 0 {
		bits = ^bits
	} else {
		bits |= 0x8000_0000
	}
	return Scalar(bits)
}

// Float reverses From, recovering the original float32.
func (s Scalar) Float() float32 {
	bits := uint32(s)
	if bits&0x8000_0000 != 0 {
		bits &^= 0x8000_0000
	} else {
		bits = ^bits
	}
	return math.Float32frombits(bits)
}

// Less reports whether s orders before o.
func (s Scalar) Less(o Scalar) bool { return s < o }
