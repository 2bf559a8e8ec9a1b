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

// Package vector implements the shared quantization/SIMD layer
// (§4.C): vector normalization, RaBitQ encoding, query LUT
// preprocessing, fast-scan lower-bound distance estimation, and
// k-means centroid fitting. Both the RaBitQ (rabitq/) and Vamana
// (vamana/) indices build on this package instead of duplicating
// distance math.
package vector

import (
	"math"

	"github.com/usamoi/VectorChord-sub003/internal/simd"
	"github.com/usamoi/VectorChord-sub003/vxerr"
)

// Kind names the on-disk element type of a stored vector.
type Kind uint8

const (
	KindF32 Kind = iota
	KindF16
)

func (k Kind) String() string {
	if k == KindF16 {
		return "f16"
	}
	return "f32"
}

// Distance names the metric an index is built for.
type Distance uint8

const (
	L2 Distance = iota
	Dot
)

func (d Distance) String() string {
	if d == Dot {
		return "dot"
	}
	return "l2"
}

// MaxDims is the largest dimensionality the on-disk format can
// address (§3 Vector: dims: u32, 1..65536).
const MaxDims = 65536

// ValidateDims range-checks a configured dimensionality.
func ValidateDims(dims int) error {
	if dims < 1 || dims > MaxDims {
		return vxerr.Validationf("dims %d out of range [1,%d]", dims, MaxDims)
	}
	return nil
}

// Norm2 returns ‖x‖² using the dispatch kernel table.
func Norm2(x []float32) float32 { return simd.SumOfSquares(x) }

// Norm returns ‖x‖.
func Norm(x []float32) float32 { return float32(math.Sqrt(float64(Norm2(x)))) }

// Normalize rescales x in place to unit length and returns it.
// A zero vector is left unchanged (cosine distance is undefined
// for it; callers route those rows to exact fallback handling).
func Normalize(x []float32) []float32 {
	n := Norm(x)
	if n == 0 {
		return x
	}
	inv := 1 / n
	for i := range x {
		x[i] *= inv
	}
	return x
}

// Residual returns v - sum(centroids), the vector actually
// quantized when is_residual=true (§3 Glossary: Residual).
func Residual(v []float32, centroids ...[]float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	for _, c := range centroids {
		for i := range out {
			out[i] -= c[i]
		}
	}
	return out
}

// L2Squared returns Σ(x_i-y_i)².
func L2Squared(x, y []float32) float32 { return simd.L2Squared(x, y) }

// DotProduct returns Σ x_i*y_i.
func DotProduct(x, y []float32) float32 { return simd.Dot(x, y) }

// Exact returns the ground-truth distance between x and y under
// kind, used for reranking and for the "within 1 ULP" testable
// property (§8 invariant 1). For Dot we report the negated inner
// product so that smaller is always "closer", matching the
// convention used by the lower-bound estimator.
func Exact(kind Distance, x, y []float32) float32 {
	if kind == Dot {
		return -DotProduct(x, y)
	}
	return L2Squared(x, y)
}
