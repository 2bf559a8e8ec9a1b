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

package vector

import (
	"math"

	"github.com/usamoi/VectorChord-sub003/internal/simd"
)

// LUT is query-side preprocessing for fast-scan (§3 LUT, §4.C
// "LUT preprocessing"): the query's squared norm, its 4-bit
// quantization scale/offset, the sum of its quantized digits, and
// the packed 16-entry-per-group lookup windows.
type LUT struct {
	DisV2      float32     // ‖q‖²
	K, B       float32     // quantization scale/offset
	QVectorSum uint32      // Σ digits (width-promoted, dims>4369 safe)
	Groups     [][16]uint32 // one 16-entry window per 4 digits
}

// BuildLUT quantizes query q to 4 bits and compresses the digits
// into fast-scan lookup windows.
func BuildLUT(q []float32) LUT {
	k, b, digits := simd.Quantize4(q)
	var sum uint32
	for _, d := range digits {
		sum += uint32(d)
	}
	return LUT{
		DisV2:      simd.SumOfSquares(q),
		K:          k,
		B:          b,
		QVectorSum: sum,
		Groups:     simd.BuildLUT(digits),
	}
}

// FastScanRow evaluates the packed dot product <q_digits,
// sign_bits_of_code> for one code (§4.C Fast-scan).
func (l LUT) FastScanRow(code []byte) uint32 {
	return simd.FastScanRow(l.Groups, code)
}

// FastScanBlock32 evaluates FastScanRow for up to 32 codes,
// mirroring the 32-code page-block granularity fast-scan
// operates at.
func (l LUT) FastScanBlock32(codes [][]byte) []uint32 {
	return simd.FastScanBlock32(l.Groups, codes)
}

// LowerBound computes the ε-relaxed lower-bound distance estimate
// for a code against this LUT (§4.C "Lower-bound distance"), given
// the fast-scan row sum r already evaluated for that code. epsilon
// is the ε from the search configuration (default 1.9, range
// [0,4]); a larger epsilon lowers the bound, so more candidates
// reach the exact rerank and fewer true nearest neighbors are missed.
func LowerBound(kind Distance, c Code, l LUT, r uint32, epsilon float32) float32 {
	rough, errTerm := roughAndError(kind, c, l, r)
	return rough - epsilon*errTerm
}

func roughAndError(kind Distance, c Code, l LUT, r uint32) (rough, errTerm float32) {
	twoRMinusSum := 2*float64(r) - float64(l.QVectorSum)
	switch kind {
	case Dot:
		rough = 0.5*l.B*c.FactorPPC + float32(0.5*twoRMinusSum)*c.FactorIP*l.K
		errTerm = 0.5 * c.FactorErr * sqrtf(l.DisV2)
	default: // L2
		rough = c.DisU2 + l.DisV2 + l.B*c.FactorPPC + float32(twoRMinusSum)*c.FactorIP*l.K
		errTerm = c.FactorErr * sqrtf(l.DisV2)
	}
	return rough, errTerm
}

func sqrtf(x float32) float32 {
	if x < 0 {
		return 0
	}
	return float32(math.Sqrt(float64(x)))
}
