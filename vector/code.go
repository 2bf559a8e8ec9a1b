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

// Code is the compact per-vector RaBitQ record (§3 Code):
// four scalar factors plus ceil(dims/8) sign-bit bytes of the
// (optionally rotated, optionally residual) vector.
type Code struct {
	DisU2     float32 // ‖u‖²
	FactorPPC float32 // count(+) - count(-)
	FactorIP  float32 // ‖u‖² / Σ|u_i|
	FactorErr float32 // ‖u‖·sqrt(1/x0²-1)/sqrt(dims-1)
	Bits      []byte  // ceil(dims/8) sign-bit bytes
}

// CodeSize returns the number of sign-bit bytes a Code for dims
// dimensions carries, i.e. ceil(dims/8).
func CodeSize(dims int) int { return (dims + 7) / 8 }

// Encode produces the RaBitQ code for u (§4.C RaBitQ encoding).
// u is the vector actually quantized: callers pass the residual
// when is_residual=true, the raw (optionally rotated) vector
// otherwise. Encoding the same vector twice yields a bit-identical
// Code (§8 invariant 5): every step here is a deterministic
// function of u.
func Encode(u []float32) Code {
	dims := len(u)
	disU2 := simd.SumOfSquares(u)
	sumAbs := simd.SumOfAbs(u)

	var ppc float32
	for _, v := range u {
		if v >= 0 {
			ppc++
		} else {
			ppc--
		}
	}

	var factorIP float32
	if sumAbs != 0 {
		factorIP = disU2 / sumAbs
	}

	normU := float32(math.Sqrt(float64(disU2)))
	var factorErr float32
	if dims > 1 && normU != 0 && sumAbs != 0 {
		x0 := sumAbs / (normU * float32(math.Sqrt(float64(dims))))
		if x0 > 0 && x0 <= 1 {
			inner := 1/(x0*x0) - 1
			if inner < 0 {
				inner = 0
			}
			factorErr = normU * float32(math.Sqrt(float64(inner))) / float32(math.Sqrt(float64(dims-1)))
		}
	}

	return Code{
		DisU2:     disU2,
		FactorPPC: ppc,
		FactorIP:  factorIP,
		FactorErr: factorErr,
		Bits:      simd.SignBits(u),
	}
}

// Equal reports whether two codes are bit-identical, used by the
// round-trip test (§8 invariant 5).
func (c Code) Equal(o Code) bool {
	if c.DisU2 != o.DisU2 || c.FactorPPC != o.FactorPPC ||
		c.FactorIP != o.FactorIP || c.FactorErr != o.FactorErr {
		return false
	}
	if len(c.Bits) != len(o.Bits) {
		return false
	}
	for i := range c.Bits {
		if c.Bits[i] != o.Bits[i] {
			return false
		}
	}
	return true
}
