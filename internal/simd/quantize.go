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

package simd

// Quantize4 performs uniform 4-bit scalar quantization of x,
// returning the scale k, the offset b, and the quantized digits
// q_i = round((x_i - b) / k) clamped to [0, 15], such that
// x_i ≈ b + k*q_i. Used to quantize the query vector before LUT
// construction (§4.C "LUT preprocessing").
func Quantize4(x []float32) (k, b float32, q []uint8) {
	if len(x) == 0 {
		return 1, 0, nil
	}
	lo, hi := x[0], x[0]
	for _, v := range x[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	b = lo
	if hi > lo {
		k = (hi - lo) / 15
	} else {
		k = 1
	}
	q = make([]uint8, len(x))
	for i, v := range x {
		d := (v - b) / k
		r := int32(d + 0.5)
		if r < 0 {
			r = 0
		}
		if r > 15 {
			r = 15
		}
		q[i] = uint8(r)
	}
	return k, b, q
}

// SignBits packs sign(x_i) into a ceil(len(x)/8)-byte bitset: bit
// i set iff x_i >= 0 (§4.C RaBitQ encoding, bits[i] = 1 iff u_i>=0).
func SignBits(x []float32) []byte {
	out := make([]byte, (len(x)+7)/8)
	for i, v := range x {
		if v >= 0 {
			out[i/8] |= 1 << uint(i%8)
		}
	}
	return out
}

// LUTGroupWidth is the number of quantized query digits folded
// into a single 16-entry fast-scan lookup window.
const LUTGroupWidth = 4

// BuildLUT compresses 4-bit query digits into groups of four,
// producing one 16-entry window per group. Window g, entry m,
// holds the sum of digits[4g:4g+4][i] for every i whose bit is
// set in m — i.e. the precomputed sum of each of the 16 subsets
// of four values (§4.C). Using uint32 accumulation keeps this
// correct even for dims > 4369 (15 * 4370 > 1<<16 - 1).
func BuildLUT(digits []uint8) [][16]uint32 {
	groups := (len(digits) + LUTGroupWidth - 1) / LUTGroupWidth
	lut := make([][16]uint32, groups)
	for g := 0; g < groups; g++ {
		base := g * LUTGroupWidth
		var quad [4]uint32
		for j := 0; j < LUTGroupWidth; j++ {
			idx := base + j
			if idx < len(digits) {
				quad[j] = uint32(digits[idx])
			}
		}
		for m := 0; m < 16; m++ {
			var s uint32
			for j := 0; j < LUTGroupWidth; j++ {
				if m&(1<<uint(j)) != 0 {
					s += quad[j]
				}
			}
			lut[g][m] = s
		}
	}
	return lut
}

// FastScanRow evaluates the packed dot product <q_digits,
// sign_bits_of_code> for a single code against lut, by looking
// up one nibble of code per LUT window and summing (§4.C
// "Fast-scan"). code must hold ceil(dims/8) sign-bit bytes.
func FastScanRow(lut [][16]uint32, code []byte) uint32 {
	var r uint32
	for g := range lut {
		nibble := nibbleAt(code, g)
		r += lut[g][nibble]
	}
	return r
}

// FastScanBlock32 evaluates FastScanRow for up to 32 codes at
// once, mirroring the block granularity fast-scan is specified
// to operate at (one 32-code page block). The portable
// implementation here is a plain loop; a real SIMD kernel would
// instead transpose the block and process all 32 lanes together.
func FastScanBlock32(lut [][16]uint32, codes [][]byte) []uint32 {
	out := make([]uint32, len(codes))
	for i, c := range codes {
		out[i] = FastScanRow(lut, c)
	}
	return out
}

// nibbleAt extracts the g'th group of 4 sign bits (bits
// [4g, 4g+4)) from code as a 4-bit index in [0,15].
func nibbleAt(code []byte, g int) int {
	bitBase := g * LUTGroupWidth
	n := 0
	for j := 0; j < LUTGroupWidth; j++ {
		bit := bitBase + j
		byteIdx := bit / 8
		if byteIdx >= len(code) {
			continue
		}
		if code[byteIdx]&(1<<uint(bit%8)) != 0 {
			n |= 1 << uint(j)
		}
	}
	return n
}
