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

// 8-wide variants, shaped after a single YMM (256-bit / 8x
// float32) lane: no assembler, but the accumulator count and
// unroll factor match what an AVX2 kernel would carry so the
// call sites (dispatch.go's kernels table) are ready for a real
// assembler drop-in keyed on LevelAVX2.

func sumOfSquaresAVX2(x []float32) float32 {
	var acc [8]float32
	n := len(x)
	i := 0
	for ; i+8 <= n; i += 8 {
		for j := 0; j < 8; j++ {
			acc[j] += x[i+j] * x[i+j]
		}
	}
	sum := acc[0] + acc[1] + acc[2] + acc[3] + acc[4] + acc[5] + acc[6] + acc[7]
	for ; i < n; i++ {
		sum += x[i] * x[i]
	}
	return sum
}

func sumOfAbsAVX2(x []float32) float32 {
	var acc [8]float32
	n := len(x)
	i := 0
	for ; i+8 <= n; i += 8 {
		for j := 0; j < 8; j++ {
			acc[j] += fabs32(x[i+j])
		}
	}
	sum := acc[0] + acc[1] + acc[2] + acc[3] + acc[4] + acc[5] + acc[6] + acc[7]
	for ; i < n; i++ {
		sum += fabs32(x[i])
	}
	return sum
}

func dotAVX2(x, y []float32) float32 {
	var acc [8]float32
	n := len(x)
	i := 0
	for ; i+8 <= n; i += 8 {
		for j := 0; j < 8; j++ {
			acc[j] += x[i+j] * y[i+j]
		}
	}
	sum := acc[0] + acc[1] + acc[2] + acc[3] + acc[4] + acc[5] + acc[6] + acc[7]
	for ; i < n; i++ {
		sum += x[i] * y[i]
	}
	return sum
}

func l2SquaredDistAVX2(x, y []float32) float32 {
	var acc [8]float32
	n := len(x)
	i := 0
	for ; i+8 <= n; i += 8 {
		for j := 0; j < 8; j++ {
			d := x[i+j] - y[i+j]
			acc[j] += d * d
		}
	}
	sum := acc[0] + acc[1] + acc[2] + acc[3] + acc[4] + acc[5] + acc[6] + acc[7]
	for ; i < n; i++ {
		d := x[i] - y[i]
		sum += d * d
	}
	return sum
}
