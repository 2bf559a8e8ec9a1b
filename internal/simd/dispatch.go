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

// Package simd implements the vector/quantization kernels used by
// both indices: sum-of-squares, sum-of-abs, dot product, 4-bit
// quantization, and 32-code fast-scan. Kernel selection mirrors
// the teacher's avx512level() dispatch: capability flags are read
// once at init() via golang.org/x/sys/cpu and a function table is
// populated; the hot path never branches on CPU features itself.
package simd

import (
	"golang.org/x/sys/cpu"
)

// Level names a kernel family. Real assembler kernels are out of
// scope for this module; Level instead selects among three
// portable Go implementations (kernels_generic.go, kernels_avx2.go,
// kernels_avx512.go) whose accumulator width mirrors the lane
// width a real AVX2/AVX512 kernel would use, so a genuine
// assembler kernel could later replace one table entry without
// touching any call site.
type Level uint8

const (
	LevelGeneric Level = iota
	LevelAVX2
	LevelAVX512
)

func (l Level) String() string {
	switch l {
	case LevelAVX512:
		return "avx512"
	case LevelAVX2:
		return "avx2"
	default:
		return "generic"
	}
}

// kernels is the capability table populated once at init(),
// mirroring the teacher's ssainfo patch table.
type kernels struct {
	level          Level
	sumOfSquares   func([]float32) float32
	sumOfAbs       func([]float32) float32
	dot            func([]float32, []float32) float32
	l2SquaredDist  func([]float32, []float32) float32
}

var active kernels

func init() {
	lvl := detect()
	active = kernels{level: lvl}
	switch lvl {
	case LevelAVX512:
		active.sumOfSquares = sumOfSquaresAVX512
		active.sumOfAbs = sumOfAbsAVX512
		active.dot = dotAVX512
		active.l2SquaredDist = l2SquaredDistAVX512
	case LevelAVX2:
		active.sumOfSquares = sumOfSquaresAVX2
		active.sumOfAbs = sumOfAbsAVX2
		active.dot = dotAVX2
		active.l2SquaredDist = l2SquaredDistAVX2
	default:
		active.sumOfSquares = sumOfSquaresGeneric
		active.sumOfAbs = sumOfAbsGeneric
		active.dot = dotGeneric
		active.l2SquaredDist = l2SquaredDistGeneric
	}
}

// detect mirrors avx512level(): inspect CPU feature flags once
// and pick the highest kernel family we have a Go implementation
// shaped for. Only amd64 gets anything beyond generic; other
// GOARCH values always report LevelGeneric.
func detect() Level {
	if cpu.X86.HasAVX512F && cpu.X86.HasAVX512VL && cpu.X86.HasAVX512BW {
		return LevelAVX512
	}
	if cpu.X86.HasAVX2 {
		return LevelAVX2
	}
	return LevelGeneric
}

// ActiveLevel reports which kernel family was selected at init.
// Exposed for diagnostics.
func ActiveLevel() Level { return active.level }

// SumOfSquares computes Σ x_i².
func SumOfSquares(x []float32) float32 { return active.sumOfSquares(x) }

// SumOfAbs computes Σ |x_i|.
func SumOfAbs(x []float32) float32 { return active.sumOfAbs(x) }

// Dot computes Σ x_i·y_i. len(x) must equal len(y).
func Dot(x, y []float32) float32 { return active.dot(x, y) }

// L2Squared computes Σ (x_i - y_i)². len(x) must equal len(y).
func L2Squared(x, y []float32) float32 { return active.l2SquaredDist(x, y) }
