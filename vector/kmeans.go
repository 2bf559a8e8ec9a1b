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

import "github.com/usamoi/VectorChord-sub003/host"

// KMeansConfig bounds a single level's centroid fit (§4.F Build
// step 2).
type KMeansConfig struct {
	K          int // number of centroids to fit
	Dims       int
	MaxIters   int
	Rand       *Rand
	Dist       Distance
	Cancel     host.Cancel
}

// KMeans fits k centroids over samples using Lloyd's algorithm
// with "quick" init: cfg.K centroids are chosen by random sampling
// from samples, padded with uniform [-1,1] vectors when
// len(samples) < cfg.K (§4.F step 2).
func KMeans(cfg KMeansConfig, samples [][]float32) [][]float32 {
	k := cfg.K
	if k < 1 {
		k = 1
	}
	centroids := quickInit(cfg, samples)
	if len(samples) == 0 {
		return centroids
	}

	assign := make([]int, len(samples))
	for iter := 0; iter < cfg.MaxIters; iter++ {
		if cfg.Cancel != nil && cfg.Cancel.Err() != nil {
			return centroids
		}
		changed := false
		for i, s := range samples {
			best, bestDist := 0, float32(0)
			for c := range centroids {
				d := L2Squared(s, centroids[c])
				if c == 0 || d < bestDist {
					best, bestDist = c, d
				}
			}
			if assign[i] != best {
				assign[i] = best
				changed = true
			}
		}

		sums := make([][]float32, k)
		counts := make([]int, k)
		for c := range sums {
			sums[c] = make([]float32, cfg.Dims)
		}
		for i, s := range samples {
			c := assign[i]
			counts[c]++
			for d := 0; d < cfg.Dims; d++ {
				sums[c][d] += s[d]
			}
		}
		for c := 0; c < k; c++ {
			if counts[c] == 0 {
				// re-seed a dead centroid from a random sample so
				// it can compete again in the next iteration.
				if len(samples) > 0 {
					centroids[c] = cloneVec(samples[cfg.Rand.Intn(len(samples))])
				}
				continue
			}
			inv := 1 / float32(counts[c])
			for d := 0; d < cfg.Dims; d++ {
				sums[c][d] *= inv
			}
			centroids[c] = sums[c]
		}
		if !changed {
			break
		}
	}
	return centroids
}

func quickInit(cfg KMeansConfig, samples [][]float32) [][]float32 {
	k := cfg.K
	centroids := make([][]float32, k)
	if len(samples) == 0 {
		for i := range centroids {
			centroids[i] = cfg.Rand.PadVector(cfg.Dims)
		}
		return centroids
	}
	perm := make([]int, len(samples))
	for i := range perm {
		perm[i] = i
	}
	cfg.Rand.Shuffle(len(perm), func(i, j int) { perm[i], perm[j] = perm[j], perm[i] })
	for i := 0; i < k; i++ {
		if i < len(samples) {
			centroids[i] = cloneVec(samples[perm[i%len(perm)]])
		} else {
			centroids[i] = cfg.Rand.PadVector(cfg.Dims)
		}
	}
	return centroids
}

func cloneVec(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
