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
	"encoding/binary"

	"golang.org/x/crypto/chacha20"
)

// Rand is a seeded, deterministic source of randomness for
// build-time sampling (training-vector reservoir sampling,
// k-means "quick" init padding): two builds from the same seed
// must pick the same training set and the same initial centroids,
// which a keystream cipher guarantees and math/rand's global
// source does not.
type Rand struct {
	cipher *chacha20.Cipher
	buf    [64]byte
	off    int
}

// NewRand derives a Rand from a 64-bit seed. The seed is expanded
// into a chacha20 key; the nonce is fixed since each Rand owns an
// independent keystream.
func NewRand(seed uint64) *Rand {
	var key [chacha20.KeySize]byte
	binary.LittleEndian.PutUint64(key[:8], seed)
	binary.LittleEndian.PutUint64(key[8:16], seed^0x9E3779B97F4A7C15)
	c, err := chacha20.NewUnauthenticatedCipher(key[:], make([]byte, chacha20.NonceSize))
	if err != nil {
		// key/nonce sizes are fixed constants above; this cannot fail.
		panic(err)
	}
	r := &Rand{cipher: c}
	r.off = len(r.buf)
	return r
}

func (r *Rand) nextBytes(n []byte) {
	for i := range n {
		if r.off >= len(r.buf) {
			var zero [64]byte
			r.cipher.XORKeyStream(r.buf[:], zero[:])
			r.off = 0
		}
		n[i] = r.buf[r.off]
		r.off++
	}
}

// Uint64 returns the next 64 bits of keystream.
func (r *Rand) Uint64() uint64 {
	var b [8]byte
	r.nextBytes(b[:])
	return binary.LittleEndian.Uint64(b[:])
}

// Float64 returns a value in [0,1).
func (r *Rand) Float64() float64 {
	return float64(r.Uint64()>>11) / (1 << 53)
}

// Uniform returns a value uniformly distributed in [lo,hi).
func (r *Rand) Uniform(lo, hi float32) float32 {
	return lo + float32(r.Float64())*(hi-lo)
}

// Intn returns a value uniformly distributed in [0,n).
func (r *Rand) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	return int(r.Uint64() % uint64(n))
}

// Shuffle permutes x[0:n) in place via Fisher-Yates.
func (r *Rand) Shuffle(n int, swap func(i, j int)) {
	for i := n - 1; i > 0; i-- {
		j := r.Intn(i + 1)
		swap(i, j)
	}
}

// PadVector returns a new dims-length vector of uniform [-1,1)
// values, used by k-means "quick" init when
// there are fewer training vectors than centroids requested
// (§4.F Build step 2: "pad-to-size via uniform [-1,1]").
func (r *Rand) PadVector(dims int) []float32 {
	v := make([]float32, dims)
	for i := range v {
		v[i] = r.Uniform(-1, 1)
	}
	return v
}

