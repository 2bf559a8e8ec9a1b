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

// Package config holds the build-time and query-time
// configuration surfaces described in §6, their range-check
// validation, and YAML marshalling for cmd/vxbench and tests.
// The core index packages never import sigs.k8s.io/yaml
// themselves; they take already-validated structs.
package config

import (
	"os"

	"sigs.k8s.io/yaml"

	"github.com/usamoi/VectorChord-sub003/vector"
	"github.com/usamoi/VectorChord-sub003/vxerr"
)

// Build is the build-time configuration surface common to both
// indices (§6 Configuration surface).
type Build struct {
	Dims                int               `json:"dims"`
	Distance            vector.Distance   `json:"distance"`
	VectorKind          vector.Kind       `json:"vectorKind"`
	Cells               []uint32          `json:"cells,omitempty"`
	ResidualQuantization bool             `json:"residualQuantization"`
	SphericalCentroids  bool              `json:"sphericalCentroids"`
	BuildThreads        int               `json:"buildThreads"`
	RerankInTable       bool              `json:"rerankInTable"`

	// Graph-only (§6 "for graph additionally").
	M               int     `json:"m,omitempty"`
	EfConstruction  int     `json:"efConstruction,omitempty"`
	BeamConstruction int    `json:"beamConstruction,omitempty"`
	MaxAlpha        float32 `json:"maxAlpha,omitempty"`
}

// Validate range-checks every field per §6.
func (b Build) Validate() error {
	if err := vector.ValidateDims(b.Dims); err != nil {
		return err
	}
	if len(b.Cells) < 1 || len(b.Cells) > 8 {
		return vxerr.Validationf("cells length %d out of range [1,8]", len(b.Cells))
	}
	for i, c := range b.Cells {
		if c < 1 {
			return vxerr.Validationf("cells[%d]=%d must be >= 1", i, c)
		}
		if i > 0 && c < b.Cells[i-1] {
			return vxerr.Validationf("cells must be ascending: cells[%d]=%d < cells[%d]=%d", i, c, i-1, b.Cells[i-1])
		}
	}
	if b.BuildThreads < 1 || b.BuildThreads > 255 {
		return vxerr.Validationf("build_threads %d out of range [1,255]", b.BuildThreads)
	}
	if b.M < 0 {
		return vxerr.Validationf("m %d must be >= 0", b.M)
	}
	if b.EfConstruction != 0 && (b.EfConstruction < 1 || b.EfConstruction > 65535) {
		return vxerr.Validationf("ef_construction %d out of range [1,65535]", b.EfConstruction)
	}
	if b.MaxAlpha != 0 && b.MaxAlpha < 1.0 {
		return vxerr.Validationf("max_alpha %f must be >= 1.0", b.MaxAlpha)
	}
	return nil
}

// Height returns the IVF tree height implied by len(Cells) (§3
// "height H ∈ {1,2,3}").
func (b Build) Height() int { return len(b.Cells) }

// Query is the query-time configuration surface (§6).
type Query struct {
	Probes        []uint32 `json:"probes,omitempty"`
	Epsilon       float32  `json:"epsilon"`
	EfSearch      int      `json:"efSearch"`
	MaxScanTuples *uint32  `json:"maxScanTuples,omitempty"`
}

// DefaultQuery returns the documented default epsilon (1.9) with
// the remaining fields left for the caller to fill in.
func DefaultQuery() Query {
	return Query{Epsilon: 1.9}
}

// Validate range-checks every field per §6.
func (q Query) Validate(height int) error {
	if len(q.Probes) != height {
		return vxerr.Validationf("probes has %d entries, want one per level >=1 (height=%d)", len(q.Probes), height)
	}
	if q.Epsilon < 0.0 || q.Epsilon > 4.0 {
		return vxerr.Validationf("epsilon %f out of range [0,4]", q.Epsilon)
	}
	if q.EfSearch < 1 || q.EfSearch > 65535 {
		return vxerr.Validationf("ef_search %d out of range [1,65535]", q.EfSearch)
	}
	return nil
}

// LoadBuild reads and validates a Build config from a YAML file.
func LoadBuild(path string) (Build, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Build{}, err
	}
	var b Build
	if err := yaml.Unmarshal(raw, &b); err != nil {
		return Build{}, vxerr.Validationf("parsing build config: %v", err)
	}
	return b, b.Validate()
}

// SaveBuild marshals b to path as YAML.
func SaveBuild(path string, b Build) error {
	raw, err := yaml.Marshal(b)
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}
