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

package vamana

import (
	"github.com/google/uuid"

	"github.com/usamoi/VectorChord-sub003/config"
	"github.com/usamoi/VectorChord-sub003/host"
	"github.com/usamoi/VectorChord-sub003/page"
	"github.com/usamoi/VectorChord-sub003/vxerr"
	"github.com/usamoi/VectorChord-sub003/vxlog"
)

// defaultMaxAlpha is used when cfg.MaxAlpha is left at its zero
// value, since alpha must be >= 1.0 for robust_prune to converge.
const defaultMaxAlpha = 1.2

// Build writes only the metadata page; the graph itself is
// populated incrementally by Insert (§4.G "Build writes only the
// metadata page; the graph is populated incrementally by
// insert"). bm must be empty.
func Build(bm host.BufferManager, cfg config.Build) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := validateGraphFields(cfg); err != nil {
		return err
	}
	if bm.NumPages() != 0 {
		return vxerr.Corruptf("vamana: build requires an empty relation, got %d existing pages", bm.NumPages())
	}

	reservedMeta, reservedWR, err := page.ExtendPage(bm, nil, false)
	if err != nil {
		return err
	}
	reservedWR.Guard.Release()
	if reservedMeta != metaPage {
		return vxerr.Corruptf("vamana: expected metadata page id %d, got %d", metaPage, reservedMeta)
	}

	verticesFirst, vwr, err := page.ExtendPage(bm, nil, false)
	if err != nil {
		return err
	}
	vwr.Guard.Release()

	vectorsFirst, xwr, err := page.ExtendPage(bm, nil, false)
	if err != nil {
		return err
	}
	xwr.Guard.Release()

	freepagesFirst, fwr, err := page.ExtendPage(bm, nil, false)
	if err != nil {
		return err
	}
	fwr.Guard.Release()

	maxAlpha := cfg.MaxAlpha
	if maxAlpha == 0 {
		maxAlpha = defaultMaxAlpha
	}

	meta := Meta{
		BuildID:          uuid.New(),
		Dims:             cfg.Dims,
		M:                cfg.M,
		EfConstruction:   cfg.EfConstruction,
		BeamConstruction: cfg.BeamConstruction,
		MaxAlpha:         maxAlpha,
		VectorKind:       cfg.VectorKind,
		DistanceKind:     cfg.Distance,
		Start:            host.NilPointer,
		VerticesFirst:    verticesFirst,
		VectorsFirst:     vectorsFirst,
		FreepagesFirst:   freepagesFirst,
	}
	return writeMetaPage(bm, meta)
}

// validateGraphFields range-checks the graph-only build fields
// that config.Build.Validate leaves permissive since they are
// optional for the IVF index (§6 "for graph additionally m,
// ef_construction, beam_construction, max_alpha").
func validateGraphFields(cfg config.Build) error {
	if cfg.M < 1 || cfg.M > 4096 {
		return vxerr.Validationf("vamana: m %d out of range [1,4096]", cfg.M)
	}
	if cfg.EfConstruction < 1 || cfg.EfConstruction > 65535 {
		return vxerr.Validationf("vamana: ef_construction %d out of range [1,65535]", cfg.EfConstruction)
	}
	if cfg.BeamConstruction < 1 || cfg.BeamConstruction > 65535 {
		return vxerr.Validationf("vamana: beam_construction %d out of range [1,65535]", cfg.BeamConstruction)
	}
	if cfg.MaxAlpha != 0 && cfg.MaxAlpha < 1.0 {
		return vxerr.Validationf("vamana: max_alpha %f must be >= 1.0", cfg.MaxAlpha)
	}
	return nil
}

func writeMetaPage(bm host.BufferManager, m Meta) error {
	wr, err := page.WritePage(bm, metaPage, false)
	if err != nil {
		return err
	}
	enc := encodeMeta(m)
	slot, ok := wr.Page.Alloc(enc)
	if !ok {
		wr.Guard.Release()
		return vxerr.OutOfResource(metaPage, len(enc))
	}
	wr.Guard.Release()
	if slot != metaSlot {
		return vxerr.Corruptf("vamana: expected metadata slot %d, got %d", metaSlot, slot)
	}
	vxlog.Default().Infof("vamana: build wrote metadata tuple (dims=%d m=%d build_id=%s)", m.Dims, m.M, m.BuildID)
	return nil
}
