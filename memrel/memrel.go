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

// Package memrel implements an in-process host.BufferManager
// backed by a plain slice of page-sized byte slabs. It exists for
// tests and cmd/vxbench only -- it is a stand-in for the real
// database buffer manager the core is built against (§1 "Out of
// scope: the host buffer manager"), shaped after the teacher's
// fixed-arena slab allocator (vm/malloc.go's Malloc/Free over a
// bitmap of page-sized regions) but without the reserved-VA-range
// trick, since here every "page" is an ordinary Go byte slice.
package memrel

import (
	"sync"

	"github.com/usamoi/VectorChord-sub003/host"
	"github.com/usamoi/VectorChord-sub003/page"
)

// Manager is a single-relation, in-memory host.BufferManager.
// Its mutex guards the page list and free-space map only: Write
// does not block or refuse a second exclusive guard on a page that
// already has one, so callers are responsible for the
// one-writer-per-page and guard-ordering discipline the core
// requires.
type Manager struct {
	mu        sync.Mutex
	pages     [][]byte
	freespace map[host.PageID]int
}

// New returns an empty Manager (zero pages).
func New() *Manager {
	return &Manager{freespace: make(map[host.PageID]int)}
}

func (m *Manager) NumPages() host.PageID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return host.PageID(len(m.pages))
}

type sharedGuard struct{ buf []byte }

func (g sharedGuard) Bytes() []byte { return g.buf }
func (g sharedGuard) Release()      {}

func (m *Manager) Read(id host.PageID) (host.SharedGuard, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if int(id) >= len(m.pages) {
		return nil, page.ErrOutOfRange(id)
	}
	return sharedGuard{buf: m.pages[id]}, nil
}

type exclusiveGuard struct {
	m     *Manager
	id    host.PageID
	track bool
}

func (g exclusiveGuard) Bytes() []byte {
	return g.m.pages[g.id]
}

func (g exclusiveGuard) SetOpaque(trailer []byte) {
	buf := g.m.pages[g.id]
	copy(buf[page.Size-page.TrailerSize:], trailer)
}

func (g exclusiveGuard) Release() {
	pg := page.New(g.m.pages[g.id])
	pg.UpdateChecksum()
	if g.track {
		g.m.mu.Lock()
		g.m.freespace[g.id] = pg.Freespace()
		g.m.mu.Unlock()
	}
}

func (m *Manager) Write(id host.PageID, trackFreespace bool) (host.ExclusiveGuard, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if int(id) >= len(m.pages) {
		return nil, page.ErrOutOfRange(id)
	}
	return exclusiveGuard{m: m, id: id, track: trackFreespace}, nil
}

func (m *Manager) Extend(trailer []byte, trackFreespace bool) (host.PageID, host.ExclusiveGuard, error) {
	m.mu.Lock()
	buf := make([]byte, page.Size)
	page.Init(buf)
	if trailer != nil {
		copy(buf[page.Size-page.TrailerSize:], trailer)
	}
	id := host.PageID(len(m.pages))
	m.pages = append(m.pages, buf)
	m.mu.Unlock()
	return id, exclusiveGuard{m: m, id: id, track: trackFreespace}, nil
}

func (m *Manager) Search(minFree int) (host.PageID, host.ExclusiveGuard, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, free := range m.freespace {
		if free >= minFree {
			return id, exclusiveGuard{m: m, id: id}, true
		}
	}
	return 0, nil, false
}

func (m *Manager) Prefetch(ids []host.PageID) {}
