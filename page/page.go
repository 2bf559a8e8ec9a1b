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

// Package page implements the fixed-size slotted-page abstraction
// (§3 Page, §4.A): a slot directory growing downward from the
// page's opaque trailer, a tuple heap growing upward from the
// header, free-page reclamation primitives, and the read/write
// guard contract the two indices are built against (host.BufferManager).
package page

import (
	"encoding/binary"

	"github.com/dchest/siphash"

	"github.com/usamoi/VectorChord-sub003/vxerr"
)

// Size is the fixed page size every relation in this module uses
// (§6 "Each index is a sequence of 8 KiB pages").
const Size = 8192

// headerSize holds numSlots (u16) and heapEnd (u16).
const headerSize = 4

// slotEntrySize is the directory entry width: offset (u16) + length (u16).
const slotEntrySize = 4

// TrailerSize is the fixed opaque-trailer region reserved at the
// very end of every page (§3 "opaque trailer"): next (u32), skip
// (u32), a siphash-64 checksum xor-folded to 32 bits (NEW, §3 Page
// checksum), and 4 bytes reserved for index-specific flags.
const TrailerSize = 16

// NIL is the reserved "no next page" sentinel (§3).
const NIL uint32 = 0xFFFFFFFF

// ErrOutOfRange reports that id falls outside the relation's
// current page count (§4.A "read(id): Fails only if id is out of
// range").
func ErrOutOfRange(id uint32) error {
	return vxerr.Corruptf("page id %d out of range", id)
}

// trailerStart is where the slot directory's growth from the top
// stops.
const trailerStart = Size - TrailerSize

// checksumKey seeds the siphash page checksum. It is not a
// security boundary (pages are trusted once read from the host
// buffer manager) -- it only needs to be a fixed, well-known
// constant so that checksums are reproducible across builds.
var checksumKey = [16]byte{0x56, 0x58, 0x43, 0x4f, 0x52, 0x45, 0x01, 0x00, 0x52, 0x61, 0x42, 0x69, 0x74, 0x51, 0x00, 0x01}

// Page is a view over one page's raw bytes (obtained from a
// host.SharedGuard or host.ExclusiveGuard). It does not own the
// memory and does not copy it; callers must not retain a Page
// beyond the lifetime of the guard it was built from.
type Page struct {
	buf []byte
}

// New wraps buf (which must be exactly Size bytes) as a Page.
func New(buf []byte) *Page {
	return &Page{buf: buf}
}

// Init zero-initializes a fresh page's header and slot count,
// called by ExtendPage and by memrel.Manager.Extend.
func Init(buf []byte) {
	for i := range buf {
		buf[i] = 0
	}
	binary.LittleEndian.PutUint16(buf[0:2], 0)            // numSlots
	binary.LittleEndian.PutUint16(buf[2:4], headerSize)    // heapEnd
	binary.LittleEndian.PutUint32(buf[trailerStart:], NIL) // next
	binary.LittleEndian.PutUint32(buf[trailerStart+4:], NIL) // skip
}

func (p *Page) numSlots() int { return int(binary.LittleEndian.Uint16(p.buf[0:2])) }
func (p *Page) setNumSlots(n int) {
	binary.LittleEndian.PutUint16(p.buf[0:2], uint16(n))
}

func (p *Page) heapEnd() int { return int(binary.LittleEndian.Uint16(p.buf[2:4])) }
func (p *Page) setHeapEnd(n int) {
	binary.LittleEndian.PutUint16(p.buf[2:4], uint16(n))
}

func (p *Page) slotDirStart() int {
	return trailerStart - p.numSlots()*slotEntrySize
}

func (p *Page) slotEntry(slot int) (offset, length int) {
	base := trailerStart - slot*slotEntrySize
	offset = int(binary.LittleEndian.Uint16(p.buf[base : base+2]))
	length = int(binary.LittleEndian.Uint16(p.buf[base+2 : base+4]))
	return
}

func (p *Page) setSlotEntry(slot int, offset, length int) {
	base := trailerStart - slot*slotEntrySize
	binary.LittleEndian.PutUint16(p.buf[base:base+2], uint16(offset))
	binary.LittleEndian.PutUint16(p.buf[base+2:base+4], uint16(length))
}

// Len returns the fixed page size.
func (p *Page) Len() int { return len(p.buf) }

// Freespace returns the number of bytes available for a new
// alloc, i.e. the gap between the heap's high-water mark and the
// slot directory's low-water mark.
func (p *Page) Freespace() int {
	return p.slotDirStart() - p.heapEnd()
}

// Get returns the bytes stored at slot (1-based). ok is false if
// slot is out of range or has been freed.
func (p *Page) Get(slot int) (data []byte, ok bool) {
	if slot < 1 || slot > p.numSlots() {
		return nil, false
	}
	off, length := p.slotEntry(slot)
	if length == 0 {
		return nil, false
	}
	return p.buf[off : off+length], true
}

// GetMut returns a mutable view of slot's bytes for in-place
// field mutation (§4.D field_mut, e.g. payload tombstoning,
// neighbor-list edits) that must not change the tuple's size.
func (p *Page) GetMut(slot int) (data []byte, ok bool) {
	return p.Get(slot)
}

// Alloc appends bytes as a new tuple and returns its 1-based
// slot index, or ok=false iff freespace is insufficient
// (freespace < len(bytes)+slot_overhead, §3 Page invariants).
func (p *Page) Alloc(bytes []byte) (slot int, ok bool) {
	need := len(bytes) + slotEntrySize
	if p.Freespace() < need {
		return 0, false
	}
	off := p.heapEnd()
	copy(p.buf[off:off+len(bytes)], bytes)
	p.setHeapEnd(off + len(bytes))
	n := p.numSlots() + 1
	p.setNumSlots(n)
	p.setSlotEntry(n, off, len(bytes))
	return n, true
}

// Free tombstones slot: the heap bytes are not reclaimed until
// the next Reconstruct, but the slot entry is marked dead so
// Get/GetMut report it as absent.
func (p *Page) Free(slot int) {
	if slot < 1 || slot > p.numSlots() {
		return
	}
	p.setSlotEntry(slot, 0, 0)
}

// Reconstruct compacts the page, discarding the tuples at
// deadSlots and repacking the survivors' heap bytes contiguously
// from the header. Slot indices are renumbered starting at 1 in
// the surviving tuples' original relative order; callers that
// hold external references to slot indices must re-resolve them
// after a Reconstruct (§3 "stable ... until a reconstruct").
func (p *Page) Reconstruct(deadSlots []int) {
	dead := make(map[int]bool, len(deadSlots))
	for _, s := range deadSlots {
		dead[s] = true
	}
	type surv struct {
		data []byte
	}
	var survivors []surv
	for s := 1; s <= p.numSlots(); s++ {
		if dead[s] {
			continue
		}
		data, ok := p.Get(s)
		if !ok {
			continue
		}
		cp := make([]byte, len(data))
		copy(cp, data)
		survivors = append(survivors, surv{data: cp})
	}
	p.setNumSlots(0)
	p.setHeapEnd(headerSize)
	for _, s := range survivors {
		if _, ok := p.Alloc(s.data); !ok {
			// the compacted data must fit; it fit before and
			// we are strictly shrinking the live set.
			panic(vxerr.OutOfResource(0, len(s.data)))
		}
	}
}

// NumSlots returns how many slot directory entries exist
// (including tombstoned ones).
func (p *Page) NumSlots() int { return p.numSlots() }

// Next returns the opaque trailer's "next page in chain" link.
func (p *Page) Next() uint32 { return binary.LittleEndian.Uint32(p.buf[trailerStart:]) }

// SetNext sets the opaque trailer's "next" link.
func (p *Page) SetNext(v uint32) { binary.LittleEndian.PutUint32(p.buf[trailerStart:], v) }

// Skip returns the opaque trailer's chain-shortcut link (§3,
// §9 open question (b): used by IVF build, read only
// occasionally; callers must tolerate it being stale).
func (p *Page) Skip() uint32 { return binary.LittleEndian.Uint32(p.buf[trailerStart+4:]) }

// SetSkip sets the opaque trailer's "skip" link.
func (p *Page) SetSkip(v uint32) { binary.LittleEndian.PutUint32(p.buf[trailerStart+4:], v) }

// UpdateChecksum recomputes and stores the page body checksum.
// Call this immediately before the guard backing buf is released
// so the next Validate sees a consistent value.
func (p *Page) UpdateChecksum() {
	sum := bodyChecksum(p.buf)
	binary.LittleEndian.PutUint32(p.buf[trailerStart+8:], sum)
}

// Validate recomputes the page body checksum and compares it
// against the stored value, returning a data-corruption error on
// mismatch (§7 Data corruption).
func (p *Page) Validate() error {
	want := binary.LittleEndian.Uint32(p.buf[trailerStart+8:])
	got := bodyChecksum(p.buf)
	if want != got {
		return vxerr.Corruptf("page checksum mismatch: stored %08x computed %08x", want, got)
	}
	return nil
}

func bodyChecksum(buf []byte) uint32 {
	// hash everything except the checksum's own 4 bytes.
	h := siphash.New(checksumKey[:])
	h.Write(buf[:trailerStart+8])
	h.Write(buf[trailerStart+12:])
	sum := h.Sum64()
	return uint32(sum) ^ uint32(sum>>32)
}
