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

// Package host declares the interfaces the index core requires of
// its embedding database: a buffer manager for page I/O, a payload
// source for rerank/vacuum, and a thread pool for parallel build.
// Nothing under rabitq/ or vamana/ imports a concrete database
// binding; everything crosses this boundary.
package host

// PageID identifies a page within a Relation. The sentinel NIL
// marks "no next page" in an overflow chain.
type PageID = uint32

// NIL is the reserved "no page" sentinel for chain links.
const NIL PageID = 0xFFFFFFFF

// Slot is a 1-based slot index within a page, stable across
// Free/Alloc until the next Reconstruct.
type Slot = uint16

// Pointer addresses a tuple by (page, slot).
type Pointer struct {
	Page PageID
	Slot Slot
}

// IsNil reports whether p refers to no tuple.
func (p Pointer) IsNil() bool { return p.Page == NIL }

// NilPointer is the zero-value "no tuple" pointer.
var NilPointer = Pointer{Page: NIL, Slot: 0}

// SharedGuard is a scope-bound read acquisition of a page. Release
// must be safe to call exactly once and must be called on every
// exit path (the core never leaks a guard).
type SharedGuard interface {
	// Bytes returns the page's raw contents. Valid only until
	// Release is called.
	Bytes() []byte
	Release()
}

// ExclusiveGuard is a scope-bound write acquisition of a page.
// Dropping it (Release) is the only way to mark the page dirty;
// if TrackFreespace was requested when the guard was obtained,
// the host registers the page's current freespace with its
// free-space map at Release time.
type ExclusiveGuard interface {
	Bytes() []byte
	// SetOpaque overwrites the page's opaque trailer bytes.
	// Used when extending a page with a caller-supplied trailer.
	SetOpaque(trailer []byte)
	Release()
}

// BufferManager is the host buffer manager the relation package
// is built against. Implementations must guarantee that at most
// one ExclusiveGuard per page is outstanding at a time.
type BufferManager interface {
	// NumPages returns the number of pages currently in the relation.
	NumPages() PageID

	// Read acquires a shared guard on id. Fails only if id is
	// out of range.
	Read(id PageID) (SharedGuard, error)

	// Write acquires an exclusive guard on id. trackFreespace
	// requests free-space-map registration on Release.
	Write(id PageID, trackFreespace bool) (ExclusiveGuard, error)

	// Extend allocates a new trailing page, zero-initializes its
	// body, writes trailer as its opaque trailer, and returns an
	// exclusive guard on it.
	Extend(trailer []byte, trackFreespace bool) (PageID, ExclusiveGuard, error)

	// Search returns an existing page with at least minFree bytes
	// free, or ok=false. The returned guard's free space may be
	// stale; callers must re-check after acquiring it.
	Search(minFree int) (id PageID, guard ExclusiveGuard, ok bool)

	// Prefetch is a hint that the given pages will likely be read
	// soon. Implementations may treat this as a no-op.
	Prefetch(ids []PageID)
}

// PayloadSource is consulted during rerank and vacuum. It maps an
// opaque row identifier back to row state that lives outside the
// index (the relation's own heap/MVCC machinery).
type PayloadSource interface {
	// FetchVector returns the full-precision vector for payload,
	// or ok=false if the payload no longer resolves to a live row
	// (a consistency fault: callers must treat this as deleted,
	// not as an error).
	FetchVector(payload uint64) (vec []float32, ok bool)

	// IsDeleted is the vacuum callback: true means the payload's
	// row no longer exists and the tuple should be reclaimed.
	IsDeleted(payload uint64) bool
}

// Cancel is the cooperative cancellation primitive threaded
// through build-time loops. Err returns non-nil once the caller
// wants in-flight work to stop; loops must check it at every page
// boundary.
type Cancel interface {
	Err() error
}

// ThreadPool is the parallelism primitive injected for Build.
// Implementations are expected to recover worker panics and
// surface at most one error from Wait.
type ThreadPool interface {
	// Go schedules fn to run on a worker. fn receives a Cancel
	// that reports non-nil once any worker has failed or the
	// caller has requested cancellation.
	Go(fn func(Cancel) error)

	// Wait blocks until every scheduled fn has returned, then
	// returns the first non-nil error (if any), wrapped as
	// vxerr.ErrCancelled when the cause was cancellation.
	Wait() error
}

// neverCancel implements Cancel and never reports cancellation;
// useful for single-threaded callers (tests, small builds) that
// have no cancellation source of their own.
type neverCancel struct{}

func (neverCancel) Err() error { return nil }

// NeverCancel is a Cancel that is never triggered.
var NeverCancel Cancel = neverCancel{}
