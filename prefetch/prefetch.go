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

// Package prefetch implements the page-read pipelining in front of
// the search loops' distance evaluator (§4.H). A SequenceFamily
// turns a sequence of page ids into an iterator of (id, guard)
// pairs, pre-issuing reads for the next `beam` ids under one of
// three strategies; which strategy is active is opaque to callers,
// who only ever observe Next()'s returned guard.
//
// Grounded on ion/blockfmt's bounded-inflight prefetcher
// (doPrefetch/canPrefetch): that pipeline keeps a fixed number of
// concurrent reads in flight to hide real object-store I/O
// latency. host.BufferManager.Read here is a synchronous,
// already-in-memory call (no network round trip to hide), so this
// package keeps the same bounded-window shape but drives it
// single-threaded rather than with worker goroutines.
package prefetch

import "github.com/usamoi/VectorChord-sub003/host"

// Strategy selects how SequenceFamily pipelines reads ahead of
// consumption (§4.H "serial reads, buffer-manager prefetch hints,
// host read-stream batching").
type Strategy int

const (
	// StrategySerial reads each id on demand with no pipelining.
	StrategySerial Strategy = iota
	// StrategyHint calls host.BufferManager.Prefetch for the
	// upcoming window before reading each id lazily.
	StrategyHint
	// StrategyBatch eagerly acquires guards for the next `beam`
	// ids, buffering them until Next is called.
	StrategyBatch
)

// Item is one (page id, guard) pair handed out by Next.
type Item struct {
	ID    host.PageID
	Guard host.SharedGuard
}

// SequenceFamily iterates a fixed list of page ids, pre-issuing
// reads for the next `beam` ids per the selected Strategy. The
// caller owns every Guard returned by Next and must Release it
// exactly once.
type SequenceFamily struct {
	bm       host.BufferManager
	ids      []host.PageID
	beam     int
	strategy Strategy

	pos    int    // next index to hand out
	filled int    // next index not yet prefetched (StrategyBatch only)
	window []Item // pre-acquired guards, StrategyBatch only
}

// New returns a SequenceFamily over ids, pipelining up to beam
// reads ahead of the consumer under strategy.
func New(bm host.BufferManager, ids []host.PageID, beam int, strategy Strategy) *SequenceFamily {
	if beam < 1 {
		beam = 1
	}
	sf := &SequenceFamily{bm: bm, ids: ids, beam: beam, strategy: strategy}
	if strategy == StrategyHint {
		sf.issueHint(0)
	}
	return sf
}

func (sf *SequenceFamily) issueHint(from int) {
	to := from + sf.beam
	if to > len(sf.ids) {
		to = len(sf.ids)
	}
	if from >= to {
		return
	}
	sf.bm.Prefetch(sf.ids[from:to])
}

// Next returns the next (id, guard) pair, or ok=false once every
// id has been handed out.
func (sf *SequenceFamily) Next() (id host.PageID, guard host.SharedGuard, err error, ok bool) {
	if sf.pos >= len(sf.ids) {
		return 0, nil, nil, false
	}
	switch sf.strategy {
	case StrategyBatch:
		if sf.pos >= sf.filled {
			if err := sf.fillWindow(); err != nil {
				return 0, nil, err, true
			}
		}
		item := sf.window[sf.pos]
		sf.pos++
		return item.ID, item.Guard, nil, true
	case StrategyHint:
		id = sf.ids[sf.pos]
		guard, err = sf.bm.Read(id)
		sf.pos++
		if sf.pos+sf.beam-1 < len(sf.ids) {
			sf.issueHint(sf.pos + sf.beam - 1)
		}
		return id, guard, err, true
	default: // StrategySerial
		id = sf.ids[sf.pos]
		guard, err = sf.bm.Read(id)
		sf.pos++
		return id, guard, err, true
	}
}

// fillWindow extends the buffered window up to beam ids past the
// last filled position.
func (sf *SequenceFamily) fillWindow() error {
	to := sf.filled + sf.beam
	if to > len(sf.ids) {
		to = len(sf.ids)
	}
	for ; sf.filled < to; sf.filled++ {
		id := sf.ids[sf.filled]
		guard, err := sf.bm.Read(id)
		if err != nil {
			return err
		}
		sf.window = append(sf.window, Item{ID: id, Guard: guard})
	}
	return nil
}
