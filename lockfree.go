package keel

import (
	"runtime"
	"sync/atomic"
)

// ============================================================================
// Lock-Free Join Table
// ============================================================================
//
// Fixed-capacity open-addressing table built concurrently by many workers.
// Capacity is fixed before the first insert (2x the build rows, so load
// stays under 50% and linear probes stay short) which removes growth from
// the concurrent path entirely. Each slot carries an atomic state word:
//
//	empty -> busy   claimed by exactly one inserter (CAS)
//	busy  -> ready  key and chain head published (release store)
//
// Readers acquire-load the state; a busy slot means the claiming insert is
// mid-publish, and the reader backs off briefly and re-reads rather than
// spinning unbounded. Duplicate keys chain through a per-row next array:
// the head pointer is prepended with CAS, and next[row] is written only by
// the worker that owns row, so chains need no lock either.

const (
	slotEmpty uint32 = iota
	slotBusy
	slotReady

	// spins before yielding the processor while a slot is mid-publish
	lockFreeSpinBudget = 64
)

type lockFreeTable struct {
	states []uint32
	keys   []int64
	heads  []int32
	next   []int32
	mask   uint64
}

// newLockFreeTable sizes a table for rows build-side entries
func newLockFreeTable(rows int) *lockFreeTable {
	size := nextPowerOf2(rows * 2)
	if size < 16 {
		size = 16
	}
	t := &lockFreeTable{
		states: make([]uint32, size),
		keys:   make([]int64, size),
		heads:  make([]int32, size),
		next:   make([]int32, rows),
		mask:   uint64(size - 1),
	}
	return t
}

// insert adds row under key. Safe for concurrent use by any number of
// workers, provided each row index is inserted by exactly one of them.
func (t *lockFreeTable) insert(h uint64, key int64, row int32) {
	i := h & t.mask
	spins := 0
	for {
		switch atomic.LoadUint32(&t.states[i]) {
		case slotEmpty:
			if atomic.CompareAndSwapUint32(&t.states[i], slotEmpty, slotBusy) {
				t.keys[i] = key
				t.next[row] = -1
				atomic.StoreInt32(&t.heads[i], row)
				atomic.StoreUint32(&t.states[i], slotReady)
				return
			}
			// Lost the claim race; re-read the slot

		case slotBusy:
			spins++
			if spins > lockFreeSpinBudget {
				runtime.Gosched()
				spins = 0
			}

		case slotReady:
			if t.keys[i] == key {
				// Prepend row to the chain
				for {
					old := atomic.LoadInt32(&t.heads[i])
					t.next[row] = old
					if atomic.CompareAndSwapInt32(&t.heads[i], old, row) {
						return
					}
				}
			}
			i = (i + 1) & t.mask
			spins = 0
		}
	}
}

// lookup returns the chain head for key, or -1 if absent. Callers walk the
// chain through next. Correct concurrently with inserts of other slots;
// matches against a key whose insert has not finished publishing wait out
// the busy window.
func (t *lockFreeTable) lookup(h uint64, key int64) int32 {
	i := h & t.mask
	spins := 0
	for {
		switch atomic.LoadUint32(&t.states[i]) {
		case slotEmpty:
			return -1

		case slotBusy:
			spins++
			if spins > lockFreeSpinBudget {
				runtime.Gosched()
				spins = 0
			}

		case slotReady:
			if t.keys[i] == key {
				return atomic.LoadInt32(&t.heads[i])
			}
			i = (i + 1) & t.mask
			spins = 0
		}
	}
}
