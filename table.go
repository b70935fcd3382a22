package keel

import (
	"encoding/binary"
	"math/bits"
)

// ============================================================================
// Swiss-Style Hash Table
// ============================================================================
//
// Open-addressing table probed in groups of 8 control bytes. Each control
// byte is the low 7 bits of the slot's hash, so a whole group is screened
// against a candidate with one 64-bit SWAR comparison before any key is
// touched. Slots are empty or occupied; the groupby and join workloads
// never delete, so there are no tombstones. Max load is 7/8, growth doubles
// the slot count and reinserts from the stored hashes.

const (
	swissGroupSize       = 8
	swissMaxAvgGroupLoad = 7

	// Full slots carry a 7-bit tag; only the empty marker has the high bit.
	ctrlEmpty uint8 = 0b1000_0000

	bitsetLSB uint64 = 0x0101010101010101
	bitsetMSB uint64 = 0x8080808080808080
)

// bitset marks matching bytes of a control group with their high bit
type bitset uint64

func (b bitset) first() int {
	return bits.TrailingZeros64(uint64(b)) >> 3
}

func (b bitset) removeFirst() bitset {
	return b & (b - 1)
}

// matchH2 marks the bytes of ctrl group g equal to tag
func matchH2(g uint64, tag uint8) bitset {
	v := g ^ (bitsetLSB * uint64(tag))
	return bitset(((v - bitsetLSB) &^ v) & bitsetMSB)
}

// matchEmpty marks the empty bytes of ctrl group g
func matchEmpty(g uint64) bitset {
	return bitset(g & bitsetMSB)
}

// probeSeq walks groups in a quadratic sequence that visits every group of
// a power-of-two table exactly once
type probeSeq struct {
	mask   uint64
	offset uint64
	index  uint64
}

func makeProbeSeq(h1, mask uint64) probeSeq {
	return probeSeq{mask: mask, offset: h1 & mask, index: 0}
}

func (s probeSeq) next() probeSeq {
	s.index += swissGroupSize
	s.offset = (s.offset + s.index) & s.mask
	return s
}

// swissKey is the set of key types the engines table on
type swissKey interface {
	~int64 | ~uint64
}

// swissSlot holds a key, its full 64-bit hash (reused on growth), and a
// 32-bit payload: a group id for groupby, a chain head for join builds.
type swissSlot[K swissKey] struct {
	hash  uint64
	key   K
	value int32
}

type swissTable[K swissKey] struct {
	ctrls      []uint8 // numSlots + groupSize-1; first 7 bytes mirrored at the tail
	slots      []swissSlot[K]
	mask       uint64 // numSlots - 1
	used       int
	growthLeft int
}

// newSwissTable sizes the table to hold hint entries without growing
func newSwissTable[K swissKey](hint int) *swissTable[K] {
	n := (hint*swissGroupSize + swissMaxAvgGroupLoad - 1) / swissMaxAvgGroupLoad
	if n < 16 {
		n = 16
	}
	t := &swissTable[K]{}
	t.init(nextPowerOf2(n))
	return t
}

func (t *swissTable[K]) init(numSlots int) {
	t.ctrls = make([]uint8, numSlots+swissGroupSize-1)
	for i := range t.ctrls {
		t.ctrls[i] = ctrlEmpty
	}
	t.slots = make([]swissSlot[K], numSlots)
	t.mask = uint64(numSlots - 1)
	t.used = 0
	t.growthLeft = numSlots * swissMaxAvgGroupLoad / swissGroupSize
}

func (t *swissTable[K]) ctrlGroup(offset uint64) uint64 {
	return binary.LittleEndian.Uint64(t.ctrls[offset:])
}

// setCtrl writes a control byte and its mirror so group loads never wrap
func (t *swissTable[K]) setCtrl(i uint64, v uint8) {
	t.ctrls[i] = v
	t.ctrls[((i-(swissGroupSize-1))&t.mask)+(swissGroupSize-1)] = v
}

func (t *swissTable[K]) len() int {
	return t.used
}

func (t *swissTable[K]) value(slot int) int32 {
	return t.slots[slot].value
}

func (t *swissTable[K]) setValue(slot int, v int32) {
	t.slots[slot].value = v
}

// find returns the slot holding key, if present
func (t *swissTable[K]) find(h uint64, key K) (int, bool) {
	tag := uint8(h & 0x7f)
	for seq := makeProbeSeq(h>>7, t.mask); ; seq = seq.next() {
		g := t.ctrlGroup(seq.offset)
		for b := matchH2(g, tag); b != 0; b = b.removeFirst() {
			i := (seq.offset + uint64(b.first())) & t.mask
			if t.slots[i].key == key {
				return int(i), true
			}
		}
		if matchEmpty(g) != 0 {
			return 0, false
		}
	}
}

// findOrInsert returns key's slot, inserting it with a zero value if absent.
// The second result is true when the key was newly inserted.
func (t *swissTable[K]) findOrInsert(h uint64, key K) (int, bool) {
	tag := uint8(h & 0x7f)
	for {
		for seq := makeProbeSeq(h>>7, t.mask); ; seq = seq.next() {
			g := t.ctrlGroup(seq.offset)
			for b := matchH2(g, tag); b != 0; b = b.removeFirst() {
				i := (seq.offset + uint64(b.first())) & t.mask
				if t.slots[i].key == key {
					return int(i), false
				}
			}
			if eb := matchEmpty(g); eb != 0 {
				if t.growthLeft == 0 {
					break // grow, then re-probe
				}
				i := (seq.offset + uint64(eb.first())) & t.mask
				t.setCtrl(i, tag)
				t.slots[i] = swissSlot[K]{hash: h, key: key}
				t.used++
				t.growthLeft--
				return int(i), true
			}
		}
		t.grow()
	}
}

func (t *swissTable[K]) grow() {
	oldSlots := t.slots
	oldCtrls := t.ctrls
	oldMask := t.mask
	t.init(int(oldMask+1) * 2)
	for i := uint64(0); i <= oldMask; i++ {
		if oldCtrls[i]&ctrlEmpty != 0 {
			continue
		}
		s := oldSlots[i]
		t.reinsert(s.hash, s.key, s.value)
	}
}

// reinsert places a known-absent entry, probing for the first empty slot
func (t *swissTable[K]) reinsert(h uint64, key K, value int32) {
	for seq := makeProbeSeq(h>>7, t.mask); ; seq = seq.next() {
		if eb := matchEmpty(t.ctrlGroup(seq.offset)); eb != 0 {
			i := (seq.offset + uint64(eb.first())) & t.mask
			t.setCtrl(i, uint8(h&0x7f))
			t.slots[i] = swissSlot[K]{hash: h, key: key, value: value}
			t.used++
			t.growthLeft--
			return
		}
	}
}
