package gsym

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// kContextBitmapSize is the number of slots in the per-context hit bitmap
// consulted by the prune stage.
const kContextBitmapSize = 65536

// CallStackManager tracks the return-PC stack of the target and a rolling
// hash of it. The prune stage asks it whether the current (pc, stack)
// context has produced anything new lately.
type CallStackManager struct {
	stack       []uint64
	hash        uint32
	interesting bool
	bitmap      []uint16
	pending     bool
	lastPC      uint64
}

// NewCallStackManager returns a manager with an empty stack. A fresh
// context is interesting until proven otherwise.
func NewCallStackManager() *CallStackManager {
	m := &CallStackManager{
		interesting: true,
		bitmap:      make([]uint16, kContextBitmapSize),
	}
	m.computeHash()
	return m
}

// VisitCall pushes the call site onto the stack.
func (m *CallStackManager) VisitCall(pc uint64) {
	m.stack = append(m.stack, pc)
	m.computeHash()
}

// VisitRet unwinds the stack to the frame that made the call. Returns into
// frames we never saw entered (e.g. longjmp) drop the whole stack.
func (m *CallStackManager) VisitRet(pc uint64) {
	for len(m.stack) > 0 && m.stack[len(m.stack)-1] != pc {
		m.stack = m.stack[:len(m.stack)-1]
	}
	if len(m.stack) > 0 {
		m.stack = m.stack[:len(m.stack)-1]
	}
	m.computeHash()
}

// VisitBasicBlock records the block about to execute; the hit bitmap is
// only folded when UpdateBitmap runs for the next expression.
func (m *CallStackManager) VisitBasicBlock(pc uint64) {
	m.lastPC = pc
	m.pending = true
}

// UpdateBitmap folds (last pc, stack hash) into the hit bitmap. The
// interesting flag flips only when a pending block is folded; repeated
// expressions in the same block keep the previous verdict.
func (m *CallStackManager) UpdateBitmap() {
	if !m.pending {
		return
	}
	m.pending = false

	index := (uint64(m.hash) ^ hashPC(m.lastPC)) % kContextBitmapSize
	m.interesting = m.bitmap[index] == 0
	if m.bitmap[index] != ^uint16(0) {
		m.bitmap[index]++
	}
}

// IsInteresting reports the verdict of the last UpdateBitmap.
func (m *CallStackManager) IsInteresting() bool { return m.interesting }

// Hash returns the rolling hash of the current call stack.
func (m *CallStackManager) Hash() uint32 { return m.hash }

// Depth returns the current stack depth.
func (m *CallStackManager) Depth() int { return len(m.stack) }

func (m *CallStackManager) computeHash() {
	d := xxhash.New()
	var buf [8]byte
	for _, pc := range m.stack {
		binary.LittleEndian.PutUint64(buf[:], pc)
		_, _ = d.Write(buf[:])
	}
	m.hash = uint32(d.Sum64())
}

// hashPC hashes a program counter into a stable, well distributed word.
func hashPC(pc uint64) uint64 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], pc)
	return xxhash.Sum64(buf[:])
}
