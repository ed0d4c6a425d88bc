package gsym

import (
	"encoding/binary"
	"os"

	"github.com/cespare/xxhash/v2"
)

// kMapSize is the number of edge buckets in the coverage maps. Must be a
// power of two.
const kMapSize = 65536

// AFL hit-count buckets: 1, 2, 3, 4-7, 8-15, 16-31, 32-127, 128+.
var countClass = [256]byte{}

func init() {
	countClass[1] = 1 << 0
	countClass[2] = 1 << 1
	countClass[3] = 1 << 2
	for i := 4; i < 8; i++ {
		countClass[i] = 1 << 3
	}
	for i := 8; i < 16; i++ {
		countClass[i] = 1 << 4
	}
	for i := 16; i < 32; i++ {
		countClass[i] = 1 << 5
	}
	for i := 32; i < 128; i++ {
		countClass[i] = 1 << 6
	}
	for i := 128; i < 256; i++ {
		countClass[i] = 1 << 7
	}
}

// AflTraceMap classifies branches the way AFL classifies edges: a branch is
// interesting if its edge lands in a hit bucket never seen before, globally
// or under the current call-stack context. The virgin map persists across
// runs through the bitmap file; the trace and context maps are per run.
type AflTraceMap struct {
	path    string
	trace   []byte
	virgin  []byte
	context []byte
	visited map[uint64]struct{}
	cs      *CallStackManager
}

// NewAflTraceMap loads the virgin map from path (a missing or malformed
// file yields a fresh map) and allocates the per-run trace and context
// maps.
func NewAflTraceMap(path string, cs *CallStackManager) *AflTraceMap {
	m := &AflTraceMap{
		path:    path,
		trace:   make([]byte, kMapSize),
		virgin:  make([]byte, kMapSize),
		context: make([]byte, kMapSize),
		visited: make(map[uint64]struct{}),
		cs:      cs,
	}
	for i := range m.virgin {
		m.virgin[i] = 0xff
	}
	if path != "" {
		if data, err := os.ReadFile(path); err == nil && len(data) == kMapSize {
			copy(m.virgin, data)
		} else if err != nil && !os.IsNotExist(err) {
			logger.Warn().Str("path", path).Err(err).Msg("coverage bitmap unreadable, starting fresh")
		}
	}
	return m
}

// IsInterestingBranch registers the edge (pc, taken) and reports whether it
// revealed new coverage. An edge re-taken within one run stays in its hit
// bucket, so only the first occurrence is interesting.
func (m *AflTraceMap) IsInterestingBranch(pc uint64, taken bool) bool {
	h := hashBranch(pc, taken)
	index := h & (kMapSize - 1)

	if _, seen := m.visited[h]; !seen {
		m.visited[h] = struct{}{}
		if m.trace[index] != 0xff {
			m.trace[index]++
		}
	}
	bucket := countClass[m.trace[index]]

	interesting := m.virgin[index]&bucket != 0
	m.virgin[index] &^= bucket

	ctxIndex := (h ^ uint64(m.cs.Hash())) & (kMapSize - 1)
	if m.context[ctxIndex]&bucket == 0 {
		m.context[ctxIndex] |= bucket
		interesting = true
	}

	return interesting
}

// Commit writes the virgin map back so the next run starts from the
// accumulated coverage.
func (m *AflTraceMap) Commit() error {
	if m.path == "" {
		return nil
	}
	return os.WriteFile(m.path, m.virgin, 0o644)
}

// Density returns the fraction of buckets ever hit, for reporting.
func (m *AflTraceMap) Density() float64 {
	n := 0
	for _, v := range m.virgin {
		if v != 0xff {
			n++
		}
	}
	return float64(n) / float64(kMapSize)
}

// hashBranch hashes a (pc, taken) pair into a stable edge key.
func hashBranch(pc uint64, taken bool) uint64 {
	var buf [9]byte
	binary.LittleEndian.PutUint64(buf[:8], pc)
	if taken {
		buf[8] = 1
	}
	return xxhash.Sum64(buf[:])
}
