package gsym_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gosymlab/gsym"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAflTraceMap_IsInterestingBranch(t *testing.T) {
	t.Run("FirstHitIsInteresting", func(t *testing.T) {
		m := gsym.NewAflTraceMap("", gsym.NewCallStackManager())
		assert.True(t, m.IsInterestingBranch(0x400123, true))
	})

	t.Run("RepeatIsNot", func(t *testing.T) {
		m := gsym.NewAflTraceMap("", gsym.NewCallStackManager())
		require.True(t, m.IsInterestingBranch(0x400123, true))
		assert.False(t, m.IsInterestingBranch(0x400123, true))
		assert.False(t, m.IsInterestingBranch(0x400123, true))
	})

	t.Run("OppositeDirectionIsSeparate", func(t *testing.T) {
		m := gsym.NewAflTraceMap("", gsym.NewCallStackManager())
		require.True(t, m.IsInterestingBranch(0x400123, true))
		assert.True(t, m.IsInterestingBranch(0x400123, false))
	})

	t.Run("NewContextIsInteresting", func(t *testing.T) {
		cs := gsym.NewCallStackManager()
		m := gsym.NewAflTraceMap("", cs)
		require.True(t, m.IsInterestingBranch(0x400123, true))
		require.False(t, m.IsInterestingBranch(0x400123, true))

		// The same edge from a different call stack is per-context news,
		// once.
		cs.VisitCall(0x400456)
		assert.True(t, m.IsInterestingBranch(0x400123, true))
		assert.False(t, m.IsInterestingBranch(0x400123, true))
	})
}

func TestAflTraceMap_Persistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bitmap")

	cs := gsym.NewCallStackManager()
	m := gsym.NewAflTraceMap(path, cs)
	require.True(t, m.IsInterestingBranch(0x400123, true))
	require.NoError(t, m.Commit())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Len(t, data, 65536)

	// A fresh run over the committed bitmap does not rediscover the edge
	// globally; only the per-context map (which is per run) fires once.
	m2 := gsym.NewAflTraceMap(path, cs)
	assert.True(t, m2.IsInterestingBranch(0x400123, true)) // context news
	assert.False(t, m2.IsInterestingBranch(0x400123, true))

	if m2.Density() == 0 {
		t.Fatal("expected non-zero density")
	}
}

func TestAflTraceMap_MissingBitmapStartsFresh(t *testing.T) {
	m := gsym.NewAflTraceMap(filepath.Join(t.TempDir(), "missing"), gsym.NewCallStackManager())
	assert.True(t, m.IsInterestingBranch(0x1, true))
}
