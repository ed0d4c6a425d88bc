package gsym_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gosymlab/gsym"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngineFixture(t *testing.T, input []byte) (*gsym.Engine, *fakeSMT, gsym.Config) {
	t.Helper()
	dir := t.TempDir()

	inputFile := filepath.Join(dir, "input")
	require.NoError(t, os.WriteFile(inputFile, input, 0o644))

	config := gsym.DefaultConfig()
	config.InputFile = inputFile
	config.OutputDir = dir
	config.BitmapFile = filepath.Join(dir, "bitmap")
	config.StatsFile = filepath.Join(dir, "stats.csv")
	config.LogLevel = "error"

	smt := &fakeSMT{}
	en, err := gsym.NewEngine(config, smt)
	require.NoError(t, err)
	return en, smt, config
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gsym.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"input_file: /tmp/in\noutput_dir: /tmp/out\nsolver_timeout_ms: 5000\npruning: true\n"), 0o644))

	config, err := gsym.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/in", config.InputFile)
	assert.Equal(t, "/tmp/out", config.OutputDir)
	assert.Equal(t, 5000, config.SolverTimeoutMS)
	assert.True(t, config.Pruning)
	assert.Equal(t, "5s", config.SolverTimeout().String())
}

func TestConfig_Env(t *testing.T) {
	t.Setenv("GSYM_OUTPUT_DIR", "/tmp/envout")
	t.Setenv("GSYM_SOLVER_TIMEOUT_MS", "1234")
	config := gsym.ConfigFromEnv()
	assert.Equal(t, "/tmp/envout", config.OutputDir)
	assert.Equal(t, 1234, config.SolverTimeoutMS)
}

func TestNewEngine_MissingInput(t *testing.T) {
	config := gsym.DefaultConfig()
	config.InputFile = filepath.Join(t.TempDir(), "missing")
	_, err := gsym.NewEngine(config, &fakeSMT{})
	require.Error(t, err)
}

func TestEngine_InputByteExpr(t *testing.T) {
	en, _, _ := newEngineFixture(t, []byte{0x41, 0x42})
	e := en.InputByteExpr(0)
	assert.Equal(t, gsym.Read, e.Kind())
	assert.Equal(t, e, en.InputByteExpr(0))
	assert.NotEqual(t, e, en.InputByteExpr(1))
}

func TestEngine_PushPathConstraint(t *testing.T) {
	en, smt, config := newEngineFixture(t, []byte{0x00, 0x00})
	smt.results = []gsym.CheckResult{gsym.Sat}
	smt.models = []map[int]byte{{0: 0x41}}

	b := en.Builder()
	e := b.CreateEqual(en.InputByteExpr(0), b.CreateConstant(0x99, 8))
	en.PushPathConstraint(e, true, 0x401000)

	data, err := os.ReadFile(filepath.Join(config.OutputDir, "000000"))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x41, 0x00}, data)
}

// mapShadow is a ShadowMemory backed by a plain map.
type mapShadow map[uint64]*gsym.Expr

func (m mapShadow) ByteExpr(addr uint64) *gsym.Expr { return m[addr] }

func TestEngine_ReadMemory(t *testing.T) {
	en, _, _ := newEngineFixture(t, []byte{0x11, 0x22})

	t.Run("FullyConcreteIsNil", func(t *testing.T) {
		e := en.ReadMemory(mapShadow{}, 0x7000, []byte{0xaa, 0xbb}, true)
		assert.Nil(t, e)
	})

	t.Run("LittleEndian", func(t *testing.T) {
		sm := mapShadow{0x7000: en.InputByteExpr(0)}
		e := en.ReadMemory(sm, 0x7000, []byte{0x11, 0xbb}, true)
		require.NotNil(t, e)
		assert.Equal(t, uint(16), e.Bits())
		// The symbolic byte sits at the lowest address, so it is the least
		// significant half.
		assert.Equal(t, gsym.Concat, e.Kind())
		assert.Equal(t, gsym.Constant, e.Left().Kind())
		assert.Equal(t, uint64(0xbb), e.Left().Value())
		assert.Equal(t, gsym.Read, e.Right().Kind())
	})

	t.Run("BigEndian", func(t *testing.T) {
		sm := mapShadow{0x7000: en.InputByteExpr(0)}
		e := en.ReadMemory(sm, 0x7000, []byte{0x11, 0xbb}, false)
		require.NotNil(t, e)
		assert.Equal(t, gsym.Read, e.Left().Kind())
		assert.Equal(t, uint64(0xbb), e.Right().Value())
	})
}

func TestEngine_Close(t *testing.T) {
	en, _, config := newEngineFixture(t, []byte{0x00})
	require.NoError(t, en.Close())

	data, err := os.ReadFile(config.BitmapFile)
	require.NoError(t, err)
	assert.Len(t, data, 65536)
}
