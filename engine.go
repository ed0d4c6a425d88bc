package gsym

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Config carries the runtime knobs. The runtime lives inside an
// instrumented process, so every field can also be set through the
// environment (GSYM_*), which overrides the file.
type Config struct {
	InputFile       string `yaml:"input_file"`
	OutputDir       string `yaml:"output_dir"`
	BitmapFile      string `yaml:"bitmap_file"`
	StatsFile       string `yaml:"stats_file"`
	SolverTimeoutMS int    `yaml:"solver_timeout_ms"`
	Pruning         bool   `yaml:"pruning"`
	LogLevel        string `yaml:"log_level"`
}

// DefaultConfig returns the baseline configuration.
func DefaultConfig() Config {
	return Config{
		SolverTimeoutMS: 10000,
		LogLevel:        "info",
	}
}

// LoadConfig reads a YAML config file over the defaults and applies the
// environment on top.
func LoadConfig(path string) (Config, error) {
	config := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return config, err
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return config, fmt.Errorf("parse config: %w", err)
	}
	config.applyEnv()
	return config, nil
}

// ConfigFromEnv returns the defaults with the environment applied.
func ConfigFromEnv() Config {
	config := DefaultConfig()
	config.applyEnv()
	return config
}

func (c *Config) applyEnv() {
	if v := os.Getenv("GSYM_INPUT_FILE"); v != "" {
		c.InputFile = v
	}
	if v := os.Getenv("GSYM_OUTPUT_DIR"); v != "" {
		c.OutputDir = v
	}
	if v := os.Getenv("GSYM_BITMAP_FILE"); v != "" {
		c.BitmapFile = v
	}
	if v := os.Getenv("GSYM_STATS_FILE"); v != "" {
		c.StatsFile = v
	}
	if v := os.Getenv("GSYM_SOLVER_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.SolverTimeoutMS = n
		}
	}
	if v := os.Getenv("GSYM_PRUNING"); v != "" {
		c.Pruning = v == "1" || v == "true"
	}
	if v := os.Getenv("GSYM_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

// SolverTimeout returns the solver timeout as a duration.
func (c Config) SolverTimeout() time.Duration {
	return time.Duration(c.SolverTimeoutMS) * time.Millisecond
}

// ShadowMemory reports which bytes of the target's memory are shadowed by
// symbolic expressions. It is maintained by the instrumentation glue.
type ShadowMemory interface {
	// ByteExpr returns the expression shadowing the byte at addr, or nil
	// when the byte is concrete.
	ByteExpr(addr uint64) *Expr
}

// Engine owns all runtime state: the builder chain, the read registry, the
// coverage filter, the call-stack manager and the solver driver. The
// instrumented process constructs one at startup and hands it to every
// runtime call. All methods run on the single runtime thread.
type Engine struct {
	config    Config
	inputs    ByteInput
	reads     *ReadRegistry
	builder   Builder
	callStack *CallStackManager
	trace     *AflTraceMap
	solver    *Solver
	smt       SMT
}

// NewEngine slurps the input file and wires the whole runtime together.
func NewEngine(config Config, smt SMT) (*Engine, error) {
	if level, err := zerolog.ParseLevel(config.LogLevel); err == nil && config.LogLevel != "" {
		logger = logger.Level(level)
	}

	inputs, err := os.ReadFile(config.InputFile)
	if err != nil {
		return nil, fmt.Errorf("read input file: %w", err)
	}

	reads := NewReadRegistry()
	callStack := NewCallStackManager()
	trace := NewAflTraceMap(config.BitmapFile, callStack)

	var builder Builder
	if config.Pruning {
		builder = NewPruneBuilder(reads, callStack, ByteInput(inputs))
	} else {
		builder = NewSymbolicBuilder(reads)
	}

	solver := NewSolver(smt, builder, reads, trace, inputs, config.OutputDir, config.StatsFile)

	logger.Info().
		Int("input_bytes", len(inputs)).
		Bool("pruning", config.Pruning).
		Msg("engine initialized")

	return &Engine{
		config:    config,
		inputs:    ByteInput(inputs),
		reads:     reads,
		builder:   builder,
		callStack: callStack,
		trace:     trace,
		solver:    solver,
		smt:       smt,
	}, nil
}

// Builder returns the head of the expression pipeline.
func (en *Engine) Builder() Builder { return en.builder }

// Solver returns the solving coordinator.
func (en *Engine) Solver() *Solver { return en.solver }

// CallStack returns the call-stack manager.
func (en *Engine) CallStack() *CallStackManager { return en.callStack }

// Coverage returns the branch-interest filter.
func (en *Engine) Coverage() *AflTraceMap { return en.trace }

// Inputs returns the concrete input bytes.
func (en *Engine) Inputs() []byte { return en.inputs }

// InputByteExpr returns the memoized Read expression for an input offset.
func (en *Engine) InputByteExpr(off int) *Expr {
	return en.reads.Get(off)
}

// PushPathConstraint records the branch constraint observed at pc.
func (en *Engine) PushPathConstraint(e *Expr, taken bool, pc uint64) {
	en.solver.AddJcc(e, taken, pc)
}

// VisitCall notifies the call-stack manager of a call.
func (en *Engine) VisitCall(pc uint64) { en.callStack.VisitCall(pc) }

// VisitRet notifies the call-stack manager of a return.
func (en *Engine) VisitRet(pc uint64) { en.callStack.VisitRet(pc) }

// VisitBasicBlock notifies the call-stack manager of a basic block entry.
func (en *Engine) VisitBasicBlock(pc uint64) { en.callStack.VisitBasicBlock(pc) }

// ReadMemory builds the expression for an n-byte load at addr. mem holds
// the concrete bytes actually read; sm tells which of them are shadowed.
// Returns nil when the whole region is concrete, in which case the caller
// uses mem directly.
func (en *Engine) ReadMemory(sm ShadowMemory, addr uint64, mem []byte, littleEndian bool) *Expr {
	symbolic := false
	for i := range mem {
		if sm.ByteExpr(addr+uint64(i)) != nil {
			symbolic = true
			break
		}
	}
	if !symbolic {
		return nil
	}

	byteAt := func(i int) *Expr {
		if e := sm.ByteExpr(addr + uint64(i)); e != nil {
			return e
		}
		return en.builder.CreateConstant(uint64(mem[i]), Width8)
	}

	// Most significant byte first: the highest address for little endian,
	// the lowest for big endian.
	var e *Expr
	if littleEndian {
		e = byteAt(len(mem) - 1)
		for i := len(mem) - 2; i >= 0; i-- {
			e = en.builder.CreateConcat(e, byteAt(i))
		}
	} else {
		e = byteAt(0)
		for i := 1; i < len(mem); i++ {
			e = en.builder.CreateConcat(e, byteAt(i))
		}
	}
	return e
}

// Close writes back the coverage bitmap and releases the solver.
func (en *Engine) Close() error {
	if err := en.trace.Commit(); err != nil {
		logger.Warn().Err(err).Msg("unable to write coverage bitmap")
	}
	return en.smt.Close()
}
