package gsym

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ByteInput adapts a byte vector to the InputSource interface.
type ByteInput []byte

// InputByte returns the concrete input byte at index.
func (b ByteInput) InputByte(index int) byte {
	assert(index >= 0 && index < len(b), "input index out of bounds: %d >= %d", index, len(b))
	return b[index]
}

// SolverStats are the counters recorded per generated testcase.
type SolverStats struct {
	Generated    int
	CheckTime    time.Duration
	SyncTime     time.Duration
	Skipped      int
	Added        int
	SymbolicVars int
	ConcreteVars int
}

// Solver coordinates branch negation: it filters branches through the
// coverage map, synchronizes the relevant slice of the constraint store
// into the SMT backend, and turns models into new test inputs.
type Solver struct {
	smt     SMT
	builder Builder
	reads   *ReadRegistry
	trace   *AflTraceMap
	inputs  ByteInput

	outDir    string
	statsFile string

	forest         *DependencyForest
	lastInterested bool
	lastPC         uint64
	numGenerated   int

	checkTime    time.Duration
	syncTime     time.Duration
	skipped      int
	added        int
	symbolicVars int
	concreteVars int
}

// NewSolver returns a driver over the given backend. The backend is handed
// the input bytes so concretized reads materialize to their observed
// values.
func NewSolver(smt SMT, builder Builder, reads *ReadRegistry, trace *AflTraceMap, inputs []byte, outDir, statsFile string) *Solver {
	s := &Solver{
		smt:       smt,
		builder:   builder,
		reads:     reads,
		trace:     trace,
		inputs:    ByteInput(inputs),
		outDir:    outDir,
		statsFile: statsFile,
		forest:    NewDependencyForest(len(inputs) + 1),
	}
	smt.SetInput(s.inputs)
	return s
}

// Stats returns the counters of the most recent solve.
func (s *Solver) Stats() SolverStats {
	return SolverStats{
		Generated:    s.numGenerated,
		CheckTime:    s.checkTime,
		SyncTime:     s.syncTime,
		Skipped:      s.skipped,
		Added:        s.added,
		SymbolicVars: s.symbolicVars,
		ConcreteVars: s.concreteVars,
	}
}

// Forest exposes the constraint store for inspection.
func (s *Solver) Forest() *DependencyForest { return s.forest }

// LastPC returns the program counter of the last observed branch.
func (s *Solver) LastPC() uint64 { return s.lastPC }

// AddJcc records the path constraint of a conditional branch and, when the
// branch is interesting, asks the backend for an input taking the other
// direction. pc == 0 marks a synthetic branch that inherits the previous
// branch's interestingness.
func (s *Solver) AddJcc(e *Expr, taken bool, pc uint64) {
	s.lastPC = pc

	// A concrete branch carries no constraint.
	if e.Kind() == Bool {
		assert(e.BoolValue() == taken, "concrete branch contradicts taken direction")
		return
	}

	if !IsRelational(e) {
		logFatal("non-relational branch constraint: %s", e)
	}

	var isInteresting bool
	if pc == 0 {
		isInteresting = s.lastInterested
	} else {
		isInteresting = s.isInterestingJcc(e, taken, pc)
	}

	if isInteresting {
		s.NegatePath(e, taken)
	}
	s.addConstraint(e, taken)
}

// AddValue binds a symbolic expression to its concretely observed value.
func (s *Solver) AddValue(e *Expr, val uint64) {
	if e.IsConcrete() {
		return
	}
	c := s.builder.CreateConstant(val, e.Bits())
	s.addConstraint(CreateBinaryExpr(s.builder, Equal, e, c), true)
}

// AddAddr handles a symbolic memory address: if the last branch was
// interesting, probe the minimum and maximum feasible address and emit
// testcases for both extremes, then bind the address to its observed
// value.
func (s *Solver) AddAddr(e *Expr, addr uint64) {
	if e.IsConcrete() {
		return
	}

	if s.lastInterested {
		s.reset()
		s.syncConstraints(e)
		if s.check() == Sat {
			if min, ok := s.minValue(e); ok {
				s.solveOne(e, min)
			}
			if max, ok := s.maxValue(e); ok {
				s.solveOne(e, max)
			}
		}
	}

	s.AddValue(e, addr)
}

// SolveAll enumerates the feasible values of e other than the observed one,
// emitting a testcase per model, then binds e to the observed value.
func (s *Solver) SolveAll(e *Expr, val uint64) {
	if s.lastInterested {
		postfix := ""
		c := s.builder.CreateConstant(val, e.Bits())
		eq := CreateBinaryExpr(s.builder, Equal, e, c)

		s.reset()
		s.syncConstraints(e)
		s.addToSolver(eq, false)

		if s.check() != Sat {
			// Optimistic solving.
			s.reset()
			s.addToSolver(eq, false)
			postfix = "optimistic"
		}

		for s.checkAndSave(postfix) {
			v, ok, err := s.smt.EvalUint64(e)
			if err != nil || !ok {
				break
			}
			s.assertExpr(CreateBinaryExpr(s.builder, Distinct, e,
				s.builder.CreateConstant(v, e.Bits())))
		}
	}
	s.AddValue(e, val)
}

// NegatePath asks the backend for inputs driving the branch the other way,
// constrained by every recorded constraint sharing input bytes with it. If
// the full context is infeasible, it retries with the bare negated branch.
func (s *Solver) NegatePath(e *Expr, taken bool) {
	s.reset()

	start := time.Now()
	s.syncConstraints(e)
	s.syncTime = time.Since(start)
	logger.Debug().Dur("sync_constraints_time", s.syncTime).Msg("synced")

	s.addToSolver(e, !taken)
	s.added++

	if !s.checkAndSave("") {
		// Optimistic solving.
		s.reset()
		s.addToSolver(e, !taken)
		s.added++
		s.checkAndSave("optimistic")
	}
}

func (s *Solver) isInterestingJcc(_ *Expr, taken bool, pc uint64) bool {
	interesting := s.trace.IsInterestingBranch(pc, taken)
	// Record for synthetic branches.
	s.lastInterested = interesting
	return interesting
}

func (s *Solver) reset() {
	s.smt.Reset()
	s.skipped = 0
	s.added = 0
	s.symbolicVars = 0
	s.concreteVars = 0
}

func (s *Solver) check() CheckResult {
	start := time.Now()
	res, err := s.smt.Check()
	s.checkTime = time.Since(start)
	logger.Debug().Dur("solving_time", s.checkTime).Msg("checked")
	if err != nil {
		// Timeouts and resource limits are unsat as far as this branch is
		// concerned; the optimistic retry may still succeed.
		logger.Debug().Err(err).Msg("solver check failed")
		return Unknown
	}
	return res
}

func (s *Solver) checkAndSave(postfix string) bool {
	if s.check() != Sat {
		return false
	}
	s.saveValues(postfix)
	s.saveStats()
	return true
}

// syncConstraints pulls every dependency tree touching the target's input
// bytes into the backend. Reads involved in the target stay symbolic;
// reads a tree carries beyond them are bound to their concrete input
// values, so the solver only varies the bytes that matter.
func (s *Solver) syncConstraints(e *Expr) {
	symdeps := e.Deps()
	s.symbolicVars = symdeps.Len()

	var trees []*DependencyTree
	seen := make(map[*DependencyTree]bool)
	symdeps.Each(func(index int) {
		tree := s.forest.Find(index)
		if !seen[tree] {
			seen[tree] = true
			trees = append(trees, tree)
		}
		if re := s.reads.Lookup(index); re != nil && re.IsConcrete() {
			re.Symbolize()
		}
	})

	for _, tree := range trees {
		tree.Deps().Each(func(index int) {
			if !symdeps.Contains(index) {
				s.concreteVars++
				if re := s.reads.Lookup(index); re != nil {
					re.Concretize()
				}
			}
		})

		for _, node := range tree.Nodes() {
			// A node sharing no live dependency with the target has been
			// fully concretized and cannot constrain the model.
			if node.IsConcrete() {
				s.skipped++
				continue
			}

			if IsRelational(node) {
				s.addToSolver(node, true)
				s.added++
				continue
			}

			// Range-accumulated constraint.
			valid := false
			for _, unsigned := range []bool{false, true} {
				if clause := s.rangeClause(node, unsigned); clause != nil {
					s.addToSolver(clause, true)
					s.added++
					valid = true
				}
			}
			if !valid {
				logger.Warn().Str("expr", node.String()).Msg("constraint with no materializable range")
			}
		}
	}
}

// rangeClause materializes the accumulated range set of e back into a
// disjunction of bound clauses, or nil if no set was recorded.
func (s *Solver) rangeClause(e *Expr, unsigned bool) *Expr {
	rs := e.RangeSetFor(unsigned)
	if rs == nil {
		return nil
	}

	lowerKind, upperKind := Sge, Sle
	if unsigned {
		lowerKind, upperKind = Uge, Ule
	}

	var expr *Expr
	for _, iv := range rs.Intervals() {
		var bound *Expr
		if iv.Lo == iv.Hi {
			imm := s.builder.CreateConstant(iv.Lo, e.Bits())
			bound = CreateBinaryExpr(s.builder, Equal, e, imm)
		} else {
			lo := s.builder.CreateConstant(iv.Lo, e.Bits())
			hi := s.builder.CreateConstant(iv.Hi, e.Bits())
			bound = s.builder.CreateLAnd(
				CreateBinaryExpr(s.builder, lowerKind, e, lo),
				CreateBinaryExpr(s.builder, upperKind, e, hi))
		}
		if expr == nil {
			expr = bound
		} else {
			expr = s.builder.CreateLOr(expr, bound)
		}
	}
	return expr
}

// addConstraint records e (negated when the branch was not taken) into the
// range store or the dependency forest.
func (s *Solver) addConstraint(e *Expr, taken bool) {
	if e.Kind() == LNot {
		s.addConstraint(e.Child(0), !taken)
		return
	}
	if !s.addRangeConstraint(e, taken) {
		s.addNormalConstraint(e, taken)
	}
}

// record appends a constraint node to the dependency forest.
func (s *Solver) record(e *Expr) {
	// A constraint that folded to true carries no information.
	if e.Kind() == Bool {
		assert(e.BoolValue(), "recorded constraint is false")
		return
	}
	s.forest.AddNode(e)
}

// addRangeConstraint folds a constant-vs-symbolic comparison into the range
// set of its canonical symbolic side. Returns false if e has no such shape.
func (s *Solver) addRangeConstraint(e *Expr, taken bool) bool {
	if !isConstSym(e) {
		return false
	}

	kind, sym, con := parseConstSym(e)
	canonical, adjustment := canonicalExpr(s.builder, sym)
	if !taken {
		kind = NegateKind(kind)
	}

	accumulateRange(canonical, kind, con.Value(), adjustment)
	s.record(canonical)
	return true
}

func (s *Solver) addNormalConstraint(e *Expr, taken bool) {
	if !taken {
		e = s.builder.CreateLNot(e)
	}
	s.record(e)
}

// addToSolver asserts e, negated when the branch was not taken.
func (s *Solver) addToSolver(e *Expr, taken bool) {
	if !taken {
		e = s.builder.CreateLNot(e)
	}
	s.assertExpr(e)
}

func (s *Solver) assertExpr(e *Expr) {
	if err := s.smt.Assert(e); err != nil {
		logger.Warn().Err(err).Msg("assert failed")
	}
}

// minValue probes the smallest feasible value of e under the current
// assertions, saving a testcase for every strictly improving model.
func (s *Solver) minValue(e *Expr) (uint64, bool) {
	s.smt.Push()
	defer s.smt.Pop()

	var value uint64
	found := false
	for s.checkAndSave("") {
		v, ok, err := s.smt.EvalUint64(e)
		if err != nil || !ok {
			break
		}
		value, found = v, true
		s.assertExpr(s.builder.CreateUlt(e, s.builder.CreateConstant(v, e.Bits())))
	}
	return value, found
}

// maxValue is the mirror of minValue.
func (s *Solver) maxValue(e *Expr) (uint64, bool) {
	s.smt.Push()
	defer s.smt.Pop()

	var value uint64
	found := false
	for s.checkAndSave("") {
		v, ok, err := s.smt.EvalUint64(e)
		if err != nil || !ok {
			break
		}
		value, found = v, true
		s.assertExpr(s.builder.CreateUgt(e, s.builder.CreateConstant(v, e.Bits())))
	}
	return value, found
}

// solveOne emits a testcase for e == val if feasible, without disturbing
// the surrounding assertion set.
func (s *Solver) solveOne(e *Expr, val uint64) {
	s.smt.Push()
	defer s.smt.Pop()
	s.assertExpr(CreateBinaryExpr(s.builder, Equal, e,
		s.builder.CreateConstant(val, e.Bits())))
	s.checkAndSave("")
}

// saveValues writes the input vector with every modeled byte overwritten to
// the next testcase file.
func (s *Solver) saveValues(postfix string) {
	model, err := s.smt.Model()
	if err != nil {
		logger.Warn().Err(err).Msg("model extraction failed")
		return
	}

	values := make([]byte, len(s.inputs))
	copy(values, s.inputs)
	for index, v := range model {
		if index >= 0 && index < len(values) {
			values[index] = v
		}
	}

	if s.outDir == "" {
		logger.Info().Hex("values", values).Msg("solved values")
		s.numGenerated++
		return
	}

	name := fmt.Sprintf("%06d", s.numGenerated)
	if postfix != "" {
		name += "-" + postfix
	}
	path := filepath.Join(s.outDir, name)
	if err := os.WriteFile(path, values, 0o644); err != nil {
		logger.Warn().Str("path", path).Err(err).Msg("unable to write testcase")
		return
	}
	logger.Info().Str("testcase", path).Msg("new testcase")
	s.numGenerated++
}

// saveStats appends one CSV row per emission.
func (s *Solver) saveStats() {
	if s.statsFile == "" {
		return
	}
	f, err := os.OpenFile(s.statsFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		logger.Warn().Err(err).Msg("unable to open stats file")
		return
	}
	defer f.Close()
	fmt.Fprintf(f, "%d,%f,%f,%d,%d,%d,%d\n",
		s.numGenerated-1,
		s.checkTime.Seconds(),
		s.syncTime.Seconds(),
		s.skipped,
		s.added,
		s.symbolicVars,
		s.concreteVars)
}

// parseConstSym splits a constant-vs-symbolic comparison into its operands
// with the relation oriented symbolic-side-first.
func parseConstSym(e *Expr) (Kind, *Expr, *Expr) {
	for i := 0; i < 2; i++ {
		sym, con := e.Child(i), e.Child(1-i)
		if !sym.IsConstant() && con.IsConstant() {
			if i == 0 {
				return e.Kind(), sym, con
			}
			return SwapKind(e.Kind()), sym, con
		}
	}
	logFatal("constraint is not const-vs-symbolic: %s", e)
	return Invalid, nil, nil
}

// canonicalExpr strips the outermost additive constant off e: Add(C, X)
// yields (X, C) and Sub(C, X) yields (Neg X, C); anything else is already
// canonical.
func canonicalExpr(b Builder, e *Expr) (*Expr, uint64) {
	switch e.Kind() {
	case Add:
		if e.Left().IsConstant() {
			return e.Right(), e.Left().Value()
		}
	case Sub:
		if e.Left().IsConstant() {
			return b.CreateNeg(e.Right()), e.Left().Value()
		}
	}
	return e, 0
}
