package gsym

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/bits"
	"weak"

	"github.com/cespare/xxhash/v2"
)

// Kind identifies the operator of an expression node.
type Kind int

// Expression kinds.
const (
	Bool Kind = iota
	Constant
	Read
	Concat
	Extract

	ZExt
	SExt

	// Arithmetic
	Add
	Sub
	Mul
	UDiv
	SDiv
	URem
	SRem
	Neg

	// Bit
	Not
	And
	Or
	Xor
	Shl
	LShr
	AShr

	// Compare
	Equal
	Distinct
	Ult
	Ule
	Ugt
	Uge
	Slt
	Sle
	Sgt
	Sge

	// Logical
	LOr
	LAnd
	LNot

	// Special
	Ite

	Invalid
)

var kindNames = [...]string{
	Bool:     "bool",
	Constant: "const",
	Read:     "read",
	Concat:   "concat",
	Extract:  "extract",
	ZExt:     "zext",
	SExt:     "sext",
	Add:      "add",
	Sub:      "sub",
	Mul:      "mul",
	UDiv:     "udiv",
	SDiv:     "sdiv",
	URem:     "urem",
	SRem:     "srem",
	Neg:      "neg",
	Not:      "not",
	And:      "and",
	Or:       "or",
	Xor:      "xor",
	Shl:      "shl",
	LShr:     "lshr",
	AShr:     "ashr",
	Equal:    "eq",
	Distinct: "ne",
	Ult:      "ult",
	Ule:      "ule",
	Ugt:      "ugt",
	Uge:      "uge",
	Slt:      "slt",
	Sle:      "sle",
	Sgt:      "sgt",
	Sge:      "sge",
	LOr:      "lor",
	LAnd:     "land",
	LNot:     "lnot",
	Ite:      "ite",
}

// String returns the string representation of the kind.
func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) && kindNames[k] != "" {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind<%d>", int(k))
}

// IsCompare returns true if k is a comparison operator.
func (k Kind) IsCompare() bool {
	return k >= Equal && k <= Sge
}

// IsCommutative returns true if operand order does not matter for k.
func (k Kind) IsCommutative() bool {
	switch k {
	case Add, Mul, And, Or, Xor, Equal, Distinct, LOr, LAnd:
		return true
	default:
		return false
	}
}

// SwapKind returns the comparison that holds when the operands of k are
// swapped. Non-ordering kinds map to themselves.
func SwapKind(k Kind) Kind {
	switch k {
	case Ult:
		return Ugt
	case Ule:
		return Uge
	case Ugt:
		return Ult
	case Uge:
		return Ule
	case Slt:
		return Sgt
	case Sle:
		return Sge
	case Sgt:
		return Slt
	case Sge:
		return Sle
	default:
		return k
	}
}

// NegateKind returns the comparison equivalent to the logical negation of k.
func NegateKind(k Kind) Kind {
	switch k {
	case Equal:
		return Distinct
	case Distinct:
		return Equal
	case Ult:
		return Uge
	case Ule:
		return Ugt
	case Ugt:
		return Ule
	case Uge:
		return Ult
	case Slt:
		return Sge
	case Sle:
		return Sgt
	case Sgt:
		return Sle
	case Sge:
		return Slt
	default:
		return Invalid
	}
}

// IsNegatableKind returns true if NegateKind is defined for k.
func IsNegatableKind(k Kind) bool {
	return NegateKind(k) != Invalid
}

// Expr is a node of the symbolic expression DAG. Nodes are shared between
// parents; all mutation happens on the single runtime thread.
type Expr struct {
	kind     Kind
	bits     uint
	children []*Expr

	// Kind-specific payload.
	value   uint64 // Constant, masked to bits
	boolVal bool   // Bool
	index   int    // Read
	off     uint   // Extract offset

	concrete    bool
	invalidated bool

	hash   uint32
	hashed bool
	depth  int
	lz     int // leading zeros, -1 until computed

	deps       *DependencySet
	uses       []weak.Pointer[Expr]
	evaluation *Expr
	ranges     [2]*RangeSet // indexed by isUnsigned

	smt   interface{}
	smtOK bool
}

// newExpr allocates a node for kind with the given children. Concreteness
// follows from the children; Read is handled by newReadExpr.
func newExpr(kind Kind, width uint, children ...*Expr) *Expr {
	e := &Expr{
		kind:     kind,
		bits:     width,
		children: children,
		concrete: true,
		lz:       -1,
	}
	for _, c := range children {
		if !c.concrete {
			e.concrete = false
		}
	}
	return e
}

func newConstantExpr(value uint64, width uint) *Expr {
	assert(width >= 1 && width <= Width64, "constant width out of range: %d", width)
	e := newExpr(Constant, width)
	e.value = value & widthMask(width)
	return e
}

func newBoolExpr(value bool) *Expr {
	e := newExpr(Bool, WidthBool)
	e.boolVal = value
	return e
}

func newReadExpr(index int) *Expr {
	e := newExpr(Read, Width8)
	e.index = index
	e.concrete = false
	e.deps = NewDependencySet(index)
	return e
}

func newExtractExpr(src *Expr, off, width uint) *Expr {
	assert(width > 0, "extract width cannot be zero")
	assert(off+width <= src.bits, "extract out of bounds: %d+%d > %d", off, width, src.bits)
	e := newExpr(Extract, width, src)
	e.off = off
	return e
}

func newBinaryExpr(kind Kind, width uint, l, r *Expr) *Expr {
	assert(l.bits == r.bits, "%s: width mismatch: %d != %d", kind, l.bits, r.bits)
	return newExpr(kind, width, l, r)
}

// Kind returns the operator kind of the node.
func (e *Expr) Kind() Kind { return e.kind }

// Bits returns the bit width of the node.
func (e *Expr) Bits() uint { return e.bits }

// Bytes returns the width of the node in bytes.
func (e *Expr) Bytes() uint {
	assert(e.bits%8 == 0, "width not byte aligned: %d", e.bits)
	return e.bits / 8
}

// NumChildren returns the number of children of the node.
func (e *Expr) NumChildren() int { return len(e.children) }

// Child returns the i-th child of the node.
func (e *Expr) Child(i int) *Expr { return e.children[i] }

// Left returns the first child of the node.
func (e *Expr) Left() *Expr { return e.children[0] }

// Right returns the second child of the node.
func (e *Expr) Right() *Expr { return e.children[1] }

// Value returns the constant payload. Only meaningful for Constant nodes.
func (e *Expr) Value() uint64 { return e.value }

// BoolValue returns the boolean payload. Only meaningful for Bool nodes.
func (e *Expr) BoolValue() bool { return e.boolVal }

// Index returns the input byte index. Only meaningful for Read nodes.
func (e *Expr) Index() int { return e.index }

// Offset returns the extraction offset. Only meaningful for Extract nodes.
func (e *Expr) Offset() uint { return e.off }

// IsConcrete reports whether every leaf under the node is currently bound to
// a concrete value.
func (e *Expr) IsConcrete() bool { return e.concrete }

// IsInvalidated reports whether cached derived state (SMT form, evaluation)
// is stale.
func (e *Expr) IsInvalidated() bool { return e.invalidated }

// IsConstant returns true for Constant nodes.
func (e *Expr) IsConstant() bool { return e.kind == Constant }

// IsBool returns true for Bool nodes.
func (e *Expr) IsBool() bool { return e.kind == Bool }

// IsZero returns true for a Constant zero.
func (e *Expr) IsZero() bool { return e.kind == Constant && e.value == 0 }

// IsOne returns true for a Constant one.
func (e *Expr) IsOne() bool { return e.kind == Constant && e.value == 1 }

// IsAllOnes returns true if every bit of a Constant is set.
func (e *Expr) IsAllOnes() bool {
	return e.kind == Constant && e.value == widthMask(e.bits)
}

// ActiveBits returns the number of bits required to represent a Constant.
func (e *Expr) ActiveBits() uint {
	assert(e.kind == Constant, "active bits of non-constant")
	return e.bits - e.CountLeadingZeros()
}

// addUse records a weak back-reference from e to a parent so state changes
// can propagate upward without keeping the parent alive.
func (e *Expr) addUse(parent *Expr) {
	e.uses = append(e.uses, weak.Make(parent))
}

// addUses registers parent as a user of each of its children.
func addUses(parent *Expr) {
	for _, c := range parent.children {
		c.addUse(parent)
	}
}

// Hash returns the 32-bit shape hash of the node. Two shallowly equal nodes
// hash identically.
func (e *Expr) Hash() uint32 {
	if !e.hashed {
		var buf [16]byte
		d := xxhash.New()
		binary.LittleEndian.PutUint32(buf[0:4], uint32(e.kind))
		binary.LittleEndian.PutUint32(buf[4:8], uint32(e.bits))
		_, _ = d.Write(buf[0:8])
		switch e.kind {
		case Constant:
			binary.LittleEndian.PutUint64(buf[0:8], e.value)
			_, _ = d.Write(buf[0:8])
		case Bool:
			if e.boolVal {
				buf[0] = 1
			} else {
				buf[0] = 0
			}
			_, _ = d.Write(buf[0:1])
		case Read:
			binary.LittleEndian.PutUint64(buf[0:8], uint64(e.index))
			_, _ = d.Write(buf[0:8])
		case Extract:
			binary.LittleEndian.PutUint32(buf[0:4], uint32(e.off))
			_, _ = d.Write(buf[0:4])
		}
		for _, c := range e.children {
			binary.LittleEndian.PutUint32(buf[0:4], c.Hash())
			_, _ = d.Write(buf[0:4])
		}
		e.hash = uint32(d.Sum64())
		e.hashed = true
	}
	return e.hash
}

// equalMetadata reports whether two nodes agree on everything except the
// identity of their children.
func equalMetadata(l, r *Expr) bool {
	if l.Hash() != r.Hash() || l.kind != r.kind || l.bits != r.bits || len(l.children) != len(r.children) {
		return false
	}
	switch l.kind {
	case Constant:
		return l.value == r.value
	case Bool:
		return l.boolVal == r.boolVal
	case Read:
		return l.index == r.index
	case Extract:
		return l.off == r.off
	default:
		return true
	}
}

// EqualShallow reports whether two nodes have equal metadata and identical
// child references.
func EqualShallow(l, r *Expr) bool {
	if !equalMetadata(l, r) {
		return false
	}
	for i := range l.children {
		if l.children[i] != r.children[i] {
			return false
		}
	}
	return true
}

// EqualDeep reports whether two nodes are structurally equal.
func EqualDeep(l, r *Expr) bool {
	if l == r {
		return true
	}
	if !equalMetadata(l, r) {
		return false
	}
	for i := range l.children {
		if !EqualDeep(l.children[i], r.children[i]) {
			return false
		}
	}
	return true
}

// Depth returns the height of the node, truncated at kMaxDepth.
func (e *Expr) Depth() int {
	if e.depth == 0 {
		d := 1
		for _, c := range e.children {
			if cd := c.Depth() + 1; cd > d {
				d = cd
			}
		}
		if d > kMaxDepth {
			d = kMaxDepth
		}
		e.depth = d
	}
	return e.depth
}

// Deps returns the set of input byte indexes the node transitively reads.
func (e *Expr) Deps() *DependencySet {
	if e.deps == nil {
		deps := NewDependencySet()
		for _, c := range e.children {
			deps = deps.Union(c.Deps())
		}
		e.deps = deps
	}
	return e.deps
}

// CountLeadingZeros returns the number of provably-zero high bits.
func (e *Expr) CountLeadingZeros() uint {
	if e.lz < 0 {
		e.lz = int(e.countLeadingZeros())
	}
	return uint(e.lz)
}

func (e *Expr) countLeadingZeros() uint {
	switch e.kind {
	case Constant:
		if e.value == 0 {
			return e.bits
		}
		return uint(bits.LeadingZeros64(e.value)) - (Width64 - e.bits)
	case Concat:
		n := e.Left().CountLeadingZeros()
		if n == e.Left().bits {
			n += e.Right().CountLeadingZeros()
		}
		return n
	case ZExt:
		return e.bits - e.Child(0).bits
	default:
		return 0
	}
}

// isZeroBit reports whether bit i of e is provably zero.
func isZeroBit(e *Expr, i uint) bool {
	switch e.kind {
	case Constant:
		return e.value&(uint64(1)<<i) == 0
	case Concat:
		if i < e.Right().bits {
			return isZeroBit(e.Right(), i)
		}
		return isZeroBit(e.Left(), i-e.Right().bits)
	case ZExt:
		if i >= e.Child(0).bits {
			return true
		}
		return isZeroBit(e.Child(0), i)
	}
	return i >= e.bits-e.CountLeadingZeros()
}

// invalidate marks cached derived state stale and drops it. Idempotent; it
// does not walk parents. Symbolize and Concretize propagate only when a
// node's concreteness flips, so deep DAGs stay linear.
func (e *Expr) invalidate() {
	e.invalidated = true
	e.smtOK = false
	e.evaluation = nil
}

// Symbolize makes the node symbolic and propagates the change to every live
// parent.
func (e *Expr) Symbolize() {
	e.invalidate()
	if e.concrete {
		e.concrete = false
		for _, ref := range e.uses {
			if p := ref.Value(); p != nil {
				p.Symbolize()
			}
		}
	}
}

// Concretize makes the node concrete and asks every live parent to follow
// if all of its children are now concrete.
func (e *Expr) Concretize() {
	e.invalidate()
	if !e.concrete {
		e.concrete = true
		for _, ref := range e.uses {
			if p := ref.Value(); p != nil {
				p.tryConcretize()
			}
		}
	}
}

// tryConcretize concretizes the node iff every child is concrete.
func (e *Expr) tryConcretize() {
	if e.concrete {
		return
	}
	for _, c := range e.children {
		if !c.concrete {
			return
		}
	}
	e.Concretize()
}

// SMTCache returns the cached materialized solver form, if still valid.
func (e *Expr) SMTCache() (interface{}, bool) {
	if !e.smtOK {
		return nil, false
	}
	return e.smt, true
}

// SetSMTCache stores the materialized solver form and clears staleness.
func (e *Expr) SetSMTCache(v interface{}) {
	e.smt = v
	e.smtOK = true
	e.invalidated = false
}

// RangeSetFor returns the accumulated range set for the given signedness,
// or nil if none has been recorded.
func (e *Expr) RangeSetFor(unsigned bool) *RangeSet {
	return e.ranges[boolIndex(unsigned)]
}

func (e *Expr) setRangeSet(unsigned bool, rs *RangeSet) {
	e.ranges[boolIndex(unsigned)] = rs
}

func boolIndex(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Evaluate reduces the node to a Constant or Bool using the concrete input
// bytes. The result is cached until the node is invalidated.
func (e *Expr) Evaluate(in InputSource) *Expr {
	if e.evaluation == nil {
		e.evaluation = e.evaluateOnce(in)
	}
	return e.evaluation
}

func (e *Expr) evaluateOnce(in InputSource) *Expr {
	switch e.kind {
	case Constant, Bool:
		return e
	case Read:
		return newConstantExpr(uint64(in.InputByte(e.index)), Width8)
	case Concat:
		return checkEvaluated(evalBuilder.CreateConcat(e.Left().Evaluate(in), e.Right().Evaluate(in)))
	case Extract:
		return checkEvaluated(evalBuilder.CreateExtract(e.Child(0).Evaluate(in), e.off, e.bits))
	case ZExt:
		return checkEvaluated(evalBuilder.CreateZExt(e.Child(0).Evaluate(in), e.bits))
	case SExt:
		return checkEvaluated(evalBuilder.CreateSExt(e.Child(0).Evaluate(in), e.bits))
	case Neg, Not, LNot:
		return checkEvaluated(CreateUnaryExpr(evalBuilder, e.kind, e.Child(0).Evaluate(in)))
	case Ite:
		return checkEvaluated(evalBuilder.CreateIte(
			e.Child(0).Evaluate(in), e.Child(1).Evaluate(in), e.Child(2).Evaluate(in)))
	default:
		return checkEvaluated(CreateBinaryExpr(evalBuilder, e.kind, e.Left().Evaluate(in), e.Right().Evaluate(in)))
	}
}

func checkEvaluated(e *Expr) *Expr {
	assert(e.kind == Constant || e.kind == Bool, "evaluation did not fold: %s", e)
	return e
}

// IsRelational reports whether e is a boolean combination of comparisons.
func IsRelational(e *Expr) bool {
	switch {
	case e.kind.IsCompare():
		return true
	case e.kind == LOr || e.kind == LAnd:
		return IsRelational(e.Left()) && IsRelational(e.Right())
	case e.kind == LNot:
		return IsRelational(e.Child(0))
	default:
		return false
	}
}

// isConstSym reports whether e is a comparison between exactly one constant
// and one symbolic operand, the shape the range engine accepts.
func isConstSym(e *Expr) bool {
	if !e.kind.IsCompare() || e.NumChildren() != 2 {
		return false
	}
	l, r := e.Left(), e.Right()
	return (l.IsConstant() && !r.IsConstant()) || (!l.IsConstant() && r.IsConstant())
}

// String returns the s-expression representation of the node.
func (e *Expr) String() string {
	var buf bytes.Buffer
	e.write(&buf)
	return buf.String()
}

func (e *Expr) write(buf *bytes.Buffer) {
	switch e.kind {
	case Constant:
		fmt.Fprintf(buf, "(const %#x %d)", e.value, e.bits)
	case Bool:
		fmt.Fprintf(buf, "(bool %v)", e.boolVal)
	case Read:
		fmt.Fprintf(buf, "(read %d)", e.index)
	case Extract:
		fmt.Fprintf(buf, "(extract ")
		e.Child(0).write(buf)
		fmt.Fprintf(buf, " %d %d)", e.off, e.bits)
	case ZExt, SExt:
		fmt.Fprintf(buf, "(%s ", e.kind)
		e.Child(0).write(buf)
		fmt.Fprintf(buf, " %d)", e.bits)
	default:
		fmt.Fprintf(buf, "(%s", e.kind)
		for _, c := range e.children {
			buf.WriteByte(' ')
			c.write(buf)
		}
		buf.WriteByte(')')
	}
}

// widthMask returns a mask of width low bits.
func widthMask(width uint) uint64 {
	if width >= Width64 {
		return ^uint64(0)
	}
	return (uint64(1) << width) - 1
}

// signExtend interprets the low width bits of v as a signed value.
func signExtend(v uint64, width uint) int64 {
	shift := Width64 - width
	return int64(v<<shift) >> shift
}
