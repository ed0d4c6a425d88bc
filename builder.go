package gsym

// Builder is one stage of the expression construction pipeline. Each method
// either rewrites its inputs and re-enters the pipeline, or delegates
// unchanged to the next stage. Stages are composed into a fixed chain at
// startup; apart from the cache and the call-stack bitmap they are
// stateless.
type Builder interface {
	SetNext(next Builder)

	CreateBool(v bool) *Expr
	CreateConstant(value uint64, width uint) *Expr
	CreateRead(off int) *Expr
	CreateConcat(l, r *Expr) *Expr
	CreateExtract(e *Expr, off, width uint) *Expr
	CreateZExt(e *Expr, width uint) *Expr
	CreateSExt(e *Expr, width uint) *Expr

	CreateAdd(l, r *Expr) *Expr
	CreateSub(l, r *Expr) *Expr
	CreateMul(l, r *Expr) *Expr
	CreateUDiv(l, r *Expr) *Expr
	CreateSDiv(l, r *Expr) *Expr
	CreateURem(l, r *Expr) *Expr
	CreateSRem(l, r *Expr) *Expr
	CreateNeg(e *Expr) *Expr

	CreateNot(e *Expr) *Expr
	CreateAnd(l, r *Expr) *Expr
	CreateOr(l, r *Expr) *Expr
	CreateXor(l, r *Expr) *Expr
	CreateShl(l, r *Expr) *Expr
	CreateLShr(l, r *Expr) *Expr
	CreateAShr(l, r *Expr) *Expr

	CreateEqual(l, r *Expr) *Expr
	CreateDistinct(l, r *Expr) *Expr
	CreateUlt(l, r *Expr) *Expr
	CreateUle(l, r *Expr) *Expr
	CreateUgt(l, r *Expr) *Expr
	CreateUge(l, r *Expr) *Expr
	CreateSlt(l, r *Expr) *Expr
	CreateSle(l, r *Expr) *Expr
	CreateSgt(l, r *Expr) *Expr
	CreateSge(l, r *Expr) *Expr

	CreateLOr(l, r *Expr) *Expr
	CreateLAnd(l, r *Expr) *Expr
	CreateLNot(e *Expr) *Expr

	CreateIte(cond, t, f *Expr) *Expr
}

// NewSymbolicBuilder composes the full simplification pipeline:
// Commutative -> Symbolic -> CommonSimplify -> ConstantFolding -> Cache ->
// Base.
func NewSymbolicBuilder(reads *ReadRegistry) Builder {
	commu := &commutativeBuilder{}
	symbolic := &symbolicBuilder{}
	common := &commonSimplifyBuilder{}
	folding := &constantFoldingBuilder{}
	cache := &cacheBuilder{cache: NewExprCache()}
	base := &baseBuilder{reads: reads}

	commu.SetNext(symbolic)
	symbolic.SetNext(common)
	common.SetNext(folding)
	folding.SetNext(cache)
	cache.SetNext(base)
	return commu
}

// NewPruneBuilder composes the pipeline with the pruning stage between
// constant folding and the cache. Expressions built in uninteresting
// call-stack contexts collapse to their concrete evaluation.
func NewPruneBuilder(reads *ReadRegistry, cs *CallStackManager, in InputSource) Builder {
	commu := &commutativeBuilder{}
	symbolic := &symbolicBuilder{}
	common := &commonSimplifyBuilder{}
	folding := &constantFoldingBuilder{}
	prune := &pruneBuilder{cs: cs, in: in}
	cache := &cacheBuilder{cache: NewExprCache()}
	base := &baseBuilder{reads: reads}

	commu.SetNext(symbolic)
	symbolic.SetNext(common)
	common.SetNext(folding)
	folding.SetNext(prune)
	prune.SetNext(cache)
	cache.SetNext(base)
	return commu
}

// NewConstantFoldingBuilder composes the minimal chain used for concrete
// evaluation: ConstantFolding -> Base.
func NewConstantFoldingBuilder() Builder {
	folding := &constantFoldingBuilder{}
	base := &baseBuilder{reads: NewReadRegistry()}
	folding.SetNext(base)
	return folding
}

// evalBuilder folds fully concrete operand sets during Expr.Evaluate.
var evalBuilder = NewConstantFoldingBuilder()

// CreateBinaryExpr dispatches kind to the matching binary constructor of b.
// Passing a non-binary kind is a fatal misuse.
func CreateBinaryExpr(b Builder, kind Kind, l, r *Expr) *Expr {
	switch kind {
	case Add:
		return b.CreateAdd(l, r)
	case Sub:
		return b.CreateSub(l, r)
	case Mul:
		return b.CreateMul(l, r)
	case UDiv:
		return b.CreateUDiv(l, r)
	case SDiv:
		return b.CreateSDiv(l, r)
	case URem:
		return b.CreateURem(l, r)
	case SRem:
		return b.CreateSRem(l, r)
	case And:
		return b.CreateAnd(l, r)
	case Or:
		return b.CreateOr(l, r)
	case Xor:
		return b.CreateXor(l, r)
	case Shl:
		return b.CreateShl(l, r)
	case LShr:
		return b.CreateLShr(l, r)
	case AShr:
		return b.CreateAShr(l, r)
	case Equal:
		return b.CreateEqual(l, r)
	case Distinct:
		return b.CreateDistinct(l, r)
	case Ult:
		return b.CreateUlt(l, r)
	case Ule:
		return b.CreateUle(l, r)
	case Ugt:
		return b.CreateUgt(l, r)
	case Uge:
		return b.CreateUge(l, r)
	case Slt:
		return b.CreateSlt(l, r)
	case Sle:
		return b.CreateSle(l, r)
	case Sgt:
		return b.CreateSgt(l, r)
	case Sge:
		return b.CreateSge(l, r)
	case LOr:
		return b.CreateLOr(l, r)
	case LAnd:
		return b.CreateLAnd(l, r)
	default:
		logFatal("non-binary kind: %s", kind)
		return nil
	}
}

// CreateUnaryExpr dispatches kind to the matching unary constructor of b.
func CreateUnaryExpr(b Builder, kind Kind, e *Expr) *Expr {
	switch kind {
	case Neg:
		return b.CreateNeg(e)
	case Not:
		return b.CreateNot(e)
	case LNot:
		return b.CreateLNot(e)
	default:
		logFatal("non-unary kind: %s", kind)
		return nil
	}
}

// CreateTrue returns the boolean true expression.
func CreateTrue(b Builder) *Expr { return b.CreateBool(true) }

// CreateFalse returns the boolean false expression.
func CreateFalse(b Builder) *Expr { return b.CreateBool(false) }

// CreateMsb extracts the most significant bit of e.
func CreateMsb(b Builder, e *Expr) *Expr {
	return b.CreateExtract(e, e.Bits()-1, 1)
}

// CreateLsb extracts the least significant bit of e.
func CreateLsb(b Builder, e *Expr) *Expr {
	return b.CreateExtract(e, 0, 1)
}

// CreateTrunc truncates e to its width low bits.
func CreateTrunc(b Builder, e *Expr, width uint) *Expr {
	return b.CreateExtract(e, 0, width)
}

// BitToBool converts a 1-bit vector to a boolean expression.
func BitToBool(b Builder, e *Expr) *Expr {
	assert(e.Bits() == 1, "bit-to-bool on %d-bit expression", e.Bits())
	return b.CreateEqual(e, b.CreateConstant(1, 1))
}

// BoolToBit widens a boolean to a bit vector of the given width.
func BoolToBit(b Builder, e *Expr, width uint) *Expr {
	return b.CreateIte(e, b.CreateConstant(1, width), b.CreateConstant(0, width))
}

// CreateConcatAll folds the expressions left to right into one concat.
func CreateConcatAll(b Builder, exprs ...*Expr) *Expr {
	assert(len(exprs) > 0, "concat of empty list")
	e := exprs[0]
	for _, o := range exprs[1:] {
		e = b.CreateConcat(e, o)
	}
	return e
}

// CreateLAndAll folds the expressions left to right into one conjunction.
func CreateLAndAll(b Builder, exprs ...*Expr) *Expr {
	assert(len(exprs) > 0, "land of empty list")
	e := exprs[0]
	for _, o := range exprs[1:] {
		e = b.CreateLAnd(e, o)
	}
	return e
}

// ReadRegistry memoizes the Read expression for each input byte so that two
// reads of the same offset are the identical node. The dependency model
// relies on this.
type ReadRegistry struct {
	exprs []*Expr
}

// NewReadRegistry returns an empty registry.
func NewReadRegistry() *ReadRegistry {
	return &ReadRegistry{}
}

// Get returns the Read expression for off, creating it on first use.
func (r *ReadRegistry) Get(off int) *Expr {
	if off >= len(r.exprs) {
		grown := make([]*Expr, off+1)
		copy(grown, r.exprs)
		r.exprs = grown
	}
	if r.exprs[off] == nil {
		r.exprs[off] = newReadExpr(off)
	}
	return r.exprs[off]
}

// Lookup returns the Read expression for off, or nil if the byte was never
// read.
func (r *ReadRegistry) Lookup(off int) *Expr {
	if off >= len(r.exprs) {
		return nil
	}
	return r.exprs[off]
}

// chain provides the delegate-to-next default for every builder method.
// Stages embed it and override the operations they rewrite.
type chain struct {
	next Builder
}

func (c *chain) SetNext(next Builder) { c.next = next }

func (c *chain) CreateBool(v bool) *Expr { return c.next.CreateBool(v) }
func (c *chain) CreateConstant(value uint64, width uint) *Expr {
	return c.next.CreateConstant(value, width)
}
func (c *chain) CreateRead(off int) *Expr       { return c.next.CreateRead(off) }
func (c *chain) CreateConcat(l, r *Expr) *Expr  { return c.next.CreateConcat(l, r) }
func (c *chain) CreateExtract(e *Expr, off, width uint) *Expr {
	return c.next.CreateExtract(e, off, width)
}
func (c *chain) CreateZExt(e *Expr, width uint) *Expr { return c.next.CreateZExt(e, width) }
func (c *chain) CreateSExt(e *Expr, width uint) *Expr { return c.next.CreateSExt(e, width) }

func (c *chain) CreateAdd(l, r *Expr) *Expr  { return c.next.CreateAdd(l, r) }
func (c *chain) CreateSub(l, r *Expr) *Expr  { return c.next.CreateSub(l, r) }
func (c *chain) CreateMul(l, r *Expr) *Expr  { return c.next.CreateMul(l, r) }
func (c *chain) CreateUDiv(l, r *Expr) *Expr { return c.next.CreateUDiv(l, r) }
func (c *chain) CreateSDiv(l, r *Expr) *Expr { return c.next.CreateSDiv(l, r) }
func (c *chain) CreateURem(l, r *Expr) *Expr { return c.next.CreateURem(l, r) }
func (c *chain) CreateSRem(l, r *Expr) *Expr { return c.next.CreateSRem(l, r) }
func (c *chain) CreateNeg(e *Expr) *Expr     { return c.next.CreateNeg(e) }

func (c *chain) CreateNot(e *Expr) *Expr     { return c.next.CreateNot(e) }
func (c *chain) CreateAnd(l, r *Expr) *Expr  { return c.next.CreateAnd(l, r) }
func (c *chain) CreateOr(l, r *Expr) *Expr   { return c.next.CreateOr(l, r) }
func (c *chain) CreateXor(l, r *Expr) *Expr  { return c.next.CreateXor(l, r) }
func (c *chain) CreateShl(l, r *Expr) *Expr  { return c.next.CreateShl(l, r) }
func (c *chain) CreateLShr(l, r *Expr) *Expr { return c.next.CreateLShr(l, r) }
func (c *chain) CreateAShr(l, r *Expr) *Expr { return c.next.CreateAShr(l, r) }

func (c *chain) CreateEqual(l, r *Expr) *Expr    { return c.next.CreateEqual(l, r) }
func (c *chain) CreateDistinct(l, r *Expr) *Expr { return c.next.CreateDistinct(l, r) }
func (c *chain) CreateUlt(l, r *Expr) *Expr      { return c.next.CreateUlt(l, r) }
func (c *chain) CreateUle(l, r *Expr) *Expr      { return c.next.CreateUle(l, r) }
func (c *chain) CreateUgt(l, r *Expr) *Expr      { return c.next.CreateUgt(l, r) }
func (c *chain) CreateUge(l, r *Expr) *Expr      { return c.next.CreateUge(l, r) }
func (c *chain) CreateSlt(l, r *Expr) *Expr      { return c.next.CreateSlt(l, r) }
func (c *chain) CreateSle(l, r *Expr) *Expr      { return c.next.CreateSle(l, r) }
func (c *chain) CreateSgt(l, r *Expr) *Expr      { return c.next.CreateSgt(l, r) }
func (c *chain) CreateSge(l, r *Expr) *Expr      { return c.next.CreateSge(l, r) }

func (c *chain) CreateLOr(l, r *Expr) *Expr  { return c.next.CreateLOr(l, r) }
func (c *chain) CreateLAnd(l, r *Expr) *Expr { return c.next.CreateLAnd(l, r) }
func (c *chain) CreateLNot(e *Expr) *Expr    { return c.next.CreateLNot(e) }

func (c *chain) CreateIte(cond, t, f *Expr) *Expr { return c.next.CreateIte(cond, t, f) }

// baseBuilder allocates fresh nodes and registers parent back-references.
// It terminates every chain.
type baseBuilder struct {
	chain
	reads *ReadRegistry
}

func (b *baseBuilder) CreateBool(v bool) *Expr { return newBoolExpr(v) }

func (b *baseBuilder) CreateConstant(value uint64, width uint) *Expr {
	return newConstantExpr(value, width)
}

func (b *baseBuilder) CreateRead(off int) *Expr { return b.reads.Get(off) }

func (b *baseBuilder) CreateConcat(l, r *Expr) *Expr {
	e := newExpr(Concat, l.Bits()+r.Bits(), l, r)
	addUses(e)
	return e
}

func (b *baseBuilder) CreateExtract(e *Expr, off, width uint) *Expr {
	if off == 0 && width == e.Bits() {
		return e
	}
	ref := newExtractExpr(e, off, width)
	addUses(ref)
	return ref
}

func (b *baseBuilder) CreateZExt(e *Expr, width uint) *Expr {
	assert(width >= e.Bits(), "zext narrows: %d < %d", width, e.Bits())
	ref := newExpr(ZExt, width, e)
	addUses(ref)
	return ref
}

func (b *baseBuilder) CreateSExt(e *Expr, width uint) *Expr {
	assert(width >= e.Bits(), "sext narrows: %d < %d", width, e.Bits())
	ref := newExpr(SExt, width, e)
	addUses(ref)
	return ref
}

func (b *baseBuilder) binary(kind Kind, l, r *Expr) *Expr {
	width := l.Bits()
	if kind.IsCompare() {
		width = WidthBool
	}
	e := newBinaryExpr(kind, width, l, r)
	addUses(e)
	return e
}

func (b *baseBuilder) unary(kind Kind, src *Expr, width uint) *Expr {
	e := newExpr(kind, width, src)
	addUses(e)
	return e
}

func (b *baseBuilder) CreateAdd(l, r *Expr) *Expr  { return b.binary(Add, l, r) }
func (b *baseBuilder) CreateSub(l, r *Expr) *Expr  { return b.binary(Sub, l, r) }
func (b *baseBuilder) CreateMul(l, r *Expr) *Expr  { return b.binary(Mul, l, r) }
func (b *baseBuilder) CreateUDiv(l, r *Expr) *Expr { return b.binary(UDiv, l, r) }
func (b *baseBuilder) CreateSDiv(l, r *Expr) *Expr { return b.binary(SDiv, l, r) }
func (b *baseBuilder) CreateURem(l, r *Expr) *Expr { return b.binary(URem, l, r) }
func (b *baseBuilder) CreateSRem(l, r *Expr) *Expr { return b.binary(SRem, l, r) }
func (b *baseBuilder) CreateNeg(e *Expr) *Expr     { return b.unary(Neg, e, e.Bits()) }

func (b *baseBuilder) CreateNot(e *Expr) *Expr     { return b.unary(Not, e, e.Bits()) }
func (b *baseBuilder) CreateAnd(l, r *Expr) *Expr  { return b.binary(And, l, r) }
func (b *baseBuilder) CreateOr(l, r *Expr) *Expr   { return b.binary(Or, l, r) }
func (b *baseBuilder) CreateXor(l, r *Expr) *Expr  { return b.binary(Xor, l, r) }
func (b *baseBuilder) CreateShl(l, r *Expr) *Expr  { return b.binary(Shl, l, r) }
func (b *baseBuilder) CreateLShr(l, r *Expr) *Expr { return b.binary(LShr, l, r) }
func (b *baseBuilder) CreateAShr(l, r *Expr) *Expr { return b.binary(AShr, l, r) }

func (b *baseBuilder) CreateEqual(l, r *Expr) *Expr    { return b.binary(Equal, l, r) }
func (b *baseBuilder) CreateDistinct(l, r *Expr) *Expr { return b.binary(Distinct, l, r) }
func (b *baseBuilder) CreateUlt(l, r *Expr) *Expr      { return b.binary(Ult, l, r) }
func (b *baseBuilder) CreateUle(l, r *Expr) *Expr      { return b.binary(Ule, l, r) }
func (b *baseBuilder) CreateUgt(l, r *Expr) *Expr      { return b.binary(Ugt, l, r) }
func (b *baseBuilder) CreateUge(l, r *Expr) *Expr      { return b.binary(Uge, l, r) }
func (b *baseBuilder) CreateSlt(l, r *Expr) *Expr      { return b.binary(Slt, l, r) }
func (b *baseBuilder) CreateSle(l, r *Expr) *Expr      { return b.binary(Sle, l, r) }
func (b *baseBuilder) CreateSgt(l, r *Expr) *Expr      { return b.binary(Sgt, l, r) }
func (b *baseBuilder) CreateSge(l, r *Expr) *Expr      { return b.binary(Sge, l, r) }

func (b *baseBuilder) CreateLOr(l, r *Expr) *Expr {
	assert(l.Bits() == WidthBool && r.Bits() == WidthBool, "lor on non-boolean operands")
	return b.binary(LOr, l, r)
}

func (b *baseBuilder) CreateLAnd(l, r *Expr) *Expr {
	assert(l.Bits() == WidthBool && r.Bits() == WidthBool, "land on non-boolean operands")
	return b.binary(LAnd, l, r)
}

func (b *baseBuilder) CreateLNot(e *Expr) *Expr {
	assert(e.Bits() == WidthBool, "lnot on non-boolean operand")
	return b.unary(LNot, e, WidthBool)
}

func (b *baseBuilder) CreateIte(cond, t, f *Expr) *Expr {
	assert(cond.Bits() == WidthBool, "ite condition is not boolean")
	assert(t.Bits() == f.Bits(), "ite arm width mismatch: %d != %d", t.Bits(), f.Bits())
	e := newExpr(Ite, t.Bits(), cond, t, f)
	addUses(e)
	return e
}

// cacheBuilder interns structurally identical nodes. It sits directly above
// the base so every composite node the chain produces is de-duplicated.
type cacheBuilder struct {
	chain
	cache *ExprCache
}

// Cache exposes the underlying cache for inspection.
func (b *cacheBuilder) Cache() *ExprCache { return b.cache }

func (b *cacheBuilder) findOrInsert(e *Expr) *Expr {
	if cached := b.cache.Find(e); cached != nil {
		return cached
	}
	b.cache.Insert(e)
	return e
}

func (b *cacheBuilder) CreateConcat(l, r *Expr) *Expr {
	return b.findOrInsert(b.next.CreateConcat(l, r))
}
func (b *cacheBuilder) CreateExtract(e *Expr, off, width uint) *Expr {
	return b.findOrInsert(b.next.CreateExtract(e, off, width))
}
func (b *cacheBuilder) CreateZExt(e *Expr, width uint) *Expr {
	return b.findOrInsert(b.next.CreateZExt(e, width))
}
func (b *cacheBuilder) CreateSExt(e *Expr, width uint) *Expr {
	return b.findOrInsert(b.next.CreateSExt(e, width))
}
func (b *cacheBuilder) CreateAdd(l, r *Expr) *Expr  { return b.findOrInsert(b.next.CreateAdd(l, r)) }
func (b *cacheBuilder) CreateSub(l, r *Expr) *Expr  { return b.findOrInsert(b.next.CreateSub(l, r)) }
func (b *cacheBuilder) CreateMul(l, r *Expr) *Expr  { return b.findOrInsert(b.next.CreateMul(l, r)) }
func (b *cacheBuilder) CreateUDiv(l, r *Expr) *Expr { return b.findOrInsert(b.next.CreateUDiv(l, r)) }
func (b *cacheBuilder) CreateSDiv(l, r *Expr) *Expr { return b.findOrInsert(b.next.CreateSDiv(l, r)) }
func (b *cacheBuilder) CreateURem(l, r *Expr) *Expr { return b.findOrInsert(b.next.CreateURem(l, r)) }
func (b *cacheBuilder) CreateSRem(l, r *Expr) *Expr { return b.findOrInsert(b.next.CreateSRem(l, r)) }
func (b *cacheBuilder) CreateNeg(e *Expr) *Expr     { return b.findOrInsert(b.next.CreateNeg(e)) }
func (b *cacheBuilder) CreateNot(e *Expr) *Expr     { return b.findOrInsert(b.next.CreateNot(e)) }
func (b *cacheBuilder) CreateAnd(l, r *Expr) *Expr  { return b.findOrInsert(b.next.CreateAnd(l, r)) }
func (b *cacheBuilder) CreateOr(l, r *Expr) *Expr   { return b.findOrInsert(b.next.CreateOr(l, r)) }
func (b *cacheBuilder) CreateXor(l, r *Expr) *Expr  { return b.findOrInsert(b.next.CreateXor(l, r)) }
func (b *cacheBuilder) CreateShl(l, r *Expr) *Expr  { return b.findOrInsert(b.next.CreateShl(l, r)) }
func (b *cacheBuilder) CreateLShr(l, r *Expr) *Expr { return b.findOrInsert(b.next.CreateLShr(l, r)) }
func (b *cacheBuilder) CreateAShr(l, r *Expr) *Expr { return b.findOrInsert(b.next.CreateAShr(l, r)) }
func (b *cacheBuilder) CreateEqual(l, r *Expr) *Expr {
	return b.findOrInsert(b.next.CreateEqual(l, r))
}
func (b *cacheBuilder) CreateDistinct(l, r *Expr) *Expr {
	return b.findOrInsert(b.next.CreateDistinct(l, r))
}
func (b *cacheBuilder) CreateUlt(l, r *Expr) *Expr  { return b.findOrInsert(b.next.CreateUlt(l, r)) }
func (b *cacheBuilder) CreateUle(l, r *Expr) *Expr  { return b.findOrInsert(b.next.CreateUle(l, r)) }
func (b *cacheBuilder) CreateUgt(l, r *Expr) *Expr  { return b.findOrInsert(b.next.CreateUgt(l, r)) }
func (b *cacheBuilder) CreateUge(l, r *Expr) *Expr  { return b.findOrInsert(b.next.CreateUge(l, r)) }
func (b *cacheBuilder) CreateSlt(l, r *Expr) *Expr  { return b.findOrInsert(b.next.CreateSlt(l, r)) }
func (b *cacheBuilder) CreateSle(l, r *Expr) *Expr  { return b.findOrInsert(b.next.CreateSle(l, r)) }
func (b *cacheBuilder) CreateSgt(l, r *Expr) *Expr  { return b.findOrInsert(b.next.CreateSgt(l, r)) }
func (b *cacheBuilder) CreateSge(l, r *Expr) *Expr  { return b.findOrInsert(b.next.CreateSge(l, r)) }
func (b *cacheBuilder) CreateLOr(l, r *Expr) *Expr  { return b.findOrInsert(b.next.CreateLOr(l, r)) }
func (b *cacheBuilder) CreateLAnd(l, r *Expr) *Expr { return b.findOrInsert(b.next.CreateLAnd(l, r)) }
func (b *cacheBuilder) CreateLNot(e *Expr) *Expr    { return b.findOrInsert(b.next.CreateLNot(e)) }
func (b *cacheBuilder) CreateIte(cond, t, f *Expr) *Expr {
	return b.findOrInsert(b.next.CreateIte(cond, t, f))
}

// commutativeBuilder moves constants to the canonical side before the
// symbolic rules run. Ordering comparisons swap operands and invert the
// relation so the constant still ends up where the later stages expect it.
type commutativeBuilder struct {
	chain
}

func (b *commutativeBuilder) swapToConstLeft(l, r *Expr) (*Expr, *Expr, bool) {
	if !l.IsConstant() && r.IsConstant() {
		return r, l, true
	}
	return l, r, false
}

func (b *commutativeBuilder) CreateAdd(l, r *Expr) *Expr {
	if cl, nl, ok := b.swapToConstLeft(l, r); ok {
		return b.CreateAdd(cl, nl)
	}
	return b.next.CreateAdd(l, r)
}

func (b *commutativeBuilder) CreateSub(l, r *Expr) *Expr {
	// X - C ==> -C + X
	if !l.IsConstant() && r.IsConstant() {
		return b.CreateAdd(b.CreateNeg(r), l)
	}
	return b.next.CreateSub(l, r)
}

func (b *commutativeBuilder) CreateMul(l, r *Expr) *Expr {
	if cl, nl, ok := b.swapToConstLeft(l, r); ok {
		return b.CreateMul(cl, nl)
	}
	return b.next.CreateMul(l, r)
}

func (b *commutativeBuilder) CreateAnd(l, r *Expr) *Expr {
	if cl, nl, ok := b.swapToConstLeft(l, r); ok {
		return b.CreateAnd(cl, nl)
	}
	return b.next.CreateAnd(l, r)
}

func (b *commutativeBuilder) CreateOr(l, r *Expr) *Expr {
	if cl, nl, ok := b.swapToConstLeft(l, r); ok {
		return b.CreateOr(cl, nl)
	}
	return b.next.CreateOr(l, r)
}

func (b *commutativeBuilder) CreateXor(l, r *Expr) *Expr {
	if cl, nl, ok := b.swapToConstLeft(l, r); ok {
		return b.CreateXor(cl, nl)
	}
	return b.next.CreateXor(l, r)
}

func (b *commutativeBuilder) CreateEqual(l, r *Expr) *Expr {
	if cl, nl, ok := b.swapToConstLeft(l, r); ok {
		return b.CreateEqual(cl, nl)
	}
	return b.next.CreateEqual(l, r)
}

func (b *commutativeBuilder) CreateDistinct(l, r *Expr) *Expr {
	if cl, nl, ok := b.swapToConstLeft(l, r); ok {
		return b.CreateDistinct(cl, nl)
	}
	return b.next.CreateDistinct(l, r)
}

func (b *commutativeBuilder) CreateUlt(l, r *Expr) *Expr {
	if cl, nl, ok := b.swapToConstLeft(l, r); ok {
		return b.CreateUgt(cl, nl)
	}
	return b.next.CreateUlt(l, r)
}

func (b *commutativeBuilder) CreateUle(l, r *Expr) *Expr {
	if cl, nl, ok := b.swapToConstLeft(l, r); ok {
		return b.CreateUge(cl, nl)
	}
	return b.next.CreateUle(l, r)
}

func (b *commutativeBuilder) CreateUgt(l, r *Expr) *Expr {
	if cl, nl, ok := b.swapToConstLeft(l, r); ok {
		return b.CreateUlt(cl, nl)
	}
	return b.next.CreateUgt(l, r)
}

func (b *commutativeBuilder) CreateUge(l, r *Expr) *Expr {
	if cl, nl, ok := b.swapToConstLeft(l, r); ok {
		return b.CreateUle(cl, nl)
	}
	return b.next.CreateUge(l, r)
}

func (b *commutativeBuilder) CreateSlt(l, r *Expr) *Expr {
	if cl, nl, ok := b.swapToConstLeft(l, r); ok {
		return b.CreateSgt(cl, nl)
	}
	return b.next.CreateSlt(l, r)
}

func (b *commutativeBuilder) CreateSle(l, r *Expr) *Expr {
	if cl, nl, ok := b.swapToConstLeft(l, r); ok {
		return b.CreateSge(cl, nl)
	}
	return b.next.CreateSle(l, r)
}

func (b *commutativeBuilder) CreateSgt(l, r *Expr) *Expr {
	if cl, nl, ok := b.swapToConstLeft(l, r); ok {
		return b.CreateSlt(cl, nl)
	}
	return b.next.CreateSgt(l, r)
}

func (b *commutativeBuilder) CreateSge(l, r *Expr) *Expr {
	if cl, nl, ok := b.swapToConstLeft(l, r); ok {
		return b.CreateSle(cl, nl)
	}
	return b.next.CreateSge(l, r)
}

func (b *commutativeBuilder) CreateLOr(l, r *Expr) *Expr {
	if l.Kind() != Bool && r.Kind() == Bool {
		return b.CreateLOr(r, l)
	}
	return b.next.CreateLOr(l, r)
}

func (b *commutativeBuilder) CreateLAnd(l, r *Expr) *Expr {
	if l.Kind() != Bool && r.Kind() == Bool {
		return b.CreateLAnd(r, l)
	}
	return b.next.CreateLAnd(l, r)
}
