package gsym

import "math/bits"

// symbolicBuilder applies rewrites that depend on recognizing which operand
// is constant and on keeping the canonical (constant-outermost) form of
// additive expressions.
type symbolicBuilder struct {
	chain
}

// canEvaluateTruncated reports whether op can be re-created at a narrower
// width without changing its low bits. Only one level of nesting is
// inspected.
func canEvaluateTruncated(e *Expr, width uint, depth int) bool {
	if depth > 1 {
		return false
	}
	switch e.Kind() {
	case Mul:
		return canEvaluateTruncated(e.Left(), width, depth+1) &&
			canEvaluateTruncated(e.Right(), width, depth+1)
	case UDiv, URem:
		highBits := e.Bits() - width
		if e.Left().CountLeadingZeros() >= highBits && e.Right().CountLeadingZeros() >= highBits {
			return canEvaluateTruncated(e.Left(), width, depth+1) &&
				canEvaluateTruncated(e.Right(), width, depth+1)
		}
		return false
	case ZExt, SExt, Constant, Concat:
		return true
	default:
		return false
	}
}

// evaluateInDifferentType re-creates op at a narrower width, or returns nil
// if the operator does not distribute over truncation.
func evaluateInDifferentType(b Builder, op *Expr, off, width uint) *Expr {
	switch op.Kind() {
	case Mul, UDiv, URem:
		return CreateBinaryExpr(b, op.Kind(),
			b.CreateExtract(op.Left(), off, width),
			b.CreateExtract(op.Right(), off, width))
	default:
		return nil
	}
}

func (b *symbolicBuilder) CreateConcat(l, r *Expr) *Expr {
	// C(l, C(x, y)) with l, x constant ==> C(l|x, y)
	if r.Kind() == Concat && l.IsConstant() && r.Left().IsConstant() {
		return b.CreateConcat(b.CreateConcat(l, r.Left()), r.Right())
	}

	// C(C(x, y), z) ==> C(x, C(y, z))
	if l.Kind() == Concat {
		return b.CreateConcat(l.Left(), b.CreateConcat(l.Right(), r))
	}

	return b.next.CreateConcat(l, r)
}

func (b *symbolicBuilder) CreateExtract(e *Expr, off, width uint) *Expr {
	// Byte-wise narrowing only.
	if off == 0 && width%8 == 0 && canEvaluateTruncated(e, width, 0) {
		if narrowed := evaluateInDifferentType(b, e, off, width); narrowed != nil {
			return narrowed
		}
	}
	return b.next.CreateExtract(e, off, width)
}

// simplifyExclusive rewrites l+r or l|r as a concat of the active slices
// when no bit position can be non-zero on both sides, e.g.
// (bvor (concat x #x00) (concat #x00 y)) ==> (concat x y).
func (b *symbolicBuilder) simplifyExclusive(l, r *Expr) *Expr {
	for i := uint(0); i < l.Bits(); i++ {
		if !isZeroBit(l, i) && !isZeroBit(r, i) {
			return nil
		}
	}

	var exprs []*Expr // most significant slice first
	i := uint(0)
	for i < l.Bits() {
		prev := i
		for i < l.Bits() && isZeroBit(l, i) {
			i++
		}
		if i != prev {
			exprs = append([]*Expr{b.CreateExtract(r, prev, i-prev)}, exprs...)
		}
		prev = i
		for i < r.Bits() && isZeroBit(r, i) {
			i++
		}
		if i != prev {
			exprs = append([]*Expr{b.CreateExtract(l, prev, i-prev)}, exprs...)
		}
	}

	return CreateConcatAll(b, exprs...)
}

func (b *symbolicBuilder) CreateAdd(l, r *Expr) *Expr {
	if e := b.simplifyExclusive(l, r); e != nil {
		return e
	}

	if !r.IsConstant() {
		if l.IsConstant() {
			return b.createAddCN(l, r)
		}
		return b.createAddNN(l, r)
	}
	return b.next.CreateAdd(l, r)
}

func (b *symbolicBuilder) createAddCN(l, r *Expr) *Expr {
	switch r.Kind() {
	case Add:
		// C_0 + (C_1 + x) ==> (C_0 + C_1) + x
		if r.Left().IsConstant() {
			return b.CreateAdd(b.CreateAdd(l, r.Left()), r.Right())
		}
		// C_0 + (x + C_1) ==> (C_0 + C_1) + x
		if r.Right().IsConstant() {
			return b.CreateAdd(b.CreateAdd(l, r.Right()), r.Left())
		}
	case Sub:
		// C_0 + (C_1 - x) ==> (C_0 + C_1) - x
		if r.Left().IsConstant() {
			return b.CreateSub(b.CreateAdd(l, r.Left()), r.Right())
		}
		// C_0 + (x - C_1) ==> (C_0 - C_1) + x
		if r.Right().IsConstant() {
			return b.CreateAdd(b.CreateSub(l, r.Right()), r.Left())
		}
	}
	return b.next.CreateAdd(l, r)
}

func (b *symbolicBuilder) createAddNN(l, r *Expr) *Expr {
	if l == r {
		// x + x ==> 2 * x
		return b.CreateMul(b.CreateConstant(2, l.Bits()), l)
	}

	switch l.Kind() {
	case Add, Sub:
		// (x ± y) + z ==> z + (x ± y)
		l, r = r, l
	}

	switch r.Kind() {
	case Add:
		// x + (C_0 + y) ==> C_0 + (x + y)
		if r.Left().IsConstant() {
			return b.CreateAdd(r.Left(), b.CreateAdd(l, r.Right()))
		}
		// x + (y + C_0) ==> C_0 + (x + y)
		if r.Right().IsConstant() {
			return b.CreateAdd(r.Right(), b.CreateAdd(l, r.Left()))
		}
	case Sub:
		// x + (C_0 - y) ==> C_0 + (x - y)
		if r.Left().IsConstant() {
			return b.CreateAdd(r.Left(), b.CreateSub(l, r.Right()))
		}
		// x + (y - C_0) ==> -C_0 + (x + y)
		if r.Right().IsConstant() {
			return b.CreateAdd(b.CreateNeg(r.Right()), b.CreateAdd(l, r.Left()))
		}
	}

	return b.next.CreateAdd(l, r)
}

func (b *symbolicBuilder) CreateSub(l, r *Expr) *Expr {
	if !r.IsConstant() {
		if l.IsConstant() {
			return b.createSubCN(l, r)
		}
		return b.createSubNN(l, r)
	}
	return b.next.CreateSub(l, r)
}

func (b *symbolicBuilder) createSubCN(l, r *Expr) *Expr {
	switch r.Kind() {
	case Add:
		// C_0 - (C_1 + x) ==> (C_0 - C_1) - x
		if r.Left().IsConstant() {
			return b.CreateSub(b.CreateSub(l, r.Left()), r.Right())
		}
		// C_0 - (x + C_1) ==> (C_0 - C_1) - x
		if r.Right().IsConstant() {
			return b.CreateSub(b.CreateSub(l, r.Right()), r.Left())
		}
	case Sub:
		// C_0 - (C_1 - x) ==> (C_0 - C_1) + x
		if r.Left().IsConstant() {
			return b.CreateAdd(b.CreateSub(l, r.Left()), r.Right())
		}
		// C_0 - (x - C_1) ==> (C_0 + C_1) - x
		if r.Right().IsConstant() {
			return b.CreateSub(b.CreateAdd(l, r.Right()), r.Left())
		}
	}
	return b.next.CreateSub(l, r)
}

func (b *symbolicBuilder) createSubNN(l, r *Expr) *Expr {
	// x - x ==> 0
	if l == r {
		return b.CreateConstant(0, l.Bits())
	}

	switch l.Kind() {
	case Add:
		// (C + y) - z ==> C + (y - z)
		if l.Left().IsConstant() {
			return b.CreateAdd(l.Left(), b.CreateSub(l.Right(), r))
		}
	case Sub:
		// (C - y) - z ==> C - (y + z)
		if l.Left().IsConstant() {
			return b.CreateSub(l.Left(), b.CreateAdd(l.Right(), r))
		}
	}

	switch r.Kind() {
	case Add:
		// x - (C_0 + y) ==> -C_0 + (x - y)
		if r.Left().IsConstant() {
			return b.CreateAdd(b.CreateNeg(r.Left()), b.CreateSub(l, r.Right()))
		}
		// x - (y + C_0) ==> -C_0 + (x - y)
		if r.Right().IsConstant() {
			return b.CreateAdd(b.CreateNeg(r.Right()), b.CreateSub(l, r.Left()))
		}
	case Sub:
		// x - (C_0 - y) ==> -C_0 + (x + y)
		if r.Left().IsConstant() {
			return b.CreateAdd(b.CreateNeg(r.Left()), b.CreateAdd(l, r.Right()))
		}
		// x - (y - C_0) ==> C_0 + (x - y)
		if r.Right().IsConstant() {
			return b.CreateAdd(r.Right(), b.CreateSub(l, r.Left()))
		}
	}
	return b.next.CreateSub(l, r)
}

func (b *symbolicBuilder) CreateMul(l, r *Expr) *Expr {
	if !r.IsConstant() && l.IsConstant() {
		return b.createMulCN(l, r)
	}
	return b.next.CreateMul(l, r)
}

func (b *symbolicBuilder) createMulCN(l, r *Expr) *Expr {
	// C_0 * (C_1 * x) ==> (C_0 * C_1) * x
	if r.Kind() == Mul && r.Left().IsConstant() {
		return b.CreateMul(b.CreateMul(l, r.Left()), r.Right())
	}

	// C_0 * (C_1 + x) ==> C_0 * C_1 + C_0 * x
	if r.Kind() == Add && r.Left().IsConstant() {
		return b.CreateAdd(b.CreateMul(l, r.Left()), b.CreateMul(l, r.Right()))
	}

	return b.next.CreateMul(l, r)
}

func (b *symbolicBuilder) CreateSDiv(l, r *Expr) *Expr {
	if !l.IsConstant() && r.IsConstant() {
		return b.createSDivNC(l, r)
	}
	return b.next.CreateSDiv(l, r)
}

func (b *symbolicBuilder) createSDivNC(l, r *Expr) *Expr {
	// x /s -1 ==> -x
	if r.IsAllOnes() {
		return b.CreateNeg(l)
	}

	// SExt(x) /s y with |x| >= activeBits(y) ==> SExt(x /s y)
	// Only valid when y != -1, handled above.
	if l.Kind() == SExt {
		x := l.Child(0)
		if x.Bits() >= r.ActiveBits() {
			return b.CreateSExt(b.CreateSDiv(x, b.CreateExtract(r, 0, x.Bits())), l.Bits())
		}
	}

	// (x /s C_0) /s C_1 ==> x /s (C_0 * C_1), unless the product overflows.
	if l.Kind() == SDiv && l.Right().IsConstant() {
		if mulFitsWidth(l.Right().Value(), r.Value(), r.Bits(), true) {
			return b.CreateSDiv(l.Left(), b.CreateMul(l.Right(), r))
		}
	}
	return b.next.CreateSDiv(l, r)
}

func (b *symbolicBuilder) CreateUDiv(l, r *Expr) *Expr {
	if !l.IsConstant() && r.IsConstant() {
		return b.createUDivNC(l, r)
	}
	return b.next.CreateUDiv(l, r)
}

func (b *symbolicBuilder) createUDivNC(l, r *Expr) *Expr {
	// C(0, x) /u y with activeBits(y) <= |x| ==> C(0, x /u E(y, 0, |x|))
	if l.Kind() == Concat && l.Left().IsZero() {
		x := l.Right()
		if r.ActiveBits() <= x.Bits() {
			return b.CreateConcat(l.Left(), b.CreateUDiv(x, b.CreateExtract(r, 0, x.Bits())))
		}
	}

	// (x /u C_0) /u C_1 ==> x /u (C_0 * C_1), unless the product overflows.
	if l.Kind() == UDiv && l.Right().IsConstant() {
		if mulFitsWidth(l.Right().Value(), r.Value(), r.Bits(), false) {
			return b.CreateUDiv(l.Left(), b.CreateMul(l.Right(), r))
		}
	}
	return b.next.CreateUDiv(l, r)
}

func (b *symbolicBuilder) CreateAnd(l, r *Expr) *Expr {
	if !r.IsConstant() && !l.IsConstant() {
		return b.createAndNN(l, r)
	}
	return b.next.CreateAnd(l, r)
}

func (b *symbolicBuilder) createAndNN(l, r *Expr) *Expr {
	// x & x ==> x
	if l == r {
		return l
	}

	// C(x, y) & C(w, v) ==> C(x & w, y & v)
	if l.Kind() == Concat && r.Kind() == Concat {
		if l.Left().Bits() == r.Left().Bits() {
			return b.CreateConcat(
				b.CreateAnd(l.Left(), r.Left()),
				b.CreateAnd(l.Right(), r.Right()))
		}
	}
	return b.next.CreateAnd(l, r)
}

func (b *symbolicBuilder) CreateOr(l, r *Expr) *Expr {
	if e := b.simplifyExclusive(l, r); e != nil {
		return e
	}

	if !r.IsConstant() {
		if l.IsConstant() {
			return b.createOrCN(l, r)
		}
		return b.createOrNN(l, r)
	}
	return b.next.CreateOr(l, r)
}

func (b *symbolicBuilder) createOrCN(l, r *Expr) *Expr {
	// C_0 | C(x, y) ==> C(C_0' | x, C_0'' | y)
	if r.Kind() == Concat {
		return b.CreateConcat(
			b.CreateOr(b.CreateExtract(l, r.Right().Bits(), r.Left().Bits()), r.Left()),
			b.CreateOr(b.CreateExtract(l, 0, r.Right().Bits()), r.Right()))
	}
	return b.next.CreateOr(l, r)
}

func (b *symbolicBuilder) createOrNN(l, r *Expr) *Expr {
	// x | x ==> x
	if l == r {
		return l
	}

	// C(x, y) | C(w, v) ==> C(x | w, y | v)
	if l.Kind() == Concat && r.Kind() == Concat {
		if l.Left().Bits() == r.Left().Bits() {
			return b.CreateConcat(
				b.CreateOr(l.Left(), r.Left()),
				b.CreateOr(l.Right(), r.Right()))
		}
	}
	return b.next.CreateOr(l, r)
}

func (b *symbolicBuilder) CreateXor(l, r *Expr) *Expr {
	// x ^ x ==> 0
	if !l.IsConstant() && !r.IsConstant() && l == r {
		return b.CreateConstant(0, l.Bits())
	}
	return b.next.CreateXor(l, r)
}

func (b *symbolicBuilder) CreateEqual(l, r *Expr) *Expr {
	if l == r {
		return b.CreateBool(true)
	}
	return b.next.CreateEqual(l, r)
}

func (b *symbolicBuilder) CreateDistinct(l, r *Expr) *Expr {
	return b.CreateLNot(b.CreateEqual(l, r))
}

func (b *symbolicBuilder) CreateLOr(l, r *Expr) *Expr {
	if l.Kind() == Bool {
		if l.BoolValue() {
			return b.CreateBool(true)
		}
		return r
	}
	if r.Kind() == Bool {
		if r.BoolValue() {
			return b.CreateBool(true)
		}
		return l
	}
	return b.next.CreateLOr(l, r)
}

func (b *symbolicBuilder) CreateLAnd(l, r *Expr) *Expr {
	if l.Kind() == Bool {
		if l.BoolValue() {
			return r
		}
		return b.CreateBool(false)
	}
	if r.Kind() == Bool {
		if r.BoolValue() {
			return l
		}
		return b.CreateBool(false)
	}
	return b.next.CreateLAnd(l, r)
}

func (b *symbolicBuilder) CreateLNot(e *Expr) *Expr {
	if e.Kind() == Bool {
		return b.CreateBool(!e.BoolValue())
	}
	// lnot(lnot(x)) ==> x
	if e.Kind() == LNot {
		return e.Child(0)
	}
	return b.next.CreateLNot(e)
}

func (b *symbolicBuilder) CreateIte(cond, t, f *Expr) *Expr {
	if cond.Kind() == Bool {
		if cond.BoolValue() {
			return t
		}
		return f
	}
	// ite(lnot(c), t, f) ==> ite(c, f, t)
	if cond.Kind() == LNot {
		return b.CreateIte(cond.Child(0), f, t)
	}
	return b.next.CreateIte(cond, t, f)
}

// mulFitsWidth reports whether a*b is representable at the given width in
// the given signedness, the gate for combining nested divisions.
func mulFitsWidth(a, b uint64, width uint, signed bool) bool {
	if !signed {
		hi, lo := bits.Mul64(a, b)
		return hi == 0 && lo <= widthMask(width)
	}
	sa, sb := signExtend(a, width), signExtend(b, width)
	if sa == 0 || sb == 0 {
		return true
	}
	abs := func(x int64) uint64 {
		if x < 0 {
			return uint64(-x)
		}
		return uint64(x)
	}
	hi, lo := bits.Mul64(abs(sa), abs(sb))
	if hi != 0 {
		return false
	}
	if (sa < 0) != (sb < 0) {
		return lo <= uint64(1)<<(width-1)
	}
	return lo <= (uint64(1)<<(width-1))-1
}
