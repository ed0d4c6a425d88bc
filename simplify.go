package gsym

// commonSimplifyBuilder applies operator-agnostic algebraic rewrites that
// do not depend on which operand is symbolic: identity and absorbing
// elements, extract/concat fusion, byte-aligned constant shifts.
type commonSimplifyBuilder struct {
	chain
}

func (b *commonSimplifyBuilder) CreateConcat(l, r *Expr) *Expr {
	// C(E(e, y, a), E(e, x, b)) with x+b == y ==> E(e, x, a+b)
	if l.Kind() == Extract && r.Kind() == Extract {
		if l.Child(0) == r.Child(0) && r.Offset()+r.Bits() == l.Offset() {
			return b.CreateExtract(l.Child(0), r.Offset(), r.Bits()+l.Bits())
		}
	}

	// C(E(Ext(e), |e|, k), e) ==> E(Ext(e), 0, |e|+k)
	// Shallow equality only; the same extract can live at two addresses and
	// deep comparison is expensive.
	if l.Kind() == Extract {
		if ext := l.Child(0); ext.Kind() == ZExt || ext.Kind() == SExt {
			if l.Offset() == r.Bits() && EqualShallow(ext.Child(0), r) {
				return b.CreateExtract(ext, 0, l.Bits()+r.Bits())
			}
		}
	}

	return b.next.CreateConcat(l, r)
}

func (b *commonSimplifyBuilder) CreateExtract(e *Expr, off, width uint) *Expr {
	if e.Kind() == Concat {
		// Skip the low half entirely.
		if off >= e.Right().Bits() {
			return b.CreateExtract(e.Left(), off-e.Right().Bits(), width)
		}

		// Skip the high half entirely.
		if off+width <= e.Right().Bits() {
			return b.CreateExtract(e.Right(), off, width)
		}

		// E(C(C_0, y)) ==> C(E(C_0), E(y))
		if e.Left().IsConstant() {
			return b.CreateConcat(
				b.CreateExtract(e.Left(), 0, width-e.Right().Bits()+off),
				b.CreateExtract(e.Right(), off, e.Right().Bits()-off))
		}
	} else if e.Kind() == ZExt || e.Kind() == SExt {
		// E(Ext(x), i, w) with i+w <= |x| ==> E(x, i, w)
		if e.Child(0).Bits() >= off+width {
			return b.CreateExtract(e.Child(0), off, width)
		}

		// E(ZExt(x), i, w) with i >= |x| ==> 0
		if e.Kind() == ZExt && off >= e.Child(0).Bits() {
			return b.CreateConstant(0, width)
		}
	} else if e.Kind() == Extract {
		// E(E(x, i1, _), i2, w) ==> E(x, i1+i2, w)
		return b.CreateExtract(e.Child(0), e.Offset()+off, width)
	}

	if off == 0 && e.Bits() == width {
		return e
	}
	return b.next.CreateExtract(e, off, width)
}

func (b *commonSimplifyBuilder) CreateZExt(e *Expr, width uint) *Expr {
	// Allow shrinking.
	if e.Bits() > width {
		return b.CreateExtract(e, 0, width)
	}
	if e.Bits() == width {
		return e
	}
	return b.next.CreateZExt(e, width)
}

func (b *commonSimplifyBuilder) CreateAdd(l, r *Expr) *Expr {
	if l.IsZero() {
		return r
	}
	return b.next.CreateAdd(l, r)
}

func (b *commonSimplifyBuilder) CreateMul(l, r *Expr) *Expr {
	// 0 * X ==> 0
	if l.IsZero() {
		return l
	}
	// 1 * X ==> X
	if l.IsOne() {
		return r
	}
	return b.next.CreateMul(l, r)
}

func (b *commonSimplifyBuilder) simplifyAnd(l, r *Expr) *Expr {
	// 0 & X ==> 0
	if l.IsZero() {
		return l
	}
	// 11...1b & X ==> X
	if l.IsAllOnes() {
		return r
	}
	return nil
}

func (b *commonSimplifyBuilder) CreateAnd(l, r *Expr) *Expr {
	if simplified := b.simplifyAnd(l, r); simplified != nil {
		return simplified
	}

	// Split a constant mask along a concat boundary when one half absorbs,
	// e.g. 0x00ff0000 & concat(x, y).
	if l.IsConstant() && r.Kind() == Concat {
		rl, rr := r.Left(), r.Right()
		ll := b.CreateExtract(l, rr.Bits(), rl.Bits())
		if left := b.simplifyAnd(ll, rl); left != nil {
			return b.CreateConcat(left, b.CreateAnd(b.CreateExtract(l, 0, rr.Bits()), rr))
		}
	}

	return b.next.CreateAnd(l, r)
}

func (b *commonSimplifyBuilder) simplifyOr(l, r *Expr) *Expr {
	// 0 | X ==> X
	if l.IsZero() {
		return r
	}
	// 11...1b | X ==> 11...1b
	if l.IsAllOnes() {
		return l
	}
	return nil
}

func (b *commonSimplifyBuilder) CreateOr(l, r *Expr) *Expr {
	if simplified := b.simplifyOr(l, r); simplified != nil {
		return simplified
	}

	if l.IsConstant() && r.Kind() == Concat {
		rl, rr := r.Left(), r.Right()
		ll := b.CreateExtract(l, rr.Bits(), rl.Bits())
		if left := b.simplifyOr(ll, rl); left != nil {
			return b.CreateConcat(left, b.CreateOr(b.CreateExtract(l, 0, rr.Bits()), rr))
		}
	}

	return b.next.CreateOr(l, r)
}

func (b *commonSimplifyBuilder) simplifyXor(l, r *Expr) *Expr {
	// 0 ^ X ==> X
	if l.IsZero() {
		return r
	}
	return nil
}

func (b *commonSimplifyBuilder) CreateXor(l, r *Expr) *Expr {
	if simplified := b.simplifyXor(l, r); simplified != nil {
		return simplified
	}

	if l.IsConstant() && r.Kind() == Concat {
		rl, rr := r.Left(), r.Right()
		ll := b.CreateExtract(l, rr.Bits(), rl.Bits())
		if left := b.simplifyXor(ll, rl); left != nil {
			return b.CreateConcat(left, b.CreateXor(b.CreateExtract(l, 0, rr.Bits()), rr))
		}
	}

	return b.next.CreateXor(l, r)
}

func (b *commonSimplifyBuilder) CreateShl(l, r *Expr) *Expr {
	if l.IsZero() {
		return l
	}

	if r.IsConstant() {
		rval := uint(r.Value())
		if r.Value() == 0 {
			return l
		}

		// X << k with k >= |X| ==> 0
		if r.Value() >= uint64(l.Bits()) {
			return b.CreateConstant(0, l.Bits())
		}

		// (bvshl x k) -> (concat (extract [n-1-k:0] x) bv0:k), byte
		// granularity only.
		if rval%8 == 0 {
			return b.CreateConcat(
				b.CreateExtract(l, 0, l.Bits()-rval),
				b.CreateConstant(0, rval))
		}
	}

	return b.next.CreateShl(l, r)
}

func (b *commonSimplifyBuilder) CreateLShr(l, r *Expr) *Expr {
	if l.IsZero() {
		return l
	}

	if r.IsConstant() {
		rval := uint(r.Value())
		if r.Value() == 0 {
			return l
		}

		if r.Value() >= uint64(l.Bits()) {
			return b.CreateConstant(0, l.Bits())
		}

		// (bvlshr x k) -> (concat bv0:k (extract [n-1:k] x)), byte
		// granularity only.
		if rval%8 == 0 {
			return b.CreateConcat(
				b.CreateConstant(0, rval),
				b.CreateExtract(l, rval, l.Bits()-rval))
		}
	}

	return b.next.CreateLShr(l, r)
}

func (b *commonSimplifyBuilder) CreateAShr(l, r *Expr) *Expr {
	if r.IsConstant() && r.Value() == 0 {
		return l
	}
	return b.next.CreateAShr(l, r)
}

func (b *commonSimplifyBuilder) CreateEqual(l, r *Expr) *Expr {
	if l.Kind() == Bool {
		if l.BoolValue() {
			return r
		}
		return b.CreateLNot(r)
	}
	return b.next.CreateEqual(l, r)
}

// constantFoldingBuilder reduces operators over fully constant inputs using
// fixed-width two's-complement semantics matching the bit-vector theory.
// Division by zero is never folded; the caller keeps it symbolic.
type constantFoldingBuilder struct {
	chain
}

func bothConstant(l, r *Expr) bool { return l.IsConstant() && r.IsConstant() }

func bothBool(l, r *Expr) bool { return l.Kind() == Bool && r.Kind() == Bool }

func (b *constantFoldingBuilder) foldBinary(l, r *Expr, fn func(lv, rv uint64, width uint) uint64) *Expr {
	assert(l.Bits() == r.Bits(), "fold: width mismatch: %d != %d", l.Bits(), r.Bits())
	return b.CreateConstant(fn(l.Value(), r.Value(), l.Bits()), l.Bits())
}

func (b *constantFoldingBuilder) foldCompare(l, r *Expr, fn func(lv, rv uint64, width uint) bool) *Expr {
	assert(l.Bits() == r.Bits(), "fold: width mismatch: %d != %d", l.Bits(), r.Bits())
	return b.CreateBool(fn(l.Value(), r.Value(), l.Bits()))
}

func (b *constantFoldingBuilder) CreateConcat(l, r *Expr) *Expr {
	// Widths beyond one word stay symbolic.
	if bothConstant(l, r) && l.Bits()+r.Bits() <= Width64 {
		return b.CreateConstant(l.Value()<<r.Bits()|r.Value(), l.Bits()+r.Bits())
	}
	return b.next.CreateConcat(l, r)
}

func (b *constantFoldingBuilder) CreateExtract(e *Expr, off, width uint) *Expr {
	if e.IsConstant() {
		return b.CreateConstant(e.Value()>>off, width)
	}
	return b.next.CreateExtract(e, off, width)
}

func (b *constantFoldingBuilder) CreateZExt(e *Expr, width uint) *Expr {
	if e.IsConstant() {
		return b.CreateConstant(e.Value(), width)
	}
	return b.next.CreateZExt(e, width)
}

func (b *constantFoldingBuilder) CreateSExt(e *Expr, width uint) *Expr {
	if e.IsConstant() {
		return b.CreateConstant(uint64(signExtend(e.Value(), e.Bits())), width)
	}
	return b.next.CreateSExt(e, width)
}

func (b *constantFoldingBuilder) CreateAdd(l, r *Expr) *Expr {
	if bothConstant(l, r) {
		return b.foldBinary(l, r, func(lv, rv uint64, _ uint) uint64 { return lv + rv })
	}
	return b.next.CreateAdd(l, r)
}

func (b *constantFoldingBuilder) CreateSub(l, r *Expr) *Expr {
	if bothConstant(l, r) {
		return b.foldBinary(l, r, func(lv, rv uint64, _ uint) uint64 { return lv - rv })
	}
	return b.next.CreateSub(l, r)
}

func (b *constantFoldingBuilder) CreateMul(l, r *Expr) *Expr {
	if bothConstant(l, r) {
		return b.foldBinary(l, r, func(lv, rv uint64, _ uint) uint64 { return lv * rv })
	}
	return b.next.CreateMul(l, r)
}

func (b *constantFoldingBuilder) CreateUDiv(l, r *Expr) *Expr {
	if bothConstant(l, r) && r.Value() != 0 {
		return b.foldBinary(l, r, func(lv, rv uint64, _ uint) uint64 { return lv / rv })
	}
	return b.next.CreateUDiv(l, r)
}

func (b *constantFoldingBuilder) CreateSDiv(l, r *Expr) *Expr {
	if bothConstant(l, r) && r.Value() != 0 {
		return b.foldBinary(l, r, func(lv, rv uint64, width uint) uint64 {
			sl, sr := signExtend(lv, width), signExtend(rv, width)
			if sr == -1 {
				return uint64(-sl) // MinInt / -1 wraps
			}
			return uint64(sl / sr)
		})
	}
	return b.next.CreateSDiv(l, r)
}

func (b *constantFoldingBuilder) CreateURem(l, r *Expr) *Expr {
	if bothConstant(l, r) && r.Value() != 0 {
		return b.foldBinary(l, r, func(lv, rv uint64, _ uint) uint64 { return lv % rv })
	}
	return b.next.CreateURem(l, r)
}

func (b *constantFoldingBuilder) CreateSRem(l, r *Expr) *Expr {
	if bothConstant(l, r) && r.Value() != 0 {
		return b.foldBinary(l, r, func(lv, rv uint64, width uint) uint64 {
			sl, sr := signExtend(lv, width), signExtend(rv, width)
			if sr == -1 {
				return 0
			}
			return uint64(sl % sr)
		})
	}
	return b.next.CreateSRem(l, r)
}

func (b *constantFoldingBuilder) CreateNeg(e *Expr) *Expr {
	if e.IsConstant() {
		return b.CreateConstant(-e.Value(), e.Bits())
	}
	return b.next.CreateNeg(e)
}

func (b *constantFoldingBuilder) CreateNot(e *Expr) *Expr {
	if e.IsConstant() {
		return b.CreateConstant(^e.Value(), e.Bits())
	}
	return b.next.CreateNot(e)
}

func (b *constantFoldingBuilder) CreateAnd(l, r *Expr) *Expr {
	if bothConstant(l, r) {
		return b.foldBinary(l, r, func(lv, rv uint64, _ uint) uint64 { return lv & rv })
	}
	return b.next.CreateAnd(l, r)
}

func (b *constantFoldingBuilder) CreateOr(l, r *Expr) *Expr {
	if bothConstant(l, r) {
		return b.foldBinary(l, r, func(lv, rv uint64, _ uint) uint64 { return lv | rv })
	}
	return b.next.CreateOr(l, r)
}

func (b *constantFoldingBuilder) CreateXor(l, r *Expr) *Expr {
	if bothConstant(l, r) {
		return b.foldBinary(l, r, func(lv, rv uint64, _ uint) uint64 { return lv ^ rv })
	}
	return b.next.CreateXor(l, r)
}

func (b *constantFoldingBuilder) CreateShl(l, r *Expr) *Expr {
	if bothConstant(l, r) {
		return b.foldBinary(l, r, func(lv, rv uint64, width uint) uint64 {
			if rv >= uint64(width) {
				return 0
			}
			return lv << rv
		})
	}
	return b.next.CreateShl(l, r)
}

func (b *constantFoldingBuilder) CreateLShr(l, r *Expr) *Expr {
	if bothConstant(l, r) {
		return b.foldBinary(l, r, func(lv, rv uint64, width uint) uint64 {
			if rv >= uint64(width) {
				return 0
			}
			return lv >> rv
		})
	}
	return b.next.CreateLShr(l, r)
}

func (b *constantFoldingBuilder) CreateAShr(l, r *Expr) *Expr {
	if bothConstant(l, r) {
		return b.foldBinary(l, r, func(lv, rv uint64, width uint) uint64 {
			if rv >= uint64(width) {
				rv = uint64(width) - 1
			}
			return uint64(signExtend(lv, width) >> rv)
		})
	}
	return b.next.CreateAShr(l, r)
}

func (b *constantFoldingBuilder) CreateEqual(l, r *Expr) *Expr {
	if bothConstant(l, r) {
		return b.foldCompare(l, r, func(lv, rv uint64, _ uint) bool { return lv == rv })
	}
	if bothBool(l, r) {
		return b.CreateBool(l.BoolValue() == r.BoolValue())
	}
	return b.next.CreateEqual(l, r)
}

func (b *constantFoldingBuilder) CreateDistinct(l, r *Expr) *Expr {
	if bothConstant(l, r) {
		return b.foldCompare(l, r, func(lv, rv uint64, _ uint) bool { return lv != rv })
	}
	if bothBool(l, r) {
		return b.CreateBool(l.BoolValue() != r.BoolValue())
	}
	return b.next.CreateDistinct(l, r)
}

func (b *constantFoldingBuilder) CreateUlt(l, r *Expr) *Expr {
	if bothConstant(l, r) {
		return b.foldCompare(l, r, func(lv, rv uint64, _ uint) bool { return lv < rv })
	}
	return b.next.CreateUlt(l, r)
}

func (b *constantFoldingBuilder) CreateUle(l, r *Expr) *Expr {
	if bothConstant(l, r) {
		return b.foldCompare(l, r, func(lv, rv uint64, _ uint) bool { return lv <= rv })
	}
	return b.next.CreateUle(l, r)
}

func (b *constantFoldingBuilder) CreateUgt(l, r *Expr) *Expr {
	if bothConstant(l, r) {
		return b.foldCompare(l, r, func(lv, rv uint64, _ uint) bool { return lv > rv })
	}
	return b.next.CreateUgt(l, r)
}

func (b *constantFoldingBuilder) CreateUge(l, r *Expr) *Expr {
	if bothConstant(l, r) {
		return b.foldCompare(l, r, func(lv, rv uint64, _ uint) bool { return lv >= rv })
	}
	return b.next.CreateUge(l, r)
}

func (b *constantFoldingBuilder) CreateSlt(l, r *Expr) *Expr {
	if bothConstant(l, r) {
		return b.foldCompare(l, r, func(lv, rv uint64, width uint) bool {
			return signExtend(lv, width) < signExtend(rv, width)
		})
	}
	return b.next.CreateSlt(l, r)
}

func (b *constantFoldingBuilder) CreateSle(l, r *Expr) *Expr {
	if bothConstant(l, r) {
		return b.foldCompare(l, r, func(lv, rv uint64, width uint) bool {
			return signExtend(lv, width) <= signExtend(rv, width)
		})
	}
	return b.next.CreateSle(l, r)
}

func (b *constantFoldingBuilder) CreateSgt(l, r *Expr) *Expr {
	if bothConstant(l, r) {
		return b.foldCompare(l, r, func(lv, rv uint64, width uint) bool {
			return signExtend(lv, width) > signExtend(rv, width)
		})
	}
	return b.next.CreateSgt(l, r)
}

func (b *constantFoldingBuilder) CreateSge(l, r *Expr) *Expr {
	if bothConstant(l, r) {
		return b.foldCompare(l, r, func(lv, rv uint64, width uint) bool {
			return signExtend(lv, width) >= signExtend(rv, width)
		})
	}
	return b.next.CreateSge(l, r)
}

func (b *constantFoldingBuilder) CreateLOr(l, r *Expr) *Expr {
	if bothBool(l, r) {
		return b.CreateBool(l.BoolValue() || r.BoolValue())
	}
	return b.next.CreateLOr(l, r)
}

func (b *constantFoldingBuilder) CreateLAnd(l, r *Expr) *Expr {
	if bothBool(l, r) {
		return b.CreateBool(l.BoolValue() && r.BoolValue())
	}
	return b.next.CreateLAnd(l, r)
}

func (b *constantFoldingBuilder) CreateLNot(e *Expr) *Expr {
	if e.Kind() == Bool {
		return b.CreateBool(!e.BoolValue())
	}
	return b.next.CreateLNot(e)
}

func (b *constantFoldingBuilder) CreateIte(cond, t, f *Expr) *Expr {
	if cond.Kind() == Bool {
		if cond.BoolValue() {
			return t
		}
		return f
	}
	return b.next.CreateIte(cond, t, f)
}
