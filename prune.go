package gsym

// pruneBuilder concretizes expressions built while the current call-stack
// context is uninteresting, keeping the DAG small in hot paths. Comparisons
// are never pruned so path constraints stay symbolic.
type pruneBuilder struct {
	chain
	cs *CallStackManager
	in InputSource
}

func (b *pruneBuilder) filter(ref *Expr) *Expr {
	b.cs.UpdateBitmap()
	if b.cs.IsInteresting() {
		return ref
	}
	return ref.Evaluate(b.in)
}

func (b *pruneBuilder) CreateZExt(e *Expr, width uint) *Expr {
	return b.filter(b.next.CreateZExt(e, width))
}

func (b *pruneBuilder) CreateSExt(e *Expr, width uint) *Expr {
	return b.filter(b.next.CreateSExt(e, width))
}

func (b *pruneBuilder) CreateAdd(l, r *Expr) *Expr  { return b.filter(b.next.CreateAdd(l, r)) }
func (b *pruneBuilder) CreateSub(l, r *Expr) *Expr  { return b.filter(b.next.CreateSub(l, r)) }
func (b *pruneBuilder) CreateMul(l, r *Expr) *Expr  { return b.filter(b.next.CreateMul(l, r)) }
func (b *pruneBuilder) CreateUDiv(l, r *Expr) *Expr { return b.filter(b.next.CreateUDiv(l, r)) }
func (b *pruneBuilder) CreateSDiv(l, r *Expr) *Expr { return b.filter(b.next.CreateSDiv(l, r)) }
func (b *pruneBuilder) CreateURem(l, r *Expr) *Expr { return b.filter(b.next.CreateURem(l, r)) }
func (b *pruneBuilder) CreateSRem(l, r *Expr) *Expr { return b.filter(b.next.CreateSRem(l, r)) }
func (b *pruneBuilder) CreateNeg(e *Expr) *Expr     { return b.filter(b.next.CreateNeg(e)) }

func (b *pruneBuilder) CreateNot(e *Expr) *Expr     { return b.filter(b.next.CreateNot(e)) }
func (b *pruneBuilder) CreateAnd(l, r *Expr) *Expr  { return b.filter(b.next.CreateAnd(l, r)) }
func (b *pruneBuilder) CreateOr(l, r *Expr) *Expr   { return b.filter(b.next.CreateOr(l, r)) }
func (b *pruneBuilder) CreateXor(l, r *Expr) *Expr  { return b.filter(b.next.CreateXor(l, r)) }
func (b *pruneBuilder) CreateShl(l, r *Expr) *Expr  { return b.filter(b.next.CreateShl(l, r)) }
func (b *pruneBuilder) CreateLShr(l, r *Expr) *Expr { return b.filter(b.next.CreateLShr(l, r)) }
func (b *pruneBuilder) CreateAShr(l, r *Expr) *Expr { return b.filter(b.next.CreateAShr(l, r)) }

func (b *pruneBuilder) CreateLOr(l, r *Expr) *Expr  { return b.filter(b.next.CreateLOr(l, r)) }
func (b *pruneBuilder) CreateLAnd(l, r *Expr) *Expr { return b.filter(b.next.CreateLAnd(l, r)) }
func (b *pruneBuilder) CreateLNot(e *Expr) *Expr    { return b.filter(b.next.CreateLNot(e)) }

func (b *pruneBuilder) CreateIte(cond, t, f *Expr) *Expr {
	return b.filter(b.next.CreateIte(cond, t, f))
}
