package gsym_test

import (
	"testing"

	"github.com/gosymlab/gsym"
)

func newBuilder() gsym.Builder {
	return gsym.NewSymbolicBuilder(gsym.NewReadRegistry())
}

func TestKind_String(t *testing.T) {
	t.Run("Known", func(t *testing.T) {
		if s := gsym.Add.String(); s != "add" {
			t.Fatalf("unexpected string: %s", s)
		}
	})
	t.Run("Unknown", func(t *testing.T) {
		if s := gsym.Kind(100).String(); s != "Kind<100>" {
			t.Fatalf("unexpected string: %s", s)
		}
	})
}

func TestKind_IsCompare(t *testing.T) {
	if !gsym.Ult.IsCompare() {
		t.Fatal("expected true")
	} else if gsym.Sub.IsCompare() {
		t.Fatal("expected false")
	}
}

func TestSwapKind(t *testing.T) {
	for _, tt := range []struct {
		in, out gsym.Kind
	}{
		{gsym.Ult, gsym.Ugt},
		{gsym.Ule, gsym.Uge},
		{gsym.Ugt, gsym.Ult},
		{gsym.Uge, gsym.Ule},
		{gsym.Slt, gsym.Sgt},
		{gsym.Sle, gsym.Sge},
		{gsym.Equal, gsym.Equal},
		{gsym.Distinct, gsym.Distinct},
	} {
		if k := gsym.SwapKind(tt.in); k != tt.out {
			t.Fatalf("SwapKind(%s)=%s, want %s", tt.in, k, tt.out)
		}
	}
}

func TestNegateKind(t *testing.T) {
	for _, tt := range []struct {
		in, out gsym.Kind
	}{
		{gsym.Equal, gsym.Distinct},
		{gsym.Ult, gsym.Uge},
		{gsym.Ule, gsym.Ugt},
		{gsym.Slt, gsym.Sge},
		{gsym.Sge, gsym.Slt},
	} {
		if k := gsym.NegateKind(tt.in); k != tt.out {
			t.Fatalf("NegateKind(%s)=%s, want %s", tt.in, k, tt.out)
		}
	}
	if gsym.IsNegatableKind(gsym.Add) {
		t.Fatal("expected false")
	}
}

func TestExpr_Width(t *testing.T) {
	b := newBuilder()

	t.Run("Constant", func(t *testing.T) {
		if w := b.CreateConstant(0, 8).Bits(); w != 8 {
			t.Fatalf("unexpected width: %d", w)
		}
	})
	t.Run("Read", func(t *testing.T) {
		if w := b.CreateRead(0).Bits(); w != 8 {
			t.Fatalf("unexpected width: %d", w)
		}
	})
	t.Run("Concat", func(t *testing.T) {
		e := b.CreateConcat(b.CreateRead(0), b.CreateRead(1))
		if w := e.Bits(); w != 16 {
			t.Fatalf("unexpected width: %d", w)
		}
	})
	t.Run("Extract", func(t *testing.T) {
		e := b.CreateExtract(b.CreateConcat(b.CreateRead(0), b.CreateRead(1)), 4, 8)
		if w := e.Bits(); w != 8 {
			t.Fatalf("unexpected width: %d", w)
		}
	})
	t.Run("Compare", func(t *testing.T) {
		e := b.CreateUlt(b.CreateRead(0), b.CreateRead(1))
		if w := e.Bits(); w != gsym.WidthBool {
			t.Fatalf("unexpected width: %d", w)
		}
	})
	t.Run("ZExt", func(t *testing.T) {
		if w := b.CreateZExt(b.CreateRead(0), 32).Bits(); w != 32 {
			t.Fatalf("unexpected width: %d", w)
		}
	})
}

func TestExpr_Hash(t *testing.T) {
	b := newBuilder()

	t.Run("ShallowEqualImpliesEqualHash", func(t *testing.T) {
		r0, r1 := b.CreateRead(0), b.CreateRead(1)
		x := b.CreateAdd(r0, r1)
		y := b.CreateAdd(r0, r1)
		if x != y {
			t.Fatal("expected cached identity")
		}
		if x.Hash() != y.Hash() {
			t.Fatal("hash mismatch")
		}
	})

	t.Run("PayloadDistinguishes", func(t *testing.T) {
		x := b.CreateConstant(1, 8)
		y := b.CreateConstant(2, 8)
		if gsym.EqualShallow(x, y) {
			t.Fatal("expected inequality")
		}
	})
}

func TestExpr_EqualShallow(t *testing.T) {
	reads := gsym.NewReadRegistry()
	b1 := gsym.NewSymbolicBuilder(reads)
	b2 := gsym.NewSymbolicBuilder(reads)

	// Two chains over one read registry build structurally identical nodes
	// at different addresses.
	x := b1.CreateAdd(b1.CreateRead(0), b1.CreateRead(1))
	y := b2.CreateAdd(b2.CreateRead(0), b2.CreateRead(1))
	if x == y {
		t.Fatal("distinct caches should not share nodes")
	}
	if !gsym.EqualShallow(x, y) {
		t.Fatal("expected shallow equality")
	}
	if !gsym.EqualDeep(x, y) {
		t.Fatal("expected deep equality")
	}
}

func TestExpr_Deps(t *testing.T) {
	b := newBuilder()

	t.Run("Read", func(t *testing.T) {
		deps := b.CreateRead(7).Deps()
		if deps.Len() != 1 || !deps.Contains(7) {
			t.Fatalf("unexpected deps: %s", deps)
		}
	})

	t.Run("UnionOfChildren", func(t *testing.T) {
		e := b.CreateAdd(
			b.CreateZExt(b.CreateRead(1), 16),
			b.CreateConcat(b.CreateRead(3), b.CreateRead(5)))
		got := e.Deps().Slice()
		want := []int{1, 3, 5}
		if len(got) != len(want) {
			t.Fatalf("unexpected deps: %v", got)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("unexpected deps: %v", got)
			}
		}
	})

	t.Run("ConstantEmpty", func(t *testing.T) {
		if n := b.CreateConstant(1, 8).Deps().Len(); n != 0 {
			t.Fatalf("unexpected deps len: %d", n)
		}
	})
}

func TestExpr_Concreteness(t *testing.T) {
	b := newBuilder()

	t.Run("ConstantConcrete", func(t *testing.T) {
		if !b.CreateConstant(1, 8).IsConcrete() {
			t.Fatal("expected concrete")
		}
	})

	t.Run("ReadSymbolic", func(t *testing.T) {
		if b.CreateRead(0).IsConcrete() {
			t.Fatal("expected symbolic")
		}
	})

	t.Run("PropagatesFromChildren", func(t *testing.T) {
		e := b.CreateAdd(b.CreateZExt(b.CreateRead(0), 16), b.CreateConstant(1, 16))
		if e.IsConcrete() {
			t.Fatal("expected symbolic")
		}
	})

	t.Run("ConcretizeThenSymbolize", func(t *testing.T) {
		reads := gsym.NewReadRegistry()
		bb := gsym.NewSymbolicBuilder(reads)
		read := bb.CreateRead(0)
		e := bb.CreateAdd(bb.CreateZExt(read, 16), bb.CreateConstant(1, 16))

		read.Concretize()
		if !e.IsConcrete() {
			t.Fatal("expected parent to concretize")
		}

		read.Symbolize()
		if e.IsConcrete() {
			t.Fatal("expected parent to symbolize")
		}
	})
}

func TestExpr_Evaluate(t *testing.T) {
	in := gsym.ByteInput{0x41, 0x02}
	b := newBuilder()

	t.Run("AddZExt", func(t *testing.T) {
		e := b.CreateAdd(
			b.CreateZExt(b.CreateRead(0), 16),
			b.CreateConstant(0x0001, 16))
		got := e.Evaluate(in)
		if got.Kind() != gsym.Constant || got.Value() != 0x0042 || got.Bits() != 16 {
			t.Fatalf("unexpected evaluation: %s", got)
		}
	})

	t.Run("Compare", func(t *testing.T) {
		e := b.CreateUlt(b.CreateRead(0), b.CreateConstant(0x50, 8))
		got := e.Evaluate(in)
		if got.Kind() != gsym.Bool || !got.BoolValue() {
			t.Fatalf("unexpected evaluation: %s", got)
		}
	})

	t.Run("Ite", func(t *testing.T) {
		cond := b.CreateUlt(b.CreateRead(1), b.CreateConstant(0x01, 8))
		e := b.CreateIte(cond, b.CreateConstant(7, 8), b.CreateConstant(9, 8))
		if e.Kind() == gsym.Constant {
			// Already folded; nothing to evaluate.
			t.Skip("folded at build time")
		}
		got := e.Evaluate(in)
		if got.Kind() != gsym.Constant || got.Value() != 9 {
			t.Fatalf("unexpected evaluation: %s", got)
		}
	})
}

func TestIsRelational(t *testing.T) {
	b := newBuilder()
	r0, r1 := b.CreateRead(0), b.CreateRead(1)

	cmp := b.CreateUlt(r0, r1)
	if !gsym.IsRelational(cmp) {
		t.Fatal("expected relational")
	}
	if !gsym.IsRelational(b.CreateLAnd(cmp, b.CreateUle(r0, r1))) {
		t.Fatal("expected relational")
	}
	if !gsym.IsRelational(b.CreateLNot(cmp)) {
		t.Fatal("expected relational")
	}
	if gsym.IsRelational(b.CreateAdd(r0, r1)) {
		t.Fatal("expected non-relational")
	}
}

func TestExpr_String(t *testing.T) {
	b := newBuilder()
	e := b.CreateAdd(b.CreateConstant(1, 8), b.CreateRead(0))
	if s := e.String(); s != "(add (const 0x1 8) (read 0))" {
		t.Fatalf("unexpected string: %s", s)
	}
}

func TestExpr_CountLeadingZeros(t *testing.T) {
	b := newBuilder()

	t.Run("Constant", func(t *testing.T) {
		if n := b.CreateConstant(0x0f, 8).CountLeadingZeros(); n != 4 {
			t.Fatalf("unexpected count: %d", n)
		}
		if n := b.CreateConstant(0, 8).CountLeadingZeros(); n != 8 {
			t.Fatalf("unexpected count: %d", n)
		}
	})

	t.Run("ZExt", func(t *testing.T) {
		if n := b.CreateZExt(b.CreateRead(0), 32).CountLeadingZeros(); n != 24 {
			t.Fatalf("unexpected count: %d", n)
		}
	})

	t.Run("Concat", func(t *testing.T) {
		e := b.CreateConcat(b.CreateConstant(0, 8), b.CreateRead(0))
		if n := e.CountLeadingZeros(); n != 8 {
			t.Fatalf("unexpected count: %d", n)
		}
	})
}
