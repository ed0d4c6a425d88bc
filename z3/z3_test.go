package z3_test

import (
	"testing"
	"time"

	"github.com/gosymlab/gsym"
	"github.com/gosymlab/gsym/z3"
)

func newSolver(tb testing.TB, input gsym.ByteInput) (*z3.Solver, gsym.Builder) {
	tb.Helper()
	s := z3.NewSolver(10 * time.Second)
	s.SetInput(input)
	tb.Cleanup(func() {
		if err := s.Close(); err != nil {
			tb.Fatal(err)
		}
	})
	return s, gsym.NewSymbolicBuilder(gsym.NewReadRegistry())
}

func TestSolver_CheckSat(t *testing.T) {
	s, b := newSolver(t, gsym.ByteInput{0x00})

	// read(0) == 0x41
	e := b.CreateEqual(b.CreateRead(0), b.CreateConstant(0x41, 8))
	if err := s.Assert(e); err != nil {
		t.Fatal(err)
	}

	result, err := s.Check()
	if err != nil {
		t.Fatal(err)
	} else if result != gsym.Sat {
		t.Fatalf("unexpected result: %s", result)
	}

	model, err := s.Model()
	if err != nil {
		t.Fatal(err)
	} else if model[0] != 0x41 {
		t.Fatalf("unexpected model: %v", model)
	}
}

func TestSolver_CheckUnsat(t *testing.T) {
	s, b := newSolver(t, gsym.ByteInput{0x00})

	read := b.CreateRead(0)
	if err := s.Assert(b.CreateEqual(read, b.CreateConstant(0x41, 8))); err != nil {
		t.Fatal(err)
	}
	if err := s.Assert(b.CreateEqual(read, b.CreateConstant(0x42, 8))); err != nil {
		t.Fatal(err)
	}

	if result, err := s.Check(); err != nil {
		t.Fatal(err)
	} else if result != gsym.Unsat {
		t.Fatalf("unexpected result: %s", result)
	}
}

func TestSolver_Reset(t *testing.T) {
	s, b := newSolver(t, gsym.ByteInput{0x00})

	read := b.CreateRead(0)
	if err := s.Assert(b.CreateEqual(read, b.CreateConstant(0x41, 8))); err != nil {
		t.Fatal(err)
	}
	if err := s.Assert(b.CreateEqual(read, b.CreateConstant(0x42, 8))); err != nil {
		t.Fatal(err)
	}
	s.Reset()
	if err := s.Assert(b.CreateEqual(read, b.CreateConstant(0x42, 8))); err != nil {
		t.Fatal(err)
	}

	if result, err := s.Check(); err != nil {
		t.Fatal(err)
	} else if result != gsym.Sat {
		t.Fatalf("unexpected result: %s", result)
	}
}

func TestSolver_PushPop(t *testing.T) {
	s, b := newSolver(t, gsym.ByteInput{0x00})

	read := b.CreateRead(0)
	if err := s.Assert(b.CreateUlt(read, b.CreateConstant(0x10, 8))); err != nil {
		t.Fatal(err)
	}

	s.Push()
	if err := s.Assert(b.CreateEqual(read, b.CreateConstant(0x41, 8))); err != nil {
		t.Fatal(err)
	}
	if result, err := s.Check(); err != nil {
		t.Fatal(err)
	} else if result != gsym.Unsat {
		t.Fatalf("unexpected result: %s", result)
	}
	s.Pop()

	if result, err := s.Check(); err != nil {
		t.Fatal(err)
	} else if result != gsym.Sat {
		t.Fatalf("unexpected result: %s", result)
	}
}

func TestSolver_EvalUint64(t *testing.T) {
	s, b := newSolver(t, gsym.ByteInput{0x00, 0x00})

	sum := b.CreateAdd(
		b.CreateZExt(b.CreateRead(0), 16),
		b.CreateZExt(b.CreateRead(1), 16))
	if err := s.Assert(b.CreateEqual(sum, b.CreateConstant(0x80, 16))); err != nil {
		t.Fatal(err)
	}

	if result, err := s.Check(); err != nil {
		t.Fatal(err)
	} else if result != gsym.Sat {
		t.Fatalf("unexpected result: %s", result)
	}

	v, ok, err := s.EvalUint64(sum)
	if err != nil {
		t.Fatal(err)
	} else if !ok || v != 0x80 {
		t.Fatalf("unexpected evaluation: %#x (%v)", v, ok)
	}
}

func TestSolver_ConcretizedReadBindsToInput(t *testing.T) {
	s, b := newSolver(t, gsym.ByteInput{0x07})

	// A concretized read materializes as its observed input byte, so
	// requiring any other value is unsat.
	read := b.CreateRead(0)
	read.Concretize()
	defer read.Symbolize()

	if err := s.Assert(b.CreateEqual(read, b.CreateConstant(0x08, 8))); err != nil {
		t.Fatal(err)
	}
	if result, err := s.Check(); err != nil {
		t.Fatal(err)
	} else if result != gsym.Unsat {
		t.Fatalf("unexpected result: %s", result)
	}
}
