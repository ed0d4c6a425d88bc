package gsym_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/gosymlab/gsym"
)

func TestDependencySet(t *testing.T) {
	t.Run("Union", func(t *testing.T) {
		a := gsym.NewDependencySet(1, 3)
		b := gsym.NewDependencySet(2, 3)
		got := a.Union(b).Slice()
		if diff := cmp.Diff([]int{1, 2, 3}, got); diff != "" {
			t.Fatal(diff)
		}
	})

	t.Run("UnionDoesNotMutate", func(t *testing.T) {
		a := gsym.NewDependencySet(1)
		_ = a.Union(gsym.NewDependencySet(2))
		if diff := cmp.Diff([]int{1}, a.Slice()); diff != "" {
			t.Fatal(diff)
		}
	})

	t.Run("AscendingOrder", func(t *testing.T) {
		s := gsym.NewDependencySet(9, 1, 5)
		if diff := cmp.Diff([]int{1, 5, 9}, s.Slice()); diff != "" {
			t.Fatal(diff)
		}
	})
}

func TestDependencyForest(t *testing.T) {
	build := func() (gsym.Builder, *gsym.DependencyForest) {
		return newBuilder(), gsym.NewDependencyForest(8)
	}
	eq := func(b gsym.Builder, read int, v uint64) *gsym.Expr {
		return b.CreateEqual(b.CreateConstant(v, 8), b.CreateRead(read))
	}

	t.Run("NodeReachableFromEveryDep", func(t *testing.T) {
		b, f := build()
		n := b.CreateEqual(
			b.CreateConstant(3, 16),
			b.CreateAdd(b.CreateZExt(b.CreateRead(1), 16), b.CreateZExt(b.CreateRead(2), 16)))
		f.AddNode(n)

		for _, i := range []int{1, 2} {
			tree := f.Find(i)
			if len(tree.Nodes()) != 1 || tree.Nodes()[0] != n {
				t.Fatalf("node not reachable from slot %d", i)
			}
		}
	})

	t.Run("DisjointNodesGetDistinctTrees", func(t *testing.T) {
		b, f := build()
		f.AddNode(eq(b, 0, 1))
		f.AddNode(eq(b, 1, 2))
		if f.Find(0) == f.Find(1) {
			t.Fatal("expected distinct trees")
		}
	})

	t.Run("BridgingNodeMergesTrees", func(t *testing.T) {
		b, f := build()
		f.AddNode(eq(b, 0, 1))
		f.AddNode(eq(b, 1, 2))

		bridge := b.CreateEqual(
			b.CreateConstant(3, 16),
			b.CreateAdd(b.CreateZExt(b.CreateRead(0), 16), b.CreateZExt(b.CreateRead(1), 16)))
		f.AddNode(bridge)

		t0, t1 := f.Find(0), f.Find(1)
		if t0 != t1 {
			t.Fatal("expected a single merged tree")
		}
		if len(t0.Nodes()) != 3 {
			t.Fatalf("unexpected node count: %d", len(t0.Nodes()))
		}
		if diff := cmp.Diff([]int{0, 1}, t0.Deps().Slice()); diff != "" {
			t.Fatal(diff)
		}
	})

	t.Run("LazyResize", func(t *testing.T) {
		b, f := build()
		f.AddNode(eq(b, 100, 1))
		tree := f.Find(100)
		if len(tree.Nodes()) != 1 {
			t.Fatalf("unexpected node count: %d", len(tree.Nodes()))
		}
	})

	t.Run("AppendOrderPreserved", func(t *testing.T) {
		b, f := build()
		n1 := eq(b, 0, 1)
		n2 := eq(b, 0, 2)
		f.AddNode(n1)
		f.AddNode(n2)
		nodes := f.Find(0).Nodes()
		if nodes[0] != n1 || nodes[1] != n2 {
			t.Fatal("nodes out of order")
		}
	})
}
