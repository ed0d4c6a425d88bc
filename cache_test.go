package gsym_test

import (
	"testing"

	"github.com/gosymlab/gsym"
)

func TestExprCache(t *testing.T) {
	t.Run("FindReturnsShallowEqual", func(t *testing.T) {
		reads := gsym.NewReadRegistry()
		b1 := gsym.NewSymbolicBuilder(reads)
		b2 := gsym.NewSymbolicBuilder(reads)

		cache := gsym.NewExprCache()
		x := b1.CreateAdd(b1.CreateRead(0), b1.CreateRead(1))
		cache.Insert(x)

		y := b2.CreateAdd(b2.CreateRead(0), b2.CreateRead(1))
		if got := cache.Find(y); got != x {
			t.Fatalf("unexpected cache result: %v", got)
		}
	})

	t.Run("FindMissReturnsNil", func(t *testing.T) {
		b := newBuilder()
		cache := gsym.NewExprCache()
		if got := cache.Find(b.CreateAdd(b.CreateRead(0), b.CreateRead(1))); got != nil {
			t.Fatalf("unexpected cache result: %v", got)
		}
	})

	t.Run("InsertGrowsByOne", func(t *testing.T) {
		b := newBuilder()
		cache := gsym.NewExprCache()
		e := b.CreateAdd(b.CreateRead(0), b.CreateRead(1))

		n := cache.Len()
		cache.Insert(e)
		if cache.Len() != n+1 {
			t.Fatalf("unexpected length: %d", cache.Len())
		}
	})

	t.Run("ShrinkDemotesOldest", func(t *testing.T) {
		b := newBuilder()
		cache := gsym.NewExprCache()

		// Hold strong references so nothing expires on its own.
		exprs := make([]*gsym.Expr, 0, 1200)
		for i := 0; i < 1200; i++ {
			e := b.CreateEqual(
				b.CreateZExt(b.CreateRead(0), 32),
				b.CreateConstant(uint64(i), 32))
			exprs = append(exprs, e)
			cache.Insert(e)
		}

		if n := cache.Len(); n > 1024 {
			t.Fatalf("cache exceeded its limit: %d", n)
		}

		// The most recent insertion survives, the oldest was demoted.
		if got := cache.Find(exprs[len(exprs)-1]); got == nil {
			t.Fatal("expected most recent entry to be cached")
		}
		if got := cache.Find(exprs[0]); got != nil {
			t.Fatal("expected oldest entry to be demoted")
		}
	})
}
