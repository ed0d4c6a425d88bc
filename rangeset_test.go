package gsym_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/gosymlab/gsym"
)

func TestRangeSet_Unsigned(t *testing.T) {
	t.Run("FullDomain", func(t *testing.T) {
		rs := gsym.NewRangeSet(8, true)
		if diff := cmp.Diff([]gsym.Interval{{Lo: 0, Hi: 0xff}}, rs.Intervals()); diff != "" {
			t.Fatal(diff)
		}
	})

	t.Run("UltThenUge", func(t *testing.T) {
		rs := gsym.NewRangeSet(8, true)
		rs.Insert(gsym.Ult, 0x10, 0)
		rs.Insert(gsym.Uge, 0x05, 0)
		if diff := cmp.Diff([]gsym.Interval{{Lo: 0x05, Hi: 0x0f}}, rs.Intervals()); diff != "" {
			t.Fatal(diff)
		}
	})

	t.Run("Equal", func(t *testing.T) {
		rs := gsym.NewRangeSet(8, true)
		rs.Insert(gsym.Equal, 0x41, 0)
		if diff := cmp.Diff([]gsym.Interval{{Lo: 0x41, Hi: 0x41}}, rs.Intervals()); diff != "" {
			t.Fatal(diff)
		}
	})

	t.Run("DistinctSplits", func(t *testing.T) {
		rs := gsym.NewRangeSet(8, true)
		rs.Insert(gsym.Distinct, 0x41, 0)
		if diff := cmp.Diff([]gsym.Interval{
			{Lo: 0x00, Hi: 0x40},
			{Lo: 0x42, Hi: 0xff},
		}, rs.Intervals()); diff != "" {
			t.Fatal(diff)
		}
	})

	t.Run("Contradiction", func(t *testing.T) {
		rs := gsym.NewRangeSet(8, true)
		rs.Insert(gsym.Equal, 0x41, 0)
		rs.Insert(gsym.Equal, 0x42, 0)
		if !rs.Empty() {
			t.Fatalf("expected empty set, got %s", rs)
		}
	})

	t.Run("UltZeroIsEmpty", func(t *testing.T) {
		rs := gsym.NewRangeSet(8, true)
		rs.Insert(gsym.Ult, 0, 0)
		if !rs.Empty() {
			t.Fatalf("expected empty set, got %s", rs)
		}
	})

	t.Run("Adjustment", func(t *testing.T) {
		// x+3 < 0x10 narrows x to [min, 0x0c].
		rs := gsym.NewRangeSet(8, true)
		rs.Insert(gsym.Ult, 0x10, 3)
		if diff := cmp.Diff([]gsym.Interval{{Lo: 0, Hi: 0x0c}}, rs.Intervals()); diff != "" {
			t.Fatal(diff)
		}
	})
}

func TestRangeSet_Signed(t *testing.T) {
	t.Run("SltNegative", func(t *testing.T) {
		rs := gsym.NewRangeSet(8, false)
		rs.Insert(gsym.Slt, 0x00, 0)
		// [-128, -1]
		if diff := cmp.Diff([]gsym.Interval{{Lo: 0x80, Hi: 0xff}}, rs.Intervals()); diff != "" {
			t.Fatal(diff)
		}
	})

	t.Run("SgeThenSle", func(t *testing.T) {
		rs := gsym.NewRangeSet(8, false)
		rs.Insert(gsym.Sge, 0xfe, 0) // x >= -2
		rs.Insert(gsym.Sle, 0x03, 0) // x <= 3
		if diff := cmp.Diff([]gsym.Interval{{Lo: 0xfe, Hi: 0x03}}, rs.Intervals()); diff != "" {
			t.Fatal(diff)
		}
	})

	t.Run("SgtMaxIsEmpty", func(t *testing.T) {
		rs := gsym.NewRangeSet(8, false)
		rs.Insert(gsym.Sgt, 0x7f, 0)
		if !rs.Empty() {
			t.Fatalf("expected empty set, got %s", rs)
		}
	})
}
