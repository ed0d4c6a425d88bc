package gsym

import (
	"fmt"
	"strings"
)

// Interval is an inclusive bound over the values of a fixed-width bit
// vector. Bounds are stored as raw two's-complement words; ordering depends
// on the signedness of the owning set.
type Interval struct {
	Lo, Hi uint64
}

// RangeSet is a sorted set of disjoint intervals over a fixed bit width,
// narrowed as range-friendly constraints accumulate against one expression.
// A freshly created set covers the whole domain; an empty interval list
// means the constraints are contradictory.
type RangeSet struct {
	bits      uint
	unsigned  bool
	intervals []Interval
}

// NewRangeSet returns the full-domain set for the given width and
// signedness.
func NewRangeSet(bits uint, unsigned bool) *RangeSet {
	rs := &RangeSet{bits: bits, unsigned: unsigned}
	rs.intervals = []Interval{{Lo: rs.minValue(), Hi: rs.maxValue()}}
	return rs
}

// Bits returns the bit width of the set's domain.
func (rs *RangeSet) Bits() uint { return rs.bits }

// Unsigned reports whether interval ordering is unsigned.
func (rs *RangeSet) Unsigned() bool { return rs.unsigned }

// Empty reports whether no value satisfies the accumulated constraints.
func (rs *RangeSet) Empty() bool { return len(rs.intervals) == 0 }

// Intervals returns the intervals in ascending order.
func (rs *RangeSet) Intervals() []Interval { return rs.intervals }

func (rs *RangeSet) minValue() uint64 {
	if rs.unsigned {
		return 0
	}
	return uint64(1) << (rs.bits - 1) & widthMask(rs.bits) // most negative
}

func (rs *RangeSet) maxValue() uint64 {
	if rs.unsigned {
		return widthMask(rs.bits)
	}
	return widthMask(rs.bits) >> 1 // most positive
}

// cmp orders two raw words according to the set's signedness.
func (rs *RangeSet) cmp(a, b uint64) int {
	if rs.unsigned {
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		}
		return 0
	}
	sa, sb := signExtend(a, rs.bits), signExtend(b, rs.bits)
	switch {
	case sa < sb:
		return -1
	case sa > sb:
		return 1
	}
	return 0
}

// succ returns the next value in domain order, ok=false at the maximum.
func (rs *RangeSet) succ(v uint64) (uint64, bool) {
	if v == rs.maxValue() {
		return 0, false
	}
	return (v + 1) & widthMask(rs.bits), true
}

// pred returns the previous value in domain order, ok=false at the minimum.
func (rs *RangeSet) pred(v uint64) (uint64, bool) {
	if v == rs.minValue() {
		return 0, false
	}
	return (v - 1) & widthMask(rs.bits), true
}

// Insert narrows the set by the constraint `x kind rhs` where the canonical
// expression was split off an additive adjustment: the recorded constraint
// is against x+adjustment, so the bound shifts by -adjustment.
func (rs *RangeSet) Insert(kind Kind, rhs, adjustment uint64) {
	v := (rhs - adjustment) & widthMask(rs.bits)
	switch kind {
	case Equal:
		rs.intersect(v, v)
	case Distinct:
		rs.remove(v)
	case Ult, Slt:
		if p, ok := rs.pred(v); ok {
			rs.intersect(rs.minValue(), p)
		} else {
			rs.intervals = nil
		}
	case Ule, Sle:
		rs.intersect(rs.minValue(), v)
	case Ugt, Sgt:
		if s, ok := rs.succ(v); ok {
			rs.intersect(s, rs.maxValue())
		} else {
			rs.intervals = nil
		}
	case Uge, Sge:
		rs.intersect(v, rs.maxValue())
	default:
		assert(false, "non-range kind: %s", kind)
	}
}

// intersect clips the set to [lo, hi].
func (rs *RangeSet) intersect(lo, hi uint64) {
	out := rs.intervals[:0]
	for _, iv := range rs.intervals {
		if rs.cmp(iv.Hi, lo) < 0 || rs.cmp(iv.Lo, hi) > 0 {
			continue
		}
		if rs.cmp(iv.Lo, lo) < 0 {
			iv.Lo = lo
		}
		if rs.cmp(iv.Hi, hi) > 0 {
			iv.Hi = hi
		}
		out = append(out, iv)
	}
	rs.intervals = out
}

// remove cuts the single value v out of the set.
func (rs *RangeSet) remove(v uint64) {
	out := make([]Interval, 0, len(rs.intervals)+1)
	for _, iv := range rs.intervals {
		if rs.cmp(v, iv.Lo) < 0 || rs.cmp(v, iv.Hi) > 0 {
			out = append(out, iv)
			continue
		}
		if rs.cmp(iv.Lo, v) < 0 {
			p, _ := rs.pred(v)
			out = append(out, Interval{Lo: iv.Lo, Hi: p})
		}
		if rs.cmp(v, iv.Hi) < 0 {
			s, _ := rs.succ(v)
			out = append(out, Interval{Lo: s, Hi: iv.Hi})
		}
	}
	rs.intervals = out
}

// String returns the string representation of the set.
func (rs *RangeSet) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, iv := range rs.intervals {
		if i > 0 {
			sb.WriteByte(' ')
		}
		if rs.unsigned {
			fmt.Fprintf(&sb, "[%#x,%#x]", iv.Lo, iv.Hi)
		} else {
			fmt.Fprintf(&sb, "[%d,%d]", signExtend(iv.Lo, rs.bits), signExtend(iv.Hi, rs.bits))
		}
	}
	sb.WriteByte('}')
	return sb.String()
}

// accumulateRange folds the constraint `e kind (rhs - adjustment)` into
// the signed or unsigned range set of e, picking the signedness the kind
// implies. Equality and disequality narrow both sets.
func accumulateRange(e *Expr, kind Kind, rhs, adjustment uint64) {
	both := kind == Equal || kind == Distinct
	for _, unsigned := range []bool{false, true} {
		if !both && unsignedKind(kind) != unsigned {
			continue
		}
		rs := e.RangeSetFor(unsigned)
		if rs == nil {
			rs = NewRangeSet(e.Bits(), unsigned)
			e.setRangeSet(unsigned, rs)
		}
		rs.Insert(kind, rhs, adjustment)
	}
}

// unsignedKind reports whether the comparison orders its operands without
// sign.
func unsignedKind(kind Kind) bool {
	switch kind {
	case Ult, Ule, Ugt, Uge, Equal, Distinct:
		return true
	default:
		return false
	}
}
