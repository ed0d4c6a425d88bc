// Package z3 implements the gsym.SMT backend with an embedded Z3 solver.
package z3

import (
	"fmt"
	"strings"
	"time"

	"github.com/gosymlab/gsym"
)

/*
#cgo LDFLAGS: -lz3
#include <z3.h>
#include <stdlib.h>
*/
import "C"

// Ensure solver implements interface.
var _ gsym.SMT = (*Solver)(nil)

// Solver wraps one Z3 solver for the logic QF_BV. The handle is acquired at
// construction and lives until Close; Reset discards the assertion set and
// re-applies the timeout.
type Solver struct {
	ctx     *Context
	raw     C.Z3_solver
	timeout time.Duration
	input   gsym.InputSource
}

// NewSolver returns a solver with the given check-sat timeout.
func NewSolver(timeout time.Duration) *Solver {
	ctx := NewContext()

	logic := C.Z3_mk_string_symbol(ctx.raw, logicName)
	raw := C.Z3_mk_solver_for_logic(ctx.raw, logic)
	C.Z3_solver_inc_ref(ctx.raw, raw)

	s := &Solver{ctx: ctx, raw: raw, timeout: timeout}
	s.applyTimeout()
	return s
}

var logicName = C.CString("QF_BV")

// Close releases the solver and its context.
func (s *Solver) Close() error {
	C.Z3_solver_dec_ref(s.ctx.raw, s.raw)
	return s.ctx.Close()
}

// SetInput installs the source of concrete input bytes.
func (s *Solver) SetInput(in gsym.InputSource) {
	s.input = in
}

// Reset discards all assertions and re-applies the timeout parameters.
func (s *Solver) Reset() {
	C.Z3_solver_reset(s.ctx.raw, s.raw)
	s.applyTimeout()
}

// Push saves the current assertion scope.
func (s *Solver) Push() {
	C.Z3_solver_push(s.ctx.raw, s.raw)
}

// Pop restores the previous assertion scope.
func (s *Solver) Pop() {
	C.Z3_solver_pop(s.ctx.raw, s.raw, 1)
}

func (s *Solver) applyTimeout() {
	params := C.Z3_mk_params(s.ctx.raw)
	C.Z3_params_inc_ref(s.ctx.raw, params)
	defer C.Z3_params_dec_ref(s.ctx.raw, params)

	symbol := C.Z3_mk_string_symbol(s.ctx.raw, timeoutName)
	C.Z3_params_set_uint(s.ctx.raw, params, symbol, C.uint(s.timeout.Milliseconds()))
	C.Z3_solver_set_params(s.ctx.raw, s.raw, params)
}

var timeoutName = C.CString("timeout")

// Assert materializes e and adds it to the assertion set.
func (s *Solver) Assert(e *gsym.Expr) error {
	ast, err := s.ctx.toAST(e, s.input)
	if err != nil {
		return err
	}
	simplified := C.Z3_simplify(s.ctx.raw, ast)
	if err := s.ctx.err("Z3_simplify"); err != nil {
		simplified = ast
	}
	C.Z3_solver_assert(s.ctx.raw, s.raw, simplified)
	return s.ctx.err("Z3_solver_assert")
}

// Check runs check-sat under the configured timeout.
func (s *Solver) Check() (gsym.CheckResult, error) {
	ret := C.Z3_solver_check(s.ctx.raw, s.raw)
	if err := s.ctx.err("Z3_solver_check"); err != nil {
		return gsym.Unknown, err
	}

	switch ret {
	case C.Z3_L_FALSE:
		return gsym.Unsat, nil
	case C.Z3_L_TRUE:
		return gsym.Sat, nil
	default:
		reason := C.GoString(C.Z3_solver_get_reason_unknown(s.ctx.raw, s.raw))
		switch {
		case strings.Contains(reason, "timeout"):
			return gsym.Unknown, gsym.ErrSolverTimeout
		case strings.Contains(reason, "canceled"):
			return gsym.Unknown, gsym.ErrSolverCanceled
		case strings.Contains(reason, "(resource limits reached)"):
			return gsym.Unknown, gsym.ErrSolverResourceLimit
		default:
			return gsym.Unknown, gsym.ErrSolverUnknown
		}
	}
}

// Model returns the assignment of every input byte the model constrains,
// keyed by the integer symbol the byte was declared under.
func (s *Solver) Model() (map[int]byte, error) {
	model := C.Z3_solver_get_model(s.ctx.raw, s.raw)
	if err := s.ctx.err("Z3_solver_get_model"); err != nil {
		return nil, err
	}
	C.Z3_model_inc_ref(s.ctx.raw, model)
	defer C.Z3_model_dec_ref(s.ctx.raw, model)

	values := make(map[int]byte)
	n := C.Z3_model_get_num_consts(s.ctx.raw, model)
	for i := C.uint(0); i < n; i++ {
		decl := C.Z3_model_get_const_decl(s.ctx.raw, model, i)
		if err := s.ctx.err("Z3_model_get_const_decl"); err != nil {
			return nil, err
		}
		name := C.Z3_get_decl_name(s.ctx.raw, decl)
		if C.Z3_get_symbol_kind(s.ctx.raw, name) != C.Z3_INT_SYMBOL {
			continue
		}
		index := int(C.Z3_get_symbol_int(s.ctx.raw, name))

		interp := C.Z3_model_get_const_interp(s.ctx.raw, model, decl)
		if err := s.ctx.err("Z3_model_get_const_interp"); err != nil {
			return nil, err
		}
		var value C.int
		C.Z3_get_numeral_int(s.ctx.raw, interp, &value)
		if err := s.ctx.err("Z3_get_numeral_int"); err != nil {
			return nil, err
		}
		values[index] = byte(value)
	}
	return values, nil
}

// EvalUint64 evaluates e under the current model.
func (s *Solver) EvalUint64(e *gsym.Expr) (uint64, bool, error) {
	model := C.Z3_solver_get_model(s.ctx.raw, s.raw)
	if err := s.ctx.err("Z3_solver_get_model"); err != nil {
		return 0, false, err
	}
	C.Z3_model_inc_ref(s.ctx.raw, model)
	defer C.Z3_model_dec_ref(s.ctx.raw, model)

	ast, err := s.ctx.toAST(e, s.input)
	if err != nil {
		return 0, false, err
	}

	var out C.Z3_ast
	C.Z3_model_eval(s.ctx.raw, model, ast, C.bool(true), &out)
	if err := s.ctx.err("Z3_model_eval"); err != nil {
		return 0, false, err
	}

	var value C.uint64_t
	C.Z3_get_numeral_uint64(s.ctx.raw, out, &value)
	if err := s.ctx.err("Z3_get_numeral_uint64"); err != nil {
		return 0, false, nil
	}
	return uint64(value), true, nil
}

// Context wraps a Z3 context used for constructing expressions.
type Context struct {
	raw C.Z3_context
}

// NewContext returns a new instance of Context.
func NewContext() *Context {
	config := C.Z3_mk_config()
	defer C.Z3_del_config(config)

	raw := C.Z3_mk_context(config)
	C.Z3_set_error_handler(raw, nil)
	C.Z3_set_ast_print_mode(raw, C.Z3_PRINT_SMTLIB2_COMPLIANT)
	return &Context{raw: raw}
}

// Close deletes the underlying Z3 context.
func (ctx *Context) Close() error {
	C.Z3_del_context(ctx.raw)
	return nil
}

// err returns the error for the last API call, or nil.
func (ctx *Context) err(op string) error {
	if code := C.Z3_get_error_code(ctx.raw); code != C.Z3_OK {
		return &Error{Code: int(code), Op: op, Message: C.GoString(C.Z3_get_error_msg(ctx.raw, code))}
	}
	return nil
}

// toAST materializes e, reusing the form cached on the node while it stays
// valid. A concrete non-leaf node materializes as its concrete evaluation,
// which is what binds uninvolved input bytes to their observed values.
func (ctx *Context) toAST(e *gsym.Expr, in gsym.InputSource) (C.Z3_ast, error) {
	if cached, ok := e.SMTCache(); ok {
		return cached.(C.Z3_ast), nil
	}

	ast, err := ctx.buildAST(e, in)
	if err != nil {
		return nil, err
	}
	e.SetSMTCache(ast)
	return ast, nil
}

func (ctx *Context) buildAST(e *gsym.Expr, in gsym.InputSource) (C.Z3_ast, error) {
	switch e.Kind() {
	case gsym.Bool:
		if e.BoolValue() {
			return C.Z3_mk_true(ctx.raw), ctx.err("Z3_mk_true")
		}
		return C.Z3_mk_false(ctx.raw), ctx.err("Z3_mk_false")

	case gsym.Constant:
		return ctx.makeUint64(e.Bits(), e.Value())

	case gsym.Read:
		if e.IsConcrete() {
			return ctx.toAST(e.Evaluate(in), in)
		}
		return ctx.makeReadConst(e.Index())
	}

	// Any other concrete node collapses to its evaluation.
	if e.IsConcrete() {
		return ctx.toAST(e.Evaluate(in), in)
	}

	switch e.Kind() {
	case gsym.Concat:
		return ctx.toBinaryZ3(e, in, func(l, r C.Z3_ast) C.Z3_ast {
			return C.Z3_mk_concat(ctx.raw, l, r)
		}, "Z3_mk_concat")

	case gsym.Extract:
		return ctx.toExtractAST(e, in)

	case gsym.ZExt:
		src, err := ctx.toAST(e.Child(0), in)
		if err != nil {
			return nil, err
		}
		return C.Z3_mk_zero_ext(ctx.raw, C.uint(e.Bits()-e.Child(0).Bits()), src), ctx.err("Z3_mk_zero_ext")

	case gsym.SExt:
		src, err := ctx.toAST(e.Child(0), in)
		if err != nil {
			return nil, err
		}
		return C.Z3_mk_sign_ext(ctx.raw, C.uint(e.Bits()-e.Child(0).Bits()), src), ctx.err("Z3_mk_sign_ext")

	case gsym.Add:
		return ctx.toBinaryZ3(e, in, func(l, r C.Z3_ast) C.Z3_ast {
			return C.Z3_mk_bvadd(ctx.raw, l, r)
		}, "Z3_mk_bvadd")

	case gsym.Sub:
		return ctx.toBinaryZ3(e, in, func(l, r C.Z3_ast) C.Z3_ast {
			return C.Z3_mk_bvsub(ctx.raw, l, r)
		}, "Z3_mk_bvsub")

	case gsym.Mul:
		return ctx.toBinaryZ3(e, in, func(l, r C.Z3_ast) C.Z3_ast {
			return C.Z3_mk_bvmul(ctx.raw, l, r)
		}, "Z3_mk_bvmul")

	case gsym.UDiv:
		return ctx.toBinaryZ3(e, in, func(l, r C.Z3_ast) C.Z3_ast {
			return C.Z3_mk_bvudiv(ctx.raw, l, r)
		}, "Z3_mk_bvudiv")

	case gsym.SDiv:
		return ctx.toBinaryZ3(e, in, func(l, r C.Z3_ast) C.Z3_ast {
			return C.Z3_mk_bvsdiv(ctx.raw, l, r)
		}, "Z3_mk_bvsdiv")

	case gsym.URem:
		return ctx.toBinaryZ3(e, in, func(l, r C.Z3_ast) C.Z3_ast {
			return C.Z3_mk_bvurem(ctx.raw, l, r)
		}, "Z3_mk_bvurem")

	case gsym.SRem:
		return ctx.toBinaryZ3(e, in, func(l, r C.Z3_ast) C.Z3_ast {
			return C.Z3_mk_bvsrem(ctx.raw, l, r)
		}, "Z3_mk_bvsrem")

	case gsym.Neg:
		src, err := ctx.toAST(e.Child(0), in)
		if err != nil {
			return nil, err
		}
		return C.Z3_mk_bvneg(ctx.raw, src), ctx.err("Z3_mk_bvneg")

	case gsym.Not:
		src, err := ctx.toAST(e.Child(0), in)
		if err != nil {
			return nil, err
		}
		return C.Z3_mk_bvnot(ctx.raw, src), ctx.err("Z3_mk_bvnot")

	case gsym.And:
		return ctx.toBinaryZ3(e, in, func(l, r C.Z3_ast) C.Z3_ast {
			return C.Z3_mk_bvand(ctx.raw, l, r)
		}, "Z3_mk_bvand")

	case gsym.Or:
		return ctx.toBinaryZ3(e, in, func(l, r C.Z3_ast) C.Z3_ast {
			return C.Z3_mk_bvor(ctx.raw, l, r)
		}, "Z3_mk_bvor")

	case gsym.Xor:
		return ctx.toBinaryZ3(e, in, func(l, r C.Z3_ast) C.Z3_ast {
			return C.Z3_mk_bvxor(ctx.raw, l, r)
		}, "Z3_mk_bvxor")

	case gsym.Shl:
		return ctx.toBinaryZ3(e, in, func(l, r C.Z3_ast) C.Z3_ast {
			return C.Z3_mk_bvshl(ctx.raw, l, r)
		}, "Z3_mk_bvshl")

	case gsym.LShr:
		return ctx.toBinaryZ3(e, in, func(l, r C.Z3_ast) C.Z3_ast {
			return C.Z3_mk_bvlshr(ctx.raw, l, r)
		}, "Z3_mk_bvlshr")

	case gsym.AShr:
		return ctx.toBinaryZ3(e, in, func(l, r C.Z3_ast) C.Z3_ast {
			return C.Z3_mk_bvashr(ctx.raw, l, r)
		}, "Z3_mk_bvashr")

	case gsym.Equal:
		return ctx.toBinaryZ3(e, in, func(l, r C.Z3_ast) C.Z3_ast {
			return C.Z3_mk_eq(ctx.raw, l, r)
		}, "Z3_mk_eq")

	case gsym.Distinct:
		l, r, err := ctx.toChildren(e, in)
		if err != nil {
			return nil, err
		}
		args := [2]C.Z3_ast{l, r}
		return C.Z3_mk_distinct(ctx.raw, 2, &args[0]), ctx.err("Z3_mk_distinct")

	case gsym.Ult:
		return ctx.toBinaryZ3(e, in, func(l, r C.Z3_ast) C.Z3_ast {
			return C.Z3_mk_bvult(ctx.raw, l, r)
		}, "Z3_mk_bvult")

	case gsym.Ule:
		return ctx.toBinaryZ3(e, in, func(l, r C.Z3_ast) C.Z3_ast {
			return C.Z3_mk_bvule(ctx.raw, l, r)
		}, "Z3_mk_bvule")

	case gsym.Ugt:
		return ctx.toBinaryZ3(e, in, func(l, r C.Z3_ast) C.Z3_ast {
			return C.Z3_mk_bvugt(ctx.raw, l, r)
		}, "Z3_mk_bvugt")

	case gsym.Uge:
		return ctx.toBinaryZ3(e, in, func(l, r C.Z3_ast) C.Z3_ast {
			return C.Z3_mk_bvuge(ctx.raw, l, r)
		}, "Z3_mk_bvuge")

	case gsym.Slt:
		return ctx.toBinaryZ3(e, in, func(l, r C.Z3_ast) C.Z3_ast {
			return C.Z3_mk_bvslt(ctx.raw, l, r)
		}, "Z3_mk_bvslt")

	case gsym.Sle:
		return ctx.toBinaryZ3(e, in, func(l, r C.Z3_ast) C.Z3_ast {
			return C.Z3_mk_bvsle(ctx.raw, l, r)
		}, "Z3_mk_bvsle")

	case gsym.Sgt:
		return ctx.toBinaryZ3(e, in, func(l, r C.Z3_ast) C.Z3_ast {
			return C.Z3_mk_bvsgt(ctx.raw, l, r)
		}, "Z3_mk_bvsgt")

	case gsym.Sge:
		return ctx.toBinaryZ3(e, in, func(l, r C.Z3_ast) C.Z3_ast {
			return C.Z3_mk_bvsge(ctx.raw, l, r)
		}, "Z3_mk_bvsge")

	case gsym.LOr:
		l, r, err := ctx.toChildren(e, in)
		if err != nil {
			return nil, err
		}
		args := [2]C.Z3_ast{l, r}
		return C.Z3_mk_or(ctx.raw, 2, &args[0]), ctx.err("Z3_mk_or")

	case gsym.LAnd:
		l, r, err := ctx.toChildren(e, in)
		if err != nil {
			return nil, err
		}
		args := [2]C.Z3_ast{l, r}
		return C.Z3_mk_and(ctx.raw, 2, &args[0]), ctx.err("Z3_mk_and")

	case gsym.LNot:
		src, err := ctx.toAST(e.Child(0), in)
		if err != nil {
			return nil, err
		}
		return C.Z3_mk_not(ctx.raw, src), ctx.err("Z3_mk_not")

	case gsym.Ite:
		cond, err := ctx.toAST(e.Child(0), in)
		if err != nil {
			return nil, err
		}
		t, err := ctx.toAST(e.Child(1), in)
		if err != nil {
			return nil, err
		}
		f, err := ctx.toAST(e.Child(2), in)
		if err != nil {
			return nil, err
		}
		return C.Z3_mk_ite(ctx.raw, cond, t, f), ctx.err("Z3_mk_ite")

	default:
		return nil, fmt.Errorf("z3.Context.toAST: invalid expression kind: %s", e.Kind())
	}
}

func (ctx *Context) toChildren(e *gsym.Expr, in gsym.InputSource) (C.Z3_ast, C.Z3_ast, error) {
	l, err := ctx.toAST(e.Left(), in)
	if err != nil {
		return nil, nil, err
	}
	r, err := ctx.toAST(e.Right(), in)
	if err != nil {
		return nil, nil, err
	}
	return l, r, nil
}

func (ctx *Context) toBinaryZ3(e *gsym.Expr, in gsym.InputSource, mk func(l, r C.Z3_ast) C.Z3_ast, op string) (C.Z3_ast, error) {
	l, r, err := ctx.toChildren(e, in)
	if err != nil {
		return nil, err
	}
	return mk(l, r), ctx.err(op)
}

func (ctx *Context) toExtractAST(e *gsym.Expr, in gsym.InputSource) (C.Z3_ast, error) {
	src, err := ctx.toAST(e.Child(0), in)
	if err != nil {
		return nil, err
	}
	high := C.uint(e.Offset() + e.Bits() - 1)
	low := C.uint(e.Offset())
	return C.Z3_mk_extract(ctx.raw, high, low, src), ctx.err("Z3_mk_extract")
}

// makeReadConst declares the 8-bit constant for an input byte. Its symbol
// name is the byte index so models map straight back to input positions.
func (ctx *Context) makeReadConst(index int) (C.Z3_ast, error) {
	sort, err := ctx.makeBVSort(gsym.Width8)
	if err != nil {
		return nil, err
	}
	symbol := C.Z3_mk_int_symbol(ctx.raw, C.int(index))
	return C.Z3_mk_const(ctx.raw, symbol, sort), ctx.err("Z3_mk_const")
}

func (ctx *Context) makeBVSort(width uint) (C.Z3_sort, error) {
	return C.Z3_mk_bv_sort(ctx.raw, C.uint(width)), ctx.err("Z3_mk_bv_sort")
}

func (ctx *Context) makeUint64(width uint, value uint64) (C.Z3_ast, error) {
	sort, err := ctx.makeBVSort(width)
	if err != nil {
		return nil, err
	}
	return C.Z3_mk_unsigned_int64(ctx.raw, C.uint64_t(value), sort), ctx.err("Z3_mk_unsigned_int64")
}

func (ctx *Context) astToString(ast C.Z3_ast) string {
	return C.GoString(C.Z3_ast_to_string(ctx.raw, ast))
}

// Error represents an error from the Z3 API.
type Error struct {
	Code    int
	Op      string
	Message string
}

// Error returns the error as a string.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s (%d)", e.Op, e.Message, e.Code)
}
