package eos

import (
	"fmt"
	"math"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/notargets/phtab/types"
	"github.com/notargets/phtab/utils"
)

// ExprSpec lists property formulas per query kind, each an expression of p and h (PH), p and T (PT) or p (curves)
type ExprSpec struct {
	Name       string
	PH         map[string]string
	PT         map[string]string
	Saturation map[string]string
	Spinodal   map[string]string
	// Critical holds pc, tc, hc; nil for a fluid without a critical point
	Critical []float64
}

// ExprFluid evaluates properties from compiled expressions
type ExprFluid struct {
	name     string
	programs [4]map[string]*vm.Program
	critical []float64
}

var exprVariables = [4][]string{
	QueryPH:         {"p", "h"},
	QueryPT:         {"p", "T"},
	QuerySaturation: {"p"},
	QuerySpinodal:   {"p"},
}

func exprOpts(kind QueryKind) []expr.Option {
	env := make(map[string]any)
	for _, v := range exprVariables[kind] {
		env[v] = 0.
	}
	unary := func(name string, fn func(float64) float64) expr.Option {
		return expr.Function(name, func(params ...any) (any, error) {
			if len(params) != 1 {
				return nil, fmt.Errorf("%s takes 1 argument, have %d", name, len(params))
			}
			x, err := toFloat(params[0])
			if err != nil {
				return nil, err
			}
			return fn(x), nil
		})
	}
	return []expr.Option{
		expr.Env(env),
		expr.AsFloat64(),
		unary("sqrt", math.Sqrt),
		unary("exp", math.Exp),
		unary("log", math.Log),
		expr.Function("pow", func(params ...any) (any, error) {
			if len(params) != 2 {
				return nil, fmt.Errorf("pow takes 2 arguments, have %d", len(params))
			}
			x, err := toFloat(params[0])
			if err != nil {
				return nil, err
			}
			y, err := toFloat(params[1])
			if err != nil {
				return nil, err
			}
			return math.Pow(x, y), nil
		}),
	}
}

func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case int:
		return float64(x), nil
	}
	return 0, fmt.Errorf("expected a number, have %T", v)
}

func NewExprFluid(spec ExprSpec) (f *ExprFluid, err error) {
	if spec.Critical != nil && len(spec.Critical) != 3 {
		err = fmt.Errorf("%w: critical point needs pc, tc, hc, have %v", types.ErrConfiguration, spec.Critical)
		return
	}
	f = &ExprFluid{name: spec.Name, critical: spec.Critical}
	if f.name == "" {
		f.name = "expr"
	}
	sources := [4]map[string]string{
		QueryPH:         spec.PH,
		QueryPT:         spec.PT,
		QuerySaturation: spec.Saturation,
		QuerySpinodal:   spec.Spinodal,
	}
	for kind, src := range sources {
		f.programs[kind] = make(map[string]*vm.Program, len(src))
		for name, code := range src {
			var prg *vm.Program
			if prg, err = expr.Compile(code, exprOpts(QueryKind(kind))...); err != nil {
				err = fmt.Errorf("%w: %s property %q: %v", types.ErrConfiguration, QueryKind(kind), name, err)
				return nil, err
			}
			f.programs[kind][types.NormalizeName(name)] = prg
		}
	}
	return
}

func (f *ExprFluid) Name() string { return f.name }

func (f *ExprFluid) Critical() (pc, tc, hc float64, ok bool) {
	if f.critical == nil {
		return -1, -1, -1, false
	}
	return f.critical[0], f.critical[1], f.critical[2], true
}

func (f *ExprFluid) Evaluate(q Query, props []string) (r *Result, err error) {
	if err = q.check(); err != nil {
		return
	}
	prgs := make([]*vm.Program, len(props))
	for i, name := range props {
		var ok bool
		if prgs[i], ok = f.programs[q.Kind][types.NormalizeName(name)]; !ok {
			err = fmt.Errorf("%w: %q is not a %s property of %s", types.ErrPropertyNotFound, name, q.Kind, f.name)
			return
		}
	}
	var (
		vars = exprVariables[q.Kind]
		env  = make(map[string]any, len(vars))
	)
	r = newResult(q.Len(), props)
	for n, p := range q.P {
		env[vars[0]] = p
		if len(vars) > 1 {
			env[vars[1]] = q.X[n]
		}
		for i, name := range props {
			out, rerr := expr.Run(prgs[i], env)
			v, ok := out.(float64)
			if rerr != nil || !ok || !utils.IsFinite(v) {
				r.Status[n] = types.StatusUpstreamFailure
				v = math.NaN()
			}
			r.Values[name][n] = v
		}
	}
	return
}
