// Package eos holds the reference evaluators the tables approximate
package eos

import (
	"fmt"

	"github.com/notargets/phtab/types"
)

// QueryKind selects the input variables of a batched evaluation
type QueryKind uint8

const (
	QueryPH         QueryKind = iota // (p, h)
	QueryPT                          // (p, T)
	QuerySaturation                  // p on the saturation curve
	QuerySpinodal                    // p on the spinodal limit curve
)

func (k QueryKind) String() string {
	return [...]string{"ph", "pT", "sat", "lim"}[k]
}

// KindFor maps a tabulated target onto the query evaluating its nodes
func KindFor(t types.Target) QueryKind {
	switch t {
	case types.TargetSaturation:
		return QuerySaturation
	case types.TargetSpinodal:
		return QuerySpinodal
	}
	return QueryPH
}

// Query is a batch of points. X is the enthalpy or temperature, unused for the curves.
type Query struct {
	Kind QueryKind
	P, X []float64
}

func (q Query) Len() int { return len(q.P) }

func (q Query) check() error {
	if (q.Kind == QueryPH || q.Kind == QueryPT) && len(q.X) != len(q.P) {
		return fmt.Errorf("%w: %s query has %d pressures and %d second coordinates",
			types.ErrConfiguration, q.Kind, len(q.P), len(q.X))
	}
	return nil
}

// Result carries one value array per requested property, keyed by the name as requested,
// and the status of every point
type Result struct {
	Values map[string][]float64
	Status []types.Status
}

/*
Evaluator is the authoritative property source the tables are built from.
A point the evaluator could not compute carries a non OK status; its values are not meaningful.
An unknown property fails the whole call with types.ErrPropertyNotFound.
*/
type Evaluator interface {
	Name() string
	Evaluate(q Query, props []string) (*Result, error)
	// Critical returns the critical point, ok is false for a fluid without one
	Critical() (pc, tc, hc float64, ok bool)
}

func newResult(n int, props []string) *Result {
	r := &Result{
		Values: make(map[string][]float64, len(props)),
		Status: make([]types.Status, n),
	}
	for _, name := range props {
		r.Values[name] = make([]float64, n)
	}
	return r
}
