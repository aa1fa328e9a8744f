// Package quality measures how far a table drifts from its reference evaluator
package quality

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/notargets/phtab/eos"
	"github.com/notargets/phtab/mesh"
	"github.com/notargets/phtab/types"
	"github.com/notargets/phtab/utils"
)

// Policy chooses where the table is compared against the reference
type Policy uint8

const (
	Node   Policy = iota // every Real node
	Centre               // the centre of every quad or segment
)

func (p Policy) String() string {
	return [...]string{"node", "centre"}[p]
}

func ParsePolicy(label string) (p Policy, err error) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "node", "nodes":
		return Node, nil
	case "centre", "center", "centres", "centers":
		return Centre, nil
	}
	return Node, fmt.Errorf("%w: unknown quality policy %q", types.ErrConfiguration, label)
}

// Source is the table under test
type Source interface {
	PH(prop string, p, h float64) (float64, types.Status, error)
	Curve(t types.Target, prop string, p float64) (float64, types.Status, error)
}

// Evaluator is one quality criterion, a property compared on one target
type Evaluator struct {
	Property  string
	Target    types.Target
	Policy    Policy
	Absolute  bool    // absolute discrepancy, relative when false
	Tolerance float64 // a point fails above this, never when <= 0
}

func (e *Evaluator) String() string {
	mode := "relative"
	if e.Absolute {
		mode = "absolute"
	}
	return fmt.Sprintf("%s/%s %s %s <= %g", e.Target, e.Property, e.Policy, mode, e.Tolerance)
}

/*
Record is the outcome of one Evaluator on one snapshot.
Points the reference could not evaluate are not compared; their Discrepancy is zero and they pass.
*/
type Record struct {
	Property    string
	Target      types.Target
	P, H        []float64 // sample points, H is nil on curves
	Discrepancy []float64
	Compared    []bool
	Pass        []bool
	CellFail    []bool // per mesh cell or curve segment
	Average     float64
	Max         float64
}

// Converged is true when every compared point passes
func (r *Record) Converged() bool {
	for _, ok := range r.Pass {
		if !ok {
			return false
		}
	}
	return true
}

// Failing counts the points above tolerance
func (r *Record) Failing() (n int) {
	for _, ok := range r.Pass {
		if !ok {
			n++
		}
	}
	return
}

// sample is a comparison point and the cells it flags when failing
type sample struct {
	p, h  float64
	cells []int
}

func (e *Evaluator) discrepancy(a, b float64) float64 {
	if e.Absolute || b == 0 {
		return math.Abs(a - b)
	}
	return math.Abs((a - b) / b)
}

func (e *Evaluator) compare(samples []sample, nCells int, interp func(p, h float64) (float64, types.Status, error),
	ref eos.Evaluator, q eos.Query) (r *Record, err error) {
	var res *eos.Result
	if res, err = ref.Evaluate(q, []string{e.Property}); err != nil {
		return nil, fmt.Errorf("reference evaluation of %s: %w", e.Property, err)
	}
	want := res.Values[e.Property]
	r = &Record{
		Property:    e.Property,
		Target:      e.Target,
		P:           make([]float64, len(samples)),
		Discrepancy: make([]float64, len(samples)),
		Compared:    make([]bool, len(samples)),
		Pass:        make([]bool, len(samples)),
		CellFail:    make([]bool, nCells),
	}
	if !e.Target.IsCurve() {
		r.H = make([]float64, len(samples))
	}
	var compared []float64
	for n, s := range samples {
		r.P[n] = s.p
		if r.H != nil {
			r.H[n] = s.h
		}
		r.Pass[n] = true
		if !res.Status[n].OK() || !utils.IsFinite(want[n]) {
			continue
		}
		var got float64
		if got, _, err = interp(s.p, s.h); err != nil {
			return nil, fmt.Errorf("table lookup of %s at p = %g, h = %g: %w", e.Property, s.p, s.h, err)
		}
		if !utils.IsFinite(got) {
			continue
		}
		d := e.discrepancy(got, want[n])
		r.Discrepancy[n], r.Compared[n] = d, true
		compared = append(compared, d)
		if e.Tolerance > 0 && d > e.Tolerance {
			r.Pass[n] = false
			for _, k := range s.cells {
				r.CellFail[k] = true
			}
		}
	}
	if len(compared) != 0 {
		r.Average = floats.Sum(compared) / float64(len(compared))
		r.Max = floats.Max(compared)
	}
	return
}

// EvaluatePH compares the table against the reference over the ph mesh
func (e *Evaluator) EvaluatePH(m *mesh.PHMesh, ip Source, ref eos.Evaluator) (r *Record, err error) {
	if e.Target != types.TargetPH {
		return nil, fmt.Errorf("%w: %s is not a ph criterion", types.ErrConfiguration, e)
	}
	var samples []sample
	switch e.Policy {
	case Node:
		polys, owners := m.Polygons()
		touching := make(map[int][]int)
		for k, poly := range polys {
			for _, v := range poly {
				touching[v] = append(touching[v], owners[k])
			}
		}
		for id, nd := range m.Nodes {
			if nd.Kind == mesh.Real {
				samples = append(samples, sample{p: nd.P, h: nd.H, cells: touching[id]})
			}
		}
	case Centre:
		for _, q := range m.Quads() {
			lo, hi := m.Nodes[q.Corners[0]], m.Nodes[q.Corners[3]]
			samples = append(samples, sample{
				p: utils.Mean2(lo.P, hi.P), h: utils.Mean2(lo.H, hi.H), cells: []int{q.Owner},
			})
		}
	}
	q := eos.Query{Kind: eos.QueryPH, P: make([]float64, len(samples)), X: make([]float64, len(samples))}
	for n, s := range samples {
		q.P[n], q.X[n] = s.p, s.h
	}
	return e.compare(samples, len(m.Cells), func(p, h float64) (float64, types.Status, error) {
		return ip.PH(e.Property, p, h)
	}, ref, q)
}

// EvaluateCurve compares the table against the reference along a saturation or spinodal curve
func (e *Evaluator) EvaluateCurve(c *mesh.Curve, ip Source, ref eos.Evaluator) (r *Record, err error) {
	if !e.Target.IsCurve() {
		return nil, fmt.Errorf("%w: %s is not a curve criterion", types.ErrConfiguration, e)
	}
	var samples []sample
	switch e.Policy {
	case Node:
		touching := make([][]int, len(c.Nodes))
		for k, sg := range c.Segments {
			touching[sg[0]] = append(touching[sg[0]], k)
			touching[sg[1]] = append(touching[sg[1]], k)
		}
		for id, p := range c.Nodes {
			samples = append(samples, sample{p: p, cells: touching[id]})
		}
	case Centre:
		for k, sg := range c.Segments {
			samples = append(samples, sample{p: utils.Mean2(c.Nodes[sg[0]], c.Nodes[sg[1]]), cells: []int{k}})
		}
	}
	q := eos.Query{Kind: eos.KindFor(e.Target), P: make([]float64, len(samples))}
	for n, s := range samples {
		q.P[n] = s.p
	}
	return e.compare(samples, len(c.Segments), func(p, _ float64) (float64, types.Status, error) {
		return ip.Curve(e.Target, e.Property, p)
	}, ref, q)
}
