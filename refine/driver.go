// Package refine builds tables by refining meshes until the quality criteria pass
package refine

import (
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/floats"

	"github.com/notargets/phtab/eos"
	"github.com/notargets/phtab/interp"
	"github.com/notargets/phtab/mesh"
	"github.com/notargets/phtab/quality"
	"github.com/notargets/phtab/store"
	"github.com/notargets/phtab/types"
	"github.com/notargets/phtab/utils"
)

// Strategy is how failing meshes are refined
type Strategy uint8

const (
	Global          Strategy = iota // every cell, the mesh stays conforming
	Local                           // failing cells only, hanging nodes are left as is
	LocalContinuity                 // failing cells, 2:1 balanced and stitched with continuity nodes
)

var StrategyNameMap = map[string]Strategy{
	"global":           Global,
	"local":            Local,
	"local-continuity": LocalContinuity,
	"continuity":       LocalContinuity,
}

func (s Strategy) String() string {
	return [...]string{"global", "local", "local-continuity"}[s]
}

func ParseStrategy(label string) (s Strategy, err error) {
	var ok bool
	if s, ok = StrategyNameMap[strings.ToLower(strings.TrimSpace(label))]; !ok {
		err = fmt.Errorf("%w: unknown refinement strategy %q", types.ErrConfiguration, label)
	}
	return
}

// Config describes one table
type Config struct {
	Method, Reference      string
	Pmin, Pmax, Tmin, Tmax float64
	NbP, NbH               int
	// Targets lists the meshes to build, Properties the fields stored on each
	Targets    []types.Target
	Properties map[types.Target][]string
	// Levels caps the refinement depth of each target
	Levels    map[types.Target]int
	Strategy  Strategy
	Qualities []quality.Evaluator
	// MaxNodes stops refining a target once its node count reaches it, 0 for no limit
	MaxNodes int
	// Parallel is the number of concurrent reference batches, the reference must then be goroutine safe
	Parallel int
}

// DefaultProperties are stored when a target lists none
var DefaultProperties = map[types.Target][]string{
	types.TargetPH:         {"T"},
	types.TargetSaturation: {"T", "hl", "hv"},
	types.TargetSpinodal:   {"hl", "hv"},
}

func (c *Config) properties(t types.Target) []string {
	if props := c.Properties[t]; len(props) != 0 {
		return props
	}
	return DefaultProperties[t]
}

func (c *Config) check() error {
	if len(c.Targets) == 0 {
		return fmt.Errorf("%w: no target to tabulate", types.ErrConfiguration)
	}
	if !(c.Pmax > c.Pmin) || !(c.Tmax > c.Tmin) {
		return fmt.Errorf("%w: empty envelope p = [%g, %g], T = [%g, %g]",
			types.ErrConfiguration, c.Pmin, c.Pmax, c.Tmin, c.Tmax)
	}
	for _, q := range c.Qualities {
		if !c.has(q.Target) {
			return fmt.Errorf("%w: quality %s is on a target that is not built", types.ErrConfiguration, &q)
		}
	}
	return nil
}

func (c *Config) has(t types.Target) bool {
	for _, tg := range c.Targets {
		if tg == t {
			return true
		}
	}
	return false
}

// Driver owns the meshes and node fields of a table under construction
type Driver struct {
	Config
	RunID string

	Hmin, Hmax          float64
	Pcrit, Tcrit, Hcrit float64 // -1 without a critical point
	CurvePmax           float64

	PH      *mesh.PHMesh
	Curves  map[types.Target]*mesh.Curve
	History History
	// Interp is the table of the last iteration, rebuilt from its own persisted snapshot
	Interp *interp.Interpolator

	ref       eos.Evaluator
	logger    *slog.Logger
	fields    map[types.Target]map[string][]float64
	status    map[types.Target][]types.Status
	evaluated map[types.Target]int
	capped    map[types.Target]bool
}

// New derives the domain from the reference and builds the initial meshes
func New(cfg Config, ref eos.Evaluator, logger *slog.Logger) (d *Driver, err error) {
	if err = cfg.check(); err != nil {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	d = &Driver{
		Config: cfg,
		RunID:  uuid.Must(uuid.NewV7()).String(),
		Pcrit:  -1, Tcrit: -1, Hcrit: -1,
		Curves:    make(map[types.Target]*mesh.Curve),
		ref:       ref,
		fields:    make(map[types.Target]map[string][]float64),
		status:    make(map[types.Target][]types.Status),
		evaluated: make(map[types.Target]int),
		capped:    make(map[types.Target]bool),
	}
	d.logger = logger.With("run", d.RunID, "reference", ref.Name())
	if err = d.domain(); err != nil {
		return nil, err
	}
	for _, t := range cfg.Targets {
		d.fields[t] = make(map[string][]float64)
		if t == types.TargetPH {
			if d.PH, err = mesh.NewPHMesh(cfg.Pmin, cfg.Pmax, d.Hmin, d.Hmax, cfg.NbP, cfg.NbH); err != nil {
				return nil, err
			}
			continue
		}
		if !(d.CurvePmax > cfg.Pmin) {
			return nil, fmt.Errorf("%w: %s curve is empty, critical pressure %g is below pmin %g",
				types.ErrConfiguration, t, d.Pcrit, cfg.Pmin)
		}
		if d.Curves[t], err = mesh.NewCurve(cfg.Pmin, d.CurvePmax, cfg.NbP); err != nil {
			return nil, err
		}
	}
	return
}

// domain spans h over the enthalpies of the 4 corners of the (p,T) envelope
func (d *Driver) domain() (err error) {
	if pc, tc, hc, ok := d.ref.Critical(); ok {
		d.Pcrit, d.Tcrit, d.Hcrit = pc, tc, hc
	}
	d.CurvePmax = d.Pmax
	if d.Pcrit > 0 {
		d.CurvePmax = min(d.Pmax, d.Pcrit)
	}
	if !d.has(types.TargetPH) {
		return
	}
	q := eos.Query{
		Kind: eos.QueryPT,
		P:    []float64{d.Pmin, d.Pmin, d.Pmax, d.Pmax},
		X:    []float64{d.Tmin, d.Tmax, d.Tmin, d.Tmax},
	}
	var res *eos.Result
	if res, err = d.ref.Evaluate(q, []string{"h"}); err != nil {
		return fmt.Errorf("failed to derive the enthalpy range: %w", err)
	}
	for n, st := range res.Status {
		if !st.OK() {
			return fmt.Errorf("%w: h(p = %g, T = %g) at an envelope corner", st.Err(), q.P[n], q.X[n])
		}
	}
	h := res.Values["h"]
	d.Hmin, d.Hmax = floats.Min(h), floats.Max(h)
	d.logger.Info("domain", "pmin", d.Pmin, "pmax", d.Pmax, "hmin", d.Hmin, "hmax", d.Hmax, "pcrit", d.Pcrit)
	return
}

// nodeCount is the number of nodes of a target's mesh
func (d *Driver) nodeCount(t types.Target) int {
	if t == types.TargetPH {
		return len(d.PH.Nodes)
	}
	return len(d.Curves[t].Nodes)
}

func (d *Driver) cellCount(t types.Target) int {
	if t == types.TargetPH {
		return len(d.PH.Cells)
	}
	return len(d.Curves[t].Segments)
}

func (d *Driver) level(t types.Target) int {
	if t == types.TargetPH {
		return d.PH.MaxLevel()
	}
	return d.Curves[t].MaxLevel()
}

// evaluate sends the nodes appended since the last call to the reference
func (d *Driver) evaluate(t types.Target) (err error) {
	var (
		from  = d.evaluated[t]
		n     = d.nodeCount(t)
		props = d.properties(t)
		ids   []int
		q     = eos.Query{Kind: eos.KindFor(t)}
	)
	for id := from; id < n; id++ {
		if t == types.TargetPH {
			nd := d.PH.Nodes[id]
			if nd.Kind != mesh.Real {
				continue
			}
			q.P, q.X = append(q.P, nd.P), append(q.X, nd.H)
		} else {
			q.P = append(q.P, d.Curves[t].Nodes[id])
		}
		ids = append(ids, id)
	}
	for _, name := range props {
		d.fields[t][name] = grow(d.fields[t][name], n, math.NaN())
	}
	d.status[t] = growStatus(d.status[t], n)
	if len(ids) != 0 {
		var res *eos.Result
		if res, err = eos.EvaluateParallel(d.ref, q, props, d.Parallel); err != nil {
			return fmt.Errorf("reference evaluation of the %s mesh: %w", t, err)
		}
		var failed int
		for k, id := range ids {
			for _, name := range props {
				d.fields[t][name][id] = res.Values[name][k]
			}
			d.status[t][id] = res.Status[k]
			if !res.Status[k].OK() {
				failed++
			}
		}
		if failed != 0 {
			d.logger.Warn("upstream failures", "target", t.String(), "points", failed, "of", len(ids))
		}
	}
	if t == types.TargetPH {
		for _, name := range props {
			d.PH.ContinuityValues(d.fields[t][name])
		}
		d.PH.ContinuityStatus(d.status[t])
	}
	d.evaluated[t] = n
	return
}

func grow(a []float64, n int, fill float64) []float64 {
	for len(a) < n {
		a = append(a, fill)
	}
	return a
}

func growStatus(a []types.Status, n int) []types.Status {
	for len(a) < n {
		a = append(a, types.StatusOK)
	}
	return a
}

// Header names the method, reference and the initial meshes of the table
func (d *Driver) Header() string {
	var b strings.Builder
	fmt.Fprintf(&b, "eos:%s/%s/", d.Method, d.Reference)
	if d.has(types.TargetPH) {
		fmt.Fprintf(&b, "mesh_ph/p_%d_nodes_%e_%e/h_%d_nodes_%e_%e/",
			d.NbP, d.Pmin, d.Pmax, d.NbH, d.Hmin, d.Hmax)
	}
	if d.has(types.TargetSaturation) || d.has(types.TargetSpinodal) {
		fmt.Fprintf(&b, "mesh_p/p_%d_nodes_%e_%e/", d.NbP, d.Pmin, d.Pmax)
	}
	return b.String()
}

// Write persists the meshes, fields, statuses and domain scalars
func (d *Driver) Write(s store.MeshStore) (err error) {
	if err = s.WriteHeader(d.Header()); err != nil {
		return
	}
	scalars := map[string]float64{
		"pmin": d.Pmin, "pmax": d.Pmax, "tmin": d.Tmin, "tmax": d.Tmax,
		"pcrit": d.Pcrit, "tcrit": d.Tcrit, "hcrit": d.Hcrit,
	}
	if d.PH != nil {
		scalars["hmin"], scalars["hmax"] = d.Hmin, d.Hmax
		scalars["delta_p"], scalars["delta_h"] = d.PH.DeltaP, d.PH.DeltaH
	}
	for name, v := range scalars {
		if err = s.WriteScalar(name, v); err != nil {
			return
		}
	}
	for _, t := range d.Targets {
		var (
			name  = t.MeshName()
			cells [][]int
		)
		if t == types.TargetPH {
			if err = store.WritePHMesh(s, name, d.PH); err != nil {
				return
			}
			cells, _ = d.PH.Polygons()
		} else {
			c := d.Curves[t]
			if err = store.WriteCurve(s, name, c); err != nil {
				return
			}
			for _, sg := range c.Segments {
				cells = append(cells, []int{sg[0], sg[1]})
			}
		}
		for _, prop := range d.properties(t) {
			if err = s.WriteField(name, prop, d.fields[t][prop]); err != nil {
				return
			}
			if err = store.WriteStatus(s, name, prop, d.status[t], cells); err != nil {
				return
			}
		}
	}
	return
}

// snapshot persists the current state in memory and loads a table over exactly that state
func (d *Driver) snapshot() (ip *interp.Interpolator, err error) {
	s := store.NewMemory()
	defer s.Close()
	if err = d.Write(s); err != nil {
		return
	}
	return interp.Load(s)
}

// assess runs every quality criterion of t, failing flags the cells of any failing point
func (d *Driver) assess(iter int, t types.Target) (converged bool, failing []bool, err error) {
	converged = true
	failing = make([]bool, d.cellCount(t))
	for i := range d.Qualities {
		e := &d.Qualities[i]
		if e.Target != t {
			continue
		}
		var r *quality.Record
		if t == types.TargetPH {
			r, err = e.EvaluatePH(d.PH, d.Interp, d.ref)
		} else {
			r, err = e.EvaluateCurve(d.Curves[t], d.Interp, d.ref)
		}
		if err != nil {
			return false, nil, fmt.Errorf("quality %s: %w", e, err)
		}
		for k, f := range r.CellFail {
			failing[k] = failing[k] || f
		}
		ok := r.Converged()
		converged = converged && ok
		d.History = append(d.History, Iteration{
			Iteration: iter, Target: t.String(), Property: types.NormalizeName(e.Property),
			Strategy: d.Strategy.String(), Level: d.level(t),
			Nodes: d.nodeCount(t), Cells: d.cellCount(t),
			Max: r.Max, Mean: r.Average, Failing: r.Failing(), Converged: ok,
		})
		d.logger.Info("quality", "iteration", iter, "criterion", e.String(),
			"max", r.Max, "mean", r.Average, "failing", r.Failing(), "of", len(r.Pass))
	}
	return
}

// refine applies the strategy to a failing target, false when the target cannot be refined further
func (d *Driver) refine(t types.Target, failing []bool) (refined bool, err error) {
	var (
		limit = d.Levels[t]
		added int
	)
	if d.MaxNodes > 0 && d.nodeCount(t) >= d.MaxNodes {
		d.logger.Warn("node budget reached", "target", t.String(), "nodes", d.nodeCount(t), "max", d.MaxNodes)
		return
	}
	switch {
	case d.Strategy == Global:
		if d.level(t) >= limit {
			break
		}
		if t == types.TargetPH {
			added = d.PH.AddGlobalNodes()
		} else {
			added = d.Curves[t].AddGlobalNodes()
		}
	case t == types.TargetPH:
		continuity := d.Strategy == LocalContinuity
		if added, err = d.PH.AddLocalNodes(failing, limit, continuity); err != nil || added == 0 {
			break
		}
		if continuity {
			st := d.PH.AddContinuityNodes()
			d.logger.Debug("stitched", "cells", len(st.Corrections), "continuity", len(st.Sources))
		}
	default:
		added, err = d.Curves[t].AddLocalNodes(failing, limit)
	}
	if err != nil {
		return
	}
	if added == 0 {
		d.logger.Warn("level cap reached", "target", t.String(), "level", d.level(t), "cap", limit)
		return
	}
	d.logger.Info("refined", "target", t.String(), "strategy", d.Strategy.String(),
		"added", added, "nodes", d.nodeCount(t), "cells", d.cellCount(t), "level", d.level(t))
	return true, nil
}

// Run iterates evaluate, persist, reload, assess and refine until every target converged or capped
func (d *Driver) Run() (converged bool, err error) {
	for iter := 0; ; iter++ {
		for _, t := range d.Targets {
			if err = d.evaluate(t); err != nil {
				return
			}
		}
		if d.Interp, err = d.snapshot(); err != nil {
			return false, fmt.Errorf("iteration %d snapshot: %w", iter, err)
		}
		var (
			refined bool
			done    = true
		)
		for _, t := range d.Targets {
			var (
				ok      bool
				failing []bool
			)
			if ok, failing, err = d.assess(iter, t); err != nil {
				return
			}
			if ok {
				continue
			}
			done = false
			if d.capped[t] {
				continue
			}
			var more bool
			if more, err = d.refine(t, failing); err != nil {
				return
			}
			d.capped[t] = !more
			refined = refined || more
		}
		d.logger.Info("iteration", "iteration", iter, "converged", done, utils.MemUsage())
		if done || !refined {
			return done, nil
		}
	}
}
