package quality

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/phtab/eos"
	"github.com/notargets/phtab/interp"
	"github.com/notargets/phtab/mesh"
	"github.com/notargets/phtab/store"
	"github.com/notargets/phtab/types"
)

func fluid(t *testing.T) eos.Evaluator {
	t.Helper()
	f, err := eos.NewExprFluid(eos.ExprSpec{
		Name:       "quadratic",
		PH:         map[string]string{"T": "h * h", "lin": "3 * p + 2 * h"},
		Saturation: map[string]string{"T": "p * p"},
	})
	require.NoError(t, err)
	return f
}

// firstFails marks the first point of every batch as an upstream failure
type firstFails struct{ eos.Evaluator }

func (f firstFails) Evaluate(q eos.Query, props []string) (r *eos.Result, err error) {
	if r, err = f.Evaluator.Evaluate(q, props); err != nil || q.Len() == 0 {
		return
	}
	r.Status[0] = types.StatusUpstreamFailure
	for _, name := range props {
		r.Values[name][0] = math.NaN()
	}
	return
}

func phTable(t *testing.T, m *mesh.PHMesh, ref eos.Evaluator, props ...string) *interp.Interpolator {
	t.Helper()
	s := store.NewMemory()
	for name, v := range map[string]float64{
		"pmin": m.Pmin, "pmax": m.Pmax, "hmin": m.Hmin, "hmax": m.Hmax, "delta_p": m.DeltaP, "delta_h": m.DeltaH,
		"tmin": 300, "tmax": 700,
	} {
		require.NoError(t, s.WriteScalar(name, v))
	}
	require.NoError(t, store.WritePHMesh(s, "ph_domain", m))
	P, H := m.Coordinates()
	res, err := ref.Evaluate(eos.Query{Kind: eos.QueryPH, P: P, X: H}, props)
	require.NoError(t, err)
	for _, name := range props {
		require.NoError(t, s.WriteField("ph_domain", name, res.Values[name]))
	}
	ip, err := interp.Load(s)
	require.NoError(t, err)
	return ip
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy(" Center")
	require.NoError(t, err)
	assert.Equal(t, Centre, p)
	p, err = ParsePolicy("node")
	require.NoError(t, err)
	assert.Equal(t, Node, p)
	_, err = ParsePolicy("edges")
	assert.True(t, errors.Is(err, types.ErrConfiguration))
}

func TestEvaluatePH(t *testing.T) {
	var (
		ref = fluid(t)
	)
	m, err := mesh.NewPHMesh(1, 2, 0, 1, 3, 3)
	require.NoError(t, err)
	ip := phTable(t, m, ref, "T", "lin")
	{ // Bilinear quads reproduce a linear field
		e := &Evaluator{Property: "lin", Target: types.TargetPH, Policy: Centre, Absolute: true, Tolerance: 1.e-9}
		r, err := e.EvaluatePH(m, ip, ref)
		require.NoError(t, err)
		assert.True(t, r.Converged())
		assert.Len(t, r.Discrepancy, 4)
		assert.InDelta(t, 0, r.Max, 1.e-12)
	}
	{ // h^2 misses the centre by (dh/2)^2
		e := &Evaluator{Property: "T", Target: types.TargetPH, Policy: Centre, Absolute: true, Tolerance: 0.01}
		r, err := e.EvaluatePH(m, ip, ref)
		require.NoError(t, err)
		assert.False(t, r.Converged())
		assert.Equal(t, 4, r.Failing())
		assert.Equal(t, []bool{true, true, true, true}, r.CellFail)
		assert.InDelta(t, 0.0625, r.Average, 1.e-12)
		assert.InDelta(t, 0.0625, r.Max, 1.e-12)

		e.Tolerance = 0.1
		r, err = e.EvaluatePH(m, ip, ref)
		require.NoError(t, err)
		assert.True(t, r.Converged())

		e.Tolerance = 0
		r, err = e.EvaluatePH(m, ip, ref)
		require.NoError(t, err)
		assert.True(t, r.Converged())
	}
	{ // Re-running on the same snapshot gives the same record
		e := &Evaluator{Property: "T", Target: types.TargetPH, Policy: Centre, Tolerance: 0.05}
		r1, err := e.EvaluatePH(m, ip, ref)
		require.NoError(t, err)
		r2, err := e.EvaluatePH(m, ip, ref)
		require.NoError(t, err)
		assert.Equal(t, r1, r2)
	}
	{ // Upstream failures are left out of the comparison
		e := &Evaluator{Property: "T", Target: types.TargetPH, Policy: Centre, Absolute: true, Tolerance: 0.01}
		r, err := e.EvaluatePH(m, ip, firstFails{ref})
		require.NoError(t, err)
		assert.False(t, r.Compared[0])
		assert.True(t, r.Pass[0])
		assert.Equal(t, 3, r.Failing())
		assert.InDelta(t, 0.0625, r.Average, 1.e-12)
	}
	{
		e := &Evaluator{Property: "T", Target: types.TargetSaturation, Policy: Centre}
		_, err := e.EvaluatePH(m, ip, ref)
		assert.True(t, errors.Is(err, types.ErrConfiguration))
		e = &Evaluator{Property: "rho", Target: types.TargetPH, Policy: Centre}
		_, err = e.EvaluatePH(m, ip, ref)
		assert.True(t, errors.Is(err, types.ErrPropertyNotFound))
	}
}

func TestHangingNodes(t *testing.T) {
	ref := fluid(t)
	m, err := mesh.NewPHMesh(0, 2, 0, 2, 3, 3)
	require.NoError(t, err)
	_, err = m.AddLocalNodes([]bool{true, false, false, false}, 4, false)
	require.NoError(t, err)
	ip := phTable(t, m, ref, "T")
	e := &Evaluator{Property: "T", Target: types.TargetPH, Policy: Node, Absolute: true, Tolerance: 0.1}
	r, err := e.EvaluatePH(m, ip, ref)
	require.NoError(t, err)
	// The node at (1,0.5) hangs on the left edge of cell 2 where the table is linear in h
	assert.Equal(t, 1, r.Failing())
	for n := range r.P {
		if !r.Pass[n] {
			assert.Equal(t, 1., r.P[n])
			assert.Equal(t, 0.5, r.H[n])
			assert.InDelta(t, 0.25, r.Discrepancy[n], 1.e-12)
		}
	}
	var flagged int
	for _, f := range r.CellFail {
		if f {
			flagged++
		}
	}
	assert.Equal(t, 3, flagged)
	assert.True(t, r.CellFail[2])
	assert.False(t, r.CellFail[1])
	assert.False(t, r.CellFail[3])
}

func TestEvaluateCurve(t *testing.T) {
	ref := fluid(t)
	c, err := mesh.NewCurve(1, 3, 3)
	require.NoError(t, err)
	s := store.NewMemory()
	for name, v := range map[string]float64{"pmin": 1, "pmax": 3, "tmin": 300, "tmax": 700} {
		require.NoError(t, s.WriteScalar(name, v))
	}
	require.NoError(t, store.WriteCurve(s, "sat_domain", c))
	res, err := ref.Evaluate(eos.Query{Kind: eos.QuerySaturation, P: c.Nodes}, []string{"T"})
	require.NoError(t, err)
	require.NoError(t, s.WriteField("sat_domain", "T", res.Values["T"]))
	ip, err := interp.Load(s)
	require.NoError(t, err)
	{
		e := &Evaluator{Property: "T", Target: types.TargetSaturation, Policy: Centre, Absolute: true, Tolerance: 0.1}
		r, err := e.EvaluateCurve(c, ip, ref)
		require.NoError(t, err)
		assert.Equal(t, []float64{1.5, 2.5}, r.P)
		assert.Nil(t, r.H)
		assert.InDelta(t, 0.25, r.Average, 1.e-12)
		assert.Equal(t, []bool{true, true}, r.CellFail)
	}
	{
		e := &Evaluator{Property: "T", Target: types.TargetSaturation, Policy: Node, Absolute: true, Tolerance: 0.1}
		r, err := e.EvaluateCurve(c, ip, ref)
		require.NoError(t, err)
		assert.True(t, r.Converged())
		assert.Equal(t, []bool{false, false}, r.CellFail)
	}
	{
		e := &Evaluator{Property: "T", Target: types.TargetPH, Policy: Node}
		_, err := e.EvaluateCurve(c, ip, ref)
		assert.True(t, errors.Is(err, types.ErrConfiguration))
	}
}
