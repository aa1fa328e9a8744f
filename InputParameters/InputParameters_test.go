package InputParameters

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/phtab/eos"
	"github.com/notargets/phtab/quality"
	"github.com/notargets/phtab/refine"
	"github.com/notargets/phtab/types"
)

func TestTableParameters(t *testing.T) {
	fileInput := []byte(`
Title: Test Case
Method: expr
Reference: ramp
Pmin: 1.e5
Pmax: 2.e5
Tmin: 300
Tmax: 400
NbP: 3
NbH: 4
Targets: [ph, sat]
Properties:
  ph: [T, rho]
Levels:
  ph: 5
  saturation: 2
Strategy: Local-Continuity
MaxNodes: 10000
Qualities:
  - {Property: T, Target: ph, Policy: centre, Tolerance: 1.0e-3}
  - {Property: hl, Target: sat, Policy: nodes, Absolute: true, Tolerance: 0.5}
Fluid:
  PH: {T: "300 + h", rho: "p / h"}
  PT: {h: "T - 300"}
  Saturation: {T: "350", hl: "40", hv: "60"}
`)
	var input TableParameters
	require.NoError(t, input.Parse(fileInput))
	input.Print()
	assert.Equal(t, 2.e5, input.Pmax)
	assert.Equal(t, []string{"T", "rho"}, input.Properties["ph"])
	assert.Equal(t, "p / h", input.Fluid.PH["rho"])

	cfg, err := input.Config()
	require.NoError(t, err)
	assert.Equal(t, refine.LocalContinuity, cfg.Strategy)
	assert.Equal(t, []types.Target{types.TargetPH, types.TargetSaturation}, cfg.Targets)
	assert.Equal(t, map[types.Target]int{types.TargetPH: 5, types.TargetSaturation: 2}, cfg.Levels)
	assert.Equal(t, 10000, cfg.MaxNodes)
	assert.Equal(t, 1, cfg.Parallel, "serial unless asked for")
	assert.Equal(t, []quality.Evaluator{
		{Property: "T", Target: types.TargetPH, Policy: quality.Centre, Tolerance: 1.e-3},
		{Property: "hl", Target: types.TargetSaturation, Policy: quality.Node, Absolute: true, Tolerance: 0.5},
	}, cfg.Qualities)

	ref, err := input.Evaluator()
	require.NoError(t, err)
	assert.Equal(t, "ramp", ref.Name())
	r, err := ref.Evaluate(eos.Query{Kind: eos.QueryPH, P: []float64{1.e5}, X: []float64{50}}, []string{"T"})
	require.NoError(t, err)
	assert.Equal(t, 350., r.Values["T"][0])
	{
		bad := input
		bad.Strategy = "adaptive"
		_, err := bad.Config()
		assert.True(t, errors.Is(err, types.ErrConfiguration))

		bad = input
		bad.Targets = []string{"ph", "dome"}
		_, err = bad.Config()
		assert.True(t, errors.Is(err, types.ErrConfiguration))

		bad = input
		bad.Fluid = nil
		_, err = bad.Evaluator()
		assert.True(t, errors.Is(err, types.ErrConfiguration))

		bad.Method = "refprop"
		_, err = bad.Evaluator()
		assert.True(t, errors.Is(err, types.ErrConfiguration))

		par := input
		par.Parallel = 4
		cfg, err := par.Config()
		require.NoError(t, err)
		assert.Equal(t, 4, cfg.Parallel)

		bad.Method = "Model"
		ref, err := bad.Evaluator()
		require.NoError(t, err)
		assert.Equal(t, "model", ref.Name())
	}
}
