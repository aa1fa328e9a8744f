package eos

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/phtab/types"
)

func TestModelFluid(t *testing.T) {
	f := NewModelFluid()
	{ // h(p,T) and T(p,h) are inverse on both single phase branches
		for _, p := range []float64{1.e5, 1.e6, 1.e7, 3.e7} {
			tsat, hl, hv := f.Saturation(p)
			assert.LessOrEqual(t, hl, hv)
			for _, T := range []float64{tsat - 50, tsat + 80} {
				h := f.Enthalpy(p, T)
				assert.InDelta(t, T, f.Temperature(p, h), 1.e-9)
			}
			assert.InDelta(t, tsat, f.Temperature(p, 0.5*(hl+hv)), 1.e-9)
		}
	}
	{ // Latent heat vanishes at the critical point
		pc, tc, hc, ok := f.Critical()
		require.True(t, ok)
		tsat, hl, hv := f.Saturation(pc)
		assert.Equal(t, tc, tsat)
		assert.Equal(t, hc, hl)
		assert.Equal(t, hl, hv)
	}
	{
		r, err := f.Evaluate(Query{Kind: QueryPH, P: []float64{1.e5, -1}, X: []float64{4.e5, 4.e5}}, []string{"T", "rho"})
		require.NoError(t, err)
		assert.Equal(t, types.StatusOK, r.Status[0])
		assert.Equal(t, types.StatusUpstreamFailure, r.Status[1])
		assert.InDelta(t, 273.15+4.e5/4186, r.Values["T"][0], 1.e-9)
		assert.InDelta(t, 1000., r.Values["rho"][0], 1.e-9)
		assert.True(t, math.IsNaN(r.Values["T"][1]))
	}
	{
		r, err := f.Evaluate(Query{Kind: QuerySaturation, P: []float64{1.e5}}, []string{"T_sat", "h-l", "hv"})
		require.Error(t, err)
		assert.True(t, errors.Is(err, types.ErrPropertyNotFound))
		assert.Nil(t, r)
		r, err = f.Evaluate(Query{Kind: QuerySaturation, P: []float64{1.e5}}, []string{"T", "h-l", "hv"})
		require.NoError(t, err)
		tsat, hl, hv := f.Saturation(1.e5)
		assert.Equal(t, tsat, r.Values["T"][0])
		assert.Equal(t, hl, r.Values["h-l"][0])
		assert.Equal(t, hv, r.Values["hv"][0])
	}
	{
		r, err := f.Evaluate(Query{Kind: QuerySpinodal, P: []float64{1.e5}}, []string{"hl", "hv"})
		require.NoError(t, err)
		_, hl, hv := f.Saturation(1.e5)
		assert.Greater(t, r.Values["hl"][0], hl)
		assert.Less(t, r.Values["hv"][0], hv)
	}
	{
		_, err := f.Evaluate(Query{Kind: QueryPT, P: []float64{1.e5, 2.e5}, X: []float64{300}}, []string{"h"})
		assert.True(t, errors.Is(err, types.ErrConfiguration))
	}
}

func TestExprFluid(t *testing.T) {
	f, err := NewExprFluid(ExprSpec{
		Name:       "linear",
		PH:         map[string]string{"T": "300 + 1e-4 * (p - 1e5) + 2e-4 * (h - 1e5)", "rho": "1000 / sqrt(h)", "bad": "log(h - 1e9)"},
		PT:         map[string]string{"h": "1e5 + 5000 * (T - 300) - 0.5 * (p - 1e5)"},
		Saturation: map[string]string{"T": "372 + pow(p / 1e5, 2)"},
		Critical:   []float64{2.e7, 640, 2.e6},
	})
	require.NoError(t, err)
	assert.Equal(t, "linear", f.Name())
	{
		r, err := f.Evaluate(Query{Kind: QueryPH, P: []float64{1.e5, 2.e5}, X: []float64{1.e5, 2.e5}}, []string{"t", "bad"})
		require.NoError(t, err)
		assert.Equal(t, []float64{300, 330}, r.Values["t"])
		assert.Equal(t, types.StatusUpstreamFailure, r.Status[0])
		assert.True(t, math.IsNaN(r.Values["bad"][1]))
	}
	{
		r, err := f.Evaluate(Query{Kind: QuerySaturation, P: []float64{2.e5}}, []string{"T"})
		require.NoError(t, err)
		assert.Equal(t, 376., r.Values["T"][0])
		assert.Equal(t, types.StatusOK, r.Status[0])
	}
	{
		_, err := f.Evaluate(Query{Kind: QuerySpinodal, P: []float64{2.e5}}, []string{"hl"})
		assert.True(t, errors.Is(err, types.ErrPropertyNotFound))
		pc, _, _, ok := f.Critical()
		assert.True(t, ok)
		assert.Equal(t, 2.e7, pc)
	}
	{
		_, err := NewExprFluid(ExprSpec{PH: map[string]string{"T": "p +"}})
		assert.True(t, errors.Is(err, types.ErrConfiguration))
		g, err := NewExprFluid(ExprSpec{})
		require.NoError(t, err)
		_, _, _, ok := g.Critical()
		assert.False(t, ok)
		assert.Equal(t, "expr", g.Name())
	}
}

func TestEvaluateParallel(t *testing.T) {
	f := NewModelFluid()
	q := Query{Kind: QueryPH}
	for i := 0; i < 287; i++ {
		q.P = append(q.P, 1.e5+float64(i)*1.e5)
		q.X = append(q.X, 1.e5+float64(i%40)*8.e4)
	}
	q.P[13] = -1 // One upstream failure
	props := []string{"T", "rho"}
	want, err := f.Evaluate(q, props)
	require.NoError(t, err)
	for _, np := range []int{1, 2, 7, 32, 200} {
		got, err := EvaluateParallel(f, q, props, np)
		require.NoError(t, err)
		assert.Equal(t, want.Status, got.Status, "np = %d", np)
		for _, name := range props {
			for i, v := range want.Values[name] {
				if math.IsNaN(v) {
					assert.True(t, math.IsNaN(got.Values[name][i]))
					continue
				}
				assert.Equal(t, v, got.Values[name][i], "np = %d, %s[%d]", np, name, i)
			}
		}
		assert.True(t, math.IsNaN(got.Values["rho"][13]))
	}
	{
		_, err := EvaluateParallel(f, q, []string{"cp"}, 4)
		assert.True(t, errors.Is(err, types.ErrPropertyNotFound))
		_, err = EvaluateParallel(f, Query{Kind: QueryPH, P: q.P, X: q.X[:10]}, props, 4)
		assert.True(t, errors.Is(err, types.ErrConfiguration))
	}
}
