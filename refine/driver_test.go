package refine

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/phtab/eos"
	"github.com/notargets/phtab/interp"
	"github.com/notargets/phtab/mesh"
	"github.com/notargets/phtab/quality"
	"github.com/notargets/phtab/store"
	"github.com/notargets/phtab/types"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// kink is linear in h below h = 0.75 and quadratic above, so only the top band needs refining
func kink(t *testing.T) eos.Evaluator {
	t.Helper()
	f, err := eos.NewExprFluid(eos.ExprSpec{
		Name:       "kink",
		PH:         map[string]string{"T": "h < 0.75 ? h : h + 10 * (h - 0.75) * (h - 0.75)"},
		PT:         map[string]string{"h": "T"},
		Saturation: map[string]string{"T": "0.5 + 0.1 * p", "hl": "0.5", "hv": "0.6"},
	})
	require.NoError(t, err)
	return f
}

func kinkConfig(s Strategy) Config {
	return Config{
		Method: "expr", Reference: "kink",
		Pmin: 1, Pmax: 2, Tmin: 0, Tmax: 1,
		NbP: 5, NbH: 5,
		Targets:  []types.Target{types.TargetPH, types.TargetSaturation},
		Levels:   map[types.Target]int{types.TargetPH: 5, types.TargetSaturation: 3},
		Strategy: s,
		Qualities: []quality.Evaluator{
			{Property: "T", Target: types.TargetPH, Policy: quality.Centre, Absolute: true, Tolerance: 1.e-3},
			{Property: "T", Target: types.TargetSaturation, Policy: quality.Centre, Absolute: true, Tolerance: 1.e-9},
		},
	}
}

func TestParseStrategy(t *testing.T) {
	s, err := ParseStrategy("Local-Continuity")
	require.NoError(t, err)
	assert.Equal(t, LocalContinuity, s)
	s, err = ParseStrategy("global")
	require.NoError(t, err)
	assert.Equal(t, Global, s)
	_, err = ParseStrategy("adaptive")
	assert.True(t, errors.Is(err, types.ErrConfiguration))
}

func TestNew(t *testing.T) {
	ref := kink(t)
	{
		d, err := New(kinkConfig(Global), ref, quiet)
		require.NoError(t, err)
		assert.Equal(t, 0., d.Hmin)
		assert.Equal(t, 1., d.Hmax)
		assert.Equal(t, -1., d.Pcrit)
		assert.Equal(t, 2., d.CurvePmax)
		assert.Len(t, d.PH.Nodes, 25)
		assert.Len(t, d.Curves[types.TargetSaturation].Nodes, 5)
		assert.Len(t, d.RunID, 36)
	}
	{
		cfg := kinkConfig(Global)
		cfg.Targets = nil
		_, err := New(cfg, ref, quiet)
		assert.True(t, errors.Is(err, types.ErrConfiguration))

		cfg = kinkConfig(Global)
		cfg.Targets = []types.Target{types.TargetPH}
		_, err = New(cfg, ref, quiet)
		assert.True(t, errors.Is(err, types.ErrConfiguration), "saturation quality without the curve")

		cfg = kinkConfig(Global)
		cfg.NbH = 1
		_, err = New(cfg, ref, quiet)
		assert.True(t, errors.Is(err, types.ErrConfiguration))
	}
}

func TestHeader(t *testing.T) {
	d, err := New(kinkConfig(Local), kink(t), quiet)
	require.NoError(t, err)
	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"), goldie.WithNameSuffix(".golden"))
	g.Assert(t, "header", []byte(d.Header()))
}

func TestRun(t *testing.T) {
	ref := kink(t)
	nodes := make(map[Strategy]int)
	for _, s := range []Strategy{Global, Local, LocalContinuity} {
		d, err := New(kinkConfig(s), ref, quiet)
		require.NoError(t, err)
		converged, err := d.Run()
		require.NoError(t, err)
		assert.True(t, converged, s.String())
		nodes[s] = len(d.PH.Nodes)

		// A 0.25 step needs 4 halvings to bring 10 (dh/2)^2 under 1e-3
		assert.Equal(t, 4, d.PH.MaxLevel(), s.String())
		assert.Equal(t, 0, d.Curves[types.TargetSaturation].MaxLevel(), "linear curve")
		for _, it := range d.History.Final() {
			assert.True(t, it.Converged, "%s %s/%s", s, it.Target, it.Property)
		}
		{ // Nodes only ever get appended
			var last = map[string]int{}
			for _, it := range d.History {
				assert.GreaterOrEqual(t, it.Nodes, last[it.Target])
				last[it.Target] = it.Nodes
			}
		}
		{ // Continuity values are the mean of their sources
			T := d.fields[types.TargetPH]["T"]
			for id, nd := range d.PH.Nodes {
				if nd.Kind == mesh.Continuity {
					assert.Equal(t, 0.5*(T[nd.Sources[0]]+T[nd.Sources[1]]), T[id])
				}
			}
		}
		v, st, err := d.Interp.PH("T", 1.3, 0.9)
		require.NoError(t, err)
		assert.Equal(t, types.StatusOK, st)
		assert.InDelta(t, 0.9+10*0.15*0.15, v, 1.e-3)
	}
	// 65x65 nodes for the global mesh, the local ones only resolve the top band
	assert.Equal(t, 65*65, nodes[Global])
	assert.Less(t, nodes[Local], nodes[Global])
	assert.Less(t, nodes[LocalContinuity], nodes[Global])
}

func TestLimits(t *testing.T) {
	ref := kink(t)
	{ // The level cap stops refinement without an error
		cfg := kinkConfig(LocalContinuity)
		cfg.Levels[types.TargetPH] = 2
		var logs bytes.Buffer
		d, err := New(cfg, ref, slog.New(slog.NewTextHandler(&logs, nil)))
		require.NoError(t, err)
		converged, err := d.Run()
		require.NoError(t, err)
		assert.False(t, converged)
		assert.Equal(t, 2, d.PH.MaxLevel())

		final := d.History.Final()
		require.Len(t, final, 2)
		assert.Equal(t, "ph", final[0].Target)
		assert.False(t, final[0].Converged)
		assert.Greater(t, final[0].Failing, 0)
		assert.Greater(t, final[0].Max, 1.e-3)
		assert.Equal(t, 2, final[0].Level)
		assert.Equal(t, "sat", final[1].Target)
		assert.True(t, final[1].Converged)
		assert.Contains(t, logs.String(), `msg="level cap reached" target=ph level=2 cap=2`)
		assert.Contains(t, logs.String(), "converged=false")
		assert.NotContains(t, logs.String(), "converged=true")
	}
	{
		cfg := kinkConfig(Global)
		cfg.MaxNodes = 30
		d, err := New(cfg, ref, quiet)
		require.NoError(t, err)
		converged, err := d.Run()
		require.NoError(t, err)
		assert.False(t, converged)
		assert.Equal(t, 81, len(d.PH.Nodes))
	}
}

func TestWrite(t *testing.T) {
	cfg := kinkConfig(LocalContinuity)
	cfg.Parallel = 4
	d, err := New(cfg, kink(t), quiet)
	require.NoError(t, err)
	_, err = d.Run()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "kink.nc")
	w, err := store.Create(path)
	require.NoError(t, err)
	require.NoError(t, d.Write(w))
	require.NoError(t, w.Close())
	r, err := store.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	ip, err := interp.Load(r)
	require.NoError(t, err)

	assert.Equal(t, d.Header(), ip.Header)
	assert.Equal(t, []string{"t"}, ip.Properties(types.TargetPH))
	assert.Equal(t, []string{"hl", "hv", "t"}, ip.Properties(types.TargetSaturation))
	for _, q := range [][2]float64{{1, 0}, {1.5, 0.5}, {1.3, 0.77}, {1.99, 0.999}, {2, 1}} {
		want, _, err := d.Interp.PH("T", q[0], q[1])
		require.NoError(t, err)
		got, _, err := ip.PH("T", q[0], q[1])
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	owner, err := r.ReadIntField("ph_domain", store.OwnerField)
	require.NoError(t, err)
	_, offsets, err := r.ReadPolygons("ph_domain")
	require.NoError(t, err)
	assert.Len(t, owner, len(offsets)-1)
}

func TestModelFluid(t *testing.T) {
	cfg := Config{
		Method: "model", Reference: "water",
		Pmin: 1.e6, Pmax: 1.e7, Tmin: 300, Tmax: 700,
		NbP: 5, NbH: 9,
		Targets:    []types.Target{types.TargetPH, types.TargetSaturation, types.TargetSpinodal},
		Properties: map[types.Target][]string{types.TargetPH: {"T", "rho"}},
		Levels:     map[types.Target]int{types.TargetPH: 3, types.TargetSaturation: 4, types.TargetSpinodal: 4},
		Strategy:   LocalContinuity,
		Qualities: []quality.Evaluator{
			{Property: "T", Target: types.TargetPH, Policy: quality.Centre, Tolerance: 1.e-2},
			{Property: "T", Target: types.TargetSaturation, Policy: quality.Centre, Tolerance: 1.e-4},
			{Property: "hl", Target: types.TargetSpinodal, Policy: quality.Node, Tolerance: 1.e-4},
		},
	}
	d, err := New(cfg, eos.NewModelFluid(), quiet)
	require.NoError(t, err)
	_, err = d.Run()
	require.NoError(t, err)
	require.NotEmpty(t, d.History)
	assert.Equal(t, cfg.Pmax, d.CurvePmax)

	ip := d.Interp
	for _, c := range []struct {
		p, T   float64
		branch interp.Branch
	}{
		{5.e6, 350, interp.Liquid},
		{1.e6, 620, interp.Vapor},
	} {
		b, err := ip.Branch(c.p, c.T)
		require.NoError(t, err)
		assert.Equal(t, c.branch, b)
		h, err := ip.HpT(c.p, c.T)
		require.NoError(t, err)
		T, _, err := ip.PH("T", c.p, h)
		require.NoError(t, err)
		assert.InDelta(t, c.T, T, 1.e-6)
	}
	{
		var buf bytes.Buffer
		require.NoError(t, d.History.WriteCSV(&buf))
		h, err := ReadHistory(&buf)
		require.NoError(t, err)
		assert.Equal(t, d.History, h)
	}
}

func TestModelFluidReference(t *testing.T) {
	f := eos.NewModelFluid()
	cfg := Config{
		Method: "model", Reference: "water",
		Pmin: 1.e6, Pmax: 1.e7, Tmin: 300, Tmax: 700,
		NbP: 5, NbH: 9,
		Targets:  []types.Target{types.TargetPH, types.TargetSaturation},
		Levels:   map[types.Target]int{types.TargetPH: 10, types.TargetSaturation: 8},
		Strategy: LocalContinuity,
		Qualities: []quality.Evaluator{
			{Property: "T", Target: types.TargetPH, Policy: quality.Centre, Tolerance: 1.e-3},
			{Property: "T", Target: types.TargetSaturation, Policy: quality.Centre, Tolerance: 1.e-4},
		},
	}
	d, err := New(cfg, f, quiet)
	require.NoError(t, err)
	converged, err := d.Run()
	require.NoError(t, err)
	require.True(t, converged)
	for _, it := range d.History.Final() {
		assert.True(t, it.Converged, "%s/%s", it.Target, it.Property)
		assert.LessOrEqual(t, it.Level, cfg.Levels[types.TargetPH])
	}

	// Away from the cell centres the error is only bounded to a few times the criterion
	tol := 10 * cfg.Qualities[0].Tolerance
	rng := rand.New(rand.NewSource(1))
	var checked int
	for i := 0; i < 400; i++ {
		p := cfg.Pmin + rng.Float64()*(cfg.Pmax-cfg.Pmin)
		T := cfg.Tmin + 1 + rng.Float64()*(cfg.Tmax-cfg.Tmin-2)
		tsat, _, _ := f.Saturation(p)
		// The two phase plateau has no single enthalpy
		if math.Abs(T-tsat) < 20 {
			continue
		}
		want := interp.Liquid
		if T > tsat {
			want = interp.Vapor
		}
		b, err := d.Interp.Branch(p, T)
		require.NoError(t, err)
		require.Equal(t, want, b, "p = %g, T = %g", p, T)
		h, err := d.Interp.HpT(p, T)
		require.NoError(t, err, "p = %g, T = %g", p, T)
		assert.InDelta(t, T, f.Temperature(p, h), tol*T, "p = %g, T = %g, h = %g", p, T, h)
		checked++
	}
	assert.Greater(t, checked, 250)
}
