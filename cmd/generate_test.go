package cmd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/phtab/InputParameters"
	"github.com/notargets/phtab/catalog"
	"github.com/notargets/phtab/interp"
	"github.com/notargets/phtab/refine"
	"github.com/notargets/phtab/store"
	"github.com/notargets/phtab/types"
)

// A fluid linear in h is resolved by the initial meshes
const linearInput = `
Title: Linear fluid
Method: expr
Reference: linear
Pmin: 1
Pmax: 2
Tmin: 300
Tmax: 400
NbP: 5
NbH: 5
Targets: [ph, sat]
Properties:
  ph: [T, rho]
Levels:
  ph: 3
  sat: 3
Strategy: local
Qualities:
  - {Property: T, Target: ph, Policy: centre, Absolute: true, Tolerance: 1.0e-6}
  - {Property: T, Target: sat, Policy: node, Absolute: true, Tolerance: 1.0e-6}
Fluid:
  PH: {T: "300 + 100*h", rho: "1000 - 100*h"}
  PT: {h: "(T - 300)/100"}
  Saturation: {T: "350 + 10*p", hl: "0.4", hv: "0.6"}
Output: "%s"
History: "%s"
`

func generateLinear(t *testing.T) (g *Generate, d *refine.Driver, output, history string) {
	t.Helper()
	dir := t.TempDir()
	output, history = filepath.Join(dir, "linear.nc"), filepath.Join(dir, "linear.csv")
	var tp InputParameters.TableParameters
	require.NoError(t, tp.Parse([]byte(fmt.Sprintf(linearInput, output, history))))
	g = &Generate{Catalog: filepath.Join(dir, "catalog.db")}
	d, err := RunGenerate(context.Background(), g, &tp, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return
}

func TestRunGenerate(t *testing.T) {
	g, d, output, history := generateLinear(t)
	{
		c, err := catalog.Open(g.Catalog)
		require.NoError(t, err)
		defer c.Close()
		e, err := c.Get(context.Background(), d.RunID)
		require.NoError(t, err)
		assert.Equal(t, output, e.Path)
		assert.Equal(t, "local", e.Strategy)
		assert.Equal(t, 0, e.Levels)
		assert.Equal(t, 25+5, e.Nodes)
		assert.True(t, e.Converged)
		assert.Equal(t, d.Header(), e.Header)
	}
	{
		f, err := os.Open(history)
		require.NoError(t, err)
		defer f.Close()
		h, err := refine.ReadHistory(f)
		require.NoError(t, err)
		assert.Equal(t, d.History, h)
		assert.Len(t, h.Final(), 2)
	}
	{
		var buf bytes.Buffer
		c, err := catalog.Open(g.Catalog)
		require.NoError(t, err)
		defer c.Close()
		entries, err := c.List(context.Background(), "linear")
		require.NoError(t, err)
		PrintCatalog(&buf, entries)
		assert.Contains(t, buf.String(), d.RunID)
		assert.Contains(t, buf.String(), " "+output)
	}
	{ // Without a catalog the table is still written
		var tp InputParameters.TableParameters
		out := filepath.Join(t.TempDir(), "other.nc")
		require.NoError(t, tp.Parse([]byte(fmt.Sprintf(linearInput, out, ""))))
		_, err := RunGenerate(context.Background(), &Generate{}, &tp, slog.New(slog.NewTextHandler(io.Discard, nil)))
		require.NoError(t, err)
		assert.FileExists(t, out)
	}
}

func TestReport(t *testing.T) {
	_, _, output, _ := generateLinear(t)
	s, err := store.Open(output)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	ip, err := interp.Load(s)
	require.NoError(t, err)

	var buf bytes.Buffer
	for _, q := range []*Query{
		{Target: types.TargetPH, P: 1.5, H: 0.25},
		{Target: types.TargetPH, P: 1.5, T: 330, Invert: true},
		{Target: types.TargetPH, Properties: []string{"T", "cp"}, P: 1.25, H: 0.5},
		{Target: types.TargetSaturation, P: 1.5},
	} {
		require.NoError(t, Report(&buf, ip, q, false))
	}
	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"), goldie.WithNameSuffix(".golden"))
	g.Assert(t, "report", buf.Bytes())

	{
		err := Report(io.Discard, ip, &Query{Target: types.TargetSpinodal, P: 1.5}, false)
		assert.ErrorIs(t, err, types.ErrConfiguration)
		err = Report(io.Discard, ip, &Query{Target: types.TargetPH, P: 3, H: 0.5}, false)
		assert.ErrorIs(t, err, types.ErrOutOfBounds)
	}
}
