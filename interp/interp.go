// Package interp answers property queries from a persisted table
package interp

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/notargets/phtab/store"
	"github.com/notargets/phtab/types"
	"github.com/notargets/phtab/utils"
)

// surface is the ph mesh as loaded
type surface struct {
	P, H   []float64
	Quads  [][4]int
	Grid   *IndexGrid
	fields map[string][]float64
	status map[string][]types.Status // per quad
}

// curve is a p curve with its nodes sorted by pressure
type curve struct {
	P          []float64
	Pmin, Pmax float64
	fields     map[string][]float64
	status     map[string][]types.Status // per interval between sorted nodes
}

/*
Interpolator is an immutable view of one persisted table.
It is rebuilt from the store rather than updated, so what is tested is what was written.
*/
type Interpolator struct {
	Header                 string
	Pmin, Pmax, Hmin, Hmax float64
	Tmin, Tmax             float64
	DeltaP, DeltaH         float64
	Pcrit, Tcrit, Hcrit    float64 // -1 when the fluid has no critical point

	ph     *surface
	curves map[types.Target]*curve
}

// readScalar returns def for an absent optional scalar, and a configuration error for an absent required one
func readScalar(s store.MeshStore, name string, def float64, required bool) (v float64, err error) {
	if v, err = s.ReadScalar(name); errors.Is(err, store.ErrNotFound) {
		if required {
			return 0, fmt.Errorf("%w: table has no %s scalar", types.ErrConfiguration, name)
		}
		return def, nil
	}
	return
}

func hasMesh(s store.MeshStore, mesh string) bool {
	for _, m := range s.Meshes() {
		if m == mesh {
			return true
		}
	}
	return false
}

// Load reads every mesh, field and scalar of the table in s
func Load(s store.MeshStore) (ip *Interpolator, err error) {
	ip = &Interpolator{curves: make(map[types.Target]*curve)}
	if ip.Header, err = s.ReadHeader(); err != nil {
		return nil, err
	}
	withPH := hasMesh(s, types.TargetPH.MeshName())
	for _, sc := range []struct {
		name     string
		dst      *float64
		required bool
	}{
		{"pmin", &ip.Pmin, true}, {"pmax", &ip.Pmax, true},
		{"tmin", &ip.Tmin, true}, {"tmax", &ip.Tmax, true},
		{"hmin", &ip.Hmin, withPH}, {"hmax", &ip.Hmax, withPH},
		{"delta_p", &ip.DeltaP, withPH}, {"delta_h", &ip.DeltaH, withPH},
		{"pcrit", &ip.Pcrit, false}, {"tcrit", &ip.Tcrit, false}, {"hcrit", &ip.Hcrit, false},
	} {
		if *sc.dst, err = readScalar(s, sc.name, -1, sc.required); err != nil {
			return nil, err
		}
	}
	if withPH {
		if ip.ph, err = ip.loadSurface(s); err != nil {
			return nil, fmt.Errorf("failed to load ph mesh: %w", err)
		}
	}
	for _, tg := range []types.Target{types.TargetSaturation, types.TargetSpinodal} {
		if !hasMesh(s, tg.MeshName()) {
			continue
		}
		if ip.curves[tg], err = loadCurve(s, tg.MeshName()); err != nil {
			return nil, fmt.Errorf("failed to load %s curve: %w", tg, err)
		}
	}
	return
}

func readStatus(s store.MeshStore, mesh, name string, n int) (st []types.Status, err error) {
	st = make([]types.Status, n)
	codes, err := s.ReadIntField(mesh, name+store.CellStatusSuffix)
	if errors.Is(err, types.ErrPropertyNotFound) {
		return st, nil
	}
	if err != nil {
		return nil, err
	}
	if len(codes) != n {
		return nil, fmt.Errorf("%w: %s of %s has %d entries for %d cells",
			types.ErrConfiguration, name+store.CellStatusSuffix, mesh, len(codes), n)
	}
	for i, c := range codes {
		st[i] = types.Status(c)
	}
	return
}

func (ip *Interpolator) loadSurface(s store.MeshStore) (sf *surface, err error) {
	var (
		mesh             = types.TargetPH.MeshName()
		coords           [][]float64
		corners, offsets []int
	)
	if coords, err = s.ReadNodes(mesh); err != nil {
		return
	}
	if len(coords) != 2 {
		return nil, fmt.Errorf("%w: ph mesh has %d coordinate arrays", types.ErrConfiguration, len(coords))
	}
	if corners, offsets, err = s.ReadPolygons(mesh); err != nil {
		return
	}
	sf = &surface{
		P: coords[0], H: coords[1],
		fields: make(map[string][]float64),
		status: make(map[string][]types.Status),
	}
	boxes := make([]Box, len(offsets)-1)
	for k := range boxes {
		var q [4]int
		if q, err = sf.quadCorners(corners[offsets[k]:offsets[k+1]]); err != nil {
			return nil, fmt.Errorf("polygon %d: %w", k, err)
		}
		sf.Quads = append(sf.Quads, q)
		boxes[k] = Box{sf.P[q[0]], sf.P[q[1]], sf.H[q[0]], sf.H[q[2]]}
	}
	if sf.Grid, err = NewIndexGrid(ip.Pmin, ip.Pmax, ip.Hmin, ip.Hmax, ip.DeltaP, ip.DeltaH, boxes); err != nil {
		return
	}
	for _, name := range s.Fields(mesh) {
		if sf.fields[name], err = s.ReadField(mesh, name); err != nil {
			return
		}
		if len(sf.fields[name]) != len(sf.P) {
			return nil, fmt.Errorf("%w: field %s has %d values for %d nodes",
				types.ErrConfiguration, name, len(sf.fields[name]), len(sf.P))
		}
		if sf.status[name], err = readStatus(s, mesh, name, len(sf.Quads)); err != nil {
			return
		}
	}
	return
}

// quadCorners picks the low-p/low-h, high-p/low-h, low-p/high-h and high-p/high-h vertices of a polygon
func (sf *surface) quadCorners(poly []int) (q [4]int, err error) {
	if len(poly) < 4 {
		return q, fmt.Errorf("%w: a polygon needs 4 vertices, have %d", types.ErrConfiguration, len(poly))
	}
	var (
		ps, hs = make([]float64, len(poly)), make([]float64, len(poly))
	)
	for n, v := range poly {
		ps[n], hs[n] = sf.P[v], sf.H[v]
	}
	var (
		pLo, pHi = floats.Min(ps), floats.Max(ps)
		hLo, hHi = floats.Min(hs), floats.Max(hs)
		tp, th   = utils.EDGETOL * (pHi - pLo), utils.EDGETOL * (hHi - hLo)
		found    [4]bool
	)
	if !(pHi > pLo) || !(hHi > hLo) {
		return q, fmt.Errorf("%w: degenerate polygon", types.ErrConfiguration)
	}
	for n, v := range poly {
		highP := math.Abs(ps[n]-pHi) <= tp
		highH := math.Abs(hs[n]-hHi) <= th
		if !highP && math.Abs(ps[n]-pLo) > tp || !highH && math.Abs(hs[n]-hLo) > th {
			continue
		}
		c := 0
		if highP {
			c++
		}
		if highH {
			c += 2
		}
		q[c], found[c] = v, true
	}
	for c, ok := range found {
		if !ok {
			return q, fmt.Errorf("%w: polygon has no corner %d", types.ErrConfiguration, c)
		}
	}
	return
}

func loadCurve(s store.MeshStore, mesh string) (cv *curve, err error) {
	var (
		coords   [][]float64
		segments [][2]int
	)
	if coords, err = s.ReadNodes(mesh); err != nil {
		return
	}
	if len(coords) != 1 || len(coords[0]) < 2 {
		return nil, fmt.Errorf("%w: curve %s needs one axis of at least 2 nodes", types.ErrConfiguration, mesh)
	}
	if segments, err = s.ReadSegments(mesh); err != nil {
		return
	}
	var (
		raw   = coords[0]
		order = make([]int, len(raw))
		rank  = make([]int, len(raw))
	)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return raw[order[a]] < raw[order[b]] })
	cv = &curve{
		P:      make([]float64, len(raw)),
		fields: make(map[string][]float64),
		status: make(map[string][]types.Status),
	}
	for k, i := range order {
		cv.P[k], rank[i] = raw[i], k
	}
	cv.Pmin, cv.Pmax = cv.P[0], cv.P[len(cv.P)-1]
	for _, name := range s.Fields(mesh) {
		var (
			values []float64
			segSt  []types.Status
		)
		if values, err = s.ReadField(mesh, name); err != nil {
			return
		}
		if len(values) != len(raw) {
			return nil, fmt.Errorf("%w: field %s has %d values for %d nodes",
				types.ErrConfiguration, name, len(values), len(raw))
		}
		sorted := make([]float64, len(values))
		for i, v := range values {
			sorted[rank[i]] = v
		}
		cv.fields[name] = sorted
		if segSt, err = readStatus(s, mesh, name, len(segments)); err != nil {
			return
		}
		st := make([]types.Status, len(raw)-1)
		for k, sg := range segments {
			lo := min(rank[sg[0]], rank[sg[1]])
			if lo < len(st) {
				st[lo] = types.Worst(st[lo], segSt[k])
			}
		}
		cv.status[name] = st
	}
	return
}

// Properties lists the normalized property names stored for a target
func (ip *Interpolator) Properties(t types.Target) (names []string) {
	var fields map[string][]float64
	if t == types.TargetPH {
		if ip.ph == nil {
			return
		}
		fields = ip.ph.fields
	} else {
		cv, ok := ip.curves[t]
		if !ok {
			return
		}
		fields = cv.fields
	}
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return
}

// HasTarget reports whether the table holds the given mesh
func (ip *Interpolator) HasTarget(t types.Target) bool {
	if t == types.TargetPH {
		return ip.ph != nil
	}
	_, ok := ip.curves[t]
	return ok
}

func (ip *Interpolator) checkPH(p, h float64) error {
	if ip.ph == nil {
		return fmt.Errorf("%w: table has no ph mesh", types.ErrPropertyNotFound)
	}
	if !utils.InRange(p, ip.Pmin, ip.Pmax) {
		return fmt.Errorf("%w: p = %g outside [%g, %g]", types.ErrOutOfBounds, p, ip.Pmin, ip.Pmax)
	}
	if !utils.InRange(h, ip.Hmin, ip.Hmax) {
		return fmt.Errorf("%w: h = %g outside [%g, %g]", types.ErrOutOfBounds, h, ip.Hmin, ip.Hmax)
	}
	return nil
}

func (sf *surface) field(prop string) (f []float64, st []types.Status, err error) {
	key := types.NormalizeName(prop)
	var ok bool
	if f, ok = sf.fields[key]; !ok {
		err = fmt.Errorf("%w: %q in ph table", types.ErrPropertyNotFound, prop)
		return
	}
	return f, sf.status[key], nil
}

// normalized returns the position of (p,h) inside quad q, both coordinates in [0,1]
func (sf *surface) normalized(q [4]int, p, h float64) (ps, hs float64) {
	var (
		pLo, pHi = sf.P[q[0]], sf.P[q[1]]
		hLo, hHi = sf.H[q[0]], sf.H[q[2]]
	)
	ps = min(max((p-pLo)/(pHi-pLo), 0), 1)
	hs = min(max((h-hLo)/(hHi-hLo), 0), 1)
	return
}

// Bilinear weights the corners low-p/low-h, high-p/low-h, low-p/high-h, high-p/high-h
func Bilinear(ps, hs float64, f [4]float64) float64 {
	w := [4]float64{(1 - ps) * (1 - hs), ps * (1 - hs), (1 - ps) * hs, ps * hs}
	return floats.Dot(w[:], f[:])
}

// PH interpolates prop at (p,h). The status is the worst status of the quad's corners.
func (ip *Interpolator) PH(prop string, p, h float64) (v float64, st types.Status, err error) {
	if err = ip.checkPH(p, h); err != nil {
		return
	}
	var (
		f      []float64
		status []types.Status
	)
	if f, status, err = ip.ph.field(prop); err != nil {
		return
	}
	k := ip.ph.Grid.Locate(p, h)
	if k < 0 {
		err = fmt.Errorf("%w: no cell covers p = %g, h = %g", types.ErrOutOfBounds, p, h)
		return
	}
	q := ip.ph.Quads[k]
	ps, hs := ip.ph.normalized(q, p, h)
	v = Bilinear(ps, hs, [4]float64{f[q[0]], f[q[1]], f[q[2]], f[q[3]]})
	return v, status[k], nil
}

// Curve interpolates prop linearly along a saturation or spinodal curve
func (ip *Interpolator) Curve(t types.Target, prop string, p float64) (v float64, st types.Status, err error) {
	cv, ok := ip.curves[t]
	if !ok {
		err = fmt.Errorf("%w: table has no %s curve", types.ErrPropertyNotFound, t)
		return
	}
	if !utils.InRange(p, cv.Pmin, cv.Pmax) {
		err = fmt.Errorf("%w: p = %g outside %s curve [%g, %g]", types.ErrOutOfBounds, p, t, cv.Pmin, cv.Pmax)
		return
	}
	key := types.NormalizeName(prop)
	f, ok := cv.fields[key]
	if !ok {
		err = fmt.Errorf("%w: %q on %s curve", types.ErrPropertyNotFound, prop, t)
		return
	}
	var (
		status = cv.status[key]
		n      = len(cv.P)
	)
	switch {
	case utils.Compare(utils.Equal, p, cv.Pmin):
		return f[0], status[0], nil
	case utils.Compare(utils.Equal, p, cv.Pmax):
		return f[n-1], status[n-2], nil
	}
	k := 1
	for k < n-1 && !(cv.P[k] > p) {
		k++
	}
	ps := (p - cv.P[k-1]) / (cv.P[k] - cv.P[k-1])
	return (1-ps)*f[k-1] + ps*f[k], status[k-1], nil
}

// String summarizes the table contents
func (ip *Interpolator) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", ip.Header)
	if ip.ph != nil {
		fmt.Fprintf(&b, "ph: %d nodes, %d cells, p = [%g, %g], h = [%g, %g], properties %v\n",
			len(ip.ph.P), len(ip.ph.Quads), ip.Pmin, ip.Pmax, ip.Hmin, ip.Hmax, ip.Properties(types.TargetPH))
	}
	for _, t := range []types.Target{types.TargetSaturation, types.TargetSpinodal} {
		if cv, ok := ip.curves[t]; ok {
			fmt.Fprintf(&b, "%s: %d nodes, p = [%g, %g], properties %v\n", t, len(cv.P), cv.Pmin, cv.Pmax, ip.Properties(t))
		}
	}
	return b.String()
}
