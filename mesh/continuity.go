package mesh

import (
	"github.com/notargets/phtab/types"
	"github.com/notargets/phtab/utils"
)

// Correction records how one coarse cell is replaced by sub-quads for interpolation
type Correction struct {
	Cell int
	Old  [4]int
	New  [][4]int
}

// Stitching is the outcome of one continuity pass
type Stitching struct {
	Corrections []Correction
	Sources     map[int][2]int // Continuity node id -> its two Real sources
}

/*
AddContinuityNodes stitches every cell that carries hanging nodes on its edges.
Such a cell is cut into two sub-quads when the hanging nodes sit on one axis only (bottom/top or left/right),
and into four otherwise. Edge midpoints that are not already Real nodes become Continuity nodes averaging the
edge's two corners, so the sub-quads interpolate linearly along an edge exactly as the coarser neighbour does.
The centre of a four way split is a Continuity node averaging two opposite hanging midpoints, or corners 0 and 3
when no opposite pair exists.
Previous sub-quads are discarded; Continuity nodes with the same sources are reused.
*/
func (m *PHMesh) AddContinuityNodes() (st Stitching) {
	st.Sources = make(map[int][2]int)
	for k := range m.Cells {
		c := &m.Cells[k]
		c.Sub = nil
		if c.Size < 2 {
			continue
		}
		var (
			half           = c.Size / 2
			c0, c1, c2, c3 = c.Corners[0], c.Corners[1], c.Corners[2], c.Corners[3]
		)
		mB, hB := m.nodeAt(c.I+half, c.J)
		mT, hT := m.nodeAt(c.I+half, c.J+c.Size)
		mL, hL := m.nodeAt(c.I, c.J+half)
		mR, hR := m.nodeAt(c.I+c.Size, c.J+half)
		alongP, alongH := hB || hT, hL || hR
		if !alongP && !alongH {
			continue
		}
		var used []int
		stitch := func(hanging bool, id, a, b int) int {
			if hanging {
				return id
			}
			cn := m.continuityNode(a, b)
			used = append(used, cn)
			return cn
		}
		switch {
		case alongP && !alongH:
			mB, mT = stitch(hB, mB, c0, c1), stitch(hT, mT, c2, c3)
			c.Sub = [][4]int{{c0, mB, c2, mT}, {mB, c1, mT, c3}}
		case alongH && !alongP:
			mL, mR = stitch(hL, mL, c0, c2), stitch(hR, mR, c1, c3)
			c.Sub = [][4]int{{c0, c1, mL, mR}, {mL, mR, c2, c3}}
		default:
			var ctr int
			switch {
			case hL && hR:
				ctr = stitch(false, 0, mL, mR)
			case hB && hT:
				ctr = stitch(false, 0, mB, mT)
			default:
				ctr = stitch(false, 0, c0, c3)
			}
			mB, mT = stitch(hB, mB, c0, c1), stitch(hT, mT, c2, c3)
			mL, mR = stitch(hL, mL, c0, c2), stitch(hR, mR, c1, c3)
			c.Sub = [][4]int{
				{c0, mB, mL, ctr},
				{mB, c1, ctr, mR},
				{mL, ctr, c2, mT},
				{ctr, mR, mT, c3},
			}
		}
		st.Corrections = append(st.Corrections, Correction{Cell: k, Old: c.Corners, New: c.Sub})
		for _, cn := range used {
			st.Sources[cn] = m.Nodes[cn].Sources
		}
	}
	return
}

// continuityNode returns the Continuity node averaging a and b, creating it at their midpoint if needed
func (m *PHMesh) continuityNode(a, b int) (id int) {
	key := types.NewPairKey(a, b)
	var ok bool
	if id, ok = m.continuity[key]; ok {
		return
	}
	na, nb := m.Nodes[a], m.Nodes[b]
	id = len(m.Nodes)
	m.Nodes = append(m.Nodes, Node{
		P:       utils.Mean2(na.P, nb.P),
		H:       utils.Mean2(na.H, nb.H),
		Kind:    Continuity,
		Sources: [2]int{a, b},
	})
	m.continuity[key] = id
	return
}

// Quads lists the interpolation cells: the sub-quads of stitched cells and every other cell as is
func (m *PHMesh) Quads() (quads []Quad) {
	quads = make([]Quad, 0, len(m.Cells))
	for k, c := range m.Cells {
		if len(c.Sub) == 0 {
			quads = append(quads, Quad{Corners: c.Corners, Owner: k})
			continue
		}
		for _, s := range c.Sub {
			quads = append(quads, Quad{Corners: s, Owner: k})
		}
	}
	return
}

/*
Polygons returns every quad as a counter-clockwise vertex list starting at the low-p/low-h corner.
An unstitched cell also lists the Real hanging nodes lying on its edges, so a cell next to finer neighbours
without continuity stitching has more than 4 vertices; a reader recovers the 4 corners as the extreme vertices.
*/
func (m *PHMesh) Polygons() (polys [][]int, owners []int) {
	for _, q := range m.Quads() {
		c := m.Cells[q.Owner]
		if len(c.Sub) != 0 {
			polys = append(polys, []int{q.Corners[0], q.Corners[1], q.Corners[3], q.Corners[2]})
			owners = append(owners, q.Owner)
			continue
		}
		var (
			poly   []int
			i0, j0 = c.I, c.J
			i1, j1 = c.I + c.Size, c.J + c.Size
		)
		walk := func(i, j int) {
			if id, ok := m.nodeAt(i, j); ok {
				poly = append(poly, id)
			}
		}
		for i := i0; i < i1; i++ { // bottom, left to right
			walk(i, j0)
		}
		for j := j0; j < j1; j++ { // right, bottom to top
			walk(i1, j)
		}
		for i := i1; i > i0; i-- { // top, right to left
			walk(i, j1)
		}
		for j := j1; j > j0; j-- { // left, top to bottom
			walk(i0, j)
		}
		polys = append(polys, poly)
		owners = append(owners, q.Owner)
	}
	return
}
