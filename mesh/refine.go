package mesh

import (
	"fmt"
	"sort"

	"github.com/james-bowman/sparse"

	"github.com/notargets/phtab/types"
	"github.com/notargets/phtab/utils"
)

/*
AddLocalNodes refines the cells flagged in failing whose level is below the cap.
Each refined cell gains nodes at its four edge midpoints and its centre and is replaced by four children;
neighbours that are not refined keep their corners and become non-conforming.
With continuity set, the refinement set is first closed under 2:1 balance so that every hanging edge
carries a single midpoint, which is what AddContinuityNodes expects.
Returns the number of appended nodes.
*/
func (m *PHMesh) AddLocalNodes(failing []bool, level int, continuity bool) (added int, err error) {
	if len(failing) != len(m.Cells) {
		err = fmt.Errorf("%w: quality flags cover %d cells, mesh has %d",
			types.ErrConfiguration, len(failing), len(m.Cells))
		return
	}
	marked := make(map[int]bool)
	for k, f := range failing {
		if f && m.Cells[k].Level < level {
			marked[k] = true
		}
	}
	if continuity {
		m.balance(marked)
	}
	if len(marked) == 0 {
		return
	}
	cells := make([]int, 0, len(marked))
	for k := range marked {
		cells = append(cells, k)
	}
	sort.Ints(cells)
	nn := len(m.Nodes)
	m.splitCells(cells)
	added = len(m.Nodes) - nn
	return
}

// balance adds to marked every coarser neighbour of a marked cell, until no refined cell would end up
// next to a cell more than twice its size
func (m *PHMesh) balance(marked map[int]bool) {
	queue := make([]int, 0, len(marked))
	for k := range marked {
		queue = append(queue, k)
	}
	sort.Ints(queue)
	for len(queue) > 0 {
		k := queue[0]
		queue = queue[1:]
		for _, nb := range m.coarserNeighbours(k) {
			if !marked[nb] {
				marked[nb] = true
				queue = append(queue, nb)
			}
		}
	}
}

func (m *PHMesh) coarserNeighbours(k int) (nbrs []int) {
	c := m.Cells[k]
	sides := [4][2]int{
		{c.I, c.J - 1},      // below
		{c.I, c.J + c.Size}, // above
		{c.I - 1, c.J},      // left
		{c.I + c.Size, c.J}, // right
	}
	for _, sd := range sides {
		if nb, ok := m.leafAt(sd[0], sd[1]); ok && m.Cells[nb].Size > c.Size {
			nbrs = append(nbrs, nb)
		}
	}
	return
}

// leafAt finds the cell covering the unit lattice square with origin (x,y).
// Cells of size s always sit on multiples of s, so one lookup per power of two finds it.
func (m *PHMesh) leafAt(x, y int) (k int, ok bool) {
	if x < 0 || y < 0 || x >= m.NbP-1 || y >= m.NbH-1 {
		return -1, false
	}
	for s := 1; s < m.NbP || s < m.NbH; s *= 2 {
		if k, ok = m.origins[types.NewLatticeKey(x-x%s, y-y%s)]; ok && m.Cells[k].Size == s {
			return
		}
	}
	return -1, false
}

// splitCells refines the listed cells in order, halving the lattice spacing first when one of them is
// already at the finest step
func (m *PHMesh) splitCells(cells []int) {
	for _, k := range cells {
		if m.Cells[k].Size == 1 {
			m.rescale()
			break
		}
	}
	for _, k := range cells {
		m.split(k)
	}
}

// rescale doubles every lattice coordinate so that one lattice unit is half the previous finest step
func (m *PHMesh) rescale() {
	fine := sparse.NewDOK(2*m.NbP-1, 2*m.NbH-1)
	m.lattice.DoNonZero(func(i, j int, v float64) {
		fine.Set(2*i, 2*j, v)
	})
	m.lattice = fine
	m.NbP, m.NbH = 2*m.NbP-1, 2*m.NbH-1
	m.DeltaP, m.DeltaH = m.DeltaP/2, m.DeltaH/2
	m.origins = make(map[types.LatticeKey]int, len(m.Cells))
	for k := range m.Cells {
		c := &m.Cells[k]
		c.I, c.J, c.Size = 2*c.I, 2*c.J, 2*c.Size
		m.origins[types.NewLatticeKey(c.I, c.J)] = k
	}
}

// split replaces cell k by its four children; the first child reuses slot k, the others are appended
func (m *PHMesh) split(k int) {
	var (
		c              = m.Cells[k]
		half           = c.Size / 2
		c0, c1, c2, c3 = c.Corners[0], c.Corners[1], c.Corners[2], c.Corners[3]
		n0, n1, n2     = m.Nodes[c0], m.Nodes[c1], m.Nodes[c2]
		pm, hm         = utils.Mean2(n0.P, n1.P), utils.Mean2(n0.H, n2.H)
		iM, jM         = c.I + half, c.J + half
		iE, jE         = c.I + c.Size, c.J + c.Size
	)
	mB := m.ensureNode(iM, c.J, pm, n0.H)
	mT := m.ensureNode(iM, jE, pm, n2.H)
	mL := m.ensureNode(c.I, jM, n0.P, hm)
	mR := m.ensureNode(iE, jM, n1.P, hm)
	ctr := m.ensureNode(iM, jM, pm, hm)
	children := [4]Cell{
		{I: c.I, J: c.J, Corners: [4]int{c0, mB, mL, ctr}},
		{I: iM, J: c.J, Corners: [4]int{mB, c1, ctr, mR}},
		{I: c.I, J: jM, Corners: [4]int{mL, ctr, c2, mT}},
		{I: iM, J: jM, Corners: [4]int{ctr, mR, mT, c3}},
	}
	for n := range children {
		children[n].Size, children[n].Level = half, c.Level+1
	}
	m.Cells[k] = children[0]
	m.origins[types.NewLatticeKey(c.I, c.J)] = k
	for _, child := range children[1:] {
		m.addCell(child)
	}
}

func (m *PHMesh) ensureNode(i, j int, p, h float64) int {
	if id, ok := m.nodeAt(i, j); ok {
		return id
	}
	return m.addNode(i, j, p, h)
}
