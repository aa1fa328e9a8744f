package mesh

import (
	"fmt"

	"github.com/james-bowman/sparse"

	"github.com/notargets/phtab/types"
	"github.com/notargets/phtab/utils"
)

// NodeKind tags a node as evaluated by the reference or derived from two other nodes
type NodeKind uint8

const (
	Real NodeKind = iota
	Continuity
)

func (k NodeKind) String() string {
	return [...]string{"Real", "Continuity"}[k]
}

// Node is a point of the (p,h) plane
type Node struct {
	P, H float64
	Kind NodeKind
	// Sources are the two Real nodes a Continuity node averages, unused for Real nodes
	Sources [2]int
}

/*
Cell is a lattice aligned square of the ph mesh.
Corners are ordered low-p/low-h, high-p/low-h, low-p/high-h, high-p/high-h and always reference Real nodes.
When the cell borders finer neighbours and continuity stitching is active, Sub holds the sub-quads used for
interpolation in place of the cell itself, with the same corner ordering.
*/
type Cell struct {
	I, J    int // Lattice origin, I along p, J along h
	Size    int // Edge length in lattice units
	Level   int // Number of refinements that produced this cell
	Corners [4]int
	Sub     [][4]int
}

// Quad is one interpolation cell: a stitched sub-quad or an unstitched cell
type Quad struct {
	Corners [4]int
	Owner   int // Index of the mesh cell the quad belongs to
}

// PHMesh is the adaptive quad mesh of the (p,h) plane
type PHMesh struct {
	Pmin, Pmax, Hmin, Hmax float64
	DeltaP, DeltaH         float64 // Finest step present on each axis
	NbP, NbH               int     // Lattice node count per axis at the finest step

	Nodes []Node
	Cells []Cell

	// Lattice maps lattice coordinates to Real node id + 1, zero meaning no node
	lattice    *sparse.DOK
	origins    map[types.LatticeKey]int // Cell origin -> cell index
	continuity map[types.LatticeKey]int // Source pair -> Continuity node id
}

// NewPHMesh builds a regular nbP x nbH grid. Nodes are numbered with h varying fastest.
func NewPHMesh(pmin, pmax, hmin, hmax float64, nbP, nbH int) (m *PHMesh, err error) {
	if nbP < 2 || nbH < 2 {
		err = fmt.Errorf("%w: a ph mesh needs at least 2 nodes per axis, have nb_p = %d, nb_h = %d",
			types.ErrConfiguration, nbP, nbH)
		return
	}
	if !(pmax > pmin) || !(hmax > hmin) {
		err = fmt.Errorf("%w: empty ph domain p = [%g, %g], h = [%g, %g]",
			types.ErrConfiguration, pmin, pmax, hmin, hmax)
		return
	}
	m = &PHMesh{
		Pmin: pmin, Pmax: pmax, Hmin: hmin, Hmax: hmax,
		DeltaP:     (pmax - pmin) / float64(nbP-1),
		DeltaH:     (hmax - hmin) / float64(nbH-1),
		NbP:        nbP,
		NbH:        nbH,
		lattice:    sparse.NewDOK(nbP, nbH),
		origins:    make(map[types.LatticeKey]int),
		continuity: make(map[types.LatticeKey]int),
	}
	for i := 0; i < nbP; i++ {
		p := axisValue(pmin, pmax, i, nbP)
		for j := 0; j < nbH; j++ {
			m.addNode(i, j, p, axisValue(hmin, hmax, j, nbH))
		}
	}
	for i := 0; i < nbP-1; i++ {
		for j := 0; j < nbH-1; j++ {
			m.addCell(Cell{I: i, J: j, Size: 1,
				Corners: [4]int{m.mustNode(i, j), m.mustNode(i+1, j), m.mustNode(i, j+1), m.mustNode(i+1, j+1)},
			})
		}
	}
	return
}

// axisValue pins the last node on the upper bound so the domain ends exactly
func axisValue(lo, hi float64, i, n int) float64 {
	if i == n-1 {
		return hi
	}
	return lo + float64(i)*(hi-lo)/float64(n-1)
}

// AddGlobalNodes splits every cell, so a conforming nb_p x nb_h mesh becomes (2nb_p-1) x (2nb_h-1)
func (m *PHMesh) AddGlobalNodes() (added int) {
	var (
		nn  = len(m.Nodes)
		all = make([]int, len(m.Cells))
	)
	for k := range all {
		all[k] = k
	}
	m.splitCells(all)
	return len(m.Nodes) - nn
}

// NumReal counts the nodes evaluated by the reference
func (m *PHMesh) NumReal() (n int) {
	for _, nd := range m.Nodes {
		if nd.Kind == Real {
			n++
		}
	}
	return
}

// MaxLevel is the deepest refinement level of any cell
func (m *PHMesh) MaxLevel() (level int) {
	for _, c := range m.Cells {
		level = max(level, c.Level)
	}
	return
}

// Coordinates returns the node coordinates as two arrays parallel to Nodes
func (m *PHMesh) Coordinates() (P, H []float64) {
	P, H = make([]float64, len(m.Nodes)), make([]float64, len(m.Nodes))
	for i, nd := range m.Nodes {
		P[i], H[i] = nd.P, nd.H
	}
	return
}

// ContinuityValues overwrites the Continuity entries of a node-parallel field with the mean of their sources
func (m *PHMesh) ContinuityValues(values []float64) {
	for i, nd := range m.Nodes {
		if nd.Kind == Continuity {
			values[i] = utils.Mean2(values[nd.Sources[0]], values[nd.Sources[1]])
		}
	}
}

// ContinuityStatus gives each Continuity node the worst status of its sources
func (m *PHMesh) ContinuityStatus(status []types.Status) {
	for i, nd := range m.Nodes {
		if nd.Kind == Continuity {
			status[i] = types.Worst(status[nd.Sources[0]], status[nd.Sources[1]])
		}
	}
}

func (m *PHMesh) addNode(i, j int, p, h float64) (id int) {
	id = len(m.Nodes)
	m.Nodes = append(m.Nodes, Node{P: p, H: h, Kind: Real})
	m.lattice.Set(i, j, float64(id+1))
	return
}

func (m *PHMesh) addCell(c Cell) (k int) {
	k = len(m.Cells)
	m.Cells = append(m.Cells, c)
	m.origins[types.NewLatticeKey(c.I, c.J)] = k
	return
}

// nodeAt looks up the Real node at lattice position (i,j)
func (m *PHMesh) nodeAt(i, j int) (id int, ok bool) {
	if i < 0 || j < 0 || i >= m.NbP || j >= m.NbH {
		return -1, false
	}
	v := m.lattice.At(i, j)
	if v == 0 {
		return -1, false
	}
	return int(v) - 1, true
}

func (m *PHMesh) mustNode(i, j int) int {
	id, ok := m.nodeAt(i, j)
	if !ok {
		panic(fmt.Errorf("no node at lattice position (%d,%d)", i, j))
	}
	return id
}
