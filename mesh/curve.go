package mesh

import (
	"fmt"

	"github.com/notargets/phtab/types"
	"github.com/notargets/phtab/utils"
)

// Curve is the 1-D pressure mesh of the saturation and spinodal curves
type Curve struct {
	Pmin, Pmax float64
	DeltaP     float64 // Shortest segment length
	Nodes      []float64
	Segments   [][2]int
	Levels     []int // Refinement level per segment
}

func NewCurve(pmin, pmax float64, nb int) (c *Curve, err error) {
	if nb < 2 {
		err = fmt.Errorf("%w: a p curve needs at least 2 nodes, have nb_p = %d", types.ErrConfiguration, nb)
		return
	}
	if !(pmax > pmin) {
		err = fmt.Errorf("%w: empty p range [%g, %g]", types.ErrConfiguration, pmin, pmax)
		return
	}
	c = &Curve{
		Pmin: pmin, Pmax: pmax,
		DeltaP: (pmax - pmin) / float64(nb-1),
		Nodes:  make([]float64, nb),
	}
	for i := range c.Nodes {
		c.Nodes[i] = axisValue(pmin, pmax, i, nb)
	}
	for i := 0; i < nb-1; i++ {
		c.Segments = append(c.Segments, [2]int{i, i + 1})
		c.Levels = append(c.Levels, 0)
	}
	return
}

// AddGlobalNodes splits every segment, nb nodes become 2nb-1
func (c *Curve) AddGlobalNodes() (added int) {
	all := make([]int, len(c.Segments))
	for k := range all {
		all[k] = k
	}
	return c.split(all)
}

// AddLocalNodes splits the failing segments below the level cap: (a,b) becomes (a,m) in place and (m,b) is appended
func (c *Curve) AddLocalNodes(failing []bool, level int) (added int, err error) {
	if len(failing) != len(c.Segments) {
		err = fmt.Errorf("%w: quality flags cover %d segments, curve has %d",
			types.ErrConfiguration, len(failing), len(c.Segments))
		return
	}
	var segs []int
	for k, f := range failing {
		if f && c.Levels[k] < level {
			segs = append(segs, k)
		}
	}
	return c.split(segs), nil
}

func (c *Curve) split(segs []int) (added int) {
	for _, k := range segs {
		a, b := c.Segments[k][0], c.Segments[k][1]
		mid := len(c.Nodes)
		c.Nodes = append(c.Nodes, utils.Mean2(c.Nodes[a], c.Nodes[b]))
		lvl := c.Levels[k] + 1
		c.Segments[k] = [2]int{a, mid}
		c.Levels[k] = lvl
		c.Segments = append(c.Segments, [2]int{mid, b})
		c.Levels = append(c.Levels, lvl)
		c.DeltaP = min(c.DeltaP, c.Nodes[mid]-c.Nodes[a])
		added++
	}
	return
}

// MaxLevel is the deepest refinement level of any segment
func (c *Curve) MaxLevel() (level int) {
	for _, l := range c.Levels {
		level = max(level, l)
	}
	return
}
