package interp

import (
	"fmt"

	"github.com/notargets/phtab/types"
	"github.com/notargets/phtab/utils"
)

/*
IndexGrid is a uniform grid at the finest mesh spacing. Each slot holds the id of the quad covering it,
which makes point location a pair of integer divisions.
*/
type IndexGrid struct {
	Pmin, Hmin     float64
	DeltaP, DeltaH float64
	Np, Nh         int
	Slots          []int // Np x Nh, h fastest, -1 where no quad was recorded
}

// Box is the p,h extent of a quad: pLow, pHigh, hLow, hHigh
type Box [4]float64

func NewIndexGrid(pmin, pmax, hmin, hmax, dp, dh float64, boxes []Box) (g *IndexGrid, err error) {
	if !(dp > 0) || !(dh > 0) {
		err = fmt.Errorf("%w: index grid steps must be positive, have %g and %g", types.ErrConfiguration, dp, dh)
		return
	}
	g = &IndexGrid{
		Pmin: pmin, Hmin: hmin, DeltaP: dp, DeltaH: dh,
		Np: max(1, utils.Round((pmax-pmin)/dp)),
		Nh: max(1, utils.Round((hmax-hmin)/dh)),
	}
	g.Slots = make([]int, g.Np*g.Nh)
	for i := range g.Slots {
		g.Slots[i] = -1
	}
	for q, b := range boxes {
		var (
			i0, i1 = g.clampP(utils.Round((b[0] - pmin) / dp)), g.clampP(utils.Round((b[1]-pmin)/dp) - 1)
			j0, j1 = g.clampH(utils.Round((b[2] - hmin) / dh)), g.clampH(utils.Round((b[3]-hmin)/dh) - 1)
		)
		for i := i0; i <= i1; i++ {
			for j := j0; j <= j1; j++ {
				g.Slots[i*g.Nh+j] = q
			}
		}
	}
	return
}

func (g *IndexGrid) clampP(i int) int { return min(max(i, 0), g.Np-1) }
func (g *IndexGrid) clampH(j int) int { return min(max(j, 0), g.Nh-1) }

// Column is the index-grid column holding pressure p
func (g *IndexGrid) Column(p float64) int {
	return g.clampP(int((p - g.Pmin) / g.DeltaP))
}

// Locate returns the quad containing (p,h), -1 when none was recorded
func (g *IndexGrid) Locate(p, h float64) int {
	i := g.Column(p)
	j := g.clampH(int((h - g.Hmin) / g.DeltaH))
	return g.Slots[i*g.Nh+j]
}

// Candidates lists the distinct quads met walking column i in increasing h
func (g *IndexGrid) Candidates(i int) (quads []int) {
	last := -1
	for j := 0; j < g.Nh; j++ {
		q := g.Slots[i*g.Nh+j]
		if q >= 0 && q != last {
			quads = append(quads, q)
		}
		last = q
	}
	return
}
