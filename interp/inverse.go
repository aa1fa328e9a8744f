package interp

import (
	"errors"
	"fmt"
	"math"

	"github.com/notargets/phtab/types"
	"github.com/notargets/phtab/utils"
)

// Branch selects which side of the saturation dome an inversion searches
type Branch uint8

const (
	Liquid Branch = iota
	Vapor
	Supercritical
)

func (b Branch) String() string {
	return [...]string{"liquid", "vapor", "supercritical"}[b]
}

// temperature is the field the inversion reads
const temperature = "t"

// Branch picks the branch for (p,T) from the saturation curve
func (ip *Interpolator) Branch(p, T float64) (b Branch, err error) {
	cv, ok := ip.curves[types.TargetSaturation]
	if !ok || (ip.Pcrit > 0 && p > ip.Pcrit) || !utils.InRange(p, cv.Pmin, cv.Pmax) {
		return Supercritical, nil
	}
	var tsat float64
	if tsat, _, err = ip.Curve(types.TargetSaturation, temperature, p); err != nil {
		return
	}
	if T <= tsat {
		return Liquid, nil
	}
	return Vapor, nil
}

// HpT returns the enthalpy at which the tabulated temperature equals T at pressure p
func (ip *Interpolator) HpT(p, T float64) (h float64, err error) {
	if err = ip.checkPH(p, ip.Hmin); err != nil {
		return
	}
	var b Branch
	if b, err = ip.Branch(p, T); err != nil {
		return
	}
	return ip.Invert(p, T, b)
}

/*
Invert solves T(p,h) = T for h on one branch.
Within a quad with corner temperatures t1..t4 and p* fixed by the query,

	h* = (T - t1 - (t2-t1)p*) / ((t3-t1) + (t1-t2-t3+t4)p*)

Candidates are the quads of the index-grid column at p, in increasing h (liquid, supercritical)
or decreasing h (vapor). The first in-range h* that agrees with the saturation enthalpy wins.
*/
func (ip *Interpolator) Invert(p, T float64, b Branch) (h float64, err error) {
	if err = ip.checkPH(p, ip.Hmin); err != nil {
		return
	}
	var (
		f   []float64
		sf  = ip.ph
		cds = sf.Grid.Candidates(sf.Grid.Column(p))
	)
	if f, _, err = sf.field(temperature); err != nil {
		return
	}
	if b == Vapor {
		for l, r := 0, len(cds)-1; l < r; l, r = l+1, r-1 {
			cds[l], cds[r] = cds[r], cds[l]
		}
	}
	for _, k := range cds {
		q := sf.Quads[k]
		pLo, pHi := sf.P[q[0]], sf.P[q[1]]
		if !utils.InRange(p, pLo, pHi) {
			continue
		}
		var (
			ps             = min(max((p-pLo)/(pHi-pLo), 0), 1)
			t1, t2, t3, t4 = f[q[0]], f[q[1]], f[q[2]], f[q[3]]
			den            = (t3 - t1) + (t1-t2-t3+t4)*ps
		)
		if den == 0 || !utils.IsFinite(den) {
			continue
		}
		hs := (T - t1 - (t2-t1)*ps) / den
		if math.IsNaN(hs) || hs < -utils.EDGETOL || hs > 1+utils.EDGETOL {
			continue
		}
		hs = min(max(hs, 0), 1)
		hLo, hHi := sf.H[q[0]], sf.H[q[2]]
		h = hs*(hHi-hLo) + hLo
		if ip.consistent(p, h, b) {
			return h, nil
		}
	}
	return 0, fmt.Errorf("%w: T = %g at p = %g on the %s branch", types.ErrInversionFailed, T, p, b)
}

// consistent checks h against the saturation enthalpy on the branch side, with one finest h step of slack
func (ip *Interpolator) consistent(p, h float64, b Branch) bool {
	var prop string
	switch b {
	case Liquid:
		prop = "hl"
	case Vapor:
		prop = "hv"
	default:
		return true
	}
	hsat, _, err := ip.Curve(types.TargetSaturation, prop, p)
	if errors.Is(err, types.ErrPropertyNotFound) {
		return true
	}
	if err != nil {
		return false
	}
	if b == Liquid {
		return h <= hsat+ip.DeltaH
	}
	return h >= hsat-ip.DeltaH
}
