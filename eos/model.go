package eos

import (
	"fmt"
	"math"

	"github.com/notargets/phtab/types"
	"github.com/notargets/phtab/utils"
)

/*
ModelFluid is an analytic two-phase fluid with a closed form in every direction, used to exercise the tables.

	T_sat(p) = Tc (p/Pc)^Exponent
	L(p)     = L0 sqrt(1 - p/Pc), zero above Pc
	h_l(p)   = Cpl (T_sat - T0),   h_v(p) = h_l + L

Liquid has h = Cpl (T - T0), vapour has h = h_v + Cpv (T - T_sat), the two phase region sits at T_sat.
Above the critical pressure the latent heat vanishes and T_sat is held at Tc.
*/
type ModelFluid struct {
	Pc, Tc   float64
	T0       float64 // Temperature of zero enthalpy
	Cpl, Cpv float64
	L0       float64
	Exponent float64
	Rhol     float64 // Liquid density
	R        float64 // Vapour gas constant
	// SpinodalFraction places the spinodal enthalpies this fraction of L inside the two phase region
	SpinodalFraction float64
}

func NewModelFluid() *ModelFluid {
	return &ModelFluid{
		Pc: 2.2064e7, Tc: 647.096,
		T0:  273.15,
		Cpl: 4186, Cpv: 2080,
		L0:               2.5e6,
		Exponent:         0.07,
		Rhol:             1000,
		R:                461.5,
		SpinodalFraction: 0.2,
	}
}

func (f *ModelFluid) Name() string { return "model" }

func (f *ModelFluid) Critical() (pc, tc, hc float64, ok bool) {
	return f.Pc, f.Tc, f.Cpl * (f.Tc - f.T0), true
}

// Saturation returns T_sat, h_l and h_v at p
func (f *ModelFluid) Saturation(p float64) (tsat, hl, hv float64) {
	if p >= f.Pc {
		tsat = f.Tc
		hl = f.Cpl * (f.Tc - f.T0)
		return tsat, hl, hl
	}
	tsat = f.Tc * math.Pow(p/f.Pc, f.Exponent)
	hl = f.Cpl * (tsat - f.T0)
	hv = hl + f.L0*math.Sqrt(1-p/f.Pc)
	return
}

// Temperature inverts the enthalpy at p
func (f *ModelFluid) Temperature(p, h float64) float64 {
	tsat, hl, hv := f.Saturation(p)
	switch {
	case h <= hl:
		return f.T0 + h/f.Cpl
	case h >= hv:
		return tsat + (h-hv)/f.Cpv
	}
	return tsat
}

// Enthalpy is h(p,T); at T_sat the liquid side is returned
func (f *ModelFluid) Enthalpy(p, T float64) float64 {
	tsat, _, hv := f.Saturation(p)
	if T <= tsat {
		return f.Cpl * (T - f.T0)
	}
	return hv + f.Cpv*(T-tsat)
}

// Quality is the vapour mass fraction, clipped to [0,1]
func (f *ModelFluid) Quality(p, h float64) float64 {
	_, hl, hv := f.Saturation(p)
	switch {
	case h <= hl:
		return 0
	case h >= hv:
		return 1
	}
	return (h - hl) / (hv - hl)
}

func (f *ModelFluid) Density(p, h float64) float64 {
	var (
		x    = f.Quality(p, h)
		T    = f.Temperature(p, h)
		rhov = p / (f.R * T)
	)
	return 1 / ((1-x)/f.Rhol + x/rhov)
}

type pointFunc func(p, x float64) float64

func (f *ModelFluid) property(kind QueryKind, name string) (fn pointFunc, err error) {
	var (
		key = types.NormalizeName(name)
		ph  = map[string]pointFunc{
			"t":   f.Temperature,
			"rho": f.Density,
			"x":   f.Quality,
			"h":   func(p, h float64) float64 { return h },
		}
	)
	switch kind {
	case QueryPH:
		fn = ph[key]
	case QueryPT:
		if key == "h" {
			fn = f.Enthalpy
		} else if g, ok := ph[key]; ok {
			fn = func(p, T float64) float64 { return g(p, f.Enthalpy(p, T)) }
		}
	case QuerySaturation:
		fn = map[string]pointFunc{
			"t":    func(p, _ float64) float64 { t, _, _ := f.Saturation(p); return t },
			"hl":   func(p, _ float64) float64 { _, hl, _ := f.Saturation(p); return hl },
			"hv":   func(p, _ float64) float64 { _, _, hv := f.Saturation(p); return hv },
			"rhol": func(p, _ float64) float64 { _, hl, _ := f.Saturation(p); return f.Density(p, hl) },
			"rhov": func(p, _ float64) float64 { _, _, hv := f.Saturation(p); return f.Density(p, hv) },
		}[key]
	case QuerySpinodal:
		fn = map[string]pointFunc{
			"hl": func(p, _ float64) float64 {
				_, hl, hv := f.Saturation(p)
				return hl + f.SpinodalFraction*(hv-hl)
			},
			"hv": func(p, _ float64) float64 {
				_, hl, hv := f.Saturation(p)
				return hv - f.SpinodalFraction*(hv-hl)
			},
		}[key]
	}
	if fn == nil {
		err = fmt.Errorf("%w: %q is not a %s property of the model fluid", types.ErrPropertyNotFound, name, kind)
	}
	return
}

func (f *ModelFluid) Evaluate(q Query, props []string) (r *Result, err error) {
	if err = q.check(); err != nil {
		return
	}
	fns := make([]pointFunc, len(props))
	for i, name := range props {
		if fns[i], err = f.property(q.Kind, name); err != nil {
			return
		}
	}
	r = newResult(q.Len(), props)
	for n, p := range q.P {
		var x float64
		if len(q.X) != 0 {
			x = q.X[n]
		}
		if !(p > 0) || (q.Kind == QueryPT && !(x > 0)) || (q.Kind == QueryPH && !(f.Temperature(p, x) > 0)) {
			r.Status[n] = types.StatusUpstreamFailure
			for _, name := range props {
				r.Values[name][n] = math.NaN()
			}
			continue
		}
		for i, name := range props {
			v := fns[i](p, x)
			if !utils.IsFinite(v) {
				r.Status[n] = types.StatusUpstreamFailure
			}
			r.Values[name][n] = v
		}
	}
	return
}
