package types

import (
	"fmt"
	"strings"
)

// Target names one of the tabulated domains
type Target uint8

const (
	TargetPH Target = iota
	TargetSaturation
	TargetSpinodal
)

var TargetNameMap = map[string]Target{
	"ph":         TargetPH,
	"ph_domain":  TargetPH,
	"sat":        TargetSaturation,
	"saturation": TargetSaturation,
	"sat_domain": TargetSaturation,
	"lim":        TargetSpinodal,
	"spinodal":   TargetSpinodal,
	"lim_domain": TargetSpinodal,
}

func (t Target) String() string {
	return [...]string{"ph", "sat", "lim"}[t]
}

// MeshName is the name the target's mesh is persisted under
func (t Target) MeshName() string {
	return t.String() + "_domain"
}

// IsCurve is true for the 1-D pressure curves
func (t Target) IsCurve() bool {
	return t != TargetPH
}

func NewTarget(label string) (t Target, err error) {
	var ok bool
	if t, ok = TargetNameMap[strings.ToLower(strings.TrimSpace(label))]; !ok {
		err = fmt.Errorf("%w: unknown target %q", ErrConfiguration, label)
	}
	return
}
