package InputParameters

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ghodss/yaml"

	"github.com/notargets/phtab/eos"
	"github.com/notargets/phtab/quality"
	"github.com/notargets/phtab/refine"
	"github.com/notargets/phtab/types"
)

// QualityParameters is one quality criterion as written in the YAML file
type QualityParameters struct {
	Property  string  `json:"Property"`
	Target    string  `json:"Target"`
	Policy    string  `json:"Policy"`
	Absolute  bool    `json:"Absolute"`
	Tolerance float64 `json:"Tolerance"`
}

// FluidParameters holds the formulas of an expression fluid
type FluidParameters struct {
	Name       string            `json:"Name"`
	PH         map[string]string `json:"PH"`
	PT         map[string]string `json:"PT"`
	Saturation map[string]string `json:"Saturation"`
	Spinodal   map[string]string `json:"Spinodal"`
	Critical   []float64         `json:"Critical"`
}

// Parameters obtained from the YAML input file
type TableParameters struct {
	Title      string              `json:"Title"`
	Method     string              `json:"Method"` // model or expr
	Reference  string              `json:"Reference"`
	Pmin       float64             `json:"Pmin"`
	Pmax       float64             `json:"Pmax"`
	Tmin       float64             `json:"Tmin"`
	Tmax       float64             `json:"Tmax"`
	NbP        int                 `json:"NbP"`
	NbH        int                 `json:"NbH"`
	Targets    []string            `json:"Targets"`
	Properties map[string][]string `json:"Properties"` // Keyed by target
	Levels     map[string]int      `json:"Levels"`     // Keyed by target
	Strategy   string              `json:"Strategy"`
	MaxNodes   int                 `json:"MaxNodes"`
	Parallel   int                 `json:"Parallel"` // Concurrent reference batches, serial unless above 1
	Qualities  []QualityParameters `json:"Qualities"`
	Fluid      *FluidParameters    `json:"Fluid"`
	Output     string              `json:"Output"`
	History    string              `json:"History"`
}

func (tp *TableParameters) Parse(data []byte) error {
	return yaml.Unmarshal(data, tp)
}

func sortedKeys[V any](m map[string]V) (keys []string) {
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return
}

func (tp *TableParameters) Print() {
	fmt.Printf("\"%s\"\t\t= Title\n", tp.Title)
	fmt.Printf("[%s/%s]\t\t= Method/Reference\n", tp.Method, tp.Reference)
	fmt.Printf("[%8.5e, %8.5e]\t= Pressure range\n", tp.Pmin, tp.Pmax)
	fmt.Printf("[%8.5e, %8.5e]\t= Temperature range\n", tp.Tmin, tp.Tmax)
	fmt.Printf("[%d x %d]\t\t\t= Initial nodes (p x h)\n", tp.NbP, tp.NbH)
	fmt.Printf("%v\t\t= Targets\n", tp.Targets)
	fmt.Printf("[%s]\t= Strategy\n", tp.Strategy)
	for _, key := range sortedKeys(tp.Levels) {
		fmt.Printf("Levels[%s] = %d\n", key, tp.Levels[key])
	}
	for _, key := range sortedKeys(tp.Properties) {
		fmt.Printf("Properties[%s] = %v\n", key, tp.Properties[key])
	}
	for i, q := range tp.Qualities {
		mode := "relative"
		if q.Absolute {
			mode = "absolute"
		}
		fmt.Printf("Quality[%d] = %s/%s %s %s %g\n", i, q.Target, q.Property, q.Policy, mode, q.Tolerance)
	}
}

// Config converts the parameters into a refinement configuration
func (tp *TableParameters) Config() (cfg refine.Config, err error) {
	cfg = refine.Config{
		Method: tp.Method, Reference: tp.Reference,
		Pmin: tp.Pmin, Pmax: tp.Pmax, Tmin: tp.Tmin, Tmax: tp.Tmax,
		NbP: tp.NbP, NbH: tp.NbH,
		Properties: make(map[types.Target][]string),
		Levels:     make(map[types.Target]int),
		MaxNodes:   tp.MaxNodes,
		Parallel:   tp.Parallel,
	}
	if cfg.Parallel < 1 {
		cfg.Parallel = 1
	}
	if cfg.Strategy, err = refine.ParseStrategy(tp.Strategy); err != nil {
		return
	}
	for _, label := range tp.Targets {
		var t types.Target
		if t, err = types.NewTarget(label); err != nil {
			return
		}
		cfg.Targets = append(cfg.Targets, t)
	}
	for label, props := range tp.Properties {
		var t types.Target
		if t, err = types.NewTarget(label); err != nil {
			return
		}
		cfg.Properties[t] = props
	}
	for label, level := range tp.Levels {
		var t types.Target
		if t, err = types.NewTarget(label); err != nil {
			return
		}
		cfg.Levels[t] = level
	}
	for _, qp := range tp.Qualities {
		q := quality.Evaluator{Property: qp.Property, Absolute: qp.Absolute, Tolerance: qp.Tolerance}
		if q.Target, err = types.NewTarget(qp.Target); err != nil {
			return
		}
		if q.Policy, err = quality.ParsePolicy(qp.Policy); err != nil {
			return
		}
		cfg.Qualities = append(cfg.Qualities, q)
	}
	return
}

// Evaluator builds the reference named by Method
func (tp *TableParameters) Evaluator() (ev eos.Evaluator, err error) {
	switch strings.ToLower(tp.Method) {
	case "model":
		return eos.NewModelFluid(), nil
	case "expr":
		if tp.Fluid == nil {
			return nil, fmt.Errorf("%w: method expr needs a Fluid section", types.ErrConfiguration)
		}
		name := tp.Fluid.Name
		if name == "" {
			name = tp.Reference
		}
		var f *eos.ExprFluid
		if f, err = eos.NewExprFluid(eos.ExprSpec{
			Name:       name,
			PH:         tp.Fluid.PH,
			PT:         tp.Fluid.PT,
			Saturation: tp.Fluid.Saturation,
			Spinodal:   tp.Fluid.Spinodal,
			Critical:   tp.Fluid.Critical,
		}); err != nil {
			return nil, err
		}
		return f, nil
	}
	return nil, fmt.Errorf("%w: unknown method %q", types.ErrConfiguration, tp.Method)
}
