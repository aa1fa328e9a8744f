package main

import (
	"bufio"
	"flag"
	"fmt"
	"math"
	"os"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/notargets/phtab/refine"
	"github.com/notargets/phtab/types"
)

var (
	csvFile string
)

func main() {
	csvFilePtr := flag.String("csvFile", csvFile, "refinement history written by phtab generate")
	flag.Parse()
	csvFile = *csvFilePtr
	if len(csvFile) == 0 {
		flag.Usage()
		os.Exit(1)
	}
	fmt.Printf("Input file: %v\n", csvFile)
	studies := readCSV(csvFile)
	keys := make([]string, 0, len(studies))
	for k := range studies {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		cs := studies[k]
		fmt.Printf("Target = %s, Property = %s, Strategy = %s, Order = %5.2f\n",
			cs.target, cs.property, cs.strategy, cs.Order())
		for i := range cs.numPTS {
			fmt.Printf("%d, %d, %v, %v\n", cs.level[i], cs.numPTS[i], cs.errMAX[i], cs.errMEAN[i])
		}
	}
}

type ConvergenceStudy struct {
	target, property, strategy string
	dim                        float64 // Mesh dimension, relates the node count to the spacing
	level, numPTS              []int
	errMAX, errMEAN            []float64
}

func NewConvergenceStudy(it refine.Iteration) *ConvergenceStudy {
	cs := &ConvergenceStudy{
		target:   it.Target,
		property: it.Property,
		strategy: it.Strategy,
		dim:      1,
	}
	if t, err := types.NewTarget(it.Target); err == nil && !t.IsCurve() {
		cs.dim = 2
	}
	return cs
}

func (cs *ConvergenceStudy) Add(it refine.Iteration) {
	cs.level = append(cs.level, it.Level)
	cs.numPTS = append(cs.numPTS, it.Nodes)
	cs.errMAX = append(cs.errMAX, it.Max)
	cs.errMEAN = append(cs.errMEAN, it.Mean)
}

// Order fits log(max error) against log(spacing), the spacing going as nodes^(-1/dim).
// NaN with fewer than two usable iterations.
func (cs *ConvergenceStudy) Order() float64 {
	var x, y []float64
	for i, n := range cs.numPTS {
		if cs.errMAX[i] <= 0 || n <= 0 {
			continue
		}
		x = append(x, -math.Log(float64(n))/cs.dim)
		y = append(y, math.Log(cs.errMAX[i]))
	}
	if len(x) < 2 {
		return math.NaN()
	}
	_, beta := stat.LinearRegression(x, y, nil, false)
	return beta
}

func readCSV(csvFile string) (studies map[string]*ConvergenceStudy) {
	var (
		err     error
		f       *os.File
		ok      bool
		cs      *ConvergenceStudy
		history refine.History
	)
	studies = make(map[string]*ConvergenceStudy)
	if f, err = os.Open(csvFile); err != nil {
		panic(err)
	}
	defer f.Close()
	if history, err = refine.ReadHistory(bufio.NewReader(f)); err != nil {
		panic(err)
	}
	for _, it := range history {
		key := it.Target + "/" + it.Property
		if cs, ok = studies[key]; !ok {
			cs = NewConvergenceStudy(it)
			studies[key] = cs
		}
		cs.Add(it)
	}
	return
}
