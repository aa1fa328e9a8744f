/*
Copyright © 2020 NAME HERE <EMAIL ADDRESS>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/pkg/profile"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/notargets/phtab/InputParameters"
	"github.com/notargets/phtab/catalog"
	"github.com/notargets/phtab/refine"
	"github.com/notargets/phtab/store"
)

type Generate struct {
	InputFile string
	Profile   bool
	Catalog   string // Empty skips registration
}

// GenerateCmd represents the generate command
var GenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Build a refined table from a reference equation of state",
	Long: `Evaluates the reference on the initial meshes, then refines the (p,h) lattice and the
saturation and spinodal curves until every quality criterion passes or the level caps are reached.
The table is written as a NetCDF file and registered in the catalog.`,
	Run: func(cmd *cobra.Command, args []string) {
		var (
			err error
		)
		g := &Generate{}
		if g.InputFile, err = cmd.Flags().GetString("inputFile"); err != nil {
			panic(err)
		}
		g.Profile, _ = cmd.Flags().GetBool("profile")
		if noCat, _ := cmd.Flags().GetBool("noCatalog"); !noCat {
			g.Catalog = viper.GetString("catalog")
		}
		tp := processInput(g)
		if g.Profile {
			defer profile.Start(profile.CPUProfile, profile.ProfilePath(".")).Stop()
		}
		if _, err = RunGenerate(context.Background(), g, tp, newLogger()); err != nil {
			fmt.Printf("error: %s\n", err.Error())
			os.Exit(1)
		}
	},
}

const exampleFile = `
########################################
Title: "Water, liquid and vapour"
Method: model # or expr, with a Fluid section
Reference: water
Pmin: 1.e6
Pmax: 1.e7
Tmin: 300
Tmax: 700
NbP: 5
NbH: 9
Targets: [ph, sat]
Properties:
  ph: [T, rho]
Levels:
  ph: 4
  sat: 6
Strategy: local-continuity # global, local
Qualities:
  - {Property: T, Target: ph, Policy: centre, Tolerance: 1.e-2}
  - {Property: T, Target: sat, Policy: node, Tolerance: 1.e-4}
Output: water.nc
History: water.csv
########################################
`

func processInput(g *Generate) (tp *InputParameters.TableParameters) {
	var (
		err error
	)
	if len(g.InputFile) == 0 {
		err = fmt.Errorf("must supply an input parameters file (-I, --inputFile) in YAML format")
		fmt.Printf("error: %s\n", err.Error())
		fmt.Printf("Example File:%s\n", exampleFile)
		os.Exit(1)
	}
	var data []byte
	if data, err = os.ReadFile(g.InputFile); err != nil {
		panic(err)
	}
	tp = &InputParameters.TableParameters{}
	if err = tp.Parse(data); err != nil {
		fmt.Printf("error: %s\n", err.Error())
		fmt.Printf("Example File:%s\n", exampleFile)
		os.Exit(1)
	}
	tp.Print()
	return
}

func init() {
	rootCmd.AddCommand(GenerateCmd)
	GenerateCmd.Flags().StringP("inputFile", "I", "", "YAML file for table parameters like:\n\t- pressure and temperature ranges\n\t- targets, levels and quality criteria")
	GenerateCmd.Flags().Bool("profile", false, "write a CPU profile in the current directory")
	GenerateCmd.Flags().Bool("noCatalog", false, "do not register the table in the catalog")
}

// RunGenerate refines the table, writes it with its history and registers it
func RunGenerate(ctx context.Context, g *Generate, tp *InputParameters.TableParameters,
	logger *slog.Logger) (d *refine.Driver, err error) {
	var cfg refine.Config
	if cfg, err = tp.Config(); err != nil {
		return
	}
	ref, err := tp.Evaluator()
	if err != nil {
		return
	}
	if d, err = refine.New(cfg, ref, logger); err != nil {
		return
	}
	converged, err := d.Run()
	if err != nil {
		return
	}
	if !converged {
		logger.Warn("quality criteria not met at the level caps", "run", d.RunID)
	}

	output := tp.Output
	if output == "" {
		output = cfg.Reference + ".nc"
	}
	if output, err = filepath.Abs(output); err != nil {
		return
	}
	var w *store.CDF
	if w, err = store.Create(output); err != nil {
		return
	}
	if err = d.Write(w); err != nil {
		w.Close()
		return
	}
	if err = w.Close(); err != nil {
		return
	}
	fmt.Printf("table written to %s\n", output)

	if tp.History != "" {
		var f *os.File
		if f, err = os.Create(tp.History); err != nil {
			return
		}
		if err = d.History.WriteCSV(f); err != nil {
			f.Close()
			return
		}
		if err = f.Close(); err != nil {
			return
		}
	}

	if g.Catalog == "" {
		return
	}
	var c *catalog.Catalog
	if c, err = catalog.Open(g.Catalog); err != nil {
		return
	}
	defer c.Close()
	levels := 0
	if d.PH != nil {
		levels = d.PH.MaxLevel()
	}
	for _, cv := range d.Curves {
		levels = max(levels, cv.MaxLevel())
	}
	var e catalog.Entry
	if e, err = c.Register(ctx, catalog.Entry{
		ID:        d.RunID,
		Method:    cfg.Method,
		Reference: cfg.Reference,
		Path:      output,
		Header:    d.Header(),
		Strategy:  cfg.Strategy.String(),
		Levels:    levels,
		Nodes:     nodeCount(d),
		Converged: converged,
	}); err != nil {
		return
	}
	fmt.Printf("registered as %s\n", e.ID)
	return
}

func nodeCount(d *refine.Driver) (n int) {
	if d.PH != nil {
		n += len(d.PH.Nodes)
	}
	for _, cv := range d.Curves {
		n += len(cv.Nodes)
	}
	return
}
