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
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/notargets/phtab/interp"
	"github.com/notargets/phtab/store"
	"github.com/notargets/phtab/types"
)

// Query is one lookup in a generated table
type Query struct {
	Target     types.Target
	Properties []string // Empty means every stored property
	P, H, T    float64
	Invert     bool // Solve for h at (P,T) first
}

// QueryCmd represents the query command
var QueryCmd = &cobra.Command{
	Use:   "query",
	Short: "Interpolate properties from a generated table",
	Long: `Interpolates properties at (p,h) on the ph lattice, at p on the saturation or spinodal curve,
or at (p,T) after inverting the tabulated temperature for h.`,
	Run: func(cmd *cobra.Command, args []string) {
		var (
			err   error
			label string
			table string
			q     = &Query{}
		)
		if table, err = cmd.Flags().GetString("table"); err != nil {
			panic(err)
		}
		if len(table) == 0 {
			fmt.Printf("error: must supply a table file (-T, --table)\n")
			os.Exit(1)
		}
		label, _ = cmd.Flags().GetString("target")
		if q.Target, err = types.NewTarget(label); err != nil {
			fmt.Printf("error: %s\n", err.Error())
			os.Exit(1)
		}
		q.Properties, _ = cmd.Flags().GetStringSlice("property")
		q.P, _ = cmd.Flags().GetFloat64("pressure")
		q.H, _ = cmd.Flags().GetFloat64("enthalpy")
		q.T, _ = cmd.Flags().GetFloat64("temperature")
		q.Invert = cmd.Flags().Changed("temperature")

		var s *store.CDF
		if s, err = store.Open(table); err != nil {
			fmt.Printf("error: %s\n", err.Error())
			os.Exit(1)
		}
		defer s.Close()
		var ip *interp.Interpolator
		if ip, err = interp.Load(s); err != nil {
			fmt.Printf("error: %s\n", err.Error())
			os.Exit(1)
		}
		fd := os.Stdout.Fd()
		colored := isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
		if err = Report(os.Stdout, ip, q, colored); err != nil {
			fmt.Printf("error: %s\n", err.Error())
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(QueryCmd)
	QueryCmd.Flags().StringP("table", "T", "", "NetCDF table written by generate")
	QueryCmd.Flags().StringP("target", "t", "ph", "ph, sat or lim")
	QueryCmd.Flags().StringSliceP("property", "P", nil, "properties to interpolate, all by default")
	QueryCmd.Flags().Float64P("pressure", "p", 0, "pressure")
	QueryCmd.Flags().Float64P("enthalpy", "e", 0, "enthalpy, on the ph target")
	QueryCmd.Flags().Float64("temperature", 0, "temperature, inverts T(p,h) for h on the ph target")
}

// Report prints the header of the table and one row per property
func Report(w io.Writer, ip *interp.Interpolator, q *Query, colored bool) (err error) {
	var (
		bold   = color.New(color.Bold)
		green  = color.New(color.FgGreen)
		yellow = color.New(color.FgYellow)
		red    = color.New(color.FgRed)
	)
	if !colored {
		for _, c := range []*color.Color{bold, green, yellow, red} {
			c.DisableColor()
		}
	}
	if !ip.HasTarget(q.Target) {
		return fmt.Errorf("%w: table has no %s mesh", types.ErrConfiguration, q.Target)
	}
	fmt.Fprintf(w, "%s\n", ip.Header)
	h := q.H
	switch {
	case q.Target.IsCurve():
		fmt.Fprintf(w, "target %s at p = %.6e\n", bold.Sprint(q.Target), q.P)
	case q.Invert:
		var b interp.Branch
		if b, err = ip.Branch(q.P, q.T); err != nil {
			return
		}
		if h, err = ip.Invert(q.P, q.T, b); err != nil {
			return
		}
		fmt.Fprintf(w, "target %s at p = %.6e, T = %.6e: %s branch, h = %.6e\n",
			bold.Sprint(q.Target), q.P, q.T, b, h)
	default:
		fmt.Fprintf(w, "target %s at p = %.6e, h = %.6e\n", bold.Sprint(q.Target), q.P, h)
	}
	props := q.Properties
	if len(props) == 0 {
		props = ip.Properties(q.Target)
	}
	for _, prop := range props {
		var (
			v  float64
			st types.Status
		)
		if q.Target.IsCurve() {
			v, st, err = ip.Curve(q.Target, prop, q.P)
		} else {
			v, st, err = ip.PH(prop, q.P, h)
		}
		if errors.Is(err, types.ErrPropertyNotFound) {
			fmt.Fprintf(w, "%-8s %s\n", prop, red.Sprint("not tabulated"))
			err = nil
			continue
		}
		if err != nil {
			return
		}
		paint := green
		switch st {
		case types.StatusOK:
		case types.StatusDegraded:
			paint = yellow
		default:
			paint = red
		}
		fmt.Fprintf(w, "%-8s %.6e %s\n", prop, v, paint.Sprint(st))
	}
	return
}
