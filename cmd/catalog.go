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
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/notargets/phtab/catalog"
)

// CatalogCmd represents the catalog command
var CatalogCmd = &cobra.Command{
	Use:   "catalog [id]",
	Short: "List the generated tables, or show one of them",
	Long:  `Lists the tables registered by generate, optionally for one reference, or prints the entry with the given id`,
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var (
			err       error
			c         *catalog.Catalog
			entries   []catalog.Entry
			reference string
			ctx       = context.Background()
		)
		reference, _ = cmd.Flags().GetString("reference")
		if c, err = catalog.Open(viper.GetString("catalog")); err != nil {
			fmt.Printf("error: %s\n", err.Error())
			os.Exit(1)
		}
		defer c.Close()
		if len(args) == 1 {
			var e catalog.Entry
			if e, err = c.Get(ctx, args[0]); err != nil {
				fmt.Printf("error: %s\n", err.Error())
				os.Exit(1)
			}
			PrintEntry(os.Stdout, e)
			return
		}
		if entries, err = c.List(ctx, reference); err != nil {
			fmt.Printf("error: %s\n", err.Error())
			os.Exit(1)
		}
		PrintCatalog(os.Stdout, entries)
	},
}

func init() {
	rootCmd.AddCommand(CatalogCmd)
	CatalogCmd.Flags().StringP("reference", "r", "", "only list the tables of this reference")
}

func PrintEntry(w io.Writer, e catalog.Entry) {
	fmt.Fprintf(w, "%s\t\t= Id\n", e.ID)
	fmt.Fprintf(w, "[%s/%s]\t\t= Method/Reference\n", e.Method, e.Reference)
	fmt.Fprintf(w, "%s\t= Path\n", e.Path)
	fmt.Fprintf(w, "%s\t= Header\n", e.Header)
	fmt.Fprintf(w, "[%s]\t= Strategy\n", e.Strategy)
	fmt.Fprintf(w, "%d levels, %d nodes, converged %v\n", e.Levels, e.Nodes, e.Converged)
	fmt.Fprintf(w, "%s\t= Created\n", e.Created.Format(time.RFC3339))
}

func PrintCatalog(w io.Writer, entries []catalog.Entry) {
	for _, e := range entries {
		mark := " "
		if !e.Converged {
			mark = "*"
		}
		fmt.Fprintf(w, "%s %s %-6s %-12s %-18s %2d %8d %s\n", e.ID, e.Created.Format(time.RFC3339),
			e.Method, e.Reference, e.Strategy, e.Levels, e.Nodes, mark+e.Path)
	}
}
