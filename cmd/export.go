package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/morpho-cli/internal/export"
	"github.com/sells-group/morpho-cli/internal/model"
	"github.com/sells-group/morpho-cli/internal/store"
)

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export-geojson <city>",
	Short: "Export a city's boundaries joined with its metrics as GeoJSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd.Context(), func(ctx context.Context, st store.Store) error {
			var out io.Writer = os.Stdout
			if exportOut != "" && exportOut != "-" {
				f, err := os.Create(exportOut)
				if err != nil {
					return eris.Wrap(err, "export: create output")
				}
				defer f.Close() //nolint:errcheck
				out = f
			}
			if err := exportCity(ctx, st, args[0], out); err != nil {
				return err
			}
			if exportOut != "" && exportOut != "-" {
				fmt.Fprintf(os.Stderr, "Saved %s\n", exportOut)
			}
			return nil
		})
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "", "output file (default stdout)")
	rootCmd.AddCommand(exportCmd)
}

// exportCity writes the joined GeoJSON of city. A city without a stored
// table exports its boundaries alone.
func exportCity(ctx context.Context, st store.Store, city string, out io.Writer) error {
	c, err := st.LoadBoundaries(ctx, city)
	if err != nil {
		return eris.Wrapf(err, "export: load boundaries %s", city)
	}
	if c.Len() == 0 {
		return eris.Errorf("export: no stored boundaries for %s", city)
	}
	t, err := st.LoadTable(ctx, city)
	if err != nil && !eris.Is(err, store.ErrTableNotFound) {
		return eris.Wrapf(err, "export: load table %s", city)
	}
	var table *model.MetricTable
	if err == nil {
		table = t
	}
	return export.WriteGeoJSON(out, c, table)
}
