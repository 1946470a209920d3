package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/morpho-cli/internal/export"
	"github.com/sells-group/morpho-cli/internal/model"
	"github.com/sells-group/morpho-cli/internal/store"
)

var concatOut string

var concatCmd = &cobra.Command{
	Use:   "concat",
	Short: "Write every stored city table into one CSV or XLSX file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withStore(cmd.Context(), func(ctx context.Context, st store.Store) error {
			out := concatOut
			if out == "" {
				out = filepath.Join(cfg.Paths.OutputDir, "Morphometrics.csv")
			}
			if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
				return eris.Wrap(err, "concat: create output dir")
			}

			frame, err := concatTables(ctx, st)
			if err != nil {
				return err
			}
			if len(frame.Rows) == 0 {
				return eris.New("concat: no stored tables")
			}
			if err := export.WriteFile(out, frame); err != nil {
				return err
			}
			zap.L().Info("concat: saved",
				zap.String("path", out),
				zap.Int("cities", frame.Cities()),
				zap.Int("rows", len(frame.Rows)),
			)
			fmt.Fprintf(os.Stderr, "Saved %s (%d cities)\n", out, frame.Cities())
			return nil
		})
	},
}

func init() {
	concatCmd.Flags().StringVar(&concatOut, "out", "", "output file, .csv or .xlsx (default <output_dir>/Morphometrics.csv)")
	rootCmd.AddCommand(concatCmd)
}

// concatTables loads every stored table in city order.
func concatTables(ctx context.Context, st store.Store) (*export.Frame, error) {
	cities, err := st.ListCities(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "concat: list cities")
	}
	sort.Strings(cities)

	tables := make([]*model.MetricTable, 0, len(cities))
	for _, city := range cities {
		t, err := st.LoadTable(ctx, city)
		if err != nil {
			return nil, eris.Wrapf(err, "concat: load %s", city)
		}
		tables = append(tables, t)
	}
	return export.Concat(tables...), nil
}
