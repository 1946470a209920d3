package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/morpho-cli/internal/model"
	"github.com/sells-group/morpho-cli/internal/store"
)

var statusRuns int

var statusCmd = &cobra.Command{
	Use:   "status [city]",
	Short: "Show metric coverage of stored cities",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd.Context(), func(ctx context.Context, st store.Store) error {
			var cities []string
			if len(args) == 1 {
				cities = args
			} else {
				var err error
				if cities, err = st.ListCities(ctx); err != nil {
					return eris.Wrap(err, "status: list cities")
				}
				sort.Strings(cities)
			}

			rows := make([]coverageRow, 0, len(cities))
			for _, city := range cities {
				t, err := st.LoadTable(ctx, city)
				if err != nil {
					return eris.Wrapf(err, "status: load %s", city)
				}
				rows = append(rows, coverageFor(t))
			}
			if len(rows) == 0 {
				fmt.Fprintln(os.Stderr, "No stored cities.")
			} else {
				formatCoverage(os.Stdout, rows, len(args) == 1)
			}

			if statusRuns > 0 {
				filter := store.RunFilter{Limit: statusRuns}
				if len(args) == 1 {
					filter.City = args[0]
				}
				runs, err := st.ListRuns(ctx, filter)
				if err != nil {
					return eris.Wrap(err, "status: list runs")
				}
				fmt.Fprintln(os.Stdout)
				formatRuns(os.Stdout, runs)
			}
			return nil
		})
	},
}

func init() {
	statusCmd.Flags().IntVar(&statusRuns, "runs", 0, "also list this many recent runs")
	rootCmd.AddCommand(statusCmd)
}

// coverageRow summarises one stored table.
type coverageRow struct {
	City          string
	Full          bool
	Polygons      int
	Coverage      model.Coverage
	MissingGroups []model.Group
}

func coverageFor(t *model.MetricTable) coverageRow {
	full := t.HasColumn(model.MetricCompactnessArea)
	cov := model.CoverageOf(t)
	return coverageRow{
		City:          t.City,
		Full:          full,
		Polygons:      t.Len(),
		Coverage:      cov,
		MissingGroups: cov.MissingGroups(full),
	}
}

// formatCoverage writes a coverage table; detail adds the missing metric
// names.
func formatCoverage(out io.Writer, rows []coverageRow, detail bool) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "CITY\tSET\tPOLYGONS\tAVAILABLE\tMISSING\tMISSING_GROUPS")
	for _, r := range rows {
		set := "minimal"
		if r.Full {
			set = "full"
		}
		groups := make([]string, len(r.MissingGroups))
		for i, g := range r.MissingGroups {
			groups[i] = string(g)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\n",
			r.City, set, r.Polygons, len(r.Coverage.Available), len(r.Coverage.Missing), strings.Join(groups, ","))
	}
	_ = w.Flush()

	if !detail {
		return
	}
	for _, r := range rows {
		for _, name := range r.Coverage.Missing {
			_, _ = fmt.Fprintf(out, "  missing: %s\n", name)
		}
	}
}

// formatRuns writes a tabular list of runs to out.
func formatRuns(out io.Writer, runs []model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tCITY\tSTATUS\tPOLYGONS\tSTARTED\tDURATION\tERROR")
	for _, r := range runs {
		dur := "-"
		if r.FinishedAt != nil {
			dur = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		id := r.ID
		if len(id) > 8 {
			id = id[:8]
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			id, r.City, r.Status, r.Polygons, r.StartedAt.Format(time.DateTime), dur, truncate(r.Error, 40))
	}
	_ = w.Flush()
}
