package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/morpho-cli/internal/batch"
	"github.com/sells-group/morpho-cli/internal/boundary"
	"github.com/sells-group/morpho-cli/internal/monitoring"
	"github.com/sells-group/morpho-cli/internal/store"
)

var (
	runStart     string
	runFull      bool
	runOverwrite bool
	runWorkers   int
	runNoExport  bool
)

var runCmd = &cobra.Command{
	Use:   "run [cities-file] [city...]",
	Short: "Compute morphometrics for a list of cities",
	Long: `Computes the metric table of every city and stores it. The first
argument may name a city list file (.txt, .yaml or .xlsx); remaining
arguments are city names. Cities with a stored table are skipped unless
--overwrite is set.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if runFull {
			cfg.Morpho.Full = true
		}
		if cmd.Flags().Changed("workers") {
			cfg.Batch.Workers = runWorkers
		}
		if err := cfg.Validate("run"); err != nil {
			return err
		}

		cities, err := resolveCities(args)
		if err != nil {
			return err
		}
		if len(cities) == 0 {
			return eris.New("run: no cities to process")
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if n, err := st.DeleteExpiredQueries(ctx); err != nil {
			zap.L().Warn("run: prune overpass cache", zap.Error(err))
		} else if n > 0 {
			zap.L().Info("run: pruned overpass cache", zap.Int("entries", n))
		}

		rec := monitoring.NewRecorder(prometheus.NewRegistry())
		driver := batch.NewDriver(st,
			boundary.NewLoader(cfg.Paths.DataDir, cfg.Morpho.MaxPolygons),
			newEngine(st, rec),
			batch.WithRecorder(rec),
		)

		opts := batch.Options{
			Full:      cfg.Morpho.Full,
			Overwrite: runOverwrite,
			Start:     runStart,
			Workers:   cfg.Batch.Workers,
		}
		if !runNoExport {
			opts.OutputDir = cfg.Paths.OutputDir
		}

		sum, err := driver.Run(ctx, cities, opts)
		if sum != nil {
			formatSummary(os.Stdout, sum)
		}
		return err
	},
}

func init() {
	runCmd.Flags().StringVar(&runStart, "start", "", "resume the list at this city")
	runCmd.Flags().BoolVar(&runFull, "full", false, "compute the full metric set")
	runCmd.Flags().BoolVar(&runOverwrite, "overwrite", false, "recompute cities that already have a stored table")
	runCmd.Flags().IntVar(&runWorkers, "workers", 1, "cities processed concurrently")
	runCmd.Flags().BoolVar(&runNoExport, "no-export", false, "skip writing per-city GeoJSON files")
	rootCmd.AddCommand(runCmd)
}

// resolveCities reads a city list file when the first argument names one
// and appends the remaining arguments as city names.
func resolveCities(args []string) ([]string, error) {
	if len(args) == 0 {
		return nil, nil
	}
	if info, err := os.Stat(args[0]); err == nil && info.Mode().IsRegular() {
		cities, err := batch.ReadCityFile(args[0])
		if err != nil {
			return nil, err
		}
		return append(cities, args[1:]...), nil
	}
	return append([]string(nil), args...), nil
}

// formatSummary writes one line per city to w.
func formatSummary(out io.Writer, sum *batch.Summary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "CITY\tSTATUS\tPOLYGONS\tELAPSED\tERROR")
	for _, r := range sum.Results {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			r.City, r.Status, r.Polygons, r.Elapsed.Round(time.Millisecond), truncate(r.Error, 60))
	}
	_ = w.Flush()
	if sum.Next != "" {
		_, _ = fmt.Fprintf(out, "Next: %s\n", sum.Next)
	}
}

// truncate shortens s to n runes, marking the cut with an ellipsis.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:max(n-3, 0)]) + "..."
}

// withStore opens the store for read-only commands.
func withStore(ctx context.Context, fn func(context.Context, store.Store) error) error {
	if err := cfg.Validate("read"); err != nil {
		return err
	}
	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck
	return fn(ctx, st)
}
