package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/morpho-cli/internal/export"
	"github.com/sells-group/morpho-cli/internal/model"
	"github.com/sells-group/morpho-cli/internal/monitoring"
	"github.com/sells-group/morpho-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve stored metric tables over a read-only HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		rec := monitoring.NewRecorder(reg)
		collector := monitoring.NewCollector(st, rec)

		if cfg.Monitoring.Enabled {
			checker := monitoring.NewChecker(collector, monitoring.NewAlerter(cfg.Monitoring), cfg.Monitoring)
			go checker.Run(ctx)
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           buildRouter(st, collector, reg),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx) //nolint:errcheck
		}()

		zap.L().Info("starting server", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// buildRouter mounts the health, metrics and read-only API routes.
func buildRouter(st store.Store, collector *monitoring.Collector, reg *prometheus.Registry) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if reg != nil {
		r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}

	api := &apiHandler{store: st, collector: collector}
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/cities", api.listCities)
		r.Get("/cities/{city}", api.getCity)
		r.Get("/cities/{city}/coverage", api.getCoverage)
		r.Get("/cities/{city}/geojson", api.getGeoJSON)
		r.Get("/runs", api.listRuns)
		r.Get("/status", api.status)
	})
	return r
}

type apiHandler struct {
	store     store.Store
	collector *monitoring.Collector
}

// tableResponse is the JSON form of a metric table. Missing values are null.
type tableResponse struct {
	City     string         `json:"city"`
	Columns  []string       `json:"columns"`
	Rows     []rowResponse  `json:"rows"`
	Coverage model.Coverage `json:"coverage"`
}

type rowResponse struct {
	ID     int                 `json:"id"`
	Name   string              `json:"name,omitempty"`
	Values map[string]*float64 `json:"values"`
}

func newTableResponse(t *model.MetricTable) tableResponse {
	resp := tableResponse{City: t.City, Columns: t.Columns(), Coverage: model.CoverageOf(t)}
	for _, row := range t.Rows() {
		vals := make(map[string]*float64, len(resp.Columns))
		for _, c := range resp.Columns {
			v := row.Value(c)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				vals[c] = nil
				continue
			}
			vals[c] = &v
		}
		resp.Rows = append(resp.Rows, rowResponse{ID: row.ID, Name: row.Name, Values: vals})
	}
	return resp
}

func (h *apiHandler) listCities(w http.ResponseWriter, r *http.Request) {
	cities, err := h.store.ListCities(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if cities == nil {
		cities = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"cities": cities})
}

func (h *apiHandler) getCity(w http.ResponseWriter, r *http.Request) {
	t, err := h.store.LoadTable(r.Context(), chi.URLParam(r, "city"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newTableResponse(t))
}

func (h *apiHandler) getCoverage(w http.ResponseWriter, r *http.Request) {
	t, err := h.store.LoadTable(r.Context(), chi.URLParam(r, "city"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	row := coverageFor(t)
	writeJSON(w, http.StatusOK, map[string]any{
		"city":           row.City,
		"full":           row.Full,
		"polygons":       row.Polygons,
		"available":      row.Coverage.Available,
		"missing":        row.Coverage.Missing,
		"missing_groups": row.MissingGroups,
	})
}

func (h *apiHandler) getGeoJSON(w http.ResponseWriter, r *http.Request) {
	city := chi.URLParam(r, "city")
	c, err := h.store.LoadBoundaries(r.Context(), city)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if c.Len() == 0 {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no boundaries for " + city})
		return
	}
	t, err := h.store.LoadTable(r.Context(), city)
	if err != nil && !eris.Is(err, store.ErrTableNotFound) {
		writeError(w, r, err)
		return
	}
	if err != nil {
		t = nil
	}
	w.Header().Set("Content-Type", "application/geo+json")
	if err := export.WriteGeoJSON(w, c, t); err != nil {
		zap.L().Error("serve: write geojson", zap.String("city", city), zap.Error(err))
	}
}

func (h *apiHandler) listRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.RunFilter{
		City:   q.Get("city"),
		Status: model.RunStatus(q.Get("status")),
	}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		filter.Limit = n
	}
	runs, err := h.store.ListRuns(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (h *apiHandler) status(w http.ResponseWriter, r *http.Request) {
	if h.collector == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "monitoring unavailable"})
		return
	}
	hours := cfgLookbackHours()
	snap, err := h.collector.Collect(r.Context(), hours)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func cfgLookbackHours() int {
	if cfg != nil && cfg.Monitoring.LookbackWindowHours > 0 {
		return cfg.Monitoring.LookbackWindowHours
	}
	return 24
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	if eris.Is(err, store.ErrTableNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	zap.L().Error("serve: request failed",
		zap.String("path", r.URL.Path),
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.Error(err),
	)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}
