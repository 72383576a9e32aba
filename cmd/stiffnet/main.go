package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/san-kum/stiffnet/internal/config"
	"github.com/san-kum/stiffnet/internal/storage"
	"github.com/san-kum/stiffnet/internal/telemetry"
	"github.com/spf13/cobra"
)

var (
	dataDir     string
	logLevel    string
	logJSON     bool
	metricsAddr string
	configFile  string
	preset      string
	networkFile string
	zonesFile   string
	method      string
	dt          float64
	duration    float64
	workers     int
	validation  string
	outFile     string
	noStore     bool
	top         int
	cutoff      float64
	debug       bool
	zoneKey     string
	speciesList string
	logScale    bool
	height      int
	width       int
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "stiffnet",
		Short:         "stiff reaction network integration for multi-zone models",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(logLevel, logJSON)
			if err != nil {
				return err
			}
			slog.SetDefault(logger)
			if metricsAddr != "" {
				serveMetrics(metricsAddr)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", config.DefaultDataDir, "run data directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "log as JSON")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address")

	evolveCmd := &cobra.Command{
		Use:   "evolve",
		Short: "evolve zones through the reaction network",
		RunE:  runEvolve,
	}
	evolveCmd.Flags().StringVar(&configFile, "config", "", "run config file (yaml)")
	evolveCmd.Flags().StringVar(&preset, "preset", "", "use preset configuration")
	evolveCmd.Flags().StringVar(&networkFile, "network", "", "network file (yaml)")
	evolveCmd.Flags().StringVar(&zonesFile, "zones", "", "zones file (yaml)")
	evolveCmd.Flags().StringVar(&method, "method", config.DefaultMethod, "integration method (implicit, exponential)")
	evolveCmd.Flags().Float64Var(&dt, "dt", config.DefaultDt, "interval between snapshots")
	evolveCmd.Flags().Float64Var(&duration, "time", config.DefaultDuration, "duration")
	evolveCmd.Flags().IntVar(&workers, "workers", 0, "worker goroutines (0 = one per CPU)")
	evolveCmd.Flags().StringVar(&validation, "validation", config.ValidationNone, "step validation (none, non_negative)")
	evolveCmd.Flags().StringVar(&outFile, "out", "", "write final zones to this file")
	evolveCmd.Flags().BoolVar(&noStore, "no-store", false, "do not save the run")
	evolveCmd.Flags().IntVar(&top, "top", 5, "species shown per zone")

	liveCmd := &cobra.Command{
		Use:   "live",
		Short: "evolve zones with a live progress view",
		RunE:  runLive,
	}
	liveCmd.Flags().StringVar(&configFile, "config", "", "run config file (yaml)")
	liveCmd.Flags().StringVar(&preset, "preset", "", "use preset configuration")
	liveCmd.Flags().StringVar(&networkFile, "network", "", "network file (yaml)")
	liveCmd.Flags().StringVar(&zonesFile, "zones", "", "zones file (yaml)")
	liveCmd.Flags().StringVar(&method, "method", config.DefaultMethod, "integration method (implicit, exponential)")
	liveCmd.Flags().Float64Var(&dt, "dt", config.DefaultDt, "interval between snapshots")
	liveCmd.Flags().Float64Var(&duration, "time", config.DefaultDuration, "duration")
	liveCmd.Flags().IntVar(&workers, "workers", 0, "worker goroutines (0 = one per CPU)")
	liveCmd.Flags().StringVar(&validation, "validation", config.ValidationNone, "step validation (none, non_negative)")
	liveCmd.Flags().StringVar(&outFile, "out", "", "write final zones to this file")
	liveCmd.Flags().BoolVar(&noStore, "no-store", false, "do not save the run")
	liveCmd.Flags().IntVar(&top, "top", 5, "species shown")

	decayCmd := &cobra.Command{
		Use:   "decay",
		Short: "decay zone abundances over an interval",
		RunE:  runDecay,
	}
	decayCmd.Flags().StringVar(&configFile, "config", "", "run config file (yaml)")
	decayCmd.Flags().StringVar(&networkFile, "network", "", "network file (yaml)")
	decayCmd.Flags().StringVar(&zonesFile, "zones", "", "zones file (yaml)")
	decayCmd.Flags().Float64Var(&duration, "time", config.DefaultDuration, "decay interval")
	decayCmd.Flags().IntVar(&workers, "workers", 0, "worker goroutines (0 = one per CPU)")
	decayCmd.Flags().StringVar(&outFile, "out", "", "write decayed zones to this file")
	decayCmd.Flags().BoolVar(&debug, "debug", false, "log krylov progress")

	pushCmd := &cobra.Command{
		Use:   "push",
		Short: "move unstable species to their stable descendants",
		RunE:  runPush,
	}
	pushCmd.Flags().StringVar(&configFile, "config", "", "run config file (yaml)")
	pushCmd.Flags().StringVar(&networkFile, "network", "", "network file (yaml)")
	pushCmd.Flags().StringVar(&zonesFile, "zones", "", "zones file (yaml)")
	pushCmd.Flags().Float64Var(&cutoff, "cutoff", 0, "ignore decays with a lower rate")
	pushCmd.Flags().IntVar(&workers, "workers", 0, "worker goroutines (0 = one per CPU)")
	pushCmd.Flags().StringVar(&outFile, "out", "", "write pushed zones to this file")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot abundance histories of a run",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().StringVar(&zoneKey, "zone", "", "zone key, e.g. 1/0/0 (default: first zone)")
	plotCmd.Flags().StringVar(&speciesList, "species", "", "comma-separated species (default: all, up to 6)")
	plotCmd.Flags().BoolVar(&logScale, "log", true, "plot log10 abundances")
	plotCmd.Flags().IntVar(&height, "height", 12, "plot height")
	plotCmd.Flags().IntVar(&width, "width", 80, "plot width")

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "export a run as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st := storage.New(dataDir)
			if outFile == "" {
				return st.Export(os.Stdout, args[0])
			}
			return st.ExportFile(outFile, args[0])
		},
	}
	exportCmd.Flags().StringVar(&outFile, "out", "", "output file (default: stdout)")

	presetsCmd := &cobra.Command{
		Use:   "presets [method]",
		Short: "list available presets for a method",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			methods := []string{config.MethodImplicit, config.MethodExponential}
			if len(args) == 1 {
				methods = args
			}
			for _, m := range methods {
				presets := config.ListPresets(m)
				if len(presets) == 0 {
					fmt.Printf("no presets for method: %s\n", m)
					continue
				}
				fmt.Printf("presets for %s:\n", m)
				for _, p := range presets {
					fmt.Printf("  %s\n", p)
				}
			}
			return nil
		},
	}

	rootCmd.AddCommand(evolveCmd, liveCmd, decayCmd, pushCmd, listCmd, plotCmd, exportCmd, presetsCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Error("command failed", "err", err)
		stop()
		os.Exit(1)
	}
}

func newLogger(level string, json bool) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if json {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", telemetry.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server stopped", "addr", addr, "err", err)
		}
	}()
	slog.Info("serving metrics", "addr", addr)
}
