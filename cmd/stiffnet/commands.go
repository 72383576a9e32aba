package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/san-kum/stiffnet/internal/config"
	"github.com/san-kum/stiffnet/internal/decay"
	"github.com/san-kum/stiffnet/internal/experiment"
	"github.com/san-kum/stiffnet/internal/metrics"
	"github.com/san-kum/stiffnet/internal/network"
	"github.com/san-kum/stiffnet/internal/storage"
	"github.com/san-kum/stiffnet/internal/viz"
	"github.com/spf13/cobra"
)

// loadConfig builds the run config from a config file, then a preset for
// its method, then any flags set on the command line. A preset replaces the
// tunings but keeps the file's inputs and timing.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if configFile != "" {
		var err error
		if cfg, err = config.Load(configFile); err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	if preset != "" {
		m := cfg.Method
		if cmd.Flags().Changed("method") {
			m = method
		}
		p := config.GetPreset(m, preset)
		if p == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets(m))
		}
		tuned := *p
		tuned.Network, tuned.Zones, tuned.DataDir = cfg.Network, cfg.Zones, cfg.DataDir
		tuned.Dt, tuned.Duration, tuned.Workers = cfg.Dt, cfg.Duration, cfg.Workers
		cfg = &tuned
	}

	flags := cmd.Flags()
	if flags.Changed("network") {
		cfg.Network = networkFile
	}
	if flags.Changed("zones") {
		cfg.Zones = zonesFile
	}
	if flags.Changed("method") {
		cfg.Method = method
	}
	if flags.Changed("dt") {
		cfg.Dt = dt
	}
	if flags.Changed("time") {
		cfg.Duration = duration
	}
	if flags.Changed("workers") {
		cfg.Workers = workers
	}
	if flags.Changed("validation") {
		cfg.Validation = validation
	}
	if flags.Changed("cutoff") {
		cfg.Decay.Cutoff = cutoff
	}
	if cfg.Network == "" || cfg.Zones == "" {
		return nil, fmt.Errorf("network and zones files are required")
	}
	return cfg, nil
}

func loadModel(cfg *config.Config) (*network.Model, error) {
	net, err := config.LoadNetwork(cfg.Network)
	if err != nil {
		return nil, err
	}
	return config.LoadZones(cfg.Zones, net)
}

func saveModel(model *network.Model) error {
	if outFile == "" {
		return nil
	}
	if err := config.SaveZones(outFile, model); err != nil {
		return err
	}
	slog.Info("wrote zones", "path", outFile)
	return nil
}

func runEvolve(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	model, err := loadModel(cfg)
	if err != nil {
		return err
	}

	exp, err := experiment.New(cfg, model)
	if err != nil {
		return err
	}
	for _, m := range metrics.Defaults() {
		exp.AddMetric(m)
	}
	exp.AddObserver(func(p experiment.Progress) {
		slog.Debug("progress", "t", p.T, "attempts", p.Attempts, "bar", viz.ProgressBar(p.T/p.Duration, 30))
	})

	fmt.Printf("evolving %d zones with %s...\n", len(model.Zones()), cfg.Method)
	start := time.Now()
	result, err := exp.Run(cmd.Context())
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	runID := "unsaved"
	if !noStore {
		if cfg.DataDir != "" && !cmd.Flags().Changed("data") {
			dataDir = cfg.DataDir
		}
		st := storage.New(dataDir)
		if err := st.Init(); err != nil {
			return err
		}
		if runID, err = st.Save(cfg, result); err != nil {
			return err
		}
	}

	fmt.Printf("completed in %v\n", elapsed)
	fmt.Println(viz.Summary(runID, result, top))
	return saveModel(model)
}

// runLive evolves the model like runEvolve while a bubbletea view shows its
// progress. Quitting the view cancels the run.
func runLive(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	model, err := loadModel(cfg)
	if err != nil {
		return err
	}
	exp, err := experiment.New(cfg, model)
	if err != nil {
		return err
	}
	for _, m := range metrics.Defaults() {
		exp.AddMetric(m)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	prog := tea.NewProgram(viz.NewLive(cfg.Method), tea.WithContext(ctx))
	exp.AddObserver(func(p experiment.Progress) {
		prog.Send(viz.NewProgressMsg(p, top))
	})

	type outcome struct {
		result *experiment.Result
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := exp.Run(ctx)
		done <- outcome{result, err}
		prog.Send(viz.DoneMsg{Err: err})
	}()

	final, err := prog.Run()
	cancel()
	out := <-done
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	if live, ok := final.(viz.Live); ok && live.Interrupted() {
		return context.Canceled
	}
	if out.err != nil {
		return out.err
	}

	runID := "unsaved"
	if !noStore {
		if cfg.DataDir != "" && !cmd.Flags().Changed("data") {
			dataDir = cfg.DataDir
		}
		st := storage.New(dataDir)
		if err := st.Init(); err != nil {
			return err
		}
		if runID, err = st.Save(cfg, out.result); err != nil {
			return err
		}
	}
	fmt.Println(viz.Summary(runID, out.result, top))
	return saveModel(model)
}

func runDecay(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	model, err := loadModel(cfg)
	if err != nil {
		return err
	}

	p := decay.NewPropagator(experiment.DecayOptions(cfg))
	if err := p.DecayAbundances(cmd.Context(), model, cfg.Duration, network.SingleReactant, debug || cfg.Exponential.Debug); err != nil {
		return err
	}
	for _, z := range model.Zones() {
		fmt.Printf("%s %s\n", viz.Title.Render("zone "+storage.ZoneKey(z.Labels())), viz.Sparkline(z.MassFractions(), 40))
	}
	return saveModel(model)
}

func runPush(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	model, err := loadModel(cfg)
	if err != nil {
		return err
	}

	p := decay.NewPropagator(experiment.DecayOptions(cfg))
	if err := p.PushToDaughters(cmd.Context(), model, cfg.Decay.Cutoff, network.SingleReactant); err != nil {
		return err
	}
	for _, z := range model.Zones() {
		mass, _ := z.FloatProperty(network.PropRadioactiveMass, 0)
		fmt.Printf("%s %s %s\n",
			viz.Title.Render("zone "+storage.ZoneKey(z.Labels())),
			viz.MetricLabel.Render(network.PropRadioactiveMass),
			viz.MetricValue.Render(fmt.Sprintf("%.6g", mass)))
	}
	return saveModel(model)
}

func listRuns(cmd *cobra.Command, args []string) error {
	runs, err := storage.New(dataDir).List()
	if err != nil {
		return err
	}
	fmt.Println(viz.Runs(runs))
	return nil
}

func plotRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	table, err := st.LoadAbundances(runID)
	if err != nil {
		return err
	}
	if len(table.Rows) == 0 {
		return fmt.Errorf("no data to plot")
	}

	zone := zoneKey
	if zone == "" {
		zone = table.Rows[0].Zone
	}
	species := table.Species
	if speciesList != "" {
		species = strings.Split(speciesList, ",")
	}
	const maxSeries = 6
	if len(species) > maxSeries {
		species = species[:maxSeries]
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("method: %s\n", meta.Method)
	fmt.Printf("zone: %s\n\n", zone)

	series := make([][]float64, 0, len(species))
	for _, name := range species {
		_, values, err := table.Series(zone, strings.TrimSpace(name))
		if err != nil {
			return err
		}
		series = append(series, values)
	}
	fmt.Println(viz.PlotMany(series, species, "abundance vs time", viz.PlotOptions{Height: height, Width: width, Log: logScale}))
	return nil
}
