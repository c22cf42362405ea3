package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/rmax-ai/auditsim/pkg/api"
	"github.com/rmax-ai/auditsim/pkg/config"
	"github.com/rmax-ai/auditsim/pkg/logging"
	"github.com/rmax-ai/auditsim/pkg/simulation"
	"github.com/rmax-ai/auditsim/pkg/telemetry"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a simulation",
	Long: `Loads the config, builds the population and runs it until the simulated
deadline. The final report is printed to stdout.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSimulation(cmd)
	},
}

func init() {
	f := runCmd.Flags()
	f.Bool("json", false, "print the report as JSON")
	f.String("out", "", "also write the JSON report to this file")
	f.Bool("watch", false, "show a live progress view")
	f.String("metrics-addr", "", "serve /metrics and the /v1 status API on this address (e.g. 127.0.0.1:9464)")
	f.Int64("seed", 0, "override rng_seed")
	f.Float64("speed", 0, "override speed_multiplier")
	f.Duration("duration", 0, "override simulated_duration")
	f.Int("population", 0, "override population_size")
	f.String("pacing", "", "override pacing: realtime|virtual")
	rootCmd.AddCommand(runCmd)
}

// applyOverrides layers explicitly set flags over the file.
func applyOverrides(cmd *cobra.Command, cfg *config.Config) error {
	f := cmd.Flags()
	if f.Changed("seed") {
		cfg.RNGSeed, _ = f.GetInt64("seed")
	}
	if f.Changed("speed") {
		cfg.SpeedMultiplier, _ = f.GetFloat64("speed")
	}
	if f.Changed("duration") {
		cfg.SimulatedDuration, _ = f.GetDuration("duration")
	}
	if f.Changed("population") {
		cfg.PopulationSize, _ = f.GetInt("population")
	}
	if f.Changed("pacing") {
		cfg.Pacing, _ = f.GetString("pacing")
	}
	return cfg.Validate()
}

func runSimulation(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := applyOverrides(cmd, cfg); err != nil {
		return err
	}

	watch, _ := cmd.Flags().GetBool("watch")
	logger := newLogger(cmd, cfg)
	if watch {
		// The live view owns the terminal.
		logger = logging.NewNop()
	}

	var buildOpts []config.BuildOption
	if addr, _ := cmd.Flags().GetString("metrics-addr"); addr != "" {
		// The status API serves the recorded actions.
		buildOpts = append(buildOpts, config.WithRecordCopy())
	}
	run, err := cfg.Build(logger, buildOpts...)
	if err != nil {
		return err
	}
	defer run.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	simDone := make(chan struct{})

	var (
		report *simulation.Report
		runErr error
	)
	g.Go(func() error {
		defer close(simDone)
		report, runErr = run.Scheduler.Run(gctx, run.Population)
		if report == nil {
			return runErr
		}
		return nil
	})

	if addr, _ := cmd.Flags().GetString("metrics-addr"); addr != "" {
		srv := api.NewServer(run.Scheduler, run.Memory, addr, logger)
		g.Go(func() error {
			if err := srv.Start(); err != nil {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			select {
			case <-simDone:
			case <-gctx.Done():
			}
			shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
			defer done()
			return srv.Stop(shutdownCtx)
		})
	}

	if watch {
		p := tea.NewProgram(newWatchModel(run.Scheduler, cfg.Summary()))
		go func() {
			<-simDone
			p.Send(simDoneMsg{})
		}()
		final, err := p.Run()
		if err != nil {
			cancel()
			return errors.Join(fmt.Errorf("watch view: %w", err), g.Wait())
		}
		if m, ok := final.(watchModel); ok && m.aborted {
			cancel()
		}
	}

	if err := g.Wait(); err != nil {
		return err
	}
	if report == nil {
		return runErr
	}

	if err := writeOutputs(cmd, cfg, run, report); err != nil {
		return err
	}
	if runErr != nil {
		return runErr
	}
	if !report.Success {
		return fmt.Errorf("simulation finished with failed invariants or aborted agents")
	}
	return nil
}

func writeOutputs(cmd *cobra.Command, cfg *config.Config, run *config.Run, report *simulation.Report) error {
	asJSON, _ := cmd.Flags().GetBool("json")
	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(out, renderReport(report))
	}

	if path, _ := cmd.Flags().GetString("out"); path != "" {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
	}

	if path := cfg.Telemetry.CSV; path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create csv: %w", err)
		}
		defer f.Close()
		if err := telemetry.WriteCSV(f, telemetry.Canonical(run.Memory.Records())); err != nil {
			return fmt.Errorf("failed to write csv: %w", err)
		}
	}
	return nil
}
