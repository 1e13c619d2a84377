package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/wesleyorama2/surge/internal/config"
	"github.com/wesleyorama2/surge/internal/httpscenario"
	"github.com/wesleyorama2/surge/internal/metrics"
	"github.com/wesleyorama2/surge/internal/output"
	"github.com/wesleyorama2/surge/internal/ramp"
)

const progressInterval = time.Second

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [config-file]",
		Short: "Run a staged load test",
		Long: `Run a staged load test from a run file or from flags.

Run files (YAML or JSON) describe the load profile and the request steps
every virtual user repeats:

  name: purchases
  settings:
    baseUrl: http://localhost:8080
  pools:
    userName: [alice, bob, carol]
  load:
    startVUs: 0
    stages:
      - { duration: 10s, target: 20 }
      - { duration: 20s, target: 20 }
      - { duration: 10s, target: 0 }
    pace: 1s
  steps:
    - url: /search/user/{{userName}}
      require: "$"
      extract: { userId: "$[0].id" }
    - url: /user/{{userId}}/purchases

Examples:
  # Run from a file
  surge run purchases.yaml

  # Ramp a single URL up to 20 users, hold, then ramp down
  surge run --url http://localhost:8080/health --stages "10s:20,20s:20,10s:0"

  # Write the JSON report to a file and expose live metrics
  surge run purchases.yaml --output report.json --metrics-addr :9090`,
		Args: cobra.MaximumNArgs(1),
		RunE: runLoad,
	}

	flags := cmd.Flags()
	flags.StringP("config", "c", "", "Run file (YAML or JSON)")
	flags.StringP("url", "u", "", "Target URL for a single-request run")
	flags.StringP("stages", "s", "10s:20,20s:20,10s:0", "Stages as duration:target pairs (with --url)")
	flags.String("name", "", "Run name used in reports")
	flags.Int("start-vus", 0, "Workers before the first stage")
	flags.Duration("pace", 0, "Pause between iterations of one worker (default 1s)")
	flags.Duration("tick", 0, "How often the target is re-evaluated (default 1s)")
	flags.Duration("graceful-stop", 0, "How long to wait for in-flight iterations at the end (0 = no limit)")
	flags.Int("max-vus", 0, "Cap on concurrently running workers (0 = unlimited)")
	flags.Duration("timeout", 0, "Per-request timeout (default 30s)")
	flags.Bool("insecure", false, "Skip TLS certificate verification")
	flags.BoolP("json", "j", false, "Write the report as JSON to stdout")
	flags.StringP("output", "o", "", "Write the JSON report to a file")
	flags.BoolP("quiet", "q", false, "Suppress live progress output")
	flags.Bool("no-color", false, "Disable colored output")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")

	return cmd
}

func runLoad(cmd *cobra.Command, args []string) error {
	runCfg, err := buildRunConfig(cmd, args)
	if err != nil {
		return err
	}

	logger, err := newLogger(cmd, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	jsonOutput, _ := cmd.Flags().GetBool("json")
	outputPath, _ := cmd.Flags().GetString("output")
	quiet, _ := cmd.Flags().GetBool("quiet")
	noColor, _ := cmd.Flags().GetBool("no-color")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

	scenario, err := httpscenario.New(runCfg.ScenarioConfig(), logger)
	if err != nil {
		return err
	}
	defer scenario.Close()

	// The sinks exist before the controller, so they read its stats through
	// a pointer that is filled in once it is built.
	var current atomic.Pointer[ramp.Controller]
	source := func() *ramp.Stats {
		if ctrl := current.Load(); ctrl != nil {
			return ctrl.Stats()
		}
		return nil
	}

	engine := metrics.NewEngine(source)
	defer engine.Stop()
	collector := metrics.NewCollector(source)

	rampCfg := runCfg.RampConfig()
	rampCfg.Sink = ramp.MultiSink(engine, collector)
	rampCfg.Logger = &logger

	ctrl, err := ramp.New(rampCfg)
	if err != nil {
		return err
	}
	current.Store(ctrl)

	// With JSON on stdout, everything human-readable goes to stderr.
	consoleWriter := cmd.OutOrStdout()
	if jsonOutput && outputPath == "" {
		consoleWriter = cmd.ErrOrStderr()
	}
	console := output.NewConsole(output.ConsoleConfig{
		Name:    runCfg.Name,
		Writer:  consoleWriter,
		Quiet:   quiet,
		NoColor: noColor,
	})
	console.PrintHeader(ctrl.Timeline())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := execute(ctx, ctrl, scenario, engine, collector, console, metricsAddr, logger)
	if err != nil {
		return err
	}

	engine.Stop()
	report := output.NewReport(runCfg.Name, summary, engine)

	if !jsonOutput || outputPath != "" {
		console.PrintSummary(report)
	}
	if jsonOutput && outputPath == "" {
		if err := output.WriteJSON(cmd.OutOrStdout(), report); err != nil {
			return err
		}
	}
	if outputPath != "" {
		if err := writeReportFile(report, outputPath); err != nil {
			return err
		}
		if !quiet {
			fmt.Fprintf(consoleWriter, "Report: %s\n", outputPath)
		}
	}

	return nil
}

// execute runs the controller alongside the progress display and, when addr
// is set, the metrics endpoint. A metrics server failure interrupts the run.
func execute(
	ctx context.Context,
	ctrl *ramp.Controller,
	scenario *httpscenario.Scenario,
	engine *metrics.Engine,
	collector *metrics.Collector,
	console *output.Console,
	addr string,
	logger zerolog.Logger,
) (*ramp.Summary, error) {
	g, gctx := errgroup.WithContext(ctx)
	done := make(chan struct{})

	var summary *ramp.Summary
	g.Go(func() error {
		defer close(done)
		var err error
		summary, err = ctrl.Run(gctx, scenario.Run)
		return err
	})

	g.Go(func() error {
		ticker := time.NewTicker(progressInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return nil
			case <-ticker.C:
				console.Progress(output.NewLiveStats(ctrl.Stats(), engine.GetSnapshot()))
			}
		}
	})

	if addr != "" {
		g.Go(func() error {
			return serveMetrics(addr, collector.Handler(), done, logger)
		})
	}

	if err := g.Wait(); err != nil {
		return summary, err
	}
	return summary, nil
}

// serveMetrics exposes /metrics until done is closed.
func serveMetrics(addr string, handler http.Handler, done <-chan struct{}, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()
	logger.Info().Str("addr", addr).Msg("serving metrics")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	case <-done:
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}

// buildRunConfig loads the run file or builds a quick run from --url, then
// applies flag overrides, defaults and validation.
func buildRunConfig(cmd *cobra.Command, args []string) (*config.RunConfig, error) {
	flags := cmd.Flags()

	configPath, _ := flags.GetString("config")
	if len(args) == 1 {
		if configPath != "" && configPath != args[0] {
			return nil, fmt.Errorf("config given twice: %q and %q", configPath, args[0])
		}
		configPath = args[0]
	}
	targetURL, _ := flags.GetString("url")

	var (
		runCfg *config.RunConfig
		err    error
	)
	switch {
	case configPath != "" && targetURL != "":
		return nil, fmt.Errorf("--url cannot be combined with a run file")
	case configPath != "":
		runCfg, err = config.LoadConfig(configPath)
	case targetURL != "":
		stages, _ := flags.GetString("stages")
		runCfg, err = buildQuickConfig(targetURL, stages)
	default:
		return nil, fmt.Errorf("either a run file or --url is required")
	}
	if err != nil {
		return nil, err
	}

	if flags.Changed("stages") && configPath != "" {
		stagesStr, _ := flags.GetString("stages")
		stages, err := config.ParseStages(stagesStr)
		if err != nil {
			return nil, fmt.Errorf("invalid stages format: %w", err)
		}
		runCfg.Load.Stages = stages
	}
	if flags.Changed("name") {
		runCfg.Name, _ = flags.GetString("name")
	}
	if flags.Changed("start-vus") {
		runCfg.Load.StartVUs, _ = flags.GetInt("start-vus")
	}
	if flags.Changed("max-vus") {
		runCfg.Load.MaxVUs, _ = flags.GetInt("max-vus")
	}
	if flags.Changed("pace") {
		pace, _ := flags.GetDuration("pace")
		d := config.Duration(pace)
		runCfg.Load.Pace = &d
	}
	if flags.Changed("tick") {
		tick, _ := flags.GetDuration("tick")
		runCfg.Load.TickInterval = config.Duration(tick)
	}
	if flags.Changed("graceful-stop") {
		gracefulStop, _ := flags.GetDuration("graceful-stop")
		runCfg.Load.GracefulStop = config.Duration(gracefulStop)
	}
	if flags.Changed("timeout") {
		timeout, _ := flags.GetDuration("timeout")
		runCfg.Settings.Timeout = config.Duration(timeout)
	}
	if flags.Changed("insecure") {
		runCfg.Settings.InsecureSkipVerify, _ = flags.GetBool("insecure")
	}

	config.ApplyDefaults(runCfg)
	if err := runCfg.Validate(); err != nil {
		return nil, err
	}
	return runCfg, nil
}

// buildQuickConfig builds a one-step run that GETs target in a loop.
func buildQuickConfig(target, stagesStr string) (*config.RunConfig, error) {
	stages, err := config.ParseStages(stagesStr)
	if err != nil {
		return nil, fmt.Errorf("invalid stages format: %w", err)
	}

	return &config.RunConfig{
		Name:        "Quick Run",
		Description: fmt.Sprintf("Run generated from flags for %s", target),
		Load:        config.LoadProfile{Stages: stages},
		Steps: []config.StepConfig{
			{Name: "get", URL: target},
		},
	}, nil
}

// writeReportFile writes the JSON report, creating the directory if needed.
func writeReportFile(report *output.Report, path string) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	if err := output.WriteJSON(f, report); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write report file: %w", err)
	}
	return nil
}
