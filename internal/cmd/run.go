package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/strrl/statement-agent/internal/agent"
	"github.com/strrl/statement-agent/internal/ai"
	"github.com/strrl/statement-agent/internal/history"
	"github.com/strrl/statement-agent/internal/report"
)

var (
	runFlags         targetFlags
	runProvider      string
	runModel         string
	runMaxAttempts   int
	runMaxIterations int
	runRunsDir       string
	runReport        bool
	runRPM           int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Generate a parser for a bank's statements",
	Long: `Run the agent for one target. The model inspects the sample PDF and the
reference CSV, writes <out-dir>/<target>_parser.go and repairs it until the
parser reproduces the CSV or the write budget is spent.`,
	RunE: runAgent,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runFlags.register(runCmd)
	runCmd.Flags().StringVar(&runProvider, "provider", "", "Model provider: groq, openrouter, openai or anthropic")
	runCmd.Flags().StringVar(&runModel, "model", "", "Model to use (default depends on provider)")
	runCmd.Flags().IntVar(&runMaxAttempts, "max-attempts", agent.DefaultMaxAttempts, "Maximum parser writes")
	runCmd.Flags().IntVar(&runMaxIterations, "max-iterations", agent.DefaultMaxIterations, "Maximum model round trips")
	runCmd.Flags().StringVar(&runRunsDir, "runs-dir", "", `Directory for run logs ("" disables logging)`)
	runCmd.Flags().IntVar(&runRPM, "requests-per-minute", 0, "Maximum model requests per minute, overriding the config (0 disables)")
	runCmd.Flags().BoolVar(&runReport, "report", false, "Write <out-dir>/<target>_report.md")
}

func runAgent(cmd *cobra.Command, args []string) error {
	runFlags.apply(cmd)
	if cmd.Flags().Changed("provider") {
		cfg.Provider = runProvider
	}
	if cmd.Flags().Changed("model") {
		cfg.Model = runModel
	}
	if cmd.Flags().Changed("max-attempts") {
		cfg.MaxAttempts = runMaxAttempts
	}
	if cmd.Flags().Changed("max-iterations") {
		cfg.MaxIterations = runMaxIterations
	}
	if cmd.Flags().Changed("runs-dir") {
		cfg.RunsDir = runRunsDir
	}
	if cmd.Flags().Changed("requests-per-minute") {
		cfg.RequestsPerMinute = runRPM
	}

	target := runFlags.target
	pdfPath, csvPath := cfg.SamplePaths(target)

	aiCfg, err := cfg.AI()
	if err != nil {
		return err
	}

	client, err := ai.NewClient(aiCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize model client: %w", err)
	}

	env, err := newTestEnv()
	if err != nil {
		return err
	}

	opts := agent.Options{
		Target:        target,
		PDFPath:       pdfPath,
		CSVPath:       csvPath,
		MaxAttempts:   cfg.MaxAttempts,
		MaxIterations: cfg.MaxIterations,
	}

	logger := slog.Default()
	loopOpts := []agent.Option{agent.WithLogger(logger)}

	var runLog *history.Log
	if cfg.RunsDir != "" {
		runLog, err = history.Create(cfg.RunsDir, target)
		if err != nil {
			return err
		}
		defer runLog.Close()

		logger = logger.With("run_id", runLog.RunID())
		loopOpts = []agent.Option{agent.WithLogger(logger), agent.WithRecorder(runLog)}
	}

	toolbox := agent.NewToolbox(env.db, env.writer, env.runner, opts)
	toolbox.PDFTimeout = cfg.PDFTimeout

	loop, err := agent.New(client, toolbox, opts, loopOpts...)
	if err != nil {
		return err
	}

	logger.Debug("starting run",
		"provider", aiCfg.Provider,
		"model", aiCfg.Model,
		"pdf", pdfPath,
		"csv", csvPath,
		"parser", env.writer.Path(target))

	outcome, err := loop.Run(cmd.Context())
	if err != nil {
		return err
	}

	if runLog != nil {
		logger.Info("run log written", "path", runLog.Path())
	}

	if runReport {
		runID := ""
		if runLog != nil {
			runID = runLog.RunID()
		}
		path, err := report.NewGenerator(cfg.OutDir).GenerateRun(outcome, runID)
		if err != nil {
			return fmt.Errorf("failed to generate report: %w", err)
		}
		fmt.Printf("Report written to %s\n", path)
	}

	return nil
}
