package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/chainguard-dev/clog"
	"github.com/spf13/cobra"

	"github.com/TobiSchelling/codedd/internal/config"
	"github.com/TobiSchelling/codedd/internal/database"
	"github.com/TobiSchelling/codedd/internal/llm"
	"github.com/TobiSchelling/codedd/internal/output"
	"github.com/TobiSchelling/codedd/internal/pipeline"
	"github.com/TobiSchelling/codedd/internal/record"
	"github.com/TobiSchelling/codedd/internal/rubric"
	"github.com/TobiSchelling/codedd/internal/server"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "codedd",
	Short:   "Measure how consistently a language model audits code",
	Long:    "codedd sends the same source files to a model several times, scores each answer against a fixed rubric, and reports how much the scores deviate between cycles.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		installLogger(cmd, level)

		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if !verbose {
			var lvl slog.Level
			if err := lvl.UnmarshalText([]byte(cfg.Logging.Level)); err == nil {
				installLogger(cmd, lvl)
			}
		}
		return nil
	},
}

func installLogger(cmd *cobra.Command, level slog.Level) {
	logger := clog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	cmd.SetContext(clog.WithLogger(cmd.Context(), logger))
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(serveCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("codedd", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/codedd/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to choose the samples directory and provider.")
		fmt.Println("API keys are read from ANTHROPIC_API_KEY / OPENAI_API_KEY or a .env file.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database and system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats()
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}
		if err := cfg.LoadCredentials(cmd.Context()); err != nil {
			return err
		}

		fmt.Printf("Database: %s\n\n", db.Path())
		fmt.Println("Runs:")
		fmt.Printf("  Total: %d\n", stats.Runs)
		fmt.Printf("  Completed: %d\n", stats.CompletedRuns)
		if stats.LatestRun > 0 {
			fmt.Printf("  Latest: %s\n", output.RunDirName(stats.LatestRun))
		}
		fmt.Println("\nAudits:")
		fmt.Printf("  Rows: %d\n", stats.Rows)
		fmt.Printf("  Distinct files: %d\n", stats.Files)
		fmt.Printf("  Exclusions: %d\n", stats.Exclusions)
		fmt.Println("\nProviders:")
		for _, b := range record.Backends {
			state := "ready"
			if err := cfg.CheckCredentials(b); err != nil {
				state = "no API key"
			}
			marker := " "
			if b == cfg.Backend() {
				marker = "*"
			}
			fmt.Printf("  %s %s: %s\n", marker, b, state)
		}
		fmt.Printf("\nSamples: %s (%s)\n", cfg.Audit.SamplesDir, strings.Join(cfg.Audit.Patterns, ", "))
		fmt.Printf("Mode: %s\n", cfg.Audit.Mode)
		return nil
	},
}

// --- run command ---

var (
	dryRun    bool
	modelFlag string
	altMode   bool
)

var runCmd = &cobra.Command{
	Use:   "run <cycles>",
	Short: "Audit every sample file <cycles> times and report the deviation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cycles, err := strconv.Atoi(args[0])
		if err != nil || cycles < 1 {
			return fmt.Errorf("cycles must be a positive integer, got %q", args[0])
		}

		backend := cfg.Backend()
		if modelFlag != "" {
			if backend, err = record.ParseBackend(modelFlag); err != nil {
				return err
			}
		}
		mode := cfg.Mode()
		if altMode {
			mode = rubric.ModeNumerical
		}
		r, err := cfg.LoadRubric()
		if err != nil {
			return err
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx := cmd.Context()
		var result *pipeline.Result
		if dryRun {
			result = pipeline.New(cfg, db, nil, r, mode).DryRun(cycles)
		} else {
			if err := cfg.LoadCredentials(ctx); err != nil {
				return err
			}
			if err := cfg.CheckCredentials(backend); err != nil {
				return err
			}
			provider, err := llm.CreateProvider(ctx, cfg.LLMSettings(backend))
			if err != nil {
				return err
			}
			fmt.Printf("Running %d cycles with %s (%s), %s scoring\n", cycles, backend, provider.Model(), mode)
			result = pipeline.New(cfg, db, provider, r, mode).Run(ctx, cycles)
		}

		for i, step := range result.Steps {
			fmt.Printf("\nStep %d/4: %s\n", i+1, step.Name)
			if step.Err != nil {
				fmt.Printf("  Error: %v\n", step.Err)
			} else {
				fmt.Printf("  %s\n", step.Summary)
			}
		}

		if err := result.Err(); err != nil {
			return err
		}
		if dryRun {
			return nil
		}

		fmt.Print(result.Summary)
		fmt.Printf("\nResults saved to %s\n", result.CSVPath)
		fmt.Printf("Deviation report saved to %s\n", result.ReportPath)
		if result.Interrupted {
			fmt.Println("Run was interrupted; the report covers the completed audits only.")
		}
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be done without executing")
	runCmd.Flags().StringVarP(&modelFlag, "model", "m", "", "Provider: 1=anthropic, 2=openai, 3=ollama (default from config)")
	runCmd.Flags().BoolVar(&altMode, "alt", false, "Use numerical 0-100 scoring instead of rubric phrases")
}

// --- report command ---

var reportTable bool

var reportCmd = &cobra.Command{
	Use:   "report <run-number>",
	Short: "Recompute the deviation report of a past run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		number, err := strconv.Atoi(strings.TrimPrefix(args[0], "runthrough_"))
		if err != nil {
			return fmt.Errorf("invalid run number: %s", args[0])
		}
		r, err := cfg.LoadRubric()
		if err != nil {
			return err
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		rr, err := pipeline.LoadReport(db, r.MetricKeys(), number)
		if err != nil {
			return err
		}
		if rr == nil {
			return fmt.Errorf("run %d not found", number)
		}

		fmt.Printf("%s: %s (%s), %s scoring, %d cycles, status %s\n",
			output.RunDirName(rr.Run.Number), rr.Run.Provider, rr.Run.Model, rr.Run.Mode, rr.Run.Cycles, rr.Run.Status)
		if reportTable {
			fmt.Println()
			rr.Report.WriteTable(os.Stdout)
			fmt.Println()
			rr.Report.WriteFileTable(os.Stdout)
		} else {
			fmt.Print(rr.Report.Verbose())
		}

		if len(rr.Exclusions) > 0 {
			fmt.Println("\nExcluded (not analyzable code):")
			for _, e := range rr.Exclusions {
				fmt.Printf("  %s (cycle %d): %s\n", e.Filename, e.Cycle, e.Explanation)
			}
		}
		return nil
	},
}

func init() {
	reportCmd.Flags().BoolVar(&reportTable, "table", false, "Print tables instead of the text report")
}

// --- runs command ---

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List past runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		runs, err := db.GetRuns()
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No runs yet. Start one with: codedd run <cycles>")
			return nil
		}

		for _, run := range runs {
			started := ""
			if run.StartedAt != nil {
				started = *run.StartedAt
			}
			fmt.Printf("  %s  %s  %-9s %-28s %-9s %2d cycles  %d/%d scored  %d excluded  %d failed  %s\n",
				output.RunDirName(run.Number), started, run.Provider, run.Model, run.Mode,
				run.Cycles, run.Scored, run.Attempts(), run.Excluded, run.Failed, run.Status)
		}
		return nil
	},
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local web server",
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := cfg.LoadRubric()
		if err != nil {
			return err
		}
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		port := cfg.Server.Port
		if cmd.Flags().Changed("port") {
			port = servePort
		}
		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(cmd.Context(), db, r, port)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8000, "Port to run server on")
}

func openDB() (*database.DB, error) {
	return database.Open(cfg.DBPath())
}
