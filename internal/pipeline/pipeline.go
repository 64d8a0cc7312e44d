package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/chainguard-dev/clog"

	"github.com/TobiSchelling/codedd/internal/audit"
	"github.com/TobiSchelling/codedd/internal/config"
	"github.com/TobiSchelling/codedd/internal/database"
	"github.com/TobiSchelling/codedd/internal/deviation"
	"github.com/TobiSchelling/codedd/internal/llm"
	"github.com/TobiSchelling/codedd/internal/output"
	"github.com/TobiSchelling/codedd/internal/record"
	"github.com/TobiSchelling/codedd/internal/rubric"
	"github.com/TobiSchelling/codedd/internal/source"
)

// StepResult holds the result of a single pipeline step.
type StepResult struct {
	Name    string
	Summary string
	Err     error
}

// Result holds the results of a full pipeline run.
type Result struct {
	RunNumber  int
	CSVPath    string
	ReportPath string
	Steps      []StepResult

	Files      int
	Cycles     int
	Attempts   int
	Successful int
	Excluded   int
	Failed     int

	Interrupted bool
	// Summary is the concise deviation report.
	Summary string
}

// Err returns the first step error, if any.
func (r *Result) Err() error {
	for _, s := range r.Steps {
		if s.Err != nil {
			return fmt.Errorf("%s: %w", s.Name, s.Err)
		}
	}
	return nil
}

func (r *Result) add(name, summary string, err error) bool {
	r.Steps = append(r.Steps, StepResult{Name: name, Summary: summary, Err: err})
	return err == nil
}

// Pipeline orchestrates the audit: discover, audit each cycle, analyze.
type Pipeline struct {
	cfg      *config.Config
	db       *database.DB
	provider llm.Provider
	rubric   *rubric.Rubric
	mode     rubric.Mode
}

// New creates a new pipeline. provider may be nil for DryRun.
func New(cfg *config.Config, db *database.DB, provider llm.Provider, r *rubric.Rubric, mode rubric.Mode) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		db:       db,
		provider: provider,
		rubric:   r,
		mode:     mode,
	}
}

// Run audits every sample file cycles times and writes the run's CSV,
// database records and deviation report. When ctx is cancelled the rows
// gathered so far are still analyzed and reported.
func (p *Pipeline) Run(ctx context.Context, cycles int) *Result {
	r := &Result{Cycles: cycles}
	log := clog.FromContext(ctx)

	if cycles < 1 {
		r.add("Discover", "", fmt.Errorf("cycles must be at least 1, got %d", cycles))
		return r
	}
	if p.provider == nil {
		r.add("Discover", "", errors.New("no provider configured"))
		return r
	}

	// Step 1: Discover
	log.Info("Step 1/4: Discovering source files...")
	files, err := source.Discover(p.cfg.Audit.SamplesDir, p.cfg.Audit.Patterns)
	if !r.add("Discover", fmt.Sprintf("Found %d files in %s", len(files), p.cfg.Audit.SamplesDir), err) {
		return r
	}
	r.Files = len(files)
	r.Attempts = len(files) * cycles

	// Step 2: Prepare
	log.Info("Step 2/4: Preparing run...")
	run, dbRun, csv, err := p.prepare(len(files), cycles)
	if !r.add("Prepare", fmt.Sprintf("Run %04d in %s", run.Number, run.Dir), err) {
		return r
	}
	r.RunNumber = run.Number
	r.CSVPath = run.CSVPath
	r.ReportPath = run.ReportPath
	log = log.With("run", run.Number)
	ctx = clog.WithLogger(ctx, log)

	// Step 3: Audit
	log.Infof("Step 3/4: Auditing %d files over %d cycles...", len(files), cycles)
	rows, auditErr := p.runCycles(ctx, files, cycles, dbRun.ID, csv, r)
	if err := csv.Close(); err != nil && auditErr == nil {
		auditErr = err
	}
	summary := fmt.Sprintf("Successfully processed %d/%d audits (%d excluded, %d failed)",
		r.Successful, r.Attempts, r.Excluded, r.Failed)
	if r.Interrupted {
		summary += ", interrupted"
	}
	r.add("Audit", summary, auditErr)

	// Step 4: Analyze, also after an interrupt so partial runs keep a report.
	log.Info("Step 4/4: Analyzing deviations...")
	report, err := deviation.Analyze(rows, p.rubric.MetricKeys())
	if err == nil {
		err = output.WriteReport(run.ReportPath, report.Verbose())
	}
	if r.add("Analyze", fmt.Sprintf("Report written to %s", run.ReportPath), err) {
		r.Summary = report.Concise()
	}

	status := database.StatusCompleted
	switch {
	case r.Interrupted:
		status = database.StatusInterrupted
	case r.Err() != nil:
		status = database.StatusFailed
	}
	counts := database.Counts{Scored: r.Successful, Excluded: r.Excluded, Failed: r.Failed}
	if err := p.db.FinishRun(dbRun.ID, status, counts); err != nil {
		log.Errorf("Failed to finish run: %v", err)
	}
	return r
}

func (p *Pipeline) prepare(fileCount, cycles int) (output.Run, *database.Run, *output.CSVWriter, error) {
	n, err := p.nextRunNumber()
	if err != nil {
		return output.Run{}, nil, nil, err
	}
	run := output.NewRun(p.cfg.Output.Dir, n)
	if err := run.Create(); err != nil {
		return run, nil, nil, err
	}
	csv, err := output.NewCSVWriter(run.CSVPath, p.rubric.MetricKeys())
	if err != nil {
		return run, nil, nil, err
	}
	dbRun, err := p.db.CreateRun(database.NewRun{
		Number:        n,
		Mode:          string(p.mode),
		Provider:      string(p.provider.Backend()),
		Model:         p.provider.Model(),
		RubricVersion: p.rubric.Version,
		Cycles:        cycles,
		FileCount:     fileCount,
	})
	if err != nil {
		csv.Close()
		return run, nil, nil, fmt.Errorf("recording run: %w", err)
	}
	return run, dbRun, csv, nil
}

// nextRunNumber keeps run directories and database runs in step, even if
// one of them was cleaned up by hand.
func (p *Pipeline) nextRunNumber() (int, error) {
	n, err := output.NextRunNumber(p.cfg.Output.Dir)
	if err != nil {
		return 0, err
	}
	stats, err := p.db.GetStats()
	if err != nil {
		return 0, fmt.Errorf("reading run history: %w", err)
	}
	return max(n, stats.LatestRun+1), nil
}

func (p *Pipeline) runCycles(ctx context.Context, files []source.File, cycles int, runID int64, csv *output.CSVWriter, r *Result) ([]record.Row, error) {
	auditor := audit.New(p.provider, p.rubric, p.mode, audit.Options{
		MaxTokens:       p.cfg.Provider.MaxTokens,
		MaxContentChars: p.cfg.Audit.MaxContentChars,
		Concurrency:     p.cfg.Audit.Concurrency,
		Retry:           p.cfg.RetryPolicy(),
	})
	log := clog.FromContext(ctx)

	var all []record.Row
	for c := 1; c <= cycles; c++ {
		log.Infof("Running cycle %d of %d", c, cycles)
		res, cycleErr := auditor.RunCycle(ctx, files, c)

		rows := res.Rows()
		all = append(all, rows...)
		r.Successful += res.Scored
		r.Excluded += res.Excluded

		if err := csv.Append(rows); err != nil {
			return all, err
		}
		if err := p.db.InsertRows(runID, rows); err != nil {
			return all, fmt.Errorf("storing cycle %d: %w", c, err)
		}
		for _, e := range res.Exclusions() {
			if err := p.db.InsertExclusion(runID, e); err != nil {
				return all, fmt.Errorf("storing exclusion: %w", err)
			}
		}

		if cycleErr != nil {
			// Files cut short by the interrupt are not failures.
			for _, o := range res.Outcomes {
				if o.Err != nil && !errors.Is(o.Err, context.Canceled) && !errors.Is(o.Err, context.DeadlineExceeded) {
					r.Failed++
				}
			}
			r.Interrupted = true
			log.Warnf("Interrupted during cycle %d, writing partial results", c)
			return all, nil
		}
		r.Failed += res.Errors
	}
	return all, nil
}

// DryRun shows what would be done without calling a provider.
func (p *Pipeline) DryRun(cycles int) *Result {
	r := &Result{Cycles: cycles}

	files, err := source.Discover(p.cfg.Audit.SamplesDir, p.cfg.Audit.Patterns)
	if !r.add("Discover", fmt.Sprintf("[dry-run] %d files in %s", len(files), p.cfg.Audit.SamplesDir), err) {
		return r
	}
	r.Files = len(files)
	r.Attempts = len(files) * cycles

	n, err := p.nextRunNumber()
	if !r.add("Prepare", fmt.Sprintf("[dry-run] Would create %s", filepath.Join(p.cfg.Output.Dir, output.RunDirName(n))), err) {
		return r
	}
	r.RunNumber = n

	using := string(p.cfg.Backend())
	if p.provider != nil {
		using = fmt.Sprintf("%s (%s)", p.provider.Backend(), p.provider.Model())
	}
	r.add("Audit", fmt.Sprintf("[dry-run] Would run %d audits (%d cycles x %d files) with %s in %s mode, %d metrics",
		r.Attempts, cycles, len(files), using, p.mode, len(p.rubric.MetricKeys())), nil)
	return r
}
