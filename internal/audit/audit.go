// Package audit sends source files to a provider and turns the replies
// into audit rows.
package audit

import (
	"context"
	"fmt"

	"github.com/chainguard-dev/clog"
	"golang.org/x/sync/errgroup"

	"github.com/TobiSchelling/codedd/internal/llm"
	"github.com/TobiSchelling/codedd/internal/record"
	"github.com/TobiSchelling/codedd/internal/response"
	"github.com/TobiSchelling/codedd/internal/retry"
	"github.com/TobiSchelling/codedd/internal/rubric"
	"github.com/TobiSchelling/codedd/internal/source"
)

// Options tunes an Auditor.
type Options struct {
	MaxTokens       int
	MaxContentChars int
	Concurrency     int
	Retry           retry.Policy
}

// Outcome is the result of auditing one file in one cycle. Exactly one of
// Row, Exclusion and Err is set.
type Outcome struct {
	File      source.File
	Cycle     int
	Row       *record.Row
	Exclusion *record.Exclusion
	Err       error
}

// CycleResult holds the outcomes of one cycle in file order.
type CycleResult struct {
	Cycle    int
	Outcomes []Outcome
	Scored   int
	Excluded int
	Errors   int
}

// Rows returns the scored rows of the cycle.
func (c *CycleResult) Rows() []record.Row {
	rows := make([]record.Row, 0, c.Scored)
	for _, o := range c.Outcomes {
		if o.Row != nil {
			rows = append(rows, *o.Row)
		}
	}
	return rows
}

// Exclusions returns the files the model declined to score.
func (c *CycleResult) Exclusions() []record.Exclusion {
	var out []record.Exclusion
	for _, o := range c.Outcomes {
		if o.Exclusion != nil {
			out = append(out, *o.Exclusion)
		}
	}
	return out
}

// Auditor audits files against one rubric with one provider and scoring
// mode.
type Auditor struct {
	provider llm.Provider
	rubric   *rubric.Rubric
	mode     rubric.Mode
	parser   *response.Parser
	opts     Options
}

// New creates an auditor.
func New(provider llm.Provider, r *rubric.Rubric, mode rubric.Mode, opts Options) *Auditor {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Auditor{
		provider: provider,
		rubric:   r,
		mode:     mode,
		parser:   response.New(r.Schema(), response.StrategyFor(mode, r.ScoreTable())),
		opts:     opts,
	}
}

// Metrics returns the metric keys every row carries.
func (a *Auditor) Metrics() []string { return a.rubric.MetricKeys() }

// AuditFile reads, prompts, parses and builds the row for one file.
func (a *Auditor) AuditFile(ctx context.Context, f source.File, cycle int) Outcome {
	out := Outcome{File: f, Cycle: cycle}
	log := clog.FromContext(ctx).With("file", f.Name).With("cycle", cycle)

	content, err := f.Read()
	if err != nil {
		out.Err = err
		return out
	}
	code, doc := source.CountLines(content)
	content, cut := source.Truncate(content, a.opts.MaxContentChars)
	if cut {
		log.With("max_chars", a.opts.MaxContentChars).Warn("Content truncated")
	}

	log.Infof("Analyzing %s using %s", f.Name, a.provider.Backend())
	prompt := a.rubric.Prompt(a.mode, content)
	text, err := retry.Do(ctx, a.opts.Retry, "audit "+f.Name, llm.IsRetryable, func() (string, error) {
		return a.provider.Generate(ctx, prompt, a.opts.MaxTokens)
	})
	if err != nil {
		out.Err = fmt.Errorf("auditing %s: %w", f.Name, err)
		return out
	}

	res := a.parser.Parse(text)
	if res.Excluded {
		out.Exclusion = &record.Exclusion{
			Filename:    f.Name,
			Cycle:       cycle,
			Explanation: res.Explanation(a.rubric.Schema()),
		}
		log.With("explanation", out.Exclusion.Explanation).Warn("Model declared file not analyzable, excluding")
		return out
	}

	row := BuildRow(res, a.rubric.Schema(), Meta{
		Filename:    f.Name,
		Cycle:       cycle,
		Backend:     a.provider.Backend(),
		LinesOfCode: code,
		LinesOfDoc:  doc,
	})
	if row.NoneCount > 0 {
		log.With("none_answers", row.NoneCount).Debug("Response contains None answers")
	}
	log.Info("Analysis complete")
	out.Row = &row
	return out
}

// RunCycle audits files concurrently, at most Concurrency at a time. File
// failures are recorded in the outcomes; only cancellation of ctx is
// returned as an error, together with the outcomes gathered so far.
func (a *Auditor) RunCycle(ctx context.Context, files []source.File, cycle int) (*CycleResult, error) {
	clog.FromContext(ctx).Infof("Cycle %d: auditing %d files", cycle, len(files))

	outcomes := make([]Outcome, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.opts.Concurrency)
	for i, f := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				outcomes[i] = Outcome{File: f, Cycle: cycle, Err: err}
				return nil
			}
			outcomes[i] = a.AuditFile(gctx, f, cycle)
			return nil
		})
	}
	_ = g.Wait()

	r := &CycleResult{Cycle: cycle, Outcomes: outcomes}
	for _, o := range outcomes {
		switch {
		case o.Row != nil:
			r.Scored++
		case o.Exclusion != nil:
			r.Excluded++
		default:
			r.Errors++
			clog.FromContext(ctx).With("file", o.File.Name).With("cycle", cycle).
				Errorf("Error analyzing %s: %v", o.File.Name, o.Err)
		}
	}
	clog.FromContext(ctx).Infof("Cycle %d complete: %d scored, %d excluded, %d errors", cycle, r.Scored, r.Excluded, r.Errors)

	if err := ctx.Err(); err != nil {
		return r, err
	}
	return r, nil
}
