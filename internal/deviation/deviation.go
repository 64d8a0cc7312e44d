// Package deviation measures how consistently a model scores the same file
// across repeated cycles.
package deviation

import (
	"errors"
	"fmt"
	"math"

	"github.com/TobiSchelling/codedd/internal/record"
)

// ErrMissingMetric is returned when a row lacks a declared metric.
var ErrMissingMetric = errors.New("row is missing a declared metric")

// MetricStats is the spread of one metric for one file.
type MetricStats struct {
	Mean                float64 // rounded to 2 decimals
	Min                 int
	Max                 int
	Range               int
	AvgDeviationPercent float64 // rounded to 2 decimals
	Values              []int   // in row order
}

// FileStats aggregates every metric of one file.
type FileStats struct {
	Filename               string
	Metrics                map[string]MetricStats
	TotalDeviation         float64
	AvgTotalDeviation      float64 // rounded to 2 decimals
	MaxDeviation           float64
	MostInconsistentMetric string
}

// OverallMetric aggregates one metric across files, one weight per file.
type OverallMetric struct {
	TotalDeviation float64
	Count          int
	AvgDeviation   float64 // rounded to 2 decimals
}

// Overall aggregates all files.
type Overall struct {
	Metrics           map[string]OverallMetric
	TotalDeviation    float64
	AvgTotalDeviation float64 // rounded to 2 decimals
}

// Report is the result of Analyze. It is never mutated after creation.
type Report struct {
	// Metrics is the declared metric order.
	Metrics []string
	// Files is ordered by first appearance in the analyzed rows.
	Files   []FileStats
	Overall Overall
}

// File returns the stats of filename.
func (r *Report) File(filename string) (FileStats, bool) {
	for _, f := range r.Files {
		if f.Filename == filename {
			return f, true
		}
	}
	return FileStats{}, false
}

// Analyze groups rows by filename and computes per-metric deviation.
// Every row must carry every metric in metrics.
func Analyze(rows []record.Row, metrics []string) (*Report, error) {
	rep := &Report{
		Metrics: append([]string(nil), metrics...),
		Files:   []FileStats{},
		Overall: Overall{Metrics: make(map[string]OverallMetric, len(metrics))},
	}
	for _, m := range metrics {
		rep.Overall.Metrics[m] = OverallMetric{}
	}

	var order []string
	byFile := map[string][]record.Row{}
	for _, row := range rows {
		for _, m := range metrics {
			if _, ok := row.Scores[m]; !ok {
				return nil, fmt.Errorf("%s cycle %d, metric %s: %w", row.Filename, row.Cycle, m, ErrMissingMetric)
			}
		}
		if _, seen := byFile[row.Filename]; !seen {
			order = append(order, row.Filename)
		}
		byFile[row.Filename] = append(byFile[row.Filename], row)
	}

	for _, name := range order {
		fs, devs := analyzeFile(name, byFile[name], metrics)
		for i, m := range metrics {
			om := rep.Overall.Metrics[m]
			om.TotalDeviation += devs[i]
			om.Count++
			rep.Overall.Metrics[m] = om
		}
		rep.Overall.TotalDeviation += fs.AvgTotalDeviation
		rep.Files = append(rep.Files, fs)
	}

	if n := len(rep.Files); n > 0 {
		rep.Overall.AvgTotalDeviation = round2(rep.Overall.TotalDeviation / float64(n))
		for m, om := range rep.Overall.Metrics {
			if om.Count > 0 {
				om.AvgDeviation = round2(om.TotalDeviation / float64(om.Count))
				rep.Overall.Metrics[m] = om
			}
		}
	}
	return rep, nil
}

// analyzeFile also returns the unrounded deviation of each metric, which is
// what the overall totals accumulate.
func analyzeFile(name string, rows []record.Row, metrics []string) (FileStats, []float64) {
	fs := FileStats{Filename: name, Metrics: make(map[string]MetricStats, len(metrics))}
	devs := make([]float64, len(metrics))
	best := -1
	for i, m := range metrics {
		values := make([]int, len(rows))
		for j, row := range rows {
			values[j] = row.Scores[m]
		}
		lo, hi := values[0], values[0]
		for _, v := range values[1:] {
			lo = min(lo, v)
			hi = max(hi, v)
		}
		dev := deviationOf(values)
		devs[i] = dev
		fs.Metrics[m] = MetricStats{
			Mean:                round2(mean(values)),
			Min:                 lo,
			Max:                 hi,
			Range:               hi - lo,
			AvgDeviationPercent: round2(dev),
			Values:              values,
		}
		if best == -1 || dev > fs.MaxDeviation {
			best = i
			fs.MaxDeviation = dev
			fs.MostInconsistentMetric = m
		}
		fs.TotalDeviation += dev
	}
	if len(metrics) > 0 {
		fs.AvgTotalDeviation = round2(fs.TotalDeviation / float64(len(metrics)))
	}
	return fs, devs
}

func mean(values []int) float64 {
	sum := 0
	for _, v := range values {
		sum += v
	}
	return float64(sum) / float64(len(values))
}

// deviationOf is the mean absolute deviation from the mean, as a percentage
// of the mean. It is 0 when the mean is 0.
func deviationOf(values []int) float64 {
	if len(values) == 0 {
		return 0
	}
	mu := mean(values)
	if mu == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += math.Abs(float64(v)-mu) / mu * 100
	}
	return sum / float64(len(values))
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
