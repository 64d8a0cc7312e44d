package deviation

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

const rule = "=================================================="

// topMetrics is how many metrics the per-file block lists.
const topMetrics = 5

// Verbose renders the overall statistics followed by one block per file.
func (r *Report) Verbose() string {
	var b strings.Builder
	b.WriteString("\nConsistency Analysis Summary\n" + rule + "\n")
	b.WriteString(r.Concise())
	b.WriteString("\nPer-File Analysis\n" + rule + "\n")

	for _, f := range r.Files {
		fmt.Fprintf(&b, "\n%s\n", f.Filename)
		fmt.Fprintf(&b, "  Average deviation across all metrics: %s%%\n", num(f.AvgTotalDeviation))
		fmt.Fprintf(&b, "  Most inconsistent metric: %s (±%s%%)\n", f.MostInconsistentMetric, num(round2(f.MaxDeviation)))

		b.WriteString("\n  Top 5 most inconsistent metrics:\n")
		for _, m := range f.ranked(r.Metrics)[:min(topMetrics, len(r.Metrics))] {
			s := f.Metrics[m]
			fmt.Fprintf(&b, "    • %s: ±%s%% (range: %d-%d)\n", m, num(s.AvgDeviationPercent), s.Min, s.Max)
		}
	}
	return b.String()
}

// Concise renders only the overall statistics.
func (r *Report) Concise() string {
	var b strings.Builder
	b.WriteString("\nOverall Statistics\n" + rule + "\n")
	fmt.Fprintf(&b, "\nAverage total deviation across all files: %s%%\n", num(r.Overall.AvgTotalDeviation))
	b.WriteString("\nDeviation by metric (sorted by inconsistency):\n")
	for _, m := range r.rankedOverall() {
		fmt.Fprintf(&b, "  • %s: ±%s%%\n", m, num(r.Overall.Metrics[m].AvgDeviation))
	}
	return b.String()
}

// rankedOverall returns the metrics seen in at least one file, most
// inconsistent first. Ties keep declaration order.
func (r *Report) rankedOverall() []string {
	var out []string
	for _, m := range r.Metrics {
		if r.Overall.Metrics[m].Count > 0 {
			out = append(out, m)
		}
	}
	slices.SortStableFunc(out, func(a, b string) int {
		return descending(r.Overall.Metrics[a].AvgDeviation, r.Overall.Metrics[b].AvgDeviation)
	})
	return out
}

func (f FileStats) ranked(metrics []string) []string {
	out := slices.Clone(metrics)
	slices.SortStableFunc(out, func(a, b string) int {
		return descending(f.Metrics[a].AvgDeviationPercent, f.Metrics[b].AvgDeviationPercent)
	})
	return out
}

func descending(a, b float64) int {
	switch {
	case a > b:
		return -1
	case a < b:
		return 1
	}
	return 0
}

func num(x float64) string {
	return strconv.FormatFloat(x, 'f', -1, 64)
}
