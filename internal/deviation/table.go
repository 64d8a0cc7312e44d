package deviation

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
)

func newTable(headers []string, w io.Writer) *tablewriter.Table {
	cfg := tablewriter.Config{
		Header: tw.CellConfig{
			Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
			Formatting: tw.CellFormatting{AutoFormat: tw.Off},
		},
		Row: tw.CellConfig{
			Alignment: tw.CellAlignment{Global: tw.AlignLeft},
		},
		Behavior: tw.Behavior{TrimSpace: tw.Off},
	}
	return tablewriter.NewTable(w,
		tablewriter.WithConfig(cfg),
		tablewriter.WithHeader(headers),
		tablewriter.WithRenderer(renderer.NewBlueprint()),
		tablewriter.WithRendition(tw.Rendition{
			Symbols: tw.NewSymbols(tw.StyleMarkdown),
			Borders: tw.Border{
				Left:   tw.On,
				Top:    tw.Off,
				Right:  tw.On,
				Bottom: tw.Off,
			},
		}),
		tablewriter.WithRowAutoWrap(tw.WrapNone),
	)
}

// WriteTable writes the overall per-metric deviation as a table, most
// inconsistent metric first.
func (r *Report) WriteTable(w io.Writer) {
	table := newTable([]string{"Metric", "Avg deviation", "Files"}, w)
	for _, m := range r.rankedOverall() {
		om := r.Overall.Metrics[m]
		_ = table.Append([]string{m, "±" + num(om.AvgDeviation) + "%", fmt.Sprint(om.Count)})
	}
	_ = table.Render()
}

// WriteFileTable writes one line per file with its average deviation and
// its most inconsistent metric.
func (r *Report) WriteFileTable(w io.Writer) {
	table := newTable([]string{"File", "Cycles", "Avg deviation", "Most inconsistent"}, w)
	for _, f := range r.Files {
		cycles := 0
		if len(r.Metrics) > 0 {
			cycles = len(f.Metrics[r.Metrics[0]].Values)
		}
		_ = table.Append([]string{
			f.Filename,
			fmt.Sprint(cycles),
			num(f.AvgTotalDeviation) + "%",
			fmt.Sprintf("%s (±%s%%)", f.MostInconsistentMetric, num(round2(f.MaxDeviation))),
		})
	}
	_ = table.Render()
}

// Markdown renders the report as markdown with pipe tables, for pages
// that render it with a GFM-capable converter.
func (r *Report) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Overall\n\nAverage total deviation across all files: **%s%%**\n\n", num(r.Overall.AvgTotalDeviation))
	if len(r.Files) == 0 {
		b.WriteString("No scored rows.\n")
		return b.String()
	}

	var buf bytes.Buffer
	r.WriteTable(&buf)
	b.WriteString(buf.String())

	b.WriteString("\n## Files\n\n")
	buf.Reset()
	r.WriteFileTable(&buf)
	b.WriteString(buf.String())

	for _, f := range r.Files {
		fmt.Fprintf(&b, "\n### %s\n\n", f.Filename)
		buf.Reset()
		table := newTable([]string{"Metric", "Avg deviation", "Mean", "Range", "Values"}, &buf)
		for _, m := range f.ranked(r.Metrics)[:min(topMetrics, len(r.Metrics))] {
			s := f.Metrics[m]
			_ = table.Append([]string{
				m,
				"±" + num(s.AvgDeviationPercent) + "%",
				num(s.Mean),
				fmt.Sprintf("%d-%d", s.Min, s.Max),
				joinInts(s.Values),
			})
		}
		_ = table.Render()
		b.WriteString(buf.String())
	}
	return b.String()
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, ", ")
}
