// Package output manages the per-run directory with its CSV and report
// files.
package output

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/TobiSchelling/codedd/internal/record"
)

const runPrefix = "runthrough_"

// RunDirName returns the directory name of run n.
func RunDirName(n int) string {
	return fmt.Sprintf("%s%04d", runPrefix, n)
}

// NextRunNumber returns one more than the highest existing run directory
// in dir, or 1 when there is none. A missing dir counts as empty.
func NextRunNumber(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return 1, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading output directory: %w", err)
	}
	highest := 0
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), runPrefix) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(e.Name(), runPrefix))
		if err != nil {
			continue
		}
		highest = max(highest, n)
	}
	return highest + 1, nil
}

// Run is the directory of one run and the files in it.
type Run struct {
	Number     int
	Dir        string
	CSVPath    string
	ReportPath string
}

// NewRun describes run n below dir without touching the filesystem.
func NewRun(dir string, n int) Run {
	runDir := filepath.Join(dir, RunDirName(n))
	return Run{
		Number:     n,
		Dir:        runDir,
		CSVPath:    filepath.Join(runDir, fmt.Sprintf("%04d.csv", n)),
		ReportPath: filepath.Join(runDir, fmt.Sprintf("%04d_deviations.txt", n)),
	}
}

// CreateRunDir allocates the next run number below dir and creates its
// directory.
func CreateRunDir(dir string) (Run, error) {
	n, err := NextRunNumber(dir)
	if err != nil {
		return Run{}, err
	}
	run := NewRun(dir, n)
	if err := run.Create(); err != nil {
		return Run{}, err
	}
	return run, nil
}

// Create makes the run directory.
func (r Run) Create() error {
	if err := os.MkdirAll(r.Dir, 0o755); err != nil {
		return fmt.Errorf("creating run directory: %w", err)
	}
	return nil
}

// WriteReport writes the deviation summary of a run.
func WriteReport(path, text string) error {
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}

// Header returns the CSV header for metrics.
func Header(metrics []string) []string {
	return append([]string{"filename", "cycle", "domain", "model_used", "lines_of_code", "lines_of_doc"}, metrics...)
}

func csvRecord(r record.Row, metrics []string) []string {
	rec := []string{
		r.Filename,
		strconv.Itoa(r.Cycle),
		r.Domain,
		string(r.ModelUsed),
		strconv.Itoa(r.LinesOfCode),
		strconv.Itoa(r.LinesOfDoc),
	}
	for _, m := range metrics {
		rec = append(rec, strconv.Itoa(r.Scores[m]))
	}
	return rec
}

// WriteCSV writes a header and rows to w in one go.
func WriteCSV(w io.Writer, metrics []string, rows []record.Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header(metrics)); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write(csvRecord(r, metrics)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// CSVWriter appends rows to a run's CSV file. Every Append is flushed so
// an interrupted run keeps the cycles it finished.
type CSVWriter struct {
	f       *os.File
	w       *csv.Writer
	metrics []string
}

// NewCSVWriter creates path and writes the header.
func NewCSVWriter(path string, metrics []string) (*CSVWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating csv: %w", err)
	}
	cw := &CSVWriter{f: f, w: csv.NewWriter(f), metrics: metrics}
	if err := cw.write(Header(metrics)); err != nil {
		f.Close()
		return nil, err
	}
	return cw, nil
}

// Append writes rows and flushes them to disk.
func (c *CSVWriter) Append(rows []record.Row) error {
	for _, r := range rows {
		if err := c.w.Write(csvRecord(r, c.metrics)); err != nil {
			return fmt.Errorf("writing csv row: %w", err)
		}
	}
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		return fmt.Errorf("flushing csv: %w", err)
	}
	return nil
}

func (c *CSVWriter) write(rec []string) error {
	if err := c.w.Write(rec); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	c.w.Flush()
	return c.w.Error()
}

// Close flushes and closes the file.
func (c *CSVWriter) Close() error {
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		c.f.Close()
		return err
	}
	return c.f.Close()
}
