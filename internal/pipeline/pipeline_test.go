package pipeline

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/codedd/internal/config"
	"github.com/TobiSchelling/codedd/internal/database"
	"github.com/TobiSchelling/codedd/internal/record"
	"github.com/TobiSchelling/codedd/internal/rubric"
)

type mockProvider struct {
	respond func(ctx context.Context, call int) (string, error)
	calls   atomic.Int32
}

func (m *mockProvider) Generate(ctx context.Context, _ string, _ int) (string, error) {
	return m.respond(ctx, int(m.calls.Add(1)))
}

func (m *mockProvider) IsConfigured() bool      { return true }
func (m *mockProvider) Backend() record.Backend { return record.BackendOpenAI }
func (m *mockProvider) Model() string           { return "mock-model" }

const scoredResponse = `0. Is this analyzable code? (Yes / No): Yes
1.1. Script domain: Data Pipeline
2.1. Readability: Highly Readable
2.2. Consistency: Highly Consistent`

func setup(t *testing.T, files map[string]string) (*config.Config, *database.DB) {
	t.Helper()
	root := t.TempDir()
	samples := filepath.Join(root, "samples")
	require.NoError(t, os.MkdirAll(samples, 0o755))
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(samples, name), []byte(content), 0o644))
	}

	cfg := config.Default()
	cfg.Audit.SamplesDir = samples
	cfg.Audit.Concurrency = 1
	cfg.Output.Dir = filepath.Join(root, "output")
	cfg.Provider.Retry = config.Retry{MaxRetries: 0, BaseBackoff: time.Millisecond, MaxBackoff: time.Millisecond}

	db, err := database.Open(filepath.Join(root, "data", "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return cfg, db
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return records
}

func TestRunWritesCSVReportAndDatabase(t *testing.T) {
	cfg, db := setup(t, map[string]string{"a.py": "x = 1\n", "b.py": "# doc\ny = 2\n"})
	mock := &mockProvider{respond: func(context.Context, int) (string, error) { return scoredResponse, nil }}
	r := rubric.Default()

	res := New(cfg, db, mock, r, rubric.ModeTextual).Run(context.Background(), 2)
	require.NoError(t, res.Err())

	assert.Equal(t, 1, res.RunNumber)
	assert.Equal(t, 4, res.Attempts)
	assert.Equal(t, 4, res.Successful)
	assert.False(t, res.Interrupted)
	assert.Contains(t, res.Summary, "Overall")
	assert.Equal(t, filepath.Join(cfg.Output.Dir, "runthrough_0001", "0001.csv"), res.CSVPath)

	records := readCSV(t, res.CSVPath)
	require.Len(t, records, 5)
	assert.Equal(t, "filename", records[0][0])
	assert.Len(t, records[0], 6+len(r.MetricKeys()))
	assert.Equal(t, []string{"a.py", "1", "Data Pipeline", "openai"}, records[1][:4])

	report, err := os.ReadFile(res.ReportPath)
	require.NoError(t, err)
	assert.Contains(t, string(report), "a.py")

	run, err := db.GetRunByNumber(1)
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, database.StatusCompleted, run.Status)
	assert.Equal(t, 4, run.Scored)
	assert.Equal(t, "mock-model", run.Model)
	rows, err := db.GetRows(run.ID)
	require.NoError(t, err)
	assert.Len(t, rows, 4)
	assert.Equal(t, 100, rows[0].Scores["readability"])
}

func TestRunRecordsExclusionsAndFailures(t *testing.T) {
	cfg, db := setup(t, map[string]string{"a.py": "x = 1", "b.json": "{}", "c.py": "z = 3"})
	cfg.Audit.Patterns = []string{"*.py", "*.json"}
	mock := &mockProvider{respond: func(_ context.Context, call int) (string, error) {
		switch call {
		case 2:
			return "0. Is this analyzable code? (Yes / No): No\n0.1. Explanation: Data only", nil
		case 3:
			return "", errors.New("bad request")
		}
		return scoredResponse, nil
	}}

	res := New(cfg, db, mock, rubric.Default(), rubric.ModeTextual).Run(context.Background(), 1)
	require.NoError(t, res.Err())
	assert.Equal(t, 1, res.Successful)
	assert.Equal(t, 1, res.Excluded)
	assert.Equal(t, 1, res.Failed)

	records := readCSV(t, res.CSVPath)
	assert.Len(t, records, 2, "only the scored file gets a CSV row")

	run, err := db.GetRunByNumber(res.RunNumber)
	require.NoError(t, err)
	exclusions, err := db.GetExclusions(run.ID)
	require.NoError(t, err)
	require.Len(t, exclusions, 1)
	assert.Equal(t, "b.json", exclusions[0].Filename)
	assert.Equal(t, "Data only", exclusions[0].Explanation)
}

func TestRunInterruptedWritesPartialReport(t *testing.T) {
	cfg, db := setup(t, map[string]string{"a.py": "x = 1", "b.py": "y = 2"})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mock := &mockProvider{respond: func(ctx context.Context, call int) (string, error) {
		if call == 3 {
			cancel()
			return "", ctx.Err()
		}
		return scoredResponse, nil
	}}

	res := New(cfg, db, mock, rubric.Default(), rubric.ModeTextual).Run(ctx, 3)
	require.NoError(t, res.Err())
	assert.True(t, res.Interrupted)
	assert.Equal(t, 2, res.Successful)
	assert.Equal(t, 0, res.Failed)

	_, err := os.Stat(res.ReportPath)
	assert.NoError(t, err, "partial report should be written")
	assert.Len(t, readCSV(t, res.CSVPath), 3)

	run, err := db.GetRunByNumber(res.RunNumber)
	require.NoError(t, err)
	assert.Equal(t, database.StatusInterrupted, run.Status)
}

func TestRunNumbersFollowDatabase(t *testing.T) {
	cfg, db := setup(t, map[string]string{"a.py": "x = 1"})
	mock := &mockProvider{respond: func(context.Context, int) (string, error) { return scoredResponse, nil }}
	p := New(cfg, db, mock, rubric.Default(), rubric.ModeNumerical)

	first := p.Run(context.Background(), 1)
	require.NoError(t, first.Err())
	require.NoError(t, os.RemoveAll(cfg.Output.Dir))

	second := p.Run(context.Background(), 1)
	require.NoError(t, second.Err())
	assert.Equal(t, first.RunNumber+1, second.RunNumber)
}

func TestRunWithoutFiles(t *testing.T) {
	cfg, db := setup(t, nil)
	mock := &mockProvider{respond: func(context.Context, int) (string, error) { return scoredResponse, nil }}

	res := New(cfg, db, mock, rubric.Default(), rubric.ModeTextual).Run(context.Background(), 1)
	require.Error(t, res.Err())
	assert.Equal(t, int32(0), mock.calls.Load())
}

func TestDryRun(t *testing.T) {
	cfg, db := setup(t, map[string]string{"a.py": "x = 1", "b.py": "y = 2"})

	res := New(cfg, db, nil, rubric.Default(), rubric.ModeTextual).DryRun(3)
	require.NoError(t, res.Err())
	assert.Equal(t, 6, res.Attempts)
	assert.Equal(t, 1, res.RunNumber)
	require.Len(t, res.Steps, 3)
	for _, s := range res.Steps {
		assert.True(t, strings.HasPrefix(s.Summary, "[dry-run]"), s.Summary)
	}
	_, err := os.Stat(cfg.Output.Dir)
	assert.True(t, os.IsNotExist(err), "dry run must not create output")
}

func TestLoadReport(t *testing.T) {
	cfg, db := setup(t, map[string]string{"a.py": "x = 1"})
	mock := &mockProvider{respond: func(context.Context, int) (string, error) { return scoredResponse, nil }}
	r := rubric.Default()
	res := New(cfg, db, mock, r, rubric.ModeTextual).Run(context.Background(), 2)
	require.NoError(t, res.Err())

	rr, err := LoadReport(db, r.MetricKeys(), res.RunNumber)
	require.NoError(t, err)
	require.NotNil(t, rr)
	assert.Len(t, rr.Rows, 2)
	fs, ok := rr.Report.File("a.py")
	require.True(t, ok)
	assert.Equal(t, 0.0, fs.AvgTotalDeviation)

	missing, err := LoadReport(db, r.MetricKeys(), 42)
	require.NoError(t, err)
	assert.Nil(t, missing)

	_, err = LoadReport(db, append(r.MetricKeys(), "unknown_metric"), res.RunNumber)
	assert.Error(t, err)
}
