package audit

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/TobiSchelling/codedd/internal/llm"
	"github.com/TobiSchelling/codedd/internal/record"
	"github.com/TobiSchelling/codedd/internal/response"
	"github.com/TobiSchelling/codedd/internal/retry"
	"github.com/TobiSchelling/codedd/internal/rubric"
	"github.com/TobiSchelling/codedd/internal/source"
)

// mockProvider implements llm.Provider for testing.
type mockProvider struct {
	respond func(prompt string) (string, error)

	calls    atomic.Int32
	mu       sync.Mutex
	inFlight int
	peak     int
}

func (m *mockProvider) Generate(_ context.Context, prompt string, _ int) (string, error) {
	m.calls.Add(1)
	m.mu.Lock()
	m.inFlight++
	m.peak = max(m.peak, m.inFlight)
	m.mu.Unlock()
	time.Sleep(5 * time.Millisecond)
	m.mu.Lock()
	m.inFlight--
	m.mu.Unlock()
	return m.respond(prompt)
}

func (m *mockProvider) IsConfigured() bool      { return true }
func (m *mockProvider) Backend() record.Backend { return record.BackendAnthropic }
func (m *mockProvider) Model() string           { return "mock" }

var _ llm.Provider = (*mockProvider)(nil)

func writeSamples(t *testing.T, files map[string]string) []source.File {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	found, err := source.Discover(dir, []string{"*"})
	if err != nil {
		t.Fatal(err)
	}
	return found
}

func testOptions() Options {
	return Options{
		MaxTokens:       4096,
		MaxContentChars: 250000,
		Concurrency:     2,
		Retry:           retry.Policy{MaxRetries: 2, BaseBackoff: time.Millisecond, MaxBackoff: time.Millisecond},
	}
}

const goodResponse = `0. Is this analyzable code? (Yes / No): Yes
0.1. Explanation: N/A
1.1. Script domain: (Backend) services layer
2.1. Readability: Highly Readable
2.2. Consistency: Somewhat Inconsistent
4.10. Configuration & Customization Ease: Rigid
5.4. Dependencies: requests, numpy
8.4. Refactoring Opportunities: None`

func TestAuditFileScoresRow(t *testing.T) {
	files := writeSamples(t, map[string]string{"app.py": "# doc\nimport os\n\nprint(os.name)\n"})
	mock := &mockProvider{respond: func(prompt string) (string, error) {
		if !strings.Contains(prompt, "print(os.name)") {
			t.Errorf("prompt does not contain the code")
		}
		return goodResponse, nil
	}}
	a := New(mock, rubric.Default(), rubric.ModeTextual, testOptions())

	out := a.AuditFile(context.Background(), files[0], 2)
	if out.Err != nil || out.Row == nil {
		t.Fatalf("expected row, got err=%v", out.Err)
	}
	row := out.Row
	if row.Filename != "app.py" || row.Cycle != 2 || row.ModelUsed != record.BackendAnthropic {
		t.Errorf("unexpected metadata %+v", row)
	}
	if row.LinesOfCode != 2 || row.LinesOfDoc != 1 {
		t.Errorf("lines = %d/%d, want 2/1", row.LinesOfCode, row.LinesOfDoc)
	}
	if row.Domain != "Backend services" {
		t.Errorf("domain = %q", row.Domain)
	}
	if row.Dependencies != "requests, numpy" {
		t.Errorf("dependencies = %q", row.Dependencies)
	}
	if len(row.Scores) != len(a.Metrics()) {
		t.Errorf("row has %d scores, want %d", len(row.Scores), len(a.Metrics()))
	}
	want := map[string]int{
		"readability":                      100,
		"consistency":                      50,
		"configuration_customization_ease": 0,
		"refactoring_opportunities":        0,
		"efficiency":                       0,
	}
	for k, v := range want {
		if row.Scores[k] != v {
			t.Errorf("%s = %d, want %d", k, row.Scores[k], v)
		}
	}
	if row.NoneCount != 1 {
		t.Errorf("none count = %d, want 1", row.NoneCount)
	}
}

func TestAuditFileExcludesNonCode(t *testing.T) {
	files := writeSamples(t, map[string]string{"data.py": "{}"})
	mock := &mockProvider{respond: func(string) (string, error) {
		return "0. Is this analyzable code? (Yes / No): No\n0.1. Why not: A JSON document.", nil
	}}
	a := New(mock, rubric.Default(), rubric.ModeTextual, testOptions())

	out := a.AuditFile(context.Background(), files[0], 1)
	if out.Row != nil || out.Err != nil {
		t.Fatalf("expected exclusion only, got row=%v err=%v", out.Row, out.Err)
	}
	if out.Exclusion == nil || out.Exclusion.Explanation != "A JSON document." {
		t.Errorf("unexpected exclusion %+v", out.Exclusion)
	}
}

func TestAuditFileRetriesTransientErrors(t *testing.T) {
	files := writeSamples(t, map[string]string{"a.py": "x = 1"})
	var n atomic.Int32
	mock := &mockProvider{respond: func(string) (string, error) {
		if n.Add(1) == 1 {
			return "", &llm.StatusError{StatusCode: 503}
		}
		return "2.1. Readability: 70", nil
	}}
	a := New(mock, rubric.Default(), rubric.ModeNumerical, testOptions())

	out := a.AuditFile(context.Background(), files[0], 1)
	if out.Err != nil {
		t.Fatalf("unexpected error: %v", out.Err)
	}
	if out.Row.Scores["readability"] != 70 {
		t.Errorf("readability = %d, want 70", out.Row.Scores["readability"])
	}
	if got := mock.calls.Load(); got != 2 {
		t.Errorf("calls = %d, want 2", got)
	}
}

func TestAuditFileGivesUpOnPermanentErrors(t *testing.T) {
	files := writeSamples(t, map[string]string{"a.py": "x = 1"})
	mock := &mockProvider{respond: func(string) (string, error) {
		return "", errors.New("invalid api key")
	}}
	a := New(mock, rubric.Default(), rubric.ModeTextual, testOptions())

	out := a.AuditFile(context.Background(), files[0], 1)
	if out.Err == nil || !strings.Contains(out.Err.Error(), "a.py") {
		t.Fatalf("expected error mentioning the file, got %v", out.Err)
	}
	if got := mock.calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
}

func TestAuditFileTruncatesLongContent(t *testing.T) {
	files := writeSamples(t, map[string]string{"big.py": strings.Repeat("x = 1\n", 100)})
	mock := &mockProvider{respond: func(prompt string) (string, error) {
		if !strings.Contains(prompt, source.TruncationNote) {
			t.Error("expected truncation note in prompt")
		}
		return goodResponse, nil
	}}
	opts := testOptions()
	opts.MaxContentChars = 60
	a := New(mock, rubric.Default(), rubric.ModeTextual, opts)

	out := a.AuditFile(context.Background(), files[0], 1)
	if out.Row == nil || out.Row.LinesOfCode != 100 {
		t.Fatalf("expected line counts of the full file, got %+v", out.Row)
	}
}

func TestRunCycle(t *testing.T) {
	files := writeSamples(t, map[string]string{
		"a.py":    "a = 1",
		"b.py":    "b = 2",
		"c.json":  "{}",
		"d.py":    "d = 4",
		"e.py":    "fail",
		"f.py":    "f = 6",
		"g.py":    "g = 7",
		"h.py":    "h = 8",
		"zzz.txt": "z",
	})
	mock := &mockProvider{respond: func(prompt string) (string, error) {
		switch {
		case strings.Contains(prompt, "\n{}\n"):
			return "0. Is this analyzable code? (Yes / No): No", nil
		case strings.Contains(prompt, "\nfail\n"):
			return "", errors.New("bad request")
		}
		return goodResponse, nil
	}}
	a := New(mock, rubric.Default(), rubric.ModeTextual, testOptions())

	res, err := a.RunCycle(context.Background(), files, 3)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if res.Scored != 7 || res.Excluded != 1 || res.Errors != 1 {
		t.Errorf("scored/excluded/errors = %d/%d/%d, want 7/1/1", res.Scored, res.Excluded, res.Errors)
	}
	for i, o := range res.Outcomes {
		if o.File.Name != files[i].Name || o.Cycle != 3 {
			t.Errorf("outcome %d is %s cycle %d", i, o.File.Name, o.Cycle)
		}
	}
	rows := res.Rows()
	if len(rows) != 7 || rows[0].Filename != "a.py" || rows[6].Filename != "zzz.txt" {
		t.Errorf("unexpected row order")
	}
	if ex := res.Exclusions(); len(ex) != 1 || ex[0].Filename != "c.json" || ex[0].Explanation != response.DefaultExplanation {
		t.Errorf("unexpected exclusions %+v", ex)
	}
	if mock.peak > 2 {
		t.Errorf("peak concurrency %d exceeds limit 2", mock.peak)
	}
}

func TestRunCycleCancelled(t *testing.T) {
	files := writeSamples(t, map[string]string{"a.py": "a", "b.py": "b"})
	mock := &mockProvider{respond: func(string) (string, error) { return goodResponse, nil }}
	a := New(mock, rubric.Default(), rubric.ModeTextual, testOptions())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := a.RunCycle(ctx, files, 1)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if res.Errors != 2 || mock.calls.Load() != 0 {
		t.Errorf("expected both files to be skipped, got %d errors and %d calls", res.Errors, mock.calls.Load())
	}
}

func TestBuildRowDefaults(t *testing.T) {
	r := rubric.Default()
	row := BuildRow(response.Result{Scores: map[string]float64{"readability": 66.9}}, r.Schema(), Meta{Filename: "x.py", Cycle: 1})

	if row.Domain != DefaultDomain {
		t.Errorf("domain = %q, want %q", row.Domain, DefaultDomain)
	}
	if row.Scores["readability"] != 66 {
		t.Errorf("readability = %d, want 66", row.Scores["readability"])
	}
	for _, m := range r.MetricKeys() {
		if _, ok := row.Scores[m]; !ok {
			t.Errorf("missing metric %s", m)
		}
	}
}
