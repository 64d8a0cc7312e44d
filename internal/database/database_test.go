package database

import (
	"path/filepath"
	"testing"

	"github.com/TobiSchelling/codedd/internal/record"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func createTestRun(t *testing.T, db *DB, number int) *Run {
	t.Helper()
	run, err := db.CreateRun(NewRun{
		Number:        number,
		Mode:          "textual",
		Provider:      "anthropic",
		Model:         "claude-test",
		RubricVersion: "2025.1",
		Cycles:        3,
		FileCount:     2,
	})
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	return run
}

func TestCreateRun(t *testing.T) {
	db := openTestDB(t)
	run := createTestRun(t, db, 1)

	if run.ID == 0 || run.UUID == "" {
		t.Errorf("expected id and uuid, got %+v", run)
	}
	if run.Status != StatusRunning || run.FinishedAt != nil {
		t.Errorf("new run should be running, got %s", run.Status)
	}
	if run.Attempts() != 6 {
		t.Errorf("attempts = %d, want 6", run.Attempts())
	}

	if _, err := db.CreateRun(NewRun{Number: 1, Mode: "textual", Provider: "x", Model: "y", RubricVersion: "v", Cycles: 1}); err == nil {
		t.Error("expected duplicate run number to fail")
	}
	if _, err := db.CreateRun(NewRun{Number: 2, Mode: "fuzzy", Provider: "x", Model: "y", RubricVersion: "v", Cycles: 1}); err == nil {
		t.Error("expected invalid mode to fail")
	}
}

func TestFinishRun(t *testing.T) {
	db := openTestDB(t)
	run := createTestRun(t, db, 4)

	if err := db.FinishRun(run.ID, StatusCompleted, Counts{Scored: 5, Excluded: 1, Failed: 0}); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	got, err := db.GetRunByNumber(4)
	if err != nil {
		t.Fatalf("GetRunByNumber: %v", err)
	}
	if got.Status != StatusCompleted || got.Scored != 5 || got.Excluded != 1 || got.FinishedAt == nil {
		t.Errorf("unexpected finished run %+v", got)
	}
}

func TestGetRunByNumberMissing(t *testing.T) {
	db := openTestDB(t)
	run, err := db.GetRunByNumber(99)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if run != nil {
		t.Error("expected nil run")
	}
}

func TestGetRunsNewestFirst(t *testing.T) {
	db := openTestDB(t)
	createTestRun(t, db, 1)
	createTestRun(t, db, 3)
	createTestRun(t, db, 2)

	runs, err := db.GetRuns()
	if err != nil {
		t.Fatalf("GetRuns: %v", err)
	}
	if len(runs) != 3 || runs[0].Number != 3 || runs[2].Number != 1 {
		t.Errorf("unexpected order: %+v", runs)
	}
}

func TestInsertAndGetRows(t *testing.T) {
	db := openTestDB(t)
	run := createTestRun(t, db, 1)
	other := createTestRun(t, db, 2)

	rows := []record.Row{
		{Filename: "b.py", Cycle: 1, Domain: "Backend", ModelUsed: record.BackendAnthropic, LinesOfCode: 10, LinesOfDoc: 3,
			Scores: map[string]int{"readability": 100, "efficiency": 50}, Dependencies: "requests", NoneCount: 2},
		{Filename: "a.py", Cycle: 1, Domain: "N/A", ModelUsed: record.BackendAnthropic,
			Scores: map[string]int{"readability": 0, "efficiency": 0}},
		{Filename: "a.py", Cycle: 2, Domain: "N/A", ModelUsed: record.BackendAnthropic,
			Scores: map[string]int{"readability": 50, "efficiency": 100}},
	}
	if err := db.InsertRows(run.ID, rows); err != nil {
		t.Fatalf("InsertRows: %v", err)
	}
	if err := db.InsertRow(other.ID, rows[0]); err != nil {
		t.Fatalf("InsertRow: %v", err)
	}

	got, err := db.GetRows(run.ID)
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(got))
	}
	if got[0].Filename != "a.py" || got[1].Filename != "b.py" || got[2].Cycle != 2 {
		t.Errorf("unexpected order: %s/%d %s/%d %s/%d",
			got[0].Filename, got[0].Cycle, got[1].Filename, got[1].Cycle, got[2].Filename, got[2].Cycle)
	}
	b := got[1]
	if b.Scores["readability"] != 100 || b.Scores["efficiency"] != 50 || len(b.Scores) != 2 {
		t.Errorf("unexpected scores %v", b.Scores)
	}
	if b.Dependencies != "requests" || b.NoneCount != 2 || b.LinesOfDoc != 3 || b.ModelUsed != record.BackendAnthropic {
		t.Errorf("unexpected row %+v", b)
	}
}

func TestInsertRowsRollsBack(t *testing.T) {
	db := openTestDB(t)
	run := createTestRun(t, db, 1)

	rows := []record.Row{
		{Filename: "a.py", Cycle: 1, ModelUsed: record.BackendOpenAI, Domain: "N/A", Scores: map[string]int{"readability": 10}},
		{Filename: "b.py", Cycle: 1, ModelUsed: record.BackendOpenAI, Domain: "N/A", Scores: map[string]int{"readability": 101}},
	}
	if err := db.InsertRows(run.ID, rows); err == nil {
		t.Fatal("expected out-of-range score to fail")
	}
	got, _ := db.GetRows(run.ID)
	if len(got) != 0 {
		t.Errorf("expected no rows after rollback, got %d", len(got))
	}
}

func TestExclusions(t *testing.T) {
	db := openTestDB(t)
	run := createTestRun(t, db, 1)

	if err := db.InsertExclusion(run.ID, record.Exclusion{Filename: "data.py", Cycle: 2, Explanation: "JSON only"}); err != nil {
		t.Fatalf("InsertExclusion: %v", err)
	}
	if err := db.InsertExclusion(run.ID, record.Exclusion{Filename: "data.py", Cycle: 1, Explanation: "N/A"}); err != nil {
		t.Fatalf("InsertExclusion: %v", err)
	}

	got, err := db.GetExclusions(run.ID)
	if err != nil {
		t.Fatalf("GetExclusions: %v", err)
	}
	if len(got) != 2 || got[0].Cycle != 1 || got[1].Explanation != "JSON only" {
		t.Errorf("unexpected exclusions %+v", got)
	}
}

func TestGetStats(t *testing.T) {
	db := openTestDB(t)
	run := createTestRun(t, db, 7)
	db.InsertRows(run.ID, []record.Row{
		{Filename: "a.py", Cycle: 1, ModelUsed: record.BackendOllama, Domain: "N/A", Scores: map[string]int{"readability": 1}},
		{Filename: "a.py", Cycle: 2, ModelUsed: record.BackendOllama, Domain: "N/A", Scores: map[string]int{"readability": 1}},
	})
	db.InsertExclusion(run.ID, record.Exclusion{Filename: "b.py", Cycle: 1, Explanation: "N/A"})
	db.FinishRun(run.ID, StatusCompleted, Counts{Scored: 2, Excluded: 1})

	s, err := db.GetStats()
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	want := Stats{Runs: 1, CompletedRuns: 1, Rows: 2, Files: 1, Exclusions: 1, LatestRun: 7}
	if *s != want {
		t.Errorf("stats = %+v, want %+v", *s, want)
	}
}
