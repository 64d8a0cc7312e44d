package pipeline

import (
	"fmt"

	"github.com/TobiSchelling/codedd/internal/database"
	"github.com/TobiSchelling/codedd/internal/deviation"
	"github.com/TobiSchelling/codedd/internal/record"
)

// RunReport is a stored run with its deviation report recomputed from the
// database.
type RunReport struct {
	Run        *database.Run
	Rows       []record.Row
	Exclusions []record.Exclusion
	Report     *deviation.Report
}

// LoadReport reads run number and analyzes its rows over metrics. It
// returns nil and no error when the run does not exist.
func LoadReport(db *database.DB, metrics []string, number int) (*RunReport, error) {
	run, err := db.GetRunByNumber(number)
	if err != nil {
		return nil, fmt.Errorf("loading run %d: %w", number, err)
	}
	if run == nil {
		return nil, nil
	}
	rows, err := db.GetRows(run.ID)
	if err != nil {
		return nil, fmt.Errorf("loading rows of run %d: %w", number, err)
	}
	exclusions, err := db.GetExclusions(run.ID)
	if err != nil {
		return nil, fmt.Errorf("loading exclusions of run %d: %w", number, err)
	}
	report, err := deviation.Analyze(rows, metrics)
	if err != nil {
		return nil, fmt.Errorf("analyzing run %d: %w", number, err)
	}
	return &RunReport{Run: run, Rows: rows, Exclusions: exclusions, Report: report}, nil
}
