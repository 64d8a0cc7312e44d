package database

import (
	"database/sql"

	"github.com/google/uuid"
)

const runColumns = `id, uuid, number, mode, provider, model, rubric_version, cycles, file_count,
	status, scored, excluded, failed, started_at, finished_at`

// CreateRun records the start of a run and returns it.
func (db *DB) CreateRun(n NewRun) (*Run, error) {
	result, err := db.conn.Exec(
		`INSERT INTO runs (uuid, number, mode, provider, model, rubric_version, cycles, file_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), n.Number, n.Mode, n.Provider, n.Model, n.RubricVersion, n.Cycles, n.FileCount,
	)
	if err != nil {
		return nil, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}
	return db.getRun("WHERE id = ?", id)
}

// FinishRun stores the final status and counters of a run.
func (db *DB) FinishRun(runID int64, status string, c Counts) error {
	_, err := db.conn.Exec(
		`UPDATE runs SET status = ?, scored = ?, excluded = ?, failed = ?, finished_at = datetime('now')
		WHERE id = ?`,
		status, c.Scored, c.Excluded, c.Failed, runID,
	)
	return err
}

// GetRunByNumber returns the run with the given number, or nil.
func (db *DB) GetRunByNumber(number int) (*Run, error) {
	return db.getRun("WHERE number = ?", number)
}

// GetRuns returns all runs, newest first.
func (db *DB) GetRuns() ([]Run, error) {
	rows, err := db.conn.Query("SELECT " + runColumns + " FROM runs ORDER BY number DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

func (db *DB) getRun(where string, arg any) (*Run, error) {
	r, err := scanRun(db.conn.QueryRow("SELECT "+runColumns+" FROM runs "+where, arg))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return r, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {
	var r Run
	if err := s.Scan(&r.ID, &r.UUID, &r.Number, &r.Mode, &r.Provider, &r.Model, &r.RubricVersion,
		&r.Cycles, &r.FileCount, &r.Status, &r.Scored, &r.Excluded, &r.Failed,
		&r.StartedAt, &r.FinishedAt); err != nil {
		return nil, err
	}
	return &r, nil
}
