package database

import (
	"fmt"

	"github.com/TobiSchelling/codedd/internal/record"
)

// InsertRows stores rows of a run with their scores in one transaction.
func (db *DB) InsertRows(runID int64, rows []record.Row) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, r := range rows {
		result, err := tx.Exec(
			`INSERT INTO audit_rows
			(run_id, filename, cycle, domain, model_used, lines_of_code, lines_of_doc, dependencies, none_count)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, r.Filename, r.Cycle, r.Domain, string(r.ModelUsed), r.LinesOfCode, r.LinesOfDoc,
			nullIfEmpty(r.Dependencies), r.NoneCount,
		)
		if err != nil {
			return fmt.Errorf("inserting row %s cycle %d: %w", r.Filename, r.Cycle, err)
		}
		rowID, err := result.LastInsertId()
		if err != nil {
			return err
		}
		for metric, score := range r.Scores {
			if _, err := tx.Exec(
				"INSERT INTO row_scores (row_id, metric, score) VALUES (?, ?, ?)",
				rowID, metric, score,
			); err != nil {
				return fmt.Errorf("inserting score %s for %s: %w", metric, r.Filename, err)
			}
		}
	}
	return tx.Commit()
}

// InsertRow stores a single row.
func (db *DB) InsertRow(runID int64, r record.Row) error {
	return db.InsertRows(runID, []record.Row{r})
}

// GetRows returns the rows of a run ordered by cycle and filename, with
// their scores.
func (db *DB) GetRows(runID int64) ([]record.Row, error) {
	rows, err := db.conn.Query(
		`SELECT id, filename, cycle, domain, model_used, lines_of_code, lines_of_doc,
		COALESCE(dependencies, ''), none_count
		FROM audit_rows WHERE run_id = ? ORDER BY cycle, filename`, runID,
	)
	if err != nil {
		return nil, err
	}

	var out []record.Row
	index := map[int64]int{}
	for rows.Next() {
		var (
			id    int64
			r     record.Row
			model string
		)
		if err := rows.Scan(&id, &r.Filename, &r.Cycle, &r.Domain, &model,
			&r.LinesOfCode, &r.LinesOfDoc, &r.Dependencies, &r.NoneCount); err != nil {
			rows.Close()
			return nil, err
		}
		r.ModelUsed = record.Backend(model)
		r.Scores = map[string]int{}
		index[id] = len(out)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	scores, err := db.conn.Query(
		`SELECT s.row_id, s.metric, s.score FROM row_scores s
		JOIN audit_rows a ON a.id = s.row_id WHERE a.run_id = ?`, runID,
	)
	if err != nil {
		return nil, err
	}
	defer scores.Close()
	for scores.Next() {
		var (
			rowID  int64
			metric string
			score  int
		)
		if err := scores.Scan(&rowID, &metric, &score); err != nil {
			return nil, err
		}
		if i, ok := index[rowID]; ok {
			out[i].Scores[metric] = score
		}
	}
	return out, scores.Err()
}

// InsertExclusion records a file the model declined to score.
func (db *DB) InsertExclusion(runID int64, e record.Exclusion) error {
	_, err := db.conn.Exec(
		`INSERT OR REPLACE INTO exclusions (run_id, filename, cycle, explanation) VALUES (?, ?, ?, ?)`,
		runID, e.Filename, e.Cycle, e.Explanation,
	)
	return err
}

// GetExclusions returns the exclusions of a run ordered by cycle and
// filename.
func (db *DB) GetExclusions(runID int64) ([]record.Exclusion, error) {
	rows, err := db.conn.Query(
		`SELECT filename, cycle, explanation FROM exclusions WHERE run_id = ? ORDER BY cycle, filename`, runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []record.Exclusion
	for rows.Next() {
		var e record.Exclusion
		if err := rows.Scan(&e.Filename, &e.Cycle, &e.Explanation); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
