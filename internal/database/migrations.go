package database

import "database/sql"

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "initial schema",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    uuid TEXT UNIQUE NOT NULL,
    number INTEGER UNIQUE NOT NULL,
    mode TEXT NOT NULL CHECK(mode IN ('textual', 'numerical')),
    provider TEXT NOT NULL,
    model TEXT NOT NULL,
    rubric_version TEXT NOT NULL,
    cycles INTEGER NOT NULL,
    file_count INTEGER DEFAULT 0,
    status TEXT NOT NULL DEFAULT 'running',
    scored INTEGER DEFAULT 0,
    failed INTEGER DEFAULT 0,
    started_at TEXT DEFAULT (datetime('now')),
    finished_at TEXT
);

CREATE TABLE IF NOT EXISTS audit_rows (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    filename TEXT NOT NULL,
    cycle INTEGER NOT NULL CHECK(cycle >= 1),
    domain TEXT NOT NULL DEFAULT 'N/A',
    model_used TEXT NOT NULL,
    lines_of_code INTEGER DEFAULT 0,
    lines_of_doc INTEGER DEFAULT 0,
    dependencies TEXT,
    created_at TEXT DEFAULT (datetime('now')),
    UNIQUE(run_id, filename, cycle)
);

CREATE TABLE IF NOT EXISTS row_scores (
    row_id INTEGER NOT NULL REFERENCES audit_rows(id) ON DELETE CASCADE,
    metric TEXT NOT NULL,
    score INTEGER NOT NULL CHECK(score BETWEEN 0 AND 100),
    PRIMARY KEY (row_id, metric)
);

CREATE INDEX IF NOT EXISTS idx_audit_rows_run ON audit_rows(run_id);
`)
			return err
		},
	},
	{
		Version:     2,
		Description: "exclusions and none answers",
		Up: func(tx *sql.Tx) error {
			if _, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS exclusions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    filename TEXT NOT NULL,
    cycle INTEGER NOT NULL,
    explanation TEXT NOT NULL DEFAULT 'N/A',
    created_at TEXT DEFAULT (datetime('now')),
    UNIQUE(run_id, filename, cycle)
);

CREATE INDEX IF NOT EXISTS idx_exclusions_run ON exclusions(run_id);
`); err != nil {
				return err
			}
			for _, col := range []struct{ table, name, ddl string }{
				{"audit_rows", "none_count", "ALTER TABLE audit_rows ADD COLUMN none_count INTEGER DEFAULT 0"},
				{"runs", "excluded", "ALTER TABLE runs ADD COLUMN excluded INTEGER DEFAULT 0"},
			} {
				exists, err := hasColumn(tx, col.table, col.name)
				if err != nil {
					return err
				}
				if exists {
					continue
				}
				if _, err := tx.Exec(col.ddl); err != nil {
					return err
				}
			}
			return nil
		},
	},
}

// latestVersion returns the highest migration version number.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
