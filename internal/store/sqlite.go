package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/sitrep-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn in WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// One connection keeps per-connection pragmas in force and serializes
	// writers.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS website_data (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	new_name      TEXT NOT NULL UNIQUE,
	year          TEXT NOT NULL,
	week          INTEGER NOT NULL,
	link          TEXT NOT NULL DEFAULT '',
	compatible    BOOLEAN NOT NULL DEFAULT 1,
	downloaded    BOOLEAN NOT NULL DEFAULT 0,
	enhanced      BOOLEAN NOT NULL DEFAULT 0,
	enhanced_name TEXT NOT NULL DEFAULT '',
	processed     TEXT NOT NULL DEFAULT 'N',
	updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS lassa_data (
	id        TEXT PRIMARY KEY,
	report_id INTEGER NOT NULL REFERENCES website_data(id) ON DELETE CASCADE,
	year      INTEGER NOT NULL,
	week      INTEGER NOT NULL,
	states    TEXT NOT NULL,
	suspected INTEGER,
	confirmed INTEGER,
	probable  INTEGER,
	hcw       INTEGER,
	deaths    INTEGER,
	row_order INTEGER NOT NULL DEFAULT 0,
	UNIQUE (year, week, states)
);

CREATE INDEX IF NOT EXISTS idx_website_data_year_week ON website_data(year, week);
CREATE INDEX IF NOT EXISTS idx_website_data_processed ON website_data(processed);
CREATE INDEX IF NOT EXISTS idx_lassa_data_report_id ON lassa_data(report_id);
`

// Migrate creates the tables if they do not exist.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// UpsertReports implements Store.
func (s *SQLiteStore) UpsertReports(ctx context.Context, reports []model.Report) (int64, error) {
	if len(reports) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: upsert reports: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO website_data (new_name, year, week, link, downloaded, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (new_name) DO UPDATE SET year = excluded.year, week = excluded.week,
	link = excluded.link, downloaded = excluded.downloaded, updated_at = excluded.updated_at`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare report upsert")
	}
	defer stmt.Close()

	var n int64
	now := time.Now().UTC()
	for _, r := range reports {
		res, err := stmt.ExecContext(ctx, r.NewName, model.NormalizeYear(r.Year), r.Week, r.Link, r.Downloaded, now)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert report %s", r.NewName)
		}
		affected, _ := res.RowsAffected()
		n += affected
	}
	return n, eris.Wrap(tx.Commit(), "sqlite: upsert reports: commit")
}

// ListReports implements Store.
func (s *SQLiteStore) ListReports(ctx context.Context, filter model.ReportFilter) ([]model.Report, error) {
	q, args := reportQuery(filter, question)
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list reports")
	}
	defer rows.Close()

	var out []model.Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan report")
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate reports")
}

// GetReport implements Store.
func (s *SQLiteStore) GetReport(ctx context.Context, id int64) (*model.Report, error) {
	r, err := scanReport(s.db.QueryRowContext(ctx,
		"SELECT "+reportColumns+" FROM website_data WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: report %d", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get report %d", id)
	}
	return r, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func updateReport(ctx context.Context, ex execer, id int64, action, set string, args ...any) error {
	args = append(args, time.Now().UTC(), id)
	res, err := ex.ExecContext(ctx, "UPDATE website_data SET "+set+", updated_at = ? WHERE id = ?", args...)
	if err != nil {
		return eris.Wrapf(err, "sqlite: %s report %d", action, id)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return eris.Wrapf(ErrNotFound, "sqlite: %s report %d", action, id)
	}
	return nil
}

// MarkDownloaded implements Store.
func (s *SQLiteStore) MarkDownloaded(ctx context.Context, id int64) error {
	return updateReport(ctx, s.db, id, "mark downloaded", "downloaded = 1")
}

// MarkIncompatible implements Store.
func (s *SQLiteStore) MarkIncompatible(ctx context.Context, id int64) error {
	return updateReport(ctx, s.db, id, "mark incompatible", "compatible = 0")
}

// MarkEnhanced implements Store.
func (s *SQLiteStore) MarkEnhanced(ctx context.Context, id int64, enhancedName string) error {
	return updateReport(ctx, s.db, id, "mark enhanced", "enhanced = 1, enhanced_name = ?", enhancedName)
}

// MarkReview implements Store.
func (s *SQLiteStore) MarkReview(ctx context.Context, id int64) error {
	return updateReport(ctx, s.db, id, "mark review", "processed = ?", string(model.ProcessReview))
}

// SaveExtraction implements Store.
func (s *SQLiteStore) SaveExtraction(ctx context.Context, report model.Report, rows []model.Row) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: save extraction: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, "DELETE FROM lassa_data WHERE report_id = ?", report.ID); err != nil {
		return eris.Wrapf(err, "sqlite: clear rows of report %d", report.ID)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO lassa_data
	(id, report_id, year, week, states, suspected, confirmed, probable, hcw, deaths, row_order)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (year, week, states) DO UPDATE SET report_id = excluded.report_id,
	suspected = excluded.suspected, confirmed = excluded.confirmed, probable = excluded.probable,
	hcw = excluded.hcw, deaths = excluded.deaths, row_order = excluded.row_order`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare case insert")
	}
	defer stmt.Close()

	year := report.FullYear()
	for _, c := range prepareCases(rows) {
		if _, err := stmt.ExecContext(ctx, uuid.New().String(), report.ID, year, report.Week, c.state,
			c.row.Suspected.Ptr(), c.row.Confirmed.Ptr(), c.row.Probable.Ptr(),
			c.row.HCW.Ptr(), c.row.Deaths.Ptr(), c.order); err != nil {
			return eris.Wrapf(err, "sqlite: insert %s row of report %d", c.state, report.ID)
		}
	}

	if err := updateReport(ctx, tx, report.ID, "mark processed", "processed = ?", string(model.ProcessDone)); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: save extraction: commit")
}

// ListCases implements Store.
func (s *SQLiteStore) ListCases(ctx context.Context, filter model.CaseFilter) ([]model.CaseRecord, error) {
	q, args := caseQuery(filter, question)
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list cases")
	}
	defer rows.Close()

	var out []model.CaseRecord
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan case")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate cases")
}

// CanonicalizeStates implements Store.
func (s *SQLiteStore) CanonicalizeStates(ctx context.Context, fn func(string) (string, bool)) (int64, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT states FROM lassa_data")
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: list states")
	}
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			rows.Close()
			return 0, eris.Wrap(err, "sqlite: scan state")
		}
		names = append(names, n)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, eris.Wrap(err, "sqlite: iterate states")
	}

	var changed int64
	for _, name := range names {
		canon, _ := fn(name)
		if canon == name {
			continue
		}
		res, err := s.db.ExecContext(ctx, `UPDATE lassa_data SET states = ?1
WHERE states = ?2 AND NOT EXISTS (
	SELECT 1 FROM lassa_data o WHERE o.year = lassa_data.year AND o.week = lassa_data.week AND o.states = ?1)`,
			canon, name)
		if err != nil {
			return changed, eris.Wrapf(err, "sqlite: rename state %q", name)
		}
		n, _ := res.RowsAffected()
		changed += n
	}
	return changed, nil
}
