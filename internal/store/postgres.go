package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/sitrep-cli/internal/db"
	"github.com/sells-group/sitrep-cli/internal/model"
)

// PostgresStore implements Store on a pgx pool.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgres connects a pool and pings it.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	cfg.MaxConns = 8
	cfg.MinConns = 1
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS website_data (
	id            BIGSERIAL PRIMARY KEY,
	new_name      TEXT NOT NULL UNIQUE,
	year          TEXT NOT NULL,
	week          INTEGER NOT NULL,
	link          TEXT NOT NULL DEFAULT '',
	compatible    BOOLEAN NOT NULL DEFAULT TRUE,
	downloaded    BOOLEAN NOT NULL DEFAULT FALSE,
	enhanced      BOOLEAN NOT NULL DEFAULT FALSE,
	enhanced_name TEXT NOT NULL DEFAULT '',
	processed     TEXT NOT NULL DEFAULT 'N',
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS lassa_data (
	id        UUID PRIMARY KEY,
	report_id BIGINT NOT NULL REFERENCES website_data(id) ON DELETE CASCADE,
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
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

var reportUpsert = db.UpsertConfig{
	Table:        "website_data",
	Columns:      []string{"new_name", "year", "week", "link", "downloaded"},
	ConflictKeys: []string{"new_name"},
	UpdateCols:   []string{"year", "week", "link", "downloaded"},
}

var caseUpsert = db.UpsertConfig{
	Table: "lassa_data",
	Columns: []string{"id", "report_id", "year", "week", "states",
		"suspected", "confirmed", "probable", "hcw", "deaths", "row_order"},
	ConflictKeys: []string{"year", "week", "states"},
}

// UpsertReports inserts new reports by new_name and refreshes the metadata
// of known ones. Pipeline statuses are never reset.
func (s *PostgresStore) UpsertReports(ctx context.Context, reports []model.Report) (int64, error) {
	rows := make([][]any, len(reports))
	for i, r := range reports {
		rows[i] = []any{r.NewName, model.NormalizeYear(r.Year), r.Week, r.Link, r.Downloaded}
	}
	n, err := db.BulkUpsert(ctx, s.pool, reportUpsert, rows)
	return n, eris.Wrap(err, "postgres: upsert reports")
}

// ListReports returns reports matching filter ordered by year and week.
func (s *PostgresStore) ListReports(ctx context.Context, filter model.ReportFilter) ([]model.Report, error) {
	q, args := reportQuery(filter, dollar)
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list reports")
	}
	defer rows.Close()

	var out []model.Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan report")
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate reports")
}

// GetReport returns one report or ErrNotFound.
func (s *PostgresStore) GetReport(ctx context.Context, id int64) (*model.Report, error) {
	r, err := scanReport(s.pool.QueryRow(ctx,
		"SELECT "+reportColumns+" FROM website_data WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: report %d", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get report %d", id)
	}
	return r, nil
}

func (s *PostgresStore) update(ctx context.Context, id int64, action, set string, args ...any) error {
	args = append(args, id)
	tag, err := s.pool.Exec(ctx,
		"UPDATE website_data SET "+set+", updated_at = now() WHERE id = "+dollar(len(args)), args...)
	if err != nil {
		return eris.Wrapf(err, "postgres: %s report %d", action, id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: %s report %d", action, id)
	}
	return nil
}

// MarkDownloaded records that the PDF is present locally.
func (s *PostgresStore) MarkDownloaded(ctx context.Context, id int64) error {
	return s.update(ctx, id, "mark downloaded", "downloaded = TRUE")
}

// MarkIncompatible excludes the report from every stage.
func (s *PostgresStore) MarkIncompatible(ctx context.Context, id int64) error {
	return s.update(ctx, id, "mark incompatible", "compatible = FALSE")
}

// MarkEnhanced records the enhanced image name.
func (s *PostgresStore) MarkEnhanced(ctx context.Context, id int64, enhancedName string) error {
	return s.update(ctx, id, "mark enhanced", "enhanced = TRUE, enhanced_name = $1", enhancedName)
}

// MarkReview flags the report for manual review.
func (s *PostgresStore) MarkReview(ctx context.Context, id int64) error {
	return s.update(ctx, id, "mark review", "processed = $1", string(model.ProcessReview))
}

// SaveExtraction implements Store.
func (s *PostgresStore) SaveExtraction(ctx context.Context, report model.Report, rows []model.Row) error {
	cases := prepareCases(rows)
	year := report.FullYear()
	data := make([][]any, len(cases))
	for i, c := range cases {
		data[i] = []any{uuid.New().String(), report.ID, year, report.Week, c.state,
			c.row.Suspected.Ptr(), c.row.Confirmed.Ptr(), c.row.Probable.Ptr(),
			c.row.HCW.Ptr(), c.row.Deaths.Ptr(), c.order}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: save extraction: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, "DELETE FROM lassa_data WHERE report_id = $1", report.ID); err != nil {
		return eris.Wrapf(err, "postgres: clear rows of report %d", report.ID)
	}
	if _, err := db.UpsertTx(ctx, tx, caseUpsert, data); err != nil {
		return eris.Wrapf(err, "postgres: save rows of report %d", report.ID)
	}
	tag, err := tx.Exec(ctx, "UPDATE website_data SET processed = $1, updated_at = now() WHERE id = $2",
		string(model.ProcessDone), report.ID)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark report %d processed", report.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: report %d", report.ID)
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: save extraction: commit")
}

// ListCases implements Store.
func (s *PostgresStore) ListCases(ctx context.Context, filter model.CaseFilter) ([]model.CaseRecord, error) {
	q, args := caseQuery(filter, dollar)
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list cases")
	}
	defer rows.Close()

	var out []model.CaseRecord
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan case")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate cases")
}

const renameState = `UPDATE lassa_data SET states = $1
WHERE states = $2 AND NOT EXISTS (
	SELECT 1 FROM lassa_data o WHERE o.year = lassa_data.year AND o.week = lassa_data.week AND o.states = $1)`

// CanonicalizeStates implements Store.
func (s *PostgresStore) CanonicalizeStates(ctx context.Context, fn func(string) (string, bool)) (int64, error) {
	rows, err := s.pool.Query(ctx, "SELECT DISTINCT states FROM lassa_data")
	if err != nil {
		return 0, eris.Wrap(err, "postgres: list states")
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return 0, eris.Wrap(err, "postgres: scan states")
	}

	var changed int64
	for _, name := range names {
		canon, _ := fn(name)
		if canon == name {
			continue
		}
		tag, err := s.pool.Exec(ctx, renameState, canon, name)
		if err != nil {
			return changed, eris.Wrapf(err, "postgres: rename state %q", name)
		}
		changed += tag.RowsAffected()
	}
	return changed, nil
}
