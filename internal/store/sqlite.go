package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/morpho-cli/internal/boundary"
	"github.com/sells-group/morpho-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// Pragmas are per connection and sqlite has a single writer.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS morpho_tables (
	city       TEXT PRIMARY KEY,
	columns    TEXT NOT NULL,
	row_ids    TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS morpho_polygons (
	city       TEXT NOT NULL,
	polygon_id INTEGER NOT NULL,
	name       TEXT NOT NULL DEFAULT '',
	geom       BLOB,
	PRIMARY KEY (city, polygon_id)
);

CREATE TABLE IF NOT EXISTS morpho_values (
	city       TEXT NOT NULL,
	polygon_id INTEGER NOT NULL,
	metric     TEXT NOT NULL,
	value      REAL NOT NULL,
	PRIMARY KEY (city, polygon_id, metric)
);

CREATE TABLE IF NOT EXISTS morpho_runs (
	id          TEXT PRIMARY KEY,
	city        TEXT NOT NULL,
	full_set    INTEGER NOT NULL DEFAULT 0,
	status      TEXT NOT NULL DEFAULT 'running',
	error       TEXT NOT NULL DEFAULT '',
	polygons    INTEGER NOT NULL DEFAULT 0,
	started_at  DATETIME NOT NULL,
	finished_at DATETIME
);

CREATE TABLE IF NOT EXISTS overpass_cache (
	key        TEXT PRIMARY KEY,
	data       BLOB NOT NULL,
	cached_at  INTEGER NOT NULL,
	expires_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_morpho_runs_city ON morpho_runs(city);
CREATE INDEX IF NOT EXISTS idx_morpho_runs_status ON morpho_runs(status);
CREATE INDEX IF NOT EXISTS idx_overpass_cache_expires_at ON overpass_cache(expires_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveTable replaces every stored value of the table's city.
func (s *SQLiteStore) SaveTable(ctx context.Context, t *model.MetricTable) error {
	if t == nil {
		return eris.New("sqlite: nil table")
	}
	colsJSON, err := json.Marshal(t.Columns())
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal columns")
	}
	ids := make([]int, 0, t.Len())
	for _, r := range t.Rows() {
		ids = append(ids, r.ID)
	}
	idsJSON, err := json.Marshal(ids)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal row ids")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save table")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM morpho_values WHERE city = ?`, t.City); err != nil {
		return eris.Wrapf(err, "sqlite: clear values for %s", t.City)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO morpho_tables (city, columns, row_ids, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(city) DO UPDATE SET columns = excluded.columns, row_ids = excluded.row_ids, updated_at = excluded.updated_at`,
		t.City, string(colsJSON), string(idsJSON), time.Now().UTC(),
	); err != nil {
		return eris.Wrapf(err, "sqlite: upsert table %s", t.City)
	}

	nameStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO morpho_polygons (city, polygon_id, name) VALUES (?, ?, ?)
		 ON CONFLICT(city, polygon_id) DO UPDATE SET name = excluded.name`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare polygon names")
	}
	defer nameStmt.Close() //nolint:errcheck
	for _, r := range t.Rows() {
		if _, err := nameStmt.ExecContext(ctx, t.City, r.ID, r.Name); err != nil {
			return eris.Wrapf(err, "sqlite: save polygon %d", r.ID)
		}
	}

	valStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO morpho_values (city, polygon_id, metric, value) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare values")
	}
	defer valStmt.Close() //nolint:errcheck
	for _, v := range tableValues(t) {
		if _, err := valStmt.ExecContext(ctx, t.City, v.polygonID, v.metric, v.value); err != nil {
			return eris.Wrapf(err, "sqlite: save %s for polygon %d", v.metric, v.polygonID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit save table")
}

func (s *SQLiteStore) LoadTable(ctx context.Context, city string) (*model.MetricTable, error) {
	var colsJSON, idsJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT columns, row_ids FROM morpho_tables WHERE city = ?`, city,
	).Scan(&colsJSON, &idsJSON)
	if err == sql.ErrNoRows {
		return nil, eris.Wrap(ErrTableNotFound, city)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: load table %s", city)
	}
	var columns []string
	var ids []int
	if err := json.Unmarshal([]byte(colsJSON), &columns); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal columns")
	}
	if err := json.Unmarshal([]byte(idsJSON), &ids); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal row ids")
	}

	names := make(map[int]string, len(ids))
	nrows, err := s.db.QueryContext(ctx, `SELECT polygon_id, name FROM morpho_polygons WHERE city = ?`, city)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load polygon names")
	}
	for nrows.Next() {
		var id int
		var name string
		if err := nrows.Scan(&id, &name); err != nil {
			nrows.Close()
			return nil, eris.Wrap(err, "sqlite: scan polygon name")
		}
		names[id] = name
	}
	nrows.Close()
	if err := nrows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate polygon names")
	}

	rows := make([]rowMeta, len(ids))
	for i, id := range ids {
		rows[i] = rowMeta{id: id, name: names[id]}
	}

	vrows, err := s.db.QueryContext(ctx,
		`SELECT polygon_id, metric, value FROM morpho_values WHERE city = ?`, city)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load values")
	}
	defer vrows.Close()
	var values []valueRow
	for vrows.Next() {
		var v valueRow
		if err := vrows.Scan(&v.polygonID, &v.metric, &v.value); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan value")
		}
		values = append(values, v)
	}
	if err := vrows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate values")
	}
	return buildTable(city, columns, rows, values), nil
}

func (s *SQLiteStore) HasTable(ctx context.Context, city string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM morpho_tables WHERE city = ?`, city).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: has table %s", city)
	}
	return true, nil
}

func (s *SQLiteStore) ListCities(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT city FROM morpho_tables ORDER BY city`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list cities")
	}
	defer rows.Close()
	var cities []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan city")
		}
		cities = append(cities, c)
	}
	return cities, eris.Wrap(rows.Err(), "sqlite: list cities iterate")
}

func (s *SQLiteStore) SaveBoundaries(ctx context.Context, c *model.Collection) error {
	if c == nil {
		return eris.New("sqlite: nil collection")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save boundaries")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO morpho_polygons (city, polygon_id, name, geom) VALUES (?, ?, ?, ?)
		 ON CONFLICT(city, polygon_id) DO UPDATE SET name = excluded.name, geom = excluded.geom`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare boundaries")
	}
	defer stmt.Close() //nolint:errcheck
	for _, b := range c.Boundaries {
		wkb, err := boundary.EncodeEWKB(b.Geometry)
		if err != nil {
			return eris.Wrapf(err, "sqlite: encode polygon %d", b.ID)
		}
		if _, err := stmt.ExecContext(ctx, c.City, b.ID, b.Name, wkb); err != nil {
			return eris.Wrapf(err, "sqlite: save boundary %d", b.ID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit boundaries")
}

func (s *SQLiteStore) LoadBoundaries(ctx context.Context, city string) (*model.Collection, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT polygon_id, name, geom FROM morpho_polygons WHERE city = ? AND geom IS NOT NULL ORDER BY polygon_id`, city)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: load boundaries %s", city)
	}
	defer rows.Close()

	c := &model.Collection{City: city}
	for rows.Next() {
		var b model.Boundary
		var wkb []byte
		if err := rows.Scan(&b.ID, &b.Name, &wkb); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan boundary")
		}
		if b.Geometry, err = boundary.DecodeEWKB(wkb); err != nil {
			return nil, eris.Wrapf(err, "sqlite: decode polygon %d", b.ID)
		}
		c.Boundaries = append(c.Boundaries, b)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate boundaries")
	}
	return c, nil
}

func (s *SQLiteStore) StartRun(ctx context.Context, city string, full bool) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO morpho_runs (id, city, full_set, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		id, city, full, string(model.RunStatusRunning), now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert run for %s", city)
	}
	return &model.Run{ID: id, City: city, Full: full, Status: model.RunStatusRunning, StartedAt: now}, nil
}

func (s *SQLiteStore) FinishRun(ctx context.Context, runID string, status model.RunStatus, polygons int, runErr error) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE morpho_runs SET status = ?, polygons = ?, error = ?, finished_at = ? WHERE id = ?`,
		string(status), polygons, errString(runErr), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, city, full_set, status, error, polygons, started_at, finished_at FROM morpho_runs WHERE 1=1`
	var args []any
	if filter.City != "" {
		query += ` AND city = ?`
		args = append(args, filter.City)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		var r model.Run
		var finished sql.NullTime
		if err := rows.Scan(&r.ID, &r.City, &r.Full, &r.Status, &r.Error, &r.Polygons, &r.StartedAt, &finished); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		if finished.Valid {
			f := finished.Time
			r.FinishedAt = &f
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

// GetCachedQuery returns nil when the key is missing or expired.
func (s *SQLiteStore) GetCachedQuery(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM overpass_cache WHERE key = ? AND expires_at > ?`,
		key, time.Now().Unix(),
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get cached query")
	}
	return data, nil
}

func (s *SQLiteStore) SetCachedQuery(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	now := time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO overpass_cache (key, data, cached_at, expires_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET data = excluded.data, cached_at = excluded.cached_at, expires_at = excluded.expires_at`,
		key, data, now.Unix(), now.Add(ttl).Unix(),
	)
	return eris.Wrap(err, "sqlite: set cached query")
}

func (s *SQLiteStore) DeleteExpiredQueries(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM overpass_cache WHERE expires_at <= ?`, time.Now().Unix())
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired queries")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}
