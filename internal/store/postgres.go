package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/morpho-cli/internal/boundary"
	"github.com/sells-group/morpho-cli/internal/db"
	"github.com/sells-group/morpho-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *db.PoolConfig) (*PostgresStore, error) {
	pool, err := db.Connect(ctx, connString, poolCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool; Close leaves it open.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS morpho_tables (
	city       TEXT PRIMARY KEY,
	columns    JSONB NOT NULL,
	row_ids    JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS morpho_polygons (
	city       TEXT NOT NULL,
	polygon_id INTEGER NOT NULL,
	name       TEXT NOT NULL DEFAULT '',
	geom       BYTEA,
	PRIMARY KEY (city, polygon_id)
);

CREATE TABLE IF NOT EXISTS morpho_values (
	city       TEXT NOT NULL,
	polygon_id INTEGER NOT NULL,
	metric     TEXT NOT NULL,
	value      DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (city, polygon_id, metric)
);

CREATE TABLE IF NOT EXISTS morpho_runs (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	city        TEXT NOT NULL,
	full_set    BOOLEAN NOT NULL DEFAULT false,
	status      TEXT NOT NULL DEFAULT 'running',
	error       TEXT NOT NULL DEFAULT '',
	polygons    INTEGER NOT NULL DEFAULT 0,
	started_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS overpass_cache (
	key        TEXT PRIMARY KEY,
	data       BYTEA NOT NULL,
	cached_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_morpho_runs_city ON morpho_runs(city);
CREATE INDEX IF NOT EXISTS idx_morpho_runs_status ON morpho_runs(status);
CREATE INDEX IF NOT EXISTS idx_overpass_cache_expires_at ON overpass_cache(expires_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

var valueColumns = []string{"city", "polygon_id", "metric", "value"}

// SaveTable replaces every stored value of the table's city in one
// transaction; values go in with COPY.
func (s *PostgresStore) SaveTable(ctx context.Context, t *model.MetricTable) error {
	if t == nil {
		return eris.New("postgres: nil table")
	}
	colsJSON, err := json.Marshal(t.Columns())
	if err != nil {
		return eris.Wrap(err, "postgres: marshal columns")
	}
	ids := make([]int32, 0, t.Len())
	names := make([]string, 0, t.Len())
	for _, r := range t.Rows() {
		ids = append(ids, int32(r.ID))
		names = append(names, r.Name)
	}
	idsJSON, err := json.Marshal(ids)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal row ids")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin save table")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM morpho_values WHERE city = $1`, t.City); err != nil {
		return eris.Wrapf(err, "postgres: clear values for %s", t.City)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO morpho_tables (city, columns, row_ids, updated_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (city) DO UPDATE SET columns = EXCLUDED.columns, row_ids = EXCLUDED.row_ids, updated_at = EXCLUDED.updated_at`,
		t.City, colsJSON, idsJSON, time.Now().UTC(),
	); err != nil {
		return eris.Wrapf(err, "postgres: upsert table %s", t.City)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO morpho_polygons (city, polygon_id, name)
		 SELECT $1, u.id, u.name FROM unnest($2::int[], $3::text[]) AS u(id, name)
		 ON CONFLICT (city, polygon_id) DO UPDATE SET name = EXCLUDED.name`,
		t.City, ids, names,
	); err != nil {
		return eris.Wrapf(err, "postgres: save polygon names for %s", t.City)
	}

	vals := tableValues(t)
	rows := make([][]any, len(vals))
	for i, v := range vals {
		rows[i] = []any{t.City, int32(v.polygonID), v.metric, v.value}
	}
	if _, err := db.CopyFrom(ctx, tx, "morpho_values", valueColumns, rows); err != nil {
		return eris.Wrap(err, "postgres: save values")
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit save table")
}

func (s *PostgresStore) LoadTable(ctx context.Context, city string) (*model.MetricTable, error) {
	var colsJSON, idsJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT columns, row_ids FROM morpho_tables WHERE city = $1`, city,
	).Scan(&colsJSON, &idsJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrap(ErrTableNotFound, city)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: load table %s", city)
	}
	var columns []string
	var ids []int
	if err := json.Unmarshal(colsJSON, &columns); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal columns")
	}
	if err := json.Unmarshal(idsJSON, &ids); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal row ids")
	}

	names := make(map[int]string, len(ids))
	nrows, err := s.pool.Query(ctx, `SELECT polygon_id, name FROM morpho_polygons WHERE city = $1`, city)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load polygon names")
	}
	for nrows.Next() {
		var id int32
		var name string
		if err := nrows.Scan(&id, &name); err != nil {
			nrows.Close()
			return nil, eris.Wrap(err, "postgres: scan polygon name")
		}
		names[int(id)] = name
	}
	nrows.Close()
	if err := nrows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate polygon names")
	}

	meta := make([]rowMeta, len(ids))
	for i, id := range ids {
		meta[i] = rowMeta{id: id, name: names[id]}
	}

	vrows, err := s.pool.Query(ctx, `SELECT polygon_id, metric, value FROM morpho_values WHERE city = $1`, city)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load values")
	}
	defer vrows.Close()
	var values []valueRow
	for vrows.Next() {
		var id int32
		var v valueRow
		if err := vrows.Scan(&id, &v.metric, &v.value); err != nil {
			return nil, eris.Wrap(err, "postgres: scan value")
		}
		v.polygonID = int(id)
		values = append(values, v)
	}
	if err := vrows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate values")
	}
	return buildTable(city, columns, meta, values), nil
}

func (s *PostgresStore) HasTable(ctx context.Context, city string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM morpho_tables WHERE city = $1)`, city,
	).Scan(&exists)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: has table %s", city)
	}
	return exists, nil
}

func (s *PostgresStore) ListCities(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT city FROM morpho_tables ORDER BY city`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list cities")
	}
	defer rows.Close()
	var cities []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, eris.Wrap(err, "postgres: scan city")
		}
		cities = append(cities, c)
	}
	return cities, eris.Wrap(rows.Err(), "postgres: list cities iterate")
}

func (s *PostgresStore) SaveBoundaries(ctx context.Context, c *model.Collection) error {
	if c == nil {
		return eris.New("postgres: nil collection")
	}
	rows := make([][]any, 0, c.Len())
	for _, b := range c.Boundaries {
		wkb, err := boundary.EncodeEWKB(b.Geometry)
		if err != nil {
			return eris.Wrapf(err, "postgres: encode polygon %d", b.ID)
		}
		rows = append(rows, []any{c.City, int32(b.ID), b.Name, wkb})
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin save boundaries")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := boundaryUpsert.Exec(ctx, tx, rows); err != nil {
		return eris.Wrapf(err, "postgres: save boundaries for %s", c.City)
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit boundaries")
}

var boundaryUpsert = db.Upsert{
	Table:   "morpho_polygons",
	Columns: []string{"city", "polygon_id", "name", "geom"},
	Key:     []string{"city", "polygon_id"},
}

func (s *PostgresStore) LoadBoundaries(ctx context.Context, city string) (*model.Collection, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT polygon_id, name, geom FROM morpho_polygons WHERE city = $1 AND geom IS NOT NULL ORDER BY polygon_id`, city)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: load boundaries %s", city)
	}
	defer rows.Close()

	c := &model.Collection{City: city}
	for rows.Next() {
		var id int32
		var b model.Boundary
		var wkb []byte
		if err := rows.Scan(&id, &b.Name, &wkb); err != nil {
			return nil, eris.Wrap(err, "postgres: scan boundary")
		}
		b.ID = int(id)
		if b.Geometry, err = boundary.DecodeEWKB(wkb); err != nil {
			return nil, eris.Wrapf(err, "postgres: decode polygon %d", b.ID)
		}
		c.Boundaries = append(c.Boundaries, b)
	}
	return c, eris.Wrap(rows.Err(), "postgres: iterate boundaries")
}

func (s *PostgresStore) StartRun(ctx context.Context, city string, full bool) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO morpho_runs (id, city, full_set, status, started_at) VALUES ($1, $2, $3, $4, $5)`,
		id, city, full, string(model.RunStatusRunning), now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert run for %s", city)
	}
	return &model.Run{ID: id, City: city, Full: full, Status: model.RunStatusRunning, StartedAt: now}, nil
}

func (s *PostgresStore) FinishRun(ctx context.Context, runID string, status model.RunStatus, polygons int, runErr error) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE morpho_runs SET status = $1, polygons = $2, error = $3, finished_at = $4 WHERE id = $5`,
		string(status), int32(polygons), errString(runErr), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, city, full_set, status, error, polygons, started_at, finished_at FROM morpho_runs
		 WHERE ($1 = '' OR city = $1) AND ($2 = '' OR status = $2)
		 ORDER BY started_at DESC LIMIT $3`,
		filter.City, string(filter.Status), int32(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		var r model.Run
		var status string
		var polygons int32
		if err := rows.Scan(&r.ID, &r.City, &r.Full, &status, &r.Error, &polygons, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		r.Status = model.RunStatus(status)
		r.Polygons = int(polygons)
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

// GetCachedQuery returns nil when the key is missing or expired.
func (s *PostgresStore) GetCachedQuery(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM overpass_cache WHERE key = $1 AND expires_at > now()`, key,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get cached query")
	}
	return data, nil
}

func (s *PostgresStore) SetCachedQuery(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO overpass_cache (key, data, cached_at, expires_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (key) DO UPDATE SET data = EXCLUDED.data, cached_at = EXCLUDED.cached_at, expires_at = EXCLUDED.expires_at`,
		key, data, now, now.Add(ttl),
	)
	return eris.Wrap(err, "postgres: set cached query")
}

func (s *PostgresStore) DeleteExpiredQueries(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM overpass_cache WHERE expires_at <= now()`)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete expired queries")
	}
	return int(tag.RowsAffected()), nil
}
