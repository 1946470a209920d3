package store

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/morpho-cli/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return NewPostgresFromPool(mock), mock
}

func TestPostgresStore_SaveTable(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM morpho_values WHERE city = \$1`).
		WithArgs("Lyon").
		WillReturnResult(pgxmock.NewResult("DELETE", 4))
	mock.ExpectExec(`INSERT INTO morpho_tables`).
		WithArgs("Lyon", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO morpho_polygons`).
		WithArgs("Lyon", []int32{0, 1, 2}, []string{"Centre", "Nord", ""}).
		WillReturnResult(pgxmock.NewResult("INSERT", 3))
	mock.ExpectCopyFrom(pgx.Identifier{"morpho_values"}, valueColumns).WillReturnResult(3)
	mock.ExpectCommit()

	require.NoError(t, s.SaveTable(context.Background(), sampleTable("Lyon")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LoadTable(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT columns, row_ids FROM morpho_tables WHERE city = \$1`).
		WithArgs("Lyon").
		WillReturnRows(pgxmock.NewRows([]string{"columns", "row_ids"}).
			AddRow([]byte(`["area_m2","avg_street_length"]`), []byte(`[0,1]`)))
	mock.ExpectQuery(`SELECT polygon_id, name FROM morpho_polygons`).
		WithArgs("Lyon").
		WillReturnRows(pgxmock.NewRows([]string{"polygon_id", "name"}).AddRow(int32(0), "Centre"))
	mock.ExpectQuery(`SELECT polygon_id, metric, value FROM morpho_values`).
		WithArgs("Lyon").
		WillReturnRows(pgxmock.NewRows([]string{"polygon_id", "metric", "value"}).
			AddRow(int32(0), "area_m2", 1200.5).
			AddRow(int32(1), "avg_street_length", 80.0))

	got, err := s.LoadTable(context.Background(), "Lyon")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Len())
	assert.Equal(t, 1200.5, got.Value(0, "area_m2"))
	assert.True(t, math.IsNaN(got.Value(0, "avg_street_length")))
	assert.Equal(t, 80.0, got.Value(1, "avg_street_length"))
	row, _ := got.Row(0)
	assert.Equal(t, "Centre", row.Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LoadTable_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT columns, row_ids FROM morpho_tables`).
		WithArgs("Nowhere").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.LoadTable(context.Background(), "Nowhere")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrTableNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_HasTable(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("Paris").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := s.HasTable(context.Background(), "Paris")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListCities(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT city FROM morpho_tables ORDER BY city`).
		WillReturnRows(pgxmock.NewRows([]string{"city"}).AddRow("Lyon").AddRow("Paris"))

	cities, err := s.ListCities(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Lyon", "Paris"}, cities)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveBoundaries(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mp := orb.MultiPolygon{{{{4.8, 45.7}, {4.9, 45.7}, {4.9, 45.8}, {4.8, 45.7}}}}
	c := model.NewCollection("Lyon", []orb.MultiPolygon{mp}, []string{"1er"})

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "morpho_polygons" .* ON CONFLICT`).
		WithArgs("Lyon", int32(0), "1er", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, s.SaveBoundaries(context.Background(), c))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FinishRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE morpho_runs SET status`).
		WithArgs("complete", int32(3), "", pgxmock.AnyArg(), "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.FinishRun(context.Background(), "missing", model.RunStatusComplete, 3, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetCachedQuery_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT data FROM overpass_cache`).
		WithArgs("abc").
		WillReturnError(pgx.ErrNoRows)

	data, err := s.GetCachedQuery(context.Background(), "abc")
	require.NoError(t, err)
	assert.Nil(t, data)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SetCachedQuery_Upsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`ON CONFLICT`).
		WithArgs("abc", []byte("data"), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.SetCachedQuery(context.Background(), "abc", []byte("data"), 24*time.Hour))
	assert.NoError(t, mock.ExpectationsWereMet())
}
