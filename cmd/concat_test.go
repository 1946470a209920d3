package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/morpho-cli/internal/export"
)

func TestConcatTables(t *testing.T) {
	useTestConfig(t)
	st := newTestStore(t)
	seedCity(t, st, "Paris", true)
	seedCity(t, st, "Lyon", true)
	seedCity(t, st, "Nantes", false)

	frame, err := concatTables(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, 2, frame.Cities())
	require.Len(t, frame.Rows, 4)
	assert.Equal(t, "Lyon", frame.Rows[0].City, "cities are sorted")
	assert.Equal(t, "Paris", frame.Rows[2].City)

	header := frame.Header()
	assert.Equal(t, export.ColumnCity, header[0])
	assert.Contains(t, header, "lon")
	assert.Contains(t, header, "street_density")
}

func TestConcatTables_Empty(t *testing.T) {
	useTestConfig(t)
	st := newTestStore(t)

	frame, err := concatTables(context.Background(), st)
	require.NoError(t, err)
	assert.Empty(t, frame.Rows)
}
