package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/morpho-cli/internal/batch"
	"github.com/sells-group/morpho-cli/internal/model"
)

func TestResolveCities_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cities.txt")
	require.NoError(t, os.WriteFile(path, []byte("Paris\nLyon, France\n\n# comment\n"), 0o644))

	cities, err := resolveCities([]string{path, "Nantes"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Paris", "Lyon", "Nantes"}, cities)
}

func TestResolveCities_Names(t *testing.T) {
	cities, err := resolveCities([]string{"Paris", "Lyon"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Paris", "Lyon"}, cities)

	cities, err = resolveCities(nil)
	require.NoError(t, err)
	assert.Empty(t, cities)
}

func TestFormatSummary(t *testing.T) {
	sum := &batch.Summary{
		Results: []batch.Result{
			{City: "Paris", Status: model.RunStatusComplete, Polygons: 20, Elapsed: 1500 * time.Millisecond},
			{City: "Lyon", Status: model.RunStatusFailed, Error: "boundary: no file for lyon"},
		},
		Next: "Marseille",
	}
	var buf bytes.Buffer
	formatSummary(&buf, sum)
	out := buf.String()

	assert.Contains(t, out, "CITY")
	assert.Contains(t, out, "Paris")
	assert.Contains(t, out, "complete")
	assert.Contains(t, out, "1.5s")
	assert.Contains(t, out, "boundary: no file for lyon")
	assert.Contains(t, out, "Next: Marseille")
}

func TestFormatSummary_NoNext(t *testing.T) {
	var buf bytes.Buffer
	formatSummary(&buf, &batch.Summary{Results: []batch.Result{{City: "Paris", Status: model.RunStatusSkipped}}})
	assert.NotContains(t, buf.String(), "Next:")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "Saint-Éti...", truncate("Saint-Étienne-du-Rouvray", 12))
	assert.Equal(t, "Besançon", truncate("Besançon", 8))
	assert.True(t, utf8.ValidString(truncate("Zürich Höngg Affoltern", 9)))
}
