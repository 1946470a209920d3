package batch

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/morpho-cli/internal/model"
)

func TestParseCityList_Text(t *testing.T) {
	in := `# Europe
Paris, France
Rotterdam

Buenos Aires: rerun after boundary fix
  Cape Town , South Africa
`
	cities, err := ParseCityList(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, []string{"Paris", "Rotterdam", "Buenos Aires", "Cape Town"}, cities)
}

func TestParseCityList_YAML(t *testing.T) {
	in := `# batch
cities:
  - Melbourne
  - "Washington DC"
  - " "
`
	cities, err := ParseCityList(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, []string{"Melbourne", "Washington DC"}, cities)
}

func TestParseCityList_BadYAML(t *testing.T) {
	_, err := ParseCityList(strings.NewReader("cities: [Paris"))
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.KindConfiguration))
}

func TestParseCityList_Empty(t *testing.T) {
	cities, err := ParseCityList(strings.NewReader("\n# nothing\n"))
	require.NoError(t, err)
	assert.Empty(t, cities)
}

func TestReadCityFile_XLSX(t *testing.T) {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("cities")
	require.NoError(t, err)
	for _, name := range []string{"City", "Seattle", "", "Austin"} {
		sheet.AddRow().AddCell().SetString(name)
	}
	path := filepath.Join(t.TempDir(), "cities.xlsx")
	require.NoError(t, f.Save(path))

	cities, err := ReadCityFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Seattle", "Austin"}, cities)
}

func TestReadCityFile_Text(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cities.txt")
	require.NoError(t, os.WriteFile(path, []byte("Denver\nMiami, USA\n"), 0o644))

	cities, err := ReadCityFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Denver", "Miami"}, cities)

	_, err = ReadCityFile(filepath.Join(t.TempDir(), "missing.txt"))
	assert.True(t, model.IsKind(err, model.KindConfiguration))
}

func TestFromStart(t *testing.T) {
	cities := []string{"Paris", "Lyon", "Nice"}

	got, err := FromStart(cities, "")
	require.NoError(t, err)
	assert.Equal(t, cities, got)

	got, err = FromStart(cities, "Lyon")
	require.NoError(t, err)
	assert.Equal(t, []string{"Lyon", "Nice"}, got)

	_, err = FromStart(cities, "Metz")
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.KindConfiguration))
}

func TestNext(t *testing.T) {
	cities := []string{"Paris", "Lyon", "Nice"}
	tests := []struct {
		current string
		want    string
		ok      bool
	}{
		{"Paris", "Lyon", true},
		{"Lyon", "Nice", true},
		{"Nice", "", false},
		{"Metz", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.current, func(t *testing.T) {
			got, ok := Next(cities, tt.current)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.ok, ok)
		})
	}
}
