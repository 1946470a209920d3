package export

import (
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/paulmach/orb/geojson"
	"github.com/rotisserie/eris"

	"github.com/sells-group/morpho-cli/internal/model"
)

// Features joins boundaries with their metric rows. Every table column
// becomes a property; missing values are null.
func Features(c *model.Collection, t *model.MetricTable) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	var cols []string
	if t != nil {
		cols = t.Columns()
	}
	for _, b := range c.Boundaries {
		f := geojson.NewFeature(b.Geometry)
		f.ID = b.ID
		f.Properties[ColumnCity] = c.City
		f.Properties[ColumnID] = b.ID
		f.Properties[ColumnName] = b.Name
		for _, col := range cols {
			v := t.Value(b.ID, col)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				f.Properties[col] = nil
				continue
			}
			f.Properties[col] = v
		}
		fc.Append(f)
	}
	return fc
}

// WriteGeoJSON encodes the joined features to w.
func WriteGeoJSON(w io.Writer, c *model.Collection, t *model.MetricTable) error {
	data, err := Features(c, t).MarshalJSON()
	if err != nil {
		return eris.Wrap(err, "export: marshal geojson")
	}
	if _, err := w.Write(data); err != nil {
		return eris.Wrap(err, "export: write geojson")
	}
	return nil
}

// CityFileName is the per-city result file name.
func CityFileName(city string) string {
	return city + " - morpho.geojson"
}

// SaveCity writes the per-city result file into dir and returns its path.
func SaveCity(dir string, c *model.Collection, t *model.MetricTable) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrap(err, "export: create output dir")
	}
	path := filepath.Join(dir, CityFileName(c.City))
	out, err := os.Create(path)
	if err != nil {
		return "", eris.Wrap(err, "export: create geojson")
	}
	if err := WriteGeoJSON(out, c, t); err != nil {
		out.Close() //nolint:errcheck
		return "", err
	}
	if err := out.Close(); err != nil {
		return "", eris.Wrap(err, "export: close geojson")
	}
	return path, nil
}
