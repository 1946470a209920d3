// Package boundary loads the administrative polygons of a city from local
// shapefiles, GeoJSON files or zip archives of either.
package boundary

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/morpho-cli/internal/model"
)

// DefaultMaxPolygons is the largest collection processed for one city.
const DefaultMaxPolygons = 200

var (
	// ErrNotFound means no boundary file exists for the city.
	ErrNotFound = eris.New("boundary: no boundary file for city")
	// ErrTooManyPolygons means the collection exceeds the polygon cap.
	ErrTooManyPolygons = eris.New("boundary: too many polygons")
	// ErrNoPolygons means the file holds no polygonal features.
	ErrNoPolygons = eris.New("boundary: no polygons in file")
)

// extensions are tried in order.
var extensions = []string{".shp", ".geojson", ".json", ".zip"}

// Loader reads boundary files below DataDir.
type Loader struct {
	DataDir     string
	MaxPolygons int
}

// NewLoader returns a loader over dataDir with the given cap; a cap of
// zero or less means DefaultMaxPolygons.
func NewLoader(dataDir string, maxPolygons int) *Loader {
	if maxPolygons <= 0 {
		maxPolygons = DefaultMaxPolygons
	}
	return &Loader{DataDir: dataDir, MaxPolygons: maxPolygons}
}

// Slug turns a city name into a directory name: accents stripped,
// lower case, runs of other characters collapsed into single dashes.
func Slug(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	s, _, err := transform.String(t, name)
	if err != nil {
		s = name
	}
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// Path finds the boundary file of city: <dir>/<slug>/<slug>.<ext>, then
// <dir>/<slug>.<ext>.
func (l *Loader) Path(city string) (string, error) {
	slug := Slug(city)
	if slug == "" {
		return "", model.ConfigurationError("boundary.path", eris.Wrapf(ErrNotFound, "empty city name %q", city))
	}
	var tried []string
	for _, dir := range []string{filepath.Join(l.DataDir, slug), l.DataDir} {
		for _, ext := range extensions {
			p := filepath.Join(dir, slug+ext)
			tried = append(tried, p)
			if st, err := os.Stat(p); err == nil && !st.IsDir() {
				return p, nil
			}
		}
	}
	return "", model.ConfigurationError("boundary.path",
		eris.Wrapf(ErrNotFound, "%s (tried %s)", city, strings.Join(tried, ", ")))
}

// Load reads the collection of city. Collections above the polygon cap
// are rejected before anything else happens with them.
func (l *Loader) Load(ctx context.Context, city string) (*model.Collection, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "boundary: load")
	}
	path, err := l.Path(city)
	if err != nil {
		return nil, err
	}
	polys, names, err := ReadFile(path)
	if err != nil {
		return nil, model.ConfigurationError("boundary.load", err)
	}
	if len(polys) == 0 {
		return nil, model.ConfigurationError("boundary.load", eris.Wrap(ErrNoPolygons, path))
	}
	limit := l.MaxPolygons
	if limit <= 0 {
		limit = DefaultMaxPolygons
	}
	if len(polys) > limit {
		return nil, model.ConfigurationError("boundary.load",
			eris.Wrapf(ErrTooManyPolygons, "%s has %d polygons, limit %d", city, len(polys), limit))
	}

	zap.L().Info("boundary: loaded",
		zap.String("component", "boundary"),
		zap.String("city", city),
		zap.String("path", path),
		zap.Int("polygons", len(polys)),
	)
	return model.NewCollection(city, polys, names), nil
}

// ReadFile reads every polygon of a .shp, .geojson/.json or .zip file with
// the feature names found in it.
func ReadFile(path string) ([]orb.MultiPolygon, []string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".shp":
		return readShapefile(path)
	case ".geojson", ".json":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, nil, eris.Wrap(err, "boundary: read geojson")
		}
		return readGeoJSON(data)
	case ".zip":
		return readZip(path)
	}
	return nil, nil, eris.Errorf("boundary: unsupported file type %s", path)
}

// nameFields are the attribute names tried for a polygon's display name.
var nameFields = []string{"name", "nom", "nombre", "name_en", "namelsad"}
