package boundary

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rotisserie/eris"
)

func readGeoJSON(data []byte) ([]orb.MultiPolygon, []string, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, nil, eris.Wrap(err, "boundary: parse geojson")
	}
	var (
		polys []orb.MultiPolygon
		names []string
	)
	for _, f := range fc.Features {
		var mp orb.MultiPolygon
		switch g := f.Geometry.(type) {
		case orb.Polygon:
			mp = orb.MultiPolygon{g}
		case orb.MultiPolygon:
			mp = g
		default:
			continue
		}
		if len(mp) == 0 {
			continue
		}
		polys = append(polys, mp)
		names = append(names, featureName(f.Properties))
	}
	return polys, names, nil
}

func featureName(props geojson.Properties) string {
	for _, key := range nameFields {
		for k, v := range props {
			if !strings.EqualFold(k, key) {
				continue
			}
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

// readZip extracts the archive next to itself and reads the first
// shapefile, or failing that the first GeoJSON file, inside it.
func readZip(path string) ([]orb.MultiPolygon, []string, error) {
	dir, err := os.MkdirTemp("", "boundary-*")
	if err != nil {
		return nil, nil, eris.Wrap(err, "boundary: create extract dir")
	}
	defer func() { _ = os.RemoveAll(dir) }()

	if err := extractZIP(path, dir); err != nil {
		return nil, nil, eris.Wrap(err, "boundary: extract zip")
	}
	for _, ext := range []string{".shp", ".geojson", ".json"} {
		if p, err := findFileByExt(dir, ext); err == nil {
			return ReadFile(p)
		}
	}
	return nil, nil, eris.Wrapf(ErrNoPolygons, "no shapefile or geojson in %s", path)
}

// extractZIP flattens every file of the archive into destDir.
func extractZIP(zipPath, destDir string) error {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return eris.Wrap(err, "open zip")
	}
	defer func() { _ = r.Close() }()

	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name := filepath.Base(f.Name)
		if name == "." || name == ".." || strings.HasPrefix(name, "._") {
			continue
		}
		if err := extractFile(f, filepath.Join(destDir, name)); err != nil {
			return err
		}
	}
	return nil
}

func extractFile(f *zip.File, dest string) error {
	rc, err := f.Open()
	if err != nil {
		return eris.Wrapf(err, "open %s", f.Name)
	}
	defer func() { _ = rc.Close() }()

	out, err := os.Create(dest)
	if err != nil {
		return eris.Wrapf(err, "create %s", dest)
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, rc); err != nil {
		return eris.Wrapf(err, "extract %s", f.Name)
	}
	return nil
}

// findFileByExt returns the first file in dir with the extension, in
// directory order.
func findFileByExt(dir, ext string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", eris.Wrap(err, "read dir")
	}
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ext) {
			return filepath.Join(dir, e.Name()), nil
		}
	}
	return "", eris.Errorf("no %s file in %s", ext, dir)
}
