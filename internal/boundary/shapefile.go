package boundary

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

// shapeReader is the part of the go-shp readers used here.
type shapeReader interface {
	Next() bool
	Shape() (int, shp.Shape)
	Attribute(n int) string
	Fields() []shp.Field
	Err() error
	Close() error
}

func readShapefile(path string) ([]orb.MultiPolygon, []string, error) {
	r, err := shp.Open(path)
	if err != nil {
		return nil, nil, eris.Wrap(err, "boundary: open shapefile")
	}
	defer func() { _ = r.Close() }()
	return readShapes(r, attributeDecoder(path))
}

func readShapes(r shapeReader, dec *encoding.Decoder) ([]orb.MultiPolygon, []string, error) {
	log := zap.L().With(zap.String("component", "boundary"))
	nameIdx := -1
	fields := r.Fields()
	for _, n := range nameFields {
		if nameIdx = fieldIndex(fields, n); nameIdx >= 0 {
			break
		}
	}

	var (
		polys []orb.MultiPolygon
		names []string
	)
	for r.Next() {
		n, shape := r.Shape()
		var parts []int32
		var points []shp.Point
		switch s := shape.(type) {
		case *shp.Polygon:
			parts, points = s.Parts, s.Points
		case *shp.PolygonZ:
			parts, points = s.Parts, s.Points
		case *shp.PolygonM:
			parts, points = s.Parts, s.Points
		default:
			log.Debug("boundary: skipping non-polygon shape", zap.Int("row", n))
			continue
		}
		mp := assembleRings(splitParts(parts, points))
		if len(mp) == 0 {
			continue
		}
		name := ""
		if nameIdx >= 0 {
			name = decodeAttribute(dec, r.Attribute(nameIdx))
		}
		polys = append(polys, mp)
		names = append(names, name)
	}
	if err := r.Err(); err != nil {
		return nil, nil, eris.Wrap(err, "boundary: read shapefile")
	}
	return polys, names, nil
}

// splitParts cuts the flat point list of a shape into its rings.
func splitParts(parts []int32, points []shp.Point) []orb.Ring {
	rings := make([]orb.Ring, 0, len(parts))
	for i, start := range parts {
		end := int32(len(points))
		if i+1 < len(parts) {
			end = parts[i+1]
		}
		if start < 0 || end > int32(len(points)) || end-start < 4 {
			continue
		}
		ring := make(orb.Ring, 0, end-start)
		for _, p := range points[start:end] {
			ring = append(ring, orb.Point{p.X, p.Y})
		}
		if !ring.Closed() {
			ring = append(ring, ring[0])
		}
		rings = append(rings, ring)
	}
	return rings
}

// assembleRings groups shapefile rings into polygons. Clockwise rings are
// outer boundaries and counter-clockwise rings are holes of the outer ring
// containing them. Files that ignore the winding rule get every ring as an
// outer ring. Output rings follow the GeoJSON winding.
func assembleRings(rings []orb.Ring) orb.MultiPolygon {
	var outers, holes []orb.Ring
	for _, r := range rings {
		if r.Orientation() == orb.CW {
			outers = append(outers, r)
		} else {
			holes = append(holes, r)
		}
	}
	if len(outers) == 0 {
		outers, holes = holes, nil
	}

	mp := make(orb.MultiPolygon, 0, len(outers))
	for _, o := range outers {
		o = o.Clone()
		if o.Orientation() == orb.CW {
			o.Reverse()
		}
		mp = append(mp, orb.Polygon{o})
	}
	for _, h := range holes {
		for i := range mp {
			if planar.RingContains(mp[i][0], h[0]) {
				h = h.Clone()
				if h.Orientation() == orb.CCW {
					h.Reverse()
				}
				mp[i] = append(mp[i], h)
				break
			}
		}
	}
	return mp
}

// fieldIndex returns the index of the named DBF field, or -1.
func fieldIndex(fields []shp.Field, name string) int {
	for i, f := range fields {
		fname := strings.TrimRight(f.String(), "\x00 ")
		if strings.EqualFold(fname, name) {
			return i
		}
	}
	return -1
}

// attributeDecoder reads the code page named in the .cpg file next to a
// shapefile. A missing or unknown code page leaves attributes undecoded.
func attributeDecoder(shpPath string) *encoding.Decoder {
	cpg := strings.TrimSuffix(shpPath, filepath.Ext(shpPath)) + ".cpg"
	data, err := os.ReadFile(cpg)
	if err != nil {
		return nil
	}
	label := strings.ToLower(strings.TrimSpace(string(data)))
	label = strings.TrimPrefix(label, "ansi ")
	if label == "" || label == "utf-8" || label == "utf8" {
		return nil
	}
	if _, err := htmlindex.Get(label); err != nil && strings.HasPrefix(label, "125") {
		label = "windows-" + label
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		zap.L().Debug("boundary: unknown code page", zap.String("path", cpg), zap.String("label", label))
		return nil
	}
	return enc.NewDecoder()
}

func decodeAttribute(dec *encoding.Decoder, s string) string {
	s = strings.TrimRight(s, "\x00 ")
	if dec == nil {
		return strings.TrimSpace(s)
	}
	out, err := dec.String(s)
	if err != nil {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(out)
}
