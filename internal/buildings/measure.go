package buildings

import (
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/simplify"

	mgeo "github.com/sells-group/morpho-cli/internal/geo"
)

// Measure fills the intrinsic shape measures of every building.
// Compactness is taken on a simplified copy when opts.Simplify is set.
func Measure(bs []*Building, opts Options) {
	opts = opts.normalized()
	var dp *simplify.DouglasPeuckerSimplifier
	if opts.Simplify > 0 {
		dp = simplify.DouglasPeucker(opts.Simplify)
	}
	for _, b := range bs {
		b.Area = planar.Area(b.Geometry)
		b.Perimeter = mgeo.Perimeter(b.Geometry)
		b.Orientation = mgeo.PolygonOrientation(b.Geometry)

		shape := b.Geometry
		if dp != nil {
			if s := dp.Polygon(b.Geometry.Clone()); len(s) > 0 && len(s[0]) >= 4 {
				shape = s
			}
		}
		b.Compactness = mgeo.PolsbyPopper(shape)
	}
}
