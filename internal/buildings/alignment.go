package buildings

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	mgeo "github.com/sells-group/morpho-cli/internal/geo"
	"github.com/sells-group/morpho-cli/internal/network"
)

// sampleStep is the spacing of street samples in the nearest-street index.
const sampleStep = 5.0

// AssignNetwork links every building to the nearest street within
// opts.NetworkMaxDistance of its centroid, by position in streets, and
// fills StreetAlignment. Unlinked buildings get NetworkID -1 and a NaN
// alignment. It returns the number of linked buildings.
func AssignNetwork(bs []*Building, streets []network.ProjectedStreet, opts Options) int {
	opts = opts.normalized()
	lines := make(map[int][]orb.LineString, len(streets))
	for i, s := range streets {
		if len(s.Line) >= 2 {
			lines[i] = []orb.LineString{s.Line}
		}
	}
	ix := newLineIndex(lines, sampleStep)

	bearing := make(map[int]float64)
	var linked int
	for _, b := range bs {
		b.NetworkID = -1
		b.StreetAlignment = math.NaN()

		c := mgeo.Centroid(orb.MultiPolygon{b.Geometry})
		best, bestDist := -1, math.Inf(1)
		for _, id := range ix.candidates(c, opts.NetworkMaxDistance) {
			if d := planar.DistanceFrom(streets[id].Line, c); d < bestDist {
				best, bestDist = id, d
			}
		}
		if best < 0 || bestDist > opts.NetworkMaxDistance {
			continue
		}
		o, ok := bearing[best]
		if !ok {
			o = streetOrientation(streets[best].Line)
			bearing[best] = o
		}
		b.NetworkID = best
		b.StreetAlignment = math.Abs(b.Orientation - o)
		linked++
	}
	return linked
}

// streetOrientation folds the direction between the street's endpoints
// into 0–45°. Closed streets fall back to their rotated-rectangle axis.
func streetOrientation(line orb.LineString) float64 {
	a, z := line[0], line[len(line)-1]
	if a.Equal(z) {
		return mgeo.Orientation(line)
	}
	return mgeo.FoldOrientation(mgeo.Azimuth(z[0]-a[0], z[1]-a[1]))
}
