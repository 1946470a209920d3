package buildings

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/sells-group/morpho-cli/internal/network"
)

// Infra holds the infrastructure totals of a polygon.
type Infra struct {
	TotalArea         float64 // m²
	TotalBuiltArea    float64 // m² of footprint
	TotalStreetLength float64 // m
}

// InfraTotals sums the building footprints and street lengths of a polygon
// of the given area. Either collection may be empty.
func InfraTotals(areaM2 float64, bs []*Building, streets []network.Street) Infra {
	in := Infra{TotalArea: areaM2, TotalStreetLength: network.TotalLength(streets)}
	for _, b := range bs {
		in.TotalBuiltArea += b.Area
	}
	return in
}

// MeanOf averages fn over bs, skipping NaN values. It is NaN when nothing
// is left.
func MeanOf(bs []*Building, fn func(*Building) float64) float64 {
	xs := make([]float64, 0, len(bs))
	for _, b := range bs {
		if v := fn(b); !math.IsNaN(v) && !math.IsInf(v, 0) {
			xs = append(xs, v)
		}
	}
	return nanMean(xs)
}

// MeanProfile averages each profile field over the streets, skipping NaN.
func MeanProfile(ps []StreetProfile) StreetProfile {
	field := func(fn func(StreetProfile) float64) float64 {
		xs := make([]float64, 0, len(ps))
		for _, p := range ps {
			if v := fn(p); !math.IsNaN(v) && !math.IsInf(v, 0) {
				xs = append(xs, v)
			}
		}
		return nanMean(xs)
	}
	return StreetProfile{
		Width:     field(func(p StreetProfile) float64 { return p.Width }),
		WidthDev:  field(func(p StreetProfile) float64 { return p.WidthDev }),
		Openness:  field(func(p StreetProfile) float64 { return p.Openness }),
		Height:    field(func(p StreetProfile) float64 { return p.Height }),
		HeightDev: field(func(p StreetProfile) float64 { return p.HeightDev }),
		Ratio:     field(func(p StreetProfile) float64 { return p.Ratio }),
	}
}

func nanMean(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	return stat.Mean(xs, nil)
}
