package network

import (
	"context"

	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"

	mgeo "github.com/sells-group/morpho-cli/internal/geo"
	"github.com/sells-group/morpho-cli/internal/model"
	"github.com/sells-group/morpho-cli/pkg/overpass"
)

// boundaryPad is how far beyond the boundary streets are fetched, so that
// streets crossing the boundary can be kept whole.
const boundaryPad = 500.0

// StreetSource fetches the raw drivable streets around a lon/lat bound.
type StreetSource interface {
	Streets(ctx context.Context, bound orb.Bound) (*Elements, error)
}

// OverpassSource reads streets from an Overpass instance.
type OverpassSource struct {
	Client      overpass.Client
	TimeoutSecs int
}

// NewOverpassSource wraps client.
func NewOverpassSource(client overpass.Client, timeoutSecs int) *OverpassSource {
	if timeoutSecs <= 0 {
		timeoutSecs = 180
	}
	return &OverpassSource{Client: client, TimeoutSecs: timeoutSecs}
}

// Streets queries every drivable way in the padded bound and its nodes.
func (s *OverpassSource) Streets(ctx context.Context, bound orb.Bound) (*Elements, error) {
	q := overpass.BBoxQuery(s.TimeoutSecs, mgeo.PadBound(bound, boundaryPad), "way"+DriveFilter)
	res, err := s.Client.Query(ctx, q)
	if err != nil {
		return nil, model.AcquisitionError("network.streets", eris.Wrap(err, "overpass streets query"))
	}
	return ElementsFrom(res), nil
}

// ElementsFrom keeps the nodes and ways of an Overpass result.
func ElementsFrom(res *overpass.Result) *Elements {
	el := &Elements{Nodes: make(map[int64]orb.Point)}
	if res == nil {
		return el
	}
	for id, n := range res.Nodes {
		el.Nodes[id] = orb.Point{n.Lon, n.Lat}
	}
	for _, w := range res.Ways {
		el.Ways = append(el.Ways, Way{ID: w.ID, NodeIDs: w.NodeIDs, Tags: w.Tags})
	}
	return el
}

// Builder turns a boundary into its street graph.
type Builder interface {
	Build(ctx context.Context, boundary orb.MultiPolygon) (*Graph, error)
}

// SourceBuilder fetches streets from a StreetSource and builds the graph.
type SourceBuilder struct {
	Source  StreetSource
	Options BuildOptions
}

// Build fetches and builds the graph of boundary.
func (b *SourceBuilder) Build(ctx context.Context, boundary orb.MultiPolygon) (*Graph, error) {
	if len(boundary) == 0 {
		return nil, model.DegenerateError("network.build", eris.New("empty boundary"))
	}
	el, err := b.Source.Streets(ctx, boundary.Bound())
	if err != nil {
		return nil, err
	}
	return Build(el, boundary, b.Options)
}
