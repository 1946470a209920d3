package overpass

import (
	"fmt"
	"strings"

	"github.com/paulmach/orb"
)

// BBoxQuery builds a JSON query for every selector inside b, recursing down
// so that the nodes of matched ways and the members of matched relations
// are returned too. Selectors are element filters such as
// `way["building"]` or `relation["type"="multipolygon"]["building"]`.
func BBoxQuery(timeoutSecs int, b orb.Bound, selectors ...string) string {
	bbox := fmt.Sprintf("(%.7f,%.7f,%.7f,%.7f)", b.Min.Lat(), b.Min.Lon(), b.Max.Lat(), b.Max.Lon())

	var sb strings.Builder
	fmt.Fprintf(&sb, "[out:json][timeout:%d];(", timeoutSecs)
	for _, s := range selectors {
		sb.WriteString(s)
		sb.WriteString(bbox)
		sb.WriteString(";")
	}
	sb.WriteString(");(._;>;);out body;")
	return sb.String()
}
