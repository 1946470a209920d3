package network

import (
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

// Way is an OSM way: an ordered list of node references with tags.
type Way struct {
	ID      int64
	NodeIDs []int64
	Tags    map[string]string
}

// Elements is the raw OSM data returned by a street source.
type Elements struct {
	Nodes map[int64]orb.Point
	Ways  []Way
}

// Empty reports whether there is nothing to build a graph from.
func (e *Elements) Empty() bool {
	return e == nil || len(e.Ways) == 0 || len(e.Nodes) == 0
}

var excludedHighways = map[string]bool{
	"abandoned": true, "bridleway": true, "bus_guideway": true, "construction": true,
	"corridor": true, "cycleway": true, "elevator": true, "escalator": true,
	"footway": true, "no": true, "path": true, "pedestrian": true, "planned": true,
	"platform": true, "proposed": true, "raceway": true, "razed": true,
	"service": true, "steps": true, "track": true,
}

var excludedServices = map[string]bool{
	"alley": true, "driveway": true, "emergency_access": true, "parking": true,
	"parking_aisle": true, "private": true,
}

// DriveFilter is the Overpass QL tag filter for public drivable streets.
const DriveFilter = `["highway"]["area"!~"yes"]` +
	`["highway"!~"abandoned|bridleway|bus_guideway|construction|corridor|cycleway|elevator|escalator|footway|no|path|pedestrian|planned|platform|proposed|raceway|razed|service|steps|track"]` +
	`["motor_vehicle"!~"no"]["motorcar"!~"no"]` +
	`["service"!~"alley|driveway|emergency_access|parking|parking_aisle|private"]`

// Drivable applies DriveFilter to a way's tags.
func Drivable(tags map[string]string) bool {
	hw, ok := tags["highway"]
	if !ok || excludedHighways[hw] {
		return false
	}
	if tags["area"] == "yes" || tags["motor_vehicle"] == "no" || tags["motorcar"] == "no" {
		return false
	}
	return !excludedServices[tags["service"]]
}

// onewayDirection returns 1 for forward-only, -1 for reverse-only and 0 for
// two-way streets.
func onewayDirection(tags map[string]string) int {
	switch strings.ToLower(tags["oneway"]) {
	case "yes", "true", "1":
		return 1
	case "-1", "reverse":
		return -1
	case "no", "false", "0":
		return 0
	}
	if tags["junction"] == "roundabout" || tags["junction"] == "circular" {
		return 1
	}
	return 0
}

// parseNumber reads the leading number of an OSM tag value such as
// "2", "3;2" or "7.5 m". ok is false when no number is present.
func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, ";,"); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "m"))
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
