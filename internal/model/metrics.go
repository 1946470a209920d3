package model

// Polygon-intrinsic columns filled before any stage runs.
const (
	MetricAreaM2 = "area_m2"
	MetricLon    = "lon"
	MetricLat    = "lat"
)

// Scale group.
const (
	MetricFractalDimension  = "fractal-dimension"
	MetricCompactnessArea   = "compactness-area"
	MetricDiameterPeriphery = "diameter-periphery"
)

// Spatial group.
const (
	MetricOrientationOrder     = "shannon_entropy-street_orientation_order"
	MetricAvgStreetLength      = "avg_street_length"
	MetricAvgBetweenness       = "avg_betweenness_centrality"
	MetricAvgStreetsPerNode    = "avg_streets_per_node"
	MetricAvgStreetsProportion = "avg_proportion_streets_per_node"
	MetricIntersectionDensity  = "intersection_density"
	MetricStreetDensity        = "street_density"
	MetricAvgCircuity          = "avg_circuity"
	MetricAvgNodeConnectivity  = "avg_node_connectivity"
	MetricAvgPageRank          = "avg_PageRank"
	MetricAvgLocalCloseness    = "avg_local_closeness_centrality"
	MetricAvgGlobalCloseness   = "avg_global_closeness_centrality"
	MetricAvgStraightness      = "avg_straightness_centrality"
	MetricAvgNodeDegree        = "avg_node_degree"
)

// Built group.
const (
	MetricAvgBuildingArea        = "avg_building_area"
	MetricAvgBuildingCompactness = "avg_building_compactness"
	MetricAvgTessellationArea    = "avg_tesselation_area"
	MetricAvgBuildingOrientation = "avg_building_orientation"
	MetricAvgCellOrientation     = "avg_tessellation_orientation"
	MetricAvgCellAlignment       = "avg_building_cell_alignment"
	MetricAvgStreetAlignment     = "avg_street_alignment"
	MetricAvgProfileWidth        = "avg_width-street_profile"
	MetricAvgProfileWidthDev     = "avg_width_deviations-street_profile"
	MetricAvgProfileOpenness     = "avg_openness-street_profile"
	MetricAvgProfileHeight       = "avg_heights-street_profile"
	MetricAvgProfileHeightDev    = "avg_heights_deviations-street_profile"
	MetricAvgProfileRatio        = "avg_profile-street_profile"
	MetricAvgBuildingHeight      = "avg_building_height"
	MetricAvgBuildingVolume      = "avg_building_volume"
)

// Infra group.
const (
	MetricTotalArea         = "total_area"
	MetricTotalBuiltArea    = "total_built_area"
	MetricTotalStreetLength = "total_street_length"
)

// Group names a metric family. Each group is computed and isolated as a unit.
type Group string

const (
	GroupScale   Group = "scale"
	GroupSpatial Group = "spatial"
	GroupBuilt   Group = "built"
	GroupInfra   Group = "infra"
)

var baseMetrics = map[Group][]string{
	GroupScale:   {MetricFractalDimension},
	GroupSpatial: {MetricOrientationOrder, MetricAvgStreetLength, MetricAvgBetweenness},
	GroupBuilt:   {MetricAvgBuildingArea, MetricAvgBuildingCompactness},
	GroupInfra:   {MetricTotalArea, MetricTotalBuiltArea, MetricTotalStreetLength},
}

var extraMetrics = map[Group][]string{
	GroupScale: {MetricCompactnessArea, MetricDiameterPeriphery},
	GroupSpatial: {
		MetricAvgStreetsPerNode, MetricAvgStreetsProportion, MetricIntersectionDensity,
		MetricStreetDensity, MetricAvgCircuity, MetricAvgNodeConnectivity, MetricAvgPageRank,
		MetricAvgLocalCloseness, MetricAvgGlobalCloseness, MetricAvgStraightness,
		MetricAvgNodeDegree,
	},
	GroupBuilt: {
		MetricAvgTessellationArea, MetricAvgBuildingOrientation, MetricAvgCellOrientation,
		MetricAvgCellAlignment, MetricAvgStreetAlignment, MetricAvgProfileWidth,
		MetricAvgProfileWidthDev, MetricAvgProfileOpenness, MetricAvgProfileHeight,
		MetricAvgProfileHeightDev, MetricAvgProfileRatio, MetricAvgBuildingHeight,
		MetricAvgBuildingVolume,
	},
}

// Groups lists the metric groups in pipeline order.
var Groups = []Group{GroupScale, GroupSpatial, GroupBuilt, GroupInfra}

// GroupMetrics returns the metric names of g for the minimal or full set.
func GroupMetrics(g Group, full bool) []string {
	names := append([]string(nil), baseMetrics[g]...)
	if full {
		names = append(names, extraMetrics[g]...)
	}
	return names
}

// MetricSet returns every metric column for the minimal or full set,
// polygon-intrinsic columns first.
func MetricSet(full bool) []string {
	names := []string{MetricAreaM2, MetricLon, MetricLat}
	for _, g := range Groups {
		names = append(names, GroupMetrics(g, full)...)
	}
	return names
}
