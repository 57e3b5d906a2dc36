// Package geo turns raw incident coordinates (SOS pings and field reports)
// into a small set of display clusters for the map view.
//
// The clusterer is a single-pass online algorithm: every point is absorbed
// into the nearest existing cluster when that cluster's centroid lies within
// the distance threshold, otherwise it seeds a new cluster. The result depends
// on input order; callers that need reproducible output must supply points in
// a stable order. Everything in this package is pure and safe for concurrent
// use.
package geo

import "math"

const (
	// EarthRadiusKm is the mean Earth radius used by Distance.
	EarthRadiusKm = 6371.0

	// DefaultThresholdKm is the absorb distance used by the map endpoint.
	DefaultThresholdKm = 0.2

	// maxRadius caps the rendered marker size.
	maxRadius = 40
)

// Kind identifies which record a point was gathered from. Clustering ignores it.
type Kind string

const (
	KindSOS    Kind = "sos"
	KindReport Kind = "report"
)

// Point is a single coordinate in degrees.
type Point struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Kind      Kind    `json:"kind,omitempty"`
}

// Cluster is a running aggregate of absorbed points. Its centroid is the exact
// arithmetic mean of every absorbed latitude and longitude.
type Cluster struct {
	Latitude  float64
	Longitude float64
	Count     int

	sumLat float64
	sumLon float64
}

// Radius returns the marker size for the cluster in display units (not km):
// twice the point count, capped at 40.
func (c Cluster) Radius() int {
	return Radius(c.Count)
}

// Radius maps an absorbed-point count to a marker size: min(2n, 40).
func Radius(n int) int {
	if r := 2 * n; r < maxRadius {
		return r
	}
	return maxRadius
}

func (c *Cluster) absorb(p Point) {
	c.sumLat += p.Latitude
	c.sumLon += p.Longitude
	c.Count++
	c.Latitude = c.sumLat / float64(c.Count)
	c.Longitude = c.sumLon / float64(c.Count)
}

// Distance returns the haversine great-circle distance in kilometres between
// two coordinates given in degrees.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRadians(lat2 - lat1)
	dLon := toRadians(lon2 - lon1)

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)
	a := sinLat*sinLat + math.Cos(toRadians(lat1))*math.Cos(toRadians(lat2))*sinLon*sinLon
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusKm * c
}

// Group clusters points in input order. A point joins the cluster whose
// current centroid is nearest, provided that distance is <= thresholdKm; ties
// go to the earliest-formed cluster. Otherwise the point seeds a new cluster.
//
// The output never has more clusters than input points, and each point is
// counted in exactly one cluster. Runs in O(n·k) for k clusters.
func Group(points []Point, thresholdKm float64) []Cluster {
	clusters := make([]Cluster, 0, len(points))

	for _, p := range points {
		best := -1
		bestDist := math.Inf(1)
		for i := range clusters {
			d := Distance(p.Latitude, p.Longitude, clusters[i].Latitude, clusters[i].Longitude)
			if d < bestDist {
				best, bestDist = i, d
			}
		}

		if best >= 0 && bestDist <= thresholdKm {
			clusters[best].absorb(p)
			continue
		}

		var c Cluster
		c.absorb(p)
		clusters = append(clusters, c)
	}
	return clusters
}

func toRadians(deg float64) float64 { return deg * math.Pi / 180 }

// Marker is the map-layer rendering of a cluster.
type Marker struct {
	Center Point `json:"center"`
	Radius int   `json:"radius"`
}

// Markers renders clusters for the map layer, preserving cluster order.
func Markers(clusters []Cluster) []Marker {
	out := make([]Marker, 0, len(clusters))
	for _, c := range clusters {
		out = append(out, Marker{
			Center: Point{Latitude: c.Latitude, Longitude: c.Longitude},
			Radius: c.Radius(),
		})
	}
	return out
}
