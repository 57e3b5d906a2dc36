package geo

import (
	"math"
	"testing"
)

const tol = 1e-6

func near(a, b float64) bool { return math.Abs(a-b) <= tol }

func TestDistance_KnownValues(t *testing.T) {
	if d := Distance(28.6, 77.2, 28.6, 77.2); d != 0 {
		t.Fatalf("distance to self = %v; want 0", d)
	}
	// One degree of latitude along a meridian is R·π/180.
	want := EarthRadiusKm * math.Pi / 180
	if d := Distance(0, 0, 1, 0); !near(d, want) {
		t.Fatalf("Distance(0,0,1,0) = %v; want %v", d, want)
	}
	// Symmetric.
	a := Distance(28.7974, 77.5369, 28.6, 77.2)
	b := Distance(28.6, 77.2, 28.7974, 77.5369)
	if !near(a, b) {
		t.Fatalf("distance not symmetric: %v vs %v", a, b)
	}
	if a < 30 || a > 45 {
		t.Fatalf("Distance between test points = %v km; expected ~39 km", a)
	}
}

func TestRadius(t *testing.T) {
	cases := map[int]int{0: 0, 1: 2, 5: 10, 19: 38, 20: 40, 25: 40, 1000: 40}
	for n, want := range cases {
		if got := Radius(n); got != want {
			t.Errorf("Radius(%d) = %d; want %d", n, got, want)
		}
		if got := (Cluster{Count: n}).Radius(); got != want {
			t.Errorf("Cluster{Count:%d}.Radius() = %d; want %d", n, got, want)
		}
	}
}

func TestGroup_ThreeNearbyPoints_AnyOrder(t *testing.T) {
	pts := []Point{
		{Latitude: 28.7970, Longitude: 77.5370},
		{Latitude: 28.7975, Longitude: 77.5372},
		{Latitude: 28.7972, Longitude: 77.5375},
	}
	wantLat := (pts[0].Latitude + pts[1].Latitude + pts[2].Latitude) / 3
	wantLon := (pts[0].Longitude + pts[1].Longitude + pts[2].Longitude) / 3

	perms := [][3]int{{0, 1, 2}, {0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0}}
	for _, p := range perms {
		in := []Point{pts[p[0]], pts[p[1]], pts[p[2]]}
		got := Group(in, 0.2)
		if len(got) != 1 {
			t.Fatalf("order %v: got %d clusters; want 1", p, len(got))
		}
		if got[0].Count != 3 {
			t.Fatalf("order %v: count = %d; want 3", p, got[0].Count)
		}
		if !near(got[0].Latitude, wantLat) || !near(got[0].Longitude, wantLon) {
			t.Fatalf("order %v: centroid = (%v,%v); want (%v,%v)", p, got[0].Latitude, got[0].Longitude, wantLat, wantLon)
		}
	}
}

func TestGroup_FarPointsStaySeparate(t *testing.T) {
	got := Group([]Point{
		{Latitude: 28.7974, Longitude: 77.5369},
		{Latitude: 28.6, Longitude: 77.2},
	}, 0.2)
	if len(got) != 2 {
		t.Fatalf("got %d clusters; want 2", len(got))
	}
	if got[0].Count != 1 || got[1].Count != 1 {
		t.Fatalf("counts = %d,%d; want 1,1", got[0].Count, got[1].Count)
	}
	if got[0].Latitude != 28.7974 || got[1].Longitude != 77.2 {
		t.Fatalf("seed centroids not preserved: %+v", got)
	}
}

func TestGroup_AbsorbsIntoNearestNotFirst(t *testing.T) {
	// A and B are ~0.28 km apart; the third point is within 0.2 km of both
	// but closer to B.
	got := Group([]Point{
		{Latitude: 0, Longitude: 0},
		{Latitude: 0, Longitude: 0.0025},
		{Latitude: 0, Longitude: 0.0015},
	}, 0.2)
	if len(got) != 2 {
		t.Fatalf("got %d clusters; want 2", len(got))
	}
	if got[0].Count != 1 || got[1].Count != 2 {
		t.Fatalf("counts = %d,%d; want 1,2", got[0].Count, got[1].Count)
	}
	if !near(got[1].Longitude, 0.002) {
		t.Fatalf("B centroid lon = %v; want 0.002", got[1].Longitude)
	}
}

func TestGroup_ThresholdIsInclusive(t *testing.T) {
	d := Distance(0, 0, 0, 0.001)
	got := Group([]Point{{Latitude: 0, Longitude: 0}, {Latitude: 0, Longitude: 0.001}}, d)
	if len(got) != 1 {
		t.Fatalf("point exactly at threshold should be absorbed; got %d clusters", len(got))
	}
}

func TestGroup_EveryPointCountedOnce(t *testing.T) {
	pts := []Point{
		{Latitude: 28.797355, Longitude: 77.53686},
		{Latitude: 28.795077, Longitude: 77.54062},
		{Latitude: 28.796864, Longitude: 77.53910},
		{Latitude: 28.798355, Longitude: 77.53786},
		{Latitude: 28.794077, Longitude: 77.54162},
		{Latitude: 28.797864, Longitude: 77.53810},
		{Latitude: 28.796258, Longitude: 77.54236},
		{Latitude: 28.798915, Longitude: 77.54134},
		{Latitude: 28.797255, Longitude: 77.53676},
		{Latitude: 28.794977, Longitude: 77.54052},
		{Latitude: 28.796764, Longitude: 77.53900},
		{Latitude: 28.795198, Longitude: 77.54126},
		{Latitude: 28.797815, Longitude: 77.54024},
		{Latitude: 28.798455, Longitude: 77.53796},
		{Latitude: 28.794177, Longitude: 77.54172},
		{Latitude: 28.797964, Longitude: 77.53820},
		{Latitude: 28.796358, Longitude: 77.54246},
		{Latitude: 28.799015, Longitude: 77.54144},
		{Latitude: 28.6, Longitude: 77.2, Kind: KindSOS},
	}
	got := Group(pts, DefaultThresholdKm)
	if len(got) == 0 || len(got) > len(pts) {
		t.Fatalf("cluster count %d out of range (1..%d)", len(got), len(pts))
	}
	total := 0
	for _, c := range got {
		total += c.Count
	}
	if total != len(pts) {
		t.Fatalf("sum of counts = %d; want %d", total, len(pts))
	}
}

func TestGroup_Empty(t *testing.T) {
	if got := Group(nil, 0.2); len(got) != 0 {
		t.Fatalf("expected no clusters, got %d", len(got))
	}
}

func TestMarkers(t *testing.T) {
	cs := Group([]Point{
		{Latitude: 1, Longitude: 1},
		{Latitude: 1, Longitude: 1},
		{Latitude: 10, Longitude: 10},
	}, 0.2)
	ms := Markers(cs)
	if len(ms) != 2 {
		t.Fatalf("got %d markers; want 2", len(ms))
	}
	if ms[0].Radius != 4 || ms[1].Radius != 2 {
		t.Fatalf("radii = %d,%d; want 4,2", ms[0].Radius, ms[1].Radius)
	}
	if ms[0].Center.Latitude != 1 || ms[0].Center.Kind != "" {
		t.Fatalf("unexpected marker center %+v", ms[0].Center)
	}
}
