package solver

import (
	"math"
	"sort"
)

// WGS-84 ellipsoid.
const (
	wgs84A = 6378.137
	wgs84F = 1 / 298.257223563
)

const degToRad = math.Pi / 180

// LocalEarthRadius returns the Gaussian mean radius of curvature of the WGS-84
// ellipsoid at the given latitude, in km.
func LocalEarthRadius(latDeg float64) float64 {
	e2 := wgs84F * (2 - wgs84F)
	s := math.Sin(latDeg * degToRad)
	return wgs84A * math.Sqrt(1-e2) / (1 - e2*s*s)
}

// Distance returns the great-circle distance in km between two points,
// computed with the haversine formula on the local earth radius at their mean
// latitude.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	r := LocalEarthRadius((lat1 + lat2) / 2)
	p1 := lat1 * degToRad
	p2 := lat2 * degToRad
	dp := (lat2 - lat1) * degToRad
	dl := (lon2 - lon1) * degToRad

	a := math.Sin(dp/2)*math.Sin(dp/2) + math.Cos(p1)*math.Cos(p2)*math.Sin(dl/2)*math.Sin(dl/2)
	return 2 * r * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// Azimuth returns the initial bearing from point 1 to point 2 in degrees
// clockwise from north, in [0, 360).
func Azimuth(lat1, lon1, lat2, lon2 float64) float64 {
	p1 := lat1 * degToRad
	p2 := lat2 * degToRad
	dl := (lon2 - lon1) * degToRad

	x := math.Sin(dl) * math.Cos(p2)
	y := math.Cos(p1)*math.Sin(p2) - math.Sin(p1)*math.Cos(p2)*math.Cos(dl)
	return normalizeAzimuth(math.Atan2(x, y) / degToRad)
}

func normalizeAzimuth(az float64) float64 {
	az = math.Mod(az, 360)
	if az < 0 {
		az += 360
	}
	return az
}

// AzimuthalGap returns the largest angle between azimuthally adjacent
// stations. Fewer than two azimuths leave the full circle open.
func AzimuthalGap(azimuths []float64) float64 {
	if len(azimuths) < 2 {
		return 360
	}
	sorted := sortedAzimuths(azimuths)
	gap := 360 + sorted[0] - sorted[len(sorted)-1]
	for i := 1; i < len(sorted); i++ {
		gap = math.Max(gap, sorted[i]-sorted[i-1])
	}
	return gap
}

// SecondaryGap returns the largest azimuthal gap left after removing any one
// station.
func SecondaryGap(azimuths []float64) float64 {
	n := len(azimuths)
	if n < 3 {
		return 360
	}
	sorted := sortedAzimuths(azimuths)
	var gap float64
	for i := 0; i < n; i++ {
		j := (i + 2) % n
		g := sorted[j] - sorted[i]
		if j < i {
			g += 360
		}
		gap = math.Max(gap, g)
	}
	return gap
}

func sortedAzimuths(azimuths []float64) []float64 {
	sorted := make([]float64, len(azimuths))
	for i, az := range azimuths {
		sorted[i] = normalizeAzimuth(az)
	}
	sort.Float64s(sorted)
	return sorted
}
