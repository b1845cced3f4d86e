package solver

import (
	"math"

	"github.com/couchcryptid/seismic-locator/internal/domain"
)

// Hypocentre is a trial source position.
type Hypocentre struct {
	Lat     float64
	Lon     float64
	DepthKm float64
}

// Shift moves the hypocentre by the given north and east offsets in km and
// the given depth change, using the local earth radius at its latitude.
func (h Hypocentre) Shift(northKm, eastKm, depthKm float64) Hypocentre {
	r := LocalEarthRadius(h.Lat)
	kmPerDegLat := r * degToRad
	kmPerDegLon := kmPerDegLat * math.Max(math.Cos(h.Lat*degToRad), 1e-6)

	lon := h.Lon + eastKm/kmPerDegLon
	if lon > 180 {
		lon -= 360
	} else if lon < -180 {
		lon += 360
	}
	return Hypocentre{
		Lat:     math.Max(-90, math.Min(90, h.Lat+northKm/kmPerDegLat)),
		Lon:     lon,
		DepthKm: h.DepthKm + depthKm,
	}
}

// Ray describes the straight path from a hypocentre to one station.
type Ray struct {
	DistanceKm float64 // epicentral
	SlantKm    float64
	AzimuthDeg float64 // hypocentre to station
	TakeoffDeg float64 // from downward vertical
	TravelTime float64 // seconds

	// Partial derivatives of the travel time with respect to moving the
	// hypocentre north, east and down, in s/km.
	DTdNorth float64
	DTdEast  float64
	DTdDepth float64
}

// Model is a homogeneous half-space with constant P velocity.
type Model struct {
	VpKmS float64
}

// Trace computes the ray from h to the station. The vertical offset is the
// source depth plus the station elevation.
func (m Model) Trace(h Hypocentre, st domain.Station) Ray {
	d := Distance(h.Lat, h.Lon, st.Lat, st.Lon)
	az := Azimuth(h.Lat, h.Lon, st.Lat, st.Lon)
	dz := h.DepthKm + st.ElevationM/1000
	s := math.Hypot(d, dz)

	ray := Ray{
		DistanceKm: d,
		SlantKm:    s,
		AzimuthDeg: az,
		TakeoffDeg: 180 - math.Atan2(d, dz)/degToRad,
		TravelTime: s / m.VpKmS,
	}
	if s < 1e-9 {
		return ray
	}

	horiz := d / s / m.VpKmS
	ray.DTdNorth = -horiz * math.Cos(az*degToRad)
	ray.DTdEast = -horiz * math.Sin(az*degToRad)
	ray.DTdDepth = dz / s / m.VpKmS
	return ray
}
