package solver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/seismic-locator/internal/domain"
)

func TestDistance(t *testing.T) {
	// Budapest to Vienna.
	d := Distance(47.4979, 19.0402, 48.2082, 16.3738)
	assert.Greater(t, d, 210.0)
	assert.Less(t, d, 220.0)

	assert.InDelta(t, 0.0, Distance(47, 19, 47, 19), 1e-9)
}

func TestLocalEarthRadius(t *testing.T) {
	equator := LocalEarthRadius(0)
	pole := LocalEarthRadius(90)
	mid := LocalEarthRadius(47.5)

	assert.InDelta(t, 6356.75, equator, 0.5)
	assert.InDelta(t, 6399.59, pole, 0.5)
	assert.Greater(t, mid, equator)
	assert.Less(t, mid, pole)
}

func TestAzimuth(t *testing.T) {
	tests := []struct {
		name     string
		lat, lon float64
		want     float64
	}{
		{"north", 1, 0, 0},
		{"east", 0, 1, 90},
		{"south", -1, 0, 180},
		{"west", 0, -1, 270},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Azimuth(0, 0, tt.lat, tt.lon), 1.0)
		})
	}
}

func TestAzimuthalGap(t *testing.T) {
	tests := []struct {
		name     string
		azimuths []float64
		want     float64
	}{
		{"single station", []float64{45}, 360},
		{"two stations", []float64{0, 180}, 180},
		{"evenly distributed", []float64{0, 90, 180, 270}, 90},
		{"clustered", []float64{10, 20, 30}, 340},
		{"unsorted", []float64{270, 0, 180, 90}, 90},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, AzimuthalGap(tt.azimuths), 1e-9)
		})
	}
}

func TestSecondaryGap(t *testing.T) {
	tests := []struct {
		name     string
		azimuths []float64
		want     float64
	}{
		{"single station", []float64{45}, 360},
		{"two stations", []float64{0, 180}, 360},
		{"three stations", []float64{0, 120, 240}, 240},
		{"four stations", []float64{0, 90, 180, 270}, 180},
		{"clustered", []float64{10, 20, 30, 200}, 340},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, SecondaryGap(tt.azimuths), 1e-9)
		})
	}
}

func TestModelTrace(t *testing.T) {
	m := Model{VpKmS: 6}
	src := Hypocentre{Lat: 47.5, Lon: 19.05, DepthKm: 10}

	t.Run("travel time", func(t *testing.T) {
		east := src.Shift(0, 100, 0)
		ray := m.Trace(src, domain.Station{Lat: east.Lat, Lon: east.Lon})

		assert.InDelta(t, 100, ray.DistanceKm, 0.05)
		assert.InDelta(t, 16.75, ray.TravelTime, 0.1)
		assert.InDelta(t, 90, ray.AzimuthDeg, 1.0)
		assert.InDelta(t, 95.7, ray.TakeoffDeg, 0.1)
	})

	t.Run("station elevation lengthens the path", func(t *testing.T) {
		st := domain.Station{Lat: 47.5, Lon: 19.05}
		low := m.Trace(src, st)
		st.ElevationM = 1000
		high := m.Trace(src, st)

		assert.InDelta(t, 10.0/6, low.TravelTime, 1e-9)
		assert.InDelta(t, 11.0/6, high.TravelTime, 1e-9)
		assert.InDelta(t, 180, high.TakeoffDeg, 1e-9)
	})

	t.Run("derivatives match finite differences", func(t *testing.T) {
		st := domain.Station{Lat: 47.60, Lon: 19.20, ElevationM: 250}
		ray := m.Trace(src, st)
		const h = 1e-3

		north := (m.Trace(src.Shift(h, 0, 0), st).TravelTime - ray.TravelTime) / h
		east := (m.Trace(src.Shift(0, h, 0), st).TravelTime - ray.TravelTime) / h
		down := (m.Trace(src.Shift(0, 0, h), st).TravelTime - ray.TravelTime) / h

		assert.InDelta(t, north, ray.DTdNorth, 1e-4)
		assert.InDelta(t, east, ray.DTdEast, 1e-4)
		assert.InDelta(t, down, ray.DTdDepth, 1e-4)
	})
}

// normalEquations builds JᵀJ and Jᵀ·(J·x) for a design matrix j.
func normalEquations(j [][]float64, x []float64) ([][]float64, []float64) {
	k := len(x)
	n := make([][]float64, k)
	for a := range n {
		n[a] = make([]float64, k)
	}
	g := make([]float64, k)
	for _, row := range j {
		var y float64
		for c := range x {
			y += row[c] * x[c]
		}
		for a := 0; a < k; a++ {
			g[a] += row[a] * y
			for b := 0; b < k; b++ {
				n[a][b] += row[a] * row[b]
			}
		}
	}
	return n, g
}

func TestSolveNormal(t *testing.T) {
	t.Run("badly scaled system", func(t *testing.T) {
		j := [][]float64{
			{1, 0.5, 1e3},
			{1, -0.2, 2e3},
			{1, 0.1, -1e3},
			{1, 0.9, 0},
		}
		want := []float64{1, -2, 1e-3}
		n, g := normalEquations(j, want)

		x, err := solveNormal(n, g)
		require.NoError(t, err)
		for i := range want {
			assert.InDelta(t, want[i], x[i], 1e-9)
		}
	})

	t.Run("proportional columns", func(t *testing.T) {
		n, g := normalEquations([][]float64{{1, 2}, {2, 4}, {3, 6}}, []float64{1, 1})
		_, err := solveNormal(n, g)
		assert.ErrorIs(t, err, domain.ErrSingularMatrix)
	})

	t.Run("nearly proportional columns", func(t *testing.T) {
		j := [][]float64{
			{1, 1 + 1e-6},
			{1, 1 - 1e-6},
			{1, 1 + 1e-6},
			{1, 1 - 1e-6},
		}
		n, g := normalEquations(j, []float64{1, 1})
		_, err := solveNormal(n, g)
		assert.ErrorIs(t, err, domain.ErrSingularMatrix)
	})

	t.Run("zero column", func(t *testing.T) {
		n, g := normalEquations([][]float64{{1, 0}, {2, 0}}, []float64{1, 1})
		_, err := solveNormal(n, g)
		assert.ErrorIs(t, err, domain.ErrSingularMatrix)
	})
}
