// Package synth builds synthetic station networks and P picks for a known
// hypocentre. The operator CLI uses it to seed demo data; tests use it to
// check that the locator recovers the source.
package synth

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/couchcryptid/seismic-locator/internal/domain"
	"github.com/couchcryptid/seismic-locator/internal/solver"
)

// Event describes the source to synthesise picks for.
type Event struct {
	Source    solver.Hypocentre
	Time      time.Time
	VpKmS     float64
	Channel   string
	Score     *float64
	Noise     time.Duration // standard deviation of gaussian pick noise
	NoiseSeed uint64
}

// Ring places n stations on a circle of the given radius around center,
// named <prefix>01, <prefix>02, ... clockwise from north.
func Ring(center solver.Hypocentre, network, prefix string, n int, radiusKm float64) []domain.Station {
	stations := make([]domain.Station, n)
	for i := range stations {
		theta := 2 * math.Pi * float64(i) / float64(n)
		p := center.Shift(radiusKm*math.Cos(theta), radiusKm*math.Sin(theta), 0)
		stations[i] = domain.Station{
			Network: network,
			Station: fmt.Sprintf("%s%02d", prefix, i+1),
			Lat:     p.Lat,
			Lon:     p.Lon,
		}
	}
	return stations
}

// Picks returns one P pick per station, timed by straight-ray travel time
// from the event source. Pick ids are left zero for the store to assign.
func Picks(ev Event, stations []domain.Station) []domain.PhasePick {
	model := solver.Model{VpKmS: ev.VpKmS}
	channel := ev.Channel
	if channel == "" {
		channel = "HHZ"
	}

	var rng *rand.Rand
	if ev.Noise > 0 {
		rng = rand.New(rand.NewPCG(ev.NoiseSeed, ev.NoiseSeed^0x9e3779b97f4a7c15))
	}

	picks := make([]domain.PhasePick, len(stations))
	for i, st := range stations {
		tt := time.Duration(model.Trace(ev.Source, st).TravelTime * float64(time.Second))
		if rng != nil {
			tt += time.Duration(rng.NormFloat64() * float64(ev.Noise))
		}
		picks[i] = domain.PhasePick{
			Time:     ev.Time.Add(tt).Truncate(time.Microsecond),
			Phase:    "P",
			Score:    ev.Score,
			Network:  st.Network,
			Station:  st.Station,
			Location: st.Location,
			Channel:  channel,
		}
	}
	return picks
}
