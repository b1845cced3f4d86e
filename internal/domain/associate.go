package domain

import (
	"log/slog"
	"sort"
	"time"
)

// AssociationParams controls how picks are grouped into candidate clusters.
type AssociationParams struct {
	Window      time.Duration
	MinStations int
	MinScore    float64
}

// openCluster is a cluster still accepting picks.
type openCluster struct {
	picks    []PhasePick
	ref      time.Time
	stations map[StationKey]struct{}
}

func newOpenCluster(p PhasePick) *openCluster {
	return &openCluster{
		picks:    []PhasePick{p},
		ref:      p.Time,
		stations: map[StationKey]struct{}{p.StationKey(): {}},
	}
}

func (c *openCluster) accepts(p PhasePick) bool {
	_, dup := c.stations[p.StationKey()]
	return !dup
}

func (c *openCluster) add(p PhasePick) {
	c.picks = append(c.picks, p)
	c.stations[p.StationKey()] = struct{}{}
}

// Associate groups picks into candidate clusters.
//
// Picks below the minimum score are dropped (picks without a score are kept),
// and the rest are processed in (time, station, id) order. A pick joins the
// earliest-opened open cluster whose reference time is within the window and
// which has no pick from the same station; otherwise it opens a new cluster.
// A cluster closes once a pick arrives beyond its window, and is promoted to a
// candidate only if it holds picks from at least MinStations stations.
func Associate(picks []PhasePick, params AssociationParams, logger *slog.Logger) []Cluster {
	if len(picks) == 0 {
		return nil
	}

	ordered := filterByScore(picks, params.MinScore, logger)
	sortPicks(ordered)

	var (
		open     []*openCluster
		clusters []Cluster
		rejected int
	)

	closeCluster := func(c *openCluster) {
		cl := Cluster{Picks: c.picks, ReferenceTime: c.ref}
		if cl.StationCount() < params.MinStations {
			rejected++
			logger.Debug("cluster rejected",
				"reference_time", c.ref,
				"stations", len(c.stations),
				"min_stations", params.MinStations,
			)
			return
		}
		clusters = append(clusters, cl)
	}

	for _, p := range ordered {
		still := open[:0]
		for _, c := range open {
			if p.Time.Sub(c.ref) > params.Window {
				closeCluster(c)
				continue
			}
			still = append(still, c)
		}
		open = still

		joined := false
		for _, c := range open {
			if c.accepts(p) {
				c.add(p)
				joined = true
				break
			}
		}
		if !joined {
			open = append(open, newOpenCluster(p))
		}
	}
	for _, c := range open {
		closeCluster(c)
	}

	logger.Debug("association complete",
		"picks", len(picks),
		"scored_picks", len(ordered),
		"clusters", len(clusters),
		"rejected", rejected,
	)
	return clusters
}

func filterByScore(picks []PhasePick, minScore float64, logger *slog.Logger) []PhasePick {
	out := make([]PhasePick, 0, len(picks))
	for _, p := range picks {
		if p.Score == nil {
			logger.Warn("pick has no score, accepting despite score filter", "pick_id", p.ID)
			out = append(out, p)
			continue
		}
		if *p.Score >= minScore {
			out = append(out, p)
		}
	}
	return out
}

// sortPicks orders picks by time, breaking ties by station identity and then id.
func sortPicks(picks []PhasePick) {
	sort.SliceStable(picks, func(i, j int) bool {
		a, b := picks[i], picks[j]
		if !a.Time.Equal(b.Time) {
			return a.Time.Before(b.Time)
		}
		ka, kb := a.StationKey(), b.StationKey()
		if ka != kb {
			return ka.Less(kb)
		}
		return a.ID < b.ID
	})
}
