package domain

import (
	"time"
)

// StatusPreliminary is the status assigned to every automatically solved origin.
const StatusPreliminary = "preliminary"

// StationKey identifies a station by network, station code and location code.
type StationKey struct {
	Network  string
	Station  string
	Location string
}

// String renders the key as NET.STA.LOC.
func (k StationKey) String() string {
	return k.Network + "." + k.Station + "." + k.Location
}

// Less orders station keys lexicographically by network, station, location.
func (k StationKey) Less(o StationKey) bool {
	if k.Network != o.Network {
		return k.Network < o.Network
	}
	if k.Station != o.Station {
		return k.Station < o.Station
	}
	return k.Location < o.Location
}

// Station is an entry of the station registry.
type Station struct {
	Network    string  `json:"net"`
	Station    string  `json:"sta"`
	Location   string  `json:"loc"`
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	ElevationM float64 `json:"elev_m"`
}

// Key returns the station's registry key.
func (s Station) Key() StationKey {
	return StationKey{Network: s.Network, Station: s.Station, Location: s.Location}
}

// PhasePick is a detected arrival at one station. Score is nil when the
// detector did not report one.
type PhasePick struct {
	ID       int64     `json:"id"`
	Time     time.Time `json:"ts"`
	Phase    string    `json:"phase"`
	Score    *float64  `json:"score,omitempty"`
	Network  string    `json:"net"`
	Station  string    `json:"sta"`
	Location string    `json:"loc"`
	Channel  string    `json:"chan"`
}

// StationKey returns the registry key of the station that produced the pick.
func (p PhasePick) StationKey() StationKey {
	return StationKey{Network: p.Network, Station: p.Station, Location: p.Location}
}

// Cluster is a candidate event: picks from distinct stations within one
// association window, ordered by time.
type Cluster struct {
	Picks         []PhasePick
	ReferenceTime time.Time
}

// Seed returns the earliest pick of the cluster.
func (c Cluster) Seed() PhasePick {
	return c.Picks[0]
}

// StationCount returns the number of distinct stations in the cluster.
func (c Cluster) StationCount() int {
	seen := make(map[StationKey]struct{}, len(c.Picks))
	for _, p := range c.Picks {
		seen[p.StationKey()] = struct{}{}
	}
	return len(seen)
}

// PickIDs returns the identifiers of the cluster's picks in cluster order.
func (c Cluster) PickIDs() []int64 {
	ids := make([]int64, len(c.Picks))
	for i, p := range c.Picks {
		ids[i] = p.ID
	}
	return ids
}

// Origin is a solved hypocentre together with the arrivals it was solved from.
type Origin struct {
	ID             int64           `json:"id,omitempty"`
	AssociationKey string          `json:"association_key"`
	Time           time.Time       `json:"origin_ts"`
	Lat            float64         `json:"lat"`
	Lon            float64         `json:"lon"`
	DepthKm        float64         `json:"depth_km"`
	RMSSeconds     float64         `json:"rms_seconds"`
	GapDeg         float64         `json:"gap_deg"`
	NumPicks       int             `json:"n_picks"`
	NumStations    int             `json:"n_stations"`
	Status         string          `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	Arrivals       []OriginArrival `json:"arrivals,omitempty"`
}

// OriginArrival is one pick as seen from a solved origin. Arrivals rejected as
// outliers are kept with Used=false and zero weight.
type OriginArrival struct {
	ID                  int64     `json:"id,omitempty"`
	OriginID            int64     `json:"origin_id,omitempty"`
	PickID              *int64    `json:"phase_pick_id,omitempty"`
	Phase               string    `json:"phase"`
	Time                time.Time `json:"ts"`
	Network             string    `json:"net"`
	Station             string    `json:"sta"`
	Location            string    `json:"loc"`
	Channel             string    `json:"chan"`
	PredictedTravelTime float64   `json:"tt_pred_seconds"`
	ResidualSeconds     float64   `json:"residual_seconds"`
	DistanceKm          float64   `json:"distance_km"`
	AzimuthDeg          float64   `json:"azimuth_deg"`
	TakeoffDeg          float64   `json:"takeoff_deg"`
	Weight              float64   `json:"weight"`
	Used                bool      `json:"used"`
}

// StationKey returns the registry key of the arrival's station.
func (a OriginArrival) StationKey() StationKey {
	return StationKey{Network: a.Network, Station: a.Station, Location: a.Location}
}

// UsedStationCount returns the number of distinct stations among used arrivals.
func UsedStationCount(arrivals []OriginArrival) int {
	seen := make(map[StationKey]struct{}, len(arrivals))
	for _, a := range arrivals {
		if a.Used {
			seen[a.StationKey()] = struct{}{}
		}
	}
	return len(seen)
}

// NewOrigin stamps a freshly solved origin with the association key, the
// preliminary status and the current time.
func NewOrigin(key string, o Origin) Origin {
	now := clock.Now().UTC()
	o.AssociationKey = key
	o.Status = StatusPreliminary
	o.CreatedAt = now
	o.UpdatedAt = now
	return o
}

// SaveResult reports what persisting one origin changed.
type SaveResult struct {
	OriginID int64
	Created  bool
	// Pruned lists the keys of other origins deleted because the picks taken
	// from them left fewer used stations than the minimum.
	Pruned []string
}

// OriginFilter selects persisted origins by origin time. Zero bounds are open.
type OriginFilter struct {
	Since time.Time
	Until time.Time
	Limit int
}

// Origin listing limits.
const (
	DefaultOriginLimit = 100
	MaxOriginLimit     = 1000
)

// EffectiveLimit returns the row limit to apply, defaulting unset values and
// capping large ones.
func (f OriginFilter) EffectiveLimit() int {
	switch {
	case f.Limit <= 0:
		return DefaultOriginLimit
	case f.Limit > MaxOriginLimit:
		return MaxOriginLimit
	default:
		return f.Limit
	}
}
