package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/couchcryptid/seismic-locator/internal/domain"
)

const fetchStationsSQL = `
SELECT net, sta, loc, lat, lon, elev_m
FROM stations
ORDER BY net, sta, loc`

// FetchStations returns the full station registry.
func (s *Store) FetchStations(ctx context.Context) ([]domain.Station, error) {
	rows, err := s.pool.Query(ctx, fetchStationsSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stations := make([]domain.Station, 0)
	for rows.Next() {
		var st domain.Station
		if err := rows.Scan(&st.Network, &st.Station, &st.Location, &st.Lat, &st.Lon, &st.ElevationM); err != nil {
			return nil, err
		}
		stations = append(stations, st)
	}
	return stations, rows.Err()
}

const fetchPicksSQL = `
SELECT id, ts, phase, score, net, sta, loc, chan
FROM phase_picks
WHERE ts >= $1 AND UPPER(phase) = 'P'
ORDER BY ts, id`

// FetchPicksSince returns P picks with a timestamp at or after since.
func (s *Store) FetchPicksSince(ctx context.Context, since time.Time) ([]domain.PhasePick, error) {
	rows, err := s.pool.Query(ctx, fetchPicksSQL, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	picks := make([]domain.PhasePick, 0)
	for rows.Next() {
		var p domain.PhasePick
		if err := rows.Scan(&p.ID, &p.Time, &p.Phase, &p.Score, &p.Network, &p.Station, &p.Location, &p.Channel); err != nil {
			return nil, err
		}
		p.Time = p.Time.UTC()
		picks = append(picks, p)
	}
	return picks, rows.Err()
}

const lookupKeysSQL = `
SELECT a.phase_pick_id, o.association_key
FROM origin_arrivals a
JOIN origins o ON o.id = a.origin_id
WHERE a.phase_pick_id = ANY($1)`

// LookupAssociationKeys maps pick ids to the key of the origin holding them.
func (s *Store) LookupAssociationKeys(ctx context.Context, pickIDs []int64) (map[int64]string, error) {
	result := make(map[int64]string, len(pickIDs))
	if len(pickIDs) == 0 {
		return result, nil
	}

	rows, err := s.pool.Query(ctx, lookupKeysSQL, pickIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var key string
		if err := rows.Scan(&id, &key); err != nil {
			return nil, err
		}
		result[id] = key
	}
	return result, rows.Err()
}

const originColumns = `id, association_key, origin_ts, lat, lon, depth_km, rms_seconds, gap_deg,
       n_picks, n_stations, status, created_at, updated_at`

const listOriginsSQL = `
SELECT ` + originColumns + `
FROM origins
WHERE ($1::timestamptz IS NULL OR origin_ts >= $1)
  AND ($2::timestamptz IS NULL OR origin_ts < $2)
ORDER BY origin_ts DESC, id DESC
LIMIT $3`

// ListOrigins returns origins newest first, without arrivals.
func (s *Store) ListOrigins(ctx context.Context, f domain.OriginFilter) ([]domain.Origin, error) {
	rows, err := s.pool.Query(ctx, listOriginsSQL, nullableTime(f.Since), nullableTime(f.Until), f.EffectiveLimit())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	origins := make([]domain.Origin, 0)
	for rows.Next() {
		o, err := scanOrigin(rows)
		if err != nil {
			return nil, err
		}
		origins = append(origins, o)
	}
	return origins, rows.Err()
}

const getOriginSQL = `
SELECT ` + originColumns + `
FROM origins
WHERE association_key = $1`

const listArrivalsSQL = `
SELECT id, origin_id, phase_pick_id, phase, ts, net, sta, loc, chan,
       tt_pred_seconds, residual_seconds, distance_km, azimuth_deg, takeoff_deg, weight, used
FROM origin_arrivals
WHERE origin_id = $1
ORDER BY id`

// GetOrigin returns the origin with the given association key and its arrivals.
func (s *Store) GetOrigin(ctx context.Context, key string) (domain.Origin, error) {
	o, err := scanOrigin(s.pool.QueryRow(ctx, getOriginSQL, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Origin{}, fmt.Errorf("origin %s: %w", key, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Origin{}, err
	}

	rows, err := s.pool.Query(ctx, listArrivalsSQL, o.ID)
	if err != nil {
		return domain.Origin{}, err
	}
	defer rows.Close()

	o.Arrivals = make([]domain.OriginArrival, 0)
	for rows.Next() {
		var a domain.OriginArrival
		if err := rows.Scan(
			&a.ID, &a.OriginID, &a.PickID, &a.Phase, &a.Time,
			&a.Network, &a.Station, &a.Location, &a.Channel,
			&a.PredictedTravelTime, &a.ResidualSeconds, &a.DistanceKm,
			&a.AzimuthDeg, &a.TakeoffDeg, &a.Weight, &a.Used,
		); err != nil {
			return domain.Origin{}, err
		}
		a.Time = a.Time.UTC()
		o.Arrivals = append(o.Arrivals, a)
	}
	return o, rows.Err()
}

func scanOrigin(row pgx.Row) (domain.Origin, error) {
	var o domain.Origin
	err := row.Scan(
		&o.ID, &o.AssociationKey, &o.Time, &o.Lat, &o.Lon, &o.DepthKm,
		&o.RMSSeconds, &o.GapDeg, &o.NumPicks, &o.NumStations, &o.Status,
		&o.CreatedAt, &o.UpdatedAt,
	)
	o.Time = o.Time.UTC()
	o.CreatedAt = o.CreatedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()
	return o, err
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
