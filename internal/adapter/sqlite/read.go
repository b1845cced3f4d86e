package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/couchcryptid/seismic-locator/internal/domain"
)

// FetchStations returns the full station registry.
func (s *Store) FetchStations(ctx context.Context) ([]domain.Station, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT net, sta, loc, lat, lon, elev_m FROM stations ORDER BY net, sta, loc`)
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

// FetchPicksSince returns P picks with a timestamp at or after since.
func (s *Store) FetchPicksSince(ctx context.Context, since time.Time) ([]domain.PhasePick, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, ts, phase, score, net, sta, loc, chan
FROM phase_picks
WHERE ts >= ? AND UPPER(phase) = 'P'
ORDER BY ts, id`, toMicros(since))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	picks := make([]domain.PhasePick, 0)
	for rows.Next() {
		var (
			p     domain.PhasePick
			ts    int64
			score sql.NullFloat64
		)
		if err := rows.Scan(&p.ID, &ts, &p.Phase, &score, &p.Network, &p.Station, &p.Location, &p.Channel); err != nil {
			return nil, err
		}
		p.Time = fromMicros(ts)
		if score.Valid {
			v := score.Float64
			p.Score = &v
		}
		picks = append(picks, p)
	}
	return picks, rows.Err()
}

// LookupAssociationKeys maps pick ids to the key of the origin holding them.
func (s *Store) LookupAssociationKeys(ctx context.Context, pickIDs []int64) (map[int64]string, error) {
	result := make(map[int64]string, len(pickIDs))
	if len(pickIDs) == 0 {
		return result, nil
	}

	in, args := inClause(pickIDs)
	rows, err := s.db.QueryContext(ctx, `
SELECT a.phase_pick_id, o.association_key
FROM origin_arrivals a
JOIN origins o ON o.id = a.origin_id
WHERE a.phase_pick_id IN `+in, args...)
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

// ListOrigins returns origins newest first, without arrivals.
func (s *Store) ListOrigins(ctx context.Context, f domain.OriginFilter) ([]domain.Origin, error) {
	since, until := int64(math.MinInt64), int64(math.MaxInt64)
	if !f.Since.IsZero() {
		since = toMicros(f.Since)
	}
	if !f.Until.IsZero() {
		until = toMicros(f.Until)
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT `+originColumns+`
FROM origins
WHERE origin_ts >= ? AND origin_ts < ?
ORDER BY origin_ts DESC, id DESC
LIMIT ?`, since, until, f.EffectiveLimit())
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

// GetOrigin returns the origin with the given association key and its arrivals.
func (s *Store) GetOrigin(ctx context.Context, key string) (domain.Origin, error) {
	o, err := scanOrigin(s.db.QueryRowContext(ctx, `SELECT `+originColumns+` FROM origins WHERE association_key = ?`, key))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Origin{}, fmt.Errorf("origin %s: %w", key, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Origin{}, err
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, origin_id, phase_pick_id, phase, ts, net, sta, loc, chan,
       tt_pred_seconds, residual_seconds, distance_km, azimuth_deg, takeoff_deg, weight, used
FROM origin_arrivals
WHERE origin_id = ?
ORDER BY id`, o.ID)
	if err != nil {
		return domain.Origin{}, err
	}
	defer rows.Close()

	o.Arrivals = make([]domain.OriginArrival, 0)
	for rows.Next() {
		var (
			a      domain.OriginArrival
			pickID sql.NullInt64
			ts     int64
		)
		if err := rows.Scan(
			&a.ID, &a.OriginID, &pickID, &a.Phase, &ts,
			&a.Network, &a.Station, &a.Location, &a.Channel,
			&a.PredictedTravelTime, &a.ResidualSeconds, &a.DistanceKm,
			&a.AzimuthDeg, &a.TakeoffDeg, &a.Weight, &a.Used,
		); err != nil {
			return domain.Origin{}, err
		}
		a.Time = fromMicros(ts)
		if pickID.Valid {
			id := pickID.Int64
			a.PickID = &id
		}
		o.Arrivals = append(o.Arrivals, a)
	}
	return o, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOrigin(row scanner) (domain.Origin, error) {
	var (
		o                        domain.Origin
		ts, createdAt, updatedAt int64
	)
	if err := row.Scan(
		&o.ID, &o.AssociationKey, &ts, &o.Lat, &o.Lon, &o.DepthKm,
		&o.RMSSeconds, &o.GapDeg, &o.NumPicks, &o.NumStations, &o.Status,
		&createdAt, &updatedAt,
	); err != nil {
		return domain.Origin{}, err
	}
	o.Time = fromMicros(ts)
	o.CreatedAt = fromMicros(createdAt)
	o.UpdatedAt = fromMicros(updatedAt)
	return o, nil
}
