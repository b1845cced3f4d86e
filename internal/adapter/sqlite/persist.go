package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/couchcryptid/seismic-locator/internal/domain"
	"github.com/couchcryptid/seismic-locator/internal/solver"
)

// SaveOrigin upserts the origin on its association key and replaces its
// arrival set, all in one transaction. Picks held by other origins are moved
// to this one; an origin left with fewer than minStations used stations is
// deleted.
func (s *Store) SaveOrigin(ctx context.Context, origin domain.Origin, minStations int) (domain.SaveResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.SaveResult{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	res, err := upsertOrigin(ctx, tx, origin)
	if err != nil {
		return domain.SaveResult{}, err
	}

	pruned, err := stealPicks(ctx, tx, res.OriginID, pickIDs(origin.Arrivals), minStations, toMicros(origin.UpdatedAt))
	if err != nil {
		return domain.SaveResult{}, err
	}
	res.Pruned = pruned

	if _, err := tx.ExecContext(ctx, `DELETE FROM origin_arrivals WHERE origin_id = ?`, res.OriginID); err != nil {
		return domain.SaveResult{}, fmt.Errorf("delete arrivals: %w", err)
	}
	if err := insertArrivals(ctx, tx, res.OriginID, origin.Arrivals); err != nil {
		return domain.SaveResult{}, err
	}

	if err := tx.Commit(); err != nil {
		return domain.SaveResult{}, fmt.Errorf("commit: %w", err)
	}
	return res, nil
}

func upsertOrigin(ctx context.Context, tx *sql.Tx, o domain.Origin) (domain.SaveResult, error) {
	var res domain.SaveResult
	err := tx.QueryRowContext(ctx, `SELECT id FROM origins WHERE association_key = ?`, o.AssociationKey).Scan(&res.OriginID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		r, err := tx.ExecContext(ctx, `
INSERT INTO origins (association_key, origin_ts, lat, lon, depth_km, rms_seconds, gap_deg,
                     n_picks, n_stations, status, created_at, updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
			o.AssociationKey, toMicros(o.Time), o.Lat, o.Lon, o.DepthKm, o.RMSSeconds, o.GapDeg,
			o.NumPicks, o.NumStations, o.Status, toMicros(o.CreatedAt), toMicros(o.UpdatedAt))
		if err != nil {
			return res, fmt.Errorf("insert origin: %w", err)
		}
		if res.OriginID, err = r.LastInsertId(); err != nil {
			return res, fmt.Errorf("insert origin: %w", err)
		}
		res.Created = true
		return res, nil
	case err != nil:
		return res, fmt.Errorf("find origin: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
UPDATE origins
SET origin_ts = ?, lat = ?, lon = ?, depth_km = ?, rms_seconds = ?, gap_deg = ?,
    n_picks = ?, n_stations = ?, status = ?, updated_at = ?
WHERE id = ?`,
		toMicros(o.Time), o.Lat, o.Lon, o.DepthKm, o.RMSSeconds, o.GapDeg,
		o.NumPicks, o.NumStations, o.Status, toMicros(o.UpdatedAt), res.OriginID,
	); err != nil {
		return res, fmt.Errorf("update origin: %w", err)
	}
	return res, nil
}

// stealPicks removes the given picks from every other origin and re-checks
// those origins, returning the keys of the ones deleted. Survivors get their
// counts, RMS and gap recomputed from the arrivals they keep.
func stealPicks(ctx context.Context, tx *sql.Tx, originID int64, ids []int64, minStations int, updatedAt int64) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	in, args := inClause(ids)
	rows, err := tx.QueryContext(ctx, `
SELECT DISTINCT origin_id FROM origin_arrivals
WHERE origin_id <> ? AND phase_pick_id IN `+in, append([]any{originID}, args...)...)
	if err != nil {
		return nil, fmt.Errorf("find holders: %w", err)
	}
	var affected []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("find holders: %w", err)
		}
		affected = append(affected, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find holders: %w", err)
	}
	if len(affected) == 0 {
		return nil, nil
	}

	if _, err := tx.ExecContext(ctx, `
DELETE FROM origin_arrivals
WHERE origin_id <> ? AND phase_pick_id IN `+in, append([]any{originID}, args...)...); err != nil {
		return nil, fmt.Errorf("steal arrivals: %w", err)
	}

	var pruned []string
	for _, id := range affected {
		remaining, err := remainingArrivals(ctx, tx, id)
		if err != nil {
			return nil, fmt.Errorf("recount origin %d: %w", id, err)
		}
		nStations := domain.UsedStationCount(remaining)

		if nStations < minStations {
			var key string
			if err := tx.QueryRowContext(ctx, `SELECT association_key FROM origins WHERE id = ?`, id).Scan(&key); err != nil {
				return nil, fmt.Errorf("prune origin %d: %w", id, err)
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM origin_arrivals WHERE origin_id = ?`, id); err != nil {
				return nil, fmt.Errorf("prune origin %d: %w", id, err)
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM origins WHERE id = ?`, id); err != nil {
				return nil, fmt.Errorf("prune origin %d: %w", id, err)
			}
			pruned = append(pruned, key)
			continue
		}

		rmsSeconds, gapDeg := solver.ArrivalStats(remaining)
		if _, err := tx.ExecContext(ctx, `
UPDATE origins
SET n_picks = ?, n_stations = ?, rms_seconds = ?, gap_deg = ?, updated_at = ?
WHERE id = ?`,
			len(remaining), nStations, rmsSeconds, gapDeg, updatedAt, id,
		); err != nil {
			return nil, fmt.Errorf("update origin %d: %w", id, err)
		}
	}
	return pruned, nil
}

func remainingArrivals(ctx context.Context, tx *sql.Tx, originID int64) ([]domain.OriginArrival, error) {
	rows, err := tx.QueryContext(ctx, `
SELECT net, sta, loc, residual_seconds, azimuth_deg, used
FROM origin_arrivals
WHERE origin_id = ?`, originID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var arrivals []domain.OriginArrival
	for rows.Next() {
		var a domain.OriginArrival
		if err := rows.Scan(&a.Network, &a.Station, &a.Location, &a.ResidualSeconds, &a.AzimuthDeg, &a.Used); err != nil {
			return nil, err
		}
		arrivals = append(arrivals, a)
	}
	return arrivals, rows.Err()
}

func insertArrivals(ctx context.Context, tx *sql.Tx, originID int64, arrivals []domain.OriginArrival) error {
	if len(arrivals) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO origin_arrivals (origin_id, phase_pick_id, phase, ts, net, sta, loc, chan,
                             tt_pred_seconds, residual_seconds, distance_km, azimuth_deg,
                             takeoff_deg, weight, used)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return fmt.Errorf("prepare arrival insert: %w", err)
	}
	defer stmt.Close()

	for _, a := range arrivals {
		var pickID sql.NullInt64
		if a.PickID != nil {
			pickID = sql.NullInt64{Int64: *a.PickID, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx,
			originID, pickID, a.Phase, toMicros(a.Time), a.Network, a.Station, a.Location, a.Channel,
			a.PredictedTravelTime, a.ResidualSeconds, a.DistanceKm, a.AzimuthDeg,
			a.TakeoffDeg, a.Weight, a.Used,
		); err != nil {
			return fmt.Errorf("insert arrival: %w", err)
		}
	}
	return nil
}

func pickIDs(arrivals []domain.OriginArrival) []int64 {
	ids := make([]int64, 0, len(arrivals))
	for _, a := range arrivals {
		if a.PickID != nil {
			ids = append(ids, *a.PickID)
		}
	}
	return ids
}
