package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/couchcryptid/seismic-locator/internal/domain"
	"github.com/couchcryptid/seismic-locator/internal/solver"
)

const upsertOriginSQL = `
INSERT INTO origins (association_key, origin_ts, lat, lon, depth_km, rms_seconds, gap_deg,
                     n_picks, n_stations, status, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
ON CONFLICT (association_key) DO UPDATE
SET origin_ts = EXCLUDED.origin_ts,
    lat = EXCLUDED.lat,
    lon = EXCLUDED.lon,
    depth_km = EXCLUDED.depth_km,
    rms_seconds = EXCLUDED.rms_seconds,
    gap_deg = EXCLUDED.gap_deg,
    n_picks = EXCLUDED.n_picks,
    n_stations = EXCLUDED.n_stations,
    status = EXCLUDED.status,
    updated_at = EXCLUDED.updated_at
RETURNING id, (xmax = 0) AS inserted`

const stealArrivalsSQL = `
DELETE FROM origin_arrivals
WHERE phase_pick_id = ANY($1) AND origin_id <> $2
RETURNING origin_id`

const remainingArrivalsSQL = `
SELECT net, sta, loc, residual_seconds, azimuth_deg, used
FROM origin_arrivals
WHERE origin_id = $1`

const restateOriginSQL = `
UPDATE origins
SET n_picks = $2, n_stations = $3, rms_seconds = $4, gap_deg = $5, updated_at = $6
WHERE id = $1`

const insertArrivalSQL = `
INSERT INTO origin_arrivals (origin_id, phase_pick_id, phase, ts, net, sta, loc, chan,
                             tt_pred_seconds, residual_seconds, distance_km, azimuth_deg,
                             takeoff_deg, weight, used)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`

// SaveOrigin upserts the origin on its association key and replaces its
// arrival set, all in one transaction. Picks held by other origins are moved
// to this one; an origin left with fewer than minStations used stations is
// deleted.
func (s *Store) SaveOrigin(ctx context.Context, origin domain.Origin, minStations int) (domain.SaveResult, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.SaveResult{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	var res domain.SaveResult
	if err := tx.QueryRow(ctx, upsertOriginSQL,
		origin.AssociationKey, origin.Time, origin.Lat, origin.Lon, origin.DepthKm,
		origin.RMSSeconds, origin.GapDeg, origin.NumPicks, origin.NumStations,
		origin.Status, origin.CreatedAt, origin.UpdatedAt,
	).Scan(&res.OriginID, &res.Created); err != nil {
		return domain.SaveResult{}, fmt.Errorf("upsert origin: %w", err)
	}

	pruned, err := stealPicks(ctx, tx, res.OriginID, pickIDs(origin.Arrivals), minStations, origin.UpdatedAt)
	if err != nil {
		return domain.SaveResult{}, err
	}
	res.Pruned = pruned

	if _, err := tx.Exec(ctx, `DELETE FROM origin_arrivals WHERE origin_id = $1`, res.OriginID); err != nil {
		return domain.SaveResult{}, fmt.Errorf("delete arrivals: %w", err)
	}
	if err := insertArrivals(ctx, tx, res.OriginID, origin.Arrivals); err != nil {
		return domain.SaveResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.SaveResult{}, fmt.Errorf("commit: %w", err)
	}
	return res, nil
}

// stealPicks removes the given picks from every other origin and re-checks
// those origins, returning the keys of the ones deleted. Survivors get their
// counts, RMS and gap recomputed from the arrivals they keep.
func stealPicks(ctx context.Context, tx pgx.Tx, originID int64, ids []int64, minStations int, updatedAt time.Time) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := tx.Query(ctx, stealArrivalsSQL, ids, originID)
	if err != nil {
		return nil, fmt.Errorf("steal arrivals: %w", err)
	}
	affected, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("steal arrivals: %w", err)
	}

	var pruned []string
	seen := make(map[int64]bool, len(affected))
	for _, id := range affected {
		if seen[id] {
			continue
		}
		seen[id] = true

		rows, err := tx.Query(ctx, remainingArrivalsSQL, id)
		if err != nil {
			return nil, fmt.Errorf("recount origin %d: %w", id, err)
		}
		remaining, err := pgx.CollectRows(rows, scanRemainingArrival)
		if err != nil {
			return nil, fmt.Errorf("recount origin %d: %w", id, err)
		}
		nStations := domain.UsedStationCount(remaining)

		if nStations < minStations {
			var key string
			if err := tx.QueryRow(ctx, `DELETE FROM origins WHERE id = $1 RETURNING association_key`, id).Scan(&key); err != nil {
				return nil, fmt.Errorf("prune origin %d: %w", id, err)
			}
			pruned = append(pruned, key)
			continue
		}
		rmsSeconds, gapDeg := solver.ArrivalStats(remaining)
		if _, err := tx.Exec(ctx, restateOriginSQL,
			id, len(remaining), nStations, rmsSeconds, gapDeg, updatedAt,
		); err != nil {
			return nil, fmt.Errorf("update origin %d: %w", id, err)
		}
	}
	return pruned, nil
}

func scanRemainingArrival(row pgx.CollectableRow) (domain.OriginArrival, error) {
	var a domain.OriginArrival
	err := row.Scan(&a.Network, &a.Station, &a.Location, &a.ResidualSeconds, &a.AzimuthDeg, &a.Used)
	return a, err
}

func insertArrivals(ctx context.Context, tx pgx.Tx, originID int64, arrivals []domain.OriginArrival) error {
	if len(arrivals) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, a := range arrivals {
		batch.Queue(insertArrivalSQL,
			originID, a.PickID, a.Phase, a.Time, a.Network, a.Station, a.Location, a.Channel,
			a.PredictedTravelTime, a.ResidualSeconds, a.DistanceKm, a.AzimuthDeg,
			a.TakeoffDeg, a.Weight, a.Used,
		)
	}

	res := tx.SendBatch(ctx, batch)
	defer res.Close()

	for range arrivals {
		if _, err := res.Exec(); err != nil {
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
