package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/couchcryptid/seismic-locator/internal/domain"
)

// UpsertStations inserts or updates registry entries. Used by locatorctl and
// tests to seed a development database.
func (s *Store) UpsertStations(ctx context.Context, stations []domain.Station) error {
	if len(stations) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `INSERT INTO stations (net, sta, loc, lat, lon, elev_m)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (net, sta, loc) DO UPDATE
SET lat = EXCLUDED.lat,
    lon = EXCLUDED.lon,
    elev_m = EXCLUDED.elev_m`

	for _, st := range stations {
		batch.Queue(query, st.Network, st.Station, st.Location, st.Lat, st.Lon, st.ElevationM)
	}

	res := s.pool.SendBatch(ctx, batch)
	defer res.Close()

	for range stations {
		if _, err := res.Exec(); err != nil {
			return fmt.Errorf("upsert station: %w", err)
		}
	}
	return nil
}

// InsertPicks appends picks and returns them with their assigned ids.
func (s *Store) InsertPicks(ctx context.Context, picks []domain.PhasePick) ([]domain.PhasePick, error) {
	if len(picks) == 0 {
		return nil, nil
	}

	batch := &pgx.Batch{}
	query := `INSERT INTO phase_picks (ts, phase, score, net, sta, loc, chan)
VALUES ($1,$2,$3,$4,$5,$6,$7)
RETURNING id`

	for _, p := range picks {
		batch.Queue(query, p.Time, p.Phase, p.Score, p.Network, p.Station, p.Location, p.Channel)
	}

	res := s.pool.SendBatch(ctx, batch)
	defer res.Close()

	out := make([]domain.PhasePick, len(picks))
	copy(out, picks)
	for i := range out {
		if err := res.QueryRow().Scan(&out[i].ID); err != nil {
			return nil, fmt.Errorf("insert pick: %w", err)
		}
	}
	return out, nil
}
