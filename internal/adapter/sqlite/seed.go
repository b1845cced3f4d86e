package sqlite

import (
	"context"
	"fmt"

	"github.com/couchcryptid/seismic-locator/internal/domain"
)

// UpsertStations inserts or updates registry entries.
func (s *Store) UpsertStations(ctx context.Context, stations []domain.Station) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	for _, st := range stations {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO stations (net, sta, loc, lat, lon, elev_m)
VALUES (?,?,?,?,?,?)
ON CONFLICT (net, sta, loc) DO UPDATE
SET lat = excluded.lat, lon = excluded.lon, elev_m = excluded.elev_m`,
			st.Network, st.Station, st.Location, st.Lat, st.Lon, st.ElevationM,
		); err != nil {
			return fmt.Errorf("upsert station %s: %w", st.Key(), err)
		}
	}
	return tx.Commit()
}

// InsertPicks appends picks and returns them with their assigned ids.
func (s *Store) InsertPicks(ctx context.Context, picks []domain.PhasePick) ([]domain.PhasePick, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	out := make([]domain.PhasePick, len(picks))
	copy(out, picks)
	for i, p := range out {
		r, err := tx.ExecContext(ctx, `
INSERT INTO phase_picks (ts, phase, score, net, sta, loc, chan)
VALUES (?,?,?,?,?,?,?)`,
			toMicros(p.Time), p.Phase, p.Score, p.Network, p.Station, p.Location, p.Channel,
		)
		if err != nil {
			return nil, fmt.Errorf("insert pick: %w", err)
		}
		if out[i].ID, err = r.LastInsertId(); err != nil {
			return nil, fmt.Errorf("insert pick: %w", err)
		}
	}
	return out, tx.Commit()
}
