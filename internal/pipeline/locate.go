package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/couchcryptid/seismic-locator/internal/domain"
	"github.com/couchcryptid/seismic-locator/internal/solver"
)

// CycleReport summarises one poll cycle.
type CycleReport struct {
	ID       string
	Picks    int
	Dropped  int
	Clusters int
	Located  int
	Failed   int
	Pruned   int
	Origins  []domain.Origin
}

// RunOnce executes a single cycle: refresh stations if needed, fetch picks
// within the lookback window, associate them, and solve and persist each
// candidate cluster. Clusters the solver cannot locate are skipped; storage
// errors are returned after the remaining clusters have been attempted.
func (p *Pipeline) RunOnce(ctx context.Context) (CycleReport, error) {
	report := CycleReport{ID: uuid.NewString()}
	logger := p.logger.With("cycle_id", report.ID)
	start := p.clock.Now()
	p.metrics.CyclesTotal.Inc()

	err := p.cycle(ctx, logger, &report)
	p.metrics.CycleDuration.Observe(p.clock.Since(start).Seconds())
	if err != nil {
		if ctx.Err() == nil {
			p.metrics.CycleErrors.Inc()
		}
		return report, err
	}

	p.ready.Store(true)
	level := slog.LevelDebug
	if report.Clusters > 0 {
		level = slog.LevelInfo
	}
	logger.Log(ctx, level, "cycle complete",
		"picks", report.Picks,
		"dropped", report.Dropped,
		"clusters", report.Clusters,
		"located", report.Located,
		"failed", report.Failed,
		"pruned", report.Pruned,
		"duration", p.clock.Since(start),
	)
	return report, nil
}

func (p *Pipeline) cycle(ctx context.Context, logger *slog.Logger, report *CycleReport) error {
	if p.stations.Stale() {
		if err := p.refreshStations(ctx, logger, "stale"); err != nil {
			return err
		}
	}

	since := p.clock.Now().Add(-p.settings.Lookback)
	picks, err := p.store.FetchPicksSince(ctx, since)
	if err != nil {
		return fmt.Errorf("fetch picks: %w", err)
	}
	report.Picks = len(picks)
	p.metrics.PicksFetched.Add(float64(len(picks)))

	if p.hasUnknownStation(picks) {
		if err := p.refreshStations(ctx, logger, "unknown_station"); err != nil {
			return err
		}
	}
	known := p.dropUnknownStations(picks, logger)
	report.Dropped = len(picks) - len(known)

	clusters := domain.Associate(known, p.settings.Association, logger)
	report.Clusters = len(clusters)
	p.metrics.ClustersFormed.Add(float64(len(clusters)))

	claimed := make(map[string]struct{}, len(clusters))
	var persistErr error
	for _, c := range clusters {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.locate(ctx, logger, c, claimed, report); err != nil {
			persistErr = errors.Join(persistErr, err)
		}
	}
	return persistErr
}

func (p *Pipeline) refreshStations(ctx context.Context, logger *slog.Logger, trigger string) error {
	if err := p.stations.Refresh(ctx); err != nil {
		p.metrics.StationRefreshErr.Inc()
		return err
	}
	p.metrics.StationRefreshes.WithLabelValues(trigger).Inc()
	p.metrics.StationCacheSize.Set(float64(p.stations.Len()))
	logger.Debug("station cache refreshed", "trigger", trigger, "stations", p.stations.Len())
	return nil
}

func (p *Pipeline) hasUnknownStation(picks []domain.PhasePick) bool {
	for _, pk := range picks {
		if _, ok := p.stations.Lookup(pk.StationKey()); !ok {
			return true
		}
	}
	return false
}

func (p *Pipeline) dropUnknownStations(picks []domain.PhasePick, logger *slog.Logger) []domain.PhasePick {
	known := make([]domain.PhasePick, 0, len(picks))
	unknown := make(map[domain.StationKey]int)
	for _, pk := range picks {
		if _, ok := p.stations.Lookup(pk.StationKey()); !ok {
			unknown[pk.StationKey()]++
			continue
		}
		known = append(known, pk)
	}
	for key, n := range unknown {
		logger.Warn("dropping picks from station missing in registry", "station", key.String(), "picks", n)
		p.metrics.PicksDropped.Add(float64(n))
	}
	return known
}

// locate solves and persists one cluster. Only storage errors are returned.
func (p *Pipeline) locate(ctx context.Context, logger *slog.Logger, c domain.Cluster, claimed map[string]struct{}, report *CycleReport) error {
	holders, err := p.store.LookupAssociationKeys(ctx, c.PickIDs())
	if err != nil {
		p.metrics.PersistErrors.Inc()
		return fmt.Errorf("lookup association keys: %w", err)
	}
	key := domain.ResolveAssociationKey(c, holders)
	if _, taken := claimed[key]; taken {
		// Two clusters this cycle descend from the same origin; the later one
		// becomes a new event instead of overwriting the first.
		key = domain.AssociationKey(c)
	}
	clog := logger.With("association_key", key)

	res, err := p.solver.Locate(p.observations(c))
	if err != nil {
		reason := domain.FailureReason(err)
		report.Failed++
		p.metrics.SolveFailures.WithLabelValues(reason).Inc()
		clog.Info("cluster not located",
			"reason", reason,
			"error", err,
			"picks", len(c.Picks),
			"reference_time", c.ReferenceTime,
		)
		return nil
	}

	origin := domain.NewOrigin(key, res.Origin)
	saved, err := p.store.SaveOrigin(ctx, origin, p.settings.Association.MinStations)
	if err != nil {
		p.metrics.PersistErrors.Inc()
		clog.Error("persist origin failed", "error", err)
		return fmt.Errorf("persist origin %s: %w", key, err)
	}
	claimed[key] = struct{}{}

	origin.ID = saved.OriginID
	for i := range origin.Arrivals {
		origin.Arrivals[i].OriginID = saved.OriginID
	}
	report.Located++
	report.Pruned += len(saved.Pruned)
	report.Origins = append(report.Origins, origin)

	p.metrics.OriginsSaved.Inc()
	p.metrics.OriginsPruned.Add(float64(len(saved.Pruned)))
	p.metrics.OutliersRemoved.Add(float64(res.Rejected))
	p.metrics.OriginRMS.Observe(origin.RMSSeconds)

	for _, pruned := range saved.Pruned {
		clog.Info("origin pruned after losing picks", "pruned_key", pruned)
	}
	clog.Info("origin located",
		"origin_id", saved.OriginID,
		"created", saved.Created,
		"origin_ts", origin.Time,
		"lat", origin.Lat,
		"lon", origin.Lon,
		"depth_km", origin.DepthKm,
		"rms_seconds", origin.RMSSeconds,
		"gap_deg", origin.GapDeg,
		"secondary_gap_deg", res.SecondaryGapDeg,
		"n_picks", origin.NumPicks,
		"n_stations", origin.NumStations,
		"iterations", res.Iterations,
		"fixed_depth", res.FixedDepth,
		"rejected", res.Rejected,
	)

	p.notify(ctx, clog, origin)
	return nil
}

func (p *Pipeline) observations(c domain.Cluster) []solver.Observation {
	obs := make([]solver.Observation, 0, len(c.Picks))
	for _, pk := range c.Picks {
		st, ok := p.stations.Lookup(pk.StationKey())
		if !ok {
			continue
		}
		obs = append(obs, solver.Observation{Pick: pk, Station: st})
	}
	return obs
}

// notify publishes the origin. Failures are logged and counted; the origin is
// already committed.
func (p *Pipeline) notify(ctx context.Context, logger *slog.Logger, origin domain.Origin) {
	if p.notifier == nil {
		return
	}
	if err := p.notifier.PublishOrigin(ctx, origin); err != nil {
		p.metrics.Notifications.WithLabelValues("error").Inc()
		logger.Warn("publish origin failed", "error", err)
		return
	}
	p.metrics.Notifications.WithLabelValues("success").Inc()
}
