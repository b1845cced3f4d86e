package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/seismic-locator/internal/config"
	"github.com/couchcryptid/seismic-locator/internal/domain"
	"github.com/couchcryptid/seismic-locator/internal/observability"
	"github.com/couchcryptid/seismic-locator/internal/solver"
)

// StationSource reads the station registry.
type StationSource interface {
	FetchStations(ctx context.Context) ([]domain.Station, error)
}

// PickSource reads P picks at or after the given time, ordered by time.
type PickSource interface {
	FetchPicksSince(ctx context.Context, since time.Time) ([]domain.PhasePick, error)
}

// OriginStore persists solved origins.
type OriginStore interface {
	// LookupAssociationKeys maps each of the given pick ids that is currently
	// an arrival of a persisted origin to that origin's association key.
	LookupAssociationKeys(ctx context.Context, pickIDs []int64) (map[int64]string, error)
	// SaveOrigin upserts the origin and replaces its arrivals in one
	// transaction.
	SaveOrigin(ctx context.Context, origin domain.Origin, minStations int) (domain.SaveResult, error)
}

// Store is everything the poll loop reads from and writes to.
type Store interface {
	StationSource
	PickSource
	OriginStore
}

// Notifier announces persisted origins to downstream consumers.
type Notifier interface {
	PublishOrigin(ctx context.Context, origin domain.Origin) error
}

// Settings are the poll loop parameters.
type Settings struct {
	PollInterval   time.Duration
	Lookback       time.Duration
	StationRefresh time.Duration
	Association    domain.AssociationParams
	Solver         solver.Params
}

// SettingsFromConfig maps service configuration onto poll loop settings.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		PollInterval:   cfg.PollInterval,
		Lookback:       cfg.PickLookback,
		StationRefresh: cfg.StationRefreshInterval,
		Association: domain.AssociationParams{
			Window:      cfg.AssociationWindow,
			MinStations: cfg.MinStations,
			MinScore:    cfg.MinPickScore,
		},
		Solver: solver.Params{
			VpKmS:         cfg.VpKmS,
			MinStations:   cfg.MinStations,
			MaxResidual:   cfg.MaxResidual,
			MaxIterations: cfg.MaxIterations,
		},
	}
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithClock replaces the real clock, for tests.
func WithClock(c clockwork.Clock) Option {
	return func(p *Pipeline) { p.clock = c }
}

// WithNotifier publishes every persisted origin through n.
func WithNotifier(n Notifier) Option {
	return func(p *Pipeline) { p.notifier = n }
}

// maxBackoff caps the wait between failing cycles.
const maxBackoff = time.Minute

// Pipeline runs the locate loop: fetch picks, associate, solve, persist.
type Pipeline struct {
	store    Store
	stations *StationCache
	solver   *solver.Solver
	notifier Notifier
	settings Settings
	clock    clockwork.Clock
	logger   *slog.Logger
	metrics  *observability.Metrics
	ready    atomic.Bool
}

// New creates a Pipeline over the given store.
func New(store Store, settings Settings, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:    store,
		solver:   solver.New(settings.Solver, logger),
		settings: settings,
		clock:    clockwork.NewRealClock(),
		logger:   logger,
		metrics:  metrics,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.stations = NewStationCache(store, settings.StationRefresh, p.clock)
	return p
}

// Stations exposes the station registry cache.
func (p *Pipeline) Stations() *StationCache {
	return p.stations
}

// Ready reports whether at least one cycle has completed successfully.
func (p *Pipeline) Ready() bool {
	return p.ready.Load()
}

// CheckReadiness returns nil once a cycle has completed successfully,
// or an error describing why the service is not yet ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("locator has not completed a cycle yet")
	}
	return nil
}

// Run executes cycles until the context is cancelled. Cycles run one at a
// time; a failing cycle is retried after an exponential backoff.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("locator started",
		"poll_interval", p.settings.PollInterval,
		"lookback", p.settings.Lookback,
		"window", p.settings.Association.Window,
		"min_stations", p.settings.Association.MinStations,
	)
	p.metrics.LocatorRunning.Set(1)
	defer p.metrics.LocatorRunning.Set(0)

	// Backoff starts at the poll interval and doubles per failed cycle.
	backoff := p.settings.PollInterval

	for {
		if ctx.Err() != nil {
			p.logger.Info("locator stopping", "reason", ctx.Err())
			return nil
		}

		wait := p.settings.PollInterval
		if _, err := p.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				p.logger.Info("locator stopping", "reason", ctx.Err())
				return nil
			}
			p.logger.Error("cycle failed", "error", err, "retry_in", backoff)
			wait = backoff
			backoff = nextBackoff(backoff, maxBackoff)
		} else {
			backoff = p.settings.PollInterval
		}

		if !sleepWithContext(ctx, p.clock, wait) {
			p.logger.Info("locator stopping", "reason", ctx.Err())
			return nil
		}
	}
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, clock clockwork.Clock, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}
