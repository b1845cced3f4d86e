package solver

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/couchcryptid/seismic-locator/internal/domain"
)

const (
	initialDepthKm      = 10.0
	maxDepthKm          = 80.0
	originTimeLead      = 2.0 // seconds before the earliest arrival
	maxHorizontalStepKm = 50.0
	maxDepthStepKm      = 10.0
	convergenceKm       = 1e-3
	maxStepHalvings     = 10
	stationaryRMS       = 1e-4 // seconds
	gradientTolerance   = 1e-3
)

// Params configures the origin solver.
type Params struct {
	VpKmS         float64
	MinStations   int
	MaxResidual   time.Duration
	MaxIterations int
}

// Observation pairs a pick with the station that produced it.
type Observation struct {
	Pick    domain.PhasePick
	Station domain.Station
}

// Result is a solved origin plus solver diagnostics. The origin carries no
// association key or timestamps yet.
type Result struct {
	Origin          domain.Origin
	Iterations      int
	FixedDepth      bool
	Rejected        int
	SecondaryGapDeg float64
}

// Solver locates hypocentres with Geiger's method: iterative linearised least
// squares of arrival-time residuals against a constant-velocity model.
type Solver struct {
	params Params
	model  Model
	logger *slog.Logger
}

// New creates a Solver.
func New(params Params, logger *slog.Logger) *Solver {
	return &Solver{
		params: params,
		model:  Model{VpKmS: params.VpKmS},
		logger: logger,
	}
}

// estimate is a trial solution. t0 is seconds relative to the problem's
// reference time.
type estimate struct {
	hypo Hypocentre
	t0   float64
}

type fit struct {
	est        estimate
	iterations int
	fixedDepth bool
	rms        float64
}

// problem holds the observations with arrival times as seconds relative to
// the earliest arrival, which keeps the normal equations well scaled.
type problem struct {
	obs   []Observation
	times []float64
	ref   time.Time
}

func newProblem(obs []Observation) problem {
	ref := obs[0].Pick.Time
	for _, o := range obs[1:] {
		if o.Pick.Time.Before(ref) {
			ref = o.Pick.Time
		}
	}
	times := make([]float64, len(obs))
	for i, o := range obs {
		times[i] = o.Pick.Time.Sub(ref).Seconds()
	}
	return problem{obs: obs, times: times, ref: ref}
}

func (p problem) stationCount(used []bool) int {
	seen := make(map[domain.StationKey]struct{}, len(p.obs))
	for i, o := range p.obs {
		if used[i] {
			seen[o.Station.Key()] = struct{}{}
		}
	}
	return len(seen)
}

// initialGuess places the source under the centroid of the used stations,
// at the default depth, shortly before the earliest used arrival.
func (p problem) initialGuess(used []bool) estimate {
	var lat, lon float64
	var n int
	earliest := math.Inf(1)
	for i, o := range p.obs {
		if !used[i] {
			continue
		}
		lat += o.Station.Lat
		lon += o.Station.Lon
		earliest = math.Min(earliest, p.times[i])
		n++
	}
	return estimate{
		hypo: Hypocentre{Lat: lat / float64(n), Lon: lon / float64(n), DepthKm: initialDepthKm},
		t0:   earliest - originTimeLead,
	}
}

// residuals returns observed minus predicted arrival time for every
// observation, with the rays used to predict them.
func (p problem) residuals(m Model, est estimate) ([]float64, []Ray) {
	res := make([]float64, len(p.obs))
	rays := make([]Ray, len(p.obs))
	for i, o := range p.obs {
		rays[i] = m.Trace(est.hypo, o.Station)
		res[i] = p.times[i] - (est.t0 + rays[i].TravelTime)
	}
	return res, rays
}

func sumSquares(res []float64, used []bool) (float64, int) {
	var ss float64
	var n int
	for i, r := range res {
		if used[i] {
			ss += r * r
			n++
		}
	}
	return ss, n
}

func rms(res []float64, used []bool) float64 {
	ss, n := sumSquares(res, used)
	if n == 0 {
		return 0
	}
	return math.Sqrt(ss / float64(n))
}

// Locate solves for the hypocentre of the observations, rejecting outliers
// one at a time until every used residual is within the configured maximum.
func (s *Solver) Locate(obs []Observation) (Result, error) {
	if len(obs) == 0 {
		return Result{}, fmt.Errorf("%w: no observations", domain.ErrInsufficientStations)
	}

	p := newProblem(obs)
	used := make([]bool, len(obs))
	for i := range used {
		used[i] = true
	}
	if n := p.stationCount(used); n < s.params.MinStations {
		return Result{}, fmt.Errorf("%w: %d stations, need %d", domain.ErrInsufficientStations, n, s.params.MinStations)
	}

	f, err := s.invert(p, used)
	if err != nil {
		return Result{}, err
	}

	maxResidual := s.params.MaxResidual.Seconds()
	rejected := 0
	for {
		res, _ := p.residuals(s.model, f.est)
		if !exceeds(res, used, maxResidual) {
			break
		}
		idx, next, err := s.rejectOne(p, used)
		if err != nil {
			return Result{}, err
		}
		s.logger.Debug("arrival rejected as outlier",
			"pick_id", p.obs[idx].Pick.ID,
			"station", p.obs[idx].Station.Key().String(),
			"residual_seconds", res[idx],
			"rms_after", next.rms,
		)
		used[idx] = false
		f = next
		rejected++
	}

	return s.result(p, f, used, rejected), nil
}

func exceeds(res []float64, used []bool, limit float64) bool {
	for i, r := range res {
		if used[i] && math.Abs(r) > limit {
			return true
		}
	}
	return false
}

// rejectOne finds the used arrival whose removal gives the lowest RMS
// re-solve. It returns that arrival's index and the re-solved fit.
func (s *Solver) rejectOne(p problem, used []bool) (int, fit, error) {
	best := -1
	var bestFit fit
	var lastErr error

	for i := range p.obs {
		if !used[i] {
			continue
		}
		candidate := make([]bool, len(used))
		copy(candidate, used)
		candidate[i] = false

		if n := p.stationCount(candidate); n < s.params.MinStations {
			return 0, fit{}, fmt.Errorf("%w: %d stations, need %d", domain.ErrInsufficientAfterOutliers, n, s.params.MinStations)
		}

		f, err := s.invert(p, candidate)
		if err != nil {
			lastErr = err
			continue
		}
		if best < 0 || f.rms < bestFit.rms {
			best, bestFit = i, f
		}
	}

	if best < 0 {
		return 0, fit{}, fmt.Errorf("%w: %w", domain.ErrInsufficientAfterOutliers, lastErr)
	}
	return best, bestFit, nil
}

// invert runs the full four-parameter inversion, falling back to a fixed-depth
// inversion when there are too few arrivals or the system is singular.
func (s *Solver) invert(p problem, used []bool) (fit, error) {
	start := p.initialGuess(used)
	n := 0
	for _, u := range used {
		if u {
			n++
		}
	}

	if n >= 4 {
		f, err := s.gaussNewton(p, used, start, false)
		if err == nil {
			return f, nil
		}
		if !errors.Is(err, domain.ErrSingularMatrix) {
			return fit{}, err
		}
		s.logger.Debug("full inversion singular, fixing depth", "arrivals", n, "depth_km", initialDepthKm)
	}

	if n < 3 {
		return fit{}, fmt.Errorf("%w: %d arrivals", domain.ErrInsufficientGeometry, n)
	}
	f, err := s.gaussNewton(p, used, start, true)
	if errors.Is(err, domain.ErrSingularMatrix) {
		return fit{}, fmt.Errorf("%w: %w", domain.ErrInsufficientGeometry, err)
	}
	return f, err
}

// gaussNewton iterates from start until the applied step falls below the
// convergence tolerance. Each step solves the normal equations, is bounded,
// and is halved until the residual sum of squares does not increase. A step
// that cannot be made to descend from a point that is not stationary means
// the linearisation is ill-conditioned, which is reported as a singular
// system so the caller can fix the depth.
func (s *Solver) gaussNewton(p problem, used []bool, start estimate, fixDepth bool) (fit, error) {
	est := start
	k := 4
	if fixDepth {
		est.hypo.DepthKm = initialDepthKm
		k = 3
	}

	for iter := 1; iter <= s.params.MaxIterations; iter++ {
		res, rays := p.residuals(s.model, est)
		cost, n := sumSquares(res, used)

		normal := make([][]float64, k)
		for i := range normal {
			normal[i] = make([]float64, k)
		}
		rhs := make([]float64, k)
		row := make([]float64, 4)
		for i := range p.obs {
			if !used[i] {
				continue
			}
			row[0], row[1], row[2], row[3] = 1, rays[i].DTdNorth, rays[i].DTdEast, rays[i].DTdDepth
			for a := 0; a < k; a++ {
				rhs[a] += row[a] * res[i]
				for b := 0; b < k; b++ {
					normal[a][b] += row[a] * row[b]
				}
			}
		}

		delta, err := solveNormal(normal, rhs)
		if err != nil {
			return fit{}, err
		}
		var dz float64
		if !fixDepth {
			dz = delta[3]
		}
		dt, dn, de, dz := boundStep(delta[0], delta[1], delta[2], dz)

		next, ok := s.backtrack(p, used, est, cost, dt, dn, de, dz)
		if !ok {
			if stationary(normal, rhs, cost, n) {
				return s.converged(p, used, est, iter, fixDepth), nil
			}
			return fit{}, fmt.Errorf("%w: no descent at iteration %d, rms %.3f s",
				domain.ErrSingularMatrix, iter, math.Sqrt(cost/float64(n)))
		}

		norm := stepNorm(est, next, s.params.VpKmS)
		est = next
		if norm < convergenceKm {
			return s.converged(p, used, est, iter, fixDepth), nil
		}
	}

	return fit{}, fmt.Errorf("%w after %d iterations", domain.ErrDidNotConverge, s.params.MaxIterations)
}

func (s *Solver) converged(p problem, used []bool, est estimate, iterations int, fixDepth bool) fit {
	res, _ := p.residuals(s.model, est)
	return fit{est: est, iterations: iterations, fixedDepth: fixDepth, rms: rms(res, used)}
}

func (s *Solver) backtrack(p problem, used []bool, est estimate, cost, dt, dn, de, dz float64) (estimate, bool) {
	lambda := 1.0
	for h := 0; h < maxStepHalvings; h++ {
		trial := applyStep(est, lambda*dt, lambda*dn, lambda*de, lambda*dz)
		res, _ := p.residuals(s.model, trial)
		if c, _ := sumSquares(res, used); c <= cost {
			return trial, true
		}
		lambda /= 2
	}
	return est, false
}

// stationary reports whether the residuals are negligible or orthogonal to
// every column of the Jacobian, i.e. the gradient of the misfit vanishes.
func stationary(normal [][]float64, rhs []float64, cost float64, n int) bool {
	if n == 0 || math.Sqrt(cost/float64(n)) < stationaryRMS {
		return true
	}
	norm := math.Sqrt(cost)
	for j := range rhs {
		if math.Abs(rhs[j]) > gradientTolerance*math.Sqrt(normal[j][j])*norm {
			return false
		}
	}
	return true
}

// boundStep scales the whole step by one factor so that neither the
// horizontal nor the depth change exceeds its limit. The direction, including
// the origin-time component, is preserved.
func boundStep(dt, dn, de, dz float64) (float64, float64, float64, float64) {
	f := 1.0
	if h := math.Hypot(dn, de); h > maxHorizontalStepKm {
		f = maxHorizontalStepKm / h
	}
	if a := math.Abs(dz); a*f > maxDepthStepKm {
		f = maxDepthStepKm / a
	}
	return dt * f, dn * f, de * f, dz * f
}

func applyStep(est estimate, dt, dn, de, dz float64) estimate {
	hypo := est.hypo.Shift(dn, de, dz)
	hypo.DepthKm = math.Max(0, math.Min(maxDepthKm, hypo.DepthKm))
	return estimate{hypo: hypo, t0: est.t0 + dt}
}

// stepNorm measures the applied step in km, with the origin-time change
// scaled by the velocity.
func stepNorm(from, to estimate, vp float64) float64 {
	horiz := Distance(from.hypo.Lat, from.hypo.Lon, to.hypo.Lat, to.hypo.Lon)
	dz := to.hypo.DepthKm - from.hypo.DepthKm
	dt := (to.t0 - from.t0) * vp
	return math.Sqrt(horiz*horiz + dz*dz + dt*dt)
}

func (s *Solver) result(p problem, f fit, used []bool, rejected int) Result {
	res, rays := p.residuals(s.model, f.est)

	arrivals := make([]domain.OriginArrival, len(p.obs))
	azimuths := make([]float64, 0, len(p.obs))
	for i, o := range p.obs {
		pickID := o.Pick.ID
		weight := 0.0
		if used[i] {
			weight = 1
			azimuths = append(azimuths, rays[i].AzimuthDeg)
		}
		arrivals[i] = domain.OriginArrival{
			PickID:              &pickID,
			Phase:               o.Pick.Phase,
			Time:                o.Pick.Time,
			Network:             o.Pick.Network,
			Station:             o.Pick.Station,
			Location:            o.Pick.Location,
			Channel:             o.Pick.Channel,
			PredictedTravelTime: rays[i].TravelTime,
			ResidualSeconds:     res[i],
			DistanceKm:          rays[i].DistanceKm,
			AzimuthDeg:          rays[i].AzimuthDeg,
			TakeoffDeg:          rays[i].TakeoffDeg,
			Weight:              weight,
			Used:                used[i],
		}
	}

	rmsSeconds, gapDeg := ArrivalStats(arrivals)
	originTime := p.ref.Add(time.Duration(math.Round(f.est.t0 * float64(time.Second)))).Round(time.Microsecond)

	return Result{
		Origin: domain.Origin{
			Time:        originTime.UTC(),
			Lat:         f.est.hypo.Lat,
			Lon:         f.est.hypo.Lon,
			DepthKm:     f.est.hypo.DepthKm,
			RMSSeconds:  rmsSeconds,
			GapDeg:      gapDeg,
			NumPicks:    len(p.obs),
			NumStations: domain.UsedStationCount(arrivals),
			Arrivals:    arrivals,
		},
		Iterations:      f.iterations,
		FixedDepth:      f.fixedDepth,
		Rejected:        rejected,
		SecondaryGapDeg: SecondaryGap(azimuths),
	}
}

// ArrivalStats returns the RMS residual and the azimuthal gap over the used
// arrivals of an origin.
func ArrivalStats(arrivals []domain.OriginArrival) (rmsSeconds, gapDeg float64) {
	var ss float64
	azimuths := make([]float64, 0, len(arrivals))
	for _, a := range arrivals {
		if a.Used {
			ss += a.ResidualSeconds * a.ResidualSeconds
			azimuths = append(azimuths, a.AzimuthDeg)
		}
	}
	if len(azimuths) > 0 {
		rmsSeconds = math.Sqrt(ss / float64(len(azimuths)))
	}
	return rmsSeconds, AzimuthalGap(azimuths)
}
