package domain

import "errors"

// Failure reasons reported by the origin solver. The poll loop drops a
// cluster that fails with any of them for the current cycle.
var (
	// ErrInsufficientStations means the cluster has fewer usable stations than required.
	ErrInsufficientStations = errors.New("insufficient stations")

	// ErrInsufficientGeometry means neither the full nor the fixed-depth
	// inversion is well conditioned.
	ErrInsufficientGeometry = errors.New("insufficient geometry")

	// ErrDidNotConverge means the iteration bound was reached before the update norm fell below tolerance.
	ErrDidNotConverge = errors.New("did not converge")

	// ErrInsufficientAfterOutliers means outlier rejection left too few stations.
	ErrInsufficientAfterOutliers = errors.New("insufficient stations after outlier rejection")

	// ErrSingularMatrix is returned by the linear solve for a (near) singular system.
	ErrSingularMatrix = errors.New("singular matrix")

	// ErrNotFound is returned by stores when an origin does not exist.
	ErrNotFound = errors.New("not found")
)

// FailureReason maps a solver error to a short label for logs and metrics.
func FailureReason(err error) string {
	switch {
	case errors.Is(err, ErrInsufficientAfterOutliers):
		return "outliers"
	case errors.Is(err, ErrInsufficientStations):
		return "stations"
	case errors.Is(err, ErrInsufficientGeometry):
		return "geometry"
	case errors.Is(err, ErrDidNotConverge):
		return "convergence"
	default:
		return "other"
	}
}
