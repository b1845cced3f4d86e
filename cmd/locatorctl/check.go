package main

import (
	"context"
	"fmt"
	"math"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/seismic-locator/internal/domain"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify stored origins against their arrivals",
	Long: `Walk the most recent origins and report any whose stored counts, status,
coordinates or arrivals are inconsistent, or whose picks are also held by
another origin. Exits non-zero when problems are found.`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().Int("limit", domain.MaxOriginLimit, "number of recent origins to check")
	checkCmd.Flags().Int("min-stations", 0, "minimum used stations (default from MIN_STATIONS)")
}

type originReader interface {
	ListOrigins(ctx context.Context, f domain.OriginFilter) ([]domain.Origin, error)
	GetOrigin(ctx context.Context, key string) (domain.Origin, error)
}

func runCheck(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	limit, _ := cmd.Flags().GetInt("limit")
	minStations, _ := cmd.Flags().GetInt("min-stations")

	cfg, b, _, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer b.Close()
	if minStations == 0 {
		minStations = cfg.MinStations
	}

	checked, problems, err := checkStore(ctx, b, limit, minStations)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, p := range problems {
		fmt.Fprintln(out, p)
	}
	fmt.Fprintf(out, "%d origins checked, %d problems\n", checked, len(problems))
	if len(problems) > 0 {
		return fmt.Errorf("%d integrity problems", len(problems))
	}
	return nil
}

func checkStore(ctx context.Context, r originReader, limit, minStations int) (int, []string, error) {
	list, err := r.ListOrigins(ctx, domain.OriginFilter{Limit: limit})
	if err != nil {
		return 0, nil, err
	}

	var problems []string
	holder := make(map[int64]string)
	for _, summary := range list {
		o, err := r.GetOrigin(ctx, summary.AssociationKey)
		if err != nil {
			return 0, nil, err
		}
		for _, p := range checkOrigin(o, minStations) {
			problems = append(problems, o.AssociationKey+": "+p)
		}
		for _, a := range o.Arrivals {
			if a.PickID == nil {
				continue
			}
			if other, ok := holder[*a.PickID]; ok {
				problems = append(problems, fmt.Sprintf("%s: pick %d also held by %s", o.AssociationKey, *a.PickID, other))
				continue
			}
			holder[*a.PickID] = o.AssociationKey
		}
	}
	return len(list), problems, nil
}

// checkOrigin returns the consistency problems of a single origin.
func checkOrigin(o domain.Origin, minStations int) []string {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if o.Status != domain.StatusPreliminary {
		add("status %q, want %q", o.Status, domain.StatusPreliminary)
	}
	if o.NumPicks != len(o.Arrivals) {
		add("n_picks %d but %d arrivals", o.NumPicks, len(o.Arrivals))
	}
	if used := domain.UsedStationCount(o.Arrivals); o.NumStations != used {
		add("n_stations %d but %d used stations", o.NumStations, used)
	}
	if o.NumStations < minStations {
		add("%d used stations, below minimum %d", o.NumStations, minStations)
	}
	if math.Abs(o.Lat) > 90 || math.Abs(o.Lon) > 180 {
		add("coordinates %.4f %.4f out of range", o.Lat, o.Lon)
	}
	if o.DepthKm < 0 {
		add("negative depth %.2f km", o.DepthKm)
	}
	if o.GapDeg < 0 || o.GapDeg > 360 {
		add("gap %.1f out of range", o.GapDeg)
	}
	if o.UpdatedAt.Before(o.CreatedAt) {
		add("updated_at before created_at")
	}

	seen := make(map[int64]bool, len(o.Arrivals))
	for _, a := range o.Arrivals {
		if !a.Used && a.Weight != 0 {
			add("unused arrival %s has weight %.2f", a.StationKey(), a.Weight)
		}
		if a.PickID == nil {
			continue
		}
		if seen[*a.PickID] {
			add("pick %d appears twice", *a.PickID)
		}
		seen[*a.PickID] = true
	}
	return problems
}
