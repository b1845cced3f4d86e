package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/couchcryptid/seismic-locator/internal/domain"
)

var originsCmd = &cobra.Command{
	Use:   "origins [association-key]",
	Short: "List located origins, or show one with its arrivals",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runOrigins,
}

func init() {
	rootCmd.AddCommand(originsCmd)
	originsCmd.Flags().Duration("since", 24*time.Hour, "only origins newer than this")
	originsCmd.Flags().Int("limit", 50, "maximum number of origins")
}

func runOrigins(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	_, b, _, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer b.Close()

	if len(args) == 1 {
		o, err := b.GetOrigin(ctx, args[0])
		if err != nil {
			return err
		}
		printOrigin(cmd, o)
		return nil
	}

	since, _ := cmd.Flags().GetDuration("since")
	limit, _ := cmd.Flags().GetInt("limit")
	origins, err := b.ListOrigins(ctx, domain.OriginFilter{Since: time.Now().Add(-since), Limit: limit})
	if err != nil {
		return err
	}
	if len(origins) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no origins")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tORIGIN TIME\tLAT\tLON\tDEPTH KM\tRMS S\tPICKS\tSTATIONS\tUPDATED")
	for _, o := range origins {
		fmt.Fprintf(w, "%s\t%s\t%.4f\t%.4f\t%.1f\t%.3f\t%d\t%d\t%s\n",
			o.AssociationKey, o.Time.Format("2006-01-02 15:04:05.000"),
			o.Lat, o.Lon, o.DepthKm, o.RMSSeconds, o.NumPicks, o.NumStations,
			humanize.Time(o.UpdatedAt))
	}
	return w.Flush()
}

func printOrigin(cmd *cobra.Command, o domain.Origin) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s  %s\n", o.AssociationKey, o.Status)
	fmt.Fprintf(out, "  origin   %s\n", o.Time.Format(time.RFC3339Nano))
	fmt.Fprintf(out, "  location %.4f %.4f  depth %.1f km\n", o.Lat, o.Lon, o.DepthKm)
	fmt.Fprintf(out, "  rms %.3f s  gap %.0f°  %d picks  %d stations\n", o.RMSSeconds, o.GapDeg, o.NumPicks, o.NumStations)
	fmt.Fprintf(out, "  created %s, updated %s\n\n", humanize.Time(o.CreatedAt), humanize.Time(o.UpdatedAt))

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STATION\tPHASE\tTIME\tDIST KM\tAZ\tRESIDUAL S\tUSED")
	for _, a := range o.Arrivals {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.1f\t%.0f\t%+.3f\t%t\n",
			a.StationKey(), a.Phase, a.Time.Format("15:04:05.000"),
			a.DistanceKm, a.AzimuthDeg, a.ResidualSeconds, a.Used)
	}
	w.Flush()
}
