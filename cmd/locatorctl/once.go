package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/couchcryptid/seismic-locator/internal/observability"
	"github.com/couchcryptid/seismic-locator/internal/pipeline"
)

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Run a single locate cycle and print what it did",
	RunE:  runOnce,
}

func init() {
	rootCmd.AddCommand(onceCmd)
}

func runOnce(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, b, logger, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer b.Close()

	p := pipeline.New(b, pipeline.SettingsFromConfig(cfg), logger, observability.NewMetricsForTesting())
	report, err := p.RunOnce(ctx)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "cycle %s: %s picks (%d dropped), %d clusters, %d located, %d failed, %d pruned\n",
		report.ID, humanize.Comma(int64(report.Picks)), report.Dropped,
		report.Clusters, report.Located, report.Failed, report.Pruned)

	if len(report.Origins) > 0 {
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "KEY\tORIGIN TIME\tLAT\tLON\tDEPTH KM\tRMS S\tGAP\tSTATIONS")
		for _, o := range report.Origins {
			fmt.Fprintf(w, "%s\t%s\t%.4f\t%.4f\t%.1f\t%.3f\t%.0f\t%d\n",
				o.AssociationKey, o.Time.Format("2006-01-02 15:04:05.000"),
				o.Lat, o.Lon, o.DepthKm, o.RMSSeconds, o.GapDeg, o.NumStations)
		}
		w.Flush()
	}
	return err
}
