package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/VJean/velib/internal/charts"
	"github.com/VJean/velib/internal/records"
)

type chartFlags struct {
	rangeFlags
	out string
}

func (f *chartFlags) register(cmd *cobra.Command) {
	f.rangeFlags.register(cmd)
	cmd.Flags().StringVar(&f.out, "out", ".", "Output directory")
}

// chartRunner loads the range and hands the records to render along with the
// output directory.
func chartRunner(env *cliEnv, f *chartFlags, render func(ctx context.Context, cmd *cobra.Command, recs []records.Record) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		from, to, err := f.parse(env.cfg.RecordsLocation, env.now())
		if err != nil {
			return err
		}
		recs, err := env.loadRange(cmd.Context(), from, to)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(f.out, 0o755); err != nil {
			return fmt.Errorf("mkdir %s: %w", f.out, err)
		}
		return render(cmd.Context(), cmd, recs)
	}
}

func newChartsCmd(env *cliEnv) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "charts",
		Short: "Render charts from the day files",
		Long: `Render charts from the day files covering --from..--to.

Subcommands:
  bikes-over-time  - Spread of bikes per station over time (` + charts.DistributionFile + `)
  docks            - Docks per station and their location (` + charts.DocksFile + `)
  animate          - Animated occupation map (` + charts.AnimationFile + `)
  top-busy         - Stations whose bike count changes most often`,
	}

	var over chartFlags
	overCmd := &cobra.Command{
		Use:   "bikes-over-time",
		Short: "Plot min, median, p75, p90, p99 and max bikes per station over time",
		Args:  cobra.NoArgs,
		RunE: chartRunner(env, &over, func(_ context.Context, cmd *cobra.Command, recs []records.Record) error {
			path := filepath.Join(over.out, charts.DistributionFile)
			if err := charts.SaveBikesDistributionOverTime(recs, env.cfg.RecordsLocation, path); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		}),
	}
	over.register(overCmd)

	var docks chartFlags
	docksCmd := &cobra.Command{
		Use:   "docks",
		Short: "Plot the docks per station histogram above a station map",
		Args:  cobra.NoArgs,
		RunE: chartRunner(env, &docks, func(_ context.Context, cmd *cobra.Command, recs []records.Record) error {
			path := filepath.Join(docks.out, charts.DocksFile)
			if err := charts.SaveNumberOfDocks(recs, path); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		}),
	}
	docks.register(docksCmd)

	var anim chartFlags
	animCmd := &cobra.Command{
		Use:   "animate",
		Short: "Render one map frame per snapshot into a looping GIF",
		Args:  cobra.NoArgs,
		RunE: chartRunner(env, &anim, func(ctx context.Context, cmd *cobra.Command, recs []records.Record) error {
			path := filepath.Join(anim.out, charts.AnimationFile)
			start := time.Now()
			if err := charts.SaveAnimation(ctx, recs, env.cfg.RecordsLocation, path); err != nil {
				return err
			}
			env.logger.Info("animation rendered", "file", path, "duration_ms", time.Since(start).Milliseconds())
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		}),
	}
	anim.register(animCmd)

	var (
		busy chartFlags
		topN int
	)
	busyCmd := &cobra.Command{
		Use:   "top-busy",
		Short: "Print the stations whose bike count changes most often",
		Args:  cobra.NoArgs,
		RunE: chartRunner(env, &busy, func(_ context.Context, cmd *cobra.Command, recs []records.Record) error {
			rows, err := charts.TopBusyStations(recs, topN)
			if err != nil {
				return err
			}
			return charts.WriteActivityTable(cmd.OutOrStdout(), rows)
		}),
	}
	busy.register(busyCmd)
	busyCmd.Flags().IntVarP(&topN, "n", "n", charts.DefaultTopBusy, "Number of stations to list (0 lists all)")

	cmd.AddCommand(overCmd, docksCmd, animCmd, busyCmd)
	return cmd
}
