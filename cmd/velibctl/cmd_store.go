package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/VJean/velib/internal/db"
	"github.com/VJean/velib/internal/influx"
)

func newMigrateCmd(env *cliEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending store migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dbConn, applied, err := env.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = db.Close(dbConn) }()
			fmt.Fprintf(cmd.OutOrStdout(), "applied %d migrations\n", applied)
			return nil
		},
	}
}

func newImportCmd(env *cliEnv) *cobra.Command {
	var rf rangeFlags
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Load the day files of a range into the store",
		Long: `Load the day files covering --from..--to into the store.

Days already imported are skipped. The current day is loaded but stays open,
so a later import picks up rows appended since.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			from, to, err := rf.parse(env.cfg.RecordsLocation, env.now())
			if err != nil {
				return err
			}
			dbConn, _, err := env.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = db.Close(dbConn) }()

			n, err := env.newService(dbConn).ImportRange(cmd.Context(), from, to)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d rows\n", n)
			return nil
		},
	}
	rf.register(cmd)
	return cmd
}

func newExportInfluxCmd(env *cliEnv) *cobra.Command {
	var (
		rf         rangeFlags
		importDays bool
	)
	cmd := &cobra.Command{
		Use:   "export-influx",
		Short: "Write stored snapshots of a range to InfluxDB",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			from, to, err := rf.parse(env.cfg.RecordsLocation, env.now())
			if err != nil {
				return err
			}

			exporter, err := influx.NewExporter(env.cfg, env.logger)
			if err != nil {
				return err
			}
			defer exporter.Close()
			if err := exporter.CheckHealth(ctx); err != nil {
				return err
			}

			dbConn, _, err := env.openStore(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close(dbConn) }()

			svc := env.newService(dbConn)
			if importDays {
				if _, err := svc.ImportRange(ctx, from, to); err != nil {
					return err
				}
			}
			recs, err := svc.Snapshots(ctx, from, to)
			if err != nil {
				return err
			}
			n, err := exporter.Export(ctx, recs)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d points to %s\n", n, env.cfg.InfluxBucket)
			return nil
		},
	}
	rf.register(cmd)
	cmd.Flags().BoolVar(&importDays, "import", true, "Import the range's day files before exporting")
	return cmd
}
