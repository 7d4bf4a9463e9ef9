package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/VJean/velib/internal/config"
	"github.com/VJean/velib/internal/db"
	"github.com/VJean/velib/internal/logging"
	"github.com/VJean/velib/internal/migrate"
	"github.com/VJean/velib/internal/modules/datasource/repository"
	"github.com/VJean/velib/internal/modules/datasource/service"
	"github.com/VJean/velib/internal/records"
)

// cliEnv is filled by the root command before any subcommand runs.
type cliEnv struct {
	cfg        config.Config
	logger     *slog.Logger
	recordsDir string
	now        func() time.Time
}

func newRootCmd() *cobra.Command {
	env := &cliEnv{now: time.Now}

	root := &cobra.Command{
		Use:   appName,
		Short: "Record, import, replay and chart Velib station snapshots",
		Long: `velibctl works on the <YYYYMMDD>-velib-records.csv day files.

Subcommands:
  migrate        - Apply store migrations
  import         - Load day files into the store
  record         - Append live open-data snapshots to the day files
  publish        - Replay day files onto MQTT or Kafka
  export-influx  - Write stored snapshots to InfluxDB
  charts         - Render charts from the day files`,
		Version:       version,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadFromEnv()
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			if env.recordsDir != "" {
				cfg.RecordsDir = env.recordsDir
			}
			env.cfg = cfg
			env.logger = logging.NewWithWriter(cmd.ErrOrStderr(), cfg, version, appName)
			slog.SetDefault(env.logger)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&env.recordsDir, "records-dir", "", "Directory of day files (overrides RECORDS_DIR)")

	root.AddCommand(
		newMigrateCmd(env),
		newImportCmd(env),
		newRecordCmd(env),
		newPublishCmd(env),
		newExportInfluxCmd(env),
		newChartsCmd(env),
	)
	return root
}

// openStore opens the database and brings its schema up to date.
func (e *cliEnv) openStore(ctx context.Context) (*sql.DB, int, error) {
	dbConn, err := db.Open(ctx, e.cfg)
	if err != nil {
		return nil, 0, err
	}
	applied, err := migrate.Run(ctx, dbConn)
	if err != nil {
		_ = db.Close(dbConn)
		return nil, 0, err
	}
	return dbConn, applied, nil
}

func (e *cliEnv) newService(dbConn *sql.DB) *service.Service {
	return service.NewService(repository.NewRepository(dbConn), e.cfg.RecordsDir, e.cfg.RecordsLocation, e.logger)
}

// rangeFlags holds --from/--to. --from is required, --to defaults to now.
type rangeFlags struct {
	from string
	to   string
}

func (f *rangeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.from, "from", "", "Start of the range (RFC3339 or 2006-01-02 15:04:05 in RECORDS_TZ)")
	cmd.Flags().StringVar(&f.to, "to", "", "End of the range (default now)")
	_ = cmd.MarkFlagRequired("from")
}

func (f *rangeFlags) parse(loc *time.Location, now time.Time) (time.Time, time.Time, error) {
	from, _, err := parseBound(f.from, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid --from: %w", err)
	}
	to := now
	if f.to != "" {
		var wholeDay bool
		if to, wholeDay, err = parseBound(f.to, loc); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --to: %w", err)
		}
		if wholeDay {
			to = to.AddDate(0, 0, 1).Add(-time.Nanosecond)
		}
	}
	if from.After(to) {
		return time.Time{}, time.Time{}, records.ErrInvalidRange
	}
	return from, to, nil
}

// parseBound also accepts a bare day, read as midnight in loc. wholeDay
// reports that shape so --to can cover the full day.
func parseBound(s string, loc *time.Location) (t time.Time, wholeDay bool, err error) {
	if t, err := time.ParseInLocation(time.DateOnly, s, loc); err == nil {
		return t, true, nil
	}
	t, err = records.ParseTimestamp(s, loc)
	return t, false, err
}

// loadRange reads the day files covering [from, to] and keeps the records in
// that window.
func (e *cliEnv) loadRange(ctx context.Context, from, to time.Time) ([]records.Record, error) {
	days, err := records.DaysInRange(from, to, e.cfg.RecordsLocation)
	if err != nil {
		return nil, err
	}
	recs, err := records.LoadDays(ctx, e.cfg.RecordsDir, days, e.cfg.RecordsLocation)
	if err != nil {
		return nil, err
	}
	recs = records.Filter(recs, from, to)
	e.logger.Info("records loaded", "days", len(days), "records", len(recs))
	return recs, nil
}
