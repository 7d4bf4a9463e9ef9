package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/VJean/velib/internal/opendata"
	"github.com/VJean/velib/internal/records"
)

type snapshotSource interface {
	Snapshot(ctx context.Context, at time.Time) ([]records.Record, error)
}

// recorder appends one snapshot of every station to the day file of the
// fetch time.
type recorder struct {
	source snapshotSource
	dir    string
	loc    *time.Location
	now    func() time.Time
	logger *slog.Logger
}

func (r *recorder) recordOnce(ctx context.Context) (string, int, error) {
	at := r.now()
	recs, err := r.source.Snapshot(ctx, at)
	if err != nil {
		return "", 0, err
	}
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", 0, fmt.Errorf("mkdir %s: %w", r.dir, err)
	}
	path := filepath.Join(r.dir, records.FileName(at.In(r.loc)))
	if err := records.AppendFile(path, recs); err != nil {
		return "", 0, err
	}
	return path, len(recs), nil
}

// run records once, then every interval until ctx is done. With a zero
// interval the first failure is returned; otherwise failures are logged and
// the next tick retries.
func (r *recorder) run(ctx context.Context, interval time.Duration) error {
	path, n, err := r.recordOnce(ctx)
	if interval <= 0 {
		if err != nil {
			return err
		}
		r.logger.Info("snapshot recorded", "file", path, "stations", n)
		return nil
	}
	r.logResult(path, n, err)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			path, n, err := r.recordOnce(ctx)
			r.logResult(path, n, err)
		}
	}
}

func (r *recorder) logResult(path string, n int, err error) {
	if err != nil {
		r.logger.Error("snapshot failed", "error", err)
		return
	}
	r.logger.Info("snapshot recorded", "file", path, "stations", n)
}

func newRecordCmd(env *cliEnv) *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Append live station snapshots to the day files",
		Long: `Fetch the Paris open-data Velib feed and append one row per installed
station to RECORDS_DIR/<YYYYMMDD>-velib-records.csv.

With --interval the feed is polled until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r := &recorder{
				source: opendata.NewClient(env.cfg.OpenDataURL, env.cfg.OpenDataTimeout, env.logger),
				dir:    env.cfg.RecordsDir,
				loc:    env.cfg.RecordsLocation,
				now:    env.now,
				logger: env.logger,
			}
			return r.run(cmd.Context(), interval)
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 0, "Poll interval (0 records a single snapshot)")
	return cmd
}
