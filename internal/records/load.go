package records

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
)

const loadParallelism = 4

// LoadDays reads the day files under dir for every day in days. Missing files
// are skipped. The result is sorted by timestamp.
func LoadDays(ctx context.Context, dir string, days []time.Time, loc *time.Location) ([]Record, error) {
	perDay := make([][]Record, len(days))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(loadParallelism)
	for i, day := range days {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			path := filepath.Join(dir, FileName(day))
			recs, err := ReadFile(path, loc)
			if errors.Is(err, os.ErrNotExist) {
				slog.Debug("records file missing", "path", path)
				return nil
			}
			if err != nil {
				return err
			}
			perDay[i] = recs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []Record
	for _, recs := range perDay {
		out = append(out, recs...)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}
