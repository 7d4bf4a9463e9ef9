package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/VJean/velib/internal/charts"
	"github.com/VJean/velib/internal/influx"
	"github.com/VJean/velib/internal/records"
)

var day = time.Date(2019, 9, 16, 0, 0, 0, 0, time.UTC)

func snap(name string, minute, mech, ebike int) records.Record {
	return records.Record{
		Timestamp:         day.Add(13*time.Hour + time.Duration(minute)*time.Minute),
		StationName:       name,
		Lon:               2.35,
		Lat:               48.85,
		Mechanical:        mech,
		EBike:             ebike,
		Capacity:          20,
		NumDocksAvailable: 20 - mech - ebike,
	}
}

// setupEnv points the CLI at a fresh records dir and database.
func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	recordsDir := filepath.Join(dir, "records")
	t.Setenv("APP_ENV", "dev")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("RECORDS_DIR", recordsDir)
	t.Setenv("RECORDS_TZ", "UTC")
	t.Setenv("SQLITE_PATH", filepath.Join(dir, "velib.db"))
	t.Setenv("DB_DSN", "")
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("INFLUX_TOKEN", "")
	t.Setenv("INFLUX_ORG", "")
	if err := os.MkdirAll(recordsDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	return recordsDir
}

func writeDay(t *testing.T, recordsDir string, recs ...records.Record) {
	t.Helper()
	if err := records.AppendFile(filepath.Join(recordsDir, records.FileName(day)), recs); err != nil {
		t.Fatalf("AppendFile: %v", err)
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestMigrateCmd(t *testing.T) {
	setupEnv(t)

	out, err := execute(t, "migrate")
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if strings.TrimSpace(out) != "applied 2 migrations" {
		t.Fatalf("first run output %q", out)
	}

	out, err = execute(t, "migrate")
	if err != nil {
		t.Fatalf("migrate again: %v", err)
	}
	if strings.TrimSpace(out) != "applied 0 migrations" {
		t.Fatalf("second run output %q", out)
	}
}

func TestImportCmd(t *testing.T) {
	dir := setupEnv(t)
	writeDay(t, dir, snap("Bastille", 0, 3, 1), snap("Nation", 0, 10, 0), snap("Bastille", 1, 2, 1))

	out, err := execute(t, "import", "--from", "2019-09-16", "--to", "2019-09-16")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if strings.TrimSpace(out) != "imported 3 rows" {
		t.Fatalf("output %q", out)
	}

	out, err = execute(t, "import", "--from", "2019-09-16", "--to", "2019-09-16")
	if err != nil {
		t.Fatalf("import again: %v", err)
	}
	if strings.TrimSpace(out) != "imported 0 rows" {
		t.Fatalf("second import output %q", out)
	}
}

func TestImportCmd_RequiresFrom(t *testing.T) {
	setupEnv(t)
	if _, err := execute(t, "import"); err == nil {
		t.Fatal("expected error without --from")
	}
}

func TestChartsTopBusyCmd(t *testing.T) {
	dir := setupEnv(t)
	writeDay(t, dir,
		snap("Bastille", 0, 3, 1), snap("Nation", 0, 10, 0),
		snap("Bastille", 1, 2, 1), snap("Nation", 1, 10, 0),
		snap("Bastille", 2, 5, 1), snap("Nation", 2, 9, 0),
	)

	out, err := execute(t, "charts", "top-busy", "--from", "2019-09-16", "--to", "2019-09-16", "-n", "1")
	if err != nil {
		t.Fatalf("top-busy: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 || !strings.Contains(lines[1], "Bastille") {
		t.Fatalf("output:\n%s", out)
	}
}

func TestChartsDocksCmd(t *testing.T) {
	dir := setupEnv(t)
	writeDay(t, dir, snap("Bastille", 0, 3, 1), snap("Nation", 0, 10, 0))
	outDir := filepath.Join(t.TempDir(), "charts")

	out, err := execute(t, "charts", "docks", "--from", "2019-09-16", "--to", "2019-09-16", "--out", outDir)
	if err != nil {
		t.Fatalf("docks: %v", err)
	}
	path := filepath.Join(outDir, charts.DocksFile)
	if strings.TrimSpace(out) != path {
		t.Fatalf("output %q; want %q", out, path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("stat: %v", err)
	}
}

func TestChartsCmd_NoData(t *testing.T) {
	setupEnv(t)
	_, err := execute(t, "charts", "bikes-over-time", "--from", "2019-09-16", "--to", "2019-09-16", "--out", t.TempDir())
	if !errors.Is(err, charts.ErrNoData) {
		t.Fatalf("err = %v; want ErrNoData", err)
	}
}

func TestPublishCmd_Validation(t *testing.T) {
	setupEnv(t)

	if _, err := execute(t, "publish", "--from", "2019-09-16", "--transport", "amqp"); err == nil ||
		!strings.Contains(err.Error(), "invalid --transport") {
		t.Fatalf("err = %v", err)
	}
	if _, err := execute(t, "publish", "--from", "2019-09-16", "--transport", "kafka"); !errors.Is(err, errNoKafkaBrokers) {
		t.Fatalf("err = %v; want errNoKafkaBrokers", err)
	}
}

func TestExportInfluxCmd_NotConfigured(t *testing.T) {
	setupEnv(t)
	if _, err := execute(t, "export-influx", "--from", "2019-09-16"); !errors.Is(err, influx.ErrNotConfigured) {
		t.Fatalf("err = %v; want influx.ErrNotConfigured", err)
	}
}

func TestRangeFlags(t *testing.T) {
	now := time.Date(2019, 9, 20, 8, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		from, to string
		wantFrom time.Time
		wantTo   time.Time
		wantErr  bool
	}{
		{"bare days cover the whole end day", "2019-09-16", "2019-09-17", day, day.AddDate(0, 0, 2).Add(-time.Nanosecond), false},
		{"to defaults to now", "2019-09-16T13:00:00Z", "", day.Add(13 * time.Hour), now, false},
		{"naive timestamp", "2019-09-16 13:00:00", "2019-09-16 14:00:00", day.Add(13 * time.Hour), day.Add(14 * time.Hour), false},
		{"from after to", "2019-09-17", "2019-09-16T00:00:00Z", time.Time{}, time.Time{}, true},
		{"garbage", "yesterday", "", time.Time{}, time.Time{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := rangeFlags{from: tt.from, to: tt.to}
			from, to, err := f.parse(time.UTC, now)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v..%v", from, to)
				}
				return
			}
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if !from.Equal(tt.wantFrom) || !to.Equal(tt.wantTo) {
				t.Fatalf("got %v..%v; want %v..%v", from, to, tt.wantFrom, tt.wantTo)
			}
		})
	}
}

type fakeSource struct {
	recs []records.Record
	err  error
}

func (f *fakeSource) Snapshot(_ context.Context, at time.Time) ([]records.Record, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]records.Record, len(f.recs))
	for i, r := range f.recs {
		r.Timestamp = at.Truncate(time.Minute)
		out[i] = r
	}
	return out, nil
}

func TestRecorder_RecordOnce(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "records")
	paris, err := time.LoadLocation("Europe/Paris")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	r := &recorder{
		source: &fakeSource{recs: []records.Record{snap("Bastille", 0, 3, 1), snap("Nation", 0, 10, 0)}},
		dir:    dir,
		loc:    paris,
		now:    func() time.Time { return time.Date(2019, 9, 15, 23, 30, 0, 0, time.UTC) }, // already the 16th in Paris
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	if err := r.run(context.Background(), 0); err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := r.run(context.Background(), 0); err != nil {
		t.Fatalf("second run: %v", err)
	}

	got, err := records.ReadFile(filepath.Join(dir, "20190916-velib-records.csv"), paris)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("got %d rows; want 4 (two appends)", len(got))
	}
}

func TestRecorder_SingleShotReturnsError(t *testing.T) {
	boom := errors.New("feed down")
	r := &recorder{
		source: &fakeSource{err: boom},
		dir:    t.TempDir(),
		loc:    time.UTC,
		now:    time.Now,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if err := r.run(context.Background(), 0); !errors.Is(err, boom) {
		t.Fatalf("err = %v; want %v", err, boom)
	}
}

func TestRecorder_IntervalStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := &recorder{
		source: &fakeSource{err: errors.New("feed down")},
		dir:    t.TempDir(),
		loc:    time.UTC,
		now:    time.Now,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	done := make(chan error, 1)
	go func() { done <- r.run(ctx, 10*time.Millisecond) }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v; want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("recorder did not stop")
	}
}
