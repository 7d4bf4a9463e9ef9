package charts

import (
	"bytes"
	"context"
	"errors"
	"image/gif"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/VJean/velib/internal/records"
)

var base = time.Date(2019, 9, 16, 13, 0, 0, 0, time.UTC)

func snap(name string, minute, mech, ebike, capacity int, lon, lat float64) records.Record {
	return records.Record{
		Timestamp:   base.Add(time.Duration(minute) * time.Minute),
		StationName: name,
		Lon:         lon,
		Lat:         lat,
		Mechanical:  mech,
		EBike:       ebike,
		Capacity:    capacity,
	}
}

func fixture() []records.Record {
	return []records.Record{
		snap("Bastille", 0, 2, 1, 20, 2.369, 48.853),
		snap("Nation", 0, 10, 0, 30, 2.395, 48.848),
		snap("Ternes", 0, 0, 0, 0, 2.298, 48.878),
		snap("Bastille", 1, 3, 1, 20, 2.369, 48.853),
		snap("Nation", 1, 10, 0, 30, 2.395, 48.848),
		snap("Ternes", 1, 1, 0, 0, 2.298, 48.878),
		snap("Bastille", 2, 1, 1, 20, 2.369, 48.853),
		snap("Nation", 2, 9, 1, 30, 2.395, 48.848),
		snap("Ternes", 2, 1, 0, 0, 2.298, 48.878),
	}
}

func TestPercentile(t *testing.T) {
	// Expected values follow numpy.percentile's default linear method.
	data := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	tests := []struct {
		q, want float64
	}{
		{0, 1},
		{50, 5.5},
		{75, 7.75},
		{90, 9.1},
		{99, 9.91},
		{100, 10},
	}
	for _, tt := range tests {
		if got := percentile(data, tt.q); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("percentile(%v) = %v; want %v", tt.q, got, tt.want)
		}
	}
	if got := percentile([]float64{4}, 90); got != 4 {
		t.Errorf("single value percentile = %v; want 4", got)
	}
	if got := percentile(nil, 50); !math.IsNaN(got) {
		t.Errorf("empty percentile = %v; want NaN", got)
	}
}

func TestHistogram(t *testing.T) {
	got := histogram([]float64{0, 0.05, 0.1, 0.55, 1, 1.2, -0.1, math.NaN()}, 0, 1, 10)
	want := []float64{2, 1, 0, 0, 0, 1, 0, 0, 0, 1}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("histogram = %v; want %v", got, want)
		}
	}
	if got := histogram([]float64{1}, 0, 0, 3); got[0]+got[1]+got[2] != 0 {
		t.Errorf("empty range should count nothing: %v", got)
	}
}

func TestGroupByTimestamp(t *testing.T) {
	recs := fixture()
	// shuffle order: last instant first
	recs = append(recs[6:], recs[:6]...)
	groups := groupByTimestamp(recs)
	if len(groups) != 3 {
		t.Fatalf("got %d groups; want 3", len(groups))
	}
	for i, g := range groups {
		if !g.Time.Equal(base.Add(time.Duration(i) * time.Minute)) {
			t.Errorf("group %d time = %v", i, g.Time)
		}
		if len(g.Records) != 3 {
			t.Errorf("group %d has %d records", i, len(g.Records))
		}
	}
}

func TestDistributionOverTime(t *testing.T) {
	stats, err := DistributionOverTime(fixture())
	if err != nil {
		t.Fatalf("DistributionOverTime: %v", err)
	}
	if len(stats) != 3 {
		t.Fatalf("got %d instants; want 3", len(stats))
	}
	// t0 totals: 3, 10, 0
	s := stats[0]
	if s.Min != 0 || s.Median != 3 || s.Max != 10 {
		t.Errorf("t0 stats = %+v", s)
	}
	if math.Abs(s.P75-6.5) > 1e-9 || math.Abs(s.P90-8.6) > 1e-9 {
		t.Errorf("t0 p75/p90 = %v/%v; want 6.5/8.6", s.P75, s.P90)
	}
}

func TestDocksPerStation(t *testing.T) {
	recs := fixture()
	recs = append(recs, snap("Bastille", 3, 0, 0, 22, 2.369, 48.853))
	got := DocksPerStation(recs)
	if len(got) != 2 {
		t.Fatalf("got %d stations; want 2 (capacity 0 dropped)", len(got))
	}
	if got[0].Lon != 2.369 || got[0].Capacity != 22 {
		t.Errorf("first = %+v; want Bastille with max capacity 22", got[0])
	}
	if got[1].Capacity != 30 {
		t.Errorf("second = %+v", got[1])
	}
}

func TestDocksHistogram(t *testing.T) {
	tests := []struct {
		caps    []int
		wantTop float64
		want    []float64
	}{
		{[]int{20, 30}, 30, []float64{0, 0, 0, 0, 1, 1}},
		{[]int{3}, 5, []float64{1}},
		{[]int{12, 5, 10}, 15, []float64{0, 1, 2}},
	}
	for _, tt := range tests {
		stations := make([]StationDocks, len(tt.caps))
		for i, c := range tt.caps {
			stations[i] = StationDocks{Capacity: c}
		}
		counts, top := docksHistogram(stations)
		if top != tt.wantTop || len(counts) != len(tt.want) {
			t.Errorf("caps %v: top %v counts %v; want %v %v", tt.caps, top, counts, tt.wantTop, tt.want)
			continue
		}
		for i := range counts {
			if counts[i] != tt.want[i] {
				t.Errorf("caps %v: counts %v; want %v", tt.caps, counts, tt.want)
				break
			}
		}
	}
}

func TestTopBusyStations(t *testing.T) {
	got, err := TopBusyStations(fixture(), 2)
	if err != nil {
		t.Fatalf("TopBusyStations: %v", err)
	}
	// Bastille: 3 -> 4 -> 2 (2 changes), Ternes: 0 -> 1 -> 1 (1), Nation: 10 -> 10 -> 10 (0)
	if len(got) != 2 {
		t.Fatalf("got %d rows; want 2", len(got))
	}
	if got[0].StationName != "Bastille" || got[0].Changes != 2 || got[0].Snapshots != 3 {
		t.Errorf("first = %+v", got[0])
	}
	if got[1].StationName != "Ternes" || got[1].Changes != 1 {
		t.Errorf("second = %+v", got[1])
	}

	all, err := TopBusyStations(fixture(), 0)
	if err != nil || len(all) != 3 {
		t.Fatalf("n=0: got %d rows, %v; want all 3", len(all), err)
	}

	var buf bytes.Buffer
	if err := WriteActivityTable(&buf, got); err != nil {
		t.Fatalf("WriteActivityTable: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 || !strings.HasPrefix(lines[1], "1") || !strings.Contains(lines[1], "Bastille") {
		t.Errorf("table:\n%s", buf.String())
	}
}

func TestNoData(t *testing.T) {
	if _, err := DistributionOverTime(nil); !errors.Is(err, ErrNoData) {
		t.Errorf("DistributionOverTime: %v", err)
	}
	if _, err := BikesDistributionOverTime(nil, nil); !errors.Is(err, ErrNoData) {
		t.Errorf("BikesDistributionOverTime: %v", err)
	}
	if _, err := NumberOfDocks([]records.Record{snap("X", 0, 1, 0, 0, 2.3, 48.8)}); !errors.Is(err, ErrNoData) {
		t.Errorf("NumberOfDocks: %v", err)
	}
	if _, err := TopBusyStations(nil, 10); !errors.Is(err, ErrNoData) {
		t.Errorf("TopBusyStations: %v", err)
	}
	if err := Animate(context.Background(), &bytes.Buffer{}, nil, nil); !errors.Is(err, ErrNoData) {
		t.Errorf("Animate: %v", err)
	}
}

func TestSaveCharts(t *testing.T) {
	dir := t.TempDir()
	paris, err := time.LoadLocation("Europe/Paris")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}

	distPath := filepath.Join(dir, DistributionFile)
	if err := SaveBikesDistributionOverTime(fixture(), paris, distPath); err != nil {
		t.Fatalf("SaveBikesDistributionOverTime: %v", err)
	}
	docksPath := filepath.Join(dir, DocksFile)
	if err := SaveNumberOfDocks(fixture(), docksPath); err != nil {
		t.Fatalf("SaveNumberOfDocks: %v", err)
	}
	for _, p := range []string{distPath, docksPath} {
		b, err := os.ReadFile(p)
		if err != nil {
			t.Fatalf("read %s: %v", p, err)
		}
		if !bytes.HasPrefix(b, []byte("\x89PNG")) {
			t.Errorf("%s is not a PNG", p)
		}
	}
}

func TestAnimate(t *testing.T) {
	var buf bytes.Buffer
	if err := Animate(context.Background(), &buf, fixture(), time.UTC); err != nil {
		t.Fatalf("Animate: %v", err)
	}
	g, err := gif.DecodeAll(&buf)
	if err != nil {
		t.Fatalf("decode gif: %v", err)
	}
	if len(g.Image) != 3 {
		t.Errorf("frames = %d; want 3", len(g.Image))
	}
	if g.LoopCount != 0 {
		t.Errorf("LoopCount = %d; want 0 (forever)", g.LoopCount)
	}
	for i, d := range g.Delay {
		if d != frameDelay {
			t.Errorf("frame %d delay = %d; want %d", i, d, frameDelay)
		}
	}
	b := g.Image[0].Bounds()
	if b.Dx() != 600 || b.Dy() != 700 {
		t.Errorf("frame size = %dx%d; want 600x700", b.Dx(), b.Dy())
	}
}

func TestAnimate_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Animate(ctx, &bytes.Buffer{}, fixture(), nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v; want context.Canceled", err)
	}
}

func TestFrameTitle(t *testing.T) {
	paris, err := time.LoadLocation("Europe/Paris")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	if got := base.In(paris).Format(FrameTitleLayout); got != "2019-09-16 15:00+0200" {
		t.Errorf("title = %q", got)
	}
}
