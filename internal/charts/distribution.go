package charts

import (
	"fmt"
	"sort"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/VJean/velib/internal/records"
)

// TimeStats summarizes total bikes per station at one instant.
type TimeStats struct {
	Time   time.Time
	Min    float64
	Median float64
	P75    float64
	P90    float64
	P99    float64
	Max    float64
}

func (s TimeStats) values() [6]float64 {
	return [6]float64{s.Min, s.Median, s.P75, s.P90, s.P99, s.Max}
}

var distributionLabels = [6]string{"min", "med", "p75", "p90", "p99", "max"}

// DistributionOverTime computes the per-instant spread of total bikes per station.
func DistributionOverTime(recs []records.Record) ([]TimeStats, error) {
	if len(recs) == 0 {
		return nil, ErrNoData
	}
	groups := groupByTimestamp(recs)
	out := make([]TimeStats, 0, len(groups))
	for _, g := range groups {
		bikes := make([]float64, len(g.Records))
		for i, r := range g.Records {
			bikes[i] = float64(r.TotalBikes())
		}
		sort.Float64s(bikes)
		out = append(out, TimeStats{
			Time:   g.Time,
			Min:    bikes[0],
			Median: percentile(bikes, 50),
			P75:    percentile(bikes, 75),
			P90:    percentile(bikes, 90),
			P99:    percentile(bikes, 99),
			Max:    bikes[len(bikes)-1],
		})
	}
	return out, nil
}

// BikesDistributionOverTime plots one line per statistic against time, with
// time ticks rendered in loc.
func BikesDistributionOverTime(recs []records.Record, loc *time.Location) (*plot.Plot, error) {
	stats, err := DistributionOverTime(recs)
	if err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.UTC
	}

	p := plot.New()
	p.Title.Text = "Distribution of available bikes per station over time"
	p.X.Label.Text = "time"
	p.Y.Label.Text = "bikes"
	p.X.Tick.Marker = plot.TimeTicks{Format: "01-02\n15:04", Time: plot.UnixTimeIn(loc)}
	p.Add(plotter.NewGrid())

	lines := make([]*plotter.Line, len(distributionLabels))
	for i := range distributionLabels {
		xys := make(plotter.XYs, len(stats))
		for j, s := range stats {
			xys[j].X = float64(s.Time.Unix())
			xys[j].Y = s.values()[i]
		}
		l, err := plotter.NewLine(xys)
		if err != nil {
			return nil, fmt.Errorf("%s line: %w", distributionLabels[i], err)
		}
		l.Color = lineColors[i]
		l.Width = vg.Points(1.5)
		p.Add(l)
		lines[i] = l
	}

	p.Legend.Top = true
	for i := len(lines) - 1; i >= 0; i-- {
		p.Legend.Add(distributionLabels[i], lines[i])
	}
	p.Y.Min = 0
	return p, nil
}

// SaveBikesDistributionOverTime renders the chart at 8x6 inches.
func SaveBikesDistributionOverTime(recs []records.Record, loc *time.Location, path string) error {
	p, err := BikesDistributionOverTime(recs, loc)
	if err != nil {
		return err
	}
	return p.Save(8*vg.Inch, 6*vg.Inch, path)
}
