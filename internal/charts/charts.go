// Package charts renders static charts and an animated map from station
// snapshots.
package charts

import (
	"errors"
	"image/color"
	"math"
	"sort"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"

	"github.com/VJean/velib/internal/records"
)

const (
	DistributionFile = "bikes_per_station_over_time.png"
	DocksFile        = "total_docks.png"
	AnimationFile    = "velib.gif"
)

var ErrNoData = errors.New("charts: no data")

// Extent is the lon/lat box drawn around Paris.
var Extent = struct{ MinLon, MaxLon, MinLat, MaxLat float64 }{2.14, 2.55, 48.75, 48.96}

// group holds the snapshots taken at one instant.
type group struct {
	Time    time.Time
	Records []records.Record
}

// groupByTimestamp buckets records by instant, oldest first.
func groupByTimestamp(recs []records.Record) []group {
	byTime := make(map[int64]*group)
	for _, r := range recs {
		k := r.Timestamp.UnixNano()
		g, ok := byTime[k]
		if !ok {
			g = &group{Time: r.Timestamp}
			byTime[k] = g
		}
		g.Records = append(g.Records, r)
	}
	out := make([]group, 0, len(byTime))
	for _, g := range byTime {
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out
}

// percentile returns the q-th percentile (0..100) of sorted using linear
// interpolation between closest ranks.
func percentile(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	if n == 1 {
		return sorted[0]
	}
	rank := q / 100 * float64(n-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo < 0 {
		lo = 0
	}
	if hi > n-1 {
		hi = n - 1
	}
	return sorted[lo] + (sorted[hi]-sorted[lo])*(rank-float64(lo))
}

// histogram counts values into n equal bins over [lo, hi]. The last bin is
// closed on the right; values outside the range are ignored.
func histogram(values []float64, lo, hi float64, n int) []float64 {
	counts := make([]float64, n)
	if n <= 0 || hi <= lo {
		return counts
	}
	width := (hi - lo) / float64(n)
	for _, v := range values {
		if math.IsNaN(v) || v < lo || v > hi {
			continue
		}
		i := int((v - lo) / width)
		if i >= n {
			i = n - 1
		}
		counts[i]++
	}
	return counts
}

func newHistogram(counts []float64, lo, width float64, fill color.Color) *plotter.Histogram {
	bins := make([]plotter.HistogramBin, len(counts))
	for i, c := range counts {
		start := lo + float64(i)*width
		bins[i] = plotter.HistogramBin{Min: start, Max: start + width, Weight: c}
	}
	return &plotter.Histogram{
		Bins:      bins,
		Width:     width,
		FillColor: fill,
		LineStyle: plotter.DefaultLineStyle,
	}
}

func setExtent(p *plot.Plot) {
	p.X.Min, p.X.Max = Extent.MinLon, Extent.MaxLon
	p.Y.Min, p.Y.Max = Extent.MinLat, Extent.MaxLat
	p.X.Label.Text = "lon"
	p.Y.Label.Text = "lat"
}

// ramp maps t in [0, 1] onto a piecewise linear gradient through stops.
func ramp(stops []color.Color, t float64) color.Color {
	if len(stops) == 0 {
		return color.Black
	}
	if math.IsNaN(t) || t <= 0 {
		return stops[0]
	}
	if t >= 1 {
		return stops[len(stops)-1]
	}
	pos := t * float64(len(stops)-1)
	i := int(pos)
	f := pos - float64(i)
	a := color.RGBAModel.Convert(stops[i]).(color.RGBA)
	b := color.RGBAModel.Convert(stops[i+1]).(color.RGBA)
	mix := func(x, y uint8) uint8 { return uint8(math.Round(float64(x) + (float64(y)-float64(x))*f)) }
	return color.RGBA{R: mix(a.R, b.R), G: mix(a.G, b.G), B: mix(a.B, b.B), A: mix(a.A, b.A)}
}

func hex(v uint32) color.Color {
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}
}

// viridisReversed runs from yellow (empty) to dark purple (full).
var viridisReversed = []color.Color{
	hex(0xfde725), hex(0x7ad151), hex(0x22a884), hex(0x2a788e), hex(0x414487), hex(0x440154),
}

var (
	lineColors = []color.Color{
		hex(0x1f77b4), hex(0xff7f0e), hex(0x2ca02c), hex(0xd62728), hex(0x9467bd), hex(0x8c564b),
	}
	barFill = hex(0x1f77b4)
	noData  = color.RGBA{R: 0x99, G: 0x99, B: 0x99, A: 0xff}
)
