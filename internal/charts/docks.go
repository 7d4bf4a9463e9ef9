package charts

import (
	"fmt"
	"image/color"
	"math"
	"os"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette/brewer"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/VJean/velib/internal/records"
)

const docksBinWidth = 5

// StationDocks is the largest capacity seen at one location.
type StationDocks struct {
	Lon      float64
	Lat      float64
	Capacity int
}

// DocksPerStation keeps the max capacity per (lon, lat). Stations reporting
// a capacity of 0 are dropped.
func DocksPerStation(recs []records.Record) []StationDocks {
	type key struct{ lon, lat float64 }
	maxCap := make(map[key]int)
	for _, r := range recs {
		k := key{r.Lon, r.Lat}
		if c, ok := maxCap[k]; !ok || r.Capacity > c {
			maxCap[k] = r.Capacity
		}
	}
	out := make([]StationDocks, 0, len(maxCap))
	for k, c := range maxCap {
		if c > 0 {
			out = append(out, StationDocks{Lon: k.lon, Lat: k.lat, Capacity: c})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Lon != out[j].Lon {
			return out[i].Lon < out[j].Lon
		}
		return out[i].Lat < out[j].Lat
	})
	return out
}

// docksHistogram bins capacities by 5 from 0 up to the first edge at or above
// the largest capacity.
func docksHistogram(stations []StationDocks) (counts []float64, top float64) {
	caps := make([]float64, len(stations))
	for i, s := range stations {
		caps[i] = float64(s.Capacity)
	}
	maxCap := floats.Max(caps)
	n := int(math.Ceil(maxCap / docksBinWidth))
	if n == 0 {
		n = 1
	}
	top = float64(n * docksBinWidth)
	return histogram(caps, 0, top, n), top
}

// NumberOfDocks renders a capacity histogram above a map of stations coloured
// by capacity. The panels split the height 1:2.
func NumberOfDocks(recs []records.Record) (*vgimg.Canvas, error) {
	stations := DocksPerStation(recs)
	if len(stations) == 0 {
		return nil, ErrNoData
	}

	counts, _ := docksHistogram(stations)
	hist := plot.New()
	hist.Title.Text = "Number of docks per station and spatial repartition"
	hist.X.Label.Text = "number of docks"
	hist.Y.Label.Text = "stations"
	hist.Add(newHistogram(counts, 0, docksBinWidth, barFill))

	reds, err := brewer.GetPalette(brewer.TypeSequential, "Reds", 9)
	if err != nil {
		return nil, fmt.Errorf("palette: %w", err)
	}
	stops := reds.Colors()
	minCap, maxCap := float64(stations[0].Capacity), float64(stations[0].Capacity)
	xys := make(plotter.XYs, len(stations))
	for i, s := range stations {
		xys[i].X, xys[i].Y = s.Lon, s.Lat
		minCap = math.Min(minCap, float64(s.Capacity))
		maxCap = math.Max(maxCap, float64(s.Capacity))
	}
	scatter, err := plotter.NewScatter(xys)
	if err != nil {
		return nil, fmt.Errorf("scatter: %w", err)
	}
	scatter.GlyphStyleFunc = func(i int) draw.GlyphStyle {
		t := 0.0
		if maxCap > minCap {
			t = (float64(stations[i].Capacity) - minCap) / (maxCap - minCap)
		}
		return draw.GlyphStyle{Color: ramp(stops, t), Radius: vg.Points(1.5), Shape: draw.CircleGlyph{}}
	}
	m := plot.New()
	m.Add(scatter)
	setExtent(m)

	c := vgimg.NewWith(vgimg.UseWH(6*vg.Inch, 6*vg.Inch), vgimg.UseDPI(100), vgimg.UseBackgroundColor(color.White))
	dc := draw.New(c)
	h := dc.Max.Y - dc.Min.Y
	hist.Draw(draw.Crop(dc, 0, 0, h*2/3, 0))
	m.Draw(draw.Crop(dc, 0, 0, 0, -h/3))
	return c, nil
}

// SaveNumberOfDocks writes NumberOfDocks as a PNG to path.
func SaveNumberOfDocks(recs []records.Record, path string) error {
	c, err := NumberOfDocks(recs)
	if err != nil {
		return err
	}
	return savePNG(c, path)
}

func savePNG(c *vgimg.Canvas, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := (vgimg.PngCanvas{Canvas: c}).WriteTo(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
