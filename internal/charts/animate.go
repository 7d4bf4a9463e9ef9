package charts

import (
	"context"
	"fmt"
	"image"
	"image/color"
	stdpalette "image/color/palette"
	stddraw "image/draw"
	"image/gif"
	"io"
	"os"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/VJean/velib/internal/records"
)

const (
	FrameTitleLayout = "2006-01-02 15:04-0700"

	// frameDelay is 1000/60 ms in GIF centiseconds, rounded up to the
	// smallest delay viewers honour.
	frameDelay     = 2
	occupationBins = 10
	bikeBins       = 10
)

// frameScale holds the axis limits shared by every frame.
type frameScale struct {
	stations int
	maxBikes float64
}

func newFrameScale(recs []records.Record) frameScale {
	names := make(map[string]struct{})
	bikes := make([]float64, len(recs))
	for i, r := range recs {
		names[r.StationName] = struct{}{}
		bikes[i] = float64(r.TotalBikes())
	}
	return frameScale{stations: len(names), maxBikes: floats.Max(bikes)}
}

// Animate renders one frame per instant and writes a looping GIF to w.
// Frame titles show the instant in loc.
func Animate(ctx context.Context, w io.Writer, recs []records.Record, loc *time.Location) error {
	if len(recs) == 0 {
		return ErrNoData
	}
	if loc == nil {
		loc = time.UTC
	}
	scale := newFrameScale(recs)
	groups := groupByTimestamp(recs)

	anim := &gif.GIF{LoopCount: 0}
	for _, g := range groups {
		if err := ctx.Err(); err != nil {
			return err
		}
		c, err := renderFrame(g, scale, loc)
		if err != nil {
			return fmt.Errorf("frame %s: %w", g.Time.Format(FrameTitleLayout), err)
		}
		anim.Image = append(anim.Image, quantize(c.Image()))
		anim.Delay = append(anim.Delay, frameDelay)
	}
	return gif.EncodeAll(w, anim)
}

// SaveAnimation writes Animate's output to path.
func SaveAnimation(ctx context.Context, recs []records.Record, loc *time.Location, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Animate(ctx, f, recs, loc); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// renderFrame lays out the map over the two histograms with a 3:1 height split.
func renderFrame(g group, scale frameScale, loc *time.Location) (*vgimg.Canvas, error) {
	xys := make(plotter.XYs, len(g.Records))
	ratios := make([]float64, 0, len(g.Records))
	bikes := make([]float64, len(g.Records))
	colors := make([]color.Color, len(g.Records))
	for i, r := range g.Records {
		xys[i].X, xys[i].Y = r.Lon, r.Lat
		bikes[i] = float64(r.TotalBikes())
		ratio, ok := r.OccupationRatio()
		if !ok {
			colors[i] = noData
			continue
		}
		ratios = append(ratios, ratio)
		colors[i] = ramp(viridisReversed, ratio)
	}

	scatter, err := plotter.NewScatter(xys)
	if err != nil {
		return nil, fmt.Errorf("scatter: %w", err)
	}
	scatter.GlyphStyleFunc = func(i int) draw.GlyphStyle {
		return draw.GlyphStyle{Color: colors[i], Radius: vg.Points(1.5), Shape: draw.CircleGlyph{}}
	}
	m := plot.New()
	m.Title.Text = g.Time.In(loc).Format(FrameTitleLayout)
	m.Add(scatter)
	setExtent(m)

	occ := plot.New()
	occ.Title.Text = "Occupation"
	occ.X.Label.Text = "occupation %"
	occ.Y.Label.Text = "stations"
	occ.Add(newHistogram(histogram(ratios, 0, 1, occupationBins), 0, 1.0/occupationBins, barFill))
	occ.X.Min, occ.X.Max = 0, 1
	occ.Y.Min, occ.Y.Max = 0, float64(scale.stations)

	maxBikes := scale.maxBikes
	if maxBikes <= 0 {
		maxBikes = 1
	}
	bk := plot.New()
	bk.Title.Text = "Total bikes in station"
	bk.X.Label.Text = "bikes"
	bk.Add(newHistogram(histogram(bikes, 0, maxBikes, bikeBins), 0, maxBikes/bikeBins, barFill))
	bk.X.Min, bk.X.Max = 0, maxBikes
	bk.Y.Min, bk.Y.Max = 0, float64(scale.stations)
	bk.Y.Tick.Marker = plot.ConstantTicks{}

	c := vgimg.NewWith(vgimg.UseWH(6*vg.Inch, 7*vg.Inch), vgimg.UseDPI(100), vgimg.UseBackgroundColor(color.White))
	dc := draw.New(c)
	h := dc.Max.Y - dc.Min.Y
	half := (dc.Max.X - dc.Min.X) / 2
	m.Draw(draw.Crop(dc, 0, 0, h/4, 0))
	bottom := draw.Crop(dc, 0, 0, 0, -h*3/4)
	occ.Draw(draw.Crop(bottom, 0, -half, 0, 0))
	bk.Draw(draw.Crop(bottom, half, 0, 0, 0))
	return c, nil
}

// quantize maps a rendered frame onto the Plan 9 palette with dithering.
func quantize(img image.Image) *image.Paletted {
	b := img.Bounds()
	p := image.NewPaletted(b, stdpalette.Plan9)
	stddraw.FloydSteinberg.Draw(p, b, img, b.Min)
	return p
}
