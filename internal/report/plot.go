package report

import (
	"fmt"
	"image/color"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/glitch.report/internal/campaign"
)

var (
	successColor = color.RGBA{R: 0x1a, G: 0x9e, B: 0x3a, A: 0xff}
	resetColor   = color.RGBA{R: 0xd6, G: 0x27, B: 0x28, A: 0xff}
)

// PlotAxes picks the axes to plot: the requested ones if given, otherwise
// the first two axes of the campaign. A single-axis campaign plots against
// the repeat index.
func PlotAxes(res *campaign.Result, x, y string) (string, string, error) {
	if x == "" && len(res.Axes) > 0 {
		x = res.Axes[0]
	}
	if y == "" && len(res.Axes) > 1 {
		y = res.Axes[1]
	}
	for _, name := range []string{x, y} {
		if name == "" {
			continue
		}
		if !hasAxis(res, name) {
			return "", "", fmt.Errorf("campaign %s has no axis %q", res.ID, name)
		}
	}
	if x == "" {
		return "", "", fmt.Errorf("campaign %s has no axes", res.ID)
	}
	return x, y, nil
}

func hasAxis(res *campaign.Result, name string) bool {
	for _, a := range res.Axes {
		if a == name {
			return true
		}
	}
	return false
}

func point(rec campaign.Record, x, y string) (float64, float64) {
	px, _ := rec.Setting.Get(x)
	if y == "" {
		return px, float64(rec.Repeat)
	}
	py, _ := rec.Setting.Get(y)
	return px, py
}

// WritePlotPNG draws successes as green plus signs and resets as red
// crosses over the x/y plane. Normal trials are left out.
func WritePlotPNG(w io.Writer, res *campaign.Result, x, y string) error {
	x, y, err := PlotAxes(res, x, y)
	if err != nil {
		return err
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Glitch campaign %s", res.ID)
	p.X.Label.Text = x
	p.Y.Label.Text = y
	if y == "" {
		p.Y.Label.Text = "repeat"
	}
	p.Add(plotter.NewGrid())

	series := []struct {
		outcome campaign.Outcome
		color   color.Color
		shape   draw.GlyphDrawer
	}{
		{campaign.Success, successColor, draw.PlusGlyph{}},
		{campaign.Reset, resetColor, draw.CrossGlyph{}},
	}
	for _, sr := range series {
		recs := res.Filter(sr.outcome)
		if len(recs) == 0 {
			continue
		}
		pts := make(plotter.XYs, len(recs))
		for i, rec := range recs {
			pts[i].X, pts[i].Y = point(rec, x, y)
		}
		sc, err := plotter.NewScatter(pts)
		if err != nil {
			return err
		}
		sc.GlyphStyle.Color = sr.color
		sc.GlyphStyle.Shape = sr.shape
		sc.GlyphStyle.Radius = vg.Points(3)
		p.Add(sc)
		p.Legend.Add(string(sr.outcome), sc)
	}

	wt, err := p.WriterTo(8*vg.Inch, 6*vg.Inch, "png")
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}
