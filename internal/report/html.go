package report

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/glitch.report/internal/campaign"
)

var outcomeColors = map[campaign.Outcome]string{
	campaign.Success: "#1a9e3a",
	campaign.Reset:   "#d62728",
	campaign.Normal:  "#9e9e9e",
}

// WriteHTML renders an interactive scatter with one series per outcome,
// followed by a bar chart of outcome counts.
func WriteHTML(w io.Writer, res *campaign.Result, x, y string) error {
	x, y, err := PlotAxes(res, x, y)
	if err != nil {
		return err
	}
	yName := y
	if yName == "" {
		yName = "repeat"
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Glitch campaign " + res.ID, Width: "900px", Height: "700px"}),
		charts.WithTitleOpts(opts.Title{Title: "Glitch outcomes", Subtitle: fmt.Sprintf("campaign=%s trials=%d", res.ID, res.Len())}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: x, NameLocation: "middle", NameGap: 25, Type: "value"}),
		charts.WithYAxisOpts(opts.YAxis{Name: yName, NameLocation: "middle", NameGap: 30, Type: "value"}),
	)
	for _, o := range campaign.Outcomes {
		recs := res.Filter(o)
		data := make([]opts.ScatterData, 0, len(recs))
		for _, rec := range recs {
			px, py := point(rec, x, y)
			data = append(data, opts.ScatterData{Name: rec.Setting.String(), Value: []interface{}{px, py}})
		}
		scatter.AddSeries(string(o), data,
			charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 8}),
			charts.WithItemStyleOpts(opts.ItemStyle{Color: outcomeColors[o]}),
		)
	}

	counts := res.Counts()
	bars := make([]opts.BarData, 0, len(campaign.Outcomes))
	names := make([]string, 0, len(campaign.Outcomes))
	for _, o := range campaign.Outcomes {
		names = append(names, string(o))
		bars = append(bars, opts.BarData{Value: counts[o], ItemStyle: &opts.ItemStyle{Color: outcomeColors[o]}})
	}
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "360px"}),
		charts.WithTitleOpts(opts.Title{Title: "Outcome counts"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(names).AddSeries("trials", bars,
		charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
	)

	page := components.NewPage()
	page.AddCharts(scatter, bar)
	return page.Render(w)
}
