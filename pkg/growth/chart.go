package growth

import (
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/Sumatoshi-tech/loctrail/pkg/ledger"
)

const (
	chartWidth   = "100%"
	chartHeight  = "560px"
	totalSeries  = "total"
	zoomEndPct   = 100
	seriesWidth  = 1
	totalWidth   = 3
	textColor    = "#e0def4"
	mutedColor   = "#908caa"
	gridColor    = "#26233a"
	axisColor    = "#6e6a86"
	background   = "#191724"
	echartsTheme = "dark"
)

// Chart builds a line chart with one series per subtree plus the total.
func Chart(t ledger.Table, title string) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle:       title,
			Width:           chartWidth,
			Height:          chartHeight,
			BackgroundColor: background,
			Theme:           echartsTheme,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:      title,
			Subtitle:   "lines of code per collected day",
			Left:       "center",
			TitleStyle: &opts.TextStyle{Color: textColor},
		}),
		charts.WithLegendOpts(opts.Legend{
			Show:      opts.Bool(true),
			Top:       "10%",
			Left:      "center",
			TextStyle: &opts.TextStyle{Color: mutedColor},
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(
			opts.DataZoom{Type: "slider", Start: 0, End: zoomEndPct},
			opts.DataZoom{Type: "inside"},
		),
		charts.WithXAxisOpts(opts.XAxis{
			Name:      "day",
			AxisLabel: &opts.AxisLabel{Color: mutedColor},
			AxisLine:  &opts.AxisLine{LineStyle: &opts.LineStyle{Color: axisColor}},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Name:      "code",
			AxisLabel: &opts.AxisLabel{Color: mutedColor},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: gridColor}},
		}),
	)

	days := make([]string, len(t.Rows))
	for i, r := range t.Rows {
		days[i] = r.Day.String()
	}

	line.SetXAxis(days)

	for n, name := range t.Names {
		data := make([]opts.LineData, len(t.Rows))
		for i, r := range t.Rows {
			data[i] = opts.LineData{Value: r.Metrics[n].Code}
		}

		line.AddSeries(name, data,
			charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}),
			charts.WithLineStyleOpts(opts.LineStyle{Width: seriesWidth}),
		)
	}

	totals := make([]opts.LineData, len(t.Rows))
	for i, r := range t.Rows {
		totals[i] = opts.LineData{Value: r.TotalCode}
	}

	line.AddSeries(totalSeries, totals,
		charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}),
		charts.WithLineStyleOpts(opts.LineStyle{Width: totalWidth}),
		charts.WithAreaStyleOpts(opts.AreaStyle{Opacity: opts.Float(0.1)}),
	)

	return line
}

// RenderHTML writes the growth chart of t as a standalone HTML page.
func RenderHTML(w io.Writer, t ledger.Table, title string) error {
	return Chart(t, title).Render(w)
}
