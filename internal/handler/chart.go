package handler

import (
	"bytes"
	"fmt"
	"net/http"
	"sort"
	"time"

	"zonecounter/internal/counting"
	"zonecounter/internal/logger"
	"zonecounter/internal/service"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// ZonesChartHandler renders the per-zone cumulative entry series as an HTML line chart.
func ZonesChartHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		series := manager.Series()
		line := buildSeriesChart(series.Zones, series.TotalEntries)

		var buf bytes.Buffer
		if err := line.Render(&buf); err != nil {
			logger.Error("Error rendering zone chart: %v", err)
			http.Error(w, "render error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(buf.Bytes())
	}
}

func buildSeriesChart(zones []counting.ZoneStats, totalEntries int) *charts.Line {
	// Zones created later have shorter series; align all of them on the
	// union of sample times.
	seen := make(map[time.Time]bool)
	var stamps []time.Time
	for _, z := range zones {
		for _, p := range z.Series {
			if !seen[p.Timestamp] {
				seen[p.Timestamp] = true
				stamps = append(stamps, p.Timestamp)
			}
		}
	}
	sort.Slice(stamps, func(i, j int) bool { return stamps[i].Before(stamps[j]) })

	labels := make([]string, len(stamps))
	for i, ts := range stamps {
		labels[i] = ts.Local().Format("15:04:05")
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Zone entries", Width: "100%", Height: "480px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Zone entries", Subtitle: fmt.Sprintf("zones=%d total entries=%d", len(zones), totalEntries)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "entries"}),
	)
	line.SetXAxis(labels)

	for _, z := range zones {
		values := make(map[time.Time]int, len(z.Series))
		for _, p := range z.Series {
			values[p.Timestamp] = p.Value
		}
		data := make([]opts.LineData, len(stamps))
		for i, ts := range stamps {
			if v, ok := values[ts]; ok {
				data[i] = opts.LineData{Value: v}
			} else {
				data[i] = opts.LineData{Value: nil}
			}
		}
		line.AddSeries(fmt.Sprintf("%s (%d)", z.Label, z.Total), data)
	}
	return line
}
