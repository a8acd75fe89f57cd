package rasterize

import (
	"fmt"
	"html/template"
	"strings"

	"github.com/SeanSwan/Apex-sub007/internal/report"
)

// chartTemplate lays out a grouped bar chart, one group per weekday,
// one bar per intrusion category. It is deliberately dependency-free
// HTML/CSS so the data URL needs no network access.
var chartTemplate = template.Must(template.New("chart").Parse(`<!DOCTYPE html>
<html>
<head>
<style>
  body { margin: 0; font-family: {{.FontName}}, sans-serif; background: #ffffff; }
  #chart { width: 760px; padding: 16px; background: #ffffff; }
  h3 { margin: 0 0 12px 0; color: {{.PrimaryColor}}; font-size: 16px; }
  .plot { display: flex; align-items: flex-end; height: 220px; gap: 18px;
          border-bottom: 2px solid {{.PrimaryColor}}; }
  .group { display: flex; align-items: flex-end; gap: 3px; flex: 1; height: 100%; }
  .bar { flex: 1; min-height: 1px; border-radius: 2px 2px 0 0; }
  .labels { display: flex; gap: 18px; margin-top: 6px; }
  .labels div { flex: 1; text-align: center; font-size: 11px; color: #555; }
  .legend { display: flex; gap: 14px; margin-top: 10px; font-size: 11px; color: #333; }
  .swatch { display: inline-block; width: 10px; height: 10px; margin-right: 4px;
            border-radius: 2px; vertical-align: middle; }
</style>
</head>
<body>
<div id="chart">
  <h3>Weekly Intrusion Activity</h3>
  <div class="plot">
  {{range .Days}}
    <div class="group">
    {{range .Bars}}
      <div class="bar" style="height: {{.HeightPct}}%; background: {{.Color}};" title="{{.Label}}: {{.Value}}"></div>
    {{end}}
    </div>
  {{end}}
  </div>
  <div class="labels">
  {{range .Days}}<div>{{.Name}}</div>{{end}}
  </div>
  <div class="legend">
  {{range .Legend}}
    <span><span class="swatch" style="background: {{.Color}};"></span>{{.Label}}</span>
  {{end}}
  </div>
</div>
</body>
</html>`))

type chartBar struct {
	Label     string
	Value     int
	HeightPct float64
	Color     string
}

type chartDay struct {
	Name string
	Bars []chartBar
}

type chartLegendEntry struct {
	Label string
	Color string
}

type chartData struct {
	FontName     string
	PrimaryColor string
	Days         []chartDay
	Legend       []chartLegendEntry
}

// categoryColors assigns one series color per category, keyed off the
// theme's accent color for the first series.
func categoryColors(theme report.BrandingSettings) map[report.MetricCategory]string {
	accent := theme.AccentColor
	if accent == "" {
		accent = "#3498db"
	}
	return map[report.MetricCategory]string{
		report.CategoryHumanIntrusions:   accent,
		report.CategoryVehicleIntrusions: "#e67e22",
		report.CategoryPotentialThreats:  "#e74c3c",
		report.CategoryProactiveAlerts:   "#2ecc71",
	}
}

// BuildChartHTML renders the self-contained chart page for a week of
// metrics, themed with the draft's branding.
func BuildChartHTML(snapshot report.MetricsSnapshot, theme report.BrandingSettings) (string, error) {
	colors := categoryColors(theme)

	// Scale bars against the busiest single day/category.
	maxVal := 1
	for _, cat := range report.CountCategories() {
		for _, d := range report.Weekdays() {
			if v := snapshot.DayCount(cat, d); v > maxVal {
				maxVal = v
			}
		}
	}

	data := chartData{
		FontName:     theme.FontName,
		PrimaryColor: theme.PrimaryColor,
	}
	if data.FontName == "" {
		data.FontName = "Arial"
	}
	if data.PrimaryColor == "" {
		data.PrimaryColor = "#1e3a5f"
	}

	for _, d := range report.Weekdays() {
		day := chartDay{Name: string(d)[:3]}
		for _, cat := range report.CountCategories() {
			v := snapshot.DayCount(cat, d)
			day.Bars = append(day.Bars, chartBar{
				Label:     report.CategoryDisplayName(cat),
				Value:     v,
				HeightPct: float64(v) / float64(maxVal) * 100,
				Color:     colors[cat],
			})
		}
		data.Days = append(data.Days, day)
	}
	for _, cat := range report.CountCategories() {
		data.Legend = append(data.Legend, chartLegendEntry{
			Label: report.CategoryDisplayName(cat),
			Color: colors[cat],
		})
	}

	var b strings.Builder
	if err := chartTemplate.Execute(&b, data); err != nil {
		return "", fmt.Errorf("chart template: %w", err)
	}
	return b.String(), nil
}
