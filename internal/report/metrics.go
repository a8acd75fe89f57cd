package report

import "math"

// MetricCategory names a count-type metric tracked per weekday.
type MetricCategory string

const (
	CategoryHumanIntrusions   MetricCategory = "humanIntrusions"
	CategoryVehicleIntrusions MetricCategory = "vehicleIntrusions"
	CategoryPotentialThreats  MetricCategory = "potentialThreats"
	CategoryProactiveAlerts   MetricCategory = "proactiveAlerts"
)

// CountCategories returns the count-type categories in table order.
func CountCategories() []MetricCategory {
	return []MetricCategory{
		CategoryHumanIntrusions,
		CategoryVehicleIntrusions,
		CategoryPotentialThreats,
		CategoryProactiveAlerts,
	}
}

// CategoryDisplayName maps a category to its report-table label.
func CategoryDisplayName(c MetricCategory) string {
	switch c {
	case CategoryHumanIntrusions:
		return "Human Intrusions"
	case CategoryVehicleIntrusions:
		return "Vehicle Intrusions"
	case CategoryPotentialThreats:
		return "Potential Threats"
	case CategoryProactiveAlerts:
		return "Proactive Alerts"
	}
	return string(c)
}

// MetricsSnapshot holds one week of monitoring data for a client.
// Count categories are keyed by weekday; the scalar fields pass
// through to the report unchanged.
type MetricsSnapshot struct {
	Counts            map[MetricCategory]map[Weekday]int `json:"counts"`
	AIAccuracy        float64                            `json:"aiAccuracy"`        // percent, 0-100
	OperationalUptime float64                            `json:"operationalUptime"` // percent, 0-100
	ResponseTime      float64                            `json:"responseTime"`      // seconds
	TotalCameras      int                                `json:"totalCameras"`
	CamerasOnline     int                                `json:"camerasOnline"`
}

// NewMetricsSnapshot returns a snapshot with every category and day
// present at zero, so missing values always render as 0.
func NewMetricsSnapshot() MetricsSnapshot {
	counts := make(map[MetricCategory]map[Weekday]int, len(CountCategories()))
	for _, c := range CountCategories() {
		days := make(map[Weekday]int, 7)
		for _, d := range Weekdays() {
			days[d] = 0
		}
		counts[c] = days
	}
	return MetricsSnapshot{Counts: counts}
}

// MetricsPatch is a partial update. Nil maps and nil scalars leave the
// corresponding snapshot values untouched; supplied keys overwrite.
type MetricsPatch struct {
	Counts            map[MetricCategory]map[Weekday]int `json:"counts,omitempty"`
	AIAccuracy        *float64                           `json:"aiAccuracy,omitempty"`
	OperationalUptime *float64                           `json:"operationalUptime,omitempty"`
	ResponseTime      *float64                           `json:"responseTime,omitempty"`
	TotalCameras      *int                               `json:"totalCameras,omitempty"`
	CamerasOnline     *int                               `json:"camerasOnline,omitempty"`
}

// Merge applies a partial update in place. Only supplied keys and days
// overwrite; unrelated categories are never dropped. Counts are
// clamped to zero and percentages to [0, 100].
func (s *MetricsSnapshot) Merge(patch MetricsPatch) {
	if s.Counts == nil {
		// Only the map is rebuilt; scalars already on the snapshot stay.
		s.Counts = NewMetricsSnapshot().Counts
	}
	for cat, days := range patch.Counts {
		dst := s.Counts[cat]
		if dst == nil {
			dst = make(map[Weekday]int, 7)
			s.Counts[cat] = dst
		}
		for day, v := range days {
			if v < 0 {
				v = 0
			}
			dst[day] = v
		}
	}
	if patch.AIAccuracy != nil {
		s.AIAccuracy = clampPercent(*patch.AIAccuracy)
	}
	if patch.OperationalUptime != nil {
		s.OperationalUptime = clampPercent(*patch.OperationalUptime)
	}
	if patch.ResponseTime != nil {
		s.ResponseTime = math.Max(0, *patch.ResponseTime)
	}
	if patch.TotalCameras != nil && *patch.TotalCameras >= 0 {
		s.TotalCameras = *patch.TotalCameras
	}
	if patch.CamerasOnline != nil && *patch.CamerasOnline >= 0 {
		s.CamerasOnline = *patch.CamerasOnline
	}
}

// WeekTotal sums a count category across the week. Downstream
// consumers aggregate on demand; nothing is precomputed here.
func (s MetricsSnapshot) WeekTotal(cat MetricCategory) int {
	total := 0
	for _, v := range s.Counts[cat] {
		total += v
	}
	return total
}

// DayCount returns a single day's count, zero when absent.
func (s MetricsSnapshot) DayCount(cat MetricCategory, day Weekday) int {
	return s.Counts[cat][day]
}

// HasData reports whether any count or scalar is non-zero, used by the
// workflow progress calculation.
func (s MetricsSnapshot) HasData() bool {
	for _, cat := range CountCategories() {
		if s.WeekTotal(cat) > 0 {
			return true
		}
	}
	return s.AIAccuracy > 0 || s.OperationalUptime > 0 || s.ResponseTime > 0 || s.CamerasOnline > 0
}

// Clone deep-copies the snapshot so stage components can hold it
// without aliasing the draft.
func (s MetricsSnapshot) Clone() MetricsSnapshot {
	out := s
	out.Counts = make(map[MetricCategory]map[Weekday]int, len(s.Counts))
	for cat, days := range s.Counts {
		dd := make(map[Weekday]int, len(days))
		for day, v := range days {
			dd[day] = v
		}
		out.Counts[cat] = dd
	}
	return out
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
