package report

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptrF(v float64) *float64 { return &v }
func ptrI(v int) *int         { return &v }

func TestMergeOverwritesOnlySuppliedKeys(t *testing.T) {
	s := NewMetricsSnapshot()
	s.Merge(MetricsPatch{
		Counts: map[MetricCategory]map[Weekday]int{
			CategoryHumanIntrusions:   {Monday: 5, Tuesday: 2},
			CategoryVehicleIntrusions: {Friday: 1},
		},
		AIAccuracy: ptrF(97.5),
	})

	// Second partial touches Monday only; Tuesday and the vehicle
	// counts must survive.
	s.Merge(MetricsPatch{
		Counts: map[MetricCategory]map[Weekday]int{
			CategoryHumanIntrusions: {Monday: 7},
		},
		ResponseTime: ptrF(4.25),
	})

	assert.Equal(t, 7, s.DayCount(CategoryHumanIntrusions, Monday))
	assert.Equal(t, 2, s.DayCount(CategoryHumanIntrusions, Tuesday))
	assert.Equal(t, 1, s.DayCount(CategoryVehicleIntrusions, Friday))
	assert.Equal(t, 97.5, s.AIAccuracy)
	assert.Equal(t, 4.25, s.ResponseTime)
}

func TestMergeSequenceEqualsDeepMergeInCallOrder(t *testing.T) {
	patches := []MetricsPatch{
		{Counts: map[MetricCategory]map[Weekday]int{CategoryPotentialThreats: {Monday: 1, Sunday: 3}}},
		{Counts: map[MetricCategory]map[Weekday]int{CategoryPotentialThreats: {Sunday: 9}}, OperationalUptime: ptrF(99.9)},
		{Counts: map[MetricCategory]map[Weekday]int{CategoryProactiveAlerts: {Wednesday: 4}}},
		{OperationalUptime: ptrF(98.0)},
	}

	s := NewMetricsSnapshot()
	for _, p := range patches {
		s.Merge(p)
	}

	assert.Equal(t, 1, s.DayCount(CategoryPotentialThreats, Monday))
	assert.Equal(t, 9, s.DayCount(CategoryPotentialThreats, Sunday), "last value per key wins")
	assert.Equal(t, 4, s.DayCount(CategoryProactiveAlerts, Wednesday))
	assert.Equal(t, 98.0, s.OperationalUptime, "last value per key wins")
}

func TestMergeClampsInvalidValues(t *testing.T) {
	s := NewMetricsSnapshot()
	s.Merge(MetricsPatch{
		Counts:            map[MetricCategory]map[Weekday]int{CategoryHumanIntrusions: {Monday: -3}},
		AIAccuracy:        ptrF(150),
		OperationalUptime: ptrF(-5),
		ResponseTime:      ptrF(-1),
	})

	assert.Equal(t, 0, s.DayCount(CategoryHumanIntrusions, Monday))
	assert.Equal(t, 100.0, s.AIAccuracy)
	assert.Equal(t, 0.0, s.OperationalUptime)
	assert.Equal(t, 0.0, s.ResponseTime)
}

func TestMergeWithNilCountsKeepsScalars(t *testing.T) {
	// A corrupt metrics file can load a snapshot whose Counts map is
	// nil while the scalars survived.
	s := MetricsSnapshot{AIAccuracy: 96.5, OperationalUptime: 99.2, ResponseTime: 3.1, TotalCameras: 14, CamerasOnline: 12}

	s.Merge(MetricsPatch{Counts: map[MetricCategory]map[Weekday]int{
		CategoryHumanIntrusions: {Monday: 2},
	}})

	assert.Equal(t, 2, s.DayCount(CategoryHumanIntrusions, Monday))
	assert.Equal(t, 96.5, s.AIAccuracy)
	assert.Equal(t, 99.2, s.OperationalUptime)
	assert.Equal(t, 3.1, s.ResponseTime)
	assert.Equal(t, 14, s.TotalCameras)
	assert.Equal(t, 12, s.CamerasOnline)
}

func TestWeekTotal(t *testing.T) {
	s := NewMetricsSnapshot()
	s.Merge(MetricsPatch{Counts: map[MetricCategory]map[Weekday]int{
		CategoryHumanIntrusions: {Monday: 5, Thursday: 2, Sunday: 1},
	}})
	assert.Equal(t, 8, s.WeekTotal(CategoryHumanIntrusions))
	assert.Equal(t, 0, s.WeekTotal(CategoryVehicleIntrusions))
}

func TestHasData(t *testing.T) {
	s := NewMetricsSnapshot()
	assert.False(t, s.HasData())

	s.Merge(MetricsPatch{CamerasOnline: ptrI(12), TotalCameras: ptrI(14)})
	assert.True(t, s.HasData())
}

func TestNewSnapshotHasAllDaysAtZero(t *testing.T) {
	s := NewMetricsSnapshot()
	for _, cat := range CountCategories() {
		require.Len(t, s.Counts[cat], 7)
		for _, d := range Weekdays() {
			assert.Equal(t, 0, s.Counts[cat][d])
		}
	}
}
