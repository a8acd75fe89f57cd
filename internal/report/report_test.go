package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWeekday(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Weekday
		wantErr bool
	}{
		{name: "exact", input: "Monday", want: Monday},
		{name: "lowercase", input: "friday", want: Friday},
		{name: "uppercase", input: "SUNDAY", want: Sunday},
		{name: "unknown", input: "Funday", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseWeekday(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSetDayUpdatesExactlyOneEntry(t *testing.T) {
	draft := NewDraft(time.Now())

	require.NoError(t, draft.SetDay(Wednesday, "Perimeter sweep at 0200, no anomalies.", NarrativeCompleted, CodeAllClear))

	for _, n := range draft.DailyNarratives {
		if n.Day == Wednesday {
			assert.Equal(t, "Perimeter sweep at 0200, no anomalies.", n.Content)
			assert.Equal(t, NarrativeCompleted, n.Status)
			continue
		}
		assert.Empty(t, n.Content, "day %s should be untouched", n.Day)
		assert.Equal(t, NarrativeToUpdate, n.Status, "day %s should be untouched", n.Day)
	}
}

func TestSetDayUnknownWeekday(t *testing.T) {
	draft := NewDraft(time.Now())
	err := draft.SetDay("Smonday", "x", "", "")
	require.Error(t, err)
}

func TestNewDraftHasSevenUniqueNarratives(t *testing.T) {
	draft := NewDraft(time.Now())
	require.Len(t, draft.DailyNarratives, 7)

	seen := map[Weekday]bool{}
	for _, n := range draft.DailyNarratives {
		assert.False(t, seen[n.Day], "duplicate day %s", n.Day)
		seen[n.Day] = true
	}
	for _, d := range Weekdays() {
		assert.True(t, seen[d], "missing day %s", d)
	}
}

func TestWeekOf(t *testing.T) {
	// 2025-06-11 is a Wednesday.
	wed := time.Date(2025, 6, 11, 15, 30, 0, 0, time.UTC)
	r := WeekOf(wed)
	assert.Equal(t, time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC), r.Start)
	assert.Equal(t, time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC), r.End)
	assert.Equal(t, time.Monday, r.Start.Weekday())
	assert.Equal(t, time.Sunday, r.End.Weekday())

	// A Monday maps to itself.
	mon := time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, mon, WeekOf(mon).Start)

	// A Sunday belongs to the week that started six days earlier.
	sun := time.Date(2025, 6, 15, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC), WeekOf(sun).Start)
}

func TestMediaExpiry(t *testing.T) {
	now := time.Now()
	draft := NewDraft(now)
	draft.AddMedia(MediaAttachment{ID: "m1", Name: "gate-cam.mp4", Expiry: now.Add(time.Hour)})
	draft.AddMedia(MediaAttachment{ID: "m2", Name: "old-clip.mp4", Expiry: now.Add(-time.Minute)})

	draft.RefreshMedia(now)

	require.Len(t, draft.Media, 2, "expired media must be kept, not deleted")
	assert.False(t, draft.Media[0].Inert)
	assert.True(t, draft.Media[1].Inert)

	active := draft.ActiveMedia(now)
	require.Len(t, active, 1)
	assert.Equal(t, "m1", active[0].ID)
}

func TestSendablePreconditions(t *testing.T) {
	draft := NewDraft(time.Now())
	require.Error(t, draft.Sendable(), "no client, no recipients")

	draft.ClientID = "acme-plaza"
	require.Error(t, draft.Sendable(), "still no recipients")

	draft.Delivery.EmailRecipients = []string{"ops@acme.example"}
	require.NoError(t, draft.Sendable())

	// Recipients on a disabled channel do not count.
	draft.Delivery.EmailEnabled = false
	require.Error(t, draft.Sendable())
	draft.Delivery.SMSEnabled = true
	draft.Delivery.SMSRecipients = []string{"+15550100"}
	require.NoError(t, draft.Sendable())
}

func TestCloneIsDeep(t *testing.T) {
	draft := NewDraft(time.Now())
	draft.Metrics.Merge(MetricsPatch{Counts: map[MetricCategory]map[Weekday]int{
		CategoryHumanIntrusions: {Monday: 5},
	}})
	clone := draft.Clone()

	clone.Metrics.Counts[CategoryHumanIntrusions][Monday] = 99
	require.NoError(t, clone.SetDay(Monday, "changed", "", ""))

	assert.Equal(t, 5, draft.Metrics.DayCount(CategoryHumanIntrusions, Monday))
	orig, _ := draft.Narrative(Monday)
	assert.Empty(t, orig.Content)
}
