package render

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SeanSwan/Apex-sub007/internal/report"
)

func testClient() report.Client {
	return report.Client{
		ID:       "acme-plaza",
		Name:     "Acme Plaza",
		Location: "Los Angeles, CA",
	}
}

func testDraft(t *testing.T) *report.ReportDraft {
	t.Helper()
	draft := report.NewDraft(time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC))
	draft.ClientID = "acme-plaza"
	require.NoError(t, draft.SetDay(report.Monday, "Quiet shift, two patrol rounds.", report.NarrativeCompleted, report.CodeAllClear))
	require.NoError(t, draft.SetDay(report.Wednesday, "Vehicle loitering near loading dock; operator dispatched guard.", report.NarrativeCompleted, report.CodeSuspicious))
	draft.SummaryText = "No incidents requiring escalation this week."
	draft.Signature = "J. Reyes, Operations Lead"
	draft.Metrics.Merge(report.MetricsPatch{Counts: map[report.MetricCategory]map[report.Weekday]int{
		report.CategoryHumanIntrusions:   {report.Monday: 3, report.Wednesday: 1},
		report.CategoryVehicleIntrusions: {report.Wednesday: 2},
	}})
	return draft
}

// uncompressed generates the draft with stream compression off so the
// content stream text is directly inspectable.
func uncompressed(t *testing.T, draft *report.ReportDraft) *Document {
	t.Helper()
	g := NewGenerator()
	g.SetCompression(false)
	doc, err := g.Generate(draft, testClient())
	require.NoError(t, err)
	return doc
}

func TestGenerateProducesPDF(t *testing.T) {
	g := NewGenerator()
	doc, err := g.Generate(testDraft(t), testClient())
	require.NoError(t, err)

	assert.True(t, bytes.HasPrefix(doc.Bytes, []byte("%PDF-")))
	assert.GreaterOrEqual(t, doc.PageCount, 1)
	assert.NotZero(t, doc.Reader().Len())
}

func TestGenerateContainsReportSections(t *testing.T) {
	doc := uncompressed(t, testDraft(t))
	body := string(doc.Bytes)

	assert.Contains(t, body, "Weekly Security Report")
	assert.Contains(t, body, "Acme Plaza")
	assert.Contains(t, body, "Daily Activity")
	assert.Contains(t, body, "Code 2", "Wednesday's security code appears")
	assert.Contains(t, body, "Summary & Compliance Notes")
	assert.Contains(t, body, "J. Reyes, Operations Lead")
	// Days with empty content are omitted entirely.
	assert.NotContains(t, body, "Thursday  -  ")
}

func TestGenerateMissingMetricsRenderAsZero(t *testing.T) {
	draft := report.NewDraft(time.Now())
	draft.ClientID = "c1"
	doc := uncompressed(t, draft)
	body := string(doc.Bytes)

	assert.Contains(t, body, "0.00%", "absent percentages render as zero, not blank")
	assert.Contains(t, body, "0.00 s")
	assert.Contains(t, body, "0 / 0")
}

func TestGeneratePaginatesLongNarratives(t *testing.T) {
	draft := testDraft(t)
	long := strings.Repeat("Operator observed and logged routine foot traffic along the perimeter. ", 40)
	for _, day := range report.Weekdays() {
		require.NoError(t, draft.SetDay(day, long, report.NarrativeCompleted, report.CodeRoutine))
	}

	doc := uncompressed(t, draft)
	require.GreaterOrEqual(t, doc.PageCount, 2, "overflowing narratives must page-break, never clip")

	body := string(doc.Bytes)
	for i := 1; i <= doc.PageCount; i++ {
		assert.Contains(t, body, fmt.Sprintf("Page %d of %d", i, doc.PageCount))
	}
}

func TestGenerateDeterministicForUnchangedDraft(t *testing.T) {
	draft := testDraft(t)
	g := NewGenerator()

	a, err := g.Generate(draft, testClient())
	require.NoError(t, err)
	b, err := g.Generate(draft, testClient())
	require.NoError(t, err)

	// The same draft yields the same document whether it is headed for
	// download or upload.
	assert.Equal(t, a.PageCount, b.PageCount)
	assert.Equal(t, len(a.Bytes), len(b.Bytes))
}

func TestGenerateEmbedsCapturedChart(t *testing.T) {
	draft := testDraft(t)
	// A real 1x1 PNG; the renderer must register and place it.
	draft.RenderedChartImage = onePixelPNG()

	g := NewGenerator()
	doc, err := g.Generate(draft, testClient())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(doc.Bytes, []byte("%PDF-")))
}

func TestHexToRGB(t *testing.T) {
	tests := []struct {
		in   string
		want [3]int
	}{
		{"#1e3a5f", [3]int{30, 58, 95}},
		{"1e3a5f", [3]int{30, 58, 95}},
		{"  #FFFFFF ", [3]int{255, 255, 255}},
		{"", [3]int{1, 2, 3}},
		{"#xyz", [3]int{1, 2, 3}},
		{"#12345", [3]int{1, 2, 3}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, hexToRGB(tt.in, [3]int{1, 2, 3}), tt.in)
	}
}

func TestThemeFont(t *testing.T) {
	assert.Equal(t, "Times", themeFont(report.BrandingSettings{FontName: "Times New Roman"}))
	assert.Equal(t, "Courier", themeFont(report.BrandingSettings{FontName: "courier"}))
	assert.Equal(t, "Arial", themeFont(report.BrandingSettings{FontName: "Comic Sans"}))
	assert.Equal(t, "Arial", themeFont(report.BrandingSettings{}))
}

// onePixelPNG returns a minimal valid PNG (1x1, 8-bit RGB).
func onePixelPNG() []byte {
	return []byte{
		0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a,
		0x00, 0x00, 0x00, 0x0d, 0x49, 0x48, 0x44, 0x52,
		0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
		0x08, 0x02, 0x00, 0x00, 0x00, 0x90, 0x77, 0x53,
		0xde, 0x00, 0x00, 0x00, 0x0c, 0x49, 0x44, 0x41,
		0x54, 0x08, 0xd7, 0x63, 0xf8, 0xcf, 0xc0, 0x00,
		0x00, 0x00, 0x03, 0x00, 0x01, 0x5e, 0xf3, 0xff,
		0x61, 0x00, 0x00, 0x00, 0x00, 0x49, 0x45, 0x4e,
		0x44, 0xae, 0x42, 0x60, 0x82,
	}
}
