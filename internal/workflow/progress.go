package workflow

import (
	"strings"

	"github.com/SeanSwan/Apex-sub007/internal/report"
)

// Progress weights. Narrative completion scales with the number of
// finished days; everything else is all-or-nothing. The total caps at
// 100.
const (
	weightClient     = 15
	weightMetrics    = 15
	weightNarratives = 25
	weightMedia      = 5
	weightChart      = 10
	weightBranding   = 10
	weightRecipients = 10
	weightSummary    = 10
)

// computeProgress scores how close the draft is to sendable.
func computeProgress(d *report.ReportDraft) int {
	p := 0
	if d.ClientID != "" {
		p += weightClient
	}
	if d.Metrics.HasData() {
		p += weightMetrics
	}
	p += weightNarratives * d.CompletedNarratives() / 7
	if len(d.Media) > 0 {
		p += weightMedia
	}
	if len(d.RenderedChartImage) > 0 {
		p += weightChart
	}
	if d.Theme.Customized() {
		p += weightBranding
	}
	if d.Delivery.RecipientCount() > 0 {
		p += weightRecipients
	}
	if strings.TrimSpace(d.SummaryText) != "" {
		p += weightSummary
	}
	if p > 100 {
		p = 100
	}
	return p
}
