// Package render composes the report draft into a paginated, branded
// PDF document.
package render

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/go-pdf/fpdf"

	"github.com/SeanSwan/Apex-sub007/internal/report"
)

// Fixed palette used for everything the theme does not control.
var (
	colorTextDark   = [3]int{44, 62, 80}
	colorTextMuted  = [3]int{127, 140, 141}
	colorBackground = [3]int{248, 249, 250}
	colorTableAlt   = [3]int{241, 245, 249}
	colorGridLine   = [3]int{220, 220, 220}
	colorDanger     = [3]int{231, 76, 60}
	colorWarning    = [3]int{241, 196, 15}
	colorAccent     = [3]int{46, 204, 113}
)

const (
	pageLeft     = 20.0
	pageRight    = 20.0
	breakMargin  = 25.0
	footerLimit  = 250.0 // start a new page when the cursor passes this
	tableRowH    = 8.0
	chartBlockH  = 70.0
	textLineH    = 5.0
	contentWidth = 170.0 // A4 width minus margins
)

// Document is a rendered report ready to persist, download, or
// upload. The bytes are identical regardless of destination.
type Document struct {
	Bytes     []byte
	PageCount int
}

// Reader returns a fresh reader over the document bytes for upload.
func (d *Document) Reader() *bytes.Reader {
	return bytes.NewReader(d.Bytes)
}

// Generator renders report drafts to PDF.
type Generator struct {
	compress bool
}

// NewGenerator creates a PDF generator.
func NewGenerator() *Generator {
	return &Generator{compress: true}
}

// SetCompression toggles PDF stream compression. Tests disable it so
// the content stream is inspectable.
func (g *Generator) SetCompression(on bool) {
	g.compress = on
}

// Generate renders the draft into a paginated document. Overflowing
// text always starts a new page; it is never clipped and never an
// error.
func (g *Generator) Generate(draft *report.ReportDraft, client report.Client) (*Document, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCompression(g.compress)
	pdf.SetMargins(pageLeft, 20, pageRight)
	pdf.SetAutoPageBreak(true, breakMargin)

	pdf.AddPage()
	g.writeHeader(pdf, draft, client)
	rows := g.writeMetricsTable(pdf, draft.Metrics)
	g.writeChartBlock(pdf, draft, rows)
	g.writeNarratives(pdf, draft)
	g.writeSummary(pdf, draft)
	g.writeSignature(pdf, draft)
	g.addPageFooters(pdf)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("PDF output error: %w", err)
	}
	return &Document{Bytes: buf.Bytes(), PageCount: pdf.PageCount()}, nil
}

// writeHeader draws the branded banner, title, and date-range
// subtitle on page 1.
func (g *Generator) writeHeader(pdf *fpdf.Fpdf, draft *report.ReportDraft, client report.Client) {
	pageWidth, _ := pdf.GetPageSize()
	primary := hexToRGB(draft.Theme.PrimaryColor, [3]int{30, 58, 95})

	// Fixed-size banner bar across the top.
	pdf.SetFillColor(primary[0], primary[1], primary[2])
	pdf.Rect(0, 0, pageWidth, 8, "F")

	// Optional branding image (local file reference).
	headerY := 16.0
	if logo := draft.Theme.LogoRef; logo != "" {
		if _, err := os.Stat(logo); err == nil {
			pdf.ImageOptions(logo, pageLeft, headerY, 28, 0, false, fpdf.ImageOptions{}, 0, "")
			headerY += 2
		}
	}

	pdf.SetY(headerY)
	pdf.SetFont(themeFont(draft.Theme), "B", 11)
	pdf.SetTextColor(colorTextMuted[0], colorTextMuted[1], colorTextMuted[2])
	company := draft.Theme.CompanyName
	if company == "" {
		company = "Apex Security"
	}
	pdf.CellFormat(0, 6, strings.ToUpper(company), "", 1, "C", false, 0, "")

	pdf.SetFont(themeFont(draft.Theme), "B", 22)
	pdf.SetTextColor(primary[0], primary[1], primary[2])
	pdf.CellFormat(0, 11, "Weekly Security Report", "", 1, "C", false, 0, "")

	pdf.SetFont(themeFont(draft.Theme), "", 12)
	pdf.SetTextColor(colorTextDark[0], colorTextDark[1], colorTextDark[2])
	title := client.Name
	if client.Location != "" {
		title += "  -  " + client.Location
	}
	pdf.CellFormat(0, 7, title, "", 1, "C", false, 0, "")

	pdf.SetFont(themeFont(draft.Theme), "", 10)
	pdf.SetTextColor(colorTextMuted[0], colorTextMuted[1], colorTextMuted[2])
	pdf.CellFormat(0, 6, draft.DateRange.Label(), "", 1, "C", false, 0, "")
	pdf.Ln(4)
}

// writeMetricsTable prints the weekly totals table and returns the
// number of body rows, which positions the chart block below it.
func (g *Generator) writeMetricsTable(pdf *fpdf.Fpdf, m report.MetricsSnapshot) int {
	primary := hexToRGB("", [3]int{30, 58, 95})

	pdf.SetFont("Arial", "B", 10)
	pdf.SetFillColor(primary[0], primary[1], primary[2])
	pdf.SetTextColor(255, 255, 255)
	pdf.CellFormat(contentWidth*0.6, tableRowH, "Metric", "1", 0, "L", true, 0, "")
	pdf.CellFormat(contentWidth*0.4, tableRowH, "Weekly Value", "1", 1, "C", true, 0, "")

	type row struct {
		label string
		value string
	}
	rows := make([]row, 0, 8)
	for _, cat := range report.CountCategories() {
		rows = append(rows, row{report.CategoryDisplayName(cat), fmt.Sprintf("%d", m.WeekTotal(cat))})
	}
	// Percentage and time metrics pass through at fixed precision.
	rows = append(rows,
		row{"AI Accuracy", fmt.Sprintf("%.2f%%", m.AIAccuracy)},
		row{"Operational Uptime", fmt.Sprintf("%.2f%%", m.OperationalUptime)},
		row{"Avg Response Time", fmt.Sprintf("%.2f s", m.ResponseTime)},
		row{"Cameras Online", fmt.Sprintf("%d / %d", m.CamerasOnline, m.TotalCameras)},
	)

	pdf.SetFont("Arial", "", 10)
	pdf.SetTextColor(colorTextDark[0], colorTextDark[1], colorTextDark[2])
	for i, r := range rows {
		fill := i%2 == 1
		pdf.SetFillColor(colorTableAlt[0], colorTableAlt[1], colorTableAlt[2])
		pdf.CellFormat(contentWidth*0.6, tableRowH, r.label, "1", 0, "L", fill, 0, "")
		pdf.CellFormat(contentWidth*0.4, tableRowH, r.value, "1", 1, "C", fill, 0, "")
	}
	return len(rows)
}

// writeChartBlock places the rasterized chart image directly below
// the table, its offset derived from the table's row count so the two
// never overlap. Without a captured image the chart is drawn natively.
func (g *Generator) writeChartBlock(pdf *fpdf.Fpdf, draft *report.ReportDraft, tableRows int) {
	chartY := pdf.GetY() + 6
	// The cursor already sits below the table; the row-count check
	// guards against callers that reposition the cursor.
	minY := 60.0 + float64(tableRows+1)*tableRowH
	if chartY < minY {
		chartY = minY
	}
	if chartY+chartBlockH > footerLimit {
		pdf.AddPage()
		chartY = pdf.GetY()
	}

	if len(draft.RenderedChartImage) > 0 {
		opts := fpdf.ImageOptions{ImageType: "PNG"}
		pdf.RegisterImageOptionsReader("weekly-chart", opts, bytes.NewReader(draft.RenderedChartImage))
		pdf.ImageOptions("weekly-chart", pageLeft, chartY, contentWidth, 0, false, opts, 0, "")
		pdf.SetY(chartY + chartBlockH)
		return
	}

	g.drawWeeklyBars(pdf, draft.Metrics, draft.Theme, pageLeft, chartY, contentWidth, chartBlockH-15)
	pdf.SetY(chartY + chartBlockH)
}

// drawWeeklyBars is the native fallback chart: grouped bars per
// weekday for each intrusion category.
func (g *Generator) drawWeeklyBars(pdf *fpdf.Fpdf, m report.MetricsSnapshot, theme report.BrandingSettings, x, y, width, height float64) {
	pdf.SetFillColor(255, 255, 255)
	pdf.SetDrawColor(colorGridLine[0], colorGridLine[1], colorGridLine[2])
	pdf.SetLineWidth(0.3)
	pdf.Rect(x, y, width, height, "FD")

	maxVal := 1
	for _, cat := range report.CountCategories() {
		for _, d := range report.Weekdays() {
			if v := m.DayCount(cat, d); v > maxVal {
				maxVal = v
			}
		}
	}

	accent := hexToRGB(theme.AccentColor, [3]int{52, 152, 219})
	seriesColors := [][3]int{accent, {230, 126, 34}, colorDanger, colorAccent}

	groupW := (width - 10) / 7
	barW := (groupW - 4) / float64(len(report.CountCategories()))
	for di, day := range report.Weekdays() {
		groupX := x + 5 + float64(di)*groupW
		for ci, cat := range report.CountCategories() {
			v := m.DayCount(cat, day)
			barH := float64(v) / float64(maxVal) * (height - 10)
			c := seriesColors[ci%len(seriesColors)]
			pdf.SetFillColor(c[0], c[1], c[2])
			if barH > 0.2 {
				pdf.Rect(groupX+float64(ci)*barW, y+height-4-barH, barW-0.5, barH, "F")
			}
		}
		pdf.SetFont("Arial", "", 7)
		pdf.SetTextColor(colorTextMuted[0], colorTextMuted[1], colorTextMuted[2])
		pdf.SetXY(groupX, y+height-3)
		pdf.CellFormat(groupW, 3, string(day)[:3], "", 0, "C", false, 0, "")
	}
}

// writeNarratives prints each day with non-empty content: the
// security code, then the wrapped narrative text. The running cursor
// starts a new page whenever a day's block would pass the printable
// height.
func (g *Generator) writeNarratives(pdf *fpdf.Fpdf, draft *report.ReportDraft) {
	pdf.Ln(4)
	g.sectionTitle(pdf, draft.Theme, "Daily Activity")

	for _, day := range report.Weekdays() {
		n, ok := draft.Narrative(day)
		if !ok || !n.Complete() {
			continue
		}
		if pdf.GetY() > footerLimit-20 {
			pdf.AddPage()
		}

		code := n.SecurityCode
		if code == "" {
			code = report.CodeAllClear
		}
		c := codeColor(code)
		pdf.SetFont("Arial", "B", 10)
		pdf.SetTextColor(c[0], c[1], c[2])
		pdf.CellFormat(0, 6, fmt.Sprintf("%s  -  %s", day, code), "", 1, "L", false, 0, "")

		pdf.SetFont("Arial", "", 10)
		pdf.SetTextColor(colorTextDark[0], colorTextDark[1], colorTextDark[2])
		// MultiCell wraps to the text width and pushes overflow onto
		// new pages via the auto page break; text is never clipped.
		pdf.MultiCell(contentWidth, textLineH, n.Content, "", "L", false)
		pdf.Ln(3)
	}
}

// writeSummary prints the compliance/summary notes under the same
// overflow rule as narratives.
func (g *Generator) writeSummary(pdf *fpdf.Fpdf, draft *report.ReportDraft) {
	if strings.TrimSpace(draft.SummaryText) == "" {
		return
	}
	if pdf.GetY() > footerLimit-25 {
		pdf.AddPage()
	}
	g.sectionTitle(pdf, draft.Theme, "Summary & Compliance Notes")
	pdf.SetFont("Arial", "", 10)
	pdf.SetTextColor(colorTextDark[0], colorTextDark[1], colorTextDark[2])
	pdf.MultiCell(contentWidth, textLineH, draft.SummaryText, "", "L", false)
	pdf.Ln(3)
}

// writeSignature prints the signature line on the last page.
func (g *Generator) writeSignature(pdf *fpdf.Fpdf, draft *report.ReportDraft) {
	if strings.TrimSpace(draft.Signature) == "" {
		return
	}
	if pdf.GetY() > footerLimit-15 {
		pdf.AddPage()
	}
	pdf.Ln(6)
	pdf.SetDrawColor(colorGridLine[0], colorGridLine[1], colorGridLine[2])
	pdf.SetLineWidth(0.3)
	y := pdf.GetY()
	pdf.Line(pageLeft, y, pageLeft+70, y)
	pdf.SetY(y + 2)
	pdf.SetFont("Arial", "I", 10)
	pdf.SetTextColor(colorTextDark[0], colorTextDark[1], colorTextDark[2])
	pdf.CellFormat(0, 6, draft.Signature, "", 1, "L", false, 0, "")
}

// addPageFooters stamps "Page i of N" on every page once the total is
// known.
func (g *Generator) addPageFooters(pdf *fpdf.Fpdf) {
	pdf.SetAutoPageBreak(false, 0)
	total := pdf.PageCount()
	for i := 1; i <= total; i++ {
		pdf.SetPage(i)
		pageWidth, pageHeight := pdf.GetPageSize()

		pdf.SetDrawColor(colorGridLine[0], colorGridLine[1], colorGridLine[2])
		pdf.SetLineWidth(0.3)
		pdf.Line(pageLeft, pageHeight-18, pageWidth-pageRight, pageHeight-18)

		pdf.SetY(pageHeight - 15)
		pdf.SetFont("Arial", "", 8)
		pdf.SetTextColor(colorTextMuted[0], colorTextMuted[1], colorTextMuted[2])
		pdf.CellFormat(0, 5, fmt.Sprintf("Page %d of %d", i, total), "", 0, "C", false, 0, "")
	}
}

func (g *Generator) sectionTitle(pdf *fpdf.Fpdf, theme report.BrandingSettings, title string) {
	primary := hexToRGB(theme.PrimaryColor, [3]int{30, 58, 95})
	pdf.SetFont("Arial", "B", 13)
	pdf.SetTextColor(primary[0], primary[1], primary[2])
	pdf.CellFormat(0, 8, title, "", 1, "L", false, 0, "")
	pdf.Ln(1)
}

func codeColor(code report.SecurityCode) [3]int {
	switch code {
	case report.CodeAttention:
		return colorDanger
	case report.CodeSuspicious:
		return colorWarning
	case report.CodeRoutine:
		return colorTextMuted
	default:
		return colorAccent
	}
}

// themeFont maps the theme's font to one of fpdf's core fonts;
// anything unknown falls back to Arial.
func themeFont(theme report.BrandingSettings) string {
	switch strings.ToLower(theme.FontName) {
	case "times", "times new roman":
		return "Times"
	case "courier":
		return "Courier"
	case "helvetica", "arial", "":
		return "Arial"
	default:
		return "Arial"
	}
}

// hexToRGB parses "#rrggbb" with a fallback for missing or malformed
// values.
func hexToRGB(hex string, fallback [3]int) [3]int {
	hex = strings.TrimPrefix(strings.TrimSpace(hex), "#")
	if len(hex) != 6 {
		return fallback
	}
	var r, g, b int
	if _, err := fmt.Sscanf(hex, "%02x%02x%02x", &r, &g, &b); err != nil {
		return fallback
	}
	return [3]int{r, g, b}
}
