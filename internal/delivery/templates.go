package delivery

import (
	"fmt"
	"strings"
	"text/template"
)

// Message templates are parameterized by client name, reporting
// window, and the hosted document link. The SMS body stays short so
// it fits a single segment where possible.
var (
	emailSubjectTemplate = template.Must(template.New("emailSubject").Parse(
		`Weekly Security Report - {{.ClientName}} ({{.RangeLabel}})`))

	emailBodyTemplate = template.Must(template.New("emailBody").Parse(
		`Hello,

The weekly security report for {{.ClientName}} covering {{.RangeLabel}} is ready.
{{if .DocumentURL}}
View the report: {{.DocumentURL}}
{{end}}{{if .Attached}}The full report is attached as a PDF.
{{end}}
This report was generated by {{.CompanyName}} monitoring operations.
`))

	smsBodyTemplate = template.Must(template.New("smsBody").Parse(
		`{{.CompanyName}}: weekly security report for {{.ClientName}} ({{.RangeLabel}}) is ready.{{if .DocumentURL}} {{.DocumentURL}}{{end}}`))
)

// MessageParams feeds the delivery templates.
type MessageParams struct {
	ClientName  string
	RangeLabel  string
	DocumentURL string
	CompanyName string
	Attached    bool
}

// RenderEmailSubject produces the subject line.
func RenderEmailSubject(p MessageParams) (string, error) {
	return renderTemplate(emailSubjectTemplate, p)
}

// RenderEmailBody produces the plain-text email body.
func RenderEmailBody(p MessageParams) (string, error) {
	return renderTemplate(emailBodyTemplate, p)
}

// RenderSMSBody produces the SMS text.
func RenderSMSBody(p MessageParams) (string, error) {
	return renderTemplate(smsBodyTemplate, p)
}

func renderTemplate(t *template.Template, p MessageParams) (string, error) {
	if p.CompanyName == "" {
		p.CompanyName = "Apex Security"
	}
	var b strings.Builder
	if err := t.Execute(&b, p); err != nil {
		return "", fmt.Errorf("message template: %w", err)
	}
	return b.String(), nil
}
