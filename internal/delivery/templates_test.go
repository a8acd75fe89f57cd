package delivery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderEmailTemplates(t *testing.T) {
	params := MessageParams{
		ClientName:  "Acme Plaza",
		RangeLabel:  "Mar 10, 2025 - Mar 16, 2025",
		DocumentURL: "https://docs.apex.example/r.pdf",
		CompanyName: "Northstar Security",
	}

	subject, err := RenderEmailSubject(params)
	require.NoError(t, err)
	assert.Equal(t, "Weekly Security Report - Acme Plaza (Mar 10, 2025 - Mar 16, 2025)", subject)

	body, err := RenderEmailBody(params)
	require.NoError(t, err)
	assert.Contains(t, body, "Acme Plaza")
	assert.Contains(t, body, "https://docs.apex.example/r.pdf")
	assert.Contains(t, body, "Northstar Security")
	assert.NotContains(t, body, "attached", "link-only body omits the attachment line")
}

func TestRenderEmailBodyAttachment(t *testing.T) {
	body, err := RenderEmailBody(MessageParams{
		ClientName: "Acme Plaza",
		RangeLabel: "w12",
		Attached:   true,
	})
	require.NoError(t, err)
	assert.Contains(t, body, "attached as a PDF")
}

func TestRenderSMSBody(t *testing.T) {
	body, err := RenderSMSBody(MessageParams{
		ClientName:  "Acme Plaza",
		RangeLabel:  "Mar 10 - Mar 16",
		DocumentURL: "https://s.example/x",
	})
	require.NoError(t, err)
	assert.Equal(t, "Apex Security: weekly security report for Acme Plaza (Mar 10 - Mar 16) is ready. https://s.example/x", body)
}

func TestRenderSMSBodyWithoutLink(t *testing.T) {
	body, err := RenderSMSBody(MessageParams{ClientName: "Acme Plaza", RangeLabel: "w12"})
	require.NoError(t, err)
	assert.NotContains(t, body, "http")
}
