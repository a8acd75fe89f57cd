// Package report defines the domain model for a weekly client security
// report: the draft aggregate, daily narratives, branding, media
// attachments, and delivery options.
package report

import (
	"fmt"
	"strings"
	"time"
)

// Weekday is a canonical day name used to key narratives and daily counts.
type Weekday string

const (
	Monday    Weekday = "Monday"
	Tuesday   Weekday = "Tuesday"
	Wednesday Weekday = "Wednesday"
	Thursday  Weekday = "Thursday"
	Friday    Weekday = "Friday"
	Saturday  Weekday = "Saturday"
	Sunday    Weekday = "Sunday"
)

// Weekdays returns the seven canonical day names in report order
// (Monday first, matching the Monday-Sunday reporting window).
func Weekdays() []Weekday {
	return []Weekday{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}
}

// ParseWeekday resolves a day name case-insensitively. An unrecognized
// name is a caller error, not something to retry.
func ParseWeekday(name string) (Weekday, error) {
	for _, d := range Weekdays() {
		if strings.EqualFold(string(d), name) {
			return d, nil
		}
	}
	return "", fmt.Errorf("unknown weekday %q", name)
}

// SecurityCode is the fixed-vocabulary severity label attached to a
// day's narrative.
type SecurityCode string

const (
	CodeAllClear   SecurityCode = "Code 4" // all clear, no incidents
	CodeAttention  SecurityCode = "Code 3" // attention required
	CodeSuspicious SecurityCode = "Code 2" // suspicious activity logged
	CodeRoutine    SecurityCode = "Code 1" // routine activity only
)

// NarrativeStatus tracks whether a day's narrative still needs work.
type NarrativeStatus string

const (
	NarrativeToUpdate  NarrativeStatus = "to-update"
	NarrativeCompleted NarrativeStatus = "completed"
)

// DailyNarrative is the free-text description of one day's security
// activity. Exactly one exists per weekday on every draft.
type DailyNarrative struct {
	Day          Weekday         `json:"day"`
	Content      string          `json:"content"`
	Status       NarrativeStatus `json:"status"`
	SecurityCode SecurityCode    `json:"securityCode"`
}

// Complete reports whether the narrative counts toward progress.
// An entry with empty content is incomplete regardless of status.
func (n DailyNarrative) Complete() bool {
	return strings.TrimSpace(n.Content) != ""
}

// Client identifies the monitored site a report is produced for.
// Selected once per report session and immutable afterwards.
type Client struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	Location     string           `json:"location"`
	ContactEmail string           `json:"contactEmail"`
	Branding     BrandingSettings `json:"branding"`
}

// BrandingSettings is the single theme value consumed read-only by the
// document renderer. Colors are hex strings like "#1e3a5f".
type BrandingSettings struct {
	CompanyName  string  `json:"companyName"`
	PrimaryColor string  `json:"primaryColor"`
	AccentColor  string  `json:"accentColor"`
	FontName     string  `json:"fontName"`
	LogoRef      string  `json:"logoRef"`
	HeaderRef    string  `json:"headerRef"`
	Opacity      float64 `json:"opacity"`
	ContactEmail string  `json:"contactEmail"`
}

// DefaultBranding returns the stock Apex theme used until a client's
// own branding is applied.
func DefaultBranding() BrandingSettings {
	return BrandingSettings{
		CompanyName:  "Apex Security",
		PrimaryColor: "#1e3a5f",
		AccentColor:  "#3498db",
		FontName:     "Arial",
		Opacity:      1.0,
	}
}

// Customized reports whether the theme differs from the stock default.
func (b BrandingSettings) Customized() bool {
	return b != DefaultBranding()
}

// MediaAttachment is an evidence file or link surfaced alongside the
// report. Expired attachments are marked inert, never deleted.
type MediaAttachment struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	MimeType  string    `json:"mimeType"`
	Expiry    time.Time `json:"expiry"`
	Inert     bool      `json:"inert"`
	CreatedAt time.Time `json:"createdAt"`
}

// Expired reports whether the attachment may no longer be surfaced to
// a recipient.
func (m MediaAttachment) Expired(now time.Time) bool {
	return !m.Expiry.IsZero() && !m.Expiry.After(now)
}

// DeliveryOptions selects channels, recipients and timing for a send.
// All fields are explicit; there is no open-ended option bag.
type DeliveryOptions struct {
	EmailEnabled      bool      `json:"emailEnabled"`
	SMSEnabled        bool      `json:"smsEnabled"`
	EmailRecipients   []string  `json:"emailRecipients"`
	SMSRecipients     []string  `json:"smsRecipients"`
	ScheduleDelivery  bool      `json:"scheduleDelivery"`
	DeliveryDate      time.Time `json:"deliveryDate"`
	AttachDocument    bool      `json:"attachDocument"`
	IncludeSignedLink bool      `json:"includeSignedLink"`
}

// DefaultDeliveryOptions enables email with link-only content.
func DefaultDeliveryOptions() DeliveryOptions {
	return DeliveryOptions{
		EmailEnabled:      true,
		IncludeSignedLink: true,
	}
}

// RecipientCount counts recipients across the enabled channels.
func (d DeliveryOptions) RecipientCount() int {
	n := 0
	if d.EmailEnabled {
		n += len(d.EmailRecipients)
	}
	if d.SMSEnabled {
		n += len(d.SMSRecipients)
	}
	return n
}

// DateRange is the reporting window, normally a Monday-Sunday week.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// WeekOf returns the Monday-Sunday range containing t.
func WeekOf(t time.Time) DateRange {
	offset := (int(t.Weekday()) + 6) % 7 // days since Monday
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location()).AddDate(0, 0, -offset)
	return DateRange{Start: start, End: start.AddDate(0, 0, 6)}
}

// Label formats the range for titles and message templates.
func (r DateRange) Label() string {
	return fmt.Sprintf("%s - %s", r.Start.Format("Jan 2, 2006"), r.End.Format("Jan 2, 2006"))
}
