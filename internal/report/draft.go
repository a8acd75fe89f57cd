package report

import (
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// Status is the draft's position in the report workflow. Transitions
// are owned by the workflow controller; the draft only stores the
// value.
type Status string

const (
	StatusDraft  Status = "draft"
	StatusReview Status = "review"
	StatusReady  Status = "ready"
	StatusSent   Status = "sent"
)

// ReportDraft is the aggregate root: the full working state of a
// single report under construction. One session owns one draft.
type ReportDraft struct {
	ID                  string           `json:"id"`
	ClientID            string           `json:"clientId"`
	DateRange           DateRange        `json:"dateRange"`
	Metrics             MetricsSnapshot  `json:"metrics"`
	DailyNarratives     []DailyNarrative `json:"dailyNarratives"`
	SummaryText         string           `json:"summaryText"`
	Signature           string           `json:"signature"`
	Theme               BrandingSettings `json:"theme"`
	Media               []MediaAttachment `json:"media"`
	Delivery            DeliveryOptions  `json:"delivery"`
	Status              Status           `json:"status"`
	RenderedChartImage  []byte           `json:"renderedChartImage,omitempty"`
	UploadedDocumentURL string           `json:"uploadedDocumentUrl,omitempty"`
	LastSavedAt         time.Time        `json:"lastSavedAt,omitempty"`
}

// NewDraft creates an empty draft for the week containing now. All
// seven narrative slots exist immediately so SetDay never has to
// create one.
func NewDraft(now time.Time) *ReportDraft {
	narratives := make([]DailyNarrative, 0, 7)
	for _, d := range Weekdays() {
		narratives = append(narratives, DailyNarrative{
			Day:          d,
			Status:       NarrativeToUpdate,
			SecurityCode: CodeAllClear,
		})
	}
	return &ReportDraft{
		ID:              ulid.Make().String(),
		DateRange:       WeekOf(now),
		Metrics:         NewMetricsSnapshot(),
		DailyNarratives: narratives,
		Theme:           DefaultBranding(),
		Delivery:        DefaultDeliveryOptions(),
		Status:          StatusDraft,
	}
}

// SetDay updates exactly one weekday's narrative, leaving the other
// six untouched. An unrecognized day name is a caller mistake.
func (d *ReportDraft) SetDay(day Weekday, content string, status NarrativeStatus, code SecurityCode) error {
	for i := range d.DailyNarratives {
		if d.DailyNarratives[i].Day == day {
			d.DailyNarratives[i].Content = content
			if status != "" {
				d.DailyNarratives[i].Status = status
			}
			if code != "" {
				d.DailyNarratives[i].SecurityCode = code
			}
			return nil
		}
	}
	return fmt.Errorf("unknown weekday %q", day)
}

// Narrative returns the entry for a weekday.
func (d *ReportDraft) Narrative(day Weekday) (DailyNarrative, bool) {
	for _, n := range d.DailyNarratives {
		if n.Day == day {
			return n, true
		}
	}
	return DailyNarrative{}, false
}

// CompletedNarratives counts entries with non-empty content.
func (d *ReportDraft) CompletedNarratives() int {
	n := 0
	for _, entry := range d.DailyNarratives {
		if entry.Complete() {
			n++
		}
	}
	return n
}

// AddMedia attaches an evidence item.
func (d *ReportDraft) AddMedia(m MediaAttachment) {
	d.Media = append(d.Media, m)
}

// RefreshMedia marks expired attachments inert. Nothing is deleted.
func (d *ReportDraft) RefreshMedia(now time.Time) {
	for i := range d.Media {
		if d.Media[i].Expired(now) {
			d.Media[i].Inert = true
		}
	}
}

// ActiveMedia returns attachments still safe to surface to recipients.
func (d *ReportDraft) ActiveMedia(now time.Time) []MediaAttachment {
	var out []MediaAttachment
	for _, m := range d.Media {
		if !m.Inert && !m.Expired(now) {
			out = append(out, m)
		}
	}
	return out
}

// Sendable reports whether the draft satisfies the preconditions for
// delivery: a chosen client and at least one recipient on an enabled
// channel.
func (d *ReportDraft) Sendable() error {
	if d.ClientID == "" {
		return fmt.Errorf("no client selected")
	}
	if d.Delivery.RecipientCount() == 0 {
		return fmt.Errorf("no recipients configured")
	}
	return nil
}

// Clone deep-copies the draft so stages can work on a snapshot
// without sharing mutable state with the controller.
func (d *ReportDraft) Clone() *ReportDraft {
	out := *d
	out.Metrics = d.Metrics.Clone()
	out.DailyNarratives = append([]DailyNarrative(nil), d.DailyNarratives...)
	out.Media = append([]MediaAttachment(nil), d.Media...)
	out.Delivery.EmailRecipients = append([]string(nil), d.Delivery.EmailRecipients...)
	out.Delivery.SMSRecipients = append([]string(nil), d.Delivery.SMSRecipients...)
	if d.RenderedChartImage != nil {
		out.RenderedChartImage = append([]byte(nil), d.RenderedChartImage...)
	}
	return &out
}
