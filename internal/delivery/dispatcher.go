package delivery

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	apexerrors "github.com/SeanSwan/Apex-sub007/internal/errors"
	"github.com/SeanSwan/Apex-sub007/internal/report"
)

var (
	dispatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "apex_report_dispatch_total",
		Help: "Per-recipient dispatch attempts by channel and result.",
	}, []string{"channel", "result"})

	uploadTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "apex_report_upload_total",
		Help: "Document upload attempts by result.",
	}, []string{"result"})
)

// maxConcurrentSends bounds the per-recipient fan-out.
const maxConcurrentSends = 4

// EmailChannel and SMSChannel are the two delivery transports; the
// concrete senders satisfy them, tests substitute stubs.
type EmailChannel interface {
	Send(msg EmailMessage) error
}

type SMSChannel interface {
	Send(ctx context.Context, to, body string) error
}

// Result is the outcome of one dispatch run: the hosted document link
// plus per-recipient outcomes in deterministic order (email
// recipients first, then SMS, each in configured order).
type Result struct {
	DocumentURL string
	Outcomes    []apexerrors.RecipientOutcome
}

// Dispatcher uploads the rendered document and fans the notification
// out to every recipient on the enabled channels.
type Dispatcher struct {
	store ContentStore
	email EmailChannel
	sms   SMSChannel
}

// NewDispatcher wires the three collaborators. Channels may be nil
// when the corresponding option is disabled.
func NewDispatcher(store ContentStore, email EmailChannel, sms SMSChannel) *Dispatcher {
	return &Dispatcher{store: store, email: email, sms: sms}
}

// Upload hosts the rendered document and returns its durable link.
// A link already recorded on the draft is reused instead of
// re-uploading, so retries and scheduled dispatches stay cheap.
func (d *Dispatcher) Upload(ctx context.Context, draft *report.ReportDraft, client report.Client, document []byte) (string, error) {
	if draft.UploadedDocumentURL != "" {
		log.Debug().Str("draft", draft.ID).Msg("Reusing previously uploaded document")
		return draft.UploadedDocumentURL, nil
	}
	key := fmt.Sprintf("reports/%s/%s.pdf", client.ID, draft.ID)
	url, err := d.store.Upload(ctx, key, bytes.NewReader(document), "application/pdf")
	if err != nil {
		uploadTotal.WithLabelValues("failure").Inc()
		return "", apexerrors.NewTransientError("upload", err)
	}
	uploadTotal.WithLabelValues("success").Inc()
	return url, nil
}

// Send runs the full delivery: upload first, then concurrent fan-out.
// No message goes out before the upload succeeds. A failed upload is
// transient and no recipient is contacted; failed recipients after a
// successful upload produce a PartialDeliveryError with the full
// outcome list.
func (d *Dispatcher) Send(ctx context.Context, draft *report.ReportDraft, client report.Client, document []byte) (*Result, error) {
	if err := draft.Sendable(); err != nil {
		return nil, apexerrors.NewUsageError("dispatch", err)
	}

	docURL, err := d.Upload(ctx, draft, client, document)
	if err != nil {
		return nil, err
	}

	outcomes, err := d.fanOut(ctx, draft, client, docURL, document)
	if err != nil {
		return &Result{DocumentURL: docURL, Outcomes: outcomes}, err
	}
	return &Result{DocumentURL: docURL, Outcomes: outcomes}, nil
}

// fanOut sends to every recipient concurrently and collects one
// outcome per (recipient, channel). Individual failures never abort
// the remaining sends.
func (d *Dispatcher) fanOut(ctx context.Context, draft *report.ReportDraft, client report.Client, docURL string, document []byte) ([]apexerrors.RecipientOutcome, error) {
	params := MessageParams{
		ClientName:  client.Name,
		RangeLabel:  draft.DateRange.Label(),
		CompanyName: draft.Theme.CompanyName,
		Attached:    draft.Delivery.AttachDocument,
	}
	if draft.Delivery.IncludeSignedLink {
		params.DocumentURL = docURL
	}

	type target struct {
		index     int
		channel   string
		recipient string
	}
	var targets []target
	if draft.Delivery.EmailEnabled {
		for _, r := range draft.Delivery.EmailRecipients {
			targets = append(targets, target{index: len(targets), channel: "email", recipient: r})
		}
	}
	if draft.Delivery.SMSEnabled {
		for _, r := range draft.Delivery.SMSRecipients {
			targets = append(targets, target{index: len(targets), channel: "sms", recipient: r})
		}
	}

	outcomes := make([]apexerrors.RecipientOutcome, len(targets))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentSends)
	for _, tgt := range targets {
		tgt := tgt
		g.Go(func() error {
			err := d.sendOne(gctx, tgt.channel, tgt.recipient, params, draft, document)
			outcome := apexerrors.RecipientOutcome{
				Recipient: tgt.recipient,
				Channel:   tgt.channel,
				Success:   err == nil,
				SentAt:    time.Now(),
			}
			if err != nil {
				outcome.Error = err.Error()
				dispatchTotal.WithLabelValues(tgt.channel, "failure").Inc()
				log.Warn().Str("channel", tgt.channel).Str("recipient", tgt.recipient).Err(err).Msg("Recipient dispatch failed")
			} else {
				dispatchTotal.WithLabelValues(tgt.channel, "success").Inc()
			}
			mu.Lock()
			outcomes[tgt.index] = outcome
			mu.Unlock()
			// Failures are recorded, not propagated; the group only
			// aborts on context cancellation.
			return gctx.Err()
		})
	}
	groupErr := g.Wait()

	failed := 0
	for _, o := range outcomes {
		if !o.Success {
			failed++
		}
	}
	if groupErr != nil {
		return outcomes, apexerrors.NewTransientError("dispatch", groupErr)
	}
	if failed > 0 {
		return outcomes, &apexerrors.PartialDeliveryError{Stage: "dispatch", Outcomes: outcomes}
	}
	return outcomes, nil
}

func (d *Dispatcher) sendOne(ctx context.Context, channel, recipient string, params MessageParams, draft *report.ReportDraft, document []byte) error {
	switch channel {
	case "email":
		if d.email == nil {
			return fmt.Errorf("email channel not configured")
		}
		subject, err := RenderEmailSubject(params)
		if err != nil {
			return err
		}
		body, err := RenderEmailBody(params)
		if err != nil {
			return err
		}
		msg := EmailMessage{To: recipient, Subject: subject, Body: body}
		if draft.Delivery.AttachDocument {
			msg.Attachment = document
			msg.AttachmentName = fmt.Sprintf("security-report-%s.pdf", draft.DateRange.Start.Format("2006-01-02"))
		}
		return d.email.Send(msg)
	case "sms":
		if d.sms == nil {
			return fmt.Errorf("SMS channel not configured")
		}
		body, err := RenderSMSBody(params)
		if err != nil {
			return err
		}
		return d.sms.Send(ctx, recipient, body)
	}
	return fmt.Errorf("unknown channel %q", channel)
}
