package delivery

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apexerrors "github.com/SeanSwan/Apex-sub007/internal/errors"
	"github.com/SeanSwan/Apex-sub007/internal/report"
)

type stubEmail struct {
	mu       sync.Mutex
	sent     []EmailMessage
	failFor  map[string]error
	sendable bool
}

func newStubEmail() *stubEmail {
	return &stubEmail{failFor: map[string]error{}, sendable: true}
}

func (s *stubEmail) Send(msg EmailMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.failFor[msg.To]; ok {
		return err
	}
	s.sent = append(s.sent, msg)
	return nil
}

type stubSMS struct {
	mu      sync.Mutex
	sent    []string
	failFor map[string]error
}

func newStubSMS() *stubSMS {
	return &stubSMS{failFor: map[string]error{}}
}

func (s *stubSMS) Send(ctx context.Context, to, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.failFor[to]; ok {
		return err
	}
	s.sent = append(s.sent, to)
	return nil
}

func sendableDraft() *report.ReportDraft {
	draft := report.NewDraft(time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC))
	draft.ClientID = "acme-plaza"
	draft.Delivery.EmailEnabled = true
	draft.Delivery.EmailRecipients = []string{"a@client.example", "b@client.example"}
	draft.Delivery.IncludeSignedLink = true
	return draft
}

func testDispatcher(t *testing.T, email EmailChannel, sms SMSChannel) *Dispatcher {
	t.Helper()
	store, err := NewLocalStore(t.TempDir(), "https://docs.apex.example")
	require.NoError(t, err)
	return NewDispatcher(store, email, sms)
}

func TestDispatchAllRecipientsSucceed(t *testing.T) {
	email := newStubEmail()
	d := testDispatcher(t, email, nil)

	draft := sendableDraft()
	res, err := d.Send(context.Background(), draft, report.Client{ID: "acme-plaza", Name: "Acme Plaza"}, []byte("%PDF-doc"))
	require.NoError(t, err)

	require.Len(t, res.Outcomes, 2)
	for _, o := range res.Outcomes {
		assert.True(t, o.Success)
		assert.Equal(t, "email", o.Channel)
	}
	assert.NotEmpty(t, res.DocumentURL)
	assert.Len(t, email.sent, 2)
	// Link-only delivery carries no attachment.
	assert.Nil(t, email.sent[0].Attachment)
}

func TestUploadStandaloneReusesCachedLink(t *testing.T) {
	d := testDispatcher(t, newStubEmail(), nil)
	client := report.Client{ID: "acme-plaza", Name: "Acme Plaza"}

	draft := sendableDraft()
	url, err := d.Upload(context.Background(), draft, client, []byte("%PDF-doc"))
	require.NoError(t, err)
	assert.NotEmpty(t, url)

	// A draft carrying the link gets it back without touching the store.
	draft.UploadedDocumentURL = url
	d.store = failingStore{}
	again, err := d.Upload(context.Background(), draft, client, []byte("%PDF-doc"))
	require.NoError(t, err)
	assert.Equal(t, url, again)
}

func TestDispatchPartialFailure(t *testing.T) {
	email := newStubEmail()
	email.failFor["b@client.example"] = fmt.Errorf("mailbox full")
	d := testDispatcher(t, email, nil)

	draft := sendableDraft()
	res, err := d.Send(context.Background(), draft, report.Client{ID: "acme-plaza", Name: "Acme Plaza"}, []byte("%PDF-doc"))
	require.Error(t, err)

	var pe *apexerrors.PartialDeliveryError
	require.ErrorAs(t, err, &pe)
	require.Len(t, pe.Failed(), 1)
	assert.Equal(t, "b@client.example", pe.Failed()[0].Recipient)
	assert.Contains(t, pe.Failed()[0].Error, "mailbox full")

	// The successful send stands; the outcome list covers everyone.
	require.Len(t, res.Outcomes, 2)
	assert.True(t, res.Outcomes[0].Success)
	assert.False(t, res.Outcomes[1].Success)
	assert.True(t, apexerrors.IsRetryable(err))
}

func TestDispatchUploadFailureContactsNobody(t *testing.T) {
	email := newStubEmail()
	d := NewDispatcher(failingStore{}, email, nil)

	draft := sendableDraft()
	_, err := d.Send(context.Background(), draft, report.Client{ID: "c", Name: "C"}, []byte("doc"))
	require.Error(t, err)
	assert.True(t, apexerrors.IsRetryable(err))
	assert.Empty(t, email.sent, "no message goes out before the upload succeeds")
}

func TestDispatchReusesUploadedDocument(t *testing.T) {
	email := newStubEmail()
	d := NewDispatcher(failingStore{}, email, nil)

	draft := sendableDraft()
	draft.UploadedDocumentURL = "https://docs.apex.example/existing.pdf"

	// The store always fails, so success proves the upload was skipped.
	res, err := d.Send(context.Background(), draft, report.Client{ID: "c", Name: "C"}, []byte("doc"))
	require.NoError(t, err)
	assert.Equal(t, "https://docs.apex.example/existing.pdf", res.DocumentURL)
	assert.Len(t, email.sent, 2)
}

func TestDispatchBothChannels(t *testing.T) {
	email := newStubEmail()
	sms := newStubSMS()
	d := testDispatcher(t, email, sms)

	draft := sendableDraft()
	draft.Delivery.SMSEnabled = true
	draft.Delivery.SMSRecipients = []string{"+15550001111"}

	res, err := d.Send(context.Background(), draft, report.Client{ID: "c", Name: "Acme Plaza"}, []byte("doc"))
	require.NoError(t, err)
	require.Len(t, res.Outcomes, 3)
	// Outcomes keep configured order: email recipients first.
	assert.Equal(t, "email", res.Outcomes[0].Channel)
	assert.Equal(t, "sms", res.Outcomes[2].Channel)
	assert.Len(t, sms.sent, 1)
}

func TestDispatchDisabledChannelIgnored(t *testing.T) {
	email := newStubEmail()
	sms := newStubSMS()
	d := testDispatcher(t, email, sms)

	draft := sendableDraft()
	draft.Delivery.SMSEnabled = false
	draft.Delivery.SMSRecipients = []string{"+15550001111"}

	res, err := d.Send(context.Background(), draft, report.Client{ID: "c", Name: "C"}, []byte("doc"))
	require.NoError(t, err)
	assert.Len(t, res.Outcomes, 2)
	assert.Empty(t, sms.sent)
}

func TestDispatchRequiresSendableDraft(t *testing.T) {
	d := testDispatcher(t, newStubEmail(), nil)

	draft := report.NewDraft(time.Now()) // no client, no recipients
	_, err := d.Send(context.Background(), draft, report.Client{}, []byte("doc"))
	require.Error(t, err)
	assert.True(t, apexerrors.IsUsage(err))
}

func TestDispatchAttachesDocumentWhenRequested(t *testing.T) {
	email := newStubEmail()
	d := testDispatcher(t, email, nil)

	draft := sendableDraft()
	draft.Delivery.AttachDocument = true

	_, err := d.Send(context.Background(), draft, report.Client{ID: "c", Name: "C"}, []byte("%PDF-doc"))
	require.NoError(t, err)
	require.Len(t, email.sent, 2)
	assert.Equal(t, []byte("%PDF-doc"), email.sent[0].Attachment)
	assert.Contains(t, email.sent[0].AttachmentName, "security-report-")
}

type failingStore struct{}

func (failingStore) Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	return "", fmt.Errorf("bucket unavailable")
}
