package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SeanSwan/Apex-sub007/internal/delivery"
	apexerrors "github.com/SeanSwan/Apex-sub007/internal/errors"
	"github.com/SeanSwan/Apex-sub007/internal/render"
	"github.com/SeanSwan/Apex-sub007/internal/report"
	"github.com/SeanSwan/Apex-sub007/internal/workflow"
)

type memoryRepo struct {
	mu    sync.Mutex
	saved *report.ReportDraft
}

func (m *memoryRepo) Save(d *report.ReportDraft) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = d.Clone()
	return nil
}

func (m *memoryRepo) Load() (*report.ReportDraft, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saved == nil {
		return nil, false, nil
	}
	return m.saved.Clone(), true, nil
}

func (m *memoryRepo) Clear() error { m.saved = nil; return nil }
func (m *memoryRepo) Close() error { return nil }

type stubDirectory struct{ clients map[string]report.Client }

func (s *stubDirectory) List(ctx context.Context) ([]report.Client, error) {
	var out []report.Client
	for _, c := range s.clients {
		out = append(out, c)
	}
	return out, nil
}

func (s *stubDirectory) Get(ctx context.Context, id string) (report.Client, error) {
	c, ok := s.clients[id]
	if !ok {
		return report.Client{}, fmt.Errorf("client not found")
	}
	return c, nil
}

type stubRenderer struct{}

func (stubRenderer) Generate(d *report.ReportDraft, c report.Client) (*render.Document, error) {
	return &render.Document{Bytes: []byte("%PDF-stub"), PageCount: 1}, nil
}

type stubSender struct {
	err error
	res *delivery.Result
}

func (s *stubSender) Upload(ctx context.Context, d *report.ReportDraft, c report.Client, doc []byte) (string, error) {
	if d.UploadedDocumentURL != "" {
		return d.UploadedDocumentURL, nil
	}
	return s.res.DocumentURL, nil
}

func (s *stubSender) Send(ctx context.Context, d *report.ReportDraft, c report.Client, doc []byte) (*delivery.Result, error) {
	return s.res, s.err
}

func newTestServer(t *testing.T) (*Server, *stubSender) {
	t.Helper()
	dir := &stubDirectory{clients: map[string]report.Client{
		"acme-plaza": {ID: "acme-plaza", Name: "Acme Plaza"},
	}}
	sender := &stubSender{res: &delivery.Result{
		DocumentURL: "https://docs.apex.example/r.pdf",
		Outcomes:    []apexerrors.RecipientOutcome{{Recipient: "ops@acme.example", Channel: "email", Success: true}},
	}}
	controller := workflow.NewController(workflow.Config{
		Repo:     &memoryRepo{},
		Clients:  dir,
		Renderer: stubRenderer{},
		Sender:   sender,
	})
	return NewServer(controller, dir), sender
}

func doRequest(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestListClients(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/api/clients", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var clients []report.Client
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &clients))
	require.Len(t, clients, 1)
	assert.Equal(t, "Acme Plaza", clients[0].Name)
}

func TestSelectClientAndProgress(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/api/report/client", map[string]string{"clientId": "acme-plaza"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/api/report/progress", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var ev workflow.ProgressEvent
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ev))
	assert.Equal(t, 15, ev.Progress)
	assert.Equal(t, report.StatusDraft, ev.Status)
}

func TestSelectUnknownClient(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodPost, "/api/report/client", map[string]string{"clientId": "ghost"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid input")
}

func TestSetNarrative(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodPut, "/api/report/narratives/monday", map[string]any{
		"content":      "Quiet shift.",
		"status":       "completed",
		"securityCode": "Code 4",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/api/report/", nil)
	var draft report.ReportDraft
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &draft))
	n := draft.DailyNarratives[0]
	assert.Equal(t, report.Monday, n.Day)
	assert.Equal(t, "Quiet shift.", n.Content)
}

func TestSetNarrativeUnknownDay(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodPut, "/api/report/narratives/someday", map[string]any{"content": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateMetricsRejectsUnknownFields(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodPut, "/api/report/metrics", map[string]any{"bogus": 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateMetrics(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodPut, "/api/report/metrics", map[string]any{
		"counts":     map[string]map[string]int{"humanIntrusions": {"Monday": 4}},
		"aiAccuracy": 98.5,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var m report.MetricsSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	assert.Equal(t, 4, m.DayCount(report.CategoryHumanIntrusions, report.Monday))
	assert.Equal(t, 98.5, m.AIAccuracy)
}

func TestPreviewReturnsPDF(t *testing.T) {
	s, _ := newTestServer(t)
	doRequest(t, s, http.MethodPost, "/api/report/client", map[string]string{"clientId": "acme-plaza"})

	rec := doRequest(t, s, http.MethodGet, "/api/report/preview", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "%PDF-"))
}

func TestPreviewWithoutClient(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/api/report/preview", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSendSuccess(t *testing.T) {
	s, _ := newTestServer(t)
	doRequest(t, s, http.MethodPost, "/api/report/client", map[string]string{"clientId": "acme-plaza"})
	doRequest(t, s, http.MethodPut, "/api/report/delivery", map[string]any{
		"emailEnabled":    true,
		"emailRecipients": []string{"ops@acme.example"},
	})

	rec := doRequest(t, s, http.MethodPost, "/api/report/send", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		DocumentURL string                        `json:"documentUrl"`
		Outcomes    []apexerrors.RecipientOutcome `json:"outcomes"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "https://docs.apex.example/r.pdf", body.DocumentURL)
	require.Len(t, body.Outcomes, 1)
	assert.True(t, body.Outcomes[0].Success)
}

func TestSendPartialFailureIsMultiStatus(t *testing.T) {
	s, sender := newTestServer(t)
	outcomes := []apexerrors.RecipientOutcome{
		{Recipient: "a@acme.example", Channel: "email", Success: true},
		{Recipient: "b@acme.example", Channel: "email", Success: false, Error: "mailbox full"},
	}
	sender.res = &delivery.Result{DocumentURL: "u", Outcomes: outcomes}
	sender.err = &apexerrors.PartialDeliveryError{Stage: "dispatch", Outcomes: outcomes}

	doRequest(t, s, http.MethodPost, "/api/report/client", map[string]string{"clientId": "acme-plaza"})
	doRequest(t, s, http.MethodPut, "/api/report/delivery", map[string]any{
		"emailEnabled":    true,
		"emailRecipients": []string{"a@acme.example", "b@acme.example"},
	})

	rec := doRequest(t, s, http.MethodPost, "/api/report/send", nil)
	assert.Equal(t, http.StatusMultiStatus, rec.Code)
	assert.Contains(t, rec.Body.String(), "mailbox full")
	assert.Contains(t, rec.Body.String(), `"retryable":true`)
}

func TestSendWithoutRecipients(t *testing.T) {
	s, _ := newTestServer(t)
	doRequest(t, s, http.MethodPost, "/api/report/client", map[string]string{"clientId": "acme-plaza"})

	rec := doRequest(t, s, http.MethodPost, "/api/report/send", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTransitionAndReset(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/api/report/status", map[string]string{"status": "review"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, s, http.MethodPost, "/api/report/status", map[string]string{"status": "sent"})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "sent is not directly reachable")

	rec = doRequest(t, s, http.MethodPost, "/api/report/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var ev workflow.ProgressEvent
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ev))
	assert.Equal(t, report.StatusDraft, ev.Status)
	assert.Equal(t, 0, ev.Progress)
}

func TestAddMediaRequiresURL(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodPost, "/api/report/media", map[string]any{"name": "clip"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, s, http.MethodPost, "/api/report/media", map[string]any{
		"name": "clip", "url": "https://evidence.example/clip.mp4", "mimeType": "video/mp4",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var m report.MediaAttachment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	assert.NotEmpty(t, m.ID)
	assert.WithinDuration(t, time.Now(), m.CreatedAt, time.Minute)
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
