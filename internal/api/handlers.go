package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"

	"github.com/SeanSwan/Apex-sub007/internal/enhance"
	apexerrors "github.com/SeanSwan/Apex-sub007/internal/errors"
	"github.com/SeanSwan/Apex-sub007/internal/report"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apexerrors.NewUsageError("request", fmt.Errorf("invalid request body: %w", err))
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := s.clients.List(r.Context())
	if err != nil {
		writeError(w, apexerrors.NewTransientError("clients", err))
		return
	}
	if clients == nil {
		clients = []report.Client{}
	}
	writeJSON(w, http.StatusOK, clients)
}

func (s *Server) handleGetDraft(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.controller.Draft())
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.controller.Snapshot())
}

func (s *Server) handleSelectClient(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ClientID string `json:"clientId"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if err := s.controller.SelectClient(r.Context(), body.ClientID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.controller.Snapshot())
}

func (s *Server) handleUpdateMetrics(w http.ResponseWriter, r *http.Request) {
	var patch report.MetricsPatch
	if err := decodeJSON(r, &patch); err != nil {
		writeError(w, err)
		return
	}
	if err := s.controller.UpdateMetrics(patch); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.controller.Draft().Metrics)
}

func (s *Server) handleSetNarrative(w http.ResponseWriter, r *http.Request) {
	day, err := report.ParseWeekday(chi.URLParam(r, "day"))
	if err != nil {
		writeError(w, apexerrors.NewUsageError("narrative", err))
		return
	}
	var body struct {
		Content      string                 `json:"content"`
		Status       report.NarrativeStatus `json:"status,omitempty"`
		SecurityCode report.SecurityCode    `json:"securityCode,omitempty"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if err := s.controller.SetNarrative(day, body.Content, body.Status, body.SecurityCode); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.controller.Snapshot())
}

func (s *Server) handleSetSummary(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Text string `json:"text"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if err := s.controller.SetSummary(body.Text); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.controller.Snapshot())
}

func (s *Server) handleSetSignature(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Text string `json:"text"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if err := s.controller.SetSignature(body.Text); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.controller.Snapshot())
}

func (s *Server) handleApplyBranding(w http.ResponseWriter, r *http.Request) {
	var theme report.BrandingSettings
	if err := decodeJSON(r, &theme); err != nil {
		writeError(w, err)
		return
	}
	if err := s.controller.ApplyBranding(theme); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.controller.Snapshot())
}

func (s *Server) handleAddMedia(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name     string    `json:"name"`
		URL      string    `json:"url"`
		MimeType string    `json:"mimeType"`
		Expiry   time.Time `json:"expiry,omitempty"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if body.URL == "" {
		writeError(w, apexerrors.NewUsageError("media", fmt.Errorf("media url is required")))
		return
	}
	m := report.MediaAttachment{
		ID:        ulid.Make().String(),
		Name:      body.Name,
		URL:       body.URL,
		MimeType:  body.MimeType,
		Expiry:    body.Expiry,
		CreatedAt: time.Now(),
	}
	if err := s.controller.AddMedia(m); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (s *Server) handleSetDelivery(w http.ResponseWriter, r *http.Request) {
	var opts report.DeliveryOptions
	if err := decodeJSON(r, &opts); err != nil {
		writeError(w, err)
		return
	}
	if err := s.controller.SetDelivery(opts); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.controller.Snapshot())
}

func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status report.Status `json:"status"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if err := s.controller.Transition(body.Status); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.controller.Snapshot())
}

func (s *Server) handleEnhance(w http.ResponseWriter, r *http.Request) {
	var opts enhance.Options
	if err := decodeJSON(r, &opts); err != nil {
		writeError(w, err)
		return
	}
	if err := s.controller.Enhance(r.Context(), opts); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.controller.Draft())
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	doc, err := s.controller.Preview(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Length", strconv.Itoa(len(doc.Bytes)))
	w.Header().Set("Content-Disposition", `inline; filename="security-report.pdf"`)
	_, _ = w.Write(doc.Bytes)
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	res, err := s.controller.Send(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if res == nil {
		// Scheduled: queued for later dispatch.
		writeJSON(w, http.StatusAccepted, s.controller.Snapshot())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"documentUrl": res.DocumentURL,
		"outcomes":    res.Outcomes,
		"progress":    s.controller.Snapshot(),
	})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.controller.Reset(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.controller.Snapshot())
}
