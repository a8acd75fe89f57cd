// Package api exposes the report workflow over HTTP: draft mutations,
// AI enhancement, preview download, delivery, and a WebSocket progress
// feed.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	apexerrors "github.com/SeanSwan/Apex-sub007/internal/errors"
	"github.com/SeanSwan/Apex-sub007/internal/persistence"
	"github.com/SeanSwan/Apex-sub007/internal/websocket"
	"github.com/SeanSwan/Apex-sub007/internal/workflow"
)

// Server wires the workflow controller to the HTTP surface.
type Server struct {
	controller *workflow.Controller
	clients    persistence.ClientDirectory
	hub        *websocket.Hub
	router     chi.Router
}

// NewServer builds the router and subscribes the WebSocket hub to
// controller progress events.
func NewServer(controller *workflow.Controller, clients persistence.ClientDirectory) *Server {
	s := &Server{
		controller: controller,
		clients:    clients,
	}
	s.hub = websocket.NewHub(func() any { return controller.Snapshot() })
	controller.Subscribe(func(e workflow.ProgressEvent) {
		s.hub.Broadcast("progress", e)
	})

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Route("/api", func(r chi.Router) {
		r.Get("/clients", s.handleListClients)
		r.Get("/health", s.handleHealth)

		r.Route("/report", func(r chi.Router) {
			r.Get("/", s.handleGetDraft)
			r.Get("/progress", s.handleProgress)
			r.Get("/preview", s.handlePreview)

			r.Post("/client", s.handleSelectClient)
			r.Put("/metrics", s.handleUpdateMetrics)
			r.Put("/narratives/{day}", s.handleSetNarrative)
			r.Put("/summary", s.handleSetSummary)
			r.Put("/signature", s.handleSetSignature)
			r.Put("/theme", s.handleApplyBranding)
			r.Post("/media", s.handleAddMedia)
			r.Put("/delivery", s.handleSetDelivery)
			r.Post("/status", s.handleTransition)

			r.Post("/enhance", s.handleEnhance)
			r.Post("/send", s.handleSend)
			r.Post("/reset", s.handleReset)
		})
	})

	r.Get("/ws", s.hub.HandleWebSocket)
	r.Handle("/metrics", promhttp.Handler())

	s.router = r
	return s
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return s.router
}

// Run starts the hub loop and serves until the context ends.
func (s *Server) Run(ctx context.Context, addr string) error {
	go s.hub.Run(ctx)

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("API server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("Request handled")
	})
}

// writeError maps the error taxonomy onto HTTP statuses: usage errors
// are the caller's fault, transient errors are retryable server-side
// failures, and partial delivery reports multi-status.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var pe *apexerrors.PartialDeliveryError
	switch {
	case errors.As(err, &pe):
		status = http.StatusMultiStatus
	case apexerrors.IsUsage(err):
		status = http.StatusBadRequest
	case apexerrors.IsRetryable(err):
		status = http.StatusServiceUnavailable
	}

	body := map[string]any{
		"error":     apexerrors.UserMessage(err),
		"retryable": apexerrors.IsRetryable(err),
	}
	if pe != nil {
		body["outcomes"] = pe.Outcomes
	}
	writeJSON(w, status, body)
}
