// Package workflow owns the report lifecycle: the single in-progress
// draft, its status transitions, stage orchestration (enhance, chart,
// render, deliver), and progress reporting. All mutations pass through
// the controller, which mirrors every change into the draft
// repository.
package workflow

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/SeanSwan/Apex-sub007/internal/delivery"
	"github.com/SeanSwan/Apex-sub007/internal/enhance"
	apexerrors "github.com/SeanSwan/Apex-sub007/internal/errors"
	"github.com/SeanSwan/Apex-sub007/internal/persistence"
	"github.com/SeanSwan/Apex-sub007/internal/render"
	"github.com/SeanSwan/Apex-sub007/internal/report"
)

// Collaborator seams. The concrete implementations live in their own
// packages; tests substitute stubs.
type (
	// Enhancer produces AI text suggestions for narratives and summary.
	Enhancer interface {
		Enhance(ctx context.Context, req enhance.Request) (*enhance.Response, error)
	}

	// ChartCapturer rasterizes the weekly chart to a PNG.
	ChartCapturer interface {
		Capture(ctx context.Context, snapshot report.MetricsSnapshot, theme report.BrandingSettings) ([]byte, error)
		Invalidate()
	}

	// Renderer produces the paginated PDF document.
	Renderer interface {
		Generate(draft *report.ReportDraft, client report.Client) (*render.Document, error)
	}

	// Sender uploads the document and fans out to recipients. Upload
	// alone is used at queue time for scheduled deliveries so the
	// hosted link is live before the delivery timestamp.
	Sender interface {
		Upload(ctx context.Context, draft *report.ReportDraft, client report.Client, document []byte) (string, error)
		Send(ctx context.Context, draft *report.ReportDraft, client report.Client, document []byte) (*delivery.Result, error)
	}

	// Scheduler is the durable queue for deferred deliveries.
	Scheduler interface {
		Enqueue(ctx context.Context, draftID, clientID string, runAt time.Time) (int64, error)
		Due(ctx context.Context, now time.Time) ([]delivery.ScheduledJob, error)
		MarkDispatched(ctx context.Context, id int64) error
		MarkFailed(ctx context.Context, id int64, cause string) error
	}

	// MetricsSource supplies a client's stored week of monitoring data.
	MetricsSource interface {
		WeekSnapshot(ctx context.Context, clientID string, window report.DateRange) (report.MetricsSnapshot, error)
	}
)

// ProgressEvent is pushed to subscribers after every observable
// change.
type ProgressEvent struct {
	DraftID  string        `json:"draftId"`
	Status   report.Status `json:"status"`
	Progress int           `json:"progress"`
	Stage    string        `json:"stage,omitempty"`
}

// Config wires the controller's collaborators. Repo and Clients are
// required; the optional seams degrade the matching feature when nil.
type Config struct {
	Repo     persistence.DraftRepository
	Clients  persistence.ClientDirectory
	Metrics  MetricsSource
	Enhancer Enhancer
	Capturer ChartCapturer
	Renderer Renderer
	Sender   Sender
	Queue    Scheduler
	Now      func() time.Time
}

// Controller is the single owner of the in-progress draft. One
// controller serves one reporting session at a time.
type Controller struct {
	mu     sync.Mutex
	draft  *report.ReportDraft
	client *report.Client

	repo     persistence.DraftRepository
	clients  persistence.ClientDirectory
	metrics  MetricsSource
	enhancer Enhancer
	capturer ChartCapturer
	renderer Renderer
	sender   Sender
	queue    Scheduler
	now      func() time.Time

	inFlight  map[string]bool
	listeners []func(ProgressEvent)
}

// NewController creates a controller with a fresh draft. Call Resume
// to restore a persisted session instead.
func NewController(cfg Config) *Controller {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Controller{
		draft:    report.NewDraft(now()),
		repo:     cfg.Repo,
		clients:  cfg.Clients,
		metrics:  cfg.Metrics,
		enhancer: cfg.Enhancer,
		capturer: cfg.Capturer,
		renderer: cfg.Renderer,
		sender:   cfg.Sender,
		queue:    cfg.Queue,
		now:      now,
		inFlight: make(map[string]bool),
	}
}

// Resume restores the persisted draft, if any, and re-resolves its
// client. A draft whose client no longer exists keeps its data but
// needs the client re-selected.
func (c *Controller) Resume(ctx context.Context) error {
	draft, ok, err := c.repo.Load()
	if err != nil {
		return apexerrors.NewTransientError("restore", err)
	}
	if !ok {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.draft = draft
	if draft.ClientID != "" {
		client, err := c.clients.Get(ctx, draft.ClientID)
		if err != nil {
			log.Warn().Str("client", draft.ClientID).Err(err).Msg("Persisted draft references an unknown client")
			c.draft.ClientID = ""
		} else {
			c.client = &client
		}
	}
	log.Info().Str("draft", draft.ID).Str("status", string(draft.Status)).Msg("Draft session restored")
	return nil
}

// Subscribe registers a progress listener. Listeners are invoked
// synchronously after each mutation; keep them fast.
func (c *Controller) Subscribe(fn func(ProgressEvent)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Draft returns a deep copy of the current state for read paths.
func (c *Controller) Draft() *report.ReportDraft {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft.Clone()
}

// Client returns the selected client, if any.
func (c *Controller) Client() (report.Client, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return report.Client{}, false
	}
	return *c.client, true
}

// Snapshot returns the current progress event.
func (c *Controller) Snapshot() ProgressEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.eventLocked("")
}

// SelectClient binds the draft to a client, applies the client's
// branding, and pre-loads the stored week of metrics. The client is
// fixed for the session; choosing a different one requires a reset.
func (c *Controller) SelectClient(ctx context.Context, clientID string) error {
	client, err := c.clients.Get(ctx, clientID)
	if err != nil {
		return apexerrors.NewUsageError("client", err)
	}

	var stored *report.MetricsSnapshot
	if c.metrics != nil {
		c.mu.Lock()
		window := c.draft.DateRange
		c.mu.Unlock()
		snap, err := c.metrics.WeekSnapshot(ctx, clientID, window)
		if err != nil {
			// Stored metrics are a convenience; manual entry still works.
			log.Warn().Str("client", clientID).Err(err).Msg("Failed to pre-load stored metrics")
		} else {
			stored = &snap
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.draft.Status == report.StatusSent {
		return apexerrors.NewUsageError("client", fmt.Errorf("report already sent; reset to start a new one"))
	}
	if c.draft.ClientID != "" && c.draft.ClientID != clientID {
		return apexerrors.NewUsageError("client", fmt.Errorf("client already selected; reset to change it"))
	}

	c.draft.ClientID = clientID
	c.client = &client
	if client.Branding.Customized() {
		c.draft.Theme = client.Branding
	}
	if stored != nil {
		c.draft.Metrics = *stored
	}
	c.invalidateChartLocked()
	return c.persistLocked("client")
}

// UpdateMetrics merges a partial metrics edit into the snapshot.
func (c *Controller) UpdateMetrics(patch report.MetricsPatch) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.mutableLocked(); err != nil {
		return err
	}
	c.draft.Metrics.Merge(patch)
	c.invalidateChartLocked()
	return c.persistLocked("metrics")
}

// SetNarrative updates one weekday's narrative.
func (c *Controller) SetNarrative(day report.Weekday, content string, status report.NarrativeStatus, code report.SecurityCode) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.mutableLocked(); err != nil {
		return err
	}
	if err := c.draft.SetDay(day, content, status, code); err != nil {
		return apexerrors.NewUsageError("narrative", err)
	}
	return c.persistLocked("narrative")
}

// SetSummary replaces the summary text.
func (c *Controller) SetSummary(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.mutableLocked(); err != nil {
		return err
	}
	c.draft.SummaryText = text
	return c.persistLocked("summary")
}

// SetSignature replaces the sign-off line.
func (c *Controller) SetSignature(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.mutableLocked(); err != nil {
		return err
	}
	c.draft.Signature = text
	return c.persistLocked("signature")
}

// ApplyBranding replaces the theme used by the chart and renderer.
func (c *Controller) ApplyBranding(theme report.BrandingSettings) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.mutableLocked(); err != nil {
		return err
	}
	c.draft.Theme = theme
	c.invalidateChartLocked()
	return c.persistLocked("branding")
}

// AddMedia attaches an evidence item to the draft.
func (c *Controller) AddMedia(m report.MediaAttachment) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.mutableLocked(); err != nil {
		return err
	}
	c.draft.AddMedia(m)
	c.draft.RefreshMedia(c.now())
	return c.persistLocked("media")
}

// SetDelivery replaces the delivery options.
func (c *Controller) SetDelivery(opts report.DeliveryOptions) error {
	if opts.ScheduleDelivery && opts.DeliveryDate.IsZero() {
		return apexerrors.NewUsageError("delivery", fmt.Errorf("scheduled delivery needs a delivery date"))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.mutableLocked(); err != nil {
		return err
	}
	c.draft.Delivery = opts
	return c.persistLocked("delivery")
}

// Transition moves the draft between pre-send statuses. Sent is
// reachable only through Send or a scheduled queue; once sent the
// status never reverts.
func (c *Controller) Transition(to report.Status) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	from := c.draft.Status
	if from == report.StatusSent {
		return apexerrors.NewUsageError("status", fmt.Errorf("a sent report is final; reset to start a new one"))
	}
	allowed := map[report.Status][]report.Status{
		report.StatusDraft:  {report.StatusReview},
		report.StatusReview: {report.StatusReady, report.StatusDraft},
		report.StatusReady:  {report.StatusReview},
	}
	for _, next := range allowed[from] {
		if next == to {
			c.draft.Status = to
			return c.persistLocked("status")
		}
	}
	return apexerrors.NewUsageError("status", fmt.Errorf("cannot move from %s to %s", from, to))
}

// Enhance runs the AI pass over the narratives and summary. The draft
// is only mutated after the provider call succeeds; cancellation or
// failure discards the partial result and leaves every field as it
// was.
func (c *Controller) Enhance(ctx context.Context, opts enhance.Options) error {
	if c.enhancer == nil {
		return apexerrors.NewUsageError("enhance", fmt.Errorf("no AI provider configured"))
	}
	if err := c.acquire("enhance"); err != nil {
		return err
	}
	defer c.release("enhance")

	c.mu.Lock()
	if err := c.mutableLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	req := enhance.Request{
		Narratives: append([]report.DailyNarrative(nil), c.draft.DailyNarratives...),
		Summary:    c.draft.SummaryText,
		Metrics:    c.draft.Metrics.Clone(),
		Options:    opts,
	}
	c.mu.Unlock()

	resp, err := c.enhancer.Enhance(ctx, req)
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		// Canceled mid-flight: the suggestions are discarded whole.
		return apexerrors.NewTransientError("enhance", ctx.Err())
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for day, text := range resp.Narratives {
		if err := c.draft.SetDay(day, text, report.NarrativeCompleted, ""); err != nil {
			log.Warn().Str("day", string(day)).Err(err).Msg("Dropping suggestion for unknown day")
		}
	}
	if opts.GenerateSummary && strings.TrimSpace(resp.Summary) != "" {
		c.draft.SummaryText = resp.Summary
	}
	// A merged enhancement moves a fresh draft into review. A draft
	// already past review keeps its place.
	if c.draft.Status == report.StatusDraft {
		c.draft.Status = report.StatusReview
	}
	return c.persistLocked("enhance")
}

// Preview renders the current draft to a document, capturing the
// chart first when a capturer is available. The captured chart is
// cached on the draft so preview and send embed the same image. A
// successful render moves a pre-send draft to ready.
func (c *Controller) Preview(ctx context.Context) (*render.Document, error) {
	if err := c.acquire("render"); err != nil {
		return nil, err
	}
	defer c.release("render")
	return c.renderLocked(ctx)
}

func (c *Controller) renderLocked(ctx context.Context) (*render.Document, error) {
	c.mu.Lock()
	if c.client == nil {
		c.mu.Unlock()
		return nil, apexerrors.NewUsageError("render", apexerrors.ErrMissingClient)
	}
	c.draft.RefreshMedia(c.now())
	snapshot := c.draft.Clone()
	client := *c.client
	needChart := c.capturer != nil && len(snapshot.RenderedChartImage) == 0 && snapshot.Metrics.HasData()
	c.mu.Unlock()

	// Only attachments still safe to surface reach the document.
	snapshot.Media = snapshot.ActiveMedia(c.now())

	if needChart {
		img, err := c.capturer.Capture(ctx, snapshot.Metrics, snapshot.Theme)
		if err != nil {
			// The renderer falls back to its native chart drawing.
			log.Warn().Err(err).Msg("Chart capture failed, using native chart")
		} else {
			snapshot.RenderedChartImage = img
			c.mu.Lock()
			c.draft.RenderedChartImage = img
			if err := c.persistLocked("chart"); err != nil {
				c.mu.Unlock()
				return nil, err
			}
			c.mu.Unlock()
		}
	}

	doc, err := c.renderer.Generate(snapshot, client)
	if err != nil {
		return nil, apexerrors.NewTransientError("render", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.draft.Status == report.StatusDraft || c.draft.Status == report.StatusReview {
		c.draft.Status = report.StatusReady
		if err := c.persistLocked("render"); err != nil {
			return nil, err
		}
	}
	return doc, nil
}

// Send delivers the report now, or queues it when scheduled delivery
// is configured with a future date. A scheduled send still renders
// and uploads immediately so the hosted link is live before the
// delivery timestamp; only compose and dispatch are deferred. Queuing
// counts as sent; the job row tracks whether the deferred dispatch
// eventually succeeded.
func (c *Controller) Send(ctx context.Context) (*delivery.Result, error) {
	if err := c.acquire("send"); err != nil {
		return nil, err
	}
	defer c.release("send")

	c.mu.Lock()
	if err := c.draft.Sendable(); err != nil {
		c.mu.Unlock()
		return nil, apexerrors.NewUsageError("dispatch", err)
	}
	if c.draft.Status == report.StatusSent {
		c.mu.Unlock()
		return nil, apexerrors.NewUsageError("dispatch", fmt.Errorf("report already sent"))
	}
	scheduled := c.draft.Delivery.ScheduleDelivery && c.draft.Delivery.DeliveryDate.After(c.now())
	draftID, clientID := c.draft.ID, c.draft.ClientID
	runAt := c.draft.Delivery.DeliveryDate
	c.mu.Unlock()

	if scheduled {
		if c.queue == nil {
			return nil, apexerrors.NewUsageError("schedule", fmt.Errorf("scheduled delivery is not available"))
		}
		doc, err := c.renderLocked(ctx)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		snapshot := c.draft.Clone()
		client := *c.client
		c.mu.Unlock()

		url, err := c.sender.Upload(ctx, snapshot, client, doc.Bytes)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.draft.UploadedDocumentURL = url
		if err := c.persistLocked("upload"); err != nil {
			c.mu.Unlock()
			return nil, err
		}
		c.mu.Unlock()

		if _, err := c.queue.Enqueue(ctx, draftID, clientID, runAt); err != nil {
			return nil, apexerrors.NewTransientError("schedule", err)
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		c.draft.Status = report.StatusSent
		return nil, c.persistLocked("schedule")
	}

	return c.dispatchNow(ctx)
}

// dispatchNow renders and delivers immediately. On partial failure
// the upload link is kept so a retry reaches only the failed
// recipients without re-uploading.
func (c *Controller) dispatchNow(ctx context.Context) (*delivery.Result, error) {
	doc, err := c.renderLocked(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	snapshot := c.draft.Clone()
	client := *c.client
	c.mu.Unlock()

	res, sendErr := c.sender.Send(ctx, snapshot, client, doc.Bytes)

	c.mu.Lock()
	defer c.mu.Unlock()
	if res != nil && res.DocumentURL != "" {
		c.draft.UploadedDocumentURL = res.DocumentURL
	}
	if sendErr != nil {
		// Status stays put; the persisted link makes the retry cheap.
		if err := c.persistLocked("dispatch"); err != nil {
			log.Error().Err(err).Msg("Failed to persist dispatch state")
		}
		return res, sendErr
	}
	c.draft.Status = report.StatusSent
	return res, c.persistLocked("dispatch")
}

// ProcessDueJobs dispatches every queued job whose run time has
// passed. Only jobs belonging to the live draft can be dispatched;
// stale jobs from discarded drafts are failed.
func (c *Controller) ProcessDueJobs(ctx context.Context) {
	if c.queue == nil {
		return
	}
	jobs, err := c.queue.Due(ctx, c.now())
	if err != nil {
		log.Error().Err(err).Msg("Failed to read due jobs")
		return
	}
	for _, job := range jobs {
		c.mu.Lock()
		isLive := c.draft.ID == job.DraftID
		c.mu.Unlock()
		if !isLive {
			_ = c.queue.MarkFailed(ctx, job.ID, "draft no longer exists")
			continue
		}

		if _, err := c.dispatchNow(ctx); err != nil {
			log.Warn().Int64("job", job.ID).Err(err).Msg("Scheduled dispatch failed")
			_ = c.queue.MarkFailed(ctx, job.ID, err.Error())
			continue
		}
		_ = c.queue.MarkDispatched(ctx, job.ID)
		log.Info().Int64("job", job.ID).Msg("Scheduled dispatch completed")
	}
}

// RunScheduler polls for due jobs until the context ends.
func (c *Controller) RunScheduler(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.ProcessDueJobs(ctx)
		}
	}
}

// Reset discards the session and starts a fresh draft.
func (c *Controller) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.repo.Clear(); err != nil {
		return apexerrors.NewTransientError("reset", err)
	}
	c.draft = report.NewDraft(c.now())
	c.client = nil
	c.invalidateChartLocked()
	return c.persistLocked("reset")
}

// mutableLocked rejects edits on a sent draft.
func (c *Controller) mutableLocked() error {
	if c.draft.Status == report.StatusSent {
		return apexerrors.NewUsageError("edit", fmt.Errorf("a sent report is read-only; reset to start a new one"))
	}
	return nil
}

// acquire takes the per-stage in-flight guard: a second call for the
// same stage while one is running is rejected, not queued.
func (c *Controller) acquire(stage string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inFlight[stage] {
		return apexerrors.NewUsageError(stage, apexerrors.ErrStageBusy)
	}
	c.inFlight[stage] = true
	return nil
}

func (c *Controller) release(stage string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inFlight, stage)
}

func (c *Controller) invalidateChartLocked() {
	c.draft.RenderedChartImage = nil
	if c.capturer != nil {
		c.capturer.Invalidate()
	}
}

// persistLocked mirrors the draft and fans the progress event out.
// Callers hold c.mu.
func (c *Controller) persistLocked(stage string) error {
	c.draft.LastSavedAt = c.now()
	if err := c.repo.Save(c.draft); err != nil {
		return apexerrors.NewTransientError("persist", err)
	}
	event := c.eventLocked(stage)
	for _, fn := range c.listeners {
		fn(event)
	}
	return nil
}

func (c *Controller) eventLocked(stage string) ProgressEvent {
	return ProgressEvent{
		DraftID:  c.draft.ID,
		Status:   c.draft.Status,
		Progress: computeProgress(c.draft),
		Stage:    stage,
	}
}
