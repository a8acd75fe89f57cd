// Package rasterize captures the report's weekly intrusion chart as a
// still PNG for embedding in the rendered document. The chart is laid
// out as a self-contained HTML page and screenshotted in headless
// Chrome; capture waits for a bounded settle delay after the chart
// mounts so a mid-render frame is never grabbed.
package rasterize

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog/log"

	apexerrors "github.com/SeanSwan/Apex-sub007/internal/errors"
	"github.com/SeanSwan/Apex-sub007/internal/report"
)

// DefaultSettleDelay bounds how long capture waits after the chart
// element is visible before screenshotting.
const DefaultSettleDelay = 500 * time.Millisecond

// Rasterizer captures chart images, caching the last capture by
// content hash. A stale image is tolerated only until the next
// capture completes; the cache is best-effort, not correctness
// critical.
type Rasterizer struct {
	mu       sync.Mutex
	settle   time.Duration
	timeout  time.Duration
	cacheKey string
	cached   []byte
}

// New creates a rasterizer with the default settle delay.
func New() *Rasterizer {
	return &Rasterizer{
		settle:  DefaultSettleDelay,
		timeout: 30 * time.Second,
	}
}

// SetSettleDelay overrides the post-mount settle interval.
func (r *Rasterizer) SetSettleDelay(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settle = d
}

// Capture renders the chart for the given metrics and theme and
// returns PNG bytes. A repeat call with unchanged inputs returns the
// cached image without relaunching the browser.
func (r *Rasterizer) Capture(ctx context.Context, snapshot report.MetricsSnapshot, theme report.BrandingSettings) ([]byte, error) {
	key := cacheKey(snapshot, theme)

	r.mu.Lock()
	if r.cacheKey == key && r.cached != nil {
		img := r.cached
		r.mu.Unlock()
		return img, nil
	}
	settle := r.settle
	timeout := r.timeout
	r.mu.Unlock()

	html, err := BuildChartHTML(snapshot, theme)
	if err != nil {
		return nil, apexerrors.NewTransientError("chart", err)
	}

	img, err := screenshot(ctx, html, settle, timeout)
	if err != nil {
		return nil, apexerrors.NewTransientError("chart", err)
	}

	r.mu.Lock()
	r.cacheKey = key
	r.cached = img
	r.mu.Unlock()

	log.Debug().Int("bytes", len(img)).Msg("Chart captured")
	return img, nil
}

// Invalidate drops the cached image, forcing the next Capture to
// re-render. Called when metrics or branding change mid-stage.
func (r *Rasterizer) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cacheKey = ""
	r.cached = nil
}

func screenshot(ctx context.Context, html string, settle, timeout time.Duration) ([]byte, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	browserCtx, timeoutCancel := context.WithTimeout(browserCtx, timeout)
	defer timeoutCancel()

	url := "data:text/html;base64," + base64.StdEncoding.EncodeToString([]byte(html))

	var buf []byte
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(url),
		chromedp.WaitVisible("#chart", chromedp.ByID),
		chromedp.Sleep(settle),
		chromedp.Screenshot("#chart", &buf, chromedp.NodeVisible, chromedp.ByID),
	)
	if err != nil {
		return nil, fmt.Errorf("chart capture: %w", err)
	}
	if len(buf) == 0 {
		return nil, fmt.Errorf("chart capture produced an empty image")
	}
	return buf, nil
}

func cacheKey(snapshot report.MetricsSnapshot, theme report.BrandingSettings) string {
	h := sha256.New()
	enc := json.NewEncoder(h)
	_ = enc.Encode(snapshot)
	_ = enc.Encode(theme)
	return hex.EncodeToString(h.Sum(nil))
}
