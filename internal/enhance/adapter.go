// Package enhance sends draft narratives and the summary to an AI
// text service and returns improved versions. The adapter is a pure
// request/response call: it never mutates the draft; the workflow
// controller merges the response back by weekday key.
package enhance

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	apexerrors "github.com/SeanSwan/Apex-sub007/internal/errors"
	"github.com/SeanSwan/Apex-sub007/internal/enhance/providers"
	"github.com/SeanSwan/Apex-sub007/internal/report"
)

// Options toggles the individual enhancement behaviors. Every flag is
// explicit and independently settable.
type Options struct {
	AutoCorrect       bool `json:"autoCorrect"`
	EnhanceWriting    bool `json:"enhanceWriting"`
	SuggestContent    bool `json:"suggestContent"`
	GenerateSummary   bool `json:"generateSummary"`
	AnalyzeThreats    bool `json:"analyzeThreats"`
	HighlightPatterns bool `json:"highlightPatterns"`
}

// DefaultOptions enables the conservative text-improvement flags.
func DefaultOptions() Options {
	return Options{AutoCorrect: true, EnhanceWriting: true}
}

func (o Options) any() bool {
	return o.AutoCorrect || o.EnhanceWriting || o.SuggestContent ||
		o.GenerateSummary || o.AnalyzeThreats || o.HighlightPatterns
}

// Request carries the text to enhance plus the week's metrics for
// context.
type Request struct {
	Narratives []report.DailyNarrative
	Summary    string
	Metrics    report.MetricsSnapshot
	Options    Options
}

// Response holds the machine-suggested text. Days absent from
// Narratives leave the caller's local entries unchanged.
type Response struct {
	Narratives map[report.Weekday]string `json:"narratives"`
	Summary    string                    `json:"summary"`
}

// Adapter wraps a provider with the report-specific prompt and
// response parsing.
type Adapter struct {
	provider providers.Provider
	model    string
}

// NewAdapter creates an adapter over the given provider.
func NewAdapter(provider providers.Provider) *Adapter {
	return &Adapter{provider: provider}
}

const systemPrompt = `You are an editor for professional security-monitoring reports.
You receive daily narratives written by security operators plus the week's
incident counts. Return STRICT JSON with this shape and nothing else:
{"narratives": {"Monday": "...", ...}, "summary": "..."}
Only include days you actually changed. Keep facts intact; never invent incidents.`

// Enhance sends the narratives and summary to the text service and
// parses the suggested replacements. Failure is non-fatal for the
// draft: the caller surfaces a retryable error and keeps its state.
func (a *Adapter) Enhance(ctx context.Context, req Request) (*Response, error) {
	if !req.Options.any() {
		return nil, apexerrors.NewUsageError("enhance", fmt.Errorf("no enhancement options enabled"))
	}

	prompt := buildPrompt(req)
	resp, err := a.provider.Chat(ctx, providers.ChatRequest{
		Messages:    []providers.Message{{Role: "user", Content: prompt}},
		System:      systemPrompt,
		MaxTokens:   4096,
		Temperature: 0.3,
	})
	if err != nil {
		return nil, apexerrors.NewTransientError("enhance", err)
	}

	parsed, err := parseResponse(resp.Content)
	if err != nil {
		return nil, apexerrors.NewTransientError("enhance", err)
	}

	log.Info().
		Str("provider", a.provider.Name()).
		Int("daysSuggested", len(parsed.Narratives)).
		Bool("summarySuggested", parsed.Summary != "").
		Int("inputTokens", resp.InputTokens).
		Int("outputTokens", resp.OutputTokens).
		Msg("AI enhancement completed")

	return parsed, nil
}

func buildPrompt(req Request) string {
	var b strings.Builder

	b.WriteString("Requested behaviors:\n")
	for flag, enabled := range map[string]bool{
		"auto-correct spelling and grammar":        req.Options.AutoCorrect,
		"improve clarity and professional tone":    req.Options.EnhanceWriting,
		"suggest content for sparse days":          req.Options.SuggestContent,
		"generate or improve the weekly summary":   req.Options.GenerateSummary,
		"call out threat indicators":               req.Options.AnalyzeThreats,
		"highlight recurring patterns across days": req.Options.HighlightPatterns,
	} {
		if enabled {
			b.WriteString("- " + flag + "\n")
		}
	}

	b.WriteString("\nWeekly incident counts:\n")
	for _, cat := range report.CountCategories() {
		fmt.Fprintf(&b, "- %s: %d\n", report.CategoryDisplayName(cat), req.Metrics.WeekTotal(cat))
	}

	b.WriteString("\nDaily narratives:\n")
	for _, n := range req.Narratives {
		content := n.Content
		if strings.TrimSpace(content) == "" {
			content = "(empty)"
		}
		fmt.Fprintf(&b, "%s [%s]: %s\n", n.Day, n.SecurityCode, content)
	}

	b.WriteString("\nCurrent summary:\n")
	if strings.TrimSpace(req.Summary) == "" {
		b.WriteString("(empty)\n")
	} else {
		b.WriteString(req.Summary + "\n")
	}

	return b.String()
}

// parseResponse extracts the JSON payload from the model output,
// tolerating fenced code blocks and surrounding prose.
func parseResponse(content string) (*Response, error) {
	raw := strings.TrimSpace(content)
	if idx := strings.Index(raw, "```"); idx >= 0 {
		raw = raw[idx+3:]
		raw = strings.TrimPrefix(raw, "json")
		if end := strings.Index(raw, "```"); end >= 0 {
			raw = raw[:end]
		}
	}
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end < start {
		return nil, fmt.Errorf("no JSON object in model response")
	}
	raw = raw[start : end+1]

	var intermediate struct {
		Narratives map[string]string `json:"narratives"`
		Summary    string            `json:"summary"`
	}
	if err := json.Unmarshal([]byte(raw), &intermediate); err != nil {
		return nil, fmt.Errorf("malformed model response: %w", err)
	}

	out := &Response{
		Narratives: make(map[report.Weekday]string, len(intermediate.Narratives)),
		Summary:    intermediate.Summary,
	}
	for name, text := range intermediate.Narratives {
		day, err := report.ParseWeekday(name)
		if err != nil {
			// A day the model invented is dropped, not fatal.
			log.Warn().Str("day", name).Msg("Model suggested an unknown weekday, ignoring")
			continue
		}
		out.Narratives[day] = text
	}
	return out, nil
}
