package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"frameworks/crowsnest/pkg/logging"
)

// Summarizer condenses free text into a short synthesis. Implementations
// must be safe for concurrent use.
type Summarizer interface {
	// Summarize produces a summary of text. extraContext is optional
	// supporting material (may be empty) woven into the prompt.
	Summarize(ctx context.Context, text, extraContext string) (string, error)
	// Name identifies the provider in logs and status output.
	Name() string
}

// NotConfiguredText is returned by the disabled summarizer so callers can
// proceed without an LLM backend.
const NotConfiguredText = "summarization not configured"

// NewSummarizer selects a provider from config. It never fails: missing or
// unusable configuration degrades to the disabled summarizer with a warning.
func NewSummarizer(cfg Config, logger logging.Logger) Summarizer {
	switch strings.ToLower(cfg.Provider) {
	case "", "disabled", "none":
		logger.Info("LLM provider not configured, summarization disabled")
		return &DisabledSummarizer{}
	case "openai":
		if cfg.APIKey == "" && cfg.APIURL == "" {
			logger.Warn("LLM_API_KEY missing for openai provider, summarization disabled")
			return &DisabledSummarizer{}
		}
		return NewOpenAISummarizer(cfg)
	case "anthropic":
		if cfg.APIKey == "" {
			logger.Warn("LLM_API_KEY missing for anthropic provider, summarization disabled")
			return &DisabledSummarizer{}
		}
		return NewAnthropicSummarizer(cfg)
	default:
		logger.WithField("provider", cfg.Provider).Warn("Unknown LLM provider, summarization disabled")
		return &DisabledSummarizer{}
	}
}

// DisabledSummarizer is the no-backend fallback.
type DisabledSummarizer struct{}

func (d *DisabledSummarizer) Summarize(ctx context.Context, text, extraContext string) (string, error) {
	return NotConfiguredText, nil
}

func (d *DisabledSummarizer) Name() string { return "disabled" }

// doWithRetry executes the request built by makeReq, retrying transient
// failures (transport errors, 429, 5xx) with a short linear backoff. The
// request body must be rebuildable, hence the constructor closure.
func doWithRetry(ctx context.Context, client *http.Client, makeReq func() (*http.Request, error)) (*http.Response, error) {
	const attempts = 3
	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * 2 * time.Second):
			}
		}

		req, err := makeReq()
		if err != nil {
			return nil, err
		}

		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			resp.Body.Close()
			lastErr = fmt.Errorf("transient status %s", resp.Status)
			continue
		}
		return resp, nil
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", attempts, lastErr)
}

// buildPrompt joins the text with optional extra context the way every
// provider expects it.
func buildPrompt(text, extraContext string) string {
	if extraContext == "" {
		return text
	}
	return text + "\n\nAdditional context:\n" + extraContext
}
