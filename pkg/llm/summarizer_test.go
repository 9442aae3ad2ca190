package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"frameworks/crowsnest/pkg/logging"
)

func TestNewSummarizerDisabledWhenUnconfigured(t *testing.T) {
	logger := logging.NewLogger()

	s := NewSummarizer(Config{}, logger)
	if s.Name() != "disabled" {
		t.Fatalf("expected disabled summarizer, got %q", s.Name())
	}

	out, err := s.Summarize(context.Background(), "anything", "")
	if err != nil {
		t.Fatalf("disabled summarizer must not fail: %v", err)
	}
	if out != NotConfiguredText {
		t.Fatalf("expected placeholder text, got %q", out)
	}
}

func TestNewSummarizerUnknownProviderFallsBack(t *testing.T) {
	logger := logging.NewLogger()
	s := NewSummarizer(Config{Provider: "sextant", APIKey: "k"}, logger)
	if s.Name() != "disabled" {
		t.Fatalf("expected disabled fallback, got %q", s.Name())
	}
}

func TestOpenAISummarize(t *testing.T) {
	var gotAuth string
	var gotBody openAIRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "  a short synthesis  "}},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	s := NewOpenAISummarizer(Config{Provider: "openai", Model: "gpt-4o-mini", APIKey: "key", APIURL: srv.URL})
	out, err := s.Summarize(context.Background(), "raw text", "extra")
	if err != nil {
		t.Fatalf("summarize failed: %v", err)
	}
	if out != "a short synthesis" {
		t.Fatalf("expected trimmed summary, got %q", out)
	}
	if gotAuth != "Bearer key" {
		t.Fatalf("expected bearer auth, got %q", gotAuth)
	}
	if len(gotBody.Messages) != 2 || gotBody.Messages[1].Role != "user" {
		t.Fatalf("unexpected messages: %+v", gotBody.Messages)
	}
}

func TestOpenAISummarizeRequiresModel(t *testing.T) {
	s := NewOpenAISummarizer(Config{APIKey: "key"})
	if _, err := s.Summarize(context.Background(), "text", ""); err == nil {
		t.Fatal("expected error for missing model")
	}
}

func TestAnthropicSummarize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-Key") != "key" {
			t.Errorf("expected x-api-key header, got %q", r.Header.Get("X-API-Key"))
		}
		resp := map[string]any{
			"content": []map[string]string{
				{"type": "text", "text": "first "},
				{"type": "text", "text": "second"},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	s := NewAnthropicSummarizer(Config{Provider: "anthropic", Model: "claude-sonnet", APIKey: "key", APIURL: srv.URL})
	out, err := s.Summarize(context.Background(), "raw text", "")
	if err != nil {
		t.Fatalf("summarize failed: %v", err)
	}
	if out != "first second" {
		t.Fatalf("expected concatenated text blocks, got %q", out)
	}
}

func TestBuildPrompt(t *testing.T) {
	if got := buildPrompt("text", ""); got != "text" {
		t.Fatalf("expected bare text, got %q", got)
	}
	got := buildPrompt("text", "ctx")
	if got != "text\n\nAdditional context:\nctx" {
		t.Fatalf("unexpected prompt: %q", got)
	}
}
