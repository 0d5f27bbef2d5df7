package classify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/threatlens/threatlens/internal/model"
)

func chatServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		resp := map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": content}},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func llmFromServer(srv *httptest.Server) *llmStrategy {
	return newLLMStrategy(Config{
		LLMAPIKey:   "test-key",
		LLMEndpoint: srv.URL,
		HTTPTimeout: 5 * time.Second,
	})
}

func TestLLMStrategy_DirectJSON(t *testing.T) {
	srv := chatServer(t, `{"status":"anomaly","confidence_score":0.92,"explanation":"injection attempt","threat_level":"high","recommended_action":"Block source"}`)
	defer srv.Close()

	result, err := llmFromServer(srv).Analyze(context.Background(), entryWithDescription("x"), nil)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if result.Status != model.StatusAnomaly || result.Confidence != 0.92 {
		t.Errorf("result = %+v", result)
	}
	if result.ThreatLevel != model.ThreatHigh || result.RecommendedAction != "Block source" {
		t.Errorf("result = %+v", result)
	}
	if result.Tier != "llm" {
		t.Errorf("Tier = %q, want llm", result.Tier)
	}
}

func TestLLMStrategy_FencedJSON(t *testing.T) {
	srv := chatServer(t, "Here is my analysis:\n```json\n{\"status\":\"suspicious\",\"confidence_score\":0.6,\"threat_level\":\"medium\"}\n```\nLet me know if you need more.")
	defer srv.Close()

	result, err := llmFromServer(srv).Analyze(context.Background(), entryWithDescription("x"), nil)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if result.Status != model.StatusSuspicious || result.Confidence != 0.6 {
		t.Errorf("result = %+v", result)
	}
	// Missing field defaulted.
	if result.RecommendedAction != "Monitor" {
		t.Errorf("RecommendedAction = %q, want default Monitor", result.RecommendedAction)
	}
}

func TestLLMStrategy_EmbeddedJSON(t *testing.T) {
	srv := chatServer(t, `The verdict is {"status":"normal","confidence_score":0.3} based on context.`)
	defer srv.Close()

	result, err := llmFromServer(srv).Analyze(context.Background(), entryWithDescription("x"), nil)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if result.Status != model.StatusNormal || result.Confidence != 0.3 {
		t.Errorf("result = %+v", result)
	}
}

func TestLLMStrategy_KeywordFallback(t *testing.T) {
	srv := chatServer(t, "This looks like an anomaly to me, quite dangerous.")
	defer srv.Close()

	result, err := llmFromServer(srv).Analyze(context.Background(), entryWithDescription("x"), nil)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if result.Status != model.StatusAnomaly {
		t.Errorf("Status = %q, want anomaly from keyword heuristic", result.Status)
	}
	if result.Confidence != 0.7 {
		t.Errorf("Confidence = %v, want fixed 0.7", result.Confidence)
	}
}

func TestLLMStrategy_MissingFieldsDefaulted(t *testing.T) {
	srv := chatServer(t, `{}`)
	defer srv.Close()

	result, err := llmFromServer(srv).Analyze(context.Background(), entryWithDescription("x"), nil)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if result.Status != model.StatusNormal || result.Confidence != 0.5 ||
		result.ThreatLevel != model.ThreatLow || result.RecommendedAction != "Monitor" {
		t.Errorf("defaults not applied: %+v", result)
	}
}

func TestLLMStrategy_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := llmFromServer(srv).Analyze(context.Background(), entryWithDescription("x"), nil)
	if err == nil {
		t.Error("Analyze should fail on non-200 response")
	}
}

func TestLLMStrategy_InvalidConfidenceClamped(t *testing.T) {
	srv := chatServer(t, `{"status":"anomaly","confidence_score":3.5}`)
	defer srv.Close()

	result, err := llmFromServer(srv).Analyze(context.Background(), entryWithDescription("x"), nil)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if result.Confidence != 1.0 {
		t.Errorf("Confidence = %v, want clamped to 1.0", result.Confidence)
	}
}

func TestBuildPrompt_ContextWindow(t *testing.T) {
	prior := make([]*model.AnalyzedEntry, 0, 8)
	for i := 0; i < 8; i++ {
		prior = append(prior, &model.AnalyzedEntry{
			ParsedLogEntry: model.ParsedLogEntry{
				IPAddress:        "10.0.0.1",
				EventDescription: "ctx-" + string(rune('a'+i)),
			},
			Analysis: model.AnalysisResult{Status: model.StatusNormal},
		})
	}

	prompt := buildPrompt(entryWithDescription("the entry"), prior)

	// Only the last 5 context entries appear.
	if strings.Contains(prompt, "ctx-a") || strings.Contains(prompt, "ctx-c") {
		t.Error("prompt contains context beyond the last 5 entries")
	}
	for _, want := range []string{"ctx-d", "ctx-h", "the entry", "192.0.2.1"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestFirstJSONObject(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{`prefix {"a":1} suffix`, `{"a":1}`},
		{`{"a":{"b":2}}`, `{"a":{"b":2}}`},
		{`{"s":"has } brace"}`, `{"s":"has } brace"}`},
		{`no braces here`, ``},
		{`{"unterminated`, ``},
	}
	for _, tt := range tests {
		if got := firstJSONObject(tt.input); got != tt.expected {
			t.Errorf("firstJSONObject(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}
