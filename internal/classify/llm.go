package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/threatlens/threatlens/internal/model"
)

const llmContextEntries = 5

const llmSystemPrompt = `You are a security log analyst. Respond with exactly one JSON object, no prose, with these fields:
{"status": "normal" | "suspicious" | "anomaly", "confidence_score": <float 0.0-1.0>, "explanation": "<max 300 chars>", "threat_level": "low" | "medium" | "high" | "critical", "recommended_action": "<short imperative>"}`

var fencedJSONRegex = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// llmStrategy is the first tier: a chat-completion request whose system
// message pins the exact JSON response shape.
type llmStrategy struct {
	apiKey   string
	endpoint string
	model    string
	client   *http.Client
}

func newLLMStrategy(cfg Config) *llmStrategy {
	return &llmStrategy{
		apiKey:   cfg.LLMAPIKey,
		endpoint: cfg.llmEndpoint(),
		model:    cfg.llmModel(),
		client:   &http.Client{Timeout: cfg.httpTimeout()},
	}
}

func (s *llmStrategy) Name() string { return "llm" }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (s *llmStrategy) Analyze(ctx context.Context, entry *model.ParsedLogEntry, prior []*model.AnalyzedEntry) (*model.AnalysisResult, error) {
	payload, err := json.Marshal(chatRequest{
		Model: s.model,
		Messages: []chatMessage{
			{Role: "system", Content: llmSystemPrompt},
			{Role: "user", Content: buildPrompt(entry, prior)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("classify: marshal llm request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("classify: build llm request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("classify: llm request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("classify: read llm response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("classify: llm responded %d: %.200s", resp.StatusCode, body)
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("classify: decode llm envelope: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("classify: llm response has no choices")
	}

	result := parseModelVerdict(parsed.Choices[0].Message.Content)
	result.Tier = s.Name()
	return result, nil
}

// buildPrompt embeds the entry and up to llmContextEntries of preceding
// batch context.
func buildPrompt(entry *model.ParsedLogEntry, prior []*model.AnalyzedEntry) string {
	var b strings.Builder

	if len(prior) > 0 {
		start := len(prior) - llmContextEntries
		if start < 0 {
			start = 0
		}
		b.WriteString("Recent entries from the same batch:\n")
		for _, prev := range prior[start:] {
			fmt.Fprintf(&b, "- [%s] %s %s (%s)\n",
				prev.Timestamp.Format(time.RFC3339), prev.IPAddress,
				prev.EventDescription, prev.Analysis.Status)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Analyze this log entry for security risk:\n")
	fmt.Fprintf(&b, "Timestamp: %s\n", entry.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(&b, "Source: %s\n", entry.IPAddress)
	fmt.Fprintf(&b, "Event: %s\n", entry.EventDescription)
	fmt.Fprintf(&b, "Raw line: %s\n", entry.RawLogLine)
	return b.String()
}

// verdictPayload mirrors the JSON object the model is instructed to return.
type verdictPayload struct {
	Status            string   `json:"status"`
	Confidence        *float64 `json:"confidence_score"`
	Explanation       string   `json:"explanation"`
	ThreatLevel       string   `json:"threat_level"`
	RecommendedAction string   `json:"recommended_action"`
}

// parseModelVerdict turns free-form model output into a complete result.
// Recovery order: direct JSON, fenced JSON block, first brace-delimited
// substring, then a keyword heuristic over the raw text. It always returns
// a well-formed result.
func parseModelVerdict(content string) *model.AnalysisResult {
	content = strings.TrimSpace(content)

	var payload verdictPayload
	if err := json.Unmarshal([]byte(content), &payload); err == nil {
		return verdictToResult(payload)
	}

	if m := fencedJSONRegex.FindStringSubmatch(content); m != nil {
		if err := json.Unmarshal([]byte(m[1]), &payload); err == nil {
			return verdictToResult(payload)
		}
	}

	if candidate := firstJSONObject(content); candidate != "" {
		if err := json.Unmarshal([]byte(candidate), &payload); err == nil {
			return verdictToResult(payload)
		}
	}

	return keywordVerdict(content)
}

// firstJSONObject extracts the first balanced brace-delimited substring.
func firstJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return s[start : i+1]
				}
			}
		}
	}
	return ""
}

// verdictToResult applies field defaults and validation to a parsed payload.
func verdictToResult(payload verdictPayload) *model.AnalysisResult {
	result := &model.AnalysisResult{
		Status:            model.StatusNormal,
		Confidence:        0.5,
		ThreatLevel:       model.ThreatLow,
		RecommendedAction: "Monitor",
	}

	if status := model.AnalysisStatus(strings.ToLower(payload.Status)); status.Valid() {
		result.Status = status
	}
	if payload.Confidence != nil {
		result.Confidence = clamp01(*payload.Confidence)
	}
	if level := model.ThreatLevel(strings.ToLower(payload.ThreatLevel)); level.Valid() {
		result.ThreatLevel = level
	}
	if payload.RecommendedAction != "" {
		result.RecommendedAction = payload.RecommendedAction
	}
	result.Explanation = clampExplanation(payload.Explanation)
	return result
}

// keywordVerdict derives a verdict from keyword presence in unparseable
// model output, with a fixed 0.7 confidence.
func keywordVerdict(content string) *model.AnalysisResult {
	lower := strings.ToLower(content)
	result := &model.AnalysisResult{
		Status:            model.StatusNormal,
		Confidence:        0.7,
		ThreatLevel:       model.ThreatLow,
		RecommendedAction: "Monitor",
		Explanation:       clampExplanation("Unstructured model response: " + content),
	}
	switch {
	case strings.Contains(lower, "anomaly"):
		result.Status = model.StatusAnomaly
		result.ThreatLevel = model.ThreatHigh
		result.RecommendedAction = "Investigate immediately"
	case strings.Contains(lower, "suspicious"):
		result.Status = model.StatusSuspicious
		result.ThreatLevel = model.ThreatMedium
		result.RecommendedAction = "Monitor closely"
	}
	return result
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
