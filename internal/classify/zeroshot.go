package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/threatlens/threatlens/internal/model"
)

// zeroShotStrategy is the second tier: a zero-shot multi-label text
// classification request against a fixed candidate label set. The top label
// and score become the verdict via the policy label mappings.
type zeroShotStrategy struct {
	apiKey   string
	endpoint string
	policy   *Policy
	client   *http.Client
}

func newZeroShotStrategy(cfg Config, policy *Policy) *zeroShotStrategy {
	endpoint := cfg.zeroShotEndpoint()
	if cfg.ZeroShotEndpoint == "" && cfg.ZeroShotModel != "" {
		endpoint = "https://api-inference.huggingface.co/models/" + cfg.ZeroShotModel
	}
	return &zeroShotStrategy{
		apiKey:   cfg.ZeroShotAPIKey,
		endpoint: endpoint,
		policy:   policy,
		client:   &http.Client{Timeout: cfg.httpTimeout()},
	}
}

func (s *zeroShotStrategy) Name() string { return "zeroshot" }

type zeroShotRequest struct {
	Inputs     string `json:"inputs"`
	Parameters struct {
		CandidateLabels []string `json:"candidate_labels"`
	} `json:"parameters"`
}

type zeroShotResponse struct {
	Labels []string  `json:"labels"`
	Scores []float64 `json:"scores"`
}

func (s *zeroShotStrategy) Analyze(ctx context.Context, entry *model.ParsedLogEntry, _ []*model.AnalyzedEntry) (*model.AnalysisResult, error) {
	reqBody := zeroShotRequest{
		Inputs: fmt.Sprintf("%s | source %s | %s", entry.EventDescription, entry.IPAddress, entry.RawLogLine),
	}
	reqBody.Parameters.CandidateLabels = s.policy.CandidateLabels
	if len(reqBody.Parameters.CandidateLabels) == 0 {
		reqBody.Parameters.CandidateLabels = []string{"normal", "suspicious", "malicious", "error"}
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("classify: marshal zero-shot request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("classify: build zero-shot request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("classify: zero-shot request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("classify: read zero-shot response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("classify: zero-shot responded %d: %.200s", resp.StatusCode, body)
	}

	var parsed zeroShotResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("classify: decode zero-shot response: %w", err)
	}
	if len(parsed.Labels) == 0 || len(parsed.Scores) == 0 {
		return nil, fmt.Errorf("classify: zero-shot response has no labels")
	}

	result := s.labelVerdict(parsed.Labels[0], parsed.Scores[0])
	result.Tier = s.Name()
	return result, nil
}

// labelVerdict maps the top label and its score onto a verdict using the
// policy's label mappings.
func (s *zeroShotStrategy) labelVerdict(label string, score float64) *model.AnalysisResult {
	result := &model.AnalysisResult{
		Status:            model.StatusNormal,
		Confidence:        clamp01(score),
		ThreatLevel:       model.ThreatLow,
		RecommendedAction: "Monitor",
		Explanation:       clampExplanation(fmt.Sprintf("Classified as %q (score %.2f)", label, score)),
	}

	mapping, ok := s.policy.Labels[strings.ToLower(label)]
	if !ok {
		return result
	}

	if mapping.Status.Valid() {
		result.Status = mapping.Status
	}
	if mapping.Action != "" {
		result.RecommendedAction = mapping.Action
	}
	if mapping.EscalateAbove > 0 && score > mapping.EscalateAbove && mapping.EscalatedLevel.Valid() {
		result.ThreatLevel = mapping.EscalatedLevel
	}
	return result
}
