package classify

import (
	"context"
	"time"

	"github.com/threatlens/threatlens/internal/model"
)

// Strategy is one tier of the classification cascade. Analyze returns a
// complete result or an error; an error causes fallthrough to the next tier.
// prior is the ordered list of entries already analyzed in the current batch,
// read-only for the strategy.
type Strategy interface {
	Name() string
	Analyze(ctx context.Context, entry *model.ParsedLogEntry, prior []*model.AnalyzedEntry) (*model.AnalysisResult, error)
}

// Config is the injected classifier configuration. Tier availability is
// derived from key presence here, once at construction — strategies never
// consult the environment themselves.
type Config struct {
	LLMAPIKey   string
	LLMEndpoint string
	LLMModel    string

	ZeroShotAPIKey   string
	ZeroShotEndpoint string
	ZeroShotModel    string

	HTTPTimeout time.Duration

	Policy *Policy
}

const (
	defaultLLMEndpoint = "https://api.openai.com/v1/chat/completions"
	defaultLLMModel    = "gpt-4o-mini"

	defaultZeroShotEndpoint = "https://api-inference.huggingface.co/models/facebook/bart-large-mnli"

	defaultHTTPTimeout = 30 * time.Second
)

func (c Config) llmEndpoint() string {
	if c.LLMEndpoint != "" {
		return c.LLMEndpoint
	}
	return defaultLLMEndpoint
}

func (c Config) llmModel() string {
	if c.LLMModel != "" {
		return c.LLMModel
	}
	return defaultLLMModel
}

func (c Config) zeroShotEndpoint() string {
	if c.ZeroShotEndpoint != "" {
		return c.ZeroShotEndpoint
	}
	return defaultZeroShotEndpoint
}

func (c Config) httpTimeout() time.Duration {
	if c.HTTPTimeout > 0 {
		return c.HTTPTimeout
	}
	return defaultHTTPTimeout
}
