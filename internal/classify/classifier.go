package classify

import (
	"context"
	"log"

	"github.com/threatlens/threatlens/internal/model"
)

// Classifier runs the tiered classification cascade. The strategy list is
// built once at construction from the injected configuration; a tier whose
// credential is absent is never attempted. The rule engine is always last
// and always succeeds.
type Classifier struct {
	strategies []Strategy
}

// New builds a classifier from config. The returned cascade tries, in
// order: LLM (when LLMAPIKey is set), zero-shot (when ZeroShotAPIKey is
// set), then the deterministic rule engine.
func New(cfg Config) (*Classifier, error) {
	policy := cfg.Policy
	if policy == nil {
		var err error
		policy, err = DefaultPolicy()
		if err != nil {
			return nil, err
		}
	}

	var strategies []Strategy
	if cfg.LLMAPIKey != "" {
		strategies = append(strategies, newLLMStrategy(cfg))
	}
	if cfg.ZeroShotAPIKey != "" {
		strategies = append(strategies, newZeroShotStrategy(cfg, policy))
	}
	strategies = append(strategies, NewRuleEngine(policy))

	return &Classifier{strategies: strategies}, nil
}

// NewWithStrategies builds a classifier from an explicit strategy list.
// Intended for tests substituting fake tiers.
func NewWithStrategies(strategies ...Strategy) *Classifier {
	return &Classifier{strategies: strategies}
}

// Tiers returns the names of the configured strategies in cascade order.
func (c *Classifier) Tiers() []string {
	names := make([]string, len(c.strategies))
	for i, s := range c.strategies {
		names[i] = s.Name()
	}
	return names
}

// AnalyzeEntry produces exactly one result for entry: the first tier that
// completes without error wins. Tier failures are logged and never
// propagate past this method.
func (c *Classifier) AnalyzeEntry(ctx context.Context, entry *model.ParsedLogEntry, prior []*model.AnalyzedEntry) *model.AnalysisResult {
	for _, strategy := range c.strategies {
		result, err := strategy.Analyze(ctx, entry, prior)
		if err != nil {
			log.Printf("classify: %s tier failed, falling through: %v", strategy.Name(), err)
			continue
		}
		return result
	}

	// Unreachable when the rule engine terminates the cascade; guarded so a
	// misconfigured strategy list still yields a well-formed result.
	return &model.AnalysisResult{
		Status:            model.StatusNormal,
		Confidence:        0.5,
		Explanation:       "No classification tier available",
		ThreatLevel:       model.ThreatLow,
		RecommendedAction: "Monitor",
		Tier:              "none",
	}
}

// AnalyzeBatch classifies entries in input order, threading the growing
// list of already-analyzed entries through each call. Order matters: both
// the rule engine's repetition scoring and the LLM prompt context depend
// on it.
func (c *Classifier) AnalyzeBatch(ctx context.Context, entries []*model.ParsedLogEntry) []*model.AnalyzedEntry {
	analyzed := make([]*model.AnalyzedEntry, 0, len(entries))
	for _, entry := range entries {
		result := c.AnalyzeEntry(ctx, entry, analyzed)
		analyzed = append(analyzed, &model.AnalyzedEntry{
			ParsedLogEntry: *entry,
			Analysis:       *result,
		})
	}
	return analyzed
}
