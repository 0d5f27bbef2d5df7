package classify

import (
	"context"
	"fmt"
	"strings"

	"github.com/threatlens/threatlens/internal/model"
)

const maxExplanation = 300

// RuleEngine is the deterministic terminal tier. It never returns an error:
// for any input it produces a well-formed result from weighted pattern
// matches, source-address repetition, and the policy denylist.
type RuleEngine struct {
	policy *Policy
}

// NewRuleEngine creates the rule tier from a compiled policy.
func NewRuleEngine(policy *Policy) *RuleEngine {
	return &RuleEngine{policy: policy}
}

func (r *RuleEngine) Name() string { return "rules" }

func (r *RuleEngine) Analyze(_ context.Context, entry *model.ParsedLogEntry, prior []*model.AnalyzedEntry) (*model.AnalysisResult, error) {
	result := &model.AnalysisResult{
		Status:            model.StatusNormal,
		Confidence:        0.5,
		ThreatLevel:       model.ThreatLow,
		RecommendedAction: "Monitor",
		Tier:              r.Name(),
	}

	haystack := entry.EventDescription + "\n" + entry.RawLogLine

	var totalScore float64
	var matched []string
	for i := range r.policy.Patterns {
		pat := &r.policy.Patterns[i]
		if pat.re.MatchString(haystack) {
			totalScore += pat.Weight
			matched = append(matched, pat.Name)
		}
	}

	if r.repeatedSource(entry, prior) {
		totalScore += r.policy.RepeatIPWeight
		matched = append(matched, "repeated source address")
	}

	if r.policy.Denylisted(entry.IPAddress) {
		totalScore += r.policy.DenylistWeight
		matched = append(matched, "denylisted source address")
	}

	switch {
	case totalScore > r.policy.AnomalyThreshold:
		result.Status = model.StatusAnomaly
		result.Confidence = min(totalScore, r.policy.MaxConfidence)
		result.ThreatLevel = model.ThreatHigh
		result.RecommendedAction = "Investigate immediately"
	case totalScore > r.policy.SuspiciousThreshold:
		result.Status = model.StatusSuspicious
		result.Confidence = totalScore
		result.ThreatLevel = model.ThreatMedium
		result.RecommendedAction = "Monitor closely"
	}

	if len(matched) == 0 {
		result.Explanation = "No risk patterns matched"
	} else {
		result.Explanation = clampExplanation(fmt.Sprintf("Matched: %s", strings.Join(matched, ", ")))
	}

	return result, nil
}

// repeatedSource reports whether more than the policy threshold of prior
// entries in this batch share the entry's source address.
func (r *RuleEngine) repeatedSource(entry *model.ParsedLogEntry, prior []*model.AnalyzedEntry) bool {
	ip := entry.IPAddress
	if ip == "" || ip == model.DefaultUnknownAddress {
		return false
	}
	count := 0
	for _, prev := range prior {
		if prev.IPAddress == ip {
			count++
			if count > r.policy.RepeatIPThreshold {
				return true
			}
		}
	}
	return false
}

// clampExplanation truncates on rune boundaries so operator-supplied
// pattern names never produce invalid UTF-8.
func clampExplanation(s string) string {
	runes := []rune(s)
	if len(runes) <= maxExplanation {
		return s
	}
	return string(runes[:maxExplanation-3]) + "..."
}
