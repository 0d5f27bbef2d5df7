package classify

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"

	"github.com/threatlens/threatlens/internal/model"
	"gopkg.in/yaml.v3"
)

//go:embed policy.yml
var defaultPolicyYAML []byte

// RulePattern is one weighted signal evaluated by the rule engine.
type RulePattern struct {
	Name    string  `yaml:"name"`
	Pattern string  `yaml:"pattern"`
	Weight  float64 `yaml:"weight"`

	re *regexp.Regexp
}

// LabelMapping maps one zero-shot classifier label onto a verdict.
type LabelMapping struct {
	Status         model.AnalysisStatus `yaml:"status"`
	Action         string               `yaml:"action"`
	EscalateAbove  float64              `yaml:"escalate_above"`  // 0 = never escalate
	EscalatedLevel model.ThreatLevel    `yaml:"escalated_level"` // level when score exceeds EscalateAbove
}

// Policy holds the externalized classification policy: rule weights, the IP
// denylist, thresholds, and the zero-shot label mappings.
type Policy struct {
	Patterns []RulePattern `yaml:"patterns"`

	DenylistIPs []string `yaml:"denylist_ips"`

	RepeatIPThreshold int     `yaml:"repeat_ip_threshold"`
	RepeatIPWeight    float64 `yaml:"repeat_ip_weight"`
	DenylistWeight    float64 `yaml:"denylist_weight"`

	AnomalyThreshold    float64 `yaml:"anomaly_threshold"`
	SuspiciousThreshold float64 `yaml:"suspicious_threshold"`
	MaxConfidence       float64 `yaml:"max_confidence"`

	CandidateLabels []string                `yaml:"candidate_labels"`
	Labels          map[string]LabelMapping `yaml:"labels"`

	denylist map[string]bool
}

// DefaultPolicy parses the embedded policy document.
func DefaultPolicy() (*Policy, error) {
	return parsePolicy(defaultPolicyYAML)
}

// LoadPolicy reads a policy from path, falling back to the embedded default
// when path is empty.
func LoadPolicy(path string) (*Policy, error) {
	if path == "" {
		return DefaultPolicy()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("classify: read policy: %w", err)
	}
	return parsePolicy(data)
}

func parsePolicy(data []byte) (*Policy, error) {
	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("classify: parse policy: %w", err)
	}
	if err := p.compile(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *Policy) compile() error {
	if len(p.Patterns) == 0 {
		return fmt.Errorf("classify: policy has no patterns")
	}
	for i := range p.Patterns {
		pat := &p.Patterns[i]
		if pat.Name == "" || pat.Pattern == "" {
			return fmt.Errorf("classify: pattern %d is missing name or pattern", i)
		}
		re, err := regexp.Compile("(?i)" + pat.Pattern)
		if err != nil {
			return fmt.Errorf("classify: compile pattern %q: %w", pat.Name, err)
		}
		pat.re = re
	}

	if p.RepeatIPThreshold <= 0 {
		p.RepeatIPThreshold = 5
	}
	if p.AnomalyThreshold <= 0 {
		p.AnomalyThreshold = 0.7
	}
	if p.SuspiciousThreshold <= 0 {
		p.SuspiciousThreshold = 0.4
	}
	if p.MaxConfidence <= 0 {
		p.MaxConfidence = 0.95
	}

	p.denylist = make(map[string]bool, len(p.DenylistIPs))
	for _, ip := range p.DenylistIPs {
		p.denylist[ip] = true
	}
	return nil
}

// Denylisted reports whether ip appears on the policy denylist.
func (p *Policy) Denylisted(ip string) bool {
	return p.denylist[ip]
}
