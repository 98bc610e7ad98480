// Package classify implements the deterministic keyword route of the hybrid
// classifier: an ordered tag-to-triggers table scanned first match wins.
package classify

import (
	"fmt"
	"strings"

	"github.com/thebtf/scribe/pkg/models"
)

// Rule binds one canonical tag to its trigger substrings. Rule order is the
// match order; triggers are matched case-insensitively.
type Rule struct {
	Tag      models.Tag
	Triggers []string
}

// Classifier scans cleaned text against an ordered rule table. It holds no
// mutable state, so a single instance is safe for concurrent use and its
// output depends only on the rule table and the input text.
type Classifier struct {
	rules []compiledRule
}

type compiledRule struct {
	tag      models.Tag
	triggers []string // pre-lowered
}

// New builds a Classifier from an ordered rule table.
// An empty table is a configuration fault, not a valid classifier.
func New(rules []Rule) (*Classifier, error) {
	if len(rules) == 0 {
		return nil, fmt.Errorf("classify: empty rule table")
	}
	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		if _, ok := models.ParseTag(string(r.Tag)); !ok {
			return nil, fmt.Errorf("classify: rule references unknown tag %q", r.Tag)
		}
		if len(r.Triggers) == 0 {
			return nil, fmt.Errorf("classify: rule for %s has no triggers", r.Tag)
		}
		cr := compiledRule{tag: r.Tag, triggers: make([]string, len(r.Triggers))}
		for i, t := range r.Triggers {
			cr.triggers[i] = strings.ToLower(t)
		}
		compiled = append(compiled, cr)
	}
	return &Classifier{rules: compiled}, nil
}

// Classify returns the first rule-table match for the message's cleaned
// text. ok is false when no rule matches, signaling escalation to the AI
// route; that is an expected outcome, not an error.
func (c *Classifier) Classify(msg models.NormalizedMessage) (models.ClassificationResult, bool) {
	text := strings.ToLower(msg.CleanedText)
	if text == "" {
		return models.ClassificationResult{}, false
	}
	for _, rule := range c.rules {
		for _, trigger := range rule.triggers {
			if strings.Contains(text, trigger) {
				return models.ClassificationResult{
					Tag:    rule.tag,
					Source: models.SourceKeyword,
				}, true
			}
		}
	}
	return models.ClassificationResult{}, false
}

// Fallback classifies a message for the fallback route: the lax rule table
// first, canonical Other when nothing matches. It always returns a result,
// guaranteeing completeness over correctness.
func (c *Classifier) Fallback(msg models.NormalizedMessage) models.ClassificationResult {
	text := strings.ToLower(msg.CleanedText)
	for _, rule := range laxRules {
		for _, trigger := range rule.triggers {
			if strings.Contains(text, trigger) {
				return models.ClassificationResult{
					Tag:    rule.tag,
					Source: models.SourceFallback,
				}
			}
		}
	}
	return models.ClassificationResult{
		Tag:    models.TagOther,
		Source: models.SourceFallback,
	}
}
