package classify

import "github.com/thebtf/scribe/pkg/models"

// DefaultRules is the built-in ordered rule table. Deploy outranks Test and
// Merge so that a message mentioning both a deploy and its verification
// lands on the higher-signal tag. Overridable via configuration.
func DefaultRules() []Rule {
	return []Rule{
		{Tag: models.TagDeploy, Triggers: []string{"deploy", "rollout", "released to prod", "went live", "上線"}},
		{Tag: models.TagMerge, Triggers: []string{"merge", "pull request", "pr approved", "分支合併"}},
		{Tag: models.TagTest, Triggers: []string{"test", "qa pass", "verification", "staging", "交測"}},
		{Tag: models.TagFix, Triggers: []string{"fix", "hotfix", "bug", "patch", "resolved issue"}},
		{Tag: models.TagDevelop, Triggers: []string{"implement", "develop", "refactor", "feature branch", "coding"}},
		{Tag: models.TagMeeting, Triggers: []string{"meeting", "standup", "retrospective", "call with", "demo"}},
		{Tag: models.TagDocs, Triggers: []string{"document", "readme", "wiki", "spec update", "guideline"}},
	}
}

// laxRules is the looser table used only by the fallback route. Broad,
// single-word triggers that would be too noisy for the keyword route are
// acceptable here: fallback trades precision for completeness.
var laxRules = []compiledRule{
	{tag: models.TagDeploy, triggers: []string{"deploy", "release", "ship", "prod", "live", "上線"}},
	{tag: models.TagTest, triggers: []string{"test", "qa", "verify", "staging", "交測"}},
	{tag: models.TagMerge, triggers: []string{"merge", "branch", "pr", "分支"}},
	{tag: models.TagFix, triggers: []string{"fix", "bug", "error", "issue", "broken"}},
	{tag: models.TagMeeting, triggers: []string{"meet", "call", "sync", "discuss", "standup"}},
	{tag: models.TagDocs, triggers: []string{"doc", "readme", "wiki", "write-up"}},
	{tag: models.TagDevelop, triggers: []string{"code", "build", "implement", "refactor", "develop"}},
}
