package analyzer

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/thebtf/scribe/internal/generation"
	"github.com/thebtf/scribe/pkg/models"
)

// PromptVersion participates in the cache fingerprint. Bump it whenever the
// prompt wording or the response schema changes so stale cached responses
// are not reused against the new contract.
const PromptVersion = "scribe-classify-v1"

// maxMessageChars caps how much of a single message goes into the prompt.
const maxMessageChars = 500

var tagListing = func() string {
	names := make([]string, 0, len(models.AllTags()))
	for _, t := range models.AllTags() {
		names = append(names, string(t))
	}
	return strings.Join(names, ", ")
}()

// BuildClassificationPrompt renders the batch as a numbered message list
// with classification instructions. Item indexes are 1-based and the
// response must echo them back.
func BuildClassificationPrompt(msgs []models.NormalizedMessage) string {
	var sb strings.Builder
	sb.WriteString("You are an engineering work-log analyst. Classify each workplace chat message below into exactly one activity tag and summarize it.\n\n")
	sb.WriteString("Allowed tags: ")
	sb.WriteString(tagListing)
	sb.WriteString("\n\n")
	sb.WriteString("For every numbered message return one JSON item with:\n")
	sb.WriteString("- index: the message number, echoed exactly\n")
	sb.WriteString("- tag: one of the allowed tags\n")
	sb.WriteString("- project: the project or service the message concerns, or \"unknown\"\n")
	sb.WriteString("- description: one concise sentence describing the work\n")
	sb.WriteString("- participants: names of other people mentioned, empty if none\n")
	sb.WriteString("- confidence: your confidence from 0.0 to 1.0\n\n")
	sb.WriteString("Messages:\n\n")

	for i, msg := range msgs {
		text := truncate(msg.CleanedText, maxMessageChars)
		fmt.Fprintf(&sb, "[%d] %s - %s in #%s:\n%s\n\n",
			i+1, msg.Timestamp.Format("2006-01-02 15:04"), msg.DisplayName, msg.Channel, text)
	}

	fmt.Fprintf(&sb, "Return a JSON object with an \"items\" array containing exactly %d items, one per message, and an optional \"summary\" string for the whole batch.\n", len(msgs))
	return sb.String()
}

// truncate caps s at max bytes without splitting a multi-byte rune; message
// text in this domain is regularly non-ASCII.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// BuildRetryPrompt wraps the base prompt with a correction preamble after a
// malformed response. The fingerprint ignores prompt wording, so the retry
// relies on the analyzer invalidating the cache entry first; the adjusted
// wording only steers the model toward the JSON contract.
func BuildRetryPrompt(msgs []models.NormalizedMessage, attempt int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Your previous answer was not valid JSON matching the required schema (attempt %d). Respond with ONLY the JSON object, no prose and no code fences. Every message index from 1 to %d must appear exactly once in \"items\".\n\n", attempt, len(msgs))
	sb.WriteString(BuildClassificationPrompt(msgs))
	return sb.String()
}

// ResponseSchema describes the structured output the backend must produce.
func ResponseSchema() generation.Schema {
	return generation.Schema{
		Type: "object",
		Properties: map[string]generation.Schema{
			"items": {
				Type: "array",
				Items: &generation.Schema{
					Type: "object",
					Properties: map[string]generation.Schema{
						"index":        {Type: "integer", Description: "1-based message number"},
						"tag":          {Type: "string", Enum: tagEnum()},
						"project":      {Type: "string"},
						"description":  {Type: "string"},
						"participants": {Type: "array", Items: &generation.Schema{Type: "string"}},
						"confidence":   {Type: "number"},
					},
					Required: []string{"index", "tag", "description"},
				},
			},
			"summary": {Type: "string"},
		},
		Required: []string{"items"},
	}
}

func tagEnum() []string {
	tags := models.AllTags()
	names := make([]string, len(tags))
	for i, t := range tags {
		names[i] = string(t)
	}
	return names
}
