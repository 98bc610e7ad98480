// Package normalize turns raw chat messages into cleaned, identity-resolved
// records ready for classification.
package normalize

import (
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/scribe/internal/identity"
	"github.com/thebtf/scribe/pkg/models"
)

// UnknownProject is the project token assigned when no candidate is found.
const UnknownProject = "unknown"

// UnknownDisplayName is the terminal fallback of the display-name chain.
const UnknownDisplayName = "Unknown"

var (
	// slackLinkRegex matches Slack-style wrapped links <http://x|label>.
	slackLinkRegex = regexp.MustCompile(`<(https?://[^>|]+)(?:\|[^>]*)?>`)

	// urlRegex matches bare http(s) URLs.
	urlRegex = regexp.MustCompile(`https?://[^\s<>]+`)

	// hostRegex extracts the host part of a URL.
	hostRegex = regexp.MustCompile(`^https?://([^/\s:?#]+)`)

	// userMentionRegex matches Slack user mentions <@U123456>.
	userMentionRegex = regexp.MustCompile(`<@U[A-Z0-9]+>`)

	// channelMentionRegex matches channel mentions <#C123456|channel-name>.
	channelMentionRegex = regexp.MustCompile(`<#C[A-Z0-9]+\|([^>]+)>`)

	// specialMentionRegex matches <!here>, <!channel>, <!everyone>.
	specialMentionRegex = regexp.MustCompile(`<!(here|channel|everyone)>`)

	// dottedTokenRegex matches dotted project tokens like billing.api or x.io.
	dottedTokenRegex = regexp.MustCompile(`\b[A-Za-z][A-Za-z0-9_-]*(?:\.[A-Za-z0-9_-]+)+\b`)
)

// Normalizer derives NormalizedMessages from raw input. It is a pure
// transform: Normalize never fails, missing fields degrade to defaults.
type Normalizer struct {
	dir identity.Directory
}

// New creates a Normalizer backed by the given identity directory.
// A nil directory is valid; resolution then relies on embedded fields only.
func New(dir identity.Directory) *Normalizer {
	return &Normalizer{dir: dir}
}

// Normalize cleans a raw message, extracts its project token and resolves
// the author's display name. Total function over any RawMessage.
func (n *Normalizer) Normalize(raw models.RawMessage) models.NormalizedMessage {
	cleaned, hosts := CleanText(raw.Text)
	return models.NormalizedMessage{
		Source:      raw,
		CleanedText: cleaned,
		Project:     projectToken(cleaned, hosts),
		DisplayName: n.resolveDisplayName(raw),
		Channel:     raw.Channel,
		Timestamp:   raw.Timestamp,
	}
}

// NormalizeAll normalizes a slice in source order.
func (n *Normalizer) NormalizeAll(raws []models.RawMessage) []models.NormalizedMessage {
	out := make([]models.NormalizedMessage, len(raws))
	for i, raw := range raws {
		out[i] = n.Normalize(raw)
	}
	return out
}

// CleanText strips URLs and chat-platform markup from text, collapsing
// whitespace, and returns the cleaned text together with the hosts of any
// stripped URLs (kept as project-token candidates).
func CleanText(text string) (string, []string) {
	if text == "" {
		return "", nil
	}

	// Unwrap Slack link markup first so the bare-URL pass sees the target.
	text = slackLinkRegex.ReplaceAllString(text, "$1")

	var hosts []string
	text = urlRegex.ReplaceAllStringFunc(text, func(u string) string {
		if m := hostRegex.FindStringSubmatch(u); m != nil {
			hosts = append(hosts, m[1])
		}
		return ""
	})

	text = userMentionRegex.ReplaceAllString(text, "")
	text = channelMentionRegex.ReplaceAllString(text, "#$1")
	text = specialMentionRegex.ReplaceAllString(text, "@$1")

	return strings.Join(strings.Fields(text), " "), hosts
}

// projectToken picks the project for a message: the first dotted token in
// the cleaned text, else the host of the first stripped URL, else "unknown".
// Plain words are deliberately not candidates; verbs like "deploy" would
// otherwise masquerade as projects.
func projectToken(cleaned string, hosts []string) string {
	if tok := dottedTokenRegex.FindString(cleaned); tok != "" {
		return strings.ToLower(tok)
	}
	if len(hosts) > 0 {
		return strings.ToLower(hosts[0])
	}
	return UnknownProject
}

// resolveDisplayName applies the resolution chain:
// real_name -> user_name -> directory -> raw user id -> "Unknown".
func (n *Normalizer) resolveDisplayName(raw models.RawMessage) string {
	if raw.UserRealName != "" {
		return raw.UserRealName
	}
	if raw.UserName != "" {
		return raw.UserName
	}
	if n.dir != nil {
		if id, ok := n.dir.Lookup(raw.UserID); ok {
			if id.RealName != "" {
				return id.RealName
			}
			if id.Name != "" {
				return id.Name
			}
		}
	}
	if raw.UserID != "" {
		log.Debug().
			Str("user_id", raw.UserID).
			Str("message_id", raw.ID).
			Msg("No display name resolved, falling back to user id")
		return raw.UserID
	}
	log.Warn().Str("message_id", raw.ID).Msg("Message has no identity fields at all")
	return UnknownDisplayName
}
