package models

import "strings"

// Tag is a canonical work-category label.
type Tag string

const (
	TagDeploy  Tag = "Deploy"
	TagMerge   Tag = "Merge"
	TagTest    Tag = "Test"
	TagFix     Tag = "Fix"
	TagDevelop Tag = "Develop"
	TagMeeting Tag = "Meeting"
	TagDocs    Tag = "Docs"
	TagOther   Tag = "Other"
)

// AllTags lists every canonical tag in stable order.
func AllTags() []Tag {
	return []Tag{TagDeploy, TagMerge, TagTest, TagFix, TagDevelop, TagMeeting, TagDocs, TagOther}
}

// ParseTag maps a string onto a canonical tag, case-insensitively.
func ParseTag(s string) (Tag, bool) {
	for _, t := range AllTags() {
		if strings.EqualFold(string(t), s) {
			return t, true
		}
	}
	return "", false
}

// ClassificationSource records which route produced a classification.
type ClassificationSource string

const (
	SourceKeyword  ClassificationSource = "keyword"
	SourceAI       ClassificationSource = "ai"
	SourceFallback ClassificationSource = "fallback"
)

// ClassificationResult is the single classification attached to a message.
// Description and Participants are populated only on the AI route, where the
// model returns a synthesized work-unit description; the keyword and fallback
// routes leave them empty and the assembler falls back to the cleaned text.
type ClassificationResult struct {
	Tag          Tag                  `json:"tag"`
	Source       ClassificationSource `json:"source"`
	Confidence   float64              `json:"confidence,omitempty"`
	Description  string               `json:"description,omitempty"`
	Participants []string             `json:"participants,omitempty"`

	// Project refines the message's own project attribution when the AI
	// route identifies one and normalization could not.
	Project string `json:"project,omitempty"`
}
