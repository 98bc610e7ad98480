// Package journal assembles classification output into a JournalDocument:
// a positional join of messages and results, entry merging by work unit,
// and a total ordering that makes the output reproducible.
package journal

import (
	"fmt"
	"sort"
	"strings"

	"github.com/thebtf/scribe/internal/normalize"
	"github.com/thebtf/scribe/pkg/models"
)

// Assembler turns aligned message/result slices into a document. It is
// stateless, so one instance serves concurrent runs, and its output is a
// pure function of the inputs.
type Assembler struct{}

// New creates an Assembler.
func New() *Assembler {
	return &Assembler{}
}

// Assemble joins msgs and results positionally, merges entries that share
// (date, display name, tag, project), orders them, and wraps the rest of the
// document around them. A length mismatch between msgs and results is a
// programming fault upstream and is reported as an error, never papered over.
func (a *Assembler) Assemble(period models.Period, msgs []models.NormalizedMessage, results []models.ClassificationResult, stats models.RunStats) (*models.JournalDocument, error) {
	if len(msgs) != len(results) {
		return nil, fmt.Errorf("journal: %d messages but %d results", len(msgs), len(results))
	}

	merged := make(map[mergeKey]*models.JournalEntry, len(msgs))
	var order []mergeKey

	for i, msg := range msgs {
		entry := buildEntry(msg, results[i])
		key := mergeKey{entry.Date, entry.DisplayName, entry.Tag, entry.Project}
		existing, ok := merged[key]
		if !ok {
			e := entry
			merged[key] = &e
			order = append(order, key)
			continue
		}
		mergeInto(existing, entry)
	}

	entries := make([]models.JournalEntry, 0, len(order))
	tagCounts := make(map[models.Tag]int)
	for _, key := range order {
		entry := *merged[key]
		sort.Strings(entry.Participants)
		entries = append(entries, entry)
		tagCounts[entry.Tag]++
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Date != entries[j].Date {
			return entries[i].Date < entries[j].Date
		}
		if !entries[i].Timestamp.Equal(entries[j].Timestamp) {
			return entries[i].Timestamp.Before(entries[j].Timestamp)
		}
		return entries[i].DisplayName < entries[j].DisplayName
	})

	return &models.JournalDocument{
		Period:    period,
		Entries:   entries,
		Summary:   buildSummary(entries, tagCounts),
		TagCounts: tagCounts,
		Stats:     stats,
	}, nil
}

// buildSummary renders the document summary by aggregation alone, so two
// runs over the same input produce the same string.
func buildSummary(entries []models.JournalEntry, tagCounts map[models.Tag]int) string {
	if len(entries) == 0 {
		return "No journal entries for this period."
	}

	people := make(map[string]struct{})
	projects := make(map[string]struct{})
	for _, e := range entries {
		people[e.DisplayName] = struct{}{}
		projects[e.Project] = struct{}{}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d work units from %d people across %d projects.",
		len(entries), len(people), len(projects))

	parts := make([]string, 0, len(tagCounts))
	for _, tag := range models.AllTags() {
		if n := tagCounts[tag]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s %d", tag, n))
		}
	}
	if len(parts) > 0 {
		sb.WriteString(" By tag: ")
		sb.WriteString(strings.Join(parts, ", "))
		sb.WriteString(".")
	}
	return sb.String()
}

type mergeKey struct {
	date    string
	name    string
	tag     models.Tag
	project string
}

// buildEntry materializes one pre-merge entry. The AI route may refine the
// project when normalization could not attribute one, and its description
// replaces the raw text; the keyword and fallback routes keep the cleaned
// text as the description.
func buildEntry(msg models.NormalizedMessage, result models.ClassificationResult) models.JournalEntry {
	project := msg.Project
	if project == normalize.UnknownProject && result.Project != "" {
		project = result.Project
	}
	description := result.Description
	if description == "" {
		description = msg.CleanedText
	}
	return models.JournalEntry{
		Date:         msg.Date(),
		DisplayName:  msg.DisplayName,
		Tag:          result.Tag,
		Project:      project,
		Description:  description,
		Participants: append([]string(nil), result.Participants...),
		Source:       result.Source,
		Timestamp:    msg.Timestamp,
	}
}

// mergeInto folds next into dst. The first description wins; later distinct
// descriptions are appended unless one already subsumes the other,
// compared case-insensitively. The earliest timestamp is kept so merge
// order cannot reorder the document.
func mergeInto(dst *models.JournalEntry, next models.JournalEntry) {
	if next.Timestamp.Before(dst.Timestamp) {
		dst.Timestamp = next.Timestamp
	}
	dstLower := strings.ToLower(dst.Description)
	nextLower := strings.ToLower(next.Description)
	if next.Description != "" && !strings.Contains(dstLower, nextLower) {
		if strings.Contains(nextLower, dstLower) {
			dst.Description = next.Description
		} else {
			dst.Description = dst.Description + "; " + next.Description
		}
	}
	for _, p := range next.Participants {
		if !containsString(dst.Participants, p) {
			dst.Participants = append(dst.Participants, p)
		}
	}
	// A merged entry keeps the strongest provenance: an AI result anywhere
	// in the group marks the whole entry as AI-classified.
	if next.Source == models.SourceAI {
		dst.Source = models.SourceAI
	}
}

func containsString(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
