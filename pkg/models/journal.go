package models

import "time"

// Period is the half-open-by-convention time window a journal covers.
// Both bounds are inclusive.
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Valid reports whether the period is well formed.
func (p Period) Valid() bool {
	return !p.Start.IsZero() && !p.End.IsZero() && !p.End.Before(p.Start)
}

// Contains reports whether t falls inside the period.
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && !t.After(p.End)
}

// WorkWeek returns the Monday-to-Friday work week containing t,
// from Monday 00:00:00 through Friday 23:59:59.
func WorkWeek(t time.Time) Period {
	weekday := int(t.Weekday())
	// time.Weekday makes Sunday 0; shift so Monday is the week anchor.
	offset := (weekday + 6) % 7
	monday := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location()).AddDate(0, 0, -offset)
	friday := monday.AddDate(0, 0, 4).Add(23*time.Hour + 59*time.Minute + 59*time.Second)
	return Period{Start: monday, End: friday}
}

// Day returns the single-day period containing t.
func Day(t time.Time) Period {
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return Period{Start: start, End: start.Add(23*time.Hour + 59*time.Minute + 59*time.Second)}
}

// JournalEntry is the atomic unit of journal output. Entries sharing
// (Date, DisplayName, Tag, Project) are merged during assembly.
type JournalEntry struct {
	Date         string    `json:"date"`
	DisplayName  string    `json:"display_name"`
	Tag          Tag       `json:"tag"`
	Project      string    `json:"project"`
	Description  string    `json:"description"`
	Participants []string  `json:"participants"`
	Source       ClassificationSource `json:"source"`
	// Timestamp is the earliest source-message timestamp folded into the
	// entry; it orders entries within a date and never changes after merge.
	Timestamp time.Time `json:"timestamp"`
}

// RunStats counts what happened during a pipeline run.
type RunStats struct {
	MessagesSeen       int `json:"messages_seen"`
	MessagesExcluded   int `json:"messages_excluded"`
	KeywordClassified  int `json:"keyword_classified"`
	AIClassified       int `json:"ai_classified"`
	FallbackClassified int `json:"fallback_classified"`
	CacheHits          int `json:"cache_hits"`
	BackendCalls       int `json:"backend_calls"`
}

// JournalDocument is the aggregate output of one pipeline run.
// Immutable once assembled, and a pure function of its inputs: two runs
// over the same messages serialize identically, so no wall-clock fields
// belong here. Generation time is a logging concern.
type JournalDocument struct {
	Period    Period         `json:"period"`
	Entries   []JournalEntry `json:"entries"`
	Summary   string         `json:"summary"`
	TagCounts map[Tag]int    `json:"tag_counts"`
	Stats     RunStats       `json:"stats"`
}
