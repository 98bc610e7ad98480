// Package models contains domain models for scribe.
package models

import "time"

// RawMessage is a chat message exactly as the message source delivered it.
// It is never mutated downstream; normalization produces a derived record.
type RawMessage struct {
	ID           string    `json:"id"`
	Channel      string    `json:"channel"`
	UserID       string    `json:"user_id"`
	Text         string    `json:"text"`
	Timestamp    time.Time `json:"timestamp"`
	ThreadID     string    `json:"thread_id,omitempty"`
	UserName     string    `json:"user_name,omitempty"`
	UserRealName string    `json:"user_real_name,omitempty"`
}

// ThreadKey returns the conversation thread this message belongs to.
// Messages without an explicit thread form a single-message thread of their own.
func (m RawMessage) ThreadKey() string {
	if m.ThreadID != "" {
		return m.Channel + "/" + m.ThreadID
	}
	return m.Channel + "/" + m.ID
}

// NormalizedMessage is the cleaned, identity-resolved form of a RawMessage.
// Created exactly once per RawMessage and immutable afterwards.
type NormalizedMessage struct {
	Source      RawMessage `json:"source"`
	CleanedText string     `json:"cleaned_text"`
	Project     string     `json:"project"`
	DisplayName string     `json:"display_name"`
	Channel     string     `json:"channel"`
	Timestamp   time.Time  `json:"timestamp"`
}

// Date returns the calendar date of the message in YYYY-MM-DD form.
func (m NormalizedMessage) Date() string {
	return m.Timestamp.Format("2006-01-02")
}
