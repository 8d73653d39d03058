package domain

import (
	"time"
)

// TimestampLayout is the ISO-8601 (second precision) layout used for every
// stored created_at value.
const TimestampLayout = "2006-01-02 15:04:05"

// FormatTimestamp renders t in TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

// Session represents a conversation session.
type Session struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	CreatedAt string `json:"created_at"`
	ModelID   string `json:"model_id"`
}

// Message represents a single turn in a session.
type Message struct {
	ID        int64  `json:"id"`
	SessionID int64  `json:"session_id"`
	Role      Role   `json:"role"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
	Seq       int    `json:"seq"`
	ModelID   string `json:"model_id"`
}

// SessionRecord is a session together with its messages in sequence order.
type SessionRecord struct {
	Session
	Messages []Message `json:"messages"`
}

// Clone returns a copy that shares no message storage with r.
func (r SessionRecord) Clone() SessionRecord {
	out := r
	out.Messages = make([]Message, len(r.Messages))
	copy(out.Messages, r.Messages)
	return out
}

// NextSeq is the sequence number the next appended message must receive.
func (r SessionRecord) NextSeq() int {
	return len(r.Messages) + 1
}

// LastMessage returns the most recent message, if any.
func (r SessionRecord) LastMessage() (Message, bool) {
	if len(r.Messages) == 0 {
		return Message{}, false
	}
	return r.Messages[len(r.Messages)-1], true
}

// ModelInfo describes a model offered by the registry.
type ModelInfo struct {
	ID            string `json:"id" yaml:"id"`
	Developer     string `json:"developer" yaml:"developer"`
	Description   string `json:"description" yaml:"description"`
	ContextWindow int    `json:"context_window" yaml:"context_window"`
	MaxCompletion int    `json:"max_completion" yaml:"max_completion"`
}
