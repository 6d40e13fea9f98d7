package models

import (
	"fmt"
	"time"
)

// Priority classifies how urgently a broadcast should be read.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// ParsePriority validates s, mapping the empty string to PriorityNormal.
func ParsePriority(s string) (Priority, error) {
	switch Priority(s) {
	case "":
		return PriorityNormal, nil
	case PriorityLow, PriorityNormal, PriorityHigh:
		return Priority(s), nil
	}
	return "", fmt.Errorf("invalid priority %q (want low, normal or high)", s)
}

// Envelope is a single message as sent by an agent. Envelopes are appended
// and read, never updated. ID doubles as the monotonic read cursor.
type Envelope struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"cursor,omitempty"`
	GUID      string    `gorm:"size:36;uniqueIndex" json:"id"`
	From      string    `gorm:"column:from_agent;size:96;not null;index" json:"from"`
	To        string    `gorm:"column:to_agent;size:96;index" json:"to,omitempty"`
	Channel   string    `gorm:"size:128;index" json:"channel,omitempty"`
	Content   string    `gorm:"type:text" json:"content"`
	Priority  Priority  `gorm:"size:8;default:normal" json:"priority"`
	CreatedAt time.Time `json:"timestamp"`
}

// IsBroadcast reports whether the envelope has no single recipient.
func (e *Envelope) IsBroadcast() bool {
	return e.To == ""
}
