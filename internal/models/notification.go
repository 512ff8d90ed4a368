package models

import (
	"fmt"
	"time"
)

// Level classifies a notification's urgency. The values are wire-stable:
// they are stored as-is, serialized to clients as-is, and URGENT/DEADLINE
// drive email escalation.
type Level string

const (
	LevelInfo      Level = "INFO"
	LevelStandard  Level = "STANDARD"
	LevelImportant Level = "IMPORTANT"
	LevelUrgent    Level = "URGENT"
	LevelDeadline  Level = "DEADLINE"
)

// ParseLevel validates a raw level string.
func ParseLevel(raw string) (Level, error) {
	switch Level(raw) {
	case LevelInfo, LevelStandard, LevelImportant, LevelUrgent, LevelDeadline:
		return Level(raw), nil
	}
	return "", fmt.Errorf("unknown notification level %q", raw)
}

// Escalates reports whether notifications at this level are promoted to email.
func (l Level) Escalates() bool {
	return l == LevelUrgent || l == LevelDeadline
}

// TargetGlobal is the live-event target used for broadcast notifications.
const TargetGlobal = "GLOBAL"

// RecipientSet is either a targeted list of user ids or a broadcast.
// Broadcast is the first-class case for INFO-level notifications; a
// targeted set may be empty, which is stored but never delivered to
// anyone over targeted channels.
type RecipientSet struct {
	userIDs   []string
	broadcast bool
}

// Targeted addresses the given users, in order.
func Targeted(userIDs ...string) RecipientSet {
	return RecipientSet{userIDs: userIDs}
}

// Broadcast addresses every connected and future user.
func Broadcast() RecipientSet {
	return RecipientSet{broadcast: true}
}

func (r RecipientSet) IsBroadcast() bool { return r.broadcast }

// UserIDs returns the targeted user ids; nil for a broadcast.
func (r RecipientSet) UserIDs() []string {
	if r.broadcast {
		return nil
	}
	return r.userIDs
}

// Notification is the durable record of a fan-out decision. ReadBy grows
// monotonically and is the sole source of truth for read state at every
// level, including broadcasts.
type Notification struct {
	ID         string    `json:"id" db:"id"`
	Recipients []string  `json:"recipients" db:"recipients"`
	Level      Level     `json:"level" db:"level"`
	Message    string    `json:"message" db:"message"`
	Link       string    `json:"link,omitempty" db:"link"`
	ReadBy     []string  `json:"read_by" db:"read_by"`
	Emailed    bool      `json:"emailed" db:"emailed"`
	ProjectID  *string   `json:"project_id,omitempty" db:"project_id"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// IsReadBy reports whether userID has acknowledged the notification.
func (n Notification) IsReadBy(userID string) bool {
	for _, id := range n.ReadBy {
		if id == userID {
			return true
		}
	}
	return false
}

// NotificationView is a notification annotated with the querying user's
// read state, which is what the dashboard and the live channel consume.
type NotificationView struct {
	Notification
	IsRead bool `json:"is_read"`
}

// ViewFor annotates the notification for one user.
func (n Notification) ViewFor(userID string) NotificationView {
	return NotificationView{Notification: n, IsRead: n.IsReadBy(userID)}
}

// LiveEvent is the transient payload published on the bus at creation
// time, one per recipient plus one TargetGlobal event for broadcasts.
// It is never persisted and there is no replay for late subscribers.
type LiveEvent struct {
	Target       string           `json:"target"`
	Notification NotificationView `json:"notification"`
}
