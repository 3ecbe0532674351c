package models

import "time"

type Message struct {
	ID         string                `json:"id"`
	Room       string                `json:"room"`
	AuthorID   string                `json:"authorStableUserId"`
	AuthorName string                `json:"authorDisplayName"`
	Body       string                `json:"body"`
	CreatedAt  time.Time             `json:"createdAt"`
	SeenBy     map[string]SeenRecord `json:"seenBy,omitempty"`
}

// SeenRecord is one per-user acknowledgment of a message. Entries are only
// ever added, never altered or removed.
type SeenRecord struct {
	DisplayName string    `json:"displayName"`
	SeenAt      time.Time `json:"seenAt"`
}
