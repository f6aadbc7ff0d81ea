package models

import "time"

// Chatroom is the shared space of exactly two matched users. It is created
// once, by the match transaction, and never removed.
type Chatroom struct {
	ID uint `gorm:"primaryKey" json:"id"`
	// LimitReached is set once the non-rephrased party has seen enough turns.
	LimitReached bool `gorm:"not null;default:false" json:"limit_reached"`
	// Error marks a chatroom that failed an integrity check.
	Error bool `gorm:"not null;default:false" json:"error"`
	// InitialViewsReversed decides which user's view is shown first.
	InitialViewsReversed bool `gorm:"not null;default:false" json:"-"`
	ViewsSeeded          bool `gorm:"not null;default:false" json:"-"`

	Users    []User    `json:"users,omitempty"`
	Messages []Message `json:"messages,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
