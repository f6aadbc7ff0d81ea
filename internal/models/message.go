package models

import "time"

// Message is one chat message. The body shown to users is SelectedBody.
type Message struct {
	ID         uint `gorm:"primaryKey" json:"id"`
	ChatroomID uint `gorm:"not null;index:idx_chatroom_send,priority:1" json:"chatroom_id"`
	SenderID   uint `gorm:"not null;index" json:"sender_id"`

	Body       string    `gorm:"type:text;not null" json:"body"`
	EditedBody *string   `gorm:"type:text" json:"edited_body,omitempty"`
	SendTime   time.Time `gorm:"not null;index:idx_chatroom_send,priority:2" json:"send_time"`

	AcceptedRephrasingID *uint        `json:"accepted_rephrasing_id,omitempty"`
	AcceptedRephrasing   *Rephrasing  `gorm:"foreignKey:AcceptedRephrasingID" json:"accepted_rephrasing,omitempty"`
	Rephrasings          []Rephrasing `gorm:"foreignKey:MessageID" json:"-"`

	// Delivered is false while the sender is choosing between rephrasings.
	Delivered bool `gorm:"not null;default:false" json:"delivered"`
}

// Rephrasing is one generated alternative for a message.
type Rephrasing struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	MessageID  uint      `gorm:"not null;index" json:"message_id"`
	Body       string    `gorm:"type:text;not null" json:"body"`
	EditedBody *string   `gorm:"type:text" json:"edited_body,omitempty"`
	Strategy   string    `gorm:"size:32;not null" json:"strategy"`
	CreatedAt  time.Time `json:"created_at"`
}

// SelectedBody is the effective text of a message: the accepted rephrasing
// (its edit if any), else the message's own edit, else the original body.
func SelectedBody(m *Message) string {
	if r := m.AcceptedRephrasing; r != nil {
		if r.EditedBody != nil {
			return *r.EditedBody
		}
		return r.Body
	}
	if m.EditedBody != nil {
		return *m.EditedBody
	}
	return m.Body
}

// Rephrased reports whether the sender accepted one of the offered rephrasings.
func (m *Message) Rephrased() bool {
	return m.AcceptedRephrasingID != nil
}
