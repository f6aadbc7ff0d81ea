package models

import (
	"time"

	"gorm.io/datatypes"
)

// Event types recorded by the server. Clients may send arbitrary types too.
const (
	EventJoinWaitingRoom  = "join_waiting_room"
	EventLeaveWaitingRoom = "leave_waiting_room"
	EventCreateChatroom   = "create_chatroom"
	EventJoinChatroom     = "join_chatroom"
	EventLeaveChatroom    = "leave_chatroom"
	EventRedirect         = "redirect"
	EventRedirectNoChat   = "redirect_no_chat"
	EventSubmitView       = "submit_view"
	EventLeave            = "leave"
	EventLimitReached     = "limit_reached"
)

// UserEvent is an append-only audit record. It is never read back for control flow.
type UserEvent struct {
	ID      uint           `gorm:"primaryKey" json:"id"`
	UserID  uint           `gorm:"not null;index" json:"user_id"`
	Type    string         `gorm:"size:64;not null;index" json:"type"`
	Time    time.Time      `gorm:"not null" json:"time"`
	Payload datatypes.JSON `json:"payload,omitempty"`
}
