package models

import (
	"encoding/json"
	"time"
)

// Namespace separates the two realtime channels.
type Namespace string

const (
	NamespaceWaitingRoom Namespace = "waiting-room"
	NamespaceChatroom    Namespace = "chatroom"
)

// Page is a client screen, used both as the page a client reports and as a redirect target.
type Page string

const (
	PageNone     Page = ""
	PageView     Page = "view"
	PageWaiting  Page = "waiting"
	PageTutorial Page = "tutorial"
	PageChatroom Page = "chatroom"
)

// PartnerStatus values sent in partner_status events and GET /waiting-status.
type PartnerStatus string

const (
	PartnerWaiting PartnerStatus = "waiting"
	PartnerMatched PartnerStatus = "matched"
	PartnerOnline  PartnerStatus = "online"
	PartnerOffline PartnerStatus = "offline"
)

// Client to server events.
const (
	EventNameSubmitView         = "submit_view"
	EventNameMessage            = "message"
	EventNameRephrasingResponse = "rephrasing_response"
	EventNameTyping             = "typing"
	EventNameUserEvent          = "event"
)

// Server to client events.
const (
	EventNameRedirect            = "redirect"
	EventNamePartnerStatus       = "partner_status"
	EventNameNewMessage          = "new_message"
	EventNameRephrasingsStatus   = "rephrasings_status"
	EventNameRephrasingsResponse = "rephrasings_response"
	EventNameMessages            = "messages"
	EventNameMessageCount        = "message_count"
	EventNameLimitReached        = "min_limit_reached"
	EventNameClear               = "clear"
)

// Envelope is the frame exchanged over both websocket namespaces.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope encodes payload under the given event name.
func NewEnvelope(event string, payload interface{}) (Envelope, error) {
	if payload == nil {
		return Envelope{Event: event}, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Event: event, Data: data}, nil
}

// Delivery addresses an envelope to one connection, possibly owned by another process.
type Delivery struct {
	SessionID string   `json:"session_id"`
	Envelope  Envelope `json:"envelope"`
}

// --- client to server ---

type SubmitViewRequest struct {
	View string `json:"view" validate:"required,max=10000"`
}

type SendMessageRequest struct {
	Body string `json:"body" validate:"required,max=10000"`
}

// RephrasingChoiceRequest accepts a rephrasing (RephrasingID set) or keeps
// the original. Body carries the final, possibly edited, text.
type RephrasingChoiceRequest struct {
	MessageID    uint   `json:"message_id" validate:"required"`
	RephrasingID *uint  `json:"rephrasing_id,omitempty"`
	Body         string `json:"body" validate:"required,max=10000"`
}

type TypingRequest struct{}

type UserEventRequest struct {
	Type string          `json:"type" validate:"required,max=64"`
	Time *time.Time      `json:"time,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// --- server to client ---

type RedirectPayload struct {
	To  Page   `json:"to,omitempty"`
	URL string `json:"url,omitempty"`
}

type PartnerStatusPayload struct {
	Status PartnerStatus `json:"status"`
}

type NewMessagePayload struct {
	MessageID uint   `json:"message_id"`
	UserID    uint   `json:"user_id"`
	Message   string `json:"message"`
}

type RephrasingsStatusPayload struct {
	WillAttempt bool `json:"will_attempt"`
}

type RephrasingOption struct {
	ID   uint   `json:"id"`
	Body string `json:"body"`
}

type RephrasingsOfferPayload struct {
	MessageID   uint               `json:"message_id"`
	Body        string             `json:"body"`
	Rephrasings []RephrasingOption `json:"rephrasings"`
}

type HistoryEntry struct {
	ID       uint      `json:"id"`
	UserID   uint      `json:"user_id"`
	Message  string    `json:"message"`
	SendTime time.Time `json:"send_time"`
}

type MessagesPayload struct {
	Messages []HistoryEntry `json:"messages"`
}

type MessageCountPayload struct {
	Total   int `json:"total"`
	User    int `json:"user"`
	Partner int `json:"partner"`
}

type TypingPayload struct {
	UserID uint `json:"user_id"`
}

type ClearPayload struct {
	ChatroomID uint `json:"chatroom_id"`
}

// History converts delivered messages into replay entries using SelectedBody.
func History(messages []Message) []HistoryEntry {
	entries := make([]HistoryEntry, 0, len(messages))
	for i := range messages {
		if !messages[i].Delivered {
			continue
		}
		entries = append(entries, HistoryEntry{
			ID:       messages[i].ID,
			UserID:   messages[i].SenderID,
			Message:  SelectedBody(&messages[i]),
			SendTime: messages[i].SendTime,
		})
	}
	return entries
}
