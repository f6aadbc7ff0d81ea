package models

import (
	"net/url"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Position is a participant's fixed stance on the discussion topic.
type Position string

const (
	PositionSupport Position = "support"
	PositionOppose  Position = "oppose"
)

func (p Position) Valid() bool {
	return p == PositionSupport || p == PositionOppose
}

// Complement returns the position a partner must hold.
func (p Position) Complement() Position {
	if p == PositionSupport {
		return PositionOppose
	}
	return PositionSupport
}

// Treatment is the experimental condition drawn at match time.
type Treatment string

const (
	TreatmentNone      Treatment = ""
	TreatmentTreated   Treatment = "treated"
	TreatmentUntreated Treatment = "untreated"
	TreatmentControl   Treatment = "control"
)

// Treatments lists the values a match can draw from.
var Treatments = []Treatment{TreatmentTreated, TreatmentUntreated, TreatmentControl}

// Complement returns the treatment assigned to the partner of a user holding t.
func (t Treatment) Complement() Treatment {
	switch t {
	case TreatmentTreated:
		return TreatmentUntreated
	case TreatmentUntreated:
		return TreatmentTreated
	default:
		return t
	}
}

// ReceivesRephrasings reports whether a user with this treatment is offered rephrasings.
func (t Treatment) ReceivesRephrasings() bool {
	return t == TreatmentTreated
}

// User is a study participant. Version is the concurrency token guarding
// every mutation that matters to matching.
type User struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	ResponseID string    `gorm:"size:320;uniqueIndex;not null" json:"response_id"`
	Position   Position  `gorm:"size:16;not null;index:idx_waiting_pool,priority:1" json:"position"`
	Treatment  Treatment `gorm:"size:16" json:"treatment,omitempty"`

	ChatroomID *uint     `gorm:"index:idx_waiting_pool,priority:2" json:"chatroom_id,omitempty"`
	Chatroom   *Chatroom `json:"-"`

	WaitingSessionID    *string    `gorm:"size:64" json:"-"`
	WaitingPage         Page       `gorm:"size:16" json:"-"`
	StartedWaitingTime  *time.Time `gorm:"index:idx_waiting_pool,priority:3" json:"started_waiting_time,omitempty"`
	FinishedWaitingTime *time.Time `json:"finished_waiting_time,omitempty"`
	FoundMatchTime      *time.Time `json:"found_match_time,omitempty"`

	ChatroomSessionID *string    `gorm:"size:64" json:"-"`
	StartedChatTime   *time.Time `json:"started_chat_time,omitempty"`
	FinishedChatTime  *time.Time `json:"finished_chat_time,omitempty"`

	SeenTutorial bool    `gorm:"not null;default:false" json:"seen_tutorial"`
	View         *string `gorm:"type:text" json:"view,omitempty"`
	LeaveReason  *string `gorm:"type:text" json:"leave_reason,omitempty"`

	Version string `gorm:"size:36;not null" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate seeds the concurrency token.
func (u *User) BeforeCreate(tx *gorm.DB) (err error) {
	if u.Version == "" {
		u.Version = NewVersion()
	}
	return
}

// NewVersion returns a fresh concurrency token.
func NewVersion() string {
	return uuid.New().String()
}

func (u *User) IsMatched() bool {
	return u.ChatroomID != nil
}

func (u *User) IsWaiting() bool {
	return u.WaitingSessionID != nil
}

// CurrentWaitingPage is the page the user's waiting connection reported.
func (u *User) CurrentWaitingPage() Page {
	if u.WaitingPage == PageNone {
		return PageWaiting
	}
	return u.WaitingPage
}

func (u *User) HasView() bool {
	return u.View != nil
}

// NeedsTutorial is true for users who receive rephrasings and have not yet
// been shown how they work.
func (u *User) NeedsTutorial() bool {
	return u.Treatment.ReceivesRephrasings() && !u.SeenTutorial
}

// PostChatURL builds the exit survey link for a user who chatted.
func (u *User) PostChatURL(base string) string {
	return surveyURL(base, url.Values{
		"RESPONDENT_ID": {u.ResponseID},
		"treatment":     {string(u.Treatment)},
		"position":      {string(u.Position)},
	})
}

// NoChatURL builds the exit survey link for a user who never got a partner.
func (u *User) NoChatURL(base string) string {
	return surveyURL(base, url.Values{
		"RESPONDENT_ID": {u.ResponseID},
		"position":      {string(u.Position)},
	})
}

func surveyURL(base string, params url.Values) string {
	if base == "" {
		return ""
	}
	parsed, err := url.Parse(base)
	if err != nil {
		return ""
	}
	query := parsed.Query()
	for key, values := range params {
		query[key] = values
	}
	parsed.RawQuery = query.Encode()
	return parsed.String()
}
