package chathub

import (
	"testing"

	"debatechat/backend/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestTarget(t *testing.T) {
	room := uint(1)
	view := "my view"

	unmatched := &models.User{ID: 1}
	noView := &models.User{ID: 1, ChatroomID: &room, Treatment: models.TreatmentUntreated}
	withView := &models.User{ID: 1, ChatroomID: &room, Treatment: models.TreatmentUntreated, View: &view}
	treated := &models.User{ID: 1, ChatroomID: &room, Treatment: models.TreatmentTreated, View: &view}
	treatedSeen := &models.User{ID: 1, ChatroomID: &room, Treatment: models.TreatmentTreated, View: &view, SeenTutorial: true}
	partnerNoView := &models.User{ID: 2, ChatroomID: &room}
	partnerView := &models.User{ID: 2, ChatroomID: &room, View: &view}

	tests := []struct {
		name         string
		user         *models.User
		partner      *models.User
		page         models.Page
		want         models.Page
		markTutorial bool
	}{
		{"tutorial page is never interrupted", treated, partnerView, models.PageTutorial, models.PageNone, false},
		{"unmatched stays", unmatched, nil, models.PageWaiting, models.PageNone, false},
		{"matched without view", noView, partnerView, models.PageWaiting, models.PageView, false},
		{"both views", withView, partnerView, models.PageWaiting, models.PageChatroom, false},
		{"both views beats tutorial", treated, partnerView, models.PageView, models.PageChatroom, false},
		{"just submitted, partner pending", withView, partnerNoView, models.PageView, models.PageWaiting, false},
		{"treated waiting sees tutorial", treated, partnerNoView, models.PageWaiting, models.PageTutorial, true},
		{"tutorial only once", treatedSeen, partnerNoView, models.PageWaiting, models.PageNone, false},
		{"untreated waiting stays", withView, partnerNoView, models.PageWaiting, models.PageNone, false},
		{"chatroom page without partner view", withView, partnerNoView, models.PageChatroom, models.PageNone, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, mark := Target(tt.user, tt.partner, tt.page)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.markTutorial, mark)

			again, markAgain := Target(tt.user, tt.partner, tt.page)
			assert.Equal(t, got, again, "Target is idempotent")
			assert.Equal(t, mark, markAgain)
		})
	}
}

func TestDecodeDelivery(t *testing.T) {
	d, err := decodeDelivery(`{"session_id":"s1","envelope":{"event":"typing","data":{"user_id":3}}}`)
	assert.NoError(t, err)
	assert.Equal(t, "s1", d.SessionID)
	assert.Equal(t, models.EventNameTyping, d.Envelope.Event)
	assert.JSONEq(t, `{"user_id":3}`, string(d.Envelope.Data))

	_, err = decodeDelivery(`not json`)
	assert.Error(t, err)
}
