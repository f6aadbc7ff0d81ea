package chathub

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"debatechat/backend/internal/apperrors"
	"debatechat/backend/internal/config"
	"debatechat/backend/internal/metrics"
	"debatechat/backend/internal/models"
	"debatechat/backend/internal/rephrasing"
	"debatechat/backend/internal/storage"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// disconnectTimeout bounds the store writes made after a connection is gone.
const disconnectTimeout = 5 * time.Second

// RephrasingRequester generates rephrasings for one message.
type RephrasingRequester interface {
	Request(ctx context.Context, data rephrasing.PromptData) []rephrasing.Result
}

// Coordinator derives every client's state from the store. It holds no
// per-user state, so any process can serve any connection and a reconnect
// always lands on the right screen.
type Coordinator struct {
	Storage   storage.Storage
	Emitter   Emitter
	Matcher   *MatcherService
	Requester RephrasingRequester
	Chat      config.ChatConfig
	Survey    config.SurveyConfig
	Log       zerolog.Logger

	Now      func() time.Time
	Shuffle  func(n int, swap func(i, j int))
	validate *validator.Validate
}

var _ EventHandler = (*Coordinator)(nil)

func NewCoordinator(s storage.Storage, emitter Emitter, matcher *MatcherService, requester RephrasingRequester, chat config.ChatConfig, survey config.SurveyConfig, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		Storage:   s,
		Emitter:   emitter,
		Matcher:   matcher,
		Requester: requester,
		Chat:      chat,
		Survey:    survey,
		Log:       logger.With().Str("component", "coordinator").Logger(),
		Now:       func() time.Time { return time.Now().UTC() },
		Shuffle:   rand.Shuffle,
		validate:  validator.New(),
	}
}

// Connect is called once per connection, before any of its events.
func (co *Coordinator) Connect(c Client) {
	switch c.GetNamespace() {
	case models.NamespaceWaitingRoom:
		co.connectWaiting(c)
	case models.NamespaceChatroom:
		co.connectChatroom(c)
	}
}

// Disconnect runs after the connection's read pump exits.
func (co *Coordinator) Disconnect(c Client) {
	ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
	defer cancel()

	switch c.GetNamespace() {
	case models.NamespaceWaitingRoom:
		co.disconnectWaiting(ctx, c)
	case models.NamespaceChatroom:
		co.disconnectChatroom(ctx, c)
	}
}

func (co *Coordinator) connectWaiting(c Client) {
	ctx := c.Context()
	log := co.clientLog(c)

	user, err := co.Storage.StartWaiting(ctx, c.GetUserID(), c.GetSessionID(), c.GetPage(), co.Now())
	if err != nil {
		log.Error().Err(err).Msg("failed to start waiting")
		return
	}
	co.record(ctx, user.ID, models.EventJoinWaitingRoom, map[string]interface{}{"page": c.GetPage()})

	if user.IsMatched() {
		me, partner, err := co.pair(ctx, user)
		if err != nil {
			log.Error().Err(err).Msg("failed to load partner")
			return
		}
		co.emit(ctx, deref(partner.WaitingSessionID), models.EventNamePartnerStatus, models.PartnerStatusPayload{Status: models.PartnerMatched})
		if co.redirect(ctx, me, partner, c.GetPage(), c.GetSessionID()) == models.PageChatroom {
			co.redirect(ctx, partner, me, partner.CurrentWaitingPage(), deref(partner.WaitingSessionID))
		}
		return
	}

	match, err := co.Matcher.TryMatch(ctx, user)
	if err != nil {
		log.Error().Err(err).Msg("match attempt failed")
		return
	}
	if match != nil {
		co.announceMatch(ctx, match)
	}
}

// announceMatch tells both users' waiting connections about a new match and
// sends each to their next screen, judged from the page their waiting
// connection reported.
func (co *Coordinator) announceMatch(ctx context.Context, match *Match) {
	for _, side := range [][2]*models.User{{match.User, match.Partner}, {match.Partner, match.User}} {
		user, partner := side[0], side[1]
		co.record(ctx, user.ID, models.EventCreateChatroom, map[string]interface{}{"chatroom_id": match.Chatroom.ID})
		session := deref(user.WaitingSessionID)
		co.emit(ctx, session, models.EventNamePartnerStatus, models.PartnerStatusPayload{Status: models.PartnerMatched})
		co.redirect(ctx, user, partner, user.CurrentWaitingPage(), session)
	}
}

func (co *Coordinator) disconnectWaiting(ctx context.Context, c Client) {
	ok, err := co.Storage.StopWaiting(ctx, c.GetUserID(), c.GetSessionID())
	if err != nil {
		co.clientLog(c).Error().Err(err).Msg("failed to stop waiting")
		return
	}
	if !ok {
		// A newer connection owns the waiting session.
		return
	}
	co.record(ctx, c.GetUserID(), models.EventLeaveWaitingRoom, nil)

	user, err := co.Storage.GetUserByID(ctx, c.GetUserID())
	if err != nil || !user.IsMatched() {
		return
	}
	if _, partner, err := co.pair(ctx, user); err == nil {
		co.emit(ctx, deref(partner.WaitingSessionID), models.EventNamePartnerStatus, models.PartnerStatusPayload{Status: models.PartnerOffline})
	}
}

func (co *Coordinator) connectChatroom(c Client) {
	ctx := c.Context()
	log := co.clientLog(c)

	user, err := co.Storage.GetUserByID(ctx, c.GetUserID())
	if err != nil {
		log.Error().Err(err).Msg("failed to load user")
		return
	}
	if !user.IsMatched() {
		co.emitRedirect(ctx, user.ID, c.GetSessionID(), models.PageWaiting)
		return
	}
	me, partner, err := co.pair(ctx, user)
	if err != nil {
		log.Error().Err(err).Msg("failed to load partner")
		return
	}

	target, markTutorial := Target(me, partner, models.PageChatroom)
	if target != models.PageChatroom {
		if target == models.PageNone {
			target = models.PageWaiting
		}
		if markTutorial {
			if ok, err := co.Storage.MarkTutorialSeen(ctx, me.ID); err != nil || !ok {
				target = models.PageWaiting
			}
		}
		co.emitRedirect(ctx, me.ID, c.GetSessionID(), target)
		return
	}

	if err := co.Storage.StartChatSession(ctx, me.ID, c.GetSessionID(), co.Now()); err != nil {
		log.Error().Err(err).Msg("failed to start chat session")
		return
	}
	co.record(ctx, me.ID, models.EventJoinChatroom, map[string]interface{}{"chatroom_id": *me.ChatroomID})

	room, err := co.Storage.GetChatroom(ctx, *me.ChatroomID)
	if err != nil {
		log.Error().Err(err).Msg("failed to load chatroom")
		return
	}
	co.seedViews(ctx, room, me, partner)

	co.emit(ctx, deref(partner.ChatroomSessionID), models.EventNamePartnerStatus, models.PartnerStatusPayload{Status: models.PartnerOnline})
	status := models.PartnerOffline
	if partner.ChatroomSessionID != nil {
		status = models.PartnerOnline
	}
	co.emit(ctx, c.GetSessionID(), models.EventNamePartnerStatus, models.PartnerStatusPayload{Status: status})

	history, err := co.Storage.GetChatHistory(ctx, room.ID)
	if err != nil {
		log.Error().Err(err).Msg("failed to load history")
		return
	}
	co.emit(ctx, c.GetSessionID(), models.EventNameMessages, models.MessagesPayload{Messages: models.History(history)})
	co.emit(ctx, c.GetSessionID(), models.EventNameMessageCount, co.messageCount(history, me.ID))
	if room.LimitReached {
		co.emit(ctx, c.GetSessionID(), models.EventNameLimitReached, nil)
	}

	// Offer again whatever the sender was still choosing between.
	pending, err := co.Storage.ListPendingMessages(ctx, room.ID, me.ID)
	if err != nil {
		log.Error().Err(err).Msg("failed to load pending messages")
		return
	}
	for i := range pending {
		if len(pending[i].Rephrasings) > 0 {
			co.offerRephrasings(ctx, c.GetSessionID(), &pending[i], pending[i].Rephrasings)
		}
	}
}

// seedViews inserts both users' pre-chat views as the first two messages,
// once per chatroom.
func (co *Coordinator) seedViews(ctx context.Context, room *models.Chatroom, a, b *models.User) {
	if room.ViewsSeeded || !a.HasView() || !b.HasView() {
		return
	}
	first, second := a, b
	if first.ID > second.ID {
		first, second = second, first
	}
	if room.InitialViewsReversed {
		first, second = second, first
	}
	now := co.Now()
	views := []models.Message{
		{SenderID: first.ID, Body: *first.View, SendTime: now, Delivered: true},
		{SenderID: second.ID, Body: *second.View, SendTime: now, Delivered: true},
	}
	if _, err := co.Storage.SeedInitialViews(ctx, room.ID, views); err != nil {
		co.Log.Error().Err(err).Uint("chatroom_id", room.ID).Msg("failed to seed initial views")
	}
}

func (co *Coordinator) disconnectChatroom(ctx context.Context, c Client) {
	ok, err := co.Storage.EndChatSession(ctx, c.GetUserID(), c.GetSessionID(), co.Now())
	if err != nil {
		co.clientLog(c).Error().Err(err).Msg("failed to end chat session")
		return
	}
	if !ok {
		return
	}
	co.record(ctx, c.GetUserID(), models.EventLeaveChatroom, nil)

	user, err := co.Storage.GetUserByID(ctx, c.GetUserID())
	if err != nil || !user.IsMatched() {
		return
	}
	if _, partner, err := co.pair(ctx, user); err == nil {
		co.emit(ctx, deref(partner.ChatroomSessionID), models.EventNamePartnerStatus, models.PartnerStatusPayload{Status: models.PartnerOffline})
	}
}

// SubmitView stores the user's pre-chat view and re-evaluates where both
// users belong. sessionID and page describe the submitting connection; when
// sessionID is empty the user's waiting connection is used.
func (co *Coordinator) SubmitView(ctx context.Context, userID uint, view string, page models.Page, sessionID string) error {
	ok, err := co.Storage.SetInitialView(ctx, userID, view)
	if err != nil {
		return err
	}
	if ok {
		co.record(ctx, userID, models.EventSubmitView, nil)
	}

	user, err := co.Storage.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if !user.IsMatched() {
		return nil
	}
	me, partner, err := co.pair(ctx, user)
	if err != nil {
		return err
	}

	if sessionID == "" {
		sessionID = deref(me.WaitingSessionID)
	}
	if page == models.PageNone {
		page = models.PageView
	}
	co.redirect(ctx, me, partner, page, sessionID)
	co.redirect(ctx, partner, me, partner.CurrentWaitingPage(), deref(partner.WaitingSessionID))
	return nil
}

// WaitingStatus reports the partner's state for a user polling the waiting
// room.
func (co *Coordinator) WaitingStatus(ctx context.Context, userID uint) (models.PartnerStatus, error) {
	user, err := co.Storage.GetUserByID(ctx, userID)
	if err != nil {
		return "", err
	}
	if !user.IsMatched() {
		return models.PartnerWaiting, nil
	}
	_, partner, err := co.pair(ctx, user)
	if err != nil {
		return "", err
	}
	if partner.WaitingSessionID != nil || partner.ChatroomSessionID != nil {
		return models.PartnerMatched, nil
	}
	return models.PartnerOffline, nil
}

// ChatroomSnapshot is the REST view of a user's chatroom.
type ChatroomSnapshot struct {
	ID            uint                  `json:"id"`
	Messages      []models.HistoryEntry `json:"messages"`
	LimitReached  bool                  `json:"limitReached"`
	PartnerOnline bool                  `json:"partnerOnline"`
}

func (co *Coordinator) Snapshot(ctx context.Context, userID uint) (*ChatroomSnapshot, error) {
	user, err := co.Storage.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.IsMatched() {
		return nil, fmt.Errorf("user %d has no chatroom: %w", userID, apperrors.ErrNotFound)
	}
	_, partner, err := co.pair(ctx, user)
	if err != nil {
		return nil, err
	}
	room, err := co.Storage.GetChatroom(ctx, *user.ChatroomID)
	if err != nil {
		return nil, err
	}
	history, err := co.Storage.GetChatHistory(ctx, room.ID)
	if err != nil {
		return nil, err
	}
	return &ChatroomSnapshot{
		ID:            room.ID,
		Messages:      models.History(history),
		LimitReached:  room.LimitReached,
		PartnerOnline: partner.ChatroomSessionID != nil,
	}, nil
}

// pair loads both members of user's chatroom. A chatroom that does not hold
// exactly user and one partner is flagged and reported as ErrDataIntegrity.
func (co *Coordinator) pair(ctx context.Context, user *models.User) (me, partner *models.User, err error) {
	chatroomID := *user.ChatroomID
	members, err := co.Storage.GetChatroomMembers(ctx, chatroomID)
	if err != nil {
		return nil, nil, err
	}
	if len(members) == 2 {
		for i := range members {
			if members[i].ID == user.ID {
				me = &members[i]
			} else {
				partner = &members[i]
			}
		}
	}
	if me == nil || partner == nil {
		metrics.IntegrityViolations.Inc()
		co.Log.Error().Uint("chatroom_id", chatroomID).Int("members", len(members)).Msg("chatroom does not hold exactly two users")
		if err := co.Storage.SetChatroomError(ctx, chatroomID); err != nil {
			co.Log.Error().Err(err).Uint("chatroom_id", chatroomID).Msg("failed to flag chatroom")
		}
		return nil, nil, fmt.Errorf("chatroom %d has %d members: %w", chatroomID, len(members), apperrors.ErrDataIntegrity)
	}
	return me, partner, nil
}

// redirect evaluates Target and sends the result to sessionID. It returns
// the page sent, or PageNone.
func (co *Coordinator) redirect(ctx context.Context, user, partner *models.User, page models.Page, sessionID string) models.Page {
	if sessionID == "" {
		return models.PageNone
	}
	target, markTutorial := Target(user, partner, page)
	if markTutorial {
		ok, err := co.Storage.MarkTutorialSeen(ctx, user.ID)
		if err != nil {
			co.Log.Error().Err(err).Uint("user_id", user.ID).Msg("failed to mark tutorial seen")
			return models.PageNone
		}
		if !ok {
			// Another evaluation already sent the user there.
			return models.PageNone
		}
	}
	if target == models.PageNone {
		return models.PageNone
	}
	co.emitRedirect(ctx, user.ID, sessionID, target)
	return target
}

func (co *Coordinator) emitRedirect(ctx context.Context, userID uint, sessionID string, target models.Page) {
	co.emit(ctx, sessionID, models.EventNameRedirect, models.RedirectPayload{To: target})
	co.record(ctx, userID, models.EventRedirect, map[string]interface{}{"to": target})
}

func (co *Coordinator) emit(ctx context.Context, sessionID, event string, payload interface{}) {
	if err := co.Emitter.Emit(ctx, sessionID, event, payload); err != nil {
		co.Log.Error().Err(err).Str("session_id", sessionID).Str("event", event).Msg("failed to emit event")
	}
}

// record saves a server-side audit event. Failures are logged and ignored.
func (co *Coordinator) record(ctx context.Context, userID uint, eventType string, payload interface{}) {
	event := &models.UserEvent{UserID: userID, Type: eventType, Time: co.Now()}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			co.Log.Error().Err(err).Str("type", eventType).Msg("failed to encode event payload")
			return
		}
		event.Payload = data
	}
	if err := co.Storage.SaveEvent(ctx, event); err != nil {
		co.Log.Error().Err(err).Uint("user_id", userID).Str("type", eventType).Msg("failed to record event")
	}
}

func (co *Coordinator) clientLog(c Client) *zerolog.Logger {
	l := co.Log.With().
		Str("session_id", c.GetSessionID()).
		Uint("user_id", c.GetUserID()).
		Str("namespace", string(c.GetNamespace())).
		Logger()
	return &l
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
