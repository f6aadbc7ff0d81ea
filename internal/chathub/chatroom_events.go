package chathub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"debatechat/backend/internal/analysis"
	"debatechat/backend/internal/apperrors"
	"debatechat/backend/internal/metrics"
	"debatechat/backend/internal/models"
	"debatechat/backend/internal/rephrasing"
	"debatechat/backend/internal/storage"
)

// HandleEvent decodes and validates one inbound envelope and dispatches it.
// Unknown or invalid events are dropped.
func (co *Coordinator) HandleEvent(c Client, env models.Envelope) {
	log := co.clientLog(c)
	var err error

	switch env.Event {
	case models.EventNameSubmitView:
		var req models.SubmitViewRequest
		if err = co.decode(env, &req); err == nil {
			err = co.SubmitView(c.Context(), c.GetUserID(), req.View, c.GetPage(), c.GetSessionID())
		}
	case models.EventNameMessage:
		var req models.SendMessageRequest
		if err = co.decode(env, &req); err == nil {
			err = co.requireChatroom(c, func() error { return co.handleMessage(c, req) })
		}
	case models.EventNameRephrasingResponse:
		var req models.RephrasingChoiceRequest
		if err = co.decode(env, &req); err == nil {
			err = co.requireChatroom(c, func() error { return co.handleRephrasingChoice(c, req) })
		}
	case models.EventNameTyping:
		err = co.requireChatroom(c, func() error { return co.relayTyping(c) })
	case models.EventNameUserEvent:
		var req models.UserEventRequest
		if err = co.decode(env, &req); err == nil {
			err = co.saveUserEvent(c, req)
		}
	default:
		err = fmt.Errorf("unknown event %q: %w", env.Event, apperrors.ErrInvalidInput)
	}

	switch {
	case err == nil:
	case errors.Is(err, apperrors.ErrStaleReference):
		metrics.StaleReferences.Inc()
		log.Warn().Err(err).Str("event", env.Event).Msg("dropping action on a record the user does not own")
	case errors.Is(err, apperrors.ErrInvalidInput):
		log.Warn().Err(err).Str("event", env.Event).Msg("dropping invalid event")
	default:
		log.Error().Err(err).Str("event", env.Event).Msg("failed to handle event")
	}
}

func (co *Coordinator) decode(env models.Envelope, v interface{}) error {
	data := env.Data
	if len(data) == 0 {
		data = []byte("{}")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %v: %w", env.Event, err, apperrors.ErrInvalidInput)
	}
	if err := co.validate.Struct(v); err != nil {
		return fmt.Errorf("validate %s: %v: %w", env.Event, err, apperrors.ErrInvalidInput)
	}
	return nil
}

func (co *Coordinator) requireChatroom(c Client, fn func() error) error {
	if c.GetNamespace() != models.NamespaceChatroom {
		return fmt.Errorf("chat event on %s connection: %w", c.GetNamespace(), apperrors.ErrInvalidInput)
	}
	return fn()
}

// loadChatroomPair loads the acting user and their partner.
func (co *Coordinator) loadChatroomPair(ctx context.Context, userID uint) (me, partner *models.User, err error) {
	user, err := co.Storage.GetUserByID(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	if !user.IsMatched() {
		return nil, nil, fmt.Errorf("user %d has no chatroom: %w", userID, apperrors.ErrInvalidInput)
	}
	return co.pair(ctx, user)
}

func (co *Coordinator) turnParams() analysis.Params {
	return analysis.Params{
		MinWordCount: co.Chat.MinWordCount,
		MinTurns:     co.Chat.MinRephrasingTurns,
		Cadence:      co.Chat.RephraseEveryNTurns,
	}
}

// handleMessage persists a chat message and delivers it, or holds it back
// while rephrasings are generated. Everything up to the spawn of the
// generation goroutine runs under the chatroom lock, so turn counts and
// delivery order agree across processes.
func (co *Coordinator) handleMessage(c Client, req models.SendMessageRequest) error {
	ctx := c.Context()
	me, partner, err := co.loadChatroomPair(ctx, c.GetUserID())
	if err != nil {
		return err
	}
	chatroomID := *me.ChatroomID

	unlock, err := co.Storage.LockChatroom(ctx, chatroomID, co.Chat.LockTTL, co.Chat.LockWait)
	if err != nil {
		return fmt.Errorf("lock chatroom %d: %w", chatroomID, err)
	}
	defer unlock()

	history, err := co.Storage.GetChatHistory(ctx, chatroomID)
	if err != nil {
		return err
	}
	will := analysis.ShouldRephrase(history, me, req.Body, co.turnParams())

	msg := &models.Message{
		ChatroomID: chatroomID,
		SenderID:   me.ID,
		Body:       req.Body,
		SendTime:   co.Now(),
		Delivered:  !will,
	}
	if err := co.Storage.SaveMessage(ctx, msg); err != nil {
		return err
	}
	metrics.MessagesSent.WithLabelValues(strconv.FormatBool(will)).Inc()

	co.emit(ctx, c.GetSessionID(), models.EventNameRephrasingsStatus, models.RephrasingsStatusPayload{WillAttempt: will})
	if !will {
		co.broadcastMessage(ctx, msg, c.GetSessionID(), deref(partner.ChatroomSessionID))
	}

	all := append(history, *msg)
	co.emit(ctx, c.GetSessionID(), models.EventNameMessageCount, co.messageCount(all, me.ID))
	co.emit(ctx, deref(partner.ChatroomSessionID), models.EventNameMessageCount, co.messageCount(all, partner.ID))

	if !me.Treatment.ReceivesRephrasings() {
		turns := analysis.CountTurns(all, me.ID, co.Chat.MinWordCount)
		if analysis.LimitReached(turns, false, co.Chat.RequiredPartnerTurns) {
			co.markLimitReached(ctx, chatroomID, me, partner, c.GetSessionID())
		}
	}

	if will {
		recent := analysis.LastNTurns(analysis.CountTurns(history, me.ID, co.Chat.MinWordCount).Groups, co.Chat.ContextTurns)
		data := rephrasing.NewPromptData(recent, map[uint]models.Position{
			me.ID:      me.Position,
			partner.ID: partner.Position,
		}, me.Position, req.Body)
		go co.generateRephrasings(c.Context(), c.GetSessionID(), msg, data)
	}
	return nil
}

func (co *Coordinator) markLimitReached(ctx context.Context, chatroomID uint, me, partner *models.User, mySession string) {
	ok, err := co.Storage.MarkLimitReached(ctx, chatroomID)
	if err != nil {
		co.Log.Error().Err(err).Uint("chatroom_id", chatroomID).Msg("failed to mark limit reached")
		return
	}
	if !ok {
		return
	}
	co.Log.Info().Uint("chatroom_id", chatroomID).Msg("conversation limit reached")
	co.emit(ctx, mySession, models.EventNameLimitReached, nil)
	co.emit(ctx, deref(partner.ChatroomSessionID), models.EventNameLimitReached, nil)
	co.record(ctx, me.ID, models.EventLimitReached, map[string]interface{}{"chatroom_id": chatroomID})
	co.record(ctx, partner.ID, models.EventLimitReached, map[string]interface{}{"chatroom_id": chatroomID})
}

// generateRephrasings runs off the read pump. ctx is the sender's
// connection, so a disconnect stops the retries.
func (co *Coordinator) generateRephrasings(ctx context.Context, sessionID string, msg *models.Message, data rephrasing.PromptData) {
	results := co.Requester.Request(ctx, data)
	if ctx.Err() != nil || len(results) == 0 {
		co.Log.Warn().Uint("message_id", msg.ID).Int("results", len(results)).Msg("no rephrasings, delivering original")
		co.deliverOriginal(msg)
		return
	}

	rephrasings := make([]models.Rephrasing, 0, len(results))
	for _, r := range results {
		rephrasings = append(rephrasings, models.Rephrasing{MessageID: msg.ID, Body: r.Body, Strategy: r.Strategy})
	}
	if err := co.Storage.SaveRephrasings(ctx, rephrasings); err != nil {
		co.Log.Error().Err(err).Uint("message_id", msg.ID).Msg("failed to save rephrasings")
		co.deliverOriginal(msg)
		return
	}
	co.offerRephrasings(ctx, sessionID, msg, rephrasings)
}

// offerRephrasings sends the choices to the sender only, in random order.
func (co *Coordinator) offerRephrasings(ctx context.Context, sessionID string, msg *models.Message, rephrasings []models.Rephrasing) {
	options := make([]models.RephrasingOption, 0, len(rephrasings))
	for _, r := range rephrasings {
		options = append(options, models.RephrasingOption{ID: r.ID, Body: r.Body})
	}
	co.Shuffle(len(options), func(i, j int) { options[i], options[j] = options[j], options[i] })

	co.emit(ctx, sessionID, models.EventNameRephrasingsResponse, models.RephrasingsOfferPayload{
		MessageID:   msg.ID,
		Body:        msg.Body,
		Rephrasings: options,
	})
}

// deliverOriginal releases a held message unchanged. It must finish even
// when the sender is gone, so it does not use the connection context.
func (co *Coordinator) deliverOriginal(msg *models.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout+co.Chat.LockWait)
	defer cancel()

	if err := co.resolveAndBroadcast(ctx, storage.MessageResolution{MessageID: msg.ID, SenderID: msg.SenderID}, msg.ChatroomID); err != nil {
		co.Log.Error().Err(err).Uint("message_id", msg.ID).Msg("failed to deliver original message")
	}
}

// resolveAndBroadcast finalizes a held message and sends its selected body
// to both members. A message that was already resolved is left alone.
func (co *Coordinator) resolveAndBroadcast(ctx context.Context, res storage.MessageResolution, chatroomID uint) error {
	unlock, err := co.Storage.LockChatroom(ctx, chatroomID, co.Chat.LockTTL, co.Chat.LockWait)
	if err != nil {
		return fmt.Errorf("lock chatroom %d: %w", chatroomID, err)
	}
	defer unlock()

	ok, err := co.Storage.ResolveMessage(ctx, res)
	if err != nil {
		return err
	}
	if !ok {
		co.Log.Info().Uint("message_id", res.MessageID).Msg("message already resolved")
		return nil
	}

	msg, err := co.Storage.GetMessage(ctx, res.MessageID)
	if err != nil {
		return err
	}
	members, err := co.Storage.GetChatroomMembers(ctx, chatroomID)
	if err != nil {
		return err
	}
	sessions := make([]string, 0, len(members))
	for _, m := range members {
		sessions = append(sessions, deref(m.ChatroomSessionID))
	}
	co.broadcastMessage(ctx, msg, sessions...)

	history, err := co.Storage.GetChatHistory(ctx, chatroomID)
	if err != nil {
		return err
	}
	for _, m := range members {
		co.emit(ctx, deref(m.ChatroomSessionID), models.EventNameMessageCount, co.messageCount(history, m.ID))
	}
	return nil
}

func (co *Coordinator) broadcastMessage(ctx context.Context, msg *models.Message, sessions ...string) {
	payload := models.NewMessagePayload{
		MessageID: msg.ID,
		UserID:    msg.SenderID,
		Message:   models.SelectedBody(msg),
	}
	for _, session := range sessions {
		co.emit(ctx, session, models.EventNameNewMessage, payload)
	}
}

// handleRephrasingChoice applies the sender's pick. Body is the final text:
// if it differs from the picked option (or from the original, when no
// option was picked) it is stored as an edit.
func (co *Coordinator) handleRephrasingChoice(c Client, req models.RephrasingChoiceRequest) error {
	ctx := c.Context()
	user, err := co.Storage.GetUserByID(ctx, c.GetUserID())
	if err != nil {
		return err
	}
	if !user.IsMatched() {
		return fmt.Errorf("user %d has no chatroom: %w", user.ID, apperrors.ErrStaleReference)
	}

	msg, err := co.Storage.GetMessage(ctx, req.MessageID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return fmt.Errorf("message %d: %w", req.MessageID, apperrors.ErrStaleReference)
	}
	if err != nil {
		return err
	}
	if msg.SenderID != user.ID || msg.ChatroomID != *user.ChatroomID {
		return fmt.Errorf("message %d belongs to user %d in chatroom %d: %w", msg.ID, msg.SenderID, msg.ChatroomID, apperrors.ErrStaleReference)
	}

	res := storage.MessageResolution{MessageID: msg.ID, SenderID: user.ID}
	if req.RephrasingID != nil {
		r, err := co.Storage.GetRephrasing(ctx, *req.RephrasingID)
		if errors.Is(err, apperrors.ErrNotFound) {
			return fmt.Errorf("rephrasing %d: %w", *req.RephrasingID, apperrors.ErrStaleReference)
		}
		if err != nil {
			return err
		}
		if r.MessageID != msg.ID {
			return fmt.Errorf("rephrasing %d belongs to message %d: %w", r.ID, r.MessageID, apperrors.ErrStaleReference)
		}
		res.RephrasingID = &r.ID
		if req.Body != r.Body {
			res.RephrasingEditedBody = &req.Body
		}
	} else if req.Body != msg.Body {
		res.EditedBody = &req.Body
	}

	return co.resolveAndBroadcast(ctx, res, msg.ChatroomID)
}

func (co *Coordinator) relayTyping(c Client) error {
	ctx := c.Context()
	_, partner, err := co.loadChatroomPair(ctx, c.GetUserID())
	if err != nil {
		return err
	}
	co.emit(ctx, deref(partner.ChatroomSessionID), models.EventNameTyping, models.TypingPayload{UserID: c.GetUserID()})
	return nil
}

func (co *Coordinator) saveUserEvent(c Client, req models.UserEventRequest) error {
	event := &models.UserEvent{
		UserID:  c.GetUserID(),
		Type:    req.Type,
		Time:    co.Now(),
		Payload: []byte(req.Data),
	}
	if req.Time != nil {
		event.Time = req.Time.UTC()
	}
	return co.Storage.SaveEvent(c.Context(), event)
}

func (co *Coordinator) messageCount(messages []models.Message, userID uint) models.MessageCountPayload {
	turns := analysis.CountTurns(messages, userID, co.Chat.MinWordCount)
	return models.MessageCountPayload{Total: turns.Total, User: turns.User, Partner: turns.Partner}
}
