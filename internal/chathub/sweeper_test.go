package chathub_test

import (
	"context"
	"net/url"
	"testing"
	"time"

	"debatechat/backend/internal/chathub"
	"debatechat/backend/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweeper_TimesOutAndMatches(t *testing.T) {
	h := newHarness(t)
	h.co.Matcher.WaitingTimeout = time.Minute
	ctx := context.Background()

	stale := startWaiting(t, h.store, newUser(t, h.store, "stale", models.PositionSupport), base.Add(-2*time.Minute))
	b := startWaiting(t, h.store, newUser(t, h.store, "b", models.PositionSupport), base.Add(-30*time.Second))
	c := startWaiting(t, h.store, newUser(t, h.store, "c", models.PositionOppose), base.Add(-10*time.Second))

	chathub.NewSweeper(h.co, time.Second, zerolog.Nop()).Sweep(ctx)

	var redirect models.RedirectPayload
	decodePayload(t, lastEvent(t, h.store.DeliveriesTo("wait-stale"), models.EventNameRedirect), &redirect)
	assert.Empty(t, redirect.To)
	parsed, err := url.Parse(redirect.URL)
	require.NoError(t, err)
	assert.Equal(t, "survey.example.com", parsed.Host)
	assert.Equal(t, "stale", parsed.Query().Get("RESPONDENT_ID"))

	fresh, err := h.store.GetUserByID(ctx, stale.ID)
	require.NoError(t, err)
	assert.Nil(t, fresh.ChatroomID)

	mb, err := h.store.GetUserByID(ctx, b.ID)
	require.NoError(t, err)
	mc, err := h.store.GetUserByID(ctx, c.ID)
	require.NoError(t, err)
	require.NotNil(t, mb.ChatroomID)
	require.NotNil(t, mc.ChatroomID)
	assert.Equal(t, *mb.ChatroomID, *mc.ChatroomID)

	for _, session := range []string{"wait-b", "wait-c"} {
		assert.Equal(t, models.PageView, redirectTo(t, h.store.DeliveriesTo(session)), session)
	}
}

func TestSweeper_LeavesUnpairableUsersWaiting(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := startWaiting(t, h.store, newUser(t, h.store, "a", models.PositionSupport), base.Add(-time.Minute))
	startWaiting(t, h.store, newUser(t, h.store, "b", models.PositionSupport), base)

	chathub.NewSweeper(h.co, time.Second, zerolog.Nop()).Sweep(ctx)

	assert.Empty(t, h.store.Deliveries())
	waiting, err := h.store.ListWaitingUsers(ctx)
	require.NoError(t, err)
	require.Len(t, waiting, 2)
	assert.Equal(t, a.ID, waiting[0].ID)
}

func TestSweeper_RunStopsWithContext(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		chathub.NewSweeper(h.co, 10*time.Millisecond, zerolog.Nop()).Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
