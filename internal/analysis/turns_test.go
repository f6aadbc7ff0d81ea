package analysis_test

import (
	"debatechat/backend/internal/analysis"
	"debatechat/backend/internal/models"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	userX uint = 1
	userY uint = 2
)

func msg(sender uint, body string) models.Message {
	return models.Message{SenderID: sender, Body: body, Delivered: true}
}

func TestWordCount(t *testing.T) {
	assert.Equal(t, 0, analysis.WordCount("   "))
	assert.Equal(t, 1, analysis.WordCount("hi"))
	assert.Equal(t, 4, analysis.WordCount("I  disagree\twith that\n"))
}

func TestCountTurns_ShortTurnDoesNotCount(t *testing.T) {
	messages := []models.Message{
		msg(userX, "hi"),
		msg(userY, "I disagree with that"),
	}

	turns := analysis.CountTurns(messages, userY, 4)

	require.Len(t, turns.Groups, 2)
	assert.False(t, turns.Groups[0].Counted)
	assert.True(t, turns.Groups[1].Counted)
	assert.Equal(t, 1, turns.Total)
	assert.Equal(t, 1, turns.User, "the counted turn belongs to Y")
	assert.Equal(t, 0, turns.Partner)
	assert.True(t, turns.LastTurnCounted)

	fromX := analysis.CountTurns(messages, userX, 4)
	assert.Equal(t, 0, fromX.User)
	assert.Equal(t, 1, fromX.Partner)
}

func TestCountTurns_CountsSentBodyNotEdit(t *testing.T) {
	shortened := "ok"
	lengthened := "now this is long enough"
	edited := msg(userX, "this one is long enough")
	edited.EditedBody = &shortened
	grown := msg(userY, "short")
	grown.EditedBody = &lengthened

	turns := analysis.CountTurns([]models.Message{edited, grown}, userX, 4)

	require.Len(t, turns.Groups, 2)
	assert.True(t, turns.Groups[0].Counted, "an edit that shortens the message keeps the turn")
	assert.False(t, turns.Groups[1].Counted, "an edit that lengthens the message does not add a turn")
	assert.Equal(t, 1, turns.User)
	assert.Equal(t, 0, turns.Partner)
}

func TestCountTurns_GroupsConsecutiveMessages(t *testing.T) {
	messages := []models.Message{
		msg(userX, "ok"),
		msg(userX, "this one is long enough"),
		msg(userX, "and so is this one here"),
		msg(userY, "short"),
	}

	turns := analysis.CountTurns(messages, userX, 4)

	require.Len(t, turns.Groups, 2)
	assert.Len(t, turns.Groups[0].Messages, 3)
	assert.Equal(t, 1, turns.Total, "a turn counts at most once")
	assert.Equal(t, 1, turns.User)
	assert.False(t, turns.LastTurnCounted)
}

func TestCountTurns_AcceptedRephrasingAlwaysCounts(t *testing.T) {
	rephrasingID := uint(7)
	rephrased := msg(userX, "no")
	rephrased.AcceptedRephrasingID = &rephrasingID
	rephrased.AcceptedRephrasing = &models.Rephrasing{ID: rephrasingID, Body: "I see it differently"}

	turns := analysis.CountTurns([]models.Message{rephrased}, userX, 10)

	assert.Equal(t, 1, turns.Total)
	assert.Equal(t, 1, turns.User)
}

func TestCountTurns_Empty(t *testing.T) {
	turns := analysis.CountTurns(nil, userX, 4)
	assert.Zero(t, turns.Total)
	assert.False(t, turns.LastTurnCounted)
	assert.Empty(t, turns.Groups)
}

// TestShouldRephrase_Cadence walks a treated user through four qualifying
// turns. With floor 2 and cadence 2 only turns 2 and 4 trigger.
func TestShouldRephrase_Cadence(t *testing.T) {
	sender := &models.User{ID: userX, Treatment: models.TreatmentTreated}
	params := analysis.Params{MinWordCount: 4, MinTurns: 2, Cadence: 2}
	body := "this is a qualifying message"

	var history []models.Message
	var triggered []bool
	for turn := 1; turn <= 4; turn++ {
		triggered = append(triggered, analysis.ShouldRephrase(history, sender, body, params))
		history = append(history, msg(userX, body), msg(userY, "a reply from the partner"))
	}

	assert.Equal(t, []bool{false, true, false, true}, triggered)
}

func TestShouldRephrase_Guards(t *testing.T) {
	params := analysis.Params{MinWordCount: 4, MinTurns: 1, Cadence: 1}
	treated := &models.User{ID: userX, Treatment: models.TreatmentTreated}
	long := "long enough to count here"

	t.Run("untreated users never trigger", func(t *testing.T) {
		for _, tr := range []models.Treatment{models.TreatmentUntreated, models.TreatmentControl} {
			u := &models.User{ID: userX, Treatment: tr}
			assert.False(t, analysis.ShouldRephrase(nil, u, long, params))
		}
	})

	t.Run("short messages never trigger", func(t *testing.T) {
		assert.False(t, analysis.ShouldRephrase(nil, treated, "too short", params))
	})

	t.Run("extending an already counted turn does not trigger", func(t *testing.T) {
		history := []models.Message{msg(userY, long), msg(userX, long)}
		assert.False(t, analysis.ShouldRephrase(history, treated, long, params))
	})

	t.Run("extending an uncounted turn triggers", func(t *testing.T) {
		history := []models.Message{msg(userY, long), msg(userX, "hmm")}
		assert.True(t, analysis.ShouldRephrase(history, treated, long, params))
	})

	t.Run("first message of the chat", func(t *testing.T) {
		assert.True(t, analysis.ShouldRephrase(nil, treated, long, params))
	})
}

func TestLimitReached_Directionality(t *testing.T) {
	turns := analysis.Turns{User: 5, Partner: 4}

	assert.True(t, analysis.LimitReached(turns, false, 4), "the non-rephrased sender ends the chat")
	assert.False(t, analysis.LimitReached(turns, true, 4), "the treated sender never ends the chat")
	assert.False(t, analysis.LimitReached(analysis.Turns{Partner: 3}, false, 4))
	assert.False(t, analysis.LimitReached(turns, false, 0), "a zero threshold disables the limit")
}

func TestLastNTurns(t *testing.T) {
	messages := []models.Message{
		msg(userX, "one two three four"), // counted
		msg(userY, "five six seven eight"), // counted
		msg(userX, "nine"),                 // not counted
		msg(userY, "ten eleven twelve thirteen"), // counted
	}
	turns := analysis.CountTurns(messages, userX, 4)

	last := analysis.LastNTurns(turns.Groups, 2)
	require.Len(t, last, 3)
	assert.Equal(t, "five six seven eight", last[0].Messages[0].Body)

	all := analysis.LastNTurns(turns.Groups, 10)
	assert.Len(t, all, 4)

	assert.Empty(t, analysis.LastNTurns(turns.Groups, 0))
}
