// Package analysis classifies a chatroom's message history into turns. It
// decides when a message should trigger rephrasings and when a conversation
// has run long enough. Everything here is pure and does no I/O.
package analysis

import (
	"strings"

	"debatechat/backend/internal/models"
)

// Turn is a maximal run of consecutive messages from one sender.
type Turn struct {
	SenderID uint
	Messages []models.Message
	Counted  bool
}

// Turns is the result of CountTurns, seen from the acting user's side.
type Turns struct {
	Total           int
	User            int
	Partner         int
	LastTurnCounted bool
	Groups          []Turn
}

// Params configures the rephrasing trigger.
type Params struct {
	MinWordCount int
	// MinTurns is the floor on the sender's counted turns.
	MinTurns int
	// Cadence requests rephrasings on every Cadence-th counted turn.
	Cadence int
}

// WordCount counts whitespace-separated words. Turn counting and the
// rephrasing trigger both count the body as sent, not an edit.
func WordCount(body string) int {
	return len(strings.Fields(body))
}

func qualifies(m *models.Message, minWords int) bool {
	return m.Rephrased() || WordCount(m.Body) >= minWords
}

// CountTurns groups messages into turns and counts the ones holding at least
// one qualifying message. A message qualifies if it is long enough or carries
// an accepted rephrasing.
func CountTurns(messages []models.Message, actingUserID uint, minWords int) Turns {
	var result Turns
	for i := range messages {
		m := &messages[i]
		if n := len(result.Groups); n == 0 || result.Groups[n-1].SenderID != m.SenderID {
			result.Groups = append(result.Groups, Turn{SenderID: m.SenderID})
		}
		current := &result.Groups[len(result.Groups)-1]
		current.Messages = append(current.Messages, *m)

		if current.Counted || !qualifies(m, minWords) {
			continue
		}
		current.Counted = true
		result.Total++
		if m.SenderID == actingUserID {
			result.User++
		} else {
			result.Partner++
		}
	}
	if n := len(result.Groups); n > 0 {
		result.LastTurnCounted = result.Groups[n-1].Counted
	}
	return result
}

// ShouldRephrase decides whether a new message from sender, appended to
// history, triggers a rephrasing request.
func ShouldRephrase(history []models.Message, sender *models.User, body string, p Params) bool {
	if !sender.Treatment.ReceivesRephrasings() {
		return false
	}
	if WordCount(body) < p.MinWordCount {
		return false
	}

	turns := CountTurns(history, sender.ID, p.MinWordCount)
	newTurn := len(history) == 0 || history[len(history)-1].SenderID != sender.ID
	if !newTurn && turns.LastTurnCounted {
		return false
	}

	userTurns := turns.User + 1
	cadence := p.Cadence
	if cadence < 1 {
		cadence = 1
	}
	return userTurns >= p.MinTurns && userTurns%cadence == 0
}

// LimitReached applies the conversation-end rule. Only the party that does
// not receive rephrasings can end the conversation, once its partner has
// produced the required number of counted turns.
func LimitReached(turns Turns, senderReceivesRephrasings bool, required int) bool {
	if senderReceivesRephrasings || required <= 0 {
		return false
	}
	return turns.Partner >= required
}

// LastNTurns returns the shortest suffix of groups containing n counted
// turns, or all of groups if there are fewer.
func LastNTurns(groups []Turn, n int) []Turn {
	counted := 0
	start := len(groups)
	for start > 0 && counted < n {
		start--
		if groups[start].Counted {
			counted++
		}
	}
	return groups[start:]
}
