package rephrasing

import (
	"strings"

	"debatechat/backend/internal/analysis"
	"debatechat/backend/internal/models"
)

// PromptTurn is one line of conversation as the model sees it.
type PromptTurn struct {
	Position string
	Message  string
}

// PromptData is what every strategy template is rendered with.
type PromptData struct {
	Turns []PromptTurn
	Reply PromptTurn
}

// PositionLabel names a position the way prompts refer to it.
func PositionLabel(p models.Position) string {
	if p == models.PositionOppose {
		return "Opponent"
	}
	return "Supporter"
}

// NewPromptData flattens the context turns into lines, one per message,
// using each message's selected body, and appends the sender's new message.
func NewPromptData(turns []analysis.Turn, positions map[uint]models.Position, sender models.Position, body string) PromptData {
	data := PromptData{
		Reply: PromptTurn{Position: PositionLabel(sender), Message: clean(body)},
	}
	for _, turn := range turns {
		label := PositionLabel(positions[turn.SenderID])
		for i := range turn.Messages {
			data.Turns = append(data.Turns, PromptTurn{
				Position: label,
				Message:  clean(models.SelectedBody(&turn.Messages[i])),
			})
		}
	}
	return data
}

// Quotes delimit messages in the prompt.
func clean(text string) string {
	return strings.ReplaceAll(strings.TrimSpace(text), `"`, "'")
}
