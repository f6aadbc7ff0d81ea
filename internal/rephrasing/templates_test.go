package rephrasing

import (
	"os"
	"path/filepath"
	"testing"

	"debatechat/backend/internal/analysis"
	"debatechat/backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTemplates_Defaults(t *testing.T) {
	tmpl, err := NewTemplates("")
	require.NoError(t, err)

	for _, strategy := range []string{"restate", "validate", "clarify", "polite"} {
		assert.True(t, tmpl.Has(strategy), strategy)
	}
	assert.False(t, tmpl.Has("shout"))

	prompt, err := tmpl.Render("polite", PromptData{
		Turns: []PromptTurn{{Position: "Opponent", Message: "guns are fine"}},
		Reply: PromptTurn{Position: "Supporter", Message: "you are so wrong"},
	})
	require.NoError(t, err)
	assert.Contains(t, prompt, `Opponent: "guns are fine"`)
	assert.Contains(t, prompt, `Supporter: "you are so wrong"`)
	assert.Contains(t, prompt, `Supporter (polite): "`)
}

func TestNewTemplates_DirectoryOverrides(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "polite.tmpl"), []byte(`be nice: {{.Reply.Message}}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "summarize.tmpl"), []byte(`sum: {{len .Turns}}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte(`ignored`), 0o644))

	tmpl, err := NewTemplates(dir)
	require.NoError(t, err)
	assert.True(t, tmpl.Has("summarize"))
	assert.False(t, tmpl.Has("notes"))

	prompt, err := tmpl.Render("polite", PromptData{Reply: PromptTurn{Message: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "be nice: hi", prompt)
}

func TestNewTemplates_BadTemplate(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "restate.tmpl"), []byte(`{{.Reply`), 0o644))

	_, err := NewTemplates(dir)
	assert.Error(t, err)
}

func TestNewPromptData_UsesSelectedBody(t *testing.T) {
	edited := "calmer words"
	turns := []analysis.Turn{
		{SenderID: 1, Messages: []models.Message{{SenderID: 1, Body: "angry words", EditedBody: &edited}}},
		{SenderID: 2, Messages: []models.Message{
			{SenderID: 2, Body: "first"},
			{SenderID: 2, Body: "original", AcceptedRephrasing: &models.Rephrasing{Body: `the "rephrased" one`}},
		}},
	}
	positions := map[uint]models.Position{1: models.PositionSupport, 2: models.PositionOppose}

	data := NewPromptData(turns, positions, models.PositionSupport, "  my reply ")

	require.Len(t, data.Turns, 3)
	assert.Equal(t, PromptTurn{Position: "Supporter", Message: "calmer words"}, data.Turns[0])
	assert.Equal(t, PromptTurn{Position: "Opponent", Message: "first"}, data.Turns[1])
	assert.Equal(t, "the 'rephrased' one", data.Turns[2].Message)
	assert.Equal(t, PromptTurn{Position: "Supporter", Message: "my reply"}, data.Reply)
}
