package rephrasing

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"text/template"
)

const conversationHeader = `The following is a conversation between two people who disagree. The Supporter is in favor of the topic and the Opponent is against it.

{{range .Turns}}{{.Position}}: "{{.Message}}"
{{end}}{{.Reply.Position}}: "{{.Reply.Message}}"

`

// defaultTemplates are used for every strategy without a file override.
var defaultTemplates = map[string]string{
	"restate": conversationHeader + `Rewrite the {{.Reply.Position}}'s last message so that it first restates the other person's point accurately, then makes the same argument.

{{.Reply.Position}} (restated): "`,
	"validate": conversationHeader + `Rewrite the {{.Reply.Position}}'s last message so that it first acknowledges what is reasonable about the other person's view, then makes the same argument.

{{.Reply.Position}} (validating): "`,
	"clarify": conversationHeader + `Rewrite the {{.Reply.Position}}'s last message as a sincere question that asks the other person to explain their view, while keeping the same point.

{{.Reply.Position}} (clarifying): "`,
	"polite": conversationHeader + `Rewrite the {{.Reply.Position}}'s last message so that it is more polite and respectful without changing its meaning.

{{.Reply.Position}} (polite): "`,
}

// Templates holds one prompt template per strategy.
type Templates struct {
	templates map[string]*template.Template
	mu        sync.RWMutex
}

// NewTemplates parses the built-in templates, then overrides them with any
// <strategy>.tmpl file found in dir. An empty dir uses the built-ins only.
func NewTemplates(dir string) (*Templates, error) {
	t := &Templates{templates: make(map[string]*template.Template)}

	for strategy, text := range defaultTemplates {
		if err := t.add(strategy, text); err != nil {
			return nil, err
		}
	}
	if dir == "" {
		return t, nil
	}

	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read templates directory: %w", err)
	}
	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".tmpl") {
			continue
		}

		strategy := strings.TrimSuffix(file.Name(), ".tmpl")
		data, err := os.ReadFile(filepath.Join(dir, file.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read template file %s: %w", file.Name(), err)
		}
		if err := t.add(strategy, string(data)); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func (t *Templates) add(strategy, text string) error {
	tmpl, err := template.New(strategy).Option("missingkey=error").Parse(text)
	if err != nil {
		return fmt.Errorf("failed to parse template %s: %w", strategy, err)
	}
	t.mu.Lock()
	t.templates[strategy] = tmpl
	t.mu.Unlock()
	return nil
}

// Has reports whether a template exists for strategy.
func (t *Templates) Has(strategy string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.templates[strategy]
	return ok
}

// Render builds the prompt for strategy.
func (t *Templates) Render(strategy string, data PromptData) (string, error) {
	t.mu.RLock()
	tmpl, ok := t.templates[strategy]
	t.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("no template for strategy %q", strategy)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", strategy, err)
	}
	return buf.String(), nil
}
