package agent

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var defaultPrompts []byte

// Prompt is a system instruction plus a user message template.
type Prompt struct {
	System string `yaml:"system"`
	User   string `yaml:"user"`
}

// Prompts is the catalogue of capability prompts.
type Prompts struct {
	Classifier Prompt `yaml:"classifier"`
	Extractor  Prompt `yaml:"extractor"`
	Assistant  Prompt `yaml:"assistant"`
}

// LoadPrompts parses the embedded catalogue, or the file at path when set.
func LoadPrompts(path string) (*Prompts, error) {
	data := defaultPrompts
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read prompts: %w", err)
		}
		data = b
	}
	return parsePrompts(data)
}

func parsePrompts(data []byte) (*Prompts, error) {
	var p Prompts
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse prompts: %w", err)
	}
	for name, pr := range map[string]Prompt{
		"classifier": p.Classifier,
		"extractor":  p.Extractor,
		"assistant":  p.Assistant,
	} {
		if strings.TrimSpace(pr.System) == "" || strings.TrimSpace(pr.User) == "" {
			return nil, fmt.Errorf("prompt %q is incomplete", name)
		}
	}
	return &p, nil
}

// vars fills the {{...}} placeholders of a prompt.
type vars struct {
	History  string
	Message  string
	Operator string
	Company  string
}

func (p Prompt) render(v vars) (system, user string) {
	history := v.History
	if strings.TrimSpace(history) == "" {
		history = "(sin mensajes previos)"
	}
	r := strings.NewReplacer(
		"{{history}}", history,
		"{{message}}", v.Message,
		"{{operator}}", v.Operator,
		"{{company}}", v.Company,
	)
	return strings.TrimSpace(r.Replace(p.System)), strings.TrimSpace(r.Replace(p.User))
}
