package workflow

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"go.yaml.in/yaml/v3"
)

//go:embed prompts.yaml
var defaultPrompts []byte

// Persona is the role description shared by every worker.
type Persona struct {
	Role      string `yaml:"role"`
	Goal      string `yaml:"goal"`
	Backstory string `yaml:"backstory"`
}

// StagePrompt is the template and output contract of one stage.
type StagePrompt struct {
	Description    string `yaml:"description"`
	ExpectedOutput string `yaml:"expected_output"`
}

// Prompts is the prompt catalog.
type Prompts struct {
	Agent  Persona                `yaml:"agent"`
	Stages map[string]StagePrompt `yaml:"stages"`
}

// DefaultPrompts returns the built-in prompt catalog.
func DefaultPrompts() (*Prompts, error) {
	return parsePrompts(defaultPrompts, "prompts.yaml")
}

// LoadPrompts returns the built-in catalog with the file at path merged on
// top. An empty path returns the built-in catalog.
func LoadPrompts(path string) (*Prompts, error) {
	p, err := DefaultPrompts()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return p, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompt overrides: %w", err)
	}
	override, err := parsePrompts(data, path)
	if err != nil {
		return nil, err
	}
	p.Merge(override)
	return p, nil
}

func parsePrompts(data []byte, name string) (*Prompts, error) {
	var p Prompts
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}
	if p.Stages == nil {
		p.Stages = make(map[string]StagePrompt)
	}
	return &p, nil
}

// Merge overlays the non-empty fields of o onto p.
func (p *Prompts) Merge(o *Prompts) {
	if o == nil {
		return
	}
	if o.Agent.Role != "" {
		p.Agent.Role = o.Agent.Role
	}
	if o.Agent.Goal != "" {
		p.Agent.Goal = o.Agent.Goal
	}
	if o.Agent.Backstory != "" {
		p.Agent.Backstory = o.Agent.Backstory
	}
	for key, sp := range o.Stages {
		cur := p.Stages[key]
		if strings.TrimSpace(sp.Description) != "" {
			cur.Description = sp.Description
		}
		if strings.TrimSpace(sp.ExpectedOutput) != "" {
			cur.ExpectedOutput = sp.ExpectedOutput
		}
		p.Stages[key] = cur
	}
}
