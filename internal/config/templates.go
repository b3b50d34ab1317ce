package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// WorkflowTemplate expands a matched question into a parametrized
// multi-agent plan without consulting the model.
type WorkflowTemplate struct {
	Name       string          `yaml:"name"`
	Keywords   []string        `yaml:"keywords"`
	Parameters []TemplateParam `yaml:"parameters"`
	Agents     []TemplateAgent `yaml:"agents"`
}

type TemplateParam struct {
	Name     string `yaml:"name"`
	Pattern  string `yaml:"pattern"`
	Required bool   `yaml:"required"`
	Default  string `yaml:"default"`
}

type TemplateAgent struct {
	Name         string `yaml:"name"`
	TaskTemplate string `yaml:"task_template"`
}

type workflowFile struct {
	Templates []WorkflowTemplate `yaml:"templates"`
}

func LoadWorkflowTemplates(path string) ([]WorkflowTemplate, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read templates: %w", err)
	}
	var f workflowFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("unmarshal templates: %w", err)
	}
	return f.Templates, nil
}
