package core

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseJobFile parses YAML content into a JobDefinition.
func ParseJobFile(data []byte) (*JobDefinition, error) {
	var def JobDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parse job file: %w", err)
	}
	def.Prompt = strings.TrimSpace(def.Prompt)
	if def.Trigger == "" {
		def.Trigger = TriggerManual
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// LoadJobFile reads a job manifest from path.
func LoadJobFile(path string) (*JobDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseJobFile(data)
}
