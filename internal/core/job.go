package core

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const TriggerManual = "manual"

// JobDefinition is a named, reusable prompt and target list.
type JobDefinition struct {
	ID           string    `json:"id,omitempty" yaml:"id,omitempty"`
	Name         string    `json:"name" yaml:"name"`
	Prompt       string    `json:"prompt" yaml:"prompt"`
	ProjectPaths []string  `json:"projectPaths" yaml:"projects"`
	Trigger      string    `json:"trigger" yaml:"trigger"`
	CreatedAt    time.Time `json:"createdAt,omitempty" yaml:"-"`
}

// Validate checks the fields a store needs before accepting a definition.
func (j *JobDefinition) Validate() error {
	if strings.TrimSpace(j.Name) == "" {
		return &ValidationError{Field: "name", Err: fmt.Errorf("job name is empty")}
	}
	if strings.TrimSpace(j.Prompt) == "" {
		return &ValidationError{Field: "prompt", Err: ErrEmptyPrompt}
	}
	if len(j.ProjectPaths) == 0 {
		return &ValidationError{Field: "projects", Err: ErrNoTargets}
	}
	return nil
}

// JobStore is the persistence boundary for job definitions. Create returns
// the assigned id; both methods report failures as *PersistenceError.
// List ordering is up to the implementation.
type JobStore interface {
	Create(ctx context.Context, def JobDefinition) (string, error)
	List(ctx context.Context) ([]JobDefinition, error)
}
