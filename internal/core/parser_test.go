package core

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJobFile(t *testing.T) {
	def, err := ParseJobFile([]byte(`
name: bump-deps
prompt: |
  update the go toolchain to 1.24
projects:
  - /src/api
  - /src/worker
`))
	require.NoError(t, err)
	assert.Equal(t, "bump-deps", def.Name)
	assert.Equal(t, "update the go toolchain to 1.24", def.Prompt)
	assert.Equal(t, []string{"/src/api", "/src/worker"}, def.ProjectPaths)
	assert.Equal(t, TriggerManual, def.Trigger)
}

func TestParseJobFileRejectsIncomplete(t *testing.T) {
	_, err := ParseJobFile([]byte("name: x\nprompt: \"  \"\nprojects: [/a]\n"))
	assert.ErrorIs(t, err, ErrEmptyPrompt)

	_, err = ParseJobFile([]byte("name: x\nprompt: go\n"))
	assert.ErrorIs(t, err, ErrNoTargets)

	_, err = ParseJobFile([]byte("name: [unterminated"))
	assert.Error(t, err)
}

func TestLoadJobFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "job.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: n\nprompt: p\nprojects: [/a]\ntrigger: schedule\n"), 0644))

	def, err := LoadJobFile(path)
	require.NoError(t, err)
	assert.Equal(t, "schedule", def.Trigger)

	_, err = LoadJobFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
