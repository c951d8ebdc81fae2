package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fanprompt/internal/core"
)

func TestSaveRun(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	ls := NewLogStorage(dir)
	ls.now = func() time.Time { return time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC) }

	snap := core.Snapshot{
		{Path: "/x/api", Name: "api", Status: core.StatusComplete, Output: "all green", NeedsHuman: true},
		{Path: "/y/api", Name: "api", Status: core.StatusError, Error: "timeout"},
		{Path: "/z/web app!", Name: "", Status: core.StatusSkipped},
	}
	paths, err := ls.SaveRun(snap)
	require.NoError(t, err)
	require.Len(t, paths, 3)
	assert.NotEqual(t, paths[0], paths[1], "same-named targets must not collide")

	assert.True(t, strings.HasPrefix(filepath.Base(paths[0]), "api_"))
	assert.True(t, strings.HasSuffix(paths[0], "_20261016_093000.log"))
	assert.True(t, strings.HasPrefix(filepath.Base(paths[2]), "webapp_"))

	data, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), "# status: complete")
	assert.Contains(t, string(data), "# needs-human: true")
	assert.True(t, strings.HasSuffix(string(data), "all green"))

	data, err = os.ReadFile(paths[1])
	require.NoError(t, err)
	assert.Contains(t, string(data), "# error: timeout")
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "my-proj_1", sanitize("my-proj_1"))
	assert.Equal(t, "webapp", sanitize("web app!"))
	assert.Equal(t, "target", sanitize("!!!"))
}
