package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fanprompt/internal/core"
)

func sampleJob(name string) core.JobDefinition {
	return core.JobDefinition{
		Name:         name,
		Prompt:       "bump the linter config",
		ProjectPaths: []string{"/src/api", "/src/web"},
		Trigger:      core.TriggerManual,
	}
}

// exerciseStore runs the create/list contract against any store.
func exerciseStore(t *testing.T, s core.JobStore) {
	t.Helper()
	ctx := context.Background()

	id1, err := s.Create(ctx, sampleJob("first"))
	require.NoError(t, err)
	require.NotEmpty(t, id1)
	id2, err := s.Create(ctx, sampleJob("second"))
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)

	defs, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, defs, 2)

	byID := map[string]core.JobDefinition{}
	for _, d := range defs {
		byID[d.ID] = d
	}
	require.Contains(t, byID, id1)
	assert.Equal(t, "first", byID[id1].Name)
	assert.Equal(t, "bump the linter config", byID[id1].Prompt)
	assert.Equal(t, []string{"/src/api", "/src/web"}, byID[id1].ProjectPaths)
	assert.Equal(t, core.TriggerManual, byID[id1].Trigger)
	assert.False(t, byID[id1].CreatedAt.IsZero())

	_, err = s.Create(ctx, core.JobDefinition{Name: "broken"})
	var perr *core.PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "create", perr.Op)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestJSONLStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.jsonl")
	s, err := OpenJSONL(path, nil)
	require.NoError(t, err)
	exerciseStore(t, s)

	// reopen and read back in creation order
	again, err := OpenJSONL(path, nil)
	require.NoError(t, err)
	defs, err := again.List(context.Background())
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, "first", defs[0].Name)
	assert.Equal(t, "second", defs[1].Name)
}

func TestJSONLStoreRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{\"name\":\"ok\"}\n{broken\n"), 0o644))

	_, err := OpenJSONL(path, nil)
	var perr *core.PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "open", perr.Op)
}

func TestJSONLStoreRecoversFromTornTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.jsonl")
	s, err := OpenJSONL(path, nil)
	require.NoError(t, err)
	ctx := context.Background()
	_, err = s.Create(ctx, sampleJob("kept"))
	require.NoError(t, err)

	// an append that died half way through the line
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"id":"x","name":"tor`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	defs, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "kept", defs[0].Name)

	reopened, err := OpenJSONL(path, nil)
	require.NoError(t, err)
	_, err = reopened.Create(ctx, sampleJob("after"))
	require.NoError(t, err)

	defs, err = reopened.List(ctx)
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, "kept", defs[0].Name)
	assert.Equal(t, "after", defs[1].Name)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), `{"id":"x"`)
}

func TestJSONLStoreUnwritable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jobs.jsonl")
	s, err := OpenJSONL(path, nil)
	require.NoError(t, err)
	require.NoError(t, os.Remove(path))
	require.NoError(t, os.Mkdir(path, 0o755))

	_, err = s.Create(context.Background(), sampleJob("x"))
	var perr *core.PersistenceError
	assert.ErrorAs(t, err, &perr)
}

func TestSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.db")
	s, err := OpenSQLite(path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	exerciseStore(t, s)
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set TEST_REDIS_ADDR to run redis store tests")
	}
	ctx := context.Background()
	key := "fanprompt:test:" + t.Name()
	s, err := NewRedisStore(ctx, addr, key, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.rdb.Del(ctx, key).Err()
		_ = s.Close()
	})
	require.NoError(t, s.rdb.Del(ctx, key).Err())
	exerciseStore(t, s)
}

func TestRedisStoreRequiresAddr(t *testing.T) {
	_, err := NewRedisStore(context.Background(), " ", "", nil)
	var perr *core.PersistenceError
	assert.ErrorAs(t, err, &perr)
}

func TestOpenDrivers(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := Open(ctx, Options{Driver: "jsonl", Path: filepath.Join(dir, "nested", "jobs.jsonl")}, nil)
	require.NoError(t, err)
	assert.IsType(t, &JSONLStore{}, s)
	require.NoError(t, s.Close())

	s, err = Open(ctx, Options{Driver: "sqlite", Path: filepath.Join(dir, "jobs.db")}, nil)
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	require.NoError(t, s.Close())

	s, err = Open(ctx, Options{Driver: "memory"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	_, err = Open(ctx, Options{Driver: "etcd"}, nil)
	assert.Error(t, err)
}

func TestDispatcherSurfacesStoreFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jobs.jsonl")
	s, err := OpenJSONL(path, nil)
	require.NoError(t, err)
	require.NoError(t, os.Remove(path))
	require.NoError(t, os.Mkdir(path, 0o755))

	d := core.NewDispatcher(nil, core.WithStore(s))
	job := sampleJob("nightly")
	run, err := d.Submit(context.Background(), job.Prompt, []core.Target{{Path: "/src/api"}}, core.Options{Persist: &job})
	assert.Nil(t, run)
	var perr *core.PersistenceError
	assert.ErrorAs(t, err, &perr)
}
