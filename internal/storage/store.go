package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"fanprompt/internal/core"
	"fanprompt/internal/logger"
)

// Store is a job store that holds resources until closed.
type Store interface {
	core.JobStore
	Close() error
}

// Options selects and configures a Store.
type Options struct {
	Driver    string // jsonl, sqlite, redis or memory
	Path      string
	RedisAddr string
	RedisKey  string
}

// Open builds the store named by opts.Driver.
func Open(ctx context.Context, opts Options, log *logger.Logger) (Store, error) {
	log = logger.OrNop(log)
	switch strings.ToLower(strings.TrimSpace(opts.Driver)) {
	case "", "jsonl":
		if err := ensureDir(opts.Path); err != nil {
			return nil, err
		}
		return OpenJSONL(opts.Path, log)
	case "sqlite":
		if err := ensureDir(opts.Path); err != nil {
			return nil, err
		}
		return OpenSQLite(opts.Path, log)
	case "redis":
		return NewRedisStore(ctx, opts.RedisAddr, opts.RedisKey, log)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", opts.Driver)
	}
}

func ensureDir(path string) error {
	if path == "" {
		return fmt.Errorf("store path is empty")
	}
	return os.MkdirAll(filepath.Dir(path), 0o755)
}

// prepare validates def and fills the fields a store assigns.
func prepare(def core.JobDefinition) (core.JobDefinition, error) {
	if err := def.Validate(); err != nil {
		return def, &core.PersistenceError{Op: "create", Err: err}
	}
	def.ID = uuid.NewString()
	if def.Trigger == "" {
		def.Trigger = core.TriggerManual
	}
	if def.CreatedAt.IsZero() {
		def.CreatedAt = time.Now().UTC()
	}
	def.ProjectPaths = append([]string(nil), def.ProjectPaths...)
	return def, nil
}
