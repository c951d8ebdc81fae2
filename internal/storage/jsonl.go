package storage

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sync"

	"fanprompt/internal/core"
	"fanprompt/internal/jsonx"
	"fanprompt/internal/logger"
)

// JSONLStore keeps job definitions in an append-only JSON lines file, one
// definition per line.
type JSONLStore struct {
	mu   sync.Mutex
	path string
	log  *logger.Logger
}

// OpenJSONL opens the file at path, creating it when missing, and checks
// that existing content decodes.
func OpenJSONL(path string, log *logger.Logger) (*JSONLStore, error) {
	s := &JSONLStore{path: path, log: logger.OrNop(log).With("store", "jsonl")}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, &core.PersistenceError{Op: "open", Err: err}
		}
		if err := f.Close(); err != nil {
			return nil, &core.PersistenceError{Op: "open", Err: err}
		}
		return s, nil
	}
	if _, err := s.read(); err != nil {
		return nil, &core.PersistenceError{Op: "open", Err: err}
	}
	return s, nil
}

func (s *JSONLStore) Create(ctx context.Context, def core.JobDefinition) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &core.PersistenceError{Op: "create", Err: err}
	}
	def, err := prepare(def)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	line, err := jsonx.Marshal(def)
	if err != nil {
		return "", &core.PersistenceError{Op: "create", Err: fmt.Errorf("encode job: %w", err)}
	}
	if err := s.appendLine(append(line, '\n')); err != nil {
		return "", &core.PersistenceError{Op: "create", Err: err}
	}
	s.log.Debug("job stored", "id", def.ID, "job", def.Name)
	return def.ID, nil
}

// appendLine writes line at the end of the file. A torn tail left by an
// earlier crash is cut off first, and a failed write is truncated away so
// the file only ever holds whole entries.
func (s *JSONLStore) appendLine(line []byte) (err error) {
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("open job file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close job file: %w", cerr)
		}
	}()

	size, err := wholeLinesSize(f)
	if err != nil {
		return err
	}
	if err := f.Truncate(size); err != nil {
		return fmt.Errorf("trim job file: %w", err)
	}
	if _, err := f.WriteAt(line, size); err != nil {
		if terr := f.Truncate(size); terr != nil {
			s.log.Error("could not roll back partial job entry", "path", s.path, "error", terr)
		}
		return fmt.Errorf("write job file: %w", err)
	}
	return nil
}

// wholeLinesSize is the length of f up to and including its last newline.
func wholeLinesSize(f *os.File) (int64, error) {
	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat job file: %w", err)
	}
	size := info.Size()
	if size == 0 {
		return 0, nil
	}
	buf := make([]byte, 4096)
	for end := size; end > 0; {
		start := max(end-int64(len(buf)), 0)
		chunk := buf[:end-start]
		if _, err := f.ReadAt(chunk, start); err != nil {
			return 0, fmt.Errorf("read job file: %w", err)
		}
		if i := bytes.LastIndexByte(chunk, '\n'); i >= 0 {
			return start + int64(i) + 1, nil
		}
		end = start
	}
	return 0, nil
}

// List returns definitions in the order they were created.
func (s *JSONLStore) List(ctx context.Context) ([]core.JobDefinition, error) {
	if err := ctx.Err(); err != nil {
		return nil, &core.PersistenceError{Op: "list", Err: err}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	defs, err := s.read()
	if err != nil {
		return nil, &core.PersistenceError{Op: "list", Err: err}
	}
	return defs, nil
}

func (s *JSONLStore) Close() error { return nil }

func (s *JSONLStore) read() ([]core.JobDefinition, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}
	defs := make([]core.JobDefinition, 0)
	// An entry without its newline was never fully written.
	if i := bytes.LastIndexByte(data, '\n'); i < len(data)-1 {
		s.log.Warn("ignoring incomplete trailing job entry", "path", s.path, "bytes", len(data)-i-1)
		data = data[:i+1]
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return defs, nil
	}
	dec := jsonx.NewDecoder(bytes.NewReader(data))
	for dec.More() {
		var def core.JobDefinition
		if err := dec.Decode(&def); err != nil {
			return nil, fmt.Errorf("decode job entry %d: %w", len(defs), err)
		}
		defs = append(defs, def)
	}
	return defs, nil
}
