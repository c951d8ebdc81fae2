package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"fanprompt/internal/core"
	"fanprompt/pkg/utils"
)

// LogStorage archives the output of finished runs as files.
type LogStorage struct {
	BaseDir string
	now     func() time.Time
}

// NewLogStorage creates a new log storage handler rooted at baseDir.
func NewLogStorage(baseDir string) *LogStorage {
	return &LogStorage{BaseDir: baseDir, now: time.Now}
}

// SaveLog writes output for one target and returns the file path.
func (ls *LogStorage) SaveLog(entry core.ProgressEntry) (string, error) {
	if err := os.MkdirAll(ls.BaseDir, 0o775); err != nil {
		return "", err
	}

	name := entry.Name
	if name == "" {
		name = filepath.Base(entry.Path)
	}
	// Path hash keeps same-named targets apart, timestamp successive runs.
	timestamp := ls.now().Format("20060102_150405")
	filename := fmt.Sprintf("%s_%s_%s.log", sanitize(name), utils.ShortHash(entry.Path, 8), timestamp)
	filePath := filepath.Join(ls.BaseDir, filename)

	var b strings.Builder
	fmt.Fprintf(&b, "# path: %s\n# status: %s\n", entry.Path, entry.Status)
	if entry.Error != "" {
		fmt.Fprintf(&b, "# error: %s\n", entry.Error)
	}
	if entry.NeedsHuman {
		b.WriteString("# needs-human: true\n")
	}
	b.WriteString("\n")
	b.WriteString(entry.Output)

	if err := os.WriteFile(filePath, []byte(b.String()), 0o644); err != nil {
		return "", err
	}
	return filePath, nil
}

// SaveRun writes one file per entry of s, in snapshot order.
func (ls *LogStorage) SaveRun(s core.Snapshot) ([]string, error) {
	paths := make([]string, 0, len(s))
	for _, entry := range s {
		p, err := ls.SaveLog(entry)
		if err != nil {
			return paths, fmt.Errorf("save log for %s: %w", entry.Path, err)
		}
		paths = append(paths, p)
	}
	return paths, nil
}

// sanitize removes special characters from target names for filenames
func sanitize(name string) string {
	var clean strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '-' || r == '_' {
			clean.WriteRune(r)
		}
	}
	if clean.Len() == 0 {
		return "target"
	}
	return clean.String()
}
