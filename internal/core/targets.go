package core

import (
	"os"
	"path/filepath"
)

// ResolveTargets turns raw paths into targets. Paths are made absolute;
// paths that do not name an existing directory are returned in skipped
// instead, and duplicates keep their first position.
func ResolveTargets(paths []string) (targets []Target, skipped []string) {
	seen := make(map[string]bool, len(paths))
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			skipped = append(skipped, p)
			continue
		}
		abs = filepath.Clean(abs)
		if seen[abs] {
			continue
		}
		info, err := os.Stat(abs)
		if err != nil || !info.IsDir() {
			skipped = append(skipped, p)
			continue
		}
		seen[abs] = true
		targets = append(targets, Target{Path: abs, Name: filepath.Base(abs)})
	}
	return targets, skipped
}

// Paths returns the path of every target, in order.
func Paths(targets []Target) []string {
	out := make([]string, len(targets))
	for i, t := range targets {
		out[i] = t.Path
	}
	return out
}
