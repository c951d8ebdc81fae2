package core

// Status is the lifecycle state of one target within a run.
type Status string

const (
	StatusPending  Status = "pending"
	StatusRunning  Status = "running"
	StatusSkipped  Status = "skipped"
	StatusComplete Status = "complete"
	StatusError    Status = "error"
)

// Terminal reports whether no further transitions are accepted from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusSkipped, StatusComplete, StatusError:
		return true
	default:
		return false
	}
}

// Target is one dispatch destination. Path is the unique key.
type Target struct {
	Path string `json:"path" yaml:"path"`
	Name string `json:"name" yaml:"name"`
}

// ProgressEntry is the per-target record of a run.
type ProgressEntry struct {
	Path       string `json:"path"`
	Name       string `json:"name"`
	Status     Status `json:"status"`
	Output     string `json:"output"`
	Error      string `json:"error,omitempty"`
	NeedsHuman bool   `json:"needsHuman,omitempty"`
}

// Snapshot holds one entry per submitted target, in submission order.
type Snapshot []ProgressEntry

// NewSnapshot returns a snapshot with every target Pending.
func NewSnapshot(targets []Target) Snapshot {
	s := make(Snapshot, len(targets))
	for i, t := range targets {
		s[i] = ProgressEntry{Path: t.Path, Name: t.Name, Status: StatusPending}
	}
	return s
}

func (s Snapshot) Clone() Snapshot {
	if s == nil {
		return nil
	}
	out := make(Snapshot, len(s))
	copy(out, s)
	return out
}

// Index returns the position of the entry for path, or -1.
func (s Snapshot) Index(path string) int {
	for i := range s {
		if s[i].Path == path {
			return i
		}
	}
	return -1
}

// Terminal reports whether every entry has reached a terminal status.
func (s Snapshot) Terminal() bool {
	for i := range s {
		if !s[i].Status.Terminal() {
			return false
		}
	}
	return true
}

// Counts tallies entries per status.
func (s Snapshot) Counts() map[Status]int {
	out := make(map[Status]int, 5)
	for i := range s {
		out[s[i].Status]++
	}
	return out
}
