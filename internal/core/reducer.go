package core

import "fanprompt/internal/stream"

// Apply returns the snapshot that results from applying ev to s. It never
// mutates s: when ev changes anything a new slice is returned, otherwise s
// itself. Events for unknown projects, events for targets already in a
// terminal state, and events of unknown kind are ignored.
func Apply(s Snapshot, ev stream.Event) Snapshot {
	if ev == nil {
		return s
	}
	i := s.Index(ev.Target())
	if i < 0 {
		return s
	}
	cur := s[i]
	if cur.Status.Terminal() {
		return s
	}

	next, changed := transition(cur, ev)
	if !changed {
		return s
	}
	out := s.Clone()
	out[i] = next
	return out
}

func transition(e ProgressEntry, ev stream.Event) (ProgressEntry, bool) {
	switch ev := ev.(type) {
	case stream.PreCheck:
		if e.Status != StatusPending || !ev.Skipped {
			return e, false
		}
		e.Status = StatusSkipped
	case stream.Start:
		if e.Status != StatusPending {
			return e, false
		}
		e.Status = StatusRunning
	case stream.Content:
		if ev.Text == "" {
			return e, false
		}
		e.Output += ev.Text
	case stream.Complete:
		if e.Status != StatusRunning {
			return e, false
		}
		if ev.Err != "" {
			e.Status = StatusError
			e.Error = ev.Err
			return e, true
		}
		e.Status = StatusComplete
		e.NeedsHuman = ev.NeedsHuman
	case stream.Failure:
		e.Status = StatusError
		e.Error = ev.Err
	default:
		return e, false
	}
	return e, true
}

// failAll moves every non-terminal entry to Error with msg. Used only when
// the transport dies and no further per-target events can arrive.
func failAll(s Snapshot, msg string) Snapshot {
	out := s.Clone()
	for i := range out {
		if out[i].Status.Terminal() {
			continue
		}
		out[i].Status = StatusError
		out[i].Error = msg
	}
	return out
}
