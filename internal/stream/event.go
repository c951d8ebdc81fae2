package stream

import (
	"fmt"
	"strings"

	"fanprompt/internal/jsonx"
)

// Prefix marks protocol lines on the wire. Anything else is ignored.
const Prefix = "data: "

// Kind is the wire-level "type" tag of an event envelope.
type Kind string

const (
	KindPreCheck Kind = "pre-check"
	KindStart    Kind = "start"
	KindContent  Kind = "content"
	KindComplete Kind = "complete"
	KindError    Kind = "error"
)

// Event is one decoded envelope. The set of implementations is closed:
// PreCheck, Start, Content, Complete, Failure and Unknown.
type Event interface {
	Kind() Kind
	Target() string
	event()
}

// PreCheck reports whether the producer decided to skip a project.
type PreCheck struct {
	Project string
	Skipped bool
}

// Start marks a project as running.
type Start struct {
	Project string
}

// Content carries a chunk of output text.
type Content struct {
	Project string
	Text    string
}

// Complete ends a project's run. A non-empty Err means the run failed.
type Complete struct {
	Project    string
	NeedsHuman bool
	Err        string
}

// Failure is an explicit "error" event.
type Failure struct {
	Project string
	Err     string
}

// Unknown is an envelope with an unrecognised type tag.
type Unknown struct {
	Type    string
	Project string
}

func (PreCheck) Kind() Kind { return KindPreCheck }
func (Start) Kind() Kind { return KindStart }
func (Content) Kind() Kind { return KindContent }
func (Complete) Kind() Kind { return KindComplete }
func (Failure) Kind() Kind { return KindError }
func (e Unknown) Kind() Kind { return Kind(e.Type) }
func (e PreCheck) Target() string { return e.Project }
func (e Start) Target() string { return e.Project }
func (e Content) Target() string { return e.Project }
func (e Complete) Target() string { return e.Project }
func (e Failure) Target() string { return e.Project }
func (e Unknown) Target() string { return e.Project }

func (PreCheck) event() {}
func (Start) event() {}
func (Content) event() {}
func (Complete) event() {}
func (Failure) event() {}
func (Unknown) event() {}

// envelope is the JSON shape shared by every event kind.
type envelope struct {
	Type       string  `json:"type"`
	Project    string  `json:"project"`
	Skipped    *bool   `json:"skipped,omitempty"`
	Text       *string `json:"text,omitempty"`
	NeedsHuman *bool   `json:"needsHuman,omitempty"`
	Error      *string `json:"error,omitempty"`
}

// FramingError describes a line that carried the prefix but no valid payload.
type FramingError struct {
	Line string
	Err  error
}

func (e *FramingError) Error() string {
	return fmt.Sprintf("malformed event line %q: %v", e.Line, e.Err)
}

func (e *FramingError) Unwrap() error { return e.Err }

// ParseLine decodes one complete line. ok is false for lines that are not
// protocol lines at all (blank or missing the prefix); err is a
// *FramingError when the payload cannot be decoded.
func ParseLine(line string) (ev Event, ok bool, err error) {
	line = strings.TrimSuffix(line, "\r")
	if strings.TrimSpace(line) == "" || !strings.HasPrefix(line, Prefix) {
		return nil, false, nil
	}
	ev, err = Decode([]byte(strings.TrimPrefix(line, Prefix)))
	if err != nil {
		return nil, true, &FramingError{Line: line, Err: err}
	}
	return ev, true, nil
}

// Decode turns a JSON envelope into its typed event.
func Decode(payload []byte) (Event, error) {
	var env envelope
	if err := jsonx.Unmarshal(payload, &env); err != nil {
		return nil, err
	}
	switch Kind(env.Type) {
	case KindPreCheck:
		return PreCheck{Project: env.Project, Skipped: deref(env.Skipped)}, nil
	case KindStart:
		return Start{Project: env.Project}, nil
	case KindContent:
		return Content{Project: env.Project, Text: deref(env.Text)}, nil
	case KindComplete:
		return Complete{Project: env.Project, NeedsHuman: deref(env.NeedsHuman), Err: deref(env.Error)}, nil
	case KindError:
		return Failure{Project: env.Project, Err: deref(env.Error)}, nil
	default:
		return Unknown{Type: env.Type, Project: env.Project}, nil
	}
}

// Encode frames ev as a single protocol line, newline included.
func Encode(ev Event) ([]byte, error) {
	env := envelope{Type: string(ev.Kind()), Project: ev.Target()}
	switch e := ev.(type) {
	case PreCheck:
		env.Skipped = &e.Skipped
	case Content:
		env.Text = &e.Text
	case Complete:
		if e.NeedsHuman {
			env.NeedsHuman = &e.NeedsHuman
		}
		if e.Err != "" {
			env.Error = &e.Err
		}
	case Failure:
		env.Error = &e.Err
	}
	payload, err := jsonx.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", ev.Kind(), err)
	}
	out := make([]byte, 0, len(Prefix)+len(payload)+1)
	out = append(out, Prefix...)
	out = append(out, payload...)
	return append(out, '\n'), nil
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
