package stream

import "bytes"

// Demultiplexer turns arbitrarily split chunks of the wire stream into
// events. It keeps the trailing partial line between calls. Not safe for
// concurrent use; one read loop owns it.
type Demultiplexer struct {
	buf     []byte
	dropped int
	lastErr error
}

func NewDemultiplexer() *Demultiplexer {
	return &Demultiplexer{}
}

// Feed appends chunk to the carry-over buffer and returns the events decoded
// from every line completed by it, in arrival order.
func (d *Demultiplexer) Feed(chunk []byte) []Event {
	d.buf = append(d.buf, chunk...)
	var events []Event
	for {
		i := bytes.IndexByte(d.buf, '\n')
		if i < 0 {
			break
		}
		line := string(d.buf[:i])
		d.buf = d.buf[i+1:]
		if ev := d.line(line); ev != nil {
			events = append(events, ev)
		}
	}
	// Reclaim the consumed prefix once the buffer is drained.
	if len(d.buf) == 0 {
		d.buf = nil
	}
	return events
}

// Flush treats whatever is left in the buffer as a final line. Call it only
// when the stream ended cleanly.
func (d *Demultiplexer) Flush() []Event {
	if len(d.buf) == 0 {
		return nil
	}
	line := string(d.buf)
	d.buf = nil
	if ev := d.line(line); ev != nil {
		return []Event{ev}
	}
	return nil
}

// Dropped is the number of protocol lines discarded as malformed.
func (d *Demultiplexer) Dropped() int { return d.dropped }

// LastError returns the framing error of the most recently dropped line.
func (d *Demultiplexer) LastError() error { return d.lastErr }

// Pending reports how many bytes of an incomplete line are buffered.
func (d *Demultiplexer) Pending() int { return len(d.buf) }

func (d *Demultiplexer) line(line string) Event {
	ev, ok, err := ParseLine(line)
	if !ok {
		return nil
	}
	if err != nil {
		d.lastErr = err
		d.dropped++
		return nil
	}
	return ev
}
