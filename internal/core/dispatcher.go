package core

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"fanprompt/internal/logger"
	"fanprompt/internal/stream"
)

const defaultChunkSize = 32 * 1024

// Request is what the execution backend receives for one run.
type Request struct {
	Prompt       string   `json:"prompt"`
	ProjectPaths []string `json:"projectPaths"`
}

// Transport opens the event stream for a request. The returned body is read
// until EOF, an error, or cancellation, and is always closed by the caller.
// Implementations should honour ctx for the open itself.
type Transport interface {
	Open(ctx context.Context, req Request) (io.ReadCloser, error)
}

// Options tune a single submission.
type Options struct {
	// Persist, when set, is saved before anything is dispatched.
	Persist *JobDefinition
	// OnUpdate receives a private copy of the snapshot after it is created
	// and after every event that changed it. Called from the run goroutine.
	OnUpdate func(Snapshot)
}

// Dispatcher ties together the Transport, Demultiplexer, Reducer and job store.
type Dispatcher struct {
	transport Transport
	store     JobStore
	log       *logger.Logger
	metrics   *Metrics
	chunkSize int
}

type DispatcherOption func(*Dispatcher)

func WithStore(store JobStore) DispatcherOption {
	return func(d *Dispatcher) { d.store = store }
}

func WithLogger(l *logger.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.log = l }
}

func WithMetrics(m *Metrics) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithChunkSize sets the read size used on the transport body.
func WithChunkSize(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.chunkSize = n
		}
	}
}

func NewDispatcher(transport Transport, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{transport: transport, chunkSize: defaultChunkSize}
	for _, opt := range opts {
		opt(d)
	}
	d.log = logger.OrNop(d.log).With("component", "Dispatcher")
	return d
}

// Submit validates the input, optionally persists opts.Persist, and starts a
// run in the background. A persistence failure is returned as a
// *PersistenceError and nothing is dispatched. Transport failures are not
// returned here; they surface through the run's snapshot and Wait.
// Cancelling ctx cancels the run.
func (d *Dispatcher) Submit(ctx context.Context, prompt string, targets []Target, opts Options) (*Run, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, &ValidationError{Field: "prompt", Err: ErrEmptyPrompt}
	}
	if len(targets) == 0 {
		return nil, &ValidationError{Field: "targets", Err: ErrNoTargets}
	}

	var jobID string
	if opts.Persist != nil {
		if d.store == nil {
			return nil, &PersistenceError{Op: "create", Err: errors.New("no job store configured")}
		}
		id, err := d.store.Create(ctx, *opts.Persist)
		if err != nil {
			d.log.Warn("job not saved; run not dispatched", "job", opts.Persist.Name, "error", err)
			return nil, AsPersistenceError("create", err)
		}
		jobID = id
		d.log.Info("job saved", "job", opts.Persist.Name, "id", id)
	}

	runCtx, cancel := context.WithCancel(ctx)
	r := &Run{
		id:       uuid.NewString(),
		jobID:    jobID,
		snapshot: NewSnapshot(targets),
		cancel:   cancel,
		done:     make(chan struct{}),
		onUpdate: opts.OnUpdate,
	}
	r.notify(r.snapshot)

	req := Request{Prompt: prompt, ProjectPaths: Paths(targets)}
	go d.run(runCtx, r, req)
	return r, nil
}

func (d *Dispatcher) run(ctx context.Context, r *Run, req Request) {
	log := d.log.With("run", r.id)
	defer close(r.done)
	defer r.cancel()

	d.metrics.runStarted()
	outcome := OutcomeFinished
	defer func() { d.metrics.runFinished(outcome) }()

	log.Info("run started", "targets", len(req.ProjectPaths))
	body, err := d.transport.Open(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			r.cancelled.Store(true)
			outcome = OutcomeCancelled
			log.Info("run cancelled before stream opened")
			return
		}
		outcome = OutcomeTransportFailed
		log.Warn("transport open failed", "error", err)
		r.fail(err)
		return
	}
	// Closing the body is what unblocks a reader stuck in Read.
	defer body.Close()

	demux := stream.NewDemultiplexer()
	chunks := pump(body, d.chunkSize, ctx.Done())
	dropped := 0
	defer func() {
		if n := demux.Dropped(); n > 0 {
			log.Warn("discarded malformed lines", "count", n, "last_error", demux.LastError())
		}
	}()

	cancelled := func() {
		r.cancelled.Store(true)
		outcome = OutcomeCancelled
		log.Info("run cancelled", "counts", r.Snapshot().Counts())
	}
	for {
		var c chunk
		var ok bool
		select {
		case <-ctx.Done():
			cancelled()
			return
		case c, ok = <-chunks:
		}
		if ctx.Err() != nil {
			cancelled()
			return
		}
		if !ok {
			return
		}
		if len(c.data) > 0 {
			d.apply(r, demux.Feed(c.data))
			d.metrics.dropped(demux.Dropped() - dropped)
			dropped = demux.Dropped()
		}
		if c.err == nil {
			continue
		}
		if errors.Is(c.err, io.EOF) {
			d.apply(r, demux.Flush())
			d.metrics.dropped(demux.Dropped() - dropped)
			log.Info("run finished", "counts", r.Snapshot().Counts())
			return
		}
		outcome = OutcomeTransportFailed
		log.Warn("transport read failed", "error", c.err)
		r.fail(c.err)
		return
	}
}

func (d *Dispatcher) apply(r *Run, events []stream.Event) {
	for _, ev := range events {
		kind := string(ev.Kind())
		if _, unknown := ev.(stream.Unknown); unknown {
			kind = "unknown"
		}
		d.metrics.eventApplied(kind)
		r.apply(ev)
	}
}

type chunk struct {
	data []byte
	err  error
}

// pump reads body on its own goroutine so the run loop can select between
// the next chunk and cancellation.
func pump(body io.Reader, size int, stop <-chan struct{}) <-chan chunk {
	out := make(chan chunk)
	go func() {
		defer close(out)
		for {
			buf := make([]byte, size)
			n, err := body.Read(buf)
			if n == 0 && err == nil {
				continue
			}
			select {
			case out <- chunk{data: buf[:n], err: err}:
			case <-stop:
				return
			}
			if err != nil {
				return
			}
		}
	}()
	return out
}

// Run is one submission in flight. Its snapshot is owned by the run
// goroutine; callers only ever see copies.
type Run struct {
	id    string
	jobID string

	mu       sync.RWMutex
	snapshot Snapshot
	err      error

	cancel    context.CancelFunc
	cancelled atomic.Bool
	done      chan struct{}
	onUpdate  func(Snapshot)
}

// ID identifies this run in logs.
func (r *Run) ID() string { return r.id }

// JobID is the id of the persisted job definition, if one was saved.
func (r *Run) JobID() string { return r.jobID }

// Snapshot returns a copy of the current progress.
func (r *Run) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshot.Clone()
}

// Cancel stops reading and closes the transport. Entries keep their last
// status. Safe to call more than once and after the run has ended.
func (r *Run) Cancel() {
	r.cancel()
}

// Cancelled reports whether the run ended because it was cancelled.
func (r *Run) Cancelled() bool { return r.cancelled.Load() }

// Done is closed when the run has stopped reading.
func (r *Run) Done() <-chan struct{} { return r.done }

// Wait blocks until the run ends. It returns a *TransportError when the
// stream failed, nil after a clean end or a cancellation.
func (r *Run) Wait() error {
	<-r.done
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.err
}

func (r *Run) apply(ev stream.Event) {
	r.mu.Lock()
	prev := r.snapshot
	next := Apply(prev, ev)
	r.snapshot = next
	r.mu.Unlock()
	if !sameSnapshot(prev, next) {
		r.notify(next)
	}
}

func (r *Run) fail(err error) {
	terr := &TransportError{Err: err}
	r.mu.Lock()
	r.snapshot = failAll(r.snapshot, terr.Error())
	r.err = terr
	next := r.snapshot
	r.mu.Unlock()
	r.notify(next)
}

func (r *Run) notify(s Snapshot) {
	if r.onUpdate != nil {
		r.onUpdate(s.Clone())
	}
}

func sameSnapshot(a, b Snapshot) bool {
	return len(a) == len(b) && (len(a) == 0 || &a[0] == &b[0])
}
