package backend

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"fanprompt/internal/core"
	"fanprompt/internal/jsonx"
	"fanprompt/internal/logger"
	"fanprompt/internal/stream"
)

// Config controls how the backend executes prompts.
type Config struct {
	Command          []string
	Concurrency      int
	Timeout          time.Duration
	NeedsHumanMarker string
}

// Server streams the progress of a prompt executed in many projects.
type Server struct {
	cfg      Config
	exec     *Executor
	log      *logger.Logger
	projects *prometheus.CounterVec
	gatherer prometheus.Gatherer
}

// NewServer registers its collectors on reg and serves reg on /metrics.
// A nil reg uses the global registry.
func NewServer(cfg Config, log *logger.Logger, reg *prometheus.Registry) *Server {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	var (
		registerer prometheus.Registerer = prometheus.DefaultRegisterer
		gatherer   prometheus.Gatherer   = prometheus.DefaultGatherer
	)
	if reg != nil {
		registerer, gatherer = reg, reg
	}
	projects := core.MustRegister(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fanprompt",
		Subsystem: "backend",
		Name:      "projects_total",
		Help:      "Projects processed, by result.",
	}, []string{"result"}))
	return &Server{
		cfg:      cfg,
		exec:     NewExecutor(cfg.Command, cfg.Timeout),
		log:      logger.OrNop(log).With("component", "Backend"),
		projects: projects,
		gatherer: gatherer,
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Post("/dispatch", s.handleDispatch)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if _, err := w.Write([]byte("ok")); err != nil {
			s.log.Debug("healthz write failed", "error", err)
		}
	})
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("backend listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// POST /dispatch -> run the prompt in every project and stream events
func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	var req core.Request
	if err := jsonx.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	req.Prompt = strings.TrimSpace(req.Prompt)
	if req.Prompt == "" {
		http.Error(w, "prompt is empty", http.StatusBadRequest)
		return
	}
	if len(req.ProjectPaths) == 0 {
		http.Error(w, "no projects", http.StatusBadRequest)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	log := s.log.With("request_id", middleware.GetReqID(ctx))
	log.Info("dispatch received", "projects", len(req.ProjectPaths))

	var mu sync.Mutex
	emit := func(ev stream.Event) {
		line, err := stream.Encode(ev)
		if err != nil {
			log.Error("encode event", "error", err)
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if ctx.Err() != nil {
			return
		}
		if _, err := w.Write(line); err != nil {
			log.Warn("client went away", "error", err)
			cancel()
			return
		}
		flusher.Flush()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for _, path := range req.ProjectPaths {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			s.runProject(gctx, path, req.Prompt, emit)
			return nil
		})
	}
	_ = g.Wait()
	log.Info("dispatch finished")
}

func (s *Server) runProject(ctx context.Context, path, prompt string, emit func(stream.Event)) {
	info, err := os.Stat(path)
	skipped := err != nil || !info.IsDir()
	emit(stream.PreCheck{Project: path, Skipped: skipped})
	if skipped {
		s.projects.WithLabelValues("skipped").Inc()
		return
	}

	emit(stream.Start{Project: path})
	out, err := s.exec.Run(ctx, path, prompt, func(line string) {
		emit(stream.Content{Project: path, Text: line})
	})
	if ctx.Err() != nil {
		s.projects.WithLabelValues("cancelled").Inc()
		return
	}

	done := stream.Complete{Project: path}
	if err != nil {
		done.Err = err.Error()
		s.projects.WithLabelValues("error").Inc()
	} else {
		s.projects.WithLabelValues("complete").Inc()
	}
	if marker := s.cfg.NeedsHumanMarker; marker != "" && err == nil {
		done.NeedsHuman = strings.Contains(out, marker)
	}
	emit(done)
}
