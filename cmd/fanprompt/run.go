package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"fanprompt/internal/core"
	"fanprompt/internal/storage"
	"fanprompt/internal/transport"
)

var errCancelled = errors.New("run cancelled")

type runFlags struct {
	prompt string
	save   string
	file   string
}

func newRunCmd(a *app) *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run [flags] PATH...",
		Short: "Dispatch a prompt to every project directory and stream progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.run(ctx, cmd.OutOrStdout(), f, args)
		},
	}
	cmd.Flags().StringVarP(&f.prompt, "prompt", "p", "", "prompt to send")
	cmd.Flags().StringVar(&f.save, "save", "", "save the prompt and projects as a job with this name before running")
	cmd.Flags().StringVarP(&f.file, "file", "f", "", "job manifest to run; flags and arguments override it")
	return cmd
}

func (a *app) run(ctx context.Context, out io.Writer, f runFlags, args []string) error {
	prompt, paths := f.prompt, args
	if f.file != "" {
		def, err := core.LoadJobFile(f.file)
		if err != nil {
			return err
		}
		if strings.TrimSpace(prompt) == "" {
			prompt = def.Prompt
		}
		if len(paths) == 0 {
			paths = def.ProjectPaths
		}
	}

	targets, skipped := core.ResolveTargets(paths)
	for _, p := range skipped {
		fmt.Fprintf(out, "⚠️  skipping %s: not a directory\n", p)
	}

	opts := []core.DispatcherOption{
		core.WithLogger(a.log),
		core.WithMetrics(core.DefaultMetrics()),
	}
	var persist *core.JobDefinition
	if f.save != "" {
		store, err := a.openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()
		opts = append(opts, core.WithStore(store))
		persist = &core.JobDefinition{
			Name:         f.save,
			Prompt:       prompt,
			ProjectPaths: core.Paths(targets),
			Trigger:      core.TriggerManual,
		}
	}

	tr := transport.NewHTTP(a.cfg.BackendURL, a.cfg.DispatchPath, transport.WithLogger(a.log))
	d := core.NewDispatcher(tr, opts...)
	p := &progressPrinter{out: out}
	run, err := d.Submit(ctx, prompt, targets, core.Options{Persist: persist, OnUpdate: p.update})
	if err != nil {
		return err
	}
	a.log.Info("run submitted", "run", run.ID(), "url", tr.URL(), "targets", len(targets))
	if id := run.JobID(); id != "" {
		fmt.Fprintf(out, "✅ job %q saved as %s\n", f.save, id)
	}

	waitErr := run.Wait()
	snap := run.Snapshot()
	printSummary(out, snap)

	if dir := a.cfg.Log.OutputDir; dir != "" {
		files, err := storage.NewLogStorage(dir).SaveRun(snap)
		if err != nil {
			a.log.Warn("could not write output logs", "dir", dir, "error", err)
		} else {
			fmt.Fprintf(out, "📝 %d log(s) written to %s\n", len(files), dir)
		}
	}

	switch {
	case waitErr != nil:
		return waitErr
	case run.Cancelled():
		return errCancelled
	}
	if n := snap.Counts()[core.StatusError]; n > 0 {
		return fmt.Errorf("%d project(s) failed", n)
	}
	return nil
}

// progressPrinter writes one line per status change.
type progressPrinter struct {
	out  io.Writer
	last []core.Status
}

func (p *progressPrinter) update(s core.Snapshot) {
	if p.last == nil {
		p.last = make([]core.Status, len(s))
		for i, e := range s {
			p.last[i] = e.Status
		}
		fmt.Fprintf(p.out, "🚀 dispatching to %d project(s)\n", len(s))
		return
	}
	for i, e := range s {
		if e.Status == p.last[i] {
			continue
		}
		p.last[i] = e.Status
		line := fmt.Sprintf("%s %s: %s", icon(e.Status), e.Name, e.Status)
		if e.Error != "" {
			line += " (" + e.Error + ")"
		}
		fmt.Fprintln(p.out, line)
	}
}

func icon(s core.Status) string {
	switch s {
	case core.StatusRunning:
		return "⏳"
	case core.StatusComplete:
		return "✅"
	case core.StatusSkipped:
		return "⏭️ "
	case core.StatusError:
		return "❌"
	default:
		return "•"
	}
}

func printSummary(out io.Writer, s core.Snapshot) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PROJECT\tSTATUS\tNEEDS HUMAN\tERROR")
	for _, e := range s {
		human := ""
		if e.NeedsHuman {
			human = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.Name, e.Status, human, e.Error)
	}
	w.Flush()
}
