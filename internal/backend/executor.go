package backend

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"
)

// PromptEnv is the environment variable the command receives the prompt in.
const PromptEnv = "FANPROMPT_PROMPT"

// Executor runs the configured command for one project.
type Executor struct {
	Command []string
	Timeout time.Duration
}

func NewExecutor(command []string, timeout time.Duration) *Executor {
	return &Executor{Command: command, Timeout: timeout}
}

// Run executes the command in dir with prompt on stdin and in PromptEnv.
// Combined stdout/stderr is passed to onOutput line by line as it arrives
// and also returned in full.
func (e *Executor) Run(ctx context.Context, dir, prompt string, onOutput func(string)) (string, error) {
	if len(e.Command) == 0 {
		return "", errors.New("no command configured")
	}
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, e.Command[0], e.Command[1:]...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), PromptEnv+"="+prompt)
	cmd.Stdin = strings.NewReader(prompt)
	cmd.WaitDelay = 2 * time.Second

	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		_ = pw.Close()
		return "", fmt.Errorf("start %s: %w", e.Command[0], err)
	}

	var out strings.Builder
	done := make(chan struct{})
	go func() {
		defer close(done)
		reader := bufio.NewReader(pr)
		for {
			line, err := reader.ReadString('\n')
			if line != "" {
				out.WriteString(line)
				if onOutput != nil {
					onOutput(line)
				}
			}
			if err != nil {
				return
			}
		}
	}()

	err := cmd.Wait()
	_ = pw.Close()
	<-done

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return out.String(), fmt.Errorf("timed out after %s", e.Timeout)
	}
	return out.String(), err
}
