package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultStopTimeout is how long Close waits for the agent to exit after its
// stdin is closed before killing it.
const DefaultStopTimeout = 5 * time.Second

// ProcessConfig describes an agent subprocess.
type ProcessConfig struct {
	Command string
	Args    []string
	Env     []string // appended to the parent's environment
	Dir     string

	// Stderr receives the agent's stderr. Defaults to os.Stderr.
	Stderr io.Writer

	StopTimeout time.Duration
	Logger      zerolog.Logger
}

// Process is an agent subprocess speaking newline-delimited JSON-RPC on its
// stdin/stdout.
type Process struct {
	*LineStream

	cmd         *exec.Cmd
	stdin       io.WriteCloser
	stopTimeout time.Duration
	logger      zerolog.Logger

	done    chan struct{}
	waitErr error

	stopOnce sync.Once
	stopErr  error
}

// StartProcess launches the agent. The process is killed if ctx is cancelled.
func StartProcess(ctx context.Context, cfg ProcessConfig) (*Process, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("agent command is required")
	}

	cmd := exec.CommandContext(ctx, cfg.Command, cfg.Args...)
	cmd.Dir = cfg.Dir
	if len(cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), cfg.Env...)
	}
	cmd.Stderr = cfg.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("agent stdin: %w", err)
	}
	// An explicit pipe keeps Wait from closing stdout while frames are still buffered.
	stdout, stdoutW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("agent stdout: %w", err)
	}
	cmd.Stdout = stdoutW

	if err := cmd.Start(); err != nil {
		_ = stdout.Close()
		_ = stdoutW.Close()
		return nil, fmt.Errorf("start agent %q: %w", cfg.Command, err)
	}
	_ = stdoutW.Close()

	stopTimeout := cfg.StopTimeout
	if stopTimeout <= 0 {
		stopTimeout = DefaultStopTimeout
	}

	p := &Process{
		LineStream:  NewLineStream(stdout, stdin, stdout),
		cmd:         cmd,
		stdin:       stdin,
		stopTimeout: stopTimeout,
		logger:      cfg.Logger.With().Str("module", "agent_process").Int("pid", cmd.Process.Pid).Logger(),
		done:        make(chan struct{}),
	}

	go func() {
		p.waitErr = cmd.Wait()
		close(p.done)
	}()

	p.logger.Info().
		Str("command", cfg.Command).
		Strs("args", cfg.Args).
		Msg("Agent process started")

	return p, nil
}

// Done is closed once the agent has exited.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the agent exits and returns its exit error.
func (p *Process) Wait() error {
	<-p.done
	return p.waitErr
}

// Close closes the agent's stdin and waits for it to exit, killing it after
// the stop timeout.
func (p *Process) Close() error {
	p.stopOnce.Do(func() {
		if err := p.stdin.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			p.logger.Debug().Err(err).Msg("Failed to close agent stdin")
		}

		select {
		case <-p.done:
		case <-time.After(p.stopTimeout):
			p.logger.Warn().Dur("timeout", p.stopTimeout).Msg("Agent did not exit, killing it")
			if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
				p.stopErr = fmt.Errorf("kill agent: %w", err)
				return
			}
			<-p.done
		}

		_ = p.LineStream.Close()

		var exitErr *exec.ExitError
		if p.waitErr != nil && !errors.As(p.waitErr, &exitErr) {
			p.stopErr = p.waitErr
		}

		p.logger.Info().Msg("Agent process stopped")
	})
	return p.stopErr
}
