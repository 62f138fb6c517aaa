// Package process runs the external commands requested by the editor, off
// the netbeans reactor, and reports their output.
package process

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/acarl005/stripansi"
	"github.com/creack/pty"
	"golang.org/x/sync/semaphore"
	"golang.org/x/xerrors"
)

const (
	DefaultMaxWorkers = 4
	DefaultTimeout    = 60 * time.Second
)

type Config struct {
	// PTY runs commands on a pseudo terminal, for programs that only
	// produce output when attached to one.
	PTY bool

	// MaxWorkers bounds the number of commands running at once; further
	// commands wait for a worker.
	MaxWorkers int64

	Timeout time.Duration
}

// Result is the outcome of a command.
type Result struct {
	// Cmdline is the command as the user typed it.
	Cmdline string

	// Output is the combined stdout and stderr, without terminal escape
	// sequences.
	Output string

	ExitCode int

	// Err is set when the command could not be run to completion.
	Err error
}

// Message is the text shown to the user for r.
func (r Result) Message() string {
	if r.Err != nil {
		return fmt.Sprintf("Process '%v' failed: %v", r.Cmdline, r.Err)
	}
	return fmt.Sprintf("Result of process '%v':\n%v", r.Cmdline, r.Output)
}

// Runner runs commands on worker goroutines.
type Runner struct {
	cfg Config
	log *slog.Logger
	sem *semaphore.Weighted

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewRunner(cfg Config, log *slog.Logger) *Runner {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = DefaultMaxWorkers
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		cfg:    cfg,
		log:    log,
		sem:    semaphore.NewWeighted(cfg.MaxWorkers),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start runs argv on a worker goroutine and calls done with the result from
// that goroutine. cmdline is the command as typed, used in messages.
func (r *Runner) Start(cmdline string, argv []string, done func(Result)) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		done(r.Run(r.ctx, cmdline, argv))
	}()
}

// Run runs argv once a worker is available and waits for it to finish.
func (r *Runner) Run(ctx context.Context, cmdline string, argv []string) Result {
	res := Result{Cmdline: cmdline}
	if len(argv) == 0 {
		res.Err = xerrors.New("no command")
		return res
	}
	if err := r.sem.Acquire(ctx, 1); err != nil {
		res.Err = xerrors.Errorf("waiting for a worker: %w", err)
		return res
	}
	defer r.sem.Release(1)

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	r.log.Info("running process", "argv", argv, "pty", r.cfg.PTY)

	var out []byte
	var err error
	if r.cfg.PTY {
		out, err = runPTY(cmd)
	} else {
		out, err = cmd.CombinedOutput()
	}
	res.Output = stripansi.Strip(string(out))

	var exitErr *exec.ExitError
	switch {
	case ctx.Err() != nil:
		res.Err = xerrors.Errorf("%v: %w", cmdline, ctx.Err())
	case xerrors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	case err != nil:
		res.Err = err
	}
	r.log.Info("process done", "argv", argv, "exitcode", res.ExitCode, "error", res.Err)
	return res
}

func runPTY(cmd *exec.Cmd) ([]byte, error) {
	f, err := pty.Start(cmd)
	if err != nil {
		return nil, xerrors.Errorf("failed to start on a pty: %w", err)
	}
	defer f.Close()
	var buf bytes.Buffer
	// reading the pty fails with EIO once the child side is closed
	io.Copy(&buf, f)
	return buf.Bytes(), cmd.Wait()
}

// Close cancels the running commands and waits for their workers.
func (r *Runner) Close() {
	r.cancel()
	r.wg.Wait()
}
