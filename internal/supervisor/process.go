package supervisor

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"

	"github.com/sourcegraph/conc"

	"github.com/Iron-Ham/codestatus/internal/errors"
	"github.com/Iron-Ham/codestatus/internal/logging"
	"github.com/Iron-Ham/codestatus/internal/protocol"
)

// Process is a running worker as seen by the supervisor.
type Process interface {
	PID() int
	// Stdin is the worker's standard input. Closing it asks the worker to
	// shut down.
	Stdin() io.WriteCloser
	// Done is closed once the process has exited.
	Done() <-chan struct{}
	// ExitCode is -1 until Done is closed.
	ExitCode() int
	Kill() error
}

// Spawner starts worker processes.
type Spawner interface {
	Spawn(path string, args []string, dir string) (Process, error)
}

// ExecSpawner runs the worker with os/exec and forwards its stdout and
// stderr to the log line by line.
type ExecSpawner struct {
	Logger *logging.Logger
}

// Spawn starts path with args in dir.
func (s ExecSpawner) Spawn(path string, args []string, dir string) (Process, error) {
	logger := s.Logger
	if logger == nil {
		logger = logging.NopLogger()
	}

	cmd := exec.Command(path, args...)
	cmd.Dir = dir

	// Track created pipes for cleanup on error
	var created []io.Closer
	cleanup := func() {
		for _, c := range created {
			_ = c.Close()
		}
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}
	created = append(created, stdin)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	created = append(created, stdout)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("create stderr pipe: %w", err)
	}
	created = append(created, stderr)

	if err := cmd.Start(); err != nil {
		cleanup()
		return nil, fmt.Errorf("start process: %w", err)
	}

	p := &execProcess{
		cmd:   cmd,
		stdin: stdin,
		done:  make(chan struct{}),
	}
	p.exitCode.Store(-1)

	logger = logger.With("pid", cmd.Process.Pid)
	p.drain.Go(func() { forwardLines(stdout, logger, "stdout") })
	p.drain.Go(func() { forwardLines(stderr, logger, "stderr") })

	go p.waitLoop()
	return p, nil
}

// forwardLines logs every line read from r until EOF.
func forwardLines(r io.Reader, logger *logging.Logger, stream string) {
	rd := protocol.NewReader(r)
	for {
		line, err := rd.Next()
		if err != nil {
			return
		}
		if line == "" {
			continue
		}
		logger.Info("worker output", "stream", stream, "line", line)
	}
}

type execProcess struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser

	// drain tracks the output forwarders; Wait must not run before they
	// have read everything.
	drain conc.WaitGroup

	done     chan struct{}
	exitCode atomic.Int32
	waitOnce sync.Once
}

func (p *execProcess) PID() int {
	if p.cmd.Process == nil {
		return -1
	}
	return p.cmd.Process.Pid
}

func (p *execProcess) Stdin() io.WriteCloser { return p.stdin }
func (p *execProcess) Done() <-chan struct{} { return p.done }
func (p *execProcess) ExitCode() int         { return int(p.exitCode.Load()) }

func (p *execProcess) Kill() error {
	select {
	case <-p.done:
		return nil
	default:
	}
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

func (p *execProcess) waitLoop() {
	p.waitOnce.Do(func() {
		p.drain.Wait()
		err := p.cmd.Wait()

		exitCode := 0
		if err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				exitCode = exitErr.ExitCode()
			} else {
				exitCode = -1
			}
		}
		p.exitCode.Store(int32(exitCode))
		close(p.done)
	})
}
