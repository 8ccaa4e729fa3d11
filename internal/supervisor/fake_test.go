package supervisor

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/Iron-Ham/codestatus/internal/protocol"
)

// fakeProcess records every line written to its stdin. It exits with code
// 0 on EOF unless ignoreEOF is set, and with -1 when killed.
type fakeProcess struct {
	pid       int
	stdin     io.WriteCloser
	pr        *io.PipeReader
	ignoreEOF bool

	mu    sync.Mutex
	lines []string

	done     chan struct{}
	exitOnce sync.Once
	code     atomic.Int32
	killed   atomic.Bool
	gotEOF   chan struct{}
}

func newFakeProcess(pid int, ignoreEOF bool) *fakeProcess {
	pr, pw := io.Pipe()
	p := &fakeProcess{
		pid:       pid,
		stdin:     pw,
		pr:        pr,
		ignoreEOF: ignoreEOF,
		done:      make(chan struct{}),
		gotEOF:    make(chan struct{}),
	}
	p.code.Store(-1)
	go p.read()
	return p
}

func (p *fakeProcess) read() {
	rd := protocol.NewReader(p.pr)
	for {
		line, err := rd.Next()
		if err != nil {
			close(p.gotEOF)
			if !p.ignoreEOF {
				p.exit(0)
			}
			return
		}
		p.mu.Lock()
		p.lines = append(p.lines, line)
		p.mu.Unlock()
	}
}

func (p *fakeProcess) exit(code int) {
	p.exitOnce.Do(func() {
		p.code.Store(int32(code))
		_ = p.pr.CloseWithError(io.ErrClosedPipe)
		close(p.done)
	})
}

func (p *fakeProcess) Lines() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.lines...)
}

func (p *fakeProcess) PID() int              { return p.pid }
func (p *fakeProcess) Stdin() io.WriteCloser { return p.stdin }
func (p *fakeProcess) Done() <-chan struct{} { return p.done }
func (p *fakeProcess) ExitCode() int         { return int(p.code.Load()) }

func (p *fakeProcess) Kill() error {
	p.killed.Store(true)
	p.exit(-1)
	return nil
}

func (p *fakeProcess) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

type spawnCall struct {
	Path string
	Args []string
	Dir  string
}

type fakeSpawner struct {
	mu        sync.Mutex
	calls     []spawnCall
	procs     []*fakeProcess
	err       error
	ignoreEOF bool
	stdin     io.WriteCloser
}

func (s *fakeSpawner) Spawn(path string, args []string, dir string) (Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, spawnCall{Path: path, Args: args, Dir: dir})
	if s.err != nil {
		return nil, s.err
	}
	p := newFakeProcess(1000+len(s.procs), s.ignoreEOF)
	if s.stdin != nil {
		p.stdin = s.stdin
	}
	s.procs = append(s.procs, p)
	return p, nil
}

func (s *fakeSpawner) Calls() []spawnCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]spawnCall(nil), s.calls...)
}

func (s *fakeSpawner) Proc(i int) *fakeProcess {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i >= len(s.procs) {
		return nil
	}
	return s.procs[i]
}

func (s *fakeSpawner) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.procs)
}

// brokenStdin fails every write.
type brokenStdin struct{}

func (brokenStdin) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }
func (brokenStdin) Close() error              { return nil }
