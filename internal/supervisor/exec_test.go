package supervisor

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Iron-Ham/codestatus/internal/errors"
	"github.com/Iron-Ham/codestatus/internal/logging"
	"github.com/Iron-Ham/codestatus/internal/presence"
	"github.com/Iron-Ham/codestatus/internal/worker"
)

// helperEnv makes the test binary act as the worker. TestMain checks it
// before flags are parsed, since worker argv is not test-flag compatible.
const helperEnv = "CODESTATUS_TEST_WORKER"

func TestMain(m *testing.M) {
	switch os.Getenv(helperEnv) {
	case "worker":
		os.Exit(worker.Main(context.Background(), os.Args[1:], worker.StdStreams()))
	case "stubborn":
		// Ignores EOF on stdin until killed.
		time.Sleep(time.Hour)
		os.Exit(0)
	}
	os.Exit(m.Run())
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestExecSpawner_RealWorker(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("helper process test uses unix paths")
	}
	t.Setenv(helperEnv, "worker")

	self, err := os.Executable()
	if err != nil {
		t.Fatal(err)
	}
	statePath := filepath.Join(t.TempDir(), "presence.yaml")

	settings := testSettings()
	settings.Worker.StateFile = statePath
	settings.GracefulStopTimeout = 5 * time.Second

	var logs syncBuffer
	logger := logging.NewStreamLogger(&logs, "DEBUG")
	s := New(settings,
		WithLogger(logger),
		WithResolver(func(Settings) (string, error) { return self, nil }),
	)
	defer s.Close()

	if err := s.Start(settings); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	s.Notify(buttonState())

	waitFor(t, "presence document", func() bool {
		doc, err := presence.ReadDocument(statePath)
		return err == nil && doc.Fields["max_players"] == "proj | 正在编写 components/Button.tsx"
	})

	doc, err := presence.ReadDocument(statePath)
	if err != nil {
		t.Fatal(err)
	}
	if doc.Fields[presence.DisplayKey] != "#Status_Airport" || doc.Fields["players"] != "/" {
		t.Errorf("unexpected fields %v", doc.Fields)
	}
	if doc.Fields[presence.GroupKey] != "1" || doc.Fields[presence.GroupSizeKey] != "1" {
		t.Errorf("group fields missing: %v", doc.Fields)
	}

	h := s.Handle()
	s.Stop()

	if code := h.proc.ExitCode(); code != 0 {
		t.Errorf("worker exit code = %d, want 0", code)
	}
	doc, err = presence.ReadDocument(statePath)
	if err != nil {
		t.Fatal(err)
	}
	if doc.Online {
		t.Error("worker should shut the provider down on EOF")
	}
	if !strings.Contains(logs.String(), "[updated]") {
		t.Error("worker stdout should be forwarded to the supervisor log")
	}
}

func TestExecSpawner_KillsStubbornWorker(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("helper process test uses unix paths")
	}
	t.Setenv(helperEnv, "stubborn")

	self, err := os.Executable()
	if err != nil {
		t.Fatal(err)
	}

	proc, err := ExecSpawner{}.Spawn(self, nil, "")
	if err != nil {
		t.Fatalf("Spawn() error = %v", err)
	}
	if proc.PID() <= 0 {
		t.Errorf("PID() = %d", proc.PID())
	}
	_ = proc.Stdin().Close()

	select {
	case <-proc.Done():
		t.Fatal("stubborn helper should ignore EOF")
	case <-time.After(100 * time.Millisecond):
	}

	if err := proc.Kill(); err != nil {
		t.Fatalf("Kill() error = %v", err)
	}
	select {
	case <-proc.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("process did not exit after kill")
	}
	if proc.ExitCode() == 0 {
		t.Error("killed process should not report exit code 0")
	}
	if err := proc.Kill(); err != nil {
		t.Errorf("Kill() after exit = %v", err)
	}
}

func TestExecSpawner_MissingBinary(t *testing.T) {
	_, err := ExecSpawner{}.Spawn(filepath.Join(t.TempDir(), "nope"), nil, "")
	if err == nil {
		t.Fatal("expected error for missing binary")
	}
}

func TestResolveExecutable(t *testing.T) {
	dir := t.TempDir()
	platformBin := filepath.Join(dir, "linux-amd64", WorkerBinary)
	if err := os.MkdirAll(filepath.Dir(platformBin), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(platformBin, []byte("#!/bin/sh\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := resolveExecutable("linux", "amd64", "", dir)
	if err != nil {
		t.Fatalf("resolveExecutable() error = %v", err)
	}
	if got != platformBin {
		t.Errorf("path = %q, want %q", got, platformBin)
	}
	if runtime.GOOS != "windows" {
		info, err := os.Stat(platformBin)
		if err != nil {
			t.Fatal(err)
		}
		if info.Mode().Perm()&0o100 == 0 {
			t.Errorf("executable bit not set: %v", info.Mode())
		}
	}

	t.Run("sibling fallback", func(t *testing.T) {
		sibling := filepath.Join(dir, WorkerBinary)
		if err := os.WriteFile(sibling, nil, 0o755); err != nil {
			t.Fatal(err)
		}
		got, err := resolveExecutable("darwin", "arm64", "", dir)
		if err != nil || got != sibling {
			t.Errorf("resolveExecutable() = %q, %v; want %q", got, err, sibling)
		}
	})

	t.Run("windows suffix", func(t *testing.T) {
		_, err := resolveExecutable("windows", "amd64", "", dir)
		if !errors.Is(err, os.ErrNotExist) {
			t.Errorf("error = %v, want not exist (no .exe present)", err)
		}
	})

	t.Run("explicit path wins", func(t *testing.T) {
		explicit := filepath.Join(dir, "custom-worker")
		got, err := resolveExecutable("linux", "amd64", explicit, dir)
		if err != nil || got != explicit {
			t.Errorf("resolveExecutable() = %q, %v", got, err)
		}
	})

	t.Run("unsupported platform", func(t *testing.T) {
		_, err := resolveExecutable("plan9", "386", "", dir)
		if !errors.Is(err, errors.ErrUnsupportedPlatform) {
			t.Errorf("error = %v, want ErrUnsupportedPlatform", err)
		}
	})
}
