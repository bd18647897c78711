package runner

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

func TestSystem_Run_exitCodeAndOutput(t *testing.T) {
	s := NewSystem()
	result, err := s.Run(context.Background(), Invocation{
		WorkDir: t.TempDir(),
		Entry:   "sh",
		Args:    []string{"-c", "echo out; echo err >&2; exit 3"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.ExitCode != 3 {
		t.Fatalf("ExitCode = %d, want 3", result.ExitCode)
	}
	if result.Stdout != "out\n" {
		t.Fatalf("Stdout = %q, want %q", result.Stdout, "out\n")
	}
	if result.Stderr != "err\n" {
		t.Fatalf("Stderr = %q, want %q", result.Stderr, "err\n")
	}
}

func TestSystem_Run_passFilenames(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a"), 0o644); err != nil {
		t.Fatal(err)
	}
	s := NewSystem()
	result, err := s.Run(context.Background(), Invocation{
		WorkDir:       dir,
		Entry:         "sh",
		Args:          []string{"-c", `printf '%s' "$@"`, "--"},
		Files:         []string{"a.txt"},
		PassFilenames: true,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Stdout != "a.txt" {
		t.Fatalf("Stdout = %q, want %q", result.Stdout, "a.txt")
	}
}

func TestSystem_Run_envLayeredAfterInherit(t *testing.T) {
	t.Setenv("HOOKWAVE_TEST_BASE", "from-process")
	s := NewSystem()
	result, err := s.Run(context.Background(), Invocation{
		WorkDir: t.TempDir(),
		Entry:   "sh",
		Args:    []string{"-c", "printf '%s/%s' \"$HOOKWAVE_TEST_BASE\" \"$HOOKWAVE_TEST_OVERRIDE\""},
		Env:     map[string]string{"HOOKWAVE_TEST_BASE": "from-hook", "HOOKWAVE_TEST_OVERRIDE": "set"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Stdout != "from-hook/set" {
		t.Fatalf("Stdout = %q, want %q (hook env must override inherited env)", result.Stdout, "from-hook/set")
	}
}

func TestSystem_Run_diffMutatedDetected(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("before"), 0o644); err != nil {
		t.Fatal(err)
	}
	s := NewSystem()
	result, err := s.Run(context.Background(), Invocation{
		WorkDir: dir,
		Entry:   "sh",
		Args:    []string{"-c", "printf 'after' > a.txt"},
		Files:   []string{"a.txt"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.DiffMutated {
		t.Fatal("expected DiffMutated=true after rewriting a.txt")
	}
}

func TestSystem_Run_cancellationSendsSIGINTBeforeKill(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("SIGINT trap semantics are unix-specific")
	}
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	s := NewSystem()
	result, err := s.Run(ctx, Invocation{
		WorkDir: t.TempDir(),
		Entry:   "sh",
		Args:    []string{"-c", "trap 'exit 7' INT; sleep 5"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.ExitCode != 7 {
		t.Fatalf("ExitCode = %d, want 7 (process should exit via its own SIGINT trap, not be killed outright)", result.ExitCode)
	}
}

func TestSystem_Run_diffNotMutatedWhenUnchanged(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("same"), 0o644); err != nil {
		t.Fatal(err)
	}
	s := NewSystem()
	result, err := s.Run(context.Background(), Invocation{
		WorkDir: dir,
		Entry:   "sh",
		Args:    []string{"-c", "cat a.txt > /dev/null"},
		Files:   []string{"a.txt"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.DiffMutated {
		t.Fatal("expected DiffMutated=false when file content unchanged")
	}
}
