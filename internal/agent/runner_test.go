//go:build !windows

package agent

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestRunner_StartWaitAndLog(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "agent.log")
	r := NewRunner(RunOptions{
		CLI:       "sh",
		Args:      []string{"-c"},
		Namespace: "testns01",
		LogPath:   logPath,
	})

	if err := r.Start(context.Background(), "echo hello from agent"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if r.PID() <= 0 {
		t.Error("PID should be positive after Start")
	}
	if err := r.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	out, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(out), "hello from agent") {
		t.Errorf("log missing agent output: %q", out)
	}
}

func TestRunner_StartTwiceFails(t *testing.T) {
	r := NewRunner(RunOptions{CLI: "sh", Args: []string{"-c"}})
	if err := r.Start(context.Background(), "true"); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = r.Wait() }()

	if err := r.Start(context.Background(), "true"); err == nil {
		t.Error("second Start should fail")
	}
}

func TestRunner_StopTerminatesProcess(t *testing.T) {
	r := NewRunner(RunOptions{CLI: "sh", Args: []string{"-c"}})
	if err := r.Start(context.Background(), "sleep 30"); err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	if err := r.Stop(100 * time.Millisecond); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Stop took %v, should be bounded", elapsed)
	}

	select {
	case <-r.Done():
	case <-time.After(time.Second):
		t.Error("process should be gone after Stop")
	}
}

func TestRunner_StopBeforeStartIsNoOp(t *testing.T) {
	r := NewRunner(RunOptions{CLI: "sh"})
	if err := r.Stop(time.Millisecond); err != nil {
		t.Errorf("Stop before Start: %v", err)
	}
}

func TestRunner_LineageMarkerInEnvironment(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "env.log")
	r := NewRunner(RunOptions{
		CLI:       "sh",
		Args:      []string{"-c"},
		Namespace: "ns-lineage",
		LogPath:   logPath,
	})
	if err := r.Start(context.Background(), "echo $DROVER_SESSION"); err != nil {
		t.Fatal(err)
	}
	if err := r.Wait(); err != nil {
		t.Fatal(err)
	}

	out, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(out), "ns-lineage") {
		t.Errorf("lineage marker not present in child env, log: %q", out)
	}
}
