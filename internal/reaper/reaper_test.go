package reaper

import (
	"syscall"
	"testing"
	"time"

	"github.com/drover-dev/drover/internal/proctab"
	"github.com/drover-dev/drover/internal/registry"
	"github.com/drover-dev/drover/pkg/models"
)

func newFixture(t *testing.T) (*Reaper, *registry.Registry, *proctab.FakeTable) {
	t.Helper()
	reg := registry.New(t.TempDir())
	table := proctab.NewFakeTable()
	return New(reg, table), reg, table
}

func confirmed(pid int) models.OrphanCandidate {
	return models.OrphanCandidate{PID: pid, Command: "claude --print x", Classification: models.Confirmed}
}

func suspected(pid int) models.OrphanCandidate {
	return models.OrphanCandidate{PID: pid, Command: "claude --print x", Classification: models.Suspected}
}

func fastOpts() Options {
	return Options{Timeout: 50 * time.Millisecond, PollInterval: 5 * time.Millisecond}
}

func TestKill_PidFloorNeverSignaled(t *testing.T) {
	r, _, table := newFixture(t)

	// Even a confirmed candidate with force must not be touched.
	for _, pid := range []int{1, 50, 100} {
		table.AddProcess(proctab.FakeProcess{Info: proctab.ProcessInfo{PID: pid, Command: "claude --print x"}})
	}

	opts := fastOpts()
	opts.Force = true
	outcome := r.Kill([]models.OrphanCandidate{confirmed(1), confirmed(50), confirmed(100)}, opts)

	if len(outcome.Skipped) != 3 {
		t.Errorf("Skipped = %v, want all three pids", outcome.Skipped)
	}
	if len(outcome.Killed) != 0 || len(outcome.Failed) != 0 {
		t.Errorf("unexpected outcome %+v", outcome)
	}
	if sigs := table.Signals(); len(sigs) != 0 {
		t.Fatalf("signals were sent to protected pids: %+v", sigs)
	}
}

func TestKill_SuspectedRequiresForce(t *testing.T) {
	r, _, table := newFixture(t)
	table.AddProcess(proctab.FakeProcess{Info: proctab.ProcessInfo{PID: 400, Command: "claude"}})

	outcome := r.Kill([]models.OrphanCandidate{suspected(400)}, fastOpts())
	if len(outcome.Skipped) != 1 || outcome.Skipped[0] != 400 {
		t.Errorf("suspected without force should be skipped, got %+v", outcome)
	}
	if len(table.Signals()) != 0 {
		t.Error("no signal may reach a suspected candidate without force")
	}

	opts := fastOpts()
	opts.Force = true
	outcome = r.Kill([]models.OrphanCandidate{suspected(400)}, opts)
	if len(outcome.Killed) != 1 {
		t.Errorf("suspected with force should be killed, got %+v", outcome)
	}
}

func TestKill_GracefulTermination(t *testing.T) {
	r, reg, table := newFixture(t)
	table.AddProcess(proctab.FakeProcess{Info: proctab.ProcessInfo{PID: 410, Command: "claude"}})
	if err := reg.Add(models.ProcessRecord{PID: 410, Command: "claude", Namespace: "ns", Status: models.ProcessRunning, OwnerPID: 1234}); err != nil {
		t.Fatal(err)
	}

	outcome := r.Kill([]models.OrphanCandidate{confirmed(410)}, fastOpts())

	if len(outcome.Killed) != 1 || outcome.Killed[0] != 410 {
		t.Fatalf("outcome = %+v, want pid 410 killed", outcome)
	}
	sigs := table.SignalsTo(410)
	if len(sigs) != 1 || sigs[0] != syscall.SIGTERM {
		t.Errorf("signals = %v, want single SIGTERM", sigs)
	}
	if _, ok := reg.Get(410); ok {
		t.Error("registry entry should be removed after confirmed death")
	}
}

func TestKill_EscalatesToSigkill(t *testing.T) {
	r, _, table := newFixture(t)
	table.AddProcess(proctab.FakeProcess{
		Info:          proctab.ProcessInfo{PID: 420, Command: "claude"},
		IgnoreSigterm: true,
	})

	opts := fastOpts()
	start := time.Now()
	outcome := r.Kill([]models.OrphanCandidate{confirmed(420)}, opts)
	elapsed := time.Since(start)

	if len(outcome.Killed) != 1 {
		t.Fatalf("outcome = %+v, want killed", outcome)
	}
	sigs := table.SignalsTo(420)
	if len(sigs) != 2 || sigs[0] != syscall.SIGTERM || sigs[1] != syscall.SIGKILL {
		t.Fatalf("signals = %v, want SIGTERM then SIGKILL", sigs)
	}

	// SIGKILL lands no earlier than the timeout and not much later than
	// timeout plus one poll interval.
	if elapsed < opts.Timeout {
		t.Errorf("escalated after %v, before the %v graceful window", elapsed, opts.Timeout)
	}
	if elapsed > opts.Timeout+10*opts.PollInterval {
		t.Errorf("escalation took %v, too long past the %v window", elapsed, opts.Timeout)
	}
}

func TestKill_AlreadyGoneIsSuccess(t *testing.T) {
	r, reg, table := newFixture(t)
	_ = table // pid 430 never added: already gone
	if err := reg.Add(models.ProcessRecord{PID: 430, Command: "claude", Namespace: "ns", Status: models.ProcessRunning, OwnerPID: 1}); err != nil {
		t.Fatal(err)
	}

	outcome := r.Kill([]models.OrphanCandidate{confirmed(430)}, fastOpts())
	if len(outcome.Killed) != 1 || outcome.Killed[0] != 430 {
		t.Errorf("already-dead pid should count as killed, got %+v", outcome)
	}
	if len(table.Signals()) != 0 {
		t.Error("no signal should be sent to an already-dead pid")
	}
	if _, ok := reg.Get(430); ok {
		t.Error("stale registry entry should be removed")
	}

	// Idempotence: killing again leaves the same end state.
	outcome = r.Kill([]models.OrphanCandidate{confirmed(430)}, fastOpts())
	if len(outcome.Killed) != 1 {
		t.Errorf("second kill of dead pid should still succeed, got %+v", outcome)
	}
}

func TestKill_DryRunSendsNothing(t *testing.T) {
	r, reg, table := newFixture(t)
	table.AddProcess(proctab.FakeProcess{Info: proctab.ProcessInfo{PID: 440, Command: "claude"}})
	if err := reg.Add(models.ProcessRecord{PID: 440, Command: "claude", Namespace: "ns", Status: models.ProcessRunning, OwnerPID: 1}); err != nil {
		t.Fatal(err)
	}

	opts := fastOpts()
	opts.DryRun = true
	outcome := r.Kill([]models.OrphanCandidate{confirmed(440)}, opts)

	if len(outcome.Killed) != 1 {
		t.Errorf("dry run should report the pid as killed, got %+v", outcome)
	}
	if len(table.Signals()) != 0 {
		t.Fatalf("dry run must not signal: %+v", table.Signals())
	}
	if !table.Alive(440) {
		t.Error("process must survive a dry run")
	}
	if _, ok := reg.Get(440); !ok {
		t.Error("dry run must not mutate the registry")
	}
}

func TestKill_PermissionDeniedIsHardFailure(t *testing.T) {
	r, _, table := newFixture(t)
	table.AddProcess(proctab.FakeProcess{
		Info:      proctab.ProcessInfo{PID: 450, Command: "claude"},
		SignalErr: syscall.EPERM,
	})
	table.AddProcess(proctab.FakeProcess{Info: proctab.ProcessInfo{PID: 451, Command: "claude"}})

	// Batch continues past the failure.
	outcome := r.Kill([]models.OrphanCandidate{confirmed(450), confirmed(451)}, fastOpts())

	if len(outcome.Failed) != 1 || outcome.Failed[0].PID != 450 {
		t.Errorf("Failed = %+v, want pid 450", outcome.Failed)
	}
	if len(outcome.Killed) != 1 || outcome.Killed[0] != 451 {
		t.Errorf("Killed = %+v, want pid 451", outcome.Killed)
	}
}

func TestKill_SurvivesSigkillIsHardFailure(t *testing.T) {
	r, _, table := newFixture(t)
	table.AddProcess(proctab.FakeProcess{
		Info:          proctab.ProcessInfo{PID: 460, Command: "claude"},
		IgnoreSigterm: true,
		Unkillable:    true,
	})

	outcome := r.Kill([]models.OrphanCandidate{confirmed(460)}, fastOpts())
	if len(outcome.Failed) != 1 || outcome.Failed[0].PID != 460 {
		t.Errorf("unkillable process should be a hard failure, got %+v", outcome)
	}
}
