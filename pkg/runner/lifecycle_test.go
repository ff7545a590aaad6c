package runner

import (
	"testing"
	"time"
)

type drainFunc func() error

func (d drainFunc) Drain() error { return d() }

func TestLifecycleRunsHooksAndDrains(t *testing.T) {
	started := false
	stopped := false
	drained := make(chan struct{})

	lc := NewLifecycleRunner(drainFunc(func() error {
		close(drained)
		return nil
	}), Hooks{
		OnStart: func() { started = true },
		OnStop:  func() { stopped = true },
	}, time.Second)

	done := make(chan error, 1)
	go func() { done <- lc.Run(nil) }()

	deadline := time.After(2 * time.Second)
	for lc.State() != StateRunning {
		select {
		case <-deadline:
			t.Fatalf("runner never reached running state")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}

	if err := lc.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	select {
	case <-drained:
	case <-time.After(time.Second):
		t.Fatalf("drainer not invoked")
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("run did not return")
	}
	if !started || !stopped {
		t.Fatalf("hooks not invoked: start=%v stop=%v", started, stopped)
	}
	if lc.State() != StateStopped {
		t.Fatalf("state = %d", lc.State())
	}
}

func TestLifecycleDrainTimeout(t *testing.T) {
	lc := NewLifecycleRunner(drainFunc(func() error {
		time.Sleep(time.Second)
		return nil
	}), Hooks{}, 10*time.Millisecond)

	go func() { _ = lc.Run(nil) }()
	time.Sleep(20 * time.Millisecond)
	err := lc.Stop()
	if err == nil || err.Error() != "drain timeout" {
		t.Fatalf("expected drain timeout, got %v", err)
	}
}

func TestLifecycleRejectsDoubleRun(t *testing.T) {
	lc := NewLifecycleRunner(nil, Hooks{}, time.Second)
	go func() { _ = lc.Run(nil) }()
	time.Sleep(20 * time.Millisecond)
	if err := lc.Run(nil); err == nil {
		t.Fatalf("expected invalid state transition")
	}
	_ = lc.Stop()
}
