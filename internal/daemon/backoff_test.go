package daemon

import (
	"testing"
	"time"
)

func TestBackoffDoublesToCap(t *testing.T) {
	bo := newBackoff(30*time.Second, 600*time.Second, 1)

	want := []time.Duration{
		30 * time.Second,
		60 * time.Second,
		120 * time.Second,
		240 * time.Second,
		480 * time.Second,
		600 * time.Second,
		600 * time.Second,
	}
	for i, expected := range want {
		got := bo.observeFailure()
		if got != expected {
			t.Fatalf("failure %d: expected %v, got %v", i+1, expected, got)
		}
	}
}

func TestBackoffResetsOnSuccess(t *testing.T) {
	bo := newBackoff(30*time.Second, 600*time.Second, 1)

	for i := 0; i < 4; i++ {
		bo.observeFailure()
	}
	bo.observeSuccess()

	if got := bo.observeFailure(); got != 30*time.Second {
		t.Fatalf("expected reset to base, got %v", got)
	}
}

func TestBackoffThresholdGatesDelay(t *testing.T) {
	bo := newBackoff(30*time.Second, 600*time.Second, 3)

	if got := bo.observeFailure(); got != 0 {
		t.Fatalf("failure below threshold must not sleep, got %v", got)
	}
	if got := bo.observeFailure(); got != 0 {
		t.Fatalf("failure below threshold must not sleep, got %v", got)
	}
	if got := bo.observeFailure(); got != 30*time.Second {
		t.Fatalf("threshold breach must sleep base, got %v", got)
	}
	// Counter resets after a breach; the next breach takes three more
	// failures and sleeps the doubled delay.
	bo.observeFailure()
	bo.observeFailure()
	if got := bo.observeFailure(); got != 60*time.Second {
		t.Fatalf("second breach must double, got %v", got)
	}
}

func TestBackoffClampsDegenerateBounds(t *testing.T) {
	bo := newBackoff(0, 0, 0)
	if bo.base <= 0 || bo.max < bo.base || bo.threshold != 1 {
		t.Fatalf("expected clamped bounds, got %+v", bo)
	}
}
