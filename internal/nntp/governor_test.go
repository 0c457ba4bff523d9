package nntp

import (
	"context"
	"testing"
	"time"
)

func TestGovernor_CeilingEnforced(t *testing.T) {
	// 100 KB/s ceiling, 5 sequential 50 KB throttles = 250 KB. With a one
	// second burst allowance the remaining 150 KB must take at least 1.5s.
	g := NewGovernor(100 * 1024)

	start := time.Now()
	for i := 0; i < 5; i++ {
		if err := g.Throttle(context.Background(), 50*1024); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	elapsed := time.Since(start)

	if min := 1200 * time.Millisecond; elapsed < min {
		t.Errorf("5x50KB at 100KB/s finished in %v, want at least %v", elapsed, min)
	}
}

func TestGovernor_Unlimited(t *testing.T) {
	g := NewGovernor(0)
	start := time.Now()
	if err := g.Throttle(context.Background(), 100*1024*1024); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("unlimited governor slept %v", elapsed)
	}
}

func TestGovernor_LargerThanBurst(t *testing.T) {
	// Requests above one second of budget are split, not rejected.
	g := NewGovernor(64 * 1024)
	start := time.Now()
	if err := g.Throttle(context.Background(), 128*1024); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 900*time.Millisecond {
		t.Errorf("128KB at 64KB/s finished in %v, want around 1s", elapsed)
	}
}

func TestGovernor_Cancellation(t *testing.T) {
	g := NewGovernor(1024)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := g.Throttle(ctx, 10*1024*1024); err == nil {
		t.Errorf("expected context error for oversized throttle")
	}
}
