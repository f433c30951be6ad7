package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestNewDefaultsNonPositiveRate(t *testing.T) {
	l := New(0)
	if !l.Allow() {
		t.Fatal("first request should be allowed")
	}
	if l.Allow() {
		t.Error("second immediate request should be throttled at 1 rps")
	}
}

func TestBurstMatchesRate(t *testing.T) {
	l := New(5)
	for i := 0; i < 5; i++ {
		if !l.Allow() {
			t.Fatalf("request %d should fit in the burst", i)
		}
	}
	if l.Allow() {
		t.Error("request beyond burst should be throttled")
	}
}

func TestWaitHonorsContext(t *testing.T) {
	l := New(0.5)
	if err := l.Wait(context.Background()); err != nil {
		t.Fatalf("first wait: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx); err == nil {
		t.Error("expected error when the deadline is shorter than the refill")
	}
}
