package ratelimit

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/quizarena/go/internal/clock"
)

func newTestLimiter() (*Limiter, *clockwork.FakeClock) {
	fc := clockwork.NewFakeClock()
	return New(clock.New(fc, 1)), fc
}

func TestAllowsExactlyMaxPerWindow(t *testing.T) {
	l, _ := newTestLimiter()
	rule := Rule{Window: time.Second, Max: 3}

	for i := 1; i <= 3; i++ {
		if !l.Allow("conn-1", rule) {
			t.Fatalf("call %d denied, want allowed", i)
		}
	}
	if l.Allow("conn-1", rule) {
		t.Fatalf("call 4 allowed, want denied")
	}
	if l.Allow("conn-1", rule) {
		t.Fatalf("call 5 allowed, want denied")
	}
}

func TestKeysAreIndependent(t *testing.T) {
	l, _ := newTestLimiter()
	rule := Rule{Window: time.Second, Max: 1}

	if !l.Allow("a", rule) || !l.Allow("b", rule) {
		t.Fatalf("first call per key must be allowed")
	}
	if l.Allow("a", rule) {
		t.Fatalf("second call for a allowed")
	}
}

func TestWindowExpiryResetsCount(t *testing.T) {
	l, fc := newTestLimiter()
	rule := Rule{Window: time.Second, Max: 2}

	l.Allow("k", rule)
	l.Allow("k", rule)
	if l.Allow("k", rule) {
		t.Fatalf("third call allowed inside window")
	}

	fc.Advance(time.Second)
	for i := 1; i <= 2; i++ {
		if !l.Allow("k", rule) {
			t.Fatalf("call %d in new window denied", i)
		}
	}
	if l.Allow("k", rule) {
		t.Fatalf("third call in new window allowed")
	}
}

func TestScaledWindow(t *testing.T) {
	fc := clockwork.NewFakeClock()
	l := New(clock.New(fc, 0.1))
	rule := Rule{Window: 10 * time.Second, Max: 1}

	l.Allow("k", rule)
	fc.Advance(999 * time.Millisecond)
	if l.Allow("k", rule) {
		t.Fatalf("allowed before scaled window elapsed")
	}
	fc.Advance(time.Millisecond)
	if !l.Allow("k", rule) {
		t.Fatalf("denied after scaled window elapsed")
	}
}

func TestZeroMaxNeverAllows(t *testing.T) {
	l, _ := newTestLimiter()
	if l.Allow("k", Rule{Window: time.Second}) {
		t.Fatalf("rule with Max 0 allowed a call")
	}
}

func TestSweepRemovesStaleBuckets(t *testing.T) {
	l, fc := newTestLimiter()
	rule := Rule{Window: time.Second, Max: 5}

	l.Allow("old", rule)
	fc.Advance(1500 * time.Millisecond)
	l.Allow("fresh", rule)

	if n := l.Sweep(); n != 0 {
		t.Fatalf("swept %d buckets before 2x window, want 0", n)
	}

	fc.Advance(600 * time.Millisecond)
	if n := l.Sweep(); n != 1 {
		t.Fatalf("swept %d buckets, want 1", n)
	}
	if l.Len() != 1 {
		t.Fatalf("remaining buckets=%d, want 1", l.Len())
	}
}
