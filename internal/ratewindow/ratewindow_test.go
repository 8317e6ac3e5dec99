package ratewindow

import (
	"net"
	"testing"
	"time"
)

func TestAllowEnforcesMinimumInterval(t *testing.T) {
	w := New(time.Minute, 100, nil)
	ip := net.ParseIP("10.1.2.3")
	now := time.Now()

	ok, _ := w.Allow(ip, now)
	if !ok {
		t.Fatal("expected first attempt to be allowed")
	}

	ok, remaining := w.Allow(ip, now.Add(30*time.Second))
	if ok {
		t.Fatal("expected second attempt within the interval to be denied")
	}
	if remaining <= 0 || remaining > time.Minute {
		t.Fatalf("expected a positive remaining cool-down under a minute, got %v", remaining)
	}

	ok, _ = w.Allow(ip, now.Add(time.Minute+time.Second))
	if !ok {
		t.Fatal("expected attempt after the interval elapsed to be allowed")
	}
}

func TestAllowTracksIndependentIPs(t *testing.T) {
	w := New(time.Minute, 100, nil)
	now := time.Now()

	ok, _ := w.Allow(net.ParseIP("10.0.0.1"), now)
	if !ok {
		t.Fatal("expected first IP's first attempt to be allowed")
	}
	ok, _ = w.Allow(net.ParseIP("10.0.0.2"), now)
	if !ok {
		t.Fatal("expected a distinct IP's first attempt to be allowed regardless of the first IP's state")
	}
}

func TestPruneClearsOversizedTable(t *testing.T) {
	w := New(time.Millisecond, 2, nil)
	now := time.Now()

	w.Allow(net.ParseIP("10.0.0.1"), now)
	w.Allow(net.ParseIP("10.0.0.2"), now)
	later := now.Add(time.Hour)
	w.Allow(net.ParseIP("10.0.0.3"), later)

	if len(w.limiters) > 2 {
		t.Fatalf("expected pruning to bound the table near maxSize, got %d entries", len(w.limiters))
	}
}
