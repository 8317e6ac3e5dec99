// Package ratewindow implements the session scheduler's per-IP cool-down
// (spec §3.4, §4.5): a bounded "last successful attempt" map with
// opportunistic pruning, expressed as one golang.org/x/time/rate.Limiter per
// IP (burst 1, refilling once per per_ip_min_interval) so the remaining
// cool-down is exactly the limiter's own reservation delay.
//
// Grounded on core/network.go's replicatedMu-guarded map idiom for the
// bounded-map shape; generalized here to a single-writer map (spec §5: "IP-history map:
// single-writer, the scheduler thread; no other thread touches it") guarded
// by a plain mutex, since every access here already comes from the
// scheduler goroutine.
package ratewindow

import (
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Window tracks a per-IP rate.Limiter enforcing at most one admission per
// interval, and prunes opportunistically (spec §4.5, P7).
type Window struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	touched  map[string]time.Time
	interval time.Duration
	maxSize  int
	log      logrus.FieldLogger
}

// New returns a Window enforcing interval between successes from one IP,
// pruning opportunistically once the table exceeds maxSize entries.
func New(interval time.Duration, maxSize int, log logrus.FieldLogger) *Window {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Window{
		limiters: make(map[string]*rate.Limiter),
		touched:  make(map[string]time.Time),
		interval: interval,
		maxSize:  maxSize,
		log:      log,
	}
}

// Allow reports whether ip may proceed at now. If allowed, it consumes the
// IP's token. If denied, it returns the remaining cool-down and leaves the
// limiter's state untouched (the reservation is cancelled).
func (w *Window) Allow(ip net.IP, now time.Time) (ok bool, remaining time.Duration) {
	key := ip.String()

	w.mu.Lock()
	defer w.mu.Unlock()

	lim, seen := w.limiters[key]
	if !seen {
		lim = rate.NewLimiter(rate.Every(w.interval), 1)
		w.limiters[key] = lim
	}

	res := lim.ReserveN(now, 1)
	if !res.OK() {
		return false, w.interval
	}
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return false, delay
	}

	w.touched[key] = now
	w.prune(now)
	return true, 0
}

// prune drops stale entries once the table grows past maxSize (spec §4.5:
// "retaining only entries within one interval; if still oversized, it is
// cleared entirely and a warning is logged"). Caller holds w.mu.
func (w *Window) prune(now time.Time) {
	if w.maxSize <= 0 || len(w.limiters) <= w.maxSize {
		return
	}
	for k, t := range w.touched {
		if now.Sub(t) > w.interval {
			delete(w.touched, k)
			delete(w.limiters, k)
		}
	}
	if len(w.limiters) > w.maxSize {
		w.log.Warnf("ratewindow: IP history still oversized (%d entries) after pruning, clearing entirely", len(w.limiters))
		w.limiters = make(map[string]*rate.Limiter)
		w.touched = make(map[string]time.Time)
	}
}
