// Package scheduler implements the session scheduler (C5, spec §4.5): the
// accept → admit → rate-limit → spawn-session loop, a bounded concurrency
// cap, and cooperative stop signaling.
//
// Grounded on core/bootstrap_node.go's Start/Stop mutex-guarded lifecycle
// and core/replication.go's readLoop+wg.Wait() goroutine bookkeeping: one
// acceptor loop, one worker goroutine per connection, a WaitGroup joined on
// shutdown.
package scheduler

import (
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"synnergy-bootstrap/internal/accesslist"
	"synnergy-bootstrap/internal/bootstraperr"
	"synnergy-bootstrap/internal/metrics"
	"synnergy-bootstrap/internal/ratewindow"
)

// SessionFunc runs one bootstrap session end to end. It is invoked in its
// own goroutine with the freshly accepted connection, and returns a short
// terminal-result label (e.g. "finished", "slot_too_old", "fatal") that the
// scheduler feeds straight into the sessions_total{result=...} counter.
type SessionFunc func(conn net.Conn) string

// RefuseFunc sends a best-effort BootstrapError frame carrying text and
// closes conn (spec P5: "exactly one BootstrapError frame is written before
// close"). Callers wire this to internal/server's CloseAndSendError, kept
// out of this package to avoid coupling the scheduler to the frame codec's
// identity/handshake state.
type RefuseFunc func(conn net.Conn, text string)

// Scheduler owns an acceptor goroutine and a bounded pool of session
// goroutines (spec §5: "one thread accepts connections... per session, one
// worker thread runs C6").
type Scheduler struct {
	listener   net.Listener
	accounts   *accesslist.List
	window     *ratewindow.Window
	metrics    *metrics.Registry
	runner     SessionFunc
	refuseConn RefuseFunc
	log        logrus.FieldLogger

	maxSimultaneous int
	cap             chan struct{}

	stop chan struct{}
	wg   sync.WaitGroup
}

// Config bundles the scheduler's construction-time dependencies.
type Config struct {
	Listener        net.Listener
	AccessList      *accesslist.List
	RateWindow      *ratewindow.Window
	Metrics         *metrics.Registry
	MaxSimultaneous int
	Runner          SessionFunc
	Refuse          RefuseFunc
	Log             logrus.FieldLogger
}

// New constructs a Scheduler. Call Run to start accepting.
func New(cfg Config) *Scheduler {
	log := cfg.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Scheduler{
		listener:        cfg.Listener,
		accounts:        cfg.AccessList,
		window:          cfg.RateWindow,
		metrics:         cfg.Metrics,
		runner:          cfg.Runner,
		refuseConn:      cfg.Refuse,
		log:             log,
		maxSimultaneous: cfg.MaxSimultaneous,
		cap:             make(chan struct{}, cfg.MaxSimultaneous),
		stop:            make(chan struct{}),
	}
}

// Run accepts connections until Stop is called. It blocks; callers typically
// invoke it in its own goroutine. Run itself does not start the access-list
// updater — the caller owns that lifecycle so a single stop channel can
// join both (spec §4.4 "joins the access-list updater" is the manager's job,
// not the scheduler's).
func (s *Scheduler) Run() {
	type acceptResult struct {
		conn net.Conn
		err  error
	}
	accepted := make(chan acceptResult)

	go func() {
		for {
			conn, err := s.listener.Accept()
			select {
			case accepted <- acceptResult{conn, err}:
			case <-s.stop:
				if conn != nil {
					conn.Close()
				}
				return
			}
			if err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-s.stop:
			return
		case res := <-accepted:
			if res.err != nil {
				s.log.WithError(res.err).Warn("scheduler: accept failed")
				continue
			}
			s.admitAndSpawn(res.conn)
		}
	}
}

// Stop breaks the acceptor out of its loop without draining the accept
// queue. In-flight sessions are allowed to run to completion (spec §4.5).
// Closing the listener is what actually unblocks a pending Accept call; the
// stop channel alone only stops the dispatch loop from handing off any
// connection that manages to land after it.
func (s *Scheduler) Stop() {
	close(s.stop)
	s.listener.Close()
}

// Wait blocks until every spawned session worker has returned (spec P8:
// "after the manager's stop call returns, no thread spawned by the
// scheduler is still live").
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// admitAndSpawn runs the deny → cap → rate ordering guarantee (spec §4.5)
// and spawns a session worker on success.
func (s *Scheduler) admitAndSpawn(conn net.Conn) {
	host := remoteIP(conn)

	if s.accounts != nil {
		switch s.accounts.Check(host) {
		case accesslist.DenyBlacklisted:
			s.refuse(conn, host, bootstraperr.ErrBlacklisted.Error(), metrics.AdmissionDeniedBlacklisted)
			return
		case accesslist.DenyNotWhitelisted:
			s.refuse(conn, host, bootstraperr.ErrNotWhitelisted.Error(), metrics.AdmissionDeniedNotAllowed)
			return
		}
	}

	select {
	case s.cap <- struct{}{}:
	default:
		s.refuse(conn, host, bootstraperr.ErrNoSlotsAvailable.Error(), metrics.AdmissionDeniedAtCapacity)
		return
	}

	if s.window != nil {
		if ok, remaining := s.window.Allow(host, time.Now()); !ok {
			<-s.cap
			s.refuse(conn, host, (&bootstraperr.TooSoon{Remaining: remaining}).Error(), metrics.AdmissionDeniedRateLimited)
			return
		}
	}

	if s.metrics != nil {
		s.metrics.Admission(metrics.AdmissionAllowed)
		s.metrics.SessionStarted()
	}

	s.wg.Add(1)
	go func() {
		result := "panicked"
		defer s.wg.Done()
		defer func() {
			<-s.cap
			if s.metrics != nil {
				s.metrics.SessionEnded(result)
			}
			if r := recover(); r != nil {
				s.log.WithField("panic", r).Error("scheduler: session worker panicked, recovered")
			}
		}()
		result = s.runner(conn)
	}()
}

func (s *Scheduler) refuse(conn net.Conn, host net.IP, reason string, outcome metrics.AdmissionOutcome) {
	if s.metrics != nil {
		s.metrics.Admission(outcome)
	}
	s.log.WithField("remote_ip", host.String()).WithField("reason", reason).Debug("scheduler: refusing connection")
	if s.refuseConn != nil {
		s.refuseConn(conn, reason)
		return
	}
	conn.Close()
}

func remoteIP(conn net.Conn) net.IP {
	addr, ok := conn.RemoteAddr().(*net.TCPAddr)
	if !ok {
		return net.IPv4zero
	}
	return addr.IP
}
