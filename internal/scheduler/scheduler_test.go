package scheduler

import (
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"synnergy-bootstrap/internal/accesslist"
	"synnergy-bootstrap/internal/bootstraperr"
	"synnergy-bootstrap/internal/testutil"
)

func TestConcurrencyCapRefusesBeyondMax(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	var admitted int32
	var refused int32
	release := make(chan struct{})

	sched := New(Config{
		Listener:        ln,
		MaxSimultaneous: 2,
		Runner: func(conn net.Conn) string {
			atomic.AddInt32(&admitted, 1)
			<-release
			conn.Close()
			return "completed"
		},
		Refuse: func(conn net.Conn, text string) {
			atomic.AddInt32(&refused, 1)
			conn.Close()
		},
	})

	go sched.Run()
	defer func() {
		close(release)
		sched.Stop()
		sched.Wait()
	}()

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn, err := net.Dial("tcp", ln.Addr().String())
			if err == nil {
				defer conn.Close()
				conn.SetReadDeadline(time.Now().Add(time.Second))
				buf := make([]byte, 1)
				conn.Read(buf)
			}
		}()
	}
	wg.Wait()
	time.Sleep(200 * time.Millisecond)

	if got := atomic.LoadInt32(&admitted); got != 2 {
		t.Fatalf("expected exactly 2 admitted sessions, got %d", got)
	}
	if got := atomic.LoadInt32(&refused); got != 1 {
		t.Fatalf("expected exactly 1 refusal, got %d", got)
	}
}

func TestBlacklistRefusesBeforeCapacityCheck(t *testing.T) {
	sb, err := testutil.NewSandbox()
	if err != nil {
		t.Fatalf("sandbox: %v", err)
	}
	defer sb.Cleanup()
	if err := sb.WriteFile("blacklist", []byte("127.0.0.1/32\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	list := accesslist.New("", sb.Path("blacklist"), nil)
	if err := list.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}

	var refusedReason string
	var mu sync.Mutex
	done := make(chan struct{})
	var runnerCalled int32

	sched := New(Config{
		Listener:        ln,
		AccessList:      list,
		// No free slot: a cap check run first would refuse with
		// ErrNoSlotsAvailable instead of ErrBlacklisted.
		MaxSimultaneous: 0,
		Runner: func(conn net.Conn) string {
			atomic.AddInt32(&runnerCalled, 1)
			conn.Close()
			return "completed"
		},
		Refuse: func(conn net.Conn, text string) {
			mu.Lock()
			refusedReason = text
			mu.Unlock()
			conn.Close()
			close(done)
		},
	})

	go sched.Run()
	defer func() {
		sched.Stop()
		sched.Wait()
	}()

	conn, derr := net.Dial("tcp", ln.Addr().String())
	if derr != nil {
		t.Fatalf("dial: %v", derr)
	}
	defer conn.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected the blacklisted connection to be refused")
	}

	mu.Lock()
	reason := refusedReason
	mu.Unlock()
	if want := bootstraperr.ErrBlacklisted.Error(); reason != want {
		t.Fatalf("expected refusal reason %q, got %q", want, reason)
	}
	if atomic.LoadInt32(&runnerCalled) != 0 {
		t.Fatal("expected the session runner never to be invoked for a blacklisted peer")
	}
}
