// Package accesslist implements the shared allow/deny CIDR list (spec §4.4,
// C4): an immutable snapshot swapped in by a background updater that polls
// cache_duration and reacts to file-change notifications.
//
// Grounded on core/network.go's replicatedMessages/replicatedMu pattern: a
// pointer held behind a reader-preferring RWMutex, replaced wholesale under
// the write lock rather than mutated in place, plus pkg/config's viper-based
// file loading for how the teacher reads operator-supplied config off disk.
package accesslist

import (
	"bufio"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"synnergy-bootstrap/internal/bootstraperr"
)

// Decision is the outcome of a Check.
type Decision int

const (
	Allow Decision = iota
	DenyBlacklisted
	DenyNotWhitelisted
)

type snapshot struct {
	whitelist []*net.IPNet
	blacklist []*net.IPNet
}

// List is the process-wide allow/deny list (spec §3.4). Readers take Check
// without blocking the updater for longer than a pointer read.
type List struct {
	mu  sync.RWMutex
	cur *snapshot

	whitelistPath string
	blacklistPath string
	log           logrus.FieldLogger

	whitelistMtime time.Time
	blacklistMtime time.Time
}

// New constructs a List with an empty initial snapshot. Call Load once
// before starting the updater to populate it from disk.
func New(whitelistPath, blacklistPath string, log logrus.FieldLogger) *List {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &List{
		cur:           &snapshot{},
		whitelistPath: whitelistPath,
		blacklistPath: blacklistPath,
		log:           log,
	}
}

// Check applies the policy in spec §4.4: blacklist wins, then an empty
// whitelist allows everything, then whitelist membership decides.
func (l *List) Check(ip net.IP) Decision {
	l.mu.RLock()
	snap := l.cur
	l.mu.RUnlock()

	for _, n := range snap.blacklist {
		if n.Contains(ip) {
			return DenyBlacklisted
		}
	}
	if len(snap.whitelist) == 0 {
		return Allow
	}
	for _, n := range snap.whitelist {
		if n.Contains(ip) {
			return Allow
		}
	}
	return DenyNotWhitelisted
}

// Load re-reads both files unconditionally and swaps the snapshot.
func (l *List) Load() error {
	whitelist, wMtime, err := readCIDRFile(l.whitelistPath)
	if err != nil {
		return bootstraperr.Wrap(err, "read whitelist")
	}
	blacklist, bMtime, err := readCIDRFile(l.blacklistPath)
	if err != nil {
		return bootstraperr.Wrap(err, "read blacklist")
	}

	l.mu.Lock()
	l.cur = &snapshot{whitelist: whitelist, blacklist: blacklist}
	l.whitelistMtime = wMtime
	l.blacklistMtime = bMtime
	l.mu.Unlock()
	return nil
}

// reloadIfChanged re-reads only the files whose mtime advanced since the
// last Load, matching spec §4.4's "re-reads both files if their mtimes
// changed."
func (l *List) reloadIfChanged() {
	l.mu.RLock()
	wMtime, bMtime := l.whitelistMtime, l.blacklistMtime
	snap := l.cur
	l.mu.RUnlock()

	wChanged, wNewMtime := fileChanged(l.whitelistPath, wMtime)
	bChanged, bNewMtime := fileChanged(l.blacklistPath, bMtime)
	if !wChanged && !bChanged {
		return
	}

	whitelist := snap.whitelist
	blacklist := snap.blacklist
	if wChanged {
		parsed, _, err := readCIDRFile(l.whitelistPath)
		if err != nil {
			l.log.WithError(err).Warn("accesslist: failed to reload whitelist")
		} else {
			whitelist = parsed
		}
	}
	if bChanged {
		parsed, _, err := readCIDRFile(l.blacklistPath)
		if err != nil {
			l.log.WithError(err).Warn("accesslist: failed to reload blacklist")
		} else {
			blacklist = parsed
		}
	}

	l.mu.Lock()
	l.cur = &snapshot{whitelist: whitelist, blacklist: blacklist}
	if wChanged {
		l.whitelistMtime = wNewMtime
	}
	if bChanged {
		l.blacklistMtime = bNewMtime
	}
	l.mu.Unlock()
}

func fileChanged(path string, known time.Time) (bool, time.Time) {
	if path == "" {
		return false, known
	}
	info, err := os.Stat(path)
	if err != nil {
		return false, known
	}
	if info.ModTime().After(known) {
		return true, info.ModTime()
	}
	return false, known
}

func readCIDRFile(path string) ([]*net.IPNet, time.Time, error) {
	if path == "" {
		return nil, time.Time{}, nil
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, time.Time{}, nil
		}
		return nil, time.Time{}, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, time.Time{}, err
	}
	defer f.Close()

	var nets []*net.IPNet
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !strings.Contains(line, "/") {
			line += "/32"
			if strings.Contains(line, ":") {
				line = strings.TrimSuffix(line, "/32") + "/128"
			}
		}
		_, n, err := net.ParseCIDR(line)
		if err != nil {
			continue
		}
		nets = append(nets, n)
	}
	if err := scanner.Err(); err != nil {
		return nil, time.Time{}, err
	}
	return nets, info.ModTime(), nil
}

// Run is the background updater: it wakes every cacheDuration and also reacts
// to fsnotify events on either file's parent directory, re-reading on either
// signal. It returns when stop is closed (spec §4.4 "exits on receipt of a
// stop signal").
func (l *List) Run(stop <-chan struct{}, cacheDuration time.Duration) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		l.log.WithError(err).Warn("accesslist: fsnotify unavailable, falling back to polling only")
		watcher = nil
	}
	if watcher != nil {
		defer watcher.Close()
		for _, p := range []string{l.whitelistPath, l.blacklistPath} {
			if p == "" {
				continue
			}
			_ = watcher.Add(dirOf(p))
		}
	}

	ticker := time.NewTicker(cacheDuration)
	defer ticker.Stop()

	var events <-chan fsnotify.Event
	var errs <-chan error
	if watcher != nil {
		events = watcher.Events
		errs = watcher.Errors
	}

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			l.reloadIfChanged()
		case _, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			l.reloadIfChanged()
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			l.log.WithError(err).Debug("accesslist: fsnotify watcher error")
		}
	}
}

func dirOf(path string) string {
	i := strings.LastIndexByte(path, '/')
	if i < 0 {
		return "."
	}
	return path[:i]
}
