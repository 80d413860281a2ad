// Package watcher owns the log-tailing lifecycle: one tailer, one extractor
// pass, one presence tracker, driven by a poll loop with an explicit state
// machine (Idle -> Scanning -> Following -> Stopped).
package watcher

import (
	"os"
	"strings"
	"sync"
	"time"

	"vrcinvited/internal/eventbus"
	"vrcinvited/internal/logwatch"
	"vrcinvited/internal/presence"
	logx "vrcinvited/pkg/logx"
)

type State int32

const (
	StateIdle State = iota
	StateScanning
	StateFollowing
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanning:
		return "scanning"
	case StateFollowing:
		return "following"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// stopJoinTimeout bounds how long Stop waits for the follow loop to exit.
const stopJoinTimeout = 2 * time.Second

// Watcher is the session-watching unit. All state transitions go through the
// guarded state cell; callers may query State() at any time without racing.
type Watcher struct {
	log     logx.Logger
	bus     eventbus.Bus
	tracker *presence.Tracker

	path         string
	pollInterval time.Duration

	mu     sync.Mutex
	state  State
	tailer *logwatch.Tailer
	stopCh chan struct{}
	doneCh chan struct{}
}

func New(path string, pollInterval time.Duration, tracker *presence.Tracker, log logx.Logger, bus eventbus.Bus) *Watcher {
	if pollInterval <= 0 {
		pollInterval = 100 * time.Millisecond
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Watcher{
		log:          log.With(logx.String("comp", "watcher")),
		bus:          bus,
		tracker:      tracker,
		path:         path,
		pollInterval: pollInterval,
	}
}

func (w *Watcher) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Snapshot returns the current present-user view.
func (w *Watcher) Snapshot(now time.Time) presence.Snapshot {
	return w.tracker.Snapshot(now)
}

// Start begins watching. With backfill, the existing log is scanned first
// (Scanning) to rebuild presence for the most recent session; without it the
// tailer seeks straight to the end.
//
// Returns false when the watcher is already running or the source is
// unreadable right now. A start failure leaves the watcher Idle so a later
// Start can succeed once the source appears.
func (w *Watcher) Start(backfill bool) bool {
	w.mu.Lock()
	if w.state == StateScanning || w.state == StateFollowing {
		w.mu.Unlock()
		w.log.Info("already watching log file")
		return false
	}
	w.state = StateScanning
	w.mu.Unlock()

	tailer, err := logwatch.Open(w.path)
	if err != nil {
		w.log.Warn("log source unavailable", logx.String("path", w.path), logx.Err(err))
		w.abortScan()
		return false
	}

	if backfill {
		w.log.Info("scanning existing log file", logx.String("path", w.path))
		if err := w.backfill(tailer); err != nil {
			w.log.Warn("backfill scan failed; following from end only", logx.Err(err))
		}
	}
	if err := tailer.SeekToEnd(); err != nil {
		w.log.Warn("log source unavailable", logx.String("path", w.path), logx.Err(err))
		w.abortScan()
		return false
	}

	w.mu.Lock()
	if w.state != StateScanning {
		// A Stop arrived while we were scanning; honor it instead of
		// overwriting the state and launching the follow loop anyway.
		w.mu.Unlock()
		w.log.Info("stop requested during scan; not following")
		return false
	}
	w.tailer = tailer
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.state = StateFollowing
	stopCh, doneCh := w.stopCh, w.doneCh
	w.mu.Unlock()

	go w.follow(tailer, stopCh, doneCh)
	w.log.Info("log watcher started", logx.String("path", w.path), logx.Duration("poll", w.pollInterval))
	return true
}

// Stop transitions to Stopped and joins the follow loop with a bounded wait.
// Returns false when nothing was running.
func (w *Watcher) Stop() bool {
	w.mu.Lock()
	if w.state != StateFollowing && w.state != StateScanning {
		w.mu.Unlock()
		return false
	}
	w.state = StateStopped
	stopCh, doneCh := w.stopCh, w.doneCh
	w.stopCh, w.doneCh = nil, nil
	w.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
	}
	if doneCh != nil {
		select {
		case <-doneCh:
		case <-time.After(stopJoinTimeout):
			w.log.Warn("follow loop did not exit in time")
		}
	}
	w.log.Info("log watcher stopped")
	return true
}

// abortScan reverts a failed Start back to Idle. The revert is conditional so
// a Stop that raced the scan keeps its Stopped state.
func (w *Watcher) abortScan() {
	w.mu.Lock()
	if w.state == StateScanning {
		w.state = StateIdle
	}
	w.mu.Unlock()
}

// backfill reads the whole file once and replays the most recent session.
func (w *Watcher) backfill(tailer *logwatch.Tailer) error {
	data, err := os.ReadFile(tailer.Path())
	if err != nil {
		return err
	}
	lines := strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")
	if !w.tracker.Backfill(lines) {
		w.log.Info("no session change found in existing log; monitoring new entries only")
		return nil
	}

	snap := w.tracker.Snapshot(time.Now())
	w.log.Info("backfill complete",
		logx.String("session", snap.SessionID),
		logx.Int("present", len(snap.Present)))
	return nil
}

// follow is the long-lived poll loop. Each iteration independently tolerates
// a momentarily-missing source: ReadNew reports nothing and the next tick
// tries again.
func (w *Watcher) follow(tailer *logwatch.Tailer, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
		}

		lines, err := tailer.ReadNew()
		if err != nil {
			w.log.Warn("log read failed", logx.Err(err))
			continue
		}
		for _, line := range lines {
			ev, ok := logwatch.Extract(line)
			if !ok {
				continue
			}
			w.apply(ev)
		}
	}
}

func (w *Watcher) apply(ev logwatch.Event) {
	w.tracker.Apply(ev)

	switch ev.Kind {
	case logwatch.KindSessionChanged:
		w.log.Info("instance changed", logx.String("session", ev.SessionID), logx.Time("at", ev.At))
		if w.bus != nil {
			w.bus.Publish(eventbus.Event{Type: eventbus.TypeSessionChanged, Data: ev})
		}
	case logwatch.KindPlayerJoined:
		w.log.Debug("player joined", logx.String("name", ev.DisplayName), logx.String("user", ev.UserID), logx.Time("at", ev.At))
		if w.bus != nil {
			w.bus.Publish(eventbus.Event{Type: eventbus.TypePlayerJoined, Data: ev})
		}
	case logwatch.KindPlayerLeft:
		w.log.Debug("player left", logx.String("name", ev.DisplayName), logx.String("user", ev.UserID), logx.Time("at", ev.At))
		if w.bus != nil {
			w.bus.Publish(eventbus.Event{Type: eventbus.TypePlayerLeft, Data: ev})
		}
	}
}
