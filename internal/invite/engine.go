package invite

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"vrcinvited/internal/eventbus"
	"vrcinvited/internal/vrc"
	logx "vrcinvited/pkg/logx"
)

// ErrAlreadyRunning is returned when Dispatch is called while a run is in
// flight. Runs never stack.
var ErrAlreadyRunning = errors.New("invite run already in progress")

// Engine drains a candidate queue with a bounded worker pool, re-validating
// every candidate against the remote service immediately before acting.
//
// Rate limiting is per worker: each worker sleeps the configured delay after
// every processed candidate, so aggregate throughput is workers/delay. That
// knob is deliberate (see DESIGN.md) — do not replace it with a global
// limiter.
type Engine struct {
	remote Remote
	log    logx.Logger
	bus    eventbus.Bus
	rec    Recorder

	// mu guards the shared counters and progress emission so updates and
	// their reports stay atomic with respect to each other.
	mu       sync.Mutex
	progress Progress

	runMu   sync.Mutex
	running bool
	stopped bool
	stopCh  chan struct{}
}

func NewEngine(remote Remote, log logx.Logger, bus eventbus.Bus) *Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Engine{
		remote: remote,
		log:    log.With(logx.String("comp", "invite")),
		bus:    bus,
	}
}

// SetRecorder wires the optional invite journal.
func (e *Engine) SetRecorder(rec Recorder) { e.rec = rec }

// SetProgress installs the progress callback. Safe to call between runs.
func (e *Engine) SetProgress(fn Progress) {
	e.mu.Lock()
	e.progress = fn
	e.mu.Unlock()
}

// Running reports whether a dispatch run is in flight.
func (e *Engine) Running() bool {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	return e.running
}

// Stop requests cooperative cancellation of the current run. Workers finish
// the candidate in hand (no half-sent invites) and take no further work.
// Returns false when no run is in flight.
func (e *Engine) Stop() bool {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	if !e.running {
		return false
	}
	if !e.stopped {
		e.stopped = true
		close(e.stopCh)
	}
	return true
}

func (e *Engine) stopRequested() bool {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	return e.stopped
}

// Dispatch sends invites to all candidates using min(workers, len) workers
// draining one shared queue. It blocks until every worker has exited and
// returns the aggregate result; the final message distinguishes a stopped
// run from a completed one.
func (e *Engine) Dispatch(ctx context.Context, groupID string, candidates []Candidate, workers int, delay time.Duration) (Result, error) {
	e.runMu.Lock()
	if e.running {
		e.runMu.Unlock()
		return Result{}, ErrAlreadyRunning
	}
	e.running = true
	e.stopped = false
	e.stopCh = make(chan struct{})
	stopCh := e.stopCh
	e.runMu.Unlock()

	defer func() {
		e.runMu.Lock()
		e.running = false
		e.runMu.Unlock()
	}()

	total := len(candidates)
	res := &Result{Total: total}
	if total == 0 {
		res.Message = "no eligible players to invite"
		return *res, nil
	}

	start := time.Now()
	e.log.Info("starting invitation run", logx.String("group", groupID), logx.Int("candidates", total),
		logx.Int("workers", min(workers, total)), logx.Duration("delay", delay))
	e.report(res, "Starting invitations...")

	// Buffered to capacity so a worker can always hand a candidate back
	// without blocking when it observes a stop.
	queue := make(chan Candidate, total)
	for _, c := range candidates {
		queue <- c
	}

	n := min(workers, total)
	if n < 1 {
		n = 1
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			e.worker(ctx, groupID, queue, stopCh, delay, res)
		}(i)
	}
	wg.Wait()

	stopped := e.stopRequested() || ctx.Err() != nil
	e.mu.Lock()
	res.Stopped = stopped
	if stopped {
		res.Message = fmt.Sprintf("Invitation process stopped. Invited %d/%d players. Failed: %d, Skipped: %d",
			res.Invited, total, res.Failed, res.Skipped)
	} else {
		res.Message = fmt.Sprintf("Invitation process completed. Invited %d/%d players. Failed: %d, Skipped: %d",
			res.Invited, total, res.Failed, res.Skipped)
	}
	final := *res
	fn := e.progress
	e.mu.Unlock()

	e.log.Info("invitation run finished", logx.Int("invited", final.Invited), logx.Int("failed", final.Failed),
		logx.Int("skipped", final.Skipped), logx.Bool("stopped", final.Stopped), logx.Duration("took", time.Since(start)))
	if fn != nil {
		fn(final.Invited, total, final.Message)
	}
	if e.bus != nil {
		e.bus.Publish(eventbus.Event{Type: eventbus.TypeRunFinished, Data: RunSummary{
			GroupID: groupID,
			Total:   total,
			Invited: final.Invited,
			Failed:  final.Failed,
			Skipped: final.Skipped,
			Stopped: final.Stopped,
			Took:    time.Since(start),
		}})
	}
	return final, nil
}

func (e *Engine) worker(ctx context.Context, groupID string, queue chan Candidate, stopCh <-chan struct{}, delay time.Duration, res *Result) {
	for {
		// Checkpoint 1: before dequeuing.
		if ctx.Err() != nil {
			return
		}
		select {
		case <-stopCh:
			return
		default:
		}

		var c Candidate
		select {
		case c = <-queue:
		default:
			// Queue drained; this worker is done.
			return
		}

		// Checkpoint 2: before acting. Hand the candidate back rather than
		// dropping it so the final counts reflect what actually happened.
		if ctx.Err() != nil {
			queue <- c
			return
		}
		select {
		case <-stopCh:
			queue <- c
			return
		default:
		}

		e.processOne(ctx, groupID, c, res)

		// Per-worker pacing after every processed candidate.
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-time.After(delay):
		}
	}
}

// processOne runs the two re-validation checks and, if both pass, the
// create-invite call. Membership or pending state may have changed since the
// candidate set was built; the rechecks close that race window.
func (e *Engine) processOne(ctx context.Context, groupID string, c Candidate, res *Result) {
	e.log.Debug("processing player", logx.String("name", c.DisplayName), logx.String("user", c.UserID))

	// Re-validation 1: already a member? Not-found is the expected answer.
	m, err := e.remote.GroupMember(ctx, groupID, c.UserID)
	switch {
	case err == nil && m != nil:
		e.count(res, func(r *Result) string {
			r.Skipped++
			return fmt.Sprintf("Skipped %s - already in group (%d/%d)", c.DisplayName, r.Invited, r.Total)
		})
		e.record(ctx, groupID, c, OutcomeSkipped, "already in group")
		return
	case vrc.IsNotFound(err):
		// Expected: not a member, proceed.
	case err != nil:
		// Anomaly, not a verdict: log and fall through to the next check,
		// matching the permissive behavior of the original flow.
		e.log.Warn("membership check failed", logx.String("user", c.UserID), logx.Err(err))
	}

	// Re-validation 2: pending invite already out?
	pending, err := e.remote.GroupInvites(ctx, groupID)
	if err != nil {
		e.log.Warn("pending invite check failed", logx.String("user", c.UserID), logx.Err(err))
	} else if contains(pending, c.UserID) {
		e.count(res, func(r *Result) string {
			r.Skipped++
			return fmt.Sprintf("Skipped %s - already has pending invite (%d/%d)", c.DisplayName, r.Invited, r.Total)
		})
		e.record(ctx, groupID, c, OutcomeSkipped, "pending invite")
		return
	}

	if err := e.remote.CreateGroupInvite(ctx, groupID, c.UserID); err != nil {
		detail := err.Error()
		var apiErr *vrc.APIError
		if errors.As(err, &apiErr) {
			detail = fmt.Sprintf("status %d: %s", apiErr.Status, apiErr.Reason)
		}
		e.count(res, func(r *Result) string {
			r.Failed++
			r.Failures = append(r.Failures, fmt.Sprintf("%s: %s", c.DisplayName, detail))
			return fmt.Sprintf("Failed to invite %s: %s", c.DisplayName, detail)
		})
		e.record(ctx, groupID, c, OutcomeFailed, detail)
		return
	}

	e.count(res, func(r *Result) string {
		r.Invited++
		return fmt.Sprintf("Invited %s (%d/%d)", c.DisplayName, r.Invited, r.Total)
	})
	e.record(ctx, groupID, c, OutcomeInvited, "")
	if e.bus != nil {
		e.bus.Publish(eventbus.Event{Type: eventbus.TypeInviteSent, Data: c})
	}
}

// report emits a progress message without touching counters.
func (e *Engine) report(res *Result, msg string) {
	e.mu.Lock()
	invited := res.Invited
	total := res.Total
	fn := e.progress
	e.mu.Unlock()

	if fn != nil {
		fn(invited, total, msg)
	}
}

// count applies a counter mutation and emits its progress message under one
// lock so no update is lost and reports never interleave.
func (e *Engine) count(res *Result, mutate func(*Result) string) {
	e.mu.Lock()
	msg := mutate(res)
	invited := res.Invited
	total := res.Total
	fn := e.progress
	e.mu.Unlock()

	e.log.Info(msg)
	if fn != nil {
		fn(invited, total, msg)
	}
}

func (e *Engine) record(ctx context.Context, groupID string, c Candidate, outcome, detail string) {
	if e.rec == nil {
		return
	}
	if err := e.rec.RecordInvite(ctx, groupID, c.UserID, c.DisplayName, outcome, detail); err != nil {
		e.log.Warn("invite journal write failed", logx.Err(err))
	}
}

func contains(ids []string, id string) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}
