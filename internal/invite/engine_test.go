package invite

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"vrcinvited/internal/vrc"
	logx "vrcinvited/pkg/logx"
)

func nopLogger() logx.Logger { return logx.Nop() }

// fakeRemote implements Remote in memory. Safe for concurrent use.
type fakeRemote struct {
	mu      sync.Mutex
	members map[string]bool
	pending map[string]bool
	failing map[string]error
	invited []string

	// blockCreate, when non-nil, makes CreateGroupInvite wait until closed.
	blockCreate chan struct{}
	// createStarted receives one signal per CreateGroupInvite entry.
	createStarted chan struct{}
	// serviceTime, when non-nil, delays each CreateGroupInvite by its result.
	serviceTime func() time.Duration
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		members: map[string]bool{},
		pending: map[string]bool{},
		failing: map[string]error{},
	}
}

func (f *fakeRemote) GroupMember(_ context.Context, _, userID string) (*vrc.Membership, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.members[userID] {
		return &vrc.Membership{UserID: userID}, nil
	}
	return nil, fmt.Errorf("member lookup: %w", vrc.ErrNotFound)
}

func (f *fakeRemote) GroupInvites(_ context.Context, _ string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for id := range f.pending {
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeRemote) CreateGroupInvite(_ context.Context, _, userID string) error {
	f.mu.Lock()
	started := f.createStarted
	block := f.blockCreate
	svc := f.serviceTime
	f.mu.Unlock()

	if started != nil {
		select {
		case started <- struct{}{}:
		default:
		}
	}
	if block != nil {
		<-block
	}
	if svc != nil {
		time.Sleep(svc())
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failing[userID]; err != nil {
		return err
	}
	f.invited = append(f.invited, userID)
	return nil
}

func (f *fakeRemote) invitedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.invited...)
}

func candidates(n int) []Candidate {
	out := make([]Candidate, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, Candidate{UserID: fmt.Sprintf("usr_%d", i), DisplayName: fmt.Sprintf("Player %d", i)})
	}
	return out
}

func TestDispatchInvitesAll(t *testing.T) {
	t.Parallel()
	remote := newFakeRemote()
	e := NewEngine(remote, nopLogger(), nil)

	res, err := e.Dispatch(context.Background(), "grp_1", candidates(5), 5, 0)
	if err != nil {
		t.Fatal(err)
	}
	if res.Invited != 5 || res.Failed != 0 || res.Skipped != 0 {
		t.Fatalf("result = %+v", res)
	}
	if res.Stopped {
		t.Fatal("Stopped = true for a full run")
	}
	want := "Invitation process completed. Invited 5/5 players. Failed: 0, Skipped: 0"
	if res.Message != want {
		t.Fatalf("Message = %q, want %q", res.Message, want)
	}
	if got := len(remote.invitedIDs()); got != 5 {
		t.Fatalf("remote saw %d invites, want 5", got)
	}
}

func TestDispatchSkipsMembersAndPending(t *testing.T) {
	t.Parallel()
	remote := newFakeRemote()
	remote.members["usr_0"] = true
	remote.pending["usr_1"] = true
	e := NewEngine(remote, nopLogger(), nil)

	res, err := e.Dispatch(context.Background(), "grp_1", candidates(3), 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if res.Invited != 1 || res.Skipped != 2 || res.Failed != 0 {
		t.Fatalf("result = %+v", res)
	}
	if ids := remote.invitedIDs(); len(ids) != 1 || ids[0] != "usr_2" {
		t.Fatalf("invited = %v, want [usr_2]", ids)
	}
}

func TestDispatchRecordsFailures(t *testing.T) {
	t.Parallel()
	remote := newFakeRemote()
	remote.failing["usr_1"] = &vrc.APIError{Status: 403, Reason: "403 Forbidden"}
	e := NewEngine(remote, nopLogger(), nil)

	res, err := e.Dispatch(context.Background(), "grp_1", candidates(2), 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if res.Invited != 1 || res.Failed != 1 {
		t.Fatalf("result = %+v", res)
	}
	if len(res.Failures) != 1 {
		t.Fatalf("failures = %v", res.Failures)
	}
	want := "Invitation process completed. Invited 1/2 players. Failed: 1, Skipped: 0"
	if res.Message != want {
		t.Fatalf("Message = %q", res.Message)
	}
}

func TestDispatchEmptyCandidates(t *testing.T) {
	t.Parallel()
	e := NewEngine(newFakeRemote(), nopLogger(), nil)
	res, err := e.Dispatch(context.Background(), "grp_1", nil, 5, 0)
	if err != nil {
		t.Fatal(err)
	}
	if res.Message != "no eligible players to invite" {
		t.Fatalf("Message = %q", res.Message)
	}
}

func TestDispatchUnderRandomizedServiceTimes(t *testing.T) {
	t.Parallel()
	remote := newFakeRemote()
	remote.serviceTime = func() time.Duration {
		return time.Duration(rand.Intn(3)) * time.Millisecond
	}
	remote.members["usr_3"] = true
	remote.pending["usr_7"] = true
	remote.failing["usr_11"] = &vrc.APIError{Status: 500, Reason: "500 Internal Server Error"}
	e := NewEngine(remote, nopLogger(), nil)

	res, err := e.Dispatch(context.Background(), "grp_1", candidates(40), 5, time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if got := res.Invited + res.Failed + res.Skipped; got != res.Total {
		t.Fatalf("invited+failed+skipped = %d, want total %d (%+v)", got, res.Total, res)
	}
	if res.Invited != 37 || res.Skipped != 2 || res.Failed != 1 {
		t.Fatalf("result = %+v, want 37 invited, 2 skipped, 1 failed", res)
	}
	if got := len(remote.invitedIDs()); got != 37 {
		t.Fatalf("remote saw %d invites, want 37", got)
	}
	want := "Invitation process completed. Invited 37/40 players. Failed: 1, Skipped: 2"
	if res.Message != want {
		t.Fatalf("Message = %q", res.Message)
	}
}

func TestDispatchStopMidRun(t *testing.T) {
	t.Parallel()
	remote := newFakeRemote()
	remote.blockCreate = make(chan struct{})
	remote.createStarted = make(chan struct{}, 1)
	e := NewEngine(remote, nopLogger(), nil)

	type outcome struct {
		res Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := e.Dispatch(context.Background(), "grp_1", candidates(3), 1, 0)
		done <- outcome{res, err}
	}()

	// Wait until the single worker is inside the create call, then stop.
	select {
	case <-remote.createStarted:
	case <-time.After(5 * time.Second):
		t.Fatal("worker never reached create")
	}
	if !e.Stop() {
		t.Fatal("Stop = false while running")
	}
	close(remote.blockCreate)

	var out outcome
	select {
	case out = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("dispatch did not return")
	}
	if out.err != nil {
		t.Fatal(out.err)
	}
	res := out.res
	if !res.Stopped {
		t.Fatal("Stopped = false after Stop()")
	}
	// The in-flight candidate finishes; no further candidates are taken.
	if res.Invited != 1 || res.Processed() >= res.Total {
		t.Fatalf("result = %+v, want 1 processed of 3", res)
	}
	want := "Invitation process stopped. Invited 1/3 players. Failed: 0, Skipped: 0"
	if res.Message != want {
		t.Fatalf("Message = %q", res.Message)
	}
}

func TestDispatchRejectsConcurrentRuns(t *testing.T) {
	t.Parallel()
	remote := newFakeRemote()
	remote.blockCreate = make(chan struct{})
	remote.createStarted = make(chan struct{}, 1)
	e := NewEngine(remote, nopLogger(), nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = e.Dispatch(context.Background(), "grp_1", candidates(1), 1, 0)
	}()

	select {
	case <-remote.createStarted:
	case <-time.After(5 * time.Second):
		t.Fatal("worker never reached create")
	}
	if !e.Running() {
		t.Fatal("Running = false mid-run")
	}
	if _, err := e.Dispatch(context.Background(), "grp_1", candidates(1), 1, 0); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("err = %v, want ErrAlreadyRunning", err)
	}

	close(remote.blockCreate)
	<-done
	if e.Running() {
		t.Fatal("Running = true after run finished")
	}
}

func TestDispatchProgressIsMonotone(t *testing.T) {
	t.Parallel()
	remote := newFakeRemote()
	e := NewEngine(remote, nopLogger(), nil)

	var mu sync.Mutex
	var counts []int
	e.SetProgress(func(completed, total int, _ string) {
		mu.Lock()
		counts = append(counts, completed)
		mu.Unlock()
		if total != 4 {
			t.Errorf("total = %d, want 4", total)
		}
	})

	if _, err := e.Dispatch(context.Background(), "grp_1", candidates(4), 2, 0); err != nil {
		t.Fatal(err)
	}
	mu.Lock()
	defer mu.Unlock()
	last := 0
	for _, c := range counts {
		if c < last {
			t.Fatalf("invited count went backwards: %v", counts)
		}
		last = c
	}
	if last != 4 {
		t.Fatalf("final invited = %d, want 4", last)
	}
}

func TestDispatchContextCancellation(t *testing.T) {
	t.Parallel()
	remote := newFakeRemote()
	remote.blockCreate = make(chan struct{})
	remote.createStarted = make(chan struct{}, 1)
	e := NewEngine(remote, nopLogger(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan Result, 1)
	go func() {
		res, _ := e.Dispatch(ctx, "grp_1", candidates(3), 1, 0)
		done <- res
	}()

	select {
	case <-remote.createStarted:
	case <-time.After(5 * time.Second):
		t.Fatal("worker never reached create")
	}
	cancel()
	close(remote.blockCreate)

	select {
	case res := <-done:
		if !res.Stopped {
			t.Fatalf("result = %+v, want stopped", res)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("dispatch did not return")
	}
}
