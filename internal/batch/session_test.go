package batch

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tinkertanker/bamboobot-cert-generator-sub002/pkg/clock"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestRegistry(t *testing.T) (*Registry, *clock.Fake) {
	t.Helper()
	clk := clock.NewFake(t0)
	r := NewRegistry(RegistryOptions{Clock: clk})
	t.Cleanup(r.Close)
	return r, clk
}

func labelled(n int) []Entry {
	out := make([]Entry, n)
	for i := range out {
		out[i] = Entry{Label: fmt.Sprintf("row-%d", i), Payload: i}
	}
	return out
}

func echoWork(_ context.Context, it Item) (Result, error) {
	return Result{Output: "out-" + it.Label}, nil
}

func mustSession(t *testing.T, r *Registry, id string, cfg Config, n int) *Session {
	t.Helper()
	s, err := r.Create(id, cfg)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if n > 0 {
		if _, err := s.Enqueue(labelled(n)...); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	return s
}

func assertConserved(t *testing.T, s *Session) {
	t.Helper()
	p := s.Progress()
	if p.Processed+p.Failed+p.Remaining != p.Total {
		t.Fatalf("counts not conserved: %+v", p)
	}
	active := 0
	for _, it := range s.Items() {
		if it.Status == ItemActive {
			active++
		}
	}
	if active > 1 {
		t.Fatalf("%d active items", active)
	}
}

func TestSessionProcessesAllItems(t *testing.T) {
	r, clk := newTestRegistry(t)
	s := mustSession(t, r, "s1", Config{Work: echoWork}, 3)
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	clk.Advance(time.Second)

	p := s.Progress()
	if p.Status != StatusCompleted || p.Processed != 3 || p.Failed != 0 || p.Remaining != 0 {
		t.Fatalf("unexpected progress: %+v", p)
	}
	select {
	case <-s.Done():
	default:
		t.Fatalf("done channel not closed")
	}
	res := s.Results()
	if res.TotalProcessed != 3 || len(res.Outputs) != 3 {
		t.Fatalf("results: %+v", res)
	}
	for i, o := range res.Outputs {
		if o.ItemIndex != i || o.Output != fmt.Sprintf("out-row-%d", i) {
			t.Fatalf("output %d out of order: %+v", i, o)
		}
	}
	if clk.Pending() != 0 {
		t.Fatalf("completed session left %d timers", clk.Pending())
	}
}

func TestSessionRetriesUpToMaxAttempts(t *testing.T) {
	r, clk := newTestRegistry(t)
	calls := 0
	s := mustSession(t, r, "", Config{Work: func(context.Context, Item) (Result, error) {
		calls++
		return Result{}, errors.New("smtp timeout")
	}}, 1)
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	clk.Advance(time.Minute)

	if calls != 3 {
		t.Fatalf("want 3 attempts, got %d", calls)
	}
	p := s.Progress()
	if p.Status != StatusCompleted || p.Failed != 1 || p.Processed != 0 {
		t.Fatalf("unexpected progress: %+v", p)
	}
	res := s.Results()
	if len(res.Failures) != 1 || res.Failures[0].Attempts != 3 || res.Failures[0].Error != "smtp timeout" {
		t.Fatalf("failures: %+v", res.Failures)
	}
}

func TestSessionPermanentErrorFailsOnce(t *testing.T) {
	r, clk := newTestRegistry(t)
	calls := 0
	s := mustSession(t, r, "", Config{Work: func(_ context.Context, it Item) (Result, error) {
		if it.Index == 0 {
			calls++
			return Result{}, Permanent(errors.New("bad address"))
		}
		return Result{Output: "ok"}, nil
	}}, 2)
	_ = s.Start()
	clk.Advance(time.Second)

	if calls != 1 {
		t.Fatalf("permanent error retried: %d calls", calls)
	}
	p := s.Progress()
	if p.Status != StatusCompleted || p.Failed != 1 || p.Processed != 1 {
		t.Fatalf("unexpected progress: %+v", p)
	}
}

func TestSessionRateLimitErrorPauses(t *testing.T) {
	r, clk := newTestRegistry(t)
	s := mustSession(t, r, "", Config{Work: func(_ context.Context, it Item) (Result, error) {
		if it.Index == 1 {
			return Result{}, &RateLimitError{Err: errors.New("429"), RetryAfter: 30 * time.Second}
		}
		return Result{Output: "ok"}, nil
	}}, 4)
	_ = s.Start()
	clk.Advance(time.Minute)

	p := s.Progress()
	if p.Status != StatusPaused {
		t.Fatalf("want paused, got %s", p.Status)
	}
	if p.Processed != 1 || p.Failed != 1 || p.Remaining != 2 {
		t.Fatalf("unexpected progress: %+v", p)
	}
	if s.Items()[1].Attempts != 1 {
		t.Fatalf("rate-limited item was retried")
	}
	assertConserved(t, s)
}

func TestSessionPauseBeforeFirstStep(t *testing.T) {
	r, clk := newTestRegistry(t)
	s := mustSession(t, r, "", Config{Work: echoWork}, 5)
	_ = s.Start()
	if err := s.Pause(); err != nil {
		t.Fatalf("pause: %v", err)
	}
	clk.Advance(5 * time.Minute)

	p := s.Progress()
	if p.Status != StatusPaused || p.Processed != 0 {
		t.Fatalf("paused session made progress: %+v", p)
	}
	if clk.Pending() != 0 {
		t.Fatalf("paused session still armed")
	}
}

func TestSessionPauseDuringItemFinishesItem(t *testing.T) {
	r, clk := newTestRegistry(t)
	var s *Session
	s = mustSession(t, r, "", Config{Work: func(_ context.Context, it Item) (Result, error) {
		if it.Index == 0 {
			if err := s.Pause(); err != nil {
				t.Errorf("pause in flight: %v", err)
			}
		}
		return Result{Output: "ok"}, nil
	}}, 3)
	_ = s.Start()
	clk.Advance(time.Minute)

	p := s.Progress()
	if p.Status != StatusPaused || p.Processed != 1 {
		t.Fatalf("in-flight item not recorded: %+v", p)
	}
	if err := s.Resume(); err != nil {
		t.Fatalf("resume: %v", err)
	}
	clk.Advance(time.Minute)
	if p := s.Progress(); p.Status != StatusCompleted || p.Processed != 3 {
		t.Fatalf("after resume: %+v", p)
	}
}

func TestSessionResumeDuringItemRunsEachItemOnce(t *testing.T) {
	r, clk := newTestRegistry(t)
	var s *Session
	seen := map[int]int{}
	s = mustSession(t, r, "", Config{Work: func(_ context.Context, it Item) (Result, error) {
		seen[it.Index]++
		if it.Index == 0 {
			_ = s.Pause()
			_ = s.Resume()
		}
		assertConserved(t, s)
		return Result{Output: "ok"}, nil
	}}, 3)
	_ = s.Start()
	clk.Advance(time.Minute)

	if p := s.Progress(); p.Status != StatusCompleted || p.Processed != 3 {
		t.Fatalf("unexpected progress: %+v", p)
	}
	for i := 0; i < 3; i++ {
		if seen[i] != 1 {
			t.Fatalf("item %d ran %d times", i, seen[i])
		}
	}
}

func TestSessionStateErrors(t *testing.T) {
	r, clk := newTestRegistry(t)
	s := mustSession(t, r, "", Config{Work: echoWork}, 2)

	if err := s.Resume(); !errors.Is(err, ErrNotPaused) {
		t.Fatalf("resume idle: %v", err)
	}
	if err := s.Pause(); !errors.Is(err, ErrNotProcessing) {
		t.Fatalf("pause idle: %v", err)
	}
	_ = s.Start()
	if err := s.Start(); !errors.Is(err, ErrAlreadyProcessing) {
		t.Fatalf("double start: %v", err)
	}
	if err := s.Resume(); !errors.Is(err, ErrNotPaused) {
		t.Fatalf("resume processing: %v", err)
	}
	if p := s.Progress(); p.Status != StatusProcessing {
		t.Fatalf("failed resume changed state: %s", p.Status)
	}
	clk.Advance(time.Second)
	if err := s.Cancel(); !errors.Is(err, ErrSessionTerminal) {
		t.Fatalf("cancel completed: %v", err)
	}
	if _, err := s.Enqueue(Entry{}); !errors.Is(err, ErrSessionTerminal) {
		t.Fatalf("enqueue completed: %v", err)
	}
}

func TestSessionCancelIsolatedFromOthers(t *testing.T) {
	r, clk := newTestRegistry(t)
	a := mustSession(t, r, "a", Config{Work: echoWork, RemoveOnCancel: true}, 3)
	b := mustSession(t, r, "b", Config{Work: echoWork}, 3)
	_ = a.Start()
	_ = b.Start()
	if err := a.Cancel(); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	clk.Advance(time.Second)

	if p := a.Progress(); p.Status != StatusCancelled || p.Processed != 0 {
		t.Fatalf("cancelled session progressed: %+v", p)
	}
	if _, ok := r.Get("a"); ok {
		t.Fatalf("cancelled session still registered")
	}
	if p := b.Progress(); p.Status != StatusCompleted || p.Processed != 3 {
		t.Fatalf("sibling affected: %+v", p)
	}
}

func TestSessionBatchCadence(t *testing.T) {
	r, clk := newTestRegistry(t)
	s := mustSession(t, r, "", Config{Work: echoWork, BatchSize: 2, StepDelay: time.Second}, 5)
	_ = s.Start()

	want := []int{2, 4, 5}
	clk.Advance(0)
	for i, n := range want {
		if got := s.Progress().Processed; got != n {
			t.Fatalf("tick %d: processed %d, want %d", i, got, n)
		}
		clk.Advance(time.Second)
	}
	if s.Status() != StatusCompleted {
		t.Fatalf("status %s", s.Status())
	}
}

func TestSessionWaitsForLimiter(t *testing.T) {
	r, clk := newTestRegistry(t)
	lim := NewWindowLimiter(2, time.Second)
	s := mustSession(t, r, "", Config{Work: echoWork, Limiter: lim}, 5)
	_ = s.Start()

	clk.Advance(0)
	p := s.Progress()
	if p.Processed != 2 {
		t.Fatalf("processed %d before window reset", p.Processed)
	}
	if p.RateLimitedUntil == nil || !p.RateLimitedUntil.Equal(t0.Add(time.Second)) {
		t.Fatalf("rate_limited_until: %v", p.RateLimitedUntil)
	}
	clk.Advance(time.Second)
	if got := s.Progress().Processed; got != 4 {
		t.Fatalf("processed %d after one window", got)
	}
	clk.Advance(time.Second)
	if s.Status() != StatusCompleted {
		t.Fatalf("status %s", s.Status())
	}
}

func TestSessionsSharingLimiterNeverOverspend(t *testing.T) {
	r := NewRegistry(RegistryOptions{})
	t.Cleanup(r.Close)
	lim := NewWindowLimiter(1, time.Hour)

	var calls atomic.Int32
	entered := make(chan struct{}, 2)
	release := make(chan struct{})
	work := func(context.Context, Item) (Result, error) {
		calls.Add(1)
		entered <- struct{}{}
		<-release
		return Result{Output: "sent"}, nil
	}
	a := mustSession(t, r, "a", Config{Work: work, Limiter: lim}, 1)
	b := mustSession(t, r, "b", Config{Work: work, Limiter: lim}, 1)
	_ = a.Start()
	_ = b.Start()

	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatalf("no session reached the provider")
	}
	// the first send is still in flight; the other session must not send too
	select {
	case <-entered:
		close(release)
		t.Fatalf("both sessions sent within a quota of one")
	case <-time.After(100 * time.Millisecond):
	}
	close(release)

	var winner, loser *Session
	select {
	case <-a.Done():
		winner, loser = a, b
	case <-b.Done():
		winner, loser = b, a
	case <-time.After(5 * time.Second):
		t.Fatalf("no session completed")
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("%d provider calls, want 1", n)
	}
	if p := winner.Progress(); p.Processed != 1 {
		t.Fatalf("winner progress: %+v", p)
	}
	p := loser.Progress()
	if p.Processed != 0 || p.Status != StatusProcessing || p.RateLimitedUntil == nil {
		t.Fatalf("loser progress: %+v", p)
	}
}

func TestSessionReleasesReservationOnFailure(t *testing.T) {
	r, clk := newTestRegistry(t)
	lim := NewWindowLimiter(1, time.Hour)
	fail := true
	s := mustSession(t, r, "", Config{
		Work: func(_ context.Context, it Item) (Result, error) {
			if fail {
				fail = false
				return Result{}, errors.New("smtp timeout")
			}
			return echoWork(context.Background(), it)
		},
		Retry:   RetryPolicy{MaxAttempts: 2, Base: time.Millisecond, Cap: time.Millisecond, Jitter: NoJitter},
		Limiter: lim,
	}, 1)
	_ = s.Start()
	clk.Advance(time.Second)

	if p := s.Progress(); p.Status != StatusCompleted || p.Processed != 1 {
		t.Fatalf("failed attempt held the only unit: %+v", p)
	}
}

func TestSessionObservesProviderQuota(t *testing.T) {
	r, clk := newTestRegistry(t)
	lim := NewWindowLimiter(10, time.Second)
	s := mustSession(t, r, "", Config{Work: func(context.Context, Item) (Result, error) {
		return Result{Output: "ok", Quota: &Quota{Limit: 10, Remaining: 0, ResetAt: t0.Add(5 * time.Second)}}, nil
	}, Limiter: lim}, 3)
	_ = s.Start()

	clk.Advance(4 * time.Second)
	if got := s.Progress().Processed; got != 1 {
		t.Fatalf("processed %d while provider quota exhausted", got)
	}
	clk.Advance(time.Minute)
	if got := s.Progress().Processed; got != 3 {
		t.Fatalf("processed %d after reset", got)
	}
}

func TestSessionCancelMidItemArchivesFinishedItem(t *testing.T) {
	arch := &memArchiver{}
	clk := clock.NewFake(t0)
	r := NewRegistry(RegistryOptions{Clock: clk, Archiver: arch})
	t.Cleanup(r.Close)

	var s *Session
	s = mustSession(t, r, "gen", Config{
		RemoveOnCancel: true,
		Work: func(_ context.Context, it Item) (Result, error) {
			if err := s.Cancel(); err != nil {
				t.Errorf("cancel: %v", err)
			}
			if _, ok := r.Get("gen"); !ok {
				t.Errorf("session removed while its item was running")
			}
			return Result{Output: "out-" + it.Label}, nil
		},
	}, 2)
	_ = s.Start()
	clk.Advance(time.Second)

	if _, ok := r.Get("gen"); ok {
		t.Fatalf("cancelled session still registered")
	}
	arch.mu.Lock()
	snap, ok := arch.snaps["gen"]
	arch.mu.Unlock()
	if !ok {
		t.Fatalf("session not archived")
	}
	p := snap.Progress
	if p.Status != StatusCancelled || p.Processed != 1 || p.Remaining != 1 || p.CurrentItem != "" {
		t.Fatalf("archived progress: %+v", p)
	}
	if len(snap.Results.Outputs) != 1 || snap.Results.Outputs[0].Output != "out-row-0" {
		t.Fatalf("archived outputs: %+v", snap.Results.Outputs)
	}
}

func TestSessionProgressETA(t *testing.T) {
	r, _ := newTestRegistry(t)
	s := mustSession(t, r, "", Config{Work: echoWork, BatchSize: 10, StepDelay: time.Second}, 20)
	if eta := s.Progress().EstimatedTimeRemaining; eta != 2*time.Second {
		t.Fatalf("eta %v", eta)
	}

	limited := mustSession(t, r, "", Config{Work: echoWork, BatchSize: 10, StepDelay: time.Second, Limiter: NewWindowLimiter(2, time.Second)}, 4)
	if p := limited.Progress(); p.EstimatedTimeRemainingMs != 2000 {
		t.Fatalf("limited eta %dms", p.EstimatedTimeRemainingMs)
	}
}

func TestSessionSubscribe(t *testing.T) {
	r, clk := newTestRegistry(t)
	s := mustSession(t, r, "sub", Config{Work: echoWork}, 2)
	ch, cancel := s.Subscribe(16)
	defer cancel()

	first := <-ch
	if first.Status != StatusIdle || first.Total != 2 {
		t.Fatalf("initial snapshot: %+v", first)
	}
	_ = s.Start()
	clk.Advance(time.Second)

	var last Progress
	for {
		select {
		case p := <-ch:
			last = p
			continue
		default:
		}
		break
	}
	if last.Status != StatusCompleted {
		t.Fatalf("last snapshot: %+v", last)
	}

	r.Remove("sub")
	if _, ok := <-ch; ok {
		t.Fatalf("channel open after removal")
	}
}

func TestSessionCallsOnItemComplete(t *testing.T) {
	r, clk := newTestRegistry(t)
	var got []string
	s := mustSession(t, r, "", Config{Work: echoWork, OnItemComplete: func(it Item) {
		got = append(got, it.Output)
	}}, 2)
	_ = s.Start()
	clk.Advance(time.Second)
	if len(got) != 2 || got[0] != "out-row-0" {
		t.Fatalf("callbacks: %v", got)
	}
}

func TestSessionSubscribeSlowReaderSeesLatest(t *testing.T) {
	r, clk := newTestRegistry(t)
	s := mustSession(t, r, "", Config{Work: echoWork}, 4)
	ch, cancel := s.Subscribe(1)
	defer cancel()
	_ = s.Start()
	clk.Advance(time.Second)

	p := <-ch
	if p.Status != StatusCompleted || p.Processed != 4 {
		t.Fatalf("slow reader got stale snapshot: %+v", p)
	}
}
