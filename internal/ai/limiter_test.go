package ai

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"
)

func TestSpacer_EnforcesGapUnderConcurrency(t *testing.T) {
	const gap = 30 * time.Millisecond
	s := NewSpacer(gap)

	type span struct{ start, end time.Time }
	var mu sync.Mutex
	var spans []span

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Do(context.Background(), func(ctx context.Context) error {
				start := time.Now()
				time.Sleep(2 * time.Millisecond)
				mu.Lock()
				spans = append(spans, span{start: start, end: time.Now()})
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()

	sort.Slice(spans, func(i, j int) bool { return spans[i].start.Before(spans[j].start) })
	for i := 1; i < len(spans); i++ {
		if spacing := spans[i].start.Sub(spans[i-1].end); spacing < gap {
			t.Errorf("call %d started %s after previous end, want >= %s", i, spacing, gap)
		}
	}
}

func TestSpacer_FirstCallDoesNotWait(t *testing.T) {
	s := NewSpacer(time.Hour)
	s.sleep = func(ctx context.Context, d time.Duration) error {
		t.Fatalf("unexpected sleep of %s on first call", d)
		return nil
	}
	if err := s.Do(context.Background(), func(ctx context.Context) error { return nil }); err != nil {
		t.Fatalf("Do failed: %v", err)
	}
}

func TestSpacer_SleepsForRemainder(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var slept []time.Duration

	s := NewSpacer(time.Second)
	s.now = func() time.Time { return now }
	s.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		now = now.Add(d)
		return nil
	}

	s.Do(context.Background(), func(ctx context.Context) error { return nil })
	now = now.Add(300 * time.Millisecond)
	s.Do(context.Background(), func(ctx context.Context) error { return nil })

	if len(slept) != 1 || slept[0] != 700*time.Millisecond {
		t.Errorf("Expected a single 700ms sleep, got %v", slept)
	}
}

func TestSpacer_CancelledWhileWaiting(t *testing.T) {
	s := NewSpacer(time.Hour)
	s.Do(context.Background(), func(ctx context.Context) error { return nil })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := s.Do(ctx, func(ctx context.Context) error {
		called = true
		return nil
	})
	if err == nil || called {
		t.Errorf("Expected cancellation before call, err=%v called=%v", err, called)
	}
}

func TestSpacer_QueuedCallerHonoursDeadline(t *testing.T) {
	s := NewSpacer(time.Nanosecond)

	release := make(chan struct{})
	holding := make(chan struct{})
	go s.Do(context.Background(), func(ctx context.Context) error {
		close(holding)
		<-release
		return nil
	})
	<-holding
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- s.Do(ctx, func(ctx context.Context) error {
			t.Error("queued call should not run")
			return nil
		})
	}()

	select {
	case err := <-done:
		if err != context.DeadlineExceeded {
			t.Errorf("Expected deadline exceeded, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Queued caller blocked past its deadline")
	}
}
