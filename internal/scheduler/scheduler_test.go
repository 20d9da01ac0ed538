package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"market_briefing/internal/briefing"
	"market_briefing/internal/cache"
	"market_briefing/internal/config"
	"market_briefing/internal/models"
	"market_briefing/internal/storage"
)

var seoul = time.FixedZone("KST", 9*3600)

// MockPipeline fails the first Failures calls and records every run.
type MockPipeline struct {
	mu       sync.Mutex
	Failures int
	Full     []time.Time
	Updates  []time.Time
	Started  chan struct{}
	Block    chan struct{}
}

func (m *MockPipeline) RunFull(ctx context.Context, date time.Time) (briefing.Result, error) {
	if m.Block != nil {
		close(m.Started)
		<-m.Block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Full = append(m.Full, date)
	if len(m.Full) <= m.Failures {
		return briefing.Result{}, errors.New("market down")
	}
	return briefing.Result{}, nil
}

func (m *MockPipeline) RunUpdate(ctx context.Context, now time.Time) (briefing.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Updates = append(m.Updates, now)
	return briefing.Result{}, nil
}

type MockWeekly struct{ Calls int }

func (m *MockWeekly) Run(ctx context.Context) (models.WeeklyReview, error) {
	m.Calls++
	return models.WeeklyReview{}, nil
}

type SpyNotifier struct {
	mu   sync.Mutex
	Sent []string
}

func (s *SpyNotifier) SendMessage(ctx context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Sent = append(s.Sent, text)
	return nil
}

func newTestJobs(p *MockPipeline, w *MockWeekly, n *SpyNotifier) (*Jobs, *[]time.Duration) {
	j := NewJobs(p, w, n, 3, time.Minute)
	var slept []time.Duration
	j.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return j, &slept
}

func TestRetry_BackoffGrowsPerAttempt(t *testing.T) {
	var slept []time.Duration
	sleep := func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	calls := 0
	err := Retry(context.Background(), "job", 3, 10*time.Second, sleep, func(ctx context.Context) error {
		calls++
		return errors.New("boom")
	})
	if err == nil || !strings.Contains(err.Error(), "after 3 attempts") {
		t.Errorf("Expected exhausted error, got %v", err)
	}
	if calls != 3 {
		t.Errorf("Expected 3 calls, got %d", calls)
	}
	if len(slept) != 2 || slept[0] != 10*time.Second || slept[1] != 20*time.Second {
		t.Errorf("Expected [10s 20s], got %v", slept)
	}
}

func TestRetry_StopsOnSuccess(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), "job", 3, time.Second, func(context.Context, time.Duration) error { return nil }, func(ctx context.Context) error {
		calls++
		if calls < 2 {
			return errors.New("boom")
		}
		return nil
	})
	if err != nil || calls != 2 {
		t.Errorf("Expected success on second call, got err=%v calls=%d", err, calls)
	}
}

func TestJobs_FailureNoticeOnlyOnFinalFailure(t *testing.T) {
	p := &MockPipeline{Failures: 2}
	n := &SpyNotifier{}
	j, _ := newTestJobs(p, &MockWeekly{}, n)

	if err := j.Full(context.Background(), time.Now()); err != nil {
		t.Fatalf("Expected recovery on third attempt, got %v", err)
	}
	if len(n.Sent) != 0 {
		t.Errorf("Expected no notice after recovery, got %v", n.Sent)
	}

	p = &MockPipeline{Failures: 5}
	n = &SpyNotifier{}
	j, slept := newTestJobs(p, &MockWeekly{}, n)
	if err := j.Full(context.Background(), time.Now()); err == nil {
		t.Fatal("Expected failure")
	}
	if len(p.Full) != 3 {
		t.Errorf("Expected 3 attempts, got %d", len(p.Full))
	}
	if len(*slept) != 2 || (*slept)[1] != 2*time.Minute {
		t.Errorf("Unexpected backoff %v", *slept)
	}
	if len(n.Sent) != 1 || !strings.HasPrefix(n.Sent[0], "❌ 전체 브리핑 실패") {
		t.Errorf("Expected one failure notice, got %v", n.Sent)
	}
}

func TestJobs_BusyWhileRunning(t *testing.T) {
	p := &MockPipeline{Started: make(chan struct{}), Block: make(chan struct{})}
	j, _ := newTestJobs(p, &MockWeekly{}, &SpyNotifier{})

	done := make(chan error)
	go func() { done <- j.Full(context.Background(), time.Now()) }()
	<-p.Started

	if err := j.Update(context.Background(), time.Now()); !errors.Is(err, ErrBusy) {
		t.Errorf("Expected ErrBusy, got %v", err)
	}
	close(p.Block)
	if err := <-done; err != nil {
		t.Errorf("First job failed: %v", err)
	}
}

func newTestScheduler(t *testing.T, p *MockPipeline, w *MockWeekly, now *time.Time) *Scheduler {
	cfg := &config.Config{
		FullBriefingAt:   config.Clock{Hour: 5, Minute: 30},
		UpdateBriefingAt: []config.Clock{{Hour: 12}, {Hour: 18}},
		WeeklyReviewDay:  time.Sunday,
		WeeklyReviewAt:   config.Clock{Hour: 9},
	}
	j, _ := newTestJobs(p, w, &SpyNotifier{})
	state := storage.NewStateFile(filepath.Join(t.TempDir(), "state.json"))
	s := New(j, Slots(cfg), state, seoul)
	s.now = func() time.Time { return *now }
	return s
}

func TestScheduler_RunsEachSlotOncePerDay(t *testing.T) {
	p := &MockPipeline{}
	w := &MockWeekly{}
	// Thursday.
	now := time.Date(2026, 10, 15, 5, 29, 0, 0, seoul)
	s := newTestScheduler(t, p, w, &now)
	ctx := context.Background()

	s.Tick(ctx)
	if len(p.Full) != 0 {
		t.Fatal("Full briefing ran before its slot")
	}

	now = now.Add(2 * time.Minute)
	s.Tick(ctx)
	now = now.Add(time.Minute)
	s.Tick(ctx)
	if len(p.Full) != 1 {
		t.Fatalf("Expected exactly one full run, got %d", len(p.Full))
	}

	now = time.Date(2026, 10, 15, 12, 5, 0, 0, seoul)
	s.Tick(ctx)
	s.Tick(ctx)
	if len(p.Updates) != 1 {
		t.Errorf("Expected one update run, got %d", len(p.Updates))
	}
	if w.Calls != 0 {
		t.Error("Weekly review must only run on its weekday")
	}

	now = time.Date(2026, 10, 16, 5, 45, 0, 0, seoul)
	s.Tick(ctx)
	if len(p.Full) != 2 {
		t.Errorf("Expected the next day's full run, got %d", len(p.Full))
	}
}

func TestScheduler_SkipsSlotsPastGrace(t *testing.T) {
	p := &MockPipeline{}
	now := time.Date(2026, 10, 15, 7, 31, 0, 0, seoul)
	s := newTestScheduler(t, p, &MockWeekly{}, &now)
	s.Tick(context.Background())
	if len(p.Full) != 0 {
		t.Error("Expected a slot missed by more than 2h to be skipped")
	}
}

func TestScheduler_WeeklyOnItsDay(t *testing.T) {
	w := &MockWeekly{}
	now := time.Date(2026, 10, 18, 9, 10, 0, 0, seoul) // Sunday
	s := newTestScheduler(t, &MockPipeline{}, w, &now)
	s.Tick(context.Background())
	s.Tick(context.Background())
	if w.Calls != 1 {
		t.Errorf("Expected one weekly run, got %d", w.Calls)
	}
}

type stubVideos []models.Item

func (s stubVideos) ListItems(ctx context.Context, ch models.Channel, start, end time.Time) ([]models.Item, error) {
	return s, nil
}

type stubTranscripts struct{}

func (stubTranscripts) Fetch(ctx context.Context, id string) (string, error) { return "", nil }

type stubMarket struct{}

func (stubMarket) Refresh(ctx context.Context) (*models.MarketSnapshot, error) {
	return &models.MarketSnapshot{}, nil
}

type buyEngine struct{}

func (buyEngine) Summarize(ctx context.Context, item models.Item, transcript string, m *models.MarketSnapshot) (models.BriefAnalysis, error) {
	return models.BriefAnalysis{Action: models.ActionBuy, Tickers: []string{"NVDA"}}, nil
}

func (buyEngine) OneLineInsight(ctx context.Context, items []models.ProcessedItem, m *models.MarketSnapshot) string {
	return ""
}

type downDelivery struct{ SpyNotifier }

func (d *downDelivery) Deliver(ctx context.Context, plan models.DeliveryPlan) error {
	return errors.New("telegram down")
}

type countingRecs struct {
	mu   sync.Mutex
	Recs []models.Recommendation
}

func (c *countingRecs) Create(ctx context.Context, rec *models.Recommendation) (uint, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Recs = append(c.Recs, *rec)
	return uint(len(c.Recs)), nil
}

func TestJobs_RetriedDeliveryDoesNotDuplicateRecommendations(t *testing.T) {
	date := time.Date(2026, 10, 15, 5, 30, 0, 0, seoul)
	recs := &countingRecs{}
	p := &briefing.Pipeline{
		Channels:    []models.Channel{{Name: "Econ TV", ID: "A"}},
		Videos:      stubVideos{{ID: "v1", Title: "Chips rally", PublishedAt: date.Add(-time.Hour)}},
		Transcripts: stubTranscripts{},
		Market:      stubMarket{},
		Engine:      buyEngine{},
		Cache:       cache.NewItemCache(cache.NewMemoryStore(), time.Hour),
		Store:       recs,
		Delivery:    &downDelivery{},
		Location:    seoul,
	}
	n := &SpyNotifier{}
	j := NewJobs(p, &MockWeekly{}, n, 3, time.Millisecond)
	j.sleep = func(context.Context, time.Duration) error { return nil }

	if err := j.Full(context.Background(), date); err == nil {
		t.Fatal("Expected delivery failure after retries")
	}
	if len(recs.Recs) != 0 {
		t.Errorf("Expected no NVDA rows from undelivered runs, got %d", len(recs.Recs))
	}
	if len(n.Sent) != 1 {
		t.Errorf("Expected one failure notice, got %v", n.Sent)
	}
}
