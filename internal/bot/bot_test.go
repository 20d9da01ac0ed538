package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"market_briefing/internal/cache"
	"market_briefing/internal/delivery"
	"market_briefing/internal/models"
	"market_briefing/internal/scheduler"
	"market_briefing/internal/storage"
	"market_briefing/internal/telegram"
)

var seoul = time.FixedZone("KST", 9*3600)

// clockStore is a TTL store on a controllable clock.
type clockStore struct {
	mu      sync.Mutex
	now     time.Time
	values  map[string][]byte
	expires map[string]time.Time
}

func newClockStore() *clockStore {
	return &clockStore{
		now:     time.Date(2026, 10, 15, 6, 0, 0, 0, seoul),
		values:  map[string][]byte{},
		expires: map[string]time.Time{},
	}
}

func (s *clockStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	s.expires[key] = s.now.Add(ttl)
	return nil
}

func (s *clockStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	if !ok || !s.now.Before(s.expires[key]) {
		return nil, false, nil
	}
	return v, true, nil
}

func (s *clockStore) Advance(d time.Duration) {
	s.mu.Lock()
	s.now = s.now.Add(d)
	s.mu.Unlock()
}

// SpyEngine counts Detail calls and can hold them until released.
type SpyEngine struct {
	calls       atomic.Int32
	gate        chan struct{}
	fallback    bool
	transcripts []string
	mu          sync.Mutex
}

func (s *SpyEngine) Detail(ctx context.Context, item models.Item, transcript string, m *models.MarketSnapshot) (models.DetailedAnalysis, error) {
	s.calls.Add(1)
	s.mu.Lock()
	s.transcripts = append(s.transcripts, transcript)
	s.mu.Unlock()
	if s.gate != nil {
		<-s.gate
	}
	if s.fallback {
		d := models.DetailedAnalysis{Who: models.NoInformation, Confidence: "low", Fallback: true}
		return d, errors.New("llm down")
	}
	return models.DetailedAnalysis{Who: "연준", What: "금리 동결", Confidence: "high"}, nil
}

type MockMarket struct{ Err error }

func (m MockMarket) Get(ctx context.Context) (*models.MarketSnapshot, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return &models.MarketSnapshot{}, nil
}

type SpyReplier struct {
	mu       sync.Mutex
	Sent     []string
	Answered []string
}

func (s *SpyReplier) SendMessage(ctx context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Sent = append(s.Sent, text)
	return nil
}

func (s *SpyReplier) AnswerCallback(ctx context.Context, id, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Answered = append(s.Answered, id)
	return nil
}

func (s *SpyReplier) count(prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.Sent {
		if strings.HasPrefix(m, prefix) {
			n++
		}
	}
	return n
}

type MockRunner struct {
	FullDates []time.Time
	Updates   int
	Weeklies  int
	Err       error
}

func (m *MockRunner) Full(ctx context.Context, date time.Time) error {
	m.FullDates = append(m.FullDates, date)
	return m.Err
}

func (m *MockRunner) Update(ctx context.Context, now time.Time) error {
	m.Updates++
	return m.Err
}

func (m *MockRunner) Weekly(ctx context.Context) error {
	m.Weeklies++
	return m.Err
}

type MockRecs struct {
	Queries []storage.Query
	Rows    []models.Recommendation
	Err     error
}

func (m *MockRecs) Query(ctx context.Context, q storage.Query) ([]models.Recommendation, error) {
	m.Queries = append(m.Queries, q)
	return m.Rows, m.Err
}

type fixture struct {
	h      *Handler
	store  *clockStore
	cache  *cache.ItemCache
	engine *SpyEngine
	out    *SpyReplier
	runner *MockRunner
	recs   *MockRecs
}

var item = models.Item{ID: "vid1", Title: "Fed holds rates", Source: "Econ TV"}

func newFixture() *fixture {
	f := &fixture{
		store:  newClockStore(),
		engine: &SpyEngine{},
		out:    &SpyReplier{},
		runner: &MockRunner{},
		recs:   &MockRecs{},
	}
	f.cache = cache.NewItemCache(f.store, 24*time.Hour)
	f.h = New(Deps{
		Cache:    f.cache,
		Engine:   f.engine,
		Market:   MockMarket{},
		Out:      f.out,
		Runner:   f.runner,
		Recs:     f.recs,
		Location: seoul,
	})
	f.h.now = func() time.Time { return time.Date(2026, 10, 15, 7, 0, 0, 0, seoul) }
	return f
}

func TestShowDetail_NeverCached(t *testing.T) {
	f := newFixture()
	if err := f.h.ShowDetail(context.Background(), "unknown"); err != nil {
		t.Fatalf("ShowDetail failed: %v", err)
	}
	if len(f.out.Sent) != 1 || f.out.Sent[0] != delivery.ExpiredNotice {
		t.Errorf("Expected only the expiry notice, got %v", f.out.Sent)
	}
	if f.engine.calls.Load() != 0 {
		t.Error("Engine must not run for an absent item")
	}
}

func TestShowDetail_ComputesOnceThenServesCache(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.cache.PutItem(ctx, item, true)
	f.cache.PutTranscript(ctx, item.ID, "자막 본문")

	f.h.ShowDetail(ctx, item.ID)
	f.h.ShowDetail(ctx, item.ID)

	if n := f.engine.calls.Load(); n != 1 {
		t.Errorf("Expected one computation, got %d", n)
	}
	if f.engine.transcripts[0] != "자막 본문" {
		t.Errorf("Expected cached transcript passed to engine, got %q", f.engine.transcripts[0])
	}
	if f.out.count("⏳") != 1 {
		t.Errorf("Expected one generating notice, got %v", f.out.Sent)
	}
	want := delivery.RenderDetail(item, models.DetailedAnalysis{Who: "연준", What: "금리 동결", Confidence: "high"})
	var details []string
	for _, m := range f.out.Sent {
		if strings.Contains(m, "연준") {
			details = append(details, m)
		}
	}
	if len(details) != 2 || details[0] != details[1] {
		t.Fatalf("Expected the same detail twice, got %v", details)
	}
	if !strings.Contains(details[0], "금리 동결") || details[0] != want {
		t.Errorf("Unexpected detail %q", details[0])
	}
}

func TestShowDetail_ExpiresWithTTL(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.cache.PutItem(ctx, item, false)
	f.h.ShowDetail(ctx, item.ID)

	f.store.Advance(24*time.Hour + time.Second)
	f.out.Sent = nil
	f.h.ShowDetail(ctx, item.ID)

	if len(f.out.Sent) != 1 || f.out.Sent[0] != delivery.ExpiredNotice {
		t.Errorf("Expected expiry notice after TTL, got %v", f.out.Sent)
	}
	if f.engine.calls.Load() != 1 {
		t.Error("Expected no computation after expiry")
	}
}

func TestShowDetail_FallbackNotMemoized(t *testing.T) {
	f := newFixture()
	f.engine.fallback = true
	ctx := context.Background()
	f.cache.PutItem(ctx, item, false)

	f.h.ShowDetail(ctx, item.ID)
	f.h.ShowDetail(ctx, item.ID)
	if n := f.engine.calls.Load(); n != 2 {
		t.Errorf("Expected a retry after a fallback detail, got %d calls", n)
	}
	if _, ok, _ := f.cache.GetDetail(ctx, item.ID); ok {
		t.Error("Fallback detail must not be cached")
	}
}

func TestShowDetail_MarketUnavailable(t *testing.T) {
	f := newFixture()
	f.h.market = MockMarket{Err: errors.New("alpaca down")}
	ctx := context.Background()
	f.cache.PutItem(ctx, item, false)

	if err := f.h.ShowDetail(ctx, item.ID); err != nil {
		t.Fatalf("ShowDetail failed: %v", err)
	}
	if f.engine.calls.Load() != 1 {
		t.Error("Expected detail computed without market data")
	}
}

func TestShowDetail_ConcurrentPressesComputeOnce(t *testing.T) {
	f := newFixture()
	f.engine.gate = make(chan struct{})
	ctx := context.Background()
	f.cache.PutItem(ctx, item, false)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.h.ShowDetail(ctx, item.ID)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(f.engine.gate)
	wg.Wait()

	if n := f.engine.calls.Load(); n != 1 {
		t.Errorf("Expected a single computation, got %d", n)
	}
	if got := f.out.count("🔍 *상세 분석*"); got != 5 {
		t.Errorf("Expected every press answered with the detail, got %d", got)
	}
}

func TestHandleCallback(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.cache.PutItem(ctx, item, false)

	f.h.HandleCallback(ctx, telegram.CallbackQuery{ID: "cb1", Data: cache.DetailRef(item.ID)})
	if len(f.out.Answered) != 1 || f.out.Answered[0] != "cb1" {
		t.Errorf("Expected callback acknowledged, got %v", f.out.Answered)
	}
	if f.engine.calls.Load() != 1 {
		t.Error("Expected detail computed")
	}

	f.out.Sent = nil
	f.h.HandleCallback(ctx, telegram.CallbackQuery{ID: "cb2", Data: "something_else"})
	if len(f.out.Answered) != 2 || len(f.out.Sent) != 0 {
		t.Errorf("Unknown data should be acknowledged and ignored, got %v", f.out.Sent)
	}
}

func TestRespond_Commands(t *testing.T) {
	ctx := context.Background()

	f := newFixture()
	help := f.h.Respond(ctx, "/start")
	for _, c := range []string{"/briefing", "/update", "/weekly", "/test", "/recs"} {
		if !strings.Contains(help, c) {
			t.Errorf("Help is missing %s", c)
		}
	}

	if got := f.h.Respond(ctx, "/briefing 2026-10-14"); got != "" {
		t.Errorf("Expected no final reply on success, got %q", got)
	}
	if len(f.runner.FullDates) != 1 || f.runner.FullDates[0].Day() != 14 || f.runner.FullDates[0].Location() != seoul {
		t.Errorf("Expected full run for Oct 14 in the briefing zone, got %v", f.runner.FullDates)
	}
	if f.out.count("🚀 2026-10-14") != 1 {
		t.Errorf("Expected start notice, got %v", f.out.Sent)
	}

	f.h.Respond(ctx, "/briefing@MarketBot")
	if len(f.runner.FullDates) != 2 || f.runner.FullDates[1].Day() != 15 {
		t.Errorf("Expected today's run, got %v", f.runner.FullDates)
	}

	if got := f.h.Respond(ctx, "/briefing yesterday"); !strings.HasPrefix(got, "Usage") {
		t.Errorf("Expected usage, got %q", got)
	}

	f.h.Respond(ctx, "/weekly")
	if f.runner.Weeklies != 1 {
		t.Error("Expected weekly review triggered")
	}

	f.runner.Err = scheduler.ErrBusy
	if got := f.h.Respond(ctx, "/update"); !strings.Contains(got, "이미") {
		t.Errorf("Expected busy reply, got %q", got)
	}

	if got := f.h.Respond(ctx, "/test"); !strings.HasPrefix(got, "✅ 연결 정상") {
		t.Errorf("Unexpected /test reply %q", got)
	}
	if got := f.h.Respond(ctx, "/nope"); !strings.Contains(got, "/start") {
		t.Errorf("Unexpected reply %q", got)
	}
	if got := f.h.Respond(ctx, "   "); got != "" {
		t.Errorf("Expected no reply for blank text, got %q", got)
	}
}

func TestRespond_Recs(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.recs.Rows = []models.Recommendation{{Ticker: "NVDA", Action: "BUY", BriefingDate: time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC)}}

	got := f.h.Respond(ctx, "/recs 3")
	if !strings.Contains(got, "NVDA") || !strings.Contains(got, "최근 3일") {
		t.Errorf("Unexpected listing %q", got)
	}
	q := f.recs.Queries[0]
	if !q.From.Equal(time.Date(2026, 10, 13, 0, 0, 0, 0, time.UTC)) || !q.To.Equal(time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Unexpected range %v ~ %v", q.From, q.To)
	}

	f.h.Respond(ctx, "/recs 1000")
	if q := f.recs.Queries[1]; q.To.Sub(q.From) != 90*24*time.Hour {
		t.Errorf("Expected range capped at 90 days, got %v", q.To.Sub(q.From))
	}
	if got := f.h.Respond(ctx, "/recs -1"); !strings.HasPrefix(got, "Usage") {
		t.Errorf("Expected usage, got %q", got)
	}

	f.recs.Err = errors.New("db down")
	if got := f.h.Respond(ctx, "/recs"); !strings.HasPrefix(got, "⚠️") {
		t.Errorf("Expected error reply, got %q", got)
	}
}
