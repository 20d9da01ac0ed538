package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"market_briefing/internal/models"
	"market_briefing/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/assert/v2"
)

var seoul = time.FixedZone("KST", 9*3600)

type fakeStore struct {
	recs  []models.Recommendation
	query storage.Query
	err   error
}

func (f *fakeStore) Query(ctx context.Context, q storage.Query) ([]models.Recommendation, error) {
	f.query = q
	return f.recs, f.err
}

type fakeRunner struct {
	full   chan time.Time
	update chan time.Time
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{full: make(chan time.Time, 1), update: make(chan time.Time, 1)}
}

func (f *fakeRunner) Full(ctx context.Context, date time.Time) error {
	f.full <- date
	return nil
}

func (f *fakeRunner) Update(ctx context.Context, now time.Time) error {
	f.update <- now
	return nil
}

func newTestRouter(runner Runner, store RecommendationStore) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewHandler(context.Background(), runner, store, seoul)
	h.now = func() time.Time { return time.Date(2026, 10, 15, 7, 0, 0, 0, seoul) }
	h.Register(r)
	return r
}

func do(r *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	r.ServeHTTP(w, req)
	return w
}

func TestGetHealth(t *testing.T) {
	r := newTestRouter(newFakeRunner(), &fakeStore{})
	w := do(r, "GET", "/health")

	assert.Equal(t, http.StatusOK, w.Code)
	var res map[string]string
	json.Unmarshal(w.Body.Bytes(), &res)
	assert.Equal(t, "healthy", res["status"])
}

func TestGetRecommendations(t *testing.T) {
	store := &fakeStore{recs: []models.Recommendation{{ID: 1, Ticker: "NVDA", Action: "BUY"}}}
	r := newTestRouter(newFakeRunner(), store)

	w := do(r, "GET", "/recommendations?days=3&action=buy")
	assert.Equal(t, http.StatusOK, w.Code)

	var res struct {
		Days            int                     `json:"days"`
		Count           int                     `json:"count"`
		Recommendations []models.Recommendation `json:"recommendations"`
	}
	json.Unmarshal(w.Body.Bytes(), &res)
	assert.Equal(t, 3, res.Days)
	assert.Equal(t, 1, res.Count)
	assert.Equal(t, "NVDA", res.Recommendations[0].Ticker)
	assert.Equal(t, "BUY", store.query.Action)
	assert.Equal(t, true, store.query.From.Equal(time.Date(2026, 10, 13, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, true, store.query.To.Equal(time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)))
}

func TestGetRecommendations_DefaultAndClampedDays(t *testing.T) {
	store := &fakeStore{}
	r := newTestRouter(newFakeRunner(), store)

	w := do(r, "GET", "/recommendations?days=abc")
	var res map[string]any
	json.Unmarshal(w.Body.Bytes(), &res)
	assert.Equal(t, float64(7), res["days"])
	assert.Equal(t, float64(0), res["count"])

	w = do(r, "GET", "/recommendations?days=365")
	json.Unmarshal(w.Body.Bytes(), &res)
	assert.Equal(t, float64(90), res["days"])
}

func TestGetRecommendations_DBError(t *testing.T) {
	r := newTestRouter(newFakeRunner(), &fakeStore{err: errors.New("DB down")})
	w := do(r, "GET", "/recommendations")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestPostFullBriefing(t *testing.T) {
	runner := newFakeRunner()
	r := newTestRouter(runner, &fakeStore{})

	w := do(r, "POST", "/briefings/full?date=2026-10-14")
	assert.Equal(t, http.StatusAccepted, w.Code)

	select {
	case d := <-runner.full:
		assert.Equal(t, true, d.Equal(time.Date(2026, 10, 14, 0, 0, 0, 0, seoul)))
	case <-time.After(time.Second):
		t.Fatal("Full run was not triggered")
	}
}

func TestPostFullBriefing_InvalidDate(t *testing.T) {
	runner := newFakeRunner()
	r := newTestRouter(runner, &fakeStore{})

	w := do(r, "POST", "/briefings/full?date=14-10-2026")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	select {
	case <-runner.full:
		t.Error("Run must not start on a bad date")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestPostUpdateBriefing(t *testing.T) {
	runner := newFakeRunner()
	r := newTestRouter(runner, &fakeStore{})

	w := do(r, "POST", "/briefings/update")
	assert.Equal(t, http.StatusAccepted, w.Code)
	select {
	case <-runner.update:
	case <-time.After(time.Second):
		t.Fatal("Update run was not triggered")
	}
}
