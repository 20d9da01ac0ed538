// Package api exposes health, recommendation listing and run triggers over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"market_briefing/internal/logger"
	"market_briefing/internal/models"
	"market_briefing/internal/scheduler"
	"market_briefing/internal/storage"

	"github.com/gin-gonic/gin"
)

// RecommendationStore lists stored recommendations.
type RecommendationStore interface {
	Query(ctx context.Context, q storage.Query) ([]models.Recommendation, error)
}

// Runner triggers jobs.
type Runner interface {
	Full(ctx context.Context, date time.Time) error
	Update(ctx context.Context, now time.Time) error
}

type Handler struct {
	runner  Runner
	recs    RecommendationStore
	loc     *time.Location
	now     func() time.Time
	baseCtx context.Context
}

// NewHandler builds the handler. Triggered jobs run under baseCtx, not the request's.
func NewHandler(baseCtx context.Context, runner Runner, recs RecommendationStore, loc *time.Location) *Handler {
	if loc == nil {
		loc = time.Local
	}
	return &Handler{runner: runner, recs: recs, loc: loc, now: time.Now, baseCtx: baseCtx}
}

// Register mounts the routes on r.
func (h *Handler) Register(r gin.IRoutes) {
	r.GET("/health", h.GetHealth)
	r.GET("/recommendations", h.GetRecommendations)
	r.POST("/briefings/full", h.PostFullBriefing)
	r.POST("/briefings/update", h.PostUpdateBriefing)
}

func (h *Handler) GetHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   h.now().In(h.loc).Format(time.RFC3339),
	})
}

func (h *Handler) GetRecommendations(c *gin.Context) {
	days := getQueryDays(c)
	to := storage.DateOnly(h.now().In(h.loc)).AddDate(0, 0, 1)
	q := storage.Query{
		From:   to.AddDate(0, 0, -days),
		To:     to,
		Action: strings.ToUpper(c.Query("action")),
		Ticker: strings.ToUpper(c.Query("ticker")),
		Order:  storage.NewestFirst,
	}

	recs, err := h.recs.Query(c.Request.Context(), q)
	if err != nil {
		logger.Errorf("API recommendation query failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if recs == nil {
		recs = []models.Recommendation{}
	}
	c.JSON(http.StatusOK, gin.H{
		"days":            days,
		"count":           len(recs),
		"recommendations": recs,
	})
}

func (h *Handler) PostFullBriefing(c *gin.Context) {
	date := h.now().In(h.loc)
	if s := c.Query("date"); s != "" {
		d, err := time.ParseInLocation("2006-01-02", s, h.loc)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid date, want YYYY-MM-DD"})
			return
		}
		date = d
	}
	h.start(scheduler.JobFull, func(ctx context.Context) error { return h.runner.Full(ctx, date) })
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted", "job": scheduler.JobFull, "date": date.Format("2006-01-02")})
}

func (h *Handler) PostUpdateBriefing(c *gin.Context) {
	now := h.now().In(h.loc)
	h.start(scheduler.JobUpdate, func(ctx context.Context) error { return h.runner.Update(ctx, now) })
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted", "job": scheduler.JobUpdate})
}

// start runs a job in the background. The runner reports failures to the chat.
func (h *Handler) start(job string, run func(context.Context) error) {
	logger.Infof("API triggered %s run", job)
	go func() {
		if err := run(h.baseCtx); err != nil && !errors.Is(err, scheduler.ErrBusy) {
			logger.Errorf("API %s run failed: %v", job, err)
		}
	}()
}

func getQueryDays(c *gin.Context) int {
	const (
		defaultDays = 7
		maxDays     = 90
	)
	s := c.Query("days")
	if s == "" {
		return defaultDays
	}
	days, err := strconv.Atoi(s)
	if err != nil || days < 1 {
		logger.Warnf("Invalid days query %q, using default", s)
		return defaultDays
	}
	return min(days, maxDays)
}
