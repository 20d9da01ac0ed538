// Package scheduler runs the briefing jobs on their daily and weekly slots,
// retrying failures and reporting the final one to the chat.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"market_briefing/internal/briefing"
	"market_briefing/internal/delivery"
	"market_briefing/internal/logger"
	"market_briefing/internal/models"
)

// ErrBusy is returned when a job is triggered while another one is still running.
var ErrBusy = errors.New("scheduler: another job is running")

const (
	JobFull   = "full"
	JobUpdate = "update"
	JobWeekly = "weekly"
)

var jobLabels = map[string]string{
	JobFull:   "전체 브리핑",
	JobUpdate: "업데이트 브리핑",
	JobWeekly: "주간 리뷰",
}

// BriefingRunner is the pipeline.
type BriefingRunner interface {
	RunFull(ctx context.Context, date time.Time) (briefing.Result, error)
	RunUpdate(ctx context.Context, now time.Time) (briefing.Result, error)
}

// WeeklyRunner is the weekly review job.
type WeeklyRunner interface {
	Run(ctx context.Context) (models.WeeklyReview, error)
}

// Notifier receives the failure notice of a job that ran out of attempts.
type Notifier interface {
	SendMessage(ctx context.Context, text string) error
}

// Jobs is the single entry point for every run, whether triggered by a slot,
// a chat command, the CLI or the HTTP API. Only one job runs at a time.
type Jobs struct {
	pipeline BriefingRunner
	weekly   WeeklyRunner
	notifier Notifier
	attempts int
	backoff  time.Duration

	mu    sync.Mutex
	sleep func(context.Context, time.Duration) error
}

func NewJobs(pipeline BriefingRunner, weekly WeeklyRunner, notifier Notifier, attempts int, backoff time.Duration) *Jobs {
	return &Jobs{
		pipeline: pipeline,
		weekly:   weekly,
		notifier: notifier,
		attempts: attempts,
		backoff:  backoff,
		sleep:    sleepCtx,
	}
}

// Full runs the morning briefing for date.
func (j *Jobs) Full(ctx context.Context, date time.Time) error {
	return j.do(ctx, JobFull, func(ctx context.Context) error {
		_, err := j.pipeline.RunFull(ctx, date)
		return err
	})
}

// Update runs the intraday update ending at now.
func (j *Jobs) Update(ctx context.Context, now time.Time) error {
	return j.do(ctx, JobUpdate, func(ctx context.Context) error {
		_, err := j.pipeline.RunUpdate(ctx, now)
		return err
	})
}

// Weekly runs the weekly review.
func (j *Jobs) Weekly(ctx context.Context) error {
	return j.do(ctx, JobWeekly, func(ctx context.Context) error {
		_, err := j.weekly.Run(ctx)
		return err
	})
}

func (j *Jobs) do(ctx context.Context, job string, fn func(context.Context) error) error {
	if !j.mu.TryLock() {
		logger.Warnf("Job %s skipped: another job is running", job)
		return ErrBusy
	}
	defer j.mu.Unlock()

	label := jobLabels[job]
	start := time.Now()
	err := Retry(ctx, label, j.attempts, j.backoff, j.sleep, fn)
	if err != nil {
		logger.Errorf("Job %s failed: %v", job, err)
		if ctx.Err() == nil {
			if nerr := j.notifier.SendMessage(ctx, delivery.FailureNotice(label, err)); nerr != nil {
				logger.Errorf("Failure notice for %s not sent: %v", job, nerr)
			}
		}
		return err
	}
	logger.Infof("Job %s finished in %s", job, time.Since(start).Round(time.Second))
	return nil
}
