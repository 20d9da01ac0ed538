package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"market_briefing/internal/config"
	"market_briefing/internal/logger"
)

// Grace is how late a slot may still start. Older slots are skipped until the next day.
const Grace = 2 * time.Hour

// Slot is one recurring job. Weekly slots set Weekday.
type Slot struct {
	Name    string
	Job     string
	At      config.Clock
	Weekday *time.Weekday
}

// StateStore remembers which slot last ran when.
type StateStore interface {
	LastRun(job string) (time.Time, bool, error)
	MarkRun(job string, at time.Time) error
}

// Scheduler checks its slots once per tick and runs the ones that are due.
type Scheduler struct {
	jobs  *Jobs
	slots []Slot
	state StateStore
	loc   *time.Location
	tick  time.Duration
	now   func() time.Time
}

// Slots builds the full, update and weekly slots from the configuration.
func Slots(cfg *config.Config) []Slot {
	slots := []Slot{{Name: "full", Job: JobFull, At: cfg.FullBriefingAt}}
	for _, at := range cfg.UpdateBriefingAt {
		slots = append(slots, Slot{Name: "update@" + at.String(), Job: JobUpdate, At: at})
	}
	day := cfg.WeeklyReviewDay
	slots = append(slots, Slot{Name: "weekly", Job: JobWeekly, At: cfg.WeeklyReviewAt, Weekday: &day})
	return slots
}

func New(jobs *Jobs, slots []Slot, state StateStore, loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{jobs: jobs, slots: slots, state: state, loc: loc, tick: time.Minute, now: time.Now}
}

// Run ticks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	for _, sl := range s.slots {
		logger.Infof("Scheduled %s at %s (%s)", sl.Name, sl.At, describeDay(sl.Weekday))
	}
	s.Tick(ctx)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Infof("🛑 Scheduler stopping...")
			return ctx.Err()
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs every due slot in order.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.now().In(s.loc)
	for _, sl := range s.slots {
		scheduled, ok := s.due(sl, now)
		if !ok {
			continue
		}
		logger.Infof("Slot %s due (scheduled %s)", sl.Name, scheduled.Format("01/02 15:04"))
		err := s.runJob(ctx, sl.Job, now)
		if errors.Is(err, ErrBusy) {
			continue
		}
		// A slot that exhausted its retries is not rerun today.
		if err := s.state.MarkRun(sl.Name, scheduled); err != nil {
			logger.Errorf("Could not record run of %s: %v", sl.Name, err)
		}
	}
}

func (s *Scheduler) runJob(ctx context.Context, job string, now time.Time) error {
	switch job {
	case JobFull:
		return s.jobs.Full(ctx, now)
	case JobUpdate:
		return s.jobs.Update(ctx, now)
	case JobWeekly:
		return s.jobs.Weekly(ctx)
	default:
		return fmt.Errorf("unknown job %q", job)
	}
}

// due reports whether sl should run at now, and the slot instant it would satisfy.
func (s *Scheduler) due(sl Slot, now time.Time) (time.Time, bool) {
	if sl.Weekday != nil && now.Weekday() != *sl.Weekday {
		return time.Time{}, false
	}
	scheduled := sl.At.On(now)
	if now.Before(scheduled) || now.Sub(scheduled) > Grace {
		return scheduled, false
	}
	last, ok, err := s.state.LastRun(sl.Name)
	if err != nil {
		logger.Errorf("Could not read run state for %s: %v", sl.Name, err)
		return scheduled, false
	}
	if ok && !last.Before(scheduled) {
		return scheduled, false
	}
	return scheduled, true
}

func describeDay(d *time.Weekday) string {
	if d == nil {
		return "daily"
	}
	return d.String()
}
