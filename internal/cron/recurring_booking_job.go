package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/homeserve-backend/internal/recurring"
	"github.com/angelmondragon/homeserve-backend/pkg/db/models"
	"github.com/angelmondragon/homeserve-backend/pkg/enums"
	"github.com/angelmondragon/homeserve-backend/pkg/logger"
)

const defaultRecurringInterval = time.Hour

type patternStore interface {
	FindDue(ctx context.Context, now time.Time, limit int) ([]models.RecurringPattern, error)
	Advance(ctx context.Context, id uuid.UUID, from, to time.Time, generated int) (bool, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from []enums.PatternStatus, updates map[string]any) (bool, error)
}

type patternBooker interface {
	CreateFromPattern(ctx context.Context, pattern models.RecurringPattern, occurrence time.Time) (*models.Booking, bool, error)
}

type RecurringBookingJobParams struct {
	Logger    *logger.Logger
	Patterns  patternStore
	Bookings  patternBooker
	Interval  time.Duration
	BatchSize int
	Clock     func() time.Time
}

// NewRecurringBookingJob materialises the next occurrence of every due pattern.
func NewRecurringBookingJob(params RecurringBookingJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Patterns == nil {
		return nil, fmt.Errorf("pattern repository required")
	}
	if params.Bookings == nil {
		return nil, fmt.Errorf("booking service required")
	}
	job := &recurringBookingJob{
		logg:     params.Logger,
		patterns: params.Patterns,
		bookings: params.Bookings,
		interval: params.Interval,
		batch:    params.BatchSize,
		now:      params.Clock,
	}
	if job.interval <= 0 {
		job.interval = defaultRecurringInterval
	}
	if job.batch <= 0 {
		job.batch = defaultBatchSize
	}
	if job.now == nil {
		job.now = time.Now
	}
	return job, nil
}

type recurringBookingJob struct {
	logg     *logger.Logger
	patterns patternStore
	bookings patternBooker
	interval time.Duration
	batch    int
	now      func() time.Time
}

func (j *recurringBookingJob) Name() string { return "recurring-bookings" }

func (j *recurringBookingJob) Interval() time.Duration { return j.interval }

func (j *recurringBookingJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	due, err := j.patterns.FindDue(ctx, now, j.batch)
	if err != nil {
		return fmt.Errorf("find due patterns: %w", err)
	}

	var (
		created, completed int
		errs               error
	)
	for _, pattern := range due {
		patternCtx := j.logg.WithField(ctx, "pattern_id", pattern.ID.String())
		outcome, err := j.process(patternCtx, pattern, now)
		if err != nil {
			j.logg.Error(patternCtx, "recurring pattern failed", err)
			errs = multierr.Append(errs, err)
			continue
		}
		switch outcome {
		case outcomeCreated:
			created++
		case outcomeCompleted:
			completed++
		}
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"due":       len(due),
		"created":   created,
		"completed": completed,
	}), "recurring bookings complete")
	return errs
}

type patternOutcome int

const (
	outcomeSkipped patternOutcome = iota
	outcomeCreated
	outcomeCompleted
)

// process books the pattern's next occurrence after now and moves the check
// point to it. A second run in the same window finds the booking already there
// and the check point already moved.
func (j *recurringBookingJob) process(ctx context.Context, pattern models.RecurringPattern, now time.Time) (patternOutcome, error) {
	occurrence, ok := recurring.NextOccurrence(pattern, now)
	if !ok {
		done, err := j.patterns.UpdateStatus(ctx, pattern.ID,
			[]enums.PatternStatus{enums.PatternStatusActive},
			map[string]any{"status": enums.PatternStatusCancelled})
		if err != nil {
			return outcomeSkipped, fmt.Errorf("complete pattern: %w", err)
		}
		if done {
			return outcomeCompleted, nil
		}
		return outcomeSkipped, nil
	}

	booking, isNew, err := j.bookings.CreateFromPattern(ctx, pattern, occurrence)
	if err != nil {
		return outcomeSkipped, fmt.Errorf("create occurrence %s: %w", occurrence.Format(time.RFC3339), err)
	}
	generated := 0
	if isNew {
		generated = 1
		j.logg.Info(j.logg.WithBookingID(ctx, booking.ID.String()), "recurring booking created")
	}
	if _, err := j.patterns.Advance(ctx, pattern.ID, pattern.NextScheduleDate, occurrence, generated); err != nil {
		return outcomeSkipped, fmt.Errorf("advance pattern: %w", err)
	}
	if isNew {
		return outcomeCreated, nil
	}
	return outcomeSkipped, nil
}
