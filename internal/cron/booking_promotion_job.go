package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/homeserve-backend/pkg/db/models"
	"github.com/angelmondragon/homeserve-backend/pkg/logger"
)

const (
	defaultPromotionInterval  = 5 * time.Minute
	defaultPromotionLookahead = 60 * time.Minute
	defaultBatchSize          = 200
)

type promotableFinder interface {
	FindPromotable(ctx context.Context, before time.Time, limit int) ([]models.Booking, error)
}

type bookingPromoter interface {
	PromoteScheduled(ctx context.Context, bookingID uuid.UUID) (bool, error)
}

type BookingPromotionJobParams struct {
	Logger    *logger.Logger
	Finder    promotableFinder
	Bookings  bookingPromoter
	Interval  time.Duration
	Lookahead time.Duration
	BatchSize int
	Clock     func() time.Time
}

// NewBookingPromotionJob moves paid scheduled bookings whose start falls inside
// the lookahead window into the assignment pipeline.
func NewBookingPromotionJob(params BookingPromotionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Finder == nil {
		return nil, fmt.Errorf("booking finder required")
	}
	if params.Bookings == nil {
		return nil, fmt.Errorf("booking service required")
	}
	job := &bookingPromotionJob{
		logg:      params.Logger,
		finder:    params.Finder,
		bookings:  params.Bookings,
		interval:  params.Interval,
		lookahead: params.Lookahead,
		batch:     params.BatchSize,
		now:       params.Clock,
	}
	if job.interval <= 0 {
		job.interval = defaultPromotionInterval
	}
	if job.lookahead <= 0 {
		job.lookahead = defaultPromotionLookahead
	}
	if job.batch <= 0 {
		job.batch = defaultBatchSize
	}
	if job.now == nil {
		job.now = time.Now
	}
	return job, nil
}

type bookingPromotionJob struct {
	logg      *logger.Logger
	finder    promotableFinder
	bookings  bookingPromoter
	interval  time.Duration
	lookahead time.Duration
	batch     int
	now       func() time.Time
}

func (j *bookingPromotionJob) Name() string { return "booking-promotion" }

func (j *bookingPromotionJob) Interval() time.Duration { return j.interval }

func (j *bookingPromotionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(j.lookahead)
	due, err := j.finder.FindPromotable(ctx, cutoff, j.batch)
	if err != nil {
		return fmt.Errorf("find promotable bookings: %w", err)
	}

	var (
		promoted int
		errs     error
	)
	for _, booking := range due {
		ok, err := j.bookings.PromoteScheduled(ctx, booking.ID)
		if err != nil {
			j.logg.Error(j.logg.WithBookingID(ctx, booking.ID.String()), "promote booking failed", err)
			errs = multierr.Append(errs, err)
			continue
		}
		if ok {
			promoted++
		}
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":   cutoff,
		"due":      len(due),
		"promoted": promoted,
	}), "booking promotion complete")
	return errs
}
