package partners

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/homeserve-backend/pkg/db/models"
	"github.com/angelmondragon/homeserve-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/homeserve-backend/pkg/errors"
	"github.com/angelmondragon/homeserve-backend/pkg/logger"
	"github.com/angelmondragon/homeserve-backend/pkg/types"
)

// predecessors lists the statuses a partner may move to each booking stage
// from. A redelivered or reordered event never moves the document backwards or
// skips travel. ServiceStarted is confirmed by OTP so it closes any gap.
var predecessors = map[enums.AvailabilityStatus][]enums.AvailabilityStatus{
	enums.AvailabilityEnroute: {enums.AvailabilityAssigned},
	enums.AvailabilityArrived: {enums.AvailabilityEnroute},
	enums.AvailabilityBusy:    {enums.AvailabilityAssigned, enums.AvailabilityEnroute, enums.AvailabilityArrived},
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Tracker maintains one availability document per partner from booking events.
type Tracker interface {
	OnAssigned(ctx context.Context, partnerID, bookingID uuid.UUID, scheduledAt time.Time) error
	OnEnroute(ctx context.Context, partnerID, bookingID uuid.UUID, loc *types.LiveLocation) error
	OnArrived(ctx context.Context, partnerID, bookingID uuid.UUID) error
	OnServiceStarted(ctx context.Context, partnerID, bookingID uuid.UUID) error
	OnServiceCompleted(ctx context.Context, partnerID, bookingID uuid.UUID, completedAt time.Time) error
	OnBookingCancelled(ctx context.Context, partnerID, bookingID uuid.UUID) error
	SetOnline(ctx context.Context, partnerID uuid.UUID, online bool) (*models.PartnerAvailability, error)
	SetBreak(ctx context.Context, partnerID uuid.UUID, onBreak bool) (*models.PartnerAvailability, error)
	UpdateLocation(ctx context.Context, partnerID uuid.UUID, loc types.LiveLocation) (bool, error)
	Get(ctx context.Context, partnerID uuid.UUID) (*models.PartnerAvailability, error)
}

// TrackerParams groups dependencies for the tracker.
type TrackerParams struct {
	Repo   Repository
	Tx     txRunner
	Logger *logger.Logger
}

type tracker struct {
	repo Repository
	tx   txRunner
	logg *logger.Logger
}

// NewTracker builds an availability tracker.
func NewTracker(params TrackerParams) (Tracker, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("availability repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &tracker{repo: params.Repo, tx: params.Tx, logg: params.Logger}, nil
}

func (t *tracker) OnAssigned(ctx context.Context, partnerID, bookingID uuid.UUID, scheduledAt time.Time) error {
	return t.mutate(ctx, partnerID, func(doc *models.PartnerAvailability) (map[string]any, error) {
		updates := map[string]any{}
		jobs := doc.ScheduledJobs.Clone()
		if jobs.Append(types.DayKey(scheduledAt), bookingID.String()) {
			updates["scheduled_jobs"] = jobs
		}
		if bindable(doc, bookingID) {
			updates["status"] = enums.AvailabilityAssigned
			updates["online"] = true
			updates["current_booking_id"] = bookingID
		}
		return updates, nil
	})
}

func (t *tracker) OnEnroute(ctx context.Context, partnerID, bookingID uuid.UUID, loc *types.LiveLocation) error {
	return t.mutate(ctx, partnerID, func(doc *models.PartnerAvailability) (map[string]any, error) {
		updates := map[string]any{}
		if advance(doc, bookingID, enums.AvailabilityEnroute) {
			updates["status"] = enums.AvailabilityEnroute
			updates["online"] = true
			updates["current_booking_id"] = bookingID
		}
		if loc != nil && loc.Valid() && loc.IsNewerThan(&doc.Location) {
			updates["location"] = *loc
		}
		return updates, nil
	})
}

func (t *tracker) OnArrived(ctx context.Context, partnerID, bookingID uuid.UUID) error {
	return t.mutate(ctx, partnerID, func(doc *models.PartnerAvailability) (map[string]any, error) {
		if !advance(doc, bookingID, enums.AvailabilityArrived) {
			return nil, nil
		}
		return map[string]any{
			"status":             enums.AvailabilityArrived,
			"online":             true,
			"current_booking_id": bookingID,
		}, nil
	})
}

func (t *tracker) OnServiceStarted(ctx context.Context, partnerID, bookingID uuid.UUID) error {
	return t.mutate(ctx, partnerID, func(doc *models.PartnerAvailability) (map[string]any, error) {
		if !advance(doc, bookingID, enums.AvailabilityBusy) {
			return nil, nil
		}
		return map[string]any{
			"status":             enums.AvailabilityBusy,
			"online":             true,
			"current_booking_id": bookingID,
		}, nil
	})
}

// OnServiceCompleted frees the partner and records the job once for its day.
func (t *tracker) OnServiceCompleted(ctx context.Context, partnerID, bookingID uuid.UUID, completedAt time.Time) error {
	return t.mutate(ctx, partnerID, func(doc *models.PartnerAvailability) (map[string]any, error) {
		updates := map[string]any{}
		jobs := doc.CompletedJobs.Clone()
		if jobs.Append(types.DayKey(completedAt), bookingID.String()) {
			updates["completed_jobs"] = jobs
		}
		if isCurrent(doc, bookingID) {
			updates["status"] = enums.AvailabilityIdle
			updates["online"] = true
			updates["current_booking_id"] = nil
		}
		return updates, nil
	})
}

func (t *tracker) OnBookingCancelled(ctx context.Context, partnerID, bookingID uuid.UUID) error {
	return t.mutate(ctx, partnerID, func(doc *models.PartnerAvailability) (map[string]any, error) {
		if !isCurrent(doc, bookingID) {
			return nil, nil
		}
		status := enums.AvailabilityIdle
		if !doc.Online {
			status = enums.AvailabilityOffline
		}
		return map[string]any{
			"status":             status,
			"current_booking_id": nil,
		}, nil
	})
}

// SetOnline toggles presence. Going offline is refused while a booking is bound.
func (t *tracker) SetOnline(ctx context.Context, partnerID uuid.UUID, online bool) (*models.PartnerAvailability, error) {
	return t.mutateAndLoad(ctx, partnerID, func(doc *models.PartnerAvailability) (map[string]any, error) {
		if doc.CurrentBookingID != nil {
			if online {
				return nil, nil
			}
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "partner cannot go offline during a booking")
		}
		if online {
			if doc.Online && doc.Status == enums.AvailabilityIdle {
				return nil, nil
			}
			return map[string]any{"online": true, "status": enums.AvailabilityIdle}, nil
		}
		return map[string]any{"online": false, "status": enums.AvailabilityOffline}, nil
	})
}

// SetBreak moves an idle partner on or off break.
func (t *tracker) SetBreak(ctx context.Context, partnerID uuid.UUID, onBreak bool) (*models.PartnerAvailability, error) {
	return t.mutateAndLoad(ctx, partnerID, func(doc *models.PartnerAvailability) (map[string]any, error) {
		if doc.CurrentBookingID != nil {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "partner cannot change break during a booking")
		}
		if onBreak {
			return map[string]any{"online": true, "status": enums.AvailabilityBreak}, nil
		}
		if doc.Status != enums.AvailabilityBreak {
			return nil, nil
		}
		return map[string]any{"online": true, "status": enums.AvailabilityIdle}, nil
	})
}

// UpdateLocation keeps the newest report and reports whether loc was applied.
func (t *tracker) UpdateLocation(ctx context.Context, partnerID uuid.UUID, loc types.LiveLocation) (bool, error) {
	if !loc.Valid() || loc.ReportedAt.IsZero() {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "location requires coordinates and a report time")
	}
	applied := false
	err := t.mutate(ctx, partnerID, func(doc *models.PartnerAvailability) (map[string]any, error) {
		if !loc.IsNewerThan(&doc.Location) {
			return nil, nil
		}
		applied = true
		return map[string]any{"location": loc}, nil
	})
	return applied, err
}

// Get returns the partner's document, or an OFFLINE placeholder when none exists.
func (t *tracker) Get(ctx context.Context, partnerID uuid.UUID) (*models.PartnerAvailability, error) {
	if partnerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "partner id required")
	}
	doc, err := t.repo.FindByID(ctx, partnerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load availability")
	}
	if doc == nil {
		return &models.PartnerAvailability{
			PartnerID:     partnerID,
			Status:        enums.AvailabilityOffline,
			ScheduledJobs: types.JobLog{},
			CompletedJobs: types.JobLog{},
		}, nil
	}
	return doc, nil
}

type mutation func(doc *models.PartnerAvailability) (map[string]any, error)

// mutate re-reads the document inside a transaction and writes only the columns
// fn returns.
func (t *tracker) mutate(ctx context.Context, partnerID uuid.UUID, fn mutation) error {
	if partnerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "partner id required")
	}
	return t.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := t.repo.WithTx(tx)
		if err := repo.Ensure(ctx, partnerID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "ensure availability")
		}
		doc, err := repo.FindByID(ctx, partnerID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load availability")
		}
		if doc == nil {
			return pkgerrors.New(pkgerrors.CodeDependency, "availability document missing after ensure")
		}
		if doc.ScheduledJobs == nil {
			doc.ScheduledJobs = types.JobLog{}
		}
		if doc.CompletedJobs == nil {
			doc.CompletedJobs = types.JobLog{}
		}
		updates, err := fn(doc)
		if err != nil {
			return err
		}
		if len(updates) == 0 {
			return nil
		}
		if err := repo.Update(ctx, partnerID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update availability")
		}
		t.debug(ctx, partnerID, updates)
		return nil
	})
}

func (t *tracker) mutateAndLoad(ctx context.Context, partnerID uuid.UUID, fn mutation) (*models.PartnerAvailability, error) {
	if err := t.mutate(ctx, partnerID, fn); err != nil {
		return nil, err
	}
	return t.Get(ctx, partnerID)
}

func (t *tracker) debug(ctx context.Context, partnerID uuid.UUID, updates map[string]any) {
	if t.logg == nil {
		return
	}
	ctx = t.logg.WithPartnerID(ctx, partnerID.String())
	if status, ok := updates["status"]; ok {
		ctx = t.logg.WithField(ctx, "availability_status", fmt.Sprint(status))
	}
	t.logg.Debug(ctx, "partner availability updated")
}

// bindable reports whether an assignment to bookingID may claim the partner.
func bindable(doc *models.PartnerAvailability, bookingID uuid.UUID) bool {
	return doc.CurrentBookingID == nil && !finished(doc, bookingID)
}

// advance reports whether the partner bound to bookingID may move to next.
// Progress past ASSIGNED is only ever made on the bound booking.
func advance(doc *models.PartnerAvailability, bookingID uuid.UUID, next enums.AvailabilityStatus) bool {
	if !isCurrent(doc, bookingID) {
		return false
	}
	for _, from := range predecessors[next] {
		if doc.Status == from {
			return true
		}
	}
	return false
}

// finished reports whether bookingID is already in the completed log.
func finished(doc *models.PartnerAvailability, bookingID uuid.UUID) bool {
	id := bookingID.String()
	for day := range doc.CompletedJobs {
		if doc.CompletedJobs.Contains(day, id) {
			return true
		}
	}
	return false
}

func isCurrent(doc *models.PartnerAvailability, bookingID uuid.UUID) bool {
	return doc.CurrentBookingID != nil && *doc.CurrentBookingID == bookingID
}
