package bookings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/homeserve-backend/internal/billing"
	"github.com/angelmondragon/homeserve-backend/internal/events"
	"github.com/angelmondragon/homeserve-backend/internal/hubs"
	"github.com/angelmondragon/homeserve-backend/pkg/db"
	"github.com/angelmondragon/homeserve-backend/pkg/db/models"
	dbtypes "github.com/angelmondragon/homeserve-backend/pkg/db/types"
	"github.com/angelmondragon/homeserve-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/homeserve-backend/pkg/errors"
	"github.com/angelmondragon/homeserve-backend/pkg/logger"
	"github.com/angelmondragon/homeserve-backend/pkg/outbox"
	"github.com/angelmondragon/homeserve-backend/pkg/pagination"
	"github.com/angelmondragon/homeserve-backend/pkg/types"
)

const (
	maxStaleRetries       = 3
	occurrenceIndex       = "ux_bookings_pattern_occurrence"
	rejectAlreadyAssigned = "already_assigned"
	rejectNotAvailable    = "not_available"
)

// ErrAlreadyAssigned is returned to a partner whose acceptance lost the race.
var ErrAlreadyAssigned = pkgerrors.New(pkgerrors.CodeConflict, "booking already assigned to another partner")

var errStale = errors.New("booking changed during update")

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type biller interface {
	Overage(estimatedMinutes int, startedAt, completedAt time.Time) billing.Overage
	Currency() string
}

// Service owns the booking aggregate and every legal transition of its status axes.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.Booking, error)
	CreateFromPattern(ctx context.Context, pattern models.RecurringPattern, occurrence time.Time) (*models.Booking, bool, error)
	ConfirmPayment(ctx context.Context, input PaymentInput) (*models.Booking, error)
	PromoteScheduled(ctx context.Context, bookingID uuid.UUID) (bool, error)
	BroadcastJob(ctx context.Context, input BroadcastInput) error
	AssignPartner(ctx context.Context, input AssignInput) (*models.Booking, error)
	MarkEnroute(ctx context.Context, input EnrouteInput) error
	ConfirmArrival(ctx context.Context, bookingID, userID uuid.UUID) error
	UpdatePartnerLocation(ctx context.Context, input LocationInput) (bool, error)
	VerifyStartOTP(ctx context.Context, input OTPInput) (*models.Booking, error)
	VerifyEndOTP(ctx context.Context, input OTPInput) (*models.Booking, error)
	Cancel(ctx context.Context, input CancelInput) (*models.Booking, error)
	Get(ctx context.Context, bookingID uuid.UUID, actor Actor) (*models.Booking, error)
	ListForUser(ctx context.Context, params ListParams) (*ListResult, error)
	RecordPartnerFeedback(ctx context.Context, input FeedbackInput) (*models.Booking, error)
}

// ServiceParams groups dependencies for the booking service.
type ServiceParams struct {
	Repo    Repository
	Tx      txRunner
	Outbox  outbox.Emitter
	Hubs    hubs.Directory
	Billing biller
	Logger  *logger.Logger
	Clock   func() time.Time
}

type service struct {
	repo    Repository
	tx      txRunner
	outbox  outbox.Emitter
	hubs    hubs.Directory
	billing biller
	logg    *logger.Logger
	clock   func() time.Time
}

// NewService builds a booking service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("bookings repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Hubs == nil {
		return nil, fmt.Errorf("hub directory required")
	}
	if params.Billing == nil {
		return nil, fmt.Errorf("billing service required")
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &service{
		repo:    params.Repo,
		tx:      params.Tx,
		outbox:  params.Outbox,
		hubs:    params.Hubs,
		billing: params.Billing,
		logg:    params.Logger,
		clock:   clock,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.Booking, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if err := validateAddress(input.Address); err != nil {
		return nil, err
	}
	kind := input.ScheduleKind
	if kind == "" {
		kind = enums.ScheduleKindInstant
	}
	if !kind.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid schedule_kind")
	}

	now := s.now()
	scheduledAt := now
	if kind == enums.ScheduleKindScheduled {
		if input.ScheduledAt == nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "scheduled_at is required for scheduled bookings")
		}
		if !input.ScheduledAt.After(now) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "scheduled_at must be in the future")
		}
		scheduledAt = input.ScheduledAt.UTC()
	}

	hub, err := s.hubs.Resolve(ctx, input.Address.Location)
	if err != nil {
		return nil, err
	}
	items, err := s.hubs.Quote(hub, input.Items)
	if err != nil {
		return nil, err
	}

	user := types.UserSnapshot{
		ID:      input.UserID.String(),
		Name:    strings.TrimSpace(input.Name),
		Phone:   strings.TrimSpace(input.Phone),
		Address: input.Address,
	}
	booking, err := s.newBooking(input.UserID, hub.ID, kind, scheduledAt, items, user, nil)
	if err != nil {
		return nil, err
	}

	actor := &outbox.ActorRef{UserID: input.UserID, Role: enums.RoleUser}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, booking); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create booking")
		}
		return s.emit(ctx, tx, actor, createdEvent(booking))
	})
	if err != nil {
		return nil, err
	}
	return booking, nil
}

// CreateFromPattern materialises one occurrence of a recurring pattern. It reports
// false without error when the occurrence already has a booking.
func (s *service) CreateFromPattern(ctx context.Context, pattern models.RecurringPattern, occurrence time.Time) (*models.Booking, bool, error) {
	if pattern.ID == uuid.Nil || pattern.UserID == uuid.Nil || pattern.HubID == uuid.Nil {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "pattern identity missing")
	}
	if len(pattern.Items) == 0 {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "pattern has no service items")
	}
	occurrence = occurrence.UTC()

	exists, err := s.repo.ExistsForOccurrence(ctx, pattern.ID, occurrence)
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check occurrence")
	}
	if exists {
		return nil, false, nil
	}

	patternID := pattern.ID
	booking, err := s.newBooking(pattern.UserID, pattern.HubID, enums.ScheduleKindScheduled, occurrence, pattern.Items, pattern.User, &patternID)
	if err != nil {
		return nil, false, err
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, booking); err != nil {
			return err
		}
		return s.emit(ctx, tx, nil, createdEvent(booking))
	})
	if err != nil {
		if db.IsUniqueViolation(err, occurrenceIndex) {
			return nil, false, nil
		}
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create recurring booking")
	}
	return booking, true, nil
}

func (s *service) ConfirmPayment(ctx context.Context, input PaymentInput) (*models.Booking, error) {
	if input.BookingID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "booking id required")
	}
	if !input.Stage.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment stage")
	}
	target := enums.PaymentStatusBaseAmountPaid
	allowed := []enums.PaymentStatus{enums.PaymentStatusPending}
	if input.Stage == enums.PaymentStageFull {
		target = enums.PaymentStatusFullAmountPaid
		allowed = append(allowed, enums.PaymentStatusBaseAmountPaid)
	}

	current, err := s.load(ctx, s.repo, input.BookingID)
	if err != nil {
		return nil, err
	}
	var supervisors []uuid.UUID
	if current.ScheduleKind == enums.ScheduleKindInstant {
		if supervisors, err = s.hubs.Supervisors(ctx, current.HubID); err != nil {
			return nil, err
		}
	}

	var result *models.Booking
	err = s.withRetry(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		booking, err := s.load(ctx, repo, input.BookingID)
		if err != nil {
			return err
		}
		result = booking
		if booking.PaymentStatus == target || booking.PaymentStatus == enums.PaymentStatusFullAmountPaid {
			return nil
		}
		if booking.BookingStatus == enums.BookingStatusCancelled || booking.PaymentStatus == enums.PaymentStatusRefunded {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "booking is cancelled")
		}
		if !containsPayment(allowed, booking.PaymentStatus) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "payment stage not allowed in current state")
		}

		promote := booking.ScheduleKind == enums.ScheduleKindInstant && booking.BookingStatus == enums.BookingStatusCreated
		updates := map[string]any{"payment_status": target}
		if promote {
			updates["booking_status"] = enums.BookingStatusReadyForAssignment
		}
		guard := Guard{
			BookingStatuses: []enums.BookingStatus{booking.BookingStatus},
			PaymentStatuses: []enums.PaymentStatus{booking.PaymentStatus},
		}
		if err := s.update(ctx, repo, booking.ID, guard, updates); err != nil {
			return err
		}
		booking.PaymentStatus = target
		if !promote {
			return nil
		}
		booking.BookingStatus = enums.BookingStatusReadyForAssignment
		return s.emit(ctx, tx, nil, readyEvent(booking, supervisors))
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// PromoteScheduled moves a paid scheduled booking into the assignment pipeline.
// It reports false when the booking is not, or no longer, eligible.
func (s *service) PromoteScheduled(ctx context.Context, bookingID uuid.UUID) (bool, error) {
	booking, err := s.load(ctx, s.repo, bookingID)
	if err != nil {
		return false, err
	}
	if !promotable(booking) {
		return false, nil
	}
	supervisors, err := s.hubs.Supervisors(ctx, booking.HubID)
	if err != nil {
		return false, err
	}

	promoted := false
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		guard := Guard{
			BookingStatuses: []enums.BookingStatus{enums.BookingStatusCreated},
			PaymentStatuses: []enums.PaymentStatus{enums.PaymentStatusBaseAmountPaid, enums.PaymentStatusFullAmountPaid},
			ScheduleKind:    enums.ScheduleKindScheduled,
		}
		ok, err := s.repo.WithTx(tx).UpdateWhere(ctx, booking.ID, guard, map[string]any{
			"booking_status": enums.BookingStatusReadyForAssignment,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "promote booking")
		}
		if !ok {
			return nil
		}
		promoted = true
		booking.BookingStatus = enums.BookingStatusReadyForAssignment
		return s.emit(ctx, tx, nil, readyEvent(booking, supervisors))
	})
	if err != nil {
		return false, err
	}
	return promoted, nil
}

// BroadcastJob records the offered partners on the booking and emits the offer.
// Only partners recorded here can later win the assignment.
func (s *service) BroadcastJob(ctx context.Context, input BroadcastInput) error {
	if input.BookingID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "booking id required")
	}
	if input.Actor.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	partnerIDs := dedupeIDs(input.PartnerIDs)
	if len(partnerIDs) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one partner id is required")
	}
	if input.ExpiresAfter < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "expiry must not be negative")
	}

	booking, err := s.load(ctx, s.repo, input.BookingID)
	if err != nil {
		return err
	}
	if input.Actor.Role != enums.RoleAdmin {
		supervisors, err := s.hubs.Supervisors(ctx, booking.HubID)
		if err != nil {
			return err
		}
		if !containsID(supervisors, input.Actor.UserID) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only hub supervisors may broadcast jobs")
		}
	}

	actor := &outbox.ActorRef{UserID: input.Actor.UserID, Role: input.Actor.Role}
	return s.withRetry(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		booking, err := s.load(ctx, repo, input.BookingID)
		if err != nil {
			return err
		}
		if booking.BookingStatus != enums.BookingStatusReadyForAssignment || booking.PartnerStatus != enums.PartnerStatusNotAssigned {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "booking is not waiting for a partner")
		}

		candidates := dbtypes.UUIDArray(dedupeIDs(append(append([]uuid.UUID{}, booking.BroadcastPartnerIDs...), partnerIDs...)))
		guard := Guard{
			BookingStatuses: []enums.BookingStatus{enums.BookingStatusReadyForAssignment},
			PartnerStatuses: []enums.PartnerStatus{enums.PartnerStatusNotAssigned},
		}
		if err := s.update(ctx, repo, booking.ID, guard, map[string]any{"broadcast_partner_ids": candidates}); err != nil {
			return err
		}
		return s.emit(ctx, tx, actor, events.JobBroadcast{
			BookingID:    booking.ID,
			HubID:        booking.HubID,
			PartnerIDs:   partnerIDs,
			BroadcastBy:  input.Actor.UserID,
			Items:        booking.Items,
			Address:      booking.User.Address,
			ScheduledAt:  booking.ScheduledAt,
			TotalAmount:  booking.TotalAmount,
			BroadcastAt:  s.now(),
			ExpiresAfter: input.ExpiresAfter,
		})
	})
}

// AssignPartner binds the first accepting partner with a conditional update on
// partner_status. Later partners receive ErrAlreadyAssigned and a rejection event.
func (s *service) AssignPartner(ctx context.Context, input AssignInput) (*models.Booking, error) {
	if input.BookingID == uuid.Nil || input.PartnerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "booking id and partner id are required")
	}

	var feedback []types.Feedback
	previous, err := s.repo.LatestPartnerSnapshot(ctx, input.PartnerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load partner history")
	}
	if previous != nil {
		feedback = previous.Partner.Feedback
	}

	var (
		result *models.Booking
		lost   bool
	)
	actor := &outbox.ActorRef{UserID: input.PartnerID, Role: enums.RolePartner}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		booking, err := s.load(ctx, repo, input.BookingID)
		if err != nil {
			return err
		}
		if booking.PartnerID != nil && *booking.PartnerID == input.PartnerID {
			result = booking
			return nil
		}
		if !booking.BroadcastPartnerIDs.Contains(input.PartnerID) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "job was not offered to this partner")
		}

		now := s.now()
		snapshot := types.PartnerSnapshot{
			ID:       input.PartnerID.String(),
			Name:     strings.TrimSpace(input.Name),
			Phone:    strings.TrimSpace(input.Phone),
			Location: input.Location,
			Feedback: feedback,
		}
		guard := Guard{
			BookingStatuses: []enums.BookingStatus{enums.BookingStatusReadyForAssignment},
			PartnerStatuses: []enums.PartnerStatus{enums.PartnerStatusNotAssigned},
		}
		ok, err := repo.UpdateWhere(ctx, booking.ID, guard, map[string]any{
			"partner_id":       input.PartnerID,
			"partner_snapshot": snapshot,
			"partner_status":   enums.PartnerStatusAssigned,
			"booking_status":   enums.BookingStatusTracking,
			"assigned_at":      now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "assign partner")
		}
		if !ok {
			lost = true
			reason := rejectNotAvailable
			if booking.PartnerStatus != enums.PartnerStatusNotAssigned {
				reason = rejectAlreadyAssigned
			}
			return s.emit(ctx, tx, actor, events.AssignmentRejected{
				BookingID: booking.ID,
				PartnerID: input.PartnerID,
				Reason:    reason,
			})
		}

		partnerID := input.PartnerID
		booking.PartnerID = &partnerID
		booking.Partner = snapshot
		booking.PartnerStatus = enums.PartnerStatusAssigned
		booking.BookingStatus = enums.BookingStatusTracking
		booking.AssignedAt = &now
		result = booking
		return s.emit(ctx, tx, actor, events.PartnerAssigned{
			BookingID:   booking.ID,
			UserID:      booking.UserID,
			PartnerID:   input.PartnerID,
			Partner:     snapshot,
			User:        booking.User,
			Items:       booking.Items,
			ScheduledAt: booking.ScheduledAt,
			AssignedAt:  now,
		})
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logCtx(ctx, input.BookingID, input.PartnerID)
	if lost {
		s.info(logCtx, "partner acceptance lost the assignment race")
		return nil, ErrAlreadyAssigned
	}
	s.info(logCtx, "partner assigned to booking")
	return result, nil
}

func (s *service) MarkEnroute(ctx context.Context, input EnrouteInput) error {
	if input.BookingID == uuid.Nil || input.PartnerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "booking id and partner id are required")
	}
	return s.withRetry(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		booking, err := s.load(ctx, repo, input.BookingID)
		if err != nil {
			return err
		}
		if !assignedTo(booking, input.PartnerID) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "partner is not assigned to this booking")
		}
		switch booking.PartnerStatus {
		case enums.PartnerStatusEnroute, enums.PartnerStatusArrived:
			return nil
		case enums.PartnerStatusAssigned:
		default:
			return pkgerrors.New(pkgerrors.CodeStateConflict, "partner cannot start travelling from current state")
		}
		if booking.BookingStatus != enums.BookingStatusTracking {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "booking is not being tracked")
		}

		updates := map[string]any{"partner_status": enums.PartnerStatusEnroute}
		if input.Location != nil && input.Location.IsNewerThan(booking.Partner.Location) {
			snapshot := booking.Partner
			loc := *input.Location
			snapshot.Location = &loc
			updates["partner_snapshot"] = snapshot
		}
		guard := Guard{
			BookingStatuses: []enums.BookingStatus{enums.BookingStatusTracking},
			PartnerStatuses: []enums.PartnerStatus{enums.PartnerStatusAssigned},
			PartnerID:       &input.PartnerID,
		}
		if err := s.update(ctx, repo, booking.ID, guard, updates); err != nil {
			return err
		}
		actor := &outbox.ActorRef{UserID: input.PartnerID, Role: enums.RolePartner}
		return s.emit(ctx, tx, actor, events.BookingPartnerEnroute{
			BookingID:  booking.ID,
			UserID:     booking.UserID,
			PartnerID:  input.PartnerID,
			Location:   input.Location,
			EtaMinutes: input.EtaMinutes,
			EnrouteAt:  s.now(),
		})
	})
}

func (s *service) ConfirmArrival(ctx context.Context, bookingID, userID uuid.UUID) error {
	if bookingID == uuid.Nil || userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "booking id and user id are required")
	}
	return s.withRetry(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		booking, err := s.load(ctx, repo, bookingID)
		if err != nil {
			return err
		}
		if booking.UserID != userID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "booking does not belong to user")
		}
		if booking.PartnerStatus == enums.PartnerStatusArrived {
			return nil
		}
		if booking.PartnerID == nil || booking.PartnerStatus != enums.PartnerStatusEnroute || booking.BookingStatus != enums.BookingStatusTracking {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "partner is not on the way")
		}
		guard := Guard{
			BookingStatuses: []enums.BookingStatus{enums.BookingStatusTracking},
			PartnerStatuses: []enums.PartnerStatus{enums.PartnerStatusEnroute},
			PartnerID:       booking.PartnerID,
		}
		if err := s.update(ctx, repo, booking.ID, guard, map[string]any{
			"partner_status": enums.PartnerStatusArrived,
		}); err != nil {
			return err
		}
		actor := &outbox.ActorRef{UserID: userID, Role: enums.RoleUser}
		return s.emit(ctx, tx, actor, events.BookingPartnerArrived{
			BookingID: booking.ID,
			UserID:    booking.UserID,
			PartnerID: *booking.PartnerID,
			ArrivedAt: s.now(),
		})
	})
}

// UpdatePartnerLocation keeps the newest reported position on the booking's
// partner snapshot. Older reports are ignored and reported as false.
func (s *service) UpdatePartnerLocation(ctx context.Context, input LocationInput) (bool, error) {
	if input.BookingID == uuid.Nil || input.PartnerID == uuid.Nil {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "booking id and partner id are required")
	}
	if !input.Location.Valid() || input.Location.ReportedAt.IsZero() {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "location requires coordinates and a report time")
	}

	applied := false
	err := s.withRetry(ctx, func(tx *gorm.DB) error {
		applied = false
		repo := s.repo.WithTx(tx)
		booking, err := s.load(ctx, repo, input.BookingID)
		if err != nil {
			return err
		}
		if !assignedTo(booking, input.PartnerID) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "partner is not assigned to this booking")
		}
		if booking.BookingStatus.IsTerminal() || !input.Location.IsNewerThan(booking.Partner.Location) {
			return nil
		}
		snapshot := booking.Partner
		loc := input.Location
		snapshot.Location = &loc
		guard := Guard{
			BookingStatuses: []enums.BookingStatus{enums.BookingStatusTracking, enums.BookingStatusOngoing},
			PartnerID:       &input.PartnerID,
		}
		if err := s.update(ctx, repo, booking.ID, guard, map[string]any{"partner_snapshot": snapshot}); err != nil {
			return err
		}
		applied = true
		return nil
	})
	return applied, err
}

func (s *service) VerifyStartOTP(ctx context.Context, input OTPInput) (*models.Booking, error) {
	if input.BookingID == uuid.Nil || input.PartnerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "booking id and partner id are required")
	}
	var result *models.Booking
	err := s.withRetry(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		booking, err := s.load(ctx, repo, input.BookingID)
		if err != nil {
			return err
		}
		result = booking
		if !assignedTo(booking, input.PartnerID) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "partner is not assigned to this booking")
		}
		if !otpMatches(booking.StartOTP, input.Code) {
			return pkgerrors.New(pkgerrors.CodeValidation, "invalid start otp")
		}
		if booking.StartOTPVerified && booking.BookingStatus != enums.BookingStatusCancelled {
			return nil
		}
		if booking.BookingStatus != enums.BookingStatusTracking {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "service cannot start from current state")
		}
		if booking.PartnerStatus != enums.PartnerStatusEnroute && booking.PartnerStatus != enums.PartnerStatusArrived {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "partner has not started travelling")
		}

		now := s.now()
		guard := Guard{
			BookingStatuses: []enums.BookingStatus{enums.BookingStatusTracking},
			PartnerStatuses: []enums.PartnerStatus{enums.PartnerStatusEnroute, enums.PartnerStatusArrived},
			PartnerID:       &input.PartnerID,
		}
		if err := s.update(ctx, repo, booking.ID, guard, map[string]any{
			"booking_status":     enums.BookingStatusOngoing,
			"partner_status":     enums.PartnerStatusArrived,
			"start_otp_verified": true,
			"started_at":         now,
		}); err != nil {
			return err
		}
		booking.BookingStatus = enums.BookingStatusOngoing
		booking.PartnerStatus = enums.PartnerStatusArrived
		booking.StartOTPVerified = true
		booking.StartedAt = &now

		actor := &outbox.ActorRef{UserID: input.PartnerID, Role: enums.RolePartner}
		return s.emit(ctx, tx, actor, events.ServiceStarted{
			BookingID: booking.ID,
			UserID:    booking.UserID,
			PartnerID: input.PartnerID,
			StartedAt: now,
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// VerifyEndOTP completes the service and bills whole minutes beyond the estimate.
// A repeated submission returns the completed booking without billing again.
func (s *service) VerifyEndOTP(ctx context.Context, input OTPInput) (*models.Booking, error) {
	if input.BookingID == uuid.Nil || input.PartnerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "booking id and partner id are required")
	}
	var result *models.Booking
	err := s.withRetry(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		booking, err := s.load(ctx, repo, input.BookingID)
		if err != nil {
			return err
		}
		result = booking
		if !assignedTo(booking, input.PartnerID) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "partner is not assigned to this booking")
		}
		if !otpMatches(booking.EndOTP, input.Code) {
			return pkgerrors.New(pkgerrors.CodeValidation, "invalid end otp")
		}
		if booking.BookingStatus == enums.BookingStatusCompleted {
			return nil
		}
		if booking.BookingStatus != enums.BookingStatusOngoing || booking.StartedAt == nil {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "service has not started")
		}

		now := s.now()
		overage := s.billing.Overage(booking.EstimatedMinutes, *booking.StartedAt, now)
		total := booking.BaseAmount.Add(overage.ExtraAmount)
		payment := booking.PaymentStatus
		if overage.ExtraAmount.IsZero() && payment != enums.PaymentStatusRefunded {
			payment = enums.PaymentStatusFullAmountPaid
		}

		guard := Guard{
			BookingStatuses: []enums.BookingStatus{enums.BookingStatusOngoing},
			PartnerID:       &input.PartnerID,
		}
		if err := s.update(ctx, repo, booking.ID, guard, map[string]any{
			"booking_status":   enums.BookingStatusCompleted,
			"end_otp_verified": true,
			"completed_at":     now,
			"extra_amount":     overage.ExtraAmount,
			"total_amount":     total,
			"payment_status":   payment,
		}); err != nil {
			return err
		}
		booking.BookingStatus = enums.BookingStatusCompleted
		booking.EndOTPVerified = true
		booking.CompletedAt = &now
		booking.ExtraAmount = overage.ExtraAmount
		booking.TotalAmount = total
		booking.PaymentStatus = payment

		actor := &outbox.ActorRef{UserID: input.PartnerID, Role: enums.RolePartner}
		return s.emit(ctx, tx, actor, events.ServiceCompleted{
			BookingID:     booking.ID,
			UserID:        booking.UserID,
			PartnerID:     input.PartnerID,
			CompletedAt:   now,
			ActualMinutes: overage.ActualMinutes,
			ExtraAmount:   overage.ExtraAmount,
			TotalAmount:   total,
			PaymentStatus: payment,
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) Cancel(ctx context.Context, input CancelInput) (*models.Booking, error) {
	if input.BookingID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "booking id required")
	}
	if input.Actor.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	var result *models.Booking
	err := s.withRetry(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		booking, err := s.load(ctx, repo, input.BookingID)
		if err != nil {
			return err
		}
		result = booking
		switch input.Actor.Role {
		case enums.RoleAdmin:
		case enums.RoleUser:
			if booking.UserID != input.Actor.UserID {
				return pkgerrors.New(pkgerrors.CodeForbidden, "booking does not belong to user")
			}
		default:
			return pkgerrors.New(pkgerrors.CodeForbidden, "role may not cancel bookings")
		}
		if booking.BookingStatus == enums.BookingStatusCancelled {
			return nil
		}
		if !booking.BookingStatus.Cancellable() {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "booking can no longer be cancelled")
		}

		now := s.now()
		refunded := booking.PaymentStatus.IsPaid()
		payment := booking.PaymentStatus
		if refunded {
			payment = enums.PaymentStatusRefunded
		}
		cancelledBy := string(input.Actor.Role)
		reason := strings.TrimSpace(input.Reason)
		updates := map[string]any{
			"booking_status": enums.BookingStatusCancelled,
			"payment_status": payment,
			"cancelled_at":   now,
			"cancelled_by":   cancelledBy,
		}
		if reason != "" {
			updates["cancel_reason"] = reason
			booking.CancelReason = &reason
		}
		guard := Guard{BookingStatuses: []enums.BookingStatus{booking.BookingStatus}}
		if err := s.update(ctx, repo, booking.ID, guard, updates); err != nil {
			return err
		}
		booking.BookingStatus = enums.BookingStatusCancelled
		booking.PaymentStatus = payment
		booking.CancelledAt = &now
		booking.CancelledBy = &cancelledBy

		actor := &outbox.ActorRef{UserID: input.Actor.UserID, Role: input.Actor.Role}
		return s.emit(ctx, tx, actor, events.BookingCancelled{
			BookingID:   booking.ID,
			UserID:      booking.UserID,
			PartnerID:   booking.PartnerID,
			CancelledBy: cancelledBy,
			Reason:      reason,
			Refunded:    refunded,
			CancelledAt: now,
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) Get(ctx context.Context, bookingID uuid.UUID, actor Actor) (*models.Booking, error) {
	if bookingID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "booking id required")
	}
	booking, err := s.load(ctx, s.repo, bookingID)
	if err != nil {
		return nil, err
	}
	switch actor.Role {
	case enums.RoleAdmin:
		return booking, nil
	case enums.RoleUser:
		if booking.UserID == actor.UserID {
			return booking, nil
		}
	case enums.RolePartner:
		if assignedTo(booking, actor.UserID) {
			return booking, nil
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeForbidden, "booking not visible to caller")
}

func (s *service) ListForUser(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	limit := pagination.NormalizeLimit(params.Limit)
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.ListForUser(ctx, params.UserID, pagination.LimitWithBuffer(params.Limit), cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list bookings")
	}

	next := ""
	if len(rows) > limit {
		rows = rows[:limit]
		last := rows[limit-1]
		next = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	items := make([]View, len(rows))
	for i, row := range rows {
		items[i] = ToView(row, enums.RoleUser)
	}
	return &ListResult{Items: items, Cursor: next}, nil
}

func (s *service) RecordPartnerFeedback(ctx context.Context, input FeedbackInput) (*models.Booking, error) {
	if input.BookingID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "booking id required")
	}
	if input.Rating < 1 || input.Rating > 5 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rating must be between 1 and 5")
	}
	var result *models.Booking
	err := s.withRetry(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		booking, err := s.load(ctx, repo, input.BookingID)
		if err != nil {
			return err
		}
		result = booking
		if booking.UserID != input.UserID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "booking does not belong to user")
		}
		if booking.BookingStatus != enums.BookingStatusCompleted || booking.Partner.IsZero() {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "feedback is only accepted for completed bookings")
		}
		snapshot := booking.Partner
		snapshot.Feedback = append([]types.Feedback(nil), booking.Partner.Feedback...)
		if !snapshot.AppendFeedback(types.Feedback{
			BookingID: booking.ID.String(),
			Rating:    input.Rating,
			Comment:   strings.TrimSpace(input.Comment),
		}) {
			return nil
		}
		guard := Guard{BookingStatuses: []enums.BookingStatus{enums.BookingStatusCompleted}}
		if err := s.update(ctx, repo, booking.ID, guard, map[string]any{"partner_snapshot": snapshot}); err != nil {
			return err
		}
		booking.Partner = snapshot
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) newBooking(userID, hubID uuid.UUID, kind enums.ScheduleKind, at time.Time, items types.ServiceItems, user types.UserSnapshot, patternID *uuid.UUID) (*models.Booking, error) {
	startOTP, err := newOTP()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate start otp")
	}
	endOTP, err := newOTP()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate end otp")
	}
	base := items.BaseAmount()
	return &models.Booking{
		ID:                 uuid.New(),
		UserID:             userID,
		HubID:              hubID,
		RecurringPatternID: patternID,
		ScheduleKind:       kind,
		ScheduledAt:        at,
		Items:              items,
		User:               user,
		Currency:           s.billing.Currency(),
		BaseAmount:         base,
		ExtraAmount:        decimal.Zero,
		TotalAmount:        base,
		EstimatedMinutes:   items.EstimatedMinutes(),
		BookingStatus:      enums.BookingStatusCreated,
		PartnerStatus:      enums.PartnerStatusNotAssigned,
		PaymentStatus:      enums.PaymentStatusPending,
		StartOTP:           startOTP,
		EndOTP:             endOTP,
	}, nil
}

func (s *service) load(ctx context.Context, repo Repository, id uuid.UUID) (*models.Booking, error) {
	booking, err := repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "booking not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load booking")
	}
	return booking, nil
}

// update applies a guarded update and reports errStale when the row moved on.
func (s *service) update(ctx context.Context, repo Repository, id uuid.UUID, guard Guard, updates map[string]any) error {
	ok, err := repo.UpdateWhere(ctx, id, guard, updates)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update booking")
	}
	if !ok {
		return errStale
	}
	return nil
}

// withRetry runs fn in a transaction, re-reading and retrying when a guarded
// update lost to a concurrent writer.
func (s *service) withRetry(ctx context.Context, fn func(tx *gorm.DB) error) error {
	var err error
	for attempt := 0; attempt < maxStaleRetries; attempt++ {
		err = s.tx.WithTx(ctx, fn)
		if !errors.Is(err, errStale) {
			return err
		}
	}
	return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "booking is being updated concurrently")
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, actor *outbox.ActorRef, evt events.Event) error {
	err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		AggregateType: enums.AggregateBooking,
		AggregateID:   evt.BookingKey(),
		Actor:         actor,
		Event:         evt,
		OccurredAt:    s.now(),
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue "+string(evt.EventType()))
	}
	return nil
}

func (s *service) now() time.Time {
	return s.clock().UTC()
}

func (s *service) logCtx(ctx context.Context, bookingID, partnerID uuid.UUID) context.Context {
	if s.logg == nil {
		return ctx
	}
	ctx = s.logg.WithBookingID(ctx, bookingID.String())
	return s.logg.WithPartnerID(ctx, partnerID.String())
}

func (s *service) info(ctx context.Context, msg string) {
	if s.logg != nil {
		s.logg.Info(ctx, msg)
	}
}

func createdEvent(b *models.Booking) events.BookingCreated {
	return events.BookingCreated{
		BookingID:    b.ID,
		UserID:       b.UserID,
		HubID:        b.HubID,
		ScheduleKind: b.ScheduleKind,
		ScheduledAt:  b.ScheduledAt,
		TotalAmount:  b.TotalAmount,
		PatternID:    b.RecurringPatternID,
	}
}

func readyEvent(b *models.Booking, supervisors []uuid.UUID) events.BookingReadyForAssignment {
	return events.BookingReadyForAssignment{
		BookingID:     b.ID,
		UserID:        b.UserID,
		HubID:         b.HubID,
		SupervisorIDs: supervisors,
		Items:         b.Items,
		Address:       b.User.Address,
		ScheduledAt:   b.ScheduledAt,
	}
}

func promotable(b *models.Booking) bool {
	return b.ScheduleKind == enums.ScheduleKindScheduled &&
		b.BookingStatus == enums.BookingStatusCreated &&
		b.PaymentStatus.IsPaid()
}

func assignedTo(b *models.Booking, partnerID uuid.UUID) bool {
	return b.PartnerID != nil && *b.PartnerID == partnerID
}

func validateAddress(addr types.Address) error {
	if strings.TrimSpace(addr.Line1) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "address line1 is required")
	}
	if strings.TrimSpace(addr.City) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "address city is required")
	}
	if strings.TrimSpace(addr.PostalCode) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "address postal_code is required")
	}
	if !addr.Location.Valid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "address location is out of range")
	}
	return nil
}

func containsPayment(list []enums.PaymentStatus, target enums.PaymentStatus) bool {
	for _, candidate := range list {
		if candidate == target {
			return true
		}
	}
	return false
}

func containsID(list []uuid.UUID, target uuid.UUID) bool {
	for _, candidate := range list {
		if candidate == target {
			return true
		}
	}
	return false
}

func dedupeIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
