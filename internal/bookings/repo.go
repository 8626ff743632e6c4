package bookings

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/homeserve-backend/pkg/db/models"
	"github.com/angelmondragon/homeserve-backend/pkg/enums"
	"github.com/angelmondragon/homeserve-backend/pkg/pagination"
)

// Repository defines persistence operations for bookings.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, booking *models.Booking) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	ListForUser(ctx context.Context, userID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.Booking, error)
	UpdateWhere(ctx context.Context, id uuid.UUID, guard Guard, updates map[string]any) (bool, error)
	FindPromotable(ctx context.Context, before time.Time, limit int) ([]models.Booking, error)
	ExistsForOccurrence(ctx context.Context, patternID uuid.UUID, at time.Time) (bool, error)
	LatestPartnerSnapshot(ctx context.Context, partnerID uuid.UUID) (*models.Booking, error)
}

// Guard lists the column values a row must still hold for a conditional update
// to apply. Empty fields are not checked.
type Guard struct {
	BookingStatuses []enums.BookingStatus
	PartnerStatuses []enums.PartnerStatus
	PaymentStatuses []enums.PaymentStatus
	ScheduleKind    enums.ScheduleKind
	PartnerID       *uuid.UUID
}

func (g Guard) apply(q *gorm.DB) *gorm.DB {
	if len(g.BookingStatuses) > 0 {
		q = q.Where("booking_status IN ?", g.BookingStatuses)
	}
	if len(g.PartnerStatuses) > 0 {
		q = q.Where("partner_status IN ?", g.PartnerStatuses)
	}
	if len(g.PaymentStatuses) > 0 {
		q = q.Where("payment_status IN ?", g.PaymentStatuses)
	}
	if g.ScheduleKind != "" {
		q = q.Where("schedule_kind = ?", g.ScheduleKind)
	}
	if g.PartnerID != nil {
		q = q.Where("partner_id = ?", *g.PartnerID)
	}
	return q
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a bookings repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, booking *models.Booking) error {
	return r.db.WithContext(ctx).Create(booking).Error
}

// FindByID returns gorm.ErrRecordNotFound when the booking does not exist.
func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	var booking models.Booking
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&booking).Error; err != nil {
		return nil, err
	}
	return &booking, nil
}

// ListForUser returns the user's bookings newest first using cursor pagination.
func (r *repository) ListForUser(ctx context.Context, userID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.Booking, error) {
	query := r.db.WithContext(ctx).Model(&models.Booking{}).Where("user_id = ?", userID)
	if cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}
	var rows []models.Booking
	err := query.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

// UpdateWhere applies updates only when the row still satisfies guard. It reports
// whether the row changed, which makes it the compare-and-set used by every transition.
func (r *repository) UpdateWhere(ctx context.Context, id uuid.UUID, guard Guard, updates map[string]any) (bool, error) {
	if len(updates) == 0 {
		return false, errors.New("updates required")
	}
	query := guard.apply(r.db.WithContext(ctx).Model(&models.Booking{}).Where("id = ?", id))
	res := query.Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// FindPromotable lists paid scheduled bookings still waiting in created whose
// start time is before the cutoff.
func (r *repository) FindPromotable(ctx context.Context, before time.Time, limit int) ([]models.Booking, error) {
	var rows []models.Booking
	err := r.db.WithContext(ctx).
		Where("schedule_kind = ?", enums.ScheduleKindScheduled).
		Where("booking_status = ?", enums.BookingStatusCreated).
		Where("payment_status IN ?", []enums.PaymentStatus{enums.PaymentStatusBaseAmountPaid, enums.PaymentStatusFullAmountPaid}).
		Where("scheduled_at <= ?", before).
		Order("scheduled_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// ExistsForOccurrence reports whether the pattern already produced a booking at.
func (r *repository) ExistsForOccurrence(ctx context.Context, patternID uuid.UUID, at time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Booking{}).
		Where("recurring_pattern_id = ? AND scheduled_at = ?", patternID, at).
		Count(&count).Error
	return count > 0, err
}

// LatestPartnerSnapshot returns the partner's most recently updated booking, or nil.
func (r *repository) LatestPartnerSnapshot(ctx context.Context, partnerID uuid.UUID) (*models.Booking, error) {
	var booking models.Booking
	err := r.db.WithContext(ctx).
		Where("partner_id = ?", partnerID).
		Order("updated_at DESC").
		First(&booking).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &booking, nil
}
