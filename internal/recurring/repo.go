package recurring

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/homeserve-backend/pkg/db/models"
	"github.com/angelmondragon/homeserve-backend/pkg/enums"
)

// Repository persists recurring patterns.
type Repository interface {
	Create(ctx context.Context, pattern *models.RecurringPattern) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.RecurringPattern, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]models.RecurringPattern, error)
	FindDue(ctx context.Context, now time.Time, limit int) ([]models.RecurringPattern, error)
	Advance(ctx context.Context, id uuid.UUID, from, to time.Time, generated int) (bool, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from []enums.PatternStatus, updates map[string]any) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a recurring pattern repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, pattern *models.RecurringPattern) error {
	return r.db.WithContext(ctx).Create(pattern).Error
}

// FindByID returns gorm.ErrRecordNotFound when the pattern does not exist.
func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.RecurringPattern, error) {
	var pattern models.RecurringPattern
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&pattern).Error; err != nil {
		return nil, err
	}
	return &pattern, nil
}

func (r *repository) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.RecurringPattern, error) {
	var rows []models.RecurringPattern
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&rows).Error
	return rows, err
}

// FindDue lists active patterns whose next check point has elapsed, oldest first.
func (r *repository) FindDue(ctx context.Context, now time.Time, limit int) ([]models.RecurringPattern, error) {
	var rows []models.RecurringPattern
	err := r.db.WithContext(ctx).
		Where("status = ?", enums.PatternStatusActive).
		Where("next_schedule_date <= ?", now.UTC()).
		Order("next_schedule_date ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// Advance moves the check point from `from` to `to` only when no other run has
// moved it already, and reports whether this call did.
func (r *repository) Advance(ctx context.Context, id uuid.UUID, from, to time.Time, generated int) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.RecurringPattern{}).
		Where("id = ? AND status = ? AND next_schedule_date = ?", id, enums.PatternStatusActive, from.UTC()).
		Updates(map[string]any{
			"next_schedule_date": to.UTC(),
			"generated_count":    gorm.Expr("generated_count + ?", generated),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// UpdateStatus applies updates when the pattern is still in one of the from states.
func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, from []enums.PatternStatus, updates map[string]any) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.RecurringPattern{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
