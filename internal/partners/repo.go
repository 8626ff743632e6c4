package partners

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/homeserve-backend/pkg/db/models"
	"github.com/angelmondragon/homeserve-backend/pkg/enums"
	"github.com/angelmondragon/homeserve-backend/pkg/types"
)

// Repository defines persistence operations for partner availability documents.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Ensure(ctx context.Context, partnerID uuid.UUID) error
	FindByID(ctx context.Context, partnerID uuid.UUID) (*models.PartnerAvailability, error)
	Update(ctx context.Context, partnerID uuid.UUID, updates map[string]any) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a partner availability repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Ensure creates an OFFLINE document for the partner unless one exists.
func (r *repository) Ensure(ctx context.Context, partnerID uuid.UUID) error {
	doc := models.PartnerAvailability{
		PartnerID:     partnerID,
		Status:        enums.AvailabilityOffline,
		ScheduledJobs: types.JobLog{},
		CompletedJobs: types.JobLog{},
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "partner_id"}}, DoNothing: true}).
		Create(&doc).Error
}

// FindByID returns nil when the partner has no document yet.
func (r *repository) FindByID(ctx context.Context, partnerID uuid.UUID) (*models.PartnerAvailability, error) {
	return r.first(r.db.WithContext(ctx).Where("partner_id = ?", partnerID))
}

func (r *repository) Update(ctx context.Context, partnerID uuid.UUID, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.PartnerAvailability{}).
		Where("partner_id = ?", partnerID).
		Updates(updates).Error
}

func (r *repository) first(query *gorm.DB) (*models.PartnerAvailability, error) {
	var doc models.PartnerAvailability
	if err := query.First(&doc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &doc, nil
}
