package hubs

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/homeserve-backend/pkg/db/models"
)

// Repository exposes hub persistence operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a hub repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// ListActive returns every active hub with its active catalog entries.
func (r *Repository) ListActive(ctx context.Context) ([]models.Hub, error) {
	var rows []models.Hub
	err := r.db.WithContext(ctx).
		Preload("Services", "active = ?", true).
		Where("active = ?", true).
		Order("name ASC").
		Find(&rows).Error
	return rows, err
}

// FindByID loads a hub with its active catalog, returning nil when missing.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Hub, error) {
	var hub models.Hub
	err := r.db.WithContext(ctx).
		Preload("Services", "active = ?", true).
		Where("id = ?", id).
		First(&hub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &hub, nil
}

// Create inserts a hub together with its catalog.
func (r *Repository) Create(ctx context.Context, hub *models.Hub) error {
	return r.db.WithContext(ctx).Create(hub).Error
}
