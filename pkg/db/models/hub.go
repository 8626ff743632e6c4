package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	dbtypes "github.com/angelmondragon/homeserve-backend/pkg/db/types"
)

// Hub is a geographic service area with its own partner pool and supervisors.
type Hub struct {
	ID            uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name          string            `gorm:"column:name;not null"`
	Lat           float64           `gorm:"column:lat;not null"`
	Lng           float64           `gorm:"column:lng;not null"`
	RadiusKm      float64           `gorm:"column:radius_km;not null"`
	Active        bool              `gorm:"column:active;not null;default:true"`
	SupervisorIDs dbtypes.UUIDArray `gorm:"column:supervisor_ids;type:uuid[];not null;default:'{}'"`
	Services      []HubService      `gorm:"foreignKey:HubID;constraint:OnDelete:CASCADE"`
	CreatedAt     time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (Hub) TableName() string { return "hubs" }

// HubService is a priced catalog entry offered by a hub.
type HubService struct {
	ID               uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	HubID            uuid.UUID       `gorm:"column:hub_id;type:uuid;not null"`
	ServiceID        string          `gorm:"column:service_id;not null"`
	Name             string          `gorm:"column:name;not null"`
	Price            decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null"`
	EstimatedMinutes int             `gorm:"column:estimated_minutes;not null"`
	Active           bool            `gorm:"column:active;not null;default:true"`
}

func (HubService) TableName() string { return "hub_services" }
