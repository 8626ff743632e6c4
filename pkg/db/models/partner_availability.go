package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/homeserve-backend/pkg/enums"
	"github.com/angelmondragon/homeserve-backend/pkg/types"
)

// PartnerAvailability is the single presence document kept per partner.
type PartnerAvailability struct {
	PartnerID        uuid.UUID                `gorm:"column:partner_id;type:uuid;primaryKey"`
	Online           bool                     `gorm:"column:online;not null;default:false"`
	Status           enums.AvailabilityStatus `gorm:"column:status;type:text;not null;default:'OFFLINE'"`
	Location         types.LiveLocation       `gorm:"column:location;type:jsonb"`
	CurrentBookingID *uuid.UUID               `gorm:"column:current_booking_id;type:uuid"`
	ScheduledJobs    types.JobLog             `gorm:"column:scheduled_jobs;type:jsonb;not null"`
	CompletedJobs    types.JobLog             `gorm:"column:completed_jobs;type:jsonb;not null"`
	CreatedAt        time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

func (PartnerAvailability) TableName() string { return "partner_availabilities" }
