package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/homeserve-backend/pkg/enums"
	"github.com/angelmondragon/homeserve-backend/pkg/types"
)

// RecurringPattern is a template that materialises bookings on a cadence.
type RecurringPattern struct {
	ID               uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID           uuid.UUID               `gorm:"column:user_id;type:uuid;not null"`
	HubID            uuid.UUID               `gorm:"column:hub_id;type:uuid;not null"`
	Cadence          enums.RecurrenceCadence `gorm:"column:cadence;type:text;not null"`
	Weekdays         []int                   `gorm:"column:weekdays;type:jsonb;serializer:json"`
	MonthDays        []int                   `gorm:"column:month_days;type:jsonb;serializer:json"`
	TimeOfDayMinutes int                     `gorm:"column:time_of_day_minutes;not null"`
	Items            types.ServiceItems      `gorm:"column:items;type:jsonb;not null"`
	User             types.UserSnapshot      `gorm:"column:user_snapshot;type:jsonb;not null"`
	StartDate        time.Time               `gorm:"column:start_date;not null"`
	EndDate          *time.Time              `gorm:"column:end_date"`
	NextScheduleDate time.Time               `gorm:"column:next_schedule_date;not null"`
	GeneratedCount   int                     `gorm:"column:generated_count;not null;default:0"`
	Status           enums.PatternStatus     `gorm:"column:status;type:text;not null;default:'active'"`
	CreatedAt        time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

func (RecurringPattern) TableName() string { return "recurring_patterns" }

// BeforeCreate assigns an id when the caller did not.
func (p *RecurringPattern) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
