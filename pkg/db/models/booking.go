package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	dbtypes "github.com/angelmondragon/homeserve-backend/pkg/db/types"
	"github.com/angelmondragon/homeserve-backend/pkg/enums"
	"github.com/angelmondragon/homeserve-backend/pkg/types"
)

// Booking is the aggregate root for a single service engagement.
type Booking struct {
	ID                  uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID              uuid.UUID             `gorm:"column:user_id;type:uuid;not null"`
	HubID               uuid.UUID             `gorm:"column:hub_id;type:uuid;not null"`
	RecurringPatternID  *uuid.UUID            `gorm:"column:recurring_pattern_id;type:uuid"`
	ScheduleKind        enums.ScheduleKind    `gorm:"column:schedule_kind;type:text;not null"`
	ScheduledAt         time.Time             `gorm:"column:scheduled_at;not null"`
	Items               types.ServiceItems    `gorm:"column:items;type:jsonb;not null"`
	User                types.UserSnapshot    `gorm:"column:user_snapshot;type:jsonb;not null"`
	PartnerID           *uuid.UUID            `gorm:"column:partner_id;type:uuid"`
	Partner             types.PartnerSnapshot `gorm:"column:partner_snapshot;type:jsonb"`
	BroadcastPartnerIDs dbtypes.UUIDArray     `gorm:"column:broadcast_partner_ids;type:uuid[];not null;default:'{}'"`
	Currency            string                `gorm:"column:currency;type:text;not null"`
	BaseAmount          decimal.Decimal       `gorm:"column:base_amount;type:numeric(12,2);not null"`
	ExtraAmount         decimal.Decimal       `gorm:"column:extra_amount;type:numeric(12,2);not null;default:0"`
	TotalAmount         decimal.Decimal       `gorm:"column:total_amount;type:numeric(12,2);not null"`
	EstimatedMinutes    int                   `gorm:"column:estimated_minutes;not null"`
	BookingStatus       enums.BookingStatus   `gorm:"column:booking_status;type:text;not null;default:'created'"`
	PartnerStatus       enums.PartnerStatus   `gorm:"column:partner_status;type:text;not null;default:'not_assigned'"`
	PaymentStatus       enums.PaymentStatus   `gorm:"column:payment_status;type:text;not null;default:'pending'"`
	StartOTP            string                `gorm:"column:start_otp;type:text;not null"`
	EndOTP              string                `gorm:"column:end_otp;type:text;not null"`
	StartOTPVerified    bool                  `gorm:"column:start_otp_verified;not null;default:false"`
	EndOTPVerified      bool                  `gorm:"column:end_otp_verified;not null;default:false"`
	AssignedAt          *time.Time            `gorm:"column:assigned_at"`
	StartedAt           *time.Time            `gorm:"column:started_at"`
	CompletedAt         *time.Time            `gorm:"column:completed_at"`
	CancelledAt         *time.Time            `gorm:"column:cancelled_at"`
	CancelledBy         *string               `gorm:"column:cancelled_by"`
	CancelReason        *string               `gorm:"column:cancel_reason"`
	CreatedAt           time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

func (Booking) TableName() string { return "bookings" }

// BeforeCreate assigns an id when the caller did not.
func (b *Booking) BeforeCreate(*gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}
