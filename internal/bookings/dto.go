package bookings

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/homeserve-backend/internal/hubs"
	"github.com/angelmondragon/homeserve-backend/pkg/db/models"
	"github.com/angelmondragon/homeserve-backend/pkg/enums"
	"github.com/angelmondragon/homeserve-backend/pkg/pagination"
	"github.com/angelmondragon/homeserve-backend/pkg/types"
)

// Actor is the authenticated caller behind a command.
type Actor struct {
	UserID uuid.UUID
	Role   enums.ClientRole
}

// CreateInput carries a customer's booking request.
type CreateInput struct {
	UserID       uuid.UUID
	Name         string
	Phone        string
	Address      types.Address
	Items        []hubs.ItemRequest
	ScheduleKind enums.ScheduleKind
	ScheduledAt  *time.Time
}

// PaymentInput is the opaque confirmation signal from the payment collaborator.
type PaymentInput struct {
	BookingID uuid.UUID
	Stage     enums.PaymentStage
	Amount    decimal.Decimal
	Reference string
}

// BroadcastInput offers a ready booking to candidate partners.
type BroadcastInput struct {
	BookingID    uuid.UUID
	Actor        Actor
	PartnerIDs   []uuid.UUID
	ExpiresAfter int
}

// AssignInput is a partner's acceptance of a broadcast job.
type AssignInput struct {
	BookingID   uuid.UUID
	PartnerID   uuid.UUID
	Name        string
	Phone       string
	Location    *types.LiveLocation
	RequestedAt time.Time
}

// EnrouteInput marks the assigned partner as travelling.
type EnrouteInput struct {
	BookingID  uuid.UUID
	PartnerID  uuid.UUID
	Location   *types.LiveLocation
	EtaMinutes int
}

// LocationInput is a live position report from a partner.
type LocationInput struct {
	BookingID uuid.UUID
	PartnerID uuid.UUID
	Location  types.LiveLocation
}

// OTPInput is a code submitted by the partner at the start or end of service.
type OTPInput struct {
	BookingID uuid.UUID
	PartnerID uuid.UUID
	Code      string
}

// CancelInput requests cancellation on behalf of Actor.
type CancelInput struct {
	BookingID uuid.UUID
	Actor     Actor
	Reason    string
}

// FeedbackInput is the customer's rating of the partner after completion.
type FeedbackInput struct {
	BookingID uuid.UUID
	UserID    uuid.UUID
	Rating    int
	Comment   string
}

// ListParams selects a page of a user's bookings.
type ListParams struct {
	UserID uuid.UUID
	pagination.Params
}

// ListResult is a page of bookings plus the cursor for the next one.
type ListResult struct {
	Items  []View `json:"items"`
	Cursor string `json:"cursor"`
}

// View is the API representation of a booking. OTPs are only shown to the customer.
type View struct {
	ID               uuid.UUID              `json:"id"`
	UserID           uuid.UUID              `json:"user_id"`
	HubID            uuid.UUID              `json:"hub_id"`
	PatternID        *uuid.UUID             `json:"recurring_pattern_id,omitempty"`
	ScheduleKind     enums.ScheduleKind     `json:"schedule_kind"`
	ScheduledAt      time.Time              `json:"scheduled_at"`
	Items            types.ServiceItems     `json:"items"`
	User             types.UserSnapshot     `json:"user"`
	Partner          *types.PartnerSnapshot `json:"partner,omitempty"`
	Currency         string                 `json:"currency"`
	BaseAmount       decimal.Decimal        `json:"base_amount"`
	ExtraAmount      decimal.Decimal        `json:"extra_amount"`
	TotalAmount      decimal.Decimal        `json:"total_amount"`
	EstimatedMinutes int                    `json:"estimated_minutes"`
	BookingStatus    enums.BookingStatus    `json:"booking_status"`
	PartnerStatus    enums.PartnerStatus    `json:"partner_status"`
	PaymentStatus    enums.PaymentStatus    `json:"payment_status"`
	StartOTP         string                 `json:"start_otp,omitempty"`
	EndOTP           string                 `json:"end_otp,omitempty"`
	StartOTPVerified bool                   `json:"start_otp_verified"`
	EndOTPVerified   bool                   `json:"end_otp_verified"`
	AssignedAt       *time.Time             `json:"assigned_at,omitempty"`
	StartedAt        *time.Time             `json:"started_at,omitempty"`
	CompletedAt      *time.Time             `json:"completed_at,omitempty"`
	CancelledAt      *time.Time             `json:"cancelled_at,omitempty"`
	CancelReason     *string                `json:"cancel_reason,omitempty"`
	CreatedAt        time.Time              `json:"created_at"`
	UpdatedAt        time.Time              `json:"updated_at"`
}

// ToView renders b for a caller with role.
func ToView(b models.Booking, role enums.ClientRole) View {
	v := View{
		ID:               b.ID,
		UserID:           b.UserID,
		HubID:            b.HubID,
		PatternID:        b.RecurringPatternID,
		ScheduleKind:     b.ScheduleKind,
		ScheduledAt:      b.ScheduledAt,
		Items:            b.Items,
		User:             b.User,
		Currency:         b.Currency,
		BaseAmount:       b.BaseAmount,
		ExtraAmount:      b.ExtraAmount,
		TotalAmount:      b.TotalAmount,
		EstimatedMinutes: b.EstimatedMinutes,
		BookingStatus:    b.BookingStatus,
		PartnerStatus:    b.PartnerStatus,
		PaymentStatus:    b.PaymentStatus,
		StartOTPVerified: b.StartOTPVerified,
		EndOTPVerified:   b.EndOTPVerified,
		AssignedAt:       b.AssignedAt,
		StartedAt:        b.StartedAt,
		CompletedAt:      b.CompletedAt,
		CancelledAt:      b.CancelledAt,
		CancelReason:     b.CancelReason,
		CreatedAt:        b.CreatedAt,
		UpdatedAt:        b.UpdatedAt,
	}
	if !b.Partner.IsZero() {
		partner := b.Partner
		v.Partner = &partner
	}
	if role == enums.RoleUser {
		v.StartOTP = b.StartOTP
		v.EndOTP = b.EndOTP
	}
	return v
}
