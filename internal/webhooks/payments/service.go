package paymentswebhook

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/homeserve-backend/internal/bookings"
	"github.com/angelmondragon/homeserve-backend/pkg/db/models"
	"github.com/angelmondragon/homeserve-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/homeserve-backend/pkg/errors"
	"github.com/angelmondragon/homeserve-backend/pkg/logger"
)

const (
	EventPaymentSucceeded = "payment.succeeded"
	EventPaymentFailed    = "payment.failed"
)

// Event is the provider's notification body.
type Event struct {
	ID        string             `json:"id"`
	Type      string             `json:"type"`
	BookingID uuid.UUID          `json:"booking_id"`
	Stage     enums.PaymentStage `json:"stage"`
	Amount    decimal.Decimal    `json:"amount"`
	Reference string             `json:"reference"`
}

type paymentConfirmer interface {
	ConfirmPayment(ctx context.Context, input bookings.PaymentInput) (*models.Booking, error)
}

type Service struct {
	bookings paymentConfirmer
	logg     *logger.Logger
}

func NewService(confirmer paymentConfirmer, logg *logger.Logger) (*Service, error) {
	if confirmer == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "booking service required")
	}
	return &Service{bookings: confirmer, logg: logg}, nil
}

// HandleEvent applies a successful payment to its booking. Failures and
// unknown types are acknowledged without side effects.
func (s *Service) HandleEvent(ctx context.Context, event Event) error {
	if event.ID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "event id required")
	}
	switch event.Type {
	case EventPaymentSucceeded:
	case EventPaymentFailed:
		if s.logg != nil {
			s.logg.Warn(s.logg.WithBookingID(ctx, event.BookingID.String()), "payment failed at provider")
		}
		return nil
	default:
		return nil
	}

	if event.BookingID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "booking_id required")
	}
	if !event.Stage.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "stage must be base or full")
	}
	if event.Amount.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must not be negative")
	}
	reference := event.Reference
	if reference == "" {
		reference = event.ID
	}
	_, err := s.bookings.ConfirmPayment(ctx, bookings.PaymentInput{
		BookingID: event.BookingID,
		Stage:     event.Stage,
		Amount:    event.Amount,
		Reference: reference,
	})
	return err
}
