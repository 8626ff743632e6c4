package bookings

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/homeserve-backend/api/controllers"
	"github.com/angelmondragon/homeserve-backend/api/responses"
	"github.com/angelmondragon/homeserve-backend/api/validators"
	internalbookings "github.com/angelmondragon/homeserve-backend/internal/bookings"
	"github.com/angelmondragon/homeserve-backend/internal/hubs"
	"github.com/angelmondragon/homeserve-backend/pkg/db/models"
	"github.com/angelmondragon/homeserve-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/homeserve-backend/pkg/errors"
	"github.com/angelmondragon/homeserve-backend/pkg/logger"
	"github.com/angelmondragon/homeserve-backend/pkg/pagination"
	"github.com/angelmondragon/homeserve-backend/pkg/types"
)

type createRequest struct {
	Name         string             `json:"name" validate:"required,max=120"`
	Phone        string             `json:"phone" validate:"max=32"`
	Address      types.Address      `json:"address"`
	Items        []hubs.ItemRequest `json:"items" validate:"required,min=1,max=20,dive"`
	ScheduleKind string             `json:"schedule_kind" validate:"required,oneof=instant scheduled"`
	ScheduledAt  *time.Time         `json:"scheduled_at"`
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type otpRequest struct {
	Code string `json:"code" validate:"required,len=4,numeric"`
}

type feedbackRequest struct {
	Rating  int    `json:"rating" validate:"gte=1,lte=5"`
	Comment string `json:"comment" validate:"max=1000"`
}

// Create books a service for the calling customer.
func Create(svc internalbookings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _, err := controllers.Actor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload createRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		kind, err := enums.ParseScheduleKind(payload.ScheduleKind)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid schedule_kind"))
			return
		}

		booking, err := svc.Create(r.Context(), internalbookings.CreateInput{
			UserID:       userID,
			Name:         validators.SanitizeString(payload.Name, 120),
			Phone:        validators.SanitizeString(payload.Phone, 32),
			Address:      payload.Address,
			Items:        payload.Items,
			ScheduleKind: kind,
			ScheduledAt:  payload.ScheduledAt,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, internalbookings.ToView(*booking, enums.RoleUser))
	}
}

// List pages through the calling customer's bookings, newest first.
func List(svc internalbookings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _, err := controllers.Actor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.ListForUser(r.Context(), internalbookings.ListParams{
			UserID: userID,
			Params: pagination.Params{
				Limit:  limit,
				Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
			},
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// Detail returns a booking the caller participates in.
func Detail(svc internalbookings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, role, err := controllers.Actor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		bookingID, err := validators.ParseUUIDParam(r, "bookingId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		booking, err := svc.Get(r.Context(), bookingID, internalbookings.Actor{UserID: userID, Role: role})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalbookings.ToView(*booking, role))
	}
}

func Cancel(svc internalbookings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, role, err := controllers.Actor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		bookingID, err := validators.ParseUUIDParam(r, "bookingId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload cancelRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		booking, err := svc.Cancel(r.Context(), internalbookings.CancelInput{
			BookingID: bookingID,
			Actor:     internalbookings.Actor{UserID: userID, Role: role},
			Reason:    validators.SanitizeString(payload.Reason, 500),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalbookings.ToView(*booking, role))
	}
}

// StartOTP lets the assigned partner begin service with the customer's start code.
func StartOTP(svc internalbookings.Service, logg *logger.Logger) http.HandlerFunc {
	return verifyOTP(logg, svc.VerifyStartOTP)
}

// EndOTP closes the service and bills any overage.
func EndOTP(svc internalbookings.Service, logg *logger.Logger) http.HandlerFunc {
	return verifyOTP(logg, svc.VerifyEndOTP)
}

type otpVerifier func(ctx context.Context, input internalbookings.OTPInput) (*models.Booking, error)

func verifyOTP(logg *logger.Logger, verify otpVerifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		partnerID, role, err := controllers.Actor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		bookingID, err := validators.ParseUUIDParam(r, "bookingId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload otpRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		booking, err := verify(r.Context(), internalbookings.OTPInput{
			BookingID: bookingID,
			PartnerID: partnerID,
			Code:      payload.Code,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalbookings.ToView(*booking, role))
	}
}

func Feedback(svc internalbookings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, role, err := controllers.Actor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		bookingID, err := validators.ParseUUIDParam(r, "bookingId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload feedbackRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		booking, err := svc.RecordPartnerFeedback(r.Context(), internalbookings.FeedbackInput{
			BookingID: bookingID,
			UserID:    userID,
			Rating:    payload.Rating,
			Comment:   validators.SanitizeString(payload.Comment, 1000),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalbookings.ToView(*booking, role))
	}
}
