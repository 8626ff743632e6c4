package bookings

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/homeserve-backend/api/controllers"
	"github.com/angelmondragon/homeserve-backend/api/responses"
	"github.com/angelmondragon/homeserve-backend/api/validators"
	internalbookings "github.com/angelmondragon/homeserve-backend/internal/bookings"
	"github.com/angelmondragon/homeserve-backend/pkg/logger"
)

type broadcastRequest struct {
	PartnerIDs     []uuid.UUID `json:"partner_ids" validate:"required,min=1,max=50"`
	ExpiresSeconds int         `json:"expires_after_seconds" validate:"gte=0,lte=3600"`
}

// Broadcast offers a ready booking to the chosen partners.
func Broadcast(svc internalbookings.Service, logg *logger.Logger) http.HandlerFunc {
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
		var payload broadcastRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		err = svc.BroadcastJob(r.Context(), internalbookings.BroadcastInput{
			BookingID:    bookingID,
			Actor:        internalbookings.Actor{UserID: userID, Role: role},
			PartnerIDs:   payload.PartnerIDs,
			ExpiresAfter: payload.ExpiresSeconds,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, map[string]any{
			"booking_id": bookingID,
			"partners":   len(payload.PartnerIDs),
		})
	}
}
