package partners

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/homeserve-backend/api/controllers"
	"github.com/angelmondragon/homeserve-backend/api/responses"
	"github.com/angelmondragon/homeserve-backend/api/validators"
	internalpartners "github.com/angelmondragon/homeserve-backend/internal/partners"
	"github.com/angelmondragon/homeserve-backend/pkg/db/models"
	"github.com/angelmondragon/homeserve-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/homeserve-backend/pkg/errors"
	"github.com/angelmondragon/homeserve-backend/pkg/logger"
	"github.com/angelmondragon/homeserve-backend/pkg/types"
)

type availabilityView struct {
	PartnerID        uuid.UUID                `json:"partner_id"`
	Online           bool                     `json:"online"`
	Status           enums.AvailabilityStatus `json:"status"`
	Location         *types.LiveLocation      `json:"location,omitempty"`
	CurrentBookingID *uuid.UUID               `json:"current_booking_id,omitempty"`
	ScheduledJobs    types.JobLog             `json:"scheduled_jobs"`
	CompletedJobs    types.JobLog             `json:"completed_jobs"`
	UpdatedAt        time.Time                `json:"updated_at"`
}

func toView(doc *models.PartnerAvailability) availabilityView {
	v := availabilityView{
		PartnerID:        doc.PartnerID,
		Online:           doc.Online,
		Status:           doc.Status,
		CurrentBookingID: doc.CurrentBookingID,
		ScheduledJobs:    doc.ScheduledJobs,
		CompletedJobs:    doc.CompletedJobs,
		UpdatedAt:        doc.UpdatedAt,
	}
	if doc.Location.Valid() && !doc.Location.ReportedAt.IsZero() {
		loc := doc.Location
		v.Location = &loc
	}
	return v
}

type toggleRequest struct {
	Online  *bool `json:"online"`
	OnBreak *bool `json:"on_break"`
}

// Get returns the calling partner's availability document.
func Get(tracker internalpartners.Tracker, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		partnerID, _, err := controllers.Actor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		doc, err := tracker.Get(r.Context(), partnerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toView(doc))
	}
}

// Toggle flips online and break flags. Online is applied first so a partner can
// come online and go on break in one request.
func Toggle(tracker internalpartners.Tracker, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		partnerID, _, err := controllers.Actor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload toggleRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if payload.Online == nil && payload.OnBreak == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "online or on_break is required"))
			return
		}

		var doc *models.PartnerAvailability
		if payload.Online != nil {
			if doc, err = tracker.SetOnline(r.Context(), partnerID, *payload.Online); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}
		if payload.OnBreak != nil {
			if doc, err = tracker.SetBreak(r.Context(), partnerID, *payload.OnBreak); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}
		responses.WriteSuccess(w, toView(doc))
	}
}
