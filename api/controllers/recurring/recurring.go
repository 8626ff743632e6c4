package recurring

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/homeserve-backend/api/controllers"
	"github.com/angelmondragon/homeserve-backend/api/responses"
	"github.com/angelmondragon/homeserve-backend/api/validators"
	"github.com/angelmondragon/homeserve-backend/internal/hubs"
	internalrecurring "github.com/angelmondragon/homeserve-backend/internal/recurring"
	"github.com/angelmondragon/homeserve-backend/pkg/db/models"
	"github.com/angelmondragon/homeserve-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/homeserve-backend/pkg/errors"
	"github.com/angelmondragon/homeserve-backend/pkg/logger"
	"github.com/angelmondragon/homeserve-backend/pkg/types"
)

type createRequest struct {
	Name             string             `json:"name" validate:"required,max=120"`
	Phone            string             `json:"phone" validate:"max=32"`
	Address          types.Address      `json:"address"`
	Items            []hubs.ItemRequest `json:"items" validate:"required,min=1,max=20,dive"`
	Cadence          string             `json:"cadence" validate:"required,oneof=daily weekly monthly"`
	Weekdays         []int              `json:"weekdays" validate:"max=7,dive,gte=0,lte=6"`
	MonthDays        []int              `json:"month_days" validate:"max=31,dive,gte=1,lte=31"`
	TimeOfDayMinutes int                `json:"time_of_day_minutes" validate:"gte=0,lte=1439"`
	StartDate        time.Time          `json:"start_date" validate:"required"`
	EndDate          *time.Time         `json:"end_date"`
}

type patternView struct {
	ID               uuid.UUID               `json:"id"`
	Status           enums.PatternStatus     `json:"status"`
	Cadence          enums.RecurrenceCadence `json:"cadence"`
	Weekdays         []int                   `json:"weekdays,omitempty"`
	MonthDays        []int                   `json:"month_days,omitempty"`
	TimeOfDayMinutes int                     `json:"time_of_day_minutes"`
	Items            types.ServiceItems      `json:"items"`
	Address          types.Address           `json:"address"`
	StartDate        time.Time               `json:"start_date"`
	EndDate          *time.Time              `json:"end_date,omitempty"`
	NextScheduleDate time.Time               `json:"next_schedule_date"`
	GeneratedCount   int                     `json:"generated_count"`
	CreatedAt        time.Time               `json:"created_at"`
}

func toView(p models.RecurringPattern) patternView {
	return patternView{
		ID:               p.ID,
		Status:           p.Status,
		Cadence:          p.Cadence,
		Weekdays:         p.Weekdays,
		MonthDays:        p.MonthDays,
		TimeOfDayMinutes: p.TimeOfDayMinutes,
		Items:            p.Items,
		Address:          p.User.Address,
		StartDate:        p.StartDate,
		EndDate:          p.EndDate,
		NextScheduleDate: p.NextScheduleDate,
		GeneratedCount:   p.GeneratedCount,
		CreatedAt:        p.CreatedAt,
	}
}

// Create registers a repeating booking for the caller.
func Create(svc internalrecurring.Service, logg *logger.Logger) http.HandlerFunc {
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
		cadence, err := enums.ParseRecurrenceCadence(payload.Cadence)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cadence"))
			return
		}

		pattern, err := svc.Create(r.Context(), internalrecurring.CreateInput{
			UserID:           userID,
			Name:             validators.SanitizeString(payload.Name, 120),
			Phone:            validators.SanitizeString(payload.Phone, 32),
			Address:          payload.Address,
			Items:            payload.Items,
			Cadence:          cadence,
			Weekdays:         payload.Weekdays,
			MonthDays:        payload.MonthDays,
			TimeOfDayMinutes: payload.TimeOfDayMinutes,
			StartDate:        payload.StartDate,
			EndDate:          payload.EndDate,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, toView(*pattern))
	}
}

// List returns every pattern the caller owns.
func List(svc internalrecurring.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _, err := controllers.Actor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		patterns, err := svc.ListForUser(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		views := make([]patternView, 0, len(patterns))
		for _, p := range patterns {
			views = append(views, toView(p))
		}
		responses.WriteSuccess(w, views)
	}
}

type patternOp func(ctx context.Context, id, userID uuid.UUID) (*models.RecurringPattern, error)

func handle(op patternOp, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, _, err := controllers.Actor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := validators.ParseUUIDParam(r, "patternId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		pattern, err := op(r.Context(), id, userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toView(*pattern))
	}
}

// Detail returns one of the caller's patterns.
func Detail(svc internalrecurring.Service, logg *logger.Logger) http.HandlerFunc {
	return handle(svc.Get, logg)
}

// Pause stops a pattern from generating bookings until resumed.
func Pause(svc internalrecurring.Service, logg *logger.Logger) http.HandlerFunc {
	return handle(svc.Pause, logg)
}

// Resume reactivates a paused pattern from its next occurrence.
func Resume(svc internalrecurring.Service, logg *logger.Logger) http.HandlerFunc {
	return handle(svc.Resume, logg)
}

// Cancel ends a pattern permanently.
func Cancel(svc internalrecurring.Service, logg *logger.Logger) http.HandlerFunc {
	return handle(svc.Cancel, logg)
}
