package recurring

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/homeserve-backend/internal/hubs"
	"github.com/angelmondragon/homeserve-backend/pkg/db/models"
	"github.com/angelmondragon/homeserve-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/homeserve-backend/pkg/errors"
	"github.com/angelmondragon/homeserve-backend/pkg/logger"
	"github.com/angelmondragon/homeserve-backend/pkg/types"
)

// CreateInput carries a customer's request for a repeating booking.
type CreateInput struct {
	UserID           uuid.UUID
	Name             string
	Phone            string
	Address          types.Address
	Items            []hubs.ItemRequest
	Cadence          enums.RecurrenceCadence
	Weekdays         []int
	MonthDays        []int
	TimeOfDayMinutes int
	StartDate        time.Time
	EndDate          *time.Time
}

// Service manages the lifecycle of recurring patterns. The scheduler expands
// them into bookings.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.RecurringPattern, error)
	Pause(ctx context.Context, id, userID uuid.UUID) (*models.RecurringPattern, error)
	Resume(ctx context.Context, id, userID uuid.UUID) (*models.RecurringPattern, error)
	Cancel(ctx context.Context, id, userID uuid.UUID) (*models.RecurringPattern, error)
	Get(ctx context.Context, id, userID uuid.UUID) (*models.RecurringPattern, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]models.RecurringPattern, error)
}

type ServiceParams struct {
	Repo   Repository
	Hubs   hubs.Directory
	Logger *logger.Logger
	Clock  func() time.Time
}

type service struct {
	repo  Repository
	hubs  hubs.Directory
	logg  *logger.Logger
	clock func() time.Time
}

func NewService(p ServiceParams) (Service, error) {
	if p.Repo == nil {
		return nil, errors.New("recurring repository required")
	}
	if p.Hubs == nil {
		return nil, errors.New("hub directory required")
	}
	clock := p.Clock
	if clock == nil {
		clock = time.Now
	}
	return &service{repo: p.Repo, hubs: p.Hubs, logg: p.Logger, clock: clock}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.RecurringPattern, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if strings.TrimSpace(input.Address.Line1) == "" || strings.TrimSpace(input.Address.City) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "address line1 and city are required")
	}
	if !input.Address.Location.Valid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "address location is out of range")
	}
	if !input.Cadence.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid cadence")
	}
	if input.TimeOfDayMinutes < 0 || input.TimeOfDayMinutes >= 24*60 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "time_of_day must be between 00:00 and 23:59")
	}
	weekdays, monthDays, err := selectors(input)
	if err != nil {
		return nil, err
	}

	now := s.clock().UTC()
	start := input.StartDate.UTC()
	if start.IsZero() {
		start = now
	}
	if input.EndDate != nil && !input.EndDate.After(start) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "end_date must be after start_date")
	}

	hub, err := s.hubs.Resolve(ctx, input.Address.Location)
	if err != nil {
		return nil, err
	}
	items, err := s.hubs.Quote(hub, input.Items)
	if err != nil {
		return nil, err
	}

	var end *time.Time
	if input.EndDate != nil {
		e := input.EndDate.UTC()
		end = &e
	}
	pattern := &models.RecurringPattern{
		UserID:           input.UserID,
		HubID:            hub.ID,
		Cadence:          input.Cadence,
		Weekdays:         weekdays,
		MonthDays:        monthDays,
		TimeOfDayMinutes: input.TimeOfDayMinutes,
		Items:            items,
		User: types.UserSnapshot{
			ID:      input.UserID.String(),
			Name:    strings.TrimSpace(input.Name),
			Phone:   strings.TrimSpace(input.Phone),
			Address: input.Address,
		},
		StartDate:        start,
		EndDate:          end,
		NextScheduleDate: now,
		Status:           enums.PatternStatusActive,
	}
	if _, ok := NextOccurrence(*pattern, now); !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "pattern never occurs between start_date and end_date")
	}
	if err := s.repo.Create(ctx, pattern); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create recurring pattern")
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithField(s.logg.WithUserID(ctx, input.UserID.String()), "pattern_id", pattern.ID.String()), "recurring pattern created")
	}
	return pattern, nil
}

func selectors(input CreateInput) ([]int, []int, error) {
	switch input.Cadence {
	case enums.CadenceWeekly:
		days, err := normalise(input.Weekdays, 0, 6)
		if err != nil || len(days) == 0 {
			return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "weekly patterns need weekdays between 0 (Sunday) and 6")
		}
		return days, nil, nil
	case enums.CadenceMonthly:
		days, err := normalise(input.MonthDays, 1, 31)
		if err != nil || len(days) == 0 {
			return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "monthly patterns need month days between 1 and 31")
		}
		return nil, days, nil
	}
	return nil, nil, nil
}

func normalise(values []int, min, max int) ([]int, error) {
	seen := make(map[int]struct{}, len(values))
	out := make([]int, 0, len(values))
	for _, v := range values {
		if v < min || v > max {
			return nil, errors.New("selector out of range")
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Ints(out)
	return out, nil
}

func (s *service) Pause(ctx context.Context, id, userID uuid.UUID) (*models.RecurringPattern, error) {
	return s.transition(ctx, id, userID, []enums.PatternStatus{enums.PatternStatusActive}, enums.PatternStatusPaused, nil)
}

// Resume reactivates a paused pattern. Occurrences missed while paused are not
// back-filled; scheduling continues from now.
func (s *service) Resume(ctx context.Context, id, userID uuid.UUID) (*models.RecurringPattern, error) {
	extra := map[string]any{"next_schedule_date": s.clock().UTC()}
	return s.transition(ctx, id, userID, []enums.PatternStatus{enums.PatternStatusPaused}, enums.PatternStatusActive, extra)
}

func (s *service) Cancel(ctx context.Context, id, userID uuid.UUID) (*models.RecurringPattern, error) {
	from := []enums.PatternStatus{enums.PatternStatusActive, enums.PatternStatusPaused}
	return s.transition(ctx, id, userID, from, enums.PatternStatusCancelled, nil)
}

func (s *service) transition(ctx context.Context, id, userID uuid.UUID, from []enums.PatternStatus, to enums.PatternStatus, extra map[string]any) (*models.RecurringPattern, error) {
	pattern, err := s.Get(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if pattern.Status == to {
		return pattern, nil
	}
	updates := map[string]any{"status": to}
	for k, v := range extra {
		updates[k] = v
	}
	ok, err := s.repo.UpdateStatus(ctx, id, from, updates)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update recurring pattern")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "pattern cannot move from "+string(pattern.Status)+" to "+string(to))
	}
	return s.Get(ctx, id, userID)
}

// Get returns the pattern when it belongs to userID.
func (s *service) Get(ctx context.Context, id, userID uuid.UUID) (*models.RecurringPattern, error) {
	pattern, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "recurring pattern not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load recurring pattern")
	}
	if pattern.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "recurring pattern not found")
	}
	return pattern, nil
}

func (s *service) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.RecurringPattern, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	rows, err := s.repo.ListForUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list recurring patterns")
	}
	return rows, nil
}
