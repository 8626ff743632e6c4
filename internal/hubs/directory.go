// Package hubs resolves which service area a booking belongs to and who supervises it.
package hubs

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/homeserve-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/homeserve-backend/pkg/errors"
	"github.com/angelmondragon/homeserve-backend/pkg/types"
)

type hubsRepository interface {
	ListActive(ctx context.Context) ([]models.Hub, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Hub, error)
}

// ItemRequest is a catalog entry the customer asked for.
type ItemRequest struct {
	ServiceID string `json:"service_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gte=1,lte=20"`
}

// Directory answers hub lookups for bookings.
type Directory interface {
	Resolve(ctx context.Context, point types.GeoPoint) (*models.Hub, error)
	Supervisors(ctx context.Context, hubID uuid.UUID) ([]uuid.UUID, error)
	Quote(hub *models.Hub, requests []ItemRequest) (types.ServiceItems, error)
}

type directory struct {
	repo hubsRepository
}

// NewDirectory builds a Directory over the hub repository.
func NewDirectory(repo hubsRepository) (Directory, error) {
	if repo == nil {
		return nil, fmt.Errorf("hub repository required")
	}
	return &directory{repo: repo}, nil
}

// Resolve returns the nearest active hub whose radius covers point.
func (d *directory) Resolve(ctx context.Context, point types.GeoPoint) (*models.Hub, error) {
	if !point.Valid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "location is out of range")
	}
	hubs, err := d.repo.ListActive(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list hubs")
	}
	var (
		best     *models.Hub
		bestDist float64
	)
	for i := range hubs {
		hub := &hubs[i]
		dist := point.DistanceKm(types.GeoPoint{Lat: hub.Lat, Lng: hub.Lng})
		if dist > hub.RadiusKm {
			continue
		}
		if best == nil || dist < bestDist {
			best, bestDist = hub, dist
		}
	}
	if best == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no hub serves this location")
	}
	return best, nil
}

func (d *directory) Supervisors(ctx context.Context, hubID uuid.UUID) ([]uuid.UUID, error) {
	hub, err := d.repo.FindByID(ctx, hubID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load hub")
	}
	if hub == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "hub not found")
	}
	return append([]uuid.UUID(nil), hub.SupervisorIDs...), nil
}

// Quote prices requests against the hub catalog. Repeated service ids are merged.
func (d *directory) Quote(hub *models.Hub, requests []ItemRequest) (types.ServiceItems, error) {
	if hub == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "hub required")
	}
	if len(requests) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one service item is required")
	}
	catalog := make(map[string]models.HubService, len(hub.Services))
	for _, svc := range hub.Services {
		if svc.Active {
			catalog[svc.ServiceID] = svc
		}
	}

	index := make(map[string]int, len(requests))
	items := make(types.ServiceItems, 0, len(requests))
	for _, req := range requests {
		id := strings.TrimSpace(req.ServiceID)
		if req.Quantity < 1 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1").
				WithDetails(map[string]any{"service_id": id})
		}
		svc, ok := catalog[id]
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "service not offered in this area").
				WithDetails(map[string]any{"service_id": id})
		}
		if pos, seen := index[id]; seen {
			items[pos].Quantity += req.Quantity
			continue
		}
		index[id] = len(items)
		items = append(items, types.ServiceItem{
			ServiceID:        svc.ServiceID,
			Name:             svc.Name,
			Quantity:         req.Quantity,
			UnitPrice:        svc.Price,
			EstimatedMinutes: svc.EstimatedMinutes,
		})
	}
	return items, nil
}
