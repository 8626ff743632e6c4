package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/homeserve-backend/api/middleware"
	"github.com/angelmondragon/homeserve-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/homeserve-backend/pkg/errors"
)

// Actor resolves the authenticated caller or returns an UNAUTHORIZED error.
func Actor(r *http.Request) (uuid.UUID, enums.ClientRole, error) {
	id, role, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		return uuid.Nil, "", pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	return id, role, nil
}
