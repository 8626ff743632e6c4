package realtime

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/homeserve-backend/api/controllers"
	"github.com/angelmondragon/homeserve-backend/api/responses"
	"github.com/angelmondragon/homeserve-backend/pkg/enums"
	"github.com/angelmondragon/homeserve-backend/pkg/logger"
)

// TicketIssuer mints the opaque token the gateway accepts on the WebSocket handshake.
type TicketIssuer interface {
	IssueRealtimeToken(ctx context.Context, userID uuid.UUID, role enums.ClientRole) (string, time.Time, error)
}

type ticketResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IssueTicket hands the authenticated caller a realtime token.
func IssueTicket(issuer TicketIssuer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, role, err := controllers.Actor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		token, expiresAt, err := issuer.IssueRealtimeToken(r.Context(), userID, role)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, ticketResponse{Token: token, ExpiresAt: expiresAt})
	}
}
