package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/angelmondragon/homeserve-backend/pkg/auth/session"
)

// ErrMissingToken is returned when the handshake carries no token.
var ErrMissingToken = errors.New("realtime token missing")

// Authenticator resolves the opaque token presented at the WebSocket handshake.
type Authenticator struct {
	resolver session.RealtimeTokenResolver
}

func NewAuthenticator(resolver session.RealtimeTokenResolver) (*Authenticator, error) {
	if resolver == nil {
		return nil, fmt.Errorf("realtime token resolver required")
	}
	return &Authenticator{resolver: resolver}, nil
}

// Authenticate reads the token from the `token` query parameter or a bearer
// Authorization header.
func (a *Authenticator) Authenticate(ctx context.Context, r *http.Request) (session.Identity, error) {
	token := tokenFromRequest(r)
	if token == "" {
		return session.Identity{}, ErrMissingToken
	}
	return a.resolver.ResolveRealtimeToken(ctx, token)
}

// rejectedToken reports whether err means the client presented bad credentials
// rather than the cache being unavailable.
func rejectedToken(err error) bool {
	return errors.Is(err, ErrMissingToken) || errors.Is(err, session.ErrInvalidRealtimeToken)
}

func tokenFromRequest(r *http.Request) string {
	if token := strings.TrimSpace(r.URL.Query().Get("token")); token != "" {
		return token
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}
