package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/multierr"

	"github.com/angelmondragon/homeserve-backend/pkg/auth/session"
	"github.com/angelmondragon/homeserve-backend/pkg/config"
	"github.com/angelmondragon/homeserve-backend/pkg/logger"
	"github.com/angelmondragon/homeserve-backend/pkg/metrics"
)

const (
	outcomeDelivered = "delivered"
	outcomeQueued    = "queued"
	outcomeSkipped   = "remote"
	outcomeFailed    = "failed"
)

// IntentHandler publishes what a client asked for.
type IntentHandler interface {
	Handle(ctx context.Context, id session.Identity, msg Message) error
}

type authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) (session.Identity, error)
}

// ServerParams are the dependencies of NewServer. Metrics may be nil; Clock
// defaults to time.Now.
type ServerParams struct {
	Config   config.GatewayConfig
	Auth     authenticator
	Intents  IntentHandler
	Registry *Registry
	Presence *Presence
	Offline  *OfflineQueue
	Metrics  *metrics.GatewayMetrics
	Logger   *logger.Logger
	Clock    func() time.Time
}

// Server owns this instance's client sockets.
type Server struct {
	cfg      config.GatewayConfig
	auth     authenticator
	intents  IntentHandler
	registry *Registry
	presence *Presence
	offline  *OfflineQueue
	metrics  *metrics.GatewayMetrics
	logg     *logger.Logger
	clock    func() time.Time
	upgrader websocket.Upgrader
	locks    *userLocks
}

// NewServer validates p and builds a Server ready to accept upgrades.
func NewServer(p ServerParams) (*Server, error) {
	if p.Auth == nil {
		return nil, fmt.Errorf("authenticator required")
	}
	if p.Intents == nil {
		return nil, fmt.Errorf("intent handler required")
	}
	if p.Registry == nil {
		return nil, fmt.Errorf("registry required")
	}
	if p.Presence == nil {
		return nil, fmt.Errorf("presence required")
	}
	if p.Offline == nil {
		return nil, fmt.Errorf("offline queue required")
	}
	if p.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	clock := p.Clock
	if clock == nil {
		clock = time.Now
	}
	s := &Server{
		cfg:      p.Config,
		auth:     p.Auth,
		intents:  p.Intents,
		registry: p.Registry,
		presence: p.Presence,
		offline:  p.Offline,
		metrics:  p.Metrics,
		logg:     p.Logger,
		clock:    clock,
		locks:    newUserLocks(),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s, nil
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// ServeHTTP upgrades the request and serves the socket until it closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := context.WithoutCancel(r.Context())
	id, authErr := s.auth.Authenticate(ctx, r)

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "websocket upgrade failed")
		return
	}
	if authErr != nil {
		code, reason := websocket.ClosePolicyViolation, "unauthorized"
		if !rejectedToken(authErr) {
			code, reason = websocket.CloseInternalServerErr, "authentication unavailable"
			s.logg.Error(ctx, "realtime token lookup failed", authErr)
		}
		_ = ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), s.deadline())
		_ = ws.Close()
		return
	}
	s.serve(ctx, ws, id)
}

func (s *Server) serve(ctx context.Context, sock socket, id session.Identity) {
	conn := newConnection(sock, id.UserID, id.Role, s.cfg.SendBuffer, s.clock().UTC())
	ctx = s.logg.WithConnectionID(s.logg.WithUserID(ctx, id.UserID.String()), conn.ID)
	ctx = s.logg.WithActorRole(ctx, string(id.Role))

	go func() {
		if err := conn.writePump(s.writeTimeout()); err != nil {
			s.logg.Debug(s.logg.WithField(ctx, "error", err.Error()), "websocket write failed")
		}
		conn.Close()
	}()

	if err := s.attach(ctx, conn); err != nil {
		s.logg.Error(ctx, "failed to attach connection", err)
		conn.closeWith(websocket.CloseInternalServerErr, "attach failed", s.deadline())
		s.detach(ctx, conn)
		return
	}
	s.logg.Info(ctx, "websocket connected")

	s.readLoop(ctx, conn, id)
	s.detach(ctx, conn)
	s.logg.Info(ctx, "websocket disconnected")
}

// attach registers conn and replays the user's offline queue while holding the
// user's lock, so no live push can overtake the replay.
func (s *Server) attach(ctx context.Context, conn *Connection) error {
	unlock := s.locks.lock(conn.UserID)
	defer unlock()

	s.registry.Add(conn)
	s.metrics.ConnectionOpened()
	if err := s.presence.Add(ctx, conn); err != nil {
		return fmt.Errorf("register presence: %w", err)
	}

	established, err := NewMessage("", PushConnectionEstablished, map[string]any{
		"connectionId": conn.ID,
		"userId":       conn.UserID,
		"role":         conn.Role,
	}, s.clock())
	if err != nil {
		return err
	}
	if err := s.write(conn, established); err != nil {
		return err
	}

	pending, err := s.offline.Drain(ctx, conn.UserID)
	if err != nil {
		return fmt.Errorf("drain offline queue: %w", err)
	}
	for i, msg := range pending {
		if err := s.write(conn, msg); err != nil {
			return multierr.Append(err, s.offline.Requeue(ctx, conn.UserID, pending[i:]))
		}
	}
	if len(pending) > 0 {
		s.logg.Info(s.logg.WithField(ctx, "replayed", len(pending)), "offline queue replayed")
	}
	return nil
}

func (s *Server) write(conn *Connection, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if !conn.SendWait(payload, s.writeTimeout()) {
		return errors.New("connection not accepting writes")
	}
	return nil
}

// detach removes conn from every index. Safe to call more than once.
func (s *Server) detach(ctx context.Context, conn *Connection) {
	conn.Close()
	if _, ok := s.registry.Remove(conn.ID); !ok {
		return
	}
	s.metrics.ConnectionClosed()
	if err := s.presence.Remove(ctx, conn); err != nil {
		s.logg.Error(ctx, "failed to remove presence", err)
	}
}

func (s *Server) readLoop(ctx context.Context, conn *Connection, id session.Identity) {
	if s.cfg.MaxMessageBytes > 0 {
		conn.sock.SetReadLimit(s.cfg.MaxMessageBytes)
	}
	conn.sock.SetPongHandler(func(string) error {
		conn.markAlive()
		return nil
	})
	for {
		_, data, err := conn.sock.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logg.Debug(s.logg.WithField(ctx, "error", err.Error()), "websocket read failed")
			}
			return
		}
		conn.markAlive()
		s.handleInbound(ctx, conn, id, data)
	}
}

func (s *Server) handleInbound(ctx context.Context, conn *Connection, id session.Identity, data []byte) {
	msg, err := decodeMessage(data)
	if err != nil || msg.Type == "" {
		s.reply(conn, errorMessage("invalid_message", "message must be a JSON object with a type", s.clock()))
		return
	}
	if msg.Type == IntentPing {
		pong, _ := NewMessage("", PushPong, nil, s.clock())
		s.reply(conn, pong)
		return
	}
	ctx = s.logg.WithField(ctx, "intent", msg.Type)
	if err := s.intents.Handle(ctx, id, msg); err != nil {
		code := "publish_failed"
		switch {
		case errors.Is(err, ErrUnknownIntent):
			code = "unknown_type"
		case errors.Is(err, ErrIntentForbidden):
			code = "forbidden"
		case errors.Is(err, ErrInvalidIntent):
			code = "invalid_data"
		default:
			s.logg.Error(ctx, "failed to publish client intent", err)
		}
		s.reply(conn, errorMessage(code, err.Error(), s.clock()))
	}
}

func (s *Server) reply(conn *Connection, msg Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	conn.Send(payload)
}

// Deliver pushes msg to every live connection of the user on this instance. With
// no local connection it leaves the message to whichever instance holds the
// user, or queues it when the user is offline everywhere.
func (s *Server) Deliver(ctx context.Context, userID uuid.UUID, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	unlock := s.locks.lock(userID)
	defer unlock()

	delivered := 0
	for _, conn := range s.registry.ForUser(userID) {
		if conn.Send(payload) {
			delivered++
			continue
		}
		s.logg.Warn(s.logg.WithConnectionID(ctx, conn.ID), "dropping slow connection")
		conn.closeWith(websocket.CloseTryAgainLater, "send buffer full", s.deadline())
		s.detach(ctx, conn)
	}
	if delivered > 0 {
		s.metrics.Push(outcomeDelivered)
		return nil
	}

	online, err := s.presence.IsOnline(ctx, userID)
	if err != nil {
		s.metrics.Push(outcomeFailed)
		return fmt.Errorf("presence lookup: %w", err)
	}
	if online {
		s.metrics.Push(outcomeSkipped)
		return nil
	}
	if _, err := s.offline.Enqueue(ctx, userID, msg); err != nil {
		s.metrics.Push(outcomeFailed)
		return fmt.Errorf("offline enqueue: %w", err)
	}
	s.metrics.Push(outcomeQueued)
	return nil
}

// PingSweep pings every connection and refreshes its presence entries.
func (s *Server) PingSweep(ctx context.Context) {
	deadline := s.deadline()
	for _, conn := range s.registry.All() {
		if err := conn.ping(deadline); err != nil {
			s.logg.Debug(s.logg.WithConnectionID(ctx, conn.ID), "ping failed")
		}
		if err := s.presence.Refresh(ctx, conn); err != nil {
			s.logg.Error(s.logg.WithConnectionID(ctx, conn.ID), "failed to refresh presence", err)
		}
	}
}

// EvictSweep closes connections that missed too many pings and returns how many.
func (s *Server) EvictSweep(ctx context.Context) int {
	limit := s.cfg.MaxMissedPings
	if limit <= 0 {
		limit = 3
	}
	evicted := 0
	for _, conn := range s.registry.All() {
		if conn.Missed() < limit {
			continue
		}
		connCtx := s.logg.WithConnectionID(ctx, conn.ID)
		s.logg.Warn(s.logg.WithField(connCtx, "missed_pings", conn.Missed()), "evicting unresponsive connection")
		conn.closeWith(websocket.CloseGoingAway, "heartbeat timeout", s.deadline())
		s.detach(connCtx, conn)
		s.metrics.Evicted()
		evicted++
	}
	return evicted
}

// Run drives the liveness sweeps until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	pingEvery := s.cfg.PingInterval
	if pingEvery <= 0 {
		pingEvery = 20 * time.Second
	}
	evictEvery := s.cfg.EvictInterval
	if evictEvery <= 0 {
		evictEvery = 30 * time.Second
	}
	pingTicker := time.NewTicker(pingEvery)
	defer pingTicker.Stop()
	evictTicker := time.NewTicker(evictEvery)
	defer evictTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-pingTicker.C:
			s.PingSweep(ctx)
		case <-evictTicker.C:
			s.EvictSweep(ctx)
		}
	}
}

// Shutdown closes every socket and clears this instance's presence.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs error
	for _, conn := range s.registry.All() {
		conn.closeWith(websocket.CloseGoingAway, "server shutting down", s.deadline())
		if _, ok := s.registry.Remove(conn.ID); ok {
			s.metrics.ConnectionClosed()
			errs = multierr.Append(errs, s.presence.Remove(ctx, conn))
		}
	}
	return errs
}

// Connections is the number of live sockets on this instance.
func (s *Server) Connections() int {
	return s.registry.Len()
}

func (s *Server) writeTimeout() time.Duration {
	if s.cfg.WriteTimeout <= 0 {
		return 10 * time.Second
	}
	return s.cfg.WriteTimeout
}

func (s *Server) deadline() time.Time {
	return time.Now().Add(s.writeTimeout())
}

// userLocks serialises replay and delivery per user.
type userLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[uuid.UUID]*userLock)}
}

func (u *userLocks) lock(userID uuid.UUID) func() {
	u.mu.Lock()
	l, ok := u.locks[userID]
	if !ok {
		l = &userLock{}
		u.locks[userID] = l
	}
	l.refs++
	u.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		u.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(u.locks, userID)
		}
		u.mu.Unlock()
	}
}
