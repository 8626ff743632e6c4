package gateway

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/angelmondragon/homeserve-backend/pkg/logger"
)

type fakeStore struct {
	mu     sync.Mutex
	data   map[string]string
	lists  map[string][]string
	sets   map[string]map[string]struct{}
	hashes map[string]map[string]string
	ttls   map[string]time.Duration
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		data:   make(map[string]string),
		lists:  make(map[string][]string),
		sets:   make(map[string]map[string]struct{}),
		hashes: make(map[string]map[string]string),
		ttls:   make(map[string]time.Duration),
	}
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data[key], nil
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	f.data[key] = fmt.Sprint(value)
	f.ttls[key] = ttl
	return true, nil
}

func (f *fakeStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ttls[key] = ttl
	return nil
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, key := range keys {
		delete(f.data, key)
		delete(f.lists, key)
		delete(f.sets, key)
		delete(f.hashes, key)
		delete(f.ttls, key)
	}
	return nil
}

func (f *fakeStore) RPush(_ context.Context, key string, values ...any) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range values {
		f.lists[key] = append(f.lists[key], fmt.Sprint(v))
	}
	return int64(len(f.lists[key])), nil
}

func (f *fakeStore) LTrim(_ context.Context, key string, start, stop int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists[key] = sliceRange(f.lists[key], start, stop)
	return nil
}

func (f *fakeStore) LRange(_ context.Context, key string, start, stop int64) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return sliceRange(f.lists[key], start, stop), nil
}

func (f *fakeStore) SAdd(_ context.Context, key string, members ...any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	set, ok := f.sets[key]
	if !ok {
		set = make(map[string]struct{})
		f.sets[key] = set
	}
	for _, m := range members {
		set[fmt.Sprint(m)] = struct{}{}
	}
	return nil
}

func (f *fakeStore) SRem(_ context.Context, key string, members ...any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range members {
		delete(f.sets[key], fmt.Sprint(m))
	}
	return nil
}

func (f *fakeStore) SCard(_ context.Context, key string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.sets[key])), nil
}

func (f *fakeStore) HSet(_ context.Context, key string, values map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	hash, ok := f.hashes[key]
	if !ok {
		hash = make(map[string]string)
		f.hashes[key] = hash
	}
	for k, v := range values {
		hash[k] = fmt.Sprint(v)
	}
	return nil
}

func (f *fakeStore) HGetAll(_ context.Context, key string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]string, len(f.hashes[key]))
	for k, v := range f.hashes[key] {
		out[k] = v
	}
	return out, nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return "hs:idempotency:" + scope + ":" + id
}

func (f *fakeStore) PresenceKey(userID string) string { return "hs:presence:user:" + userID }

func (f *fakeStore) ConnectionKey(connID string) string { return "hs:presence:conn:" + connID }

func (f *fakeStore) OfflineQueueKey(userID string) string { return "hs:offline:" + userID }

func (f *fakeStore) BookingParticipantsKey(bookingID string) string {
	return "hs:booking:" + bookingID + ":participants"
}

func (f *fakeStore) listLen(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.lists[key])
}

func sliceRange(items []string, start, stop int64) []string {
	n := int64(len(items))
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || n == 0 {
		return []string{}
	}
	out := make([]string, stop-start+1)
	copy(out, items[start:stop+1])
	return out
}

type control struct {
	kind int
	data []byte
}

// fakeSocket stands in for a client socket. Reads block until a frame is pushed
// or the socket is closed.
type fakeSocket struct {
	mu        sync.Mutex
	inbound   chan []byte
	closed    chan struct{}
	closeOnce sync.Once
	written   [][]byte
	controls  []control
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{inbound: make(chan []byte, 8), closed: make(chan struct{})}
}

func (s *fakeSocket) ReadMessage() (int, []byte, error) {
	select {
	case b := <-s.inbound:
		return websocket.TextMessage, b, nil
	case <-s.closed:
		return 0, nil, &websocket.CloseError{Code: websocket.CloseNormalClosure}
	}
}

func (s *fakeSocket) WriteMessage(_ int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.written = append(s.written, data)
	return nil
}

func (s *fakeSocket) WriteControl(kind int, data []byte, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.controls = append(s.controls, control{kind: kind, data: data})
	return nil
}

func (s *fakeSocket) SetReadLimit(int64) {}

func (s *fakeSocket) SetWriteDeadline(time.Time) error { return nil }

func (s *fakeSocket) SetPongHandler(func(string) error) {}

func (s *fakeSocket) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

func (s *fakeSocket) pings() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.controls {
		if c.kind == websocket.PingMessage {
			n++
		}
	}
	return n
}

// closeCode returns the code of the last close frame written, or 0.
func (s *fakeSocket) closeCode() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.controls) - 1; i >= 0; i-- {
		c := s.controls[i]
		if c.kind == websocket.CloseMessage && len(c.data) >= 2 {
			return int(c.data[0])<<8 | int(c.data[1])
		}
	}
	return 0
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "gateway-test", Output: io.Discard})
}

func testClock() time.Time {
	return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
}

// queued drains whatever is waiting in the connection's send buffer.
func queued(t *testing.T, c *Connection) []Message {
	t.Helper()
	var out []Message
	for {
		select {
		case payload := <-c.send:
			msg, err := decodeMessage(payload)
			if err != nil {
				t.Fatalf("decode push: %v", err)
			}
			out = append(out, msg)
		default:
			return out
		}
	}
}
