package instance

import (
	"os"
	"strings"

	"github.com/google/uuid"
)

// GetID returns the configured instance identifier, falling back to the host name
// and finally to a random suffix so per-instance queues never collide.
func GetID(configured string) string {
	if id := strings.TrimSpace(configured); id != "" {
		return id
	}
	if id := os.Getenv("WORKER_ID"); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "instance-" + uuid.NewString()[:8]
}
