package app

import (
	"context"
	"fmt"
	"time"
)

type HealthStatus struct {
	Status     string            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Components map[string]string `json:"components"`
}

// pinger is implemented by stores that can report connection health.
type pinger interface {
	Ping(ctx context.Context) error
}

type HealthService struct {
	actor  *Actor
	mirror *Mirror
	store  pinger
}

// NewHealthService reports on the running pipeline. store may be nil when the
// backing store cannot be pinged. A ping waits for the store's single
// connection, so callers should bound ctx.
func NewHealthService(actor *Actor, mirror *Mirror, store pinger) *HealthService {
	return &HealthService{actor: actor, mirror: mirror, store: store}
}

func (s *HealthService) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:     "up",
		Timestamp:  time.Now().UTC(),
		Components: make(map[string]string),
	}

	if s.actor == nil {
		status.Status = "degraded"
		status.Components["actor"] = "missing"
	} else {
		stats := s.actor.Stats()
		state := "running"
		if !stats.Running {
			state = "stopped"
			status.Status = "degraded"
		}
		status.Components["actor"] = fmt.Sprintf("%s (session %s, %d applied, %d failed, backlog %d)",
			state, stats.SessionID, stats.Applied, stats.Failed, stats.Backlog)
	}

	if s.mirror != nil {
		if s.mirror.Closed() {
			status.Status = "degraded"
			status.Components["channel"] = "closed"
		} else {
			status.Components["channel"] = "open"
		}
	}

	if s.store != nil {
		if err := s.store.Ping(ctx); err != nil {
			status.Status = "degraded"
			status.Components["store"] = "unavailable: " + err.Error()
		} else {
			status.Components["store"] = "ok"
		}
	}

	return status
}
