package conversation

import (
	"context"
	"sync"
	"time"

	"shop-assistant/internal/common/logger"
	"shop-assistant/internal/common/metrics"
	"shop-assistant/internal/models"
)

// sessionEntry pairs a session with its turn lock. The lock is held for the
// whole turn so concurrent inputs for one session serialize.
type sessionEntry struct {
	mu      sync.Mutex
	session *models.SessionContext
}

// Registry is the in-process session map with timer-based eviction.
type Registry struct {
	timeout time.Duration
	logger  logger.Logger

	mu      sync.Mutex
	entries map[string]*sessionEntry
}

func NewRegistry(timeout time.Duration, log logger.Logger) *Registry {
	return &Registry{
		timeout: timeout,
		logger:  log,
		entries: make(map[string]*sessionEntry),
	}
}

// getOrCreate returns the live entry for a session id, replacing an expired
// one with a fresh session.
func (r *Registry) getOrCreate(sessionID string) *sessionEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[sessionID]
	if ok && !entry.session.IsExpired(r.timeout) {
		return entry
	}

	now := time.Now()
	entry = &sessionEntry{
		session: &models.SessionContext{
			SessionID:    sessionID,
			State:        models.StateIdle,
			CreatedAt:    now,
			LastActivity: now,
		},
	}
	r.entries[sessionID] = entry
	metrics.ActiveSessions.Set(float64(len(r.entries)))
	return entry
}

// Sweep evicts every expired session and returns how many were removed.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, entry := range r.entries {
		if entry.session.IsExpired(r.timeout) {
			delete(r.entries, id)
			removed++
		}
	}
	metrics.ActiveSessions.Set(float64(len(r.entries)))

	if removed > 0 {
		r.logger.Info("expired sessions evicted", map[string]interface{}{
			"removed":   removed,
			"remaining": len(r.entries),
		})
	}
	return removed
}

// StartSweeper runs Sweep on the given interval until ctx is cancelled.
func (r *Registry) StartSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Sweep()
			}
		}
	}()
}

// Len reports the current session count.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
