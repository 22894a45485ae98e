package observability

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// HealthChecker manages liveness and readiness state. Readiness tracks
// individual subsystems (postgres, nats, recovery) so the readiness
// response names what is still pending.
type HealthChecker struct {
	mu         sync.RWMutex
	subsystems map[string]bool
	startTime  time.Time
}

func NewHealthChecker(subsystems ...string) *HealthChecker {
	m := make(map[string]bool, len(subsystems))
	for _, s := range subsystems {
		m[s] = false
	}
	return &HealthChecker{
		subsystems: m,
		startTime:  time.Now(),
	}
}

// SetReady marks one subsystem ready or not ready.
func (h *HealthChecker) SetReady(subsystem string, ready bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subsystems[subsystem] = ready
}

// IsReady reports whether every tracked subsystem is ready.
func (h *HealthChecker) IsReady() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ready := range h.subsystems {
		if !ready {
			return false
		}
	}
	return true
}

func (h *HealthChecker) pendingSubsystems() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var pending []string
	for name, ready := range h.subsystems {
		if !ready {
			pending = append(pending, name)
		}
	}
	return pending
}

// LivenessHandler returns HTTP 200 if the process is alive.
func (h *HealthChecker) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "alive",
		"uptime": time.Since(h.startTime).String(),
	})
}

// ReadinessHandler returns HTTP 200 once recovery is complete and all
// external connections are up, 503 with the pending list otherwise.
func (h *HealthChecker) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if h.IsReady() {
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": "ready",
		})
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "not_ready",
		"pending": h.pendingSubsystems(),
	})
}
