package healthprobe

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
)

// HealthChecker provides health and readiness checks. Readiness optionally
// requires a recent reconciliation pass.
type HealthChecker struct {
	startTime time.Time
	ready     atomic.Bool

	mu           sync.RWMutex
	lastPass     func() time.Time
	maxStaleness time.Duration
}

// New creates a new HealthChecker.
func New() *HealthChecker {
	return &HealthChecker{
		startTime: time.Now(),
	}
}

// SetReady marks the application as ready to serve traffic.
func (h *HealthChecker) SetReady(ready bool) {
	h.ready.Store(ready)
}

// RequireFreshness makes readiness fail when lastPass is zero or older than
// maxStaleness.
func (h *HealthChecker) RequireFreshness(lastPass func() time.Time, maxStaleness time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastPass = lastPass
	h.maxStaleness = maxStaleness
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status   string     `json:"status"`
	Uptime   string     `json:"uptime,omitempty"`
	LastPass *time.Time `json:"last_pass,omitempty"`
	Message  string     `json:"message,omitempty"`
}

// Health returns an HTTP handler for liveness checks.
// Always returns 200 OK if the application is running.
func (h *HealthChecker) Health() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, HealthResponse{
			Status: "healthy",
			Uptime: time.Since(h.startTime).String(),
		})
	}
}

// Ready returns an HTTP handler for readiness checks.
// Returns 200 OK if ready, 503 Service Unavailable if not.
func (h *HealthChecker) Ready() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if !h.ready.Load() {
			writeJSON(w, http.StatusServiceUnavailable, HealthResponse{
				Status:  "not_ready",
				Message: "application is starting",
			})
			return
		}

		h.mu.RLock()
		lastPassFn, maxStaleness := h.lastPass, h.maxStaleness
		h.mu.RUnlock()

		resp := HealthResponse{
			Status: "ready",
			Uptime: time.Since(h.startTime).String(),
		}

		if lastPassFn != nil {
			last := lastPassFn()
			if last.IsZero() {
				writeJSON(w, http.StatusServiceUnavailable, HealthResponse{
					Status:  "not_ready",
					Message: "no reconciliation pass completed yet",
				})
				return
			}
			resp.LastPass = &last
			if maxStaleness > 0 && time.Since(last) > maxStaleness {
				resp.Status = "not_ready"
				resp.Message = "reconciliation is stale"
				writeJSON(w, http.StatusServiceUnavailable, resp)
				return
			}
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func writeJSON(w http.ResponseWriter, status int, resp HealthResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
