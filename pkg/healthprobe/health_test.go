package healthprobe

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func call(t *testing.T, h http.HandlerFunc) (int, HealthResponse) {
	t.Helper()

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	return rec.Code, resp
}

func TestNew(t *testing.T) {
	hc := New()

	require.NotNil(t, hc)
	assert.WithinDuration(t, time.Now(), hc.startTime, time.Second)
	assert.False(t, hc.ready.Load(), "not ready by default")
}

func TestHealth_AlwaysOK(t *testing.T) {
	hc := New()

	code, resp := call(t, hc.Health())

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", resp.Status)
	assert.NotEmpty(t, resp.Uptime)
}

func TestReady(t *testing.T) {
	tests := []struct {
		name       string
		ready      bool
		lastPass   func() time.Time
		wantCode   int
		wantStatus string
	}{
		{
			name:       "not-ready",
			ready:      false,
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "not_ready",
		},
		{
			name:       "ready-without-freshness",
			ready:      true,
			wantCode:   http.StatusOK,
			wantStatus: "ready",
		},
		{
			name:       "no-pass-yet",
			ready:      true,
			lastPass:   func() time.Time { return time.Time{} },
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "not_ready",
		},
		{
			name:       "fresh-pass",
			ready:      true,
			lastPass:   func() time.Time { return time.Now().Add(-time.Second) },
			wantCode:   http.StatusOK,
			wantStatus: "ready",
		},
		{
			name:       "stale-pass",
			ready:      true,
			lastPass:   func() time.Time { return time.Now().Add(-time.Hour) },
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "not_ready",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hc := New()
			hc.SetReady(tt.ready)
			if tt.lastPass != nil {
				hc.RequireFreshness(tt.lastPass, time.Minute)
			}

			code, resp := call(t, hc.Ready())

			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantStatus, resp.Status)
		})
	}
}
