package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// --- Mock implementations ---

type mockPinger struct {
	err error
}

func (m *mockPinger) Ping(context.Context) error { return m.err }

type mockStatus struct {
	err error
}

func (m mockStatus) Err() error { return m.err }

// --- Helpers ---

type statusBody struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func probe(t *testing.T, endpoint http.HandlerFunc) (int, statusBody) {
	t.Helper()
	w := httptest.NewRecorder()
	endpoint(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body statusBody
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return w.Code, body
}

func runN(h *Health, checks []*check, n int) {
	for range n {
		for _, c := range checks {
			c.run(context.Background(), h.lg)
		}
	}
}

// --- Tests ---

func TestLiveEndpoint_Thresholds(t *testing.T) {
	db := &mockPinger{err: errors.New("connection refused")}
	h := New(zap.NewNop())
	h.AddLivenessCheck("db", time.Second, PingCheck(db))

	tests := []struct {
		name       string
		runs       int
		pingErr    error
		wantStatus int
	}{
		{name: "below threshold", runs: FailureThreshold - 1, pingErr: db.err, wantStatus: http.StatusOK},
		{name: "at threshold", runs: 1, pingErr: db.err, wantStatus: http.StatusServiceUnavailable},
		{name: "single success recovers", runs: 1, pingErr: nil, wantStatus: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db.err = tt.pingErr
			runN(h, h.liveness, tt.runs)

			code, body := probe(t, h.LiveEndpoint)
			assert.Equal(t, tt.wantStatus, code)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, "ok", body.Status)
				return
			}
			assert.Equal(t, "unhealthy", body.Status)
			assert.Equal(t, "ping: connection refused", body.Checks["db"])
		})
	}
}

func TestReadyEndpoint(t *testing.T) {
	redisErr := errors.New("i/o timeout")
	h := New(nil)
	h.AddReadinessCheck("redis", time.Second, RedisCheck(func(context.Context) mockStatus {
		return mockStatus{err: redisErr}
	}))

	code, body := probe(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code, "not ready until marked")
	assert.Equal(t, "not ready", body.Checks["service"])

	h.SetReady(true)
	code, _ = probe(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, h.IsReady())

	runN(h, h.readiness, FailureThreshold)
	code, body = probe(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "redis ping: i/o timeout", body.Checks["redis"])
	assert.False(t, h.IsReady())
}

func TestStartStop(t *testing.T) {
	h := New(nil)
	h.AddReadinessCheck("db", time.Second, PingCheck(&mockPinger{err: errors.New("down")}))
	h.SetReady(true)

	h.Start(context.Background(), time.Millisecond)
	defer h.Stop()

	assert.Eventually(t, func() bool { return !h.IsReady() }, time.Second, 5*time.Millisecond)
	h.Stop()
	h.Stop()
}

func TestGoroutineCountCheck(t *testing.T) {
	require.NoError(t, GoroutineCountCheck(1_000_000)(context.Background()))
	require.Error(t, GoroutineCountCheck(0)(context.Background()))
}
