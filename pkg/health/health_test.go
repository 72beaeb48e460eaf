package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func passingCheck() CheckFunc {
	return func(_ context.Context) error {
		return nil
	}
}

func failingCheck(msg string) CheckFunc {
	return func(_ context.Context) error {
		return errors.New(msg)
	}
}

func runN(c *check, n int) {
	for range n {
		c.run(context.Background())
	}
}

func TestLiveEndpoint_AllPassing(t *testing.T) {
	h := New()
	h.AddLivenessCheck("postgres", time.Second, passingCheck())
	h.AddLivenessCheck("goroutines", time.Second, passingCheck())

	w := httptest.NewRecorder()
	h.LiveEndpoint(w, httptest.NewRequest(http.MethodGet, "/livez", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestLiveEndpoint_FailingCheck(t *testing.T) {
	h := New()
	h.AddLivenessCheck("postgres", time.Second, failingCheck("connection refused"))
	runN(h.liveness[0], DefaultThresholds.Failure)

	w := httptest.NewRecorder()
	h.LiveEndpoint(w, httptest.NewRequest(http.MethodGet, "/livez", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t,
		`{"status":"unhealthy","checks":{"postgres":"connection refused"}}`,
		w.Body.String(),
	)
}

func TestCheck_Thresholds(t *testing.T) {
	var fail atomic.Bool
	c := newCheck("flaky", time.Second, func(context.Context) error {
		if fail.Load() {
			return errors.New("temporary")
		}
		return nil
	}, Thresholds{Failure: 3, Success: 2})

	fail.Store(true)
	runN(c, 2)
	assert.True(t, c.isHealthy(), "below failure threshold")
	runN(c, 1)
	assert.False(t, c.isHealthy())
	assert.EqualError(t, c.lastError(), "temporary")

	fail.Store(false)
	runN(c, 1)
	assert.False(t, c.isHealthy(), "below success threshold")
	runN(c, 1)
	assert.True(t, c.isHealthy())
	assert.NoError(t, c.lastError())
}

func TestCheck_SuccessResetsFailures(t *testing.T) {
	var fail atomic.Bool
	c := newCheck("flaky", time.Second, func(context.Context) error {
		if fail.Load() {
			return errors.New("temporary")
		}
		return nil
	}, DefaultThresholds)

	fail.Store(true)
	runN(c, 2)
	fail.Store(false)
	runN(c, 1)
	fail.Store(true)
	runN(c, 2)
	assert.True(t, c.isHealthy())
}

func TestCheck_Timeout(t *testing.T) {
	c := newCheck("slow", 10*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, Thresholds{Failure: 1, Success: 1})

	runN(c, 1)
	assert.False(t, c.isHealthy())
	assert.ErrorIs(t, c.lastError(), context.DeadlineExceeded)
}

func TestReadyEndpoint_NotReady(t *testing.T) {
	h := New()

	w := httptest.NewRecorder()
	h.ReadyEndpoint(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t,
		`{"status":"unhealthy","checks":{"_readiness":"service is not ready"}}`,
		w.Body.String(),
	)
	assert.False(t, h.IsReady())
}

func TestReadyEndpoint_Ready(t *testing.T) {
	h := New()
	h.AddReadinessCheck("postgres", time.Second, passingCheck())
	h.SetReady(true)

	w := httptest.NewRecorder()
	h.ReadyEndpoint(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, h.IsReady())
}

func TestReadyEndpoint_FailingCheck(t *testing.T) {
	h := NewWithThresholds(Thresholds{Failure: 1})
	h.AddReadinessCheck("postgres", time.Second, failingCheck("too many connections"))
	h.SetReady(true)
	runN(h.readiness[0], 1)

	w := httptest.NewRecorder()
	h.ReadyEndpoint(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t,
		`{"status":"unhealthy","checks":{"postgres":"too many connections"}}`,
		w.Body.String(),
	)
	assert.False(t, h.IsReady())
}

func TestRoutes(t *testing.T) {
	h := New()
	h.SetReady(true)

	r := chi.NewRouter()
	h.Routes(r)

	for _, path := range []string{"/livez", "/readyz"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}

func TestStartStop(t *testing.T) {
	var calls atomic.Int32
	h := NewWithThresholds(Thresholds{Failure: 1})
	h.AddLivenessCheck("counter", time.Second, func(context.Context) error {
		calls.Add(1)
		return nil
	})

	h.Start(context.Background(), 5*time.Millisecond)
	require.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, time.Millisecond)

	h.Stop()
	h.Stop()
	time.Sleep(20 * time.Millisecond)
	n := calls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, n, calls.Load())
}

func TestGoroutineCountCheck(t *testing.T) {
	assert.NoError(t, GoroutineCountCheck(1_000_000)(context.Background()))
	assert.Error(t, GoroutineCountCheck(0)(context.Background()))
}

func TestGCMaxPauseCheck(t *testing.T) {
	assert.NoError(t, GCMaxPauseCheck(time.Hour)(context.Background()))
}

func TestHeartbeatCheck(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	var last time.Time
	check := heartbeatCheck(func() time.Time { return last }, time.Minute, clock)

	// No beat yet but within the grace period.
	assert.NoError(t, check(context.Background()))

	now = now.Add(2 * time.Minute)
	assert.Error(t, check(context.Background()))

	last = now.Add(-30 * time.Second)
	assert.NoError(t, check(context.Background()))

	now = now.Add(time.Minute)
	assert.ErrorContains(t, check(context.Background()), "last heartbeat 1m30s ago")
}
