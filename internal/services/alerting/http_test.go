package alerting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeonardoBeccarini/irrigation_alerts/internal/auth"
	"github.com/LeonardoBeccarini/irrigation_alerts/internal/model/entities"
	"github.com/LeonardoBeccarini/irrigation_alerts/internal/store"
)

var testSecret = []byte("test-secret")

type staticConn bool

func (c staticConn) IsConnectionOpen() bool { return bool(c) }

type staticAge time.Duration

func (a staticAge) LastErrorAge() time.Duration { return time.Duration(a) }

func init() { gin.SetMode(gin.TestMode) }

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAdminSweep_RequiresJWT(t *testing.T) {
	sw := &fakeSweeper{}
	h := NewHTTPHandler(HTTPDeps{Sweeper: sw, JWTSecret: testSecret})

	rec := serve(h, httptest.NewRequest(http.MethodPost, "/admin/sweeps/soil", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	userTok, err := auth.Issue(testSecret, "u1", "user", time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/admin/sweeps/soil", nil)
	req.Header.Set("Authorization", "Bearer "+userTok)
	assert.Equal(t, http.StatusUnauthorized, serve(h, req).Code)
	assert.Empty(t, sw.names)
}

func TestAdminSweep_RunsSweep(t *testing.T) {
	svc, _ := newTestService(store.NewMemoryStore())
	h := NewHTTPHandler(HTTPDeps{Sweeper: NewScheduler(svc, nil), JWTSecret: testSecret})
	tok, err := auth.Issue(testSecret, "root", auth.RoleAdmin, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/admin/sweeps/water", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := serve(h, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Report Report `json:"report"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "water_level", body.Report.Sweep)

	req = httptest.NewRequest(http.MethodPost, "/admin/sweeps/humidity", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	assert.Equal(t, http.StatusBadRequest, serve(h, req).Code)
}

func TestHealthAndReadiness(t *testing.T) {
	ok := NewHTTPHandler(HTTPDeps{Bus: staticConn(true), Sink: staticAge(time.Hour), MinErrorAge: time.Second})
	rec := serve(ok, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.Equal(t, http.StatusOK, serve(ok, httptest.NewRequest(http.MethodGet, "/readyz", nil)).Code)

	degraded := NewHTTPHandler(HTTPDeps{Bus: staticConn(false), Sink: staticAge(time.Hour), MinErrorAge: time.Second})
	rec = serve(degraded, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Contains(t, rec.Body.String(), `"status":"degraded"`)
	assert.Equal(t, http.StatusServiceUnavailable, serve(degraded, httptest.NewRequest(http.MethodGet, "/readyz", nil)).Code)
}

func TestMetricsEndpoint(t *testing.T) {
	h := NewHTTPHandler(HTTPDeps{})
	rec := serve(h, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

type gate struct {
	started chan struct{}
	release chan struct{}
}

func TestScheduler_NoOverlap(t *testing.T) {
	st := store.NewMemoryStore()
	seedSoil(st, 35)
	b := &gate{started: make(chan struct{}, 1), release: make(chan struct{})}
	svc, _ := newTestService(st, func(o *Options) {
		o.Readings = blockingReadings{b}
	})
	sched := NewScheduler(svc, nil)

	done := make(chan error, 1)
	go func() {
		_, err := sched.Run(context.Background(), SweepSoil)
		done <- err
	}()
	<-b.started

	_, err := sched.Run(context.Background(), SweepSoil)
	assert.ErrorIs(t, err, ErrSweepRunning)
	_, err = sched.Run(context.Background(), SweepReminders)
	assert.NoError(t, err)

	close(b.release)
	require.NoError(t, <-done)
	_, err = sched.Run(context.Background(), SweepSoil)
	assert.NoError(t, err)
}

type blockingReadings struct{ b *gate }

func (r blockingReadings) LatestReading(ctx context.Context, _ string) (*entities.Reading, error) {
	select {
	case r.b.started <- struct{}{}:
	default:
	}
	select {
	case <-r.b.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return nil, nil
}
