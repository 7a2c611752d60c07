package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sifan077/analytics-service/internal/app/cache"
	"github.com/sifan077/analytics-service/internal/app/model"
	"github.com/sifan077/analytics-service/internal/app/repository"
	"github.com/sifan077/analytics-service/internal/app/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

type testApp struct {
	app    *fiber.App
	events *repository.MemoryEventRepository
	redis  *miniredis.Miniredis
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	now := func() time.Time { return testNow }
	events := repository.NewMemoryEventRepository(now)
	eventService := service.NewEventService(service.EventServiceDeps{
		Events:   events,
		Counters: repository.NewRedisCounterRepository(client),
		Now:      now,
	})
	dashboards := service.NewDashboardService(service.DashboardDeps{
		Cache:      cache.NewRedisDashboardCache(client, cache.DefaultTTL),
		Aggregator: service.NewAggregator(service.AggregatorDeps{Events: events, Now: now}),
	})

	app := fiber.New()
	NewHealthHandler(nil).Register(app)
	NewAnalyticsHandler(AnalyticsDeps{Events: eventService, Dashboards: dashboards}).Register(app)
	return &testApp{app: app, events: events, redis: mr}
}

func (a *testApp) do(t *testing.T, method, path, body string) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	resp, err := a.app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func TestHealth(t *testing.T) {
	a := newTestApp(t)
	status, body := a.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"status":"ok","service":"analytics-service"}`, string(body))
}

func TestTrackEvent(t *testing.T) {
	a := newTestApp(t)

	status, body := a.do(t, http.MethodPost, "/event", `{"userId": 1, "eventType": "click", "metadata": {"button": "buy"}}`)
	require.Equal(t, http.StatusCreated, status)

	var event model.Event
	require.NoError(t, json.Unmarshal(body, &event))
	assert.NotEmpty(t, event.ID)
	assert.EqualValues(t, 1, *event.UserID)
	assert.Equal(t, "click", event.EventType)
	assert.Equal(t, "buy", event.Metadata["button"])
	assert.True(t, event.Timestamp.Equal(testNow))

	a.redis.CheckGet(t, "event_count:click", "1")
	a.redis.CheckGet(t, model.TotalEventsKey, "1")
}

func TestTrackEventDefaults(t *testing.T) {
	a := newTestApp(t)

	status, body := a.do(t, http.MethodPost, "/event", `{}`)
	require.Equal(t, http.StatusCreated, status)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(body, &raw))
	assert.Nil(t, raw["userId"])
	assert.Equal(t, "", raw["eventType"])
	assert.Equal(t, map[string]any{}, raw["metadata"])
	assert.Equal(t, "2026-10-16T12:00:00Z", raw["timestamp"])
}

func TestTrackEventRejectsNonJSON(t *testing.T) {
	a := newTestApp(t)

	for _, body := range []string{"not json", "[1]"} {
		status, resp := a.do(t, http.MethodPost, "/event", body)
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Contains(t, string(resp), `"error"`)
	}
	assert.Zero(t, a.events.Len())
}

func TestDashboardScenario(t *testing.T) {
	a := newTestApp(t)
	for _, body := range []string{
		`{"userId": 1, "eventType": "click"}`,
		`{"userId": 1, "eventType": "click"}`,
		`{"userId": 2, "eventType": "purchase"}`,
	} {
		status, _ := a.do(t, http.MethodPost, "/event", body)
		require.Equal(t, http.StatusCreated, status)
	}

	status, body := a.do(t, http.MethodGet, "/dashboard?days=1", "")
	require.Equal(t, http.StatusOK, status)

	var dashboard model.Dashboard
	require.NoError(t, json.Unmarshal(body, &dashboard))
	assert.EqualValues(t, 3, dashboard.TotalEvents)
	assert.Equal(t, "Last 1 days", dashboard.Period)
	assert.Equal(t, []model.TypeCount{{EventType: "click", Count: 2}, {EventType: "purchase", Count: 1}}, dashboard.EventsByType)
	assert.Equal(t, []model.DayCount{{Date: "2026-10-16", Count: 3}}, dashboard.EventsByDay)
	require.Len(t, dashboard.TopUsers, 2)
	assert.EqualValues(t, 1, *dashboard.TopUsers[0].UserID)
	assert.EqualValues(t, 2, dashboard.TopUsers[0].EventCount)

	// A cache hit is byte-identical and ignores events written since.
	a.do(t, http.MethodPost, "/event", `{"userId": 3, "eventType": "view"}`)
	_, again := a.do(t, http.MethodGet, "/dashboard?days=1", "")
	assert.Equal(t, string(body), string(again))

	a.redis.FastForward(cache.DefaultTTL)
	_, fresh := a.do(t, http.MethodGet, "/dashboard?days=1", "")
	require.NoError(t, json.Unmarshal(fresh, &dashboard))
	assert.EqualValues(t, 4, dashboard.TotalEvents)
}

func TestDashboardDefaultsToSevenDays(t *testing.T) {
	a := newTestApp(t)
	status, body := a.do(t, http.MethodGet, "/dashboard", "")
	require.Equal(t, http.StatusOK, status)

	var dashboard model.Dashboard
	require.NoError(t, json.Unmarshal(body, &dashboard))
	assert.Equal(t, 7, dashboard.WindowDays)
	assert.Equal(t, "Last 7 days", dashboard.Period)
	assert.Zero(t, dashboard.TotalEvents)
	assert.True(t, a.redis.Exists(cache.Key(7)))
}

func TestDashboardRejectsBadDays(t *testing.T) {
	a := newTestApp(t)
	for _, q := range []string{"0", "-3", "abc", "1.5", "106752", "200000", "99999999999999999999"} {
		status, _ := a.do(t, http.MethodGet, "/dashboard?days="+q, "")
		assert.Equal(t, http.StatusBadRequest, status, "days=%s", q)
	}
}

func TestUserActivity(t *testing.T) {
	a := newTestApp(t)
	a.do(t, http.MethodPost, "/event", `{"userId": 5, "eventType": "login"}`)
	a.do(t, http.MethodPost, "/event", `{"userId": "5", "eventType": "view"}`)
	a.do(t, http.MethodPost, "/event", `{"userId": 6, "eventType": "view"}`)

	status, body := a.do(t, http.MethodGet, "/user/5", "")
	require.Equal(t, http.StatusOK, status)

	var activity model.UserActivity
	require.NoError(t, json.Unmarshal(body, &activity))
	assert.EqualValues(t, 5, activity.UserID)
	assert.Equal(t, 30, activity.WindowDays)
	assert.EqualValues(t, 2, activity.TotalEvents)
	assert.Len(t, activity.RecentEvents, 2)

	status, body = a.do(t, http.MethodGet, "/user/404?days=3", "")
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `"recentEvents":[]`)
}

func TestUserActivityRejectsBadInput(t *testing.T) {
	a := newTestApp(t)
	for _, path := range []string{"/user/alice", "/user/5?days=0", "/user/5?days=x", "/user/5?days=200000"} {
		status, _ := a.do(t, http.MethodGet, path, "")
		assert.Equal(t, http.StatusBadRequest, status, path)
	}
}

func TestRealtime(t *testing.T) {
	a := newTestApp(t)
	a.do(t, http.MethodPost, "/event", `{"eventType": "click"}`)
	a.do(t, http.MethodPost, "/event", `{"eventType": "click"}`)
	a.do(t, http.MethodPost, "/event", `{"eventType": "view"}`)

	status, body := a.do(t, http.MethodGet, "/realtime", "")
	require.Equal(t, http.StatusOK, status)

	var counters model.RealtimeCounters
	require.NoError(t, json.Unmarshal(body, &counters))
	assert.EqualValues(t, 3, counters.TotalEvents)
	assert.Equal(t, map[string]int64{"click": 2, "view": 1}, counters.ByType)
}

type failingEvents struct {
	service.EventService
	err error
}

func (f failingEvents) Record(context.Context, service.RecordEventInput) (*model.Event, error) {
	return nil, f.err
}

type failingDashboards struct{ err error }

func (f failingDashboards) Dashboard(context.Context, int) (*model.Dashboard, error) {
	return nil, f.err
}

func TestStoreErrorsAre500(t *testing.T) {
	boom := errors.New("store event: connection refused")
	app := fiber.New()
	NewAnalyticsHandler(AnalyticsDeps{
		Events:     failingEvents{err: boom},
		Dashboards: failingDashboards{err: errors.New("read dashboard cache: redis down")},
	}).Register(app)

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/event", strings.NewReader(`{"eventType":"x"}`)))
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, `{"error":"store event: connection refused"}`, string(body))

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestReadLimiterSkipsIngestion(t *testing.T) {
	var limited []string
	limiter := func(c *fiber.Ctx) error {
		limited = append(limited, c.Path())
		return c.Next()
	}

	app := fiber.New()
	NewAnalyticsHandler(AnalyticsDeps{
		Events:      failingEvents{err: errors.New("unused")},
		Dashboards:  failingDashboards{err: errors.New("unused")},
		ReadLimiter: limiter,
	}).Register(app)

	_, err := app.Test(httptest.NewRequest(http.MethodPost, "/event", strings.NewReader(`{}`)))
	require.NoError(t, err)
	_, err = app.Test(httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	require.NoError(t, err)

	assert.Equal(t, []string{"/dashboard"}, limited)
}
