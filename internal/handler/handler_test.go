package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/cloudwego/hertz/pkg/common/config"
	"github.com/cloudwego/hertz/pkg/common/ut"
	"github.com/cloudwego/hertz/pkg/route"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"GeoCheckin/internal/model"
	"GeoCheckin/internal/schedule"
	"GeoCheckin/internal/service"
	"GeoCheckin/pkg/errors"
)

type fakeCheckiner struct {
	got    service.ManualCheckinRequest
	result *service.ManualCheckinResult
	err    error
}

func (f *fakeCheckiner) CheckIn(_ context.Context, req service.ManualCheckinRequest) (*service.ManualCheckinResult, error) {
	f.got = req
	return f.result, f.err
}

type fakeRecorder struct {
	got service.LocationPingInput
	err error
}

func (f *fakeRecorder) RecordPing(_ context.Context, in service.LocationPingInput) (*model.LocationPing, error) {
	f.got = in
	if f.err != nil {
		return nil, f.err
	}
	return &model.LocationPing{ID: 42, UserID: in.UserID, RecordedAt: in.RecordedAt}, nil
}

type fakeRunner struct {
	got   int64
	stats *schedule.ScheduleRunStats
	err   error
}

func (f *fakeRunner) RunSchedule(_ context.Context, id int64) (*schedule.ScheduleRunStats, error) {
	f.got = id
	return f.stats, f.err
}

func newEngine(h *Handler) *route.Engine {
	r := route.NewEngine(config.NewOptions([]config.Option{}))
	r.POST("/v1/check-ins", h.ManualCheckIn)
	r.POST("/v1/locations", h.RecordLocation)
	r.POST("/v1/admin/schedules/:schedule_id/run", h.RunSchedule)
	r.GET("/healthz", h.Healthz)
	return r
}

func postJSON(r *route.Engine, path, body string) (int, map[string]interface{}) {
	w := ut.PerformRequest(r, http.MethodPost, path,
		&ut.Body{Body: bytes.NewBufferString(body), Len: len(body)},
		ut.Header{Key: "Content-Type", Value: "application/json"})
	resp := w.Result()
	var out map[string]interface{}
	_ = json.Unmarshal(resp.Body(), &out)
	return resp.StatusCode(), out
}

func errorCode(body map[string]interface{}) string {
	e, _ := body["error"].(map[string]interface{})
	code, _ := e["code"].(string)
	return code
}

func TestManualCheckIn(t *testing.T) {
	scheduleID := int64(7)
	checkedAt := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

	t.Run("within radius", func(t *testing.T) {
		svc := &fakeCheckiner{result: &service.ManualCheckinResult{
			Checkin: &model.Checkin{
				ID:         11,
				ScheduleID: &scheduleID,
				Status:     model.CheckinStatusCompleted,
				CreatedAt:  checkedAt,
			},
			RedirectURL:    "https://example.com/welcome",
			DistanceMeters: 89.2,
			RadiusMeters:   100,
			IsWithinRadius: true,
		}}
		r := newEngine(New(svc, nil, nil, nil))

		status, body := postJSON(r, "/v1/check-ins", `{"user_id":1,"tag_id":2,"latitude":37.7757,"longitude":-122.4194}`)
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, service.ManualCheckinRequest{UserID: 1, TagID: 2, Latitude: 37.7757, Longitude: -122.4194}, svc.got)

		data := body["data"].(map[string]interface{})
		assert.Equal(t, "completed", data["status"])
		assert.Equal(t, float64(11), data["checkin_id"])
		assert.Equal(t, float64(7), data["schedule_id"])
		assert.Equal(t, true, data["is_within_radius"])
		assert.Equal(t, "https://example.com/welcome", data["redirect_url"])
	})

	t.Run("outside radius still 200", func(t *testing.T) {
		svc := &fakeCheckiner{result: &service.ManualCheckinResult{
			Checkin:        &model.Checkin{ID: 12, Status: model.CheckinStatusFailed, CreatedAt: checkedAt},
			DistanceMeters: 1112,
			RadiusMeters:   100,
		}}
		r := newEngine(New(svc, nil, nil, nil))

		status, body := postJSON(r, "/v1/check-ins", `{"user_id":1,"tag_id":2,"latitude":37.7849,"longitude":-122.4194}`)
		require.Equal(t, http.StatusOK, status)
		data := body["data"].(map[string]interface{})
		assert.Equal(t, "failed", data["status"])
		assert.Equal(t, false, data["is_within_radius"])
		assert.NotContains(t, data, "schedule_id")
	})

	t.Run("already checked in", func(t *testing.T) {
		svc := &fakeCheckiner{err: &errors.AlreadyCheckedInError{CheckinID: 5, CheckedInAt: checkedAt}}
		r := newEngine(New(svc, nil, nil, nil))

		status, body := postJSON(r, "/v1/check-ins", `{"user_id":1,"tag_id":2,"latitude":37.7757,"longitude":-122.4194}`)
		require.Equal(t, http.StatusConflict, status)
		assert.Equal(t, "ALREADY_CHECKED_IN_TODAY", errorCode(body))
		details := body["error"].(map[string]interface{})["details"].(map[string]interface{})
		assert.Equal(t, float64(5), details["checkin_id"])
		assert.Equal(t, "2024-03-04T10:00:00Z", details["checked_in_at"])
	})

	cases := []struct {
		name   string
		body   string
		err    error
		status int
		code   string
	}{
		{"missing coordinates", `{"user_id":1,"tag_id":2}`, nil, http.StatusBadRequest, "INVALID_REQUEST"},
		{"missing user", `{"tag_id":2,"latitude":1,"longitude":1}`, nil, http.StatusBadRequest, "INVALID_REQUEST"},
		{"tag not found", `{"user_id":1,"tag_id":2,"latitude":1,"longitude":1}`, errors.TagNotFound, http.StatusNotFound, "TAG_NOT_FOUND"},
		{"geolocation missing", `{"user_id":1,"tag_id":2,"latitude":1,"longitude":1}`, errors.GeolocationNotConfigured, http.StatusBadRequest, "GEOLOCATION_NOT_CONFIGURED"},
		{"bad coordinate", `{"user_id":1,"tag_id":2,"latitude":91,"longitude":1}`, errors.InvalidCoordinate, http.StatusBadRequest, "INVALID_COORDINATE"},
		{"database down", `{"user_id":1,"tag_id":2,"latitude":1,"longitude":1}`, fmt.Errorf("get tag: %w", errors.PersistenceUnavailable), http.StatusServiceUnavailable, "PERSISTENCE_UNAVAILABLE"},
		{"unexpected", `{"user_id":1,"tag_id":2,"latitude":1,"longitude":1}`, fmt.Errorf("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newEngine(New(&fakeCheckiner{err: tc.err}, nil, nil, nil))
			status, body := postJSON(r, "/v1/check-ins", tc.body)
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.code, errorCode(body))
		})
	}
}

func TestRecordLocation(t *testing.T) {
	rec := &fakeRecorder{}
	r := newEngine(New(nil, rec, nil, nil))

	status, body := postJSON(r, "/v1/locations",
		`{"user_id":3,"tag_id":9,"latitude":37.7757,"longitude":-122.4194,"accuracy":12.5,"recorded_at":"2024-03-04T09:55:00Z"}`)
	require.Equal(t, http.StatusCreated, status)

	assert.Equal(t, int64(3), rec.got.UserID)
	require.NotNil(t, rec.got.TagID)
	assert.Equal(t, int64(9), *rec.got.TagID)
	require.NotNil(t, rec.got.Accuracy)
	assert.Equal(t, 12.5, *rec.got.Accuracy)
	assert.True(t, rec.got.RecordedAt.Equal(time.Date(2024, 3, 4, 9, 55, 0, 0, time.UTC)))
	assert.Equal(t, "http", rec.got.Source)

	data := body["data"].(map[string]interface{})
	assert.Equal(t, float64(42), data["ping_id"])

	t.Run("service rejects", func(t *testing.T) {
		r := newEngine(New(nil, &fakeRecorder{err: errors.InvalidCoordinate}, nil, nil))
		status, body := postJSON(r, "/v1/locations", `{"user_id":3,"latitude":123,"longitude":0}`)
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "INVALID_COORDINATE", errorCode(body))
	})

	t.Run("missing longitude", func(t *testing.T) {
		r := newEngine(New(nil, &fakeRecorder{}, nil, nil))
		status, body := postJSON(r, "/v1/locations", `{"user_id":3,"latitude":1}`)
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "INVALID_REQUEST", errorCode(body))
	})
}

func TestRunSchedule(t *testing.T) {
	runner := &fakeRunner{stats: &schedule.ScheduleRunStats{
		BatchID:           "batch-1",
		ScheduleID:        4,
		UsersProcessed:    3,
		UsersWithinRadius: 2,
		UsersSkipped:      1,
	}}
	r := newEngine(New(nil, nil, runner, nil))

	status, body := postJSON(r, "/v1/admin/schedules/4/run", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, int64(4), runner.got)

	data := body["data"].(map[string]interface{})
	assert.Equal(t, "batch-1", data["batch_id"])
	assert.Equal(t, float64(3), data["users_processed"])
	assert.Equal(t, float64(2), data["users_within_radius"])
	assert.Equal(t, float64(1), data["users_skipped"])
	assert.Equal(t, float64(0), data["errors"])

	cases := []struct {
		name   string
		path   string
		err    error
		status int
		code   string
	}{
		{"bad id", "/v1/admin/schedules/abc/run", nil, http.StatusBadRequest, "INVALID_REQUEST"},
		{"zero id", "/v1/admin/schedules/0/run", nil, http.StatusBadRequest, "INVALID_REQUEST"},
		{"not found", "/v1/admin/schedules/8/run", errors.ScheduleNotFound, http.StatusNotFound, "SCHEDULE_NOT_FOUND"},
		{"not active", "/v1/admin/schedules/8/run", errors.ScheduleNotActive, http.StatusConflict, "SCHEDULE_NOT_ACTIVE"},
		{"bad window", "/v1/admin/schedules/8/run", errors.InvalidScheduleWindow, http.StatusBadRequest, "INVALID_SCHEDULE_WINDOW"},
		{"database down", "/v1/admin/schedules/8/run", errors.PersistenceUnavailable, http.StatusServiceUnavailable, "PERSISTENCE_UNAVAILABLE"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newEngine(New(nil, nil, &fakeRunner{err: tc.err}, nil))
			status, body := postJSON(r, tc.path, "")
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.code, errorCode(body))
		})
	}
}

func TestHealthz(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return fmt.Errorf("connection refused") }

	r := newEngine(New(nil, nil, nil, map[string]HealthCheck{"postgres": ok, "redis": ok}))
	w := ut.PerformRequest(r, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Result().StatusCode())

	r = newEngine(New(nil, nil, nil, map[string]HealthCheck{"postgres": down, "redis": ok}))
	w = ut.PerformRequest(r, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Result().StatusCode())

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Result().Body(), &body))
	assert.Equal(t, "degraded", body["status"])
	components := body["components"].(map[string]interface{})
	assert.Equal(t, "connection refused", components["postgres"])
	assert.Equal(t, "ok", components["redis"])
}
