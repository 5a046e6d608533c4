package tracking

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"backend-touchgrass/internal/auth"
	"backend-touchgrass/internal/walk"

	"github.com/gofiber/fiber/v2"
	"github.com/pashagolub/pgxmock/v3"
)

func newTestApp(svc *Service, address string) *fiber.App {
	app := fiber.New()
	RegisterRoutes(app.Group("/tracking"), svc, func(c *fiber.Ctx) error {
		c.Locals(auth.LocalAddress, address)
		return c.Next()
	})
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body any) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request %s %s: %v", method, path, err)
	}
	return resp
}

func decodeSnapshot(t *testing.T, resp *http.Response) walk.Snapshot {
	t.Helper()
	var snap walk.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	return snap
}

func TestTrackingHandlersWalkFlow(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	clock := newFakeClock()
	svc := NewService(mock, nil, &stubSubmitter{}, WithClock(clock), WithTickInterval(time.Hour))
	defer svc.Shutdown()
	app := newTestApp(svc, "0xabc")

	resp := doJSON(t, app, http.MethodPost, "/tracking/walks", StartRequest{Latitude: ptr(-6.2), Longitude: ptr(106.8), Timestamp: 1})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("start status %d", resp.StatusCode)
	}
	if snap := decodeSnapshot(t, resp); snap.State != walk.StateActive || snap.SampleCount != 1 {
		t.Fatalf("unexpected start snapshot: %+v", snap)
	}

	resp = doJSON(t, app, http.MethodPost, "/tracking/walks", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for a second start, got %d", resp.StatusCode)
	}

	clock.Advance(3 * time.Second)
	resp = doJSON(t, app, http.MethodPost, "/tracking/walks/samples", SamplesRequest{Samples: []walk.LocationSample{{Latitude: -6.201, Longitude: 106.8, Timestamp: 2}}})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("samples status %d", resp.StatusCode)
	}
	if snap := decodeSnapshot(t, resp); snap.SampleCount != 2 || snap.DistanceKm <= 0 {
		t.Fatalf("unexpected snapshot after samples: %+v", snap)
	}

	resp = doJSON(t, app, http.MethodPost, "/tracking/walks/photos", PhotoRequest{Ref: "photo-1"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("photo status %d", resp.StatusCode)
	}

	resp = doJSON(t, app, http.MethodPost, "/tracking/walks/pause", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("pause status %d", resp.StatusCode)
	}
	resp = doJSON(t, app, http.MethodPost, "/tracking/walks/pause", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 on double pause, got %d", resp.StatusCode)
	}
	resp = doJSON(t, app, http.MethodPost, "/tracking/walks/resume", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("resume status %d", resp.StatusCode)
	}

	resp = doJSON(t, app, http.MethodGet, "/tracking/walks/current", nil)
	if snap := decodeSnapshot(t, resp); snap.State != walk.StateActive || len(snap.PhotoRefs) != 1 {
		t.Fatalf("unexpected current snapshot: %+v", snap)
	}

	expectSaveWalk(mock, 2)
	mock.ExpectExec(`UPDATE walk_records`).
		WithArgs(pgxmock.AnyArg(), SubmissionSubmitted, "", "").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	resp = doJSON(t, app, http.MethodPost, "/tracking/walks/stop", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stop status %d", resp.StatusCode)
	}
	var out StopResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode stop: %v", err)
	}
	if out.Payload.DurationMs != 3000 || out.Payload.SubmitterIdentity != "0xabc" || out.Record.PointCount != 2 {
		t.Fatalf("unexpected stop response: %+v", out)
	}

	resp = doJSON(t, app, http.MethodPost, "/tracking/walks/stop", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 on second stop, got %d", resp.StatusCode)
	}

	svc.Shutdown()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTrackingHandlersAbort(t *testing.T) {
	svc := NewService(nil, nil, nil, WithClock(newFakeClock()), WithTickInterval(time.Hour))
	defer svc.Shutdown()
	app := newTestApp(svc, "0xabc")

	resp := doJSON(t, app, http.MethodDelete, "/tracking/walks", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 without a walk, got %d", resp.StatusCode)
	}

	doJSON(t, app, http.MethodPost, "/tracking/walks", nil)
	resp = doJSON(t, app, http.MethodDelete, "/tracking/walks", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}

	resp = doJSON(t, app, http.MethodGet, "/tracking/walks/current", nil)
	if snap := decodeSnapshot(t, resp); snap.State != walk.StateIdle {
		t.Fatalf("expected idle, got %s", snap.State)
	}
}

func TestTrackingHandlersBadRequest(t *testing.T) {
	svc := NewService(nil, nil, nil, WithClock(newFakeClock()), WithTickInterval(time.Hour))
	defer svc.Shutdown()
	app := newTestApp(svc, "0xabc")

	req := httptest.NewRequest(http.MethodPost, "/tracking/walks/samples", bytes.NewReader([]byte(`{bad`)))
	req.Header.Set("Content-Type", "application/json")
	resp, _ := app.Test(req)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected bad request, got %d", resp.StatusCode)
	}

	resp = doJSON(t, app, http.MethodPost, "/tracking/walks/samples", SamplesRequest{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected bad request for no samples, got %d", resp.StatusCode)
	}

	resp = doJSON(t, app, http.MethodPost, "/tracking/walks/samples", SamplesRequest{Samples: []walk.LocationSample{{Latitude: 1}}})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected conflict without a walk, got %d", resp.StatusCode)
	}

	doJSON(t, app, http.MethodPost, "/tracking/walks", nil)
	resp = doJSON(t, app, http.MethodPost, "/tracking/walks/photos", PhotoRequest{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected bad request for empty photo ref, got %d", resp.StatusCode)
	}
}

func TestTrackingHandlersStopStoreError(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	svc := NewService(mock, nil, nil, WithClock(newFakeClock()), WithTickInterval(time.Hour))
	defer svc.Shutdown()
	app := newTestApp(svc, "0xabc")

	doJSON(t, app, http.MethodPost, "/tracking/walks", nil)

	mock.ExpectBegin().WillReturnError(errDB)
	resp := doJSON(t, app, http.MethodPost, "/tracking/walks/stop", nil)
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
	var body struct {
		Error   string       `json:"error"`
		Payload walk.Payload `json:"payload"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error == "" || body.Payload.SubmitterIdentity != "0xabc" {
		t.Fatalf("expected payload with the error, got %+v", body)
	}
}

func TestTrackingHandlersHistoryAndPoints(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	now := time.Now()
	mock.ExpectQuery(`SELECT id, address`).
		WithArgs("0xabc", 5).
		WillReturnRows(pgxmock.NewRows([]string{"id", "address", "started_at", "ended_at", "duration_ms", "distance_m", "point_count", "photos", "submission_status", "submission_message", "explorer_url", "created_at"}).
			AddRow("walk-1", "0xabc", now, now, int64(1000), 10.0, 2, []string{}, SubmissionPending, "", "", now))
	mock.ExpectQuery(`SELECT p.lat, p.lng, p.recorded_ms`).
		WithArgs("walk-1", "0xabc").
		WillReturnRows(pgxmock.NewRows([]string{"lat", "lng", "recorded_ms"}).AddRow(1.0, 2.0, int64(3)))
	mock.ExpectQuery(`SELECT p.lat, p.lng, p.recorded_ms`).
		WithArgs("walk-2", "0xabc").
		WillReturnError(errDB)

	svc := NewService(mock, nil, nil)
	defer svc.Shutdown()
	app := newTestApp(svc, "0xabc")

	resp := doJSON(t, app, http.MethodGet, "/tracking/walks?limit=5", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("history status %d", resp.StatusCode)
	}
	resp = doJSON(t, app, http.MethodGet, "/tracking/walks/walk-1/points", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("points status %d", resp.StatusCode)
	}
	resp = doJSON(t, app, http.MethodGet, "/tracking/walks/walk-2/points", nil)
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
