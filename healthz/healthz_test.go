package healthz

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.t
}

func newTestHandler(maxStale time.Duration) (*Handler, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)}
	h := New(maxStale)
	h.now = clock.Now
	h.started = clock.t
	return h, clock
}

func serve(h http.Handler) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
	return rec
}

func TestHealthyAfterTick(t *testing.T) {
	h, clock := newTestHandler(3 * time.Minute)

	if rec := serve(h); rec.Code != http.StatusOK {
		t.Errorf("Fresh handler = %d; want 200", rec.Code)
	}

	clock.t = clock.t.Add(time.Minute)
	h.MarkTick(clock.t, nil)
	clock.t = clock.t.Add(2 * time.Minute)
	if rec := serve(h); rec.Code != http.StatusOK {
		t.Errorf("Two minutes after a pass = %d; want 200", rec.Code)
	}
}

func TestUnhealthyWhenStale(t *testing.T) {
	h, clock := newTestHandler(3 * time.Minute)

	clock.t = clock.t.Add(4 * time.Minute)
	if rec := serve(h); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("No pass for four minutes = %d; want 503", rec.Code)
	}

	h.MarkTick(clock.t, nil)
	if rec := serve(h); rec.Code != http.StatusOK {
		t.Errorf("Right after a pass = %d; want 200", rec.Code)
	}
}

func TestFailedPassIsReported(t *testing.T) {
	h, clock := newTestHandler(3 * time.Minute)

	h.MarkTick(clock.t, errors.New("ledger unreadable"))
	rec := serve(h)
	if rec.Code != http.StatusOK {
		t.Errorf("After a failed pass = %d; want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "ledger unreadable") {
		t.Errorf("Body %q does not mention the failure", rec.Body.String())
	}
}
